package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentd/internal/stream"
)

var workflowQuiet bool

// workflowCmd streams a workflow from a JSON file
var workflowCmd = &cobra.Command{
	Use:   "workflow <file>",
	Short: "Run a workflow and stream its output",
	Long: `Run a multi-step workflow from a JSON file and stream the output.

The file holds a workflow document:

  {"workflow": [
    {"name": "plan", "agent": "planner", "task": "plan the feature"},
    {"name": "build", "agent": "codegen", "task": "implement the plan"}
  ]}

Progress chunks go to stderr, payloads to stdout, so the generated
artifacts can be piped while progress stays visible.

Examples:
  # Run a workflow
  agentctl workflow release.json

  # Capture only the artifacts
  agentctl workflow release.json --quiet > artifacts.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	workflowCmd.Flags().BoolVar(&workflowQuiet, "quiet", false, "suppress progress output")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	doc, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read workflow file: %w", err)
	}
	if !json.Valid(doc) {
		return fmt.Errorf("%s is not valid JSON", args[0])
	}

	wsURL, err := websocketURL(serverURL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, doc); err != nil {
		return fmt.Errorf("failed to send workflow: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				if closeErr.Code == websocket.CloseNormalClosure {
					fmt.Fprintf(os.Stderr, "workflow %s\n", closeErr.Text)
					return nil
				}
				return fmt.Errorf("workflow rejected: %s", closeErr.Text)
			}
			return fmt.Errorf("connection lost: %w", err)
		}

		chunk := stream.Decode(string(msg))
		if chunk.IsProgress() {
			if !workflowQuiet {
				fmt.Fprintf(os.Stderr, "%s: %s\n", chunk.Agent, chunk.Text)
			}
			continue
		}
		fmt.Println(chunk.Text)
	}
}

// websocketURL converts the http(s) server URL into the ws(s) endpoint.
func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
