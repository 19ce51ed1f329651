// Package main implements the agentctl CLI for manual operations against
// the agentd server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the agentd server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "CLI for agentd server operations",
	Long: `agentctl is a command-line interface for interacting with the agentd server.
It provides commands for running single agent tasks, streaming workflows and
checking server health.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8745", "agentd server URL")
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(healthCmd)
}

// execCmd runs a single task on one agent
var execCmd = &cobra.Command{
	Use:   "exec <agent> <task>",
	Short: "Run a single task on one agent",
	Long: `Run a single task on the named agent and print the resulting artifact.

Examples:
  # Generate code
  agentctl exec codegen "write a fizzbuzz function"

  # Use a different server
  agentctl exec --server http://localhost:9000 planner "plan the migration"`,
	Args: cobra.ExactArgs(2),
	RunE: runExec,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check agentd server health",
	Long: `Check the health status of the agentd server and list its agents.

Examples:
  # Check health
  agentctl health

  # Check health on a different server
  agentctl health --server http://localhost:9000`,
	RunE: runHealth,
}

// ExecuteRequest matches internal/server ExecuteRequest
type ExecuteRequest struct {
	Agent string `json:"agent"`
	Task  string `json:"task"`
}

// ExecuteResponse matches internal/server ExecuteResponse
type ExecuteResponse struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse matches internal/server HealthResponse
type HealthResponse struct {
	Status string   `json:"status"`
	Agents []string `json:"agents"`
}

func httpClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Minute}
}

func runExec(cmd *cobra.Command, args []string) error {
	body, err := json.Marshal(ExecuteRequest{Agent: args[0], Task: args[1]})
	if err != nil {
		return err
	}

	resp, err := httpClient().Post(serverURL+"/api/v1/execute", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(data))
	}

	var result ExecuteResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	if result.Error != "" {
		return fmt.Errorf("agent error: %s", result.Error)
	}

	fmt.Println(result.Result)
	return nil
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}

	fmt.Printf("Status: %s\n", health.Status)
	fmt.Printf("Agents:\n")
	for _, name := range health.Agents {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}
