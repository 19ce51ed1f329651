package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/agent"
	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/llm"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/rules"
	"github.com/fyrsmithlabs/agentd/internal/stream"
)

// runCmd executes a workflow file in-process, without the server. Chunks
// go to stdout in wire format, exactly as a websocket client would see
// them.
var runCmd = &cobra.Command{
	Use:   "run <workflow.json>",
	Short: "Run a workflow file in-process and stream chunks to stdout",
	Long: `Run a multi-step workflow from a JSON file without starting the server.

Examples:
  # Run a workflow against the configured provider
  agentd run --config agentd.yaml release.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWorkflowFile(cmd.Context(), args[0])
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runWorkflowFile(ctx context.Context, path string) error {
	doc, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read workflow file: %w", err)
	}
	var wf orchestrator.Workflow
	if err := json.Unmarshal(doc, &wf); err != nil {
		return fmt.Errorf("invalid workflow document: %w", err)
	}
	if len(wf.Steps) == 0 {
		return fmt.Errorf("workflow has no steps")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	renderer, err := buildRenderer()
	if err != nil {
		return fmt.Errorf("failed to load prompt templates: %w", err)
	}

	client, err := llm.New(ctx, cfg.Provider)
	if err != nil {
		return fmt.Errorf("failed to initialize provider: %w", err)
	}

	ruleSet, err := rules.NewSet(cfg.Rules)
	if err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}

	reg := agent.Build(cfg.Agents, agent.Deps{
		LLM:       client,
		Rules:     ruleSet,
		Store:     store,
		Templates: renderer,
		Logger:    logger,
	}, func(model string) agent.LLM {
		return client.WithModel(model)
	})

	orch := orchestrator.New(reg, orchestrator.Options{Logger: logger})
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = orch.Shutdown(shutdownCtx)
	}()

	result, err := orch.RunWorkflow(ctx, wf, stream.NewWriter(os.Stdout))
	if err != nil {
		return err
	}

	logger.Info("workflow finished",
		zap.String("run_id", result.RunID),
		zap.String("state", string(result.State)),
		zap.Strings("failed_steps", result.StepsFailed),
	)
	if result.State != orchestrator.StateCompleted {
		return fmt.Errorf("workflow finished %s", result.State)
	}
	return nil
}
