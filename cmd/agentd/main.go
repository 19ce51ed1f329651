// Agentd is the agent orchestration daemon.
//
// It hosts a set of LLM agents behind an HTTP/WebSocket API: single tasks
// over POST /api/v1/execute, multi-step workflows over /ws, health and
// Prometheus metrics alongside. Agent definitions reload atomically when
// the config file changes.
//
// Usage:
//
//	# Start with defaults
//	agentd
//
//	# Start with a config file and watch it for agent changes
//	agentd --config agentd.yaml
//
//	# Configure via environment
//	AGENTD_SERVER_PORT=9000 AGENTD_PROVIDER_API_KEY=... agentd
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/agent"
	"github.com/fyrsmithlabs/agentd/internal/artifacts"
	"github.com/fyrsmithlabs/agentd/internal/config"
	"github.com/fyrsmithlabs/agentd/internal/llm"
	"github.com/fyrsmithlabs/agentd/internal/logging"
	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/prompts"
	"github.com/fyrsmithlabs/agentd/internal/rules"
	"github.com/fyrsmithlabs/agentd/internal/server"
	"github.com/fyrsmithlabs/agentd/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
)

var (
	configPath   string
	templatesDir string
)

var rootCmd = &cobra.Command{
	Use:     "agentd",
	Short:   "LLM agent orchestration daemon",
	Version: fmt.Sprintf("%s (%s)", version, gitCommit),
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to agentd.yaml (optional)")
	rootCmd.PersistentFlags().StringVar(&templatesDir, "templates", "", "directory of prompt template overrides")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// run wires the daemon together and blocks until ctx is cancelled:
// config, logger, telemetry, artifact store, rules, prompts, provider,
// agent registry, orchestrator, API server, config watcher.
func run(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting agentd",
		zap.String("version", version),
		zap.String("provider", cfg.Provider.Name),
		zap.String("model", cfg.Provider.Model),
	)

	tel, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

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

	buildRegistry := func(cfg *config.Config) (*agent.Registry, error) {
		ruleSet, err := rules.NewSet(cfg.Rules)
		if err != nil {
			return nil, fmt.Errorf("invalid rules: %w", err)
		}
		deps := agent.Deps{
			LLM:       client,
			Rules:     ruleSet,
			Store:     store,
			Templates: renderer,
			Logger:    logger,
		}
		return agent.Build(cfg.Agents, deps, func(model string) agent.LLM {
			return client.WithModel(model)
		}), nil
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}

	orch := orchestrator.New(reg, orchestrator.Options{
		Logger:  logger,
		Tracer:  tel.Tracer(),
		Metrics: orchestrator.NewMetrics(prometheus.DefaultRegisterer),
	})

	srv, err := server.NewServer(orch, logger, &server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	if configPath != "" {
		go watchConfig(ctx, logger, orch, buildRegistry)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
	if err := orch.Shutdown(shutdownCtx); err != nil {
		logger.Warn("orchestrator shutdown failed", zap.Error(err))
	}
	return nil
}

func buildStore(cfg *config.Config) (artifacts.Store, func(), error) {
	switch cfg.Artifacts.Backend {
	case "memory":
		return artifacts.NewMemoryStore(), func() {}, nil
	default:
		store, err := artifacts.NewSQLiteStore(cfg.Artifacts.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open artifact store: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	}
}

func buildRenderer() (*prompts.Renderer, error) {
	if templatesDir != "" {
		return prompts.NewRendererWithOverrides(templatesDir)
	}
	return prompts.NewRenderer()
}

// watchConfig reloads the agent registry when the config file changes.
// Server and provider settings stay fixed for the life of the process.
func watchConfig(ctx context.Context, logger *zap.Logger, orch *orchestrator.Orchestrator, build func(*config.Config) (*agent.Registry, error)) {
	err := config.Watch(ctx, configPath,
		func(cfg *config.Config) {
			reg, err := build(cfg)
			if err != nil {
				logger.Error("config reload rejected", zap.Error(err))
				return
			}
			orch.ReloadAgents(reg)
		},
		func(err error) {
			logger.Warn("config watch error", zap.Error(err))
		},
	)
	if err != nil && ctx.Err() == nil {
		logger.Error("config watcher stopped", zap.Error(err))
	}
}
