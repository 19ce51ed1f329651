// Package config provides configuration loading for agentd.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (AGENTD_SERVER_PORT, AGENTD_PROVIDER_API_KEY, ...)
//  2. YAML config file
//  3. Hardcoded defaults
package config

import (
	"fmt"
	"regexp"
	"time"
)

// Config is the root agentd configuration.
type Config struct {
	Server    ServerConfig           `koanf:"server"`
	Logging   LoggingConfig          `koanf:"logging"`
	Telemetry TelemetryConfig        `koanf:"telemetry"`
	Provider  ProviderConfig         `koanf:"provider"`
	Artifacts ArtifactsConfig        `koanf:"artifacts"`
	Rules     []RuleConfig           `koanf:"rules"`
	Agents    AgentsConfig           `koanf:"agents"`
}

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LoggingConfig selects log verbosity and encoding.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

// ProviderConfig describes the LLM provider shared by all agents.
type ProviderConfig struct {
	// Name selects the backend: "googleai" or "openai".
	Name  string `koanf:"name"`
	Model string `koanf:"model"`
	// APIKey authenticates against the provider. Redacted in logs.
	APIKey Secret `koanf:"api_key"`
	// BaseURL overrides the provider endpoint (OpenAI-compatible servers).
	BaseURL string `koanf:"base_url"`
	// Timeout bounds a single streamed completion call.
	Timeout Duration `koanf:"timeout"`
	// RequestsPerMinute rate-limits provider calls across all agents.
	// Zero disables the limiter.
	RequestsPerMinute int     `koanf:"requests_per_minute"`
	MaxTokens         int     `koanf:"max_tokens"`
	Temperature       float64 `koanf:"temperature"`
}

// ArtifactsConfig selects the artifact store backend.
type ArtifactsConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `koanf:"backend"`
	// Path is the SQLite database file. Ignored by the memory backend.
	Path string `koanf:"path"`
}

// RuleConfig defines one output-enforcement rule.
type RuleConfig struct {
	Name string `koanf:"name"`
	// AppliesTo lists agent types the rule applies to. Empty means all.
	AppliesTo []string `koanf:"applies_to"`
	// Require is a regexp the output must match.
	Require string `koanf:"require"`
	// Forbid is a regexp the output must not match.
	Forbid string `koanf:"forbid"`
	// MaxBytes caps output size. Zero disables the cap.
	MaxBytes int `koanf:"max_bytes"`
	// Message overrides the default violation message.
	Message string `koanf:"message"`
}

// AgentsConfig holds agent definitions and lifecycle limits.
type AgentsConfig struct {
	// MaxCorrectionDepth bounds recursive self-correction. Each failing
	// lifecycle spends one attempt; at zero remaining attempts the
	// coordinator reports recovery failure instead of recursing.
	MaxCorrectionDepth int `koanf:"max_correction_depth"`
	// Definitions maps agent name to its definition. The key is the
	// agent's identity in progress chunks.
	Definitions map[string]AgentConfig `koanf:"definitions"`
}

// AgentConfig defines one agent instance.
type AgentConfig struct {
	// Type is the capability identifier: codegen, planner, qa, doc, test
	// or fix. Unknown types are skipped at registry build with an error
	// logged, never a fatal abort.
	Type string `koanf:"type"`
	// Model overrides the shared provider model for this agent.
	Model string `koanf:"model"`
	// Templates maps prompt slots (generate, update, review, report) to
	// template names. Profiles fall back to their defaults for missing
	// slots.
	Templates map[string]string `koanf:"templates"`
}

// Template returns the template name for slot, or def when unset.
func (a AgentConfig) Template(slot, def string) string {
	if name, ok := a.Templates[slot]; ok && name != "" {
		return name
	}
	return def
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8745,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			SampleRatio: 1.0,
		},
		Provider: ProviderConfig{
			Name:              "googleai",
			Model:             "gemini-1.5-pro",
			Timeout:           Duration(2 * time.Minute),
			RequestsPerMinute: 60,
			MaxTokens:         8192,
			Temperature:       0.2,
		},
		Artifacts: ArtifactsConfig{
			Backend: "sqlite",
			Path:    "agentd.db",
		},
		Agents: AgentsConfig{
			MaxCorrectionDepth: 1,
			Definitions: map[string]AgentConfig{
				"codegen": {Type: "codegen"},
				"planner": {Type: "planner"},
				"qa":      {Type: "qa"},
				"doc":     {Type: "doc"},
				"test":    {Type: "test"},
				"fix":     {Type: "fix"},
			},
		},
	}
}

// agentNamePattern keeps agent names safe for the wire framing, which uses
// ':' as a separator.
var agentNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in [1, 65535], got %d", c.Server.Port)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	switch c.Provider.Name {
	case "googleai", "openai":
	default:
		return fmt.Errorf("provider.name must be 'googleai' or 'openai', got %q", c.Provider.Name)
	}
	if c.Provider.Timeout.Duration() <= 0 {
		return fmt.Errorf("provider.timeout must be > 0")
	}
	if c.Provider.RequestsPerMinute < 0 {
		return fmt.Errorf("provider.requests_per_minute must be >= 0")
	}
	switch c.Artifacts.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("artifacts.backend must be 'sqlite' or 'memory', got %q", c.Artifacts.Backend)
	}
	if c.Artifacts.Backend == "sqlite" && c.Artifacts.Path == "" {
		return fmt.Errorf("artifacts.path is required for the sqlite backend")
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be in [0, 1], got %v", c.Telemetry.SampleRatio)
	}
	if c.Agents.MaxCorrectionDepth < 0 {
		return fmt.Errorf("agents.max_correction_depth must be >= 0")
	}
	for name := range c.Agents.Definitions {
		if !agentNamePattern.MatchString(name) {
			return fmt.Errorf("agent name %q is invalid: must be alphanumeric with hyphens/underscores/dots", name)
		}
	}
	for i, r := range c.Rules {
		if r.Name == "" {
			return fmt.Errorf("rules[%d]: name is required", i)
		}
		if r.Require == "" && r.Forbid == "" && r.MaxBytes == 0 {
			return fmt.Errorf("rule %q has no condition (require, forbid or max_bytes)", r.Name)
		}
		for _, expr := range []string{r.Require, r.Forbid} {
			if expr == "" {
				continue
			}
			if _, err := regexp.Compile(expr); err != nil {
				return fmt.Errorf("rule %q: invalid pattern %q: %w", r.Name, expr, err)
			}
		}
		if r.MaxBytes < 0 {
			return fmt.Errorf("rule %q: max_bytes must be >= 0", r.Name)
		}
	}
	return nil
}
