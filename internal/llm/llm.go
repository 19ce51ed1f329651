// Package llm wraps langchaingo models behind the streaming Provider
// interface consumed by agent lifecycles.
//
// Calls are rate limited across all agents sharing one provider and bounded
// by a per-call timeout, so a stalled completion surfaces as an ordinary
// lifecycle failure instead of wedging a run.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/agentd/internal/config"
)

// Provider streams completions for a prompt.
type Provider interface {
	// Stream sends prompt to the model and invokes fn for each response
	// fragment in production order. It returns the transport error, if
	// any; fn errors abort the stream and are returned verbatim.
	Stream(ctx context.Context, prompt string, fn func(fragment string) error) error
}

// Client is the langchaingo-backed Provider.
type Client struct {
	model   llms.Model
	limiter *rate.Limiter
	timeout time.Duration
	opts    []llms.CallOption
}

// New constructs a Client from provider configuration.
func New(ctx context.Context, cfg config.ProviderConfig) (*Client, error) {
	model, err := buildModel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newClient(model, cfg), nil
}

// NewWithModel wraps an existing model with the client's limiting and
// timeout behavior. Used by tests and by per-agent model overrides.
func NewWithModel(model llms.Model, cfg config.ProviderConfig) *Client {
	return newClient(model, cfg)
}

func newClient(model llms.Model, cfg config.ProviderConfig) *Client {
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	var opts []llms.CallOption
	if cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(cfg.MaxTokens))
	}
	opts = append(opts, llms.WithTemperature(cfg.Temperature))
	return &Client{
		model:   model,
		limiter: limiter,
		timeout: cfg.Timeout.Duration(),
		opts:    opts,
	}
}

func buildModel(ctx context.Context, cfg config.ProviderConfig) (llms.Model, error) {
	switch cfg.Name {
	case "googleai":
		model, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey.Value()),
			googleai.WithDefaultModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize googleai model: %w", err)
		}
		return model, nil
	case "openai":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey.Value()),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai model: %w", err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// WithModel returns a Client targeting model instead of the configured
// default. The limiter is shared with the parent so per-agent overrides
// still count against the provider budget.
func (c *Client) WithModel(model string) *Client {
	clone := *c
	clone.opts = append(append([]llms.CallOption{}, c.opts...), llms.WithModel(model))
	return &clone
}

// Stream implements Provider.
func (c *Client) Stream(ctx context.Context, prompt string, fn func(string) error) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}
	opts := append([]llms.CallOption{
		llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			return fn(string(chunk))
		}),
	}, c.opts...)

	if _, err := c.model.GenerateContent(ctx, messages, opts...); err != nil {
		return fmt.Errorf("llm call failed: %w", err)
	}
	return nil
}
