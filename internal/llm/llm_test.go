package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/agentd/internal/config"
)

// scriptedModel streams its fragments through the call's streaming func.
type scriptedModel struct {
	fragments []string
	err       error
	delay     time.Duration
	calls     int
}

func (m *scriptedModel) GenerateContent(ctx context.Context, _ []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}

	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	for _, frag := range m.fragments {
		if m.delay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(m.delay):
			}
		}
		if opts.StreamingFunc != nil {
			if err := opts.StreamingFunc(ctx, []byte(frag)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{}, nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, _ ...llms.CallOption) (string, error) {
	return "", errors.New("not used")
}

func clientConfig() config.ProviderConfig {
	return config.ProviderConfig{
		Name:    "googleai",
		Timeout: config.Duration(time.Second),
	}
}

func TestStreamDeliversFragmentsInOrder(t *testing.T) {
	model := &scriptedModel{fragments: []string{"alpha ", "beta ", "gamma"}}
	client := NewWithModel(model, clientConfig())

	var got []string
	err := client.Stream(context.Background(), "prompt", func(frag string) error {
		got = append(got, frag)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha ", "beta ", "gamma"}, got)
	assert.Equal(t, 1, model.calls)
}

func TestStreamPropagatesTransportError(t *testing.T) {
	model := &scriptedModel{err: errors.New("connection reset")}
	client := NewWithModel(model, clientConfig())

	err := client.Stream(context.Background(), "prompt", func(string) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestStreamCallbackErrorAborts(t *testing.T) {
	model := &scriptedModel{fragments: []string{"one", "two"}}
	client := NewWithModel(model, clientConfig())

	sentinel := errors.New("stop")
	err := client.Stream(context.Background(), "prompt", func(string) error { return sentinel })
	assert.Error(t, err)
}

func TestStreamTimeout(t *testing.T) {
	cfg := clientConfig()
	cfg.Timeout = config.Duration(20 * time.Millisecond)
	model := &scriptedModel{fragments: []string{"slow"}, delay: 500 * time.Millisecond}
	client := NewWithModel(model, cfg)

	err := client.Stream(context.Background(), "prompt", func(string) error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamRespectsCancellation(t *testing.T) {
	model := &scriptedModel{fragments: []string{"a", "b"}, delay: 200 * time.Millisecond}
	client := NewWithModel(model, clientConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := client.Stream(ctx, "prompt", func(string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRateLimiterWaitsOnCancelledContext(t *testing.T) {
	cfg := clientConfig()
	cfg.RequestsPerMinute = 1
	model := &scriptedModel{fragments: []string{"x"}}
	client := NewWithModel(model, cfg)

	// First call consumes the single token.
	require.NoError(t, client.Stream(context.Background(), "p", func(string) error { return nil }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := client.Stream(ctx, "p", func(string) error { return nil })
	assert.Error(t, err, "second call must block on the limiter and fail with the context")
	assert.Equal(t, 1, model.calls)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.ProviderConfig{Name: "mystery"})
	assert.Error(t, err)
}
