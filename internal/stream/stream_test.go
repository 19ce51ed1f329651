package stream

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWireRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		chunk Chunk
		wire  string
	}{
		{
			name:  "progress",
			chunk: Progress("codegen", "starting task"),
			wire:  "STREAM_CHUNK:codegen:starting task\n",
		},
		{
			name:  "progress with colons in message",
			chunk: Progress("doc", "saved artifact: id: 42"),
			wire:  "STREAM_CHUNK:doc:saved artifact: id: 42\n",
		},
		{
			name:  "payload",
			chunk: Payload("codegen", "func main() {}\n"),
			wire:  "func main() {}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wire, tt.chunk.Wire())

			got := Decode(tt.wire)
			assert.Equal(t, tt.chunk.Kind, got.Kind)
			if tt.chunk.Kind == KindProgress {
				assert.Equal(t, tt.chunk.Agent, got.Agent)
				assert.Equal(t, tt.chunk.Text, got.Text)
			} else {
				assert.Equal(t, tt.wire, got.Text)
			}
		})
	}
}

func TestDecodePayloadClassification(t *testing.T) {
	// Anything without the literal prefix is payload, even near-misses.
	for _, s := range []string{
		"plain artifact text",
		"stream_chunk:lower:case\n",
		" STREAM_CHUNK:padded:frame\n",
		"",
	} {
		c := Decode(s)
		assert.Equal(t, KindPayload, c.Kind, "input %q", s)
		assert.Equal(t, s, c.Text)
	}
}

func TestDecodeMalformedFrame(t *testing.T) {
	// Prefix with no second separator cannot name an agent; keep the bytes.
	c := Decode("STREAM_CHUNK:orphan")
	assert.Equal(t, KindPayload, c.Kind)
	assert.Equal(t, "STREAM_CHUNK:orphan", c.Text)
}

func TestConcatPayloadReconstructsArtifact(t *testing.T) {
	chunks := []Chunk{
		Progress("test", "starting"),
		Payload("test", "part one\n"),
		Progress("test", "half way"),
		Payload("test", "part two\n"),
		Progress("test", "done"),
	}
	assert.Equal(t, "part one\npart two\n", ConcatPayload(chunks))
}

func TestBufferSink(t *testing.T) {
	var buf Buffer
	ctx := context.Background()

	require.NoError(t, buf.Send(ctx, Progress("qa", "checking")))
	require.NoError(t, buf.Send(ctx, Payload("qa", "report")))

	assert.Len(t, buf.Chunks(), 2)
	assert.Equal(t, "report", buf.Payload())
}

func TestWriterSink(t *testing.T) {
	var sb strings.Builder
	sink := NewWriter(&sb)
	ctx := context.Background()

	require.NoError(t, sink.Send(ctx, Progress("plan", "thinking")))
	require.NoError(t, sink.Send(ctx, Payload("plan", "1. do the thing")))

	assert.Equal(t, "STREAM_CHUNK:plan:thinking\n1. do the thing", sb.String())
}
