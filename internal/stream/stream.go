// Package stream defines the chunk model shared by agents, the orchestrator,
// and transports.
//
// A Chunk is one unit of streamed output. Progress chunks carry transient,
// human-readable status and are framed on the wire as
//
//	STREAM_CHUNK:<agentName>:<message>\n
//
// Every other string on the wire is a payload chunk: part of the generated
// artifact. The prefix match is the only discriminator in the protocol, so
// agent names must not contain ':'.
package stream

import (
	"context"
	"strings"
	"sync"
)

// WirePrefix tags progress chunks on the wire.
const WirePrefix = "STREAM_CHUNK:"

// Kind discriminates progress chunks from payload chunks.
type Kind int

const (
	// KindProgress marks transient status output. Never part of the artifact.
	KindProgress Kind = iota
	// KindPayload marks artifact output. Concatenating the payload chunks of
	// one agent invocation in order reconstructs the final artifact.
	KindPayload
)

// Chunk is one ordered unit of agent output.
type Chunk struct {
	Agent string
	Kind  Kind
	Text  string
}

// Progress builds a progress chunk for the named agent.
func Progress(agent, message string) Chunk {
	return Chunk{Agent: agent, Kind: KindProgress, Text: message}
}

// Payload builds a payload chunk for the named agent.
func Payload(agent, text string) Chunk {
	return Chunk{Agent: agent, Kind: KindPayload, Text: text}
}

// IsProgress reports whether the chunk is transient status output.
func (c Chunk) IsProgress() bool {
	return c.Kind == KindProgress
}

// Wire encodes the chunk in the wire format consumed by sinks.
func (c Chunk) Wire() string {
	if c.Kind == KindProgress {
		return WirePrefix + c.Agent + ":" + c.Text + "\n"
	}
	return c.Text
}

// Decode classifies a wire string. Strings carrying the progress frame are
// decoded into agent and message; anything else is a payload chunk with an
// empty agent name.
func Decode(s string) Chunk {
	if !strings.HasPrefix(s, WirePrefix) {
		return Chunk{Kind: KindPayload, Text: s}
	}
	rest := strings.TrimPrefix(s, WirePrefix)
	agent, message, ok := strings.Cut(rest, ":")
	if !ok {
		// Malformed frame, treat as payload rather than dropping output.
		return Chunk{Kind: KindPayload, Text: s}
	}
	return Chunk{Agent: agent, Kind: KindProgress, Text: strings.TrimSuffix(message, "\n")}
}

// ConcatPayload joins the payload chunks of a stream in order.
func ConcatPayload(chunks []Chunk) string {
	var b strings.Builder
	for _, c := range chunks {
		if c.Kind == KindPayload {
			b.WriteString(c.Text)
		}
	}
	return b.String()
}

// Sink accepts an ordered stream of chunks. Implementations belong to the
// transport layer (a websocket connection, a log, a test buffer). Send must
// preserve call order; it is never called concurrently for one run.
type Sink interface {
	Send(ctx context.Context, c Chunk) error
}

// Buffer is an in-memory Sink. Used by the single-task path and by tests.
type Buffer struct {
	mu     sync.Mutex
	chunks []Chunk
}

// Send records the chunk.
func (b *Buffer) Send(_ context.Context, c Chunk) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, c)
	return nil
}

// Chunks returns the recorded chunks in arrival order.
func (b *Buffer) Chunks() []Chunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Chunk, len(b.chunks))
	copy(out, b.chunks)
	return out
}

// Payload returns the concatenated payload chunks received so far.
func (b *Buffer) Payload() string {
	return ConcatPayload(b.Chunks())
}
