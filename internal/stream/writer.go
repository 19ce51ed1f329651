package stream

import (
	"context"
	"io"
	"sync"
)

// Writer is a Sink that emits the wire encoding of every chunk to an
// io.Writer. Used by the CLI run path to mirror what a websocket client
// would receive.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter wraps w as a Sink.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Send writes the chunk's wire form.
func (s *Writer) Send(_ context.Context, c Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, c.Wire())
	return err
}
