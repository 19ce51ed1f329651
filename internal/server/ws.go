package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentd/internal/orchestrator"
	"github.com/fyrsmithlabs/agentd/internal/stream"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The daemon binds to localhost; cross-origin browser clients are not
	// a supported surface.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsSink forwards chunks to one WebSocket connection in wire format. Each
// connection is its own run, so Send is never called concurrently, but the
// read pump's close handling shares the connection.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(_ context.Context, c stream.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, []byte(c.Wire()))
}

// handleWorkflow runs one workflow per connection. The client sends a
// single JSON document {"workflow": [{name, agent, task}, ...]} and
// receives every chunk in wire format; disconnecting cancels the run.
func (s *Server) handleWorkflow(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log := s.logger.With(zap.String("remote", conn.RemoteAddr().String()))
	conn.SetReadLimit(maxMessageSize)

	var wf orchestrator.Workflow
	if err := conn.ReadJSON(&wf); err != nil {
		log.Warn("invalid workflow message", zap.Error(err))
		s.closeWith(conn, websocket.ClosePolicyViolation, "invalid workflow document")
		return nil
	}
	if len(wf.Steps) == 0 {
		s.closeWith(conn, websocket.ClosePolicyViolation, "workflow has no steps")
		return nil
	}

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// Read pump: the only expected client message after the workflow is a
	// close frame. Any read error means the client is gone.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	sink := &wsSink{conn: conn}
	result, err := s.orch.RunWorkflow(ctx, wf, sink)
	if err != nil {
		log.Warn("workflow aborted", zap.Error(err))
		return nil
	}

	log.Info("workflow served",
		zap.String("run_id", result.RunID),
		zap.String("state", string(result.State)),
		zap.Int("steps", result.StepsTotal),
		zap.Strings("failed_steps", result.StepsFailed),
	)
	s.closeWith(conn, websocket.CloseNormalClosure, string(result.State))
	return nil
}

func (s *Server) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		s.logger.Debug("close frame write failed", zap.Error(err))
	}
}
