package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/idgen"
	"github.com/zulandar/switchboard/internal/metrics"
	"github.com/zulandar/switchboard/internal/presence"
)

// sseConn is one Server-Sent Events push connection.
type sseConn struct {
	id       string
	operator bool
	send     chan presence.Event
	ctx      context.Context
}

func (c *sseConn) ID() string     { return c.id }
func (c *sseConn) Operator() bool { return c.operator }

func (c *sseConn) Deliver(ev presence.Event) bool {
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.send <- ev:
		return true
	default:
		return false
	}
}

func (s *Server) handleGuestEvents(c *gin.Context) {
	threadID := c.Query("threadId")
	if !idgen.ValidThreadID(threadID) {
		abortError(c, http.StatusBadRequest, errValidation, "threadId is required and must be 1-64 characters of [A-Za-z0-9_-]")
		return
	}
	s.streamSSE(c, threadID, false)
}

func (s *Server) handleOperatorEvents(c *gin.Context) {
	s.streamSSE(c, presence.All, true)
}

// streamSSE subscribes an SSE connection to target and streams events until
// the client goes away.
func (s *Server) streamSSE(c *gin.Context, target string, operator bool) {
	ctx := c.Request.Context()
	conn := &sseConn{
		id:       s.connID("sse"),
		operator: operator,
		send:     make(chan presence.Event, s.pushBuffer),
		ctx:      ctx,
	}
	if err := s.registry.Subscribe(conn, target); err != nil {
		abortError(c, http.StatusForbidden, errForbidden, err.Error())
		return
	}
	metrics.ConnectionOpened(operator)
	defer func() {
		s.registry.Unsubscribe(conn)
		metrics.ConnectionClosed(operator)
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	writeSSE(c.Writer, "connected", presence.Event{Type: "connected", ThreadID: target})
	c.Writer.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case ev := <-conn.send:
			writeSSE(c.Writer, ev.Type, ev)
			c.Writer.Flush()
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
