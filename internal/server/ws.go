package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/auth"
	"github.com/zulandar/switchboard/internal/metrics"
	"github.com/zulandar/switchboard/internal/presence"
	"nhooyr.io/websocket"
)

// wsReadLimit bounds client frames, which only carry subscriptions.
const wsReadLimit = 4096

// clientFrame is a control message sent by a WebSocket client.
type clientFrame struct {
	Type     string `json:"type"` // "subscribe" or "unsubscribe"
	ThreadID string `json:"threadId,omitempty"`
	All      bool   `json:"all,omitempty"`
}

// wsConn is one WebSocket push connection.
type wsConn struct {
	id           string
	operator     bool
	conn         *websocket.Conn
	send         chan []byte
	ctx          context.Context
	cancel       context.CancelFunc
	writeTimeout time.Duration
	server       *Server
}

func (c *wsConn) ID() string     { return c.id }
func (c *wsConn) Operator() bool { return c.operator }

// Deliver enqueues ev, dropping it when the queue is full or the connection
// is closing.
func (c *wsConn) Deliver(ev presence.Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		return false
	}
	return c.enqueue(data)
}

func (c *wsConn) enqueue(data []byte) bool {
	if c.ctx.Err() != nil {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// handleWebSocket upgrades /ws. Guests pass ?threadId=, operators pass
// ?all=1 with a token. Either may change subscription later with frames.
func (s *Server) handleWebSocket(c *gin.Context) {
	operator := false
	if raw := auth.TokenFromRequest(c.Request); raw != "" {
		if _, err := s.verifier.Verify(raw); err != nil {
			abortAuthError(c, err)
			return
		}
		operator = true
	}
	wantAll := isTruthy(c.Query("all"))
	if wantAll && !operator {
		abortError(c, http.StatusUnauthorized, errUnauthorized, "operator token required for the all-threads feed")
		return
	}

	conn, err := websocket.Accept(rawWriter(c.Writer), c.Request, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.cfg.AllowedOrigins),
	})
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	conn.SetReadLimit(wsReadLimit)

	ctx, cancel := context.WithCancel(c.Request.Context())
	wc := &wsConn{
		id:           s.connID("ws"),
		operator:     operator,
		conn:         conn,
		send:         make(chan []byte, s.pushBuffer),
		ctx:          ctx,
		cancel:       cancel,
		writeTimeout: s.writeTimeout,
		server:       s,
	}
	metrics.ConnectionOpened(operator)
	defer func() {
		s.registry.Unsubscribe(wc)
		cancel()
		metrics.ConnectionClosed(operator)
		s.log.Debug().Str("conn", wc.id).Msg("websocket closed")
	}()

	switch {
	case wantAll:
		wc.subscribe(presence.All)
	case c.Query("threadId") != "":
		wc.subscribe(c.Query("threadId"))
	}

	go wc.writePump()
	wc.readPump()
}

// rawWriter returns the writer gin wraps. Accept writes the 101 status
// before hijacking, and gin refuses to hijack a written response.
func rawWriter(w gin.ResponseWriter) http.ResponseWriter {
	if u, ok := w.(interface{ Unwrap() http.ResponseWriter }); ok {
		return u.Unwrap()
	}
	return w
}

func (c *wsConn) subscribe(target string) {
	if err := c.server.registry.Subscribe(c, target); err != nil {
		c.sendFrame(presence.Event{Type: presence.KindError, Error: err.Error()})
		return
	}
	c.sendFrame(presence.Event{Type: presence.KindSubscribed, ThreadID: target})
}

func (c *wsConn) sendFrame(ev presence.Event) {
	if !c.Deliver(ev) {
		c.server.log.Debug().Str("conn", c.id).Str("type", ev.Type).Msg("control frame dropped")
	}
}

func (c *wsConn) readPump() {
	defer c.cancel()
	for {
		typ, data, err := c.conn.Read(c.ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageText {
			c.sendFrame(presence.Event{Type: presence.KindError, Error: "binary frames are not supported"})
			continue
		}
		c.handleFrame(data)
	}
}

func (c *wsConn) handleFrame(data []byte) {
	var f clientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		c.sendFrame(presence.Event{Type: presence.KindError, Error: "invalid JSON"})
		return
	}
	switch f.Type {
	case "subscribe":
		if f.All {
			c.subscribe(presence.All)
		} else {
			c.subscribe(f.ThreadID)
		}
	case "unsubscribe":
		c.server.registry.Unsubscribe(c)
	default:
		c.sendFrame(presence.Event{Type: presence.KindError, Error: "unknown frame type " + f.Type})
	}
}

func (c *wsConn) writePump() {
	defer func() { _ = c.conn.Close(websocket.StatusNormalClosure, "") }()
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, c.writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}

// originPatterns converts configured origins to the host patterns the
// websocket handshake checks.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}

func isTruthy(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}
