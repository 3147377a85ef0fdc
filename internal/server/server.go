// Package server exposes the relay over HTTP: REST endpoints for history and
// submission, and WebSocket and SSE push channels.
package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/auth"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/presence"
	"github.com/zulandar/switchboard/internal/relay"
)

// Opts holds the collaborators and settings of a Server.
type Opts struct {
	Relay    *relay.Relay
	Registry *presence.Registry
	Verifier *auth.Verifier
	Server   config.ServerConfig
	Limits   config.LimitsConfig
	Log      zerolog.Logger
}

// Server routes HTTP traffic to the relay and the presence registry.
type Server struct {
	relay        *relay.Relay
	registry     *presence.Registry
	verifier     *auth.Verifier
	cfg          config.ServerConfig
	limiter      *limiterPool
	log          zerolog.Logger
	router       *gin.Engine
	nextConn     atomic.Uint64
	pushBuffer   int
	writeTimeout time.Duration
	heartbeat    time.Duration
}

// New creates a Server with its routes registered.
func New(opts Opts) (*Server, error) {
	if opts.Relay == nil {
		return nil, fmt.Errorf("server: relay is required")
	}
	if opts.Registry == nil {
		return nil, fmt.Errorf("server: registry is required")
	}
	if opts.Verifier == nil {
		return nil, fmt.Errorf("server: verifier is required")
	}
	s := &Server{
		relay:        opts.Relay,
		registry:     opts.Registry,
		verifier:     opts.Verifier,
		cfg:          opts.Server,
		limiter:      newLimiterPool(opts.Limits.GuestRPS, opts.Limits.GuestBurst),
		log:          opts.Log,
		pushBuffer:   positive(opts.Server.PushBuffer, 64),
		writeTimeout: time.Duration(positive(opts.Server.WriteTimeoutSec, 5)) * time.Second,
		heartbeat:    time.Duration(positive(opts.Server.HeartbeatSec, 15)) * time.Second,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.log))
	if mw := corsMiddleware(opts.Server.AllowedOrigins); mw != nil {
		router.Use(mw)
	}
	s.registerRoutes(router)
	s.router = router
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on port until ctx is cancelled, then shuts down gracefully.
// Open push connections observe the cancellation and close.
func (s *Server) Start(ctx context.Context, port int, out io.Writer) error {
	if port <= 0 {
		port = 8080
	}
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if out != nil {
		fmt.Fprintf(out, "Switchboard listening on http://localhost:%d\n", port)
	}
	s.log.Info().Int("port", port).Msg("server started")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

func (s *Server) connID(prefix string) string {
	return prefix + "-" + strconv.FormatUint(s.nextConn.Add(1), 10)
}

func positive(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
