package server

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/zulandar/switchboard/internal/auth"
	"golang.org/x/time/rate"
)

const claimsKey = "operator_claims"

// requestLogger logs each completed request with structured fields.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		event := log.Debug()
		if status >= 400 {
			event = log.Warn()
		}
		if status >= 500 {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request completed")
	}
}

// corsMiddleware allows the storefront origins to call the API from the
// browser. No origins means same-origin only.
func corsMiddleware(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		return nil
	}
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = origins
	return cors.New(cfg)
}

// requireOperator rejects requests without a valid operator token.
func (s *Server) requireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := s.verifier.Verify(auth.TokenFromRequest(c.Request))
		if err != nil {
			abortAuthError(c, err)
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

func abortAuthError(c *gin.Context, err error) {
	if errors.Is(err, auth.ErrForbidden) {
		abortError(c, http.StatusForbidden, errForbidden, "operator role required")
		return
	}
	abortError(c, http.StatusUnauthorized, errUnauthorized, "missing or invalid token")
}

func operatorClaims(c *gin.Context) *auth.Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*auth.Claims)
	return claims
}

// limitGuests applies the per-client token bucket to guest submissions.
func (s *Server) limitGuests() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			abortError(c, http.StatusTooManyRequests, errRateLimited, "too many messages, slow down")
			return
		}
		c.Next()
	}
}

// limiterIdle is how long an untouched client bucket is kept.
const limiterIdle = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterPool holds one token bucket per client key.
type limiterPool struct {
	mu        sync.Mutex
	m         map[string]*limiterEntry
	rps       float64
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 5
	}
	return &limiterPool{m: make(map[string]*limiterEntry), rps: rps, burst: burst, now: time.Now}
}

func (p *limiterPool) Allow(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	if now.Sub(p.lastSweep) > limiterIdle {
		for k, e := range p.m {
			if now.Sub(e.lastSeen) > limiterIdle {
				delete(p.m, k)
			}
		}
		p.lastSweep = now
	}
	e, ok := p.m[strings.TrimSpace(key)]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(p.rps), p.burst)}
		p.m[strings.TrimSpace(key)] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

func (p *limiterPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}
