package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/relay"
)

// registerRoutes sets up all routes on the Gin router. Paths match the
// storefront widget and admin dashboard.
func (s *Server) registerRoutes(router *gin.Engine) {
	router.GET("/healthz", handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/api/chat", s.handleGuestHistory)
	router.POST("/api/chat", s.limitGuests(), s.handleGuestSubmit)
	router.GET("/api/chat/events", s.handleGuestEvents)

	admin := router.Group("/api/admin/chat", s.requireOperator())
	admin.GET("", s.handleAdminChat)
	admin.POST("/reply", s.handleAdminReply)
	admin.GET("/events", s.handleOperatorEvents)

	router.GET("/ws", s.handleWebSocket)
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// guestSubmit is the body of POST /api/chat.
type guestSubmit struct {
	ThreadID string `json:"threadId"`
	Text     string `json:"text"`
	Name     string `json:"name"`
	Contact  string `json:"contact"`
}

// operatorReply is the body of POST /api/admin/chat/reply.
type operatorReply struct {
	ThreadID string `json:"threadId"`
	Text     string `json:"text"`
}

func (s *Server) handleGuestHistory(c *gin.Context) {
	s.writeHistory(c, c.Query("threadId"))
}

func (s *Server) handleGuestSubmit(c *gin.Context) {
	var body guestSubmit
	if err := c.ShouldBindJSON(&body); err != nil {
		abortError(c, http.StatusBadRequest, errValidation, "request body must be a JSON object")
		return
	}
	msg, err := s.relay.Submit(c.Request.Context(), relay.SubmitRequest{
		ThreadID: body.ThreadID,
		Role:     models.RoleGuest,
		Text:     body.Text,
		Name:     body.Name,
		Contact:  body.Contact,
	})
	if err != nil {
		abortRelayError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// handleAdminChat lists threads, or returns one thread's history when
// threadId is given.
func (s *Server) handleAdminChat(c *gin.Context) {
	if id, ok := c.GetQuery("threadId"); ok {
		s.writeHistory(c, id)
		return
	}
	threads, err := s.relay.ListThreads(c.Request.Context())
	if err != nil {
		abortRelayError(c, err)
		return
	}
	c.JSON(http.StatusOK, threads)
}

func (s *Server) handleAdminReply(c *gin.Context) {
	var body operatorReply
	if err := c.ShouldBindJSON(&body); err != nil {
		abortError(c, http.StatusBadRequest, errValidation, "request body must be a JSON object")
		return
	}
	req := relay.SubmitRequest{
		ThreadID: body.ThreadID,
		Role:     models.RoleOperator,
		Text:     body.Text,
	}
	if claims := operatorClaims(c); claims != nil {
		req.Name = claims.Name
	}
	msg, err := s.relay.Submit(c.Request.Context(), req)
	if err != nil {
		abortRelayError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) writeHistory(c *gin.Context, threadID string) {
	msgs, err := s.relay.History(c.Request.Context(), threadID)
	if err != nil {
		abortRelayError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}
