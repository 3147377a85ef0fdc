package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/relay"
)

// Error types in the response envelope.
const (
	errValidation   = "validation_error"
	errStorage      = "storage_error"
	errUnauthorized = "unauthorized_error"
	errForbidden    = "forbidden_error"
	errRateLimited  = "rate_limited_error"
	errInternal     = "internal_error"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failure.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func abortError(c *gin.Context, status int, typ, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{Error: ErrorDetail{Message: message, Type: typ}})
}

// abortRelayError maps relay failures onto HTTP. Storage failures carry
// Retry-After so clients back off before retrying.
func abortRelayError(c *gin.Context, err error) {
	switch {
	case relay.IsValidation(err):
		var re *relay.Error
		errors.As(err, &re)
		abortError(c, http.StatusBadRequest, errValidation, re.Reason)
	case relay.IsRetryable(err):
		c.Header("Retry-After", "1")
		abortError(c, http.StatusServiceUnavailable, errStorage, "message store unavailable, retry shortly")
	default:
		abortError(c, http.StatusInternalServerError, errInternal, "internal error")
	}
}
