package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/zulandar/switchboard/internal/models"
)

// Error types reported by the server envelope.
const (
	TypeValidation   = "validation_error"
	TypeStorage      = "storage_error"
	TypeUnauthorized = "unauthorized_error"
	TypeForbidden    = "forbidden_error"
	TypeRateLimited  = "rate_limited_error"
)

// APIError is a non-2xx response from the relay.
type APIError struct {
	Status  int
	Type    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: server returned %d", e.Status)
	}
	return fmt.Sprintf("client: server returned %d %s: %s", e.Status, e.Type, e.Message)
}

// IsValidation reports whether err is a rejected request.
func IsValidation(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && (ae.Type == TypeValidation || ae.Status == http.StatusBadRequest)
}

// IsUnauthorized reports whether the server refused the credentials.
func IsUnauthorized(err error) bool {
	var ae *APIError
	return errors.As(err, &ae) && (ae.Status == http.StatusUnauthorized || ae.Status == http.StatusForbidden)
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// API calls the relay's REST endpoints.
type API struct {
	http    *resty.Client
	baseURL string
	token   string
}

// NewAPI creates an API client for baseURL. token is sent as a Bearer token
// when non-empty.
func NewAPI(baseURL, token string) *API {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(15*time.Second).
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &API{http: c, baseURL: baseURL, token: token}
}

// BaseURL returns the server URL this client talks to.
func (a *API) BaseURL() string { return a.baseURL }

// GuestMessage is the body of a guest submission.
type GuestMessage struct {
	ThreadID string `json:"threadId"`
	Text     string `json:"text"`
	Name     string `json:"name,omitempty"`
	Contact  string `json:"contact,omitempty"`
}

// Send submits a guest message and returns the stored record.
func (a *API) Send(ctx context.Context, in GuestMessage) (*models.Message, error) {
	var out models.Message
	if err := a.do(ctx, http.MethodPost, "/api/chat", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns a thread's messages through the guest endpoint.
func (a *API) History(ctx context.Context, threadID string) ([]models.Message, error) {
	var out []models.Message
	if err := a.do(ctx, http.MethodGet, "/api/chat", map[string]string{"threadId": threadID}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListThreads returns the operator thread list.
func (a *API) ListThreads(ctx context.Context) ([]models.ThreadSummary, error) {
	var out []models.ThreadSummary
	if err := a.do(ctx, http.MethodGet, "/api/admin/chat", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ThreadHistory returns a thread's messages through the operator endpoint.
func (a *API) ThreadHistory(ctx context.Context, threadID string) ([]models.Message, error) {
	var out []models.Message
	if err := a.do(ctx, http.MethodGet, "/api/admin/chat", map[string]string{"threadId": threadID}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Reply submits an operator message.
func (a *API) Reply(ctx context.Context, threadID, text string) (*models.Message, error) {
	body := map[string]string{"threadId": threadID, "text": text}
	var out models.Message
	if err := a.do(ctx, http.MethodPost, "/api/admin/chat/reply", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *API) do(ctx context.Context, method, path string, query map[string]string, body, out any) error {
	req := a.http.R().
		SetContext(ctx).
		SetResult(out).
		SetError(&errorEnvelope{})
	if query != nil {
		req.SetQueryParams(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		ae := &APIError{Status: resp.StatusCode()}
		if env, ok := resp.Error().(*errorEnvelope); ok && env != nil {
			ae.Type = env.Error.Type
			ae.Message = env.Error.Message
		}
		return ae
	}
	return nil
}
