package presence

import "github.com/zulandar/switchboard/internal/models"

// Event kinds pushed to connections.
const (
	KindMessageCreated = "message-created" // a guest wrote
	KindMessageReplied = "message-replied" // an operator wrote
	KindSubscribed     = "subscribed"
	KindError          = "error"
)

// Event is the push envelope: {"type": kind, "message": Message}.
type Event struct {
	Type     string          `json:"type"`
	Message  *models.Message `json:"message,omitempty"`
	ThreadID string          `json:"threadId,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// MessageEvent wraps an accepted message in the event kind for its role.
func MessageEvent(m models.Message) Event {
	kind := KindMessageCreated
	if m.Role == models.RoleOperator {
		kind = KindMessageReplied
	}
	return Event{Type: kind, Message: &m}
}
