// Package notify alerts operators on a chat platform (Slack, Discord) when a
// guest opens a new thread, and posts a scheduled digest of threads waiting
// for a reply.
package notify

import "context"

// Adapter posts messages to one chat platform.
type Adapter interface {
	// Connect verifies credentials and prepares the client.
	Connect(ctx context.Context) error

	// Send delivers an outbound message to the platform.
	Send(ctx context.Context, msg OutboundMessage) error

	// Close releases the connection.
	Close() error
}

// OutboundMessage is a message to post.
type OutboundMessage struct {
	ChannelID string           // target channel; adapters fall back to their default
	Text      string           // plain text, also the fallback for rich events
	Events    []FormattedEvent // structured attachments
}

// FormattedEvent is a titled card with optional fields.
type FormattedEvent struct {
	Title  string
	Body   string
	Color  string // sidebar color hint, e.g. "#36a64f"
	Fields []Field
}

// Field is a key-value pair displayed in an event attachment.
type Field struct {
	Name  string
	Value string
	Short bool // hint: render side-by-side with another field
}
