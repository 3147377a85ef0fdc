package models

import "time"

// Role identifies who authored a message.
type Role string

const (
	RoleGuest    Role = "guest"
	RoleOperator Role = "operator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleGuest || r == RoleOperator
}

// Message is a single accepted chat message. It is immutable once stored.
type Message struct {
	ID       string    `gorm:"primaryKey;size:36" json:"id"`
	ThreadID string    `gorm:"size:64;not null;uniqueIndex:idx_thread_seq" json:"threadId"`
	Seq      int       `gorm:"not null;uniqueIndex:idx_thread_seq" json:"seq"`
	Role     Role      `gorm:"size:16;not null" json:"role"`
	Text     string    `gorm:"type:text;not null" json:"text"`
	Name     string    `gorm:"size:128" json:"name,omitempty"`
	Contact  string    `gorm:"size:128" json:"contact,omitempty"`
	SentAt   time.Time `gorm:"not null" json:"sentAt"`
}

// NewMessage is the input to a store append: everything the caller decides.
// The store assigns ID, Seq, and SentAt.
type NewMessage struct {
	ThreadID string
	Role     Role
	Text     string
	Name     string
	Contact  string
}
