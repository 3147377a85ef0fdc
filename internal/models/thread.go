package models

import "time"

// Thread is the durable record of one guest-to-operator conversation. The
// Last* fields and MessageCount are derived on every append.
type Thread struct {
	ThreadID       string    `gorm:"primaryKey;size:64"`
	Name           string    `gorm:"size:128"`
	Contact        string    `gorm:"size:128"`
	MessageCount   int       `gorm:"not null;default:0"`
	LastText       string    `gorm:"type:text"`
	LastRole       Role      `gorm:"size:16"`
	LastActivityAt time.Time `gorm:"index"`
	CreatedAt      time.Time
}

// Summary converts the thread record to its list-view shape.
func (t Thread) Summary() ThreadSummary {
	return ThreadSummary{
		ThreadID:       t.ThreadID,
		Name:           t.Name,
		Contact:        t.Contact,
		LastText:       t.LastText,
		LastRole:       t.LastRole,
		LastActivityAt: t.LastActivityAt,
		Count:          t.MessageCount,
	}
}

// ThreadSummary is one row of the operator thread list.
type ThreadSummary struct {
	ThreadID       string    `json:"threadId"`
	Name           string    `json:"name,omitempty"`
	Contact        string    `json:"contact,omitempty"`
	LastText       string    `json:"lastText"`
	LastRole       Role      `json:"lastRole"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	Count          int       `json:"count"`
}

// AwaitingReply reports whether the guest spoke last.
func (s ThreadSummary) AwaitingReply() bool {
	return s.LastRole == RoleGuest
}
