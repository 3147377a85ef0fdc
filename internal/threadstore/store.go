// Package threadstore is the durable, append-only record of chat threads.
package threadstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/idgen"
	"github.com/zulandar/switchboard/internal/models"
)

// Store persists messages and answers history queries.
//
// Append assigns SentAt and the next thread-local Seq and creates the thread
// on its first message. History of an unknown thread is empty, not an error.
// ListThreads orders by last activity, newest first.
type Store interface {
	Append(ctx context.Context, in models.NewMessage) (*models.Message, error)
	History(ctx context.Context, threadID string) ([]models.Message, error)
	ListThreads(ctx context.Context) ([]models.ThreadSummary, error)
	Close() error
}

// Clock returns the store's notion of now.
type Clock func() time.Time

// Open builds the Store selected by the configured driver, migrating SQL
// schemas as needed.
func Open(sc config.StoreConfig) (Store, error) {
	switch sc.Driver {
	case config.DriverPebble:
		return OpenPebble(PebbleOpts{Path: sc.Path})
	case config.DriverSQLite, config.DriverMySQL:
		gdb, err := db.Connect(sc)
		if err != nil {
			return nil, err
		}
		if err := db.AutoMigrate(gdb); err != nil {
			return nil, err
		}
		return NewGormStore(GormOpts{DB: gdb})
	default:
		return nil, fmt.Errorf("threadstore: unknown driver %q", sc.Driver)
	}
}

// accept folds in into th and returns the message to persist. th is updated
// in place with the derived summary fields.
func accept(th *models.Thread, in models.NewMessage, now time.Time) models.Message {
	if th.CreatedAt.IsZero() {
		th.CreatedAt = now
	}
	msg := models.Message{
		ID:       idgen.MessageID(),
		ThreadID: in.ThreadID,
		Seq:      th.MessageCount + 1,
		Role:     in.Role,
		Text:     in.Text,
		SentAt:   now,
	}
	if in.Role == models.RoleGuest {
		// Participant fields stick to their first non-empty value.
		if th.Name == "" {
			th.Name = in.Name
		}
		if th.Contact == "" {
			th.Contact = in.Contact
		}
		msg.Name = th.Name
		msg.Contact = th.Contact
	} else {
		msg.Name = in.Name
	}

	th.MessageCount = msg.Seq
	th.LastText = msg.Text
	th.LastRole = msg.Role
	th.LastActivityAt = now
	return msg
}

func sortSummaries(s []models.ThreadSummary) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].LastActivityAt.Equal(s[j].LastActivityAt) {
			return s[i].LastActivityAt.After(s[j].LastActivityAt)
		}
		return s[i].ThreadID > s[j].ThreadID
	})
}

func utcNow() time.Time {
	return time.Now().UTC()
}
