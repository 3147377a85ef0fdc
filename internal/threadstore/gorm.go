package threadstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zulandar/switchboard/internal/keylock"
	"github.com/zulandar/switchboard/internal/models"
	"gorm.io/gorm"
)

// GormStore is a Store backed by a SQL database through GORM.
type GormStore struct {
	db    *gorm.DB
	now   Clock
	locks keylock.Map
}

// GormOpts holds parameters for creating a GormStore.
type GormOpts struct {
	DB  *gorm.DB // migrated connection
	Now Clock    // defaults to the wall clock in UTC
}

// NewGormStore creates a GormStore.
func NewGormStore(opts GormOpts) (*GormStore, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("threadstore: gorm store: db is required")
	}
	now := opts.Now
	if now == nil {
		now = utcNow
	}
	return &GormStore{db: opts.DB, now: now}, nil
}

// Append writes the message and the updated thread row in one transaction.
func (s *GormStore) Append(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	unlock := s.locks.Lock(in.ThreadID)
	defer unlock()

	var msg models.Message
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var th models.Thread
		created := false
		err := tx.Where("thread_id = ?", in.ThreadID).Take(&th).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			th = models.Thread{ThreadID: in.ThreadID}
			created = true
		case err != nil:
			return err
		}

		msg = accept(&th, in, s.now().UTC())

		if created {
			err = tx.Create(&th).Error
		} else {
			err = tx.Save(&th).Error
		}
		if err != nil {
			return err
		}
		return tx.Create(&msg).Error
	})
	if err != nil {
		return nil, fmt.Errorf("threadstore: append to %s: %w", in.ThreadID, err)
	}
	return &msg, nil
}

// History returns every message of the thread ordered by Seq.
func (s *GormStore) History(ctx context.Context, threadID string) ([]models.Message, error) {
	msgs := []models.Message{}
	result := s.db.WithContext(ctx).Where("thread_id = ?", threadID).Order("seq").Find(&msgs)
	if result.Error != nil {
		return nil, fmt.Errorf("threadstore: history of %s: %w", threadID, result.Error)
	}
	return msgs, nil
}

// ListThreads returns one summary per thread, most recently active first.
func (s *GormStore) ListThreads(ctx context.Context) ([]models.ThreadSummary, error) {
	var threads []models.Thread
	result := s.db.WithContext(ctx).Order("last_activity_at DESC, thread_id DESC").Find(&threads)
	if result.Error != nil {
		return nil, fmt.Errorf("threadstore: list threads: %w", result.Error)
	}
	out := make([]models.ThreadSummary, 0, len(threads))
	for _, th := range threads {
		out = append(out, th.Summary())
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("threadstore: close: %w", err)
	}
	return sqlDB.Close()
}
