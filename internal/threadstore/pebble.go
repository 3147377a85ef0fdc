package threadstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/zulandar/switchboard/internal/keylock"
	"github.com/zulandar/switchboard/internal/models"
)

// Key layout:
//
//	t/<threadId>             thread record
//	m/<threadId>/<seq %020d> message
//
// Thread ids never contain '/', so a thread's message prefix is unambiguous.
const (
	threadPrefix  = "t/"
	messagePrefix = "m/"
)

func threadKey(threadID string) []byte {
	return []byte(threadPrefix + threadID)
}

func messageKey(threadID string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", messagePrefix, threadID, seq))
}

func messagePrefixOf(threadID string) []byte {
	return []byte(messagePrefix + threadID + "/")
}

// upperBound returns the smallest key greater than every key with prefix.
// Prefixes here always end in '/', which is never 0xff.
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return end
}

// PebbleStore is a Store backed by an embedded Pebble LSM.
type PebbleStore struct {
	db    *pebble.DB
	now   Clock
	locks keylock.Map
}

// PebbleOpts holds parameters for opening a PebbleStore.
type PebbleOpts struct {
	Path     string
	InMemory bool  // keep everything in memory, for tests
	Now      Clock // defaults to the wall clock in UTC
}

// OpenPebble opens (or creates) a Pebble store.
func OpenPebble(opts PebbleOpts) (*PebbleStore, error) {
	popts := &pebble.Options{}
	path := opts.Path
	if opts.InMemory {
		popts.FS = vfs.NewMem()
		if path == "" {
			path = "switchboard"
		}
	}
	if path == "" {
		return nil, fmt.Errorf("threadstore: pebble store: path is required")
	}
	pdb, err := pebble.Open(path, popts)
	if err != nil {
		return nil, fmt.Errorf("threadstore: open pebble %s: %w", path, err)
	}
	now := opts.Now
	if now == nil {
		now = utcNow
	}
	return &PebbleStore{db: pdb, now: now}, nil
}

// Append writes the message and the updated thread record in one synced batch.
func (s *PebbleStore) Append(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("threadstore: append to %s: %w", in.ThreadID, err)
	}
	unlock := s.locks.Lock(in.ThreadID)
	defer unlock()

	th, err := s.loadThread(in.ThreadID)
	if err != nil {
		return nil, fmt.Errorf("threadstore: append to %s: %w", in.ThreadID, err)
	}
	if th == nil {
		th = &models.Thread{ThreadID: in.ThreadID}
	}
	msg := accept(th, in, s.now().UTC())

	thData, err := json.Marshal(th)
	if err != nil {
		return nil, fmt.Errorf("threadstore: encode thread %s: %w", in.ThreadID, err)
	}
	msgData, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("threadstore: encode message: %w", err)
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(threadKey(in.ThreadID), thData, nil); err != nil {
		return nil, fmt.Errorf("threadstore: append to %s: %w", in.ThreadID, err)
	}
	if err := b.Set(messageKey(in.ThreadID, msg.Seq), msgData, nil); err != nil {
		return nil, fmt.Errorf("threadstore: append to %s: %w", in.ThreadID, err)
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return nil, fmt.Errorf("threadstore: append to %s: %w", in.ThreadID, err)
	}
	return &msg, nil
}

func (s *PebbleStore) loadThread(threadID string) (*models.Thread, error) {
	val, closer, err := s.db.Get(threadKey(threadID))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var th models.Thread
	if err := json.Unmarshal(val, &th); err != nil {
		return nil, fmt.Errorf("decode thread %s: %w", threadID, err)
	}
	return &th, nil
}

// History returns every message of the thread ordered by Seq. Zero-padded
// sequence keys make iteration order equal Seq order.
func (s *PebbleStore) History(ctx context.Context, threadID string) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("threadstore: history of %s: %w", threadID, err)
	}
	prefix := messagePrefixOf(threadID)
	msgs := []models.Message{}
	err := s.scan(prefix, func(val []byte) error {
		var m models.Message
		if err := json.Unmarshal(val, &m); err != nil {
			return err
		}
		msgs = append(msgs, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("threadstore: history of %s: %w", threadID, err)
	}
	return msgs, nil
}

// ListThreads returns one summary per thread, most recently active first.
func (s *PebbleStore) ListThreads(ctx context.Context) ([]models.ThreadSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("threadstore: list threads: %w", err)
	}
	out := []models.ThreadSummary{}
	err := s.scan([]byte(threadPrefix), func(val []byte) error {
		var th models.Thread
		if err := json.Unmarshal(val, &th); err != nil {
			return err
		}
		out = append(out, th.Summary())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("threadstore: list threads: %w", err)
	}
	sortSummaries(out)
	return out, nil
}

func (s *PebbleStore) scan(prefix []byte, fn func(val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Close flushes and closes the database.
func (s *PebbleStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("threadstore: close: %w", err)
	}
	return nil
}
