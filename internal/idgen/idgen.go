// Package idgen generates thread and message identifiers.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// MaxThreadIDLen bounds accepted thread ids.
const MaxThreadIDLen = 64

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// ThreadID returns a new ULID. Ids minted in the same millisecond still sort
// in creation order.
func ThreadID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// MessageID returns a random UUID.
func MessageID() string {
	return uuid.NewString()
}

// ValidThreadID reports whether id is 1-64 characters of [A-Za-z0-9_-].
// ULIDs and the numeric ids of older widgets both qualify.
func ValidThreadID(id string) bool {
	if id == "" || len(id) > MaxThreadIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
