// Package client implements the guest widget and operator console as Go
// clients of the relay's REST API and WebSocket feed.
package client

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// IdentityStore persists the guest's thread id across restarts.
type IdentityStore interface {
	// Load returns the stored id, or "" when none is stored.
	Load() (string, error)
	Save(threadID string) error
	Clear() error
}

// FileIdentity keeps the thread id in a single file.
type FileIdentity struct {
	Path string
}

// Load reads the id. A missing file means no identity.
func (f FileIdentity) Load() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("client: read identity: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save writes the id, creating parent directories as needed.
func (f FileIdentity) Save(threadID string) error {
	if dir := filepath.Dir(f.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("client: save identity: %w", err)
		}
	}
	if err := os.WriteFile(f.Path, []byte(threadID+"\n"), 0o600); err != nil {
		return fmt.Errorf("client: save identity: %w", err)
	}
	return nil
}

// Clear removes the file.
func (f FileIdentity) Clear() error {
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("client: clear identity: %w", err)
	}
	return nil
}

// MemoryIdentity is an in-process IdentityStore.
type MemoryIdentity struct {
	mu sync.Mutex
	id string
}

func (m *MemoryIdentity) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, nil
}

func (m *MemoryIdentity) Save(threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = threadID
	return nil
}

func (m *MemoryIdentity) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.id = ""
	return nil
}
