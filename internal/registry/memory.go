package registry

import (
	"context"
	"sync"
	"time"

	"github.com/joseph-ayodele/rxverify/internal/entity"
)

// Memory keeps entries in a slice guarded by a mutex. Contents are lost on exit.
type Memory struct {
	mu      sync.RWMutex
	entries []entity.RegistryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

func (m *Memory) ExistsAndValid(_ context.Context, fingerprint string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.Fingerprint == fingerprint && e.Valid {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) Insert(_ context.Context, entry entity.RegistryEntry) (string, error) {
	if entry.Fingerprint == "" {
		return "", ErrEmptyFingerprint
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry.Stamped(m.now()))
	return entry.Fingerprint, nil
}

func (m *Memory) Entries(_ context.Context) ([]entity.RegistryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entity.RegistryEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *Memory) Close() error { return nil }
