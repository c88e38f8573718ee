// Package runlock enforces at most one in-flight run per pipeline.
package runlock

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrHeld is returned when another run holds the key.
var ErrHeld = errors.New("lock is held")

// Lease is a held lock. Release is idempotent.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive leases keyed by pipeline id.
type Locker interface {
	// TryAcquire never waits: it returns ErrHeld when key is taken.
	TryAcquire(ctx context.Context, key string) (Lease, error)
}

// MemoryLocker serializes runs within one process.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]string
}

// NewMemoryLocker creates an in-process locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]string)}
}

// TryAcquire implements Locker.
func (l *MemoryLocker) TryAcquire(_ context.Context, key string) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; ok {
		return nil, ErrHeld
	}
	token := uuid.NewString()
	l.held[key] = token
	return &memoryLease{locker: l, key: key, token: token}, nil
}

// Held reports whether key is currently locked.
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  string
	once   sync.Once
}

func (m *memoryLease) Release(context.Context) error {
	m.once.Do(func() {
		m.locker.mu.Lock()
		defer m.locker.mu.Unlock()
		if m.locker.held[m.key] == m.token {
			delete(m.locker.held, m.key)
		}
	})
	return nil
}
