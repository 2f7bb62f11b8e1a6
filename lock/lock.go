// Package lock serializes reconciliation passes of the same repository.
package lock

import (
	"context"
	"errors"
	"sync"
)

var ErrHeld = errors.New("lock is held")

// Release gives a lock back. It is safe to call more than once.
type Release func(ctx context.Context) error

// Locker hands out exclusive, non-blocking locks by key.
type Locker interface {
	// TryLock returns ErrHeld when somebody else holds key.
	TryLock(ctx context.Context, key string) (Release, error)
}

// Memory locks keys within one process.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) TryLock(ctx context.Context, key string) (Release, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, ErrHeld
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
		return nil
	}, nil
}
