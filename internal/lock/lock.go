// Package lock keeps at most one pipeline run in flight per symbol.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrHeld is returned when another run holds the lock.
var ErrHeld = errors.New("lock held by another run")

// Locker grants exclusive per-key leases. TryAcquire never blocks waiting for the holder.
type Locker interface {
	TryAcquire(ctx context.Context, key, owner string) (release func(), err error)
}

// LocalLocker serializes runs within one process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]string
}

// NewLocalLocker creates an empty in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]string)}
}

func (l *LocalLocker) TryAcquire(_ context.Context, key, owner string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrHeld
	}
	l.held[key] = owner
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[key] == owner {
				delete(l.held, key)
			}
		})
	}, nil
}
