package store

import (
	"context"
	"sync"
)

// Locker serializes read-mutate-write cycles for a single payment id.
// Different keys must never contend. The default is process-local; a
// distributed implementation can be plugged in when several instances share
// one storage backend.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func() error) error
}

// MutexLocker is the process-local Locker: one mutex per payment id,
// allocated on first use.
type MutexLocker struct {
	locks sync.Map // payment id -> *sync.Mutex
}

// NewMutexLocker creates a process-local keyed locker.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{}
}

func (l *MutexLocker) WithLock(ctx context.Context, key string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mu, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	defer m.Unlock()
	return fn()
}
