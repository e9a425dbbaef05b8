package kv

import (
	"context"
	"errors"
)

// ErrLocked is returned when another process already holds the writer lock.
var ErrLocked = errors.New("kv: writer lock held by another process")

// Locker is implemented by backends shared between processes. Only the
// holder of the lock may write the alert list.
type Locker interface {
	TryLock(ctx context.Context) (release func(), err error)
}

// AcquireWriter takes the writer lock when the backend supports one.
// Process-local backends need none.
func AcquireWriter(ctx context.Context, s Store) (func(), error) {
	if l, ok := s.(Locker); ok {
		return l.TryLock(ctx)
	}
	return func() {}, nil
}
