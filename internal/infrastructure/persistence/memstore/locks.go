package memstore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// errLockTimeout is returned when a row lock could not be taken before the deadline
var errLockTimeout = errors.New("lock wait timeout")

// lockTable hands out exclusive row locks. Each row has a one-slot channel;
// holding the lock means having filled the slot.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]chan struct{})}
}

func (l *lockTable) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *lockTable) acquire(ctx context.Context, key string, deadline time.Time) error {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
		return nil
	default:
	}

	wait := time.Until(deadline)
	if wait <= 0 {
		return errLockTimeout
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return errLockTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lockTable) release(key string) {
	select {
	case <-l.slot(key):
	default:
	}
}
