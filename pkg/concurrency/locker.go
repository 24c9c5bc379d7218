// Package concurrency implements the engine's per-prescription and per-NDC
// serialization model from spec.md §5: "parallel workers with per-id
// serialization". KeyedLocker is the in-process implementation; the
// redislock subpackage provides the distributed variant for multi-worker
// deployments, both satisfying the Locker interface.
package concurrency

import (
	"context"
	"sync"
)

// Locker serializes operations keyed by an id (a prescription id or an NDC).
type Locker interface {
	// Lock blocks until the key is acquired or ctx is done, returning an
	// unlock function that must be called to release it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// KeyedLocker is an in-process Locker backed by one mutex per key. Mutexes
// are retained for the process lifetime (the key space — prescription ids,
// NDCs — is bounded by the pharmacy's active catalog, not unbounded).
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewKeyedLocker creates an empty KeyedLocker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for key, blocking if another caller holds it.
// ctx cancellation is only observed before acquisition; once a goroutine is
// queued inside sync.Mutex.Lock it cannot be pre-empted (same as the
// standard library), matching spec.md §5's "after a side effect, the
// operation must run to completion" guidance applied one level down to the
// lock itself.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock, nil
}
