// Package keylock provides mutual exclusion scoped to a single key, so that
// work on unrelated keys never contends.
package keylock

import (
	"context"
	"sync"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// Arena hands out one guard per key. Guards are created on first use and
// released once no caller holds or waits on them.
type Arena struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New builds an empty arena.
func New() *Arena {
	return &Arena{entries: make(map[string]*entry)}
}

// Lock acquires the guard for key, blocking until it is free or ctx is done.
// The returned function releases the guard and must be called exactly once.
func (a *Arena) Lock(ctx context.Context, key string) (func(), error) {
	a.mu.Lock()
	e, ok := a.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		a.entries[key] = e
	}
	e.refs++
	a.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		a.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			a.release(key, e)
		})
	}, nil
}

func (a *Arena) release(key string, e *entry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(a.entries, key)
	}
}

// Len reports how many keys currently have a live guard.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
