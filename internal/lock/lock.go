// Package lock provides named per-game mutual exclusion.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrLost is the cancellation cause of fn's ctx when a backend finds the lock
// taken away while fn still runs.
var ErrLost = errors.New("lock: lost while held")

// Namespace separates independent lock families for the same game.
type Namespace string

const (
	// Action serializes every mutation of a game's persisted state.
	Action Namespace = "action"
	// Turn serializes turn-notification rounds of a game.
	Turn Namespace = "turn"
)

// Name is the lock identity used by backends that need a single string.
func Name(ns Namespace, gameID uint) string {
	return fmt.Sprintf("%s_lock:%d", ns, gameID)
}

// Coordinator runs fn while holding the (ns, gameID) lock. The lock is
// released on every exit path of fn, including panics. Waiting blocks until
// the lock is free or ctx is done.
type Coordinator interface {
	WithLock(ctx context.Context, ns Namespace, gameID uint, fn func(ctx context.Context) error) error
}

type key struct {
	ns     Namespace
	gameID uint
}

type entry struct {
	sem  chan struct{}
	refs int
}

// Local is an in-process Coordinator. Entries are reference counted so the
// map does not grow with every game ever touched.
type Local struct {
	mu      sync.Mutex
	entries map[key]*entry
}

func NewLocal() *Local {
	return &Local{entries: make(map[key]*entry)}
}

func (l *Local) WithLock(ctx context.Context, ns Namespace, gameID uint, fn func(ctx context.Context) error) error {
	k := key{ns: ns, gameID: gameID}
	e := l.acquireEntry(k)
	defer l.releaseEntry(k)

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("lock: waiting for %s: %w", Name(ns, gameID), ctx.Err())
	}
	defer func() { <-e.sem }()

	return fn(ctx)
}

func (l *Local) acquireEntry(k key) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[k]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[k] = e
	}
	e.refs++
	return e
}

func (l *Local) releaseEntry(k key) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[k]
	e.refs--
	if e.refs == 0 {
		delete(l.entries, k)
	}
}

// Len is the number of live lock entries, exposed for tests.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
