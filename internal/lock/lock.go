// Package lock serialises check-then-write sections per resource key.
package lock

import (
	"context"
	"errors"
	"sort"
	"sync"
)

var ErrNotAcquired = errors.New("lock not acquired")

// Locker runs fn while holding the lock for key.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// MultiLocker takes a whole set of keys in one step. WithLocks hands it the
// deduplicated, sorted keys instead of nesting WithLock calls.
type MultiLocker interface {
	WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

// SlotKey is the lock key for one professional's agenda on one date.
func SlotKey(professional, date string) string {
	return professional + "|" + date
}

// WithLocks acquires every distinct key in sorted order, so two callers asking
// for the same set never deadlock, then runs fn.
func WithLocks(ctx context.Context, l Locker, keys []string, fn func(ctx context.Context) error) error {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		uniq = append(uniq, k)
	}
	sort.Strings(uniq)
	if ml, ok := l.(MultiLocker); ok {
		return ml.WithLocks(ctx, uniq, fn)
	}
	return withLocks(ctx, l, uniq, fn)
}

func withLocks(ctx context.Context, l Locker, keys []string, fn func(ctx context.Context) error) error {
	if len(keys) == 0 {
		return fn(ctx)
	}
	return l.WithLock(ctx, keys[0], func(ctx context.Context) error {
		return withLocks(ctx, l, keys[1:], fn)
	})
}

// Local is an in-process Locker with one mutex per key.
type Local struct {
	mu   sync.Mutex
	keys map[string]*localEntry
}

type localEntry struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{keys: make(map[string]*localEntry)}
}

func (l *Local) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	e := l.acquireEntry(key)
	defer l.releaseEntry(key, e)

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.ch }()

	return fn(ctx)
}

func (l *Local) acquireEntry(key string) *localEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.keys[key]
	if !ok {
		e = &localEntry{ch: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	return e
}

func (l *Local) releaseEntry(key string, e *localEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
}
