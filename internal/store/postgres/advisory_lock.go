package postgres

import (
	"context"
	"sort"

	"github.com/uptrace/bun"

	"clinicflow/backend/internal/lock"
)

// AdvisoryLocker serialises callers sharing a key across every process that
// talks to the same database. All keys of one call are taken inside a single
// transaction, and repository calls made with the callback's ctx reuse it, so
// a locked section holds exactly one pool connection.
type AdvisoryLocker struct {
	db bun.IDB
}

var (
	_ lock.Locker      = (*AdvisoryLocker)(nil)
	_ lock.MultiLocker = (*AdvisoryLocker)(nil)
)

func NewAdvisoryLocker(db bun.IDB) *AdvisoryLocker {
	return &AdvisoryLocker{db: db}
}

func (l *AdvisoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return l.WithLocks(ctx, []string{key}, fn)
}

func (l *AdvisoryLocker) WithLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	if scopeFrom(ctx) != nil {
		return l.lockIn(ctx, scopeFrom(ctx).tx, keys, fn)
	}

	scope := &txScope{}
	err := l.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		scope.tx = tx
		return l.lockIn(withTxScope(ctx, scope), tx, keys, fn)
	})
	if err != nil {
		return err
	}
	for _, f := range scope.afterCommit {
		f()
	}
	return nil
}

func (l *AdvisoryLocker) lockIn(ctx context.Context, tx bun.Tx, keys []string, fn func(ctx context.Context) error) error {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	for _, key := range sorted {
		if _, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx); err != nil {
			return err
		}
	}
	return fn(ctx)
}
