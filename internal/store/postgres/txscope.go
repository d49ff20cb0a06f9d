package postgres

import (
	"context"

	"github.com/uptrace/bun"
)

type txScopeKey struct{}

// txScope is a transaction opened by AdvisoryLocker. Repositories called
// with its context run on the same connection, and their change
// notifications wait for the commit.
type txScope struct {
	tx          bun.Tx
	afterCommit []func()
}

func withTxScope(ctx context.Context, s *txScope) context.Context {
	return context.WithValue(ctx, txScopeKey{}, s)
}

func scopeFrom(ctx context.Context) *txScope {
	s, _ := ctx.Value(txScopeKey{}).(*txScope)
	return s
}

// conn returns the locker's transaction when ctx carries one, else db.
func conn(ctx context.Context, db bun.IDB) bun.IDB {
	if s := scopeFrom(ctx); s != nil {
		return s.tx
	}
	return db
}

// afterCommit runs fn now, or once the surrounding locker transaction commits.
func afterCommit(ctx context.Context, fn func()) {
	if s := scopeFrom(ctx); s != nil {
		s.afterCommit = append(s.afterCommit, fn)
		return
	}
	fn()
}
