// Package uow scopes one transactional match attempt over the durable
// store. Each attempt opens its own session at REPEATABLE READ; the
// repositories it hands out are bound to that session and must not outlive
// it. Rollback is the default: only an explicit Commit persists anything.
package uow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/linguamatch/match-worker/internal/domain"
	"github.com/linguamatch/match-worker/internal/matchstore"
)

// Factory opens unit-of-work sessions against the durable store.
type Factory struct {
	db *sql.DB
}

// NewFactory creates a unit-of-work factory over the database handle.
func NewFactory(db *sql.DB) *Factory {
	return &Factory{db: db}
}

// Begin opens a new session and binds fresh repositories to it. Sessions
// are single-use and never shared between concurrent attempts.
func (f *Factory) Begin(ctx context.Context) (*UnitOfWork, error) {
	tx, err := f.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("uow: begin: %w", err)
	}
	return &UnitOfWork{
		tx:       tx,
		Matches:  matchstore.NewMatchRepo(tx),
		Messages: matchstore.NewMessageRepo(tx),
	}, nil
}

// UnitOfWork is one open durable-store session plus the repositories bound
// to it.
type UnitOfWork struct {
	tx        *sql.Tx
	committed bool

	Matches  *matchstore.MatchRepo
	Messages *matchstore.MessageRepo
}

// AddMatch stages a match through the session's match repository.
func (u *UnitOfWork) AddMatch(ctx context.Context, match domain.Match) error {
	return u.Matches.Add(ctx, match)
}

// Commit flushes the session. After a successful commit, Rollback becomes
// a no-op so the usual `defer u.Rollback()` pattern is safe.
func (u *UnitOfWork) Commit() error {
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("uow: commit: %w", err)
	}
	u.committed = true
	return nil
}

// Rollback discards the session unless it was committed. Safe to defer.
func (u *UnitOfWork) Rollback() error {
	if u.committed {
		return nil
	}
	if err := u.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("uow: rollback: %w", err)
	}
	return nil
}
