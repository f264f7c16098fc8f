// Package usecase implements the matchmaking application logic: the
// find-match attempt and the request-processing state machine. External
// collaborators (queue store, durable store, broker, state store) are
// consumed through the interfaces below so the logic stays testable and
// storage-agnostic.
package usecase

import (
	"context"
	"time"

	"github.com/linguamatch/match-worker/internal/domain"
	"github.com/linguamatch/match-worker/internal/request"
)

// QueueStore is the shared waiting queue (authoritative "who is searching").
type QueueStore interface {
	FindByID(ctx context.Context, userID int64) (domain.User, error)
	AddToQueue(ctx context.Context, user domain.User) error
	RemoveFromQueue(ctx context.Context, userID int64) error
	IsSearching(ctx context.Context, userID int64) (bool, error)
	QueueSize(ctx context.Context) (int64, error)
	UpdateCriteria(ctx context.Context, userID int64, criteria domain.Criteria) error
	ReserveMatchID(ctx context.Context, userID int64, matchID string) error
	FindAndReserveMatch(ctx context.Context, seeker domain.User) (domain.User, bool, error)
}

// StateStore tracks per-user search state in this process.
type StateStore interface {
	Save(state domain.UserState)
	Get(userID int64) (domain.UserState, bool)
	UpdateStatus(userID int64, status domain.UserStatus)
	Delete(userID int64)
}

// Publisher schedules redeliveries and dead letters on the broker.
type Publisher interface {
	PublishRequest(req request.Request, delay time.Duration) error
	PublishDeadLetter(req request.Request, errMsg string) error
}

// Tx is one transactional attempt against the durable store.
type Tx interface {
	AddMatch(ctx context.Context, match domain.Match) error
	Commit() error
	Rollback() error
}

// TxFactory opens unit-of-work sessions. Each attempt gets its own; they
// are never shared.
type TxFactory interface {
	Begin(ctx context.Context) (Tx, error)
}
