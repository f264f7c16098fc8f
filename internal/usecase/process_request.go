package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/linguamatch/match-worker/internal/domain"
	"github.com/linguamatch/match-worker/internal/metrics"
	"github.com/linguamatch/match-worker/internal/request"
)

// Result is the outcome reported to the message handler.
type Result int

const (
	// ResultHandled means the request is done: ack the message.
	ResultHandled Result = iota
	// ResultFailed means the attempt should be retried: nack the message.
	ResultFailed
)

// maxRetryDelay caps the backoff between no-match retries.
const maxRetryDelay = 30 * time.Second

// ProcessRequest is the request-processing state machine: admission gates,
// the initial delay, the match attempt inside a unit of work, retry
// scheduling with criteria relaxation, timeouts, and dead-lettering.
type ProcessRequest struct {
	find      *FindMatch
	queue     QueueStore
	states    StateStore
	txs       TxFactory
	publisher Publisher

	maxWaitTime  time.Duration
	initialDelay time.Duration
	maxRetries   int

	now func() time.Time
}

// NewProcessRequest wires the state machine.
func NewProcessRequest(
	find *FindMatch,
	queue QueueStore,
	states StateStore,
	txs TxFactory,
	publisher Publisher,
	maxWaitTime, initialDelay time.Duration,
	maxRetries int,
) *ProcessRequest {
	return &ProcessRequest{
		find:         find,
		queue:        queue,
		states:       states,
		txs:          txs,
		publisher:    publisher,
		maxWaitTime:  maxWaitTime,
		initialDelay: initialDelay,
		maxRetries:   maxRetries,
		now:          time.Now,
	}
}

// Execute runs one delivery through the state machine. A non-nil error
// always accompanies ResultFailed and feeds the handler's circuit breaker;
// ResultHandled deliveries are acked regardless of what they decided.
func (uc *ProcessRequest) Execute(ctx context.Context, req request.Request) (Result, error) {
	// 1. Terminal statuses: the search is over, clean up whatever remains.
	switch req.Status {
	case request.StatusSearchCanceled, request.StatusSearchCompleted:
		return uc.cleanup(ctx, req)
	}

	now := uc.now()
	elapsed := now.Sub(req.CreatedAt)

	// 2. Hard timeout on total search time.
	if elapsed >= uc.maxWaitTime {
		return uc.timeout(ctx, req)
	}

	// 3. Liveness: the user may have canceled or been matched by another
	// worker since this message was published.
	searching, err := uc.queue.IsSearching(ctx, req.UserID)
	if err != nil {
		return ResultFailed, err
	}
	if !searching {
		log.Printf("[worker] user %d no longer searching, dropping request", req.UserID)
		return ResultHandled, nil
	}

	// 4. Initial delay: give the queue a moment to fill before the first
	// attempt.
	if elapsed < uc.initialDelay {
		if err := uc.publisher.PublishRequest(req.WithRetry(req.Criteria, req.RetryCount, now), uc.initialDelay-elapsed); err != nil {
			return ResultFailed, err
		}
		return ResultHandled, nil
	}

	// 5. Attempt a match inside a fresh unit of work.
	result, err := uc.attempt(ctx, req, now)
	if err == nil || errors.Is(err, errNoMatch) {
		if errors.Is(err, errNoMatch) {
			// 6. No partner this time: relax, reschedule or give up.
			return uc.handleNoMatch(ctx, req, elapsed)
		}
		return result, nil
	}

	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		// The queue record expired between deliveries. Nothing to match.
		uc.states.Delete(req.UserID)
		return ResultHandled, nil
	case errors.Is(err, domain.ErrDuplicateMatch), errors.Is(err, domain.ErrIncompatibleUsers):
		// 7. Unexpected terminal failure: dead-letter and report failure.
		return uc.deadLetter(req, err)
	default:
		// Transient infrastructure failure: let the broker redeliver.
		return ResultFailed, err
	}
}

// errNoMatch signals an attempt that completed without finding a partner.
var errNoMatch = errors.New("usecase: no match found")

// attempt runs the find-match use case and, on success, persists the match
// and publishes the match id for both front-ends.
func (uc *ProcessRequest) attempt(ctx context.Context, req request.Request, now time.Time) (Result, error) {
	match, found, rejected, err := uc.find.Execute(ctx, req.UserID)
	if len(rejected) > 0 {
		// The reservation removed the pair from the queue before the final
		// checks rejected it. Put both back so the seeker's retry and the
		// candidate's own search continue.
		uc.restore(ctx, rejected)
	}
	if err != nil {
		return ResultFailed, err
	}
	if !found {
		return ResultHandled, errNoMatch
	}

	tx, err := uc.txs.Begin(ctx)
	if err != nil {
		return uc.commitFailed(ctx, req, match, err)
	}
	defer tx.Rollback()

	if err := tx.AddMatch(ctx, match); err != nil {
		if errors.Is(err, domain.ErrDuplicateMatch) {
			return ResultFailed, err
		}
		return uc.commitFailed(ctx, req, match, err)
	}
	if err := tx.Commit(); err != nil {
		return uc.commitFailed(ctx, req, match, err)
	}

	// Committed: record state and let both front-ends find the match id.
	for _, user := range []domain.User{match.User1, match.User2} {
		uc.states.UpdateStatus(user.UserID, domain.StatusMatched)
		if err := uc.queue.ReserveMatchID(ctx, user.UserID, match.MatchID); err != nil {
			// The match is durable; polling will miss it but the room
			// lookup by user remains possible. Log and move on.
			log.Printf("[worker] reserve match id for %d: %v", user.UserID, err)
		}
	}

	metrics.MatchesTotal.Inc()
	metrics.CompatibilityScore.Observe(match.CompatibilityScore)
	metrics.MatchDuration.Observe(now.Sub(req.CreatedAt).Seconds())
	return ResultHandled, nil
}

// commitFailed restores both users to the queue and reports failure so the
// broker redelivers after its short delay.
func (uc *ProcessRequest) commitFailed(ctx context.Context, req request.Request, match domain.Match, cause error) (Result, error) {
	metrics.MatchFailuresTotal.WithLabelValues("commit_failed").Inc()
	metrics.ErrorsTotal.WithLabelValues("commit_failed").Inc()
	log.Printf("[worker] commit failed for match %s: %v", match.MatchID, cause)

	uc.restore(ctx, []domain.User{match.User1, match.User2})
	return ResultFailed, fmt.Errorf("usecase: commit failed: %w", cause)
}

// restore puts users back into the queue in WAITING status, tolerating any
// that another path already re-admitted.
func (uc *ProcessRequest) restore(ctx context.Context, users []domain.User) {
	for _, user := range users {
		user.Status = domain.StatusWaiting
		if err := uc.queue.AddToQueue(ctx, user); err != nil && !errors.Is(err, domain.ErrAlreadyInSearch) {
			log.Printf("[worker] re-enqueue user %d: %v", user.UserID, err)
		}
	}
}

// handleNoMatch relaxes the criteria and schedules the next attempt, or
// expires the search when the retry budget is spent.
func (uc *ProcessRequest) handleNoMatch(ctx context.Context, req request.Request, elapsed time.Duration) (Result, error) {
	if req.RetryCount >= uc.maxRetries || elapsed >= uc.maxWaitTime {
		return uc.timeout(ctx, req)
	}

	relaxed := req.Criteria.Relax(req.RetryCount)
	if err := uc.queue.UpdateCriteria(ctx, req.UserID, relaxed); err != nil {
		return ResultFailed, err
	}

	delay := time.Duration(2*(req.RetryCount+1)) * time.Second
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	next := req.WithRetry(relaxed, req.RetryCount+1, uc.now())
	if err := uc.publisher.PublishRequest(next, delay); err != nil {
		return ResultFailed, err
	}

	if st, ok := uc.states.Get(req.UserID); ok {
		uc.states.Save(st.IncrementRetry(uc.now()))
	}
	log.Printf("[worker] no match for user %d, retry %d in %s", req.UserID, next.RetryCount, delay)
	return ResultHandled, nil
}

// timeout expires the search: metric, EXPIRED state, out of the queue.
func (uc *ProcessRequest) timeout(ctx context.Context, req request.Request) (Result, error) {
	metrics.TimeoutsTotal.Inc()
	log.Printf("[worker] search timed out for user %d after %s", req.UserID, uc.now().Sub(req.CreatedAt))

	uc.states.UpdateStatus(req.UserID, domain.StatusExpired)
	if err := uc.queue.RemoveFromQueue(ctx, req.UserID); err != nil {
		return ResultFailed, err
	}
	return ResultHandled, nil
}

// cleanup handles terminal statuses. Idempotent: a second canceled request
// finds nothing to remove and still reports handled.
func (uc *ProcessRequest) cleanup(ctx context.Context, req request.Request) (Result, error) {
	uc.states.Delete(req.UserID)
	if err := uc.queue.RemoveFromQueue(ctx, req.UserID); err != nil {
		return ResultFailed, err
	}
	log.Printf("[worker] cleaned up user %d (%s)", req.UserID, req.Status)
	return ResultHandled, nil
}

// deadLetter parks the request with the failure reason.
func (uc *ProcessRequest) deadLetter(req request.Request, cause error) (Result, error) {
	metrics.ErrorsTotal.WithLabelValues("dead_letter").Inc()
	if err := uc.publisher.PublishDeadLetter(req, cause.Error()); err != nil {
		log.Printf("[worker] dead letter publish for user %d: %v", req.UserID, err)
	}
	return ResultFailed, cause
}
