package usecase

import (
	"context"
	"log"
	"time"

	"github.com/linguamatch/match-worker/internal/domain"
	"github.com/linguamatch/match-worker/internal/metrics"
)

// FindMatch runs one match attempt for a seeker: reserve a candidate
// atomically, re-check full compatibility against fresh data, and build
// the Match.
type FindMatch struct {
	queue     QueueStore
	weights   domain.Weights
	threshold float64
	now       func() time.Time
}

// NewFindMatch creates the find-match use case. A nil weights map falls
// back to the default scoring weights.
func NewFindMatch(queue QueueStore, weights domain.Weights, threshold float64) *FindMatch {
	if weights == nil {
		weights = domain.DefaultWeights()
	}
	return &FindMatch{
		queue:     queue,
		weights:   weights,
		threshold: threshold,
		now:       time.Now,
	}
}

// Execute attempts to match the seeker. Returns (match, true, nil) on
// success and (zero, false, nil) when no suitable partner exists right now.
// The seeker must be loaded from the queue store; domain.ErrUserNotFound
// propagates when their record is gone.
//
// One call is one attempt: if the reserved candidate fails the final
// compatibility or threshold check, the pair is returned as rejected. The
// reservation already removed both users from the queue, so the caller must
// re-enqueue them before scheduling the retry. The broker redelivers; we do
// not loop here.
func (uc *FindMatch) Execute(ctx context.Context, seekerID int64) (domain.Match, bool, []domain.User, error) {
	seeker, err := uc.queue.FindByID(ctx, seekerID)
	if err != nil {
		return domain.Match{}, false, nil, err
	}

	if size, err := uc.queue.QueueSize(ctx); err == nil {
		metrics.QueueSize.Set(float64(size))
	}

	candidate, reserved, err := uc.queue.FindAndReserveMatch(ctx, seeker)
	if err != nil {
		return domain.Match{}, false, nil, err
	}
	if !reserved {
		metrics.MatchFailuresTotal.WithLabelValues("no_candidate").Inc()
		return domain.Match{}, false, nil, nil
	}

	pair := []domain.User{seeker, candidate}

	// The prefilter ran on possibly stale criteria; re-check the full
	// compatibility rules now that the pair is reserved.
	if !seeker.CompatibleWith(candidate) {
		metrics.MatchFailuresTotal.WithLabelValues("incompatible").Inc()
		log.Printf("[matcher] reserved pair %d/%d failed compatibility re-check",
			seeker.UserID, candidate.UserID)
		return domain.Match{}, false, pair, nil
	}

	score := seeker.CompatibilityScore(candidate, uc.weights)
	if score.Total < uc.threshold {
		metrics.MatchFailuresTotal.WithLabelValues("below_threshold").Inc()
		log.Printf("[matcher] pair %d/%d scored %.2f below threshold %.2f",
			seeker.UserID, candidate.UserID, score.Total, uc.threshold)
		return domain.Match{}, false, pair, nil
	}

	match, err := domain.NewMatch(seeker, candidate, score.Total, uc.now())
	if err != nil {
		return domain.Match{}, false, pair, err
	}

	log.Printf("[matcher] matched %d with %d (score=%.2f, %s)",
		seeker.UserID, candidate.UserID, score.Total, score.Explanation)
	return match, true, nil, nil
}
