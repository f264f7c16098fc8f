package usecase

import (
	"context"
	"time"

	"github.com/linguamatch/match-worker/internal/domain"
	"github.com/linguamatch/match-worker/internal/request"
)

// fakeQueue is an in-memory QueueStore with scriptable failures.
type fakeQueue struct {
	users     map[int64]domain.User
	searching map[int64]bool
	matchIDs  map[int64]string

	candidate    domain.User
	hasCandidate bool

	findErr    error
	reserveErr error

	added    []int64
	removed  []int64
	criteria map[int64]domain.Criteria
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{
		users:     make(map[int64]domain.User),
		searching: make(map[int64]bool),
		matchIDs:  make(map[int64]string),
		criteria:  make(map[int64]domain.Criteria),
	}
}

func (f *fakeQueue) add(user domain.User) {
	f.users[user.UserID] = user
	f.searching[user.UserID] = true
}

func (f *fakeQueue) FindByID(_ context.Context, userID int64) (domain.User, error) {
	if f.findErr != nil {
		return domain.User{}, f.findErr
	}
	user, ok := f.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeQueue) AddToQueue(_ context.Context, user domain.User) error {
	f.added = append(f.added, user.UserID)
	f.add(user)
	return nil
}

func (f *fakeQueue) RemoveFromQueue(_ context.Context, userID int64) error {
	f.removed = append(f.removed, userID)
	delete(f.users, userID)
	delete(f.searching, userID)
	return nil
}

func (f *fakeQueue) IsSearching(_ context.Context, userID int64) (bool, error) {
	return f.searching[userID], nil
}

func (f *fakeQueue) QueueSize(_ context.Context) (int64, error) {
	return int64(len(f.users)), nil
}

func (f *fakeQueue) UpdateCriteria(_ context.Context, userID int64, criteria domain.Criteria) error {
	f.criteria[userID] = criteria
	return nil
}

func (f *fakeQueue) ReserveMatchID(_ context.Context, userID int64, matchID string) error {
	f.matchIDs[userID] = matchID
	return nil
}

func (f *fakeQueue) FindAndReserveMatch(_ context.Context, seeker domain.User) (domain.User, bool, error) {
	if f.reserveErr != nil {
		return domain.User{}, false, f.reserveErr
	}
	if !f.hasCandidate {
		return domain.User{}, false, nil
	}
	delete(f.users, seeker.UserID)
	delete(f.searching, seeker.UserID)
	delete(f.users, f.candidate.UserID)
	delete(f.searching, f.candidate.UserID)
	return f.candidate, true, nil
}

// fakeStates is an in-memory StateStore.
type fakeStates struct {
	states map[int64]domain.UserState
}

func newFakeStates() *fakeStates {
	return &fakeStates{states: make(map[int64]domain.UserState)}
}

func (f *fakeStates) Save(state domain.UserState) { f.states[state.UserID] = state }

func (f *fakeStates) Get(userID int64) (domain.UserState, bool) {
	st, ok := f.states[userID]
	return st, ok
}

func (f *fakeStates) UpdateStatus(userID int64, status domain.UserStatus) {
	if st, ok := f.states[userID]; ok {
		f.states[userID] = st.WithStatus(status, time.Now())
	}
}

func (f *fakeStates) Delete(userID int64) { delete(f.states, userID) }

// fakePublisher records everything published.
type fakePublisher struct {
	published   []publishedRequest
	deadLetters []request.Request
	publishErr  error
}

type publishedRequest struct {
	req   request.Request
	delay time.Duration
}

func (f *fakePublisher) PublishRequest(req request.Request, delay time.Duration) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishedRequest{req: req, delay: delay})
	return nil
}

func (f *fakePublisher) PublishDeadLetter(req request.Request, errMsg string) error {
	f.deadLetters = append(f.deadLetters, req.WithError(errMsg))
	return nil
}

// fakeTx records staged matches and scripted failures.
type fakeTx struct {
	matches    []domain.Match
	addErr     error
	commitErr  error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) AddMatch(_ context.Context, match domain.Match) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.matches = append(f.matches, match)
	return nil
}

func (f *fakeTx) Commit() error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback() error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}

// fakeTxFactory hands out the prepared transaction.
type fakeTxFactory struct {
	tx       *fakeTx
	beginErr error
}

func (f *fakeTxFactory) Begin(_ context.Context) (Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.tx, nil
}
