package domain

import "time"

// UserState is the worker's in-process view of a user's search progress.
// It is a value: mutations return a new state.
type UserState struct {
	UserID      int64
	Status      UserStatus
	CreatedAt   time.Time
	RetryCount  int
	LastUpdated time.Time
}

// NewUserState returns a fresh state for a user that just entered the queue.
func NewUserState(userID int64, status UserStatus, now time.Time) UserState {
	return UserState{
		UserID:      userID,
		Status:      status,
		CreatedAt:   now,
		LastUpdated: now,
	}
}

// Expired reports whether the state outlived its ttl.
func (s UserState) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(s.CreatedAt) > ttl
}

// WithStatus returns a copy with the new status.
func (s UserState) WithStatus(status UserStatus, now time.Time) UserState {
	s.Status = status
	s.LastUpdated = now
	return s
}

// IncrementRetry returns a copy with the retry counter bumped.
func (s UserState) IncrementRetry(now time.Time) UserState {
	s.RetryCount++
	s.LastUpdated = now
	return s
}
