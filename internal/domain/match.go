package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Match lifecycle statuses.
const (
	MatchActive  = "active"
	MatchExited  = "exited"
	MatchAborted = "aborted"
)

// Match is a committed (or about to be committed) pairing of two users.
// A user may appear in at most one match with status "active"; that
// invariant is enforced by the queue store's atomic reservation, not here.
type Match struct {
	MatchID            string
	User1              User
	User2              User
	RoomID             string
	CompatibilityScore float64
	CreatedAt          time.Time
	Status             string
}

// NewMatch builds an active match between two distinct users with fresh
// match and room IDs.
func NewMatch(user1, user2 User, score float64, now time.Time) (Match, error) {
	if user1.UserID == user2.UserID {
		return Match{}, fmt.Errorf("%w: user %d cannot match themselves", ErrIncompatibleUsers, user1.UserID)
	}
	if score < 0 || score > 1 {
		return Match{}, fmt.Errorf("domain: compatibility score %f out of range [0,1]", score)
	}
	return Match{
		MatchID:            uuid.New().String(),
		User1:              user1,
		User2:              user2,
		RoomID:             uuid.New().String(),
		CompatibilityScore: score,
		CreatedAt:          now,
		Status:             MatchActive,
	}, nil
}

// Partner returns the other participant, or false if the user is not part
// of this match.
func (m Match) Partner(userID int64) (User, bool) {
	switch userID {
	case m.User1.UserID:
		return m.User2, true
	case m.User2.UserID:
		return m.User1, true
	}
	return User{}, false
}

// ContainsUser reports whether the user participates in this match.
func (m Match) ContainsUser(userID int64) bool {
	return userID == m.User1.UserID || userID == m.User2.UserID
}
