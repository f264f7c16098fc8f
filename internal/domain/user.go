package domain

import (
	"fmt"
	"strings"
	"time"
)

// UserStatus is the user's position in the matchmaking lifecycle.
type UserStatus string

const (
	StatusWaiting  UserStatus = "waiting"
	StatusMatched  UserStatus = "matched"
	StatusCanceled UserStatus = "canceled"
	StatusExpired  UserStatus = "expired"
)

// User is a participant in the matchmaking queue. The queue store owns the
// record while the user is waiting; ownership moves to the match store when
// a match commits.
type User struct {
	UserID    int64      `json:"user_id"`
	Username  string     `json:"username"`
	Criteria  Criteria   `json:"criteria"`
	Gender    string     `json:"gender"`
	LangCode  string     `json:"lang_code"`
	CreatedAt time.Time  `json:"created_at"`
	Status    UserStatus `json:"status"`
}

// NewUser validates the criteria and returns a waiting user.
func NewUser(userID int64, username string, criteria Criteria, gender, langCode string, createdAt time.Time) (User, error) {
	if err := criteria.Validate(); err != nil {
		return User{}, err
	}
	return User{
		UserID:    userID,
		Username:  username,
		Criteria:  criteria,
		Gender:    gender,
		LangCode:  langCode,
		CreatedAt: createdAt,
		Status:    StatusWaiting,
	}, nil
}

// CompatibleWith is the base compatibility check between two users. A user
// is never compatible with themselves.
func (u User) CompatibleWith(other User) bool {
	if u.UserID == other.UserID {
		return false
	}
	return u.Criteria.CompatibleWith(other.Criteria)
}

// Weights maps compatibility components to their share of the total score.
type Weights map[string]float64

// Score component names.
const (
	ScoreLanguage    = "language"
	ScoreFluency     = "fluency"
	ScoreTopics      = "topics"
	ScoreDating      = "dating"
	ScoreActivity    = "activity"
	ScoreSuccessRate = "success_rate"
)

// DefaultWeights returns the standard scoring weights. They sum to 1.0 so a
// total score stays in [0,1].
func DefaultWeights() Weights {
	return Weights{
		ScoreLanguage:    0.35,
		ScoreFluency:     0.25,
		ScoreTopics:      0.20,
		ScoreDating:      0.10,
		ScoreActivity:    0.05,
		ScoreSuccessRate: 0.05,
	}
}

// Defaults for the activity and success-rate components until a history
// data source feeds them.
const placeholderScore = 0.7

// CompatibilityScore is a deterministic scoring breakdown between two users.
type CompatibilityScore struct {
	Total       float64
	Components  map[string]float64
	Confidence  float64
	Explanation string
}

// CompatibilityScore computes the weighted compatibility between two users.
// A nil weights map falls back to DefaultWeights.
func (u User) CompatibilityScore(other User, weights Weights) CompatibilityScore {
	if weights == nil {
		weights = DefaultWeights()
	}

	scores := map[string]float64{
		ScoreLanguage:    boolScore(u.Criteria.Language == other.Criteria.Language),
		ScoreFluency:     fluencyScore(u.Criteria.Fluency, other.Criteria.Fluency),
		ScoreTopics:      jaccard(u.Criteria.Topics, other.Criteria.Topics),
		ScoreDating:      boolScore(u.Criteria.Dating == other.Criteria.Dating),
		ScoreActivity:    placeholderScore,
		ScoreSuccessRate: placeholderScore,
	}

	var total float64
	for name, s := range scores {
		total += s * weights[name]
	}
	total = clamp01(total)

	return CompatibilityScore{
		Total:       total,
		Components:  scores,
		Confidence:  confidence(scores),
		Explanation: explain(scores),
	}
}

// fluencyScore decays linearly with the fluency gap: identical levels score
// 1.0, a gap of five or more scores 0.
func fluencyScore(a, b int) float64 {
	return clamp01(1.0 - float64(abs(a-b))/5.0)
}

// jaccard is |A∩B| / |A∪B| over the topic sets, clamped to [0,1].
func jaccard(a, b []string) float64 {
	set := make(map[string]bool, len(a)+len(b))
	for _, t := range a {
		set[t] = true
	}
	union := len(set)
	inter := 0
	for _, t := range b {
		if set[t] {
			inter++
			set[t] = false
		} else {
			union++
			set[t] = false
		}
	}
	if union == 0 {
		return 0
	}
	return clamp01(float64(inter) / float64(union))
}

// confidence grows with the number of strong components: the share of
// components above 0.7, plus a 0.2 floor, capped at 1.
func confidence(scores map[string]float64) float64 {
	high := 0
	for _, s := range scores {
		if s > 0.7 {
			high++
		}
	}
	return clamp01(float64(high)/float64(len(scores)) + 0.2)
}

func explain(scores map[string]float64) string {
	var reasons []string
	if scores[ScoreLanguage] == 1.0 {
		reasons = append(reasons, "same language")
	}
	if scores[ScoreFluency] > 0.8 {
		reasons = append(reasons, "similar fluency")
	}
	if scores[ScoreTopics] > 0.5 {
		reasons = append(reasons, "shared topics")
	}
	if scores[ScoreDating] == 1.0 {
		reasons = append(reasons, "matching dating preference")
	}
	if len(reasons) == 0 {
		return "base compatibility"
	}
	return fmt.Sprintf("high compatibility: %s", strings.Join(reasons, ", "))
}

func boolScore(ok bool) float64 {
	if ok {
		return 1.0
	}
	return 0.0
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
