package domain

import (
	"math"
	"testing"
	"time"
)

func testUser(id int64, c Criteria) User {
	return User{
		UserID:    id,
		Username:  "user",
		Criteria:  c,
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Status:    StatusWaiting,
	}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	var sum float64
	for _, w := range DefaultWeights() {
		sum += w
	}
	if math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("weights sum to %f, want 1.0", sum)
	}
}

func TestCompatibilityScoreDeterministic(t *testing.T) {
	a := testUser(1, Criteria{Language: "en", Fluency: 5, Topics: []string{"music", "travel"}, Dating: true})
	b := testUser(2, Criteria{Language: "en", Fluency: 6, Topics: []string{"music"}, Dating: true})

	first := a.CompatibilityScore(b, nil)
	for i := 0; i < 10; i++ {
		if got := a.CompatibilityScore(b, nil); got.Total != first.Total {
			t.Fatalf("score changed between calls: %f vs %f", got.Total, first.Total)
		}
	}
}

func TestCompatibilityScoreSymmetric(t *testing.T) {
	a := testUser(1, Criteria{Language: "en", Fluency: 3, Topics: []string{"music", "art"}, Dating: false})
	b := testUser(2, Criteria{Language: "en", Fluency: 5, Topics: []string{"art", "food"}, Dating: true})

	ab := a.CompatibilityScore(b, nil)
	ba := b.CompatibilityScore(a, nil)
	if math.Abs(ab.Total-ba.Total) > 1e-9 {
		t.Errorf("score not symmetric: %f vs %f", ab.Total, ba.Total)
	}
}

func TestCompatibilityScoreComponents(t *testing.T) {
	a := testUser(1, Criteria{Language: "en", Fluency: 5, Topics: []string{"music", "travel"}, Dating: true})
	b := testUser(2, Criteria{Language: "en", Fluency: 5, Topics: []string{"music", "travel"}, Dating: true})

	score := a.CompatibilityScore(b, nil)

	if score.Components[ScoreLanguage] != 1.0 {
		t.Errorf("language = %f, want 1.0", score.Components[ScoreLanguage])
	}
	if score.Components[ScoreFluency] != 1.0 {
		t.Errorf("fluency = %f, want 1.0", score.Components[ScoreFluency])
	}
	if score.Components[ScoreTopics] != 1.0 {
		t.Errorf("topics = %f, want 1.0", score.Components[ScoreTopics])
	}
	if score.Components[ScoreDating] != 1.0 {
		t.Errorf("dating = %f, want 1.0", score.Components[ScoreDating])
	}

	// Identical criteria: every observed component at 1.0, placeholders at 0.7.
	want := 0.35 + 0.25 + 0.20 + 0.10 + 0.05*0.7 + 0.05*0.7
	if math.Abs(score.Total-want) > 1e-9 {
		t.Errorf("total = %f, want %f", score.Total, want)
	}
	if score.Total < 0 || score.Total > 1 {
		t.Errorf("total %f out of [0,1]", score.Total)
	}
}

func TestFluencyScoreDecay(t *testing.T) {
	tests := []struct {
		a, b int
		want float64
	}{
		{5, 5, 1.0},
		{5, 6, 0.8},
		{5, 7, 0.6},
		{5, 10, 0.0},
		{0, 10, 0.0},
	}
	for _, tt := range tests {
		if got := fluencyScore(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("fluencyScore(%d, %d) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"x", "y"}, []string{"x", "y"}, 1.0},
		{"half overlap", []string{"x", "y"}, []string{"y", "z"}, 1.0 / 3.0},
		{"disjoint", []string{"x"}, []string{"y"}, 0.0},
		{"both empty", nil, nil, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := jaccard(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("jaccard = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestScoreNeverCompatibleWithSelf(t *testing.T) {
	u := testUser(1, Criteria{Language: "en", Fluency: 5, Topics: []string{"music"}})
	if u.CompatibleWith(u) {
		t.Error("user must not be compatible with themselves")
	}
}

func TestExplanation(t *testing.T) {
	a := testUser(1, Criteria{Language: "en", Fluency: 5, Topics: []string{"music"}, Dating: true})
	b := testUser(2, Criteria{Language: "en", Fluency: 5, Topics: []string{"music"}, Dating: true})

	score := a.CompatibilityScore(b, nil)
	if score.Explanation == "" {
		t.Fatal("expected a non-empty explanation")
	}
	if score.Explanation == "base compatibility" {
		t.Errorf("strong pair should name its reasons, got %q", score.Explanation)
	}
}

func TestConfidenceBounds(t *testing.T) {
	a := testUser(1, Criteria{Language: "en", Fluency: 5, Topics: []string{"music"}, Dating: false})
	weak := testUser(2, Criteria{Language: "de", Fluency: 0, Topics: []string{"sports"}, Dating: true})
	strong := testUser(3, Criteria{Language: "en", Fluency: 5, Topics: []string{"music"}, Dating: false})

	low := a.CompatibilityScore(weak, nil).Confidence
	high := a.CompatibilityScore(strong, nil).Confidence
	if low < 0 || low > 1 || high < 0 || high > 1 {
		t.Fatalf("confidence out of [0,1]: low=%f high=%f", low, high)
	}
	if high <= low {
		t.Errorf("stronger pair should be more confident: %f <= %f", high, low)
	}
}

func TestNewUserRejectsInvalidCriteria(t *testing.T) {
	_, err := NewUser(1, "alice", Criteria{}, "female", "en", time.Now())
	if err == nil {
		t.Fatal("expected validation error for zero criteria")
	}
}
