package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewMatch(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	u1 := testUser(1, Criteria{Language: "en", Fluency: 5, Topics: []string{"music"}})
	u2 := testUser(2, Criteria{Language: "en", Fluency: 5, Topics: []string{"music"}})

	match, err := NewMatch(u1, u2, 0.85, now)
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}
	if match.MatchID == "" || match.RoomID == "" {
		t.Error("match and room ids must be set")
	}
	if match.MatchID == match.RoomID {
		t.Error("match and room ids must differ")
	}
	if match.Status != MatchActive {
		t.Errorf("status = %q, want %q", match.Status, MatchActive)
	}
	if !match.CreatedAt.Equal(now) {
		t.Errorf("created at = %v, want %v", match.CreatedAt, now)
	}
}

func TestNewMatchRejectsSelfMatch(t *testing.T) {
	u := testUser(1, Criteria{Language: "en", Fluency: 5, Topics: []string{"music"}})
	_, err := NewMatch(u, u, 0.9, time.Now())
	if !errors.Is(err, ErrIncompatibleUsers) {
		t.Fatalf("expected ErrIncompatibleUsers, got %v", err)
	}
}

func TestNewMatchRejectsOutOfRangeScore(t *testing.T) {
	u1 := testUser(1, Criteria{Language: "en", Fluency: 5, Topics: []string{"music"}})
	u2 := testUser(2, Criteria{Language: "en", Fluency: 5, Topics: []string{"music"}})

	for _, score := range []float64{-0.1, 1.1} {
		if _, err := NewMatch(u1, u2, score, time.Now()); err == nil {
			t.Errorf("score %f should be rejected", score)
		}
	}
}

func TestMatchPartner(t *testing.T) {
	u1 := testUser(1, Criteria{Language: "en", Fluency: 5, Topics: []string{"music"}})
	u2 := testUser(2, Criteria{Language: "en", Fluency: 5, Topics: []string{"music"}})
	match, err := NewMatch(u1, u2, 0.8, time.Now())
	if err != nil {
		t.Fatalf("NewMatch: %v", err)
	}

	if p, ok := match.Partner(1); !ok || p.UserID != 2 {
		t.Errorf("Partner(1) = %v, %v", p.UserID, ok)
	}
	if p, ok := match.Partner(2); !ok || p.UserID != 1 {
		t.Errorf("Partner(2) = %v, %v", p.UserID, ok)
	}
	if _, ok := match.Partner(99); ok {
		t.Error("Partner(99) should report not found")
	}

	if !match.ContainsUser(1) || !match.ContainsUser(2) || match.ContainsUser(99) {
		t.Error("ContainsUser mismatch")
	}
}
