package request

import (
	"errors"
	"testing"
	"time"

	"github.com/linguamatch/match-worker/internal/domain"
)

const validPayload = `{
	"user_id": 42,
	"username": "alice",
	"gender": "female",
	"criteria": {"language": "en", "fluency": 5, "topics": ["music", "travel"], "dating": false},
	"lang_code": "en",
	"created_at": "2025-06-01T12:00:00Z",
	"status": "search_started",
	"source": "telegram_bot",
	"retry_count": 2
}`

func TestDecodeValid(t *testing.T) {
	req, err := Decode([]byte(validPayload))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if req.UserID != 42 {
		t.Errorf("user id = %d, want 42", req.UserID)
	}
	if req.Username != "alice" {
		t.Errorf("username = %q", req.Username)
	}
	if req.Criteria.Language != "en" || req.Criteria.Fluency != 5 {
		t.Errorf("criteria = %+v", req.Criteria)
	}
	if len(req.Criteria.Topics) != 2 {
		t.Errorf("topics = %v", req.Criteria.Topics)
	}
	if req.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", req.RetryCount)
	}
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !req.CreatedAt.Equal(want) {
		t.Errorf("created at = %v, want %v", req.CreatedAt, want)
	}
	// current_time absent: falls back to created_at.
	if !req.CurrentTime.Equal(want) {
		t.Errorf("current time = %v, want %v", req.CurrentTime, want)
	}
}

func TestDecodeFlexibleTypes(t *testing.T) {
	// Some upstream clients send numbers and booleans as strings.
	payload := `{
		"user_id": "42",
		"username": "alice",
		"gender": "female",
		"criteria": {"language": "en", "fluency": "7", "topics": ["music"], "dating": "true"},
		"lang_code": "en",
		"created_at": "2025-06-01T12:00:00",
		"status": "search_started"
	}`

	req, err := Decode([]byte(payload))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if req.UserID != 42 {
		t.Errorf("user id = %d, want 42", req.UserID)
	}
	if req.Criteria.Fluency != 7 {
		t.Errorf("fluency = %d, want 7", req.Criteria.Fluency)
	}
	if !req.Criteria.Dating {
		t.Error("dating should decode to true")
	}
	if req.Source != DefaultSource {
		t.Errorf("source default = %q", req.Source)
	}
}

func TestDecodePoisonPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{{{`},
		{"missing status", `{"user_id":1,"username":"a","gender":"f","criteria":{"language":"en","fluency":5,"topics":["x"],"dating":false},"lang_code":"en","created_at":"2025-06-01T12:00:00Z"}`},
		{"empty status", `{"user_id":1,"username":"a","gender":"f","criteria":{"language":"en","fluency":5,"topics":["x"],"dating":false},"lang_code":"en","created_at":"2025-06-01T12:00:00Z","status":""}`},
		{"missing user_id", `{"username":"a","gender":"f","criteria":{"language":"en","fluency":5,"topics":["x"],"dating":false},"lang_code":"en","created_at":"2025-06-01T12:00:00Z"}`},
		{"missing criteria", `{"user_id":1,"username":"a","gender":"f","lang_code":"en","created_at":"2025-06-01T12:00:00Z"}`},
		{"criteria not object", `{"user_id":1,"username":"a","gender":"f","criteria":"x","lang_code":"en","created_at":"2025-06-01T12:00:00Z"}`},
		{"missing criteria field", `{"user_id":1,"username":"a","gender":"f","criteria":{"language":"en","fluency":5,"dating":false},"lang_code":"en","created_at":"2025-06-01T12:00:00Z"}`},
		{"topics not a list", `{"user_id":1,"username":"a","gender":"f","criteria":{"language":"en","fluency":5,"topics":"music","dating":false},"lang_code":"en","created_at":"2025-06-01T12:00:00Z"}`},
		{"fluency out of range", `{"user_id":1,"username":"a","gender":"f","criteria":{"language":"en","fluency":99,"topics":["x"],"dating":false},"lang_code":"en","created_at":"2025-06-01T12:00:00Z"}`},
		{"bad timestamp", `{"user_id":1,"username":"a","gender":"f","criteria":{"language":"en","fluency":5,"topics":["x"],"dating":false},"lang_code":"en","created_at":"yesterday"}`},
		{"user_id not numeric", `{"user_id":"abc","username":"a","gender":"f","criteria":{"language":"en","fluency":5,"topics":["x"],"dating":false},"lang_code":"en","created_at":"2025-06-01T12:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.payload)); !errors.Is(err, ErrInvalidPayload) {
				t.Fatalf("expected ErrInvalidPayload, got %v", err)
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	orig := Request{
		UserID:      7,
		Username:    "bob",
		Gender:      "male",
		Criteria:    domain.Criteria{Language: "de", Fluency: 3, Topics: []string{"food"}, Dating: true},
		LangCode:    "de",
		CreatedAt:   now,
		CurrentTime: now.Add(10 * time.Second),
		Status:      StatusSearchStarted,
		Source:      DefaultSource,
		RetryCount:  4,
	}

	data, err := orig.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.UserID != orig.UserID || got.Username != orig.Username ||
		got.RetryCount != orig.RetryCount || got.Status != orig.Status {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(orig.CreatedAt) || !got.CurrentTime.Equal(orig.CurrentTime) {
		t.Errorf("timestamps drifted: %v / %v", got.CreatedAt, got.CurrentTime)
	}
	if got.Criteria.Language != "de" || !got.Criteria.Dating {
		t.Errorf("criteria drifted: %+v", got.Criteria)
	}
}

func TestWithRetry(t *testing.T) {
	req, err := Decode([]byte(validPayload))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	relaxed := req.Criteria.Relax(domain.RelaxStepFluency)
	now := time.Now()
	next := req.WithRetry(relaxed, req.RetryCount+1, now)

	if next.RetryCount != 3 {
		t.Errorf("retry count = %d, want 3", next.RetryCount)
	}
	if next.Criteria.Fluency != 4 {
		t.Errorf("fluency = %d, want 4", next.Criteria.Fluency)
	}
	if !next.CreatedAt.Equal(req.CreatedAt) {
		t.Error("created_at must be preserved across retries")
	}
	if req.RetryCount != 2 {
		t.Error("WithRetry mutated the original")
	}
}

func TestWithError(t *testing.T) {
	req, _ := Decode([]byte(validPayload))
	dead := req.WithError("duplicate match")
	if dead.ErrorMessage != "duplicate match" {
		t.Errorf("error message = %q", dead.ErrorMessage)
	}
	if req.ErrorMessage != "" {
		t.Error("WithError mutated the original")
	}
}

func TestUserConversion(t *testing.T) {
	req, _ := Decode([]byte(validPayload))
	user := req.User()
	if user.UserID != req.UserID || user.Status != domain.StatusWaiting {
		t.Errorf("user = %+v", user)
	}
}
