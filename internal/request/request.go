// Package request defines the broker wire format for match requests and the
// schema validation applied before a payload reaches the use-case layer.
// Payloads that fail validation are poison messages: the handler acks and
// drops them instead of letting them crash the pipeline.
package request

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/linguamatch/match-worker/internal/domain"
)

// Request statuses carried on the wire.
const (
	StatusSearchStarted   = "search_started"
	StatusSearchCanceled  = "search_canceled"
	StatusSearchCompleted = "search_completed"
	StatusWaitingExpired  = "waiting_time_expired"
)

// DefaultSource marks requests produced by this worker.
const DefaultSource = "worker_service"

// ErrInvalidPayload marks a payload that failed schema validation.
var ErrInvalidPayload = errors.New("request: invalid payload")

// Request is the immutable match-request message. It round-trips through
// the broker as JSON; all fields survive a decode/encode cycle unchanged.
type Request struct {
	UserID       int64           `json:"user_id"`
	Username     string          `json:"username"`
	Gender       string          `json:"gender"`
	Criteria     domain.Criteria `json:"criteria"`
	LangCode     string          `json:"lang_code"`
	CreatedAt    time.Time       `json:"created_at"`
	CurrentTime  time.Time       `json:"current_time"`
	Status       string          `json:"status"`
	Source       string          `json:"source"`
	RetryCount   int             `json:"retry_count"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// wire mirrors Request with tolerant field types: numbers may arrive as
// strings and dating as "true"/"false", which some upstream clients send.
type wire struct {
	UserID      flexInt       `json:"user_id"`
	Username    string        `json:"username"`
	Gender      string        `json:"gender"`
	Criteria    *wireCriteria `json:"criteria"`
	LangCode    string        `json:"lang_code"`
	CreatedAt   string        `json:"created_at"`
	CurrentTime string        `json:"current_time"`
	Status      string        `json:"status"`
	Source      string        `json:"source"`
	RetryCount  flexInt       `json:"retry_count"`
	ErrMessage  string        `json:"error_message"`
}

type wireCriteria struct {
	Language string          `json:"language"`
	Fluency  flexInt         `json:"fluency"`
	Topics   json.RawMessage `json:"topics"`
	Dating   flexBool        `json:"dating"`
}

// Decode parses and validates a broker payload. The returned error wraps
// ErrInvalidPayload for any schema violation so callers can treat the
// message as poison.
func Decode(data []byte) (Request, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	for _, field := range []string{"user_id", "username", "gender", "criteria", "lang_code", "created_at", "status"} {
		if _, ok := raw[field]; !ok {
			return Request{}, fmt.Errorf("%w: missing field %q", ErrInvalidPayload, field)
		}
	}

	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if w.Criteria == nil {
		return Request{}, fmt.Errorf("%w: criteria must be an object", ErrInvalidPayload)
	}
	var critRaw map[string]json.RawMessage
	if err := json.Unmarshal(raw["criteria"], &critRaw); err != nil {
		return Request{}, fmt.Errorf("%w: criteria must be an object", ErrInvalidPayload)
	}
	for _, field := range []string{"language", "fluency", "topics", "dating"} {
		if _, ok := critRaw[field]; !ok {
			return Request{}, fmt.Errorf("%w: missing criteria field %q", ErrInvalidPayload, field)
		}
	}

	var topics []string
	if err := json.Unmarshal(w.Criteria.Topics, &topics); err != nil {
		return Request{}, fmt.Errorf("%w: topics must be a list of strings", ErrInvalidPayload)
	}

	criteria, err := domain.NewCriteria(w.Criteria.Language, int(w.Criteria.Fluency), topics, bool(w.Criteria.Dating))
	if err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	createdAt, err := parseTime(w.CreatedAt)
	if err != nil {
		return Request{}, fmt.Errorf("%w: created_at: %v", ErrInvalidPayload, err)
	}

	currentTime := createdAt
	if w.CurrentTime != "" {
		if currentTime, err = parseTime(w.CurrentTime); err != nil {
			return Request{}, fmt.Errorf("%w: current_time: %v", ErrInvalidPayload, err)
		}
	}

	if w.Status == "" {
		return Request{}, fmt.Errorf("%w: status must be non-empty", ErrInvalidPayload)
	}

	source := w.Source
	if source == "" {
		source = DefaultSource
	}

	return Request{
		UserID:       int64(w.UserID),
		Username:     w.Username,
		Gender:       w.Gender,
		Criteria:     criteria,
		LangCode:     w.LangCode,
		CreatedAt:    createdAt,
		CurrentTime:  currentTime,
		Status:       w.Status,
		Source:       source,
		RetryCount:   int(w.RetryCount),
		ErrorMessage: w.ErrMessage,
	}, nil
}

// Encode serializes the request for the broker.
func (r Request) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// User converts the request into a waiting user for the queue store.
func (r Request) User() domain.User {
	return domain.User{
		UserID:    r.UserID,
		Username:  r.Username,
		Criteria:  r.Criteria,
		Gender:    r.Gender,
		LangCode:  r.LangCode,
		CreatedAt: r.CreatedAt,
		Status:    domain.StatusWaiting,
	}
}

// WithRetry returns the redelivery payload: relaxed criteria, bumped retry
// counter, and a fresh current_time.
func (r Request) WithRetry(criteria domain.Criteria, retryCount int, now time.Time) Request {
	r.Criteria = criteria
	r.RetryCount = retryCount
	r.CurrentTime = now
	return r
}

// WithError returns the dead-letter payload carrying the failure reason.
func (r Request) WithError(errMsg string) Request {
	r.ErrorMessage = errMsg
	return r
}

// parseTime accepts RFC3339 with either "Z" or a numeric offset.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err == nil {
		return t, nil
	}
	// Some producers send a bare ISO timestamp without an offset.
	return time.Parse("2006-01-02T15:04:05", s)
}

// flexInt decodes a JSON number or a numeric string.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("not an integer: %s", data)
	}
	*f = flexInt(n)
	return nil
}

// flexBool decodes a JSON bool or the strings "true"/"false".
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.ToLower(strings.Trim(string(data), `"`))
	switch s {
	case "true":
		*f = true
	case "false":
		*f = false
	default:
		return fmt.Errorf("not a boolean: %s", data)
	}
	return nil
}
