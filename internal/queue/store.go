// Package queue implements the shared waiting queue on Redis. It is the
// authoritative record of who is searching: a user is "in the queue" iff
// their searching sentinel exists, and FIFO order of the waiting list
// decides who gets matched first among equal candidates.
//
// Key layout:
//
//	match:waiting            List of user IDs, insertion order
//	match:user:<id>          User record (JSON), TTL = cache TTL
//	match:criteria:<id>      Criteria hash, TTL = cache TTL (refreshed on relax)
//	match:searching:<id>     Sentinel, TTL = max wait time
//	match:match_id:<id>      Committed match id for front-end polling
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linguamatch/match-worker/internal/domain"
)

const (
	keyWaiting         = "match:waiting"
	keyUserPrefix      = "match:user:"
	keyCriteriaPrefix  = "match:criteria:"
	keySearchingPrefix = "match:searching:"
	keyMatchIDPrefix   = "match:match_id:"
)

// Store manages the matchmaking queue data structures in Redis.
type Store struct {
	rdb      *redis.Client
	cacheTTL time.Duration
	maxWait  time.Duration

	findScript    *redis.Script
	reserveScript *redis.Script
}

// NewStore creates a queue store. cacheTTL bounds per-user records and
// maxWait bounds the searching sentinel (the backstop against crashed
// workers that never clean up).
func NewStore(rdb *redis.Client, cacheTTL, maxWait time.Duration) *Store {
	return &Store{
		rdb:           rdb,
		cacheTTL:      cacheTTL,
		maxWait:       maxWait,
		findScript:    redis.NewScript(findCandidateLua),
		reserveScript: redis.NewScript(reservePairLua),
	}
}

// Save persists the user record and criteria with the cache TTL.
func (s *Store) Save(ctx context.Context, user domain.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("queue: marshal user %d: %w", user.UserID, err)
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, userKey(user.UserID), data, s.cacheTTL)
	pipe.HSet(ctx, criteriaKey(user.UserID), criteriaFields(user.Criteria))
	pipe.Expire(ctx, criteriaKey(user.UserID), s.cacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: save user %d: %w", user.UserID, err)
	}
	return nil
}

// FindByID loads a user. The criteria hash is authoritative over the copy
// embedded in the user record, because relaxation updates only the hash.
// Returns domain.ErrUserNotFound if the record expired or never existed.
func (s *Store) FindByID(ctx context.Context, userID int64) (domain.User, error) {
	data, err := s.rdb.Get(ctx, userKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("queue: get user %d: %w", userID, err)
	}

	var user domain.User
	if err := json.Unmarshal(data, &user); err != nil {
		return domain.User{}, fmt.Errorf("queue: unmarshal user %d: %w", userID, err)
	}

	fields, err := s.rdb.HGetAll(ctx, criteriaKey(userID)).Result()
	if err != nil {
		return domain.User{}, fmt.Errorf("queue: get criteria %d: %w", userID, err)
	}
	if len(fields) > 0 {
		user.Criteria = criteriaFromFields(fields)
	}
	return user, nil
}

// AddToQueue saves the user, appends them to the waiting list and arms the
// searching sentinel. Returns domain.ErrAlreadyInSearch if the user is
// already searching and still in WAITING status.
func (s *Store) AddToQueue(ctx context.Context, user domain.User) error {
	searching, err := s.IsSearching(ctx, user.UserID)
	if err != nil {
		return err
	}
	if searching && user.Status == domain.StatusWaiting {
		return fmt.Errorf("%w: user %d", domain.ErrAlreadyInSearch, user.UserID)
	}

	if err := s.Save(ctx, user); err != nil {
		return err
	}

	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, keyWaiting, strconv.FormatInt(user.UserID, 10))
	pipe.Set(ctx, searchingKey(user.UserID), "1", s.maxWait)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: enqueue user %d: %w", user.UserID, err)
	}
	return nil
}

// RemoveFromQueue deletes every trace of the user: all waiting-list
// occurrences, the sentinel, the user record and the criteria. Idempotent.
func (s *Store) RemoveFromQueue(ctx context.Context, userID int64) error {
	pipe := s.rdb.Pipeline()
	pipe.LRem(ctx, keyWaiting, 0, strconv.FormatInt(userID, 10))
	pipe.Del(ctx, searchingKey(userID))
	pipe.Del(ctx, userKey(userID))
	pipe.Del(ctx, criteriaKey(userID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: remove user %d: %w", userID, err)
	}
	return nil
}

// IsSearching is the single source of truth for "in queue".
func (s *Store) IsSearching(ctx context.Context, userID int64) (bool, error) {
	n, err := s.rdb.Exists(ctx, searchingKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("queue: exists searching %d: %w", userID, err)
	}
	return n > 0, nil
}

// QueueSize returns the number of entries in the waiting list.
func (s *Store) QueueSize(ctx context.Context) (int64, error) {
	n, err := s.rdb.LLen(ctx, keyWaiting).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: llen waiting: %w", err)
	}
	return n, nil
}

// UpdateCriteria overwrites the user's criteria record and refreshes its TTL.
// Used by the relaxation path between retries.
func (s *Store) UpdateCriteria(ctx context.Context, userID int64, criteria domain.Criteria) error {
	pipe := s.rdb.Pipeline()
	pipe.HSet(ctx, criteriaKey(userID), criteriaFields(criteria))
	pipe.Expire(ctx, criteriaKey(userID), s.cacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("queue: update criteria %d: %w", userID, err)
	}
	return nil
}

// ReserveMatchID records the committed match id where the front-end polls
// for it.
func (s *Store) ReserveMatchID(ctx context.Context, userID int64, matchID string) error {
	if err := s.rdb.Set(ctx, matchIDKey(userID), matchID, s.cacheTTL).Err(); err != nil {
		return fmt.Errorf("queue: reserve match id for %d: %w", userID, err)
	}
	return nil
}

// GetMatchID returns the reserved match id, or "" if none is pending.
func (s *Store) GetMatchID(ctx context.Context, userID int64) (string, error) {
	id, err := s.rdb.Get(ctx, matchIDKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("queue: get match id for %d: %w", userID, err)
	}
	return id, nil
}

func userKey(id int64) string      { return keyUserPrefix + strconv.FormatInt(id, 10) }
func criteriaKey(id int64) string  { return keyCriteriaPrefix + strconv.FormatInt(id, 10) }
func searchingKey(id int64) string { return keySearchingPrefix + strconv.FormatInt(id, 10) }
func matchIDKey(id int64) string   { return keyMatchIDPrefix + strconv.FormatInt(id, 10) }

// criteriaFields flattens criteria into a Redis hash. Topics are
// comma-joined; dating is "1"/"0".
func criteriaFields(c domain.Criteria) map[string]interface{} {
	dating := "0"
	if c.Dating {
		dating = "1"
	}
	return map[string]interface{}{
		"language": c.Language,
		"fluency":  strconv.Itoa(c.Fluency),
		"topics":   strings.Join(c.Topics, ","),
		"dating":   dating,
	}
}

func criteriaFromFields(fields map[string]string) domain.Criteria {
	fluency, _ := strconv.Atoi(fields["fluency"])
	var topics []string
	if fields["topics"] != "" {
		topics = strings.Split(fields["topics"], ",")
	}
	return domain.Criteria{
		Language: fields["language"],
		Fluency:  fluency,
		Topics:   topics,
		Dating:   fields["dating"] == "1",
	}
}
