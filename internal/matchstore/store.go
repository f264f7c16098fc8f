// Package matchstore provides PostgreSQL-backed repositories for match
// sessions and room messages. Repositories are bound to a transaction by
// the unit of work and never commit on their own.
package matchstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/linguamatch/match-worker/internal/domain"
)

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

// MatchRepo persists match sessions within a transaction.
type MatchRepo struct {
	tx *sql.Tx
}

// NewMatchRepo binds a repository to the given transaction.
func NewMatchRepo(tx *sql.Tx) *MatchRepo {
	return &MatchRepo{tx: tx}
}

// Add stages a match for commit. Both participants are upserted (users may
// already exist from earlier matches) and the session row is inserted.
// A duplicate match_id maps to domain.ErrDuplicateMatch.
func (r *MatchRepo) Add(ctx context.Context, match domain.Match) error {
	user1ID, err := r.upsertUser(ctx, match.User1)
	if err != nil {
		return err
	}
	user2ID, err := r.upsertUser(ctx, match.User2)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO match_sessions (match_id, user1_id, user2_id, room_id, compatibility_score, created_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = r.tx.ExecContext(ctx, query,
		match.MatchID, user1ID, user2ID, match.RoomID,
		match.CompatibilityScore, match.CreatedAt, match.Status,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: match %s", domain.ErrDuplicateMatch, match.MatchID)
		}
		return fmt.Errorf("matchstore: insert match %s: %w", match.MatchID, err)
	}
	return nil
}

// upsertUser writes the user's criteria and user rows, returning the
// internal user row id. Conflicts on user_id update the record in place so
// repeated searches keep a single row per user.
func (r *MatchRepo) upsertUser(ctx context.Context, user domain.User) (int64, error) {
	var criteriaID int64
	err := r.tx.QueryRowContext(ctx, `
		INSERT INTO criteria_matches (language, fluency, topics, dating)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		user.Criteria.Language, user.Criteria.Fluency,
		pq.Array(user.Criteria.Topics), user.Criteria.Dating,
	).Scan(&criteriaID)
	if err != nil {
		return 0, fmt.Errorf("matchstore: insert criteria for user %d: %w", user.UserID, err)
	}

	var rowID int64
	err = r.tx.QueryRowContext(ctx, `
		INSERT INTO user_infos (user_id, username, criteria_id, gender, lang_code, created_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username,
		    criteria_id = EXCLUDED.criteria_id,
		    gender = EXCLUDED.gender,
		    lang_code = EXCLUDED.lang_code,
		    status = EXCLUDED.status
		RETURNING id`,
		user.UserID, user.Username, criteriaID,
		user.Gender, user.LangCode, user.CreatedAt, string(user.Status),
	).Scan(&rowID)
	if err != nil {
		return 0, fmt.Errorf("matchstore: upsert user %d: %w", user.UserID, err)
	}
	return rowID, nil
}

// Get loads a match session with both participants. The second return is
// false when no such match exists.
func (r *MatchRepo) Get(ctx context.Context, matchID string) (domain.Match, bool, error) {
	const query = `
		SELECT m.match_id, m.room_id, m.compatibility_score, m.created_at, m.status,
		       u1.user_id, u1.username, u1.gender, u1.lang_code, u1.created_at, u1.status,
		       c1.language, c1.fluency, c1.topics, c1.dating,
		       u2.user_id, u2.username, u2.gender, u2.lang_code, u2.created_at, u2.status,
		       c2.language, c2.fluency, c2.topics, c2.dating
		FROM match_sessions m
		JOIN user_infos u1 ON u1.id = m.user1_id
		JOIN criteria_matches c1 ON c1.id = u1.criteria_id
		JOIN user_infos u2 ON u2.id = m.user2_id
		JOIN criteria_matches c2 ON c2.id = u2.criteria_id
		WHERE m.match_id = $1`

	var (
		m                  domain.Match
		u1, u2             domain.User
		c1, c2             domain.Criteria
		u1Status, u2Status string
		topics1, topics2   pq.StringArray
	)
	err := r.tx.QueryRowContext(ctx, query, matchID).Scan(
		&m.MatchID, &m.RoomID, &m.CompatibilityScore, &m.CreatedAt, &m.Status,
		&u1.UserID, &u1.Username, &u1.Gender, &u1.LangCode, &u1.CreatedAt, &u1Status,
		&c1.Language, &c1.Fluency, &topics1, &c1.Dating,
		&u2.UserID, &u2.Username, &u2.Gender, &u2.LangCode, &u2.CreatedAt, &u2Status,
		&c2.Language, &c2.Fluency, &topics2, &c2.Dating,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Match{}, false, nil
	}
	if err != nil {
		return domain.Match{}, false, fmt.Errorf("matchstore: get match %s: %w", matchID, err)
	}

	c1.Topics, c2.Topics = topics1, topics2
	u1.Criteria, u2.Criteria = c1, c2
	u1.Status, u2.Status = domain.UserStatus(u1Status), domain.UserStatus(u2Status)
	m.User1, m.User2 = u1, u2
	return m, true, nil
}

// UpdateStatus sets a match session's status and reports how many rows
// changed (0 means the match does not exist).
func (r *MatchRepo) UpdateStatus(ctx context.Context, matchID, status string) (int64, error) {
	res, err := r.tx.ExecContext(ctx,
		`UPDATE match_sessions SET status = $1 WHERE match_id = $2`, status, matchID)
	if err != nil {
		return 0, fmt.Errorf("matchstore: update match %s: %w", matchID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("matchstore: rows affected for %s: %w", matchID, err)
	}
	return n, nil
}

// List returns all match ids, newest first. Diagnostics only.
func (r *MatchRepo) List(ctx context.Context) ([]string, error) {
	rows, err := r.tx.QueryContext(ctx,
		`SELECT match_id FROM match_sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("matchstore: list matches: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("matchstore: scan match id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Message is one chat message in a match room, kept for history queries.
type Message struct {
	RoomID string    `json:"room_id"`
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// MessageRepo persists room messages within a transaction.
type MessageRepo struct {
	tx *sql.Tx
}

// NewMessageRepo binds a repository to the given transaction.
func NewMessageRepo(tx *sql.Tx) *MessageRepo {
	return &MessageRepo{tx: tx}
}

// Add stages a message for commit.
func (r *MessageRepo) Add(ctx context.Context, msg Message) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO messages (room_id, sender, text, sent_at)
		VALUES ($1, $2, $3, $4)`,
		msg.RoomID, msg.Sender, msg.Text, msg.SentAt)
	if err != nil {
		return fmt.Errorf("matchstore: insert message in room %s: %w", msg.RoomID, err)
	}
	return nil
}

// ListByRoom returns the room's messages in send order.
func (r *MessageRepo) ListByRoom(ctx context.Context, roomID string) ([]Message, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT room_id, sender, text, sent_at
		FROM messages
		WHERE room_id = $1
		ORDER BY sent_at ASC, id ASC`, roomID)
	if err != nil {
		return nil, fmt.Errorf("matchstore: list messages in room %s: %w", roomID, err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.RoomID, &m.Sender, &m.Text, &m.SentAt); err != nil {
			return nil, fmt.Errorf("matchstore: scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
