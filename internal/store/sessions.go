package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateSession inserts a new session row. A zero StartedAt means now.
func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	now := time.Now().UTC()
	if sess.StartedAt.IsZero() {
		sess.StartedAt = now
	}
	tags, err := toJSON(sess.Tags, "[]")
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO sessions (id, user_id, title, status, analysis_stage, error_message, audio_url, audio_path,
		                       duration_s, speaker_count, emotion_score, tags, started_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Title, sess.Status, sess.AnalysisStage, sess.ErrorMessage, sess.AudioURL,
		sess.AudioPath, sess.DurationS, sess.SpeakerCount, nullInt(sess.EmotionScore), tags, sess.StartedAt, now, now,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// SetState writes the three poller fields of a session. Entering a terminal
// status stamps ended_at once.
func (s *Store) SetState(ctx context.Context, id, status, stage, errMsg string) error {
	now := time.Now().UTC()
	var ended any
	if terminalStatus(status) {
		ended = now
	}
	res, err := s.exec(ctx,
		`UPDATE sessions SET status = ?, analysis_stage = ?, error_message = ?, ended_at = COALESCE(ended_at, ?),
		        updated_at = ? WHERE id = ?`,
		status, stage, errMsg, ended, now, id,
	)
	if err != nil {
		return fmt.Errorf("set state: %w", err)
	}
	return mustAffect(res, "session", id)
}

// UpdateInsights stores duration, speaker count, emotion score and tags.
func (s *Store) UpdateInsights(ctx context.Context, id string, in Insights) error {
	tags, err := toJSON(in.Tags, "[]")
	if err != nil {
		return fmt.Errorf("update insights: %w", err)
	}
	res, err := s.exec(ctx,
		`UPDATE sessions SET duration_s = ?, speaker_count = ?, emotion_score = ?, tags = ?, updated_at = ? WHERE id = ?`,
		in.DurationS, in.SpeakerCount, nullInt(in.EmotionScore), tags, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update insights: %w", err)
	}
	return mustAffect(res, "session", id)
}

const sessionColumns = `id, user_id, title, status, analysis_stage, error_message, audio_url, audio_path,
	duration_s, speaker_count, emotion_score, tags, started_at, ended_at, created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*Session, error) {
	var (
		sess    Session
		score   sql.NullInt64
		tags    string
		started sql.NullTime
		ended   sql.NullTime
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Title, &sess.Status, &sess.AnalysisStage, &sess.ErrorMessage,
		&sess.AudioURL, &sess.AudioPath, &sess.DurationS, &sess.SpeakerCount, &score, &tags, &started, &ended,
		&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, err
	}
	sess.StartedAt = sess.CreatedAt
	if started.Valid {
		sess.StartedAt = started.Time
	}
	if ended.Valid {
		sess.EndedAt = &ended.Time
	}
	if score.Valid {
		sess.EmotionScore = intPtr(&score.Int64)
	}
	sess.Tags = []string{}
	if err = fromJSON("tags", tags, &sess.Tags); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession returns one session.
func (s *Store) GetSession(ctx context.Context, id string) (*Session, error) {
	sess, err := scanSession(s.queryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// GetStatus returns the polling view of a session.
func (s *Store) GetStatus(ctx context.Context, id string) (*Status, error) {
	var st Status
	err := s.queryRow(ctx,
		`SELECT id, status, analysis_stage, error_message, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&st.ID, &st.Status, &st.AnalysisStage, &st.ErrorMessage, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	return &st, nil
}

// ListSessions returns a user's sessions newest first, with the total count.
func (s *Store) ListSessions(ctx context.Context, userID string, limit, offset int) ([]Session, int, error) {
	var total int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	rows, err := s.query(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		sess, scanErr := scanSession(rows)
		if scanErr != nil {
			return nil, 0, fmt.Errorf("list sessions: %w", scanErr)
		}
		sessions = append(sessions, *sess)
	}
	return sessions, total, rows.Err()
}

func terminalStatus(status string) bool {
	return status == "archived" || status == "failed"
}
