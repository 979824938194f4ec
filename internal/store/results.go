package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveTranscriptResult inserts or replaces a session's transcript.
func (s *Store) SaveTranscriptResult(ctx context.Context, tr TranscriptResult) error {
	cols, err := encodeAll(
		jsonCol{tr.Transcript, "[]"},
		jsonCol{tr.Dialogues, "[]"},
		jsonCol{tr.Risks, "[]"},
		jsonCol{tr.SpeakerMapping, "{}"},
	)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	_, err = s.exec(ctx,
		`INSERT INTO transcript_results (session_id, transcript, dialogues, risks, summary, mood_score, sigh_count,
		                                 laugh_count, speaker_mapping, conversation_summary, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET
		     transcript = excluded.transcript, dialogues = excluded.dialogues, risks = excluded.risks,
		     summary = excluded.summary, mood_score = excluded.mood_score, sigh_count = excluded.sigh_count,
		     laugh_count = excluded.laugh_count, speaker_mapping = excluded.speaker_mapping,
		     conversation_summary = excluded.conversation_summary`,
		tr.SessionID, cols[0], cols[1], cols[2], tr.Summary, nullInt(tr.MoodScore), tr.SighCount, tr.LaughCount,
		cols[3], tr.ConversationSummary, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	return nil
}

// UpdateSpeakerMapping replaces the speaker label -> profile id mapping.
func (s *Store) UpdateSpeakerMapping(ctx context.Context, sessionID string, mapping map[string]string) error {
	raw, err := toJSON(mapping, "{}")
	if err != nil {
		return fmt.Errorf("update speaker mapping: %w", err)
	}
	res, err := s.exec(ctx, `UPDATE transcript_results SET speaker_mapping = ? WHERE session_id = ?`, raw, sessionID)
	if err != nil {
		return fmt.Errorf("update speaker mapping: %w", err)
	}
	return mustAffect(res, "transcript", sessionID)
}

// UpdateConversationSummary stores the who-talked-to-whom summary.
func (s *Store) UpdateConversationSummary(ctx context.Context, sessionID, summary string) error {
	res, err := s.exec(ctx, `UPDATE transcript_results SET conversation_summary = ? WHERE session_id = ?`, summary, sessionID)
	if err != nil {
		return fmt.Errorf("update conversation summary: %w", err)
	}
	return mustAffect(res, "transcript", sessionID)
}

// GetTranscriptResult returns a session's transcript.
func (s *Store) GetTranscriptResult(ctx context.Context, sessionID string) (*TranscriptResult, error) {
	var (
		tr                               TranscriptResult
		turns, dialogues, risks, mapping string
		mood                             sql.NullInt64
	)
	err := s.queryRow(ctx,
		`SELECT session_id, transcript, dialogues, risks, summary, mood_score, sigh_count, laugh_count,
		        speaker_mapping, conversation_summary, created_at
		 FROM transcript_results WHERE session_id = ?`, sessionID,
	).Scan(&tr.SessionID, &turns, &dialogues, &risks, &tr.Summary, &mood, &tr.SighCount, &tr.LaughCount,
		&mapping, &tr.ConversationSummary, &tr.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transcript %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transcript: %w", err)
	}
	if mood.Valid {
		tr.MoodScore = intPtr(&mood.Int64)
	}
	err = decodeAll(
		decodeCol{"transcript", turns, &tr.Transcript},
		decodeCol{"dialogues", dialogues, &tr.Dialogues},
		decodeCol{"risks", risks, &tr.Risks},
		decodeCol{"speaker_mapping", mapping, &tr.SpeakerMapping},
	)
	if err != nil {
		return nil, err
	}
	return &tr, nil
}

// UpsertStrategyAnalysis inserts or replaces a session's skill output.
func (s *Store) UpsertStrategyAnalysis(ctx context.Context, sa StrategyAnalysis) error {
	cols, err := encodeAll(
		jsonCol{sa.Scenes, "[]"},
		jsonCol{sa.AppliedSkills, "[]"},
		jsonCol{sa.Cards, "[]"},
		jsonCol{sa.Visual, "[]"},
		jsonCol{sa.Strategies, "[]"},
	)
	if err != nil {
		return fmt.Errorf("upsert strategy analysis: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.exec(ctx,
		`INSERT INTO strategy_analyses (session_id, scenes, primary_scene, applied_skills, skill_cards, visual,
		                                strategies, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (session_id) DO UPDATE SET
		     scenes = excluded.scenes, primary_scene = excluded.primary_scene,
		     applied_skills = excluded.applied_skills, skill_cards = excluded.skill_cards,
		     visual = excluded.visual, strategies = excluded.strategies, updated_at = excluded.updated_at`,
		sa.SessionID, cols[0], sa.PrimaryScene, cols[1], cols[2], cols[3], cols[4], now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert strategy analysis: %w", err)
	}
	return nil
}

// GetStrategyAnalysis returns a session's skill output.
func (s *Store) GetStrategyAnalysis(ctx context.Context, sessionID string) (*StrategyAnalysis, error) {
	var (
		sa                                         StrategyAnalysis
		scenes, applied, cards, visual, strategies string
	)
	err := s.queryRow(ctx,
		`SELECT session_id, scenes, primary_scene, applied_skills, skill_cards, visual, strategies, created_at, updated_at
		 FROM strategy_analyses WHERE session_id = ?`, sessionID,
	).Scan(&sa.SessionID, &scenes, &sa.PrimaryScene, &applied, &cards, &visual, &strategies, &sa.CreatedAt, &sa.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("strategy analysis %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get strategy analysis: %w", err)
	}
	err = decodeAll(
		decodeCol{"scenes", scenes, &sa.Scenes},
		decodeCol{"applied_skills", applied, &sa.AppliedSkills},
		decodeCol{"skill_cards", cards, &sa.Cards},
		decodeCol{"visual", visual, &sa.Visual},
		decodeCol{"strategies", strategies, &sa.Strategies},
	)
	if err != nil {
		return nil, err
	}
	return &sa, nil
}

type jsonCol struct {
	v     any
	empty string
}

func encodeAll(cols ...jsonCol) ([]string, error) {
	out := make([]string, len(cols))
	for i, c := range cols {
		raw, err := toJSON(c.v, c.empty)
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return out, nil
}

type decodeCol struct {
	name string
	raw  string
	dst  any
}

func decodeAll(cols ...decodeCol) error {
	for _, c := range cols {
		if err := fromJSON(c.name, c.raw, c.dst); err != nil {
			return err
		}
	}
	return nil
}
