package store

import (
	"context"
	"fmt"
)

// CreateSpan inserts a span.
func (s *Store) CreateSpan(ctx context.Context, sp Span) error {
	_, err := s.exec(ctx,
		`INSERT INTO analysis_spans (id, session_id, name, started_at, duration_ms, input, output, status, error_msg)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sp.ID, sp.SessionID, sp.Name, sp.StartedAt.UTC(), sp.DurationMs, sp.Input, sp.Output, sp.Status, sp.Error,
	)
	if err != nil {
		return fmt.Errorf("create span: %w", err)
	}
	return nil
}

// ListSpans returns a session's spans in start order.
func (s *Store) ListSpans(ctx context.Context, sessionID string) ([]Span, error) {
	rows, err := s.query(ctx,
		`SELECT id, session_id, name, started_at, duration_ms, input, output, status, error_msg
		 FROM analysis_spans WHERE session_id = ? ORDER BY started_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list spans: %w", err)
	}
	defer rows.Close()

	spans := []Span{}
	for rows.Next() {
		var sp Span
		if err = rows.Scan(&sp.ID, &sp.SessionID, &sp.Name, &sp.StartedAt, &sp.DurationMs, &sp.Input, &sp.Output, &sp.Status, &sp.Error); err != nil {
			return nil, fmt.Errorf("list spans: %w", err)
		}
		spans = append(spans, sp)
	}
	return spans, rows.Err()
}
