package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hubenschmidt/session-analyzer/internal/skills"
)

// UpsertSkill writes a skill's catalog row.
func (s *Store) UpsertSkill(ctx context.Context, sk skills.Skill) error {
	_, err := s.exec(ctx,
		`INSERT INTO skills (id, name, description, category, priority, enabled, version, skill_path, prompt_template, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		     name = excluded.name, description = excluded.description, category = excluded.category,
		     priority = excluded.priority, enabled = excluded.enabled, version = excluded.version,
		     skill_path = excluded.skill_path, prompt_template = excluded.prompt_template,
		     updated_at = excluded.updated_at`,
		sk.ID, sk.Name, sk.Description, sk.Category, sk.Priority, sk.Enabled, sk.Version, sk.Path, sk.Prompt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert skill %s: %w", sk.ID, err)
	}
	return nil
}

// CatalogEntry is a registered skill's stored metadata.
type CatalogEntry struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Priority  int       `json:"priority"`
	Enabled   bool      `json:"enabled"`
	Version   string    `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListCatalog returns the registered skills by id.
func (s *Store) ListCatalog(ctx context.Context) ([]CatalogEntry, error) {
	rows, err := s.query(ctx, `SELECT id, name, category, priority, enabled, version, updated_at FROM skills ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list catalog: %w", err)
	}
	defer rows.Close()

	entries := []CatalogEntry{}
	for rows.Next() {
		var e CatalogEntry
		if err = rows.Scan(&e.ID, &e.Name, &e.Category, &e.Priority, &e.Enabled, &e.Version, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("list catalog: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
