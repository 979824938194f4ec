package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hubenschmidt/session-analyzer/internal/cache"
	"github.com/hubenschmidt/session-analyzer/internal/identity"
)

// ListProfiles returns a user's profiles, oldest first.
func (s *Store) ListProfiles(ctx context.Context, userID string) ([]Profile, error) {
	rows, err := s.query(ctx,
		`SELECT id, user_id, name, relationship, notes, audio_url, voiceprint_id, created_at
		 FROM profiles WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	profiles := []Profile{}
	for rows.Next() {
		var p Profile
		if err = rows.Scan(&p.ID, &p.UserID, &p.Name, &p.Relationship, &p.Notes, &p.AudioURL, &p.VoiceprintID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("list profiles: %w", err)
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// CreateProfile inserts p, assigning an id and timestamp.
func (s *Store) CreateProfile(ctx context.Context, p Profile) (*Profile, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, errors.New("create profile: name is required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = time.Now().UTC()
	_, err := s.exec(ctx,
		`INSERT INTO profiles (id, user_id, name, relationship, notes, audio_url, voiceprint_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Name, p.Relationship, p.Notes, p.AudioURL, p.VoiceprintID, p.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	return &p, nil
}

// Identity converts stored profiles for speaker resolution.
func Identity(profiles []Profile) []identity.Profile {
	out := make([]identity.Profile, len(profiles))
	for i, p := range profiles {
		out[i] = identity.Profile{ID: p.ID, Name: p.Name, Relationship: p.Relationship}
	}
	return out
}

// ProfileCache serves per-user profile lists through a short TTL cache.
type ProfileCache struct {
	store *Store
	cache *cache.TTL[string, []Profile]
}

// NewProfileCache caches up to 1024 users' profile lists for ttl.
func NewProfileCache(s *Store, ttl time.Duration) *ProfileCache {
	return &ProfileCache{
		store: s,
		cache: cache.New[string, []Profile](1024, ttl, func(k string) string { return k }),
	}
}

// Profiles returns the user's profiles.
func (c *ProfileCache) Profiles(ctx context.Context, userID string) ([]Profile, error) {
	return c.cache.GetOrLoad(ctx, userID, c.store.ListProfiles)
}

// Create stores a profile and drops the user's cached list.
func (c *ProfileCache) Create(ctx context.Context, p Profile) (*Profile, error) {
	created, err := c.store.CreateProfile(ctx, p)
	if err != nil {
		return nil, err
	}
	c.cache.Invalidate(p.UserID)
	return created, nil
}
