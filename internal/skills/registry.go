package skills

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/hubenschmidt/session-analyzer/internal/cache"
)

// Filter narrows List results. Zero value lists everything.
type Filter struct {
	Category    string
	EnabledOnly bool
}

// Registry resolves skill definitions.
type Registry interface {
	Get(ctx context.Context, id string) (*Skill, error)
	List(ctx context.Context, f Filter) ([]Skill, error)
	Reload(ctx context.Context, id string) (*Skill, error)
	Invalidate()
}

// Catalog persists skill metadata for listing and auditing.
type Catalog interface {
	UpsertSkill(ctx context.Context, s Skill) error
}

const allSkills = "all"

// DirRegistry serves skills from a directory of SKILL.md definitions through
// a TTL cache.
type DirRegistry struct {
	root    string
	catalog Catalog
	cache   *cache.TTL[string, []Skill]
}

// NewDirRegistry creates a registry over root. catalog may be nil.
func NewDirRegistry(root string, catalog Catalog, ttl time.Duration) *DirRegistry {
	return &DirRegistry{
		root:    root,
		catalog: catalog,
		cache:   cache.New[string, []Skill](1, ttl, func(k string) string { return k }),
	}
}

func (r *DirRegistry) all(ctx context.Context) ([]Skill, error) {
	return r.cache.GetOrLoad(ctx, allSkills, func(context.Context, string) ([]Skill, error) {
		return LoadDir(r.root)
	})
}

// Get returns one skill by id.
func (r *DirRegistry) Get(ctx context.Context, id string) (*Skill, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			s := all[i]
			return &s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, id)
}

// List returns skills matching f in id order.
func (r *DirRegistry) List(ctx context.Context, f Filter) ([]Skill, error) {
	all, err := r.all(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Skill, 0, len(all))
	for _, s := range all {
		if f.Category != "" && s.Category != f.Category {
			continue
		}
		if f.EnabledOnly && !s.Enabled {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Reload re-reads one definition from disk, records it in the catalog and
// drops the cached list.
func (r *DirRegistry) Reload(ctx context.Context, id string) (*Skill, error) {
	if filepath.Base(id) != id || id == "." || id == ".." {
		return nil, fmt.Errorf("%w: %s", ErrSkillNotFound, id)
	}
	s, err := LoadFile(filepath.Join(r.root, id))
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", id, err)
	}
	if err = r.register(ctx, *s); err != nil {
		return nil, err
	}
	r.Invalidate()
	slog.Info("skill reloaded", "skill_id", s.ID, "version", s.Version)
	return s, nil
}

// Sync loads every definition and records it in the catalog.
func (r *DirRegistry) Sync(ctx context.Context) (int, error) {
	r.Invalidate()
	all, err := r.all(ctx)
	if err != nil {
		return 0, err
	}
	for _, s := range all {
		if err = r.register(ctx, s); err != nil {
			return 0, err
		}
	}
	return len(all), nil
}

// Invalidate drops the cached skill list.
func (r *DirRegistry) Invalidate() {
	r.cache.Purge()
}

func (r *DirRegistry) register(ctx context.Context, s Skill) error {
	if r.catalog == nil {
		return nil
	}
	if err := r.catalog.UpsertSkill(ctx, s); err != nil {
		return fmt.Errorf("register skill %s: %w", s.ID, err)
	}
	return nil
}
