package skills

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefinitionFile is the file name of a skill definition inside its directory.
const DefinitionFile = "SKILL.md"

var (
	frontmatterRe  = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n(.*)$`)
	promptHeaderRe = regexp.MustCompile(`(?m)^##\s*Prompt模板\s*$`)
	promptFenceRe  = regexp.MustCompile("(?s)```prompt\\s*\\n(.*?)```")
	plainFenceRe   = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\\n(.*?)```")
)

type frontmatter struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Category     string   `yaml:"category"`
	Priority     *int     `yaml:"priority"`
	Enabled      *bool    `yaml:"enabled"`
	Version      string   `yaml:"version"`
	Output       string   `yaml:"output"`
	Keywords     []string `yaml:"keywords"`
	Scenarios    []string `yaml:"scenarios"`
	Dependencies []string `yaml:"dependencies"`
	Author       string   `yaml:"author"`
}

// Parse reads a SKILL.md document. id is used when the frontmatter has none.
func Parse(id string, doc []byte) (*Skill, error) {
	m := frontmatterRe.FindSubmatch(doc)
	if m == nil {
		return nil, errors.New("missing yaml frontmatter")
	}
	var fm frontmatter
	if err := yaml.Unmarshal(m[1], &fm); err != nil {
		return nil, fmt.Errorf("frontmatter: %w", err)
	}

	prompt, err := extractPrompt(string(m[2]))
	if err != nil {
		return nil, err
	}

	s := &Skill{
		ID:           id,
		Name:         fm.Name,
		Description:  fm.Description,
		Category:     strings.ToLower(strings.TrimSpace(fm.Category)),
		Priority:     DefaultPriority,
		Enabled:      true,
		Version:      fm.Version,
		Output:       fm.Output,
		Keywords:     fm.Keywords,
		Scenarios:    fm.Scenarios,
		Dependencies: fm.Dependencies,
		Author:       fm.Author,
		Prompt:       prompt,
	}
	if fm.ID != "" {
		s.ID = fm.ID
	}
	if fm.Priority != nil {
		s.Priority = *fm.Priority
	}
	if fm.Enabled != nil {
		s.Enabled = *fm.Enabled
	}
	if s.Name == "" {
		s.Name = s.ID
	}
	if s.Category == "" {
		return nil, errors.New("frontmatter: category is required")
	}
	return s, nil
}

func extractPrompt(body string) (string, error) {
	loc := promptHeaderRe.FindStringIndex(body)
	if loc == nil {
		return "", errors.New("missing ## Prompt模板 section")
	}
	section := body[loc[1]:]
	if m := promptFenceRe.FindStringSubmatch(section); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	if m := plainFenceRe.FindStringSubmatch(section); m != nil {
		return strings.TrimSpace(m[1]), nil
	}
	return "", errors.New("prompt section has no fenced block")
}

// LoadFile parses dir/SKILL.md and the optional references/knowledge_base.md.
func LoadFile(dir string) (*Skill, error) {
	doc, err := os.ReadFile(filepath.Join(dir, DefinitionFile))
	if err != nil {
		return nil, err
	}
	s, err := Parse(filepath.Base(dir), doc)
	if err != nil {
		return nil, fmt.Errorf("skill %s: %w", filepath.Base(dir), err)
	}
	s.Path = dir

	kb, err := os.ReadFile(filepath.Join(dir, "references", "knowledge_base.md"))
	if err == nil {
		s.KnowledgeBase = strings.TrimSpace(string(kb))
	}
	return s, nil
}

// LoadDir loads every skill directory under root, sorted by id. A broken
// definition fails the whole load so a bad deploy is noticed.
func LoadDir(root string) ([]Skill, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read skills dir: %w", err)
	}
	var out []Skill
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(root, e.Name())
		if _, statErr := os.Stat(filepath.Join(dir, DefinitionFile)); statErr != nil {
			continue
		}
		s, loadErr := LoadFile(dir)
		if loadErr != nil {
			return nil, loadErr
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
