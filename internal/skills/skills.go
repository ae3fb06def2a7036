// Package skills loads the read-only on-disk skills catalog
// (<root>/predefined/<category>/<id>.md) and renders it into the review
// prompt. The catalog is read once at startup and held in memory using
// internal/cache/prompt_cache.go's TTL-cache machinery, repurposed here as
// an eager, long-TTL cache rather than its original per-prompt memoization
// role.
package skills

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/techy/revo/internal/cache"
)

// Categories enumerates the fixed set of subdirectories under predefined/.
var Categories = []string{"languages", "frameworks", "patterns", "testing", "infra"}

const (
	// MaxCustomSkills bounds how many repo-specific skills a ConnectedRepo
	// may carry.
	MaxCustomSkills = 5
	// MaxCustomSkillChars bounds a single custom skill's content length.
	MaxCustomSkillChars = 2000
)

// Skill is one predefined-skill document.
type Skill struct {
	ID       string
	Category string
	Name     string
	Content  string
}

// Catalog holds every predefined skill, grouped by category in a stable
// order, plus the underlying cache entries for individual lookups.
type Catalog struct {
	cache      *cache.PromptCache
	byCategory map[string][]Skill
}

// Load walks root/predefined/<category>/*.md eagerly and builds the
// in-memory catalog. A missing category directory is not an error — it
// simply contributes no skills.
func Load(root string) (*Catalog, error) {
	c := &Catalog{
		cache:      cache.NewPromptCache(cache.Config{MaxSize: 10000, TTL: 365 * 24 * time.Hour}),
		byCategory: make(map[string][]Skill),
	}

	for _, category := range Categories {
		dir := filepath.Join(root, "predefined", category)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("skills: read %s: %w", dir, err)
		}

		var loaded []Skill
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}

			path := filepath.Join(dir, entry.Name())
			content, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("skills: read %s: %w", path, err)
			}

			id := strings.TrimSuffix(entry.Name(), ".md")
			skill := Skill{
				ID:       id,
				Category: category,
				Name:     firstHeading(string(content), id),
				Content:  string(content),
			}
			loaded = append(loaded, skill)
			c.cache.Set(category+"/"+id, skill.Content)
		}

		sort.Slice(loaded, func(i, j int) bool { return loaded[i].ID < loaded[j].ID })
		c.byCategory[category] = loaded
	}

	return c, nil
}

// firstHeading returns the text after the first "## " line in content, or
// fallback if none is found.
func firstHeading(content, fallback string) string {
	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "## ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "## "))
		}
	}
	return fallback
}

// FormatPredefined renders every loaded skill grouped by category, for
// substitution into the review system prompt's "predefined skills"
// placeholder.
func (c *Catalog) FormatPredefined() string {
	var sb strings.Builder
	for _, category := range Categories {
		skills := c.byCategory[category]
		if len(skills) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "### %s\n", category)
		for _, s := range skills {
			fmt.Fprintf(&sb, "#### %s\n%s\n\n", s.Name, s.Content)
		}
	}
	return sb.String()
}

// FormatCustom renders a repo's custom skill contents for substitution into
// the review system prompt's "custom skills" placeholder.
func FormatCustom(customSkills []string) string {
	var sb strings.Builder
	for i, content := range customSkills {
		fmt.Fprintf(&sb, "#### custom skill %d\n%s\n\n", i+1, content)
	}
	return sb.String()
}

// ValidateCustomSkills enforces the count and per-skill length caps.
func ValidateCustomSkills(customSkills []string) error {
	if len(customSkills) > MaxCustomSkills {
		return fmt.Errorf("skills: at most %d custom skills allowed, got %d", MaxCustomSkills, len(customSkills))
	}
	for i, content := range customSkills {
		if len(content) > MaxCustomSkillChars {
			return fmt.Errorf("skills: custom skill %d exceeds %d characters", i, MaxCustomSkillChars)
		}
	}
	return nil
}
