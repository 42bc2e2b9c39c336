// Package tags maps store tag names to their numeric ids.
package tags

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

//go:embed tags.yaml
var defaultCatalog []byte

// ErrUnknownTag is returned when a query matches no tag.
var ErrUnknownTag = errors.New("unknown tag")

// Tag is one store tag.
type Tag struct {
	ID   int64  `yaml:"id"`
	Name string `yaml:"name"`
}

// Catalog resolves user input to tags.
type Catalog struct {
	byName map[string]Tag
	byID   map[int64]Tag
	tags   []Tag
}

var (
	junkRe  = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)
	spaceRe = regexp.MustCompile(`\s+`)
)

// Normalize lowercases s, drops everything except letters, digits,
// spaces and hyphens, and collapses whitespace.
func Normalize(s string) string {
	s = junkRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// Default returns the catalogue bundled with the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse builds a catalogue from a YAML list of {id, name} entries.
func Parse(data []byte) (*Catalog, error) {
	var list []Tag
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse tag catalog: %w", err)
	}

	c := &Catalog{
		byName: make(map[string]Tag, len(list)*2),
		byID:   make(map[int64]Tag, len(list)),
		tags:   list,
	}
	for _, t := range list {
		if t.ID <= 0 || t.Name == "" {
			return nil, fmt.Errorf("invalid tag entry %d %q", t.ID, t.Name)
		}
		norm := Normalize(t.Name)
		c.byName[norm] = t
		c.byID[t.ID] = t
		if alias := strings.ReplaceAll(norm, "-", " "); alias != norm {
			c.byName[alias] = t
		}
	}
	sort.Slice(c.tags, func(i, j int) bool { return c.tags[i].Name < c.tags[j].Name })
	return c, nil
}

// Resolve accepts a tag name (case, punctuation and hyphens ignored) or a
// positive numeric id. Numeric ids outside the catalogue are accepted and
// named after the id.
func (c *Catalog) Resolve(query string) (Tag, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return Tag{}, ErrUnknownTag
	}
	if id, err := strconv.ParseInt(q, 10, 64); err == nil {
		if id <= 0 {
			return Tag{}, fmt.Errorf("%w: %s", ErrUnknownTag, q)
		}
		return Tag{ID: id, Name: c.Name(id)}, nil
	}

	norm := Normalize(q)
	if t, ok := c.byName[norm]; ok {
		return t, nil
	}
	if t, ok := c.byName[strings.ReplaceAll(norm, "-", " ")]; ok {
		return t, nil
	}
	return Tag{}, fmt.Errorf("%w: %s", ErrUnknownTag, q)
}

// Name returns the display name of a tag id.
func (c *Catalog) Name(id int64) string {
	if t, ok := c.byID[id]; ok {
		return t.Name
	}
	return "Tag " + strconv.FormatInt(id, 10)
}

// Search returns up to limit tags whose normalized name contains query,
// prefix matches first.
func (c *Catalog) Search(query string, limit int) []Tag {
	q := Normalize(query)
	var prefix, contains []Tag
	for _, t := range c.tags {
		n := Normalize(t.Name)
		switch {
		case strings.HasPrefix(n, q):
			prefix = append(prefix, t)
		case strings.Contains(n, q):
			contains = append(contains, t)
		}
	}
	out := append(prefix, contains...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// All returns every catalogued tag sorted by name.
func (c *Catalog) All() []Tag {
	return append([]Tag(nil), c.tags...)
}
