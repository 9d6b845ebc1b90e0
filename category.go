package maskview

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// Category identifies a mask category by its index in a CategorySet.
type Category uint8

// MaxCategories is the largest number of categories a CategorySet may hold.
const MaxCategories = 64

// Indices of the default categories.
const (
	CategoryText Category = iota
	CategoryHatch
	CategoryLine
)

// markPrefix is accepted in front of category names; the annotation tool
// stores hide-only categories as mark_text, mark_hatch and mark_line.
const markPrefix = "mark_"

// CategorySet is the configured, ordered list of mask categories. The
// position of a name is its Category value.
type CategorySet struct {
	names []string
}

// DefaultCategories returns the set {text, hatch, line}.
func DefaultCategories() CategorySet {
	return CategorySet{names: []string{"text", "hatch", "line"}}
}

// NewCategorySet builds a set from names. Names are compared after Unicode
// case folding and must be unique and non-empty.
func NewCategorySet(names ...string) (CategorySet, error) {
	if len(names) == 0 || len(names) > MaxCategories {
		return CategorySet{}, fmt.Errorf("maskview: need 1 to %d categories, got %d", MaxCategories, len(names))
	}
	seen := make(map[string]bool, len(names))
	folded := make([]string, len(names))
	for i, name := range names {
		key := foldName(name)
		if key == "" {
			return CategorySet{}, fmt.Errorf("maskview: category %d has an empty name", i)
		}
		if seen[key] {
			return CategorySet{}, fmt.Errorf("maskview: duplicate category %q", name)
		}
		seen[key] = true
		folded[i] = key
	}
	return CategorySet{names: folded}, nil
}

func foldName(name string) string {
	key := cases.Fold().String(strings.TrimSpace(name))
	return strings.TrimPrefix(key, markPrefix)
}

// Len returns the number of categories.
func (s CategorySet) Len() int { return len(s.names) }

// Contains reports whether c is part of the set.
func (s CategorySet) Contains(c Category) bool { return int(c) < len(s.names) }

// Name returns the canonical name of c, or "" if c is not in the set.
func (s CategorySet) Name(c Category) string {
	if !s.Contains(c) {
		return ""
	}
	return s.names[c]
}

// Names returns the canonical names in order.
func (s CategorySet) Names() []string {
	return append([]string(nil), s.names...)
}

// All returns every category in order.
func (s CategorySet) All() []Category {
	all := make([]Category, len(s.names))
	for i := range all {
		all[i] = Category(i)
	}
	return all
}

// Parse looks up a category by name, ignoring case and a leading "mark_".
func (s CategorySet) Parse(name string) (Category, error) {
	key := foldName(name)
	for i, n := range s.names {
		if n == key {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCategory, name)
}

// HideSetOf returns the HideSet hiding the named categories.
func (s CategorySet) HideSetOf(names ...string) (HideSet, error) {
	var h HideSet
	for _, name := range names {
		c, err := s.Parse(name)
		if err != nil {
			return 0, err
		}
		h = h.With(c)
	}
	return h, nil
}
