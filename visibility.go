package maskview

import (
	"math/bits"
	"strings"
)

// PageID is the stable identity of a page.
type PageID string

// HideSet is a set of categories whose combined masks are painted over.
// Bit i stands for Category(i).
type HideSet uint64

// Has reports whether c is hidden.
func (h HideSet) Has(c Category) bool {
	return c < MaxCategories && h&(1<<c) != 0
}

// With returns h with c hidden.
func (h HideSet) With(c Category) HideSet {
	if c >= MaxCategories {
		return h
	}
	return h | 1<<c
}

// Without returns h with c visible.
func (h HideSet) Without(c Category) HideSet {
	if c >= MaxCategories {
		return h
	}
	return h &^ (1 << c)
}

// Len returns the number of hidden categories.
func (h HideSet) Len() int { return bits.OnesCount64(uint64(h)) }

// Categories returns the hidden categories in ascending order.
func (h HideSet) Categories() []Category {
	out := make([]Category, 0, h.Len())
	for w := uint64(h); w != 0; w &= w - 1 {
		out = append(out, Category(bits.TrailingZeros64(w)))
	}
	return out
}

// VisibilityState is the display configuration a composite is built for: the
// active page and the hidden categories. It is comparable and forms the cache
// key together with the page identity.
type VisibilityState struct {
	Page PageID
	Hide HideSet
}

// Hides reports whether c is hidden in v.
func (v VisibilityState) Hides(c Category) bool { return v.Hide.Has(c) }

// WithHidden returns v with c hidden or shown.
func (v VisibilityState) WithHidden(c Category, hidden bool) VisibilityState {
	if hidden {
		v.Hide = v.Hide.With(c)
	} else {
		v.Hide = v.Hide.Without(c)
	}
	return v
}

// WithPage returns v for another active page.
func (v VisibilityState) WithPage(id PageID) VisibilityState {
	v.Page = id
	return v
}

// Format renders v with category names from s, e.g. "p1[text,line]".
func (v VisibilityState) Format(s CategorySet) string {
	var b strings.Builder
	b.WriteString(string(v.Page))
	b.WriteByte('[')
	for i, c := range v.Hide.Categories() {
		if i > 0 {
			b.WriteByte(',')
		}
		if name := s.Name(c); name != "" {
			b.WriteString(name)
		} else {
			b.WriteByte('?')
		}
	}
	b.WriteByte(']')
	return b.String()
}

// VisibilityProvider supplies the current visibility state.
type VisibilityProvider interface {
	Visibility() VisibilityState
}

// Visibility returns v, so a fixed state can serve as a VisibilityProvider.
func (v VisibilityState) Visibility() VisibilityState { return v }
