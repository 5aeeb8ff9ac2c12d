package store

import "strings"

// EntityFilter constrains the entity annotation of matching documents.
// Type is an exact match against the live vocabulary; Title is a
// case-insensitive substring; Keywords matches when any keyword overlaps.
type EntityFilter struct {
	Type     string   `json:"type,omitempty"`
	Title    string   `json:"title,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// Filter is a conjunction of optional predicates restricting which documents
// a search may return. An empty filter matches all documents. Filters are
// immutable once constructed; callers derive new filters via WithoutEntity
// or WithCategories instead of mutating.
type Filter struct {
	Sources         []string      `json:"sources,omitempty"`
	Pages           []int         `json:"pages,omitempty"`
	Categories      []string      `json:"categories,omitempty"`
	CaptionContains string        `json:"caption_contains,omitempty"`
	Entity          *EntityFilter `json:"entity,omitempty"`

	// EntityCategories scopes the retriever's entity pass when Entity is
	// set; it is taken from the metadata snapshot and is not a match
	// predicate, so Matches and IsEmpty ignore it.
	EntityCategories []string `json:"entity_categories,omitempty"`
}

// IsEmpty reports whether the filter has no predicates.
func (f Filter) IsEmpty() bool {
	return len(f.Sources) == 0 &&
		len(f.Pages) == 0 &&
		len(f.Categories) == 0 &&
		f.CaptionContains == "" &&
		f.Entity == nil
}

// WithoutEntity returns a copy of the filter with the entity predicate
// stripped. Used for the general pass of the dual-filter strategy.
func (f Filter) WithoutEntity() Filter {
	out := f.clone()
	out.Entity = nil
	return out
}

// WithCategories returns a copy of the filter scoped to the given
// categories. Used for the entity pass of the dual-filter strategy.
func (f Filter) WithCategories(categories []string) Filter {
	out := f.clone()
	out.Categories = append([]string(nil), categories...)
	return out
}

func (f Filter) clone() Filter {
	out := Filter{
		CaptionContains: f.CaptionContains,
	}
	out.Sources = append([]string(nil), f.Sources...)
	out.Pages = append([]int(nil), f.Pages...)
	out.Categories = append([]string(nil), f.Categories...)
	out.EntityCategories = append([]string(nil), f.EntityCategories...)
	if f.Entity != nil {
		e := EntityFilter{
			Type:     f.Entity.Type,
			Title:    f.Entity.Title,
			Keywords: append([]string(nil), f.Entity.Keywords...),
		}
		out.Entity = &e
	}
	return out
}

// Matches evaluates the filter against a document in memory. The Postgres
// adapter translates the same predicates to SQL; this form backs the
// in-memory store.
func (f Filter) Matches(doc Document) bool {
	md := doc.Metadata

	if len(f.Sources) > 0 && !contains(f.Sources, md.Source) {
		return false
	}
	if len(f.Pages) > 0 && !containsInt(f.Pages, md.Page) {
		return false
	}
	if len(f.Categories) > 0 && !contains(f.Categories, md.Category) {
		return false
	}
	if f.CaptionContains != "" &&
		!strings.Contains(strings.ToLower(md.Caption), strings.ToLower(f.CaptionContains)) {
		return false
	}
	if f.Entity != nil {
		if md.Entity == nil {
			return false
		}
		if f.Entity.Type != "" && md.Entity.Type != f.Entity.Type {
			return false
		}
		if f.Entity.Title != "" &&
			!strings.Contains(strings.ToLower(md.Entity.Title), strings.ToLower(f.Entity.Title)) {
			return false
		}
		if len(f.Entity.Keywords) > 0 && !overlaps(md.Entity.Keywords, f.Entity.Keywords) {
			return false
		}
	}
	return true
}

func containsInt(values []int, v int) bool {
	for _, n := range values {
		if n == v {
			return true
		}
	}
	return false
}

func overlaps(have, want []string) bool {
	for _, w := range want {
		if contains(have, w) {
			return true
		}
	}
	return false
}
