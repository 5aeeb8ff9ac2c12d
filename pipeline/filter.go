package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallnest/ragflow/model"
	"github.com/smallnest/ragflow/store"
)

type filterResponse struct {
	Sources         []string `json:"sources"`
	Pages           []int    `json:"pages"`
	Categories      []string `json:"categories"`
	CaptionContains string   `json:"caption_contains"`
	Entity          *struct {
		Type     string   `json:"type"`
		Title    string   `json:"title"`
		Keywords []string `json:"keywords"`
	} `json:"entity"`
}

// generateFilter derives a maximally-empty filter from the subtask query: a
// predicate is added only on strong textual evidence, and every candidate
// value is validated against the live metadata snapshot. If validation
// empties the filter but the extraction clearly named a known entity type,
// that entity filter is still emitted.
func (r *Runner) generateFilter(ctx context.Context, query string, hint extraction, snap store.MetadataSnapshot) store.Filter {
	prompt := fmt.Sprintf(`Build a document filter for the query. Default to an EMPTY filter; add
a predicate only on strong, explicit evidence:

- sources: only when the query names a document artifact ("manual",
  "guide", "document") AND it matches one of: [%s].
  A product or model name alone is NOT a source.
- pages: only explicit page numbers. Valid range: %d-%d.
- categories: only explicit structural terms. Valid: [%s].
- entity.type: only when one of [%s] is clearly referenced; use the exact
  literal.
- caption_contains: only for explicit "caption mentions X" asks.

Query: %s
Extracted cues: pages=%v categories=%v entity_type=%q keywords=%v

Respond with JSON:
{"sources": [], "pages": [], "categories": [], "caption_contains": "", "entity": null}`,
		strings.Join(snap.Sources, ", "), snap.Pages.Min, snap.Pages.Max,
		strings.Join(snap.Categories, ", "), strings.Join(snap.EntityTypes, ", "),
		query, hint.Pages, hint.Categories, hint.EntityType, hint.Keywords)

	resp, err := model.GenerateStructured[filterResponse](ctx, r.model, prompt, model.Options{Temperature: 0})
	if err != nil {
		r.logger.Debug("filter generation failed, using empty filter: %v", err)
		resp = filterResponse{}
	}

	filter := validateFilter(resp, snap)

	// Deterministic override: a clearly named, known entity type survives
	// even when the model emitted nothing usable.
	if filter.IsEmpty() && hint.EntityType != "" && snap.HasEntityType(hint.EntityType) {
		filter.Entity = &store.EntityFilter{Type: hint.EntityType}
	}

	// The entity pass scopes to the categories that actually carry
	// entities in this store.
	if filter.Entity != nil {
		filter.EntityCategories = snap.EntityCategories
	}
	return filter
}

// validateFilter drops every candidate value not present in the live
// metadata snapshot.
func validateFilter(resp filterResponse, snap store.MetadataSnapshot) store.Filter {
	var filter store.Filter

	for _, src := range resp.Sources {
		if snap.HasSource(src) {
			filter.Sources = append(filter.Sources, src)
		}
	}
	for _, page := range resp.Pages {
		if snap.InPageRange(page) {
			filter.Pages = append(filter.Pages, page)
		}
	}
	for _, cat := range resp.Categories {
		if snap.HasCategory(cat) {
			filter.Categories = append(filter.Categories, cat)
		}
	}
	filter.CaptionContains = strings.TrimSpace(resp.CaptionContains)

	if resp.Entity != nil && resp.Entity.Type != "" && snap.HasEntityType(resp.Entity.Type) {
		filter.Entity = &store.EntityFilter{
			Type:     resp.Entity.Type,
			Title:    strings.TrimSpace(resp.Entity.Title),
			Keywords: resp.Entity.Keywords,
		}
	}
	return filter
}
