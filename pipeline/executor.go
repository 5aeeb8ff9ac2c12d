package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallnest/ragflow/model"
	"github.com/smallnest/ragflow/retriever"
	"github.com/smallnest/ragflow/store"
)

// metadataCache holds the store metadata snapshot shared across subtasks
// within a turn. Entries are read-mostly; the mutex guards refresh.
type metadataCache struct {
	mu   sync.Mutex
	ttl  time.Duration
	at   time.Time
	snap store.MetadataSnapshot
	now  func() time.Time
}

func newMetadataCache(ttl time.Duration) *metadataCache {
	return &metadataCache{ttl: ttl, now: time.Now}
}

func (c *metadataCache) get(ctx context.Context, s store.Store) (store.MetadataSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.at.IsZero() && c.now().Sub(c.at) < c.ttl {
		return c.snap, nil
	}
	snap, err := s.GetMetadata(ctx)
	if err != nil {
		return store.MetadataSnapshot{}, fmt.Errorf("failed to fetch store metadata: %w", err)
	}
	c.snap = snap
	c.at = c.now()
	return snap, nil
}

type variationsResponse struct {
	Variations []string `json:"variations"`
}

// extraction is the structured hint derived from a subtask query before
// filter generation.
type extraction struct {
	Pages      []int    `json:"pages"`
	Categories []string `json:"categories"`
	EntityType string   `json:"entity_type"`
	Keywords   []string `json:"keywords"`
}

// subtaskExecutorNode prepares the subtask at the cursor: query variations,
// extraction hint, filter, per-variation language labels. It marks the
// subtask executing and advances the cursor by exactly one; the retriever
// node then consumes the prepared subtask. When no subtasks remain it is a
// no-op and the advance predicate hands control to the synthesizer.
func (r *Runner) subtaskExecutorNode(ctx context.Context, state TurnState) (TurnState, error) {
	state.IterationCount++

	if state.Error != "" || state.WorkflowStatus == StatusFailed {
		return state, nil
	}

	if state.CurrentSubtaskIdx >= len(state.Subtasks) {
		if len(state.Documents) == 0 {
			state.WorkflowStatus = StatusFailed
			state.Error = "no documents retrieved"
			state.Warnings = append(state.Warnings, "retrieval produced no documents for any subtask")
		}
		return state, nil
	}

	idx := state.CurrentSubtaskIdx
	subtask := state.Subtasks[idx]

	snap, err := r.metadata.get(ctx, r.store)
	if err != nil {
		state.WorkflowStatus = StatusFailed
		state.Error = err.Error()
		return state, nil
	}

	variations := r.generateVariations(ctx, subtask.Query)
	if len(variations) == 0 {
		subtask.Status = SubtaskFailed
		state.Subtasks[idx] = subtask
		state.CurrentSubtaskIdx = idx + 1
		state.Warnings = append(state.Warnings,
			fmt.Sprintf("no query variations produced for subtask %q", subtask.Query))
		return state, nil
	}

	hint := r.extractHint(ctx, subtask.Query, snap)
	filter := r.generateFilter(ctx, subtask.Query, hint, snap)

	subtask.Variations = labelLanguages(variations)
	subtask.Filter = filter
	subtask.Status = SubtaskExecuting
	state.Subtasks[idx] = subtask
	state.CurrentSubtaskIdx = idx + 1

	r.logger.Debug("prepared subtask %d/%d with %d variations",
		idx+1, len(state.Subtasks), len(variations))
	return state, nil
}

// generateVariations produces 3-5 distinct rewrites of the subtask query,
// always including the original. A failed model call degrades to a
// deterministic keyword rewrite.
func (r *Runner) generateVariations(ctx context.Context, query string) []string {
	prompt := fmt.Sprintf(`Produce 3 to 4 alternative phrasings of the query for document search.
Preserve the intent; vary vocabulary and sentence structure; keep each
variation in the query's own language.

Query: %s

Respond with JSON: {"variations": ["...", "..."]}`, query)

	resp, err := model.GenerateStructured[variationsResponse](ctx, r.model, prompt, model.Options{Temperature: 0.3})
	if err != nil {
		r.logger.Warn("variation generation failed, using deterministic fallback: %v", err)
		resp.Variations = nil
	}

	seen := map[string]bool{}
	out := make([]string, 0, 5)
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] || len(out) == 5 {
			return
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}

	add(query) // the original is always in the set
	for _, v := range resp.Variations {
		add(v)
	}
	if len(out) < 3 {
		// Deterministic fallback: a bare keyword rewrite widens recall.
		lang := retriever.DetectLanguage(query)
		add(strings.Join(retriever.ExtractKeywords(query, lang), " "))
	}
	return out
}

// extractHint derives pages, categories, entity-type and keyword cues from
// the subtask query. Failures degrade to an empty hint.
func (r *Runner) extractHint(ctx context.Context, query string, snap store.MetadataSnapshot) extraction {
	prompt := fmt.Sprintf(`Extract structural cues from the query. Only report what the query
explicitly states; leave everything else empty.

- pages: explicit page numbers only
- categories: canonical tags for explicit structural terms
  (table, figure, list, chart, heading1, heading2, heading3, paragraph,
  equation, caption, footnote, header, footer, reference)
- entity_type: one of [%s], only when the query clearly references it
- keywords: salient content words

Query: %s

Respond with JSON:
{"pages": [], "categories": [], "entity_type": "", "keywords": []}`,
		strings.Join(snap.EntityTypes, ", "), query)

	hint, err := model.GenerateStructured[extraction](ctx, r.model, prompt, model.Options{Temperature: 0})
	if err != nil {
		r.logger.Debug("extraction failed, proceeding without hints: %v", err)
		return extraction{}
	}
	return hint
}

// labelLanguages assigns each variation an independent language label via
// the script-ratio heuristic; the label selects the dense column and
// lexical vector to query.
func labelLanguages(variations []string) []retriever.Query {
	out := make([]retriever.Query, 0, len(variations))
	for _, v := range variations {
		out = append(out, retriever.Query{Text: v, Language: retriever.DetectLanguage(v)})
	}
	return out
}
