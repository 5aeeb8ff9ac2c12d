package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/ragflow/store"
	"github.com/smallnest/ragflow/tool"
)

// retrieveNode runs the hybrid retriever for the subtask the executor just
// prepared. Zero results are a warning, not an error; a store failure sets
// error-as-state and lets the conditional edges decide recovery.
func (r *Runner) retrieveNode(ctx context.Context, state TurnState) (TurnState, error) {
	idx := state.activeSubtaskIdx()
	if idx < 0 {
		return state, nil
	}
	subtask := state.Subtasks[idx]

	docs, err := r.retriever.Retrieve(ctx, subtask.Variations, subtask.Filter)
	if err != nil {
		subtask.Status = SubtaskFailed
		state.Subtasks[idx] = subtask
		state.Error = fmt.Sprintf("retrieval failed for subtask %q: %v", subtask.Query, err)
		return state, nil
	}

	subtask.Documents = docs
	subtask.Status = SubtaskCompleted
	state.Subtasks[idx] = subtask
	state.Documents = append(state.Documents, docs...)

	if len(docs) == 0 {
		state.Warnings = append(state.Warnings,
			fmt.Sprintf("no documents found for subtask %q", subtask.Query))
	}
	r.logger.Debug("subtask %q retrieved %d documents", subtask.Query, len(docs))
	return state, nil
}

// webFallbackNode supplements sparse local retrieval with web results.
// At least one result clears any retrieval error and restores the running
// status; quota exhaustion and upstream failures degrade to warnings.
func (r *Runner) webFallbackNode(ctx context.Context, state TurnState) (TurnState, error) {
	idx := lastPreparedSubtaskIdx(state)
	if idx < 0 || r.web == nil {
		return state, nil
	}
	subtask := state.Subtasks[idx]

	docs, err := r.web.Search(ctx, subtask.Query, r.cfg.WebFallbackThreshold)
	if err != nil {
		switch {
		case errors.Is(err, tool.ErrQuotaExhausted):
			state.Warnings = append(state.Warnings, "web search skipped: daily quota exhausted")
		case errors.Is(err, tool.ErrSearchUnavailable):
			state.Warnings = append(state.Warnings, "web search unavailable")
		default:
			state.Warnings = append(state.Warnings, fmt.Sprintf("web search failed: %v", err))
		}
		return state, nil
	}

	if len(docs) > 0 {
		docs = r.enrichThinSnippets(ctx, docs)
		subtask.Documents = append(subtask.Documents, docs...)
		subtask.Status = SubtaskCompleted
		state.Subtasks[idx] = subtask
		state.Documents = append(state.Documents, docs...)

		// A successful fallback recovers the subtask's retrieval failure.
		state.Error = ""
		state.WorkflowStatus = StatusRunning
		r.logger.Info("web fallback added %d documents for subtask %q", len(docs), subtask.Query)
	}
	return state, nil
}

const (
	// Web snippets shorter than this are enriched with fetched page text.
	minWebSnippetRunes = 200
	// maxFetchedPageRunes caps the page text appended to a snippet.
	maxFetchedPageRunes = 4000
)

// enrichThinSnippets fetches page text for web results whose snippet is too
// short to synthesize from. A fetch failure leaves the snippet as-is.
func (r *Runner) enrichThinSnippets(ctx context.Context, docs []store.Document) []store.Document {
	if r.fetcher == nil {
		return docs
	}
	for i, doc := range docs {
		if len([]rune(doc.Content)) >= minWebSnippetRunes {
			continue
		}
		url := doc.Metadata.Source
		if !strings.HasPrefix(url, "http") {
			continue
		}
		text, err := r.fetcher.FetchText(ctx, url)
		if err != nil {
			r.logger.Debug("page fetch failed for %s: %v", url, err)
			continue
		}
		if runes := []rune(text); len(runes) > maxFetchedPageRunes {
			text = string(runes[:maxFetchedPageRunes])
		}
		if text != "" {
			docs[i].Content = doc.Content + "\n" + text
		}
	}
	return docs
}

// lastPreparedSubtaskIdx is the subtask the retriever last operated on:
// the one just behind the cursor regardless of its final status.
func lastPreparedSubtaskIdx(state TurnState) int {
	idx := state.CurrentSubtaskIdx - 1
	if idx < 0 || idx >= len(state.Subtasks) {
		return -1
	}
	return idx
}
