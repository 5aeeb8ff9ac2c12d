// Package tool wraps external collaborators behind uniform tool interfaces.
// The web-search tool supplements sparse local retrieval; the adapter owns
// the daily quota and the per-query result cache.
package tool

import (
	"context"
	"errors"

	"github.com/smallnest/ragflow/store"
)

var (
	// ErrQuotaExhausted is returned when the daily query quota is spent.
	ErrQuotaExhausted = errors.New("web search daily quota exhausted")

	// ErrSearchUnavailable is returned when the upstream provider fails.
	ErrSearchUnavailable = errors.New("web search unavailable")
)

// WebSearcher is the uniform web-search tool contract.
type WebSearcher interface {
	// Search returns up to maxResults documents for the query. Results
	// carry Source set to the URL, Category "web" and a rank-proportional
	// Similarity.
	Search(ctx context.Context, query string, maxResults int) ([]store.Document, error)
}
