// Package retriever implements hybrid dense+lexical retrieval with
// reciprocal rank fusion. Per query variation it runs a dense vector search
// and a lexical keyword search, fans the searches out over a fixed worker
// pool, and fuses all ranked lists into one deduplicated result.
package retriever

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"

	"github.com/smallnest/ragflow/log"
	"github.com/smallnest/ragflow/store"
)

const (
	defaultTopK     = 10
	defaultRRFK     = 60
	defaultWorkers  = 3
	defaultAttempts = 3
)

// defaultEntityCategories scope the entity pass when the filter carries no
// live entity-bearing categories from the metadata snapshot.
var defaultEntityCategories = []string{store.CategoryFigure, store.CategoryTable}

// Hybrid retrieves documents for a set of query variations against a
// document store, merging dense and lexical results with RRF.
type Hybrid struct {
	store     store.Store
	embedder  embeddings.Embedder
	topK      int
	rrfK      int
	workers   int
	attempts  int
	baseDelay time.Duration
	logger    log.Logger
}

// Option configures a Hybrid retriever.
type Option func(*Hybrid)

// WithTopK sets the size of the final merged result (default 10).
func WithTopK(topK int) Option {
	return func(h *Hybrid) {
		h.topK = topK
	}
}

// WithRRFK sets the RRF smoothing constant (default 60).
func WithRRFK(k int) Option {
	return func(h *Hybrid) {
		h.rrfK = k
	}
}

// WithWorkers sets the search worker pool size (default 3).
func WithWorkers(n int) Option {
	return func(h *Hybrid) {
		h.workers = n
	}
}

// WithRetry sets the per-search retry count and base backoff delay
// (defaults 3 retries, 1s base with exponential growth).
func WithRetry(retries int, baseDelay time.Duration) Option {
	return func(h *Hybrid) {
		h.attempts = retries
		h.baseDelay = baseDelay
	}
}

// WithLogger sets the retriever logger.
func WithLogger(logger log.Logger) Option {
	return func(h *Hybrid) {
		h.logger = logger
	}
}

// NewHybrid creates a hybrid retriever over the given store and embedder.
func NewHybrid(s store.Store, embedder embeddings.Embedder, opts ...Option) *Hybrid {
	h := &Hybrid{
		store:     s,
		embedder:  embedder,
		topK:      defaultTopK,
		rrfK:      defaultRRFK,
		workers:   defaultWorkers,
		attempts:  defaultAttempts,
		baseDelay: time.Second,
		logger:    log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Query is one variation of the user's question with its language label.
type Query struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type searchJob struct {
	query  Query
	kind   string // "dense" or "lexical"
	tag    string // "semantic", "keyword" or "entity"
	filter store.Filter
	limit  int
}

// Retrieve runs dense and lexical searches for every query variation and
// returns up to topK fused documents. When the filter carries an entity
// predicate, a second pass scoped to entity-bearing categories runs at half
// the budget and its results are tagged search_type "entity". Zero results
// are not an error; callers decide whether to fall back.
func (h *Hybrid) Retrieve(ctx context.Context, queries []Query, filter store.Filter) ([]store.Document, error) {
	if len(queries) == 0 {
		return nil, nil
	}

	jobs := make([]searchJob, 0, len(queries)*4)
	general := filter
	if filter.Entity != nil {
		general = filter.WithoutEntity()
	}
	for _, q := range queries {
		jobs = append(jobs,
			searchJob{query: q, kind: "dense", tag: "semantic", filter: general, limit: 2 * h.topK},
			searchJob{query: q, kind: "lexical", tag: "keyword", filter: general, limit: 2 * h.topK},
		)
	}
	if filter.Entity != nil {
		entityLimit := h.topK / 2
		if entityLimit < 1 {
			entityLimit = 1
		}
		categories := filter.EntityCategories
		if len(categories) == 0 {
			categories = defaultEntityCategories
		}
		scoped := filter.WithCategories(categories)
		for _, q := range queries {
			jobs = append(jobs,
				searchJob{query: q, kind: "dense", tag: "entity", filter: scoped, limit: entityLimit},
				searchJob{query: q, kind: "lexical", tag: "entity", filter: scoped, limit: entityLimit},
			)
		}
	}

	lists := make([]rankedList, len(jobs))
	errs := make([]error, len(jobs))

	var wg sync.WaitGroup
	sem := make(chan struct{}, h.workers)
	for i, job := range jobs {
		wg.Add(1)
		go func(i int, job searchJob) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			docs, err := h.runJob(ctx, job)
			if err != nil {
				errs[i] = err
				return
			}
			lists[i] = rankedList{searchType: job.tag, docs: docs}
		}(i, job)
	}
	wg.Wait()

	var failed int
	var firstErr error
	for _, err := range errs {
		if err != nil {
			failed++
			if firstErr == nil {
				firstErr = err
			}
			h.logger.Warn("search job failed: %v", err)
		}
	}
	if failed == len(jobs) {
		return nil, fmt.Errorf("all %d searches failed: %w", failed, firstErr)
	}

	contributing := lists[:0:0]
	for _, list := range lists {
		if len(list.docs) > 0 {
			contributing = append(contributing, list)
		}
	}

	docs := fuseRRF(contributing, h.rrfK, h.topK)
	h.logger.Debug("retrieved %d documents from %d searches (%d failed)", len(docs), len(jobs), failed)
	return docs, nil
}

func (h *Hybrid) runJob(ctx context.Context, job searchJob) ([]store.Document, error) {
	if job.kind == "lexical" {
		keywords := ExtractKeywords(job.query.Text, job.query.Language)
		if len(keywords) == 0 {
			return nil, nil
		}
		expr := BuildExpression(keywords)
		return h.withRetry(ctx, func() ([]store.Document, error) {
			return h.store.LexicalSearch(ctx, job.query.Language, expr, job.filter, job.limit)
		})
	}

	embedding, err := h.embedQuery(ctx, job.query.Text)
	if err != nil {
		return nil, err
	}
	return h.withRetry(ctx, func() ([]store.Document, error) {
		return h.store.DenseSearch(ctx, job.query.Language, embedding, job.filter, job.limit)
	})
}

func (h *Hybrid) embedQuery(ctx context.Context, text string) ([]float32, error) {
	embedding, err := h.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return embedding, nil
}

// withRetry runs fn once plus up to attempts retries with exponential
// backoff (base, 2·base, 4·base, …).
func (h *Hybrid) withRetry(ctx context.Context, fn func() ([]store.Document, error)) ([]store.Document, error) {
	var lastErr error
	for attempt := 0; attempt <= h.attempts; attempt++ {
		if attempt > 0 {
			delay := h.baseDelay * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		docs, err := fn()
		if err == nil {
			return docs, nil
		}
		lastErr = err
		h.logger.Debug("search attempt %d failed: %v", attempt+1, err)
	}
	return nil, fmt.Errorf("search failed after %d retries: %w", h.attempts, lastErr)
}
