package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/smallnest/ragflow/log"
	"github.com/smallnest/ragflow/store"
)

const (
	defaultTavilyBaseURL = "https://api.tavily.com/search"
	defaultDailyQuota    = 100
	defaultCacheTTL      = time.Hour
)

// TavilySearch is a WebSearcher backed by the Tavily search API, with a
// daily quota and a per-query result cache.
type TavilySearch struct {
	apiKey     string
	baseURL    string
	depth      string
	httpClient *http.Client
	quota      *QuotaManager
	cache      *resultCache
	logger     log.Logger
}

var _ WebSearcher = (*TavilySearch)(nil)

// TavilyOption configures a TavilySearch.
type TavilyOption func(*TavilySearch)

// WithTavilyBaseURL sets the API endpoint.
func WithTavilyBaseURL(baseURL string) TavilyOption {
	return func(t *TavilySearch) {
		t.baseURL = baseURL
	}
}

// WithTavilyDepth sets the search depth ("basic" or "advanced").
func WithTavilyDepth(depth string) TavilyOption {
	return func(t *TavilySearch) {
		t.depth = depth
	}
}

// WithDailyQuota sets the daily query limit (default 100).
func WithDailyQuota(limit int) TavilyOption {
	return func(t *TavilySearch) {
		t.quota = NewQuotaManager(limit)
	}
}

// WithCacheTTL sets the result cache TTL (default 1 hour).
func WithCacheTTL(ttl time.Duration) TavilyOption {
	return func(t *TavilySearch) {
		t.cache = newResultCache(ttl)
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) TavilyOption {
	return func(t *TavilySearch) {
		t.httpClient = client
	}
}

// WithTavilyLogger sets the tool logger.
func WithTavilyLogger(logger log.Logger) TavilyOption {
	return func(t *TavilySearch) {
		t.logger = logger
	}
}

// NewTavilySearch creates a new Tavily search tool.
// If apiKey is empty, it tries to read from TAVILY_API_KEY environment variable.
func NewTavilySearch(apiKey string, opts ...TavilyOption) (*TavilySearch, error) {
	if apiKey == "" {
		apiKey = os.Getenv("TAVILY_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("TAVILY_API_KEY not set")
	}

	t := &TavilySearch{
		apiKey:     apiKey,
		baseURL:    defaultTavilyBaseURL,
		depth:      "basic",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		quota:      NewQuotaManager(defaultDailyQuota),
		cache:      newResultCache(defaultCacheTTL),
		logger:     log.GetDefaultLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Name returns the name of the tool.
func (t *TavilySearch) Name() string {
	return "Web_Search"
}

// Description returns the description of the tool.
func (t *TavilySearch) Description() string {
	return "Searches the web for current information when local documents are insufficient. " +
		"Input should be a search query."
}

type tavilyRequest struct {
	APIKey      string `json:"api_key"`
	Query       string `json:"query"`
	MaxResults  int    `json:"max_results"`
	SearchDepth string `json:"search_depth"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search implements WebSearcher. Cache hits do not consume quota.
func (t *TavilySearch) Search(ctx context.Context, query string, maxResults int) ([]store.Document, error) {
	if docs, ok := t.cache.get(query); ok {
		t.logger.Debug("web search cache hit for %q (hit rate %.2f)", query, t.cache.hitRate())
		return docs, nil
	}

	if !t.quota.CanQuery() {
		t.logger.Warn("web search quota exhausted")
		return nil, ErrQuotaExhausted
	}

	body, err := json.Marshal(tavilyRequest{
		APIKey:      t.apiKey,
		Query:       query,
		MaxResults:  maxResults,
		SearchDepth: t.depth,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrSearchUnavailable, resp.StatusCode)
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchUnavailable, err)
	}

	t.quota.Increment()

	docs := make([]store.Document, 0, len(parsed.Results))
	for rank, r := range parsed.Results {
		docs = append(docs, webDocument(r.Title, r.URL, r.Content, rank))
	}

	t.cache.set(query, docs)
	t.logger.Info("web search returned %d results (quota remaining: %d)", len(docs), t.quota.Remaining())
	return docs, nil
}

// webDocument converts one search result into a Document. Similarity is
// rank proportional so web results interleave behind strong local matches.
func webDocument(title, url, content string, rank int) store.Document {
	similarity := 0.9 - 0.1*float64(rank)
	if similarity < 0.1 {
		similarity = 0.1
	}
	text := content
	if title != "" {
		text = title + "\n" + content
	}
	return store.Document{
		ID:      "web:" + url,
		Content: text,
		Metadata: store.Metadata{
			Source:   url,
			Category: store.CategoryWeb,
		},
		Similarity: similarity,
		SearchType: "web",
	}
}
