package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallnest/ragflow/store"
)

func TestQuotaManagerDailyReset(t *testing.T) {
	q := NewQuotaManager(2)
	current := time.Date(2024, 3, 1, 23, 50, 0, 0, time.UTC)
	q.now = func() time.Time { return current }

	assert.True(t, q.CanQuery())
	q.Increment()
	q.Increment()
	assert.False(t, q.CanQuery())
	assert.Equal(t, 0, q.Remaining())

	// Same day: still exhausted.
	current = current.Add(5 * time.Minute)
	assert.False(t, q.CanQuery())

	// Next UTC day: counter resets.
	current = current.Add(time.Hour)
	assert.True(t, q.CanQuery())
	assert.Equal(t, 2, q.Remaining())
}

func TestResultCacheTTL(t *testing.T) {
	c := newResultCache(time.Hour)
	current := time.Now()
	c.now = func() time.Time { return current }

	docs := []store.Document{{ID: "web:https://example.com"}}
	c.set("Engine Oil", docs)

	got, ok := c.get("engine oil") // keys are case-insensitive
	require.True(t, ok)
	assert.Equal(t, docs, got)

	current = current.Add(time.Hour + time.Second)
	_, ok = c.get("engine oil")
	assert.False(t, ok)

	assert.InDelta(t, 0.5, c.hitRate(), 0.001)
}

func TestResultCacheEvictsOldest(t *testing.T) {
	c := newResultCache(time.Hour)
	current := time.Now()
	c.now = func() time.Time { return current }

	for i := 0; i <= cacheMaxEntries; i++ {
		c.set(fmt.Sprintf("query %d", i), nil)
		current = current.Add(time.Second)
	}

	assert.Len(t, c.entries, cacheMaxEntries)
	_, ok := c.get("query 0")
	assert.False(t, ok)
	_, ok = c.get(fmt.Sprintf("query %d", cacheMaxEntries))
	assert.True(t, ok)
}

func tavilyServer(t *testing.T, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		var req tavilyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-key", req.APIKey)

		resp := tavilyResponse{}
		resp.Results = []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		}{
			{Title: "Oil change intervals", URL: "https://example.com/oil", Content: "Change every 10k km.", Score: 0.92},
			{Title: "Brake fluid", URL: "https://example.com/brake", Content: "Replace every 2 years.", Score: 0.81},
		}
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestTavilySearch(t *testing.T) {
	var calls int
	srv := tavilyServer(t, &calls)
	defer srv.Close()

	search, err := NewTavilySearch("test-key", WithTavilyBaseURL(srv.URL))
	require.NoError(t, err)

	docs, err := search.Search(context.Background(), "oil change interval", 3)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.Equal(t, "web:https://example.com/oil", docs[0].ID)
	assert.Equal(t, "https://example.com/oil", docs[0].Metadata.Source)
	assert.Equal(t, store.CategoryWeb, docs[0].Metadata.Category)
	assert.Equal(t, "web", docs[0].SearchType)
	assert.InDelta(t, 0.9, docs[0].Similarity, 0.001)
	assert.InDelta(t, 0.8, docs[1].Similarity, 0.001)
	assert.Contains(t, docs[0].Content, "Oil change intervals")

	// Cache hit: no second upstream call, quota unchanged.
	remaining := search.quota.Remaining()
	again, err := search.Search(context.Background(), "oil change interval", 3)
	require.NoError(t, err)
	assert.Equal(t, docs, again)
	assert.Equal(t, 1, calls)
	assert.Equal(t, remaining, search.quota.Remaining())
}

func TestTavilySearchQuotaExhausted(t *testing.T) {
	var calls int
	srv := tavilyServer(t, &calls)
	defer srv.Close()

	search, err := NewTavilySearch("test-key", WithTavilyBaseURL(srv.URL), WithDailyQuota(1))
	require.NoError(t, err)

	_, err = search.Search(context.Background(), "first", 3)
	require.NoError(t, err)

	_, err = search.Search(context.Background(), "second", 3)
	assert.ErrorIs(t, err, ErrQuotaExhausted)
	assert.Equal(t, 1, calls)

	// Cached query still served after quota runs out.
	docs, err := search.Search(context.Background(), "first", 3)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestTavilySearchUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	search, err := NewTavilySearch("test-key", WithTavilyBaseURL(srv.URL))
	require.NoError(t, err)

	_, err = search.Search(context.Background(), "anything", 3)
	assert.ErrorIs(t, err, ErrSearchUnavailable)
	// Failed calls do not consume quota.
	assert.Equal(t, defaultDailyQuota, search.quota.Remaining())
}

func TestTavilySearchMissingKey(t *testing.T) {
	t.Setenv("TAVILY_API_KEY", "")
	_, err := NewTavilySearch("")
	assert.Error(t, err)
}

func TestWebDocumentSimilarityFloor(t *testing.T) {
	doc := webDocument("t", "https://example.com", "c", 15)
	assert.InDelta(t, 0.1, doc.Similarity, 0.001)
}

func TestPageFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><script>var x=1;</script><style>p{}</style></head>
<body><nav>menu</nav><main><h1>Manual</h1><p>Check oil level monthly.</p></main><footer>legal</footer></body></html>`)
	}))
	defer srv.Close()

	f := NewPageFetcher()
	text, err := f.FetchText(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, text, "Manual")
	assert.Contains(t, text, "Check oil level monthly.")
	assert.NotContains(t, text, "menu")
	assert.NotContains(t, text, "var x=1")
}

func TestPageFetcherBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewPageFetcher()
	_, err := f.FetchText(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrSearchUnavailable))
}
