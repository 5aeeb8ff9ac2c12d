package tool

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// PageFetcher extracts readable text from a web page. Used to enrich web
// search results whose snippets are too short to synthesize from.
type PageFetcher struct {
	httpClient *http.Client
	sanitizer  *bluemonday.Policy
	maxBytes   int
}

// NewPageFetcher creates a fetcher with sane limits.
func NewPageFetcher() *PageFetcher {
	return &PageFetcher{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		sanitizer:  bluemonday.StrictPolicy(),
		maxBytes:   1 << 20, // 1 MiB cap on fetched bodies
	}
}

// FetchText downloads a page and returns its main textual content with
// markup, scripts and boilerplate stripped.
func (f *PageFetcher) FetchText(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(http.MaxBytesReader(nil, resp.Body, int64(f.maxBytes)))
	if err != nil {
		return "", fmt.Errorf("failed to parse page: %w", err)
	}

	doc.Find("script, style, nav, header, footer, noscript, iframe").Remove()

	var sb strings.Builder
	doc.Find("article, main, p, li, h1, h2, h3, td").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text != "" {
			sb.WriteString(text)
			sb.WriteByte('\n')
		}
	})

	text := sb.String()
	if text == "" {
		text = strings.TrimSpace(doc.Find("body").Text())
	}

	return strings.TrimSpace(f.sanitizer.Sanitize(text)), nil
}
