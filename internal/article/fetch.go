// Package article fetches a news article and rewrites a draft around it.
package article

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/jina"
)

// Page is the readable text of one article.
type Page struct {
	URL    string
	Title  string
	Text   string
	Source string
	Tokens int
}

// Fetcher retrieves the readable text of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Page, error)
}

// JinaFetcher reads pages through Jina Reader.
type JinaFetcher struct {
	client jina.Client
}

// NewJinaFetcher wraps a Jina client.
func NewJinaFetcher(client jina.Client) *JinaFetcher {
	return &JinaFetcher{client: client}
}

// Fetch implements Fetcher.
func (f *JinaFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	resp, err := f.client.Read(ctx, rawURL)
	if err != nil {
		return Page{}, eris.Wrap(err, "article: jina read")
	}
	return Page{
		URL:    rawURL,
		Title:  resp.Data.Title,
		Text:   resp.Data.Content,
		Source: "jina",
		Tokens: resp.Data.Usage.Tokens,
	}, nil
}

// ReadabilityFetcher downloads the page and extracts the main text locally.
type ReadabilityFetcher struct {
	http *http.Client
}

// NewReadabilityFetcher creates a fetcher. A nil client uses a 30s timeout.
func NewReadabilityFetcher(hc *http.Client) *ReadabilityFetcher {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &ReadabilityFetcher{http: hc}
}

// Fetch implements Fetcher.
func (f *ReadabilityFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, eris.Wrap(err, "article: parse url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, eris.Wrap(err, "article: create request")
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; outreach-cli)")

	resp, err := f.http.Do(req)
	if err != nil {
		return Page{}, eris.Wrap(err, "article: fetch")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("article: fetch %s: status %d", rawURL, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return Page{}, resilience.NewTransientError(err, resp.StatusCode)
		}
		return Page{}, err
	}

	art, err := readability.FromReader(resp.Body, u)
	if err != nil {
		return Page{}, eris.Wrap(err, "article: extract")
	}
	return Page{
		URL:    rawURL,
		Title:  art.Title,
		Text:   strings.TrimSpace(art.TextContent),
		Source: "readability",
	}, nil
}

// Chain tries each fetcher in order and returns the first page with text.
type Chain []Fetcher

// Fetch implements Fetcher.
func (c Chain) Fetch(ctx context.Context, rawURL string) (Page, error) {
	var lastErr error
	for _, f := range c {
		page, err := f.Fetch(ctx, rawURL)
		if err == nil && strings.TrimSpace(page.Text) != "" {
			return page, nil
		}
		if err == nil {
			err = eris.Errorf("article: %s returned no text", page.Source)
		}
		if ctx.Err() != nil {
			return Page{}, err
		}
		zap.L().Debug("article: fetcher failed, trying next", zap.String("url", rawURL), zap.Error(err))
		lastErr = err
	}
	if lastErr == nil {
		lastErr = eris.New("article: no fetchers configured")
	}
	return Page{}, lastErr
}
