package research

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
)

// HeadlineSource returns recent headlines about a company.
type HeadlineSource interface {
	Headlines(ctx context.Context, company string, max int) ([]string, error)
}

// FeedHeadlines reads an RSS or Atom search feed. The URL template's
// "{query}" placeholder is replaced with the escaped company name, e.g.
// "https://news.google.com/rss/search?q={query}&hl=ko".
type FeedHeadlines struct {
	urlTemplate string
	parser      *gofeed.Parser
	timeout     time.Duration
}

// NewFeedHeadlines creates a feed-backed HeadlineSource.
func NewFeedHeadlines(urlTemplate string) *FeedHeadlines {
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: 10 * time.Second}
	return &FeedHeadlines{urlTemplate: urlTemplate, parser: p, timeout: 10 * time.Second}
}

// Headlines implements HeadlineSource.
func (f *FeedHeadlines) Headlines(ctx context.Context, company string, max int) ([]string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	feedURL := strings.ReplaceAll(f.urlTemplate, "{query}", url.QueryEscape(company))
	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, eris.Wrap(err, "research: fetch headline feed")
	}

	count := min(len(feed.Items), max)
	out := make([]string, 0, count)
	for _, item := range feed.Items {
		if len(out) == count {
			break
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		if item.Link != "" {
			title += " (" + item.Link + ")"
		}
		out = append(out, title)
	}
	return out, nil
}
