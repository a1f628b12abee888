package crafter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// NewsHook is a recent post from the lead company's blog or news feed,
// used to open the message with something timely.
type NewsHook struct {
	Title       string    `json:"title"`
	Link        string    `json:"link"`
	PublishedAt time.Time `json:"published_at"`
}

// NewsFetcher pulls the most recent item from a company feed.
type NewsFetcher struct {
	parser *gofeed.Parser
	maxAge time.Duration
}

// NewNewsFetcher creates a fetcher. Items older than maxAge are ignored;
// zero defaults to 60 days.
func NewNewsFetcher(maxAge time.Duration) *NewsFetcher {
	if maxAge == 0 {
		maxAge = 60 * 24 * time.Hour
	}
	return &NewsFetcher{parser: gofeed.NewParser(), maxAge: maxAge}
}

// Fetch returns the freshest item from the feed URL, or nil when the
// feed has nothing recent. Feed failures are returned as errors; callers
// treat the hook as best-effort.
func (f *NewsFetcher) Fetch(ctx context.Context, feedURL string) (*NewsHook, error) {
	if strings.TrimSpace(feedURL) == "" {
		return nil, nil
	}

	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	cutoff := time.Now().Add(-f.maxAge)
	var best *gofeed.Item
	var bestTS time.Time
	for _, item := range feed.Items {
		ts := item.PublishedParsed
		if ts == nil {
			ts = item.UpdatedParsed
		}
		if ts == nil || ts.Before(cutoff) {
			continue
		}
		if best == nil || ts.After(bestTS) {
			best, bestTS = item, *ts
		}
	}
	if best == nil {
		return nil, nil
	}

	return &NewsHook{
		Title:       strings.TrimSpace(best.Title),
		Link:        best.Link,
		PublishedAt: bestTS,
	}, nil
}
