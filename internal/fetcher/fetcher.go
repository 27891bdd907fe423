// Package fetcher downloads RSS/Atom feeds and turns their entries into
// articles.
package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"digestbot/internal/filter"
	"digestbot/internal/model"
)

const maxBodySize = 5 * 1024 * 1024

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses RSS feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient, log *slog.Logger) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
		log:     log,
		now:     time.Now,
	}
}

// Fetch downloads and parses an RSS feed from the given URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "DigestBot/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	parser := gofeed.NewParser()
	feed, err := parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// FetchAll collects articles from every enabled source. A source that
// cannot be fetched or parsed contributes no articles and is logged.
func (f *Fetcher) FetchAll(ctx context.Context, sources []model.FeedSource) []model.Article {
	var all []model.Article
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		if !src.Enabled {
			continue
		}
		if src.Type != model.SourceRSS || src.URL == "" {
			f.log.Warn("unsupported source type or missing url", "source", src.Name, "type", src.Type)
			continue
		}

		rules, err := filter.ParseRules(src.Include, src.Exclude)
		if err != nil {
			f.log.Warn("invalid source rules, fetching unfiltered", "source", src.Name, "error", err)
			rules = nil
		}

		feed, err := f.Fetch(ctx, src.URL)
		if err != nil {
			f.log.Warn("fetch feed", "source", src.Name, "url", src.URL, "error", err)
			continue
		}

		articles := ToArticles(src.Name, feed.Items, rules, f.now().UTC())
		f.log.Info("fetched feed", "source", src.Name, "entries", len(feed.Items), "kept", len(articles))
		all = append(all, articles...)
	}
	f.log.Info("collected articles", "count", len(all))
	return all
}

// ToArticles converts feed items that pass rules into articles.
func ToArticles(source string, items []*gofeed.Item, rules []filter.Rule, fetchedAt time.Time) []model.Article {
	var out []model.Article
	for _, item := range items {
		if item == nil {
			continue
		}
		a := ToArticle(source, item, fetchedAt)
		if !filter.Match(filter.Item{Title: a.Title, Summary: a.Summary}, rules) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ToArticle converts a single feed item.
func ToArticle(source string, item *gofeed.Item, fetchedAt time.Time) model.Article {
	a := model.Article{
		GUID:      ItemGUID(item),
		Source:    source,
		Title:     strings.TrimSpace(item.Title),
		Link:      strings.TrimSpace(item.Link),
		Summary:   PlainText(item.Description),
		FetchedAt: fetchedAt,
	}
	if a.Summary == "" {
		a.Summary = PlainText(item.Content)
	}
	if item.Author != nil {
		a.Author = strings.TrimSpace(item.Author.Name)
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		a.Author = strings.TrimSpace(item.Authors[0].Name)
	}
	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" {
			a.Categories = append(a.Categories, c)
		}
	}
	switch {
	case item.PublishedParsed != nil:
		t := item.PublishedParsed.UTC()
		a.PublishedAt = &t
	case item.UpdatedParsed != nil:
		t := item.UpdatedParsed.UTC()
		a.PublishedAt = &t
	}
	return a
}

// ItemGUID returns the GUID for an RSS item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// PlainText strips markup from a feed summary and collapses whitespace.
func PlainText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	text := s
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			text = doc.Text()
		}
	}
	return strings.Join(strings.Fields(text), " ")
}
