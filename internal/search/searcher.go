// Package search runs the daily web search and condenses the hits into
// a topical summary.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"digestbot/internal/config"
	"digestbot/internal/model"
)

// Searcher runs one web search query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SerpAPI searches news through serpapi.com.
type SerpAPI struct {
	client  HTTPClient
	cfg     config.SearchConfig
	timeout time.Duration
	now     func() time.Time
}

// NewSerpAPI creates a SerpAPI searcher.
func NewSerpAPI(client HTTPClient, cfg config.SearchConfig) *SerpAPI {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &SerpAPI{client: client, cfg: cfg, timeout: timeout, now: time.Now}
}

type serpResponse struct {
	Error       string       `json:"error"`
	NewsResults []serpResult `json:"news_results"`
}

type serpResult struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
	Date    string `json:"date"`
	// Source is a plain string for some engines and an object for google_news.
	Source json.RawMessage `json:"source"`
}

// Search runs query and returns its news results in their natural order.
func (s *SerpAPI) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	q := url.Values{}
	for k, v := range s.cfg.Params {
		q.Set(k, v)
	}
	q.Set("engine", s.cfg.Engine)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(s.cfg.ResultsPerQuery))
	q.Set("api_key", s.cfg.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out serpResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("serpapi: %s", out.Error)
	}

	now := s.now().UTC()
	results := make([]model.SearchResult, 0, len(out.NewsResults))
	for _, r := range out.NewsResults {
		if strings.TrimSpace(r.Title) == "" {
			continue
		}
		results = append(results, model.SearchResult{
			Title:         strings.TrimSpace(r.Title),
			Snippet:       strings.TrimSpace(r.Snippet),
			Source:        sourceName(r.Source),
			PublishedDate: ParseDate(r.Date, now),
			Link:          strings.TrimSpace(r.Link),
			FetchedAt:     now,
		})
	}
	return results, nil
}

func sourceName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return strings.TrimSpace(name)
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.Name)
	}
	return ""
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006, 03:04 PM, -0700 MST",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	time.RFC1123Z,
	time.RFC1123,
}

var relativeUnits = map[string]time.Duration{
	"minute": time.Minute,
	"min":    time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
	"month":  30 * 24 * time.Hour,
	"year":   365 * 24 * time.Hour,
}

// ParseDate reads the date strings search engines return: absolute
// timestamps in a handful of layouts and relative forms such as
// "3 hours ago". It returns nil for anything it does not understand.
func ParseDate(s string, now time.Time) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}

	fields := strings.Fields(strings.ToLower(s))
	if len(fields) != 3 || fields[2] != "ago" {
		return nil
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return nil
	}
	unit, ok := relativeUnits[strings.TrimSuffix(fields[1], "s")]
	if !ok {
		return nil
	}
	t := now.UTC().Add(-time.Duration(n) * unit)
	return &t
}
