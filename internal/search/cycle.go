package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"digestbot/internal/config"
	"digestbot/internal/llm"
	"digestbot/internal/model"
)

// QuerySeparator joins the configured queries into the summary context.
const QuerySeparator = " | "

// Completer produces free text from a chat prompt.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Store persists search hits and summaries.
type Store interface {
	SaveSearchResults(ctx context.Context, results []model.SearchResult) (int, error)
	SaveSummary(ctx context.Context, text string, at time.Time) (*model.SearchSummary, error)
}

// Cycle searches every configured query and stores one combined summary.
type Cycle struct {
	searcher Searcher
	store    Store
	llm      Completer
	cfg      config.SearchConfig
	log      *slog.Logger
	now      func() time.Time
}

// NewCycle creates a search cycle.
func NewCycle(searcher Searcher, store Store, completer Completer, cfg config.SearchConfig, log *slog.Logger) *Cycle {
	return &Cycle{
		searcher: searcher,
		store:    store,
		llm:      completer,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// SetClock overrides the clock used for summary timestamps.
func (c *Cycle) SetClock(now func() time.Time) {
	c.now = now
}

// Run executes the cycle. It reports false when no summary was produced:
// no query returned anything, or the summary call failed or came back
// empty. Only a failure to persist the produced summary is an error.
func (c *Cycle) Run(ctx context.Context, queries []string) (string, bool, error) {
	results := c.Collect(ctx, queries)
	text, ok := c.Summarize(ctx, queries, results)
	if !ok {
		return "", false, nil
	}
	if _, err := c.Save(ctx, text); err != nil {
		return "", false, err
	}
	return text, true, nil
}

// Collect runs every query in order and persists the combined hits. A
// failing query contributes no results.
func (c *Cycle) Collect(ctx context.Context, queries []string) []model.SearchResult {
	var all []model.SearchResult
	for _, q := range queries {
		results, err := c.searcher.Search(ctx, q)
		if err != nil {
			c.log.Warn("search query failed", "query", q, "error", err)
			continue
		}
		c.log.Info("search query done", "query", q, "results", len(results))
		all = append(all, results...)
	}
	if len(all) == 0 {
		return nil
	}

	if added, err := c.store.SaveSearchResults(ctx, all); err != nil {
		c.log.Warn("save search results", "error", err)
	} else {
		c.log.Info("saved search results", "total", len(all), "new", added)
	}
	return all
}

// Summarize condenses the first MaxResultsForSummary results into one
// summary. It reports false when there is nothing to summarize or the
// model gave no usable answer.
func (c *Cycle) Summarize(ctx context.Context, queries []string, results []model.SearchResult) (string, bool) {
	if len(results) == 0 {
		c.log.Info("no search results, skipping summary", "queries", len(queries))
		return "", false
	}

	limit := c.cfg.MaxResultsForSummary
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}
	prompt := llm.Render(c.cfg.SummaryPrompt, map[string]string{
		"query":        strings.Join(queries, QuerySeparator),
		"content_text": FormatResults(results[:limit]),
	})

	text, err := c.llm.Complete(ctx, []llm.Message{llm.System(c.cfg.SystemMessage), llm.User(prompt)})
	if err != nil {
		c.log.Warn("summarize search results", "error", err)
		return "", false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		c.log.Warn("summarize search results: empty summary")
		return "", false
	}
	return text, true
}

// Save persists a summary with the current time.
func (c *Cycle) Save(ctx context.Context, text string) (*model.SearchSummary, error) {
	saved, err := c.store.SaveSummary(ctx, text, c.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("save summary: %w", err)
	}
	c.log.Info("saved search summary", "id", saved.ID, "length", len(text))
	return saved, nil
}

// FormatResults renders results as the numbered content block of the
// summary prompt.
func FormatResults(results []model.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(r.Title)
		b.WriteString("\n   ")
		b.WriteString(r.Snippet)
		b.WriteString("\n   Source: ")
		b.WriteString(r.Source)
		b.WriteString("\n")
	}
	return b.String()
}
