package search

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"digestbot/internal/config"
	"digestbot/internal/llm"
	"digestbot/internal/model"
)

var fixedNow = time.Date(2024, 5, 10, 6, 30, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockTransport struct {
	body       string
	statusCode int
	err        error
	lastReq    *http.Request
}

func (m *mockTransport) Do(req *http.Request) (*http.Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

const newsBody = `{
  "news_results": [
    {"title": "Agents learn to plan", "snippet": "A new paper.", "source": {"name": "AI Daily"}, "date": "05/09/2024, 07:00 AM, +0000 UTC", "link": "https://a.example.com/1"},
    {"title": "Toolformer 2", "snippet": "Tools.", "source": "ML Weekly", "date": "3 hours ago", "link": "https://b.example.com/2"},
    {"title": "", "snippet": "dropped"},
    {"title": "Undated", "snippet": "No date.", "source": "Blog", "date": "sometime", "link": "https://c.example.com/3"}
  ]
}`

func TestSerpAPISearch(t *testing.T) {
	transport := &mockTransport{body: newsBody, statusCode: 200}
	s := NewSerpAPI(transport, config.SearchConfig{
		Endpoint:        "https://serpapi.example.com/search.json",
		Engine:          "google_news",
		ResultsPerQuery: 7,
		Params:          map[string]string{"gl": "us", "engine": "ignored"},
		APIKey:          "serp-key",
	})
	s.now = func() time.Time { return fixedNow }

	got, err := s.Search(context.Background(), "ai agents")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := time.Date(2024, 5, 9, 7, 0, 0, 0, time.UTC)
	second := fixedNow.Add(-3 * time.Hour)
	want := []model.SearchResult{
		{Title: "Agents learn to plan", Snippet: "A new paper.", Source: "AI Daily", PublishedDate: &first, Link: "https://a.example.com/1", FetchedAt: fixedNow},
		{Title: "Toolformer 2", Snippet: "Tools.", Source: "ML Weekly", PublishedDate: &second, Link: "https://b.example.com/2", FetchedAt: fixedNow},
		{Title: "Undated", Snippet: "No date.", Source: "Blog", Link: "https://c.example.com/3", FetchedAt: fixedNow},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}

	q := transport.lastReq.URL.Query()
	wantParams := map[string]string{"engine": "google_news", "q": "ai agents", "num": "7", "api_key": "serp-key", "gl": "us"}
	for k, v := range wantParams {
		if diff := cmp.Diff(v, q.Get(k)); diff != "" {
			t.Errorf("param %s mismatch (-want +got):\n%s", k, diff)
		}
	}
}

func TestSerpAPISearchErrors(t *testing.T) {
	tests := []struct {
		name      string
		transport *mockTransport
	}{
		{name: "network", transport: &mockTransport{err: io.ErrUnexpectedEOF}},
		{name: "status", transport: &mockTransport{body: "{}", statusCode: 401}},
		{name: "invalid json", transport: &mockTransport{body: "<html>", statusCode: 200}},
		{name: "api error", transport: &mockTransport{body: `{"error": "Invalid API key"}`, statusCode: 200}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSerpAPI(tt.transport, config.SearchConfig{Endpoint: "https://serpapi.example.com", Engine: "google_news"})
			if _, err := s.Search(context.Background(), "q"); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want *time.Time
	}{
		{in: "", want: nil},
		{in: "yesterday-ish", want: nil},
		{in: "2024-05-01T10:00:00Z", want: model.Ptr(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))},
		{in: "2024-05-01T12:00:00+02:00", want: model.Ptr(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))},
		{in: "2024-05-01", want: model.Ptr(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))},
		{in: "May 1, 2024", want: model.Ptr(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))},
		{in: "3 hours ago", want: model.Ptr(fixedNow.Add(-3 * time.Hour))},
		{in: "1 day ago", want: model.Ptr(fixedNow.Add(-24 * time.Hour))},
		{in: "2 Weeks ago", want: model.Ptr(fixedNow.Add(-14 * 24 * time.Hour))},
		{in: "15 mins ago", want: model.Ptr(fixedNow.Add(-15 * time.Minute))},
		{in: "many days ago", want: nil},
		{in: "3 fortnights ago", want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ParseDate(tt.in, fixedNow)); diff != "" {
				t.Errorf("ParseDate mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

type fakeSearcher struct {
	results map[string][]model.SearchResult
	fail    map[string]bool
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]model.SearchResult, error) {
	f.queries = append(f.queries, query)
	if f.fail[query] {
		return nil, errors.New("search backend down")
	}
	return f.results[query], nil
}

type fakeStore struct {
	saved     []model.SearchResult
	summaries []string
	saveErr   error
	sumErr    error
}

func (f *fakeStore) SaveSearchResults(_ context.Context, results []model.SearchResult) (int, error) {
	if f.saveErr != nil {
		return 0, f.saveErr
	}
	f.saved = append(f.saved, results...)
	return len(results), nil
}

func (f *fakeStore) SaveSummary(_ context.Context, text string, at time.Time) (*model.SearchSummary, error) {
	if f.sumErr != nil {
		return nil, f.sumErr
	}
	f.summaries = append(f.summaries, text)
	return &model.SearchSummary{ID: int64(len(f.summaries)), Text: text, CreatedAt: at}, nil
}

type fakeCompleter struct {
	reply    string
	err      error
	messages [][]llm.Message
}

func (f *fakeCompleter) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.messages = append(f.messages, messages)
	return f.reply, f.err
}

func hits(prefix string, n int) []model.SearchResult {
	out := make([]model.SearchResult, n)
	for i := range out {
		out[i] = model.SearchResult{Title: prefix + string(rune('a'+i)), Snippet: "s", Source: "src"}
	}
	return out
}

func searchConfig(limit int) config.SearchConfig {
	return config.SearchConfig{
		MaxResultsForSummary: limit,
		SystemMessage:        "sys",
		SummaryPrompt:        "Q={query}\n{content_text}",
	}
}

func titles(rs []model.SearchResult) []string {
	var out []string
	for _, r := range rs {
		out = append(out, r.Title)
	}
	return out
}

func TestCycleRun(t *testing.T) {
	searcher := &fakeSearcher{
		results: map[string][]model.SearchResult{"q1": hits("one-", 2), "q3": hits("three-", 2)},
		fail:    map[string]bool{"q2": true},
	}
	store := &fakeStore{}
	llmc := &fakeCompleter{reply: "  Agents are everywhere.  "}
	c := NewCycle(searcher, store, llmc, searchConfig(3), discardLogger())
	c.now = func() time.Time { return fixedNow }

	text, ok, err := c.Run(context.Background(), []string{"q1", "q2", "q3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected summary")
	}
	if diff := cmp.Diff("Agents are everywhere.", text); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"q1", "q2", "q3"}, searcher.queries); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"one-a", "one-b", "three-a", "three-b"}, titles(store.saved)); diff != "" {
		t.Errorf("saved results mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Agents are everywhere."}, store.summaries); diff != "" {
		t.Errorf("summaries mismatch (-want +got):\n%s", diff)
	}

	if len(llmc.messages) != 1 {
		t.Fatalf("expected one summary call, got %d", len(llmc.messages))
	}
	prompt := llmc.messages[0][1].Content
	wantPrompt := "Q=q1 | q2 | q3\n" + FormatResults([]model.SearchResult{
		{Title: "one-a", Snippet: "s", Source: "src"},
		{Title: "one-b", Snippet: "s", Source: "src"},
		{Title: "three-a", Snippet: "s", Source: "src"},
	})
	if diff := cmp.Diff(wantPrompt, prompt); diff != "" {
		t.Errorf("prompt mismatch (-want +got):\n%s", diff)
	}
}

func TestCycleRunAborts(t *testing.T) {
	tests := []struct {
		name      string
		searcher  *fakeSearcher
		llm       *fakeCompleter
		wantCalls int
	}{
		{
			name:     "no results",
			searcher: &fakeSearcher{fail: map[string]bool{"q1": true}},
			llm:      &fakeCompleter{reply: "unused"},
		},
		{
			name:      "summary error",
			searcher:  &fakeSearcher{results: map[string][]model.SearchResult{"q1": hits("x", 1)}},
			llm:       &fakeCompleter{err: errors.New("timeout")},
			wantCalls: 1,
		},
		{
			name:      "blank summary",
			searcher:  &fakeSearcher{results: map[string][]model.SearchResult{"q1": hits("x", 1)}},
			llm:       &fakeCompleter{reply: " \n "},
			wantCalls: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			c := NewCycle(tt.searcher, store, tt.llm, searchConfig(20), discardLogger())
			text, ok, err := c.Run(context.Background(), []string{"q1"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ok || text != "" {
				t.Errorf("expected no summary, got %q", text)
			}
			if len(store.summaries) != 0 {
				t.Errorf("expected nothing persisted, got %v", store.summaries)
			}
			if diff := cmp.Diff(tt.wantCalls, len(tt.llm.messages)); diff != "" {
				t.Errorf("llm calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCycleRunResultSaveFailureContinues(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]model.SearchResult{"q": hits("x", 2)}}
	store := &fakeStore{saveErr: errors.New("disk full")}
	c := NewCycle(searcher, store, &fakeCompleter{reply: "ok"}, searchConfig(20), discardLogger())

	_, ok, err := c.Run(context.Background(), []string{"q"})
	if err != nil || !ok {
		t.Fatalf("expected summary despite result save failure, ok=%v err=%v", ok, err)
	}
}

func TestCycleRunSummarySaveFailure(t *testing.T) {
	searcher := &fakeSearcher{results: map[string][]model.SearchResult{"q": hits("x", 1)}}
	store := &fakeStore{sumErr: errors.New("locked")}
	c := NewCycle(searcher, store, &fakeCompleter{reply: "ok"}, searchConfig(20), discardLogger())

	_, ok, err := c.Run(context.Background(), []string{"q"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if ok {
		t.Error("expected ok=false on save failure")
	}
}

func TestFormatResults(t *testing.T) {
	got := FormatResults([]model.SearchResult{
		{Title: "A", Snippet: "first", Source: "S1"},
		{Title: "B", Snippet: "second", Source: "S2"},
	})
	want := strings.Join([]string{
		"1. A", "   first", "   Source: S1", "",
		"2. B", "   second", "   Source: S2", "",
	}, "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatResults mismatch (-want +got):\n%s", diff)
	}
}
