package scoring

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"digestbot/internal/config"
	"digestbot/internal/llm"
	"digestbot/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeModel answers by article title found in the prompt.
type fakeModel struct {
	answers map[string]llm.ScoreResult
	fail    map[string]bool
	prompts []string
}

func (f *fakeModel) Score(_ context.Context, messages []llm.Message) (llm.ScoreResult, error) {
	prompt := messages[len(messages)-1].Content
	f.prompts = append(f.prompts, prompt)
	for title, res := range f.answers {
		if strings.Contains(prompt, "Title: "+title+"\n") {
			return res, nil
		}
	}
	for title := range f.fail {
		if strings.Contains(prompt, "Title: "+title+"\n") {
			return llm.ScoreResult{}, errors.New("invalid response")
		}
	}
	return llm.ScoreResult{}, errors.New("unexpected prompt")
}

var testConfig = config.ScoringConfig{
	SystemMessage: "rate",
	Prompt:        "Context: {search_summary}\nTitle: {title}\nSummary: {summary}\nSource: {source}",
}

func TestScoreSkipsAlreadyScored(t *testing.T) {
	m := &fakeModel{answers: map[string]llm.ScoreResult{"B": {Score: 90, Reasoning: "on topic"}}}
	s := New(m, testConfig, discardLogger())

	in := []model.Article{
		{GUID: "a", Title: "A", RelevanceScore: model.Ptr(70), Reasoning: model.Ptr("earlier run")},
		{GUID: "b", Title: "B"},
	}
	got := s.Score(context.Background(), in, "agents summary")

	want := []model.Article{
		{GUID: "a", Title: "A", RelevanceScore: model.Ptr(70), Reasoning: model.Ptr("earlier run")},
		{GUID: "b", Title: "B", RelevanceScore: model.Ptr(90), Reasoning: model.Ptr("on topic")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Score mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(1, len(m.prompts)); diff != "" {
		t.Fatalf("model calls mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(m.prompts[0], "Context: agents summary\n") {
		t.Errorf("expected summary in prompt, got %q", m.prompts[0])
	}
	if in[1].RelevanceScore != nil {
		t.Error("input slice was modified")
	}
}

func TestScoreDropRationaleOnSkip(t *testing.T) {
	cfg := testConfig
	cfg.DropRationaleOnSkip = true
	s := New(&fakeModel{}, cfg, discardLogger())

	got := s.Score(context.Background(), []model.Article{
		{GUID: "a", Title: "A", RelevanceScore: model.Ptr(70), Reasoning: model.Ptr("earlier run")},
	}, "")

	want := []model.Article{{GUID: "a", Title: "A", RelevanceScore: model.Ptr(70)}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Score mismatch (-want +got):\n%s", diff)
	}
}

func TestScoreFailureLeavesUnscored(t *testing.T) {
	m := &fakeModel{
		answers: map[string]llm.ScoreResult{"Good": {Score: 85, Reasoning: "r"}},
		fail:    map[string]bool{"Bad": true},
	}
	s := New(m, testConfig, discardLogger())

	got := s.Score(context.Background(), []model.Article{
		{GUID: "1", Title: "Bad"},
		{GUID: "2", Title: "Good"},
	}, "ctx")

	want := []model.Article{
		{GUID: "1", Title: "Bad"},
		{GUID: "2", Title: "Good", RelevanceScore: model.Ptr(85), Reasoning: model.Ptr("r")},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Score mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(2, len(m.prompts)); diff != "" {
		t.Errorf("model calls mismatch (-want +got):\n%s", diff)
	}
}

func TestScoreEmpty(t *testing.T) {
	m := &fakeModel{}
	got := New(m, testConfig, discardLogger()).Score(context.Background(), nil, "")
	if len(got) != 0 || len(m.prompts) != 0 {
		t.Errorf("expected no work, got %d articles and %d calls", len(got), len(m.prompts))
	}
}
