// Package scoring rates fresh articles against the current topic summary.
package scoring

import (
	"context"
	"log/slog"

	"digestbot/internal/config"
	"digestbot/internal/llm"
	"digestbot/internal/model"
)

// Model returns a structured relevance verdict for one prompt.
type Model interface {
	Score(ctx context.Context, messages []llm.Message) (llm.ScoreResult, error)
}

// Scorer assigns relevance scores to articles.
type Scorer struct {
	model Model
	cfg   config.ScoringConfig
	log   *slog.Logger
}

// New creates a Scorer.
func New(m Model, cfg config.ScoringConfig, log *slog.Logger) *Scorer {
	return &Scorer{model: m, cfg: cfg, log: log}
}

// Score returns a copy of articles, in the same order, with a score on
// every article the model could rate. Articles scored on an earlier run
// are not sent to the model again. A failed call leaves that article
// without score and reasoning.
func (s *Scorer) Score(ctx context.Context, articles []model.Article, summary string) []model.Article {
	out := make([]model.Article, len(articles))
	var rated, skipped, failed int

	for i, a := range articles {
		out[i] = a
		if a.Scored() {
			skipped++
			if s.cfg.DropRationaleOnSkip {
				out[i].Reasoning = nil
			}
			continue
		}

		res, err := s.model.Score(ctx, s.messages(a, summary))
		if err != nil {
			failed++
			out[i].RelevanceScore = nil
			out[i].Reasoning = nil
			s.log.Warn("score article", "guid", a.GUID, "title", a.Title, "error", err)
			continue
		}
		rated++
		out[i].RelevanceScore = model.Ptr(res.Score)
		out[i].Reasoning = model.Ptr(res.Reasoning)
		s.log.Debug("scored article", "guid", a.GUID, "score", res.Score)
	}

	s.log.Info("scored articles", "total", len(articles), "rated", rated, "skipped", skipped, "failed", failed)
	return out
}

func (s *Scorer) messages(a model.Article, summary string) []llm.Message {
	prompt := llm.Render(s.cfg.Prompt, map[string]string{
		"search_summary": summary,
		"title":          a.Title,
		"summary":        a.Summary,
		"source":         a.Source,
		"link":           a.Link,
	})
	return []llm.Message{llm.System(s.cfg.SystemMessage), llm.User(prompt)}
}
