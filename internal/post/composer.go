// Package post turns the selected articles into the digest text.
package post

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"digestbot/internal/config"
	"digestbot/internal/llm"
	"digestbot/internal/model"
)

// Completer produces free text from a chat prompt.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Composer writes digest posts.
type Composer struct {
	llm       Completer
	cfg       config.PostConfig
	parseMode string
	log       *slog.Logger
}

// NewComposer creates a Composer that formats fallbacks for parseMode.
func NewComposer(completer Completer, cfg config.PostConfig, parseMode string, log *slog.Logger) *Composer {
	return &Composer{llm: completer, cfg: cfg, parseMode: parseMode, log: log}
}

// Compose asks the model for a post and falls back to the fixed layout
// when the call fails or returns nothing. It always returns text.
func (c *Composer) Compose(ctx context.Context, articles []model.Article) string {
	prompt := llm.Render(c.cfg.Prompt, map[string]string{
		"articles_text": FormatArticles(articles, c.cfg.MaxArticlesInPost),
		"article_count": strconv.Itoa(len(articles)),
	})

	text, err := c.llm.Complete(ctx, []llm.Message{llm.System(c.cfg.SystemMessage), llm.User(prompt)})
	if err == nil {
		text = strings.TrimSpace(text)
	}
	if err != nil || text == "" {
		c.log.Warn("compose post, using fallback", "articles", len(articles), "error", err)
		return Fallback(articles, c.parseMode)
	}

	c.log.Info("composed post", "articles", len(articles), "length", len(text))
	return text
}
