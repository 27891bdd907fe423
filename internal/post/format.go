package post

import (
	"html"
	"strconv"
	"strings"

	"digestbot/internal/config"
	"digestbot/internal/model"
)

const (
	fallbackArticles = 3
	summaryPreview   = 200
	reasoningPreview = 100
	publishedLayout  = "2006-01-02 15:04"
)

// FormatArticles renders at most limit articles as the numbered block the
// post prompt receives. Empty fields are left out.
func FormatArticles(articles []model.Article, limit int) string {
	if limit > 0 && len(articles) > limit {
		articles = articles[:limit]
	}

	blocks := make([]string, 0, len(articles))
	for i, a := range articles {
		var b strings.Builder
		b.WriteString(strconv.Itoa(i+1) + ". " + a.Title)
		if a.Link != "" {
			b.WriteString("\n   Link: " + a.Link)
		}
		if a.Summary != "" {
			b.WriteString("\n   Summary: " + preview(a.Summary, summaryPreview))
		}
		if a.Reasoning != nil && *a.Reasoning != "" {
			b.WriteString("\n   🎯 WHY THIS MATTERS: " + *a.Reasoning)
		}
		if a.Source != "" {
			b.WriteString("\n   Source: " + a.Source)
		}
		if a.PublishedAt != nil {
			b.WriteString("\n   Published: " + a.PublishedAt.UTC().Format(publishedLayout))
		}
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n\n")
}

// Fallback builds the fixed-layout digest used when the model cannot
// write one. Every piece of article text is escaped for mode.
func Fallback(articles []model.Article, mode string) string {
	if mode == config.ParseModeMarkdownV2 {
		return fallbackMarkdown(articles)
	}
	return fallbackHTML(articles)
}

func fallbackHTML(articles []model.Article) string {
	lines := []string{
		"<b>🤖 AI Agent Digest Update</b>",
		"",
		"📰 <i>" + strconv.Itoa(len(articles)) + " new articles about AI agents and autonomous systems:</i>",
		"",
	}
	for i, a := range head(articles) {
		n := strconv.Itoa(i + 1)
		title := html.EscapeString(a.Title)
		if a.Link != "" {
			lines = append(lines, n+". <a href=\""+html.EscapeString(a.Link)+"\">"+title+"</a>")
		} else {
			lines = append(lines, n+". "+title)
		}
		if a.Source != "" {
			lines = append(lines, "   📍 <code>"+html.EscapeString(a.Source)+"</code>")
		}
		if a.Reasoning != nil && *a.Reasoning != "" {
			lines = append(lines, "   💡 <i>"+html.EscapeString(preview(*a.Reasoning, reasoningPreview))+"</i>")
		}
		lines = append(lines, "")
	}
	lines = append(lines, "<b>Stay tuned for more AI agent developments!</b> 🚀")
	return strings.Join(lines, "\n")
}

func fallbackMarkdown(articles []model.Article) string {
	lines := []string{
		"*🤖 AI Agent Digest Update*",
		"",
		"📰 _" + strconv.Itoa(len(articles)) + " new articles about AI agents and autonomous systems:_",
		"",
	}
	for i, a := range head(articles) {
		n := strconv.Itoa(i+1) + "\\."
		title := EscapeMarkdown(a.Title)
		if a.Link != "" {
			lines = append(lines, n+" ["+title+"]("+escapeMarkdownURL(a.Link)+")")
		} else {
			lines = append(lines, n+" "+title)
		}
		if a.Source != "" {
			lines = append(lines, "   📍 `"+escapeMarkdownCode(a.Source)+"`")
		}
		if a.Reasoning != nil && *a.Reasoning != "" {
			lines = append(lines, "   💡 _"+EscapeMarkdown(preview(*a.Reasoning, reasoningPreview))+"_")
		}
		lines = append(lines, "")
	}
	lines = append(lines, "*Stay tuned for more AI agent developments\\!* 🚀")
	return strings.Join(lines, "\n")
}

func head(articles []model.Article) []model.Article {
	if len(articles) > fallbackArticles {
		return articles[:fallbackArticles]
	}
	return articles
}

// preview cuts s to n characters and marks the cut with "...".
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"_", `\_`, "*", `\*`, "[", `\[`, "]", `\]`, "(", `\(`, ")", `\)`,
	"~", `\~`, "`", "\\`", ">", `\>`, "#", `\#`, "+", `\+`, "-", `\-`,
	"=", `\=`, "|", `\|`, "{", `\{`, "}", `\}`, ".", `\.`, "!", `\!`,
)

// EscapeMarkdown escapes text for Telegram MarkdownV2.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

var markdownURLEscaper = strings.NewReplacer(`\`, `\\`, ")", `\)`)

func escapeMarkdownURL(s string) string {
	return markdownURLEscaper.Replace(s)
}

var markdownCodeEscaper = strings.NewReplacer(`\`, `\\`, "`", "\\`")

func escapeMarkdownCode(s string) string {
	return markdownCodeEscaper.Replace(s)
}
