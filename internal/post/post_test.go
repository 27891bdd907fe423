package post

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"digestbot/internal/config"
	"digestbot/internal/llm"
	"digestbot/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
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

func testArticles() []model.Article {
	published := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []model.Article{
		{
			GUID:           "1",
			Title:          "Test Article 1",
			Summary:        "This is a test summary for article 1",
			Source:         "Test Source 1",
			Link:           "https://example.com/1",
			PublishedAt:    &published,
			RelevanceScore: model.Ptr(92),
			Reasoning:      model.Ptr("High relevance for AI agents"),
		},
		{
			GUID:           "2",
			Title:          "Test Article 2",
			Summary:        "Test summary 2",
			Source:         "Test Source 2",
			Link:           "https://example.com/2",
			RelevanceScore: model.Ptr(81),
			Reasoning:      model.Ptr("Good AI agent applications"),
		},
	}
}

var postConfig = config.PostConfig{
	SystemMessage:     "You write posts",
	Prompt:            "Count: {article_count}\n{articles_text}",
	MaxArticlesInPost: 5,
}

func TestFormatArticles(t *testing.T) {
	got := FormatArticles(testArticles(), 5)
	want := strings.Join([]string{
		"1. Test Article 1",
		"   Link: https://example.com/1",
		"   Summary: This is a test summary for article 1",
		"   🎯 WHY THIS MATTERS: High relevance for AI agents",
		"   Source: Test Source 1",
		"   Published: 2024-01-01 00:00",
		"",
		"2. Test Article 2",
		"   Link: https://example.com/2",
		"   Summary: Test summary 2",
		"   🎯 WHY THIS MATTERS: Good AI agent applications",
		"   Source: Test Source 2",
	}, "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatArticles mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatArticlesLimitAndTruncation(t *testing.T) {
	long := strings.Repeat("a", 250)
	articles := []model.Article{
		{Title: "First", Summary: long},
		{Title: "Second"},
	}
	got := FormatArticles(articles, 1)
	want := "1. First\n   Summary: " + strings.Repeat("a", 200) + "..."
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FormatArticles mismatch (-want +got):\n%s", diff)
	}
}

func TestComposeUsesModel(t *testing.T) {
	llmc := &fakeCompleter{reply: "  *🤖 AI Agent Digest:* Exciting developments!  "}
	c := NewComposer(llmc, postConfig, config.ParseModeHTML, discardLogger())

	got := c.Compose(context.Background(), testArticles())
	if diff := cmp.Diff("*🤖 AI Agent Digest:* Exciting developments!", got); diff != "" {
		t.Errorf("Compose mismatch (-want +got):\n%s", diff)
	}
	if len(llmc.messages) != 1 {
		t.Fatalf("expected one model call, got %d", len(llmc.messages))
	}
	prompt := llmc.messages[0][1].Content
	if !strings.HasPrefix(prompt, "Count: 2\n1. Test Article 1\n") {
		t.Errorf("unexpected prompt %q", prompt)
	}
	if diff := cmp.Diff("You write posts", llmc.messages[0][0].Content); diff != "" {
		t.Errorf("system message mismatch (-want +got):\n%s", diff)
	}
}

func TestComposeFallsBack(t *testing.T) {
	tests := []struct {
		name string
		llm  *fakeCompleter
	}{
		{name: "model error", llm: &fakeCompleter{err: errors.New("LLM failed")}},
		{name: "blank reply", llm: &fakeCompleter{reply: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewComposer(tt.llm, postConfig, config.ParseModeHTML, discardLogger())
			got := c.Compose(context.Background(), testArticles())
			if diff := cmp.Diff(Fallback(testArticles(), config.ParseModeHTML), got); diff != "" {
				t.Errorf("Compose mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFallbackHTML(t *testing.T) {
	got := Fallback(testArticles(), config.ParseModeHTML)
	want := strings.Join([]string{
		"<b>🤖 AI Agent Digest Update</b>",
		"",
		"📰 <i>2 new articles about AI agents and autonomous systems:</i>",
		"",
		`1. <a href="https://example.com/1">Test Article 1</a>`,
		"   📍 <code>Test Source 1</code>",
		"   💡 <i>High relevance for AI agents</i>",
		"",
		`2. <a href="https://example.com/2">Test Article 2</a>`,
		"   📍 <code>Test Source 2</code>",
		"   💡 <i>Good AI agent applications</i>",
		"",
		"<b>Stay tuned for more AI agent developments!</b> 🚀",
	}, "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Fallback mismatch (-want +got):\n%s", diff)
	}
}

func TestFallbackHTMLEscapes(t *testing.T) {
	got := Fallback([]model.Article{{
		Title:     "AI <b>& ML",
		Link:      `https://example.com/?a=1&b="2"`,
		Source:    "Tech & Wired",
		Reasoning: model.Ptr(strings.Repeat("x", 120)),
	}}, config.ParseModeHTML)

	for _, want := range []string{
		`1. <a href="https://example.com/?a=1&amp;b=&#34;2&#34;">AI &lt;b&gt;&amp; ML</a>`,
		"<code>Tech &amp; Wired</code>",
		"<i>" + strings.Repeat("x", 100) + "...</i>",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in:\n%s", want, got)
		}
	}
}

func TestFallbackKeepsThreeArticles(t *testing.T) {
	articles := []model.Article{{Title: "A"}, {Title: "B"}, {Title: "C"}, {Title: "D"}, {Title: "E"}}
	got := Fallback(articles, config.ParseModeHTML)
	if !strings.Contains(got, "5 new articles") {
		t.Errorf("expected full count, got:\n%s", got)
	}
	if !strings.Contains(got, "3. C") || strings.Contains(got, "4. D") {
		t.Errorf("expected exactly three listed articles, got:\n%s", got)
	}
}

func TestFallbackMarkdownV2(t *testing.T) {
	got := Fallback([]model.Article{{
		Title:     "AI Agent Framework Released",
		Source:    "TechCrunch",
		Link:      "https://techcrunch.com/ai-agent-framework",
		Reasoning: model.Ptr("This is a groundbreaking development in AI agent technology that will enable developers to build more sophisticated autonomous systems"),
	}}, config.ParseModeMarkdownV2)

	for _, want := range []string{
		"*🤖 AI Agent Digest Update*",
		"_1 new articles about AI agents and autonomous systems:_",
		"1\\. [AI Agent Framework Released](https://techcrunch.com/ai-agent-framework)",
		"`TechCrunch`",
		"_This is a groundbreaking development in AI agent technology that will enable developers to build mor\\.\\.\\._",
		"*Stay tuned for more AI agent developments\\!* 🚀",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in:\n%s", want, got)
		}
	}
}

func TestFallbackMarkdownV2Escapes(t *testing.T) {
	got := Fallback([]model.Article{{
		Title:     "AI & ML: The Future of Technology!",
		Source:    "TechCrunch & Wired",
		Link:      "https://example.com/test?param=value&other=tag",
		Reasoning: model.Ptr("This article discusses *bold* AI developments & future technologies"),
	}}, config.ParseModeMarkdownV2)

	for _, want := range []string{
		"[AI & ML: The Future of Technology\\!](https://example.com/test?param=value&other=tag)",
		"`TechCrunch & Wired`",
		"_This article discusses \\*bold\\* AI developments & future technologies_",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in:\n%s", want, got)
		}
	}
}

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "plain", want: "plain"},
		{in: "a.b!", want: `a\.b\!`},
		{in: "[x](y)", want: `\[x\]\(y\)`},
		{in: `back\slash`, want: `back\\slash`},
		{in: "1+1=2 #tag -x |y| {z} ~w~ >q `c` _u_", want: "1\\+1\\=2 \\#tag \\-x \\|y\\| \\{z\\} \\~w\\~ \\>q \\`c\\` \\_u\\_"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, EscapeMarkdown(tt.in)); diff != "" {
				t.Errorf("EscapeMarkdown mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEscapeMarkdownURL(t *testing.T) {
	got := escapeMarkdownURL(`https://example.com/a_(b)\c.d`)
	if diff := cmp.Diff(`https://example.com/a_(b\)\\c.d`, got); diff != "" {
		t.Errorf("escapeMarkdownURL mismatch (-want +got):\n%s", diff)
	}
}
