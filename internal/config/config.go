// Package config loads the digest configuration from a YAML file and
// the environment. Secrets only come from the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"digestbot/internal/gate"
	"digestbot/internal/model"
)

// ErrMissingCredential is returned when a required secret is not set.
var ErrMissingCredential = errors.New("missing credential")

// Environment variables read by Load.
const (
	EnvConfigPath    = "DIGEST_CONFIG"
	EnvDatabasePath  = "DATABASE_PATH"
	EnvLogLevel      = "LOG_LEVEL"
	EnvTelegramToken = "TELEGRAM_BOT_TOKEN"
	EnvTelegramChat  = "TELEGRAM_CHANNEL"
	EnvParseMode     = "TELEGRAM_PARSE_MODE"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvSerpAPIKey    = "SERPAPI_KEY"
)

// DefaultPath is used when neither a flag nor DIGEST_CONFIG names a file.
const DefaultPath = "./config/digest.yaml"

// Parse modes understood by the composer and the Telegram sender.
const (
	ParseModeHTML       = "HTML"
	ParseModeMarkdownV2 = "MarkdownV2"
)

// Config holds the application configuration.
type Config struct {
	LogLevel string             `yaml:"log_level"`
	Database DatabaseConfig     `yaml:"database"`
	Sources  []model.FeedSource `yaml:"sources"`
	Search   SearchConfig       `yaml:"search"`
	Delivery DeliveryConfig     `yaml:"delivery"`
	LLM      LLMConfig          `yaml:"llm"`
	Scoring  ScoringConfig      `yaml:"scoring"`
	Post     PostConfig         `yaml:"post"`
	Telegram Telegram           `yaml:"-"`
}

// DatabaseConfig locates the SQLite file.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// SearchConfig drives the daily web search and its summary.
type SearchConfig struct {
	TimeUTC              string            `yaml:"time_utc"`
	Queries              []string          `yaml:"queries"`
	Endpoint             string            `yaml:"endpoint"`
	Engine               string            `yaml:"engine"`
	ResultsPerQuery      int               `yaml:"results_per_query"`
	MaxResultsForSummary int               `yaml:"max_results_for_summary"`
	Params               map[string]string `yaml:"params"`
	Timeout              time.Duration     `yaml:"timeout"`
	SystemMessage        string            `yaml:"system_message"`
	SummaryPrompt        string            `yaml:"summary_prompt"`
	APIKey               string            `yaml:"-"`
}

// DeliveryConfig drives the daily digest.
type DeliveryConfig struct {
	TimeUTC   string         `yaml:"time_utc"`
	Freshness gate.Freshness `yaml:"freshness"`
}

// LLMConfig describes the OpenAI-compatible chat completions endpoint.
type LLMConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	APIKey      string        `yaml:"-"`
}

// ScoringConfig holds the relevance scoring prompt.
type ScoringConfig struct {
	Model         string   `yaml:"model"`
	Temperature   *float64 `yaml:"temperature"`
	SystemMessage string   `yaml:"system_message"`
	Prompt        string   `yaml:"prompt"`
	// DropRationaleOnSkip clears the stored rationale of articles that
	// were scored on an earlier run.
	DropRationaleOnSkip bool `yaml:"drop_rationale_on_skip"`
}

// PostConfig holds the digest post prompt.
type PostConfig struct {
	Model             string   `yaml:"model"`
	Temperature       *float64 `yaml:"temperature"`
	SystemMessage     string   `yaml:"system_message"`
	Prompt            string   `yaml:"prompt"`
	MaxArticlesInPost int      `yaml:"max_articles_in_post"`
}

// Telegram holds the validated delivery credentials.
type Telegram struct {
	BotToken  string
	ChannelID string
	ParseMode string
}

// Load reads the YAML file at path, applies environment overrides and
// defaults, and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		path = DefaultPath
	}

	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse builds a Config from YAML bytes and the environment.
func Parse(raw []byte) (*Config, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("parse config: empty file")
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvDatabasePath); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	c.Telegram = Telegram{
		BotToken:  os.Getenv(EnvTelegramToken),
		ChannelID: os.Getenv(EnvTelegramChat),
		ParseMode: os.Getenv(EnvParseMode),
	}
	c.LLM.APIKey = os.Getenv(EnvOpenAIKey)
	c.Search.APIKey = os.Getenv(EnvSerpAPIKey)
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "./data/digest.db"
	}
	for i := range c.Sources {
		if c.Sources[i].Type == "" {
			c.Sources[i].Type = model.SourceRSS
		}
	}

	if c.Search.TimeUTC == "" {
		c.Search.TimeUTC = "06:00"
	}
	if c.Search.Endpoint == "" {
		c.Search.Endpoint = "https://serpapi.com/search.json"
	}
	if c.Search.Engine == "" {
		c.Search.Engine = "google_news"
	}
	if c.Search.ResultsPerQuery <= 0 {
		c.Search.ResultsPerQuery = 10
	}
	if c.Search.MaxResultsForSummary <= 0 {
		c.Search.MaxResultsForSummary = 20
	}
	if c.Search.Timeout <= 0 {
		c.Search.Timeout = 30 * time.Second
	}
	if c.Search.SystemMessage == "" {
		c.Search.SystemMessage = "You are a research assistant who summarizes current news."
	}
	if c.Search.SummaryPrompt == "" {
		c.Search.SummaryPrompt = "Summarize the current state of \"{query}\" based on these search results:\n\n{content_text}"
	}

	if c.Delivery.TimeUTC == "" {
		c.Delivery.TimeUTC = "08:00"
	}
	if c.Delivery.Freshness == "" {
		c.Delivery.Freshness = gate.Last24h
	}

	if c.LLM.Endpoint == "" {
		c.LLM.Endpoint = "https://api.openai.com/v1/chat/completions"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 60 * time.Second
	}

	if c.Scoring.SystemMessage == "" {
		c.Scoring.SystemMessage = "You are a content curator rating articles for relevance."
	}
	if c.Scoring.Prompt == "" {
		c.Scoring.Prompt = "Current topic summary:\n{search_summary}\n\nRate the relevance of this article from 1 to 100.\nTitle: {title}\nSummary: {summary}\nSource: {source}"
	}

	if c.Post.SystemMessage == "" {
		c.Post.SystemMessage = "You write concise, engaging Telegram posts."
	}
	if c.Post.Prompt == "" {
		c.Post.Prompt = "Write a Telegram post about these {article_count} articles:\n\n{articles_text}"
	}
	if c.Post.MaxArticlesInPost <= 0 {
		c.Post.MaxArticlesInPost = 5
	}

	if c.Telegram.ParseMode == "" {
		c.Telegram.ParseMode = ParseModeHTML
	}
}

func (c *Config) validate() error {
	enabled := 0
	for i, s := range c.Sources {
		if !s.Enabled {
			continue
		}
		enabled++
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("source %d: name is required", i)
		}
		if strings.TrimSpace(s.URL) == "" {
			return fmt.Errorf("source %q: url is required", s.Name)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}

	switch c.Telegram.ParseMode {
	case ParseModeHTML, ParseModeMarkdownV2:
	default:
		return fmt.Errorf("%s %q: use %s or %s", EnvParseMode, c.Telegram.ParseMode, ParseModeHTML, ParseModeMarkdownV2)
	}

	if c.Telegram.BotToken == "" {
		return fmt.Errorf("%w: %s is required", ErrMissingCredential, EnvTelegramToken)
	}
	if c.Telegram.ChannelID == "" {
		return fmt.Errorf("%w: %s is required", ErrMissingCredential, EnvTelegramChat)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%w: %s is required", ErrMissingCredential, EnvOpenAIKey)
	}
	if len(c.Search.Queries) > 0 && c.Search.APIKey == "" {
		return fmt.Errorf("%w: %s is required when search queries are configured", ErrMissingCredential, EnvSerpAPIKey)
	}
	return nil
}

// Warnings lists settings that load fine but will not behave as written.
// An unrecognized delivery.freshness selects the last_24h window.
func (c *Config) Warnings() []string {
	var out []string
	if !c.Delivery.Freshness.Valid() {
		out = append(out, fmt.Sprintf("delivery.freshness %q is not a recognized window, using %s", c.Delivery.Freshness, gate.Last24h))
	}
	for _, t := range []struct{ key, value string }{
		{"search.time_utc", c.Search.TimeUTC},
		{"delivery.time_utc", c.Delivery.TimeUTC},
	} {
		if _, err := gate.ParseTimeOfDay(t.value); err != nil {
			out = append(out, fmt.Sprintf("%s: %v, the gate will never open", t.key, err))
		}
	}
	return out
}

// EnabledSources returns the sources that should be fetched.
func (c *Config) EnabledSources() []model.FeedSource {
	var out []model.FeedSource
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}
