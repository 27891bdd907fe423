// Package model defines the domain types used across the application.
package model

import "time"

// Article is a feed entry collected from one of the configured sources.
// GUID is the storage idempotency key.
type Article struct {
	GUID           string
	Source         string
	Title          string
	Link           string
	Summary        string
	Author         string
	Categories     []string
	PublishedAt    *time.Time
	FetchedAt      time.Time
	Posted         bool
	RelevanceScore *int
	Reasoning      *string
}

// Scored reports whether the article already carries a relevance score.
func (a Article) Scored() bool {
	return a.RelevanceScore != nil
}

// Score bounds enforced by the scorer and the schema.
const (
	MinScore = 1
	MaxScore = 100
)

// SearchResult is a single web search hit captured during a search cycle.
type SearchResult struct {
	Title         string
	Snippet       string
	Source        string
	PublishedDate *time.Time
	Link          string
	FetchedAt     time.Time
}

// SearchSummary is the language-model synthesis of one search cycle.
// The most recently created row is the current one.
type SearchSummary struct {
	ID        int64
	Text      string
	CreatedAt time.Time
}

// Delivery records one digest sent to the channel.
type Delivery struct {
	ID          int64
	DeliveredAt time.Time
	Content     string
	MessageID   string
}

// SourceType identifies how a feed source is fetched.
type SourceType string

// Supported source types.
const (
	SourceRSS SourceType = "rss"
)

// FeedSource is a configured article source.
type FeedSource struct {
	Name    string     `yaml:"name"`
	Type    SourceType `yaml:"type"`
	URL     string     `yaml:"url"`
	Enabled bool       `yaml:"enabled"`
	Include []string   `yaml:"include"`
	Exclude []string   `yaml:"exclude"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
