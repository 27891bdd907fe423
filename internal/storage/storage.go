// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"digestbot/internal/model"
)

// ErrNotFound is returned when a single requested row does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	// SaveArticles inserts articles whose GUID is not stored yet and
	// reports how many were new. Existing rows are never modified.
	SaveArticles(ctx context.Context, articles []model.Article) (int, error)
	GetArticle(ctx context.Context, guid string) (*model.Article, error)
	// FreshArticles returns articles not yet posted with published_at
	// strictly after cutoff, newest first.
	FreshArticles(ctx context.Context, cutoff time.Time) ([]model.Article, error)
	// UpdateScores persists score and reasoning of every article that
	// has a score.
	UpdateScores(ctx context.Context, articles []model.Article) error
	MarkPosted(ctx context.Context, guids []string) error

	SaveSearchResults(ctx context.Context, results []model.SearchResult) (int, error)
	SaveSummary(ctx context.Context, text string, at time.Time) (*model.SearchSummary, error)
	// LatestSummary returns nil without error when no summary exists.
	LatestSummary(ctx context.Context) (*model.SearchSummary, error)

	SaveDelivery(ctx context.Context, d *model.Delivery) error
	// LatestDelivery returns nil without error when nothing was delivered yet.
	LatestDelivery(ctx context.Context) (*model.Delivery, error)

	Close() error
}
