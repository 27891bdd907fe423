package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"digestbot/internal/model"
	"digestbot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// insertBatch bounds the rows of a single multi-row INSERT.
const insertBatch = 200

var articleColumns = []string{
	"guid", "source", "title", "link", "summary", "author", "categories",
	"published_at", "fetched_at", "posted", "relevance_score", "reasoning",
}

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: the job is single-threaded and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// SaveArticles inserts new articles in one transaction using
// INSERT OR IGNORE keyed on guid.
func (s *SQLite) SaveArticles(ctx context.Context, articles []model.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	inserted := 0
	for start := 0; start < len(articles); start += insertBatch {
		end := min(start+insertBatch, len(articles))

		q := sq.Insert("articles").Options("OR IGNORE").Columns(articleColumns...)
		for _, a := range articles[start:end] {
			fetched := a.FetchedAt
			if fetched.IsZero() {
				fetched = now
			}
			q = q.Values(
				a.GUID, a.Source, a.Title, a.Link,
				nullString(a.Summary), nullString(a.Author), joinCategories(a.Categories),
				formatTimePtr(a.PublishedAt), fetched.UTC().Format(timeLayout),
				boolToInt(a.Posted), a.RelevanceScore, a.Reasoning,
			)
		}
		query, args, err := q.ToSql()
		if err != nil {
			return 0, fmt.Errorf("build insert: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("insert articles: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit articles: %w", err)
	}
	return inserted, nil
}

// GetArticle returns a single article by GUID.
func (s *SQLite) GetArticle(ctx context.Context, guid string) (*model.Article, error) {
	query, args, err := sq.Select(articleColumns...).From("articles").
		Where(sq.Eq{"guid": guid}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}
	a, err := scanArticle(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("article %q: %w", guid, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// FreshArticles returns unposted articles published strictly after cutoff.
// Articles without a publish time are never fresh.
func (s *SQLite) FreshArticles(ctx context.Context, cutoff time.Time) ([]model.Article, error) {
	query, args, err := sq.Select(articleColumns...).From("articles").
		Where(sq.Gt{"published_at": cutoff.UTC().Format(timeLayout)}).
		Where(sq.Eq{"posted": 0}).
		OrderBy("published_at DESC", "guid").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fresh articles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// UpdateScores writes relevance_score and reasoning for scored articles.
func (s *SQLite) UpdateScores(ctx context.Context, articles []model.Article) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, a := range articles {
		if a.RelevanceScore == nil {
			continue
		}
		query, args, err := sq.Update("articles").
			Set("relevance_score", *a.RelevanceScore).
			Set("reasoning", a.Reasoning).
			Where(sq.Eq{"guid": a.GUID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update score %q: %w", a.GUID, err)
		}
	}
	return tx.Commit()
}

// MarkPosted sets the posted flag on the given articles.
func (s *SQLite) MarkPosted(ctx context.Context, guids []string) error {
	if len(guids) == 0 {
		return nil
	}
	query, args, err := sq.Update("articles").Set("posted", 1).
		Where(sq.Eq{"guid": guids}).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark posted: %w", err)
	}
	return nil
}

// SaveSearchResults inserts results, ignoring any whose (title, source)
// pair is already stored.
func (s *SQLite) SaveSearchResults(ctx context.Context, results []model.SearchResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	inserted := 0
	for start := 0; start < len(results); start += insertBatch {
		end := min(start+insertBatch, len(results))

		q := sq.Insert("search_results").Options("OR IGNORE").
			Columns("title", "snippet", "source", "published_date", "link", "fetched_at")
		for _, r := range results[start:end] {
			fetched := r.FetchedAt
			if fetched.IsZero() {
				fetched = now
			}
			q = q.Values(r.Title, r.Snippet, r.Source, formatTimePtr(r.PublishedDate), r.Link,
				fetched.UTC().Format(timeLayout))
		}
		query, args, err := q.ToSql()
		if err != nil {
			return 0, fmt.Errorf("build insert: %w", err)
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("insert search results: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit search results: %w", err)
	}
	return inserted, nil
}

// SaveSummary stores a new search summary created at the given time.
func (s *SQLite) SaveSummary(ctx context.Context, text string, at time.Time) (*model.SearchSummary, error) {
	at = at.UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO search_summaries (summary_text, fetched_at) VALUES (?, ?)`,
		text, at.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("insert summary: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &model.SearchSummary{ID: id, Text: text, CreatedAt: at}, nil
}

// LatestSummary returns the most recently created summary.
func (s *SQLite) LatestSummary(ctx context.Context) (*model.SearchSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, summary_text, fetched_at FROM search_summaries
		 ORDER BY fetched_at DESC, id DESC LIMIT 1`,
	)
	var sum model.SearchSummary
	var created string
	err := row.Scan(&sum.ID, &sum.Text, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan summary: %w", err)
	}
	sum.CreatedAt, _ = time.Parse(timeLayout, created)
	return &sum, nil
}

// SaveDelivery inserts a delivery record and populates its ID. A zero
// DeliveredAt is set to the current time.
func (s *SQLite) SaveDelivery(ctx context.Context, d *model.Delivery) error {
	if d.DeliveredAt.IsZero() {
		d.DeliveredAt = time.Now().UTC()
	}
	d.DeliveredAt = d.DeliveredAt.UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (delivered_at, content, origin_message_id) VALUES (?, ?, ?)`,
		d.DeliveredAt.Format(timeLayout), d.Content, d.MessageID,
	)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	d.ID = id
	return nil
}

// LatestDelivery returns the most recent delivery record.
func (s *SQLite) LatestDelivery(ctx context.Context) (*model.Delivery, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, delivered_at, content, origin_message_id FROM deliveries
		 ORDER BY delivered_at DESC, id DESC LIMIT 1`,
	)
	var d model.Delivery
	var delivered string
	err := row.Scan(&d.ID, &delivered, &d.Content, &d.MessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan delivery: %w", err)
	}
	d.DeliveredAt, _ = time.Parse(timeLayout, delivered)
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func joinCategories(cats []string) sql.NullString {
	if len(cats) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.Join(cats, ","), Valid: true}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanArticle(row scannable) (model.Article, error) {
	var a model.Article
	var summary, author, categories, published, reasoning sql.NullString
	var fetched string
	var posted int
	var score sql.NullInt64
	err := row.Scan(&a.GUID, &a.Source, &a.Title, &a.Link, &summary, &author, &categories,
		&published, &fetched, &posted, &score, &reasoning)
	if errors.Is(err, sql.ErrNoRows) {
		return a, err
	}
	if err != nil {
		return a, fmt.Errorf("scan article: %w", err)
	}
	a.Summary = summary.String
	a.Author = author.String
	if categories.Valid && categories.String != "" {
		a.Categories = strings.Split(categories.String, ",")
	}
	if published.Valid {
		if t, err := time.Parse(timeLayout, published.String); err == nil {
			a.PublishedAt = &t
		}
	}
	a.FetchedAt, _ = time.Parse(timeLayout, fetched)
	a.Posted = posted == 1
	if score.Valid {
		v := int(score.Int64)
		a.RelevanceScore = &v
	}
	if reasoning.Valid {
		v := reasoning.String
		a.Reasoning = &v
	}
	return a, nil
}
