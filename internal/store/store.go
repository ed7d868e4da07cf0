// Package store is the PostgreSQL persistence layer. All pipeline
// stages share the same articles table; summaries, events, processing
// history and analytics rollups hang off it.
package store

import (
	"context"
	"encoding/json"

	"newsward/internal/config"
	"newsward/internal/core"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Querier is the subset of pgxpool.Pool the store uses. pgxmock
// satisfies it in tests.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store executes all SQL against a Querier.
type Store struct {
	db Querier
}

// New wraps an existing Querier (pool or mock).
func New(db Querier) *Store {
	return &Store{db: db}
}

// Connect opens a pgx pool from config and verifies connectivity.
// pgvector types are registered on every connection so embeddings can
// be bound directly.
func Connect(ctx context.Context, cfg config.Database) (*Store, *pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, nil, core.E(core.KindConfig, "parse DATABASE_URL", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, core.E(core.KindUpstream, "connect database", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, core.E(core.KindUpstream, "ping database", err)
	}
	return New(pool), pool, nil
}

// Health verifies the database answers queries.
func (s *Store) Health(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return core.E(core.KindUpstream, "database health", err)
	}
	return nil
}

var schemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS vector`,
	`CREATE TABLE IF NOT EXISTS articles (
		id BIGSERIAL PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		url TEXT,
		source_type TEXT NOT NULL,
		source_file TEXT,
		publication TEXT NOT NULL,
		edition_date DATE NOT NULL,
		section TEXT NOT NULL DEFAULT 'General',
		page_number INTEGER,
		column_number INTEGER,
		author TEXT,
		word_count INTEGER NOT NULL DEFAULT 0,
		date_published TIMESTAMPTZ,
		date_extracted TIMESTAMPTZ NOT NULL DEFAULT now(),
		date_updated TIMESTAMPTZ NOT NULL DEFAULT now(),
		raw_html TEXT,
		location_name TEXT,
		tags JSONB NOT NULL DEFAULT '[]'::jsonb,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		embedding vector(1536),
		processing_status TEXT NOT NULL DEFAULT 'extracted',
		UNIQUE (content_hash, edition_date)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_edition ON articles (edition_date, publication)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_status ON articles (processing_status, date_extracted)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_section ON articles (section)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_fts ON articles
		USING GIN (to_tsvector('english', title || ' ' || content))`,
	`CREATE TABLE IF NOT EXISTS summaries (
		id BIGSERIAL PRIMARY KEY,
		article_id BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
		summary_text TEXT NOT NULL,
		summary_type TEXT NOT NULL DEFAULT 'brief',
		sentiment TEXT,
		topics JSONB NOT NULL DEFAULT '[]'::jsonb,
		confidence_score DOUBLE PRECISION,
		model_used TEXT,
		tokens_used INTEGER,
		generation_time_ms BIGINT,
		date_created TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (article_id, summary_type)
	)`,
	`CREATE TABLE IF NOT EXISTS article_events (
		id BIGSERIAL PRIMARY KEY,
		article_id BIGINT NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		description TEXT,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ,
		location_name TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_start ON article_events (start_time)`,
	`CREATE TABLE IF NOT EXISTS processing_history (
		id BIGSERIAL PRIMARY KEY,
		date_processed DATE NOT NULL,
		source_type TEXT NOT NULL,
		source_identifier TEXT NOT NULL,
		articles_found INTEGER NOT NULL DEFAULT 0,
		articles_new INTEGER NOT NULL DEFAULT 0,
		articles_duplicate INTEGER NOT NULL DEFAULT 0,
		processing_time_ms BIGINT,
		status TEXT NOT NULL,
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_history_source ON processing_history
		(date_processed, source_type, source_identifier)`,
	`CREATE TABLE IF NOT EXISTS daily_metrics (
		id BIGSERIAL PRIMARY KEY,
		metric_date DATE NOT NULL,
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		sum_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		UNIQUE (metric_date, kind, key)
	)`,
	`CREATE TABLE IF NOT EXISTS trending_items (
		id BIGSERIAL PRIMARY KEY,
		metric_date DATE NOT NULL,
		kind TEXT NOT NULL,
		key TEXT NOT NULL,
		score DOUBLE PRECISION NOT NULL,
		zscore DOUBLE PRECISION NOT NULL,
		details JSONB NOT NULL DEFAULT '{}'::jsonb,
		UNIQUE (metric_date, kind, key)
	)`,
}

// Init creates the schema. Safe to run repeatedly.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return core.E(core.KindUpstream, "init schema", err)
		}
	}
	return nil
}

// InsertArticle stores an article, deduplicating on
// (content_hash, edition_date). Returns the row id and whether the
// article was a duplicate of an existing row.
func (s *Store) InsertArticle(ctx context.Context, a *core.Article) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO articles (
			title, content, content_hash, url, source_type, source_file,
			publication, edition_date, section, page_number, column_number,
			author, word_count, date_published, date_extracted, raw_html,
			location_name, tags, metadata, processing_status
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (content_hash, edition_date) DO NOTHING
		RETURNING id`,
		a.Title, a.Content, a.ContentHash, nullStr(a.URL), a.SourceType, nullStr(a.SourceFile),
		a.Publication, a.EditionDate, a.Section, nullInt(a.PageNumber), nullInt(a.ColumnNumber),
		nullStr(a.Author), a.WordCount, a.DatePublished, a.DateExtracted, nullStr(a.RawHTML),
		nullStr(a.LocationName), tagsJSON(a.Tags), metadataJSON(a.Metadata), a.ProcessingStatus,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, core.E(core.KindUpstream, "insert article", err)
	}
	a.ID = id
	return id, false, nil
}

// InsertEvents stores parsed events for an article.
func (s *Store) InsertEvents(ctx context.Context, articleID int64, events []core.ArticleEvent) error {
	for _, ev := range events {
		_, err := s.db.Exec(ctx, `
			INSERT INTO article_events (article_id, title, description, start_time, end_time, location_name)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			articleID, ev.Title, nullStr(ev.Description), ev.StartTime, ev.EndTime, nullStr(ev.LocationName))
		if err != nil {
			return core.E(core.KindUpstream, "insert event", err)
		}
	}
	return nil
}

// UpdateStatus moves an article to a new processing status.
func (s *Store) UpdateStatus(ctx context.Context, articleID int64, status string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE articles SET processing_status = $2, date_updated = now() WHERE id = $1`,
		articleID, status)
	if err != nil {
		return core.E(core.KindUpstream, "update status", err)
	}
	if tag.RowsAffected() == 0 {
		return core.E(core.KindNotFound, "article %d not found", articleID)
	}
	return nil
}

// MarkFailed records a summarization failure on the article row.
func (s *Store) MarkFailed(ctx context.Context, articleID int64, reason string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE articles
		SET processing_status = 'failed',
		    metadata = metadata || jsonb_build_object('last_error', $2::text),
		    date_updated = now()
		WHERE id = $1`,
		articleID, reason)
	if err != nil {
		return core.E(core.KindUpstream, "mark failed", err)
	}
	return nil
}

// ArticlesForSummarization claims the oldest extracted articles, up to
// limit, in extraction order.
func (s *Store) ArticlesForSummarization(ctx context.Context, limit int) ([]core.Article, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, title, content, section, publication, edition_date::text, word_count
		FROM articles
		WHERE processing_status = 'extracted'
		ORDER BY date_extracted ASC, id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, core.E(core.KindUpstream, "select batch", err)
	}
	defer rows.Close()

	var out []core.Article
	for rows.Next() {
		var a core.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Content, &a.Section, &a.Publication, &a.EditionDate, &a.WordCount); err != nil {
			return nil, core.E(core.KindUpstream, "scan batch row", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// StoreSummary upserts the summary for an article and flips its status
// to summarized in one transaction.
func (s *Store) StoreSummary(ctx context.Context, sum *core.Summary) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return core.E(core.KindUpstream, "begin tx", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO summaries (
			article_id, summary_text, summary_type, sentiment, topics,
			confidence_score, model_used, tokens_used, generation_time_ms
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (article_id, summary_type) DO UPDATE SET
			summary_text = EXCLUDED.summary_text,
			sentiment = EXCLUDED.sentiment,
			topics = EXCLUDED.topics,
			confidence_score = EXCLUDED.confidence_score,
			model_used = EXCLUDED.model_used,
			tokens_used = EXCLUDED.tokens_used,
			generation_time_ms = EXCLUDED.generation_time_ms,
			date_created = now()`,
		sum.ArticleID, sum.SummaryText, sum.SummaryType, nullStr(sum.Sentiment), tagsJSON(sum.Topics),
		sum.ConfidenceScore, nullStr(sum.ModelUsed), sum.TokensUsed, sum.GenerationTimeMS)
	if err != nil {
		return core.E(core.KindUpstream, "upsert summary", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE articles SET processing_status = 'summarized', date_updated = now() WHERE id = $1`,
		sum.ArticleID)
	if err != nil {
		return core.E(core.KindUpstream, "flip status", err)
	}
	return tx.Commit(ctx)
}

// StoreEmbedding attaches an embedding vector to an article.
func (s *Store) StoreEmbedding(ctx context.Context, articleID int64, vec []float32) error {
	if len(vec) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `UPDATE articles SET embedding = $2 WHERE id = $1`,
		articleID, vectorParam(vec))
	if err != nil {
		return core.E(core.KindUpstream, "store embedding", err)
	}
	return nil
}

// RecordProcessingHistory appends one extraction run record. The log is
// append-only: reprocessing a source adds a new row rather than
// rewriting the earlier one.
func (s *Store) RecordProcessingHistory(ctx context.Context, dateProcessed, sourceType, sourceIdentifier string,
	report core.ProcessingReport, status, errorMessage string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO processing_history (
			date_processed, source_type, source_identifier,
			articles_found, articles_new, articles_duplicate,
			processing_time_ms, status, error_message
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		dateProcessed, sourceType, sourceIdentifier,
		report.ArticlesFound, report.ArticlesNew, report.ArticlesDup,
		report.ProcessingTimeMS, status, nullStr(errorMessage))
	if err != nil {
		return core.E(core.KindUpstream, "record processing history", err)
	}
	return nil
}

// MarkNotified flips summarized articles to notified after a digest
// delivery succeeded.
func (s *Store) MarkNotified(ctx context.Context, articleIDs []int64) error {
	if len(articleIDs) == 0 {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		UPDATE articles SET processing_status = 'notified', date_updated = now()
		WHERE id = ANY($1)`, articleIDs)
	if err != nil {
		return core.E(core.KindUpstream, "mark notified", err)
	}
	return nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(i int) *int {
	if i == 0 {
		return nil
	}
	return &i
}

// tagsJSON marshals a string slice for a jsonb column; nil becomes [].
func tagsJSON(tags []string) []byte {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return b
}

// metadataJSON marshals a string map for a jsonb column; nil becomes {}.
func metadataJSON(m map[string]string) []byte {
	if m == nil {
		m = map[string]string{}
	}
	b, _ := json.Marshal(m)
	return b
}
