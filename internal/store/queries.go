package store

import (
	"context"
	"strconv"
	"time"

	"newsward/internal/core"

	"github.com/jackc/pgx/v5"
)

// FeedItem is one article row as served by the read API, with its
// summary joined in when present.
type FeedItem struct {
	ID            int64               `json:"id"`
	Title         string              `json:"title"`
	Section       string              `json:"section"`
	Publication   string              `json:"publication"`
	EditionDate   string              `json:"edition_date"`
	PageNumber    int                 `json:"page_number,omitempty"`
	Author        string              `json:"author,omitempty"`
	URL           string              `json:"url,omitempty"`
	WordCount     int                 `json:"word_count"`
	DatePublished *time.Time          `json:"date_published,omitempty"`
	DateExtracted time.Time           `json:"date_extracted"`
	Status        string              `json:"processing_status"`
	Summary       string              `json:"summary,omitempty"`
	Sentiment     string              `json:"sentiment,omitempty"`
	Rank          float64             `json:"rank,omitempty"`
	Events        []core.ArticleEvent `json:"events"` // null outside the feed
}

const feedColumns = `
	a.id, a.title, a.section, a.publication, a.edition_date::text,
	COALESCE(a.page_number, 0), COALESCE(a.author, ''), COALESCE(a.url, ''),
	a.word_count, a.date_published, a.date_extracted, a.processing_status,
	COALESCE(s.summary_text, ''), COALESCE(s.sentiment, '')`

const feedJoin = `
	FROM articles a
	LEFT JOIN summaries s ON s.article_id = a.id AND s.summary_type = 'brief'`

func scanFeedItem(rows pgx.Rows, withRank bool) (FeedItem, error) {
	var it FeedItem
	dest := []any{
		&it.ID, &it.Title, &it.Section, &it.Publication, &it.EditionDate,
		&it.PageNumber, &it.Author, &it.URL, &it.WordCount,
		&it.DatePublished, &it.DateExtracted, &it.Status,
		&it.Summary, &it.Sentiment,
	}
	if withRank {
		dest = append(dest, &it.Rank)
	}
	err := rows.Scan(dest...)
	return it, err
}

func (s *Store) collectFeed(ctx context.Context, withRank bool, sql string, args ...any) ([]FeedItem, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, core.E(core.KindUpstream, "query feed", err)
	}
	defer rows.Close()

	out := []FeedItem{}
	for rows.Next() {
		it, err := scanFeedItem(rows, withRank)
		if err != nil {
			return nil, core.E(core.KindUpstream, "scan feed row", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// FeedDates lists distinct edition dates with article counts, newest first.
type FeedDate struct {
	Date       string `json:"date"`
	Total      int    `json:"total"`
	Summarized int    `json:"summarized"`
}

func (s *Store) FeedDates(ctx context.Context, limit int) ([]FeedDate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT edition_date::text, COUNT(*),
		       COUNT(*) FILTER (WHERE processing_status IN ('summarized', 'notified'))
		FROM articles
		GROUP BY edition_date
		ORDER BY edition_date DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, core.E(core.KindUpstream, "query feed dates", err)
	}
	defer rows.Close()

	out := []FeedDate{}
	for rows.Next() {
		var fd FeedDate
		if err := rows.Scan(&fd.Date, &fd.Total, &fd.Summarized); err != nil {
			return nil, core.E(core.KindUpstream, "scan feed date", err)
		}
		out = append(out, fd)
	}
	return out, rows.Err()
}

// FeedQuery filters the edition feed.
type FeedQuery struct {
	Date    string // YYYY-MM-DD, empty means today
	Section string // canonical section filter, empty means all
	Search  string // substring filter on title and summary, empty means none
	Limit   int
}

// Feed returns articles for one edition date ordered by section, page
// then id, each with its calendar events attached.
func (s *Store) Feed(ctx context.Context, q FeedQuery) ([]FeedItem, error) {
	date := q.Date
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	sql := `SELECT` + feedColumns + feedJoin + `
		WHERE a.edition_date = $1`
	args := []any{date}
	if q.Section != "" {
		args = append(args, q.Section)
		sql += ` AND a.section = $2`
	}
	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		n := strconv.Itoa(len(args))
		sql += ` AND (a.title ILIKE $` + n + ` OR COALESCE(s.summary_text, '') ILIKE $` + n + `)`
	}
	args = append(args, q.Limit)
	sql += ` ORDER BY a.section ASC, COALESCE(a.page_number, 9999) ASC, a.id ASC LIMIT $` + strconv.Itoa(len(args))

	items, err := s.collectFeed(ctx, false, sql, args...)
	if err != nil {
		return nil, err
	}
	if err := s.attachEvents(ctx, items); err != nil {
		return nil, err
	}
	return items, nil
}

// attachEvents loads the calendar events of the given feed items in one
// query and hangs them off their articles.
func (s *Store) attachEvents(ctx context.Context, items []FeedItem) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]int64, len(items))
	byID := make(map[int64]*FeedItem, len(items))
	for i := range items {
		ids[i] = items[i].ID
		byID[items[i].ID] = &items[i]
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, article_id, title, COALESCE(description, ''), start_time, end_time, COALESCE(location_name, '')
		FROM article_events
		WHERE article_id = ANY($1)
		ORDER BY start_time ASC, id ASC`, ids)
	if err != nil {
		return core.E(core.KindUpstream, "query feed events", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ev core.ArticleEvent
		if err := rows.Scan(&ev.ID, &ev.ArticleID, &ev.Title, &ev.Description, &ev.StartTime, &ev.EndTime, &ev.LocationName); err != nil {
			return core.E(core.KindUpstream, "scan feed event", err)
		}
		if it, ok := byID[ev.ArticleID]; ok {
			it.Events = append(it.Events, ev)
		}
	}
	return rows.Err()
}

// Search runs a ranked full-text query across all editions.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]FeedItem, error) {
	sql := `SELECT` + feedColumns + `,
		ts_rank_cd(to_tsvector('english', a.title || ' ' || a.content),
		           plainto_tsquery('english', $1)) AS rank` + feedJoin + `
		WHERE to_tsvector('english', a.title || ' ' || a.content) @@ plainto_tsquery('english', $1)
		ORDER BY rank DESC, a.edition_date DESC, a.id ASC
		LIMIT $2`
	return s.collectFeed(ctx, true, sql, query, limit)
}

// Similar returns the nearest articles by embedding cosine distance.
// Articles without an embedding yield KindNotFound.
func (s *Store) Similar(ctx context.Context, articleID int64, limit int) ([]FeedItem, error) {
	var hasEmbedding bool
	err := s.db.QueryRow(ctx,
		`SELECT embedding IS NOT NULL FROM articles WHERE id = $1`, articleID).Scan(&hasEmbedding)
	if err == pgx.ErrNoRows {
		return nil, core.E(core.KindNotFound, "article %d not found", articleID)
	}
	if err != nil {
		return nil, core.E(core.KindUpstream, "check embedding", err)
	}
	if !hasEmbedding {
		return nil, core.E(core.KindNotFound, "article %d has no embedding", articleID)
	}

	sql := `SELECT` + feedColumns + `,
		(a.embedding <=> (SELECT embedding FROM articles WHERE id = $1)) AS rank` + feedJoin + `
		WHERE a.id <> $1 AND a.embedding IS NOT NULL
		ORDER BY rank ASC
		LIMIT $2`
	return s.collectFeed(ctx, true, sql, articleID, limit)
}

// ArticleDetail is the full article record served by /articles/{id}/source.
type ArticleDetail struct {
	FeedItem
	Content      string              `json:"content"`
	RawHTML      string              `json:"-"`
	SourceFile   string              `json:"source_file,omitempty"`
	SourceType   string              `json:"source_type"`
	LocationName string              `json:"location_name,omitempty"`
	Events       []core.ArticleEvent `json:"events,omitempty"`
}

// GetArticle loads one article with its summary and events.
func (s *Store) GetArticle(ctx context.Context, id int64) (*ArticleDetail, error) {
	var d ArticleDetail
	err := s.db.QueryRow(ctx, `
		SELECT a.id, a.title, a.section, a.publication, a.edition_date::text,
		       COALESCE(a.page_number, 0), COALESCE(a.author, ''), COALESCE(a.url, ''),
		       a.word_count, a.date_published, a.date_extracted, a.processing_status,
		       COALESCE(s.summary_text, ''), COALESCE(s.sentiment, ''),
		       a.content, COALESCE(a.raw_html, ''), COALESCE(a.source_file, ''),
		       a.source_type, COALESCE(a.location_name, '')
		FROM articles a
		LEFT JOIN summaries s ON s.article_id = a.id AND s.summary_type = 'brief'
		WHERE a.id = $1`, id).Scan(
		&d.ID, &d.Title, &d.Section, &d.Publication, &d.EditionDate,
		&d.PageNumber, &d.Author, &d.URL, &d.WordCount,
		&d.DatePublished, &d.DateExtracted, &d.Status,
		&d.Summary, &d.Sentiment,
		&d.Content, &d.RawHTML, &d.SourceFile,
		&d.SourceType, &d.LocationName)
	if err == pgx.ErrNoRows {
		return nil, core.E(core.KindNotFound, "article %d not found", id)
	}
	if err != nil {
		return nil, core.E(core.KindUpstream, "get article", err)
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, article_id, title, COALESCE(description, ''), start_time, end_time, COALESCE(location_name, '')
		FROM article_events WHERE article_id = $1 ORDER BY start_time ASC`, id)
	if err != nil {
		return nil, core.E(core.KindUpstream, "get article events", err)
	}
	defer rows.Close()
	for rows.Next() {
		var ev core.ArticleEvent
		if err := rows.Scan(&ev.ID, &ev.ArticleID, &ev.Title, &ev.Description, &ev.StartTime, &ev.EndTime, &ev.LocationName); err != nil {
			return nil, core.E(core.KindUpstream, "scan event", err)
		}
		d.Events = append(d.Events, ev)
	}
	return &d, rows.Err()
}

// UpcomingEvent joins an event with its source article headline.
type UpcomingEvent struct {
	core.ArticleEvent
	ArticleTitle string `json:"article_title"`
	Section      string `json:"section"`
}

// UpcomingEvents lists events from now through the horizon, soonest first.
func (s *Store) UpcomingEvents(ctx context.Context, horizonDays int) ([]UpcomingEvent, error) {
	rows, err := s.db.Query(ctx, `
		SELECT e.id, e.article_id, e.title, COALESCE(e.description, ''), e.start_time, e.end_time,
		       COALESCE(e.location_name, ''), a.title, a.section
		FROM article_events e
		JOIN articles a ON a.id = e.article_id
		WHERE e.start_time >= now()::date
		  AND e.start_time < now()::date + make_interval(days => $1)
		ORDER BY e.start_time ASC, e.id ASC`, horizonDays)
	if err != nil {
		return nil, core.E(core.KindUpstream, "query events", err)
	}
	defer rows.Close()

	out := []UpcomingEvent{}
	for rows.Next() {
		var ev UpcomingEvent
		if err := rows.Scan(&ev.ID, &ev.ArticleID, &ev.Title, &ev.Description, &ev.StartTime, &ev.EndTime,
			&ev.LocationName, &ev.ArticleTitle, &ev.Section); err != nil {
			return nil, core.E(core.KindUpstream, "scan upcoming event", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// DigestArticles returns summarized, not-yet-notified articles for an
// edition date ordered by word count descending (ties by id).
func (s *Store) DigestArticles(ctx context.Context, date string) ([]FeedItem, error) {
	sql := `SELECT` + feedColumns + feedJoin + `
		WHERE a.edition_date = $1 AND a.processing_status = 'summarized'
		ORDER BY a.word_count DESC, a.id ASC`
	return s.collectFeed(ctx, false, sql, date)
}

// NotifiedCount reports how many articles of an edition were already
// delivered in a digest.
func (s *Store) NotifiedCount(ctx context.Context, date string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM articles
		WHERE edition_date = $1 AND processing_status = 'notified'`, date).Scan(&n)
	if err != nil {
		return 0, core.E(core.KindUpstream, "count notified", err)
	}
	return n, nil
}
