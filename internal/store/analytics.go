package store

import (
	"context"
	"time"

	"newsward/internal/core"
)

// Metric kinds aggregated per day.
const (
	MetricSection = "section"
	MetricTag     = "tag"
	MetricTopic   = "topic"
	MetricEntity  = "entity"
)

// AggregateDay rebuilds daily_metrics for one edition date: article
// counts per section, per tag, per summary topic and per event entity.
// Existing rows for the date are replaced.
func (s *Store) AggregateDay(ctx context.Context, date string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return core.E(core.KindUpstream, "begin aggregate tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM daily_metrics WHERE metric_date = $1`, date); err != nil {
		return core.E(core.KindUpstream, "clear daily metrics", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO daily_metrics (metric_date, kind, key, count)
		SELECT edition_date, 'section', section, COUNT(*)
		FROM articles WHERE edition_date = $1
		GROUP BY edition_date, section`, date); err != nil {
		return core.E(core.KindUpstream, "aggregate sections", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO daily_metrics (metric_date, kind, key, count)
		SELECT edition_date, 'tag', tag, COUNT(*)
		FROM articles, jsonb_array_elements_text(tags) AS tag
		WHERE edition_date = $1
		GROUP BY edition_date, tag`, date); err != nil {
		return core.E(core.KindUpstream, "aggregate tags", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO daily_metrics (metric_date, kind, key, count, sum_score)
		SELECT a.edition_date, 'topic', topic, COUNT(*), COALESCE(SUM(s.confidence_score), 0)
		FROM articles a
		JOIN summaries s ON s.article_id = a.id
		CROSS JOIN jsonb_array_elements_text(s.topics) AS topic
		WHERE a.edition_date = $1
		GROUP BY a.edition_date, topic`, date); err != nil {
		return core.E(core.KindUpstream, "aggregate topics", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO daily_metrics (metric_date, kind, key, count)
		SELECT a.edition_date, 'entity', e.location_name, COUNT(*)
		FROM articles a
		JOIN article_events e ON e.article_id = a.id
		WHERE a.edition_date = $1 AND COALESCE(e.location_name, '') <> ''
		GROUP BY a.edition_date, e.location_name`, date); err != nil {
		return core.E(core.KindUpstream, "aggregate entities", err)
	}

	return tx.Commit(ctx)
}

// ComputeTrending scores each key of a day against its trailing window:
// score = count - mean(count over window), zscore = score / stddev
// (stddev 0 treated as 1). Results land in trending_items.
func (s *Store) ComputeTrending(ctx context.Context, date string, windowDays int) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO trending_items (metric_date, kind, key, score, zscore, details)
		SELECT d.metric_date, d.kind, d.key,
		       d.count - w.mean,
		       (d.count - w.mean) / COALESCE(NULLIF(w.std, 0), 1),
		       jsonb_build_object('current', d.count, 'mean', round(w.mean::numeric, 3), 'std', round(w.std::numeric, 3))
		FROM daily_metrics d
		JOIN LATERAL (
			SELECT AVG(count)::double precision AS mean,
			       COALESCE(STDDEV_POP(count), 0)::double precision AS std
			FROM daily_metrics h
			WHERE h.kind = d.kind AND h.key = d.key
			  AND h.metric_date >= d.metric_date - make_interval(days => $2)
			  AND h.metric_date < d.metric_date
		) w ON true
		WHERE d.metric_date = $1
		ON CONFLICT (metric_date, kind, key) DO UPDATE SET
			score = EXCLUDED.score,
			zscore = EXCLUDED.zscore,
			details = EXCLUDED.details`, date, windowDays)
	if err != nil {
		return core.E(core.KindUpstream, "compute trending", err)
	}
	return nil
}

// TrendingItem is one scored key for a day.
type TrendingItem struct {
	MetricDate string  `json:"metric_date"`
	Kind       string  `json:"kind"`
	Key        string  `json:"key"`
	Score      float64 `json:"score"`
	ZScore     float64 `json:"zscore"`
	Details    []byte  `json:"-"`
}

// Trending lists the top trending keys of a kind for a date.
func (s *Store) Trending(ctx context.Context, date, kind string, limit int) ([]TrendingItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT metric_date::text, kind, key, score, zscore, details
		FROM trending_items
		WHERE metric_date = $1 AND kind = $2
		ORDER BY zscore DESC, key ASC
		LIMIT $3`, date, kind, limit)
	if err != nil {
		return nil, core.E(core.KindUpstream, "query trending", err)
	}
	defer rows.Close()

	out := []TrendingItem{}
	for rows.Next() {
		var it TrendingItem
		if err := rows.Scan(&it.MetricDate, &it.Kind, &it.Key, &it.Score, &it.ZScore, &it.Details); err != nil {
			return nil, core.E(core.KindUpstream, "scan trending", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// TimelinePoint is a per-day count for one key, with the summed score
// where the kind carries one (topic confidence, for instance).
type TimelinePoint struct {
	Date     string  `json:"date"`
	Count    int     `json:"count"`
	SumScore float64 `json:"sum_score"`
}

// Timeline returns exactly days points ending today for one kind/key,
// zero-filled for days without a metric row.
func (s *Store) Timeline(ctx context.Context, kind, key string, days int) ([]TimelinePoint, error) {
	rows, err := s.db.Query(ctx, `
		SELECT metric_date::text, count, COALESCE(sum_score, 0)
		FROM daily_metrics
		WHERE kind = $1 AND key = $2
		  AND metric_date > now()::date - make_interval(days => $3)
		ORDER BY metric_date ASC`, kind, key, days)
	if err != nil {
		return nil, core.E(core.KindUpstream, "query timeline", err)
	}
	defer rows.Close()

	byDate := map[string]TimelinePoint{}
	for rows.Next() {
		var p TimelinePoint
		if err := rows.Scan(&p.Date, &p.Count, &p.SumScore); err != nil {
			return nil, core.E(core.KindUpstream, "scan timeline", err)
		}
		byDate[p.Date] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]TimelinePoint, 0, days)
	start := time.Now().AddDate(0, 0, -(days - 1))
	for i := 0; i < days; i++ {
		d := start.AddDate(0, 0, i).Format("2006-01-02")
		p := byDate[d]
		p.Date = d
		out = append(out, p)
	}
	return out, nil
}
