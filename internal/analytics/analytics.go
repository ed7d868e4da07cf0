// Package analytics drives the daily metric rollups and trending
// scores over the article store.
package analytics

import (
	"context"
	"time"

	"newsward/internal/logger"
)

// Aggregator is the store surface the rollup runs against.
type Aggregator interface {
	AggregateDay(ctx context.Context, date string) error
	ComputeTrending(ctx context.Context, date string, windowDays int) error
}

// Run rebuilds daily metrics and trending scores for each date in
// order. Trending for a date depends on the metric rows of the window
// before it, so dates should be passed oldest first.
func Run(ctx context.Context, st Aggregator, dates []string, windowDays int) error {
	for _, date := range dates {
		if err := st.AggregateDay(ctx, date); err != nil {
			return err
		}
		if err := st.ComputeTrending(ctx, date, windowDays); err != nil {
			return err
		}
		logger.Info("analytics rebuilt", "date", date, "window_days", windowDays)
	}
	return nil
}

// DateRange lists days back from end inclusive, oldest first, as
// YYYY-MM-DD strings.
func DateRange(end time.Time, days int) []string {
	if days < 1 {
		days = 1
	}
	out := make([]string, 0, days)
	for i := days - 1; i >= 0; i-- {
		out = append(out, end.AddDate(0, 0, -i).Format("2006-01-02"))
	}
	return out
}
