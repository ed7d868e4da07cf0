package analytics

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeAggregator struct {
	calls       []string
	trendingErr error
}

func (f *fakeAggregator) AggregateDay(ctx context.Context, date string) error {
	f.calls = append(f.calls, "aggregate:"+date)
	return nil
}

func (f *fakeAggregator) ComputeTrending(ctx context.Context, date string, windowDays int) error {
	f.calls = append(f.calls, "trending:"+date)
	return f.trendingErr
}

func TestRunAggregatesBeforeTrendingPerDate(t *testing.T) {
	agg := &fakeAggregator{}
	dates := []string{"2026-03-13", "2026-03-14"}
	if err := Run(context.Background(), agg, dates, 7); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{"aggregate:2026-03-13", "trending:2026-03-13", "aggregate:2026-03-14", "trending:2026-03-14"}
	if len(agg.calls) != len(want) {
		t.Fatalf("calls = %v", agg.calls)
	}
	for i := range want {
		if agg.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, agg.calls[i], want[i])
		}
	}
}

func TestRunStopsOnError(t *testing.T) {
	agg := &fakeAggregator{trendingErr: errors.New("boom")}
	err := Run(context.Background(), agg, []string{"2026-03-13", "2026-03-14"}, 7)
	if err == nil {
		t.Fatal("expected error")
	}
	if len(agg.calls) != 2 {
		t.Errorf("calls = %v, want stop after first date", agg.calls)
	}
}

func TestDateRange(t *testing.T) {
	end := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	got := DateRange(end, 3)
	want := []string{"2026-03-12", "2026-03-13", "2026-03-14"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if len(DateRange(end, 0)) != 1 {
		t.Errorf("zero days should clamp to one")
	}
}
