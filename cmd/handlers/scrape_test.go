package handlers

import (
	"testing"
	"time"
)

func TestPublicationDay(t *testing.T) {
	cases := []struct {
		date string
		want bool
	}{
		{"2026-03-11", true},  // Wednesday
		{"2026-03-14", true},  // Saturday
		{"2026-03-12", false}, // Thursday
		{"2026-03-15", false}, // Sunday
	}
	for _, c := range cases {
		day, err := time.Parse("2006-01-02", c.date)
		if err != nil {
			t.Fatalf("parse %s: %v", c.date, err)
		}
		if got := publicationDay(day); got != c.want {
			t.Errorf("publicationDay(%s) = %v, want %v", c.date, got, c.want)
		}
	}
}

func TestScrapeSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, sub := range NewScrapeCmd().Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"login", "discover", "download", "backfill", "cleanup"} {
		if !names[want] {
			t.Errorf("scrape is missing the %s subcommand", want)
		}
	}
}

func TestSummarizeSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, sub := range NewSummarizeCmd().Commands() {
		names[sub.Name()] = true
	}
	// serve is the read API; the poll loop lives under worker.
	for _, want := range []string{"batch", "worker", "serve"} {
		if !names[want] {
			t.Errorf("summarize is missing the %s subcommand", want)
		}
	}
}
