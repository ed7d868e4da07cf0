package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"newsward/internal/config"
	"newsward/internal/store"
)

type fakeStorage struct {
	items         []store.FeedItem
	notifiedCount int
	markedIDs     []int64
	digestCalls   int
}

func (f *fakeStorage) DigestArticles(ctx context.Context, date string) ([]store.FeedItem, error) {
	f.digestCalls++
	return f.items, nil
}

func (f *fakeStorage) NotifiedCount(ctx context.Context, date string) (int, error) {
	return f.notifiedCount, nil
}

func (f *fakeStorage) MarkNotified(ctx context.Context, articleIDs []int64) error {
	f.markedIDs = articleIDs
	return nil
}

func digestItems() []store.FeedItem {
	return []store.FeedItem{
		{ID: 1, Title: "Water Plant Funded", Section: "News", WordCount: 900,
			Summary: "The county funded a new plant.\n\nKey Points:\n• money"},
		{ID: 2, Title: "Team Wins Regional", Section: "Sports", WordCount: 700, Summary: "Big win."},
		{ID: 3, Title: "Obituary Notices", Section: "Obituaries", WordCount: 400},
		{ID: 4, Title: "Council Shorts", Section: "News", WordCount: 200, Summary: "Brief items."},
		{ID: 5, Title: "Classifieds", Section: "General", WordCount: 100},
	}
}

func TestSendDigestPublishesAndMarks(t *testing.T) {
	var got message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/digest-topic" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	st := &fakeStorage{items: digestItems()}
	n := New(st, config.Ntfy{URL: srv.URL, Topic: "digest-topic", ClickURL: "https://paper.example.com/eedition/"}, nil)

	sent, err := n.SendDigest(context.Background(), "smyth-county", "2026-03-14", 0, false)
	if err != nil {
		t.Fatalf("SendDigest: %v", err)
	}
	if sent != 5 {
		t.Errorf("sent = %d, want 5", sent)
	}

	if got.Title != "📰 Smyth County - 5 new articles" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Priority != 3 || got.Topic != "digest-topic" {
		t.Errorf("priority/topic = %d/%q", got.Priority, got.Topic)
	}
	if !strings.Contains(got.Message, "• [News] Water Plant Funded") {
		t.Errorf("top story missing: %q", got.Message)
	}
	if strings.Contains(got.Message, "Key Points") {
		t.Errorf("key points leaked into body: %q", got.Message)
	}
	if !strings.Contains(got.Message, "... and 2 more articles") {
		t.Errorf("overflow line missing: %q", got.Message)
	}
	if strings.Contains(got.Message, "Council Shorts") {
		t.Errorf("body lists more than the top stories: %q", got.Message)
	}
	if got.Click != "https://paper.example.com/eedition/" {
		t.Errorf("click = %q", got.Click)
	}

	if len(st.markedIDs) != 5 || st.markedIDs[0] != 1 {
		t.Errorf("marked ids = %v", st.markedIDs)
	}
}

func TestSendDigestSkipsAlreadyNotified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("must not publish when already notified")
	}))
	defer srv.Close()

	st := &fakeStorage{items: digestItems(), notifiedCount: 5}
	n := New(st, config.Ntfy{URL: srv.URL, Topic: "t"}, nil)

	sent, err := n.SendDigest(context.Background(), "gazette", "2026-03-14", 0, false)
	if err != nil || sent != 0 {
		t.Errorf("sent/err = %d/%v", sent, err)
	}
	if st.digestCalls != 0 {
		t.Errorf("digest queried despite skip")
	}
}

func TestSendDigestForceResends(t *testing.T) {
	var posts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posts++
	}))
	defer srv.Close()

	st := &fakeStorage{items: digestItems(), notifiedCount: 5}
	n := New(st, config.Ntfy{URL: srv.URL, Topic: "t"}, nil)

	sent, err := n.SendDigest(context.Background(), "gazette", "2026-03-14", 0, true)
	if err != nil || sent != 5 {
		t.Fatalf("sent/err = %d/%v", sent, err)
	}
	if posts != 1 {
		t.Errorf("posts = %d", posts)
	}
}

func TestSendDigestEmptyEdition(t *testing.T) {
	n := New(&fakeStorage{}, config.Ntfy{URL: "http://127.0.0.1:0", Topic: "t"}, nil)
	sent, err := n.SendDigest(context.Background(), "gazette", "2026-03-14", 0, false)
	if err != nil || sent != 0 {
		t.Errorf("sent/err = %d/%v", sent, err)
	}
}

func TestSendDigestDoesNotMarkOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	st := &fakeStorage{items: digestItems()}
	n := New(st, config.Ntfy{URL: srv.URL, Topic: "t"}, nil)

	if _, err := n.SendDigest(context.Background(), "gazette", "2026-03-14", 0, false); err == nil {
		t.Fatal("expected publish error")
	}
	if st.markedIDs != nil {
		t.Errorf("articles marked despite failure: %v", st.markedIDs)
	}
}

func TestSendDigestLimitsToTopN(t *testing.T) {
	var got message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	st := &fakeStorage{items: digestItems()}
	n := New(st, config.Ntfy{URL: srv.URL, Topic: "t"}, nil)

	sent, err := n.SendDigest(context.Background(), "gazette", "2026-03-14", 2, false)
	if err != nil {
		t.Fatalf("SendDigest: %v", err)
	}
	if sent != 2 {
		t.Errorf("sent = %d, want 2", sent)
	}
	if !strings.Contains(got.Title, "2 new articles") {
		t.Errorf("title = %q", got.Title)
	}
	if len(st.markedIDs) != 2 || st.markedIDs[0] != 1 || st.markedIDs[1] != 2 {
		t.Errorf("marked ids = %v", st.markedIDs)
	}
}

func TestBriefSummaryTruncates(t *testing.T) {
	long := strings.Repeat("word ", 100)
	got := briefSummary(long)
	if len([]rune(got)) != summaryMaxLen {
		t.Errorf("len = %d, want %d", len([]rune(got)), summaryMaxLen)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncation marker missing: %q", got)
	}
}
