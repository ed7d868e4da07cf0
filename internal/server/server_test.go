package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"newsward/internal/config"
	"newsward/internal/core"
	"newsward/internal/store"
)

type fakeReader struct {
	healthErr error
	feed      []store.FeedItem
	feedQuery store.FeedQuery
	search    []store.FeedItem
	article   *store.ArticleDetail
	timeline  []store.TimelinePoint
}

func (f *fakeReader) Health(ctx context.Context) error { return f.healthErr }

func (f *fakeReader) FeedDates(ctx context.Context, limit int) ([]store.FeedDate, error) {
	return []store.FeedDate{{Date: "2026-03-14", Total: 12, Summarized: 10}}, nil
}

func (f *fakeReader) Feed(ctx context.Context, q store.FeedQuery) ([]store.FeedItem, error) {
	f.feedQuery = q
	return f.feed, nil
}

func (f *fakeReader) Search(ctx context.Context, query string, limit int) ([]store.FeedItem, error) {
	return f.search, nil
}

func (f *fakeReader) Similar(ctx context.Context, articleID int64, limit int) ([]store.FeedItem, error) {
	return nil, core.E(core.KindNotFound, "article %d has no embedding", articleID)
}

func (f *fakeReader) GetArticle(ctx context.Context, id int64) (*store.ArticleDetail, error) {
	if f.article == nil || f.article.ID != id {
		return nil, core.E(core.KindNotFound, "article %d not found", id)
	}
	return f.article, nil
}

func (f *fakeReader) UpcomingEvents(ctx context.Context, horizonDays int) ([]store.UpcomingEvent, error) {
	return []store.UpcomingEvent{}, nil
}

func (f *fakeReader) Trending(ctx context.Context, date, kind string, limit int) ([]store.TrendingItem, error) {
	return []store.TrendingItem{{Kind: kind, Key: "library", ZScore: 2.5}}, nil
}

func (f *fakeReader) Timeline(ctx context.Context, kind, key string, days int) ([]store.TimelinePoint, error) {
	return f.timeline, nil
}

func newTestServer(t *testing.T, db Reader) *Server {
	t.Helper()
	return New(db, nil, config.Server{Addr: ":0"})
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &fakeReader{})
	rec := get(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}

	s = newTestServer(t, &fakeReader{healthErr: core.E(core.KindUpstream, "db down")})
	rec = get(t, s, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy status = %d", rec.Code)
	}
}

func TestFeedValidatesDate(t *testing.T) {
	s := newTestServer(t, &fakeReader{})
	rec := get(t, s, "/api/feed?date=tomorrow")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestFeedNormalizesSectionAndCapsLimit(t *testing.T) {
	db := &fakeReader{feed: []store.FeedItem{{ID: 1, Title: "A"}}}
	s := newTestServer(t, db)
	rec := get(t, s, "/api/feed?date=2026-03-14&section=obits&limit=9999")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if db.feedQuery.Section != "Obituaries" {
		t.Errorf("section = %q, want Obituaries", db.feedQuery.Section)
	}
	if db.feedQuery.Limit != 200 {
		t.Errorf("limit = %d, want capped to 200", db.feedQuery.Limit)
	}
}

func TestFeedEnvelope(t *testing.T) {
	db := &fakeReader{feed: []store.FeedItem{
		{ID: 1, Title: "A", EditionDate: "2026-03-14"},
		{ID: 2, Title: "B", EditionDate: "2026-03-14"},
	}}
	s := newTestServer(t, db)
	rec := get(t, s, "/api/feed?date=2026-03-14")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Date  string           `json:"date"`
		Count int              `json:"count"`
		Items []store.FeedItem `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Date != "2026-03-14" || body.Count != 2 || len(body.Items) != 2 {
		t.Errorf("envelope = %+v", body)
	}
}

func TestFeedDefaultsToToday(t *testing.T) {
	db := &fakeReader{}
	s := newTestServer(t, db)
	rec := get(t, s, "/api/feed")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	today := time.Now().Format("2006-01-02")
	if db.feedQuery.Date != today {
		t.Errorf("date = %q, want today %q", db.feedQuery.Date, today)
	}
}

func TestFeedHonorsExplicitZeroLimit(t *testing.T) {
	db := &fakeReader{}
	s := newTestServer(t, db)
	rec := get(t, s, "/api/feed?date_str=2026-03-14&limit=0")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if db.feedQuery.Limit != 0 {
		t.Errorf("limit = %d, want 0", db.feedQuery.Limit)
	}
	if db.feedQuery.Date != "2026-03-14" {
		t.Errorf("date = %q, want date_str honored", db.feedQuery.Date)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	s := newTestServer(t, &fakeReader{})
	rec := get(t, s, "/api/search")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" {
		t.Errorf("error body = %q", rec.Body.String())
	}
}

func TestSimilarNotFound(t *testing.T) {
	s := newTestServer(t, &fakeReader{})
	rec := get(t, s, "/api/articles/42/similar")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestTrendingRejectsUnknownKind(t *testing.T) {
	s := newTestServer(t, &fakeReader{})
	rec := get(t, s, "/api/analytics/trending?kind=velocity")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	for _, kind := range []string{"section", "tag", "topic", "entity"} {
		rec = get(t, s, "/api/analytics/trending?kind="+kind+"&date=2026-03-14")
		if rec.Code != http.StatusOK {
			t.Errorf("kind %s: status = %d, want 200", kind, rec.Code)
		}
	}
}

func TestTimelineRequiresKindAndKey(t *testing.T) {
	s := newTestServer(t, &fakeReader{})
	rec := get(t, s, "/api/analytics/timeline?kind=section")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestArticleSourceRendersStoredContent(t *testing.T) {
	db := &fakeReader{article: &store.ArticleDetail{
		FeedItem: store.FeedItem{ID: 7, Title: "Water Plant Funded", Publication: "gazette",
			EditionDate: "2026-03-14", Section: "News"},
		Content:    "First paragraph.\nSecond paragraph.",
		SourceType: core.SourcePDF,
	}}
	s := newTestServer(t, db)
	rec := get(t, s, "/api/articles/7/source")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "Water Plant Funded") || !strings.Contains(body, "<p>First paragraph.</p>") {
		t.Errorf("page body missing content: %s", body)
	}
}

func TestArticleSourceRedirectsToURL(t *testing.T) {
	db := &fakeReader{article: &store.ArticleDetail{
		FeedItem: store.FeedItem{ID: 9, Title: "Offsite", URL: "https://paper.example.com/story"},
	}}
	s := newTestServer(t, db)
	rec := get(t, s, "/api/articles/9/source")
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://paper.example.com/story" {
		t.Errorf("location = %q", loc)
	}
}

// The API answers at the bare paths too, even when the SPA fallback is
// configured; scripted clients must get JSON there, never the app shell.
func TestBarePathsServeAPI(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "200.html"), []byte("<html>app shell</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	db := &fakeReader{feed: []store.FeedItem{{ID: 1, Title: "A", EditionDate: "2026-03-14"}}}
	s := New(db, nil, config.Server{Addr: ":0", StaticDir: dir})

	rec := get(t, s, "/feed?date_str=2026-03-14")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("content type = %q, want JSON", ct)
	}
	var body struct {
		Date  string           `json:"date"`
		Items []store.FeedItem `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Date != "2026-03-14" || len(body.Items) != 1 {
		t.Errorf("envelope = %+v", body)
	}

	for _, path := range []string{"/feed/dates", "/search?q=water", "/events", "/analytics/trending", "/analytics/timeline?kind=section&key=News"} {
		rec = get(t, s, path)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
		if strings.Contains(rec.Body.String(), "app shell") {
			t.Errorf("%s served the app shell", path)
		}
	}
}

func TestSimilarByQueryParam(t *testing.T) {
	s := newTestServer(t, &fakeReader{})

	// The fake has no embeddings, so a known id is 404 rather than the
	// SPA shell or a routing miss.
	rec := get(t, s, "/similar?id=42&limit=5")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	rec = get(t, s, "/similar?id=abc")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rec.Code)
	}

	rec = get(t, s, "/api/similar?id=42")
	if rec.Code != http.StatusNotFound {
		t.Errorf("api alias status = %d, want 404", rec.Code)
	}
}

func TestStaticFallbackNeverShadowsAPI(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "200.html"), []byte("<html>app shell</html>"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(&fakeReader{}, nil, config.Server{Addr: ":0", StaticDir: dir})

	rec := get(t, s, "/reader/some/client/route")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "app shell") {
		t.Errorf("spa fallback: status %d body %q", rec.Code, rec.Body.String())
	}

	rec = get(t, s, "/api/nope")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown api path status = %d, want 404", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "app shell") {
		t.Errorf("api path served the app shell")
	}
}
