package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"newsward/internal/core"
	"newsward/internal/normalize"
	"newsward/internal/store"

	"github.com/go-chi/chi/v5"
)

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, errorResponse{Error: msg})
}

// respondStoreError maps error kinds onto HTTP statuses without
// leaking query internals to the client.
func (s *Server) respondStoreError(w http.ResponseWriter, err error) {
	switch core.KindOf(err) {
	case core.KindNotFound:
		s.respondError(w, http.StatusNotFound, "not found")
	case core.KindConfig, core.KindData:
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("store query failed", "error", err)
		s.respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// intQuery reads an integer query parameter with a default and an
// upper bound. An explicit zero is honored.
func intQuery(r *http.Request, name string, def, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

// dateQuery reads the edition date, accepting date_str as an alias.
func dateQuery(r *http.Request) string {
	q := r.URL.Query()
	if v := q.Get("date_str"); v != "" {
		return v
	}
	return q.Get("date")
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func validDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"database": "ok"}
	if err := s.db.Health(r.Context()); err != nil {
		checks["database"] = "error"
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "checks": checks})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "checks": checks})
}

// handleFeed serves GET /api/feed?date=&section=&q=&limit=.
func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := dateQuery(r)
	if date == "" {
		date = time.Now().Format("2006-01-02")
	} else if !validDate(date) {
		s.respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	section := q.Get("section")
	if section != "" {
		section = normalize.Section(section)
	}

	items, err := s.db.Feed(r.Context(), store.FeedQuery{
		Date:    date,
		Section: section,
		Search:  q.Get("q"),
		Limit:   intQuery(r, "limit", 50, 200),
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"date":  date,
		"count": len(items),
		"items": items,
	})
}

// handleFeedDates serves GET /api/feed/dates.
func (s *Server) handleFeedDates(w http.ResponseWriter, r *http.Request) {
	dates, err := s.db.FeedDates(r.Context(), intQuery(r, "limit", 14, 60))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"dates": dates})
}

// handleSearch serves GET /api/search?q=. The query is required.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	items, err := s.db.Search(r.Context(), query, intQuery(r, "limit", 20, 50))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, items)
}

// handleArticle serves GET /api/articles/{id}.
func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "invalid article id")
		return
	}
	detail, err := s.db.GetArticle(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, detail)
}

// handleSimilar serves GET /api/articles/{id}/similar.
func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "invalid article id")
		return
	}
	s.respondSimilar(w, r, id)
}

// handleSimilarByQuery serves GET /similar?id=&limit=.
func (s *Server) handleSimilarByQuery(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.URL.Query().Get("id"), 10, 64)
	if err != nil || id < 1 {
		s.respondError(w, http.StatusBadRequest, "invalid article id")
		return
	}
	s.respondSimilar(w, r, id)
}

func (s *Server) respondSimilar(w http.ResponseWriter, r *http.Request, id int64) {
	items, err := s.db.Similar(r.Context(), id, intQuery(r, "limit", 10, 50))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, items)
}

// handleEvents serves GET /api/events?days=. Events come back grouped
// by their local start date.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	days := intQuery(r, "days", 30, 365)
	events, err := s.db.UpcomingEvents(r.Context(), days)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	grouped := map[string][]store.UpcomingEvent{}
	for _, ev := range events {
		day := ev.StartTime.Local().Format("2006-01-02")
		grouped[day] = append(grouped[day], ev)
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"days": days, "events": grouped})
}

// handleTrending serves GET /api/analytics/trending?date=&kind=&limit=.
func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := dateQuery(r)
	if date == "" {
		date = time.Now().Format("2006-01-02")
	} else if !validDate(date) {
		s.respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	kind := q.Get("kind")
	if kind == "" {
		kind = "topic"
	}
	switch kind {
	case "section", "tag", "topic", "entity":
	default:
		s.respondError(w, http.StatusBadRequest, "kind must be section, tag, topic or entity")
		return
	}

	items, err := s.db.Trending(r.Context(), date, kind, intQuery(r, "limit", 20, 100))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, items)
}

// handleTimeline serves GET /api/analytics/timeline?kind=&key=&days=.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind, key := q.Get("kind"), q.Get("key")
	if kind == "" || key == "" {
		s.respondError(w, http.StatusBadRequest, "kind and key are required")
		return
	}
	points, err := s.db.Timeline(r.Context(), kind, key, intQuery(r, "days", 30, 365))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, points)
}
