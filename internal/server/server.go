// Package server exposes the read API over the article store: the
// edition feed, search, similarity, analytics, events and raw source
// pages, plus the static reader UI.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"newsward/internal/blobstore"
	"newsward/internal/config"
	"newsward/internal/logger"
	"newsward/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Reader is the subset of the store the API serves from.
type Reader interface {
	Health(ctx context.Context) error
	FeedDates(ctx context.Context, limit int) ([]store.FeedDate, error)
	Feed(ctx context.Context, q store.FeedQuery) ([]store.FeedItem, error)
	Search(ctx context.Context, query string, limit int) ([]store.FeedItem, error)
	Similar(ctx context.Context, articleID int64, limit int) ([]store.FeedItem, error)
	GetArticle(ctx context.Context, id int64) (*store.ArticleDetail, error)
	UpcomingEvents(ctx context.Context, horizonDays int) ([]store.UpcomingEvent, error)
	Trending(ctx context.Context, date, kind string, limit int) ([]store.TrendingItem, error)
	Timeline(ctx context.Context, kind, key string, days int) ([]store.TimelinePoint, error)
}

// BlobReader serves raw source blobs. May be nil when the object store
// is not configured; source pages then fall back to the original URL.
type BlobReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Stat(ctx context.Context, key string) (blobstore.ObjectInfo, error)
}

// Server is the HTTP read API.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	db         Reader
	blobs      BlobReader
	staticDir  string
	log        *slog.Logger
}

// New builds the server with middleware and routes installed.
func New(db Reader, blobs BlobReader, cfg config.Server) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		db:        db,
		blobs:     blobs,
		staticDir: cfg.StaticDir,
		log:       logger.Get(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	// The API answers both under /api and at the bare paths; clients
	// and the bundled UI use /api, scripts tend to use the bare form.
	s.router.Route("/api", s.mountAPI)
	s.mountAPI(s.router)

	// Everything else is the reader UI.
	s.router.NotFound(s.handleStatic)
}

func (s *Server) mountAPI(r chi.Router) {
	r.Get("/feed", s.handleFeed)
	r.Get("/feed/dates", s.handleFeedDates)
	r.Get("/search", s.handleSearch)
	r.Get("/similar", s.handleSimilarByQuery)
	r.Get("/events", s.handleEvents)

	r.Route("/articles/{id}", func(r chi.Router) {
		r.Get("/", s.handleArticle)
		r.Get("/similar", s.handleSimilar)
		r.Get("/source", s.handleArticleSource)
	})

	r.Route("/analytics", func(r chi.Router) {
		r.Get("/trending", s.handleTrending)
		r.Get("/timeline", s.handleTimeline)
	})
}

// Start runs the server until it is shut down.
func (s *Server) Start() error {
	s.log.Info("starting http server", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
