package handlers

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"newsward/internal/config"
	"newsward/internal/logger"
	"newsward/internal/server"

	"github.com/spf13/cobra"
)

// NewServeCmd creates the serve command for the read API and UI.
func NewServeCmd() *cobra.Command {
	var (
		addr      string
		staticDir string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and reader UI",
		Long: `Serve starts the HTTP server over the article store: the edition
feed, search, similarity, events, analytics and raw source pages, plus
the static reader UI.

The server only reads; run the scrape, extract, summarize and notify
stages separately to keep content fresh.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr, staticDir)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config: :8000)")
	cmd.Flags().StringVar(&staticDir, "static-dir", "", "reader UI directory (default from config)")
	return cmd
}

func runServe(ctx context.Context, addr, staticDir string) error {
	log := logger.Get()
	cfg := config.Get()

	serverCfg := cfg.Server
	if addr != "" {
		serverCfg.Addr = addr
	}
	if staticDir != "" {
		serverCfg.StaticDir = staticDir
	}

	st, closeDB, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	// The object store is optional here; without it source pages fall
	// back to the original article URL.
	var blobs server.BlobReader
	if b, err := openBlobs(ctx); err == nil {
		blobs = b
	} else {
		log.Warn("object store unavailable, source pages degrade to redirects", "error", err)
	}

	srv := server.New(st, blobs, serverCfg)

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", serverCfg.Addr)
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("shutdown requested", "signal", sig.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
	}
	return nil
}
