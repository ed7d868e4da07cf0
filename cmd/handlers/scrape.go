package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"newsward/internal/config"
	"newsward/internal/core"
	"newsward/internal/logger"
	"newsward/internal/proxy"
	"newsward/internal/scraper"

	"github.com/playwright-community/playwright-go"
	"github.com/spf13/cobra"
)

// NewScrapeCmd groups the browser-facing stages: login, discover,
// download and cache cleanup.
func NewScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "scrape",
		Aliases: []string{"scraper"},
		Short:   "Fetch raw e-edition pages into the object store",
	}
	cmd.AddCommand(newScrapeLoginCmd())
	cmd.AddCommand(newScrapeDiscoverCmd())
	cmd.AddCommand(newScrapeDownloadCmd())
	cmd.AddCommand(newScrapeBackfillCmd())
	cmd.AddCommand(newScrapeCleanupCmd())
	return cmd
}

func newScrapeLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and refresh the shared browser session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, mgr, err := buildSession(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			bctx, err := sess.Login(ctx)
			if err != nil {
				return err
			}
			defer bctx.Close()
			fmt.Println("session refreshed")
			return nil
		},
	}
}

func newScrapeDiscoverCmd() *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List the downloadable pages of an edition",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}
			if _, err := time.Parse("2006-01-02", date); err != nil {
				return core.E(core.KindConfig, "invalid date %q, want YYYY-MM-DD", date)
			}
			sess, mgr, err := buildSession(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			pages, err := discoverEdition(ctx, sess, mgr)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{"date": date, "pages": pages})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "edition date YYYY-MM-DD (default today)")
	return cmd
}

func newScrapeDownloadCmd() *cobra.Command {
	var (
		date  string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "download",
		Short: "Discover the current edition and download its raw pages",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Get()
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}
			if _, err := time.Parse("2006-01-02", date); err != nil {
				return core.E(core.KindConfig, "invalid date %q, want YYYY-MM-DD", date)
			}

			blobs, err := openBlobs(ctx)
			if err != nil {
				return err
			}
			sess, mgr, err := buildSession(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			pages, err := discoverEdition(ctx, sess, mgr)
			if err != nil {
				return err
			}

			pool := proxy.NewPool(cfg.Proxy)
			downloader := scraper.NewDownloader(blobs, pool, cfg.Scraper.Parallelism)
			results := downloader.DownloadEdition(ctx, cfg.Eedition.Slug, date, pages, force)

			fetched, cached, failed := scraper.CountResults(results)
			fmt.Printf("downloaded %d, cached %d, failed %d of %d pages\n", fetched, cached, failed, len(results))
			if failed > 0 && fetched+cached == 0 {
				return core.E(core.KindUpstream, "all %d pages failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "edition date YYYY-MM-DD (default today)")
	cmd.Flags().BoolVar(&force, "force", false, "re-download pages already in the object store")
	return cmd
}

func newScrapeBackfillCmd() *cobra.Command {
	var (
		from    string
		to      string
		force   bool
		allDays bool
	)
	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Download every edition in a historical date range",
		Long: `Backfill walks a date range oldest first and downloads each edition's
raw pages. The paper prints on Wednesdays and Saturdays, so other days
are skipped unless --all-days is set. Pages already in the object store
are reused unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Get()

			start, err := time.Parse("2006-01-02", from)
			if err != nil {
				return core.E(core.KindConfig, "invalid --from %q, want YYYY-MM-DD", from)
			}
			end, err := time.Parse("2006-01-02", to)
			if err != nil {
				return core.E(core.KindConfig, "invalid --to %q, want YYYY-MM-DD", to)
			}
			if end.Before(start) {
				return core.E(core.KindConfig, "--to %s is before --from %s", to, from)
			}

			blobs, err := openBlobs(ctx)
			if err != nil {
				return err
			}
			sess, mgr, err := buildSession(ctx)
			if err != nil {
				return err
			}
			defer mgr.Close()

			pool := proxy.NewPool(cfg.Proxy)
			downloader := scraper.NewDownloader(blobs, pool, cfg.Scraper.Parallelism)

			var totalFetched, totalCached, totalFailed, editions int
			for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
				if !allDays && !publicationDay(day) {
					continue
				}
				date := day.Format("2006-01-02")
				pages, err := discoverEdition(ctx, sess, mgr)
				if err != nil {
					return err
				}
				results := downloader.DownloadEdition(ctx, cfg.Eedition.Slug, date, pages, force)
				fetched, cached, failed := scraper.CountResults(results)
				fmt.Printf("%s: %d/%d pages ok (cache %d)\n", date, fetched+cached, len(results), cached)
				totalFetched += fetched
				totalCached += cached
				totalFailed += failed
				editions++
			}
			fmt.Printf("backfilled %d editions: downloaded %d, cached %d, failed %d\n",
				editions, totalFetched, totalCached, totalFailed)
			if totalFailed > 0 && totalFetched+totalCached == 0 {
				return core.E(core.KindUpstream, "all %d pages failed", totalFailed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "first edition date YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "last edition date YYYY-MM-DD")
	cmd.Flags().BoolVar(&force, "force", false, "re-download pages already in the object store")
	cmd.Flags().BoolVar(&allDays, "all-days", false, "try every day, not just publication days")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

// publicationDay reports whether the paper prints on that weekday.
func publicationDay(day time.Time) bool {
	wd := day.Weekday()
	return wd == time.Wednesday || wd == time.Saturday
}

func newScrapeCleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete raw edition blobs past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if days == 0 {
				days = config.Get().Scraper.RetentionDays
			}
			blobs, err := openBlobs(ctx)
			if err != nil {
				return err
			}
			removed, err := blobs.CleanupOlderThan(ctx, days)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d objects older than %d days\n", removed, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default from config)")
	return cmd
}

// buildSession wires the browser manager and session manager from
// config. The caller closes the returned manager.
func buildSession(ctx context.Context) (*scraper.SessionManager, *scraper.Manager, error) {
	cfg := config.Get()
	if err := cfg.ValidateScraper(); err != nil {
		return nil, nil, err
	}
	blobs, err := openBlobs(ctx)
	if err != nil {
		return nil, nil, err
	}

	pool := proxy.NewPool(cfg.Proxy)
	var pwProxy *playwright.Proxy
	if e, ok := pool.Next(); ok {
		pwProxy = pool.Playwright(e)
	}

	mgr := scraper.NewManager(cfg.Scraper.Browser, cfg.Scraper.Trace, pwProxy)
	sess := scraper.NewSessionManager(mgr, blobs, cfg.Eedition, cfg.Scraper.StateDir)
	return sess, mgr, nil
}

// discoverEdition opens an authenticated page on the edition home and
// lists its downloadable pages.
func discoverEdition(ctx context.Context, sess *scraper.SessionManager, mgr *scraper.Manager) ([]core.EditionPage, error) {
	cfg := config.Get()
	bctx, err := sess.Ensure(ctx)
	if err != nil {
		return nil, err
	}
	tracePath := ""
	if cfg.Scraper.Trace {
		tracePath = filepath.Join(cfg.Scraper.StateDir, "trace-"+time.Now().Format("20060102-150405")+".zip")
	}
	defer mgr.CloseContext(bctx, tracePath)

	page, err := bctx.NewPage()
	if err != nil {
		return nil, core.E(core.KindUpstream, "new page", err)
	}
	defer page.Close()

	if _, err := page.Goto(cfg.Eedition.BaseURL, playwright.PageGotoOptions{Timeout: playwright.Float(30000)}); err != nil {
		return nil, core.E(core.KindUpstream, "load %s", cfg.Eedition.BaseURL, err)
	}
	if err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(15000),
	}); err != nil {
		logger.Warn("networkidle not reached", "error", err.Error())
	}

	return scraper.DiscoverEdition(page, cfg.Eedition.BaseURL)
}
