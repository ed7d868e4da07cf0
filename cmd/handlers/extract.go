package handlers

import (
	"fmt"
	"time"

	"newsward/internal/config"
	"newsward/internal/core"
	"newsward/internal/extractor"

	"github.com/spf13/cobra"
)

// NewExtractCmd creates the extract command.
func NewExtractCmd() *cobra.Command {
	var (
		date string
		slug string
	)
	cmd := &cobra.Command{
		Use:     "extract",
		Aliases: []string{"extractor"},
		Short:   "Turn one edition's raw blobs into stored articles",
		Long: `Extract parses every raw blob of an edition (PDF pages and HTML
captures), splits them into articles, deduplicates against the store
and records calendar events mentioned in the text.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Get()
			if date == "" {
				date = time.Now().Format("2006-01-02")
			}
			if slug == "" {
				slug = cfg.Eedition.Slug
			}
			if slug == "" {
				return core.E(core.KindConfig, "publication slug not configured")
			}

			blobs, err := openBlobs(ctx)
			if err != nil {
				return err
			}
			st, closeDB, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			report, err := extractor.NewProcessor(blobs, st, nil).ProcessEdition(ctx, slug, date)
			if err != nil {
				return err
			}
			fmt.Printf("processed %d sources: %d articles (%d new, %d duplicate, %d failed) in %s\n",
				report.SourcesSeen, report.ArticlesFound, report.ArticlesNew,
				report.ArticlesDup, report.ArticlesFailed, report.ProcessingTime.Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "edition date YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&slug, "slug", "", "publication slug (default from config)")
	return cmd
}
