package handlers

import (
	"fmt"
	"time"

	"newsward/internal/analytics"

	"github.com/spf13/cobra"
)

// NewAnalyticsCmd creates the analytics rebuild command.
func NewAnalyticsCmd() *cobra.Command {
	var (
		days   int
		window int
	)
	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Rebuild daily metrics and trending scores",
		Long: `Analytics recomputes the per-day section, tag, topic and entity counts and
rescores trending keys against their trailing window. Rebuilding is
idempotent, so the range can overlap previous runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, closeDB, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			dates := analytics.DateRange(time.Now(), days)
			if err := analytics.Run(ctx, st, dates, window); err != nil {
				return err
			}
			fmt.Printf("rebuilt analytics for %d days (window %d)\n", len(dates), window)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 1, "days back from today to rebuild")
	cmd.Flags().IntVar(&window, "window", 14, "trailing window in days for trending scores")
	return cmd
}
