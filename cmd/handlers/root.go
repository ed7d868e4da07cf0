// Package handlers holds the cobra commands wiring the pipeline
// stages together.
package handlers

import (
	"context"
	"fmt"
	"os"

	"newsward/internal/blobstore"
	"newsward/internal/config"
	"newsward/internal/core"
	"newsward/internal/store"

	"github.com/spf13/cobra"
)

var cfgFile string

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "newsward",
		Short: "Newsward turns a local paper's e-edition into a summarized news feed.",
		Long: `Newsward scrapes a publisher's e-edition behind its paywall, extracts
articles from the raw pages, summarizes them against an LLM and serves
the result as a browsable feed with a daily push digest.

Each pipeline stage is its own subcommand so stages can run on
independent schedules (cron, one-off, or long-running).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./newsward.yaml)")

	rootCmd.AddCommand(NewScrapeCmd())
	rootCmd.AddCommand(NewExtractCmd())
	rootCmd.AddCommand(NewSummarizeCmd())
	rootCmd.AddCommand(NewNotifyCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewAnalyticsCmd())
	rootCmd.AddCommand(NewMigrateCmd())

	return rootCmd
}

// Execute runs the root command, mapping error kinds onto exit codes
// so schedulers can tell auth failures from transient ones.
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(core.ExitCode(err))
	}
}

// initConfig reads the config file and environment variables.
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(core.ExitCode(err))
	}
}

func openStore(ctx context.Context) (*store.Store, func(), error) {
	cfg := config.Get()
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, nil, err
	}
	st, pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return st, pool.Close, nil
}

func openBlobs(ctx context.Context) (*blobstore.Store, error) {
	cfg := config.Get()
	if err := cfg.ValidateBlobstore(); err != nil {
		return nil, err
	}
	return blobstore.New(ctx, cfg.Minio)
}
