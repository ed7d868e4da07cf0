package handlers

import (
	"fmt"
	"time"

	"newsward/internal/config"
	"newsward/internal/llm"
	"newsward/internal/summarize"

	"github.com/spf13/cobra"
)

// NewSummarizeCmd groups the summarizer: one-shot batches and the
// long-running worker loop.
func NewSummarizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "summarize",
		Aliases: []string{"summarizer"},
		Short:   "Generate summaries for extracted articles",
	}
	cmd.AddCommand(newSummarizeBatchCmd())
	cmd.AddCommand(newSummarizeWorkerCmd())
	cmd.AddCommand(newSummarizeServeCmd())
	return cmd
}

func buildWorker(st summarize.Storage, maxConcurrent int) (*summarize.Worker, error) {
	cfg := config.Get()
	if err := cfg.ValidateLLM(); err != nil {
		return nil, err
	}
	if maxConcurrent == 0 {
		maxConcurrent = cfg.Worker.MaxConcurrent
	}
	client := llm.NewClient(cfg.LLM)
	return summarize.NewWorker(st, client, cfg.LLM.Model, cfg.LLM.InputCharCap, maxConcurrent), nil
}

func newSummarizeBatchCmd() *cobra.Command {
	var (
		batchSize     int
		maxConcurrent int
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Summarize one batch of pending articles and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if batchSize == 0 {
				batchSize = config.Get().Worker.BatchSize
			}
			st, closeDB, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			worker, err := buildWorker(st, maxConcurrent)
			if err != nil {
				return err
			}
			report, err := worker.RunBatch(ctx, batchSize)
			if err != nil {
				return err
			}
			fmt.Printf("picked %d of %d requested: %d succeeded, %d failed\n",
				report.Picked, report.Requested, report.Succeeded, report.Failed)
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "articles per batch (default from config)")
	cmd.Flags().IntVar(&maxConcurrent, "max-concurrent", 0, "in-flight LLM calls (default from config)")
	return cmd
}

// newSummarizeServeCmd starts the read API. It is the same server as
// the top-level serve command, reachable here because deployments that
// address the stages by name expect the API under the summarizer.
func newSummarizeServeCmd() *cobra.Command {
	var (
		addr      string
		staticDir string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the read API and reader UI",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), addr, staticDir)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config: :8000)")
	cmd.Flags().StringVar(&staticDir, "static-dir", "", "reader UI directory (default from config)")
	return cmd
}

func newSummarizeWorkerCmd() *cobra.Command {
	var (
		batchSize int
		interval  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the summarizer loop until interrupted",
		Long: `Worker polls for extracted articles and summarizes them in batches.
An empty batch sleeps for the poll interval before trying again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if batchSize == 0 {
				batchSize = config.Get().Worker.BatchSize
			}
			st, closeDB, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			worker, err := buildWorker(st, 0)
			if err != nil {
				return err
			}
			for {
				report, err := worker.RunBatch(ctx, batchSize)
				if err != nil {
					return err
				}
				if report.Picked == 0 {
					select {
					case <-time.After(interval):
					case <-ctx.Done():
						return nil
					}
				}
			}
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "articles per batch (default from config)")
	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "poll interval between empty batches")
	return cmd
}
