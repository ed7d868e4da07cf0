// Package summarize runs the LLM batch worker: claim extracted
// articles, generate structured summaries, store them and advance the
// processing status.
package summarize

import (
	"context"
	"fmt"
	"sync"
	"time"

	"newsward/internal/core"
	"newsward/internal/llm"
	"newsward/internal/logger"

	"golang.org/x/sync/semaphore"
)

// Storage is the worker's view of the database.
type Storage interface {
	ArticlesForSummarization(ctx context.Context, limit int) ([]core.Article, error)
	StoreSummary(ctx context.Context, sum *core.Summary) error
	StoreEmbedding(ctx context.Context, articleID int64, vec []float32) error
	MarkFailed(ctx context.Context, articleID int64, reason string) error
}

// Worker summarizes batches of extracted articles.
type Worker struct {
	store         Storage
	client        llm.ChatClient
	model         string
	inputCharCap  int
	maxConcurrent int
}

// NewWorker wires the batch worker.
func NewWorker(store Storage, client llm.ChatClient, model string, inputCharCap, maxConcurrent int) *Worker {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if inputCharCap <= 0 {
		inputCharCap = 6000
	}
	return &Worker{
		store:         store,
		client:        client,
		model:         model,
		inputCharCap:  inputCharCap,
		maxConcurrent: maxConcurrent,
	}
}

// RunBatch processes up to batchSize articles. Failures are isolated:
// a bad article is marked failed and the rest of the batch continues.
// When the model keeps rate limiting, in-flight concurrency is reduced
// one slot at a time down to serial operation.
func (w *Worker) RunBatch(ctx context.Context, batchSize int) (core.BatchReport, error) {
	report := core.BatchReport{Requested: batchSize}

	articles, err := w.store.ArticlesForSummarization(ctx, batchSize)
	if err != nil {
		return report, fmt.Errorf("claim batch: %w", err)
	}
	report.Picked = len(articles)
	if len(articles) == 0 {
		logger.Info("no articles awaiting summarization")
		return report, nil
	}

	sem := semaphore.NewWeighted(int64(w.maxConcurrent))
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		throttled int // permanently acquired slots after persistent 429s
	)

	for i := range articles {
		a := articles[i]
		if err := sem.Acquire(ctx, 1); err != nil {
			break // context cancelled
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			err := w.summarizeOne(ctx, &a)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Succeeded++
			case llm.IsRateLimited(err) && throttled < w.maxConcurrent-1:
				// Shed one slot for the rest of the batch; the article
				// stays extracted and is retried next run.
				if sem.TryAcquire(1) {
					throttled++
					logger.Warn("reducing summarizer concurrency after rate limit",
						"in_flight_cap", w.maxConcurrent-throttled)
				}
			case llm.IsRateLimited(err):
				logger.Warn("rate limited at serial concurrency, leaving article for next run",
					"article_id", a.ID)
			default:
				report.Failed++
				if mErr := w.store.MarkFailed(ctx, a.ID, err.Error()); mErr != nil {
					logger.Error("mark failed", mErr, "article_id", a.ID)
				}
			}
		}()
	}
	wg.Wait()

	logger.Info("batch complete",
		"picked", report.Picked, "succeeded", report.Succeeded, "failed", report.Failed)
	return report, nil
}

// summarizeOne generates, parses and stores the summary for one article.
func (w *Worker) summarizeOne(ctx context.Context, a *core.Article) error {
	started := time.Now()
	user := BuildUserPrompt(a.Section, a.Title, a.Content, w.inputCharCap)

	raw, tokens, err := w.client.Complete(ctx, SystemPrompt, user)
	if err != nil {
		return fmt.Errorf("article %d: %w", a.ID, err)
	}

	ms, err := ParseModelOutput(raw)
	if err != nil {
		return fmt.Errorf("article %d: %w", a.ID, err)
	}

	sum := &core.Summary{
		ArticleID:        a.ID,
		SummaryText:      FoldKeyPoints(ms),
		SummaryType:      "brief",
		Sentiment:        ms.Sentiment,
		Topics:           ms.Topics,
		ConfidenceScore:  ms.ConfidenceScore,
		ModelUsed:        w.model,
		TokensUsed:       tokens,
		GenerationTimeMS: time.Since(started).Milliseconds(),
	}
	if err := w.store.StoreSummary(ctx, sum); err != nil {
		return fmt.Errorf("article %d: %w", a.ID, err)
	}

	// Embeddings are best-effort: a failure never blocks the summary.
	if vec, err := w.client.Embed(ctx, a.Title+"\n"+ms.Summary); err != nil {
		logger.Warn("embedding failed", "article_id", a.ID, "error", err.Error())
	} else if vec != nil {
		if err := w.store.StoreEmbedding(ctx, a.ID, vec); err != nil {
			logger.Warn("store embedding failed", "article_id", a.ID, "error", err.Error())
		}
	}

	logger.Debug("article summarized", "article_id", a.ID, "tokens", tokens)
	return nil
}
