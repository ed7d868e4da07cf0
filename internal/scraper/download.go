package scraper

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"newsward/internal/blobstore"
	"newsward/internal/core"
	"newsward/internal/logger"
	"newsward/internal/proxy"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	fetchTimeout   = 60 * time.Second
	fetchAttempts  = 5
	backoffInitial = time.Second
	backoffCap     = 30 * time.Second
)

// Headers sent with raw page fetches. The site serves different markup
// to obvious bots.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.5",
}

// BlobWriter is the downloader's view of the object store.
type BlobWriter interface {
	Exists(ctx context.Context, key string) (bool, error)
	Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error
}

// Downloader fetches edition page blobs through the proxy pool with a
// politeness limit of one request per second across all workers.
type Downloader struct {
	blobs    BlobWriter
	client   *http.Client
	limiter  *rate.Limiter
	parallel int
}

// NewDownloader wires a downloader. The pool may be empty for direct
// connections; each request still picks a fresh endpoint when rotation
// is on.
func NewDownloader(blobs BlobWriter, pool *proxy.Pool, parallelism int) *Downloader {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Downloader{
		blobs:    blobs,
		client:   &http.Client{Transport: pool.Transport(), Timeout: fetchTimeout},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		parallel: parallelism,
	}
}

// DownloadEdition fetches every page blob for an edition, reusing what
// the store already holds unless force is set. Page failures are
// isolated; the result slice always has one entry per input page.
func (d *Downloader) DownloadEdition(ctx context.Context, slug, date string, pages []core.EditionPage, force bool) []core.DownloadResult {
	results := make([]core.DownloadResult, len(pages))
	sem := semaphore.NewWeighted(int64(d.parallel))
	var wg sync.WaitGroup

	for i := range pages {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = core.DownloadResult{Page: pages[i], Status: core.DownloadFailed, Err: err.Error()}
			continue
		}
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = d.downloadPage(ctx, slug, date, pages[i], force)
		}(i)
	}
	wg.Wait()

	fetched, cached, failed := CountResults(results)
	logger.Info("edition download finished",
		"publication", slug, "date", date,
		"fetched", fetched, "cached", cached, "failed", failed)
	return results
}

// CountResults tallies a result slice by status.
func CountResults(results []core.DownloadResult) (fetched, cached, failed int) {
	for _, r := range results {
		switch r.Status {
		case core.DownloadFetched:
			fetched++
		case core.DownloadCached:
			cached++
		case core.DownloadFailed:
			failed++
		}
	}
	return fetched, cached, failed
}

func (d *Downloader) downloadPage(ctx context.Context, slug, date string, page core.EditionPage, force bool) core.DownloadResult {
	key := blobstore.RawKey(date, slug, page.URL, extFor(page))
	res := core.DownloadResult{Page: page, Key: key}

	if !force {
		if ok, err := d.blobs.Exists(ctx, key); err == nil && ok {
			res.Status = core.DownloadCached
			return res
		}
	}

	data, contentType, err := d.fetch(ctx, page.URL)
	if err != nil {
		logger.Warn("download failed", "url", page.URL, "error", err.Error())
		res.Status = core.DownloadFailed
		res.Err = err.Error()
		return res
	}

	sum := sha256.Sum256(data)
	meta := map[string]string{
		"source-url":  page.URL,
		"page-number": strconv.Itoa(page.PageNumber),
		"sha256":      hex.EncodeToString(sum[:]),
		"fetched-at":  time.Now().UTC().Format(time.RFC3339),
	}
	if page.Section != "" {
		meta["section"] = page.Section
	}
	if err := d.blobs.Put(ctx, key, data, contentType, meta); err != nil {
		res.Status = core.DownloadFailed
		res.Err = err.Error()
		return res
	}

	res.Status = core.DownloadFetched
	res.Bytes = int64(len(data))
	return res
}

// fetch retries transient failures with doubling backoff, honoring
// Retry-After on 429 responses.
func (d *Downloader) fetch(ctx context.Context, pageURL string) ([]byte, string, error) {
	var lastErr error
	delay := backoffInitial
	for attempt := 1; attempt <= fetchAttempts; attempt++ {
		if err := d.limiter.Wait(ctx); err != nil {
			return nil, "", core.E(core.KindTransient, "rate limiter", err)
		}
		data, contentType, retryIn, err := d.attempt(ctx, pageURL)
		if err == nil {
			return data, contentType, nil
		}
		lastErr = err
		if !core.IsRetryable(err) {
			return nil, "", err
		}
		if attempt == fetchAttempts {
			break
		}
		wait := delay
		if retryIn > 0 {
			wait = retryIn
		}
		logger.Warn("retrying download", "url", pageURL, "attempt", attempt, "wait", wait.String())
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, "", core.E(core.KindTransient, "download canceled", ctx.Err())
		}
		delay *= 2
		if delay > backoffCap {
			delay = backoffCap
		}
	}
	return nil, "", lastErr
}

func (d *Downloader) attempt(ctx context.Context, pageURL string) ([]byte, string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, "", 0, core.E(core.KindConfig, "bad url %s", pageURL, err)
	}
	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", 0, core.E(core.KindTransient, "get %s", pageURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, "", retryAfter(resp), core.E(core.KindRateLimited, "got 429 from %s", pageURL)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, "", 0, core.E(core.KindAuth, "got 401 from %s", pageURL)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusProxyAuthRequired:
		// Proxy blocks: the transport picks a fresh endpoint per
		// request, so the retry goes out through another exit.
		return nil, "", 0, core.E(core.KindTransient, "got %d from %s", resp.StatusCode, pageURL)
	case resp.StatusCode >= 500:
		return nil, "", 0, core.E(core.KindUpstream, "got %d from %s", resp.StatusCode, pageURL)
	case resp.StatusCode != http.StatusOK:
		return nil, "", 0, core.E(core.KindData, "got %d from %s", resp.StatusCode, pageURL)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", 0, core.E(core.KindTransient, "read %s", pageURL, err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return data, contentType, 0, nil
}

func retryAfter(resp *http.Response) time.Duration {
	if s := resp.Header.Get("Retry-After"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 0
}

func extFor(page core.EditionPage) string {
	if page.Format == "pdf" || strings.HasSuffix(strings.ToLower(page.URL), ".pdf") {
		return "pdf"
	}
	return "html"
}
