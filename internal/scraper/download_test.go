package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"newsward/internal/core"

	"golang.org/x/time/rate"
)

type fakeBlobWriter struct {
	mu      sync.Mutex
	objects map[string][]byte
	meta    map[string]map[string]string
}

func newFakeBlobWriter() *fakeBlobWriter {
	return &fakeBlobWriter{objects: map[string][]byte{}, meta: map[string]map[string]string{}}
}

func (f *fakeBlobWriter) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeBlobWriter) Put(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	f.meta[key] = metadata
	return nil
}

func testDownloader(blobs BlobWriter, client *http.Client) *Downloader {
	return &Downloader{
		blobs:    blobs,
		client:   client,
		limiter:  rate.NewLimiter(rate.Inf, 1),
		parallel: 2,
	}
}

func TestDownloadEditionStoresBlobsWithMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	blobs := newFakeBlobWriter()
	d := testDownloader(blobs, srv.Client())
	pages := []core.EditionPage{
		{URL: srv.URL + "/page_01.pdf", PageNumber: 1, Section: "local", Format: "pdf"},
		{URL: srv.URL + "/page_02.pdf", PageNumber: 2, Format: "pdf"},
	}

	results := d.DownloadEdition(context.Background(), "gazette", "2026-03-14", pages, false)
	fetched, cached, failed := CountResults(results)
	if fetched != 2 || cached != 0 || failed != 0 {
		t.Fatalf("fetched/cached/failed = %d/%d/%d", fetched, cached, failed)
	}
	for _, r := range results {
		if r.Bytes == 0 || r.Key == "" {
			t.Errorf("result missing key or size: %+v", r)
		}
		m := blobs.meta[r.Key]
		if m["source-url"] != r.Page.URL || m["sha256"] == "" {
			t.Errorf("metadata for %s = %v", r.Key, m)
		}
	}
	if blobs.meta[results[0].Key]["section"] != "local" {
		t.Errorf("section metadata missing: %v", blobs.meta[results[0].Key])
	}
}

func TestDownloadEditionSkipsCached(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("content"))
	}))
	defer srv.Close()

	blobs := newFakeBlobWriter()
	d := testDownloader(blobs, srv.Client())
	pages := []core.EditionPage{{URL: srv.URL + "/page_01.pdf", PageNumber: 1, Format: "pdf"}}

	first := d.DownloadEdition(context.Background(), "gazette", "2026-03-14", pages, false)
	second := d.DownloadEdition(context.Background(), "gazette", "2026-03-14", pages, false)
	if first[0].Status != core.DownloadFetched || second[0].Status != core.DownloadCached {
		t.Errorf("statuses = %q, %q", first[0].Status, second[0].Status)
	}
	if hits.Load() != 1 {
		t.Errorf("server hit %d times, want 1", hits.Load())
	}

	forced := d.DownloadEdition(context.Background(), "gazette", "2026-03-14", pages, true)
	if forced[0].Status != core.DownloadFetched || hits.Load() != 2 {
		t.Errorf("force refresh did not re-download: %q, hits %d", forced[0].Status, hits.Load())
	}
}

func TestFetchRetriesRateLimit(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	d := testDownloader(newFakeBlobWriter(), srv.Client())
	data, _, err := d.fetch(context.Background(), srv.URL+"/p1.pdf")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(data) != "recovered" {
		t.Errorf("data = %q", data)
	}
	if hits.Load() != 2 {
		t.Errorf("hits = %d, want 2", hits.Load())
	}
}

func TestFetchGivesUpOnAuthError(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	d := testDownloader(newFakeBlobWriter(), srv.Client())
	_, _, err := d.fetch(context.Background(), srv.URL+"/p1.pdf")
	if core.KindOf(err) != core.KindAuth {
		t.Errorf("err = %v, want auth kind", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, auth errors must not retry", hits.Load())
	}
}

func TestFetchRetriesProxyBlocks(t *testing.T) {
	// 403 and 407 come from burned proxy exits; the next attempt goes
	// out through a different endpoint and should be allowed to try.
	for _, status := range []int{http.StatusForbidden, http.StatusProxyAuthRequired} {
		var hits atomic.Int64
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) == 1 {
				w.WriteHeader(status)
				return
			}
			w.Write([]byte("rotated"))
		}))

		d := testDownloader(newFakeBlobWriter(), srv.Client())
		data, _, err := d.fetch(context.Background(), srv.URL+"/p1.pdf")
		if err != nil {
			t.Errorf("status %d: fetch: %v", status, err)
		}
		if string(data) != "rotated" {
			t.Errorf("status %d: data = %q", status, data)
		}
		if hits.Load() != 2 {
			t.Errorf("status %d: hits = %d, want 2", status, hits.Load())
		}
		srv.Close()
	}
}
