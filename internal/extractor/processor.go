package extractor

import (
	"context"
	"strconv"
	"strings"
	"time"

	"newsward/internal/blobstore"
	"newsward/internal/core"
	"newsward/internal/events"
	"newsward/internal/logger"
	"newsward/internal/normalize"

	"github.com/google/uuid"
)

// BlobSource is the processor's view of the object store.
type BlobSource interface {
	List(ctx context.Context, prefix string) ([]blobstore.ObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, error)
}

// ArticleSink is the processor's view of the database.
type ArticleSink interface {
	InsertArticle(ctx context.Context, a *core.Article) (int64, bool, error)
	InsertEvents(ctx context.Context, articleID int64, evs []core.ArticleEvent) error
	RecordProcessingHistory(ctx context.Context, dateProcessed, sourceType, sourceIdentifier string,
		report core.ProcessingReport, status, errorMessage string) error
}

// Processor drives extraction over one edition's raw blobs.
type Processor struct {
	blobs    BlobSource
	sink     ArticleSink
	strategy SplitStrategy // nil means ColumnSplit
}

// NewProcessor wires an edition processor.
func NewProcessor(blobs BlobSource, sink ArticleSink, strategy SplitStrategy) *Processor {
	return &Processor{blobs: blobs, sink: sink, strategy: strategy}
}

// ProcessEdition extracts every raw blob of an edition in key order,
// deduplicates via the content-hash constraint and records one
// processing_history row per source type. Individual blob failures are
// logged and counted without aborting the run.
func (p *Processor) ProcessEdition(ctx context.Context, slug, date string) (core.ProcessingReport, error) {
	started := time.Now()
	runID := uuid.NewString()
	report := core.ProcessingReport{Publication: slug, EditionDate: date}

	editionDate, err := time.Parse("2006-01-02", date)
	if err != nil {
		return report, core.E(core.KindConfig, "invalid edition date %q", date)
	}

	prefix := blobstore.RawPrefix(date, slug)
	objects, err := p.blobs.List(ctx, prefix)
	if err != nil {
		return report, err
	}
	if len(objects) == 0 {
		return report, core.E(core.KindNotFound, "no raw blobs under %s", prefix)
	}

	perSource := map[string]*core.ProcessingReport{}
	var firstErr string

	for _, obj := range objects {
		report.SourcesSeen++
		sourceType := blobSourceType(obj)
		sub := perSource[sourceType]
		if sub == nil {
			sub = &core.ProcessingReport{}
			perSource[sourceType] = sub
		}

		articles, err := p.extractBlob(ctx, obj, sourceType)
		if err != nil {
			logger.Warn("blob extraction failed", "key", obj.Key, "error", err.Error())
			report.ArticlesFailed++
			if firstErr == "" {
				firstErr = err.Error()
			}
			continue
		}

		for i := range articles {
			a := &articles[i]
			evs := events.Extract(a.Content, editionDate)
			p.finalize(a, slug, date, runID, evs)

			_, dup, err := p.sink.InsertArticle(ctx, a)
			if err != nil {
				logger.Warn("insert failed", "key", obj.Key, "title", a.Title, "error", err.Error())
				report.ArticlesFailed++
				continue
			}
			report.ArticlesFound++
			sub.ArticlesFound++
			if dup {
				report.ArticlesDup++
				sub.ArticlesDup++
				continue
			}
			report.ArticlesNew++
			sub.ArticlesNew++

			if len(evs) > 0 {
				if err := p.sink.InsertEvents(ctx, a.ID, evs); err != nil {
					logger.Warn("insert events failed", "article_id", a.ID, "error", err.Error())
				}
			}
		}
	}

	report.ProcessingTime = time.Since(started)
	report.ProcessingTimeMS = report.ProcessingTime.Milliseconds()

	status := "completed"
	if report.ArticlesFailed > 0 && report.ArticlesNew == 0 {
		status = "failed"
	} else if report.ArticlesFailed > 0 {
		status = "partial"
	}
	for sourceType, sub := range perSource {
		sub.ProcessingTimeMS = report.ProcessingTimeMS
		if err := p.sink.RecordProcessingHistory(ctx, date, sourceType, slug, *sub, status, firstErr); err != nil {
			logger.Error("record processing history", err, "source_type", sourceType)
		}
	}

	logger.Info("edition processed",
		"run_id", runID, "publication", slug, "date", date,
		"sources", report.SourcesSeen, "found", report.ArticlesFound,
		"new", report.ArticlesNew, "duplicate", report.ArticlesDup, "failed", report.ArticlesFailed)
	return report, nil
}

// extractBlob dispatches one blob to the matching pipeline.
func (p *Processor) extractBlob(ctx context.Context, obj blobstore.ObjectInfo, sourceType string) ([]core.Article, error) {
	data, err := p.blobs.Get(ctx, obj.Key)
	if err != nil {
		return nil, err
	}

	pageNumber, _ := strconv.Atoi(obj.Metadata["page-number"])
	section := obj.Metadata["section"]
	pageURL := obj.Metadata["source-url"]

	switch sourceType {
	case core.SourcePDF:
		return ExtractPDFPage(data, pageNumber, section, obj.Key, p.strategy)
	case core.SourceHTML:
		a, err := ExtractHTMLArticle(data, pageURL, obj.Key)
		if err != nil {
			return nil, err
		}
		if a.PageNumber == 0 {
			a.PageNumber = pageNumber
		}
		if section != "" && a.Section == "General" {
			a.Section = normalize.Section(section)
		}
		return []core.Article{*a}, nil
	default:
		return nil, core.E(core.KindData, "unsupported blob type for %s", obj.Key)
	}
}

// finalize stamps the normalization-derived fields before insert.
func (p *Processor) finalize(a *core.Article, slug, date, runID string, evs []core.ArticleEvent) {
	a.Publication = slug
	a.EditionDate = date
	if a.Metadata == nil {
		a.Metadata = map[string]string{}
	}
	a.Metadata["run_id"] = runID
	a.ContentHash = normalize.ContentHash(a.Content)
	a.WordCount = normalize.WordCount(a.Content)
	a.DateExtracted = time.Now().UTC()
	a.ProcessingStatus = core.StatusExtracted
	if a.Section == "" {
		a.Section = normalize.Section("")
	}
	if a.LocationName == "" {
		for _, ev := range evs {
			if ev.LocationName != "" {
				a.LocationName = ev.LocationName
				break
			}
		}
	}
}

func blobSourceType(obj blobstore.ObjectInfo) string {
	switch {
	case strings.HasSuffix(obj.Key, ".pdf"):
		return core.SourcePDF
	case strings.HasSuffix(obj.Key, ".html"), strings.HasSuffix(obj.Key, ".htm"):
		return core.SourceHTML
	case strings.Contains(obj.ContentType, "pdf"):
		return core.SourcePDF
	case strings.Contains(obj.ContentType, "html"):
		return core.SourceHTML
	default:
		return "other"
	}
}
