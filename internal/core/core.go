package core

import "time"

// Processing status values for an Article as it moves through the pipeline.
const (
	StatusExtracted  = "extracted"  // stored by the extractor, awaiting summarization
	StatusSummarized = "summarized" // summary generated and stored
	StatusNotified   = "notified"   // included in a delivered digest
	StatusFailed     = "failed"     // summarization gave up after retries
)

// Source types recorded on extracted articles.
const (
	SourcePDF  = "pdf"
	SourceHTML = "html"
)

// Article is one extracted news story from a publication edition.
type Article struct {
	ID               int64             `json:"id"`                          // Database identifier (0 until inserted)
	Title            string            `json:"title"`                       // Headline, possibly a derived fallback
	Content          string            `json:"content"`                     // Plain-text body
	ContentHash      string            `json:"content_hash"`                // md5 of normalized content, dedup key per edition date
	URL              string            `json:"url,omitempty"`               // Original page URL when known
	SourceType       string            `json:"source_type"`                 // "pdf" or "html"
	SourceFile       string            `json:"source_file,omitempty"`       // Object-store key of the raw blob
	Publication      string            `json:"publication"`                 // Publication slug (e.g. "news-messenger")
	EditionDate      string            `json:"edition_date"`                // Edition date, YYYY-MM-DD
	Section          string            `json:"section"`                     // Canonical section name
	PageNumber       int               `json:"page_number,omitempty"`       // 1-based page within the edition (0 = unknown)
	ColumnNumber     int               `json:"column_number,omitempty"`     // 1-based column on the page (0 = unknown)
	Author           string            `json:"author,omitempty"`            // Byline when extractable
	WordCount        int               `json:"word_count"`                  // Whitespace-delimited token count of Content
	DatePublished    *time.Time        `json:"date_published,omitempty"`    // Publication timestamp from page metadata
	DateExtracted    time.Time         `json:"date_extracted"`              // When the extractor produced this record
	RawHTML          string            `json:"-"`                           // Sanitized article HTML (html sources only)
	LocationName     string            `json:"location_name,omitempty"`     // Best-effort venue/place mention
	Tags             []string          `json:"tags,omitempty"`              // Free-form tags (topics from the summarizer land here)
	Metadata         map[string]string `json:"metadata,omitempty"`          // Extra provenance (proxy egress, run id, errors)
	ProcessingStatus string            `json:"processing_status"`           // One of the Status* constants
}

// Summary is the LLM output for a single article.
type Summary struct {
	ID               int64     `json:"id"`                 // Database identifier
	ArticleID        int64     `json:"article_id"`         // Article this summary belongs to
	SummaryText      string    `json:"summary_text"`       // Summary body, key points folded in
	SummaryType      string    `json:"summary_type"`       // "brief" for the standard digest summary
	Sentiment        string    `json:"sentiment"`          // positive / negative / neutral / mixed
	Topics           []string  `json:"topics,omitempty"`   // Topic labels reported by the model
	ConfidenceScore  float64   `json:"confidence_score"`   // Model self-reported confidence (0..1)
	ModelUsed        string    `json:"model_used"`         // Model identifier from config
	TokensUsed       int       `json:"tokens_used"`        // Total tokens reported by the API
	GenerationTimeMS int64     `json:"generation_time_ms"` // Wall time of the chat call
	DateCreated      time.Time `json:"date_created"`       // When the summary was stored
}

// ArticleEvent is a future happening mentioned in an article.
type ArticleEvent struct {
	ID           int64      `json:"id"`                      // Database identifier
	ArticleID    int64      `json:"article_id"`              // Article the event was parsed from
	Title        string     `json:"title"`                   // Short context line around the date mention
	Description  string     `json:"description,omitempty"`   // Wider surrounding text
	StartTime    time.Time  `json:"start_time"`              // Parsed event time
	EndTime      *time.Time `json:"end_time,omitempty"`      // Parsed end time when a range was found
	LocationName string     `json:"location_name,omitempty"` // Venue mention near the date
}

// EditionPage is a downloadable unit discovered on the e-edition site.
type EditionPage struct {
	URL        string `json:"url"`         // Absolute download URL
	PageNumber int    `json:"page_number"` // 1-based ordering within the edition (0 = unknown)
	Section    string `json:"section"`     // Section hint from the link text, may be empty
	Title      string `json:"title"`       // Link text, used for section inference
	Format     string `json:"format"`      // "pdf" or "html"
}

// Download result statuses.
const (
	DownloadFetched = "downloaded" // downloaded and stored this run
	DownloadCached  = "cached"     // already present in the object store
	DownloadFailed  = "failed"     // gave up after retries
)

// DownloadResult reports the outcome for one EditionPage.
type DownloadResult struct {
	Page   EditionPage `json:"page"`            // The page that was attempted
	Key    string      `json:"key"`             // Object-store key for the raw blob
	Bytes  int64       `json:"bytes"`           // Stored size (0 when cached or failed)
	Status string      `json:"status"`          // downloaded / cached / failed
	Err    string      `json:"error,omitempty"` // Failure detail when Status is failed
}

// ProcessingReport aggregates one extractor run over an edition.
type ProcessingReport struct {
	Publication      string        `json:"publication"`       // Publication slug processed
	EditionDate      string        `json:"edition_date"`      // Edition date processed
	SourcesSeen      int           `json:"sources_seen"`      // Raw blobs inspected
	ArticlesFound    int           `json:"articles_found"`    // Candidate articles produced by the pipelines
	ArticlesNew      int           `json:"articles_new"`      // Inserted this run
	ArticlesDup      int           `json:"articles_duplicate"`// Skipped by the content-hash constraint
	ArticlesFailed   int           `json:"articles_failed"`   // Blocks that errored during extraction
	ProcessingTime   time.Duration `json:"-"`                 // Wall time for the run
	ProcessingTimeMS int64         `json:"processing_time_ms"`// Wall time in milliseconds for persistence
}

// BatchReport aggregates one summarizer batch run.
type BatchReport struct {
	Requested int `json:"requested"` // Batch size asked for
	Picked    int `json:"picked"`    // Articles actually claimed
	Succeeded int `json:"succeeded"` // Summaries stored
	Failed    int `json:"failed"`    // Articles marked failed
}
