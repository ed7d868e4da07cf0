package extractor

import (
	"net/url"
	"strings"
	"time"

	"newsward/internal/core"
	"newsward/internal/normalize"

	"codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	"github.com/microcosm-cc/bluemonday"
)

// Readability output below this length is treated as a failed
// extraction (usually just the title or boilerplate).
const minReadableChars = 200

// ExtractHTMLArticle turns a saved article page into one article.
// Metadata comes from the document head, the body text from
// readability with a paragraph-join fallback.
func ExtractHTMLArticle(raw []byte, pageURL, sourceFile string) (*core.Article, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(raw)))
	if err != nil {
		return nil, core.E(core.KindData, "parse html %s", sourceFile, err)
	}

	title := htmlTitle(doc)
	section := htmlSection(doc, pageURL)
	author := htmlAuthor(doc)
	published := htmlPublished(doc)

	content, articleHTML := htmlContent(raw, pageURL, doc)
	if normalize.WordCount(content) < minBlockWords {
		return nil, core.E(core.KindData, "html %s has no extractable article text", sourceFile)
	}

	a := &core.Article{
		Title:         normalize.FallbackTitle(title, content, 0, sourceFile),
		Content:       content,
		URL:           pageURL,
		SourceType:    core.SourceHTML,
		SourceFile:    sourceFile,
		Section:       normalize.Section(section),
		Author:        author,
		DatePublished: published,
		RawHTML:       sanitizeHTML(articleHTML),
	}
	return a, nil
}

// htmlTitle prefers og:title, then <title>, then the first <h1>.
func htmlTitle(doc *goquery.Document) string {
	if og, ok := doc.Find("meta[property='og:title']").First().Attr("content"); ok {
		if t := strings.TrimSpace(og); t != "" {
			return t
		}
	}
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return strings.TrimSpace(doc.Find("h1").First().Text())
}

// htmlSection checks article:section meta, breadcrumbs, then the first
// URL path segment.
func htmlSection(doc *goquery.Document, pageURL string) string {
	if s, ok := doc.Find("meta[property='article:section']").First().Attr("content"); ok && strings.TrimSpace(s) != "" {
		return s
	}
	if s, ok := doc.Find("meta[name='section']").First().Attr("content"); ok && strings.TrimSpace(s) != "" {
		return s
	}
	if s := strings.TrimSpace(doc.Find(".breadcrumb a, nav[aria-label='breadcrumb'] a").Last().Text()); s != "" {
		return s
	}
	if u, err := url.Parse(pageURL); err == nil {
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) > 0 && parts[0] != "" {
			return parts[0]
		}
	}
	return ""
}

func htmlAuthor(doc *goquery.Document) string {
	if a, ok := doc.Find("meta[name='author']").First().Attr("content"); ok && strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	if a := strings.TrimSpace(doc.Find(".byline, [rel='author'], .author-name").First().Text()); a != "" {
		return normalize.Whitespace(strings.TrimPrefix(a, "By "))
	}
	return ""
}

// htmlPublished tries article:published_time, a date meta, then any
// <time datetime> attribute. Unparseable values are dropped.
func htmlPublished(doc *goquery.Document) *time.Time {
	candidates := []string{}
	if v, ok := doc.Find("meta[property='article:published_time']").First().Attr("content"); ok {
		candidates = append(candidates, v)
	}
	if v, ok := doc.Find("meta[name='date']").First().Attr("content"); ok {
		candidates = append(candidates, v)
	}
	if v, ok := doc.Find("time[datetime]").First().Attr("datetime"); ok {
		candidates = append(candidates, v)
	}
	for _, c := range candidates {
		if t, err := dateparse.ParseAny(strings.TrimSpace(c)); err == nil {
			return &t
		}
	}
	return nil
}

// htmlContent extracts the main article text. Readability runs first;
// when its output is too short the paragraphs of the raw document are
// joined instead. The second return value is the article HTML used for
// the source view.
func htmlContent(raw []byte, pageURL string, doc *goquery.Document) (string, string) {
	var base *url.URL
	if u, err := url.Parse(pageURL); err == nil {
		base = u
	}

	if article, err := readability.FromReader(strings.NewReader(string(raw)), base); err == nil {
		var textBuf, htmlBuf strings.Builder
		if err := article.RenderText(&textBuf); err == nil {
			text := strings.TrimSpace(textBuf.String())
			if len(text) >= minReadableChars {
				if err := article.RenderHTML(&htmlBuf); err == nil {
					return text, htmlBuf.String()
				}
				return text, ""
			}
		}
	}

	// Fallback: join paragraph-level elements from the raw document.
	var paragraphs []string
	doc.Find("article p, main p, p").Each(func(_ int, s *goquery.Selection) {
		if t := normalize.Whitespace(s.Text()); t != "" {
			paragraphs = append(paragraphs, t)
		}
	})
	return strings.Join(dedupeStrings(paragraphs), "\n\n"), ""
}

// sanitizeHTML strips scripts and event handlers from stored article
// HTML so the source view can serve it directly.
func sanitizeHTML(html string) string {
	if html == "" {
		return ""
	}
	return bluemonday.UGCPolicy().Sanitize(html)
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
