package server

import (
	"html/template"
	"net/http"
	"strings"

	"newsward/internal/core"
	"newsward/internal/store"
)

// sourceTemplate renders a readable standalone page for one article's
// stored content.
var sourceTemplate = template.Must(template.New("source").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: Georgia, serif; max-width: 42rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.6; color: #222; }
h1 { font-size: 1.6rem; line-height: 1.25; }
.meta { color: #666; font-size: 0.85rem; margin-bottom: 1.5rem; }
.meta span + span::before { content: " · "; }
p { margin: 0 0 1rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<div class="meta">
<span>{{.Publication}}</span>
<span>{{.EditionDate}}</span>
{{if .Section}}<span>{{.Section}}</span>{{end}}
{{if .Author}}<span>{{.Author}}</span>{{end}}
{{if .PageNumber}}<span>Page {{.PageNumber}}</span>{{end}}
</div>
{{if .Body}}{{.Body}}{{else}}{{range .Paragraphs}}<p>{{.}}</p>{{end}}{{end}}
</body>
</html>
`))

type sourcePage struct {
	Title       string
	Publication string
	EditionDate string
	Section     string
	Author      string
	PageNumber  int
	Body        template.HTML // sanitized stored html, when present
	Paragraphs  []string      // plain-text fallback
}

// handleArticleSource serves GET /api/articles/{id}/source. Preference
// order: stored article html, the raw blob from the object store, a
// redirect to the original URL.
func (s *Server) handleArticleSource(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		s.respondError(w, http.StatusBadRequest, "invalid article id")
		return
	}
	detail, err := s.db.GetArticle(r.Context(), id)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}

	if detail.RawHTML != "" || detail.Content != "" {
		s.renderSourcePage(w, detail)
		return
	}
	if detail.SourceFile != "" && s.blobs != nil {
		if s.streamSourceBlob(w, r, detail.SourceFile) {
			return
		}
	}
	if detail.URL != "" {
		http.Redirect(w, r, detail.URL, http.StatusFound)
		return
	}
	s.respondError(w, http.StatusNotFound, "no source available")
}

func (s *Server) renderSourcePage(w http.ResponseWriter, detail *store.ArticleDetail) {
	page := sourcePage{
		Title:       detail.Title,
		Publication: detail.Publication,
		EditionDate: detail.EditionDate,
		Section:     detail.Section,
		Author:      detail.Author,
		PageNumber:  detail.PageNumber,
	}
	if detail.RawHTML != "" {
		// RawHTML was sanitized at extraction time.
		page.Body = template.HTML(detail.RawHTML)
	} else {
		for _, p := range strings.Split(detail.Content, "\n") {
			if p = strings.TrimSpace(p); p != "" {
				page.Paragraphs = append(page.Paragraphs, p)
			}
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := sourceTemplate.Execute(w, page); err != nil {
		s.log.Error("render source page", "error", err)
	}
}

// streamSourceBlob writes the raw blob when it still exists, reporting
// whether the response was handled.
func (s *Server) streamSourceBlob(w http.ResponseWriter, r *http.Request, key string) bool {
	info, err := s.blobs.Stat(r.Context(), key)
	if err != nil {
		if core.KindOf(err) != core.KindNotFound {
			s.log.Error("stat source blob", "key", key, "error", err)
		}
		return false
	}
	data, err := s.blobs.Get(r.Context(), key)
	if err != nil {
		s.log.Error("read source blob", "key", key, "error", err)
		return false
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	if _, err := w.Write(data); err != nil {
		s.log.Error("write source blob", "key", key, "error", err)
	}
	return true
}
