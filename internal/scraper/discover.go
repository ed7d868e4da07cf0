package scraper

import (
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"newsward/internal/core"
	"newsward/internal/logger"

	"github.com/playwright-community/playwright-go"
)

// Page number hints, tried in order against the link text first and
// its URL second.
var pageNumberPatterns = []*regexp.Regexp{
	regexp.MustCompile(`page\s*(\d+)`),
	regexp.MustCompile(`\bp(\d+)`),
	regexp.MustCompile(`(\d+)`),
}

// Section names worth recognizing in link text or URLs.
var sectionHints = []string{
	"local", "sports", "opinion", "business", "obituaries",
	"classifieds", "entertainment", "news", "editorial",
}

// DiscoverEdition lists the downloadable pages of the edition shown on
// the given browser page. PDF page links are preferred; a site without
// them falls back to a single HTML capture of the edition home page.
func DiscoverEdition(page playwright.Page, baseURL string) ([]core.EditionPage, error) {
	links, err := page.Locator("a[href*='.pdf']").All()
	if err != nil {
		return nil, core.E(core.KindUpstream, "locate pdf links", err)
	}

	var pages []core.EditionPage
	for i, link := range links {
		href, err := link.GetAttribute("href")
		if err != nil || href == "" {
			continue
		}
		text, _ := link.TextContent()
		text = strings.TrimSpace(text)
		u := AbsoluteURL(baseURL, href)
		pages = append(pages, core.EditionPage{
			URL:        u,
			PageNumber: PageNumberHint(text, u, i+1),
			Section:    SectionHint(text, u),
			Title:      text,
			Format:     "pdf",
		})
	}

	if len(pages) == 0 {
		logger.Warn("no pdf links found, capturing edition home page", "url", baseURL)
		pages = append(pages, core.EditionPage{URL: baseURL, PageNumber: 1, Format: "html"})
	}

	SortPages(pages)
	logger.Info("edition discovered", "pages", len(pages))
	return pages, nil
}

// AbsoluteURL resolves href against baseURL. Unparseable input is
// returned as is.
func AbsoluteURL(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// PageNumberHint extracts a page number from link text or URL,
// returning fallback when neither carries one.
func PageNumberHint(text, u string, fallback int) int {
	lowText, lowURL := strings.ToLower(text), strings.ToLower(u)
	for _, re := range pageNumberPatterns {
		if m := re.FindStringSubmatch(lowText); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
		if m := re.FindStringSubmatch(lowURL); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
				return n
			}
		}
	}
	return fallback
}

// SectionHint returns the first known section name appearing in the
// link text or URL, empty when none match.
func SectionHint(text, u string) string {
	lowText, lowURL := strings.ToLower(text), strings.ToLower(u)
	for _, s := range sectionHints {
		if strings.Contains(lowText, s) || strings.Contains(lowURL, s) {
			return s
		}
	}
	return ""
}

// SortPages orders pages by page number, then URL for a stable order.
func SortPages(pages []core.EditionPage) {
	sort.SliceStable(pages, func(i, j int) bool {
		if pages[i].PageNumber != pages[j].PageNumber {
			return pages[i].PageNumber < pages[j].PageNumber
		}
		return pages[i].URL < pages[j].URL
	})
}
