// Package events pulls future-event mentions (date, time, place) out of
// article text so community happenings can be surfaced on a calendar.
package events

import (
	"regexp"
	"strings"
	"time"

	"newsward/internal/core"
	"newsward/internal/normalize"

	"github.com/araddon/dateparse"
)

const contextWindow = 160 // runes of surrounding text kept per mention

var (
	// "Saturday, March 14" / "March 14, 2026" / "Jan. 5" style mentions.
	monthDatePattern = regexp.MustCompile(`(?i)\b(?:(?:mon|tues?|wednes|thurs?|fri|satur|sun)day,?\s+)?` +
		`(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|` +
		`aug(?:ust)?|sep(?:t|tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+` +
		`(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?`)

	// Numeric dates like 3/14/2026 or 03/14/26.
	numericDatePattern = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{2,4})\b`)

	// Times like "7 p.m." / "10:30 a.m." near a date mention.
	timePattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?::(\d{2}))?\s*([ap])\.?m\.?\b`)

	// "at the Smyth County Public Library" style venue mentions.
	locationPattern = regexp.MustCompile(`\b(?:at|in|inside)\s+((?:the\s+)?[A-Z][A-Za-z0-9'&.-]*(?:\s+[A-Z][A-Za-z0-9'&.-]*){0,6})`)

	weekdayPrefix = regexp.MustCompile(`(?i)^(?:mon|tues?|wednes|thurs?|fri|satur|sun)day,?\s+`)
	ordinalSuffix = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)\b`)
	fourDigitYear = regexp.MustCompile(`\d{4}`)
)

// Extract scans article content for event mentions. Only mentions that
// parse to a date on or after the edition date are returned, oldest
// first. The edition date anchors year-less mentions.
func Extract(content string, editionDate time.Time) []core.ArticleEvent {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	seen := make(map[string]bool)
	var out []core.ArticleEvent

	collect := func(matchStart, matchEnd int, raw string) {
		start, ok := parseMention(raw, editionDate)
		if !ok {
			return
		}
		ctx := contextAround(content, matchStart, matchEnd)
		if t, found := timeNear(ctx); found {
			start = time.Date(start.Year(), start.Month(), start.Day(), t.Hour(), t.Minute(), 0, 0, start.Location())
		}
		if start.Before(editionDate) {
			return
		}
		key := start.Format("2006-01-02T15:04") + "|" + ctx
		if seen[key] {
			return
		}
		seen[key] = true

		ev := core.ArticleEvent{
			Title:       mentionTitle(ctx),
			Description: ctx,
			StartTime:   start,
		}
		if loc := locationPattern.FindStringSubmatch(ctx); loc != nil {
			ev.LocationName = strings.TrimSpace(loc[1])
		}
		out = append(out, ev)
	}

	for _, idx := range monthDatePattern.FindAllStringIndex(content, -1) {
		collect(idx[0], idx[1], content[idx[0]:idx[1]])
	}
	for _, idx := range numericDatePattern.FindAllStringIndex(content, -1) {
		collect(idx[0], idx[1], content[idx[0]:idx[1]])
	}

	sortEvents(out)
	return out
}

// parseMention turns a raw date mention into a concrete time. Mentions
// without a year get the edition year, rolled forward when that puts
// them more than a month in the past.
func parseMention(raw string, editionDate time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(weekdayPrefix.ReplaceAllString(raw, ""))
	raw = ordinalSuffix.ReplaceAllString(raw, "$1")
	hasYear := fourDigitYear.MatchString(raw) || numericDatePattern.MatchString(raw)
	candidate := raw
	if !hasYear {
		candidate = raw + ", " + editionDate.Format("2006")
	}
	t, err := dateparse.ParseAny(candidate)
	if err != nil {
		return time.Time{}, false
	}
	if !hasYear && t.Before(editionDate.AddDate(0, -1, 0)) {
		t = t.AddDate(1, 0, 0)
	}
	if t.Year() < 2000 || t.Year() > 2100 {
		return time.Time{}, false
	}
	return t, true
}

func timeNear(ctx string) (time.Time, bool) {
	m := timePattern.FindStringSubmatch(ctx)
	if m == nil {
		return time.Time{}, false
	}
	norm := m[1]
	if m[2] != "" {
		norm += ":" + m[2]
	} else {
		norm += ":00"
	}
	norm += strings.ToLower(m[3]) + "m"
	t, err := time.Parse("3:04pm", norm)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// contextAround returns the text surrounding a mention, widened to the
// window and trimmed at the preceding sentence boundary when one exists.
func contextAround(content string, start, end int) string {
	lo := start - contextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + contextWindow
	if hi > len(content) {
		hi = len(content)
	}
	ctx := content[lo:hi]

	if i := strings.LastIndexAny(ctx[:start-lo], ".!?\n"); i >= 0 {
		ctx = ctx[i+1:]
	}
	return normalize.Whitespace(ctx)
}

func mentionTitle(ctx string) string {
	title := ctx
	if len(title) > 120 {
		title = normalize.Whitespace(title[:120])
	}
	return title
}

func sortEvents(evs []core.ArticleEvent) {
	for i := 1; i < len(evs); i++ {
		for j := i; j > 0 && evs[j].StartTime.Before(evs[j-1].StartTime); j-- {
			evs[j], evs[j-1] = evs[j-1], evs[j]
		}
	}
}

