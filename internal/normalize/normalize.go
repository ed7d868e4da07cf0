// Package normalize holds the canonicalization rules applied to every
// article before storage: section names, the dedup content hash, word
// counts and fallback titles. Extractor and API both depend on these
// being stable, so changes here invalidate stored hashes.
package normalize

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
	"unicode"
)

// sectionAliases maps lowercased raw section labels to canonical names.
// Canonical outputs are included so Section is idempotent.
var sectionAliases = map[string]string{
	"obits":             "Obituaries",
	"obituary":          "Obituaries",
	"obituaries":        "Obituaries",
	"police":            "Public Safety",
	"police and courts": "Public Safety",
	"crime":             "Public Safety",
	"public safety":     "Public Safety",
	"editorial":         "Opinion",
	"opinion":           "Opinion",
	"local":             "Local",
	"news":              "News",
	"sports":            "Sports",
	"business":          "Business",
	"general":           "General",
}

// Section canonicalizes a raw section label. Unknown labels collapse to
// "General". Section(Section(s)) == Section(s) for all s.
func Section(raw string) string {
	key := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := sectionAliases[key]; ok {
		return canonical
	}
	return "General"
}

// ContentHash computes the dedup key for an article body: md5 over the
// lowercased content with all whitespace and punctuation removed. The
// hash is compared per edition date, so identical stories re-extracted
// from a different raw blob of the same edition collapse to one row.
func ContentHash(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	for _, r := range strings.ToLower(content) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// WordCount counts whitespace-delimited tokens.
func WordCount(content string) int {
	return len(strings.Fields(content))
}

// Whitespace collapses runs of whitespace to single spaces and trims.
func Whitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// FallbackTitle derives a headline for an untitled block. Order: an
// explicit title if present, the first content line with at least three
// words, "Page N" when the page number is known, a prettified source
// filename, then "Untitled Article".
func FallbackTitle(title, content string, pageNumber int, sourceFile string) string {
	if t := Whitespace(title); t != "" {
		return t
	}
	for _, line := range strings.Split(content, "\n") {
		line = Whitespace(line)
		if len(strings.Fields(line)) >= 3 {
			if len(line) > 120 {
				line = line[:120]
			}
			return line
		}
	}
	if pageNumber > 0 {
		return fmt.Sprintf("Page %d", pageNumber)
	}
	if sourceFile != "" {
		base := path.Base(sourceFile)
		base = strings.TrimSuffix(base, path.Ext(base))
		base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
		if base = Whitespace(base); base != "" {
			return titleCase(base)
		}
	}
	return "Untitled Article"
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
