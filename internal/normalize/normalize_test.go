package normalize

import "testing"

func TestSectionAliases(t *testing.T) {
	cases := map[string]string{
		"obits":             "Obituaries",
		"Obituary":          "Obituaries",
		"OBITUARIES":        "Obituaries",
		"police":            "Public Safety",
		"Police and Courts": "Public Safety",
		"crime":             "Public Safety",
		"editorial":         "Opinion",
		"opinion":           "Opinion",
		"local":             "Local",
		"news":              "News",
		"sports":            "Sports",
		"business":          "Business",
		"  Sports  ":        "Sports",
		"classifieds":       "General",
		"weird stuff":       "General",
		"":                  "General",
	}
	for in, want := range cases {
		if got := Section(in); got != want {
			t.Errorf("Section(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSectionIdempotent(t *testing.T) {
	inputs := []string{"obits", "police", "editorial", "local", "garbage", "", "Public Safety"}
	for _, in := range inputs {
		once := Section(in)
		if twice := Section(once); twice != once {
			t.Errorf("Section not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}

func TestContentHashIgnoresWhitespaceAndPunctuation(t *testing.T) {
	base := ContentHash("Council approves the new budget.")
	variants := []string{
		"Council  approves   the new budget.",
		"council approves the new budget",
		"Council approves, the new budget!!!",
		"\tCouncil\napproves the new—budget.\n",
		"COUNCIL APPROVES THE NEW BUDGET",
	}
	for _, v := range variants {
		if got := ContentHash(v); got != base {
			t.Errorf("ContentHash(%q) = %s, want %s", v, got, base)
		}
	}
}

func TestContentHashDistinguishesContent(t *testing.T) {
	a := ContentHash("Council approves the new budget.")
	b := ContentHash("Council rejects the new budget.")
	if a == b {
		t.Error("different content should hash differently")
	}
}

func TestWordCount(t *testing.T) {
	if got := WordCount("one  two\nthree\t four"); got != 4 {
		t.Errorf("WordCount = %d, want 4", got)
	}
	if got := WordCount("   "); got != 0 {
		t.Errorf("WordCount(blank) = %d, want 0", got)
	}
}

func TestFallbackTitle(t *testing.T) {
	cases := []struct {
		name       string
		title      string
		content    string
		page       int
		sourceFile string
		want       string
	}{
		{"explicit title wins", "  City Hall  Update ", "anything", 3, "f.pdf", "City Hall Update"},
		{"first long line", "", "ok\nThe fair opens Friday at noon\nmore", 3, "f.pdf", "The fair opens Friday at noon"},
		{"page number", "", "a b", 7, "f.pdf", "Page 7"},
		{"source file", "", "", 0, "2026-03-01/paper/raw/front_page-a1.pdf", "Front Page A1"},
		{"last resort", "", "", 0, "", "Untitled Article"},
	}
	for _, c := range cases {
		got := FallbackTitle(c.title, c.content, c.page, c.sourceFile)
		if got != c.want {
			t.Errorf("%s: FallbackTitle = %q, want %q", c.name, got, c.want)
		}
	}
}
