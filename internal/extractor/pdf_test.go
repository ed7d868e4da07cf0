package extractor

import (
	"strings"
	"testing"
)

// bodySpans lays out body lines in a column starting at x, from y
// downward, at the base font size. Widths approximate 4pt per rune.
func bodySpans(x, y float64, lines []string) []span {
	out := make([]span, 0, len(lines))
	for i, l := range lines {
		out = append(out, span{X: x, Y: y - float64(i)*12, W: float64(len(l)) * 4, Size: 9, Text: l})
	}
	return out
}

func TestColumnSplitSeparatesColumns(t *testing.T) {
	left := bodySpans(50, 700, []string{
		"The town council approved the road paving contract",
		"after a lengthy debate over funding sources this week.",
	})
	right := bodySpans(300, 700, []string{
		"Volunteers gathered at the fairgrounds to prepare for",
		"the annual county fair which opens next weekend here.",
	})

	blocks := ColumnSplit{}.Split(append(left, right...))
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0].Column != 1 || blocks[1].Column != 2 {
		t.Errorf("column numbers = %d, %d", blocks[0].Column, blocks[1].Column)
	}
	if !strings.Contains(strings.Join(blocks[0].Lines, " "), "paving contract") {
		t.Errorf("left column content wrong: %v", blocks[0].Lines)
	}
}

func TestColumnSplitHeadlineStartsNewBlock(t *testing.T) {
	spans := []span{
		{X: 50, Y: 700, Size: 18, Text: "Council Approves Budget"},
	}
	spans = append(spans, bodySpans(50, 680, []string{
		"The council voted four to one on Tuesday night to",
		"approve the annual budget for the coming fiscal year.",
	})...)
	spans = append(spans, span{X: 50, Y: 640, Size: 18, Text: "Fair Opens Friday"})
	spans = append(spans, bodySpans(50, 620, []string{
		"Gates open at nine in the morning with livestock shows",
		"running through the afternoon and fireworks after dark.",
	})...)

	blocks := ColumnSplit{}.Split(spans)
	if len(blocks) != 2 {
		t.Fatalf("got %d blocks, want 2", len(blocks))
	}
	if blocks[0].Title != "Council Approves Budget" {
		t.Errorf("first title = %q", blocks[0].Title)
	}
	if blocks[1].Title != "Fair Opens Friday" {
		t.Errorf("second title = %q", blocks[1].Title)
	}
	if !strings.Contains(strings.Join(blocks[1].Lines, " "), "livestock") {
		t.Errorf("second block content wrong: %v", blocks[1].Lines)
	}
}

func TestColumnSplitDeterministic(t *testing.T) {
	spans := append(
		bodySpans(50, 700, []string{"alpha line one of text here", "alpha line two of text here"}),
		bodySpans(300, 700, []string{"beta line one of text here", "beta line two of text here"})...,
	)
	a := ColumnSplit{}.Split(spans)
	b := ColumnSplit{}.Split(spans)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic block count: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if strings.Join(a[i].Lines, "|") != strings.Join(b[i].Lines, "|") {
			t.Errorf("block %d differs between runs", i)
		}
	}
}

func TestArticlesFromBlocksDropsNoise(t *testing.T) {
	blocks := []block{
		{Title: "Real Story", Lines: []string{"one two three four five six seven eight nine ten eleven"}, Column: 1},
		{Lines: []string{"too short"}, Column: 2},
	}
	articles := articlesFromBlocks(blocks, 3, "local", "2026-03-14/p/raw/x.pdf")
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
	a := articles[0]
	if a.Title != "Real Story" || a.PageNumber != 3 || a.ColumnNumber != 1 {
		t.Errorf("article = %+v", a)
	}
	if a.Section != "Local" {
		t.Errorf("Section = %q, want Local", a.Section)
	}
}

func TestMergedLineKeepsReadingOrder(t *testing.T) {
	// Two spans on the same visual line must join left to right.
	spans := []span{
		{X: 120, Y: 700, W: 148, Size: 9, Text: "second half of the sentence continues"},
		{X: 50, Y: 700.5, W: 56, Size: 9, Text: "The first half"},
		{X: 50, Y: 688, W: 168, Size: 9, Text: "next line keeps the paragraph going onward"},
	}
	blocks := ColumnSplit{}.Split(spans)
	if len(blocks) != 1 {
		t.Fatalf("got %d blocks, want 1", len(blocks))
	}
	joined := strings.Join(blocks[0].Lines, "\n")
	if !strings.HasPrefix(joined, "The first half second half") {
		t.Errorf("reading order wrong: %q", joined)
	}
}
