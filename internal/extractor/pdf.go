// Package extractor turns raw edition blobs (PDF pages, HTML article
// pages) into normalized articles ready for summarization.
package extractor

import (
	"bytes"
	"sort"
	"strings"

	"newsward/internal/core"
	"newsward/internal/normalize"

	"github.com/ledongthuc/pdf"
)

// span is one positioned text run on a PDF page.
type span struct {
	X    float64 // left edge
	Y    float64 // baseline, grows upward
	W    float64 // advance width
	Size float64 // font size
	Text string
}

// block is a candidate article carved out of a page.
type block struct {
	Title  string
	Lines  []string
	Column int
}

// SplitStrategy carves the text spans of one PDF page into candidate
// article blocks. Implementations must be deterministic: identical
// input spans yield identical blocks in identical order.
type SplitStrategy interface {
	Split(spans []span) []block
}

// Layout thresholds for the default splitter. Units are PDF points.
const (
	columnGutter  = 18.0 // clear horizontal space that separates columns
	lineTolerance = 3.0  // Y distance within which spans share a line
	titleRatio    = 1.2  // font size multiple of the median that marks a headline
	minBlockWords = 10   // smaller blocks are discarded as noise
)

// ColumnSplit is the default strategy: cluster spans into columns by X
// position, read each column top to bottom, and start a new block at
// every headline-sized line.
type ColumnSplit struct{}

func (ColumnSplit) Split(spans []span) []block {
	if len(spans) == 0 {
		return nil
	}

	median := medianSize(spans)
	columns := clusterColumns(spans)

	var blocks []block
	for colIdx, col := range columns {
		lines := assembleLines(col)
		var cur *block
		for _, ln := range lines {
			if ln.maxSize >= median*titleRatio && len(strings.Fields(ln.text)) <= 12 {
				blocks = append(blocks, block{Title: ln.text, Column: colIdx + 1})
				cur = &blocks[len(blocks)-1]
				continue
			}
			if cur == nil {
				blocks = append(blocks, block{Column: colIdx + 1})
				cur = &blocks[len(blocks)-1]
			}
			cur.Lines = append(cur.Lines, ln.text)
		}
	}
	return blocks
}

type line struct {
	y       float64
	maxSize float64
	text    string
}

// clusterColumns partitions spans into columns ordered left to right.
// Spans are merged into a column while their horizontal extent touches
// the column's; a clear gutter beyond the column's right edge starts
// the next one.
func clusterColumns(spans []span) [][]span {
	sorted := make([]span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var columns [][]span
	var cur []span
	rightEdge := sorted[0].X
	for _, sp := range sorted {
		if sp.X > rightEdge+columnGutter && len(cur) > 0 {
			columns = append(columns, cur)
			cur = nil
			rightEdge = sp.X
		}
		cur = append(cur, sp)
		if r := sp.X + sp.W; r > rightEdge {
			rightEdge = r
		}
	}
	if len(cur) > 0 {
		columns = append(columns, cur)
	}
	return columns
}

// assembleLines merges a column's spans into reading-order lines.
// PDF Y grows upward, so lines are emitted top (large Y) first.
func assembleLines(col []span) []line {
	sorted := make([]span, len(col))
	copy(sorted, col)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var lines []line
	for _, sp := range sorted {
		txt := strings.TrimSpace(sp.Text)
		if txt == "" {
			continue
		}
		if n := len(lines); n > 0 && lines[n-1].y-sp.Y < lineTolerance {
			lines[n-1].text += " " + txt
			if sp.Size > lines[n-1].maxSize {
				lines[n-1].maxSize = sp.Size
			}
			continue
		}
		lines = append(lines, line{y: sp.Y, maxSize: sp.Size, text: txt})
	}
	return lines
}

func medianSize(spans []span) float64 {
	sizes := make([]float64, len(spans))
	for i, sp := range spans {
		sizes[i] = sp.Size
	}
	sort.Float64s(sizes)
	return sizes[len(sizes)/2]
}

// ExtractPDFPage parses one PDF blob and produces articles for the
// given logical page. Blocks below the noise threshold are dropped.
func ExtractPDFPage(data []byte, pageNumber int, section, sourceFile string, strategy SplitStrategy) ([]core.Article, error) {
	if strategy == nil {
		strategy = ColumnSplit{}
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, core.E(core.KindData, "parse pdf %s", sourceFile, err)
	}

	var spans []span
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, t := range page.Content().Text {
			spans = append(spans, span{X: t.X, Y: t.Y, W: t.W, Size: t.FontSize, Text: t.S})
		}
	}
	if len(spans) == 0 {
		return nil, core.E(core.KindData, "pdf %s has no extractable text", sourceFile)
	}

	return articlesFromBlocks(strategy.Split(spans), pageNumber, section, sourceFile), nil
}

func articlesFromBlocks(blocks []block, pageNumber int, section, sourceFile string) []core.Article {
	var out []core.Article
	for _, b := range blocks {
		content := strings.TrimSpace(strings.Join(b.Lines, "\n"))
		if normalize.WordCount(content) < minBlockWords {
			continue
		}
		out = append(out, core.Article{
			Title:        normalize.FallbackTitle(b.Title, content, pageNumber, sourceFile),
			Content:      content,
			SourceType:   core.SourcePDF,
			SourceFile:   sourceFile,
			Section:      normalize.Section(section),
			PageNumber:   pageNumber,
			ColumnNumber: b.Column,
		})
	}
	return out
}
