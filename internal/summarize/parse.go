package summarize

import (
	"encoding/json"
	"regexp"
	"strings"

	"newsward/internal/core"
)

// ModelSummary is the JSON contract expected from the model.
type ModelSummary struct {
	Summary         string   `json:"summary"`
	KeyPoints       []string `json:"key_points"`
	Sentiment       string   `json:"sentiment"`
	Topics          []string `json:"topics"`
	ConfidenceScore float64  `json:"confidence_score"`
}

var (
	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	fenceBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")
	bulletLine = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
	validMoods = map[string]bool{"positive": true, "negative": true, "neutral": true, "mixed": true}
)

// ParseModelOutput recovers a ModelSummary from whatever the model
// returned. Strategies in order: strip reasoning/fences and parse
// directly, parse the outermost {...} substring, then synthesize a
// summary from bullet lines. Empty output is a data error.
func ParseModelOutput(raw string) (*ModelSummary, error) {
	text := strings.TrimSpace(thinkBlock.ReplaceAllString(raw, ""))
	if m := fenceBlock.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	if text == "" {
		return nil, core.E(core.KindData, "empty model output")
	}

	if ms := tryDecode(text); ms != nil {
		return normalizeSummary(ms), nil
	}

	if start := strings.Index(text, "{"); start >= 0 {
		if end := strings.LastIndex(text, "}"); end > start {
			if ms := tryDecode(text[start : end+1]); ms != nil {
				return normalizeSummary(ms), nil
			}
		}
	}

	// Plain text fallback: first paragraph becomes the summary, any
	// bullet lines become key points.
	ms := &ModelSummary{}
	var points []string
	for _, line := range strings.Split(text, "\n") {
		if m := bulletLine.FindStringSubmatch(line); m != nil {
			points = append(points, strings.TrimSpace(m[1]))
			continue
		}
		if ms.Summary == "" && strings.TrimSpace(line) != "" {
			ms.Summary = strings.TrimSpace(line)
		}
	}
	ms.KeyPoints = points
	if ms.Summary == "" && len(points) > 0 {
		ms.Summary = points[0]
		ms.KeyPoints = points[1:]
	}
	if ms.Summary == "" {
		return nil, core.E(core.KindData, "could not salvage summary from model output")
	}
	return normalizeSummary(ms), nil
}

func tryDecode(text string) *ModelSummary {
	var ms ModelSummary
	if err := json.Unmarshal([]byte(text), &ms); err != nil {
		return nil
	}
	if strings.TrimSpace(ms.Summary) == "" {
		return nil
	}
	return &ms
}

func normalizeSummary(ms *ModelSummary) *ModelSummary {
	ms.Summary = strings.TrimSpace(ms.Summary)
	if !validMoods[strings.ToLower(ms.Sentiment)] {
		ms.Sentiment = "neutral"
	} else {
		ms.Sentiment = strings.ToLower(ms.Sentiment)
	}
	if ms.ConfidenceScore < 0 {
		ms.ConfidenceScore = 0
	}
	if ms.ConfidenceScore > 1 {
		ms.ConfidenceScore = 1
	}
	return ms
}

// FoldKeyPoints renders the stored summary text: the summary body plus
// a bulleted key points block when any were reported.
func FoldKeyPoints(ms *ModelSummary) string {
	if len(ms.KeyPoints) == 0 {
		return ms.Summary
	}
	var b strings.Builder
	b.WriteString(ms.Summary)
	b.WriteString("\n\nKey Points:")
	for _, p := range ms.KeyPoints {
		b.WriteString("\n• ")
		b.WriteString(p)
	}
	return b.String()
}
