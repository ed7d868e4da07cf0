package summarize

import (
	"fmt"
	"strings"
)

// SystemPrompt frames the model as a local news editor and pins the
// output contract.
const SystemPrompt = `You are a skilled local news summarizer. You produce tight, factual summaries of small-town newspaper articles.

Guidelines:
- Summarize in 2-3 sentences, plain language, no editorializing.
- Keep names, places, dates and dollar amounts exact.
- Note when an article announces an upcoming event.
- Respond with JSON only, no markdown fences, matching the requested schema.`

// userPromptTemplate asks for the structured summary of one article.
const userPromptTemplate = `Summarize this article from the %s section.

Title: %s

Article:
%s

Respond with a JSON object:
{"summary": "...", "key_points": ["..."], "sentiment": "positive|negative|neutral|mixed", "topics": ["..."], "confidence_score": 0.0}`

// BuildUserPrompt renders the per-article prompt, truncating the body
// to charCap at a sentence boundary.
func BuildUserPrompt(section, title, content string, charCap int) string {
	return fmt.Sprintf(userPromptTemplate, section, title, TruncateForPrompt(content, charCap))
}

// TruncateForPrompt bounds text to max characters. When a sentence end
// falls in the last fifth of the truncated text, the cut happens there
// so the model never sees a half sentence.
func TruncateForPrompt(text string, max int) string {
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := text[:max]
	if i := strings.LastIndex(cut, "."); i >= 0 && i > max*4/5 {
		return cut[:i+1]
	}
	return cut
}
