package summarize

import "testing"

func TestParseDirectJSON(t *testing.T) {
	raw := `{"summary":"Budget approved.","key_points":["5% tax increase"],"sentiment":"neutral","topics":["budget"],"confidence_score":0.9}`
	ms, err := ParseModelOutput(raw)
	if err != nil {
		t.Fatalf("ParseModelOutput: %v", err)
	}
	if ms.Summary != "Budget approved." {
		t.Errorf("Summary = %q", ms.Summary)
	}
	if len(ms.KeyPoints) != 1 || ms.KeyPoints[0] != "5% tax increase" {
		t.Errorf("KeyPoints = %v", ms.KeyPoints)
	}
	if ms.ConfidenceScore != 0.9 {
		t.Errorf("ConfidenceScore = %v", ms.ConfidenceScore)
	}
}

func TestParseStripsThinkBlocksAndFences(t *testing.T) {
	raw := "<think>let me reason about this</think>\n```json\n{\"summary\":\"Fair opens Friday.\",\"sentiment\":\"positive\"}\n```"
	ms, err := ParseModelOutput(raw)
	if err != nil {
		t.Fatalf("ParseModelOutput: %v", err)
	}
	if ms.Summary != "Fair opens Friday." {
		t.Errorf("Summary = %q", ms.Summary)
	}
	if ms.Sentiment != "positive" {
		t.Errorf("Sentiment = %q", ms.Sentiment)
	}
}

func TestParseEmbeddedJSON(t *testing.T) {
	raw := `Here is the summary you asked for: {"summary":"School board met.","sentiment":"neutral"} Hope that helps!`
	ms, err := ParseModelOutput(raw)
	if err != nil {
		t.Fatalf("ParseModelOutput: %v", err)
	}
	if ms.Summary != "School board met." {
		t.Errorf("Summary = %q", ms.Summary)
	}
}

func TestParseBulletFallback(t *testing.T) {
	raw := "The council discussed several items.\n- Approved the road contract\n- Delayed the park vote"
	ms, err := ParseModelOutput(raw)
	if err != nil {
		t.Fatalf("ParseModelOutput: %v", err)
	}
	if ms.Summary != "The council discussed several items." {
		t.Errorf("Summary = %q", ms.Summary)
	}
	if len(ms.KeyPoints) != 2 {
		t.Errorf("KeyPoints = %v", ms.KeyPoints)
	}
}

func TestParseInvalidSentimentDefaultsNeutral(t *testing.T) {
	raw := `{"summary":"Something happened.","sentiment":"exuberant"}`
	ms, err := ParseModelOutput(raw)
	if err != nil {
		t.Fatalf("ParseModelOutput: %v", err)
	}
	if ms.Sentiment != "neutral" {
		t.Errorf("Sentiment = %q, want neutral", ms.Sentiment)
	}
}

func TestParseConfidenceClamped(t *testing.T) {
	ms, err := ParseModelOutput(`{"summary":"S.","confidence_score":1.7}`)
	if err != nil {
		t.Fatalf("ParseModelOutput: %v", err)
	}
	if ms.ConfidenceScore != 1 {
		t.Errorf("ConfidenceScore = %v, want 1", ms.ConfidenceScore)
	}
}

func TestParseEmptyOutput(t *testing.T) {
	if _, err := ParseModelOutput("  <think>hmm</think>  "); err == nil {
		t.Error("expected error for empty output")
	}
}

func TestFoldKeyPoints(t *testing.T) {
	ms := &ModelSummary{Summary: "Top line.", KeyPoints: []string{"a", "b"}}
	want := "Top line.\n\nKey Points:\n• a\n• b"
	if got := FoldKeyPoints(ms); got != want {
		t.Errorf("FoldKeyPoints = %q, want %q", got, want)
	}
	if got := FoldKeyPoints(&ModelSummary{Summary: "Alone."}); got != "Alone." {
		t.Errorf("FoldKeyPoints without points = %q", got)
	}
}

func TestTruncateForPrompt(t *testing.T) {
	if got := TruncateForPrompt("short", 100); got != "short" {
		t.Errorf("short text should pass through, got %q", got)
	}

	// Sentence boundary in the last fifth gets used.
	long := ""
	for i := 0; i < 20; i++ {
		long += "This is sentence number one of the article body. "
	}
	got := TruncateForPrompt(long, 500)
	if len(got) > 500 {
		t.Errorf("len = %d, want <= 500", len(got))
	}
	if got[len(got)-1] != '.' {
		t.Errorf("expected cut at sentence boundary, got tail %q", got[len(got)-10:])
	}
}
