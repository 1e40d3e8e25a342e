package contextmw

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"council-trader/internal/models"
)

// stubReasoner returns a fixed summary, or an error when failing is set.
type stubReasoner struct {
	summary string
	failing bool
	calls   int
}

func (s *stubReasoner) Invoke(_ context.Context, _ string, _, _ string) (string, error) {
	s.calls++
	if s.failing {
		return "", errors.New("provider unavailable")
	}
	return s.summary, nil
}

func testUnits(contents ...string) []*Unit {
	units := make([]*Unit, len(contents))
	for i, c := range contents {
		units[i] = &Unit{Role: models.RoleMarket, Label: "report", Content: c}
	}
	return units
}

// numericStubReasoner summarizes by keeping only the numeric tokens of
// the material it is given.
type numericStubReasoner struct {
	calls int
}

func (s *numericStubReasoner) Invoke(_ context.Context, _ string, _, userPrompt string) (string, error) {
	s.calls++
	var kept []string
	for _, f := range strings.Fields(userPrompt) {
		if strings.ContainsAny(f, "0123456789") {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " "), nil
}

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.in); got != tc.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tc.in), got, tc.want)
		}
	}
}

func TestCompactNoopUnderThreshold(t *testing.T) {
	reasoner := &stubReasoner{summary: "short"}
	c := NewCompactor(reasoner, time.Second, zerolog.Nop())

	units := testUnits("a small report")
	before := units[0].Content
	res := c.Compact(context.Background(), units, 1000)

	if res.Compacted {
		t.Error("under-threshold pass should not compact")
	}
	if reasoner.calls != 0 {
		t.Errorf("no summarization expected, got %d calls", reasoner.calls)
	}
	if units[0].Content != before {
		t.Error("content changed on a no-op pass")
	}
	if res.TokensBefore != res.TokensAfter {
		t.Errorf("token counts diverged on no-op: %d != %d", res.TokensBefore, res.TokensAfter)
	}
}

func TestCompactShrinksOversizedUnits(t *testing.T) {
	reasoner := &stubReasoner{summary: "folded"}
	c := NewCompactor(reasoner, time.Second, zerolog.Nop())

	units := testUnits(strings.Repeat("growth ", 200), strings.Repeat("risk ", 200))
	res := c.Compact(context.Background(), units, 100)

	if !res.Compacted {
		t.Fatal("oversized units were not compacted")
	}
	if res.TokensAfter >= res.TokensBefore {
		t.Errorf("tokens did not shrink: %d -> %d", res.TokensBefore, res.TokensAfter)
	}
	for i, u := range units {
		if u.Content != "folded" {
			t.Errorf("unit %d content not replaced: %q", i, u.Content)
		}
	}
}

func TestCompactIsIdempotent(t *testing.T) {
	reasoner := &stubReasoner{summary: "folded"}
	c := NewCompactor(reasoner, time.Second, zerolog.Nop())

	units := testUnits(strings.Repeat("growth ", 200))
	c.Compact(context.Background(), units, 100)
	callsAfterFirst := reasoner.calls

	res := c.Compact(context.Background(), units, 100)
	if reasoner.calls != callsAfterFirst {
		t.Error("second pass over compacted content invoked the summarizer")
	}
	if res.Compacted {
		t.Error("second pass reported compaction")
	}
}

func TestCompactFailureRetainsOriginal(t *testing.T) {
	reasoner := &stubReasoner{failing: true}
	c := NewCompactor(reasoner, time.Second, zerolog.Nop())

	original := strings.Repeat("catalyst ", 200)
	units := testUnits(original)
	res := c.Compact(context.Background(), units, 100)

	if units[0].Content != original {
		t.Error("failed summarization must retain the original content")
	}
	if len(res.Warnings) == 0 {
		t.Error("failed summarization must attach a warning")
	}
	if !res.OverThreshold {
		t.Error("still-oversized pass must flag OverThreshold")
	}
}

func TestCompactRejectsNonShrinkingSummary(t *testing.T) {
	original := strings.Repeat("target 410 ", 100)
	reasoner := &stubReasoner{summary: original + original}
	c := NewCompactor(reasoner, time.Second, zerolog.Nop())

	units := testUnits(original)
	res := c.Compact(context.Background(), units, 50)

	if units[0].Content != original {
		t.Error("longer summary must not replace the original")
	}
	if res.Compacted {
		t.Error("pass with only rejected summaries reported compaction")
	}
	if len(res.Warnings) == 0 {
		t.Error("rejected summary must attach a warning")
	}
}

func TestCompactCarriesNumbersThroughSummary(t *testing.T) {
	reasoner := &numericStubReasoner{}
	c := NewCompactor(reasoner, time.Second, zerolog.Nop())

	original := strings.Repeat("the tape is constructive and breadth keeps improving ", 40) +
		"buy with target 412.50 and stop 388"
	units := testUnits(original)
	res := c.Compact(context.Background(), units, 100)

	if !res.Compacted {
		t.Fatal("oversized unit was not compacted")
	}
	if reasoner.calls != 1 {
		t.Errorf("expected 1 summarizer call, got %d", reasoner.calls)
	}
	if !strings.Contains(units[0].Content, "412.50") {
		t.Errorf("price target lost in compaction: %q", units[0].Content)
	}
	if !strings.Contains(units[0].Content, "388") {
		t.Errorf("stop level lost in compaction: %q", units[0].Content)
	}
}

func TestCompactSkipsUnitsWithinBudget(t *testing.T) {
	reasoner := &stubReasoner{summary: "folded"}
	c := NewCompactor(reasoner, time.Second, zerolog.Nop())

	small := "tiny"
	big := strings.Repeat("expansion ", 300)
	units := testUnits(small, big)
	c.Compact(context.Background(), units, 200)

	if units[0].Content != small {
		t.Error("unit within its budget was summarized")
	}
	if units[1].Content != "folded" {
		t.Error("oversized unit was not summarized")
	}
	if reasoner.calls != 1 {
		t.Errorf("expected 1 summarizer call, got %d", reasoner.calls)
	}
}
