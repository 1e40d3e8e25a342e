package contextmw

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	apperrors "council-trader/internal/errors"
	"council-trader/internal/llm"
	"council-trader/internal/models"
)

const summarizerRole = "summarizer"

const summarizerSystemPrompt = `You are a context compaction assistant for a trading analysis pipeline.
Summarize the provided material into at most the requested number of tokens.
The summary MUST preserve verbatim:
- every explicit numeric value (prices, targets, percentages, dates)
- every recommendation verb (buy, sell, hold, wait and equivalents)
- every named catalyst and risk
Drop narrative filler only. Return the summary text with no preamble.`

// Unit is one compactable piece of context: an agent report's content or a
// debate transcript rendered to text. Content is replaced in place when the
// unit is summarized.
type Unit struct {
	Role    models.Role
	Label   string
	Content string
}

// Tokens returns the current token estimate for the unit.
func (u *Unit) Tokens() int {
	return EstimateTokens(u.Content)
}

// Result describes one compaction pass.
type Result struct {
	Compacted     bool
	TokensBefore  int
	TokensAfter   int
	Warnings      []string
	OverThreshold bool
}

// Compactor applies role-scoped summarization to oversized context units.
type Compactor struct {
	reasoner llm.Reasoner
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewCompactor creates a compactor backed by the given reasoner.
func NewCompactor(reasoner llm.Reasoner, timeout time.Duration, logger zerolog.Logger) *Compactor {
	return &Compactor{reasoner: reasoner, timeout: timeout, logger: logger}
}

// Compact reduces the total token count of units to at most threshold.
// Under the threshold it is a no-op beyond the re-count, so compacting
// already-compact material is idempotent. Each unit above its per-unit
// budget is summarized individually; a failed or non-shrinking summarization
// keeps the original content and attaches a warning instead of losing the
// unit. If the total still exceeds the threshold after the pass, the result
// carries OverThreshold and the caller proceeds with oversized context
// rather than silently truncating.
func (c *Compactor) Compact(ctx context.Context, units []*Unit, threshold int) *Result {
	res := &Result{}
	for _, u := range units {
		res.TokensBefore += u.Tokens()
	}
	res.TokensAfter = res.TokensBefore

	if threshold <= 0 || res.TokensBefore <= threshold || len(units) == 0 {
		return res
	}

	perUnit := threshold / (len(units) + 1)
	if perUnit < 1 {
		perUnit = 1
	}

	for _, u := range units {
		before := u.Tokens()
		if before <= perUnit {
			continue
		}
		summary, err := c.summarize(ctx, u, perUnit)
		if err != nil {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("%s: summarization failed, original retained: %v", u.Label, err))
			continue
		}
		after := EstimateTokens(summary)
		if after >= before {
			// Monotonic shrink guarantee: never swap in a longer summary.
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("%s: summary did not shrink content, original retained", u.Label))
			continue
		}
		u.Content = summary
		res.Compacted = true
	}

	res.TokensAfter = 0
	for _, u := range units {
		res.TokensAfter += u.Tokens()
	}
	if res.TokensAfter > threshold {
		res.OverThreshold = true
		res.Warnings = append(res.Warnings, apperrors.ErrContextOverflow.Error())
	}
	return res
}

func (c *Compactor) summarize(ctx context.Context, u *Unit, budget int) (string, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	prompt := fmt.Sprintf("Material from %s (compress to at most %d tokens):\n\n%s", u.Label, budget, u.Content)
	out, err := c.reasoner.Invoke(callCtx, summarizerRole, summarizerSystemPrompt, prompt)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", apperrors.ErrEmptyResponse
	}
	return out, nil
}
