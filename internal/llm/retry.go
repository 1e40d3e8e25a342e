package llm

import (
	"context"

	"github.com/rs/zerolog"

	"council-trader/pkg/utils"
)

// RetryingReasoner wraps a Reasoner with bounded exponential-backoff retry.
// On exhaustion the last error is returned and the caller records the role
// as a coverage gap; retry never masks a terminal failure.
type RetryingReasoner struct {
	inner  Reasoner
	cfg    utils.RetryConfig
	logger zerolog.Logger
}

// NewRetryingReasoner creates a retrying decorator around inner.
func NewRetryingReasoner(inner Reasoner, cfg utils.RetryConfig, logger zerolog.Logger) *RetryingReasoner {
	return &RetryingReasoner{inner: inner, cfg: cfg, logger: logger}
}

// Invoke implements Reasoner.
func (r *RetryingReasoner) Invoke(ctx context.Context, role string, systemPrompt, userPrompt string) (string, error) {
	cfg := r.cfg
	cfg.OnRetry = func(attempt int, err error) {
		r.logger.Warn().
			Str("role", role).
			Int("attempt", attempt).
			Err(err).
			Msg("Reasoning call failed, retrying")
	}
	return utils.RetryWithResult(ctx, cfg, func() (string, error) {
		return r.inner.Invoke(ctx, role, systemPrompt, userPrompt)
	})
}
