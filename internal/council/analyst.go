package council

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"council-trader/internal/contextmw"
	apperrors "council-trader/internal/errors"
	"council-trader/internal/llm"
	"council-trader/internal/models"
	"council-trader/internal/stream"
)

// AnalystStage fans the subject out to every configured analyst in
// parallel and collects one report per role. A role that times out or
// fails still yields a report carrying its status, so coverage gaps
// are visible downstream instead of silently narrowing the fan-in.
type AnalystStage struct {
	reasoner llm.Reasoner
	roles    []models.Role
	timeout  time.Duration
	logger   zerolog.Logger
}

func NewAnalystStage(reasoner llm.Reasoner, roles []models.Role, timeout time.Duration, logger zerolog.Logger) *AnalystStage {
	return &AnalystStage{
		reasoner: reasoner,
		roles:    roles,
		timeout:  timeout,
		logger:   logger,
	}
}

// Run blocks until every dispatched analyst has reported. When ctx is
// cancelled before a role is dispatched the role is skipped; calls
// already in flight run to completion against a detached context so a
// slow provider cannot wedge the fan-in barrier past its own timeout.
func (s *AnalystStage) Run(ctx context.Context, subject models.Subject, emitter stream.Emitter) ([]models.AgentReport, error) {
	results := make(chan models.AgentReport, len(s.roles))
	var wg sync.WaitGroup

	dispatched := 0
	for _, role := range s.roles {
		if ctx.Err() != nil {
			s.logger.Warn().Str("role", string(role)).Msg("skipping analyst, run cancelled")
			continue
		}
		dispatched++
		wg.Add(1)
		go func(role models.Role) {
			defer wg.Done()
			results <- s.analyze(ctx, subject, role)
		}(role)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	reports := make([]models.AgentReport, 0, dispatched)
	for report := range results {
		switch report.Status {
		case models.ReportOK:
			emitter.Progress(nil, fmt.Sprintf("%s analysis completed", report.Role))
		case models.ReportTimedOut:
			emitter.Progress(nil, fmt.Sprintf("%s analysis timed out", report.Role))
		default:
			emitter.Progress(nil, fmt.Sprintf("%s analysis failed", report.Role))
		}
		reports = append(reports, report)
	}

	usable := 0
	for _, r := range reports {
		if r.Usable() {
			usable++
		}
	}
	if usable == 0 {
		return reports, apperrors.Wrapf(apperrors.ErrNoCoverage,
			"no usable analyst reports out of %d dispatched", dispatched)
	}
	return reports, nil
}

func (s *AnalystStage) analyze(ctx context.Context, subject models.Subject, role models.Role) models.AgentReport {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	start := time.Now()
	content, err := s.reasoner.Invoke(callCtx, string(role),
		analystSystemPrompts[role], analystUserPrompt(subject, role))
	elapsed := time.Since(start)

	report := models.AgentReport{Role: role, Elapsed: elapsed}
	switch {
	case err == nil:
		report.Content = content
		report.Status = models.ReportOK
		report.TokenCount = contextmw.EstimateTokens(content)
		s.logger.Debug().Str("role", string(role)).
			Int("tokens", report.TokenCount).
			Dur("elapsed", elapsed).
			Msg("analyst report collected")
	case callCtx.Err() == context.DeadlineExceeded:
		report.Status = models.ReportTimedOut
		s.logger.Warn().Str("role", string(role)).
			Dur("elapsed", elapsed).
			Msg("analyst timed out")
	default:
		report.Status = models.ReportFailed
		s.logger.Error().Err(err).Str("role", string(role)).
			Msg("analyst failed")
	}
	return report
}
