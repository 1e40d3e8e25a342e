package council

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "council-trader/internal/errors"
	"council-trader/internal/llm"
	"council-trader/internal/models"
)

// TraderStage turns the research synthesis into a concrete proposal.
// Unlike the analyst fan-out there is no degraded path here: a run
// that cannot produce a proposal cannot produce a decision.
type TraderStage struct {
	reasoner       llm.Reasoner
	portfolioValue float64
	timeout        time.Duration
	logger         zerolog.Logger
}

func NewTraderStage(reasoner llm.Reasoner, portfolioValue float64, timeout time.Duration, logger zerolog.Logger) *TraderStage {
	return &TraderStage{
		reasoner:       reasoner,
		portfolioValue: portfolioValue,
		timeout:        timeout,
		logger:         logger,
	}
}

func (s *TraderStage) Run(ctx context.Context, subject models.Subject, synthesis string, reports []models.AgentReport) (*models.Proposal, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	response, err := s.reasoner.Invoke(callCtx, string(models.RoleTrader),
		traderSystemPrompt, traderUserPrompt(subject, synthesis, reports, s.portfolioValue))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDecisionUnavailable, err.Error())
	}

	proposal, err := ParseProposal(response)
	if err != nil {
		return nil, err
	}
	proposal.Notional = notional(s.portfolioValue, proposal.SizePercent)
	s.logger.Info().
		Str("action", string(proposal.Action)).
		Float64("size_percent", proposal.SizePercent).
		Str("notional", proposal.Notional).
		Msg("trading proposal formed")
	return proposal, nil
}

// notional converts a portfolio percentage into currency, kept in
// decimal so 0.1% of an odd portfolio value doesn't pick up float
// residue on the way to two places.
func notional(portfolioValue, sizePercent float64) string {
	if sizePercent <= 0 || portfolioValue <= 0 {
		return ""
	}
	value := decimal.NewFromFloat(portfolioValue).
		Mul(decimal.NewFromFloat(sizePercent)).
		Div(decimal.NewFromInt(100)).
		Round(2)
	return value.StringFixed(2)
}
