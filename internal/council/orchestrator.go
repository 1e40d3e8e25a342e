package council

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"council-trader/internal/config"
	"council-trader/internal/contextmw"
	apperrors "council-trader/internal/errors"
	"council-trader/internal/llm"
	"council-trader/internal/logging"
	"council-trader/internal/models"
	"council-trader/internal/stream"
)

// Stage is a point in the session pipeline. Terminal failure and
// cancellation live on SessionStatus, not here.
type Stage string

const (
	StageCreated      Stage = "CREATED"
	StageAnalyzing    Stage = "ANALYZING"
	StageSynthesizing Stage = "SYNTHESIZING"
	StageDeciding     Stage = "DECIDING"
	StageRiskReview   Stage = "RISK_REVIEW"
	StageDone         Stage = "DONE"
)

const (
	stageNameAnalyzing    = "analyzing"
	stageNameSynthesizing = "synthesizing"
	stageNameDeciding     = "deciding"
	stageNameRiskReview   = "risk_review"
)

// Orchestrator drives a subject through the full council pipeline:
// analyst fan-out, research debate, trading proposal, and risk review.
// Accumulated context is compacted against the token threshold before
// every stage transition, and cancellation is honored at each stage
// boundary and between reasoning dispatches.
type Orchestrator struct {
	config    config.CouncilConfig
	reasoner  llm.Reasoner
	compactor *contextmw.Compactor
	registry  *Registry
	logger    zerolog.Logger
}

func NewOrchestrator(cfg config.CouncilConfig, reasoner llm.Reasoner, registry *Registry, logger zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		config:   cfg,
		reasoner: reasoner,
		registry: registry,
		logger:   logger,
	}
	if cfg.EnableSummarization {
		o.compactor = contextmw.NewCompactor(reasoner, cfg.TimeoutPerCall, logger)
	}
	return o
}

// Run executes one session to a terminal state and always emits exactly
// one terminal event on the reporter. The returned session is registered
// and retains its transcripts, ledger, and decision for inspection.
func (o *Orchestrator) Run(ctx context.Context, subject models.Subject, reporter *stream.Reporter) (*Session, error) {
	if err := subject.Validate(); err != nil {
		reporter.Error(err.Error())
		return nil, err
	}

	session := NewSession(subject)
	o.registry.Add(session)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	session.bindCancel(cancel)

	logger := logging.WithSession(o.logger, session.ID)
	reporter.Connected()

	// ANALYZING
	if o.interrupted(runCtx, session) {
		return session, o.finishCancelled(session, reporter, logger)
	}
	o.transition(session, logger, StageAnalyzing)
	roles := o.config.AnalystRoles()
	tools := make([]string, len(roles))
	for i, r := range roles {
		tools[i] = string(r)
	}
	reporter.Progress(tools, fmt.Sprintf("analyzing %s with %d analysts", subject.Ticker, len(roles)))

	analysts := NewAnalystStage(o.reasoner, roles, o.config.TimeoutPerCall, logger)
	reports, err := analysts.Run(runCtx, subject, reporter)
	session.setReports(reports)
	for _, r := range reports {
		session.Ledger.Add(r.Role, r.TokenCount)
		logging.LogRoleResult(logger, string(r.Role), string(r.Status), r.TokenCount, r.Elapsed)
	}
	reporter.ToolsCompleted()
	if err != nil {
		// A cancel landing mid-stage can starve the fan-out of roles;
		// that is a cancelled session, not a coverage failure.
		if o.interrupted(runCtx, session) || isCancellation(err) {
			return session, o.finishCancelled(session, reporter, logger)
		}
		return session, o.finishFailed(session, reporter, logger, stageNameAnalyzing, err)
	}

	var gaps []models.Role
	for _, r := range reports {
		if !r.Usable() {
			gaps = append(gaps, r.Role)
		}
	}

	// SYNTHESIZING
	if o.interrupted(runCtx, session) {
		return session, o.finishCancelled(session, reporter, logger)
	}
	o.compactReports(runCtx, session, logger)
	reports = session.Reports()
	o.transition(session, logger, StageSynthesizing)
	reporter.Progress(nil, "opening bull/bear research debate")

	research := NewDebateStage(o.reasoner, DebateConfig{
		Name:      "research",
		Sides:     []models.Role{models.RoleBull, models.RoleBear},
		Moderator: models.RoleResearchManager,
		MaxRounds: o.config.MaxDebateRounds,
	}, o.config.TimeoutPerCall, logger)

	materials := renderReports(reports)
	researchDebate, err := research.Run(runCtx, subject, materials, reporter)
	session.setResearchDebate(researchDebate)
	for _, round := range researchDebate.Rounds {
		session.Ledger.Add(round.Speaker, round.TokenCount)
	}
	synthesis := researchDebate.Synthesis
	switch {
	case err == nil:
	case isCancellation(err):
		return session, o.finishCancelled(session, reporter, logger)
	case apperrors.Is(err, apperrors.ErrDebateNoParticipants):
		session.addWarning(err.Error())
		synthesis = "(research debate unavailable; proceeding on analyst reports alone)"
		logger.Warn().Err(err).Msg("research debate degraded")
	default:
		return session, o.finishFailed(session, reporter, logger, stageNameSynthesizing, err)
	}

	// DECIDING
	if o.interrupted(runCtx, session) {
		return session, o.finishCancelled(session, reporter, logger)
	}
	o.compactTranscript(runCtx, session, logger, session.ResearchDebate())
	synthesis = o.compactSynthesis(runCtx, session, logger, synthesis)
	o.transition(session, logger, StageDeciding)
	reporter.Progress(nil, "forming trading proposal")

	trader := NewTraderStage(o.reasoner, o.config.PortfolioValue, o.config.TimeoutPerCall, logger)
	proposal, err := trader.Run(runCtx, subject, synthesis, reports)
	if err != nil {
		if isCancellation(err) {
			return session, o.finishCancelled(session, reporter, logger)
		}
		return session, o.finishFailed(session, reporter, logger, stageNameDeciding, err)
	}
	session.setProposal(proposal)
	session.Ledger.Add(models.RoleTrader, contextmw.EstimateTokens(proposal.Rationale))
	reporter.Progress(nil, fmt.Sprintf("trading proposal: %s", proposal.Action))

	// RISK_REVIEW runs for every action, a WAIT included: sizing and
	// re-entry conditions still need the council's sign-off.
	if o.interrupted(runCtx, session) {
		return session, o.finishCancelled(session, reporter, logger)
	}
	o.compactReports(runCtx, session, logger)
	o.transition(session, logger, StageRiskReview)
	reporter.Progress(nil, "opening risk council review")

	var judge JudgeVerdict
	risk := NewDebateStage(o.reasoner, DebateConfig{
		Name:      "risk",
		Sides:     []models.Role{models.RoleRisky, models.RoleSafe, models.RoleNeutral},
		Moderator: models.RoleRiskJudge,
		MaxRounds: o.config.MaxDebateRounds,
		Contract:  judgeResponseContract,
		Converged: func(response string) Verdict {
			judge = ParseJudgeVerdict(response)
			return judge.Verdict
		},
	}, o.config.TimeoutPerCall, logger)

	riskMaterials := fmt.Sprintf("Trading proposal under review:\n%s\nResearch synthesis:\n%s\n", renderProposal(proposal), synthesis)
	riskDebate, err := risk.Run(runCtx, subject, riskMaterials, reporter)
	session.setRiskDebate(riskDebate)
	for _, round := range riskDebate.Rounds {
		session.Ledger.Add(round.Speaker, round.TokenCount)
	}
	if err != nil {
		if isCancellation(err) {
			return session, o.finishCancelled(session, reporter, logger)
		}
		// The proposal survives a degraded risk review; the decision
		// just falls back to the trader's numbers.
		session.addWarning(fmt.Sprintf("risk review degraded: %v", err))
		logger.Warn().Err(err).Msg("risk review degraded")
	}

	gaps = append(gaps, researchDebate.Dropped...)
	gaps = append(gaps, riskDebate.Dropped...)
	decision := o.buildDecision(session, subject, proposal, judge, riskDebate, gaps)
	if err := decision.Validate(); err != nil {
		return session, o.finishFailed(session, reporter, logger, stageNameRiskReview, err)
	}
	session.setDecision(decision)
	logging.LogDecision(logger, subject.Ticker, string(decision.Action), decision.Confidence, len(gaps))

	o.transition(session, logger, StageDone)
	session.setStatus(models.SessionCompleted)
	reporter.Content(renderDecision(decision))
	reporter.Done(session.ID, doneMetadata(session, decision))
	return session, nil
}

func (o *Orchestrator) buildDecision(session *Session, subject models.Subject, proposal *models.Proposal, judge JudgeVerdict, riskDebate *models.DebateTranscript, gaps []models.Role) *models.FinalDecision {
	d := &models.FinalDecision{
		SessionID:    session.ID,
		Ticker:       subject.Ticker,
		AsOf:         subject.AsOf,
		Action:       proposal.Action,
		Confidence:   proposal.Confidence,
		Entry:        proposal.Entry,
		Target:       proposal.Target,
		Stop:         proposal.Stop,
		Rationale:    proposal.Rationale,
		CoverageGaps: gaps,
		CreatedAt:    time.Now(),
	}
	if judge.HasAction {
		d.Action = judge.Action
	}
	if judge.Confidence > 0 {
		d.Confidence = judge.Confidence
	}
	if judge.Entry > 0 {
		d.Entry = judge.Entry
	}
	if judge.Target > 0 {
		d.Target = judge.Target
	}
	if judge.Stop > 0 {
		d.Stop = judge.Stop
	}
	if riskDebate != nil && riskDebate.Synthesis != "" {
		d.Rationale = riskDebate.Synthesis
	}
	if d.Rationale == "" {
		d.Rationale = "(no rationale provided by the council)"
	}
	return d
}

func (o *Orchestrator) transition(s *Session, logger zerolog.Logger, to Stage) {
	logging.LogStageTransition(logger, string(s.Stage()), string(to))
	s.setStage(to)
}

func (o *Orchestrator) interrupted(ctx context.Context, s *Session) bool {
	return ctx.Err() != nil || s.Cancelled()
}

func isCancellation(err error) bool {
	return apperrors.Is(err, context.Canceled) || apperrors.Is(err, apperrors.ErrSessionCancelled)
}

func (o *Orchestrator) finishCancelled(s *Session, reporter *stream.Reporter, logger zerolog.Logger) error {
	s.setStatus(models.SessionCancelled)
	logger.Warn().Str("stage", string(s.Stage())).Msg("session cancelled")
	reporter.Error("analysis cancelled")
	return apperrors.ErrSessionCancelled
}

func (o *Orchestrator) finishFailed(s *Session, reporter *stream.Reporter, logger zerolog.Logger, stage string, err error) error {
	wrapped := apperrors.NewStageError(stage, err)
	s.fail(wrapped)
	logger.Error().Err(err).Str("stage", stage).Msg("session failed")
	reporter.Error(wrapped.Error())
	return wrapped
}

// compactReports runs the token gate over the analyst reports and writes
// compacted content back onto the session.
func (o *Orchestrator) compactReports(ctx context.Context, s *Session, logger zerolog.Logger) {
	if o.compactor == nil {
		return
	}
	reports := s.Reports()
	if len(reports) == 0 {
		return
	}
	units := make([]*contextmw.Unit, len(reports))
	before := make([]int, len(reports))
	for i, r := range reports {
		units[i] = &contextmw.Unit{Role: r.Role, Label: string(r.Role) + " report", Content: r.Content}
		before[i] = units[i].Tokens()
	}
	res := o.compactor.Compact(ctx, units, o.config.TokenThreshold)
	if !res.Compacted && len(res.Warnings) == 0 {
		return
	}
	for i := range reports {
		reports[i].Content = units[i].Content
		reports[i].TokenCount = units[i].Tokens()
		s.Ledger.RecordCompaction(reports[i].Role, before[i], reports[i].TokenCount)
	}
	s.setReports(reports)
	for _, w := range res.Warnings {
		s.addWarning(w)
	}
	logging.LogCompaction(logger, res.TokensBefore, res.TokensAfter, len(res.Warnings))
}

// compactTranscript gates a debate transcript's rounds the same way.
func (o *Orchestrator) compactTranscript(ctx context.Context, s *Session, logger zerolog.Logger, t *models.DebateTranscript) {
	if o.compactor == nil || t == nil || len(t.Rounds) == 0 {
		return
	}
	units := make([]*contextmw.Unit, len(t.Rounds))
	before := make([]int, len(t.Rounds))
	for i, r := range t.Rounds {
		units[i] = &contextmw.Unit{Role: r.Speaker, Label: fmt.Sprintf("%s round %d", r.Speaker, r.Index), Content: r.Content}
		before[i] = units[i].Tokens()
	}
	res := o.compactor.Compact(ctx, units, o.config.TokenThreshold)
	if !res.Compacted && len(res.Warnings) == 0 {
		return
	}
	for i := range t.Rounds {
		t.Rounds[i].Content = units[i].Content
		t.Rounds[i].TokenCount = units[i].Tokens()
		s.Ledger.RecordCompaction(t.Rounds[i].Speaker, before[i], t.Rounds[i].TokenCount)
	}
	for _, w := range res.Warnings {
		s.addWarning(w)
	}
	logging.LogCompaction(logger, res.TokensBefore, res.TokensAfter, len(res.Warnings))
}

func (o *Orchestrator) compactSynthesis(ctx context.Context, s *Session, logger zerolog.Logger, synthesis string) string {
	if o.compactor == nil || synthesis == "" {
		return synthesis
	}
	unit := &contextmw.Unit{Role: models.RoleResearchManager, Label: "research synthesis", Content: synthesis}
	before := unit.Tokens()
	res := o.compactor.Compact(ctx, []*contextmw.Unit{unit}, o.config.TokenThreshold)
	if res.Compacted {
		s.Ledger.RecordCompaction(models.RoleResearchManager, before, unit.Tokens())
		logging.LogCompaction(logger, res.TokensBefore, res.TokensAfter, len(res.Warnings))
	}
	for _, w := range res.Warnings {
		s.addWarning(w)
	}
	return unit.Content
}

func renderDecision(d *models.FinalDecision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (confidence %.0f)\n", d.Action, d.Ticker, d.Confidence)
	if d.Entry > 0 {
		fmt.Fprintf(&b, "entry %.2f", d.Entry)
		if d.Target > 0 {
			fmt.Fprintf(&b, ", target %.2f", d.Target)
		}
		if d.Stop > 0 {
			fmt.Fprintf(&b, ", stop %.2f", d.Stop)
		}
		b.WriteString("\n")
	}
	b.WriteString(d.Rationale)
	return b.String()
}

func doneMetadata(s *Session, d *models.FinalDecision) map[string]any {
	gaps := make([]string, len(d.CoverageGaps))
	for i, g := range d.CoverageGaps {
		gaps[i] = string(g)
	}
	return map[string]any{
		"ticker":          d.Ticker,
		"action":          string(d.Action),
		"confidence":      d.Confidence,
		"coverage_gaps":   gaps,
		"tokens_total":    s.Ledger.Total(),
		"tokens_per_role": s.Ledger.Snapshot(),
		"warnings":        len(s.Warnings()),
	}
}
