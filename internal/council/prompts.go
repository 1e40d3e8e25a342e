package council

import (
	"fmt"
	"strings"

	"council-trader/internal/models"
)

// Structured response contracts. Every role is pinned to a KEY: value
// grammar so downstream parsing never depends on free-form prose.

const analystResponseContract = `Your response must be in the following exact format:
RECOMMENDATION: BUY|SELL|HOLD|WAIT
CONFIDENCE: <number 0-100>
KEY_NUMBERS: <comma-separated numeric values you relied on, or N/A>
REASONING: <your analysis>`

const moderatorResponseContract = `Your response must be in the following exact format:
CONVERGED: YES|NO
SYNTHESIS: <when CONVERGED is YES, a complete synthesis of the debate; otherwise a one-line note on the open disagreement>`

const forcedSynthesisContract = `Your response must be in the following exact format:
SYNTHESIS: <a complete synthesis of the debate, taking a definitive position>`

const traderResponseContract = `Your response must be in the following exact format:
ACTION: BUY|SELL|HOLD|WAIT
ENTRY: <price or N/A>
TARGET: <price or N/A>
STOP: <price or N/A>
SIZE_PERCENT: <portfolio percentage 0-100>
CONFIDENCE: <number 0-100>
REASONING: <your rationale in one paragraph>`

const judgeResponseContract = `Your response must be in the following exact format:
CONVERGED: YES|NO
SYNTHESIS: <when CONVERGED is YES, your final risk-adjusted verdict>
ACTION: BUY|SELL|HOLD|WAIT
CONFIDENCE: <number 0-100>
ENTRY: <price or N/A>
TARGET: <price or N/A>
STOP: <price or N/A>`

var analystSystemPrompts = map[models.Role]string{
	models.RoleMarket: `You are a market analyst. Evaluate price action, trend structure,
volume behavior, and technical posture for the given ticker as of the given date.`,
	models.RoleSocial: `You are a social sentiment analyst. Evaluate retail and social media
sentiment, positioning chatter, and crowd dynamics for the given ticker.`,
	models.RoleNews: `You are a news analyst. Evaluate recent headlines, announcements, and
macro events bearing on the given ticker, and their likely price impact.`,
	models.RoleFundamentals: `You are a fundamentals analyst. Evaluate valuation, earnings
quality, balance sheet strength, and growth trajectory for the given ticker.`,
}

var debateSystemPrompts = map[models.Role]string{
	models.RoleBull: `You are the bull researcher. Argue the strongest evidence-based case
FOR taking a position in the ticker. Rebut the bear's latest points directly.`,
	models.RoleBear: `You are the bear researcher. Argue the strongest evidence-based case
AGAINST taking a position in the ticker. Rebut the bull's latest points directly.`,
	models.RoleResearchManager: `You are the research manager moderating a bull/bear debate.
Decide whether the debate has converged: converged means the remaining disagreement
would not change the investment stance. Weigh evidence, not rhetoric.`,
	models.RoleRisky: `You are the aggressive risk analyst. Argue for the upside case of the
trading proposal and against over-hedging. Ground every claim in the proposal.`,
	models.RoleSafe: `You are the conservative risk analyst. Argue for capital preservation:
challenge the proposal's sizing, stops, and downside assumptions.`,
	models.RoleNeutral: `You are the neutral risk analyst. Stress-test both the aggressive and
conservative positions and surface what both are missing.`,
	models.RoleRiskJudge: `You are the risk judge moderating the risk council. Decide whether
the council has converged on a risk-adjusted version of the trading proposal, and when it
has, issue the final verdict.`,
}

const traderSystemPrompt = `You are the trader. Convert the research synthesis into a concrete
position proposal: action, entry, target, stop, and position size as a percentage of the
portfolio. A WAIT still carries sizing notes for later entry. Be decisive; do not hedge
across actions.`

func analystUserPrompt(subject models.Subject, role models.Role) string {
	return fmt.Sprintf("Analyze %s as of %s from the %s perspective.\n\n%s",
		subject.Ticker, subject.AsOf.Format("2006-01-02"), role, analystResponseContract)
}

func renderReports(reports []models.AgentReport) string {
	var b strings.Builder
	for _, r := range reports {
		if !r.Usable() {
			continue
		}
		fmt.Fprintf(&b, "=== %s analyst report ===\n%s\n\n", r.Role, r.Content)
	}
	if b.Len() == 0 {
		return "(no analyst reports available)\n"
	}
	return b.String()
}

func renderTranscript(t *models.DebateTranscript) string {
	if t == nil || len(t.Rounds) == 0 {
		return "(debate has not started)\n"
	}
	var b strings.Builder
	for _, r := range t.Rounds {
		fmt.Fprintf(&b, "[round %d] %s: %s\n", r.Index, r.Speaker, r.Content)
	}
	return b.String()
}

func sideUserPrompt(subject models.Subject, materials string, t *models.DebateTranscript, round int) string {
	return fmt.Sprintf(`Ticker: %s (as of %s)

Upstream material:
%s
Debate so far:
%s
This is round %d. Make your strongest argument for this round. Respond with the argument text only.`,
		subject.Ticker, subject.AsOf.Format("2006-01-02"), materials, renderTranscript(t), round)
}

func moderatorUserPrompt(subject models.Subject, materials string, t *models.DebateTranscript, contract string) string {
	return fmt.Sprintf(`Ticker: %s (as of %s)

Upstream material:
%s
Debate transcript:
%s
%s`,
		subject.Ticker, subject.AsOf.Format("2006-01-02"), materials, renderTranscript(t), contract)
}

func forcedSynthesisPrompt(subject models.Subject, materials string, t *models.DebateTranscript) string {
	return fmt.Sprintf(`Ticker: %s (as of %s)

Upstream material:
%s
Debate transcript:
%s
The round budget is exhausted. You MUST now produce a synthesis regardless of remaining disagreement.
%s`,
		subject.Ticker, subject.AsOf.Format("2006-01-02"), materials, renderTranscript(t), forcedSynthesisContract)
}

func traderUserPrompt(subject models.Subject, synthesis string, reports []models.AgentReport, portfolioValue float64) string {
	return fmt.Sprintf(`Ticker: %s (as of %s)
Portfolio value: %.2f

Research synthesis:
%s

Analyst reports:
%s
%s`,
		subject.Ticker, subject.AsOf.Format("2006-01-02"), portfolioValue, synthesis,
		renderReports(reports), traderResponseContract)
}

func renderProposal(p *models.Proposal) string {
	if p == nil {
		return "(no trading proposal available)\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\n", p.Action)
	if p.Entry > 0 {
		fmt.Fprintf(&b, "Entry: %.2f\n", p.Entry)
	}
	if p.Target > 0 {
		fmt.Fprintf(&b, "Target: %.2f\n", p.Target)
	}
	if p.Stop > 0 {
		fmt.Fprintf(&b, "Stop: %.2f\n", p.Stop)
	}
	fmt.Fprintf(&b, "Size: %.1f%% of portfolio", p.SizePercent)
	if p.Notional != "" {
		fmt.Fprintf(&b, " (%s)", p.Notional)
	}
	fmt.Fprintf(&b, "\nRationale: %s\n", p.Rationale)
	return b.String()
}
