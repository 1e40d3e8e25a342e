// Package models defines the core domain types shared across the analysis pipeline.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies a reasoning participant in the pipeline.
type Role string

// Analyst roles run in parallel during the analysis stage.
const (
	RoleMarket       Role = "market"
	RoleSocial       Role = "social"
	RoleNews         Role = "news"
	RoleFundamentals Role = "fundamentals"
)

// Research debate roles.
const (
	RoleBull            Role = "bull"
	RoleBear            Role = "bear"
	RoleResearchManager Role = "research_manager"
)

// Trading and risk council roles.
const (
	RoleTrader    Role = "trader"
	RoleRisky     Role = "risky"
	RoleSafe      Role = "safe"
	RoleNeutral   Role = "neutral"
	RoleRiskJudge Role = "risk_judge"
)

// AnalystRoles is the closed set of roles accepted in the analysts config.
// Unknown role names fail validation at startup, never at call time.
var AnalystRoles = map[Role]bool{
	RoleMarket:       true,
	RoleSocial:       true,
	RoleNews:         true,
	RoleFundamentals: true,
}

// DefaultAnalysts returns the analyst roles enabled when none are configured.
func DefaultAnalysts() []Role {
	return []Role{RoleMarket, RoleSocial, RoleNews, RoleFundamentals}
}

// ReportStatus is the terminal outcome of one analyst role call.
type ReportStatus string

const (
	ReportOK       ReportStatus = "OK"
	ReportTimedOut ReportStatus = "TIMED_OUT"
	ReportFailed   ReportStatus = "FAILED"
)

// AgentReport is the immutable output of one analyst-stage participant.
type AgentReport struct {
	Role       Role          `json:"role"`
	Content    string        `json:"content"`
	Status     ReportStatus  `json:"status"`
	TokenCount int           `json:"token_count"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Usable reports carry content downstream; others only feed coverage gaps.
func (r *AgentReport) Usable() bool {
	return r.Status == ReportOK && r.Content != ""
}

// DebateRound is one speech within a debate stage. Rounds are append-only.
type DebateRound struct {
	Index      int    `json:"round_index"`
	Speaker    Role   `json:"speaker_role"`
	Content    string `json:"content"`
	TokenCount int    `json:"token_count"`
}

// DebateTranscript is the ordered record of a debate plus its terminal synthesis.
type DebateTranscript struct {
	Name      string        `json:"name"`
	Rounds    []DebateRound `json:"rounds"`
	Dropped   []Role        `json:"dropped_sides,omitempty"`
	Synthesis string        `json:"synthesis"`
	Forced    bool          `json:"forced"`
}

// RoundsPerSide counts completed speeches for a given side.
func (t *DebateTranscript) RoundsPerSide(side Role) int {
	n := 0
	for _, r := range t.Rounds {
		if r.Speaker == side {
			n++
		}
	}
	return n
}

// Action is a terminal trading recommendation.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
	ActionWait Action = "WAIT"
)

// ParseAction maps model output onto the closed action set. Case and
// surrounding whitespace are forgiven; anything else is rejected.
func ParseAction(s string) (Action, bool) {
	normalized := Action(strings.ToUpper(strings.TrimSpace(s)))
	switch normalized {
	case ActionBuy, ActionSell, ActionHold, ActionWait:
		return normalized, true
	}
	return "", false
}

// Proposal is the trading stage output: a structured position proposal
// derived from the research synthesis.
type Proposal struct {
	Action      Action  `json:"action"`
	Entry       float64 `json:"entry,omitempty"`
	Target      float64 `json:"target,omitempty"`
	Stop        float64 `json:"stop,omitempty"`
	SizePercent float64 `json:"size_percent,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
	Notional    string  `json:"notional,omitempty"`
	Rationale   string  `json:"rationale"`
}

// FinalDecision is the terminal artifact of a session, created exactly once.
type FinalDecision struct {
	SessionID    string    `json:"session_id"`
	Ticker       string    `json:"ticker"`
	AsOf         time.Time `json:"as_of"`
	Action       Action    `json:"action"`
	Confidence   float64   `json:"confidence"`
	Entry        float64   `json:"entry,omitempty"`
	Target       float64   `json:"target,omitempty"`
	Stop         float64   `json:"stop,omitempty"`
	Rationale    string    `json:"rationale"`
	CoverageGaps []Role    `json:"coverage_gaps"`
	CreatedAt    time.Time `json:"created_at"`
}

// Validate rejects decisions that must never leave the orchestrator.
func (d *FinalDecision) Validate() error {
	if d.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if _, ok := ParseAction(string(d.Action)); !ok {
		return fmt.Errorf("invalid action %q", d.Action)
	}
	if d.Confidence < 0 || d.Confidence > 100 {
		return fmt.Errorf("confidence must be between 0 and 100, got %f", d.Confidence)
	}
	if d.Rationale == "" {
		return fmt.Errorf("rationale is required")
	}
	if d.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// HasGap reports whether role is recorded as a coverage gap.
func (d *FinalDecision) HasGap(role Role) bool {
	for _, g := range d.CoverageGaps {
		if g == role {
			return true
		}
	}
	return false
}

// Subject identifies the analysis target of a session.
type Subject struct {
	Ticker string    `json:"ticker"`
	AsOf   time.Time `json:"as_of"`
}

// Validate ensures the subject resolves to a usable analysis target.
func (s Subject) Validate() error {
	if s.Ticker == "" {
		return fmt.Errorf("ticker is required")
	}
	if s.AsOf.IsZero() {
		return fmt.Errorf("as-of date is required")
	}
	return nil
}

// SessionStatus is the lifecycle status of one analysis run.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "RUNNING"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionFailed    SessionStatus = "FAILED"
	SessionCancelled SessionStatus = "CANCELLED"
)
