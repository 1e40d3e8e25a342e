// Package council orchestrates the multi-agent analysis workflow: parallel
// analysts, bounded adversarial debates, a trading proposal, and a risk
// council, producing one final decision per session.
package council

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"council-trader/internal/models"
)

// Session is the isolated, exclusively-owned unit of state for one
// end-to-end analysis run. The orchestrator that created it is its only
// writer; other goroutines observe it through the read accessors.
type Session struct {
	ID        string
	Subject   models.Subject
	CreatedAt time.Time
	Ledger    *models.TokenLedger

	mu               sync.RWMutex
	status           models.SessionStatus
	stage            Stage
	cancelled        bool
	onCancel         func()
	reports          []models.AgentReport
	researchDebate   *models.DebateTranscript
	riskDebate       *models.DebateTranscript
	proposal         *models.Proposal
	decision         *models.FinalDecision
	warnings         []string
	err              error
}

// NewSession creates a session for the subject with a generated ID.
func NewSession(subject models.Subject) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Subject:   subject,
		CreatedAt: time.Now(),
		Ledger:    models.NewTokenLedger(),
		status:    models.SessionRunning,
		stage:     StageCreated,
	}
}

// Cancel requests cooperative cancellation. The flag is honored at stage
// boundaries and before each new reasoning dispatch; in-flight calls finish.
func (s *Session) Cancel() {
	s.mu.Lock()
	already := s.cancelled
	s.cancelled = true
	fn := s.onCancel
	s.mu.Unlock()
	if !already && fn != nil {
		fn()
	}
}

// bindCancel attaches the run context's cancel func so that a Cancel
// from another goroutine interrupts waits between dispatches.
func (s *Session) bindCancel(fn func()) {
	s.mu.Lock()
	s.onCancel = fn
	cancelled := s.cancelled
	s.mu.Unlock()
	if cancelled {
		fn()
	}
}

// Cancelled reports whether cancellation was requested.
func (s *Session) Cancelled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cancelled
}

// Status returns the session lifecycle status.
func (s *Session) Status() models.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Stage returns the current pipeline stage.
func (s *Session) Stage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

// Reports returns the analyst reports recorded so far.
func (s *Session) Reports() []models.AgentReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.AgentReport, len(s.reports))
	copy(out, s.reports)
	return out
}

// ResearchDebate returns the research debate transcript, if finalized.
func (s *Session) ResearchDebate() *models.DebateTranscript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.researchDebate
}

// RiskDebate returns the risk council transcript, if finalized.
func (s *Session) RiskDebate() *models.DebateTranscript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.riskDebate
}

// Proposal returns the trading stage proposal, if produced.
func (s *Session) Proposal() *models.Proposal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.proposal
}

// Decision returns the final decision, if produced.
func (s *Session) Decision() *models.FinalDecision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decision
}

// Warnings returns non-fatal warnings accumulated during the run.
func (s *Session) Warnings() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// Err returns the terminal error for FAILED sessions.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

func (s *Session) setStage(stage Stage) {
	s.mu.Lock()
	s.stage = stage
	s.mu.Unlock()
}

func (s *Session) setStatus(status models.SessionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Session) setReports(reports []models.AgentReport) {
	s.mu.Lock()
	s.reports = reports
	s.mu.Unlock()
}

func (s *Session) setResearchDebate(t *models.DebateTranscript) {
	s.mu.Lock()
	s.researchDebate = t
	s.mu.Unlock()
}

func (s *Session) setRiskDebate(t *models.DebateTranscript) {
	s.mu.Lock()
	s.riskDebate = t
	s.mu.Unlock()
}

func (s *Session) setProposal(p *models.Proposal) {
	s.mu.Lock()
	s.proposal = p
	s.mu.Unlock()
}

func (s *Session) setDecision(d *models.FinalDecision) {
	s.mu.Lock()
	s.decision = d
	s.mu.Unlock()
}

func (s *Session) addWarning(w string) {
	s.mu.Lock()
	s.warnings = append(s.warnings, w)
	s.mu.Unlock()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.status = models.SessionFailed
	s.err = err
	s.mu.Unlock()
}

// Registry is the only process-wide shared structure: session_id to Session.
// Mutual exclusion covers insert, remove, and lookup; per-session mutation
// is owned by each session's orchestrating goroutine.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add inserts a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

// Get returns the session with the given ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove deletes a session from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// List returns all registered sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
