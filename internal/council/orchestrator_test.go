package council

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"council-trader/internal/config"
	apperrors "council-trader/internal/errors"
	"council-trader/internal/models"
	"council-trader/internal/stream"
)

func testCouncilConfig() config.CouncilConfig {
	return config.CouncilConfig{
		Analysts:            []string{"market", "news"},
		MaxDebateRounds:     1,
		TokenThreshold:      50000,
		TimeoutPerCall:      time.Second,
		EnableSummarization: false,
		PortfolioValue:      100000,
		Model:               "test",
	}
}

func runOrchestrator(t *testing.T, ctx context.Context, reasoner *scriptReasoner, cfg config.CouncilConfig) (*Session, error, []stream.Event) {
	t.Helper()
	registry := NewRegistry()
	o := NewOrchestrator(cfg, reasoner, registry, zerolog.Nop())
	reporter := stream.NewReporter()
	session, err := o.Run(ctx, testSubject(), reporter)
	var events []stream.Event
	for ev := range reporter.Events() {
		events = append(events, ev)
	}
	return session, err, events
}

func TestOrchestratorCompletesSession(t *testing.T) {
	reasoner := newScriptReasoner()
	session, err, events := runOrchestrator(t, context.Background(), reasoner, testCouncilConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if session.Status() != models.SessionCompleted {
		t.Errorf("status = %s, want COMPLETED", session.Status())
	}
	if session.Stage() != StageDone {
		t.Errorf("stage = %s, want DONE", session.Stage())
	}

	if len(events) < 3 {
		t.Fatalf("too few events: %d", len(events))
	}
	if events[0].Type != stream.EventConnected {
		t.Errorf("first event = %s, want connected", events[0].Type)
	}
	last := events[len(events)-1]
	if last.Type != stream.EventDone {
		t.Fatalf("last event = %s, want done", last.Type)
	}
	if last.ConversationID != session.ID {
		t.Error("done event carries a different session id")
	}
	if last.Metadata["action"] != "HOLD" {
		t.Errorf("metadata action = %v, want HOLD", last.Metadata["action"])
	}

	decision := session.Decision()
	if decision == nil {
		t.Fatal("completed session has no decision")
	}
	if decision.Action != models.ActionHold {
		t.Errorf("action = %s, want HOLD from the trader proposal", decision.Action)
	}
	if decision.Rationale != "scripted consensus" {
		t.Errorf("rationale = %q, want the risk synthesis", decision.Rationale)
	}
	if session.Ledger.Total() == 0 {
		t.Error("ledger recorded no tokens")
	}
	if session.ResearchDebate() == nil || session.RiskDebate() == nil {
		t.Error("transcripts missing on completed session")
	}
}

func TestOrchestratorJudgeOverridesProposal(t *testing.T) {
	reasoner := newScriptReasoner()
	reasoner.responses["trader"] = "ACTION: BUY\nENTRY: 180\nTARGET: 195\nSTOP: 174\nSIZE_PERCENT: 10\nCONFIDENCE: 70\nREASONING: full size long"
	reasoner.responses["risk_judge"] = "CONVERGED: YES\nSYNTHESIS: too much event risk, stand aside\nACTION: WAIT\nCONFIDENCE: 40"

	session, err, _ := runOrchestrator(t, context.Background(), reasoner, testCouncilConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	decision := session.Decision()
	if decision.Action != models.ActionWait {
		t.Errorf("action = %s, want the judge's WAIT", decision.Action)
	}
	if decision.Confidence != 40 {
		t.Errorf("confidence = %f, want 40", decision.Confidence)
	}
	if decision.Entry != 180 {
		t.Errorf("entry = %f, judge silence should keep the proposal's 180", decision.Entry)
	}
}

func TestOrchestratorNoCoverageFails(t *testing.T) {
	reasoner := newScriptReasoner()
	reasoner.errors["market"] = errors.New("provider down")
	reasoner.errors["news"] = errors.New("provider down")

	session, err, events := runOrchestrator(t, context.Background(), reasoner, testCouncilConfig())
	if !apperrors.Is(err, apperrors.ErrNoCoverage) {
		t.Fatalf("expected no coverage, got %v", err)
	}
	if session.Status() != models.SessionFailed {
		t.Errorf("status = %s, want FAILED", session.Status())
	}
	last := events[len(events)-1]
	if last.Type != stream.EventError {
		t.Errorf("last event = %s, want error", last.Type)
	}
	var stageErr *apperrors.StageError
	if !apperrors.As(err, &stageErr) {
		t.Error("failure not wrapped in a stage error")
	}
}

func TestOrchestratorTraderFailureFails(t *testing.T) {
	reasoner := newScriptReasoner()
	reasoner.errors["trader"] = errors.New("provider down")

	session, err, events := runOrchestrator(t, context.Background(), reasoner, testCouncilConfig())
	if !apperrors.Is(err, apperrors.ErrDecisionUnavailable) {
		t.Fatalf("expected decision unavailable, got %v", err)
	}
	if session.Status() != models.SessionFailed {
		t.Errorf("status = %s, want FAILED", session.Status())
	}
	if events[len(events)-1].Type != stream.EventError {
		t.Error("trader failure must end with a terminal error event")
	}
}

func TestOrchestratorDegradedResearchDebateCompletes(t *testing.T) {
	reasoner := newScriptReasoner()
	reasoner.errors["bull"] = errors.New("provider down")
	reasoner.errors["bear"] = errors.New("provider down")

	session, err, events := runOrchestrator(t, context.Background(), reasoner, testCouncilConfig())
	if err != nil {
		t.Fatalf("degraded debate should not fail the session: %v", err)
	}
	if session.Status() != models.SessionCompleted {
		t.Errorf("status = %s, want COMPLETED", session.Status())
	}
	if len(session.Warnings()) == 0 {
		t.Error("degraded debate must leave a warning")
	}
	if events[len(events)-1].Type != stream.EventDone {
		t.Error("degraded session must still end in done")
	}
	gaps := session.Decision().CoverageGaps
	found := map[models.Role]bool{}
	for _, g := range gaps {
		found[g] = true
	}
	if !found[models.RoleBull] || !found[models.RoleBear] {
		t.Errorf("coverage gaps = %v, want the failed debate sides", gaps)
	}
}

func TestOrchestratorCancellationBeforeStart(t *testing.T) {
	reasoner := newScriptReasoner()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session, err, events := runOrchestrator(t, ctx, reasoner, testCouncilConfig())
	if !apperrors.Is(err, apperrors.ErrSessionCancelled) {
		t.Fatalf("expected session cancelled, got %v", err)
	}
	if session.Status() != models.SessionCancelled {
		t.Errorf("status = %s, want CANCELLED", session.Status())
	}
	last := events[len(events)-1]
	if last.Type != stream.EventError {
		t.Errorf("last event = %s, want error", last.Type)
	}
	if reasoner.callCount("market") != 0 {
		t.Error("analysts dispatched after cancellation")
	}
}

// cancellingReasoner cancels every registered session on its first
// call, then defers to the underlying script.
type cancellingReasoner struct {
	*scriptReasoner
	registry *Registry
	once     sync.Once
}

func (c *cancellingReasoner) Invoke(ctx context.Context, role string, system, user string) (string, error) {
	c.once.Do(func() {
		for _, s := range c.registry.List() {
			s.Cancel()
		}
	})
	return c.scriptReasoner.Invoke(ctx, role, system, user)
}

func TestOrchestratorCancelDuringAnalystsEndsCancelled(t *testing.T) {
	script := newScriptReasoner()
	script.errors["market"] = errors.New("provider down")
	script.errors["news"] = errors.New("provider down")

	registry := NewRegistry()
	reasoner := &cancellingReasoner{scriptReasoner: script, registry: registry}
	o := NewOrchestrator(testCouncilConfig(), reasoner, registry, zerolog.Nop())
	reporter := stream.NewReporter()

	session, err := o.Run(context.Background(), testSubject(), reporter)
	if !apperrors.Is(err, apperrors.ErrSessionCancelled) {
		t.Fatalf("expected session cancelled, got %v", err)
	}
	if session.Status() != models.SessionCancelled {
		t.Errorf("status = %s, want CANCELLED over FAILED", session.Status())
	}
	var last stream.Event
	for ev := range reporter.Events() {
		last = ev
	}
	if last.Type != stream.EventError || last.Message != "analysis cancelled" {
		t.Errorf("terminal event = %s %q, want the cancellation error", last.Type, last.Message)
	}
}

func TestOrchestratorSessionCancelInterruptsRun(t *testing.T) {
	reasoner := newScriptReasoner()
	reasoner.delays["bull"] = 50 * time.Millisecond
	cfg := testCouncilConfig()
	cfg.MaxDebateRounds = 5

	registry := NewRegistry()
	o := NewOrchestrator(cfg, reasoner, registry, zerolog.Nop())
	reporter := stream.NewReporter()

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), testSubject(), reporter)
		done <- err
	}()

	// Cancel through the registry as soon as the session appears.
	deadline := time.After(2 * time.Second)
	for {
		sessions := registry.List()
		if len(sessions) > 0 {
			sessions[0].Cancel()
			break
		}
		select {
		case <-deadline:
			t.Fatal("session never registered")
		case <-time.After(time.Millisecond):
		}
	}

	err := <-done
	if !apperrors.Is(err, apperrors.ErrSessionCancelled) {
		t.Fatalf("expected session cancelled, got %v", err)
	}
	var last stream.Event
	for ev := range reporter.Events() {
		last = ev
	}
	if last.Type != stream.EventError {
		t.Errorf("last event = %s, want error", last.Type)
	}
	if got := registry.List()[0].Status(); got != models.SessionCancelled {
		t.Errorf("status = %s, want CANCELLED", got)
	}
}

func TestOrchestratorInvalidSubject(t *testing.T) {
	reasoner := newScriptReasoner()
	registry := NewRegistry()
	o := NewOrchestrator(testCouncilConfig(), reasoner, registry, zerolog.Nop())
	reporter := stream.NewReporter()

	_, err := o.Run(context.Background(), models.Subject{}, reporter)
	if err == nil {
		t.Fatal("empty subject accepted")
	}
	var last stream.Event
	for ev := range reporter.Events() {
		last = ev
	}
	if last.Type != stream.EventError {
		t.Errorf("last event = %s, want error", last.Type)
	}
	if len(registry.List()) != 0 {
		t.Error("invalid subject registered a session")
	}
}
