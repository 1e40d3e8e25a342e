package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"council-trader/internal/config"
	"council-trader/internal/council"
	"council-trader/internal/llm"
	"council-trader/internal/models"
	"council-trader/internal/stream"
	"council-trader/internal/tools"
)

func testServer(t *testing.T) (*Server, *council.Registry) {
	t.Helper()
	cfg := config.CouncilConfig{
		Analysts:        []string{"market", "news"},
		MaxDebateRounds: 1,
		TokenThreshold:  50000,
		TimeoutPerCall:  5 * time.Second,
		PortfolioValue:  100000,
		Model:           "test",
	}
	registry := council.NewRegistry()
	orchestrator := council.NewOrchestrator(cfg, llm.NewNoopReasoner(), registry, zerolog.Nop())
	toolReg := tools.NewRegistry(registry, zerolog.Nop())
	return New(orchestrator, registry, toolReg, nil, zerolog.Nop()), registry
}

func parseSSE(t *testing.T, body string) []stream.Event {
	t.Helper()
	var events []stream.Event
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		payload, ok := strings.CutPrefix(block, "data: ")
		if !ok {
			t.Fatalf("malformed SSE block: %q", block)
		}
		var ev stream.Event
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			t.Fatalf("decoding event %q: %v", payload, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestAnalyzeStreamsFullSession(t *testing.T) {
	srv, registry := testServer(t)
	handler := srv.Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/analyze",
		strings.NewReader(`{"ticker": "AAPL", "as_of": "2026-08-01"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) < 3 {
		t.Fatalf("too few events: %d", len(events))
	}
	if events[0].Type != stream.EventConnected {
		t.Errorf("first event = %s", events[0].Type)
	}
	last := events[len(events)-1]
	if last.Type != stream.EventDone {
		t.Fatalf("last event = %s", last.Type)
	}
	if last.ConversationID == "" {
		t.Error("done event has no conversation id")
	}

	session, ok := registry.Get(last.ConversationID)
	if !ok {
		t.Fatal("streamed session not registered")
	}
	if session.Status() != models.SessionCompleted {
		t.Errorf("session status = %s", session.Status())
	}
}

func TestAnalyzeRejectsBadRequests(t *testing.T) {
	srv, _ := testServer(t)
	handler := srv.Handler()

	cases := []string{
		`not json`,
		`{"ticker": ""}`,
		`{"ticker": "AAPL", "as_of": "01/08/2026"}`,
	}
	for _, body := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestSessionEndpoints(t *testing.T) {
	srv, registry := testServer(t)
	handler := srv.Handler()

	session := council.NewSession(models.Subject{Ticker: "NVDA", AsOf: time.Now()})
	registry.Add(session)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), session.ID) {
		t.Error("list response missing the session")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+session.ID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/does-not-exist", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing session status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/sessions/"+session.ID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("cancel status = %d", rec.Code)
	}
	if !session.Cancelled() {
		t.Error("delete did not cancel the session")
	}
}

func TestToolEndpoints(t *testing.T) {
	srv, _ := testServer(t)
	handler := srv.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tools", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("tools list status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "get_transcript") {
		t.Error("tools list missing get_transcript")
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tools/list_sessions", strings.NewReader(`{}`)))
	if rec.Code != http.StatusOK {
		t.Errorf("invoke status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tools/unknown_tool", strings.NewReader(`{}`)))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown tool status = %d, want 404", rec.Code)
	}

	// Missing required argument is a client error, not a missing resource.
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tools/get_session", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing argument status = %d, want 400", rec.Code)
	}
}
