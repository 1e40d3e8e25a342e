package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"council-trader/internal/models"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "council.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func record(ticker string, action models.Action, createdAt time.Time) *AnalysisRecord {
	return &AnalysisRecord{
		SessionID:    "s-" + ticker,
		Ticker:       ticker,
		AsOf:         createdAt,
		Action:       action,
		Confidence:   65,
		Entry:        100.5,
		Target:       120,
		Stop:         92,
		Rationale:    "test rationale",
		CoverageGaps: []models.Role{models.RoleNews},
		Warnings:     []string{"context overflow"},
		Reports: []models.AgentReport{
			{Role: models.RoleMarket, Status: models.ReportOK, Content: "neutral tape", TokenCount: 12},
		},
		Embedding:   []float64{0.25, -0.5},
		TokensTotal: 4200,
		CreatedAt:   createdAt,
	}
}

func TestSaveAndLoadRecent(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i, ticker := range []string{"AAPL", "NVDA", "TSLA"} {
		rec := record(ticker, models.ActionBuy, base.Add(time.Duration(i)*time.Hour))
		if err := repo.SaveAnalysis(ctx, rec); err != nil {
			t.Fatalf("SaveAnalysis(%s): %v", ticker, err)
		}
		if rec.ID == "" {
			t.Error("save did not assign an id")
		}
	}

	recent, err := repo.LoadRecent(ctx, 2)
	if err != nil {
		t.Fatalf("LoadRecent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d records, want 2", len(recent))
	}
	if recent[0].Ticker != "TSLA" {
		t.Errorf("newest first expected, got %s", recent[0].Ticker)
	}
}

func TestRoundTripPreservesFields(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	in := record("AMD", models.ActionSell, time.Date(2026, 8, 2, 9, 30, 0, 0, time.UTC))
	if err := repo.SaveAnalysis(ctx, in); err != nil {
		t.Fatalf("SaveAnalysis: %v", err)
	}

	rows, err := repo.LoadByTicker(ctx, "AMD", 10)
	if err != nil {
		t.Fatalf("LoadByTicker: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows", len(rows))
	}
	out := rows[0]
	if out.Action != models.ActionSell || out.Confidence != 65 {
		t.Errorf("action/confidence misread: %+v", out)
	}
	if out.Entry != 100.5 || out.Target != 120 || out.Stop != 92 {
		t.Errorf("prices misread: %+v", out)
	}
	if len(out.CoverageGaps) != 1 || out.CoverageGaps[0] != models.RoleNews {
		t.Errorf("coverage gaps misread: %v", out.CoverageGaps)
	}
	if len(out.Warnings) != 1 || out.Warnings[0] != "context overflow" {
		t.Errorf("warnings misread: %v", out.Warnings)
	}
	if out.TokensTotal != 4200 {
		t.Errorf("tokens misread: %d", out.TokensTotal)
	}
	if len(out.Reports) != 1 || out.Reports[0].Role != models.RoleMarket || out.Reports[0].Content != "neutral tape" {
		t.Errorf("reports misread: %+v", out.Reports)
	}
	if len(out.Embedding) != 2 || out.Embedding[0] != 0.25 {
		t.Errorf("embedding misread: %v", out.Embedding)
	}
}

func TestLoadByTickerFilters(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()
	now := time.Now()

	repo.SaveAnalysis(ctx, record("AAPL", models.ActionBuy, now))
	repo.SaveAnalysis(ctx, record("NVDA", models.ActionHold, now))

	rows, err := repo.LoadByTicker(ctx, "NVDA", 10)
	if err != nil {
		t.Fatalf("LoadByTicker: %v", err)
	}
	if len(rows) != 1 || rows[0].Ticker != "NVDA" {
		t.Errorf("filter broke: %v", rows)
	}
}

func TestRecordFromDecision(t *testing.T) {
	d := &models.FinalDecision{
		SessionID:    "s-9",
		Ticker:       "MSFT",
		AsOf:         time.Now(),
		Action:       models.ActionHold,
		Confidence:   50,
		Rationale:    "range-bound",
		CoverageGaps: []models.Role{models.RoleSocial},
		CreatedAt:    time.Now(),
	}
	reports := []models.AgentReport{{Role: models.RoleFundamentals, Status: models.ReportOK, Content: "fair value 410"}}
	rec := RecordFromDecision(d, reports, []string{"w"}, 999)
	if rec.SessionID != "s-9" || rec.Action != models.ActionHold || rec.TokensTotal != 999 {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Warnings) != 1 || len(rec.CoverageGaps) != 1 || len(rec.Reports) != 1 {
		t.Errorf("slices not carried: %+v", rec)
	}
	if rec.Embedding != nil {
		t.Errorf("embedding should start nil, got %v", rec.Embedding)
	}
}
