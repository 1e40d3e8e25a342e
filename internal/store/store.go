// Package store persists completed analyses. The engine itself never
// touches storage; the CLI and server save a record once a session
// reaches a decision.
package store

import (
	"context"
	"time"

	"council-trader/internal/models"
)

// AnalysisRecord is the durable form of one finished session.
type AnalysisRecord struct {
	ID           string               `json:"id"`
	SessionID    string               `json:"session_id"`
	Ticker       string               `json:"ticker"`
	AsOf         time.Time            `json:"as_of"`
	Action       models.Action        `json:"action"`
	Confidence   float64              `json:"confidence"`
	Entry        float64              `json:"entry,omitempty"`
	Target       float64              `json:"target,omitempty"`
	Stop         float64              `json:"stop,omitempty"`
	Rationale    string               `json:"rationale"`
	CoverageGaps []models.Role        `json:"coverage_gaps,omitempty"`
	Warnings     []string             `json:"warnings,omitempty"`
	Reports      []models.AgentReport `json:"reports,omitempty"`
	Embedding    []float64            `json:"embedding,omitempty"`
	TokensTotal  int                  `json:"tokens_total"`
	CreatedAt    time.Time            `json:"created_at"`
}

// RecordFromDecision builds a record from a decision and its session
// context. Embedding stays nil; generation lives outside this program.
func RecordFromDecision(d *models.FinalDecision, reports []models.AgentReport, warnings []string, tokensTotal int) *AnalysisRecord {
	return &AnalysisRecord{
		SessionID:    d.SessionID,
		Ticker:       d.Ticker,
		AsOf:         d.AsOf,
		Action:       d.Action,
		Confidence:   d.Confidence,
		Entry:        d.Entry,
		Target:       d.Target,
		Stop:         d.Stop,
		Rationale:    d.Rationale,
		CoverageGaps: d.CoverageGaps,
		Warnings:     warnings,
		Reports:      reports,
		TokensTotal:  tokensTotal,
		CreatedAt:    d.CreatedAt,
	}
}

// Repository is the storage surface the rest of the program depends on.
type Repository interface {
	SaveAnalysis(ctx context.Context, rec *AnalysisRecord) error
	LoadRecent(ctx context.Context, limit int) ([]*AnalysisRecord, error)
	LoadByTicker(ctx context.Context, ticker string, limit int) ([]*AnalysisRecord, error)
	Close() error
}
