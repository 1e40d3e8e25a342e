package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"council-trader/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL,
	ticker        TEXT NOT NULL,
	as_of         TIMESTAMP NOT NULL,
	action        TEXT NOT NULL,
	confidence    REAL NOT NULL,
	entry         REAL,
	target        REAL,
	stop          REAL,
	rationale     TEXT NOT NULL,
	coverage_gaps TEXT,
	warnings      TEXT,
	reports       TEXT,
	embedding     TEXT,
	tokens_total  INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_analyses_ticker ON analyses(ticker, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at DESC);
`

// SQLiteRepository implements Repository on a local SQLite file in WAL
// mode.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) SaveAnalysis(ctx context.Context, rec *AnalysisRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	gaps, err := json.Marshal(rec.CoverageGaps)
	if err != nil {
		return fmt.Errorf("encoding coverage gaps: %w", err)
	}
	warnings, err := json.Marshal(rec.Warnings)
	if err != nil {
		return fmt.Errorf("encoding warnings: %w", err)
	}
	reports, err := json.Marshal(rec.Reports)
	if err != nil {
		return fmt.Errorf("encoding reports: %w", err)
	}
	embedding, err := json.Marshal(rec.Embedding)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO analyses
			(id, session_id, ticker, as_of, action, confidence, entry, target, stop,
			 rationale, coverage_gaps, warnings, reports, embedding, tokens_total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Ticker, rec.AsOf, string(rec.Action), rec.Confidence,
		rec.Entry, rec.Target, rec.Stop, rec.Rationale, string(gaps), string(warnings),
		string(reports), string(embedding), rec.TokensTotal, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving analysis: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) LoadRecent(ctx context.Context, limit int) ([]*AnalysisRecord, error) {
	return r.query(ctx, `
		SELECT id, session_id, ticker, as_of, action, confidence, entry, target, stop,
		       rationale, coverage_gaps, warnings, reports, embedding, tokens_total, created_at
		FROM analyses ORDER BY created_at DESC LIMIT ?`, limit)
}

func (r *SQLiteRepository) LoadByTicker(ctx context.Context, ticker string, limit int) ([]*AnalysisRecord, error) {
	return r.query(ctx, `
		SELECT id, session_id, ticker, as_of, action, confidence, entry, target, stop,
		       rationale, coverage_gaps, warnings, reports, embedding, tokens_total, created_at
		FROM analyses WHERE ticker = ? ORDER BY created_at DESC LIMIT ?`, ticker, limit)
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]*AnalysisRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("loading analyses: %w", err)
	}
	defer rows.Close()

	var out []*AnalysisRecord
	for rows.Next() {
		rec := &AnalysisRecord{}
		var action, gaps, warnings string
		var reports, embedding sql.NullString
		var entry, target, stop sql.NullFloat64
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Ticker, &rec.AsOf, &action,
			&rec.Confidence, &entry, &target, &stop, &rec.Rationale, &gaps, &warnings,
			&reports, &embedding, &rec.TokensTotal, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning analysis row: %w", err)
		}
		rec.Action = models.Action(action)
		rec.Entry = entry.Float64
		rec.Target = target.Float64
		rec.Stop = stop.Float64
		if gaps != "" {
			if err := json.Unmarshal([]byte(gaps), &rec.CoverageGaps); err != nil {
				return nil, fmt.Errorf("decoding coverage gaps: %w", err)
			}
		}
		if warnings != "" {
			if err := json.Unmarshal([]byte(warnings), &rec.Warnings); err != nil {
				return nil, fmt.Errorf("decoding warnings: %w", err)
			}
		}
		if reports.Valid && reports.String != "" {
			if err := json.Unmarshal([]byte(reports.String), &rec.Reports); err != nil {
				return nil, fmt.Errorf("decoding reports: %w", err)
			}
		}
		if embedding.Valid && embedding.String != "" {
			if err := json.Unmarshal([]byte(embedding.String), &rec.Embedding); err != nil {
				return nil, fmt.Errorf("decoding embedding: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
