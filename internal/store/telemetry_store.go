package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mimogate/internal/logging"

	_ "github.com/mattn/go-sqlite3"
)

// TelemetryStore persists per-query outcomes for the feedback loop's
// sliding-window success rate and trend calculation (spec §4.9).
type TelemetryStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// QueryOutcome is one /ask or dispatch call's recorded result.
type QueryOutcome struct {
	QueryID    string
	QueryType  string
	Success    bool
	LatencyMs  int64
	Confidence float64
	CreatedAt  time.Time
}

// NewTelemetryStore opens (or creates) the telemetry database at path.
func NewTelemetryStore(dbPath string) (*TelemetryStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	s := &TelemetryStore{db: db, dbPath: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *TelemetryStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS query_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		query_type TEXT NOT NULL,
		success INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		confidence REAL NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_query_outcomes_created ON query_outcomes(created_at);
	CREATE INDEX IF NOT EXISTS idx_query_outcomes_type ON query_outcomes(query_type);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends one query outcome.
func (s *TelemetryStore) Record(o QueryOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	successInt := 0
	if o.Success {
		successInt = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO query_outcomes (query_id, query_type, success, latency_ms, confidence)
		VALUES (?, ?, ?, ?, ?)`, o.QueryID, o.QueryType, successInt, o.LatencyMs, o.Confidence)
	if err != nil {
		logging.Get(logging.CategoryFeedback).Error("failed to record query outcome %s: %v", o.QueryID, err)
	}
	return err
}

// Window returns the most recent n outcomes, oldest first, for the
// sliding-window success-rate/trend calculation.
func (s *TelemetryStore) Window(n int) ([]QueryOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`
		SELECT query_id, query_type, success, latency_ms, confidence, created_at
		FROM query_outcomes ORDER BY created_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueryOutcome
	for rows.Next() {
		var o QueryOutcome
		var successInt int
		if err := rows.Scan(&o.QueryID, &o.QueryType, &successInt, &o.LatencyMs, &o.Confidence, &o.CreatedAt); err != nil {
			continue
		}
		o.Success = successInt == 1
		out = append(out, o)
	}
	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close closes the database connection.
func (s *TelemetryStore) Close() error {
	return s.db.Close()
}
