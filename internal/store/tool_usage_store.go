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

// ToolUsageStore persists tool invocation records for the tool_usage
// canonical tool (spec §4.8, §9): every dispatch writes one row here,
// and the tool_usage operations (stats, recent, by_tool) read it back.
type ToolUsageStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// ToolInvocation is a single recorded tool call.
type ToolInvocation struct {
	ID             int64
	CallID         string
	SessionTag     string
	ToolName       string
	Owner          string
	Args           string // JSON
	Result         string
	Error          string
	Success        bool
	DurationMs     int64
	ResultSize     int
	CreatedAt      time.Time
	ReferenceCount int
}

// ToolUsageStats summarises invocation history.
type ToolUsageStats struct {
	TotalCalls    int
	SuccessCount  int
	FailureCount  int
	TotalSizeBytes int64
	ByTool        map[string]int
}

// NewToolUsageStore opens (or creates) the tool-usage database at path.
func NewToolUsageStore(dbPath string) (*ToolUsageStore, error) {
	logging.StoreDebug("initializing ToolUsageStore at %s", dbPath)
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	s := &ToolUsageStore{db: db, dbPath: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *ToolUsageStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tool_invocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		call_id TEXT UNIQUE NOT NULL,
		session_tag TEXT NOT NULL,
		tool_name TEXT NOT NULL,
		owner TEXT NOT NULL,
		args TEXT,
		result TEXT NOT NULL,
		error TEXT,
		success INTEGER NOT NULL DEFAULT 1,
		duration_ms INTEGER NOT NULL,
		result_size INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		reference_count INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_tool_invocations_session ON tool_invocations(session_tag);
	CREATE INDEX IF NOT EXISTS idx_tool_invocations_tool ON tool_invocations(tool_name);
	CREATE INDEX IF NOT EXISTS idx_tool_invocations_created ON tool_invocations(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record persists one tool invocation.
func (s *ToolUsageStore) Record(inv ToolInvocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	successInt := 0
	if inv.Success {
		successInt = 1
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO tool_invocations
		(call_id, session_tag, tool_name, owner, args, result, error, success, duration_ms, result_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.CallID, inv.SessionTag, inv.ToolName, inv.Owner, inv.Args,
		inv.Result, inv.Error, successInt, inv.DurationMs, inv.ResultSize,
	)
	if err != nil {
		logging.Get(logging.CategoryTools).Error("failed to record tool invocation %s: %v", inv.CallID, err)
	}
	return err
}

// RecentByTool returns the N most recent invocations of toolName (empty
// toolName returns the most recent invocations across all tools).
func (s *ToolUsageStore) RecentByTool(toolName string, limit int) ([]ToolInvocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows *sql.Rows
	var err error
	if toolName == "" {
		rows, err = s.db.Query(`SELECT `+invocationColumns+` FROM tool_invocations ORDER BY created_at DESC LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(`SELECT `+invocationColumns+` FROM tool_invocations WHERE tool_name = ? ORDER BY created_at DESC LIMIT ?`, toolName, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInvocations(rows)
}

// IncrementReference marks a prior invocation's result as consulted
// again, informing the tool_usage tool's popularity signal.
func (s *ToolUsageStore) IncrementReference(callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE tool_invocations SET reference_count = reference_count + 1 WHERE call_id = ?`, callID)
	return err
}

// Stats summarises invocation history for the tool_usage tool's "stats" operation.
func (s *ToolUsageStore) Stats() (*ToolUsageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &ToolUsageStats{ByTool: make(map[string]int)}
	row := s.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(result_size), 0),
		       SUM(CASE WHEN success = 1 THEN 1 ELSE 0 END),
		       SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END)
		FROM tool_invocations`)
	if err := row.Scan(&stats.TotalCalls, &stats.TotalSizeBytes, &stats.SuccessCount, &stats.FailureCount); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(`SELECT tool_name, COUNT(*) FROM tool_invocations GROUP BY tool_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var count int
		if err := rows.Scan(&name, &count); err == nil {
			stats.ByTool[name] = count
		}
	}
	return stats, nil
}

// Close closes the database connection.
func (s *ToolUsageStore) Close() error {
	return s.db.Close()
}

const invocationColumns = `id, call_id, session_tag, tool_name, owner, args, result, error,
	success, duration_ms, result_size, created_at, reference_count`

func scanInvocations(rows *sql.Rows) ([]ToolInvocation, error) {
	var out []ToolInvocation
	for rows.Next() {
		var inv ToolInvocation
		var successInt int
		err := rows.Scan(&inv.ID, &inv.CallID, &inv.SessionTag, &inv.ToolName, &inv.Owner,
			&inv.Args, &inv.Result, &inv.Error, &successInt, &inv.DurationMs, &inv.ResultSize,
			&inv.CreatedAt, &inv.ReferenceCount)
		if err != nil {
			continue
		}
		inv.Success = successInt == 1
		out = append(out, inv)
	}
	return out, nil
}
