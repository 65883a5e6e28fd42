package coordinator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/refitlab/refit/internal/classify"
	"github.com/refitlab/refit/internal/selector"
)

// ExecutionResult is the outcome of one worker invocation on one file.
type ExecutionResult struct {
	Worker          string            `json:"worker"`
	Priority        selector.Priority `json:"priority"`
	Success         bool              `json:"success"`
	Skipped         bool              `json:"skipped,omitempty"`
	DurationSeconds float64           `json:"duration_seconds"`
	Cost            float64           `json:"cost"`
	DelaySeconds    float64           `json:"delay_seconds,omitempty"`
	Warnings        []string          `json:"warnings,omitempty"`
	Errors          []string          `json:"errors,omitempty"`
}

// FileReport aggregates one file's plan execution.
type FileReport struct {
	Path      string            `json:"path"`
	Tier      classify.Tier     `json:"tier"`
	Score     float64           `json:"score"`
	Tags      []string          `json:"tags,omitempty"`
	Task      string            `json:"task"`
	DryRun    bool              `json:"dry_run"`
	Results   []ExecutionResult `json:"results"`
	TotalCost float64           `json:"total_cost"`
	// Halted is set when a critical-priority failure stopped the
	// remaining plan for this file.
	Halted bool   `json:"halted,omitempty"`
	Error  string `json:"error,omitempty"`
}

// SessionTotals summarize a whole run.
type SessionTotals struct {
	Files     int     `json:"files"`
	Workers   int     `json:"workers"`
	Succeeded int     `json:"succeeded"`
	Failed    int     `json:"failed"`
	TotalCost float64 `json:"total_cost"`
}

// SessionReport is the caller-facing result of one run. Read-only once
// returned.
type SessionReport struct {
	SessionID   string        `json:"session_id"`
	Task        string        `json:"task"`
	Target      string        `json:"target"`
	DryRun      bool          `json:"dry_run"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Files       []FileReport  `json:"files"`
	Totals      SessionTotals `json:"totals"`
}

// computeTotals fills Totals from Files.
func (r *SessionReport) computeTotals() {
	t := SessionTotals{Files: len(r.Files)}
	for _, f := range r.Files {
		for _, res := range f.Results {
			if res.Skipped {
				continue
			}
			t.Workers++
			if res.Success {
				t.Succeeded++
			} else {
				t.Failed++
			}
			t.TotalCost += res.Cost
		}
	}
	r.Totals = t
}

// WriteJSON writes the report to path, creating parent directories.
func (r *SessionReport) WriteJSON(path string) error {
	if path == "" {
		return fmt.Errorf("report path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// SessionStore persists finished session reports to the session_log table.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

// Save inserts one finished report.
func (s *SessionStore) Save(ctx context.Context, r *SessionReport) error {
	if r == nil {
		return fmt.Errorf("save session: nil report")
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal session report: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO session_log (id, task, target, dry_run, files, failures, total_cost, report, started_at, completed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Task, r.Target, boolToInt(r.DryRun),
		r.Totals.Files, r.Totals.Failed, r.Totals.TotalCost,
		string(body),
		r.StartedAt.UTC().Format(time.RFC3339Nano),
		r.CompletedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert session_log: %w", err)
	}
	return nil
}

// SessionSummary is one row of the session history listing.
type SessionSummary struct {
	ID          string
	Task        string
	Target      string
	DryRun      bool
	Files       int
	Failures    int
	TotalCost   float64
	StartedAt   time.Time
	CompletedAt time.Time
}

// Recent returns up to limit sessions, newest first.
func (s *SessionStore) Recent(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, task, target, dry_run, files, failures, total_cost, started_at, completed_at
FROM session_log ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query session_log: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			sum              SessionSummary
			dryRun           int
			started, stopped string
		)
		if err := rows.Scan(&sum.ID, &sum.Task, &sum.Target, &dryRun,
			&sum.Files, &sum.Failures, &sum.TotalCost, &started, &stopped); err != nil {
			return nil, fmt.Errorf("scan session_log: %w", err)
		}
		sum.DryRun = dryRun != 0
		sum.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		sum.CompletedAt, _ = time.Parse(time.RFC3339Nano, stopped)
		out = append(out, sum)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
