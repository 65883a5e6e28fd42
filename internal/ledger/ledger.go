// Package ledger persists the append-only history of resource consumption
// records that the governor learns pacing from.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/refitlab/refit/internal/log"
)

// Record is one consumed operation. Records are appended, never mutated
// or deleted; they only age out of the in-memory window.
type Record struct {
	Timestamp time.Time     `json:"timestamp"`
	Operation string        `json:"operation_type"`
	Path      string        `json:"path"`
	Cost      float64       `json:"cost"`
	Duration  time.Duration `json:"duration"`
	Provider  string        `json:"provider"`
	// SizeLines carries optional size metadata for per-unit extrapolation.
	SizeLines int `json:"size_lines,omitempty"`
}

// SessionStats summarizes the ledger for reporting.
type SessionStats struct {
	TotalRecords    int                `json:"total_records"`
	TotalCost       float64            `json:"total_cost"`
	CostByOperation map[string]float64 `json:"cost_by_operation"`
	CostByProvider  map[string]float64 `json:"cost_by_provider"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// ledgerFile is the persisted JSON schema.
type ledgerFile struct {
	Records      []Record     `json:"records"`
	SessionStats SessionStats `json:"session_stats"`
}

// Ledger owns the consumption history. It is process-wide shared state;
// all access is serialized behind its mutex.
type Ledger struct {
	mu           sync.Mutex
	path         string
	memoryWindow int
	records      []Record // bounded recent window, oldest first
	stats        SessionStats
	logger       *slog.Logger
}

// Open loads the ledger at path, creating parent directories as needed.
// A missing file yields an empty ledger. The in-memory window holds at
// most memoryWindow recent records; the file retains full history.
func Open(path string, memoryWindow int) (*Ledger, error) {
	if path == "" {
		return nil, fmt.Errorf("ledger path is empty")
	}
	if memoryWindow <= 0 {
		memoryWindow = 200
	}

	l := &Ledger{
		path:         path,
		memoryWindow: memoryWindow,
		logger:       log.WithComponent("ledger"),
		stats: SessionStats{
			CostByOperation: make(map[string]float64),
			CostByProvider:  make(map[string]float64),
		},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) || errors.Is(err, syscall.ENOTDIR) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	var file ledgerFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}

	l.stats = file.SessionStats
	if l.stats.CostByOperation == nil {
		l.stats.CostByOperation = make(map[string]float64)
	}
	if l.stats.CostByProvider == nil {
		l.stats.CostByProvider = make(map[string]float64)
	}

	// Only the recent window stays in memory.
	records := file.Records
	if len(records) > memoryWindow {
		records = records[len(records)-memoryWindow:]
	}
	l.records = append(l.records, records...)

	return l, nil
}

// Append adds a record and persists the ledger. The in-memory copy is
// always updated; a persistence failure is returned so the caller can log
// it, but pacing for the current process stays correct either way.
func (l *Ledger) Append(rec Record) error {
	if rec.Cost < 0 {
		return fmt.Errorf("record cost must not be negative: %f", rec.Cost)
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.records = append(l.records, rec)
	if len(l.records) > l.memoryWindow {
		l.records = l.records[len(l.records)-l.memoryWindow:]
	}

	l.stats.TotalRecords++
	l.stats.TotalCost += rec.Cost
	l.stats.CostByOperation[rec.Operation] += rec.Cost
	l.stats.CostByProvider[rec.Provider] += rec.Cost
	l.stats.UpdatedAt = rec.Timestamp

	return l.persistLocked(rec)
}

// persistLocked appends rec to the file's full history and rewrites it
// atomically (temp file + rename).
func (l *Ledger) persistLocked(rec Record) error {
	var file ledgerFile
	if data, err := os.ReadFile(l.path); err == nil {
		// A corrupt file is replaced rather than blocking appends.
		if err := json.Unmarshal(data, &file); err != nil {
			l.logger.Warn("ledger file unreadable, rewriting from memory", "path", l.path, "error", err)
			file = ledgerFile{Records: append([]Record(nil), l.records...)}
		}
		file.Records = append(file.Records, rec)
	} else {
		file.Records = append([]Record(nil), l.records...)
	}
	file.SessionStats = l.stats

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}

// Recent returns up to n most recent records for an operation type,
// oldest first.
func (l *Ledger) Recent(operation string, n int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Record
	for i := len(l.records) - 1; i >= 0 && len(out) < n; i-- {
		if l.records[i].Operation == operation {
			out = append(out, l.records[i])
		}
	}
	reverse(out)
	return out
}

// RecentByProvider returns up to n most recent records for a provider,
// oldest first.
func (l *Ledger) RecentByProvider(provider string, n int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Record
	for i := len(l.records) - 1; i >= 0 && len(out) < n; i-- {
		if l.records[i].Provider == provider {
			out = append(out, l.records[i])
		}
	}
	reverse(out)
	return out
}

// WindowCost sums the cost of a provider's records younger than window and
// returns the timestamp of the oldest such record. ok is false when the
// window is empty.
func (l *Ledger) WindowCost(provider string, window time.Duration, now time.Time) (total float64, oldest time.Time, ok bool) {
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range l.records {
		if rec.Provider != provider || !rec.Timestamp.After(cutoff) {
			continue
		}
		total += rec.Cost
		if !ok || rec.Timestamp.Before(oldest) {
			oldest = rec.Timestamp
			ok = true
		}
	}
	return total, oldest, ok
}

// Stats returns a copy of the session statistics.
func (l *Ledger) Stats() SessionStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := l.stats
	stats.CostByOperation = copyMap(l.stats.CostByOperation)
	stats.CostByProvider = copyMap(l.stats.CostByProvider)
	return stats
}

// Prune rewrites the persisted file keeping only the newest keep records.
// In-memory state is untouched; pruning is a maintenance operation.
func (l *Ledger) Prune(keep int) (removed int, err error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var file ledgerFile
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read ledger: %w", err)
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return 0, fmt.Errorf("parse ledger %s: %w", l.path, err)
	}

	if len(file.Records) <= keep {
		return 0, nil
	}
	removed = len(file.Records) - keep
	file.Records = file.Records[len(file.Records)-keep:]
	file.SessionStats = l.stats

	out, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal ledger: %w", err)
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return 0, fmt.Errorf("write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return 0, fmt.Errorf("replace ledger: %w", err)
	}
	return removed, nil
}

// Path returns the persisted ledger location.
func (l *Ledger) Path() string { return l.path }

func reverse(records []Record) {
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
