package coordinator

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/refitlab/refit/internal/events"
	"github.com/refitlab/refit/internal/log"
)

// Runner fans one request out across files. Files run in parallel up to
// the configured limit; each file's own workers stay strictly sequential
// inside its coordinator invocation.
type Runner struct {
	coord       *Coordinator
	hub         *events.Hub
	parallelism int
	now         func() time.Time
}

func NewRunner(coord *Coordinator, parallelism int) *Runner {
	if parallelism <= 0 {
		parallelism = 4
	}
	return &Runner{coord: coord, parallelism: parallelism, hub: coord.hub, now: time.Now}
}

// Run executes the task against a file or directory target and returns the
// aggregated session report.
func (r *Runner) Run(ctx context.Context, target, task string, budget float64, apply bool) (*SessionReport, error) {
	paths, err := ExpandTarget(target)
	if err != nil {
		return nil, err
	}

	report := &SessionReport{
		SessionID: uuid.NewString(),
		Task:      task,
		Target:    target,
		DryRun:    !apply,
		StartedAt: r.now().UTC(),
	}
	r.publish(events.RunStarted, map[string]any{
		"session_id": report.SessionID, "task": task, "target": target,
		"files": len(paths), "dry_run": !apply,
	})

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, r.parallelism)
	)
	for _, path := range paths {
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				report.Files = append(report.Files, FileReport{
					Path: path, Task: task, DryRun: !apply, Error: "canceled before start",
				})
				mu.Unlock()
				return
			}

			log.WithFile(path).Debug("file dispatched", "task", task)
			r.publish(events.FileStarted, map[string]any{"path": path})
			fr := r.coord.RunFile(ctx, path, task, budget, apply)
			r.publish(events.FileCompleted, map[string]any{
				"path": path, "tier": string(fr.Tier), "halted": fr.Halted,
			})

			mu.Lock()
			report.Files = append(report.Files, fr)
			mu.Unlock()
		}(path)
	}
	wg.Wait()

	sort.Slice(report.Files, func(i, j int) bool {
		return report.Files[i].Path < report.Files[j].Path
	})
	report.CompletedAt = r.now().UTC()
	report.computeTotals()

	r.publish(events.RunCompleted, map[string]any{
		"session_id": report.SessionID,
		"files":      report.Totals.Files,
		"failed":     report.Totals.Failed,
		"total_cost": report.Totals.TotalCost,
	})
	log.WithComponent("runner").Info("run completed",
		"session_id", report.SessionID, "task", task,
		"files", report.Totals.Files, "workers", report.Totals.Workers,
		"failed", report.Totals.Failed, "total_cost", report.Totals.TotalCost,
		"dry_run", !apply)
	return report, nil
}

func (r *Runner) publish(eventType string, data any) {
	if r.hub != nil {
		r.hub.Publish(eventType, data)
	}
}

// ExpandTarget resolves a file or directory target into a sorted list of
// candidate file paths. Hidden directories, the state directory, and
// backup files are skipped.
func ExpandTarget(target string) ([]string, error) {
	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stat target: %w", err)
	}
	if !info.IsDir() {
		return []string{target}, nil
	}

	var paths []string
	err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != target && (strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || strings.Contains(name, "-backup") {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk target: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no candidate files under %s", target)
	}
	sort.Strings(paths)
	return paths, nil
}
