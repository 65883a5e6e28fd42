// Package coordinator drives one file through classify, select, and the
// per-worker gate/lock/invoke/validate/commit sequence. It is the only
// place where pacing, locking, and sequencing compose; it owns no state
// beyond the in-flight plan and report.
package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/refitlab/refit/internal/classify"
	"github.com/refitlab/refit/internal/events"
	"github.com/refitlab/refit/internal/filelock"
	"github.com/refitlab/refit/internal/log"
	"github.com/refitlab/refit/internal/selector"
	"github.com/refitlab/refit/internal/worker"
)

type Coordinator struct {
	registry *worker.Registry
	selector *selector.Selector
	governor Governor
	locks    LockManager
	hub      *events.Hub
	logger   *slog.Logger
	holder   string

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

type Option func(*Coordinator)

// WithHub attaches an event hub for progress publication.
func WithHub(h *events.Hub) Option {
	return func(c *Coordinator) { c.hub = h }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithSleep overrides the pacing sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) { c.sleep = sleep }
}

func New(registry *worker.Registry, sel *selector.Selector, gov Governor, locks LockManager, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: registry,
		selector: sel,
		governor: gov,
		locks:    locks,
		logger:   log.WithComponent("coordinator"),
		holder:   "refit-" + uuid.NewString()[:8],
		now:      time.Now,
		sleep:    sleepWithContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunFile executes one file's plan. Apply=false is a dry run: classification,
// selection, and cost/delay computation happen, but no mutating lock is
// taken, no backup written, and no worker invoked.
func (c *Coordinator) RunFile(ctx context.Context, path, task string, budget float64, apply bool) FileReport {
	report := FileReport{Path: path, Task: task, DryRun: !apply}

	cls, err := c.classifyShared(ctx, path)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	report.Tier = cls.Tier
	report.Score = cls.Score
	report.Tags = cls.Tags
	c.publish(events.FileClassified, map[string]any{
		"path": path, "tier": string(cls.Tier), "score": cls.Score, "tags": cls.Tags,
	})

	recs := c.selector.Recommend(cls, task, budget)
	plan := NewPlan(cls, task, recs)
	c.logger.Debug("plan built", "path", path, "workers", len(plan.Recommendations),
		"estimated_cost", plan.EstimatedCost)

	for i, rec := range plan.Recommendations {
		if ctx.Err() != nil {
			report.Error = fmt.Sprintf("canceled before %s", rec.Worker)
			report.Halted = true
			break
		}

		res := c.executeWorker(ctx, cls, rec, apply)
		report.Results = append(report.Results, res)
		report.TotalCost += res.Cost

		if !res.Success && !res.Skipped && rec.Priority == selector.PriorityCritical {
			c.logger.Warn("critical worker failed, halting file",
				"path", path, "worker", rec.Worker)
			for _, rest := range plan.Recommendations[i+1:] {
				report.Results = append(report.Results, ExecutionResult{
					Worker:   rest.Worker,
					Priority: rest.Priority,
					Skipped:  true,
					Errors:   []string{"halted: critical worker failed earlier in plan"},
				})
			}
			report.Halted = true
			break
		}
	}
	return report
}

// classifyShared reads and classifies the file under a shared lock.
func (c *Coordinator) classifyShared(ctx context.Context, path string) (classify.Classification, error) {
	h, err := c.locks.Acquire(ctx, path, c.holder, filelock.Shared, false)
	if err != nil {
		return classify.Classification{}, fmt.Errorf("acquire shared lock: %w", err)
	}
	defer h.Release()

	content, err := os.ReadFile(path)
	if err != nil {
		return classify.Classification{}, fmt.Errorf("read file: %w", err)
	}
	return classify.Classify(path, content), nil
}

// executeWorker runs the gate/lock/invoke/validate/commit sequence for one
// recommendation. Locks are released on every exit path; a mutation that
// does not commit is restored from its backup.
func (c *Coordinator) executeWorker(ctx context.Context, cls classify.Classification, rec selector.Recommendation, apply bool) ExecutionResult {
	res := ExecutionResult{Worker: rec.Worker, Priority: rec.Priority}

	wlog := log.WithWorker(rec.Worker)

	d, ok := c.registry.Get(rec.Worker)
	if !ok || !d.Enabled {
		res.Skipped = true
		res.Errors = append(res.Errors, fmt.Sprintf("worker %s unavailable", rec.Worker))
		wlog.Warn("skipping unavailable worker", "path", cls.Path)
		return res
	}

	var (
		estimate float64
		delay    time.Duration
	)
	if d.ProviderBound {
		estimate = c.governor.Estimate(rec.Worker, cls.Path, cls.Lines, d.Provider)
		delay = c.governor.Delay(estimate, rec.Worker, d.Provider)
	}

	if !apply {
		// Dry-run results carry only estimate-derived values. The pacing
		// delay depends on wall-clock window expiry, so recording it would
		// make two dry runs over unchanged input disagree.
		res.Success = true
		res.Cost = rec.EstimatedCost
		res.DurationSeconds = rec.EstimatedDuration
		res.Warnings = append(res.Warnings, "dry-run: not executed")
		return res
	}
	res.DelaySeconds = delay.Seconds()

	if delay > 0 {
		c.publish(events.GovernorPaced, map[string]any{
			"path": cls.Path, "worker": rec.Worker, "provider": d.Provider,
			"delay_seconds": delay.Seconds(),
		})
		if err := c.sleep(ctx, delay); err != nil {
			res.Errors = append(res.Errors, "canceled while pacing")
			return res
		}
	}

	kind := filelock.Shared
	if d.Mutating {
		kind = filelock.Exclusive
	}
	lockStart := c.now()
	h, err := c.locks.Acquire(ctx, cls.Path, c.holder, kind, d.Mutating)
	if wait := c.now().Sub(lockStart); wait > 50*time.Millisecond {
		c.publish(events.LockWaiting, map[string]any{
			"path": cls.Path, "worker": rec.Worker, "wait_seconds": wait.Seconds(),
		})
	}
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		c.recordModification(ctx, cls.Path, rec.Worker, "", false, err.Error())
		return res
	}
	committed := false
	defer func() {
		if d.Mutating && !committed {
			if rerr := h.Restore(); rerr != nil {
				wlog.Error("restore after failed mutation", "path", cls.Path, "error", rerr)
			} else {
				c.publish(events.BackupRestored, map[string]any{
					"path": cls.Path, "worker": rec.Worker, "backup": h.BackupPath(),
				})
			}
		}
		h.Release()
	}()

	content, err := os.ReadFile(cls.Path)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("read file: %v", err))
		c.recordModification(ctx, cls.Path, rec.Worker, h.BackupPath(), false, res.Errors[len(res.Errors)-1])
		return res
	}

	c.publish(events.WorkerStarted, map[string]any{"path": cls.Path, "worker": rec.Worker})
	start := c.now()
	resp, err := d.Worker.Invoke(ctx, worker.Request{
		Path:           cls.Path,
		Content:        content,
		Classification: cls,
		Config:         rec.Config,
	})
	duration := c.now().Sub(start)
	res.DurationSeconds = duration.Seconds()
	res.Warnings = append(res.Warnings, resp.Warnings...)
	res.Errors = append(res.Errors, resp.Errors...)

	switch {
	case err != nil:
		res.Errors = append(res.Errors, err.Error())
	case !resp.Success:
		if len(res.Errors) == 0 {
			res.Errors = append(res.Errors, "worker reported failure")
		}
	case d.Mutating:
		if verr := validateContent(resp.NewContent); verr != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("validation failed: %v", verr))
			break
		}
		if !bytes.Equal(resp.NewContent, content) {
			if werr := c.commit(cls.Path, resp.NewContent); werr != nil {
				res.Errors = append(res.Errors, werr.Error())
				break
			}
		}
		committed = true
		res.Success = true
	default:
		committed = true // nothing to roll back for read-only workers
		res.Success = true
	}

	actual := resp.ActualCost
	if actual <= 0 {
		actual = estimate
	}
	if actual <= 0 {
		actual = rec.EstimatedCost
	}
	res.Cost = actual

	provider := d.Provider
	if provider == "" {
		provider = "local"
	}
	c.governor.Record(rec.Worker, cls.Path, actual, duration, provider, cls.Lines)
	c.recordModification(ctx, cls.Path, rec.Worker, h.BackupPath(), res.Success, strings.Join(res.Errors, "; "))

	eventType := events.WorkerCompleted
	if !res.Success {
		eventType = events.WorkerFailed
	}
	c.publish(eventType, map[string]any{
		"path": cls.Path, "worker": rec.Worker, "success": res.Success,
		"cost": res.Cost, "duration_seconds": res.DurationSeconds,
	})
	return res
}

// commit writes new content over the original, preserving its mode.
func (c *Coordinator) commit(path string, content []byte) error {
	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, content, mode); err != nil {
		return fmt.Errorf("commit new content: %w", err)
	}
	return nil
}

func (c *Coordinator) recordModification(ctx context.Context, path, operation, backupPath string, success bool, errDetail string) {
	if err := c.locks.Record(ctx, path, c.holder, operation, backupPath, success, errDetail); err != nil {
		c.logger.Error("record modification", "path", path, "operation", operation, "error", err)
	}
}

func (c *Coordinator) publish(eventType string, data any) {
	if c.hub != nil {
		c.hub.Publish(eventType, data)
	}
}
