// Package selector turns a file classification and a task into an ordered
// list of worker recommendations. Selection is pure rule evaluation: the
// same classification, task, and budget always produce the same list.
package selector

import (
	"log/slog"
	"sort"

	"github.com/refitlab/refit/internal/classify"
	"github.com/refitlab/refit/internal/log"
	"github.com/refitlab/refit/internal/worker"
)

// Priority orders recommendations for execution.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityLow:      0,
	PriorityMedium:   1,
	PriorityHigh:     2,
	PriorityCritical: 3,
}

func (p Priority) rank() int { return priorityRank[p] }

// promote raises a priority one level, capped at critical.
func (p Priority) promote() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	default:
		return PriorityCritical
	}
}

// Recommendation is one scheduled worker for one file.
type Recommendation struct {
	Worker            string         `json:"worker"`
	Priority          Priority       `json:"priority"`
	Confidence        float64        `json:"confidence"`
	Reason            string         `json:"reason"`
	EstimatedCost     float64        `json:"estimated_cost"`
	EstimatedDuration float64        `json:"estimated_duration_seconds"`
	Mutating          bool           `json:"mutating"`
	ProviderBound     bool           `json:"provider_bound"`
	Provider          string         `json:"provider,omitempty"`
	Config            map[string]any `json:"config,omitempty"`
}

// ruleEntry is one row of a selection rule table.
type ruleEntry struct {
	worker     string
	priority   Priority
	confidence float64
	reason     string
}

// taskRules maps each task to its baseline worker set.
var taskRules = map[string][]ruleEntry{
	"cleanup": {
		{"tidy", PriorityMedium, 0.9, "cleanup task includes whitespace normalization"},
		{"auditor", PriorityLow, 0.8, "cleanup task includes a review pass"},
	},
	"refactor": {
		{"splitter", PriorityHigh, 0.7, "refactor task targets long callables"},
		{"tidy", PriorityLow, 0.85, "refactor task finishes with normalization"},
	},
	"document": {
		{"docweaver", PriorityHigh, 0.8, "document task generates documentation stubs"},
	},
	"harden": {
		{"guardrail", PriorityHigh, 0.75, "harden task runs the security review"},
		{"auditor", PriorityMedium, 0.85, "harden task includes a general review"},
	},
}

// tierRules adds workers based on structural tier alone.
var tierRules = map[classify.Tier][]ruleEntry{
	classify.TierCritical: {
		{"auditor", PriorityHigh, 0.9, "critical-tier files get a mandatory review"},
	},
	classify.TierComplex: {
		{"splitter", PriorityMedium, 0.6, "complex-tier files are extraction candidates"},
	},
}

// tagRules adds workers based on classification tags.
var tagRules = map[string][]ruleEntry{
	classify.TagSecuritySensitive: {
		{"guardrail", PriorityCritical, 0.9, "security-sensitive content requires the security review"},
	},
	classify.TagLongMethod: {
		{"splitter", PriorityMedium, 0.65, "long callables present"},
	},
	classify.TagVeryLargeFile: {
		{"splitter", PriorityHigh, 0.7, "very large file should be split"},
	},
}

// Tags that only adjust confidence rather than adding workers.
const (
	testFileConfidenceFactor = 0.6
	degradedConfidenceFactor = 0.5
)

// Selector evaluates the rule tables against a worker registry.
type Selector struct {
	registry *worker.Registry
	logger   *slog.Logger
}

func NewSelector(registry *worker.Registry) *Selector {
	return &Selector{
		registry: registry,
		logger:   log.WithComponent("selector"),
	}
}

// Recommend returns the recommendations for one classified file, ordered by
// priority, then confidence, then name, and filtered to the cost budget.
// A budget of zero or less means unlimited.
func (s *Selector) Recommend(c classify.Classification, task string, budget float64) []Recommendation {
	entries := append([]ruleEntry{}, taskRules[task]...)
	entries = append(entries, tierRules[c.Tier]...)
	for _, tag := range c.Tags {
		entries = append(entries, tagRules[tag]...)
	}

	// Dedupe by worker, keeping the strongest rule per worker.
	best := make(map[string]ruleEntry)
	for _, e := range entries {
		cur, seen := best[e.worker]
		if !seen || e.priority.rank() > cur.priority.rank() ||
			(e.priority.rank() == cur.priority.rank() && e.confidence > cur.confidence) {
			best[e.worker] = e
		}
	}

	recs := make([]Recommendation, 0, len(best))
	for name, e := range best {
		d, ok := s.registry.Get(name)
		if !ok || !d.Enabled {
			s.logger.Debug("skipping unavailable worker", "worker", name, "registered", ok)
			continue
		}
		if c.HasTag(classify.TagParseDegraded) && d.Mutating {
			s.logger.Debug("skipping mutating worker for degraded classification",
				"worker", name, "path", c.Path)
			continue
		}

		priority := e.priority
		confidence := e.confidence
		switch c.Tier {
		case classify.TierCritical:
			priority = priority.promote()
		case classify.TierSimple:
			priority = PriorityLow
		}
		if c.HasTag(classify.TagTestFile) {
			confidence *= testFileConfidenceFactor
		}
		if c.HasTag(classify.TagParseDegraded) {
			confidence *= degradedConfidenceFactor
		}

		recs = append(recs, Recommendation{
			Worker:            name,
			Priority:          priority,
			Confidence:        confidence,
			Reason:            e.reason,
			EstimatedCost:     d.CostModel.Estimate(c),
			EstimatedDuration: d.EstimatedDuration,
			Mutating:          d.Mutating,
			ProviderBound:     d.ProviderBound,
			Provider:          d.Provider,
		})
	}

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].Priority.rank() != recs[j].Priority.rank() {
			return recs[i].Priority.rank() > recs[j].Priority.rank()
		}
		if recs[i].Confidence != recs[j].Confidence {
			return recs[i].Confidence > recs[j].Confidence
		}
		return recs[i].Worker < recs[j].Worker
	})

	// Simple files get at most one recommendation.
	if c.Tier == classify.TierSimple && len(recs) > 1 {
		recs = recs[:1]
	}

	if budget > 0 {
		recs = s.applyBudget(recs, budget, c.Path)
	}
	return recs
}

// applyBudget drops recommendations once cumulative estimated cost would
// exceed the budget. Higher-ranked recommendations always win the budget.
func (s *Selector) applyBudget(recs []Recommendation, budget float64, path string) []Recommendation {
	kept := recs[:0]
	total := 0.0
	for _, r := range recs {
		if total+r.EstimatedCost > budget {
			s.logger.Info("recommendation dropped by budget",
				"worker", r.Worker, "path", path,
				"estimated_cost", r.EstimatedCost, "budget", budget, "committed", total)
			continue
		}
		total += r.EstimatedCost
		kept = append(kept, r)
	}
	return kept
}

// Tasks returns the known task names in sorted order.
func Tasks() []string {
	out := make([]string, 0, len(taskRules))
	for t := range taskRules {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// KnownTask reports whether a task name has a rule table.
func KnownTask(task string) bool {
	_, ok := taskRules[task]
	return ok
}
