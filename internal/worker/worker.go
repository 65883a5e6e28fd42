// Package worker defines the closed set of file workers and their static
// registry. Workers are black boxes to the orchestration core: they take
// content and configuration and return new content plus an actual cost.
package worker

import (
	"context"

	"github.com/refitlab/refit/internal/classify"
)

// Request carries everything a worker needs for one invocation.
type Request struct {
	Path           string
	Content        []byte
	Classification classify.Classification
	// Config is the worker-specific configuration attached to the
	// recommendation that scheduled this invocation.
	Config map[string]any
}

// Response is the black-box worker contract.
type Response struct {
	NewContent []byte
	Success    bool
	Warnings   []string
	Errors     []string
	// ActualCost is the resource cost reported by the provider cost
	// reporter for provider-bound workers, zero for local ones.
	ActualCost float64
}

// Worker analyzes or mutates one file.
type Worker interface {
	Name() string
	Invoke(ctx context.Context, req Request) (Response, error)
}

// CostModel estimates a worker's resource cost for a classified file.
type CostModel struct {
	Base          float64
	PerLine       float64
	PerCallable   float64
	PerContainer  float64
	CriticalBonus float64
}

// complexityMultiplier scales estimates by tier.
func complexityMultiplier(tier classify.Tier) float64 {
	switch tier {
	case classify.TierCritical:
		return 2.0
	case classify.TierComplex:
		return 1.5
	case classify.TierModerate:
		return 1.25
	default:
		return 1.0
	}
}

// Estimate computes the modeled cost for a classification.
func (cm CostModel) Estimate(c classify.Classification) float64 {
	cost := cm.Base +
		cm.PerLine*float64(c.Lines) +
		cm.PerCallable*float64(c.Callables) +
		cm.PerContainer*float64(c.Containers)
	cost *= complexityMultiplier(c.Tier)
	if c.Tier == classify.TierCritical {
		cost += cm.CriticalBonus
	}
	if cost < 0 {
		cost = 0
	}
	return cost
}

// Descriptor is a registry entry: one worker plus its scheduling metadata.
type Descriptor struct {
	Name        string
	Description string
	// Mutating workers require an exclusive lock and a prior backup.
	Mutating bool
	// ProviderBound workers pass through the rate governor before running.
	ProviderBound bool
	// Provider names the quota profile for provider-bound workers.
	Provider string
	// EstimatedDuration is the planning-time duration guess.
	EstimatedDuration float64 // seconds
	CostModel         CostModel
	Enabled           bool

	Worker Worker
}
