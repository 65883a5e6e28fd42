package coordinator

import (
	"github.com/refitlab/refit/internal/classify"
	"github.com/refitlab/refit/internal/selector"
)

// ExecutionPlan is the ordered, budget-filtered worker sequence for one
// file and task. Plans are immutable once built.
type ExecutionPlan struct {
	Path            string                    `json:"path"`
	Task            string                    `json:"task"`
	Classification  classify.Classification   `json:"classification"`
	Recommendations []selector.Recommendation `json:"recommendations"`
	// EstimatedCost is always the sum of the recommendations' costs.
	EstimatedCost     float64 `json:"estimated_cost"`
	EstimatedDuration float64 `json:"estimated_duration_seconds"`
}

// NewPlan builds a plan from a classification and its recommendations.
func NewPlan(c classify.Classification, task string, recs []selector.Recommendation) ExecutionPlan {
	p := ExecutionPlan{
		Path:            c.Path,
		Task:            task,
		Classification:  c,
		Recommendations: append([]selector.Recommendation(nil), recs...),
	}
	for _, r := range p.Recommendations {
		p.EstimatedCost += r.EstimatedCost
		p.EstimatedDuration += r.EstimatedDuration
	}
	return p
}
