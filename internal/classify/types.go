package classify

// Tier is a discrete complexity band driving worker selection.
type Tier string

const (
	TierSimple   Tier = "simple"
	TierModerate Tier = "moderate"
	TierComplex  Tier = "complex"
	TierCritical Tier = "critical"
)

// rank orders tiers for comparisons; higher is more complex.
func (t Tier) rank() int {
	switch t {
	case TierCritical:
		return 3
	case TierComplex:
		return 2
	case TierModerate:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether t is the same tier as other or more complex.
func (t Tier) AtLeast(other Tier) bool {
	return t.rank() >= other.rank()
}

// Classification is the structural summary of one file. It is produced
// fresh on every call, never mutated, and never persisted beyond a session.
type Classification struct {
	Path string `json:"path"`

	Lines      int `json:"lines"`
	Callables  int `json:"callables"`
	Containers int `json:"containers"`
	Branches   int `json:"branches"`
	Handlers   int `json:"handlers"`
	MaxNesting int `json:"max_nesting"`

	Score float64 `json:"score"`
	Tier  Tier    `json:"tier"`

	// Tags are advisory signals from the heuristic keyword/path scan.
	// They feed selection confidence and are never correctness-critical.
	Tags []string `json:"tags,omitempty"`

	// Fingerprint is the BLAKE3 hash of the classified content.
	Fingerprint string `json:"fingerprint"`

	// Degraded marks a classification built from the line-count fallback
	// after a structural scan failure.
	Degraded bool `json:"degraded,omitempty"`
}

// HasTag reports whether the classification carries the given tag.
func (c Classification) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Advisory tag names detected by the classifier.
const (
	TagTestFile          = "test-file"
	TagDataAccess        = "data-access"
	TagSecuritySensitive = "security-sensitive"
	TagLongMethod        = "long-method"
	TagVeryLargeFile     = "very-large-file"
	TagConfigFile        = "config-file"
	TagParseDegraded     = "parse-degraded"
)
