package scoring

import "github.com/EricMurray-e-m-dev/SecureProctor/internal/models"

const (
	// MaxScore is the score of a session with no violations.
	MaxScore = 100
	MinScore = 0
)

// Policy maps a violation list to an integrity score. Score must equal a left
// fold of Apply from MaxScore, so incremental and batch scoring always agree.
type Policy interface {
	Score(violations []models.Violation) int
	Apply(score int, v models.Violation) int
}

// SeverityPolicy deducts a fixed weight per violation severity.
type SeverityPolicy struct {
	weights map[models.Severity]int
}

// NewSeverityPolicy returns the default weights: high 10, medium 5, low 2.
func NewSeverityPolicy() *SeverityPolicy {
	return &SeverityPolicy{
		weights: map[models.Severity]int{
			models.SeverityHigh:   10,
			models.SeverityMedium: 5,
			models.SeverityLow:    2,
		},
	}
}

// NewWeightedPolicy uses custom weights. Severities missing from the map cost nothing.
func NewWeightedPolicy(weights map[models.Severity]int) *SeverityPolicy {
	w := make(map[models.Severity]int, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &SeverityPolicy{weights: w}
}

func (p *SeverityPolicy) Weight(severity models.Severity) int {
	return p.weights[severity]
}

// Apply deducts one violation and clamps to [MinScore, MaxScore].
func (p *SeverityPolicy) Apply(score int, v models.Violation) int {
	return clamp(score - p.weights[v.Severity])
}

func (p *SeverityPolicy) Score(violations []models.Violation) int {
	score := MaxScore
	for _, v := range violations {
		score = p.Apply(score, v)
	}
	return score
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}
