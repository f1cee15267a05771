package service

import (
	"math"
	"sort"
	"time"

	"github.com/Harshitk-cp/protomind/internal/domain"
)

// ScoringPolicy weights the components of the winner-take-all score.
type ScoringPolicy struct {
	WeightTruth    float64
	WeightVote     float64
	WeightSource   float64
	WeightRecency  float64
	WeightStrength float64
	// HalfLife is the decay constant of the recency term exp(-age/HalfLife).
	// Zero or negative disables recency decay.
	HalfLife time.Duration
	// VoteScale divides the vote score before the sigmoid.
	VoteScale float64
}

func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		WeightTruth:    0.45,
		WeightVote:     0.20,
		WeightSource:   0.15,
		WeightRecency:  0.10,
		WeightStrength: 0.10,
		HalfLife:       7 * 24 * time.Hour,
		VoteScale:      10,
	}
}

// Score is deterministic for a fixed now. More votes never lower it.
func (p ScoringPolicy) Score(a *domain.Assertion, now time.Time) float64 {
	scale := p.VoteScale
	if scale <= 0 {
		scale = 10
	}
	vote := sigmoid(float64(a.VoteScore) / scale)

	recency := 1.0
	if p.HalfLife > 0 {
		age := now.Sub(a.CreatedAt)
		if age < 0 {
			age = 0
		}
		recency = math.Exp(-age.Seconds() / p.HalfLife.Seconds())
	}

	return p.WeightTruth*a.Truth +
		p.WeightVote*vote +
		p.WeightSource*a.SourceRel +
		p.WeightRecency*recency +
		p.WeightStrength*a.Strength
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

type scoredAssertion struct {
	a     *domain.Assertion
	score float64
}

// Resolve groups the active assertions by predicate and picks one winner per
// group. Ties go to the newer assertion, then to the larger id, so the result
// does not depend on input order.
func Resolve(subject string, assertions []domain.Assertion, policy ScoringPolicy, now time.Time) *domain.Resolution {
	groups := make(map[string][]scoredAssertion)
	for i := range assertions {
		a := &assertions[i]
		if a.Subject != subject || a.Status == domain.AssertionRetracted {
			continue
		}
		groups[a.Predicate] = append(groups[a.Predicate], scoredAssertion{a: a, score: policy.Score(a, now)})
	}

	res := &domain.Resolution{
		Subject:  subject,
		Snapshot: make(map[string]domain.ResolvedValue, len(groups)),
		Evidence: make(map[string][]domain.EvidenceItem, len(groups)),
	}
	for predicate, group := range groups {
		sort.Slice(group, func(i, j int) bool { return ranksBefore(group[i], group[j]) })

		w := group[0]
		res.Snapshot[predicate] = domain.ResolvedValue{
			AssertionID: w.a.ID,
			Value:       w.a.Object,
			Truth:       w.a.Truth,
			Score:       w.score,
		}

		items := make([]domain.EvidenceItem, len(group))
		for i, g := range group {
			items[i] = domain.EvidenceItem{
				AssertionID: g.a.ID,
				Predicate:   predicate,
				Value:       g.a.Object,
				Score:       g.score,
				Truth:       g.a.Truth,
				CreatedAt:   g.a.CreatedAt,
			}
		}
		res.Evidence[predicate] = items
	}
	return res
}

func ranksBefore(x, y scoredAssertion) bool {
	if x.score != y.score {
		return x.score > y.score
	}
	if !x.a.CreatedAt.Equal(y.a.CreatedAt) {
		return x.a.CreatedAt.After(y.a.CreatedAt)
	}
	return x.a.ID.String() > y.a.ID.String()
}
