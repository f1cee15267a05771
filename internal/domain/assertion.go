package domain

import (
	"time"

	"github.com/google/uuid"
)

type AssertionStatus string

const (
	AssertionActive    AssertionStatus = "active"
	AssertionRetracted AssertionStatus = "retracted"
)

func ValidAssertionStatus(s string) bool {
	switch AssertionStatus(s) {
	case AssertionActive, AssertionRetracted:
		return true
	}
	return false
}

// Source names the origin of an assertion.
type Source string

const (
	SourceUser     Source = "user"
	SourceAgent    Source = "agent"
	SourceTool     Source = "tool"
	SourceDerived  Source = "derived"
	SourceInferred Source = "inferred"
)

// Assertion is an independently scored claim that Subject's Predicate equals
// Object. Several assertions may disagree about the same (Subject, Predicate).
type Assertion struct {
	ID              uuid.UUID       `json:"id"`
	Subject         string          `json:"subject"`
	Predicate       string          `json:"predicate"`
	Object          any             `json:"object"`
	Truth           float64         `json:"truth"`
	Strength        float64         `json:"strength"`
	VoteScore       int             `json:"vote_score"`
	SourceRel       float64         `json:"source_rel"`
	Provenance      Provenance      `json:"provenance"`
	Status          AssertionStatus `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	PrevAssertionID *uuid.UUID      `json:"prev_assertion_id,omitempty"`
}

// ResolvedValue is the winning value for one predicate.
type ResolvedValue struct {
	AssertionID uuid.UUID `json:"assertion_id"`
	Value       any       `json:"value"`
	Truth       float64   `json:"truth"`
	Score       float64   `json:"score"`
}

// EvidenceItem is one ranked candidate in the evidence trail.
type EvidenceItem struct {
	AssertionID uuid.UUID `json:"assertion_id"`
	Predicate   string    `json:"predicate"`
	Value       any       `json:"value"`
	Score       float64   `json:"score"`
	Truth       float64   `json:"truth"`
	CreatedAt   time.Time `json:"created_at"`
}

// Resolution is the winner-take-all outcome for one subject.
type Resolution struct {
	Subject  string                    `json:"subject"`
	Snapshot map[string]ResolvedValue  `json:"snapshot"`
	Evidence map[string][]EvidenceItem `json:"evidence"`
}

// Values returns the snapshot without scores.
func (r *Resolution) Values() map[string]any {
	out := make(map[string]any, len(r.Snapshot))
	for p, v := range r.Snapshot {
		out[p] = v.Value
	}
	return out
}
