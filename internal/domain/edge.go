package domain

import (
	"time"

	"github.com/google/uuid"
)

type Relation string

const (
	RelIsA         Relation = "is_a"
	RelNextVersion Relation = "next_version"
	RelHasProp     Relation = "has_prop"
	RelHasValue    Relation = "has_value"
	RelHasDocument Relation = "has_document"
	RelTagged      Relation = "tagged"
	RelAssociated  Relation = "associated_with"
	RelReinforces  Relation = "reinforces"
)

// StructuralRelations are maintained by the core and cannot be created
// through the generic association path.
var StructuralRelations = map[Relation]bool{
	RelIsA:         true,
	RelNextVersion: true,
	RelHasProp:     true,
	RelHasValue:    true,
	RelHasDocument: true,
}

// ReservedRelation reports whether rel may only be written by the core.
// reinforces edges belong to the Hebbian graph, which enforces the weight
// cap.
func ReservedRelation(rel Relation) bool {
	return StructuralRelations[rel] || rel == RelReinforces
}

type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
	DirectionBoth     Direction = "both"
)

func ValidDirection(d string) bool {
	switch Direction(d) {
	case DirectionOutgoing, DirectionIncoming, DirectionBoth:
		return true
	}
	return false
}

// Edge is a typed, weighted, directed relationship. Its ID is derived from
// (From, To, Rel), so each triple names exactly one edge.
type Edge struct {
	ID         uuid.UUID      `json:"uuid"`
	From       uuid.UUID      `json:"from"`
	To         uuid.UUID      `json:"to"`
	Rel        Relation       `json:"rel"`
	Props      map[string]any `json:"props,omitempty"`
	Weight     float64        `json:"weight"`
	Provenance *Provenance    `json:"provenance,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func NewEdge(from, to uuid.UUID, rel Relation, weight float64) *Edge {
	return &Edge{
		ID:     EdgeID(from, to, rel),
		From:   from,
		To:     to,
		Rel:    rel,
		Weight: weight,
	}
}

func (e *Edge) Clone() *Edge {
	if e == nil {
		return nil
	}
	c := *e
	c.Props = CloneProps(e.Props)
	if e.Provenance != nil {
		p := *e.Provenance
		c.Provenance = &p
	}
	return &c
}

// PropertyName returns the propertyName annotation of a has_value edge.
func (e *Edge) PropertyName() string {
	s, _ := e.Props[PropPropertyName].(string)
	return s
}

// DecayResult tracks the outcome of a decay pass.
type DecayResult struct {
	Processed int `json:"processed"`
	Decayed   int `json:"decayed"`
	Pruned    int `json:"pruned"`
}
