package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type NodeKind string

const (
	KindPrototype NodeKind = "prototype"
	KindConcept   NodeKind = "concept"
	KindProperty  NodeKind = "property"
	KindValue     NodeKind = "value"
	KindTag       NodeKind = "tag"
	KindDocument  NodeKind = "document"
)

func ValidNodeKind(k string) bool {
	switch NodeKind(k) {
	case KindPrototype, KindConcept, KindProperty, KindValue, KindTag, KindDocument:
		return true
	}
	return false
}

// Reserved property keys written by the kind constructors.
const (
	PropName         = "name"
	PropDescription  = "description"
	PropSummary      = "summary"
	PropIsPrototype  = "isPrototype"
	PropPrototypeID  = "prototypeId"
	PropIsProperty   = "isProperty"
	PropValueType    = "valueType"
	PropRequired     = "required"
	PropIsValue      = "isValue"
	PropLiteralValue = "literalValue"
	PropPropertyName = "propertyName"
	PropTag          = "tag"
	PropIsDocument   = "isDocument"
	PropVersion      = "version"
	PropContent      = "content"
)

// Node is a uniformly stored graph vertex. Kind discriminates the payload
// that lives in Props; use the typed accessors rather than reading Props
// directly.
type Node struct {
	ID         uuid.UUID      `json:"uuid"`
	Kind       NodeKind       `json:"kind"`
	Labels     []string       `json:"labels,omitempty"`
	Props      map[string]any `json:"props,omitempty"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Provenance *Provenance    `json:"provenance,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Provenance describes a write for audit purposes. It is stamped on the
// written entity and never traversed.
type Provenance struct {
	Source     string    `json:"source"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence"`
	TraceID    string    `json:"trace_id,omitempty"`
}

// NewProvenance returns a provenance stamped now with full confidence.
func NewProvenance(source string) Provenance {
	if source == "" {
		source = "system"
	}
	return Provenance{Source: source, Timestamp: time.Now().UTC(), Confidence: 1.0}
}

func (n *Node) HasLabel(label string) bool {
	for _, l := range n.Labels {
		if l == label {
			return true
		}
	}
	return false
}

func (n *Node) Label() string {
	if len(n.Labels) == 0 {
		return ""
	}
	return n.Labels[0]
}

// DisplayName returns the last label. Concepts carry their prototype name
// first and their own label last.
func (n *Node) DisplayName() string {
	if len(n.Labels) == 0 {
		return ""
	}
	return n.Labels[len(n.Labels)-1]
}

// Clone returns a copy whose maps and slices can be mutated independently.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	c.Labels = append([]string(nil), n.Labels...)
	c.Props = CloneProps(n.Props)
	if n.Embedding != nil {
		c.Embedding = append([]float32(nil), n.Embedding...)
	}
	if n.Provenance != nil {
		p := *n.Provenance
		c.Provenance = &p
	}
	return &c
}

func CloneProps(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if m, ok := v.(map[string]any); ok {
			v = CloneProps(m)
		}
		out[k] = v
	}
	return out
}

func uniqueLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

func newNode(id uuid.UUID, kind NodeKind, labels []string, props map[string]any) *Node {
	if id == uuid.Nil {
		id = uuid.New()
	}
	return &Node{
		ID:     id,
		Kind:   kind,
		Labels: uniqueLabels(labels),
		Props:  props,
	}
}

// Name-based identifiers for structural singletons. Re-deriving the same id
// is what makes re-linking and re-tagging idempotent across backends.
var namespace = uuid.MustParse("6f1c2b1e-8d4a-4c55-9a63-2f0e7d9b3c41")

func TagNodeID(text string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte("tag:"+text))
}

func PropertyNodeID(prototypeID uuid.UUID, name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte("prop:"+prototypeID.String()+":"+name))
}

func ValueNodeID(conceptID uuid.UUID, property string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte("value:"+conceptID.String()+":"+property))
}

func DocumentNodeID(conceptID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte("doc:"+conceptID.String()))
}

func EdgeID(from, to uuid.UUID, rel Relation) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte("edge:"+from.String()+":"+to.String()+":"+string(rel)))
}
