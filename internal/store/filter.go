package store

import (
	"sort"
	"time"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/Harshitk-cp/protomind/internal/vector"
	"github.com/google/uuid"
)

func matchNode(n *domain.Node, f domain.NodeFilter) bool {
	if f.Kind != "" && n.Kind != f.Kind {
		return false
	}
	if f.Label != "" && !n.HasLabel(f.Label) {
		return false
	}
	return true
}

func matchEdge(e *domain.Edge, f domain.EdgeFilter) bool {
	if f.From != nil && e.From != *f.From {
		return false
	}
	if f.To != nil && e.To != *f.To {
		return false
	}
	if f.Rel != "" && e.Rel != f.Rel {
		return false
	}
	return true
}

func matchAssertion(a *domain.Assertion, f domain.AssertionFilter) bool {
	if f.Subject != "" && a.Subject != f.Subject {
		return false
	}
	if f.Predicate != "" && a.Predicate != f.Predicate {
		return false
	}
	return true
}

// stampNode prepares n for storage: the provenance of this write is attached,
// CreatedAt survives from the previous version and UpdatedAt is set to now.
func stampNode(n *domain.Node, prev *domain.Node, prov domain.Provenance, now time.Time) *domain.Node {
	c := n.Clone()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if prov.Timestamp.IsZero() {
		prov.Timestamp = now
	}
	c.Provenance = &prov
	c.CreatedAt = now
	if prev != nil {
		c.CreatedAt = prev.CreatedAt
	}
	c.UpdatedAt = now
	n.ID, n.Provenance, n.CreatedAt, n.UpdatedAt = c.ID, c.Provenance, c.CreatedAt, c.UpdatedAt
	return c
}

// stampEdge is stampNode for edges. The id is always re-derived from the
// (from, to, rel) triple.
func stampEdge(e *domain.Edge, prev *domain.Edge, prov domain.Provenance, now time.Time) *domain.Edge {
	c := e.Clone()
	c.ID = domain.EdgeID(c.From, c.To, c.Rel)
	if prov.Timestamp.IsZero() {
		prov.Timestamp = now
	}
	c.Provenance = &prov
	c.CreatedAt = now
	if prev != nil {
		c.CreatedAt = prev.CreatedAt
	}
	c.UpdatedAt = now
	e.ID, e.Provenance, e.CreatedAt, e.UpdatedAt = c.ID, c.Provenance, c.CreatedAt, c.UpdatedAt
	return c
}

// rankNodes scores candidates by cosine similarity and returns the topK best.
// candidates must be in insertion order; the sort is stable so equal scores
// keep that order. superseded holds ids with an outgoing next_version edge.
func rankNodes(candidates []domain.Node, embedding []float32, topK int, f domain.SearchFilters, superseded map[uuid.UUID]bool) []domain.ScoredNode {
	results := make([]domain.ScoredNode, 0, len(candidates))
	for i := range candidates {
		n := &candidates[i]
		if len(n.Embedding) == 0 {
			continue
		}
		if !matchNode(n, domain.NodeFilter{Kind: f.Kind, Label: f.Label}) {
			continue
		}
		if f.CurrentOnly && superseded[n.ID] {
			continue
		}
		results = append(results, domain.ScoredNode{Node: *n, Score: vector.Cosine(embedding, n.Embedding)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results
}
