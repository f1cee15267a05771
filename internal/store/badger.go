package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key prefixes. Values are JSON records carrying an insertion sequence so
// listings come back in write order rather than key order.
const (
	prefixNode      byte = 0x01
	prefixEdge      byte = 0x02
	prefixAssertion byte = 0x03
)

var (
	seqNodes      = []byte("seq/nodes")
	seqEdges      = []byte("seq/edges")
	seqAssertions = []byte("seq/assertions")
)

func badgerKey(prefix byte, id uuid.UUID) []byte {
	key := make([]byte, 0, 17)
	key = append(key, prefix)
	return append(key, id[:]...)
}

type badgerNode struct {
	Seq  uint64      `json:"seq"`
	Node domain.Node `json:"node"`
}

type badgerEdge struct {
	Seq  uint64      `json:"seq"`
	Edge domain.Edge `json:"edge"`
}

type badgerAssertion struct {
	Seq       uint64           `json:"seq"`
	Assertion domain.Assertion `json:"assertion"`
}

// BadgerOptions configures the embedded store.
type BadgerOptions struct {
	Dir      string
	InMemory bool
}

// BadgerDB owns the badger handle and the sequences shared by the graph and
// assertion views over it.
type BadgerDB struct {
	db           *badger.DB
	nodeSeq      *badger.Sequence
	edgeSeq      *badger.Sequence
	assertionSeq *badger.Sequence
	now          func() time.Time
}

func OpenBadger(opts BadgerOptions) (*BadgerDB, error) {
	badgerOpts := badger.DefaultOptions(opts.Dir)
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	b := &BadgerDB{db: db, now: func() time.Time { return time.Now().UTC() }}
	for _, s := range []struct {
		key []byte
		dst **badger.Sequence
	}{
		{seqNodes, &b.nodeSeq},
		{seqEdges, &b.edgeSeq},
		{seqAssertions, &b.assertionSeq},
	} {
		seq, err := db.GetSequence(s.key, 64)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("badger sequence %s: %w", s.key, err)
		}
		*s.dst = seq
	}
	return b, nil
}

func (b *BadgerDB) Close() error {
	for _, s := range []*badger.Sequence{b.nodeSeq, b.edgeSeq, b.assertionSeq} {
		if s != nil {
			_ = s.Release()
		}
	}
	return b.db.Close()
}

func (b *BadgerDB) Graph() *BadgerGraphStore {
	return &BadgerGraphStore{b: b}
}

func (b *BadgerDB) Assertions() *BadgerAssertionStore {
	return &BadgerAssertionStore{b: b}
}

func getJSON(txn *badger.Txn, key []byte, dst any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, dst)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func scanPrefix(txn *badger.Txn, prefix byte, fn func(val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	it := txn.NewIterator(opts)
	defer it.Close()

	p := []byte{prefix}
	for it.Seek(p); it.ValidForPrefix(p); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

// BadgerGraphStore is a GraphStore persisted in badger.
type BadgerGraphStore struct {
	b *BadgerDB
}

func (s *BadgerGraphStore) UpsertNode(ctx context.Context, n *domain.Node, prov domain.Provenance) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	err := s.b.db.Update(func(txn *badger.Txn) error {
		key := badgerKey(prefixNode, n.ID)
		var rec badgerNode
		found, err := getJSON(txn, key, &rec)
		if err != nil {
			return err
		}
		var prev *domain.Node
		if found {
			prev = &rec.Node
		} else if rec.Seq, err = s.b.nodeSeq.Next(); err != nil {
			return err
		}
		rec.Node = *stampNode(n, prev, prov, s.b.now())
		return setJSON(txn, key, rec)
	})
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	return nil
}

func (s *BadgerGraphStore) UpsertEdge(ctx context.Context, e *domain.Edge, prov domain.Provenance) error {
	err := s.b.db.Update(func(txn *badger.Txn) error {
		key := badgerKey(prefixEdge, domain.EdgeID(e.From, e.To, e.Rel))
		var rec badgerEdge
		found, err := getJSON(txn, key, &rec)
		if err != nil {
			return err
		}
		var prev *domain.Edge
		if found {
			prev = &rec.Edge
		} else if rec.Seq, err = s.b.edgeSeq.Next(); err != nil {
			return err
		}
		rec.Edge = *stampEdge(e, prev, prov, s.b.now())
		return setJSON(txn, key, rec)
	})
	if err != nil {
		return fmt.Errorf("upsert edge: %w", err)
	}
	return nil
}

func (s *BadgerGraphStore) GetNode(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	var rec badgerNode
	var found bool
	err := s.b.db.View(func(txn *badger.Txn) (err error) {
		found, err = getJSON(txn, badgerKey(prefixNode, id), &rec)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &rec.Node, nil
}

func (s *BadgerGraphStore) GetEdge(ctx context.Context, from, to uuid.UUID, rel domain.Relation) (*domain.Edge, error) {
	var rec badgerEdge
	var found bool
	err := s.b.db.View(func(txn *badger.Txn) (err error) {
		found, err = getJSON(txn, badgerKey(prefixEdge, domain.EdgeID(from, to, rel)), &rec)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get edge: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &rec.Edge, nil
}

func (s *BadgerGraphStore) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	return s.b.db.Update(func(txn *badger.Txn) error {
		key := badgerKey(prefixEdge, id)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("delete edge: %w", err)
		}
		return txn.Delete(key)
	})
}

func (s *BadgerGraphStore) allNodes() ([]badgerNode, error) {
	var recs []badgerNode
	err := s.b.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixNode, func(val []byte) error {
			var rec badgerNode
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })
	return recs, err
}

func (s *BadgerGraphStore) allEdges(filter domain.EdgeFilter) ([]domain.Edge, error) {
	var recs []badgerEdge
	err := s.b.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixEdge, func(val []byte) error {
			var rec badgerEdge
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			if matchEdge(&rec.Edge, filter) {
				recs = append(recs, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })

	edges := make([]domain.Edge, 0, len(recs))
	for _, r := range recs {
		edges = append(edges, r.Edge)
	}
	return edges, nil
}

func (s *BadgerGraphStore) ListNodes(ctx context.Context, filter domain.NodeFilter) ([]domain.Node, error) {
	recs, err := s.allNodes()
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	var nodes []domain.Node
	for i := range recs {
		if matchNode(&recs[i].Node, filter) {
			nodes = append(nodes, recs[i].Node)
		}
	}
	return nodes, nil
}

func (s *BadgerGraphStore) ListEdges(ctx context.Context, filter domain.EdgeFilter) ([]domain.Edge, error) {
	edges, err := s.allEdges(filter)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	return edges, nil
}

func (s *BadgerGraphStore) Search(ctx context.Context, embedding []float32, topK int, filters domain.SearchFilters) ([]domain.ScoredNode, error) {
	recs, err := s.allNodes()
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	superseded := make(map[uuid.UUID]bool)
	if filters.CurrentOnly {
		edges, err := s.allEdges(domain.EdgeFilter{Rel: domain.RelNextVersion})
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		for _, e := range edges {
			superseded[e.From] = true
		}
	}

	candidates := make([]domain.Node, len(recs))
	for i := range recs {
		candidates[i] = recs[i].Node
	}
	return rankNodes(candidates, embedding, topK, filters, superseded), nil
}

// BadgerAssertionStore is an AssertionStore persisted in badger.
type BadgerAssertionStore struct {
	b *BadgerDB
}

func (s *BadgerAssertionStore) Create(ctx context.Context, a *domain.Assertion) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.b.now()
	}
	seq, err := s.b.assertionSeq.Next()
	if err != nil {
		return fmt.Errorf("assertion sequence: %w", err)
	}
	err = s.b.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, badgerKey(prefixAssertion, a.ID), badgerAssertion{Seq: seq, Assertion: *a})
	})
	if err != nil {
		return fmt.Errorf("create assertion: %w", err)
	}
	return nil
}

func (s *BadgerAssertionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Assertion, error) {
	var rec badgerAssertion
	var found bool
	err := s.b.db.View(func(txn *badger.Txn) (err error) {
		found, err = getJSON(txn, badgerKey(prefixAssertion, id), &rec)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get assertion: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &rec.Assertion, nil
}

func (s *BadgerAssertionStore) List(ctx context.Context, filter domain.AssertionFilter) ([]domain.Assertion, error) {
	var recs []badgerAssertion
	err := s.b.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, prefixAssertion, func(val []byte) error {
			var rec badgerAssertion
			if err := json.Unmarshal(val, &rec); err != nil {
				return err
			}
			if matchAssertion(&rec.Assertion, filter) {
				recs = append(recs, rec)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list assertions: %w", err)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })

	out := make([]domain.Assertion, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Assertion)
	}
	return out, nil
}
