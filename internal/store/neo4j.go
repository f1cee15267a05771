package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// Neo4jDB wraps a driver shared by the graph and assertion stores.
//
// Nodes are (:KGNode) vertices and edges are [:KG_EDGE] relationships with
// the relation name as a property. Nested maps are stored as JSON strings
// because neo4j properties cannot hold maps.
type Neo4jDB struct {
	client   neo4j.DriverWithContext
	database string
}

func OpenNeo4j(ctx context.Context, uri, username, password, database string) (*Neo4jDB, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	n := &Neo4jDB{client: driver, database: database}
	if err := n.ensureConstraints(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}
	return n, nil
}

func (n *Neo4jDB) ensureConstraints(ctx context.Context) error {
	for _, q := range []string{
		`CREATE CONSTRAINT kg_node_uuid IF NOT EXISTS FOR (n:KGNode) REQUIRE n.uuid IS UNIQUE`,
		`CREATE CONSTRAINT kg_assertion_uuid IF NOT EXISTS FOR (a:KGAssertion) REQUIRE a.uuid IS UNIQUE`,
		`CREATE INDEX kg_assertion_subject IF NOT EXISTS FOR (a:KGAssertion) ON (a.subject, a.predicate)`,
	} {
		if err := n.write(ctx, q, nil); err != nil {
			return fmt.Errorf("neo4j schema: %w", err)
		}
	}
	return nil
}

func (n *Neo4jDB) Ping(ctx context.Context) error {
	return n.client.VerifyConnectivity(ctx)
}

func (n *Neo4jDB) Close(ctx context.Context) error {
	return n.client.Close(ctx)
}

func (n *Neo4jDB) Graph() *Neo4jGraphStore {
	return &Neo4jGraphStore{n: n}
}

func (n *Neo4jDB) Assertions() *Neo4jAssertionStore {
	return &Neo4jAssertionStore{n: n}
}

func (n *Neo4jDB) write(ctx context.Context, query string, params map[string]any) error {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return err
}

// writeRecords runs a write query and collects its records.
func (n *Neo4jDB) writeRecords(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*neo4j.Record), nil
}

func (n *Neo4jDB) read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := n.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: n.database})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]*neo4j.Record), nil
}

// Neo4jGraphStore is a GraphStore backed by neo4j. Similarity ranking runs
// in process over the stored embeddings.
type Neo4jGraphStore struct {
	n *Neo4jDB
}

func (s *Neo4jGraphStore) UpsertNode(ctx context.Context, node *domain.Node, prov domain.Provenance) error {
	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	now := time.Now().UTC()
	if prov.Timestamp.IsZero() {
		prov.Timestamp = now
	}
	props, err := encodeJSON(node.Props)
	if err != nil {
		return fmt.Errorf("encode props: %w", err)
	}
	provJSON, err := encodeJSON(prov)
	if err != nil {
		return fmt.Errorf("encode provenance: %w", err)
	}
	labels := node.Labels
	if labels == nil {
		labels = []string{}
	}

	records, err := s.n.writeRecords(ctx, `
		MERGE (n:KGNode {uuid: $uuid})
		ON CREATE SET n.created_at = $now, n.seq = $seq
		SET n.kind = $kind,
		    n.labels = $labels,
		    n.props = $props,
		    n.embedding = $embedding,
		    n.provenance = $provenance,
		    n.updated_at = $now
		RETURN n.created_at AS created_at
	`, map[string]any{
		"uuid":       node.ID.String(),
		"kind":       string(node.Kind),
		"labels":     labels,
		"props":      props,
		"embedding":  toFloat64s(node.Embedding),
		"provenance": provJSON,
		"now":        now.Format(time.RFC3339Nano),
		"seq":        now.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	node.CreatedAt = now
	if len(records) > 0 {
		if v, ok := records[0].Get("created_at"); ok {
			node.CreatedAt = parseTime(v)
		}
	}
	node.UpdatedAt = now
	node.Provenance = &prov
	return nil
}

func (s *Neo4jGraphStore) UpsertEdge(ctx context.Context, e *domain.Edge, prov domain.Provenance) error {
	e.ID = domain.EdgeID(e.From, e.To, e.Rel)
	now := time.Now().UTC()
	if prov.Timestamp.IsZero() {
		prov.Timestamp = now
	}
	props, err := encodeJSON(e.Props)
	if err != nil {
		return fmt.Errorf("encode props: %w", err)
	}
	provJSON, err := encodeJSON(prov)
	if err != nil {
		return fmt.Errorf("encode provenance: %w", err)
	}

	records, err := s.n.writeRecords(ctx, `
		MATCH (a:KGNode {uuid: $from}), (b:KGNode {uuid: $to})
		MERGE (a)-[r:KG_EDGE {uuid: $uuid}]->(b)
		ON CREATE SET r.created_at = $now, r.seq = $seq
		SET r.rel = $rel,
		    r.props = $props,
		    r.weight = $weight,
		    r.provenance = $provenance,
		    r.updated_at = $now
		RETURN r.created_at AS created_at
	`, map[string]any{
		"uuid":       e.ID.String(),
		"from":       e.From.String(),
		"to":         e.To.String(),
		"rel":        string(e.Rel),
		"props":      props,
		"weight":     e.Weight,
		"provenance": provJSON,
		"now":        now.Format(time.RFC3339Nano),
		"seq":        now.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("upsert edge: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("upsert edge %s: endpoint %w", e.ID, ErrNotFound)
	}
	if v, ok := records[0].Get("created_at"); ok {
		e.CreatedAt = parseTime(v)
	}
	e.UpdatedAt = now
	e.Provenance = &prov
	return nil
}

func (s *Neo4jGraphStore) GetNode(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	records, err := s.n.read(ctx, `MATCH (n:KGNode {uuid: $uuid}) RETURN n`,
		map[string]any{"uuid": id.String()})
	if err != nil {
		return nil, fmt.Errorf("get node: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return nodeFromRecord(records[0], "n")
}

const edgeReturn = `RETURN r, a.uuid AS source_id, b.uuid AS target_id`

func (s *Neo4jGraphStore) GetEdge(ctx context.Context, from, to uuid.UUID, rel domain.Relation) (*domain.Edge, error) {
	records, err := s.n.read(ctx, `
		MATCH (a:KGNode)-[r:KG_EDGE {uuid: $uuid}]->(b:KGNode)
		`+edgeReturn,
		map[string]any{"uuid": domain.EdgeID(from, to, rel).String()})
	if err != nil {
		return nil, fmt.Errorf("get edge: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return edgeFromRecord(records[0])
}

func (s *Neo4jGraphStore) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	records, err := s.n.writeRecords(ctx, `
		MATCH ()-[r:KG_EDGE {uuid: $uuid}]->()
		DELETE r
		RETURN count(*) AS deleted
	`, map[string]any{"uuid": id.String()})
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	if len(records) == 0 {
		return ErrNotFound
	}
	if v, _ := records[0].Get("deleted"); v == int64(0) {
		return ErrNotFound
	}
	return nil
}

func (s *Neo4jGraphStore) ListNodes(ctx context.Context, filter domain.NodeFilter) ([]domain.Node, error) {
	records, err := s.n.read(ctx, `
		MATCH (n:KGNode)
		WHERE ($kind = '' OR n.kind = $kind)
		  AND ($label = '' OR $label IN n.labels)
		RETURN n
		ORDER BY n.seq
	`, map[string]any{"kind": string(filter.Kind), "label": filter.Label})
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	return nodesFromRecords(records)
}

func (s *Neo4jGraphStore) ListEdges(ctx context.Context, filter domain.EdgeFilter) ([]domain.Edge, error) {
	from, to := "", ""
	if filter.From != nil {
		from = filter.From.String()
	}
	if filter.To != nil {
		to = filter.To.String()
	}
	records, err := s.n.read(ctx, `
		MATCH (a:KGNode)-[r:KG_EDGE]->(b:KGNode)
		WHERE ($from = '' OR a.uuid = $from)
		  AND ($to = '' OR b.uuid = $to)
		  AND ($rel = '' OR r.rel = $rel)
		`+edgeReturn+`
		ORDER BY r.seq
	`, map[string]any{"from": from, "to": to, "rel": string(filter.Rel)})
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}

	edges := make([]domain.Edge, 0, len(records))
	for _, rec := range records {
		e, err := edgeFromRecord(rec)
		if err != nil {
			return nil, err
		}
		edges = append(edges, *e)
	}
	return edges, nil
}

func (s *Neo4jGraphStore) Search(ctx context.Context, embedding []float32, topK int, filters domain.SearchFilters) ([]domain.ScoredNode, error) {
	records, err := s.n.read(ctx, `
		MATCH (n:KGNode)
		WHERE n.embedding IS NOT NULL AND size(n.embedding) = $dims
		  AND ($kind = '' OR n.kind = $kind)
		  AND ($label = '' OR $label IN n.labels)
		  AND (NOT $currentOnly OR NOT EXISTS { (n)-[:KG_EDGE {rel: 'next_version'}]->() })
		RETURN n
		ORDER BY n.seq
	`, map[string]any{
		"dims":        len(embedding),
		"kind":        string(filters.Kind),
		"label":       filters.Label,
		"currentOnly": filters.CurrentOnly,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	candidates, err := nodesFromRecords(records)
	if err != nil {
		return nil, err
	}
	filters.CurrentOnly = false
	return rankNodes(candidates, embedding, topK, filters, nil), nil
}

// Neo4jAssertionStore stores assertions as (:KGAssertion) vertices.
type Neo4jAssertionStore struct {
	n *Neo4jDB
}

func (s *Neo4jAssertionStore) Create(ctx context.Context, a *domain.Assertion) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	object, err := encodeJSON(a.Object)
	if err != nil {
		return fmt.Errorf("encode object: %w", err)
	}
	prov, err := encodeJSON(a.Provenance)
	if err != nil {
		return fmt.Errorf("encode provenance: %w", err)
	}
	var prev any
	if a.PrevAssertionID != nil {
		prev = a.PrevAssertionID.String()
	}

	err = s.n.write(ctx, `
		CREATE (a:KGAssertion {
			uuid: $uuid, subject: $subject, predicate: $predicate, object: $object,
			truth: $truth, strength: $strength, vote_score: $vote_score, source_rel: $source_rel,
			provenance: $provenance, status: $status, created_at: $created_at,
			prev_assertion_id: $prev, seq: $seq
		})
	`, map[string]any{
		"uuid":       a.ID.String(),
		"subject":    a.Subject,
		"predicate":  a.Predicate,
		"object":     object,
		"truth":      a.Truth,
		"strength":   a.Strength,
		"vote_score": int64(a.VoteScore),
		"source_rel": a.SourceRel,
		"provenance": prov,
		"status":     string(a.Status),
		"created_at": a.CreatedAt.Format(time.RFC3339Nano),
		"prev":       prev,
		"seq":        time.Now().UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("create assertion: %w", err)
	}
	return nil
}

func (s *Neo4jAssertionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Assertion, error) {
	records, err := s.n.read(ctx, `MATCH (a:KGAssertion {uuid: $uuid}) RETURN a`,
		map[string]any{"uuid": id.String()})
	if err != nil {
		return nil, fmt.Errorf("get assertion: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return assertionFromRecord(records[0])
}

func (s *Neo4jAssertionStore) List(ctx context.Context, filter domain.AssertionFilter) ([]domain.Assertion, error) {
	records, err := s.n.read(ctx, `
		MATCH (a:KGAssertion)
		WHERE ($subject = '' OR a.subject = $subject)
		  AND ($predicate = '' OR a.predicate = $predicate)
		RETURN a
		ORDER BY a.seq
	`, map[string]any{"subject": filter.Subject, "predicate": filter.Predicate})
	if err != nil {
		return nil, fmt.Errorf("list assertions: %w", err)
	}

	out := make([]domain.Assertion, 0, len(records))
	for _, rec := range records {
		a, err := assertionFromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, nil
}

func nodesFromRecords(records []*neo4j.Record) ([]domain.Node, error) {
	nodes := make([]domain.Node, 0, len(records))
	for _, rec := range records {
		n, err := nodeFromRecord(rec, "n")
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, nil
}

func nodeFromRecord(rec *neo4j.Record, key string) (*domain.Node, error) {
	v, ok := rec.Get(key)
	if !ok {
		return nil, fmt.Errorf("record has no %q", key)
	}
	dbNode, ok := v.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected type for node: got %T, expected dbtype.Node", v)
	}
	props := dbNode.Props

	n := &domain.Node{}
	n.ID, _ = uuid.Parse(stringProp(props, "uuid"))
	n.Kind = domain.NodeKind(stringProp(props, "kind"))
	if labels, ok := props["labels"].([]any); ok {
		for _, l := range labels {
			if s, ok := l.(string); ok {
				n.Labels = append(n.Labels, s)
			}
		}
	}
	if err := decodeJSON(props["props"], &n.Props); err != nil {
		return nil, fmt.Errorf("decode node props: %w", err)
	}
	if raw, ok := props["provenance"].(string); ok && raw != "" {
		var p domain.Provenance
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			n.Provenance = &p
		}
	}
	if emb, ok := props["embedding"].([]any); ok {
		n.Embedding = make([]float32, 0, len(emb))
		for _, x := range emb {
			if f, ok := x.(float64); ok {
				n.Embedding = append(n.Embedding, float32(f))
			}
		}
	}
	n.CreatedAt = parseTime(props["created_at"])
	n.UpdatedAt = parseTime(props["updated_at"])
	return n, nil
}

func edgeFromRecord(rec *neo4j.Record) (*domain.Edge, error) {
	v, ok := rec.Get("r")
	if !ok {
		return nil, fmt.Errorf("record has no relationship")
	}
	rel, ok := v.(dbtype.Relationship)
	if !ok {
		return nil, fmt.Errorf("unexpected type for relationship: got %T, expected dbtype.Relationship", v)
	}
	props := rel.Props

	e := &domain.Edge{}
	e.ID, _ = uuid.Parse(stringProp(props, "uuid"))
	if src, ok := rec.Get("source_id"); ok {
		e.From, _ = uuid.Parse(fmt.Sprint(src))
	}
	if dst, ok := rec.Get("target_id"); ok {
		e.To, _ = uuid.Parse(fmt.Sprint(dst))
	}
	e.Rel = domain.Relation(stringProp(props, "rel"))
	e.Weight, _ = props["weight"].(float64)
	if err := decodeJSON(props["props"], &e.Props); err != nil {
		return nil, fmt.Errorf("decode edge props: %w", err)
	}
	if raw, ok := props["provenance"].(string); ok && raw != "" {
		var p domain.Provenance
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			e.Provenance = &p
		}
	}
	e.CreatedAt = parseTime(props["created_at"])
	e.UpdatedAt = parseTime(props["updated_at"])
	return e, nil
}

func assertionFromRecord(rec *neo4j.Record) (*domain.Assertion, error) {
	v, ok := rec.Get("a")
	if !ok {
		return nil, fmt.Errorf("record has no assertion")
	}
	dbNode, ok := v.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected type for assertion: got %T, expected dbtype.Node", v)
	}
	props := dbNode.Props

	a := &domain.Assertion{}
	a.ID, _ = uuid.Parse(stringProp(props, "uuid"))
	a.Subject = stringProp(props, "subject")
	a.Predicate = stringProp(props, "predicate")
	if err := decodeJSON(props["object"], &a.Object); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	if err := decodeJSON(props["provenance"], &a.Provenance); err != nil {
		return nil, fmt.Errorf("decode provenance: %w", err)
	}
	a.Truth, _ = props["truth"].(float64)
	a.Strength, _ = props["strength"].(float64)
	a.SourceRel, _ = props["source_rel"].(float64)
	if vs, ok := props["vote_score"].(int64); ok {
		a.VoteScore = int(vs)
	}
	a.Status = domain.AssertionStatus(stringProp(props, "status"))
	a.CreatedAt = parseTime(props["created_at"])
	if prev, err := uuid.Parse(stringProp(props, "prev_assertion_id")); err == nil {
		a.PrevAssertionID = &prev
	}
	return a, nil
}

func stringProp(props map[string]any, key string) string {
	s, _ := props[key].(string)
	return s
}

func parseTime(v any) time.Time {
	s, ok := v.(string)
	if !ok {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSON(v any, dst any) error {
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}

func toFloat64s(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
