package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// GraphStore is the postgres GraphStore. Embeddings live in a pgvector
// column and are ranked with the cosine distance operator.
type GraphStore struct {
	db *pgxpool.Pool
}

func NewGraphStore(db *pgxpool.Pool) *GraphStore {
	return &GraphStore{db: db}
}

const nodeColumns = `id, kind, labels, props, embedding::text, provenance, created_at, updated_at`

func (s *GraphStore) UpsertNode(ctx context.Context, n *domain.Node, prov domain.Provenance) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if prov.Timestamp.IsZero() {
		prov.Timestamp = time.Now().UTC()
	}

	var embedding *pgvector.Vector
	if len(n.Embedding) > 0 {
		v := pgvector.NewVector(n.Embedding)
		embedding = &v
	}
	props := n.Props
	if props == nil {
		props = map[string]any{}
	}
	labels := n.Labels
	if labels == nil {
		labels = []string{}
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO kg_nodes (id, kind, labels, props, embedding, provenance)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET kind = EXCLUDED.kind,
		     labels = EXCLUDED.labels,
		     props = EXCLUDED.props,
		     embedding = EXCLUDED.embedding,
		     provenance = EXCLUDED.provenance,
		     updated_at = NOW()
		 RETURNING created_at, updated_at`,
		n.ID, n.Kind, labels, props, embedding, prov,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}
	n.Provenance = &prov
	return nil
}

func (s *GraphStore) UpsertEdge(ctx context.Context, e *domain.Edge, prov domain.Provenance) error {
	e.ID = domain.EdgeID(e.From, e.To, e.Rel)
	if prov.Timestamp.IsZero() {
		prov.Timestamp = time.Now().UTC()
	}
	props := e.Props
	if props == nil {
		props = map[string]any{}
	}

	err := s.db.QueryRow(ctx,
		`INSERT INTO kg_edges (id, from_id, to_id, rel, props, weight, provenance)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE
		 SET props = EXCLUDED.props,
		     weight = EXCLUDED.weight,
		     provenance = EXCLUDED.provenance,
		     updated_at = NOW()
		 RETURNING created_at, updated_at`,
		e.ID, e.From, e.To, e.Rel, props, e.Weight, prov,
	).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert edge: %w", err)
	}
	e.Provenance = &prov
	return nil
}

func (s *GraphStore) GetNode(ctx context.Context, id uuid.UUID) (*domain.Node, error) {
	n, err := scanNode(s.db.QueryRow(ctx,
		`SELECT `+nodeColumns+` FROM kg_nodes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get node: %w", err)
	}
	return n, nil
}

func (s *GraphStore) GetEdge(ctx context.Context, from, to uuid.UUID, rel domain.Relation) (*domain.Edge, error) {
	e, err := scanEdge(s.db.QueryRow(ctx,
		`SELECT id, from_id, to_id, rel, props, weight, provenance, created_at, updated_at
		 FROM kg_edges
		 WHERE from_id = $1 AND to_id = $2 AND rel = $3`,
		from, to, rel,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get edge: %w", err)
	}
	return e, nil
}

func (s *GraphStore) DeleteEdge(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM kg_edges WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GraphStore) ListNodes(ctx context.Context, filter domain.NodeFilter) ([]domain.Node, error) {
	var conditions []string
	var args []any

	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conditions = append(conditions, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Label != "" {
		args = append(args, filter.Label)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(labels)", len(args)))
	}

	query := `SELECT ` + nodeColumns + ` FROM kg_nodes`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

func (s *GraphStore) ListEdges(ctx context.Context, filter domain.EdgeFilter) ([]domain.Edge, error) {
	var conditions []string
	var args []any

	if filter.From != nil {
		args = append(args, *filter.From)
		conditions = append(conditions, fmt.Sprintf("from_id = $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conditions = append(conditions, fmt.Sprintf("to_id = $%d", len(args)))
	}
	if filter.Rel != "" {
		args = append(args, string(filter.Rel))
		conditions = append(conditions, fmt.Sprintf("rel = $%d", len(args)))
	}

	query := `SELECT id, from_id, to_id, rel, props, weight, provenance, created_at, updated_at FROM kg_edges`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var edges []domain.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, *e)
	}
	return edges, rows.Err()
}

func (s *GraphStore) Search(ctx context.Context, embedding []float32, topK int, filters domain.SearchFilters) ([]domain.ScoredNode, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	if topK <= 0 {
		topK = 10
	}

	args := []any{pgvector.NewVector(embedding), len(embedding)}
	conditions := []string{"embedding IS NOT NULL", "vector_dims(embedding) = $2"}

	if filters.Kind != "" {
		args = append(args, string(filters.Kind))
		conditions = append(conditions, fmt.Sprintf("n.kind = $%d", len(args)))
	}
	if filters.Label != "" {
		args = append(args, filters.Label)
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(n.labels)", len(args)))
	}
	if filters.CurrentOnly {
		conditions = append(conditions,
			`NOT EXISTS (SELECT 1 FROM kg_edges e WHERE e.from_id = n.id AND e.rel = 'next_version')`)
	}
	args = append(args, topK)

	query := fmt.Sprintf(
		`SELECT id, kind, labels, props, embedding::text, provenance, created_at, updated_at,
		        COALESCE(1 - (embedding <=> $1), 0) AS score
		 FROM kg_nodes n
		 WHERE %s
		 ORDER BY score DESC, seq ASC
		 LIMIT $%d`,
		strings.Join(conditions, " AND "),
		len(args),
	)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []domain.ScoredNode
	for rows.Next() {
		var sn domain.ScoredNode
		var emb *pgvector.Vector
		if err := rows.Scan(&sn.ID, &sn.Kind, &sn.Labels, &sn.Props, &emb, &sn.Provenance,
			&sn.CreatedAt, &sn.UpdatedAt, &sn.Score); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		if emb != nil {
			sn.Embedding = emb.Slice()
		}
		results = append(results, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search rows: %w", err)
	}
	return results, nil
}

func scanNode(row pgx.Row) (*domain.Node, error) {
	n := &domain.Node{}
	var emb *pgvector.Vector
	if err := row.Scan(&n.ID, &n.Kind, &n.Labels, &n.Props, &emb, &n.Provenance,
		&n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	if emb != nil {
		n.Embedding = emb.Slice()
	}
	return n, nil
}

func scanEdge(row pgx.Row) (*domain.Edge, error) {
	e := &domain.Edge{}
	if err := row.Scan(&e.ID, &e.From, &e.To, &e.Rel, &e.Props, &e.Weight, &e.Provenance,
		&e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return e, nil
}
