package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS kg_nodes (
    seq         BIGSERIAL,
    id          UUID PRIMARY KEY,
    kind        TEXT NOT NULL,
    labels      TEXT[] NOT NULL DEFAULT '{}',
    props       JSONB NOT NULL DEFAULT '{}',
    embedding   vector,
    provenance  JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS kg_nodes_kind_idx ON kg_nodes (kind);
CREATE INDEX IF NOT EXISTS kg_nodes_labels_idx ON kg_nodes USING GIN (labels);

CREATE TABLE IF NOT EXISTS kg_edges (
    seq         BIGSERIAL,
    id          UUID PRIMARY KEY,
    from_id     UUID NOT NULL,
    to_id       UUID NOT NULL,
    rel         TEXT NOT NULL,
    props       JSONB NOT NULL DEFAULT '{}',
    weight      DOUBLE PRECISION NOT NULL DEFAULT 1,
    provenance  JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (from_id, to_id, rel)
);
CREATE INDEX IF NOT EXISTS kg_edges_to_idx ON kg_edges (to_id, rel);

CREATE TABLE IF NOT EXISTS kg_assertions (
    seq                BIGSERIAL,
    id                 UUID PRIMARY KEY,
    subject            TEXT NOT NULL,
    predicate          TEXT NOT NULL,
    object             JSONB NOT NULL,
    truth              DOUBLE PRECISION NOT NULL,
    strength           DOUBLE PRECISION NOT NULL,
    vote_score         INTEGER NOT NULL DEFAULT 0,
    source_rel         DOUBLE PRECISION NOT NULL,
    provenance         JSONB NOT NULL,
    status             TEXT NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL,
    prev_assertion_id  UUID
);
CREATE INDEX IF NOT EXISTS kg_assertions_subject_idx ON kg_assertions (subject, predicate);
`

// EnsureSchema creates the graph tables if they do not exist yet.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
