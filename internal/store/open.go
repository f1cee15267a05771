package store

import (
	"context"
	"fmt"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
	BackendNeo4j    = "neo4j"
)

type Options struct {
	Backend       string
	DatabaseURL   string
	BadgerDir     string
	BadgerMemory  bool
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string
}

// Backend bundles the stores of one storage engine with its lifecycle hooks.
type Backend struct {
	Name       string
	Graph      domain.GraphStore
	Assertions domain.AssertionStore
	Ping       func(ctx context.Context) error
	Close      func()
}

func NewMemoryBackend() *Backend {
	return &Backend{
		Name:       BackendMemory,
		Graph:      NewInMemoryGraphStore(),
		Assertions: NewInMemoryAssertionStore(),
		Ping:       func(context.Context) error { return nil },
		Close:      func() {},
	}
}

// Open builds the configured backend. Postgres tables and neo4j constraints
// are created on first use.
func Open(ctx context.Context, opts Options) (*Backend, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryBackend(), nil

	case BackendPostgres:
		if opts.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
		pool, err := pgxpool.New(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		if err := EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Backend{
			Name:       BackendPostgres,
			Graph:      NewGraphStore(pool),
			Assertions: NewAssertionStore(pool),
			Ping:       pool.Ping,
			Close:      pool.Close,
		}, nil

	case BackendBadger:
		db, err := OpenBadger(BadgerOptions{Dir: opts.BadgerDir, InMemory: opts.BadgerMemory})
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:       BackendBadger,
			Graph:      db.Graph(),
			Assertions: db.Assertions(),
			Ping:       func(context.Context) error { return nil },
			Close:      func() { _ = db.Close() },
		}, nil

	case BackendNeo4j:
		db, err := OpenNeo4j(ctx, opts.Neo4jURI, opts.Neo4jUser, opts.Neo4jPassword, opts.Neo4jDatabase)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Name:       BackendNeo4j,
			Graph:      db.Graph(),
			Assertions: db.Assertions(),
			Ping:       db.Ping,
			Close:      func() { _ = db.Close(context.Background()) },
		}, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
}

var (
	_ domain.GraphStore     = (*InMemoryGraphStore)(nil)
	_ domain.GraphStore     = (*GraphStore)(nil)
	_ domain.GraphStore     = (*BadgerGraphStore)(nil)
	_ domain.GraphStore     = (*Neo4jGraphStore)(nil)
	_ domain.AssertionStore = (*InMemoryAssertionStore)(nil)
	_ domain.AssertionStore = (*AssertionStore)(nil)
	_ domain.AssertionStore = (*BadgerAssertionStore)(nil)
	_ domain.AssertionStore = (*Neo4jAssertionStore)(nil)
)
