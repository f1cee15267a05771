package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AssertionStore is the postgres AssertionStore. Rows are insert-only.
type AssertionStore struct {
	db *pgxpool.Pool
}

func NewAssertionStore(db *pgxpool.Pool) *AssertionStore {
	return &AssertionStore{db: db}
}

const assertionColumns = `id, subject, predicate, object, truth, strength, vote_score, source_rel, provenance, status, created_at, prev_assertion_id`

func (s *AssertionStore) Create(ctx context.Context, a *domain.Assertion) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	// Encoded by hand: a bare string is not valid JSON text for pgx.
	object, err := json.Marshal(a.Object)
	if err != nil {
		return fmt.Errorf("encode object: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO kg_assertions (`+assertionColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.Subject, a.Predicate, object, a.Truth, a.Strength, a.VoteScore, a.SourceRel,
		a.Provenance, a.Status, a.CreatedAt, a.PrevAssertionID,
	)
	if err != nil {
		return fmt.Errorf("insert assertion: %w", err)
	}
	return nil
}

func (s *AssertionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Assertion, error) {
	a, err := scanAssertion(s.db.QueryRow(ctx,
		`SELECT `+assertionColumns+` FROM kg_assertions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get assertion: %w", err)
	}
	return a, nil
}

func (s *AssertionStore) List(ctx context.Context, filter domain.AssertionFilter) ([]domain.Assertion, error) {
	var conditions []string
	var args []any

	if filter.Subject != "" {
		args = append(args, filter.Subject)
		conditions = append(conditions, fmt.Sprintf("subject = $%d", len(args)))
	}
	if filter.Predicate != "" {
		args = append(args, filter.Predicate)
		conditions = append(conditions, fmt.Sprintf("predicate = $%d", len(args)))
	}

	query := `SELECT ` + assertionColumns + ` FROM kg_assertions`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assertions: %w", err)
	}
	defer rows.Close()

	var out []domain.Assertion
	for rows.Next() {
		a, err := scanAssertion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assertion: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAssertion(row pgx.Row) (*domain.Assertion, error) {
	a := &domain.Assertion{}
	var object []byte
	if err := row.Scan(&a.ID, &a.Subject, &a.Predicate, &object, &a.Truth, &a.Strength,
		&a.VoteScore, &a.SourceRel, &a.Provenance, &a.Status, &a.CreatedAt, &a.PrevAssertionID); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(object, &a.Object); err != nil {
		return nil, fmt.Errorf("decode object: %w", err)
	}
	return a, nil
}
