package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockAssertionStore mocks domain.AssertionStore.
type MockAssertionStore struct {
	mock.Mock
}

func (m *MockAssertionStore) Create(ctx context.Context, a *domain.Assertion) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockAssertionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Assertion, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Assertion), args.Error(1)
}

func (m *MockAssertionStore) List(ctx context.Context, filter domain.AssertionFilter) ([]domain.Assertion, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Assertion), args.Error(1)
}

func TestCreateAssertionValidation(t *testing.T) {
	tests := []struct {
		name string
		in   CreateAssertionInput
		kind domain.ErrorKind
	}{
		{"missing subject", CreateAssertionInput{Predicate: "p", Object: "o"}, domain.KindMissingField},
		{"missing predicate", CreateAssertionInput{Subject: "s", Object: "o"}, domain.KindMissingField},
		{"missing object", CreateAssertionInput{Subject: "s", Predicate: "p"}, domain.KindMissingField},
		{"blank object", CreateAssertionInput{Subject: "s", Predicate: "p", Object: " "}, domain.KindMissingField},
		{"truth above one", CreateAssertionInput{Subject: "s", Predicate: "p", Object: "o", Truth: ptr(1.5)}, domain.KindOutOfRange},
		{"negative truth", CreateAssertionInput{Subject: "s", Predicate: "p", Object: "o", Truth: ptr(-0.1)}, domain.KindOutOfRange},
		{"nan truth", CreateAssertionInput{Subject: "s", Predicate: "p", Object: "o", Truth: ptr(math.NaN())}, domain.KindOutOfRange},
		{"strength", CreateAssertionInput{Subject: "s", Predicate: "p", Object: "o", Strength: ptr(2.0)}, domain.KindOutOfRange},
		{"source rel", CreateAssertionInput{Subject: "s", Predicate: "p", Object: "o", SourceRel: ptr(-1.0)}, domain.KindOutOfRange},
		{"status", CreateAssertionInput{Subject: "s", Predicate: "p", Object: "o", Status: "maybe"}, domain.KindOutOfRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := new(MockAssertionStore)
			svc := NewAssertionService(ms, DefaultScoringPolicy(), zap.NewNop())

			_, err := svc.Create(context.Background(), tt.in)
			assertKind(t, err, tt.kind)
			ms.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateAssertionDefaults(t *testing.T) {
	ms := new(MockAssertionStore)
	ms.On("Create", mock.Anything, mock.AnythingOfType("*domain.Assertion")).Return(nil)
	svc := NewAssertionService(ms, DefaultScoringPolicy(), zap.NewNop())

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stepClock(t, start, time.Second)

	a, err := svc.Create(context.Background(), CreateAssertionInput{
		Subject:   " Alice ",
		Predicate: "age",
		Object:    30,
		TraceID:   "trace-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Alice", a.Subject)
	assert.Equal(t, 1.0, a.Truth)
	assert.Equal(t, 1.0, a.Strength)
	assert.Equal(t, 1.0, a.SourceRel)
	assert.Equal(t, domain.AssertionActive, a.Status)
	assert.Equal(t, string(domain.SourceUser), a.Provenance.Source)
	assert.Equal(t, "trace-1", a.Provenance.TraceID)
	assert.Equal(t, start, a.CreatedAt)
	ms.AssertExpectations(t)
}

func TestCreateAssertionStoreError(t *testing.T) {
	ms := new(MockAssertionStore)
	ms.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	svc := NewAssertionService(ms, DefaultScoringPolicy(), zap.NewNop())

	_, err := svc.Create(context.Background(), CreateAssertionInput{Subject: "s", Predicate: "p", Object: "o"})
	assert.EqualError(t, err, "disk full")
}

func TestCreateAssertionPrevious(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.claims.Create(ctx, CreateAssertionInput{Subject: "Alice", Predicate: "city", Object: "Paris"})
	require.NoError(t, err)

	second, err := env.claims.Create(ctx, CreateAssertionInput{Subject: "Alice", Predicate: "city", Object: "Lyon", PrevAssertionID: &first.ID})
	require.NoError(t, err)
	assert.Equal(t, first.ID, *second.PrevAssertionID)

	_, err = env.claims.Create(ctx, CreateAssertionInput{Subject: "Alice", Predicate: "age", Object: 3, PrevAssertionID: &first.ID})
	assertKind(t, err, domain.KindInvariantViolation)

	_, err = env.claims.Create(ctx, CreateAssertionInput{Subject: "Alice", Predicate: "city", Object: "Nice", PrevAssertionID: ptr(uuid.New())})
	assertKind(t, err, domain.KindNotFound)
}

func TestAssertionGetAndList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a, err := env.claims.Create(ctx, CreateAssertionInput{Subject: "Alice", Predicate: "city", Object: "Paris"})
	require.NoError(t, err)
	_, err = env.claims.Create(ctx, CreateAssertionInput{Subject: "Bob", Predicate: "city", Object: "Rome"})
	require.NoError(t, err)

	got, err := env.claims.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Paris", got.Object)

	_, err = env.claims.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrAssertionNotFound)

	list, err := env.claims.List(ctx, domain.AssertionFilter{Predicate: "city"})
	require.NoError(t, err)
	assert.Len(t, list, 2)
	list, err = env.claims.List(ctx, domain.AssertionFilter{Subject: "Bob"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Rome", list[0].Object)
}

func TestSnapshotOfUnknownSubjectIsEmpty(t *testing.T) {
	env := newTestEnv(t)

	snap, err := env.claims.Snapshot(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, snap)
	assert.NotNil(t, snap)

	_, err = env.claims.Snapshot(context.Background(), "")
	assertKind(t, err, domain.KindMissingField)
}

func TestConflictingStatusEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	stepClock(t, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), time.Second)

	person := env.prototype(t, "Person")
	alice := env.concept(t, person, map[string]any{"name": "Alice"})
	assert.Equal(t, "Alice", alice.DisplayName())

	active, err := env.claims.Create(ctx, CreateAssertionInput{Subject: "Alice", Predicate: "status", Object: "active", Truth: ptr(0.8)})
	require.NoError(t, err)
	pending, err := env.claims.Create(ctx, CreateAssertionInput{Subject: "Alice", Predicate: "status", Object: "pending", Truth: ptr(0.8)})
	require.NoError(t, err)

	snap, err := env.claims.Snapshot(ctx, "Alice")
	require.NoError(t, err)
	assert.Equal(t, "pending", snap["status"])

	ev, err := env.claims.Evidence(ctx, "Alice", "status")
	require.NoError(t, err)
	require.Len(t, ev["status"], 2)
	assert.Equal(t, pending.ID, ev["status"][0].AssertionID)
	assert.Equal(t, active.ID, ev["status"][1].AssertionID)
	assert.GreaterOrEqual(t, ev["status"][0].Score, ev["status"][1].Score)

	ev, err = env.claims.Evidence(ctx, "Alice", "mood")
	require.NoError(t, err)
	assert.Empty(t, ev)
}
