package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var ErrAssertionNotFound = errors.New("assertion not found")

// timeNow is swapped in tests.
var timeNow = time.Now

type AssertionService struct {
	store  domain.AssertionStore
	policy ScoringPolicy
	logger *zap.Logger
}

func NewAssertionService(store domain.AssertionStore, policy ScoringPolicy, logger *zap.Logger) *AssertionService {
	return &AssertionService{store: store, policy: policy, logger: logger}
}

func (s *AssertionService) Policy() ScoringPolicy {
	return s.policy
}

// CreateAssertionInput leaves the confidence signals optional. Each defaults
// to 1.
type CreateAssertionInput struct {
	Subject         string
	Predicate       string
	Object          any
	Truth           *float64
	Strength        *float64
	SourceRel       *float64
	VoteScore       int
	Source          string
	TraceID         string
	Status          domain.AssertionStatus
	PrevAssertionID *uuid.UUID
}

// Create validates and stores a new assertion. Out-of-range signals are
// rejected rather than clamped.
func (s *AssertionService) Create(ctx context.Context, in CreateAssertionInput) (*domain.Assertion, error) {
	subject := strings.TrimSpace(in.Subject)
	if subject == "" {
		return nil, domain.MissingField("subject")
	}
	predicate := strings.TrimSpace(in.Predicate)
	if predicate == "" {
		return nil, domain.MissingField("predicate")
	}
	if in.Object == nil {
		return nil, domain.MissingField("object")
	}
	if str, ok := in.Object.(string); ok && strings.TrimSpace(str) == "" {
		return nil, domain.MissingField("object")
	}

	truth, err := unitValue("truth", in.Truth, 1)
	if err != nil {
		return nil, err
	}
	strength, err := unitValue("strength", in.Strength, 1)
	if err != nil {
		return nil, err
	}
	sourceRel, err := unitValue("source_rel", in.SourceRel, 1)
	if err != nil {
		return nil, err
	}

	status := in.Status
	if status == "" {
		status = domain.AssertionActive
	}
	if !domain.ValidAssertionStatus(string(status)) {
		return nil, domain.InvalidValue("status", "unknown status: "+string(status))
	}

	if in.PrevAssertionID != nil {
		prev, err := s.store.GetByID(ctx, *in.PrevAssertionID)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			return nil, domain.NotFound("assertion", in.PrevAssertionID.String())
		}
		if prev.Subject != subject || prev.Predicate != predicate {
			return nil, domain.InvariantViolation("previous assertion must share subject and predicate")
		}
	}

	source := in.Source
	if source == "" {
		source = string(domain.SourceUser)
	}
	now := timeNow().UTC()

	a := &domain.Assertion{
		ID:        uuid.New(),
		Subject:   subject,
		Predicate: predicate,
		Object:    in.Object,
		Truth:     truth,
		Strength:  strength,
		VoteScore: in.VoteScore,
		SourceRel: sourceRel,
		Provenance: domain.Provenance{
			Source:     source,
			Timestamp:  now,
			Confidence: truth,
			TraceID:    in.TraceID,
		},
		Status:          status,
		CreatedAt:       now,
		PrevAssertionID: in.PrevAssertionID,
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}

	s.logger.Debug("assertion created",
		zap.String("assertion_id", a.ID.String()),
		zap.String("subject", subject),
		zap.String("predicate", predicate))
	return a, nil
}

func (s *AssertionService) Get(ctx context.Context, id uuid.UUID) (*domain.Assertion, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAssertionNotFound
	}
	return a, nil
}

func (s *AssertionService) List(ctx context.Context, filter domain.AssertionFilter) ([]domain.Assertion, error) {
	return s.store.List(ctx, filter)
}

// Resolve reads the subject's assertions once and resolves them against the
// current time. Assertions written after the read are not seen.
func (s *AssertionService) Resolve(ctx context.Context, subject string) (*domain.Resolution, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, domain.MissingField("subject")
	}
	assertions, err := s.store.List(ctx, domain.AssertionFilter{Subject: subject})
	if err != nil {
		return nil, err
	}
	return Resolve(subject, assertions, s.policy, timeNow()), nil
}

// Snapshot returns the resolved value per predicate. A subject with no
// assertions yields an empty map.
func (s *AssertionService) Snapshot(ctx context.Context, subject string) (map[string]any, error) {
	res, err := s.Resolve(ctx, subject)
	if err != nil {
		return nil, err
	}
	return res.Values(), nil
}

// Evidence returns the ranked candidates per predicate, or for one predicate
// when it is set.
func (s *AssertionService) Evidence(ctx context.Context, subject, predicate string) (map[string][]domain.EvidenceItem, error) {
	res, err := s.Resolve(ctx, subject)
	if err != nil {
		return nil, err
	}
	if predicate == "" {
		return res.Evidence, nil
	}
	out := map[string][]domain.EvidenceItem{}
	if items, ok := res.Evidence[predicate]; ok {
		out[predicate] = items
	}
	return out, nil
}

func unitValue(field string, v *float64, def float64) (float64, error) {
	if v == nil {
		return def, nil
	}
	if math.IsNaN(*v) || *v < 0 || *v > 1 {
		return 0, domain.OutOfRange(field, *v, 0, 1)
	}
	return *v, nil
}
