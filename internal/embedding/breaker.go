package embedding

import (
	"context"
	"time"

	"github.com/Harshitk-cp/protomind/internal/domain"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Breaker guards an EmbeddingClient with a circuit breaker. Once open it
// fails fast with gobreaker.ErrOpenState until the timeout elapses.
type Breaker struct {
	client domain.EmbeddingClient
	cb     *gobreaker.CircuitBreaker
}

func NewBreaker(client domain.EmbeddingClient, name string, logger *zap.Logger) *Breaker {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("embedding circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}
	return &Breaker{client: client, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *Breaker) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.client.Embed(ctx, text)
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// State reports the breaker state for health output.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
