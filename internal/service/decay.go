package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	defaultDecayInterval = 1 * time.Hour
	decayPassTimeout     = 5 * time.Minute
)

// DecayScheduler runs HebbianGraph.DecayAll on a ticker.
type DecayScheduler struct {
	graph  *HebbianGraph
	logger *zap.Logger

	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewDecayScheduler(graph *HebbianGraph, logger *zap.Logger) *DecayScheduler {
	return &DecayScheduler{
		graph:    graph,
		logger:   logger,
		interval: defaultDecayInterval,
		stopCh:   make(chan struct{}),
	}
}

// SetInterval must be called before Start. Non-positive values are ignored.
func (s *DecayScheduler) SetInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

func (s *DecayScheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("decay worker started", zap.Duration("interval", s.interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), decayPassTimeout)
				s.RunDecay(ctx)
				cancel()
			case <-s.stopCh:
				s.logger.Info("decay worker stopped")
				return
			}
		}
	}()
}

// Stop is safe to call more than once.
func (s *DecayScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// RunDecay runs one pass and logs failures instead of returning them.
func (s *DecayScheduler) RunDecay(ctx context.Context) {
	if _, err := s.graph.DecayAll(ctx); err != nil {
		s.logger.Error("decay pass failed", zap.Error(err))
	}
}
