// Package scheduler implements tick-based periodic collection. Every
// collector runs on its own ticker at its configured interval; collectors
// never share a tick, so a slow one does not delay the others.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/metricd/internal/collector"
	"github.com/Guliveer/vitalis/metricd/internal/metric"
)

// Observer is told about every completed pass. A nil metrics slice means
// the pass aborted.
type Observer interface {
	ObservePass(collector string, took time.Duration, metrics []metric.Metric)
}

// Scheduler invokes Collect on each registered collector once per interval.
type Scheduler struct {
	registry *collector.Registry
	observer Observer
	logger   *zap.Logger
}

// New creates a new Scheduler with the given registry and logger.
// observer may be nil.
func New(registry *collector.Registry, observer Observer, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		registry: registry,
		observer: observer,
		logger:   logger,
	}
}

// Start runs every collector until ctx is cancelled. It blocks until all
// collector loops have returned.
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, c := range s.registry.Collectors() {
		wg.Add(1)
		go func(c collector.Collector) {
			defer wg.Done()
			s.loop(ctx, c)
		}(c)
	}
	wg.Wait()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, c collector.Collector) {
	interval := Interval(c)
	s.logger.Info("Scheduling collector",
		zap.String("collector", c.Name()),
		zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Do an initial collection immediately
	s.tick(ctx, c)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, c)
		}
	}
}

// tick runs one pass of c and reports it to the observer.
func (s *Scheduler) tick(ctx context.Context, c collector.Collector) []metric.Metric {
	start := time.Now()
	metrics := c.Collect(ctx)
	took := time.Since(start)

	if s.observer != nil {
		s.observer.ObservePass(c.Name(), took, metrics)
	}
	s.logger.Debug("Collection pass finished",
		zap.String("collector", c.Name()),
		zap.Int("metrics", len(metrics)),
		zap.Bool("aborted", metrics == nil),
		zap.Duration("took", took))
	return metrics
}

// RunOnce runs a single pass of every registered collector concurrently and
// returns the metrics keyed by collector name. Aborted passes map to nil.
func (s *Scheduler) RunOnce(ctx context.Context) map[string][]metric.Metric {
	return s.registry.CollectAll(ctx, s.tick)
}

// Interval returns the collection interval configured for c.
func Interval(c collector.Collector) time.Duration {
	return c.Config().Duration("interval", collector.DefaultCollectionInterval)
}
