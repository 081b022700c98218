// internal/adapter/collector/collector.go

package collector

import (
	"context"
	"sync"
	"time"

	"brandpulse/internal/domain/signal"
	"brandpulse/internal/logging"
	"brandpulse/internal/metrics"
)

// Collector fetches recent raw posts from one platform
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]signal.RawPost, error)
}

// BatchRunner runs one ingestion batch
type BatchRunner interface {
	RunBatch(ctx context.Context, raws []signal.RawPost) (*signal.BatchReport, error)
}

// Scheduler runs every collector on an interval and feeds the combined
// result into the pipeline as one batch
type Scheduler struct {
	collectors []Collector
	runner     BatchRunner
	interval   time.Duration
	logger     logging.Logger
	wg         sync.WaitGroup
}

// NewScheduler creates a new collection scheduler
func NewScheduler(runner BatchRunner, interval time.Duration, logger logging.Logger, collectors ...Collector) *Scheduler {
	return &Scheduler{
		collectors: collectors,
		runner:     runner,
		interval:   interval,
		logger:     logger,
	}
}

// Start collects immediately and then on every tick until ctx is done
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runLogged(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runLogged(ctx)
			}
		}
	}()
}

// Wait blocks until the background loop has exited
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runLogged(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.logger.WithError(err).Warn("Collection batch failed")
	}
}

// RunOnce collects from every collector concurrently and runs one batch.
// A failing collector is logged and skipped.
func (s *Scheduler) RunOnce(ctx context.Context) (*signal.BatchReport, error) {
	results := make([][]signal.RawPost, len(s.collectors))

	var wg sync.WaitGroup
	for i, c := range s.collectors {
		wg.Add(1)
		go func(i int, c Collector) {
			defer wg.Done()
			posts, err := c.Collect(ctx)
			if err != nil {
				s.logger.WithError(err).WithField("collector", c.Name()).Warn("Collector failed")
				return
			}
			metrics.CollectedPosts.WithLabelValues(c.Name()).Add(float64(len(posts)))
			results[i] = posts
		}(i, c)
	}
	wg.Wait()

	var raws []signal.RawPost
	for _, r := range results {
		raws = append(raws, r...)
	}
	if len(raws) == 0 {
		return &signal.BatchReport{}, nil
	}

	s.logger.WithField("posts", len(raws)).Info("Collected raw posts")
	return s.runner.RunBatch(ctx, raws)
}
