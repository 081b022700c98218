package theme

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"brandpulse/internal/domain/signal"
	"brandpulse/internal/logging"
	"brandpulse/internal/metrics"
)

// Refresh errors. Both leave the previous snapshot in place.
var (
	ErrInsufficientCorpus = errors.New("insufficient corpus for topic refresh")
	ErrRefreshInProgress  = errors.New("topic refresh already in progress")
)

// TrendRefresher re-derives trend rows after discovered-theme assignments change
type TrendRefresher interface {
	RefreshTrends(ctx context.Context, from, to time.Time) error
}

// RefresherConfig contains configuration for the topic refresher
type RefresherConfig struct {
	Interval     time.Duration
	CorpusWindow time.Duration
	MaxCorpus    int
	MinDocs      int
	MinWeight    float64
	Model        ModelConfig
}

// Refresher periodically refits the topic model over the recent corpus and
// publishes the result as the new committed snapshot. Readers take the
// snapshot through Current and never observe a partial refresh.
type Refresher struct {
	store     signal.Store
	publisher signal.EventPublisher
	trends    TrendRefresher
	model     *TopicModel
	filter    *TermFilter
	config    RefresherConfig
	logger    logging.Logger
	current   atomic.Pointer[signal.TopicSnapshot]
	running   atomic.Bool
	wg        sync.WaitGroup
	now       func() time.Time
}

// NewRefresher creates a new topic refresher
func NewRefresher(
	store signal.Store,
	publisher signal.EventPublisher,
	filter *TermFilter,
	config RefresherConfig,
	logger logging.Logger,
) *Refresher {
	return &Refresher{
		store:     store,
		publisher: publisher,
		model:     NewTopicModel(config.Model, filter),
		filter:    filter,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// SetTrendRefresher registers the component that re-derives trends after a refresh
func (r *Refresher) SetTrendRefresher(t TrendRefresher) {
	r.trends = t
}

// Current returns the latest committed snapshot, or nil before the first fit
func (r *Refresher) Current() *signal.TopicSnapshot {
	return r.current.Load()
}

// Folder returns a folder over the current snapshot
func (r *Refresher) Folder() *Folder {
	return NewFolder(r.current.Load(), r.filter, r.config.Model.Alpha, r.config.MinWeight)
}

// Load reads the latest committed snapshot from the store
func (r *Refresher) Load(ctx context.Context) error {
	snapshot, err := r.store.LatestTopics(ctx)
	if errors.Is(err, signal.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("error loading topic snapshot: %w", err)
	}
	r.current.Store(snapshot)
	return nil
}

// Start runs refreshes on the configured interval until ctx is done
func (r *Refresher) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
					r.logger.WithError(err).Warn("Topic refresh skipped, keeping previous snapshot")
				}
			}
		}
	}()
}

// Wait blocks until the background loop has exited
func (r *Refresher) Wait() {
	r.wg.Wait()
}

// Refresh fits a new topic model over the recent corpus and publishes it.
// Concurrent calls fail fast with ErrRefreshInProgress.
func (r *Refresher) Refresh(ctx context.Context) (*signal.TopicSnapshot, error) {
	if !r.running.CompareAndSwap(false, true) {
		metrics.IncTopicRefresh("in_progress")
		return nil, ErrRefreshInProgress
	}
	defer r.running.Store(false)

	started := r.now()
	since := started.Add(-r.config.CorpusWindow)
	corpus, err := r.store.RecentCorpus(ctx, since, r.config.MaxCorpus)
	if err != nil {
		metrics.IncTopicRefresh("error")
		return nil, fmt.Errorf("error loading corpus: %w", err)
	}
	if len(corpus) < r.config.MinDocs {
		metrics.IncTopicRefresh("insufficient")
		return nil, fmt.Errorf("%w: %d docs, need %d", ErrInsufficientCorpus, len(corpus), r.config.MinDocs)
	}

	model, err := r.model.Fit(ctx, corpus)
	if err != nil {
		if errors.Is(err, ErrInsufficientCorpus) {
			metrics.IncTopicRefresh("insufficient")
		} else {
			metrics.IncTopicRefresh("error")
		}
		return nil, err
	}

	snapshot := NewSnapshot(model, len(corpus), DocumentFrequency(r.filter, corpus), started)
	fitted := make([]string, 0, len(corpus))
	for _, d := range corpus {
		fitted = append(fitted, d.PostID)
	}
	assignments := Assignments(snapshot, model.Theta, r.config.MinWeight)

	if err := r.store.PublishTopics(ctx, snapshot, fitted, assignments); err != nil {
		metrics.IncTopicRefresh("error")
		return nil, fmt.Errorf("error publishing topics: %w", err)
	}
	r.current.Store(&snapshot)
	metrics.IncTopicRefresh("ok")

	r.logger.WithFields(logging.Fields{
		"version":     snapshot.Version,
		"docs":        snapshot.Docs,
		"topics":      len(snapshot.Topics),
		"vocabulary":  len(snapshot.Vocabulary),
		"assignments": len(assignments),
		"duration":    time.Since(started).String(),
	}).Info("Topic snapshot published")

	if r.trends != nil {
		if err := r.trends.RefreshTrends(ctx, since, started); err != nil {
			r.logger.WithError(err).Warn("Error re-deriving trends after topic refresh")
		}
	}
	if r.publisher != nil {
		if err := r.publisher.PublishTopicsRefreshed(ctx, snapshot); err != nil {
			r.logger.WithError(err).Warn("Error publishing topics refreshed event")
		}
	}
	return &snapshot, nil
}
