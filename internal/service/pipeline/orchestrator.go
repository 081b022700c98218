package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"brandpulse/internal/domain/signal"
	"brandpulse/internal/logging"
	"brandpulse/internal/metrics"
	"brandpulse/internal/service/competitor"
	"brandpulse/internal/service/sentiment"
	"brandpulse/internal/service/theme"
)

// Config contains configuration for the orchestrator
type Config struct {
	Version          string
	CommitMaxRetries int
	CommitBackoff    time.Duration
	CommitMaxBackoff time.Duration
}

// Skip reasons for input defects
const (
	SkipMissingText      = "missing_text"
	SkipMissingTimestamp = "missing_timestamp"
	SkipMissingSource    = "missing_source"
)

// Orchestrator runs ingestion batches through every pipeline stage and
// commits the results. One batch runs at a time per orchestrator.
type Orchestrator struct {
	store        signal.Store
	publisher    signal.EventPublisher
	components   Components
	config       Config
	logger       logging.Logger
	commitPolicy retrypolicy.RetryPolicy[any]
	mu           sync.Mutex
	now          func() time.Time
}

// NewOrchestrator creates a new orchestrator. publisher may be nil.
func NewOrchestrator(
	store signal.Store,
	publisher signal.EventPublisher,
	components Components,
	config Config,
	logger logging.Logger,
) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		publisher:  publisher,
		components: components,
		config:     config,
		logger:     logger,
		now:        time.Now,
	}
	o.commitPolicy = o.newCommitPolicy()
	return o
}

func (o *Orchestrator) newCommitPolicy() retrypolicy.RetryPolicy[any] {
	backoff := o.config.CommitBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	maxBackoff := o.config.CommitMaxBackoff
	if maxBackoff <= backoff {
		maxBackoff = 2 * backoff
	}
	return retrypolicy.NewBuilder[any]().
		WithBackoff(backoff, maxBackoff).
		WithMaxRetries(o.config.CommitMaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ any, err error) bool {
			return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}).
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			metrics.CommitRetries.Inc()
			o.logger.WithError(e.LastError()).WithField("attempt", e.Attempts()).Warn("Retrying batch commit")
		}).
		Build()
}

// RunBatch validates, normalizes, deduplicates and scores raw posts, then
// commits every derived row in one transaction and re-derives the touched
// trend buckets. Records missing text, timestamp or source are skipped and counted.
func (o *Orchestrator) RunBatch(ctx context.Context, raws []signal.RawPost) (*signal.BatchReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	started := o.now()
	report := &signal.BatchReport{
		BatchID:         uuid.NewString(),
		Received:        len(raws),
		PipelineVersion: o.config.Version,
	}

	posts := make([]signal.Post, 0, len(raws))
	for _, raw := range raws {
		if reason := validate(raw); reason != "" {
			report.Skipped++
			metrics.IncSkipped(reason)
			o.logger.WithFields(logging.Fields{
				"batch_id":  report.BatchID,
				"platform":  raw.Platform,
				"source_id": raw.SourceID,
				"reason":    reason,
			}).Warn("Skipping raw post")
			continue
		}
		posts = append(posts, o.buildPost(raw))
	}

	deduped := o.components.Dedup.Dedup(posts)
	report.Merged = deduped.MergedCount()
	metrics.PostsMerged.Add(float64(report.Merged))
	for _, m := range deduped.Merged {
		o.logger.WithFields(logging.Fields{
			"batch_id":    report.BatchID,
			"survivor":    m.SurvivorRef,
			"merged_refs": m.MergedRefs,
		}).Debug("Merged duplicate posts")
	}

	if err := o.process(ctx, deduped.Posts, report); err != nil {
		metrics.BatchRuns.WithLabelValues("error").Inc()
		return report, err
	}

	report.Duration = o.now().Sub(started)
	metrics.BatchRuns.WithLabelValues("ok").Inc()
	metrics.ObserveBatchDuration(started)

	o.logger.WithFields(logging.Fields{
		"batch_id":   report.BatchID,
		"received":   report.Received,
		"skipped":    report.Skipped,
		"merged":     report.Merged,
		"processed":  report.Processed,
		"degraded":   report.Degraded,
		"mentions":   report.Mentions,
		"trend_rows": report.TrendRows,
	}).Info("Batch committed")

	if o.publisher != nil {
		if err := o.publisher.PublishBatchCompleted(ctx, *report); err != nil {
			o.logger.WithError(err).Warn("Error publishing batch completed event")
		}
	}
	return report, nil
}

// Reprocess re-scores stored posts created in [from, to) with the current
// pipeline version, keeping their merge history.
func (o *Orchestrator) Reprocess(ctx context.Context, from, to time.Time) (*signal.BatchReport, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	started := o.now()
	stored, err := o.store.PostsBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("error loading posts: %w", err)
	}

	report := &signal.BatchReport{
		BatchID:         uuid.NewString(),
		Received:        len(stored),
		PipelineVersion: o.config.Version,
	}
	posts := make([]signal.Post, 0, len(stored))
	for _, p := range stored {
		posts = append(posts, o.renormalize(p))
	}
	if err := o.process(ctx, posts, report); err != nil {
		return report, err
	}
	report.Duration = o.now().Sub(started)

	o.logger.WithFields(logging.Fields{
		"batch_id":  report.BatchID,
		"from":      from,
		"to":        to,
		"processed": report.Processed,
	}).Info("Reprocessed stored posts")
	return report, nil
}

// PurgePost deletes a post with all derived rows and re-derives its trend bucket
func (o *Orchestrator) PurgePost(ctx context.Context, postID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	post, err := o.store.PurgePost(ctx, postID)
	if err != nil {
		return err
	}
	scope, _ := o.components.Aggregator.Scope([]time.Time{post.CreatedAt})
	if _, err := o.refreshTrends(ctx, scope); err != nil {
		return fmt.Errorf("error re-deriving trends: %w", err)
	}
	o.logger.WithField("post_id", postID).Info("Post purged")
	return nil
}

// RefreshTrends recomputes every trend bucket overlapping [from, to)
func (o *Orchestrator) RefreshTrends(ctx context.Context, from, to time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	scope := o.components.Aggregator.ExpandScope(signal.TrendScope{From: from, To: to})
	_, err := o.refreshTrends(ctx, scope)
	return err
}

func (o *Orchestrator) refreshTrends(ctx context.Context, scope signal.TrendScope) (int, error) {
	scored, err := o.store.ScoredPosts(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("error loading scored posts: %w", err)
	}
	trends := o.components.Aggregator.Aggregate(scope, scored)
	if err := o.store.ReplaceTrends(ctx, scope, trends); err != nil {
		return 0, fmt.Errorf("error replacing trends: %w", err)
	}
	return len(trends), nil
}

// process runs the scoring stages, commits the batch and re-derives trends
func (o *Orchestrator) process(ctx context.Context, posts []signal.Post, report *signal.BatchReport) error {
	if len(posts) == 0 {
		return nil
	}

	var folder *theme.Folder
	if o.components.Topics != nil {
		folder = o.components.Topics.Folder()
	}
	write, err := o.score(ctx, posts, folder)
	if err != nil {
		return err
	}
	if folder != nil && folder.Snapshot() != nil {
		report.TopicsVersion = folder.Snapshot().Version
	}

	_, err = failsafe.With[any](o.commitPolicy).WithContext(ctx).Get(func() (any, error) {
		return nil, o.store.CommitBatch(ctx, write)
	})
	if err != nil {
		return fmt.Errorf("error committing batch: %w", err)
	}

	report.Processed = len(write.Posts)
	report.Mentions = len(write.Mentions)
	for _, s := range write.Sentiments {
		if s.Degraded {
			report.Degraded++
		}
	}
	metrics.PostsProcessed.Add(float64(report.Processed))

	times := make([]time.Time, 0, len(posts))
	for _, p := range posts {
		times = append(times, p.CreatedAt)
	}
	scope, _ := o.components.Aggregator.Scope(times)
	rows, err := o.refreshTrends(ctx, scope)
	if err != nil {
		return err
	}
	report.TrendRows = rows
	return nil
}

// score runs sentiment, theme and competitor stages in parallel. Each stage
// writes its own result slice; competitor rows pick up sentiment at the join.
func (o *Orchestrator) score(ctx context.Context, posts []signal.Post, folder *theme.Folder) (signal.BatchWrite, error) {
	n := len(posts)
	sentiments := make([]signal.SentimentResult, n)
	themes := make([][]signal.PostTheme, n)
	matches := make([][]competitor.Match, n)
	var keywords []signal.PostKeyword

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i, p := range posts {
			if err := gctx.Err(); err != nil {
				return err
			}
			sentiments[i] = o.components.Scorer.Score(p.ID, sentiment.Input{
				Cleaned: o.components.Normalizer.Clean(rawContent(p.Title, p.RawText)),
				Text:    p.NormalizedText,
				Tokens:  p.Tokens,
			})
		}
		return nil
	})
	g.Go(func() error {
		docs := make([]theme.Doc, 0, n)
		for i, p := range posts {
			if err := gctx.Err(); err != nil {
				return err
			}
			themes[i] = o.components.Matcher.Match(p.ID, p.Tokens)
			if folder != nil {
				themes[i] = append(themes[i], folder.Assign(p.ID, p.Tokens)...)
			}
			docs = append(docs, theme.Doc{PostID: p.ID, Tokens: p.Tokens})
		}
		var snapshot *signal.TopicSnapshot
		if folder != nil {
			snapshot = folder.Snapshot()
		}
		keywords = o.components.Keywords.Extract(docs, snapshot)
		return nil
	})
	g.Go(func() error {
		for i, p := range posts {
			if err := gctx.Err(); err != nil {
				return err
			}
			matches[i] = o.components.Detector.Detect(p.Tokens)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return signal.BatchWrite{}, err
	}

	write := signal.BatchWrite{
		Posts:      posts,
		Sentiments: sentiments,
		Themes:     o.components.Matcher.Themes(),
		Keywords:   keywords,
	}
	for i, p := range posts {
		write.PostThemes = append(write.PostThemes, themes[i]...)
		write.Mentions = append(write.Mentions, competitor.Mentions(p.ID, matches[i], sentiments[i].Score)...)
	}
	return write, nil
}

func (o *Orchestrator) buildPost(raw signal.RawPost) signal.Post {
	norm := o.components.Normalizer.Normalize(rawContent(raw.Title, raw.Text))
	return signal.Post{
		ID:              signal.PostID(raw.Platform, raw.SourceID),
		Platform:        raw.Platform,
		SourceID:        raw.SourceID,
		Author:          raw.Author,
		Title:           raw.Title,
		URL:             raw.URL,
		RawText:         raw.Text,
		NormalizedText:  norm.Text,
		Tokens:          norm.Tokens,
		Empty:           norm.Empty,
		CreatedAt:       raw.CreatedAt.UTC(),
		Engagement:      raw.Engagement,
		Platforms:       []string{raw.Platform},
		PipelineVersion: o.config.Version,
	}
}

func (o *Orchestrator) renormalize(p signal.Post) signal.Post {
	norm := o.components.Normalizer.Normalize(rawContent(p.Title, p.RawText))
	p.NormalizedText = norm.Text
	p.Tokens = norm.Tokens
	p.Empty = norm.Empty
	p.PipelineVersion = o.config.Version
	if len(p.Platforms) == 0 {
		p.Platforms = []string{p.Platform}
	}
	return p
}

func validate(raw signal.RawPost) string {
	switch {
	case strings.TrimSpace(raw.Platform) == "" || strings.TrimSpace(raw.SourceID) == "":
		return SkipMissingSource
	case strings.TrimSpace(raw.Text) == "" && strings.TrimSpace(raw.Title) == "":
		return SkipMissingText
	case raw.CreatedAt.IsZero():
		return SkipMissingTimestamp
	}
	return ""
}

func rawContent(title, text string) string {
	if title == "" {
		return text
	}
	if text == "" {
		return title
	}
	return title + "\n" + text
}
