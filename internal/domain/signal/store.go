package signal

import (
	"context"
	"time"
)

// Store defines persistence for posts and every entity derived from them
type Store interface {
	// CommitBatch writes posts and all their derived rows in one transaction.
	// A post is marked processed only inside that transaction.
	CommitBatch(ctx context.Context, batch BatchWrite) error

	// ScoredPosts returns processed posts whose timestamp falls in the scope
	ScoredPosts(ctx context.Context, scope TrendScope) ([]ScoredPost, error)

	// ReplaceTrends overwrites every trend row of the scope's buckets
	ReplaceTrends(ctx context.Context, scope TrendScope, trends []SentimentTrend) error

	// RecentCorpus returns tokenized posts created at or after since
	RecentCorpus(ctx context.Context, since time.Time, limit int) ([]CorpusDoc, error)

	// PublishTopics commits a topic snapshot and its themes, replacing the
	// discovered-theme rows of every fitted post with the new assignments
	PublishTopics(ctx context.Context, snapshot TopicSnapshot, fitted []string, assignments []PostTheme) error

	// LatestTopics returns the most recently committed topic snapshot
	LatestTopics(ctx context.Context) (*TopicSnapshot, error)

	// PurgePost deletes a post and all rows derived from it
	PurgePost(ctx context.Context, postID string) (*Post, error)

	// PostsBetween returns stored posts created in [from, to), oldest first
	PostsBetween(ctx context.Context, from, to time.Time) ([]Post, error)

	Reader
}

// Reader defines the read-only queries exposed to the presentation layer
type Reader interface {
	FindPosts(ctx context.Context, filter PostFilter) ([]PostView, error)
	FindTrends(ctx context.Context, filter TrendFilter) ([]SentimentTrend, error)
	ListThemes(ctx context.Context) ([]Theme, error)
	FindMentions(ctx context.Context, filter MentionFilter) ([]CompetitorMention, error)
	Summarize(ctx context.Context, from, to time.Time) (*Summary, error)
}

// EventPublisher announces pipeline outcomes to other services
type EventPublisher interface {
	PublishBatchCompleted(ctx context.Context, report BatchReport) error
	PublishTopicsRefreshed(ctx context.Context, snapshot TopicSnapshot) error
}

// BatchReport summarizes one pipeline run
type BatchReport struct {
	BatchID         string        `json:"batch_id"`
	Received        int           `json:"received"`
	Skipped         int           `json:"skipped"`
	Merged          int           `json:"merged"`
	Processed       int           `json:"processed"`
	Degraded        int           `json:"degraded"`
	Mentions        int           `json:"mentions"`
	TrendRows       int           `json:"trend_rows"`
	TopicsVersion   string        `json:"topics_version,omitempty"`
	PipelineVersion string        `json:"pipeline_version"`
	Duration        time.Duration `json:"duration"`
}
