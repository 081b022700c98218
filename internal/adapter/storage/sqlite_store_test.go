package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandpulse/internal/domain/signal"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

var day = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func testPost(platform, sourceID, text string, at time.Time) signal.Post {
	return signal.Post{
		ID:              signal.PostID(platform, sourceID),
		Platform:        platform,
		SourceID:        sourceID,
		RawText:         text,
		NormalizedText:  text,
		Tokens:          splitTokens(text),
		CreatedAt:       at,
		Engagement:      signal.Engagement{Likes: 3, Comments: 1},
		Platforms:       []string{platform},
		PipelineVersion: "v1",
	}
}

func testBatch() signal.BatchWrite {
	p1 := testPost("reddit", "a1", "payroll is too expensive", day.Add(2*time.Hour))
	p2 := testPost("twitter", "b2", "switched from adp and love it", day.Add(5*time.Hour))
	p2.MergedFrom = []string{"reddit:c3"}
	p2.Platforms = []string{"reddit", "twitter"}

	return signal.BatchWrite{
		Posts: []signal.Post{p1, p2},
		Sentiments: []signal.SentimentResult{
			{PostID: p1.ID, Score: -0.4, Label: signal.LabelNegative, Confidence: 0.8, PipelineVersion: "v1"},
			{PostID: p2.ID, Score: 0.6, Label: signal.LabelPositive, Confidence: 0.9, Degraded: true, FailedMethods: []string{"polarity"}, PipelineVersion: "v1"},
		},
		Themes: []signal.Theme{
			{ID: "pricing_cost", Name: "Pricing", Kind: signal.ThemePredefined, Terms: []string{"expensive"}, Version: "c1"},
			{ID: "migration", Name: "Migration", Kind: signal.ThemePredefined, Terms: []string{"switched"}, Version: "c1"},
		},
		PostThemes: []signal.PostTheme{
			{PostID: p1.ID, ThemeID: "pricing_cost", Weight: 0.5, Kind: signal.ThemePredefined},
			{PostID: p2.ID, ThemeID: "migration", Weight: 0.25, Kind: signal.ThemePredefined},
		},
		Keywords: []signal.PostKeyword{
			{PostID: p1.ID, Term: "payroll", Weight: 0.7, Count: 1},
		},
		Mentions: []signal.CompetitorMention{
			{PostID: p2.ID, Competitor: "ADP", Alias: "adp", Context: "switched from adp and love it", Score: 0.6},
		},
	}
}

func TestSQLiteCommitBatchAndFindPosts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	batch := testBatch()
	require.NoError(t, store.CommitBatch(ctx, batch))

	views, err := store.FindPosts(ctx, signal.PostFilter{})
	require.NoError(t, err)
	require.Len(t, views, 2)

	// newest first
	assert.Equal(t, "twitter", views[0].Platform)
	assert.Equal(t, []string{"reddit", "twitter"}, views[0].Platforms)
	assert.Equal(t, []string{"reddit:c3"}, views[0].MergedFrom)
	assert.Equal(t, []string{"migration"}, views[0].ThemeIDs)
	require.NotNil(t, views[0].Sentiment)
	assert.True(t, views[0].Sentiment.Degraded)
	assert.Equal(t, []string{"polarity"}, views[0].Sentiment.FailedMethods)
	assert.Equal(t, day.Add(5*time.Hour), views[0].CreatedAt)
	assert.Equal(t, []string{"switched", "from", "adp", "and", "love", "it"}, views[0].Tokens)

	byLabel, err := store.FindPosts(ctx, signal.PostFilter{Label: signal.LabelNegative})
	require.NoError(t, err)
	require.Len(t, byLabel, 1)
	assert.Equal(t, "reddit", byLabel[0].Platform)

	byCompetitor, err := store.FindPosts(ctx, signal.PostFilter{Competitor: "adp"})
	require.NoError(t, err)
	require.Len(t, byCompetitor, 1)
	assert.Equal(t, "twitter", byCompetitor[0].Platform)

	byTheme, err := store.FindPosts(ctx, signal.PostFilter{ThemeID: "pricing_cost"})
	require.NoError(t, err)
	require.Len(t, byTheme, 1)

	limited, err := store.FindPosts(ctx, signal.PostFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteRecommitReplacesDerivedRows(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	batch := testBatch()
	require.NoError(t, store.CommitBatch(ctx, batch))
	require.NoError(t, store.CommitBatch(ctx, batch))

	mentions, err := store.FindMentions(ctx, signal.MentionFilter{})
	require.NoError(t, err)
	assert.Len(t, mentions, 1)

	batch.Mentions = nil
	require.NoError(t, store.CommitBatch(ctx, batch))
	mentions, err = store.FindMentions(ctx, signal.MentionFilter{})
	require.NoError(t, err)
	assert.Empty(t, mentions)

	themes, err := store.ListThemes(ctx)
	require.NoError(t, err)
	assert.Len(t, themes, 2)
}

func TestSQLiteScoredPostsAndTrends(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.CommitBatch(ctx, testBatch()))

	scope := signal.TrendScope{From: day, To: day.Add(24 * time.Hour), BucketSize: 24 * time.Hour}
	scored, err := store.ScoredPosts(ctx, scope)
	require.NoError(t, err)
	require.Len(t, scored, 2)
	for _, sp := range scored {
		assert.Equal(t, int64(4), sp.Engagement)
		assert.Len(t, sp.ThemeIDs, 1)
	}

	onlyReddit, err := store.ScoredPosts(ctx, signal.TrendScope{From: day, To: day.Add(24 * time.Hour), Platform: "reddit"})
	require.NoError(t, err)
	assert.Len(t, onlyReddit, 1)

	trends := []signal.SentimentTrend{
		{Bucket: day, BucketSize: 24 * time.Hour, Total: 2, PositiveCount: 1, NegativeCount: 1, MeanScore: 0.1, TotalEngagement: 8},
		{Bucket: day, BucketSize: 24 * time.Hour, Platform: "reddit", Total: 1, NegativeCount: 1, MeanScore: -0.4, TotalEngagement: 4},
	}
	require.NoError(t, store.ReplaceTrends(ctx, scope, trends))
	require.NoError(t, store.ReplaceTrends(ctx, scope, trends[:1]))

	all, err := store.FindTrends(ctx, signal.TrendFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, day, all[0].Bucket)
	assert.Equal(t, 24*time.Hour, all[0].BucketSize)
	assert.Equal(t, 2, all[0].Total)
	assert.InDelta(t, 0.1, all[0].MeanScore, 1e-12)

	reddit, err := store.FindTrends(ctx, signal.TrendFilter{Platform: "reddit"})
	require.NoError(t, err)
	assert.Empty(t, reddit)
}

func TestSQLiteTopicSnapshots(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.LatestTopics(ctx)
	assert.ErrorIs(t, err, signal.ErrNotFound)

	batch := testBatch()
	require.NoError(t, store.CommitBatch(ctx, batch))

	corpus, err := store.RecentCorpus(ctx, day, 0)
	require.NoError(t, err)
	require.Len(t, corpus, 2)

	corpus, err = store.RecentCorpus(ctx, day.Add(3*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, corpus, 1)

	snapshot := signal.TopicSnapshot{
		Version:     "s1",
		FittedAt:    day.Add(6 * time.Hour),
		Docs:        2,
		Topics:      []signal.Theme{{ID: "topic_s1_0", Name: "payroll", Kind: signal.ThemeDiscovered, Version: "s1"}},
		Vocabulary:  []string{"payroll"},
		TermWeights: [][]float64{{1}},
	}
	p1 := batch.Posts[0].ID
	assignments := []signal.PostTheme{{PostID: p1, ThemeID: "topic_s1_0", Weight: 0.9, Kind: signal.ThemeDiscovered}}
	require.NoError(t, store.PublishTopics(ctx, snapshot, []string{p1}, assignments))
	// republishing the same version replaces it
	require.NoError(t, store.PublishTopics(ctx, snapshot, []string{p1}, assignments))

	latest, err := store.LatestTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", latest.Version)
	assert.Equal(t, [][]float64{{1}}, latest.TermWeights)

	views, err := store.FindPosts(ctx, signal.PostFilter{ThemeID: "topic_s1_0"})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, []string{"pricing_cost", "topic_s1_0"}, views[0].ThemeIDs)

	second := snapshot
	second.Version = "s2"
	second.FittedAt = day.Add(7 * time.Hour)
	second.Topics = []signal.Theme{{ID: "topic_s2_0", Name: "taxes", Kind: signal.ThemeDiscovered, Version: "s2"}}
	require.NoError(t, store.PublishTopics(ctx, second, []string{p1}, nil))

	latest, err = store.LatestTopics(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s2", latest.Version)

	views, err = store.FindPosts(ctx, signal.PostFilter{ThemeID: "topic_s1_0"})
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestSQLitePurgePost(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	batch := testBatch()
	require.NoError(t, store.CommitBatch(ctx, batch))

	purged, err := store.PurgePost(ctx, batch.Posts[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "b2", purged.SourceID)

	mentions, err := store.FindMentions(ctx, signal.MentionFilter{})
	require.NoError(t, err)
	assert.Empty(t, mentions)

	_, err = store.PurgePost(ctx, batch.Posts[1].ID)
	assert.ErrorIs(t, err, signal.ErrNotFound)

	posts, err := store.PostsBetween(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "a1", posts[0].SourceID)
}

func TestSQLiteSummarize(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.CommitBatch(ctx, testBatch()))

	summary, err := store.Summarize(ctx, day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalPosts)
	assert.Equal(t, int64(8), summary.TotalEngagement)
	assert.Equal(t, map[string]int{"reddit": 1, "twitter": 1}, summary.Platforms)
	assert.Equal(t, 1, summary.Labels[signal.LabelPositive])
	assert.Equal(t, 1, summary.Labels[signal.LabelNegative])
	assert.Equal(t, 0, summary.Labels[signal.LabelNeutral])
	assert.InDelta(t, 0.1, summary.MeanScore, 1e-12)
	assert.Equal(t, 1, summary.PostsWithCompetitors)
	assert.InDelta(t, 0.5, summary.CompetitorMentionRate, 1e-12)
	assert.Equal(t, map[string]int{"ADP": 1}, summary.Competitors)
	require.Len(t, summary.TopThemes, 2)
	assert.Equal(t, "migration", summary.TopThemes[0].ThemeID)
	assert.Equal(t, "Pricing", summary.TopThemes[1].Name)

	empty, err := store.Summarize(ctx, day.Add(48*time.Hour), day.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, empty.TotalPosts)
	assert.Zero(t, empty.CompetitorMentionRate)
	assert.NotNil(t, empty.TopThemes)
}
