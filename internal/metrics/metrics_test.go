package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsExposure(t *testing.T) {
	BatchRuns.WithLabelValues("ok").Inc()
	PostsProcessed.Add(3)
	IncSkipped("missing_text")
	PostsMerged.Inc()
	IncMethodFailure("lexicon")
	CommitRetries.Inc()
	IncTopicRefresh("ok")
	CollectedPosts.WithLabelValues("reddit").Inc()
	ObserveBatchDuration(time.Now().Add(-250 * time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, m := range []string{
		"brandpulse_batch_runs_total",
		"brandpulse_posts_processed_total",
		"brandpulse_records_skipped_total",
		"brandpulse_posts_merged_total",
		"brandpulse_sentiment_method_failures_total",
		"brandpulse_batch_duration_seconds",
		"brandpulse_commit_retries_total",
		"brandpulse_topic_refreshes_total",
		"brandpulse_collected_posts_total",
	} {
		assert.Contains(t, body, m)
	}
}

func TestLabelledCounters(t *testing.T) {
	before := testutil.ToFloat64(MethodFailures.WithLabelValues("polarity"))
	IncMethodFailure("polarity")
	IncMethodFailure("polarity")
	assert.Equal(t, before+2, testutil.ToFloat64(MethodFailures.WithLabelValues("polarity")))
}
