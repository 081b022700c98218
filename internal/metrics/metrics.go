package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	BatchRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brandpulse_batch_runs_total",
		Help: "Total pipeline batch runs by result",
	}, []string{"result"})
	PostsProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandpulse_posts_processed_total",
		Help: "Total posts committed by the pipeline",
	})
	RecordsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brandpulse_records_skipped_total",
		Help: "Raw records skipped for input defects",
	}, []string{"reason"})
	PostsMerged = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandpulse_posts_merged_total",
		Help: "Posts merged into a surviving duplicate",
	})
	MethodFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brandpulse_sentiment_method_failures_total",
		Help: "Sentiment method failures that degraded a result",
	}, []string{"method"})
	BatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "brandpulse_batch_duration_seconds",
		Help:    "Pipeline batch duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	CommitRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "brandpulse_commit_retries_total",
		Help: "Total batch commit retry attempts",
	})
	TopicRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brandpulse_topic_refreshes_total",
		Help: "Topic model refreshes by result",
	}, []string{"result"})
	CollectedPosts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "brandpulse_collected_posts_total",
		Help: "Raw posts fetched by collectors",
	}, []string{"platform"})
)

func init() {
	prometheus.MustRegister(
		BatchRuns,
		PostsProcessed,
		RecordsSkipped,
		PostsMerged,
		MethodFailures,
		BatchDuration,
		CommitRetries,
		TopicRefreshes,
		CollectedPosts,
	)
}

// Handler returns the HTTP handler serving the default registry
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveBatchDuration records a run duration
func ObserveBatchDuration(start time.Time) {
	BatchDuration.Observe(time.Since(start).Seconds())
}

// IncMethodFailure increments the failure counter for a sentiment method
func IncMethodFailure(method string) { MethodFailures.WithLabelValues(method).Inc() }

// IncSkipped increments the skipped-record counter for a defect reason
func IncSkipped(reason string) { RecordsSkipped.WithLabelValues(reason).Inc() }

// IncTopicRefresh increments the refresh counter for a result
func IncTopicRefresh(result string) { TopicRefreshes.WithLabelValues(result).Inc() }
