package pipeline

import (
	"fmt"

	"brandpulse/internal/config"
	"brandpulse/internal/logging"
	"brandpulse/internal/service/aggregate"
	"brandpulse/internal/service/competitor"
	"brandpulse/internal/service/dedup"
	"brandpulse/internal/service/normalize"
	"brandpulse/internal/service/sentiment"
	"brandpulse/internal/service/theme"
)

// TopicSource hands out a folder over the latest committed topic snapshot
type TopicSource interface {
	Folder() *theme.Folder
}

// Components holds the pipeline stages
type Components struct {
	Normalizer *normalize.Normalizer
	Dedup      *dedup.Deduplicator
	Scorer     *sentiment.Scorer
	Matcher    *theme.Matcher
	Keywords   *theme.KeywordExtractor
	Topics     TopicSource
	Detector   *competitor.Detector
	Aggregator *aggregate.Aggregator
}

// NewComponents builds every stage from configuration
func NewComponents(cfg config.Config, topics TopicSource, logger logging.Logger) (Components, error) {
	scorer, err := sentiment.NewDefaultScorer(sentiment.Config{
		LexiconWeight:     cfg.Sentiment.LexiconWeight,
		PolarityWeight:    cfg.Sentiment.PolarityWeight,
		PositiveThreshold: cfg.Sentiment.PositiveThreshold,
		NegativeThreshold: cfg.Sentiment.NegativeThreshold,
		AdjustmentBound:   cfg.Sentiment.AdjustmentBound,
		PipelineVersion:   cfg.Pipeline.Version,
	}, cfg.Catalog.Phrases, logger)
	if err != nil {
		return Components{}, fmt.Errorf("error creating sentiment scorer: %w", err)
	}

	filter := theme.NewTermFilter(cfg.Catalog.Stopwords)
	return Components{
		Normalizer: normalize.New(),
		Dedup: dedup.NewDeduplicator(dedup.Config{
			SimilarityThreshold: cfg.Dedup.SimilarityThreshold,
			Window:              cfg.Dedup.Window,
		}),
		Scorer:     scorer,
		Matcher:    theme.NewMatcher(cfg.Catalog, cfg.Theme.MinWeight),
		Keywords:   theme.NewKeywordExtractor(filter, cfg.Theme.KeywordTopK),
		Topics:     topics,
		Detector:   competitor.NewDetector(cfg.Catalog, competitor.DefaultContextWindow),
		Aggregator: aggregate.NewAggregator(cfg.Trend.BucketSize),
	}, nil
}

// RefresherConfig maps configuration onto the topic refresher settings
func RefresherConfig(cfg config.Config) theme.RefresherConfig {
	model := theme.DefaultModelConfig()
	model.Topics = cfg.Topics.Count
	model.Iterations = cfg.Topics.Iterations
	model.Seed = cfg.Topics.Seed
	return theme.RefresherConfig{
		Interval:     cfg.Topics.RefreshInterval,
		CorpusWindow: cfg.Topics.CorpusWindow,
		MaxCorpus:    cfg.Topics.MaxCorpus,
		MinDocs:      cfg.Topics.MinDocs,
		MinWeight:    cfg.Topics.MinWeight,
		Model:        model,
	}
}
