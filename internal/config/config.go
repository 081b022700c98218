// internal/config/config.go

package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// ErrInvalid marks a fatal configuration error
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration
type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Sentiment   SentimentConfig
	Dedup       DedupConfig
	Theme       ThemeConfig
	Topics      TopicsConfig
	Trend       TrendConfig
	Pipeline    PipelineConfig
	Collect     CollectConfig
	CatalogPath string
	Catalog     *Catalog

	envErrors []error
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CorsOrigins     []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	User         string
	Password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  time.Duration
	SSLMode      string
	SQLitePath   string
}

// NATSConfig holds NATS configuration
type NATSConfig struct {
	URL            string
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
	EventsPrefix   string
}

// SentimentConfig holds combination weights and label thresholds
type SentimentConfig struct {
	LexiconWeight     float64
	PolarityWeight    float64
	PositiveThreshold float64
	NegativeThreshold float64
	AdjustmentBound   float64
}

// DedupConfig holds near-duplicate detection settings
type DedupConfig struct {
	SimilarityThreshold float64
	Window              time.Duration
}

// ThemeConfig holds predefined theme and keyword extraction settings
type ThemeConfig struct {
	MinWeight   float64
	KeywordTopK int
}

// TopicsConfig holds discovered-topic model settings
type TopicsConfig struct {
	Count           int
	MinDocs         int
	MinWeight       float64
	CorpusWindow    time.Duration
	MaxCorpus       int
	RefreshInterval time.Duration
	Iterations      int
	Seed            int64
}

// TrendConfig holds trend aggregation settings
type TrendConfig struct {
	BucketSize time.Duration
}

// PipelineConfig holds orchestrator settings
type PipelineConfig struct {
	Version          string
	CommitMaxRetries int
	CommitBackoff    time.Duration
	CommitMaxBackoff time.Duration
}

// CollectConfig holds built-in collector settings
type CollectConfig struct {
	Enabled  bool
	Interval time.Duration
	Reddit   RedditConfig
	Twitter  TwitterConfig
}

// RedditConfig holds Reddit search collector settings
type RedditConfig struct {
	Enabled      bool
	ClientID     string
	ClientSecret string
	UserAgent    string
	Queries      []string
	Subreddits   []string
	Limit        int
	RateLimit    float64
}

// TwitterConfig holds Twitter recent-search collector settings
type TwitterConfig struct {
	Enabled     bool
	BearerToken string
	Query       string
	MaxResults  int
}

// LoadEnv loads environment variables from local .env files when present
func LoadEnv(logger *logrus.Logger) {
	for _, file := range []string{".env", ".env.local"} {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			if logger != nil {
				logger.WithError(err).Warnf("Failed to load %s", file)
			}
			continue
		}
		if logger != nil {
			logger.Debugf("Loaded env file %s", file)
		}
	}
}

// Load loads configuration from environment variables and the theme catalog
func Load() (Config, error) {
	config := FromEnv()

	catalog, err := LoadCatalog(config.CatalogPath)
	if err != nil {
		return config, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	config.Catalog = catalog

	return config, validate(config)
}

// FromEnv reads every setting from the environment without loading the catalog
func FromEnv() Config {
	env := &envReader{}
	config := Config{
		Environment: getEnv("APP_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CatalogPath: getEnv("CATALOG_PATH", ""),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            env.Int("SERVER_PORT", 8080),
			ReadTimeout:     env.Duration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    env.Duration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: env.Duration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			CorsOrigins:     getEnvAsSlice("SERVER_CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         env.Int("DB_PORT", 5432),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", "postgres"),
			Database:     getEnv("DB_NAME", "brandpulse"),
			MaxOpenConns: env.Int("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: env.Int("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  env.Duration("DB_MAX_LIFETIME", 5*time.Minute),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			SQLitePath:   getEnv("SQLITE_PATH", "./brandpulse.db"),
		},
		NATS: NATSConfig{
			URL:            getEnv("NATS_URL", "nats://localhost:4222"),
			MaxReconnects:  env.Int("NATS_MAX_RECONNECTS", 10),
			ReconnectWait:  env.Duration("NATS_RECONNECT_WAIT", 1*time.Second),
			ConnectTimeout: env.Duration("NATS_CONNECT_TIMEOUT", 2*time.Second),
			EventsPrefix:   getEnv("EVENTS_PREFIX", "brandpulse"),
		},
		Sentiment: SentimentConfig{
			LexiconWeight:     env.Float("SENTIMENT_LEXICON_WEIGHT", 0.6),
			PolarityWeight:    env.Float("SENTIMENT_POLARITY_WEIGHT", 0.4),
			PositiveThreshold: env.Float("SENTIMENT_POSITIVE_THRESHOLD", 0.1),
			NegativeThreshold: env.Float("SENTIMENT_NEGATIVE_THRESHOLD", -0.1),
			AdjustmentBound:   env.Float("SENTIMENT_ADJUSTMENT_BOUND", 0.3),
		},
		Dedup: DedupConfig{
			SimilarityThreshold: env.Float("DEDUP_SIMILARITY_THRESHOLD", 0.9),
			Window:              env.Duration("DEDUP_WINDOW", 24*time.Hour),
		},
		Theme: ThemeConfig{
			MinWeight:   env.Float("THEME_MIN_WEIGHT", 0.05),
			KeywordTopK: env.Int("KEYWORDS_TOP_K", 10),
		},
		Topics: TopicsConfig{
			Count:           env.Int("TOPICS_COUNT", 8),
			MinDocs:         env.Int("TOPICS_MIN_DOCS", 20),
			MinWeight:       env.Float("TOPICS_MIN_WEIGHT", 0.2),
			CorpusWindow:    env.Duration("TOPICS_CORPUS_WINDOW", 30*24*time.Hour),
			MaxCorpus:       env.Int("TOPICS_MAX_CORPUS", 5000),
			RefreshInterval: env.Duration("TOPICS_REFRESH_INTERVAL", 24*time.Hour),
			Iterations:      env.Int("TOPICS_ITERATIONS", 200),
			Seed:            int64(env.Int("TOPICS_SEED", 42)),
		},
		Trend: TrendConfig{
			BucketSize: env.Duration("TREND_BUCKET_SIZE", 24*time.Hour),
		},
		Pipeline: PipelineConfig{
			Version:          getEnv("PIPELINE_VERSION", "1"),
			CommitMaxRetries: env.Int("COMMIT_MAX_RETRIES", 3),
			CommitBackoff:    env.Duration("COMMIT_BACKOFF", 200*time.Millisecond),
			CommitMaxBackoff: env.Duration("COMMIT_MAX_BACKOFF", 5*time.Second),
		},
		Collect: CollectConfig{
			Enabled:  env.Bool("COLLECT_ENABLED", false),
			Interval: env.Duration("COLLECT_INTERVAL", 6*time.Hour),
			Reddit: RedditConfig{
				Enabled:      env.Bool("COLLECT_REDDIT_ENABLED", true),
				ClientID:     getEnv("REDDIT_CLIENT_ID", ""),
				ClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
				UserAgent:    getEnv("REDDIT_USER_AGENT", "brandpulse/1.0"),
				Queries:      getEnvAsSlice("COLLECT_REDDIT_QUERIES", []string{"gusto payroll", "gusto hr"}),
				Subreddits:   getEnvAsSlice("COLLECT_REDDIT_SUBREDDITS", []string{"smallbusiness", "Entrepreneur", "payroll", "humanresources"}),
				Limit:        env.Int("COLLECT_REDDIT_LIMIT", 100),
				RateLimit:    env.Float("COLLECT_REDDIT_RATE", 1.0),
			},
			Twitter: TwitterConfig{
				Enabled:     env.Bool("COLLECT_TWITTER_ENABLED", false),
				BearerToken: getEnv("TWITTER_BEARER_TOKEN", ""),
				Query:       getEnv("COLLECT_TWITTER_QUERY", "gusto payroll -is:retweet lang:en"),
				MaxResults:  env.Int("COLLECT_TWITTER_MAX_RESULTS", 50),
			},
		},
	}
	config.envErrors = env.errs
	return config
}

// validate checks that every domain parameter is usable. Domain parameters
// are never silently defaulted once set to an invalid value.
func validate(config Config) error {
	problems := append([]error(nil), config.envErrors...)
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	s := config.Sentiment
	if !finite(s.LexiconWeight, s.PolarityWeight, s.PositiveThreshold, s.NegativeThreshold, s.AdjustmentBound) {
		fail("sentiment parameters must be finite numbers")
	}
	if s.LexiconWeight < 0 || s.PolarityWeight < 0 {
		fail("sentiment weights must be non-negative")
	}
	if math.Abs(s.LexiconWeight+s.PolarityWeight-1) > 1e-9 {
		fail("sentiment weights must sum to 1, got %.3f", s.LexiconWeight+s.PolarityWeight)
	}
	if s.PositiveThreshold <= s.NegativeThreshold {
		fail("positive threshold %.3f must exceed negative threshold %.3f", s.PositiveThreshold, s.NegativeThreshold)
	}
	if s.PositiveThreshold > 1 || s.NegativeThreshold < -1 {
		fail("sentiment thresholds must lie in [-1, 1]")
	}
	if s.AdjustmentBound < 0 || s.AdjustmentBound > 1 {
		fail("adjustment bound must lie in [0, 1]")
	}

	if config.Dedup.SimilarityThreshold <= 0 || config.Dedup.SimilarityThreshold > 1 {
		fail("dedup similarity threshold must lie in (0, 1]")
	}
	if config.Dedup.Window <= 0 {
		fail("dedup window must be positive")
	}

	if config.Theme.MinWeight < 0 || config.Theme.MinWeight > 1 {
		fail("theme min weight must lie in [0, 1]")
	}
	if config.Theme.KeywordTopK <= 0 {
		fail("keyword count must be positive")
	}

	if config.Topics.Count < 2 {
		fail("topic count must be at least 2")
	}
	if config.Topics.MinDocs < 1 {
		fail("topic min docs must be positive")
	}
	if config.Topics.MinWeight < 0 || config.Topics.MinWeight > 1 {
		fail("topic min weight must lie in [0, 1]")
	}
	if config.Topics.RefreshInterval <= 0 || config.Topics.CorpusWindow <= 0 {
		fail("topic refresh cadence and corpus window must be positive")
	}
	if config.Topics.Iterations <= 0 {
		fail("topic iterations must be positive")
	}

	if config.Trend.BucketSize <= 0 {
		fail("trend bucket size must be positive")
	}
	if config.Pipeline.Version == "" {
		fail("pipeline version must be set")
	}
	if config.Pipeline.CommitMaxRetries < 0 {
		fail("commit retries must be non-negative")
	}

	switch config.Database.Driver {
	case "postgres", "sqlite":
	default:
		fail("unsupported database driver %q", config.Database.Driver)
	}

	if config.Catalog == nil {
		fail("theme catalog is not loaded")
	} else if err := config.Catalog.Validate(); err != nil {
		problems = append(problems, err)
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(problems...))
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// envReader parses typed settings and records every unparsable value so
// that validate can reject it instead of falling back to the default.
type envReader struct {
	errs []error
}

func (e *envReader) invalid(key, kind, value string) {
	e.errs = append(e.errs, fmt.Errorf("%s: invalid %s %q", key, kind, value))
}

func (e *envReader) Int(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		e.invalid(key, "integer", valueStr)
		return defaultValue
	}
	return value
}

func (e *envReader) Float(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		e.invalid(key, "number", valueStr)
		return math.NaN()
	}
	return value
}

func (e *envReader) Bool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		e.invalid(key, "boolean", valueStr)
		return defaultValue
	}
	return value
}

func (e *envReader) Duration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		e.invalid(key, "duration", valueStr)
		return -1
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
