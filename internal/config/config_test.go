package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Sentiment.LexiconWeight)
	assert.Equal(t, 0.4, cfg.Sentiment.PolarityWeight)
	assert.Equal(t, 0.1, cfg.Sentiment.PositiveThreshold)
	assert.Equal(t, -0.1, cfg.Sentiment.NegativeThreshold)
	assert.Equal(t, 0.9, cfg.Dedup.SimilarityThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Dedup.Window)
	assert.Equal(t, 0.05, cfg.Theme.MinWeight)
	assert.Equal(t, 10, cfg.Theme.KeywordTopK)
	assert.Equal(t, 24*time.Hour, cfg.Trend.BucketSize)

	require.NotNil(t, cfg.Catalog)
	assert.Len(t, cfg.Catalog.Themes, 10)
	_, ok := cfg.Catalog.ThemeByID("pricing_cost")
	assert.True(t, ok)
}

func TestLoadRejectsInvalidDomainParameters(t *testing.T) {
	cases := map[string]string{
		"SENTIMENT_LEXICON_WEIGHT":     "0.9",
		"SENTIMENT_POSITIVE_THRESHOLD": "-0.5",
		"SENTIMENT_NEGATIVE_THRESHOLD": "abc",
		"DEDUP_SIMILARITY_THRESHOLD":   "1.5",
		"DEDUP_WINDOW":                 "soon",
		"KEYWORDS_TOP_K":               "0",
		"TOPICS_COUNT":                 "1",
		"TREND_BUCKET_SIZE":            "0s",
		"DB_DRIVER":                    "mysql",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadRejectsUnparsableValues(t *testing.T) {
	cases := map[string]string{
		"KEYWORDS_TOP_K":     "ten",
		"TOPICS_COUNT":       "eight",
		"TOPICS_MIN_DOCS":    "twenty",
		"TOPICS_ITERATIONS":  "1e3",
		"TOPICS_SEED":        "random",
		"COMMIT_MAX_RETRIES": "many",
		"COLLECT_ENABLED":    "maybe",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv("DB_DRIVER", "sqlite")
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), key)
		})
	}
}

func TestLoadRejectsEmptyAliasTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "test"
themes:
  - id: pricing
    terms: [price]
competitors: []
`), 0o600))
	t.Setenv("CATALOG_PATH", path)

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "competitor alias table is empty")
}

func TestLoadMissingCatalogFile(t *testing.T) {
	t.Setenv("CATALOG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParseCatalogLowercases(t *testing.T) {
	c, err := ParseCatalog([]byte(`
version: "v1"
themes:
  - id: support
    terms: ["Support ", "Help Desk"]
competitors:
  - name: Zenefits
    aliases: [Zenefits]
phrases: []
`))
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	assert.Equal(t, []string{"support", "help desk"}, c.Themes[0].Terms)
	assert.Equal(t, []string{"zenefits"}, c.Competitors[0].Aliases)
	assert.Empty(t, c.Phrases)
}

func TestGetEnvAsSliceTrims(t *testing.T) {
	t.Setenv("SERVER_CORS_ORIGINS", "http://a.test, http://b.test ,")
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, getEnvAsSlice("SERVER_CORS_ORIGINS", nil))
}
