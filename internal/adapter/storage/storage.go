// internal/adapter/storage/storage.go

package storage

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"brandpulse/internal/config"
	"brandpulse/internal/domain/signal"
	"brandpulse/internal/logging"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	defaultPostLimit = 100
	topThemesLimit   = 10
)

// Closer releases the resources held by a store
type Closer interface {
	Close()
}

// Open connects the store selected by the database driver and applies the schema
func Open(ctx context.Context, cfg config.DatabaseConfig, logger logging.Logger) (signal.Store, Closer, error) {
	switch cfg.Driver {
	case "postgres":
		store, err := NewPostgresStore(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.WithFields(logging.Fields{
			"host":     cfg.Host,
			"database": cfg.Database,
		}).Info("Connected to postgres")
		return store, store, nil
	case "sqlite":
		store, err := NewSQLiteStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("path", cfg.SQLitePath).Info("Opened sqlite database")
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func schema(driver string) (string, error) {
	data, err := migrations.ReadFile("migrations/" + driver + ".sql")
	if err != nil {
		return "", fmt.Errorf("error reading %s schema: %w", driver, err)
	}
	return string(data), nil
}

// Tokens contain no whitespace, so a space-joined column round-trips them.
func joinTokens(tokens []string) string {
	return strings.Join(tokens, " ")
}

func splitTokens(s string) []string {
	tokens := strings.Fields(s)
	if tokens == nil {
		return []string{}
	}
	return tokens
}

func encodeStrings(v []string) ([]byte, error) {
	if v == nil {
		v = []string{}
	}
	return json.Marshal(v)
}

func decodeStrings(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func postLimit(limit int) int {
	if limit <= 0 {
		return defaultPostLimit
	}
	return limit
}

// summaryBuilder accumulates the dashboard summary from grouped query rows
type summaryBuilder struct {
	summary  signal.Summary
	scoreSum float64
	scored   int
}

func newSummaryBuilder(s signal.Summary) *summaryBuilder {
	s.Platforms = make(map[string]int)
	s.Labels = map[signal.Label]int{
		signal.LabelPositive: 0,
		signal.LabelNeutral:  0,
		signal.LabelNegative: 0,
	}
	s.Competitors = make(map[string]int)
	s.TopThemes = []signal.ThemeCount{}
	return &summaryBuilder{summary: s}
}

func (b *summaryBuilder) addLabel(label string, count int, scoreSum float64) {
	b.summary.Labels[signal.Label(label)] += count
	b.scored += count
	b.scoreSum += scoreSum
}

func (b *summaryBuilder) build() *signal.Summary {
	s := b.summary
	if b.scored > 0 {
		s.MeanScore = b.scoreSum / float64(b.scored)
	}
	if s.TotalPosts > 0 {
		s.CompetitorMentionRate = float64(s.PostsWithCompetitors) / float64(s.TotalPosts)
	}
	sort.SliceStable(s.TopThemes, func(i, j int) bool {
		if s.TopThemes[i].Posts != s.TopThemes[j].Posts {
			return s.TopThemes[i].Posts > s.TopThemes[j].Posts
		}
		return s.TopThemes[i].ThemeID < s.TopThemes[j].ThemeID
	})
	if len(s.TopThemes) > topThemesLimit {
		s.TopThemes = s.TopThemes[:topThemesLimit]
	}
	return &s
}
