// internal/adapter/storage/postgres_reader.go

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"brandpulse/internal/domain/signal"
)

// FindPosts returns posts matching the filter, newest first
func (s *PostgresStore) FindPosts(ctx context.Context, filter signal.PostFilter) ([]signal.PostView, error) {
	var w pgWhere
	w.timeRange("p.created_at", filter.From, filter.To)
	if filter.Platform != "" {
		w.add("p.platform = $%d", filter.Platform)
	}
	if filter.ThemeID != "" {
		w.add("EXISTS (SELECT 1 FROM post_themes pt WHERE pt.post_id = p.id AND pt.theme_id = $%d)", filter.ThemeID)
	}
	if filter.Label != "" {
		w.add("s.label = $%d", string(filter.Label))
	}
	if filter.Competitor != "" {
		w.add("EXISTS (SELECT 1 FROM competitor_mentions m WHERE m.post_id = p.id AND LOWER(m.competitor) = LOWER($%d))", filter.Competitor)
	}
	args := append(w.args, postLimit(filter.Limit))

	query := fmt.Sprintf(`
		SELECT `+pgPostColumns+`,
			s.post_id, s.lexicon, s.polarity, s.subjectivity, s.adjustment, s.score,
			s.label, s.confidence, s.degraded, s.failed_methods, s.pipeline_version,
			COALESCE(
				(SELECT json_agg(pt.theme_id ORDER BY pt.theme_id) FROM post_themes pt WHERE pt.post_id = p.id),
				'[]'
			)::jsonb
		FROM posts p
		LEFT JOIN sentiment_results s ON s.post_id = p.id`+w.String()+`
		ORDER BY p.created_at DESC, p.id
		LIMIT $%d
	`, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var views []signal.PostView
	for rows.Next() {
		var sentimentID, label, version *string
		var lexicon, polarity, subjectivity, adjustment, score, confidence *float64
		var degraded *bool
		var failedJSON, themesJSON []byte

		p, err := scanPgPost(rows,
			&sentimentID, &lexicon, &polarity, &subjectivity, &adjustment, &score,
			&label, &confidence, &degraded, &failedJSON, &version, &themesJSON,
		)
		if err != nil {
			return nil, err
		}

		view := signal.PostView{Post: *p}
		if view.ThemeIDs, err = decodeStrings(themesJSON); err != nil {
			return nil, fmt.Errorf("error unmarshaling theme ids: %w", err)
		}
		if sentimentID != nil {
			failed, err := decodeStrings(failedJSON)
			if err != nil {
				return nil, fmt.Errorf("error unmarshaling failed methods: %w", err)
			}
			view.Sentiment = &signal.SentimentResult{
				PostID:          *sentimentID,
				Lexicon:         *lexicon,
				Polarity:        *polarity,
				Subjectivity:    *subjectivity,
				Adjustment:      *adjustment,
				Score:           *score,
				Label:           signal.Label(*label),
				Confidence:      *confidence,
				Degraded:        *degraded,
				FailedMethods:   failed,
				PipelineVersion: *version,
			}
		}
		views = append(views, view)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}
	return views, nil
}

// FindTrends returns trend rows for the exact platform and theme of the
// filter. Empty values select the "all" rows.
func (s *PostgresStore) FindTrends(ctx context.Context, filter signal.TrendFilter) ([]signal.SentimentTrend, error) {
	var w pgWhere
	w.timeRange("bucket", filter.From, filter.To)
	w.add("platform = $%d", filter.Platform)
	w.add("theme_id = $%d", filter.ThemeID)

	rows, err := s.db.Query(ctx, `
		SELECT bucket, bucket_size, platform, theme_id, positive_count, neutral_count,
			negative_count, total, mean_score, total_engagement
		FROM sentiment_trends`+w.String()+`
		ORDER BY bucket, bucket_size
	`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var trends []signal.SentimentTrend
	for rows.Next() {
		var t signal.SentimentTrend
		var size int64
		if err := rows.Scan(&t.Bucket, &size, &t.Platform, &t.ThemeID, &t.PositiveCount, &t.NeutralCount,
			&t.NegativeCount, &t.Total, &t.MeanScore, &t.TotalEngagement); err != nil {
			return nil, fmt.Errorf("error scanning trend: %w", err)
		}
		t.Bucket = t.Bucket.UTC()
		t.BucketSize = time.Duration(size)
		trends = append(trends, t)
	}
	return trends, rows.Err()
}

// ListThemes returns predefined themes first, then discovered topics
func (s *PostgresStore) ListThemes(ctx context.Context) ([]signal.Theme, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, description, kind, terms, version FROM themes
		ORDER BY CASE kind WHEN 'predefined' THEN 0 ELSE 1 END, id
	`)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var themes []signal.Theme
	for rows.Next() {
		var t signal.Theme
		var kind string
		var termsJSON []byte
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &kind, &termsJSON, &t.Version); err != nil {
			return nil, fmt.Errorf("error scanning theme: %w", err)
		}
		t.Kind = signal.ThemeKind(kind)
		if t.Terms, err = decodeStrings(termsJSON); err != nil {
			return nil, fmt.Errorf("error unmarshaling theme terms: %w", err)
		}
		themes = append(themes, t)
	}
	return themes, rows.Err()
}

// FindMentions returns competitor mentions matching the filter, newest first
func (s *PostgresStore) FindMentions(ctx context.Context, filter signal.MentionFilter) ([]signal.CompetitorMention, error) {
	var w pgWhere
	w.timeRange("p.created_at", filter.From, filter.To)
	if filter.Competitor != "" {
		w.add("LOWER(m.competitor) = LOWER($%d)", filter.Competitor)
	}
	if filter.Platform != "" {
		w.add("p.platform = $%d", filter.Platform)
	}

	rows, err := s.db.Query(ctx, `
		SELECT m.post_id, m.competitor, m.alias, m.context, m.score
		FROM competitor_mentions m JOIN posts p ON p.id = m.post_id`+w.String()+`
		ORDER BY p.created_at DESC, m.post_id, m.competitor
	`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var mentions []signal.CompetitorMention
	for rows.Next() {
		var m signal.CompetitorMention
		if err := rows.Scan(&m.PostID, &m.Competitor, &m.Alias, &m.Context, &m.Score); err != nil {
			return nil, fmt.Errorf("error scanning competitor mention: %w", err)
		}
		mentions = append(mentions, m)
	}
	return mentions, rows.Err()
}

// Summarize builds the dashboard overview for processed posts in [from, to)
func (s *PostgresStore) Summarize(ctx context.Context, from, to time.Time) (*signal.Summary, error) {
	var w pgWhere
	w.raw("p.processed_at IS NOT NULL")
	w.timeRange("p.created_at", from, to)
	b := newSummaryBuilder(signal.Summary{From: from, To: to})

	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(p.likes + p.shares + p.comments + p.score), 0)::BIGINT
		FROM posts p`+w.String(), w.args...,
	).Scan(&b.summary.TotalPosts, &b.summary.TotalEngagement)
	if err != nil {
		return nil, fmt.Errorf("error counting posts: %w", err)
	}

	err = s.scanGroups(ctx, `SELECT p.platform, COUNT(*) FROM posts p`+w.String()+` GROUP BY p.platform`, w.args,
		func(rows pgx.Rows) error {
			var platform string
			var n int
			if err := rows.Scan(&platform, &n); err != nil {
				return err
			}
			b.summary.Platforms[platform] = n
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("error summarizing platforms: %w", err)
	}

	err = s.scanGroups(ctx, `
		SELECT s.label, COUNT(*), SUM(s.score)
		FROM posts p JOIN sentiment_results s ON s.post_id = p.id`+w.String()+`
		GROUP BY s.label`, w.args,
		func(rows pgx.Rows) error {
			var label string
			var n int
			var sum float64
			if err := rows.Scan(&label, &n, &sum); err != nil {
				return err
			}
			b.addLabel(label, n, sum)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("error summarizing labels: %w", err)
	}

	err = s.scanGroups(ctx, `
		SELECT pt.theme_id, COALESCE(t.name, pt.theme_id), COUNT(DISTINCT pt.post_id)
		FROM post_themes pt
		JOIN posts p ON p.id = pt.post_id
		LEFT JOIN themes t ON t.id = pt.theme_id`+w.String()+`
		GROUP BY pt.theme_id, t.name`, w.args,
		func(rows pgx.Rows) error {
			var tc signal.ThemeCount
			if err := rows.Scan(&tc.ThemeID, &tc.Name, &tc.Posts); err != nil {
				return err
			}
			b.summary.TopThemes = append(b.summary.TopThemes, tc)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("error summarizing themes: %w", err)
	}

	err = s.scanGroups(ctx, `
		SELECT m.competitor, COUNT(DISTINCT m.post_id)
		FROM competitor_mentions m JOIN posts p ON p.id = m.post_id`+w.String()+`
		GROUP BY m.competitor`, w.args,
		func(rows pgx.Rows) error {
			var name string
			var n int
			if err := rows.Scan(&name, &n); err != nil {
				return err
			}
			b.summary.Competitors[name] = n
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("error summarizing competitors: %w", err)
	}

	err = s.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT m.post_id)
		FROM competitor_mentions m JOIN posts p ON p.id = m.post_id`+w.String(), w.args...,
	).Scan(&b.summary.PostsWithCompetitors)
	if err != nil {
		return nil, fmt.Errorf("error counting competitor posts: %w", err)
	}

	return b.build(), nil
}

func (s *PostgresStore) scanGroups(ctx context.Context, query string, args []interface{}, scan func(pgx.Rows) error) error {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
