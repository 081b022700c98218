// internal/adapter/storage/sqlite_reader.go

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"brandpulse/internal/domain/signal"
)

// FindPosts returns posts matching the filter, newest first
func (s *SQLiteStore) FindPosts(ctx context.Context, filter signal.PostFilter) ([]signal.PostView, error) {
	var w sqliteWhere
	w.timeRange("p.created_at", filter.From, filter.To)
	if filter.Platform != "" {
		w.add("p.platform = ?", filter.Platform)
	}
	if filter.ThemeID != "" {
		w.add("EXISTS (SELECT 1 FROM post_themes pt WHERE pt.post_id = p.id AND pt.theme_id = ?)", filter.ThemeID)
	}
	if filter.Label != "" {
		w.add("s.label = ?", string(filter.Label))
	}
	if filter.Competitor != "" {
		w.add("EXISTS (SELECT 1 FROM competitor_mentions m WHERE m.post_id = p.id AND LOWER(m.competitor) = LOWER(?))", filter.Competitor)
	}

	query := `
		SELECT ` + sqlitePostColumns + `,
			s.post_id, s.lexicon, s.polarity, s.subjectivity, s.adjustment, s.score,
			s.label, s.confidence, s.degraded, s.failed_methods, s.pipeline_version
		FROM posts p LEFT JOIN sentiment_results s ON s.post_id = p.id` + w.String() + `
		ORDER BY p.created_at DESC, p.id
		LIMIT ?`
	args := append(w.args, postLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying posts: %w", err)
	}

	var views []signal.PostView
	index := make(map[string]int)
	for rows.Next() {
		var sentimentID, label, failed, version sql.NullString
		var lexicon, polarity, subjectivity, adjustment, score, confidence sql.NullFloat64
		var degraded sql.NullInt64

		p, err := scanSQLitePost(rows,
			&sentimentID, &lexicon, &polarity, &subjectivity, &adjustment, &score,
			&label, &confidence, &degraded, &failed, &version,
		)
		if err != nil {
			rows.Close()
			return nil, err
		}

		view := signal.PostView{Post: *p}
		if sentimentID.Valid {
			failedMethods, err := decodeStrings([]byte(failed.String))
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("error unmarshaling failed methods: %w", err)
			}
			view.Sentiment = &signal.SentimentResult{
				PostID:          sentimentID.String,
				Lexicon:         lexicon.Float64,
				Polarity:        polarity.Float64,
				Subjectivity:    subjectivity.Float64,
				Adjustment:      adjustment.Float64,
				Score:           score.Float64,
				Label:           signal.Label(label.String),
				Confidence:      confidence.Float64,
				Degraded:        degraded.Int64 != 0,
				FailedMethods:   failedMethods,
				PipelineVersion: version.String,
			}
		}
		index[p.ID] = len(views)
		views = append(views, view)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}
	if len(views) == 0 {
		return views, nil
	}

	ids := make([]interface{}, 0, len(views))
	for _, v := range views {
		ids = append(ids, v.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	themeRows, err := s.db.QueryContext(ctx,
		`SELECT post_id, theme_id FROM post_themes WHERE post_id IN (`+placeholders+`) ORDER BY post_id, theme_id`, ids...)
	if err != nil {
		return nil, fmt.Errorf("error querying post themes: %w", err)
	}
	defer themeRows.Close()
	for themeRows.Next() {
		var postID, themeID string
		if err := themeRows.Scan(&postID, &themeID); err != nil {
			return nil, fmt.Errorf("error scanning post theme: %w", err)
		}
		i := index[postID]
		views[i].ThemeIDs = append(views[i].ThemeIDs, themeID)
	}
	return views, themeRows.Err()
}

// FindTrends returns trend rows for the exact platform and theme of the
// filter. Empty values select the "all" rows.
func (s *SQLiteStore) FindTrends(ctx context.Context, filter signal.TrendFilter) ([]signal.SentimentTrend, error) {
	var w sqliteWhere
	w.timeRange("bucket", filter.From, filter.To)
	w.add("platform = ?", filter.Platform)
	w.add("theme_id = ?", filter.ThemeID)

	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket, bucket_size, platform, theme_id, positive_count, neutral_count,
			negative_count, total, mean_score, total_engagement
		FROM sentiment_trends`+w.String()+`
		ORDER BY bucket, bucket_size`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error querying trends: %w", err)
	}
	defer rows.Close()

	var trends []signal.SentimentTrend
	for rows.Next() {
		var t signal.SentimentTrend
		var bucket, size int64
		if err := rows.Scan(&bucket, &size, &t.Platform, &t.ThemeID, &t.PositiveCount, &t.NeutralCount,
			&t.NegativeCount, &t.Total, &t.MeanScore, &t.TotalEngagement); err != nil {
			return nil, fmt.Errorf("error scanning trend: %w", err)
		}
		t.Bucket = fromUnixNano(bucket)
		t.BucketSize = time.Duration(size)
		trends = append(trends, t)
	}
	return trends, rows.Err()
}

// ListThemes returns predefined themes first, then discovered topics
func (s *SQLiteStore) ListThemes(ctx context.Context) ([]signal.Theme, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, kind, terms, version FROM themes
		ORDER BY CASE kind WHEN 'predefined' THEN 0 ELSE 1 END, id`)
	if err != nil {
		return nil, fmt.Errorf("error querying themes: %w", err)
	}
	defer rows.Close()

	var themes []signal.Theme
	for rows.Next() {
		var t signal.Theme
		var kind, terms string
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &kind, &terms, &t.Version); err != nil {
			return nil, fmt.Errorf("error scanning theme: %w", err)
		}
		t.Kind = signal.ThemeKind(kind)
		if t.Terms, err = decodeStrings([]byte(terms)); err != nil {
			return nil, fmt.Errorf("error unmarshaling theme terms: %w", err)
		}
		themes = append(themes, t)
	}
	return themes, rows.Err()
}

// FindMentions returns competitor mentions matching the filter, newest first
func (s *SQLiteStore) FindMentions(ctx context.Context, filter signal.MentionFilter) ([]signal.CompetitorMention, error) {
	var w sqliteWhere
	w.timeRange("p.created_at", filter.From, filter.To)
	if filter.Competitor != "" {
		w.add("LOWER(m.competitor) = LOWER(?)", filter.Competitor)
	}
	if filter.Platform != "" {
		w.add("p.platform = ?", filter.Platform)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.post_id, m.competitor, m.alias, m.context, m.score
		FROM competitor_mentions m JOIN posts p ON p.id = m.post_id`+w.String()+`
		ORDER BY p.created_at DESC, m.post_id, m.competitor`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error querying competitor mentions: %w", err)
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
func (s *SQLiteStore) Summarize(ctx context.Context, from, to time.Time) (*signal.Summary, error) {
	var w sqliteWhere
	w.add("p.processed_at IS NOT NULL")
	w.timeRange("p.created_at", from, to)
	b := newSummaryBuilder(signal.Summary{From: from, To: to})

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(p.likes + p.shares + p.comments + p.score), 0)
		FROM posts p`+w.String(), w.args...).Scan(&b.summary.TotalPosts, &b.summary.TotalEngagement)
	if err != nil {
		return nil, fmt.Errorf("error counting posts: %w", err)
	}

	err = s.scanGroups(ctx, `SELECT p.platform, COUNT(*) FROM posts p`+w.String()+` GROUP BY p.platform`, w.args,
		func(rows *sql.Rows) error {
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
		func(rows *sql.Rows) error {
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
		func(rows *sql.Rows) error {
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
		func(rows *sql.Rows) error {
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

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT m.post_id)
		FROM competitor_mentions m JOIN posts p ON p.id = m.post_id`+w.String(), w.args...,
	).Scan(&b.summary.PostsWithCompetitors)
	if err != nil {
		return nil, fmt.Errorf("error counting competitor posts: %w", err)
	}

	return b.build(), nil
}

func (s *SQLiteStore) scanGroups(ctx context.Context, query string, args []interface{}, scan func(*sql.Rows) error) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
