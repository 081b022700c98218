// internal/adapter/storage/postgres_store.go

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"brandpulse/internal/config"
	"brandpulse/internal/domain/signal"
)

// PostgresStore implements signal.Store on PostgreSQL
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore connects to PostgreSQL and applies the schema
func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	ddl, err := schema("postgres")
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithPool wraps an existing pool without migrating
func NewPostgresStoreWithPool(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the pool
func (s *PostgresStore) Close() {
	s.db.Close()
}

// pgWhere collects optional filter conditions with numbered placeholders
type pgWhere struct {
	conds []string
	args  []interface{}
}

// add appends a condition; each %d in cond receives the next argument index
func (w *pgWhere) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *pgWhere) raw(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *pgWhere) timeRange(column string, from, to time.Time) {
	if !from.IsZero() {
		w.add(column+" >= $%d", from.UTC())
	}
	if !to.IsZero() {
		w.add(column+" < $%d", to.UTC())
	}
}

func (w *pgWhere) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

const pgUpsertPost = `
	INSERT INTO posts (
		id, platform, source_id, author, title, url, raw_text, normalized_text,
		tokens, empty, created_at, likes, shares, comments, score,
		platforms, merged_from, pipeline_version, processed_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8,
		$9, $10, $11, $12, $13, $14, $15,
		$16, $17, $18, $19
	)
	ON CONFLICT (id) DO UPDATE
	SET
		author = $4,
		title = $5,
		url = $6,
		raw_text = $7,
		normalized_text = $8,
		tokens = $9,
		empty = $10,
		created_at = $11,
		likes = $12,
		shares = $13,
		comments = $14,
		score = $15,
		platforms = $16,
		merged_from = $17,
		pipeline_version = $18,
		processed_at = $19
`

const pgUpsertTheme = `
	INSERT INTO themes (id, name, description, kind, terms, version)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (id) DO UPDATE
	SET name = $2, description = $3, kind = $4, terms = $5, version = $6
`

const pgUpsertPostTheme = `
	INSERT INTO post_themes (post_id, theme_id, weight, kind) VALUES ($1, $2, $3, $4)
	ON CONFLICT (post_id, theme_id) DO UPDATE SET weight = $3, kind = $4
`

// CommitBatch writes posts and their derived rows in one transaction
func (s *PostgresStore) CommitBatch(ctx context.Context, batch signal.BatchWrite) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &pgx.Batch{}
	for _, t := range batch.Themes {
		terms, err := encodeStrings(t.Terms)
		if err != nil {
			return fmt.Errorf("error marshaling theme terms: %w", err)
		}
		b.Queue(pgUpsertTheme, t.ID, t.Name, t.Description, string(t.Kind), terms, t.Version)
	}

	processedAt := time.Now().UTC()
	for _, p := range batch.Posts {
		platforms, err := encodeStrings(p.Platforms)
		if err != nil {
			return fmt.Errorf("error marshaling platforms: %w", err)
		}
		mergedFrom, err := encodeStrings(p.MergedFrom)
		if err != nil {
			return fmt.Errorf("error marshaling merged refs: %w", err)
		}
		b.Queue(pgUpsertPost,
			p.ID, p.Platform, p.SourceID, p.Author, p.Title, p.URL, p.RawText, p.NormalizedText,
			joinTokens(p.Tokens), p.Empty, p.CreatedAt.UTC(),
			p.Engagement.Likes, p.Engagement.Shares, p.Engagement.Comments, p.Engagement.Score,
			platforms, mergedFrom, p.PipelineVersion, processedAt,
		)
		for _, table := range []string{"sentiment_results", "post_themes", "post_keywords", "competitor_mentions"} {
			b.Queue("DELETE FROM "+table+" WHERE post_id = $1", p.ID)
		}
	}

	for _, r := range batch.Sentiments {
		failed, err := encodeStrings(r.FailedMethods)
		if err != nil {
			return fmt.Errorf("error marshaling failed methods: %w", err)
		}
		b.Queue(`
			INSERT INTO sentiment_results (
				post_id, lexicon, polarity, subjectivity, adjustment,
				score, label, confidence, degraded, failed_methods, pipeline_version
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			r.PostID, r.Lexicon, r.Polarity, r.Subjectivity, r.Adjustment,
			r.Score, string(r.Label), r.Confidence, r.Degraded, failed, r.PipelineVersion,
		)
	}
	for _, pt := range batch.PostThemes {
		b.Queue(pgUpsertPostTheme, pt.PostID, pt.ThemeID, pt.Weight, string(pt.Kind))
	}
	for _, k := range batch.Keywords {
		b.Queue(`INSERT INTO post_keywords (post_id, term, weight, count) VALUES ($1, $2, $3, $4)`,
			k.PostID, k.Term, k.Weight, k.Count)
	}
	for _, m := range batch.Mentions {
		b.Queue(`INSERT INTO competitor_mentions (post_id, competitor, alias, context, score) VALUES ($1, $2, $3, $4, $5)`,
			m.PostID, m.Competitor, m.Alias, m.Context, m.Score)
	}

	if err := execBatch(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing batch: %w", err)
	}
	return nil
}

func execBatch(ctx context.Context, tx pgx.Tx, b *pgx.Batch) error {
	results := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("error executing batch statement %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("error closing batch: %w", err)
	}
	return nil
}

// ScoredPosts returns processed posts in the scope with their theme ids
func (s *PostgresStore) ScoredPosts(ctx context.Context, scope signal.TrendScope) ([]signal.ScoredPost, error) {
	var w pgWhere
	w.raw("p.processed_at IS NOT NULL")
	w.timeRange("p.created_at", scope.From, scope.To)
	if scope.Platform != "" {
		w.add("p.platform = $%d", scope.Platform)
	}

	query := `
		SELECT
			p.id, p.platform, p.created_at, p.likes + p.shares + p.comments + p.score, s.score, s.label,
			COALESCE(
				(SELECT json_agg(pt.theme_id ORDER BY pt.theme_id) FROM post_themes pt WHERE pt.post_id = p.id),
				'[]'
			)::jsonb
		FROM posts p
		JOIN sentiment_results s ON s.post_id = p.id` + w.String() + `
		ORDER BY p.id
	`

	rows, err := s.db.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var posts []signal.ScoredPost
	for rows.Next() {
		var sp signal.ScoredPost
		var label string
		var themesJSON []byte
		if err := rows.Scan(&sp.PostID, &sp.Platform, &sp.CreatedAt, &sp.Engagement, &sp.Score, &label, &themesJSON); err != nil {
			return nil, fmt.Errorf("error scanning scored post: %w", err)
		}
		sp.CreatedAt = sp.CreatedAt.UTC()
		sp.Label = signal.Label(label)
		if sp.ThemeIDs, err = decodeStrings(themesJSON); err != nil {
			return nil, fmt.Errorf("error unmarshaling theme ids: %w", err)
		}
		posts = append(posts, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scored posts: %w", err)
	}
	return posts, nil
}

// ReplaceTrends overwrites the trend rows of the scope's buckets
func (s *PostgresStore) ReplaceTrends(ctx context.Context, scope signal.TrendScope, trends []signal.SentimentTrend) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var w pgWhere
	w.add("bucket_size = $%d", int64(scope.BucketSize))
	w.timeRange("bucket", scope.From, scope.To)
	if scope.Platform != "" {
		w.add("platform = $%d", scope.Platform)
	}
	if scope.ThemeID != "" {
		w.add("theme_id = $%d", scope.ThemeID)
	}

	b := &pgx.Batch{}
	b.Queue("DELETE FROM sentiment_trends"+w.String(), w.args...)
	for _, t := range trends {
		b.Queue(`
			INSERT INTO sentiment_trends (
				bucket, bucket_size, platform, theme_id, positive_count, neutral_count,
				negative_count, total, mean_score, total_engagement
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			t.Bucket.UTC(), int64(t.BucketSize), t.Platform, t.ThemeID, t.PositiveCount, t.NeutralCount,
			t.NegativeCount, t.Total, t.MeanScore, t.TotalEngagement,
		)
	}
	if err := execBatch(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing trends: %w", err)
	}
	return nil
}

// RecentCorpus returns non-empty processed posts created at or after since
func (s *PostgresStore) RecentCorpus(ctx context.Context, since time.Time, limit int) ([]signal.CorpusDoc, error) {
	query := `
		SELECT id, tokens FROM posts
		WHERE processed_at IS NOT NULL AND NOT empty AND created_at >= $1
		ORDER BY created_at DESC, id
	`
	args := []interface{}{since.UTC()}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var docs []signal.CorpusDoc
	for rows.Next() {
		var d signal.CorpusDoc
		var tokens string
		if err := rows.Scan(&d.PostID, &tokens); err != nil {
			return nil, fmt.Errorf("error scanning corpus doc: %w", err)
		}
		d.Tokens = splitTokens(tokens)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// PublishTopics commits a snapshot and swaps the discovered-theme rows of the fitted posts
func (s *PostgresStore) PublishTopics(ctx context.Context, snapshot signal.TopicSnapshot, fitted []string, assignments []signal.PostTheme) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("error marshaling topic snapshot: %w", err)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &pgx.Batch{}
	b.Queue(`INSERT INTO topic_snapshots (version, fitted_at, docs, payload) VALUES ($1, $2, $3, $4)
		ON CONFLICT (version) DO UPDATE SET
			fitted_at = EXCLUDED.fitted_at,
			docs = EXCLUDED.docs,
			payload = EXCLUDED.payload`,
		snapshot.Version, snapshot.FittedAt.UTC(), snapshot.Docs, payload)
	for _, t := range snapshot.Topics {
		terms, err := encodeStrings(t.Terms)
		if err != nil {
			return fmt.Errorf("error marshaling theme terms: %w", err)
		}
		b.Queue(pgUpsertTheme, t.ID, t.Name, t.Description, string(t.Kind), terms, t.Version)
	}
	if len(fitted) > 0 {
		b.Queue(`DELETE FROM post_themes WHERE kind = $1 AND post_id = ANY($2)`, string(signal.ThemeDiscovered), fitted)
	}
	for _, pt := range assignments {
		b.Queue(pgUpsertPostTheme, pt.PostID, pt.ThemeID, pt.Weight, string(pt.Kind))
	}

	if err := execBatch(ctx, tx, b); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing topic snapshot: %w", err)
	}
	return nil
}

// LatestTopics returns the most recently fitted snapshot
func (s *PostgresStore) LatestTopics(ctx context.Context) (*signal.TopicSnapshot, error) {
	var payload []byte
	err := s.db.QueryRow(ctx,
		`SELECT payload FROM topic_snapshots ORDER BY fitted_at DESC, version DESC LIMIT 1`,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, signal.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying topic snapshot: %w", err)
	}

	var snapshot signal.TopicSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, fmt.Errorf("error unmarshaling topic snapshot: %w", err)
	}
	return &snapshot, nil
}

// PurgePost deletes a post; derived rows cascade
func (s *PostgresStore) PurgePost(ctx context.Context, postID string) (*signal.Post, error) {
	row := s.db.QueryRow(ctx, `DELETE FROM posts p WHERE p.id = $1 RETURNING `+pgPostColumns, postID)
	post, err := scanPgPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, signal.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return post, nil
}

// PostsBetween returns stored posts created in [from, to), oldest first
func (s *PostgresStore) PostsBetween(ctx context.Context, from, to time.Time) ([]signal.Post, error) {
	var w pgWhere
	w.timeRange("p.created_at", from, to)

	rows, err := s.db.Query(ctx, `SELECT `+pgPostColumns+` FROM posts p`+w.String()+` ORDER BY p.created_at, p.id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error executing query: %w", err)
	}
	defer rows.Close()

	var posts []signal.Post
	for rows.Next() {
		p, err := scanPgPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

const pgPostColumns = `
	p.id, p.platform, p.source_id, p.author, p.title, p.url, p.raw_text, p.normalized_text,
	p.tokens, p.empty, p.created_at, p.likes, p.shares, p.comments, p.score,
	p.platforms, p.merged_from, p.pipeline_version`

func scanPgPost(row rowScanner, extra ...interface{}) (*signal.Post, error) {
	var p signal.Post
	var tokens string
	var platformsJSON, mergedJSON []byte

	dest := []interface{}{
		&p.ID, &p.Platform, &p.SourceID, &p.Author, &p.Title, &p.URL, &p.RawText, &p.NormalizedText,
		&tokens, &p.Empty, &p.CreatedAt,
		&p.Engagement.Likes, &p.Engagement.Shares, &p.Engagement.Comments, &p.Engagement.Score,
		&platformsJSON, &mergedJSON, &p.PipelineVersion,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning post: %w", err)
	}

	p.Tokens = splitTokens(tokens)
	p.CreatedAt = p.CreatedAt.UTC()
	var err error
	if p.Platforms, err = decodeStrings(platformsJSON); err != nil {
		return nil, fmt.Errorf("error unmarshaling platforms: %w", err)
	}
	if p.MergedFrom, err = decodeStrings(mergedJSON); err != nil {
		return nil, fmt.Errorf("error unmarshaling merged refs: %w", err)
	}
	return &p, nil
}
