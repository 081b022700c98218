// internal/adapter/storage/sqlite_store.go

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"brandpulse/internal/domain/signal"
)

// SQLiteStore implements signal.Store on an embedded SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path and applies the schema.
// ":memory:" gives a private in-process database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite database: %w", err)
	}
	// A single connection keeps writers serialized and ":memory:" shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL; PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error configuring sqlite database: %w", err)
	}
	ddl, err := schema("sqlite")
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error migrating sqlite database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database
func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

func unixNano(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// sqliteWhere collects optional filter conditions with positional arguments
type sqliteWhere struct {
	conds []string
	args  []interface{}
}

func (w *sqliteWhere) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *sqliteWhere) timeRange(column string, from, to time.Time) {
	if !from.IsZero() {
		w.add(column+" >= ?", unixNano(from))
	}
	if !to.IsZero() {
		w.add(column+" < ?", unixNano(to))
	}
}

func (w *sqliteWhere) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// CommitBatch writes posts and their derived rows in one transaction
func (s *SQLiteStore) CommitBatch(ctx context.Context, batch signal.BatchWrite) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range batch.Themes {
		if err := sqliteUpsertTheme(ctx, tx, t); err != nil {
			return err
		}
	}

	processedAt := unixNano(time.Now())
	for _, p := range batch.Posts {
		if err := sqliteUpsertPost(ctx, tx, p, processedAt); err != nil {
			return err
		}
		if err := sqliteDeleteDerived(ctx, tx, p.ID); err != nil {
			return err
		}
	}

	for _, r := range batch.Sentiments {
		failed, err := encodeStrings(r.FailedMethods)
		if err != nil {
			return fmt.Errorf("error marshaling failed methods: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sentiment_results (
				post_id, lexicon, polarity, subjectivity, adjustment,
				score, label, confidence, degraded, failed_methods, pipeline_version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.PostID, r.Lexicon, r.Polarity, r.Subjectivity, r.Adjustment,
			r.Score, string(r.Label), r.Confidence, boolInt(r.Degraded), string(failed), r.PipelineVersion,
		)
		if err != nil {
			return fmt.Errorf("error inserting sentiment result: %w", err)
		}
	}

	for _, pt := range batch.PostThemes {
		if err := sqliteInsertPostTheme(ctx, tx, pt); err != nil {
			return err
		}
	}

	for _, k := range batch.Keywords {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO post_keywords (post_id, term, weight, count) VALUES (?, ?, ?, ?)`,
			k.PostID, k.Term, k.Weight, k.Count,
		)
		if err != nil {
			return fmt.Errorf("error inserting keyword: %w", err)
		}
	}

	for _, m := range batch.Mentions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO competitor_mentions (post_id, competitor, alias, context, score)
			VALUES (?, ?, ?, ?, ?)`,
			m.PostID, m.Competitor, m.Alias, m.Context, m.Score,
		)
		if err != nil {
			return fmt.Errorf("error inserting competitor mention: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing batch: %w", err)
	}
	return nil
}

func sqliteUpsertPost(ctx context.Context, tx *sql.Tx, p signal.Post, processedAt int64) error {
	platforms, err := encodeStrings(p.Platforms)
	if err != nil {
		return fmt.Errorf("error marshaling platforms: %w", err)
	}
	mergedFrom, err := encodeStrings(p.MergedFrom)
	if err != nil {
		return fmt.Errorf("error marshaling merged refs: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (
			id, platform, source_id, author, title, url, raw_text, normalized_text,
			tokens, empty, created_at, likes, shares, comments, score,
			platforms, merged_from, pipeline_version, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			author = excluded.author,
			title = excluded.title,
			url = excluded.url,
			raw_text = excluded.raw_text,
			normalized_text = excluded.normalized_text,
			tokens = excluded.tokens,
			empty = excluded.empty,
			created_at = excluded.created_at,
			likes = excluded.likes,
			shares = excluded.shares,
			comments = excluded.comments,
			score = excluded.score,
			platforms = excluded.platforms,
			merged_from = excluded.merged_from,
			pipeline_version = excluded.pipeline_version,
			processed_at = excluded.processed_at`,
		p.ID, p.Platform, p.SourceID, p.Author, p.Title, p.URL, p.RawText, p.NormalizedText,
		joinTokens(p.Tokens), boolInt(p.Empty), unixNano(p.CreatedAt),
		p.Engagement.Likes, p.Engagement.Shares, p.Engagement.Comments, p.Engagement.Score,
		string(platforms), string(mergedFrom), p.PipelineVersion, processedAt,
	)
	if err != nil {
		return fmt.Errorf("error upserting post: %w", err)
	}
	return nil
}

func sqliteUpsertTheme(ctx context.Context, tx *sql.Tx, t signal.Theme) error {
	terms, err := encodeStrings(t.Terms)
	if err != nil {
		return fmt.Errorf("error marshaling theme terms: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO themes (id, name, description, kind, terms, version)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			kind = excluded.kind,
			terms = excluded.terms,
			version = excluded.version`,
		t.ID, t.Name, t.Description, string(t.Kind), string(terms), t.Version,
	)
	if err != nil {
		return fmt.Errorf("error upserting theme: %w", err)
	}
	return nil
}

func sqliteInsertPostTheme(ctx context.Context, tx *sql.Tx, pt signal.PostTheme) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO post_themes (post_id, theme_id, weight, kind) VALUES (?, ?, ?, ?)
		ON CONFLICT (post_id, theme_id) DO UPDATE SET weight = excluded.weight, kind = excluded.kind`,
		pt.PostID, pt.ThemeID, pt.Weight, string(pt.Kind),
	)
	if err != nil {
		return fmt.Errorf("error inserting post theme: %w", err)
	}
	return nil
}

func sqliteDeleteDerived(ctx context.Context, tx *sql.Tx, postID string) error {
	for _, table := range []string{"sentiment_results", "post_themes", "post_keywords", "competitor_mentions"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE post_id = ?", postID); err != nil {
			return fmt.Errorf("error clearing %s: %w", table, err)
		}
	}
	return nil
}

// ScoredPosts returns processed posts in the scope with their theme ids
func (s *SQLiteStore) ScoredPosts(ctx context.Context, scope signal.TrendScope) ([]signal.ScoredPost, error) {
	var w sqliteWhere
	w.add("p.processed_at IS NOT NULL")
	w.timeRange("p.created_at", scope.From, scope.To)
	if scope.Platform != "" {
		w.add("p.platform = ?", scope.Platform)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.platform, p.created_at, p.likes + p.shares + p.comments + p.score, s.score, s.label
		FROM posts p JOIN sentiment_results s ON s.post_id = p.id`+w.String()+`
		ORDER BY p.id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error querying scored posts: %w", err)
	}
	var posts []signal.ScoredPost
	index := make(map[string]int)
	for rows.Next() {
		var sp signal.ScoredPost
		var createdAt int64
		var label string
		if err := rows.Scan(&sp.PostID, &sp.Platform, &createdAt, &sp.Engagement, &sp.Score, &label); err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning scored post: %w", err)
		}
		sp.CreatedAt = fromUnixNano(createdAt)
		sp.Label = signal.Label(label)
		index[sp.PostID] = len(posts)
		posts = append(posts, sp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating scored posts: %w", err)
	}

	themeRows, err := s.db.QueryContext(ctx, `
		SELECT pt.post_id, pt.theme_id
		FROM post_themes pt JOIN posts p ON p.id = pt.post_id`+w.String()+`
		ORDER BY pt.post_id, pt.theme_id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error querying post themes: %w", err)
	}
	defer themeRows.Close()
	for themeRows.Next() {
		var postID, themeID string
		if err := themeRows.Scan(&postID, &themeID); err != nil {
			return nil, fmt.Errorf("error scanning post theme: %w", err)
		}
		if i, ok := index[postID]; ok {
			posts[i].ThemeIDs = append(posts[i].ThemeIDs, themeID)
		}
	}
	return posts, themeRows.Err()
}

// ReplaceTrends overwrites the trend rows of the scope's buckets
func (s *SQLiteStore) ReplaceTrends(ctx context.Context, scope signal.TrendScope, trends []signal.SentimentTrend) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var w sqliteWhere
	w.add("bucket_size = ?", int64(scope.BucketSize))
	w.timeRange("bucket", scope.From, scope.To)
	if scope.Platform != "" {
		w.add("platform = ?", scope.Platform)
	}
	if scope.ThemeID != "" {
		w.add("theme_id = ?", scope.ThemeID)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sentiment_trends"+w.String(), w.args...); err != nil {
		return fmt.Errorf("error clearing trends: %w", err)
	}

	for _, t := range trends {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sentiment_trends (
				bucket, bucket_size, platform, theme_id, positive_count, neutral_count,
				negative_count, total, mean_score, total_engagement
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			unixNano(t.Bucket), int64(t.BucketSize), t.Platform, t.ThemeID, t.PositiveCount, t.NeutralCount,
			t.NegativeCount, t.Total, t.MeanScore, t.TotalEngagement,
		)
		if err != nil {
			return fmt.Errorf("error inserting trend: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing trends: %w", err)
	}
	return nil
}

// RecentCorpus returns non-empty processed posts created at or after since
func (s *SQLiteStore) RecentCorpus(ctx context.Context, since time.Time, limit int) ([]signal.CorpusDoc, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tokens FROM posts
		WHERE processed_at IS NOT NULL AND empty = 0 AND created_at >= ?
		ORDER BY created_at DESC, id
		LIMIT ?`, unixNano(since), limit)
	if err != nil {
		return nil, fmt.Errorf("error querying corpus: %w", err)
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
func (s *SQLiteStore) PublishTopics(ctx context.Context, snapshot signal.TopicSnapshot, fitted []string, assignments []signal.PostTheme) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("error marshaling topic snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO topic_snapshots (version, fitted_at, docs, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT (version) DO UPDATE SET
			fitted_at = excluded.fitted_at,
			docs = excluded.docs,
			payload = excluded.payload`,
		snapshot.Version, unixNano(snapshot.FittedAt), snapshot.Docs, string(payload),
	)
	if err != nil {
		return fmt.Errorf("error inserting topic snapshot: %w", err)
	}
	for _, t := range snapshot.Topics {
		if err := sqliteUpsertTheme(ctx, tx, t); err != nil {
			return err
		}
	}
	for _, id := range fitted {
		_, err := tx.ExecContext(ctx, `DELETE FROM post_themes WHERE post_id = ? AND kind = ?`, id, string(signal.ThemeDiscovered))
		if err != nil {
			return fmt.Errorf("error clearing discovered themes: %w", err)
		}
	}
	for _, pt := range assignments {
		if err := sqliteInsertPostTheme(ctx, tx, pt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing topic snapshot: %w", err)
	}
	return nil
}

// LatestTopics returns the most recently fitted snapshot
func (s *SQLiteStore) LatestTopics(ctx context.Context) (*signal.TopicSnapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM topic_snapshots ORDER BY fitted_at DESC, version DESC LIMIT 1`,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, signal.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error querying topic snapshot: %w", err)
	}

	var snapshot signal.TopicSnapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return nil, fmt.Errorf("error unmarshaling topic snapshot: %w", err)
	}
	return &snapshot, nil
}

// PurgePost deletes a post and every row derived from it
func (s *SQLiteStore) PurgePost(ctx context.Context, postID string) (*signal.Post, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	post, err := scanSQLitePost(tx.QueryRowContext(ctx, `SELECT `+sqlitePostColumns+` FROM posts p WHERE p.id = ?`, postID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, signal.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := sqliteDeleteDerived(ctx, tx, postID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, postID); err != nil {
		return nil, fmt.Errorf("error deleting post: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing purge: %w", err)
	}
	return post, nil
}

// PostsBetween returns stored posts created in [from, to), oldest first
func (s *SQLiteStore) PostsBetween(ctx context.Context, from, to time.Time) ([]signal.Post, error) {
	var w sqliteWhere
	w.timeRange("p.created_at", from, to)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqlitePostColumns+` FROM posts p`+w.String()+` ORDER BY p.created_at, p.id`, w.args...)
	if err != nil {
		return nil, fmt.Errorf("error querying posts: %w", err)
	}
	defer rows.Close()

	var posts []signal.Post
	for rows.Next() {
		p, err := scanSQLitePost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, *p)
	}
	return posts, rows.Err()
}

const sqlitePostColumns = `
	p.id, p.platform, p.source_id, p.author, p.title, p.url, p.raw_text, p.normalized_text,
	p.tokens, p.empty, p.created_at, p.likes, p.shares, p.comments, p.score,
	p.platforms, p.merged_from, p.pipeline_version`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLitePost(row rowScanner, extra ...interface{}) (*signal.Post, error) {
	var p signal.Post
	var tokens, platforms, mergedFrom string
	var empty int
	var createdAt int64

	dest := []interface{}{
		&p.ID, &p.Platform, &p.SourceID, &p.Author, &p.Title, &p.URL, &p.RawText, &p.NormalizedText,
		&tokens, &empty, &createdAt,
		&p.Engagement.Likes, &p.Engagement.Shares, &p.Engagement.Comments, &p.Engagement.Score,
		&platforms, &mergedFrom, &p.PipelineVersion,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("error scanning post: %w", err)
	}

	p.Tokens = splitTokens(tokens)
	p.Empty = empty != 0
	p.CreatedAt = fromUnixNano(createdAt)
	var err error
	if p.Platforms, err = decodeStrings([]byte(platforms)); err != nil {
		return nil, fmt.Errorf("error unmarshaling platforms: %w", err)
	}
	if p.MergedFrom, err = decodeStrings([]byte(mergedFrom)); err != nil {
		return nil, fmt.Errorf("error unmarshaling merged refs: %w", err)
	}
	return &p, nil
}
