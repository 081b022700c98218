package signal

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Label is the discrete sentiment class attached to a post
type Label string

// Sentiment labels
const (
	LabelNegative Label = "negative"
	LabelNeutral  Label = "neutral"
	LabelPositive Label = "positive"
)

// ThemeKind distinguishes catalog themes from topic-model themes
type ThemeKind string

// Theme kinds
const (
	ThemePredefined ThemeKind = "predefined"
	ThemeDiscovered ThemeKind = "discovered"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
)

// postNamespace scopes post ids so that the same platform/source pair always
// maps to the same Post id across runs.
var postNamespace = uuid.MustParse("6f1c2a8e-4b7d-5e39-9a61-0c2d8b4f7e15")

// Engagement holds platform engagement counters. Missing values are zero.
type Engagement struct {
	Likes    int64 `json:"likes"`
	Shares   int64 `json:"shares"`
	Comments int64 `json:"comments"`
	Score    int64 `json:"score"`
}

// Sum returns the total engagement used for tie-breaks and trend totals
func (e Engagement) Sum() int64 {
	return e.Likes + e.Shares + e.Comments + e.Score
}

// RawPost is one record produced by a collector
type RawPost struct {
	Platform   string     `json:"platform"`
	SourceID   string     `json:"source_id"`
	Author     string     `json:"author,omitempty"`
	Title      string     `json:"title,omitempty"`
	Text       string     `json:"text"`
	URL        string     `json:"url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	Engagement Engagement `json:"engagement"`
}

// Ref returns the source reference used for audit trails
func (r RawPost) Ref() string {
	return SourceRef(r.Platform, r.SourceID)
}

// SourceRef builds the "platform:source_id" audit reference
func SourceRef(platform, sourceID string) string {
	return platform + ":" + sourceID
}

// PostID derives the deterministic Post id for a platform/source pair
func PostID(platform, sourceID string) string {
	return uuid.NewSHA1(postNamespace, []byte(SourceRef(platform, sourceID))).String()
}

// Post is the root entity of the pipeline
type Post struct {
	ID              string     `json:"id"`
	Platform        string     `json:"platform"`
	SourceID        string     `json:"source_id"`
	Author          string     `json:"author,omitempty"`
	Title           string     `json:"title,omitempty"`
	URL             string     `json:"url,omitempty"`
	RawText         string     `json:"raw_text"`
	NormalizedText  string     `json:"normalized_text"`
	Tokens          []string   `json:"-"`
	Empty           bool       `json:"empty"`
	CreatedAt       time.Time  `json:"created_at"`
	Engagement      Engagement `json:"engagement"`
	Platforms       []string   `json:"platforms"`
	MergedFrom      []string   `json:"merged_from,omitempty"`
	PipelineVersion string     `json:"pipeline_version"`
}

// Ref returns the audit reference of the post
func (p Post) Ref() string {
	return SourceRef(p.Platform, p.SourceID)
}

// SentimentResult holds per-method and combined sentiment for one post
type SentimentResult struct {
	PostID          string   `json:"post_id"`
	Lexicon         float64  `json:"lexicon"`
	Polarity        float64  `json:"polarity"`
	Subjectivity    float64  `json:"subjectivity"`
	Adjustment      float64  `json:"adjustment"`
	Score           float64  `json:"score"`
	Label           Label    `json:"label"`
	Confidence      float64  `json:"confidence"`
	Degraded        bool     `json:"degraded"`
	FailedMethods   []string `json:"failed_methods,omitempty"`
	PipelineVersion string   `json:"pipeline_version"`
}

// Theme is a predefined catalog category or a discovered topic
type Theme struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Kind        ThemeKind `json:"kind"`
	Terms       []string  `json:"terms,omitempty"`
	Version     string    `json:"version"`
}

// PostTheme links a post to a theme with a relevance weight in [0,1]
type PostTheme struct {
	PostID  string    `json:"post_id"`
	ThemeID string    `json:"theme_id"`
	Weight  float64   `json:"weight"`
	Kind    ThemeKind `json:"kind"`
}

// PostKeyword links a post to an extracted keyword
type PostKeyword struct {
	PostID string  `json:"post_id"`
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
	Count  int     `json:"count"`
}

// CompetitorMention records a competitor named in a post
type CompetitorMention struct {
	PostID     string  `json:"post_id"`
	Competitor string  `json:"competitor"`
	Alias      string  `json:"alias"`
	Context    string  `json:"context"`
	Score      float64 `json:"score"`
}

// SentimentTrend is one aggregated row for a (bucket, platform, theme) key.
// Empty Platform or ThemeID means "all".
type SentimentTrend struct {
	Bucket          time.Time     `json:"bucket"`
	BucketSize      time.Duration `json:"bucket_size"`
	Platform        string        `json:"platform"`
	ThemeID         string        `json:"theme_id"`
	PositiveCount   int           `json:"positive_count"`
	NeutralCount    int           `json:"neutral_count"`
	NegativeCount   int           `json:"negative_count"`
	Total           int           `json:"total"`
	MeanScore       float64       `json:"mean_score"`
	TotalEngagement int64         `json:"total_engagement"`
}

// TopicSnapshot is the committed output of one topic-model refresh.
// Topics[k] pairs with TermWeights[k], a distribution over Vocabulary.
type TopicSnapshot struct {
	Version           string         `json:"version"`
	FittedAt          time.Time      `json:"fitted_at"`
	Docs              int            `json:"docs"`
	Topics            []Theme        `json:"topics"`
	Vocabulary        []string       `json:"vocabulary"`
	TermWeights       [][]float64    `json:"term_weights"`
	DocumentFrequency map[string]int `json:"document_frequency"`
}

// ScoredPost is the minimal view the trend aggregator needs
type ScoredPost struct {
	PostID     string
	Platform   string
	CreatedAt  time.Time
	Engagement int64
	Score      float64
	Label      Label
	ThemeIDs   []string
}

// CorpusDoc is one document of the rolling corpus used for topic fits
type CorpusDoc struct {
	PostID string
	Tokens []string
}

// BatchWrite holds every row produced for one ingestion batch. Derived rows
// of each listed post replace whatever was stored for it before.
type BatchWrite struct {
	Posts      []Post
	Sentiments []SentimentResult
	Themes     []Theme
	PostThemes []PostTheme
	Keywords   []PostKeyword
	Mentions   []CompetitorMention
}

// TrendScope selects the buckets an aggregation run recomputes
type TrendScope struct {
	From       time.Time
	To         time.Time
	BucketSize time.Duration
	Platform   string
	ThemeID    string
}

// PostFilter filters posts for presentation queries
type PostFilter struct {
	From       time.Time
	To         time.Time
	Platform   string
	ThemeID    string
	Label      Label
	Competitor string
	Limit      int
}

// TrendFilter filters trend rows for presentation queries
type TrendFilter struct {
	From     time.Time
	To       time.Time
	Platform string
	ThemeID  string
}

// MentionFilter filters competitor mentions for presentation queries
type MentionFilter struct {
	From       time.Time
	To         time.Time
	Competitor string
	Platform   string
}

// PostView is a post joined with its sentiment for the dashboard
type PostView struct {
	Post
	Sentiment *SentimentResult `json:"sentiment,omitempty"`
	ThemeIDs  []string         `json:"theme_ids,omitempty"`
}

// Summary is the dashboard overview for a date range
type Summary struct {
	From                  time.Time       `json:"from"`
	To                    time.Time       `json:"to"`
	TotalPosts            int             `json:"total_posts"`
	Platforms             map[string]int  `json:"platforms"`
	Labels                map[Label]int   `json:"labels"`
	MeanScore             float64         `json:"mean_score"`
	TopThemes             []ThemeCount    `json:"top_themes"`
	PostsWithCompetitors  int             `json:"posts_with_competitors"`
	CompetitorMentionRate float64         `json:"competitor_mention_rate"`
	Competitors           map[string]int  `json:"competitors"`
	TotalEngagement       int64           `json:"total_engagement"`
}

// ThemeCount pairs a theme with the number of posts attached to it
type ThemeCount struct {
	ThemeID string `json:"theme_id"`
	Name    string `json:"name"`
	Posts   int    `json:"posts"`
}
