package aggregate

import (
	"sort"
	"time"

	"brandpulse/internal/domain/signal"
)

// Aggregator derives SentimentTrend rows from scored posts. It keeps no
// counters between runs, so every row can be recomputed from the store.
type Aggregator struct {
	bucketSize time.Duration
}

// NewAggregator creates an aggregator with the given bucket size
func NewAggregator(bucketSize time.Duration) *Aggregator {
	return &Aggregator{bucketSize: bucketSize}
}

// BucketSize returns the configured bucket size
func (a *Aggregator) BucketSize() time.Duration {
	return a.bucketSize
}

// BucketStart returns the UTC start of the bucket containing t
func (a *Aggregator) BucketStart(t time.Time) time.Time {
	return t.UTC().Truncate(a.bucketSize)
}

// Scope returns the scope covering every bucket touched by the given times
func (a *Aggregator) Scope(times []time.Time) (signal.TrendScope, bool) {
	if len(times) == 0 {
		return signal.TrendScope{}, false
	}
	from, to := times[0], times[0]
	for _, t := range times[1:] {
		if t.Before(from) {
			from = t
		}
		if t.After(to) {
			to = t
		}
	}
	return signal.TrendScope{
		From:       a.BucketStart(from),
		To:         a.BucketStart(to).Add(a.bucketSize),
		BucketSize: a.bucketSize,
	}, true
}

// ExpandScope widens a scope outward to whole bucket boundaries
func (a *Aggregator) ExpandScope(scope signal.TrendScope) signal.TrendScope {
	scope.BucketSize = a.bucketSize
	scope.From = a.BucketStart(scope.From)
	end := a.BucketStart(scope.To)
	if end.Before(scope.To) || end.Equal(scope.From) {
		end = end.Add(a.bucketSize)
	}
	scope.To = end
	return scope
}

type key struct {
	bucket   time.Time
	platform string
	theme    string
}

type contribution struct {
	postID     string
	score      float64
	label      signal.Label
	engagement int64
}

// Aggregate groups posts into buckets and emits rows for (all, all),
// (platform, all), (all, theme) and (platform, theme), honoring any
// platform or theme filter in the scope. Output is independent of input order.
func (a *Aggregator) Aggregate(scope signal.TrendScope, posts []signal.ScoredPost) []signal.SentimentTrend {
	groups := make(map[key][]contribution)
	add := func(k key, c contribution) {
		groups[k] = append(groups[k], c)
	}

	for _, p := range posts {
		if !scope.From.IsZero() && p.CreatedAt.Before(scope.From) {
			continue
		}
		if !scope.To.IsZero() && !p.CreatedAt.Before(scope.To) {
			continue
		}
		if scope.Platform != "" && p.Platform != scope.Platform {
			continue
		}
		themes := uniqueSorted(p.ThemeIDs)
		if scope.ThemeID != "" && !contains(themes, scope.ThemeID) {
			continue
		}

		bucket := a.BucketStart(p.CreatedAt)
		c := contribution{postID: p.PostID, score: p.Score, label: p.Label, engagement: p.Engagement}

		if scope.ThemeID == "" {
			if scope.Platform == "" {
				add(key{bucket, "", ""}, c)
			}
			add(key{bucket, p.Platform, ""}, c)
		}
		for _, th := range themes {
			if scope.ThemeID != "" && th != scope.ThemeID {
				continue
			}
			if scope.Platform == "" {
				add(key{bucket, "", th}, c)
			}
			add(key{bucket, p.Platform, th}, c)
		}
	}

	trends := make([]signal.SentimentTrend, 0, len(groups))
	for k, cs := range groups {
		trends = append(trends, a.row(k, cs))
	}
	sort.Slice(trends, func(i, j int) bool {
		ti, tj := trends[i], trends[j]
		if !ti.Bucket.Equal(tj.Bucket) {
			return ti.Bucket.Before(tj.Bucket)
		}
		if ti.Platform != tj.Platform {
			return ti.Platform < tj.Platform
		}
		return ti.ThemeID < tj.ThemeID
	})
	return trends
}

func (a *Aggregator) row(k key, cs []contribution) signal.SentimentTrend {
	sort.Slice(cs, func(i, j int) bool { return cs[i].postID < cs[j].postID })

	t := signal.SentimentTrend{
		Bucket:     k.bucket,
		BucketSize: a.bucketSize,
		Platform:   k.platform,
		ThemeID:    k.theme,
		Total:      len(cs),
	}
	sum := 0.0
	for _, c := range cs {
		switch c.label {
		case signal.LabelPositive:
			t.PositiveCount++
		case signal.LabelNegative:
			t.NegativeCount++
		default:
			t.NeutralCount++
		}
		sum += c.score
		t.TotalEngagement += c.engagement
	}
	if t.Total > 0 {
		t.MeanScore = sum / float64(t.Total)
	}
	return t
}

func uniqueSorted(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}

func contains(sorted []string, v string) bool {
	i := sort.SearchStrings(sorted, v)
	return i < len(sorted) && sorted[i] == v
}
