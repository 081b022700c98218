package theme

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brandpulse/internal/config"
	"brandpulse/internal/domain/signal"
	"brandpulse/internal/logging"
	"brandpulse/internal/service/normalize"
)

func tokens(text string) []string {
	return normalize.New().Normalize(text).Tokens
}

func fortyTermCatalog() *config.Catalog {
	terms := make([]string, 40)
	for i := range terms {
		terms[i] = fmt.Sprintf("term%02d", i+1)
	}
	return &config.Catalog{
		Version: "v-test",
		Themes:  []config.ThemeDef{{ID: "wide", Name: "Wide", Terms: terms}},
	}
}

func TestMatcherWeightFloor(t *testing.T) {
	m := NewMatcher(fortyTermCatalog(), 0.05)

	assert.Empty(t, m.Match("p1", tokens("only term01 shows up here")))

	got := m.Match("p2", tokens("term01 and term02 and term03, term01 again"))
	require.Len(t, got, 1)
	assert.Equal(t, "wide", got[0].ThemeID)
	assert.InDelta(t, 0.075, got[0].Weight, 1e-12)
	assert.Equal(t, signal.ThemePredefined, got[0].Kind)
}

func TestMatcherMultiWordTerms(t *testing.T) {
	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)
	m := NewMatcher(catalog, 0.05)

	got := m.Match("p1", tokens("Direct deposit hit late and the pay stub had the wrong tax withholding"))
	ids := make([]string, 0, len(got))
	for _, pt := range got {
		ids = append(ids, pt.ThemeID)
	}
	assert.Contains(t, ids, "payroll_processing")
	assert.Contains(t, ids, "compliance_taxes")

	for _, th := range m.Themes() {
		assert.Equal(t, signal.ThemePredefined, th.Kind)
		assert.Equal(t, catalog.Version, th.Version)
	}
	assert.Nil(t, m.Match("p2", nil))
}

func TestTermFilter(t *testing.T) {
	f := NewTermFilter([]string{"the", "is"})
	assert.Equal(t,
		[]string{"payroll", "payroll taxes", "taxes"},
		f.Terms([]string{"the", "payroll", "taxes", "is", "ok", "2024"}),
	)
	assert.False(t, f.Keep("401"))
	assert.True(t, f.Keep("401k"))
	assert.False(t, f.Keep("emo_smile"))
}

func TestKeywordExtractor(t *testing.T) {
	filter := NewTermFilter([]string{"the", "is", "and", "for"})
	e := NewKeywordExtractor(filter, 3)

	docs := []Doc{
		{PostID: "a", Tokens: tokens("gusto pricing is high and pricing keeps rising")},
		{PostID: "b", Tokens: tokens("gusto support is slow")},
		{PostID: "c", Tokens: tokens("gusto onboarding for new hires")},
	}
	got := e.Extract(docs, nil)

	byPost := map[string][]signal.PostKeyword{}
	for _, k := range got {
		byPost[k.PostID] = append(byPost[k.PostID], k)
	}
	require.Len(t, byPost["a"], 3)
	assert.Equal(t, "pricing", byPost["a"][0].Term, "repeated rare term ranks first")
	assert.Equal(t, 2, byPost["a"][0].Count)
	for _, k := range got {
		assert.NotEqual(t, "gusto", k.Term, "a term in every doc never outranks rarer terms")
	}

	again := e.Extract(docs, nil)
	assert.Equal(t, got, again)
}

func TestKeywordExtractorUsesSnapshotFrequencies(t *testing.T) {
	filter := NewTermFilter(nil)
	e := NewKeywordExtractor(filter, 1)
	docs := []Doc{{PostID: "a", Tokens: []string{"payroll", "onboarding"}}}

	plain := e.Extract(docs, nil)
	require.Len(t, plain, 1)
	assert.Equal(t, "onboarding", plain[0].Term, "equal weights break ties by term")

	snapshot := &signal.TopicSnapshot{Docs: 100, DocumentFrequency: map[string]int{"onboarding": 90}}
	weighted := e.Extract(docs, snapshot)
	require.Len(t, weighted, 1)
	assert.Equal(t, "payroll", weighted[0].Term)
}

func clusteredCorpus() []signal.CorpusDoc {
	pricing := []string{"price", "expensive", "plan", "fees", "cost"}
	support := []string{"support", "ticket", "chat", "agent", "response"}
	var docs []signal.CorpusDoc
	for i := 0; i < 20; i++ {
		docs = append(docs,
			signal.CorpusDoc{PostID: fmt.Sprintf("p%02d", i), Tokens: rotate(pricing, i)},
			signal.CorpusDoc{PostID: fmt.Sprintf("s%02d", i), Tokens: rotate(support, i)},
		)
	}
	return docs
}

func rotate(words []string, i int) []string {
	out := make([]string, 0, 4)
	for j := 0; j < 4; j++ {
		out = append(out, words[(i+j)%len(words)])
	}
	return out
}

func testModelConfig() ModelConfig {
	cfg := DefaultModelConfig()
	cfg.Topics = 2
	cfg.Iterations = 100
	return cfg
}

func argmax(v []float64) int {
	best := 0
	for i := range v {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func TestTopicModelIsDeterministicAndSeparatesClusters(t *testing.T) {
	m := NewTopicModel(testModelConfig(), NewTermFilter(nil))

	first, err := m.Fit(context.Background(), clusteredCorpus())
	require.NoError(t, err)
	second, err := m.Fit(context.Background(), clusteredCorpus())
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Len(t, first.Vocabulary, 10)
	assert.NotEqual(t, argmax(first.Theta["p00"]), argmax(first.Theta["s00"]))
	for i := 1; i < 20; i++ {
		assert.Equal(t, argmax(first.Theta["p00"]), argmax(first.Theta[fmt.Sprintf("p%02d", i)]))
	}
}

func TestTopicModelRejectsTinyVocabulary(t *testing.T) {
	m := NewTopicModel(DefaultModelConfig(), NewTermFilter(nil))
	_, err := m.Fit(context.Background(), []signal.CorpusDoc{
		{PostID: "a", Tokens: []string{"payroll"}},
		{PostID: "b", Tokens: []string{"payroll"}},
	})
	assert.ErrorIs(t, err, ErrInsufficientCorpus)
}

func TestFolderInfersLikeTheFit(t *testing.T) {
	filter := NewTermFilter(nil)
	model, err := NewTopicModel(testModelConfig(), filter).Fit(context.Background(), clusteredCorpus())
	require.NoError(t, err)
	snapshot := NewSnapshot(model, 40, nil, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, snapshot.Topics, 2)
	assert.Equal(t, signal.ThemeDiscovered, snapshot.Topics[0].Kind)
	assert.Len(t, TopTerms(model.Vocabulary, model.Phi[0], 3), 3)

	rerun := NewSnapshot(model, 40, nil, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, snapshot.Version, rerun.Version)
	assert.Equal(t, snapshot.Topics[0].ID, rerun.Topics[0].ID)
	later := NewSnapshot(model, 40, nil, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	assert.NotEqual(t, snapshot.Version, later.Version)

	folder := NewFolder(&snapshot, filter, 0.1, 0.2)
	theta := folder.Infer([]string{"expensive", "fees", "plan"})
	require.Len(t, theta, 2)
	assert.Equal(t, argmax(model.Theta["p00"]), argmax(theta))
	assert.Equal(t, theta, folder.Infer([]string{"expensive", "fees", "plan"}))

	rows := folder.Assign("new", []string{"expensive", "fees", "plan"})
	require.NotEmpty(t, rows)
	assert.Equal(t, snapshot.Topics[argmax(theta)].ID, rows[0].ThemeID)

	assert.Nil(t, folder.Infer([]string{"unrelated"}))
	assert.Nil(t, NewFolder(nil, filter, 0.1, 0.2).Assign("x", []string{"fees"}))
}

type fakeTopicStore struct {
	signal.Store
	corpus      []signal.CorpusDoc
	published   *signal.TopicSnapshot
	fitted      []string
	assignments []signal.PostTheme
}

func (f *fakeTopicStore) RecentCorpus(context.Context, time.Time, int) ([]signal.CorpusDoc, error) {
	return f.corpus, nil
}

func (f *fakeTopicStore) PublishTopics(_ context.Context, s signal.TopicSnapshot, fitted []string, a []signal.PostTheme) error {
	f.published = &s
	f.fitted = fitted
	f.assignments = a
	return nil
}

func (f *fakeTopicStore) LatestTopics(context.Context) (*signal.TopicSnapshot, error) {
	if f.published == nil {
		return nil, signal.ErrNotFound
	}
	return f.published, nil
}

type recordingTrends struct{ calls int }

func (r *recordingTrends) RefreshTrends(context.Context, time.Time, time.Time) error {
	r.calls++
	return nil
}

func newRefresher(store signal.Store) *Refresher {
	return NewRefresher(store, nil, NewTermFilter(nil), RefresherConfig{
		Interval:     time.Hour,
		CorpusWindow: 30 * 24 * time.Hour,
		MaxCorpus:    1000,
		MinDocs:      20,
		MinWeight:    0.2,
		Model:        testModelConfig(),
	}, logging.NewTestLogger())
}

func TestRefresherInsufficientCorpusKeepsSnapshot(t *testing.T) {
	store := &fakeTopicStore{corpus: clusteredCorpus()[:5]}
	r := newRefresher(store)
	require.NoError(t, r.Load(context.Background()))

	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrInsufficientCorpus)
	assert.Nil(t, r.Current())
	assert.Nil(t, store.published)
}

func TestRefresherInProgress(t *testing.T) {
	r := newRefresher(&fakeTopicStore{corpus: clusteredCorpus()})
	r.running.Store(true)

	_, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshInProgress)
}

func TestRefresherPublishesSnapshot(t *testing.T) {
	store := &fakeTopicStore{corpus: clusteredCorpus()}
	r := newRefresher(store)
	trends := &recordingTrends{}
	r.SetTrendRefresher(trends)

	snapshot, err := r.Refresh(context.Background())
	require.NoError(t, err)

	assert.Same(t, snapshot, r.Current())
	assert.Len(t, snapshot.Topics, 2)
	assert.Equal(t, 40, snapshot.Docs)
	assert.Len(t, store.fitted, 40)
	assert.NotEmpty(t, store.assignments)
	assert.Equal(t, 16, snapshot.DocumentFrequency["price"])
	assert.Equal(t, 1, trends.calls)

	reloaded := newRefresher(store)
	require.NoError(t, reloaded.Load(context.Background()))
	assert.Equal(t, snapshot.Version, reloaded.Current().Version)
	assert.NotNil(t, reloaded.Folder().Snapshot())
}
