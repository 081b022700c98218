package theme

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"brandpulse/internal/domain/signal"
)

// ModelConfig holds topic model hyperparameters
type ModelConfig struct {
	Topics     int
	Alpha      float64
	Beta       float64
	Iterations int
	Seed       int64
	MinDF      int
	MaxDFRatio float64
}

// DefaultModelConfig returns the hyperparameters used in production
func DefaultModelConfig() ModelConfig {
	return ModelConfig{
		Topics:     8,
		Alpha:      0.1,
		Beta:       0.01,
		Iterations: 200,
		Seed:       42,
		MinDF:      2,
		MaxDFRatio: 0.8,
	}
}

// Model is a fitted topic model
type Model struct {
	Vocabulary []string
	// Phi[k][w] is the probability of vocabulary term w under topic k
	Phi [][]float64
	// Theta maps each fitted post to its topic distribution
	Theta map[string][]float64
}

// TopicModel fits LDA by collapsed Gibbs sampling. Given the same corpus and
// seed the fit is identical.
type TopicModel struct {
	config ModelConfig
	filter *TermFilter
}

// NewTopicModel creates a topic model
func NewTopicModel(config ModelConfig, filter *TermFilter) *TopicModel {
	return &TopicModel{config: config, filter: filter}
}

// Fit learns topics over the corpus
func (m *TopicModel) Fit(ctx context.Context, corpus []signal.CorpusDoc) (*Model, error) {
	docs := make([]signal.CorpusDoc, len(corpus))
	copy(docs, corpus)
	sort.Slice(docs, func(i, j int) bool { return docs[i].PostID < docs[j].PostID })

	unigrams := make([][]string, len(docs))
	df := make(map[string]int)
	for i, d := range docs {
		unigrams[i] = m.filter.Unigrams(d.Tokens)
		seen := make(map[string]bool)
		for _, t := range unigrams[i] {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}

	maxDF := m.config.MaxDFRatio * float64(len(docs))
	vocab := make([]string, 0, len(df))
	for term, c := range df {
		if c >= m.config.MinDF && float64(c) <= maxDF {
			vocab = append(vocab, term)
		}
	}
	sort.Strings(vocab)

	k := m.config.Topics
	v := len(vocab)
	if v < k {
		return nil, fmt.Errorf("%w: vocabulary of %d terms for %d topics", ErrInsufficientCorpus, v, k)
	}
	index := make(map[string]int, v)
	for i, t := range vocab {
		index[t] = i
	}

	words := make([][]int, len(docs))
	for i, terms := range unigrams {
		for _, t := range terms {
			if w, ok := index[t]; ok {
				words[i] = append(words[i], w)
			}
		}
	}

	rng := rand.New(rand.NewSource(m.config.Seed))
	ndk := make([][]int, len(docs))
	nkw := make([][]int, k)
	for t := range nkw {
		nkw[t] = make([]int, v)
	}
	nk := make([]int, k)
	z := make([][]int, len(docs))
	for d := range words {
		ndk[d] = make([]int, k)
		z[d] = make([]int, len(words[d]))
		for i, w := range words[d] {
			topic := rng.Intn(k)
			z[d][i] = topic
			ndk[d][topic]++
			nkw[topic][w]++
			nk[topic]++
		}
	}

	alpha, beta := m.config.Alpha, m.config.Beta
	vBeta := float64(v) * beta
	p := make([]float64, k)
	for iter := 0; iter < m.config.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for d := range words {
			for i, w := range words[d] {
				topic := z[d][i]
				ndk[d][topic]--
				nkw[topic][w]--
				nk[topic]--

				total := 0.0
				for t := 0; t < k; t++ {
					total += (float64(ndk[d][t]) + alpha) * (float64(nkw[t][w]) + beta) / (float64(nk[t]) + vBeta)
					p[t] = total
				}
				u := rng.Float64() * total
				topic = sort.SearchFloat64s(p, u)
				if topic >= k {
					topic = k - 1
				}

				z[d][i] = topic
				ndk[d][topic]++
				nkw[topic][w]++
				nk[topic]++
			}
		}
	}

	model := &Model{
		Vocabulary: vocab,
		Phi:        make([][]float64, k),
		Theta:      make(map[string][]float64, len(docs)),
	}
	for t := 0; t < k; t++ {
		model.Phi[t] = make([]float64, v)
		for w := 0; w < v; w++ {
			model.Phi[t][w] = (float64(nkw[t][w]) + beta) / (float64(nk[t]) + vBeta)
		}
	}
	kAlpha := float64(k) * alpha
	for d, doc := range docs {
		if len(words[d]) == 0 {
			continue
		}
		theta := make([]float64, k)
		for t := 0; t < k; t++ {
			theta[t] = (float64(ndk[d][t]) + alpha) / (float64(len(words[d])) + kAlpha)
		}
		model.Theta[doc.PostID] = theta
	}
	return model, nil
}

// TopTerms returns the n most probable terms of topic k, ties by term
func TopTerms(vocab []string, phi []float64, n int) []string {
	idx := make([]int, len(phi))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		if phi[idx[a]] != phi[idx[b]] {
			return phi[idx[a]] > phi[idx[b]]
		}
		return vocab[idx[a]] < vocab[idx[b]]
	})
	if n > len(idx) {
		n = len(idx)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = vocab[idx[i]]
	}
	return out
}
