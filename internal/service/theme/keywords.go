package theme

import (
	"math"
	"sort"

	"brandpulse/internal/domain/signal"
)

// Doc is one tokenized post handed to keyword extraction
type Doc struct {
	PostID string
	Tokens []string
}

// KeywordExtractor ranks per-post terms by tf-idf
type KeywordExtractor struct {
	filter *TermFilter
	topK   int
}

// NewKeywordExtractor creates an extractor keeping the top K terms per post
func NewKeywordExtractor(filter *TermFilter, topK int) *KeywordExtractor {
	return &KeywordExtractor{filter: filter, topK: topK}
}

// Extract returns the top-K keywords of every doc. Document frequencies come
// from the batch merged with the rolling corpus frequencies of the snapshot,
// which may be nil.
func (e *KeywordExtractor) Extract(docs []Doc, snapshot *signal.TopicSnapshot) []signal.PostKeyword {
	df := make(map[string]int)
	n := len(docs)
	if snapshot != nil {
		n += snapshot.Docs
		for term, count := range snapshot.DocumentFrequency {
			df[term] = count
		}
	}

	docTerms := make([][]string, len(docs))
	for i, d := range docs {
		terms := e.filter.Terms(d.Tokens)
		docTerms[i] = terms
		seen := make(map[string]bool, len(terms))
		for _, t := range terms {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}

	var out []signal.PostKeyword
	for i, d := range docs {
		terms := docTerms[i]
		if len(terms) == 0 {
			continue
		}
		counts := make(map[string]int)
		for _, t := range terms {
			counts[t]++
		}
		ranked := make([]signal.PostKeyword, 0, len(counts))
		for term, c := range counts {
			tf := float64(c) / float64(len(terms))
			idf := math.Log(float64(1+n)/float64(1+df[term])) + 1
			ranked = append(ranked, signal.PostKeyword{
				PostID: d.PostID,
				Term:   term,
				Weight: tf * idf,
				Count:  c,
			})
		}
		sort.Slice(ranked, func(a, b int) bool {
			if ranked[a].Weight != ranked[b].Weight {
				return ranked[a].Weight > ranked[b].Weight
			}
			return ranked[a].Term < ranked[b].Term
		})
		if len(ranked) > e.topK {
			ranked = ranked[:e.topK]
		}
		out = append(out, ranked...)
	}
	return out
}

// DocumentFrequency counts, for every term, how many docs contain it
func DocumentFrequency(filter *TermFilter, docs []signal.CorpusDoc) map[string]int {
	df := make(map[string]int)
	for _, d := range docs {
		seen := make(map[string]bool)
		for _, t := range filter.Terms(d.Tokens) {
			if !seen[t] {
				seen[t] = true
				df[t]++
			}
		}
	}
	return df
}
