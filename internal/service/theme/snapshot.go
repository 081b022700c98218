package theme

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"brandpulse/internal/domain/signal"
)

const (
	labelTerms  = 3
	storedTerms = 10
	foldInSteps = 50
)

// snapshotNamespace scopes snapshot versions so that refitting the same
// corpus at the same fit time yields the same discovered theme ids.
var snapshotNamespace = uuid.MustParse("2b8e4f61-93a7-5c0d-8e14-7d6a3f09c2b5")

// SnapshotVersion derives the deterministic version of a fit from its
// vocabulary, corpus size and fit time
func SnapshotVersion(vocabulary []string, docs int, fittedAt time.Time) string {
	var b strings.Builder
	b.WriteString(fittedAt.UTC().Format(time.RFC3339Nano))
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(docs))
	for _, term := range vocabulary {
		b.WriteByte('|')
		b.WriteString(term)
	}
	return uuid.NewSHA1(snapshotNamespace, []byte(b.String())).String()
}

// NewSnapshot turns a fitted model into a committed-ready snapshot with one
// discovered Theme per topic
func NewSnapshot(model *Model, docs int, df map[string]int, fittedAt time.Time) signal.TopicSnapshot {
	version := SnapshotVersion(model.Vocabulary, docs, fittedAt)
	snapshot := signal.TopicSnapshot{
		Version:           version,
		FittedAt:          fittedAt.UTC(),
		Docs:              docs,
		Vocabulary:        model.Vocabulary,
		TermWeights:       model.Phi,
		DocumentFrequency: df,
	}
	for k, phi := range model.Phi {
		top := TopTerms(model.Vocabulary, phi, storedTerms)
		label := top
		if len(label) > labelTerms {
			label = label[:labelTerms]
		}
		snapshot.Topics = append(snapshot.Topics, signal.Theme{
			ID:      TopicID(version, k),
			Name:    strings.Join(label, ", "),
			Kind:    signal.ThemeDiscovered,
			Terms:   top,
			Version: version,
		})
	}
	return snapshot
}

// TopicID builds the theme id of topic k within a snapshot
func TopicID(version string, k int) string {
	short := strings.ReplaceAll(version, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("topic_%s_%d", short, k)
}

// Assignments converts fitted topic distributions into PostTheme rows
func Assignments(snapshot signal.TopicSnapshot, theta map[string][]float64, minWeight float64) []signal.PostTheme {
	ids := make([]string, 0, len(theta))
	for id := range theta {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []signal.PostTheme
	for _, id := range ids {
		out = append(out, assign(snapshot, id, theta[id], minWeight)...)
	}
	return out
}

func assign(snapshot signal.TopicSnapshot, postID string, theta []float64, minWeight float64) []signal.PostTheme {
	var out []signal.PostTheme
	for k, w := range theta {
		if w < minWeight || k >= len(snapshot.Topics) {
			continue
		}
		out = append(out, signal.PostTheme{
			PostID:  postID,
			ThemeID: snapshot.Topics[k].ID,
			Weight:  w,
			Kind:    signal.ThemeDiscovered,
		})
	}
	return out
}

// Folder assigns discovered topics of one committed snapshot to new posts
// without refitting. Inference is a fixed number of EM steps and involves no
// sampling, so equal inputs give equal weights.
type Folder struct {
	snapshot  *signal.TopicSnapshot
	index     map[string]int
	filter    *TermFilter
	alpha     float64
	minWeight float64
}

// NewFolder creates a folder for the snapshot. A nil snapshot assigns nothing.
func NewFolder(snapshot *signal.TopicSnapshot, filter *TermFilter, alpha, minWeight float64) *Folder {
	f := &Folder{snapshot: snapshot, filter: filter, alpha: alpha, minWeight: minWeight}
	if snapshot != nil {
		f.index = make(map[string]int, len(snapshot.Vocabulary))
		for i, t := range snapshot.Vocabulary {
			f.index[t] = i
		}
	}
	return f
}

// Snapshot returns the snapshot the folder reads, possibly nil
func (f *Folder) Snapshot() *signal.TopicSnapshot {
	return f.snapshot
}

// Infer returns the topic distribution of the tokens, or nil when none of
// them is in the snapshot vocabulary
func (f *Folder) Infer(tokens []string) []float64 {
	if f.snapshot == nil || len(f.snapshot.TermWeights) == 0 {
		return nil
	}
	var words []int
	for _, t := range f.filter.Unigrams(tokens) {
		if w, ok := f.index[t]; ok {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil
	}

	k := len(f.snapshot.TermWeights)
	theta := make([]float64, k)
	for i := range theta {
		theta[i] = 1 / float64(k)
	}
	counts := make([]float64, k)
	resp := make([]float64, k)
	denom := float64(len(words)) + float64(k)*f.alpha
	for step := 0; step < foldInSteps; step++ {
		for i := range counts {
			counts[i] = 0
		}
		for _, w := range words {
			total := 0.0
			for t := 0; t < k; t++ {
				resp[t] = theta[t] * f.snapshot.TermWeights[t][w]
				total += resp[t]
			}
			if total == 0 {
				continue
			}
			for t := 0; t < k; t++ {
				counts[t] += resp[t] / total
			}
		}
		for t := 0; t < k; t++ {
			theta[t] = (counts[t] + f.alpha) / denom
		}
	}
	return theta
}

// Assign returns discovered PostTheme rows for one post
func (f *Folder) Assign(postID string, tokens []string) []signal.PostTheme {
	theta := f.Infer(tokens)
	if theta == nil {
		return nil
	}
	return assign(*f.snapshot, postID, theta, f.minWeight)
}
