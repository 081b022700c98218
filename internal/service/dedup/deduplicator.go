package dedup

import (
	"sort"
	"strings"
	"time"

	"brandpulse/internal/domain/signal"
)

// Config holds duplicate detection settings
type Config struct {
	SimilarityThreshold float64
	Window              time.Duration
}

// MergeRecord is the audit trail of one duplicate group
type MergeRecord struct {
	SurvivorID  string   `json:"survivor_id"`
	SurvivorRef string   `json:"survivor_ref"`
	MergedRefs  []string `json:"merged_refs"`
}

// Result holds the deduplicated posts and how they were merged
type Result struct {
	Posts  []signal.Post
	Merged []MergeRecord
}

// MergedCount returns how many input posts were folded into a survivor
func (r Result) MergedCount() int {
	n := 0
	for _, m := range r.Merged {
		n += len(m.MergedRefs)
	}
	return n
}

// Deduplicator collapses duplicate posts within one batch
type Deduplicator struct {
	config Config
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator(config Config) *Deduplicator {
	return &Deduplicator{config: config}
}

// Dedup groups posts that share a source identifier, have equal normalized
// text, or overlap by at least the similarity threshold inside the window.
// Groups are transitive. Each group keeps one survivor carrying the union
// of platforms and the audit refs of every merged member.
func (d *Deduplicator) Dedup(posts []signal.Post) Result {
	n := len(posts)
	if n == 0 {
		return Result{Posts: []signal.Post{}}
	}

	sets := newDisjointSet(n)

	byRef := make(map[string]int, n)
	byKey := make(map[string][]int)
	tokenSets := make([]map[string]struct{}, n)
	for i, p := range posts {
		ref := p.Ref()
		if j, ok := byRef[ref]; ok {
			sets.union(i, j)
		} else {
			byRef[ref] = i
		}
		if p.Empty {
			continue
		}
		key := strings.Join(p.Tokens, " ")
		byKey[key] = append(byKey[key], i)
		tokenSets[i] = tokenSet(p.Tokens)
	}

	for _, idx := range byKey {
		for a := 0; a < len(idx); a++ {
			for b := a + 1; b < len(idx); b++ {
				sets.union(idx[a], idx[b])
			}
		}
	}

	order := make([]int, 0, n)
	for i := range posts {
		if !posts[i].Empty {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return posts[order[a]].CreatedAt.Before(posts[order[b]].CreatedAt)
	})
	for a := 0; a < len(order); a++ {
		pa := posts[order[a]]
		for b := a + 1; b < len(order); b++ {
			pb := posts[order[b]]
			if pb.CreatedAt.Sub(pa.CreatedAt) > d.config.Window {
				break
			}
			if sets.find(order[a]) == sets.find(order[b]) {
				continue
			}
			if Jaccard(tokenSets[order[a]], tokenSets[order[b]]) >= d.config.SimilarityThreshold {
				sets.union(order[a], order[b])
			}
		}
	}

	groups := make(map[int][]int)
	for i := range posts {
		root := sets.find(i)
		groups[root] = append(groups[root], i)
	}

	result := Result{Posts: make([]signal.Post, 0, len(groups))}
	for _, members := range groups {
		survivor, record := mergeGroup(posts, members)
		result.Posts = append(result.Posts, survivor)
		if record != nil {
			result.Merged = append(result.Merged, *record)
		}
	}

	sort.Slice(result.Posts, func(a, b int) bool {
		pa, pb := result.Posts[a], result.Posts[b]
		if !pa.CreatedAt.Equal(pb.CreatedAt) {
			return pa.CreatedAt.Before(pb.CreatedAt)
		}
		return pa.ID < pb.ID
	})
	sort.Slice(result.Merged, func(a, b int) bool {
		return result.Merged[a].SurvivorRef < result.Merged[b].SurvivorRef
	})
	return result
}

func mergeGroup(posts []signal.Post, members []int) (signal.Post, *MergeRecord) {
	best := members[0]
	for _, i := range members[1:] {
		if preferred(posts[i], posts[best]) {
			best = i
		}
	}

	survivor := posts[best]
	survivorRef := survivor.Ref()

	platforms := map[string]struct{}{}
	refs := map[string]struct{}{}
	for _, i := range members {
		p := posts[i]
		platforms[p.Platform] = struct{}{}
		for _, pl := range p.Platforms {
			platforms[pl] = struct{}{}
		}
		for _, r := range p.MergedFrom {
			refs[r] = struct{}{}
		}
		refs[p.Ref()] = struct{}{}
	}
	delete(refs, survivorRef)

	survivor.Platforms = sortedKeys(platforms)
	survivor.MergedFrom = sortedKeys(refs)
	if len(survivor.MergedFrom) == 0 {
		survivor.MergedFrom = nil
	}
	if len(members) == 1 {
		return survivor, nil
	}

	merged := make([]string, 0, len(members)-1)
	for _, i := range members {
		if i == best {
			continue
		}
		merged = append(merged, posts[i].Ref())
	}
	sort.Strings(merged)
	return survivor, &MergeRecord{
		SurvivorID:  survivor.ID,
		SurvivorRef: survivorRef,
		MergedRefs:  merged,
	}
}

// preferred reports whether a should survive over b
func preferred(a, b signal.Post) bool {
	ea, eb := a.Engagement.Sum(), b.Engagement.Sum()
	if ea != eb {
		return ea > eb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Ref() < b.Ref()
}

// Jaccard returns the token-set overlap ratio of two sets
func Jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if _, ok := large[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type disjointSet struct {
	parent []int
	rank   []int
}

func newDisjointSet(n int) *disjointSet {
	ds := &disjointSet{parent: make([]int, n), rank: make([]int, n)}
	for i := range ds.parent {
		ds.parent[i] = i
	}
	return ds
}

func (ds *disjointSet) find(i int) int {
	for ds.parent[i] != i {
		ds.parent[i] = ds.parent[ds.parent[i]]
		i = ds.parent[i]
	}
	return i
}

func (ds *disjointSet) union(a, b int) {
	ra, rb := ds.find(a), ds.find(b)
	if ra == rb {
		return
	}
	switch {
	case ds.rank[ra] < ds.rank[rb]:
		ds.parent[ra] = rb
	case ds.rank[ra] > ds.rank[rb]:
		ds.parent[rb] = ra
	default:
		ds.parent[rb] = ra
		ds.rank[ra]++
	}
}
