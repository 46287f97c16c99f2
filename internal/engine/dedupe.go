package engine

// dedupe.go groups routed entries by canonical key and flags near-duplicates.
//
// Exact duplicates: within a group the entry with the lowest Seq is kept and
// every later member gets a DuplicateInfo pointing at the kept position.
// Actions are left untouched so reports still show why each member was
// accepted or fixed.
//
// Near-duplicates: distinct keys closer than the configured threshold are
// paired for manual review. Pairs are symmetric, never transitive, and never
// merge groups. Candidate pairs come from a deletion-neighborhood index (two
// strings within distance d share a variant reachable by at most d deletions
// from each), which keeps the pass close to linear for the small thresholds
// used here. Every candidate is confirmed with a real edit distance.

import (
	"sort"

	"github.com/agnivade/levenshtein"
)

// MaxNearDuplicateThreshold caps the threshold; the deletion index grows
// combinatorially with it.
const MaxNearDuplicateThreshold = 3

// Group is every kept-action entry sharing a canonical key.
type Group struct {
	Key string
	// Members are in extraction order; Members[0] is the kept entry.
	Members        []*Entry
	NearDuplicates []string
}

// Kept returns the first-extracted member.
func (g *Group) Kept() *Entry {
	return g.Members[0]
}

// NearPair is an advisory link between two distinct canonical keys.
type NearPair struct {
	A        string `json:"a"`
	B        string `json:"b"`
	Distance int    `json:"distance"`
}

// DedupeResult is the output of Detect.
type DedupeResult struct {
	// Groups are ordered by the Seq of their kept entry.
	Groups    []*Group
	NearPairs []NearPair
}

// Duplicates counts entries marked as duplicates.
func (r DedupeResult) Duplicates() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Members) - 1
	}
	return n
}

// Detect groups entries that carry a canonical key. Entries without one
// (removed, reviewed or never routed) are ignored. threshold is the
// near-duplicate bound: keys at distance 1..threshold-1 are paired.
func Detect(entries []*Entry, threshold int) DedupeResult {
	ordered := make([]*Entry, 0, len(entries))
	for _, e := range entries {
		if e.CanonicalKey != "" {
			ordered = append(ordered, e)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	byKey := make(map[string]*Group, len(ordered))
	var groups []*Group
	for _, e := range ordered {
		g, ok := byKey[e.CanonicalKey]
		if !ok {
			g = &Group{Key: e.CanonicalKey}
			byKey[e.CanonicalKey] = g
			groups = append(groups, g)
			e.Duplicate = nil
		} else {
			e.Duplicate = &DuplicateInfo{Key: g.Key, Kept: g.Kept().Position}
		}
		g.Members = append(g.Members, e)
	}

	pairs := nearPairs(groups, threshold)
	for _, p := range pairs {
		byKey[p.A].NearDuplicates = append(byKey[p.A].NearDuplicates, p.B)
		byKey[p.B].NearDuplicates = append(byKey[p.B].NearDuplicates, p.A)
	}

	return DedupeResult{Groups: groups, NearPairs: pairs}
}

func nearPairs(groups []*Group, threshold int) []NearPair {
	if threshold > MaxNearDuplicateThreshold {
		threshold = MaxNearDuplicateThreshold
	}
	maxDist := threshold - 1
	if maxDist < 1 || len(groups) < 2 {
		return nil
	}

	index := make(map[string][]int)
	for i, g := range groups {
		for v := range deletionVariants(g.Key, maxDist) {
			index[v] = append(index[v], i)
		}
	}

	type pairKey struct{ a, b int }
	seen := make(map[pairKey]struct{})
	var pairs []pairKey
	for _, ids := range index {
		for x := 0; x < len(ids); x++ {
			for y := x + 1; y < len(ids); y++ {
				pk := pairKey{ids[x], ids[y]}
				if pk.a > pk.b {
					pk.a, pk.b = pk.b, pk.a
				}
				if _, dup := seen[pk]; dup {
					continue
				}
				seen[pk] = struct{}{}
				pairs = append(pairs, pk)
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].a != pairs[j].a {
			return pairs[i].a < pairs[j].a
		}
		return pairs[i].b < pairs[j].b
	})

	var out []NearPair
	for _, pk := range pairs {
		a, b := groups[pk.a].Key, groups[pk.b].Key
		if d := levenshtein.ComputeDistance(a, b); d >= 1 && d <= maxDist {
			out = append(out, NearPair{A: a, B: b, Distance: d})
		}
	}
	return out
}

// deletionVariants returns s and every string reachable from s by deleting
// up to depth runes.
func deletionVariants(s string, depth int) map[string]struct{} {
	out := map[string]struct{}{s: {}}
	frontier := []string{s}
	for d := 0; d < depth; d++ {
		var next []string
		for _, cur := range frontier {
			rs := []rune(cur)
			for i := range rs {
				v := string(rs[:i]) + string(rs[i+1:])
				if _, ok := out[v]; ok {
					continue
				}
				out[v] = struct{}{}
				next = append(next, v)
			}
		}
		frontier = next
	}
	return out
}
