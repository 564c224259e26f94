// Package index implements the winnowing fingerprint index (C4): a reverse
// map from hash values to the submission/Span pairs that produced them,
// supporting set-algebraic merge and subtract, and pairwise top-N scoring.
//
// Grounded on original_source/compare/winnowing.py's WinnowingIndex, with
// the shard-striped map from fusion/kmer_index.go adapted (not copied
// verbatim -- see DESIGN.md) to give Merge the concurrency shape spec.md §5
// asks for.
package index

import (
	"sort"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/gradescope/winnow/span"
)

// ErrConfigMismatch is returned by Merge, Subtract, and Compare when the
// two indices were built with different n-gram lengths (spec.md §7).
var ErrConfigMismatch = errors.New("index: combining indices of different n-gram lengths")

// SubmissionID identifies a submission within the index. Submission ids are
// dense, non-negative, and compared for ordering by Compare (see Compare's
// doc comment for the ordered-pair contract).
type SubmissionID int64

// Entry pairs a Span with the submission that produced it. Entries are
// comparable so a hash bucket can de-duplicate them as a true set, matching
// WinnowingIndex's Python set() semantics.
type Entry struct {
	Submission SubmissionID
	Span       span.Span
}

const numShards = 64

// shard is one lock-striped partition of the reverse map. Sharding by hash
// lets independent goroutines merge disjoint per-file indices into a
// corpus index concurrently (spec.md §5), without serializing the whole
// fold on one mutex the way a single map would.
type shard struct {
	mu sync.Mutex
	m  map[uint64]map[Entry]struct{}
}

// Index is the reverse map hash -> {(submission, span)}. The zero value is
// not usable; construct with New or Build.
type Index struct {
	k      int
	shards [numShards]*shard
}

func newShards() [numShards]*shard {
	var s [numShards]*shard
	for i := range s {
		s[i] = &shard{m: make(map[uint64]map[Entry]struct{})}
	}
	return s
}

// New returns an empty Index configured for n-gram length k.
func New(k int) *Index {
	return &Index{k: k, shards: newShards()}
}

// K returns the n-gram length this index was built with.
func (idx *Index) K() int { return idx.k }

func (idx *Index) shardFor(hash uint64) *shard {
	return idx.shards[hash%numShards]
}

func (idx *Index) insert(hash uint64, e Entry) {
	sh := idx.shardFor(hash)
	sh.mu.Lock()
	set, ok := sh.m[hash]
	if !ok {
		set = make(map[Entry]struct{}, 1)
		sh.m[hash] = set
	}
	set[e] = struct{}{}
	sh.mu.Unlock()
}

// Build constructs an Index from one submission's fingerprint stream,
// pairing every Span with sub (spec.md §4.3's "build" operation).
func Build(k int, fingerprints []span.Span, sub SubmissionID) *Index {
	idx := New(k)
	for _, sp := range fingerprints {
		idx.insert(sp.Hash, Entry{Submission: sub, Span: sp})
	}
	return idx
}

// Merge unions other's entries into idx (spec.md §4.3). Merge is
// commutative and idempotent per entry: merging the same fingerprint twice
// leaves the set unchanged, matching WinnowingIndex's Python set union.
func (idx *Index) Merge(other *Index) error {
	if idx.k != other.k {
		return ErrConfigMismatch
	}
	for i := range other.shards {
		other.shards[i].mu.Lock()
		for hash, set := range other.shards[i].m {
			for e := range set {
				idx.insert(hash, e)
			}
		}
		other.shards[i].mu.Unlock()
	}
	return nil
}

// Subtract removes every key present in other from idx, regardless of
// which submission produced it in either index (spec.md §4.3: used to
// strip distro/boilerplate fingerprints from a corpus index).
func (idx *Index) Subtract(other *Index) error {
	if idx.k != other.k {
		return ErrConfigMismatch
	}
	for i := range other.shards {
		other.shards[i].mu.Lock()
		keys := make([]uint64, 0, len(other.shards[i].m))
		for hash := range other.shards[i].m {
			keys = append(keys, hash)
		}
		other.shards[i].mu.Unlock()
		for _, hash := range keys {
			sh := idx.shardFor(hash)
			sh.mu.Lock()
			delete(sh.m, hash)
			sh.mu.Unlock()
		}
	}
	return nil
}

// Len returns the number of distinct hash keys currently in the index.
func (idx *Index) Len() int {
	n := 0
	for _, sh := range idx.shards {
		sh.mu.Lock()
		n += len(sh.m)
		sh.mu.Unlock()
	}
	return n
}

// Pair is a pair of submission ids. Pairs returned by Compare always have
// Sub1 < Sub2 (spec.md §9's ordered-pair contract); pipeline's
// CompareArchive maps Sub2 back to the archive's original id afterwards,
// so its pairs need not be ordered.
type Pair struct {
	Sub1 SubmissionID
	Sub2 SubmissionID
}

// ScoredPair is one ranked result from Compare: a submission pair and the
// number of distinct shared fingerprint hashes between them.
type ScoredPair struct {
	Pair  Pair
	Score int
}

// CompareResult is the return value of Compare: the top-N scored pairs
// (spec.md §4.3) plus the union of matched spans across those top pairs,
// suitable for handing to the Expander.
type CompareResult struct {
	Ranked  []ScoredPair
	Matched map[span.Span]struct{}
}

// Compare intersects idx and other's key sets and scores every submission
// pair that shares at least one fingerprint.
//
// Ordered-pair contract (spec.md §9): for a shared hash h, idx's entries are
// partitioned by submission into A, other's into B; for every (sid1, sid2)
// with sid1 ∈ A[h], sid2 ∈ B[h], and sid1 < sid2, the pair's score is
// incremented once. Comparing an index against itself (corpus self-compare)
// therefore relies on this sid1 < sid2 filter alone to avoid double-counting
// and self-pairs -- the caller does not need disjoint id ranges, but an
// accidental inversion of the ordering (counting sid2 < sid1 instead) would
// silently halve recall, so this rule must never be "simplified" to an
// unordered check.
//
// Returns at most n pairs, ranked by score descending, ties broken by
// (Sub1, Sub2) ascending lexicographic order for determinism (spec.md §8
// property 6). If fewer than n pairs exist, all of them are returned.
func (idx *Index) Compare(other *Index, n int) (CompareResult, error) {
	if idx.k != other.k {
		return CompareResult{}, ErrConfigMismatch
	}

	scores := make(map[Pair]int)
	matches := make(map[Pair]map[span.Span]struct{})

	for shardIdx := range idx.shards {
		sh := idx.shards[shardIdx]
		sh.mu.Lock()
		for hash, selfSet := range sh.m {
			otherSh := other.shardFor(hash)
			otherSh.mu.Lock()
			otherSet, ok := otherSh.m[hash]
			otherSh.mu.Unlock()
			if !ok {
				continue
			}

			localSpans := make(map[SubmissionID][]span.Span)
			for e := range selfSet {
				localSpans[e.Submission] = append(localSpans[e.Submission], e.Span)
			}
			otherSpans := make(map[SubmissionID][]span.Span)
			for e := range otherSet {
				otherSpans[e.Submission] = append(otherSpans[e.Submission], e.Span)
			}

			for sid1, spans1 := range localSpans {
				for sid2, spans2 := range otherSpans {
					if !(sid1 < sid2) {
						continue
					}
					pair := Pair{Sub1: sid1, Sub2: sid2}
					scores[pair]++
					set, ok := matches[pair]
					if !ok {
						set = make(map[span.Span]struct{})
						matches[pair] = set
					}
					for _, s := range spans1 {
						set[s] = struct{}{}
					}
					for _, s := range spans2 {
						set[s] = struct{}{}
					}
				}
			}
		}
		sh.mu.Unlock()
	}

	ranked := make([]ScoredPair, 0, len(scores))
	for pair, score := range scores {
		ranked = append(ranked, ScoredPair{Pair: pair, Score: score})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Pair.Sub1 != ranked[j].Pair.Sub1 {
			return ranked[i].Pair.Sub1 < ranked[j].Pair.Sub1
		}
		return ranked[i].Pair.Sub2 < ranked[j].Pair.Sub2
	})
	if n >= 0 && n < len(ranked) {
		ranked = ranked[:n]
	}

	matched := make(map[span.Span]struct{})
	for _, sp := range ranked {
		for s := range matches[sp.Pair] {
			matched[s] = struct{}{}
		}
	}
	return CompareResult{Ranked: ranked, Matched: matched}, nil
}

// MatchGroup is the per-hash grouping the Expander consumes: the spans hash
// h produced in each of the two submissions of a compared pair.
type MatchGroup struct {
	Hash   uint64
	InSub1 []span.Span
	InSub2 []span.Span
}

// MatchGroups re-partitions idx and other's shared fingerprints for exactly
// one submission pair, keyed by hash, for handing to the Expander (spec.md
// §4.4's input shape). Only hashes where both sides are non-empty are
// included, matching the Expander's precondition.
func (idx *Index) MatchGroups(other *Index, sub1, sub2 SubmissionID) []MatchGroup {
	var groups []MatchGroup
	for shardIdx := range idx.shards {
		sh := idx.shards[shardIdx]
		sh.mu.Lock()
		for hash, selfSet := range sh.m {
			var inSub1 []span.Span
			for e := range selfSet {
				if e.Submission == sub1 {
					inSub1 = append(inSub1, e.Span)
				}
			}
			if len(inSub1) == 0 {
				continue
			}
			otherSh := other.shardFor(hash)
			otherSh.mu.Lock()
			otherSet := otherSh.m[hash]
			var inSub2 []span.Span
			for e := range otherSet {
				if e.Submission == sub2 {
					inSub2 = append(inSub2, e.Span)
				}
			}
			otherSh.mu.Unlock()
			if len(inSub2) == 0 {
				continue
			}
			groups = append(groups, MatchGroup{Hash: hash, InSub1: inSub1, InSub2: inSub2})
		}
		sh.mu.Unlock()
	}
	return groups
}
