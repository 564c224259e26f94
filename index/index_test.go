package index

import (
	"testing"

	"github.com/gradescope/winnow/span"
)

func sp(file span.FileID, start, end int, hash uint64) span.Span {
	return span.New(file, start, end, hash)
}

func TestMergeIdentity(t *testing.T) {
	a := Build(3, []span.Span{sp(1, 0, 3, 10), sp(1, 1, 4, 20)}, 0)
	empty := New(3)
	if err := a.Merge(empty); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if a.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", a.Len())
	}
}

func TestMergeCommutative(t *testing.T) {
	a := Build(3, []span.Span{sp(1, 0, 3, 10)}, 0)
	b := Build(3, []span.Span{sp(2, 0, 3, 20)}, 1)

	ab := Build(3, nil, 0)
	_ = ab.Merge(a)
	_ = ab.Merge(b)

	ba := Build(3, nil, 0)
	_ = ba.Merge(b)
	_ = ba.Merge(a)

	if ab.Len() != ba.Len() {
		t.Fatalf("merge is not commutative: %d vs %d", ab.Len(), ba.Len())
	}
}

func TestMergeConfigMismatch(t *testing.T) {
	a := New(3)
	b := New(4)
	if err := a.Merge(b); err != ErrConfigMismatch {
		t.Fatalf("Merge: got %v, want ErrConfigMismatch", err)
	}
	if err := a.Subtract(b); err != ErrConfigMismatch {
		t.Fatalf("Subtract: got %v, want ErrConfigMismatch", err)
	}
	if _, err := a.Compare(b, 1); err != ErrConfigMismatch {
		t.Fatalf("Compare: got %v, want ErrConfigMismatch", err)
	}
}

func TestSubtractRemovesKeyRegardlessOfSubmission(t *testing.T) {
	// S2: distro removal. A = "xyzabcxyz", B = "pqrabcpqr", sharing the
	// "abc" hash (100) with the distro.
	a := Build(3, []span.Span{sp(1, 3, 6, 100), sp(1, 0, 3, 1)}, 0)
	b := Build(3, []span.Span{sp(2, 3, 6, 100), sp(2, 0, 3, 2)}, 1)
	corpus := Build(3, nil, 0)
	_ = corpus.Merge(a)
	_ = corpus.Merge(b)

	distro := Build(3, []span.Span{sp(3, 0, 3, 100)}, 2)
	if err := corpus.Subtract(distro); err != nil {
		t.Fatalf("Subtract: %v", err)
	}

	result, err := corpus.Compare(corpus, 2)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	for _, r := range result.Ranked {
		if r.Pair.Sub1 == 0 && r.Pair.Sub2 == 1 {
			t.Fatalf("expected score 0 between A and B after distro removal, found pair with score %d", r.Score)
		}
	}
}

func TestCompareRanking(t *testing.T) {
	// S3: three submissions A(0), B(1), C(2). A/B share 10 hashes, A/C and
	// B/C share 3.
	idx := Build(3, nil, 0)
	for i := 0; i < 10; i++ {
		a := Build(3, []span.Span{sp(0, i, i+3, uint64(1000+i))}, 0)
		b := Build(3, []span.Span{sp(1, i, i+3, uint64(1000+i))}, 1)
		_ = idx.Merge(a)
		_ = idx.Merge(b)
	}
	for i := 0; i < 3; i++ {
		a := Build(3, []span.Span{sp(0, 100+i, 103+i, uint64(2000+i))}, 0)
		c := Build(3, []span.Span{sp(2, 100+i, 103+i, uint64(2000+i))}, 2)
		_ = idx.Merge(a)
		_ = idx.Merge(c)
	}
	for i := 0; i < 3; i++ {
		b := Build(3, []span.Span{sp(1, 200+i, 203+i, uint64(3000+i))}, 1)
		c := Build(3, []span.Span{sp(2, 200+i, 203+i, uint64(3000+i))}, 2)
		_ = idx.Merge(b)
		_ = idx.Merge(c)
	}

	result, err := idx.Compare(idx, 2)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(result.Ranked) != 2 {
		t.Fatalf("expected 2 ranked pairs, got %d", len(result.Ranked))
	}
	if result.Ranked[0].Pair != (Pair{Sub1: 0, Sub2: 1}) {
		t.Fatalf("expected (A,B) first, got %+v", result.Ranked[0].Pair)
	}
	if result.Ranked[0].Score != 10 {
		t.Fatalf("expected score 10 for (A,B), got %d", result.Ranked[0].Score)
	}
	second := result.Ranked[1].Pair
	if second != (Pair{Sub1: 0, Sub2: 2}) && second != (Pair{Sub1: 1, Sub2: 2}) {
		t.Fatalf("expected (A,C) or (B,C) second, got %+v", second)
	}
}

func TestCompareDeterministic(t *testing.T) {
	a := Build(3, []span.Span{sp(0, 0, 3, 10), sp(0, 1, 4, 11)}, 0)
	b := Build(3, []span.Span{sp(1, 0, 3, 10), sp(1, 1, 4, 11)}, 1)
	corpus := Build(3, nil, 0)
	_ = corpus.Merge(a)
	_ = corpus.Merge(b)

	r1, err := corpus.Compare(corpus, 5)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	r2, err := corpus.Compare(corpus, 5)
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if len(r1.Ranked) != len(r2.Ranked) {
		t.Fatalf("non-deterministic ranked length")
	}
	for i := range r1.Ranked {
		if r1.Ranked[i] != r2.Ranked[i] {
			t.Fatalf("repeated Compare() produced different results at %d: %+v vs %+v", i, r1.Ranked[i], r2.Ranked[i])
		}
	}
}

func TestMatchGroups(t *testing.T) {
	a := Build(3, []span.Span{sp(0, 0, 3, 10)}, 0)
	b := Build(3, []span.Span{sp(1, 5, 8, 10)}, 1)
	corpus := Build(3, nil, 0)
	_ = corpus.Merge(a)
	_ = corpus.Merge(b)

	groups := corpus.MatchGroups(corpus, 0, 1)
	if len(groups) != 1 {
		t.Fatalf("expected 1 match group, got %d", len(groups))
	}
	g := groups[0]
	if g.Hash != 10 {
		t.Fatalf("unexpected hash %d", g.Hash)
	}
	if len(g.InSub1) != 1 || len(g.InSub2) != 1 {
		t.Fatalf("expected one span on each side, got %d/%d", len(g.InSub1), len(g.InSub2))
	}
}
