package fingerprint

import (
	"encoding/binary"

	farm "github.com/dgryski/go-farm"
	"github.com/minio/highwayhash"
)

// Hasher computes a 64-bit fingerprint for a k-length window of
// preprocessed items. Implementations must be deterministic: the same
// sequence of items always hashes to the same value. The production hashers
// (FarmHasher, HighwayHasher) also change the hash, with overwhelming
// probability, when the items are permuted; WeightedSumHasher does not.
//
// Injecting the hasher lets tests use a weak, fully predictable function
// (WeightedSumHasher) while production uses a high-quality 64-bit hash
// (FarmHasher or HighwayHasher); see spec.md §9's "configurable hash
// function" note.
type Hasher interface {
	HashWindow(items []string) uint64
}

// encodeWindow concatenates a k-gram into a single byte slice the way the
// original compare50 winnowing.py hashes `"".join(items)` before hashing.
func encodeWindow(items []string) []byte {
	n := 0
	for _, it := range items {
		n += len(it)
	}
	buf := make([]byte, 0, n)
	for _, it := range items {
		buf = append(buf, it...)
	}
	return buf
}

// FarmHasher hashes a k-gram with Google's farmhash, the production hash
// used by fusion.hashKmer in the teacher codebase.
type FarmHasher struct{}

// HashWindow implements Hasher.
func (FarmHasher) HashWindow(items []string) uint64 {
	return farm.Hash64(encodeWindow(items))
}

// HighwayHasher hashes a k-gram with HighwayHash, an alternative
// high-quality 64-bit hash (minio/highwayhash). Offered alongside
// FarmHasher so operators can pick the hash whose collision profile best
// suits their corpus size without touching the winnower itself.
type HighwayHasher struct {
	// Key is the 32-byte HighwayHash key. A zero Key (the default) is fine
	// for a single process's fingerprint run, since the key only needs to
	// be unpredictable across processes wanting bit-for-bit comparable
	// digests; within one pipeline run every span is hashed with the same
	// key, which is all correctness requires.
	Key [highwayhash.Size]byte
}

// HashWindow implements Hasher.
func (h HighwayHasher) HashWindow(items []string) uint64 {
	sum := highwayhash.Sum(encodeWindow(items), h.Key[:])
	return binary.LittleEndian.Uint64(sum[:8])
}

// WeightedSumHasher reproduces spec.md §8's testing hash,
// hash_window(x) = Σ ord(x_i), summing every byte of every item. It
// exists purely so unit tests can hand-construct expected fingerprints by
// hand, exactly as the worked examples in spec.md and
// original_source/compare/winnowing.py's test fixtures do.
type WeightedSumHasher struct{}

// HashWindow implements Hasher.
func (WeightedSumHasher) HashWindow(items []string) uint64 {
	var sum uint64
	for _, it := range items {
		for _, b := range []byte(it) {
			sum += uint64(b)
		}
	}
	return sum
}
