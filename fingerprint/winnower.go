// Package fingerprint implements the rolling hasher (C2) and the robust
// winnowing algorithm (C3) from spec.md §4.1-§4.2: it turns a preprocessed
// file into a stream of fingerprint Spans.
package fingerprint

import (
	"math"

	"github.com/grailbio/base/errors"
	"github.com/gradescope/winnow/span"
)

// ErrBadConfig is returned when a Winnower is constructed with K < 1 or
// T < K.
var ErrBadConfig = errors.New("fingerprint: k must be >= 1 and t must be >= k")

// CharItem is one element of the by-character preprocessor mode: a single
// (already-normalized) character together with its byte offset in the
// original file.
type CharItem struct {
	ByteIndex int
	Char      rune
}

// TokenItem is one element of the by-span preprocessor mode: a token's text
// together with the Span it already occupies in the original file.
type TokenItem struct {
	Text string
	Span span.Span
}

// items is the internal, mode-agnostic representation the winnowing loop
// operates over: a dense array of item texts plus the byte index where each
// one starts, with one sentinel trailing index (the byte just past the
// last item) the way spec.md §4.2 defines `indices[n]`.
type items struct {
	text    []string
	indices []int // len(indices) == len(text)+1
}

func itemsFromChars(chars []CharItem) items {
	n := len(chars)
	if n == 0 {
		return items{}
	}
	text := make([]string, n)
	indices := make([]int, n+1)
	for i, c := range chars {
		text[i] = string(c.Char)
		indices[i] = c.ByteIndex
	}
	indices[n] = chars[n-1].ByteIndex + 1
	return items{text: text, indices: indices}
}

func itemsFromTokens(toks []TokenItem) items {
	n := len(toks)
	if n == 0 {
		return items{}
	}
	text := make([]string, n)
	indices := make([]int, n+1)
	for i, tk := range toks {
		text[i] = tk.Text
		indices[i] = tk.Span.Start
	}
	indices[n] = toks[n-1].Span.End
	return items{text: text, indices: indices}
}

// Winnower runs robust winnowing with n-gram length K and guarantee
// threshold T (window size W = T-K+1), using Hasher to turn each k-gram
// into a 64-bit fingerprint.
type Winnower struct {
	K      int
	T      int
	Hasher Hasher
}

// W returns the winnowing window size T-K+1.
func (win Winnower) W() int {
	return win.T - win.K + 1
}

func (win Winnower) validate() error {
	if win.K < 1 || win.T < win.K {
		return ErrBadConfig
	}
	return nil
}

// FingerprintChars runs the winnower over a by-character preprocessed
// stream, per spec.md §4.2's "by-character" input mode.
func (win Winnower) FingerprintChars(file span.FileID, chars []CharItem) ([]span.Span, error) {
	if err := win.validate(); err != nil {
		return nil, err
	}
	return win.run(file, itemsFromChars(chars)), nil
}

// FingerprintTokens runs the winnower over a by-span preprocessed stream,
// per spec.md §4.2's "by-span" input mode.
func (win Winnower) FingerprintTokens(file span.FileID, toks []TokenItem) ([]span.Span, error) {
	if err := win.validate(); err != nil {
		return nil, err
	}
	return win.run(file, itemsFromTokens(toks)), nil
}

// run implements the ring-buffer robust-winnowing loop of spec.md §4.2,
// directly translated from original_source/compare/winnowing.py's
// Winnowing.create_index (the source this spec was distilled from). A file
// shorter than K items yields an empty stream, per spec.md §7's EmptyInput
// (not-an-error) contract.
func (win Winnower) run(file span.FileID, it items) []span.Span {
	n := len(it.text)
	k := win.K
	if n < k {
		return nil
	}
	w := win.W()
	numWindows := n - k + 1
	hashes := make([]uint64, numWindows)
	for i := 0; i < numWindows; i++ {
		hashes[i] = win.Hasher.HashWindow(it.text[i : i+k])
	}

	sentinel := span.Span{File: 0, Start: 0, End: 0, Hash: math.MaxUint64}
	buf := make([]span.Span, w)
	for i := range buf {
		buf[i] = sentinel
	}
	minIdx := 0

	var out []span.Span
	for i := 0; i < numWindows; i++ {
		idx := i % w
		buf[idx] = span.Span{File: file, Start: it.indices[i], End: it.indices[i+k], Hash: hashes[i]}

		switch {
		case minIdx == idx:
			// The previous minimum just left the window (or was just
			// overwritten): rescan newest-to-oldest and take the leftmost
			// strict improvement.
			for j := 1; j < w; j++ {
				search := ((idx-j)%w + w) % w
				if buf[search].Hash < buf[minIdx].Hash {
					minIdx = search
				}
			}
			out = append(out, buf[minIdx])
		case buf[idx].Hash < buf[minIdx].Hash:
			// Robust winnowing: emit only on strict improvement, never on a
			// tie with the existing minimum. See DESIGN.md's Open Question
			// (a) for why ties are not re-emitted here.
			minIdx = idx
			out = append(out, buf[minIdx])
		}
	}
	return out
}
