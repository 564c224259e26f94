// Package expand implements the match-context expander (C5): it grows a
// group of matched spans outward while every occurrence of the group's hash
// shares identical neighboring characters, recovering the maximal
// plagiarized region without re-running the hasher (spec.md §4.4).
//
// Grounded on original_source/application.py's compare()/expand_frags
// closure, rewritten as a pure function over a FileReader instead of
// re-opening files from a Flask request's temp directory.
package expand

import (
	"github.com/grailbio/base/errors"
	"github.com/gradescope/winnow/index"
	"github.com/gradescope/winnow/span"
)

// ErrInvariantViolation is returned when a Span's bounds fall outside the
// file FileReader reports, which indicates a preprocessor/core contract
// breach (spec.md §7) rather than a recoverable condition.
var ErrInvariantViolation = errors.New("expand: span out of file bounds")

// FileReader is the subset of the file store (consumed) contract (spec.md
// §6) the expander needs: single-byte reads of the original file content,
// plus the file's total length so the expander can recognize the file
// boundary. Implementations should memoize file content per pipeline run
// (spec.md §5); see pipeline's fileCache.
type FileReader interface {
	ByteAt(file span.FileID, i int) (byte, error)
	Len(file span.FileID) (int, error)
}

// Group is one expanded match group: the spans the group's Hash produced in
// each submission, after growing their shared boundaries.
type Group struct {
	Hash   uint64
	InSub1 []span.Span
	InSub2 []span.Span
}

type bound struct {
	file       span.FileID
	start, end int
}

// neighbor is the character immediately outside a span's current bounds on
// one side, or the boundary marker (⊥ in spec.md §4.4) when the span
// already touches the start/end of its file.
type neighbor struct {
	b          byte
	atBoundary bool
}

// Expand grows every match group independently and returns the grown
// groups in the same order as groups. Expansion never shrinks bounds
// (spec.md §8 property 5: start' <= start, end' >= end) and always
// terminates, since every growth step strictly reduces the distance to at
// least one file's boundary.
func Expand(fr FileReader, groups []index.MatchGroup) ([]Group, error) {
	out := make([]Group, len(groups))
	for i, g := range groups {
		grown, err := expandOne(fr, g)
		if err != nil {
			return nil, err
		}
		out[i] = grown
	}
	return out, nil
}

func expandOne(fr FileReader, g index.MatchGroup) (Group, error) {
	n1 := len(g.InSub1)
	bounds := make([]bound, n1+len(g.InSub2))
	for i, sp := range g.InSub1 {
		if err := checkBounds(fr, sp); err != nil {
			return Group{}, err
		}
		bounds[i] = bound{file: sp.File, start: sp.Start, end: sp.End}
	}
	for i, sp := range g.InSub2 {
		if err := checkBounds(fr, sp); err != nil {
			return Group{}, err
		}
		bounds[n1+i] = bound{file: sp.File, start: sp.Start, end: sp.End}
	}

	for {
		changed := false

		left, uniformLeft, err := uniformNeighbor(fr, bounds, true)
		if err != nil {
			return Group{}, err
		}
		if uniformLeft && !left.atBoundary {
			for i := range bounds {
				bounds[i].start--
			}
			changed = true
		}

		right, uniformRight, err := uniformNeighbor(fr, bounds, false)
		if err != nil {
			return Group{}, err
		}
		if uniformRight && !right.atBoundary {
			for i := range bounds {
				bounds[i].end++
			}
			changed = true
		}

		if !changed {
			break
		}
	}

	grown := Group{Hash: g.Hash}
	for i := 0; i < n1; i++ {
		grown.InSub1 = append(grown.InSub1, span.New(bounds[i].file, bounds[i].start, bounds[i].end, g.Hash))
	}
	for i := n1; i < len(bounds); i++ {
		grown.InSub2 = append(grown.InSub2, span.New(bounds[i].file, bounds[i].start, bounds[i].end, g.Hash))
	}
	return grown, nil
}

// uniformNeighbor collects the character just outside every span's current
// bounds on one side (left if asLeft, else right) and reports whether all
// spans agree on that neighbor.
func uniformNeighbor(fr FileReader, bounds []bound, asLeft bool) (neighbor, bool, error) {
	var val neighbor
	for i, b := range bounds {
		var n neighbor
		if asLeft {
			if b.start > 0 {
				ch, err := fr.ByteAt(b.file, b.start-1)
				if err != nil {
					return neighbor{}, false, err
				}
				n = neighbor{b: ch}
			} else {
				n = neighbor{atBoundary: true}
			}
		} else {
			length, err := fr.Len(b.file)
			if err != nil {
				return neighbor{}, false, err
			}
			if b.end < length {
				ch, err := fr.ByteAt(b.file, b.end)
				if err != nil {
					return neighbor{}, false, err
				}
				n = neighbor{b: ch}
			} else {
				n = neighbor{atBoundary: true}
			}
		}
		if i == 0 {
			val = n
		} else if n != val {
			return neighbor{}, false, nil
		}
	}
	return val, true, nil
}

func checkBounds(fr FileReader, sp span.Span) error {
	length, err := fr.Len(sp.File)
	if err != nil {
		return err
	}
	if !sp.Valid(length) {
		return errors.E(ErrInvariantViolation, sp)
	}
	return nil
}
