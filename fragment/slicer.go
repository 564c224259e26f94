// Package fragment implements the fragment slicer (C6): given a file and a
// set of possibly-overlapping spans, it produces a flat, non-overlapping
// sequence of (text, active-span-set) fragments covering the file exactly
// (spec.md §4.5).
//
// Grounded on original_source/application.py's flatten_frags, with the
// sorted-unique-mark step built on github.com/biogo/store/llrb the way
// encoding/bampair/shard_info.go uses an llrb.Tree as an ordered index.
package fragment

import (
	"github.com/biogo/store/llrb"
	"github.com/gradescope/winnow/span"
)

// Fragment is a maximal run of file content with a constant active set of
// spans. Concatenating a file's Fragments in order reproduces the file
// exactly; adjacent Fragments always have different active sets (spec.md
// §3's Fragment invariants).
type Fragment struct {
	Text   []byte
	Active map[span.Span]struct{}
}

// markKey is an int wrapped to satisfy llrb.Comparable, used only to get a
// sorted, de-duplicated set of slicing marks out of the llrb tree.
type markKey int

// Compare implements llrb.Comparable.
func (m markKey) Compare(c llrb.Comparable) int {
	return int(m) - int(c.(markKey))
}

// Slice fragments content (the full byte content of file) against spans,
// which may overlap arbitrarily. Spans whose File field does not match file
// are ignored; callers are expected to pre-filter by file the way
// pipeline.Driver groups matched spans per file before slicing.
func Slice(file span.FileID, content []byte, spans []span.Span) []Fragment {
	fileLen := len(content)

	relevant := make([]span.Span, 0, len(spans))
	for _, sp := range spans {
		if sp.File == file {
			relevant = append(relevant, sp)
		}
	}

	var tree llrb.Tree
	seen := make(map[int]struct{})
	addMark := func(m int) {
		if m == 0 {
			// Mark 0 is never a sweep boundary (content[0:0] is empty); the
			// spans it would have activated are seeded into `active`
			// directly, below, instead.
			return
		}
		if _, ok := seen[m]; ok {
			return
		}
		seen[m] = struct{}{}
		tree.Insert(markKey(m))
	}
	for _, sp := range relevant {
		addMark(sp.Start)
		addMark(sp.End)
	}

	var marks []int
	tree.Do(func(c llrb.Comparable) (done bool) {
		marks = append(marks, int(c.(markKey)))
		return false
	})
	if len(marks) == 0 || marks[len(marks)-1] < fileLen {
		marks = append(marks, fileLen)
	}

	var fragments []Fragment
	active := make(map[span.Span]struct{})
	for _, sp := range relevant {
		if sp.Start == 0 {
			active[sp] = struct{}{}
		}
	}
	prev := 0
	for _, m := range marks {
		if m > prev {
			fragments = append(fragments, Fragment{
				Text:   content[prev:m],
				Active: copyActive(active),
			})
		}
		for _, sp := range relevant {
			if sp.Start == m {
				active[sp] = struct{}{}
			}
			if sp.End == m {
				delete(active, sp)
			}
		}
		prev = m
	}
	return fragments
}

func copyActive(active map[span.Span]struct{}) map[span.Span]struct{} {
	out := make(map[span.Span]struct{}, len(active))
	for sp := range active {
		out[sp] = struct{}{}
	}
	return out
}
