// Package span defines the value type shared by every stage of the
// similarity engine: a byte range in one file together with the hash it
// produced.
package span

import "fmt"

// FileID identifies a file within a submission. It is opaque to this
// package; the pipeline driver and file store agree on its meaning.
type FileID int64

// Span is an immutable byte range [Start, End) of file FileID, tagged with
// the 64-bit hash the range produced. Two Spans are equal iff all four
// fields are equal. A Span is never mutated after construction; it is safe
// to share by reference across indices and scoring tables.
type Span struct {
	File  FileID
	Start int
	End   int
	Hash  uint64
}

// New constructs a Span, panicking if the bounds invariant (0 <= start <
// end) is violated. Callers that cannot guarantee end > start (e.g. the
// winnower's sentinel buffer entries) should build the zero Span directly
// instead of going through New.
func New(file FileID, start, end int, hash uint64) Span {
	if start < 0 || end <= start {
		panic(fmt.Sprintf("span: invalid bounds [%d, %d)", start, end))
	}
	return Span{File: file, Start: start, End: end, Hash: hash}
}

// Len returns the number of bytes the Span covers.
func (s Span) Len() int {
	return s.End - s.Start
}

// Valid reports whether the Span's bounds fall within a file of the given
// length. A zero-value sentinel Span (used by the winnower's ring buffer
// before it fills) is never Valid.
func (s Span) Valid(fileLen int) bool {
	return s.Start >= 0 && s.Start < s.End && s.End <= fileLen
}

func (s Span) String() string {
	return fmt.Sprintf("Span{file:%d, [%d,%d), hash:%#x}", s.File, s.Start, s.End, s.Hash)
}
