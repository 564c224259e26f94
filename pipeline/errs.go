package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies the error kinds spec.md §7 names. EmptyInput is
// deliberately absent: per spec.md, a file shorter than k items is not an
// error, so there is no corresponding Kind.
type Kind string

const (
	// KindConfigMismatch: merge/subtract/compare with incompatible k.
	KindConfigMismatch Kind = "ConfigMismatch"
	// KindIOFailure: reading file content failed.
	KindIOFailure Kind = "IOFailure"
	// KindInvariantViolation: a span fell outside its file's bounds during
	// expansion or slicing, indicating a preprocessor/core contract
	// breach rather than an ordinary runtime failure.
	KindInvariantViolation Kind = "InvariantViolation"
)

// kindedError tags an underlying error with one of the Kinds above so a
// caller can classify a pipeline failure the way spec.md §7 groups them.
// It implements Unwrap so errors.Is/errors.As still see through to the
// original index/expand sentinel (index.ErrConfigMismatch,
// expand.ErrInvariantViolation) the pipeline wraps.
type kindedError struct {
	kind Kind
	msg  string
	err  error
}

func (e *kindedError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("[%s] %s", e.kind, e.msg)
	}
	return fmt.Sprintf("[%s] %s: %v", e.kind, e.msg, e.err)
}

func (e *kindedError) Unwrap() error { return e.err }

type kindError struct{ kind Kind }

// wrap tags err with this Kind and a formatted message.
func (k kindError) wrap(err error, format string, args ...interface{}) error {
	return &kindedError{kind: k.kind, msg: fmt.Sprintf(format, args...), err: err}
}

var (
	// ErrIOFailure tags errors from reading file content (spec.md §7).
	ErrIOFailure = kindError{kind: KindIOFailure}
	// ErrConfigMismatch tags errors from combining indices of different k,
	// wrapping index.ErrConfigMismatch as it crosses into pipeline.
	ErrConfigMismatch = kindError{kind: KindConfigMismatch}
	// ErrInvariantViolation tags span-out-of-bounds errors surfaced from
	// expand.ErrInvariantViolation as they cross into pipeline.
	ErrInvariantViolation = kindError{kind: KindInvariantViolation}
)

// KindOf reports the Kind err was tagged with by kindError.wrap, and
// whether it was tagged at all (an error that never passed through
// pipeline's error-wrapping, e.g. a caller-supplied context.Canceled, is
// not).
func KindOf(err error) (Kind, bool) {
	var ke *kindedError
	if errors.As(err, &ke) {
		return ke.kind, true
	}
	return "", false
}
