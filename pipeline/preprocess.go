package pipeline

import (
	"unicode"
	"unicode/utf8"

	"github.com/gradescope/winnow/fingerprint"
)

// Preprocessor is the consumed contract of spec.md §6: it turns raw file
// bytes into one of the two preprocessed representations the winnower
// understands. The core treats preprocessors as opaque and identifies a
// run only by Name() (spec.md's "Pass"); source-language-aware
// tokenization is explicitly out of scope (spec.md §1 Non-goals), so the
// preprocessors this package ships are generic, byte-level normalizers,
// not parsers.
type Preprocessor interface {
	Name() string
	Preprocess(content []byte) Preprocessed
}

// Preprocessed is the output of a Preprocessor run: either a by-character
// or a by-span stream, never both (spec.md §4.2).
type Preprocessed struct {
	BySpan bool
	Chars  []fingerprint.CharItem
	Tokens []fingerprint.TokenItem
}

// IdentityPreprocessor emits the file's bytes verbatim as by-character
// items, performing no normalization. Useful as a baseline pass and in
// tests that need byte offsets to match the raw file exactly.
type IdentityPreprocessor struct{}

// Name implements Preprocessor.
func (IdentityPreprocessor) Name() string { return "identity" }

// Preprocess implements Preprocessor.
func (IdentityPreprocessor) Preprocess(content []byte) Preprocessed {
	chars := make([]fingerprint.CharItem, 0, len(content))
	i := 0
	for i < len(content) {
		r, size := utf8.DecodeRune(content[i:])
		chars = append(chars, fingerprint.CharItem{ByteIndex: i, Char: r})
		i += size
	}
	return Preprocessed{Chars: chars}
}

// WhitespaceCollapsePreprocessor collapses every maximal run of Unicode
// whitespace into a single space before winnowing, the simplest
// normalization compare50-style tools apply so that reformatting alone
// doesn't defeat fingerprint matching. Each retained character keeps the
// byte index of its first occurrence in the original run, so spans it
// produces still point into the original file (spec.md §6's preprocessor
// contract: "honoring the file's characters after any normalization").
type WhitespaceCollapsePreprocessor struct{}

// Name implements Preprocessor.
func (WhitespaceCollapsePreprocessor) Name() string { return "whitespace-collapse" }

// Preprocess implements Preprocessor.
func (WhitespaceCollapsePreprocessor) Preprocess(content []byte) Preprocessed {
	var chars []fingerprint.CharItem
	i := 0
	inWhitespace := false
	for i < len(content) {
		r, size := utf8.DecodeRune(content[i:])
		if unicode.IsSpace(r) {
			if !inWhitespace {
				chars = append(chars, fingerprint.CharItem{ByteIndex: i, Char: ' '})
				inWhitespace = true
			}
		} else {
			chars = append(chars, fingerprint.CharItem{ByteIndex: i, Char: r})
			inWhitespace = false
		}
		i += size
	}
	return Preprocessed{Chars: chars}
}
