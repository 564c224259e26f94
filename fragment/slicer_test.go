package fragment

import (
	"testing"

	"github.com/gradescope/winnow/span"
)

func TestSliceRoundTrip(t *testing.T) {
	content := []byte("abcdefghij")
	spans := []span.Span{
		span.New(1, 1, 5, 100),
		span.New(1, 3, 7, 200),
	}
	frags := Slice(1, content, spans)

	var rebuilt []byte
	for _, f := range frags {
		rebuilt = append(rebuilt, f.Text...)
	}
	if string(rebuilt) != string(content) {
		t.Fatalf("round trip failed: got %q, want %q", rebuilt, content)
	}

	for i := 1; i < len(frags); i++ {
		if sameActiveSet(frags[i-1].Active, frags[i].Active) {
			t.Fatalf("adjacent fragments %d and %d have the same active set", i-1, i)
		}
	}
}

func TestSliceS5(t *testing.T) {
	// S5: content "abcdefghij", spans [1,5) and [3,7).
	content := []byte("abcdefghij")
	s1 := span.New(1, 1, 5, 1)
	s2 := span.New(1, 3, 7, 2)
	frags := Slice(1, content, []span.Span{s1, s2})

	wantTexts := []string{"a", "bc", "de", "fg", "hij"}
	if len(frags) != len(wantTexts) {
		t.Fatalf("got %d fragments, want %d: %+v", len(frags), len(wantTexts), texts(frags))
	}
	for i, want := range wantTexts {
		if string(frags[i].Text) != want {
			t.Fatalf("fragment[%d].Text = %q, want %q", i, frags[i].Text, want)
		}
	}

	wantActive := []map[span.Span]struct{}{
		{},
		{s1: {}},
		{s1: {}, s2: {}},
		{s2: {}},
		{},
	}
	for i := range wantActive {
		if !sameActiveSet(frags[i].Active, wantActive[i]) {
			t.Fatalf("fragment[%d].Active = %+v, want %+v", i, frags[i].Active, wantActive[i])
		}
	}
}

func TestSliceSpanStartingAtZero(t *testing.T) {
	content := []byte("abcdef")
	s1 := span.New(1, 0, 3, 99)
	frags := Slice(1, content, []span.Span{s1})

	wantTexts := []string{"abc", "def"}
	if len(frags) != len(wantTexts) {
		t.Fatalf("got %d fragments, want %d: %+v", len(frags), len(wantTexts), texts(frags))
	}
	for i, want := range wantTexts {
		if string(frags[i].Text) != want {
			t.Fatalf("fragment[%d].Text = %q, want %q", i, frags[i].Text, want)
		}
	}
	if !sameActiveSet(frags[0].Active, map[span.Span]struct{}{s1: {}}) {
		t.Fatalf("fragment[0].Active = %+v, want {%v}", frags[0].Active, s1)
	}
	if len(frags[1].Active) != 0 {
		t.Fatalf("fragment[1].Active = %+v, want empty", frags[1].Active)
	}
	for i := 1; i < len(frags); i++ {
		if sameActiveSet(frags[i-1].Active, frags[i].Active) {
			t.Fatalf("adjacent fragments %d and %d have the same active set", i-1, i)
		}
	}
}

func TestSliceNoSpansYieldsWholeFile(t *testing.T) {
	content := []byte("hello")
	frags := Slice(1, content, nil)
	if len(frags) != 1 || string(frags[0].Text) != "hello" {
		t.Fatalf("expected a single whole-file fragment, got %+v", frags)
	}
	if len(frags[0].Active) != 0 {
		t.Fatalf("expected an empty active set, got %+v", frags[0].Active)
	}
}

func texts(frags []Fragment) []string {
	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = string(f.Text)
	}
	return out
}

func sameActiveSet(a, b map[span.Span]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
