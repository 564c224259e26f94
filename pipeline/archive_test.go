package pipeline

import (
	"archive/tar"
	"bytes"
	"context"
	"testing"

	"github.com/gradescope/winnow/index"
	"github.com/klauspost/compress/gzip"
)

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(content)), Typeflag: tar.TypeReg}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar Close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip Close: %v", err)
	}
	return buf.Bytes()
}

func TestLoadArchiveAssignsIDsInPathOrder(t *testing.T) {
	data := buildArchive(t, map[string]string{
		"b.go": "package b",
		"a.go": "package a",
	})

	sub, store, err := LoadArchive(7, 100, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadArchive: %v", err)
	}
	if sub.ID != 7 {
		t.Fatalf("sub.ID = %d, want 7", sub.ID)
	}
	if len(sub.Files) != 2 {
		t.Fatalf("got %d files, want 2", len(sub.Files))
	}
	if sub.Files[0].Path != "a.go" || sub.Files[1].Path != "b.go" {
		t.Fatalf("files not in lexicographic order: %+v", sub.Files)
	}
	if string(store[sub.Files[0].File]) != "package a" {
		t.Fatalf("content for a.go = %q", store[sub.Files[0].File])
	}
	if string(store[sub.Files[1].File]) != "package b" {
		t.Fatalf("content for b.go = %q", store[sub.Files[1].File])
	}
}

// TestDriverCompareArchiveFindsPriorYearReuse exercises the
// corpus-vs-archive comparison spec.md §4.6 step 4 describes, loading the
// archive side through LoadArchive the way a CLI would. The archive
// submission is deliberately given a lower SubmissionID than the corpus
// submission it matches, so this test also pins CompareArchive's id
// renumbering: a naive reuse of index.Index.Compare's self-comparison
// ordered-pair contract would silently drop this pair.
func TestDriverCompareArchiveFindsPriorYearReuse(t *testing.T) {
	shared := "the quick brown fox jumps over the lazy dog while the sun sets slowly"
	data := buildArchive(t, map[string]string{"solution.go": shared})

	archiveSub, archiveStore, err := LoadArchive(1, 100, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("LoadArchive: %v", err)
	}

	corpusStore := MemStore{
		5: []byte(shared),
		6: []byte("completely unrelated text about something else entirely, no overlap"),
	}
	corpus := []Submission{
		{ID: 5, Files: []FileMeta{{File: 5, Path: "a.go"}}},
		{ID: 6, Files: []FileMeta{{File: 6, Path: "b.go"}}},
	}

	d := NewDriver(MultiStore{corpusStore, archiveStore})
	cfg := PassConfig{Name: "test", Opts: Opts{K: 5, T: 8, TopN: 10}, Preprocessor: WhitespaceCollapsePreprocessor{}}

	reports, err := d.CompareArchive(context.Background(), cfg, corpus, []Submission{archiveSub})
	if err != nil {
		t.Fatalf("CompareArchive: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1: %+v", len(reports), reports)
	}
	want := index.Pair{Sub1: 5, Sub2: 1}
	if reports[0].Pair != want {
		t.Fatalf("pair = %+v, want %+v (archive id must map back to its original SubmissionID)", reports[0].Pair, want)
	}
	if reports[0].Score == 0 {
		t.Fatalf("expected a nonzero score for the shared submission/archive pair")
	}
}
