// winnow-compare runs one winnowing pass over a corpus of submission
// directories and prints the top similar pairs, in the style of
// bio-fusion's single-binary CLI over a multi-stage pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/gradescope/winnow/index"
	"github.com/gradescope/winnow/pipeline"
	"github.com/gradescope/winnow/span"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: winnow-compare [flags] <submission-dir>...

Each <submission-dir> is compared against every other; the top-N most
similar pairs are printed ranked by shared fingerprint count.

Flags:
`)
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage

	k := flag.Int("k", pipeline.DefaultOpts.K, "n-gram length")
	t := flag.Int("t", pipeline.DefaultOpts.T, "guarantee threshold (window size = t-k+1)")
	topN := flag.Int("top-n", pipeline.DefaultOpts.TopN, "number of ranked pairs to print")
	distroDir := flag.String("distro", "", "optional directory of boilerplate/starter-code files to subtract before comparing")
	archivePath := flag.String("archive", "", "optional tar.gz of prior-term submissions to compare the corpus against for reuse")
	whitespace := flag.Bool("collapse-whitespace", true, "collapse runs of whitespace before fingerprinting")

	cleanup := grail.Init()
	defer cleanup()

	if flag.NArg() < 2 {
		log.Fatalf("at least two submission directories are required, got %d", flag.NArg())
	}

	paths := make(map[span.FileID]string)
	nextFile := span.FileID(1)

	corpus := make([]pipeline.Submission, 0, flag.NArg())
	for i, dir := range flag.Args() {
		sub, err := loadSubmission(dir, index.SubmissionID(i+1), &nextFile, paths)
		if err != nil {
			log.Fatalf("loading %s: %v", dir, err)
		}
		corpus = append(corpus, sub)
	}

	var distro []pipeline.Submission
	if *distroDir != "" {
		sub, err := loadSubmission(*distroDir, index.SubmissionID(0), &nextFile, paths)
		if err != nil {
			log.Fatalf("loading distro %s: %v", *distroDir, err)
		}
		distro = []pipeline.Submission{sub}
	}

	pp := pipeline.Preprocessor(pipeline.IdentityPreprocessor{})
	if *whitespace {
		pp = pipeline.WhitespaceCollapsePreprocessor{}
	}

	cfg := pipeline.PassConfig{
		Name:         "default",
		Opts:         pipeline.Opts{K: *k, T: *t, TopN: *topN},
		Preprocessor: pp,
	}

	store := pipeline.MultiStore{pipeline.PathStore{Paths: paths}}

	var archive []pipeline.Submission
	if *archivePath != "" {
		f, err := os.Open(*archivePath)
		if err != nil {
			log.Fatalf("opening archive %s: %v", *archivePath, err)
		}
		sub, memStore, err := pipeline.LoadArchive(1, nextFile, f)
		f.Close()
		if err != nil {
			log.Fatalf("loading archive %s: %v", *archivePath, err)
		}
		archive = []pipeline.Submission{sub}
		store = append(store, memStore)
	}

	driver := pipeline.NewDriver(store)
	ctx := context.Background()

	reports, err := driver.Run(ctx, cfg, corpus, distro)
	if err != nil {
		log.Fatalf("comparison pass failed: %v", err)
	}

	dirByID := make(map[index.SubmissionID]string, len(corpus))
	for i, dir := range flag.Args() {
		dirByID[index.SubmissionID(i+1)] = dir
	}
	for _, r := range reports {
		fmt.Printf("%s <-> %s\tscore=%d\tedit-similarity=%.3f\n",
			dirByID[r.Pair.Sub1], dirByID[r.Pair.Sub2], r.Score, r.EditSimilarity)
	}
	log.Printf("compared %d submissions, reporting %d pairs", len(corpus), len(reports))

	if len(archive) > 0 {
		archiveReports, err := driver.CompareArchive(ctx, cfg, corpus, archive)
		if err != nil {
			log.Fatalf("archive comparison failed: %v", err)
		}
		for _, r := range archiveReports {
			fmt.Printf("%s <-> archive\tscore=%d\tedit-similarity=%.3f\n",
				dirByID[r.Pair.Sub1], r.Score, r.EditSimilarity)
		}
		log.Printf("compared %d submissions against the archive, reporting %d pairs", len(corpus), len(archiveReports))
	}
}

// loadSubmission walks dir and registers each regular file it finds under a
// fresh FileID in paths, advancing *nextFile.
func loadSubmission(dir string, id index.SubmissionID, nextFile *span.FileID, paths map[span.FileID]string) (pipeline.Submission, error) {
	var rels []string
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rels = append(rels, rel)
		return nil
	})
	if err != nil {
		return pipeline.Submission{}, err
	}
	sort.Strings(rels)

	sub := pipeline.Submission{ID: id}
	for _, rel := range rels {
		fileID := *nextFile
		*nextFile++
		paths[fileID] = filepath.Join(dir, rel)
		sub.Files = append(sub.Files, pipeline.FileMeta{File: fileID, Path: strings.ReplaceAll(rel, string(os.PathSeparator), "/")})
	}
	return sub, nil
}
