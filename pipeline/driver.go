// Package pipeline wires span, fingerprint, index, expand, and fragment
// into the end-to-end comparison pass spec.md §4.6 (C7) describes: ingest a
// corpus of submissions, fingerprint and index them, rank submission pairs
// by shared fingerprint count, and expand+slice the winning pairs into
// renderer-facing fragments.
package pipeline

import (
	"context"
	"sort"

	"github.com/antzucaro/matchr"
	"github.com/grailbio/base/log"
	"github.com/gradescope/winnow/expand"
	"github.com/gradescope/winnow/fingerprint"
	"github.com/gradescope/winnow/fragment"
	"github.com/gradescope/winnow/index"
	"github.com/gradescope/winnow/span"
)

// FileMeta names one file within a Submission. Path is informational only
// (used for logging); file identity is File.
type FileMeta struct {
	File span.FileID
	Path string
}

// Submission is one corpus entry: a submission id and the ordered list of
// files it contains (spec.md §6's Renderer-facing "ordered list of files").
type Submission struct {
	ID    index.SubmissionID
	Files []FileMeta
}

// PassConfig names one winnowing configuration to run, mirroring
// compare50's "pass" concept: a preprocessor paired with the (k, t) it was
// tuned for. Driver.Run can be called once per PassConfig to compare a
// corpus under several configurations. Each call builds its own fileCache,
// so every call reads file content through the Store again.
type PassConfig struct {
	Name         string
	Opts         Opts
	Preprocessor Preprocessor
}

// Driver orchestrates one or more passes over a corpus of submissions,
// mirroring fusion.Indexer's role as the single entry point over an
// otherwise stateless set of package-level algorithms. It holds only the
// Store; the file cache is created per Run or CompareArchive call.
type Driver struct {
	Store Store
}

// NewDriver constructs a Driver backed by store.
func NewDriver(store Store) *Driver {
	return &Driver{Store: store}
}

// Run executes one PassConfig over corpus, optionally subtracting the
// fingerprints of a distro/boilerplate submission set first (spec.md §4.3's
// "used to strip distro/boilerplate fingerprints from a corpus index"), and
// returns a PairReport per top-scoring pair, most similar first.
//
// distro may be nil. Submission ids across corpus must be unique; distro's
// ids may overlap corpus's, since distro's index is only ever subtracted,
// never compared.
func (d *Driver) Run(ctx context.Context, cfg PassConfig, corpus []Submission, distro []Submission) ([]PairReport, error) {
	cache := newFileCache(ctx, d.Store)
	win := fingerprint.Winnower{K: cfg.Opts.K, T: cfg.Opts.T, Hasher: fingerprint.FarmHasher{}}

	corpusIdx, subIndex, err := d.buildIndex(cache, win, cfg.Preprocessor, corpus)
	if err != nil {
		return nil, err
	}

	if len(distro) > 0 {
		distroIdx, _, err := d.buildIndex(cache, win, cfg.Preprocessor, distro)
		if err != nil {
			return nil, err
		}
		if err := corpusIdx.Subtract(distroIdx); err != nil {
			return nil, ErrConfigMismatch.wrap(err, "subtracting distro index from corpus index")
		}
		for _, idx := range subIndex {
			if err := idx.Subtract(distroIdx); err != nil {
				return nil, ErrConfigMismatch.wrap(err, "subtracting distro index from a submission index")
			}
		}
	}

	result, err := corpusIdx.Compare(corpusIdx, cfg.Opts.TopN)
	if err != nil {
		return nil, ErrConfigMismatch.wrap(err, "self-comparing corpus index")
	}

	subByID := make(map[index.SubmissionID]Submission, len(corpus))
	for _, sub := range corpus {
		subByID[sub.ID] = sub
	}

	return d.buildPairReports(cache, result.Ranked, subIndex, subByID), nil
}

// CompareArchive fingerprints corpus and archive independently and reports
// the top cfg.Opts.TopN pairs, by shared fingerprint count, in which a
// corpus submission shares fingerprints with an archive submission
// (spec.md §4.6 step 4: "optionally build an archive index and
// compare corpus-vs-archive for prior-year reuse"). Unlike Run, this is not
// a self-comparison: every corpus/archive pair is a candidate, not just
// those with corpus-id < archive-id.
//
// index.Index.Compare's ordered-pair contract (sid1 < sid2) exists to avoid
// double-counting in a self-compare; applied directly to two independently
// numbered submission pools it would instead silently drop every pair whose
// archive id happens to sort below its corpus id. CompareArchive avoids
// this by renumbering archive submissions to ids guaranteed greater than
// every corpus id before calling Compare, then mapping the reported pairs'
// archive-side ids back to the caller's original Submission.ID.
func (d *Driver) CompareArchive(ctx context.Context, cfg PassConfig, corpus, archive []Submission) ([]PairReport, error) {
	cache := newFileCache(ctx, d.Store)
	win := fingerprint.Winnower{K: cfg.Opts.K, T: cfg.Opts.T, Hasher: fingerprint.FarmHasher{}}

	corpusIdx, corpusSubIdx, err := d.buildIndex(cache, win, cfg.Preprocessor, corpus)
	if err != nil {
		return nil, err
	}

	var maxCorpusID index.SubmissionID
	for _, sub := range corpus {
		if sub.ID > maxCorpusID {
			maxCorpusID = sub.ID
		}
	}

	renumbered := make(map[index.SubmissionID]index.SubmissionID, len(archive)) // renumbered -> original
	archiveForIndex := make([]Submission, len(archive))
	subByID := make(map[index.SubmissionID]Submission, len(corpus)+len(archive))
	for _, sub := range corpus {
		subByID[sub.ID] = sub
	}
	for i, sub := range archive {
		newID := maxCorpusID + 1 + index.SubmissionID(i)
		renumbered[newID] = sub.ID
		archiveForIndex[i] = Submission{ID: newID, Files: sub.Files}
		subByID[newID] = Submission{ID: newID, Files: sub.Files}
	}

	archiveIdx, archiveSubIdx, err := d.buildIndex(cache, win, cfg.Preprocessor, archiveForIndex)
	if err != nil {
		return nil, err
	}

	result, err := corpusIdx.Compare(archiveIdx, cfg.Opts.TopN)
	if err != nil {
		return nil, ErrConfigMismatch.wrap(err, "comparing corpus index against archive index")
	}

	subIndex := make(map[index.SubmissionID]*index.Index, len(corpusSubIdx)+len(archiveSubIdx))
	for id, idx := range corpusSubIdx {
		subIndex[id] = idx
	}
	for id, idx := range archiveSubIdx {
		subIndex[id] = idx
	}

	reports := d.buildPairReports(cache, result.Ranked, subIndex, subByID)
	for i := range reports {
		if orig, ok := renumbered[reports[i].Pair.Sub2]; ok {
			reports[i].Pair.Sub2 = orig
		}
	}
	return reports, nil
}

// buildIndex fingerprints every submission in subs under win/pp, returning
// both their union (for Merge/Compare) and each submission's own index (for
// later MatchGroups calls).
func (d *Driver) buildIndex(cache *fileCache, win fingerprint.Winnower, pp Preprocessor, subs []Submission) (*index.Index, map[index.SubmissionID]*index.Index, error) {
	merged := index.New(win.K)
	perSub := make(map[index.SubmissionID]*index.Index, len(subs))
	for _, sub := range subs {
		idx, err := d.fingerprintSubmission(cache, win, pp, sub)
		if err != nil {
			return nil, nil, err
		}
		perSub[sub.ID] = idx
		if err := merged.Merge(idx); err != nil {
			return nil, nil, ErrConfigMismatch.wrap(err, "merging submission %d into corpus index", sub.ID)
		}
	}
	return merged, perSub, nil
}

// buildPairReports builds a PairReport per ranked pair, logging and
// skipping ordinary per-pair failures but crashing loudly on an
// InvariantViolation (a preprocessor/core contract breach, never expected
// in correct operation, per spec.md §7).
func (d *Driver) buildPairReports(cache *fileCache, ranked []index.ScoredPair, subIndex map[index.SubmissionID]*index.Index, subByID map[index.SubmissionID]Submission) []PairReport {
	reports := make([]PairReport, 0, len(ranked))
	for _, scored := range ranked {
		report, err := d.buildPairReport(cache, scored, subIndex, subByID)
		if err != nil {
			if kind, ok := KindOf(err); ok && kind == KindInvariantViolation {
				log.Panicf("pipeline: invariant violation building report for pair %+v: %v", scored.Pair, err)
			}
			log.Error.Printf("pipeline: building report for pair %+v: %v", scored.Pair, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports
}

func (d *Driver) fingerprintSubmission(cache *fileCache, win fingerprint.Winnower, pp Preprocessor, sub Submission) (*index.Index, error) {
	var all []span.Span
	for _, fm := range sub.Files {
		content, err := cache.get(fm.File)
		if err != nil {
			return nil, err
		}
		prepped := pp.Preprocess(content)
		var spans []span.Span
		var err2 error
		if prepped.BySpan {
			spans, err2 = win.FingerprintTokens(fm.File, prepped.Tokens)
		} else {
			spans, err2 = win.FingerprintChars(fm.File, prepped.Chars)
		}
		if err2 != nil {
			return nil, err2
		}
		all = append(all, spans...)
	}
	return index.Build(win.K, all, sub.ID), nil
}

// PairReport is the Renderer-facing (exposed) contract of spec.md §6: the
// two submission identifiers, the ordered list of files in each, and for
// each file a list of Fragments with their active span sets, plus a
// mapping from span to its originating fingerprint hash (the span's
// "group") and a diagnostic Jaro-Winkler similarity over the matched text.
type PairReport struct {
	Pair           index.Pair
	Score          int
	EditSimilarity float64
	Sub1Files      []FileReport
	Sub2Files      []FileReport
	SpanHash       map[span.Span]uint64
}

// FileReport is one file's worth of fragments within a PairReport.
type FileReport struct {
	File      span.FileID
	Fragments []fragment.Fragment
}

func (d *Driver) buildPairReport(cache *fileCache, scored index.ScoredPair, subIndex map[index.SubmissionID]*index.Index, subByID map[index.SubmissionID]Submission) (PairReport, error) {
	idx1 := subIndex[scored.Pair.Sub1]
	idx2 := subIndex[scored.Pair.Sub2]
	groups := idx1.MatchGroups(idx2, scored.Pair.Sub1, scored.Pair.Sub2)

	grown, err := expand.Expand(cache, groups)
	if err != nil {
		if _, tagged := KindOf(err); tagged {
			// Already classified (an IOFailure from the file cache).
			return PairReport{}, err
		}
		return PairReport{}, ErrInvariantViolation.wrap(err, "expanding match groups for pair %+v", scored.Pair)
	}

	spanHash := make(map[span.Span]uint64)
	bySub1File := make(map[span.FileID][]span.Span)
	bySub2File := make(map[span.FileID][]span.Span)
	for _, g := range grown {
		for _, sp := range g.InSub1 {
			spanHash[sp] = g.Hash
			bySub1File[sp.File] = append(bySub1File[sp.File], sp)
		}
		for _, sp := range g.InSub2 {
			spanHash[sp] = g.Hash
			bySub2File[sp.File] = append(bySub2File[sp.File], sp)
		}
	}

	sub1 := subByID[scored.Pair.Sub1]
	sub2 := subByID[scored.Pair.Sub2]

	files1, err := sliceFiles(cache, sub1, bySub1File)
	if err != nil {
		return PairReport{}, err
	}
	files2, err := sliceFiles(cache, sub2, bySub2File)
	if err != nil {
		return PairReport{}, err
	}

	sim := matchedTextSimilarity(cache, bySub1File, bySub2File)

	return PairReport{
		Pair:           scored.Pair,
		Score:          scored.Score,
		EditSimilarity: sim,
		Sub1Files:      files1,
		Sub2Files:      files2,
		SpanHash:       spanHash,
	}, nil
}

func sliceFiles(cache *fileCache, sub Submission, byFile map[span.FileID][]span.Span) ([]FileReport, error) {
	reports := make([]FileReport, 0, len(sub.Files))
	for _, fm := range sub.Files {
		content, err := cache.get(fm.File)
		if err != nil {
			return nil, err
		}
		frags := fragment.Slice(fm.File, content, byFile[fm.File])
		reports = append(reports, FileReport{File: fm.File, Fragments: frags})
	}
	return reports, nil
}

// matchedTextSimilarity concatenates each side's matched spans, in file
// then byte order, and scores the two strings with Jaro-Winkler as a
// supplemental, human-readable diagnostic (spec.md §6) alongside the
// primary shared-fingerprint Score -- useful when two pairs tie on Score
// but one is a tighter textual match than the other.
func matchedTextSimilarity(cache *fileCache, bySub1File, bySub2File map[span.FileID][]span.Span) float64 {
	text1, err1 := concatSpans(cache, bySub1File)
	text2, err2 := concatSpans(cache, bySub2File)
	if err1 != nil || err2 != nil || text1 == "" || text2 == "" {
		return 0
	}
	return matchr.JaroWinkler(text1, text2, true)
}

func concatSpans(cache *fileCache, byFile map[span.FileID][]span.Span) (string, error) {
	files := make([]span.FileID, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i] < files[j] })

	var out []byte
	for _, f := range files {
		spans := byFile[f]
		sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })
		content, err := cache.get(f)
		if err != nil {
			return "", err
		}
		for _, sp := range spans {
			if sp.End <= len(content) {
				out = append(out, content[sp.Start:sp.End]...)
			}
		}
	}
	return string(out), nil
}
