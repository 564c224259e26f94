package pipeline

import (
	"bytes"
	"encoding/gob"

	"github.com/golang/snappy"
	"github.com/grailbio/base/errors"
	"github.com/gradescope/winnow/index"
	"github.com/gradescope/winnow/span"
)

// ResultRecord is the Result record (exposed, for persistence collaborator)
// contract of spec.md §6: a serializable summary of one PairReport, stripped
// of the fragment-level detail a renderer needs but a store does not, so a
// persistence layer can archive pass results without importing the
// fragment/expand packages at all.
type ResultRecord struct {
	PassName       string
	Pair           index.Pair
	Score          int
	EditSimilarity float64
	Fingerprints   []FingerprintRecord
}

// FingerprintRecord names one shared fingerprint contributing to a
// ResultRecord's Score: its hash and the span it occupied in each
// submission.
type FingerprintRecord struct {
	Hash      uint64
	Sub1Spans []span.Span
	Sub2Spans []span.Span
}

// NewResultRecord summarizes report into its persistable form.
func NewResultRecord(passName string, report PairReport) ResultRecord {
	byHash := make(map[uint64]*FingerprintRecord)
	var order []uint64
	for sp, hash := range report.SpanHash {
		rec, ok := byHash[hash]
		if !ok {
			rec = &FingerprintRecord{Hash: hash}
			byHash[hash] = rec
			order = append(order, hash)
		}
		if belongsToSub1(report, sp) {
			rec.Sub1Spans = append(rec.Sub1Spans, sp)
		} else {
			rec.Sub2Spans = append(rec.Sub2Spans, sp)
		}
	}
	records := make([]FingerprintRecord, len(order))
	for i, h := range order {
		records[i] = *byHash[h]
	}
	return ResultRecord{
		PassName:       passName,
		Pair:           report.Pair,
		Score:          report.Score,
		EditSimilarity: report.EditSimilarity,
		Fingerprints:   records,
	}
}

func belongsToSub1(report PairReport, sp span.Span) bool {
	for _, fr := range report.Sub1Files {
		if fr.File == sp.File {
			return true
		}
	}
	return false
}

// EncodeResultRecord gob-encodes rec and compresses the result with
// snappy, the way bamprovider's cache entries are snappy-framed before
// being handed to a remote store -- ResultRecords are many small spans
// repeated across a corpus and compress well.
func EncodeResultRecord(rec ResultRecord) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return nil, errors.E(err, "pipeline: encoding result record")
	}
	return snappy.Encode(nil, buf.Bytes()), nil
}

// DecodeResultRecord reverses EncodeResultRecord.
func DecodeResultRecord(data []byte) (ResultRecord, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return ResultRecord{}, errors.E(err, "pipeline: snappy-decoding result record")
	}
	var rec ResultRecord
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&rec); err != nil {
		return ResultRecord{}, errors.E(err, "pipeline: gob-decoding result record")
	}
	return rec, nil
}
