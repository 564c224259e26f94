package pipeline

// Opts collects the configuration options spec.md §6 names for one pass of
// the similarity engine, mirroring fusion.Opts/fusion.DefaultOpts in shape.
type Opts struct {
	// K is the n-gram length (spec.md §4.2). Must be >= 1.
	K int
	// T is the guarantee threshold; the winnowing window size is T-K+1.
	// Must be >= K.
	T int
	// BySpan names the by-span preprocessor mode (spec.md §4.2) instead
	// of by-character. Driver.Run and Driver.CompareArchive do not read
	// this field: each file's mode is taken from the BySpan flag of the
	// Preprocessed value the pass's Preprocessor returns.
	BySpan bool
	// TopN is the number of ranked submission pairs Compare should return.
	TopN int
}

// DefaultOpts are reasonable defaults for source-code-sized submissions:
// K=25 (long enough that English/code filler words rarely collide by
// accident), T=35 (window size 11, per the winnowing-guarantee tradeoff
// described in spec.md §8 property 2), and the top 10 pairs.
var DefaultOpts = Opts{
	K:      25,
	T:      35,
	BySpan: false,
	TopN:   10,
}
