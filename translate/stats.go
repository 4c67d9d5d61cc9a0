package translate

import "sync/atomic"

// stats holds the pipeline's aggregate counters. All updates use relaxed
// (plain atomic) operations: counters are observational only and never
// feed back into a translation decision.
type stats struct {
	translated      atomic.Uint64
	blocks          atomic.Uint64
	parallelBatches atomic.Uint64
	fallbacks       atomic.Uint64
	timeNanos       atomic.Uint64
}

// Snapshot is a point-in-time copy of every counter the pipeline and its
// caches maintain, for consumption by monitoring.
type Snapshot struct {
	Translated       uint64 `json:"translated" jsonschema:"description=Instructions translated (block cache hits excluded)"`
	Blocks           uint64 `json:"blocks" jsonschema:"description=Blocks translated or served from the result cache"`
	ParallelBatches  uint64 `json:"parallelBatches" jsonschema:"description=Parallel batch calls"`
	MappingFallbacks uint64 `json:"mappingFallbacks" jsonschema:"description=Register mappings served by the ordinal fallback"`
	TimeNanos        uint64 `json:"timeNanos" jsonschema:"description=Aggregate translation wall time in nanoseconds"`

	EncodingHits   uint64 `json:"encodingHits"`
	EncodingMisses uint64 `json:"encodingMisses"`
	PatternHits    uint64 `json:"patternHits"`
	PatternMisses  uint64 `json:"patternMisses"`
	RegisterHits   uint64 `json:"registerHits"`
	RegisterMisses uint64 `json:"registerMisses"`
	ResultHits     uint64 `json:"resultHits"`
	ResultMisses   uint64 `json:"resultMisses"`
	ResultLen      int    `json:"resultLen"`
}

// AvgNanosPerInstruction returns the mean translation cost so far, or 0
// before any work.
func (s Snapshot) AvgNanosPerInstruction() float64 {
	if s.Translated == 0 {
		return 0
	}
	return float64(s.TimeNanos) / float64(s.Translated)
}

func rate(hits, misses uint64) float64 {
	if hits+misses == 0 {
		return 0
	}
	return float64(hits) / float64(hits+misses)
}

// HitRates summarizes per-cache hit rates.
type HitRates struct {
	Encoding float64 `json:"encoding"`
	Pattern  float64 `json:"pattern"`
	Register float64 `json:"register"`
	Result   float64 `json:"result"`
}
