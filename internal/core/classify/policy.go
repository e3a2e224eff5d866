// Package classify implements the ephemeral two-stage classification of
// canonical transactions: semantic role/purpose first, then the Cash Control
// Type with confidence thresholding and ambiguity resolution.
//
// Everything here is pure and deterministic: same record, same policy, same
// result. Keyword lists and heuristics are policy, not contract; any change
// to them must bump the policy version stamped on persisted batches
package classify

import (
	"encoding/json"
	"strings"

	"cashgate/internal/core/record"
)

// Default policy knobs
const (
	DefaultMinCCTConfidence = 0.70
	DefaultAmbiguityDelta   = 0.05
	DefaultVersion          = "cct-policy/1"
)

// Policy carries the classification knobs. Built once at module wiring from
// config and passed down immutably; inner components never read env
type Policy struct {
	// MinCCTConfidence gates the top candidate globally; 0 disables the gate
	MinCCTConfidence float64

	// AmbiguityDelta emits UNKNOWN when the top two candidates of different
	// buckets sit within this confidence distance
	AmbiguityDelta float64

	// Thresholds overrides the global gate per bucket
	Thresholds map[record.CCT]float64

	// Version is stamped on every persisted batch
	Version string
}

// DefaultPolicy returns the baseline policy
func DefaultPolicy() Policy {
	return Policy{
		MinCCTConfidence: DefaultMinCCTConfidence,
		AmbiguityDelta:   DefaultAmbiguityDelta,
		Version:          DefaultVersion,
	}
}

// ThresholdFor resolves the confidence gate for a bucket
func (p Policy) ThresholdFor(cct record.CCT) float64 {
	if t, ok := p.Thresholds[cct]; ok {
		return t
	}
	return p.MinCCTConfidence
}

// ParseThresholds decodes a bucket->threshold JSON mapping, e.g.
// {"FREE":0.8,"CONDITIONAL":0}. Unknown bucket names are ignored so a stale
// override cannot take the pipeline down
func ParseThresholds(raw string) map[record.CCT]float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var m map[string]float64
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	out := make(map[record.CCT]float64, len(m))
	known := make(map[record.CCT]struct{}, 6)
	for _, c := range record.AllCCT() {
		known[c] = struct{}{}
	}
	for k, v := range m {
		c := record.CCT(strings.ToUpper(strings.TrimSpace(k)))
		if _, ok := known[c]; ok {
			out[c] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
