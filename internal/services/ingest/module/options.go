package module

import (
	"cashgate/internal/core/classify"
	"cashgate/internal/platform/config"
)

// Options are the ingest policy knobs, read once from the INGEST_* namespace.
// Inner pipeline components never touch env; everything flows through here
type Options struct {
	MinAcceptRatio        *float64 // nil disables the guardrail
	MinCCTConfidence      float64
	AmbiguityDelta        float64
	ThresholdsJSON        string
	AllowMissingWatermark bool
	PolicyVersion         string
	MaxRows               int
}

// FromConfig reads options with spec defaults
func FromConfig(cfg config.Conf) Options {
	return Options{
		MinAcceptRatio:        cfg.MayOptionalFloat64("MIN_ACCEPT_RATIO", 0.10),
		MinCCTConfidence:      cfg.MayFloat64("MIN_CCT_CONFIDENCE", classify.DefaultMinCCTConfidence),
		AmbiguityDelta:        cfg.MayFloat64("AMBIGUITY_DELTA", classify.DefaultAmbiguityDelta),
		ThresholdsJSON:        cfg.MayString("CCT_THRESHOLDS_JSON", ""),
		AllowMissingWatermark: cfg.MayBool("ALLOW_MISSING_WATERMARK", false),
		PolicyVersion:         cfg.MayString("POLICY_VERSION", classify.DefaultVersion),
		MaxRows:               cfg.MayInt("MAX_ROWS", 0),
	}
}
