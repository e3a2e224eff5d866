package domain

// Batch-level rejection reason codes. These surface verbatim to the caller;
// per-row reasons live in record.RejectReason and surface only as counts
const (
	ReasonEmptyBatch             = "EMPTY_BATCH"
	ReasonNoValidRows            = "NO_VALID_ROWS"
	ReasonLowAcceptRatio         = "LOW_ACCEPT_RATIO"
	ReasonDeclaredRangeViolation = "DECLARED_RANGE_VIOLATION"
	ReasonMissingRequiredColumn  = "MISSING_REQUIRED_COLUMN"
)

// StatusIngested is the success status for both ingestion operations
const StatusIngested = "INGESTED_DERIVED_ONLY"
