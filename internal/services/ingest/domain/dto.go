package domain

import "encoding/json"

// FileIngestInput is the transport-level input for tabular ingestion.
// Filename and Raw are request-scoped; only their hashes survive
type FileIngestInput struct {
	SubjectRef        string
	SubjectRefVersion string
	Source            string
	InputStartDate    string // ISO calendar date, optional
	InputEndDate      string // ISO calendar date, optional
	Filename          string
	Raw               []byte
}

// FeedEvent is one structured event in a feed batch. Unknown upstream fields
// are dropped by construction: this struct is the entire accepted contract
type FeedEvent struct {
	MerchantID           string      `json:"merchant_id"`
	TS                   string      `json:"ts"`
	Amount               json.Number `json:"amount"`
	Direction            string      `json:"direction"`
	Channel              string      `json:"channel"`
	RawCategory          string      `json:"raw_category,omitempty"`
	RawNarration         string      `json:"raw_narration,omitempty"`
	RawCounterpartyToken string      `json:"raw_counterparty_token,omitempty"`
	PayerToken           string      `json:"payer_token,omitempty"`
	RecordStatus         string      `json:"record_status,omitempty"`
	PartialRecord        *bool       `json:"partial_record,omitempty"`
}

// FeedIngestInput is the transport-level input for feed ingestion
type FeedIngestInput struct {
	SubjectRef            string      `json:"subject_ref" validate:"required"`
	SubjectRefVersion     string      `json:"subject_ref_version,omitempty"`
	Source                string      `json:"source" validate:"required"`
	WatermarkTS           string      `json:"watermark_ts,omitempty"`
	AllowMissingWatermark bool        `json:"allow_missing_watermark,omitempty"`
	InputStartDate        string      `json:"input_start_date,omitempty"`
	InputEndDate          string      `json:"input_end_date,omitempty"`
	// Events may arrive empty; the orchestrator turns that into EMPTY_BATCH
	Events []FeedEvent `json:"events"`
}

// RangeOut is a date or timestamp pair on the wire
type RangeOut struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// IngestOutput is the derived-only response for both ingestion operations.
// No raw rows, identifiers, file names, tokens, or narrations ever appear here
type IngestOutput struct {
	Status            string `json:"status"`
	BatchID           string `json:"batch_id"`
	SubjectRef        string `json:"subject_ref"`
	SubjectRefVersion string `json:"subject_ref_version,omitempty"`
	Source            string `json:"source"`

	FilenameHash string `json:"filename_hash,omitempty"`
	FileExt      string `json:"file_ext,omitempty"`
	ContentHash  string `json:"content_hash"`

	IdempotencyKey string `json:"idempotency_key"`

	RowsAccepted        int            `json:"rows_accepted"`
	RowsRejected        int            `json:"rows_rejected"`
	RejectionBreakdown  map[string]int `json:"rejection_breakdown"`
	AcceptedPartialRows int            `json:"accepted_partial_rows"`

	DeclaredRange *RangeOut `json:"declared_range,omitempty"`
	InferredRange RangeOut  `json:"inferred_range"`

	DailyAggregateDays int     `json:"daily_aggregate_days"`
	DailyControlDays   int     `json:"daily_control_days"`
	CCTUnknownRate     float64 `json:"cct_unknown_rate"`
	PayerTokenPresent  bool    `json:"payer_token_present"`

	WatermarkTS          string `json:"watermark_ts,omitempty"`
	EffectiveWatermarkTS string `json:"effective_watermark_ts,omitempty"`
}
