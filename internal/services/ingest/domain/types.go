// Package domain defines the derived types and ports for the ingest service.
//
// Only two shapes ever reach durable storage: BatchMetadata and
// DailyAggregate. Their field sets ARE the persistence whitelist; nothing in
// them can carry a counterparty identifier, payer token, narration, raw
// filename, or any per-row content
package domain

import (
	"time"

	"cashgate/internal/core/record"

	"github.com/shopspring/decimal"
)

// DateRange is a closed calendar-date interval
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the given day falls inside the range
func (r DateRange) Contains(day time.Time) bool {
	d := day.Truncate(24 * time.Hour)
	return !d.Before(r.Start) && !d.After(r.End)
}

// TSRange is the inferred timestamp envelope of accepted rows
type TSRange struct {
	Min time.Time
	Max time.Time
}

// BatchMetadata is the derived, persistable description of one ingested batch
type BatchMetadata struct {
	SubjectRef        string
	SubjectRefVersion string
	Source            string
	IdempotencyKey    string
	ContentHash       string
	FilenameHash      string
	FileExt           string

	RowsAccepted        int
	RowsRejected        int
	RejectionBreakdown  map[record.RejectReason]int
	AcceptedPartialRows int

	DeclaredRange *DateRange
	InferredRange TSRange

	CCTUnknownRate    float64
	PayerTokenPresent bool
	PolicyVersion     string

	// feed batches only
	WatermarkTS *time.Time
}

// DailyAggregate is the derived per-day control-bucket rollup.
// Primary key is (SubjectRef, Day)
type DailyAggregate struct {
	SubjectRef string
	Day        string // YYYY-MM-DD in the records' own timezone

	// legacy totals
	InflowSum  decimal.Decimal
	OutflowSum decimal.Decimal

	// BucketCounts and BucketSums hold all twelve bucket_direction cells,
	// zero-filled, keyed like FREE_IN / UNKNOWN_OUT
	BucketCounts map[string]int64
	BucketSums   map[string]decimal.Decimal

	// derived
	FreeCashNet          decimal.Decimal
	OwnerDependencyRatio float64
	PassThroughRatio     float64
	UnknownFlowRatio     float64
	UniquePayersCount    int
	AcceptedPartialRows  int
	UnknownCCTCount      int
}

// NewDailyAggregate returns a zero-filled aggregate for a day
func NewDailyAggregate(subjectRef, day string) *DailyAggregate {
	agg := &DailyAggregate{
		SubjectRef:   subjectRef,
		Day:          day,
		BucketCounts: make(map[string]int64, 12),
		BucketSums:   make(map[string]decimal.Decimal, 12),
	}
	for _, cct := range record.AllCCT() {
		for _, dir := range []record.Direction{record.DirectionCredit, record.DirectionDebit} {
			key := record.BucketKey(cct, dir)
			agg.BucketCounts[key] = 0
			agg.BucketSums[key] = decimal.Zero
		}
	}
	return agg
}
