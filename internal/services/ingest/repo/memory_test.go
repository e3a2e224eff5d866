package repo

import (
	"context"
	"testing"
	"time"

	"cashgate/internal/core/record"
	"cashgate/internal/services/ingest/domain"

	"github.com/shopspring/decimal"
)

func meta(key string) domain.BatchMetadata {
	return domain.BatchMetadata{
		SubjectRef:     "subj",
		Source:         "PAYTM",
		IdempotencyKey: key,
		ContentHash:    "hash",
		RowsAccepted:   2,
		InferredRange: domain.TSRange{
			Min: time.Date(2025, 11, 5, 9, 0, 0, 0, time.UTC),
			Max: time.Date(2025, 11, 5, 18, 0, 0, 0, time.UTC),
		},
		RejectionBreakdown: map[record.RejectReason]int{},
		PolicyVersion:      "cct-policy/1",
	}
}

func dayAgg(day string, freeIn string, payers int) *domain.DailyAggregate {
	agg := domain.NewDailyAggregate("subj", day)
	amt := decimal.RequireFromString(freeIn)
	agg.BucketSums["FREE_IN"] = amt
	agg.BucketCounts["FREE_IN"] = 1
	agg.InflowSum = amt
	agg.FreeCashNet = amt
	agg.UniquePayersCount = payers
	agg.OwnerDependencyRatio = 0
	return agg
}

func TestMemory_DuplicateBatch(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id1, err := m.CommitBatch(ctx, meta("k1"))
	if err != nil || id1 == "" {
		t.Fatalf("first commit: %v", err)
	}
	if _, err := m.CommitBatch(ctx, meta("k1")); err != domain.ErrDuplicateBatch {
		t.Fatalf("second commit err = %v, want ErrDuplicateBatch", err)
	}
	if id2, err := m.CommitBatch(ctx, meta("k2")); err != nil || id2 == id1 {
		t.Fatalf("distinct keys must commit with distinct ids: %v", err)
	}
}

// Repeated days merge additively; unique payers keep the upper bound
func TestMemory_AdditiveMerge(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, _ := m.CommitBatch(ctx, meta("k1"))
	if err := m.CommitDailyAggregates(ctx, id, []*domain.DailyAggregate{dayAgg("2025-11-05", "100.00", 3)}); err != nil {
		t.Fatal(err)
	}

	id2, _ := m.CommitBatch(ctx, meta("k2"))
	if err := m.CommitDailyAggregates(ctx, id2, []*domain.DailyAggregate{dayAgg("2025-11-05", "50.00", 2)}); err != nil {
		t.Fatal(err)
	}

	aggs := m.Aggregates()
	if len(aggs) != 1 {
		t.Fatalf("days = %d, want 1 merged row", len(aggs))
	}
	got := aggs[0]
	if !got.BucketSums["FREE_IN"].Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("FREE_IN sum = %s, want 150.00", got.BucketSums["FREE_IN"])
	}
	if got.BucketCounts["FREE_IN"] != 2 {
		t.Fatalf("FREE_IN count = %d, want 2", got.BucketCounts["FREE_IN"])
	}
	if got.UniquePayersCount != 3 {
		t.Fatalf("unique payers = %d, want upper bound 3", got.UniquePayersCount)
	}
	if !got.FreeCashNet.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("free cash net = %s", got.FreeCashNet)
	}
	// ratios recomputed from merged sums stay in bounds
	for _, r := range []float64{got.OwnerDependencyRatio, got.PassThroughRatio, got.UnknownFlowRatio} {
		if r < 0 || r > 1 {
			t.Fatalf("ratio %v out of [0,1]", r)
		}
	}
}

// Stored aggregates must not alias the caller's maps
func TestMemory_CopiesOnCommit(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	id, _ := m.CommitBatch(ctx, meta("k1"))
	agg := dayAgg("2025-11-05", "100.00", 1)
	_ = m.CommitDailyAggregates(ctx, id, []*domain.DailyAggregate{agg})

	agg.BucketCounts["FREE_IN"] = 999

	if got := m.Aggregates()[0].BucketCounts["FREE_IN"]; got != 1 {
		t.Fatalf("stored count mutated through caller map: %d", got)
	}
}
