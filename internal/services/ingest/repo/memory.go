// Package repo provides the storage port implementations for ingest
package repo

import (
	"context"
	"sort"
	"sync"

	"cashgate/internal/core/record"
	"cashgate/internal/services/ingest/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Memory is the in-process storage port. Tests and dev mode only; it mirrors
// the Postgres semantics: duplicate idempotency keys rejected atomically,
// repeated days merged additively, unique payer cardinality kept as the
// larger value (upper bound, no sketch)
type Memory struct {
	mu      sync.Mutex
	batches map[string]domain.BatchMetadata   // idempotency key -> metadata
	ids     map[string]string                 // idempotency key -> batch id
	daily   map[string]*domain.DailyAggregate // subject_ref|day -> aggregate
}

// NewMemory constructs an empty in-memory port
func NewMemory() *Memory {
	return &Memory{
		batches: make(map[string]domain.BatchMetadata),
		ids:     make(map[string]string),
		daily:   make(map[string]*domain.DailyAggregate),
	}
}

// CommitBatch implements domain.StoragePort
func (m *Memory) CommitBatch(_ context.Context, meta domain.BatchMetadata) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.batches[meta.IdempotencyKey]; dup {
		return "", domain.ErrDuplicateBatch
	}

	// deep-copy the breakdown so nothing request-scoped is shared
	breakdown := make(map[record.RejectReason]int, len(meta.RejectionBreakdown))
	for k, v := range meta.RejectionBreakdown {
		breakdown[k] = v
	}
	meta.RejectionBreakdown = breakdown

	id := uuid.NewString()
	m.batches[meta.IdempotencyKey] = meta
	m.ids[meta.IdempotencyKey] = id
	return id, nil
}

// CommitDailyAggregates implements domain.StoragePort
func (m *Memory) CommitDailyAggregates(_ context.Context, _ string, aggs []*domain.DailyAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, agg := range aggs {
		key := agg.SubjectRef + "|" + agg.Day
		cur, ok := m.daily[key]
		if !ok {
			m.daily[key] = cloneAggregate(agg)
			continue
		}
		mergeAggregate(cur, agg)
	}
	return nil
}

// mergeAggregate applies the additive conflict policy in place
func mergeAggregate(dst, src *domain.DailyAggregate) {
	dst.InflowSum = dst.InflowSum.Add(src.InflowSum)
	dst.OutflowSum = dst.OutflowSum.Add(src.OutflowSum)
	for k, n := range src.BucketCounts {
		dst.BucketCounts[k] += n
	}
	for k, v := range src.BucketSums {
		dst.BucketSums[k] = dst.BucketSums[k].Add(v)
	}
	dst.FreeCashNet = dst.FreeCashNet.Add(src.FreeCashNet)
	dst.AcceptedPartialRows += src.AcceptedPartialRows
	dst.UnknownCCTCount += src.UnknownCCTCount
	if src.UniquePayersCount > dst.UniquePayersCount {
		dst.UniquePayersCount = src.UniquePayersCount
	}

	// ratios recomputed from merged sums
	var totalIn, totalOut decimal.Decimal
	for _, cct := range record.AllCCT() {
		totalIn = totalIn.Add(dst.BucketSums[record.BucketKey(cct, record.DirectionCredit)])
		totalOut = totalOut.Add(dst.BucketSums[record.BucketKey(cct, record.DirectionDebit)])
	}
	const eps = 1e-9
	tin := totalIn.InexactFloat64()
	tflow := totalIn.Add(totalOut).InexactFloat64()
	if tin < eps {
		tin = eps
	}
	if tflow < eps {
		tflow = eps
	}
	artIn := dst.BucketSums[record.BucketKey(record.CCTArtificial, record.DirectionCredit)].InexactFloat64()
	ptIn := dst.BucketSums[record.BucketKey(record.CCTPassThrough, record.DirectionCredit)].InexactFloat64()
	ptOut := dst.BucketSums[record.BucketKey(record.CCTPassThrough, record.DirectionDebit)].InexactFloat64()
	unkIn := dst.BucketSums[record.BucketKey(record.CCTUnknown, record.DirectionCredit)].InexactFloat64()
	unkOut := dst.BucketSums[record.BucketKey(record.CCTUnknown, record.DirectionDebit)].InexactFloat64()
	dst.OwnerDependencyRatio = artIn / tin
	dst.PassThroughRatio = (ptIn + ptOut) / tflow
	dst.UnknownFlowRatio = (unkIn + unkOut) / tflow
}

func cloneAggregate(a *domain.DailyAggregate) *domain.DailyAggregate {
	c := *a
	c.BucketCounts = make(map[string]int64, len(a.BucketCounts))
	for k, v := range a.BucketCounts {
		c.BucketCounts[k] = v
	}
	c.BucketSums = make(map[string]decimal.Decimal, len(a.BucketSums))
	for k, v := range a.BucketSums {
		c.BucketSums[k] = v
	}
	return &c
}

// Inspection helpers for tests and the no-raw-storage property

// BatchCount reports how many batches committed
func (m *Memory) BatchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

// BatchByKey returns a committed batch and its id
func (m *Memory) BatchByKey(idempotencyKey string) (domain.BatchMetadata, string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.batches[idempotencyKey]
	return meta, m.ids[idempotencyKey], ok
}

// Aggregates returns deep copies of all stored day rows, ordered by key
func (m *Memory) Aggregates() []*domain.DailyAggregate {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.daily))
	for k := range m.daily {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]*domain.DailyAggregate, 0, len(keys))
	for _, k := range keys {
		out = append(out, cloneAggregate(m.daily[k]))
	}
	return out
}
