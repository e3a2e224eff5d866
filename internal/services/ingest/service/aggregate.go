package service

import (
	"sort"

	"cashgate/internal/core/record"
	"cashgate/internal/services/ingest/domain"

	"github.com/shopspring/decimal"
)

// epsilon guards ratio denominators
const epsilon = 1e-9

// classified pairs a canonical record with its control bucket
type classified struct {
	rec record.Canonical
	cct record.CCT
}

// aggregate rolls classified records into per-day control buckets.
// Days with zero accepted rows produce no row. The per-day distinct token
// sets live only on this stack frame; just their cardinality survives
func aggregate(xs []classified) []*domain.DailyAggregate {
	byDay := make(map[string]*domain.DailyAggregate)
	tokens := make(map[string]map[string]struct{})

	for _, x := range xs {
		day := x.rec.Day()
		agg, ok := byDay[day]
		if !ok {
			agg = domain.NewDailyAggregate(x.rec.SubjectRef, day)
			byDay[day] = agg
			tokens[day] = make(map[string]struct{})
		}

		key := record.BucketKey(x.cct, x.rec.Direction)
		agg.BucketCounts[key]++
		agg.BucketSums[key] = agg.BucketSums[key].Add(x.rec.Amount)

		if x.rec.Direction == record.DirectionCredit {
			agg.InflowSum = agg.InflowSum.Add(x.rec.Amount)
		} else {
			agg.OutflowSum = agg.OutflowSum.Add(x.rec.Amount)
		}

		if x.cct == record.CCTUnknown {
			agg.UnknownCCTCount++
		}
		if x.rec.PartialRecord {
			agg.AcceptedPartialRows++
		}
		if x.rec.RawCounterpartyToken != "" {
			tokens[day][x.rec.RawCounterpartyToken] = struct{}{}
		}
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	out := make([]*domain.DailyAggregate, 0, len(days))
	for _, d := range days {
		agg := byDay[d]
		agg.UniquePayersCount = len(tokens[d])
		derive(agg)
		out = append(out, agg)
	}
	return out
}

// derive computes the per-day ratios with epsilon-guarded denominators
func derive(agg *domain.DailyAggregate) {
	var totalIn, totalOut decimal.Decimal
	for _, cct := range record.AllCCT() {
		totalIn = totalIn.Add(agg.BucketSums[record.BucketKey(cct, record.DirectionCredit)])
		totalOut = totalOut.Add(agg.BucketSums[record.BucketKey(cct, record.DirectionDebit)])
	}
	tin := totalIn.InexactFloat64()
	tflow := totalIn.Add(totalOut).InexactFloat64()

	freeIn := agg.BucketSums[record.BucketKey(record.CCTFree, record.DirectionCredit)]
	freeOut := agg.BucketSums[record.BucketKey(record.CCTFree, record.DirectionDebit)]
	agg.FreeCashNet = freeIn.Sub(freeOut)

	artIn := agg.BucketSums[record.BucketKey(record.CCTArtificial, record.DirectionCredit)].InexactFloat64()
	ptIn := agg.BucketSums[record.BucketKey(record.CCTPassThrough, record.DirectionCredit)].InexactFloat64()
	ptOut := agg.BucketSums[record.BucketKey(record.CCTPassThrough, record.DirectionDebit)].InexactFloat64()
	unkIn := agg.BucketSums[record.BucketKey(record.CCTUnknown, record.DirectionCredit)].InexactFloat64()
	unkOut := agg.BucketSums[record.BucketKey(record.CCTUnknown, record.DirectionDebit)].InexactFloat64()

	agg.OwnerDependencyRatio = artIn / maxf(epsilon, tin)
	agg.PassThroughRatio = (ptIn + ptOut) / maxf(epsilon, tflow)
	agg.UnknownFlowRatio = (unkIn + unkOut) / maxf(epsilon, tflow)
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
