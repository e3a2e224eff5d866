package classify

import (
	"sort"

	"cashgate/internal/core/record"
)

// Result is the ephemeral output of the CCT stage
type Result struct {
	CCT        record.CCT
	Confidence float64
	// Top2Delta is the confidence gap between the two strongest candidate
	// buckets; 1 when only a single bucket produced evidence
	Top2Delta  float64
	RulesFired []string
}

// BatchHints carries batch-scoped signals that individual rows cannot see
type BatchHints struct {
	// RefundDensity is the share of accepted rows whose purpose is
	// REFUND_OR_REVERSAL; high density degrades SALE toward PASS_THROUGH
	RefundDensity float64
}

// refundDensityHigh is the density above which sales look like pass-through flow
const refundDensityHigh = 0.30

// purposeCCT is the deterministic primary mapping of purposes to buckets
var purposeCCT = map[Purpose]record.CCT{
	PurposeSale:            record.CCTFree,
	PurposeInventory:       record.CCTConstrained,
	PurposeOpexOrStatutory: record.CCTConstrained,
	PurposeSettlementOrFee: record.CCTPassThrough,
	PurposeRefundOrRev:     record.CCTPassThrough,
	PurposeOwnerTransfer:   record.CCTArtificial,
	PurposeReimbursement:   record.CCTConditional,
	PurposeUnknown:         record.CCTUnknown,
}

type candidate struct {
	cct  record.CCT
	conf float64
	rule string
}

// ClassifyCCT maps a semantic result to a Cash Control Type, applying the
// threshold and ambiguity policies. The gates only ever widen UNKNOWN;
// they never reassign between concrete buckets
func ClassifyCCT(c record.Canonical, sem Semantic, hints BatchHints, pol Policy) Result {
	cands := dedupe(candidates(c, sem, hints))

	top := cands[0]
	delta := 1.0
	rules := []string{top.rule}

	if len(cands) > 1 {
		second := cands[1]
		delta = top.conf - second.conf
		if delta <= pol.AmbiguityDelta {
			// competing buckets too close to call
			return Result{
				CCT:        record.CCTUnknown,
				Confidence: top.conf,
				Top2Delta:  delta,
				RulesFired: []string{top.rule, second.rule, "GATE_AMBIGUOUS"},
			}
		}
	}

	if threshold := pol.ThresholdFor(top.cct); threshold > 0 && top.conf < threshold {
		return Result{
			CCT:        record.CCTUnknown,
			Confidence: top.conf,
			Top2Delta:  delta,
			RulesFired: append(rules, "GATE_LOW_CONFIDENCE"),
		}
	}

	return Result{CCT: top.cct, Confidence: top.conf, Top2Delta: delta, RulesFired: rules}
}

// candidates produces bucket candidates from independent evidence sources:
// hard keyword rules, category rules, narration rules, channel+direction
// heuristics, and the purpose mapping carrying the semantic confidence
func candidates(c record.Canonical, sem Semantic, hints BatchHints) []candidate {
	var out []candidate

	blob := hintBlob(c)

	// hard rules (highest weight)
	if containsAny(blob, []string{"settlement", "gateway", "fee", "commission", "mdr"}) {
		out = append(out, candidate{record.CCTPassThrough, 0.90, "HARD_SETTLEMENT_FEE"})
	}
	if containsAny(blob, kwRefund) {
		out = append(out, candidate{record.CCTPassThrough, 0.88, "HARD_REFUND_REVERSAL"})
	}
	if containsAny(blob, kwOwner) {
		out = append(out, candidate{record.CCTArtificial, 0.90, "HARD_OWNER_TRANSFER"})
	}

	// category rules (medium weight)
	if containsAny(blob, kwOpex) {
		out = append(out, candidate{record.CCTConstrained, 0.75, "CAT_OBLIGATION"})
	}
	if containsAny(blob, kwInventory) {
		out = append(out, candidate{record.CCTConstrained, 0.75, "CAT_INVENTORY"})
	}
	if containsAny(blob, kwSale) {
		out = append(out, candidate{record.CCTFree, 0.75, "CAT_SALE"})
	}
	if containsAny(blob, kwReimburse) {
		out = append(out, candidate{record.CCTConditional, 0.72, "CAT_REIMBURSEMENT"})
	}

	// narration rules (medium weight)
	if containsAny(blob, []string{"cashback", "promo"}) {
		out = append(out, candidate{record.CCTConditional, 0.70, "NAR_CASHBACK_PROMO"})
	}
	if containsAny(blob, []string{"settle", "netting"}) {
		out = append(out, candidate{record.CCTPassThrough, 0.70, "NAR_SETTLEMENT"})
	}

	// channel + direction heuristics (low weight)
	if c.Direction == record.DirectionDebit &&
		(c.Channel == record.ChannelBank || c.Channel == record.ChannelNetBanking) {
		out = append(out, candidate{record.CCTConstrained, 0.60, "HEUR_NETBANK_DEBIT"})
	}
	if c.Direction == record.DirectionCredit {
		if _, ok := consumerChannels[c.Channel]; ok {
			out = append(out, candidate{record.CCTFree, 0.60, "HEUR_CONSUMER_CREDIT"})
		}
	}

	// purpose mapping carrying the semantic confidence
	if sem.Purpose != PurposeUnknown {
		bucket := purposeCCT[sem.Purpose]
		rule := "PURPOSE_" + string(sem.Purpose)
		if sem.Purpose == PurposeSale && hints.RefundDensity > refundDensityHigh {
			// a sale amid heavy refund churn behaves like pass-through flow
			bucket = record.CCTPassThrough
			rule = "PURPOSE_SALE_REFUND_DEGRADED"
		}
		out = append(out, candidate{bucket, sem.Confidence, rule})
	}

	if len(out) == 0 {
		out = append(out, candidate{record.CCTUnknown, 0.50, "PURPOSE_UNKNOWN"})
	}
	return out
}

// dedupe keeps the strongest candidate per bucket and orders the survivors
// by confidence, breaking ties by bucket name for determinism
func dedupe(cands []candidate) []candidate {
	best := make(map[record.CCT]candidate, len(cands))
	for _, c := range cands {
		if cur, ok := best[c.cct]; !ok || c.conf > cur.conf {
			best[c.cct] = c
		}
	}
	out := make([]candidate, 0, len(best))
	for _, c := range best {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].conf != out[j].conf {
			return out[i].conf > out[j].conf
		}
		return out[i].cct < out[j].cct
	})
	return out
}
