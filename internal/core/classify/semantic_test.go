package classify

import (
	"testing"
	"time"

	"cashgate/internal/core/record"

	"github.com/shopspring/decimal"
)

func rec(dir record.Direction, ch record.Channel, amount string, cat, nar string) record.Canonical {
	amt, _ := decimal.NewFromString(amount)
	return record.Canonical{
		SubjectRef:   "subj-1",
		MerchantID:   "M1",
		EventTS:      time.Date(2025, 11, 5, 10, 0, 0, 0, time.FixedZone("IST", 19800)),
		Amount:       amt,
		Direction:    dir,
		Channel:      ch,
		RawCategory:  cat,
		RawNarration: nar,
	}
}

func TestClassifySemantic_PriorityTable(t *testing.T) {
	tests := []struct {
		name    string
		rec     record.Canonical
		purpose Purpose
		conf    float64
	}{
		{
			name:    "fee keywords win first",
			rec:     rec(record.DirectionDebit, record.ChannelBank, "45", "gateway fee", ""),
			purpose: PurposeSettlementOrFee,
			conf:    0.85,
		},
		{
			name:    "refund keywords",
			rec:     rec(record.DirectionDebit, record.ChannelUPI, "120", "", "customer refund"),
			purpose: PurposeRefundOrRev,
			conf:    0.85,
		},
		{
			name:    "owner transfer",
			rec:     rec(record.DirectionDebit, record.ChannelBank, "5000", "owner withdrawal", ""),
			purpose: PurposeOwnerTransfer,
			conf:    0.80,
		},
		{
			name:    "platform settlement",
			rec:     rec(record.DirectionCredit, record.ChannelBank, "90000", "", "daily settlement t+1"),
			purpose: PurposeSettlementOrFee,
			conf:    0.80,
		},
		{
			name:    "inventory with expected debit pattern",
			rec:     rec(record.DirectionDebit, record.ChannelNetBanking, "25000", "supplier payment", ""),
			purpose: PurposeInventory,
			conf:    0.90, // 0.75 + recurrence boost
		},
		{
			name:    "opex statutory",
			rec:     rec(record.DirectionDebit, record.ChannelNetBanking, "12000", "gst", ""),
			purpose: PurposeOpexOrStatutory,
			conf:    0.75,
		},
		{
			name:    "sale keyword",
			rec:     rec(record.DirectionCredit, record.ChannelBank, "900", "pos order", ""),
			purpose: PurposeSale,
			conf:    0.70,
		},
		{
			name:    "sale-like upi credit without hints",
			rec:     rec(record.DirectionCredit, record.ChannelUPI, "120.50", "", ""),
			purpose: PurposeSale,
			conf:    0.70,
		},
		{
			name:    "reimbursement keywords on a debit",
			rec:     rec(record.DirectionDebit, record.ChannelBank, "800", "insurance claim", ""),
			purpose: PurposeReimbursement,
			conf:    0.70,
		},
		{
			name:    "no signals at all",
			rec:     rec(record.DirectionDebit, record.ChannelBank, "80", "", ""),
			purpose: PurposeUnknown,
			conf:    0.30,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			sem := ClassifySemantic(tc.rec)
			if sem.Purpose != tc.purpose {
				t.Fatalf("purpose = %s, want %s (rules %v)", sem.Purpose, tc.purpose, sem.RulesFired)
			}
			if !almost(sem.Confidence, tc.conf) {
				t.Fatalf("confidence = %v, want %v (rules %v)", sem.Confidence, tc.conf, sem.RulesFired)
			}
		})
	}
}

func TestClassifySemantic_ConflictPenalties(t *testing.T) {
	// sale label on a debit contradicts itself
	sem := ClassifySemantic(rec(record.DirectionDebit, record.ChannelUPI, "300", "sales", ""))
	if sem.Purpose != PurposeSale {
		t.Fatalf("purpose = %s", sem.Purpose)
	}
	if !almost(sem.Confidence, 0.50) {
		t.Fatalf("confidence = %v, want 0.50 after conflict penalty", sem.Confidence)
	}

	// very large round sale looks like an owner movement
	sem = ClassifySemantic(rec(record.DirectionCredit, record.ChannelBank, "500000", "invoice", ""))
	if !almost(sem.Confidence, 0.50) {
		t.Fatalf("confidence = %v, want 0.50 for large round sale", sem.Confidence)
	}
}

func TestClassifySemantic_ConfidenceClamped(t *testing.T) {
	// debit + large round sale stacks both penalties (0.70 - 0.40); must stay in [0,1]
	sem := ClassifySemantic(rec(record.DirectionDebit, record.ChannelBank, "500000", "sales", ""))
	if sem.Confidence < 0 || sem.Confidence > 1 {
		t.Fatalf("confidence %v out of [0,1]", sem.Confidence)
	}
}

func TestClassifySemantic_FoldsObfuscatedHints(t *testing.T) {
	// fullwidth REFUND must still match the refund rule
	sem := ClassifySemantic(rec(record.DirectionDebit, record.ChannelUPI, "100", "ＲＥＦＵＮＤ", ""))
	if sem.Purpose != PurposeRefundOrRev {
		t.Fatalf("purpose = %s, want REFUND_OR_REVERSAL", sem.Purpose)
	}
}

func almost(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
