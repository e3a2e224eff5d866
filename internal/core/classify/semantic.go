package classify

import (
	"strings"

	"cashgate/internal/core/record"
	"cashgate/internal/core/textfold"

	"github.com/shopspring/decimal"
)

// Role is the counterparty role inferred for a transaction
type Role string

// Roles
const (
	RoleCustomer   Role = "CUSTOMER"
	RoleSupplier   Role = "SUPPLIER"
	RoleObligation Role = "OBLIGATION"
	RolePlatform   Role = "PLATFORM"
	RoleOwner      Role = "OWNER"
	RoleThirdParty Role = "THIRD_PARTY"
	RoleUnknown    Role = "UNKNOWN"
)

// Purpose is the inferred economic purpose of a transaction
type Purpose string

// Purposes
const (
	PurposeSale            Purpose = "SALE"
	PurposeInventory       Purpose = "INVENTORY"
	PurposeOpexOrStatutory Purpose = "OPEX_OR_STATUTORY"
	PurposeSettlementOrFee Purpose = "SETTLEMENT_OR_FEE"
	PurposeRefundOrRev     Purpose = "REFUND_OR_REVERSAL"
	PurposeOwnerTransfer   Purpose = "OWNER_TRANSFER"
	PurposeReimbursement   Purpose = "REIMBURSEMENT"
	PurposeUnknown         Purpose = "UNKNOWN"
)

// Semantic is the ephemeral output of the role/purpose stage
type Semantic struct {
	Role       Role
	Purpose    Purpose
	Confidence float64 // base confidence after adjustments, clamped to [0,1]
	RulesFired []string
}

// keyword groups; policy-versioned, not contract
var (
	kwFeeCharge  = []string{"fee", "charge", "charges", "commission", "mdr"}
	kwRefund     = []string{"refund", "reversal", "chargeback"}
	kwOwner      = []string{"owner", "self", "capital", "withdrawal", "infusion", "director", "drawings"}
	kwSettlement = []string{"settlement", "gateway", "payout", "netting", "settle"}
	kwInventory  = []string{"supplier", "inventory", "stock", "procure", "wholesale"}
	kwOpex       = []string{"rent", "utility", "electricity", "water", "emi", "gst", "tax", "statutory"}
	kwSale       = []string{"sale", "sales", "invoice", "pos", "order", "revenue"}
	kwReimburse  = []string{"reimbursement", "insurance", "claim", "subsidy", "grant"}
)

// consumer-facing rails where an inbound credit smells like a sale
var consumerChannels = map[record.Channel]struct{}{
	record.ChannelUPI:    {},
	record.ChannelCard:   {},
	record.ChannelWallet: {},
}

// adjustment magnitudes
const (
	recurrenceBoost = 0.15
	conflictPenalty = 0.20

	// a credit at or below this is a small consumer ticket
	smallTicketMax = 5000

	// integral amounts at or above this look like owner movements, not sales
	largeRoundMin = 100000
)

// ClassifySemantic runs the priority-ordered rule table (first match wins)
// and then applies additive adjustments
func ClassifySemantic(c record.Canonical) Semantic {
	blob := hintBlob(c)

	sem := matchPriorityTable(c, blob)
	sem = adjust(sem, c)

	if sem.Confidence < 0 {
		sem.Confidence = 0
	}
	if sem.Confidence > 1 {
		sem.Confidence = 1
	}
	return sem
}

// hintBlob folds category and narration into one matchable string
func hintBlob(c record.Canonical) string {
	cat := textfold.Fold(c.RawCategory)
	nar := textfold.Fold(c.RawNarration)
	if cat == "" {
		return nar
	}
	if nar == "" {
		return cat
	}
	return cat + " " + nar
}

func matchPriorityTable(c record.Canonical, blob string) Semantic {
	switch {
	case containsAny(blob, kwFeeCharge):
		return Semantic{Role: RolePlatform, Purpose: PurposeSettlementOrFee, Confidence: 0.85, RulesFired: []string{"SEM_FEE_CHARGE"}}

	case containsAny(blob, kwRefund):
		return Semantic{Role: RolePlatform, Purpose: PurposeRefundOrRev, Confidence: 0.85, RulesFired: []string{"SEM_REFUND_REVERSAL"}}

	case containsAny(blob, kwOwner):
		return Semantic{Role: RoleOwner, Purpose: PurposeOwnerTransfer, Confidence: 0.80, RulesFired: []string{"SEM_OWNER_TRANSFER"}}

	case containsAny(blob, kwSettlement):
		return Semantic{Role: RolePlatform, Purpose: PurposeSettlementOrFee, Confidence: 0.80, RulesFired: []string{"SEM_PLATFORM_SETTLEMENT"}}

	case containsAny(blob, kwInventory):
		return Semantic{Role: RoleSupplier, Purpose: PurposeInventory, Confidence: 0.75, RulesFired: []string{"SEM_INVENTORY"}}

	case containsAny(blob, kwOpex):
		return Semantic{Role: RoleObligation, Purpose: PurposeOpexOrStatutory, Confidence: 0.75, RulesFired: []string{"SEM_OPEX_STATUTORY"}}

	case containsAny(blob, kwSale) || saleLikeCredit(c):
		return Semantic{Role: RoleCustomer, Purpose: PurposeSale, Confidence: 0.70, RulesFired: []string{"SEM_SALE"}}

	case containsAny(blob, kwReimburse):
		return Semantic{Role: RoleThirdParty, Purpose: PurposeReimbursement, Confidence: 0.70, RulesFired: []string{"SEM_REIMBURSEMENT"}}
	}
	return Semantic{Role: RoleUnknown, Purpose: PurposeUnknown, Confidence: 0.30, RulesFired: []string{"SEM_UNKNOWN"}}
}

// adjust applies the additive confidence adjustments:
// +recurrenceBoost when the record matches the expected pattern for its
// purpose, -conflictPenalty when signals contradict the assigned purpose
func adjust(sem Semantic, c record.Canonical) Semantic {
	switch sem.Purpose {
	case PurposeInventory:
		if c.Direction == record.DirectionDebit &&
			(c.Channel == record.ChannelBank || c.Channel == record.ChannelNetBanking) {
			sem.Confidence += recurrenceBoost
			sem.RulesFired = append(sem.RulesFired, "ADJ_SUPPLIER_DEBIT_PATTERN")
		}
	case PurposeOwnerTransfer:
		if isLargeRound(c.Amount) {
			sem.Confidence += recurrenceBoost
			sem.RulesFired = append(sem.RulesFired, "ADJ_OWNER_ROUND_PATTERN")
		}
	case PurposeSale:
		if c.Direction == record.DirectionDebit {
			sem.Confidence -= conflictPenalty
			sem.RulesFired = append(sem.RulesFired, "ADJ_CONFLICT_SALE_DEBIT")
		}
		if isLargeRound(c.Amount) {
			sem.Confidence -= conflictPenalty
			sem.RulesFired = append(sem.RulesFired, "ADJ_CONFLICT_SALE_LARGE_ROUND")
		}
	}
	return sem
}

func saleLikeCredit(c record.Canonical) bool {
	if c.Direction != record.DirectionCredit {
		return false
	}
	if _, ok := consumerChannels[c.Channel]; !ok {
		return false
	}
	return c.Amount.LessThanOrEqual(decimal.NewFromInt(smallTicketMax))
}

func isLargeRound(amount decimal.Decimal) bool {
	return amount.IsInteger() && amount.GreaterThanOrEqual(decimal.NewFromInt(largeRoundMin))
}

func containsAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}
