// Package record defines the canonical in-memory transaction model and the
// enumerations the ingest pipeline agrees on.
//
// Canonical values are ephemeral by contract: they are built during
// normalization, consumed by classification and aggregation, and dropped when
// the request returns. Nothing in this package is ever persisted
package record

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the flow direction of a transaction
type Direction string

const (
	// DirectionCredit is money in
	DirectionCredit Direction = "credit"
	// DirectionDebit is money out
	DirectionDebit Direction = "debit"
)

// ParseDirection normalizes and validates a raw direction value
func ParseDirection(s string) (Direction, bool) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionCredit:
		return DirectionCredit, true
	case DirectionDebit:
		return DirectionDebit, true
	}
	return "", false
}

// Suffix returns the aggregate key suffix for the direction (IN/OUT)
func (d Direction) Suffix() string {
	if d == DirectionCredit {
		return "IN"
	}
	return "OUT"
}

// Channel is the payment rail a transaction arrived on
type Channel string

// Supported channels
const (
	ChannelUPI        Channel = "UPI"
	ChannelCard       Channel = "CARD"
	ChannelBank       Channel = "BANK"
	ChannelNetBanking Channel = "NET_BANKING"
	ChannelWallet     Channel = "WALLET"
	ChannelCOD        Channel = "COD_SETTLEMENT"
)

var channels = map[Channel]struct{}{
	ChannelUPI:        {},
	ChannelCard:       {},
	ChannelBank:       {},
	ChannelNetBanking: {},
	ChannelWallet:     {},
	ChannelCOD:        {},
}

// ParseChannel normalizes and validates a raw channel value
func ParseChannel(s string) (Channel, bool) {
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := channels[c]
	return c, ok
}

// CCT is the Cash Control Type assigned to a classified transaction
type CCT string

// Cash control buckets
const (
	CCTFree        CCT = "FREE"
	CCTConstrained CCT = "CONSTRAINED"
	CCTPassThrough CCT = "PASS_THROUGH"
	CCTArtificial  CCT = "ARTIFICIAL"
	CCTConditional CCT = "CONDITIONAL"
	CCTUnknown     CCT = "UNKNOWN"
)

// AllCCT returns every bucket in stable order; aggregation zero-fills from it
func AllCCT() []CCT {
	return []CCT{CCTFree, CCTConstrained, CCTPassThrough, CCTArtificial, CCTConditional, CCTUnknown}
}

// RejectReason buckets a rejected row; only the count per reason survives the batch
type RejectReason string

// Row validation buckets
const (
	RejectMissingRequiredField RejectReason = "MISSING_REQUIRED_FIELD"
	RejectInvalidTS            RejectReason = "INVALID_TS"
	RejectInvalidAmount        RejectReason = "INVALID_AMOUNT"
	RejectInvalidDirection     RejectReason = "INVALID_DIRECTION"
	RejectInvalidChannel       RejectReason = "INVALID_CHANNEL"
)

// Status gate buckets
const (
	RejectFailedInsufficientFunds RejectReason = "FAILED_INSUFFICIENT_FUNDS"
	RejectFailedTimeout           RejectReason = "FAILED_TIMEOUT"
	RejectFailedNetwork           RejectReason = "FAILED_NETWORK"
	RejectInvalidToken            RejectReason = "INVALID_TOKEN"
	RejectUnknownStatus           RejectReason = "UNKNOWN_STATUS"
)

// Canonical is a validated, normalized transaction row.
// Hint fields (RawCategory and friends) exist only to feed classification;
// they must never be copied into anything that outlives the batch
type Canonical struct {
	SubjectRef string
	MerchantID string
	EventTS    time.Time
	Amount     decimal.Decimal
	Direction  Direction
	Channel    Channel

	RawCategory          string
	RawNarration         string
	RawCounterpartyToken string
	PayerToken           string
	PartialRecord        bool
}

// Day returns the calendar day of the event in its own timezone
func (c Canonical) Day() string { return c.EventTS.Format("2006-01-02") }

// BucketKey builds the aggregate cell key, e.g. FREE_IN or UNKNOWN_OUT
func BucketKey(cct CCT, d Direction) string { return string(cct) + "_" + d.Suffix() }
