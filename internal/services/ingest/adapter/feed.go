package adapter

import (
	"strconv"

	"cashgate/internal/core/canonhash"
	perr "cashgate/internal/platform/errors"
	"cashgate/internal/services/ingest/domain"
)

// FeedRows projects structured events into pipeline rows and computes the
// content hash over their canonical serialization in document order. The
// request's byte layout (whitespace, key order, number formatting) never
// influences the digest
func FeedRows(events []domain.FeedEvent) ([]Row, string, error) {
	rows := make([]Row, 0, len(events))
	vals := make([]any, 0, len(events))

	for _, e := range events {
		row := Row{
			"merchant_id": e.MerchantID,
			"ts":          e.TS,
			"amount":      e.Amount.String(),
			"direction":   e.Direction,
			"channel":     e.Channel,
		}
		// a malformed amount still hashes (as its raw text) so that the row
		// can be counted as INVALID_AMOUNT instead of failing the batch
		var amount any = e.Amount
		if _, err := strconv.ParseFloat(e.Amount.String(), 64); err != nil {
			amount = e.Amount.String()
		}
		canon := map[string]any{
			"merchant_id": e.MerchantID,
			"ts":          e.TS,
			"amount":      amount,
			"direction":   e.Direction,
			"channel":     e.Channel,
		}

		if e.RawCategory != "" {
			row["raw_category"] = e.RawCategory
			canon["raw_category"] = e.RawCategory
		}
		if e.RawNarration != "" {
			row["raw_narration"] = e.RawNarration
			canon["raw_narration"] = e.RawNarration
		}
		if e.RawCounterpartyToken != "" {
			row["raw_counterparty_token"] = e.RawCounterpartyToken
			canon["raw_counterparty_token"] = e.RawCounterpartyToken
		}
		if e.PayerToken != "" {
			row["payer_token"] = e.PayerToken
			canon["payer_token"] = e.PayerToken
		}
		if e.RecordStatus != "" {
			row["record_status"] = e.RecordStatus
			canon["record_status"] = e.RecordStatus
		}
		if e.PartialRecord != nil {
			row["partial_record"] = strconv.FormatBool(*e.PartialRecord)
			canon["partial_record"] = *e.PartialRecord
		}

		rows = append(rows, row)
		vals = append(vals, canon)
	}

	contentHash, err := canonhash.SumCanonical(vals)
	if err != nil {
		return nil, "", perr.JSONErrf("uncanonicalizable event payload")
	}
	return rows, contentHash, nil
}
