// Package service implements the ingest pipeline: validate, gate, normalize,
// classify, aggregate, key, commit. Order is fixed; no later stage ever sees
// data a previous stage rejected
package service

import (
	"strings"
	"time"

	"cashgate/internal/core/record"
	"cashgate/internal/services/ingest/adapter"

	"github.com/shopspring/decimal"
)

// knownStatusRejects are the status-gate buckets with dedicated counters;
// any other non-SUCCESS value lands in UNKNOWN_STATUS
var knownStatusRejects = map[string]record.RejectReason{
	"FAILED_INSUFFICIENT_FUNDS": record.RejectFailedInsufficientFunds,
	"FAILED_TIMEOUT":            record.RejectFailedTimeout,
	"FAILED_NETWORK":            record.RejectFailedNetwork,
	"INVALID_TOKEN":             record.RejectInvalidToken,
}

// validation is the outcome of the validate+gate+normalize stages for a batch
type validation struct {
	accepted  []record.Canonical
	breakdown map[record.RejectReason]int
	rejected  int
	partials  int // accepted rows flagged partial_record
}

// validateRows walks rows in order. For each row the first failing check
// determines its rejection bucket; a row is never double-counted. Surviving
// rows are normalized into canonical records
func validateRows(rows []adapter.Row, subjectRef string) validation {
	v := validation{breakdown: make(map[record.RejectReason]int)}

	reject := func(r record.RejectReason) {
		v.breakdown[r]++
		v.rejected++
	}

	for _, row := range rows {
		// required-field presence first, all five at once
		missing := false
		for _, col := range adapter.RequiredColumns {
			if strings.TrimSpace(row[col]) == "" {
				missing = true
				break
			}
		}
		if missing {
			reject(record.RejectMissingRequiredField)
			continue
		}

		ts, ok := parseEventTS(row["ts"])
		if !ok {
			reject(record.RejectInvalidTS)
			continue
		}

		amount, err := decimal.NewFromString(strings.TrimSpace(row["amount"]))
		if err != nil || !amount.IsPositive() {
			reject(record.RejectInvalidAmount)
			continue
		}

		direction, ok := record.ParseDirection(row["direction"])
		if !ok {
			reject(record.RejectInvalidDirection)
			continue
		}

		channel, ok := record.ParseChannel(row["channel"])
		if !ok {
			reject(record.RejectInvalidChannel)
			continue
		}

		// status gate runs only on validated rows
		if raw, present := row["record_status"]; present {
			status := normalizeStatus(raw)
			if status != "SUCCESS" {
				if bucket, known := knownStatusRejects[status]; known {
					reject(bucket)
				} else {
					reject(record.RejectUnknownStatus)
				}
				continue
			}
		}

		partial := parseBoolish(row["partial_record"])
		if partial {
			v.partials++
		}

		v.accepted = append(v.accepted, record.Canonical{
			SubjectRef:           subjectRef,
			MerchantID:           strings.TrimSpace(row["merchant_id"]),
			EventTS:              ts,
			Amount:               amount,
			Direction:            direction,
			Channel:              channel,
			RawCategory:          strings.TrimSpace(row["raw_category"]),
			RawNarration:         strings.TrimSpace(row["raw_narration"]),
			RawCounterpartyToken: strings.TrimSpace(row["raw_counterparty_token"]),
			PayerToken:           strings.TrimSpace(row["payer_token"]),
			PartialRecord:        partial,
		})
	}

	return v
}

// parseEventTS accepts RFC 3339 timestamps only; an explicit zone is
// mandatory, so "2006-01-02T15:04:05" without offset is invalid
func parseEventTS(raw string) (time.Time, bool) {
	s := strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// normalizeStatus folds record_status values: trim, upper, dashes and spaces
// to underscores, so "failed timeout" and "FAILED-TIMEOUT" bucket identically
func normalizeStatus(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}

// parseBoolish accepts the usual truthy spellings; anything else is false
func parseBoolish(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "t", "yes", "y":
		return true
	}
	return false
}
