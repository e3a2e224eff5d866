// Package adapter turns transport payloads into uniform row maps for the
// ingest pipeline. Both adapters emit the same shape: ordered rows plus a
// stable content hash of the input
package adapter

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"cashgate/internal/core/canonhash"
	perr "cashgate/internal/platform/errors"
	"cashgate/internal/services/ingest/domain"
)

// Row is one parsed input row. Keys are column names; a key is present only
// when the source carried that column
type Row map[string]string

// Required tabular columns
var RequiredColumns = []string{"merchant_id", "ts", "amount", "direction", "channel"}

// Recognized optional columns; anything else is dropped at projection time
var OptionalColumns = []string{
	"record_status",
	"partial_record",
	"raw_category",
	"raw_narration",
	"raw_counterparty_token",
	"payer_token",
}

// ParseTabular decodes delimited text into rows and hashes the raw bytes.
// Fails fast when a required column is absent from the header
func ParseTabular(raw []byte, maxRows int) ([]Row, string, error) {
	contentHash := canonhash.SumBytes(raw)

	r := csv.NewReader(bytes.NewReader(raw))
	r.FieldsPerRecord = -1 // ragged rows become missing-field rejections downstream
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		// no header, no rows; the orchestrator turns this into EMPTY_BATCH
		return nil, contentHash, nil
	}
	if err != nil {
		return nil, "", perr.JSONErrf("unreadable tabular input")
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, req := range RequiredColumns {
		if _, ok := cols[req]; !ok {
			return nil, "", perr.BatchRejected(domain.ReasonMissingRequiredColumn)
		}
	}

	// keep required + allow-listed optionals only
	keep := make(map[string]int, len(RequiredColumns)+len(OptionalColumns))
	for _, c := range RequiredColumns {
		keep[c] = cols[c]
	}
	for _, c := range OptionalColumns {
		if i, ok := cols[c]; ok {
			keep[c] = i
		}
	}

	var rows []Row
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", perr.JSONErrf("unreadable tabular input")
		}
		if maxRows > 0 && len(rows) >= maxRows {
			return nil, "", perr.Newf(perr.ErrorCodeValidation, "too many rows: limit %d", maxRows)
		}
		row := make(Row, len(keep))
		for name, idx := range keep {
			if idx < len(rec) {
				row[name] = rec[idx]
			}
		}
		rows = append(rows, row)
	}

	return rows, contentHash, nil
}
