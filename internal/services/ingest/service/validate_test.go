package service

import (
	"testing"

	"cashgate/internal/core/record"
	"cashgate/internal/services/ingest/adapter"
)

func validRow() adapter.Row {
	return adapter.Row{
		"merchant_id": "M1",
		"ts":          "2025-11-05T09:01:00+05:30",
		"amount":      "120.50",
		"direction":   "credit",
		"channel":     "UPI",
	}
}

func withCell(row adapter.Row, k, v string) adapter.Row {
	out := make(adapter.Row, len(row)+1)
	for kk, vv := range row {
		out[kk] = vv
	}
	out[k] = v
	return out
}

// First failing check buckets the row; never double-counted
func TestValidateRows_FirstFailureWins(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(adapter.Row) adapter.Row
		want   record.RejectReason
	}{
		{
			name:   "missing merchant",
			mutate: func(r adapter.Row) adapter.Row { delete(r, "merchant_id"); return r },
			want:   record.RejectMissingRequiredField,
		},
		{
			name:   "blank amount counts as missing",
			mutate: func(r adapter.Row) adapter.Row { return withCell(r, "amount", "  ") },
			want:   record.RejectMissingRequiredField,
		},
		{
			name:   "zoneless timestamp",
			mutate: func(r adapter.Row) adapter.Row { return withCell(r, "ts", "2025-11-05T09:01:00") },
			want:   record.RejectInvalidTS,
		},
		{
			name:   "garbage timestamp",
			mutate: func(r adapter.Row) adapter.Row { return withCell(r, "ts", "notadate") },
			want:   record.RejectInvalidTS,
		},
		{
			name:   "zero amount",
			mutate: func(r adapter.Row) adapter.Row { return withCell(r, "amount", "0") },
			want:   record.RejectInvalidAmount,
		},
		{
			name:   "negative amount",
			mutate: func(r adapter.Row) adapter.Row { return withCell(r, "amount", "-5") },
			want:   record.RejectInvalidAmount,
		},
		{
			name:   "bad direction",
			mutate: func(r adapter.Row) adapter.Row { return withCell(r, "direction", "foo") },
			want:   record.RejectInvalidDirection,
		},
		{
			name:   "bad channel",
			mutate: func(r adapter.Row) adapter.Row { return withCell(r, "channel", "CASH") },
			want:   record.RejectInvalidChannel,
		},
		{
			// a row with both an unparseable ts and a zero amount buckets once, at ts
			name: "ts beats amount",
			mutate: func(r adapter.Row) adapter.Row {
				return withCell(withCell(r, "ts", "nope"), "amount", "0")
			},
			want: record.RejectInvalidTS,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			v := validateRows([]adapter.Row{tc.mutate(validRow())}, "subj")
			if len(v.accepted) != 0 {
				t.Fatalf("row should be rejected, accepted %d", len(v.accepted))
			}
			if v.rejected != 1 {
				t.Fatalf("rejected = %d, want 1", v.rejected)
			}
			total := 0
			for _, n := range v.breakdown {
				total += n
			}
			if total != 1 || v.breakdown[tc.want] != 1 {
				t.Fatalf("breakdown = %v, want exactly one %s", v.breakdown, tc.want)
			}
		})
	}
}

// Scenario: 10 rows, 6 valid, 2 zero amounts, 1 bad direction, 1 bad ts
func TestValidateRows_Mix(t *testing.T) {
	rows := []adapter.Row{}
	for i := 0; i < 6; i++ {
		rows = append(rows, validRow())
	}
	rows = append(rows,
		withCell(validRow(), "amount", "0"),
		withCell(validRow(), "amount", "0"),
		withCell(validRow(), "direction", "foo"),
		withCell(validRow(), "ts", "2025-13-99T00:00:00"),
	)

	v := validateRows(rows, "subj")
	if len(v.accepted) != 6 || v.rejected != 4 {
		t.Fatalf("accepted/rejected = %d/%d, want 6/4", len(v.accepted), v.rejected)
	}
	if v.breakdown[record.RejectInvalidAmount] != 2 ||
		v.breakdown[record.RejectInvalidDirection] != 1 ||
		v.breakdown[record.RejectInvalidTS] != 1 {
		t.Fatalf("breakdown = %v", v.breakdown)
	}
}

// Scenario: record_status present, 3 SUCCESS, 1 FAILED_TIMEOUT, 1 unrecognized
func TestValidateRows_StatusGate(t *testing.T) {
	rows := []adapter.Row{
		withCell(validRow(), "record_status", "SUCCESS"),
		withCell(validRow(), "record_status", "success"),
		withCell(validRow(), "record_status", " Success "),
		withCell(validRow(), "record_status", "failed timeout"),
		withCell(validRow(), "record_status", "PARTIAL_XYZ"),
	}

	v := validateRows(rows, "subj")
	if len(v.accepted) != 3 || v.rejected != 2 {
		t.Fatalf("accepted/rejected = %d/%d, want 3/2", len(v.accepted), v.rejected)
	}
	if v.breakdown[record.RejectFailedTimeout] != 1 || v.breakdown[record.RejectUnknownStatus] != 1 {
		t.Fatalf("breakdown = %v", v.breakdown)
	}
}

// partial_record never rejects; accepted partials are counted
func TestValidateRows_PartialFlag(t *testing.T) {
	rows := []adapter.Row{
		withCell(validRow(), "partial_record", "true"),
		withCell(validRow(), "partial_record", "1"),
		withCell(validRow(), "partial_record", "false"),
		validRow(),
	}

	v := validateRows(rows, "subj")
	if len(v.accepted) != 4 || v.rejected != 0 {
		t.Fatalf("accepted/rejected = %d/%d, want 4/0", len(v.accepted), v.rejected)
	}
	if v.partials != 2 {
		t.Fatalf("partials = %d, want 2", v.partials)
	}
	count := 0
	for _, rec := range v.accepted {
		if rec.PartialRecord {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("canonical partial flags = %d, want 2", count)
	}
}

// Accepted records satisfy the canonical invariants
func TestValidateRows_CanonicalInvariants(t *testing.T) {
	v := validateRows([]adapter.Row{validRow()}, "subj")
	if len(v.accepted) != 1 {
		t.Fatal("row should be accepted")
	}
	rec := v.accepted[0]
	if !rec.Amount.IsPositive() {
		t.Fatal("amount must be positive")
	}
	if rec.SubjectRef != "subj" {
		t.Fatalf("subject = %q", rec.SubjectRef)
	}
	_, off := rec.EventTS.Zone()
	if off != 5*3600+1800 {
		t.Fatalf("timezone offset = %d, want +05:30 preserved", off)
	}
	if rec.Day() != "2025-11-05" {
		t.Fatalf("day = %s", rec.Day())
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := map[string]string{
		"SUCCESS":        "SUCCESS",
		" failed-timeout": "FAILED_TIMEOUT",
		"failed network": "FAILED_NETWORK",
	}
	for in, want := range tests {
		if got := normalizeStatus(in); got != want {
			t.Fatalf("normalizeStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
