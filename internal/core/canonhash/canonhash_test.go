package canonhash

import (
	"encoding/json"
	"testing"
)

func TestCanonicalize_Table(t *testing.T) {
	tests := []struct {
		name string
		in   any
		out  string
	}{
		{"null", nil, "null"},
		{"bool", true, "true"},
		{"string escaped", "a\"b", `"a\"b"`},
		{"int", 42, "42"},
		{"number integral", json.Number("7"), "7"},
		{"number trailing zeros", json.Number("1.50"), "1.5"},
		{"number exponent", json.Number("15e-1"), "1.5"},
		{"float shortest", 80.00, "80"},
		{
			"object sorted keys",
			map[string]any{"b": 1, "a": "x"},
			`{"a":"x","b":1}`,
		},
		{
			"nested",
			map[string]any{"z": []any{1, "two", nil}, "a": map[string]any{"k": false}},
			`{"a":{"k":false},"z":[1,"two",null]}`,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := Canonicalize(tc.in)
			if err != nil {
				t.Fatalf("Canonicalize: %v", err)
			}
			if string(got) != tc.out {
				t.Fatalf("Canonicalize = %s, want %s", got, tc.out)
			}
		})
	}
}

func TestCanonicalize_RejectsUnsupported(t *testing.T) {
	if _, err := Canonicalize(struct{}{}); err == nil {
		t.Fatal("expected error for unsupported type")
	}
	if _, err := Canonicalize(json.Number("not-a-number")); err == nil {
		t.Fatal("expected error for malformed number")
	}
}

func TestSumCanonical_FormattingInsensitive(t *testing.T) {
	a := []any{map[string]any{"amount": json.Number("80.00"), "ts": "2025-11-05T12:00:00+05:30"}}
	b := []any{map[string]any{"ts": "2025-11-05T12:00:00+05:30", "amount": json.Number("80.0")}}

	ha, err := SumCanonical(a)
	if err != nil {
		t.Fatal(err)
	}
	hb, err := SumCanonical(b)
	if err != nil {
		t.Fatal(err)
	}
	if ha != hb {
		t.Fatalf("hashes differ for equivalent payloads: %s vs %s", ha, hb)
	}
}

func TestSumCanonical_OrderSensitive(t *testing.T) {
	x := map[string]any{"v": 1}
	y := map[string]any{"v": 2}

	hxy, _ := SumCanonical([]any{x, y})
	hyx, _ := SumCanonical([]any{y, x})
	if hxy == hyx {
		t.Fatal("document order must influence the digest")
	}
}

func TestSumBytes_Stable(t *testing.T) {
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := SumBytes([]byte("hello")); got != want {
		t.Fatalf("SumBytes = %s, want %s", got, want)
	}
	if SumString("hello") != want {
		t.Fatal("SumString must agree with SumBytes")
	}
}
