// Package canonhash computes stable content hashes over raw bytes and over
// canonically serialized structured payloads.
//
// The canonical form is a strict JSON subset: object keys sorted
// lexicographically, no insignificant whitespace, numbers in shortest
// round-trip form, strings escaped per encoding/json. Two feeds carrying the
// same values therefore hash identically across processes and platforms
package canonhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// SumBytes returns the hex SHA-256 of raw bytes
func SumBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

// SumString returns the hex SHA-256 of a string
func SumString(s string) string { return SumBytes([]byte(s)) }

// SumCanonical canonicalizes each value and hashes the concatenation in
// document order. Used for event-list payloads where byte layout of the
// original request must not influence the digest
func SumCanonical(vals []any) (string, error) {
	h := sha256.New()
	for _, v := range vals {
		b, err := Canonicalize(v)
		if err != nil {
			return "", err
		}
		h.Write(b)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonicalize serializes v into canonical JSON bytes.
// Supported shapes: nil, bool, string, json.Number, float64, int/int64,
// map[string]any, []any, and nested combinations thereof
func Canonicalize(v any) ([]byte, error) {
	var b strings.Builder
	if err := writeCanonical(&b, v); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

func writeCanonical(b *strings.Builder, v any) error {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
	case string:
		enc, err := json.Marshal(t)
		if err != nil {
			return err
		}
		b.Write(enc)
	case json.Number:
		return writeNumber(b, t.String())
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("canonhash: non-finite number")
		}
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case int:
		b.WriteString(strconv.Itoa(t))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			enc, err := json.Marshal(k)
			if err != nil {
				return err
			}
			b.Write(enc)
			b.WriteByte(':')
			if err := writeCanonical(b, t[k]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeCanonical(b, e); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	default:
		return fmt.Errorf("canonhash: unsupported type %T", v)
	}
	return nil
}

// writeNumber re-renders a JSON number in shortest round-trip form so that
// "1.50", "1.5", and "15e-1" all canonicalize identically
func writeNumber(b *strings.Builder, s string) error {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		b.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("canonhash: bad number %q", s)
	}
	b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}
