// Package textfold provides a deterministic folder for classification hint text
// Pipeline order
// 1 UTF-8 repair drop invalid bytes
// 2 Unicode NFKC normalization
// 3 Case folding
// 4 Canonical decomposition, then remove zero-width and combining marks
// 5 Width fold fullwidth to ASCII
// 6 Collapse whitespace to single spaces and trim
//
// Category and narration hints are user-supplied and occasionally obfuscated;
// folding before keyword matching keeps the rule table honest
package textfold

import (
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// pool of fresh transformer chains
var chainPool = sync.Pool{
	New: func() any {
		// order matters and mirrors the documented pipeline
		return transform.Chain(
			norm.NFKC,
			cases.Fold(),                       // unicode case folding
			norm.NFD,                           // split precomposed letters so their marks can go
			runes.Remove(runes.In(unicode.Mn)), // strip combining marks
			runes.Remove(runes.In(unicode.Cf)), // strip format chars ZWJ ZWNJ FEFF etc
			width.Fold,                         // map fullwidth forms to ASCII
		)
	},
}

// Fold returns the folded form of s following the pipeline described above
func Fold(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ToValidUTF8(s, "")

	tr := chainPool.Get().(transform.Transformer)
	ns, _, err := transform.String(tr, s)
	tr.Reset()
	chainPool.Put(tr)
	if err != nil {
		ns = s
	}

	return collapseSpaces(ns)
}

// collapseSpaces trims and squeezes runs of whitespace into single spaces
func collapseSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
