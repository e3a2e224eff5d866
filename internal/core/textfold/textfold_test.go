package textfold

import "testing"

// Table covers each stage and combined pipelines
func TestFold_Table(t *testing.T) {
	tests := []struct {
		name string
		in   string
		out  string
	}{
		{
			name: "identity ascii",
			in:   "settlement fee",
			out:  "settlement fee",
		},
		{
			name: "case fold",
			in:   "ReFuNd",
			out:  "refund",
		},
		{
			name: "utf8 repair drops invalid bytes",
			in:   string([]byte{0xff, 'g', 's', 't', 0x80, ' ', 'd', 'u', 'e'}),
			out:  "gst due",
		},
		{
			name: "remove zero-widths",
			in:   "re​fu‍nd", // ZERO WIDTH SPACE + ZERO WIDTH JOINER
			out:  "refund",
		},
		{
			name: "remove combining marks",
			in:   "café rent", // "café" using combining acute accent
			out:  "cafe rent",
		},
		{
			name: "width fold fullwidth",
			in:   "ＯＷＮＥＲ transfer", // fullwidth OWNER
			out:  "owner transfer",
		},
		{
			name: "collapse whitespace",
			in:   "a\t\tb\nc   d",
			out:  "a b c d",
		},
		{
			name: "combined",
			in:   "  SETTLE​MENT  \t Charges\n",
			out:  "settlement charges",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := Fold(tc.in)
			if got != tc.out {
				t.Fatalf("Fold(%q) = %q, want %q", tc.in, got, tc.out)
			}
			// Idempotence check: folding again should be identical
			got2 := Fold(got)
			if got2 != got {
				t.Fatalf("Fold not idempotent: %q -> %q", got, got2)
			}
		})
	}
}

func TestCollapseSpaces(t *testing.T) {
	in := " \t a \n b   c \r\n "
	want := "a b c"
	got := collapseSpaces(in)
	if got != want {
		t.Fatalf("collapseSpaces(%q) = %q, want %q", in, got, want)
	}
}
