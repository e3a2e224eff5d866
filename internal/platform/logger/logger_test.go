package logger

import (
	"bytes"
	"context"
	"testing"

	"cashgate/internal/platform/testkit"
)

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{
		Level:   "info",
		Format:  "json",
		Service: "cashgate-test",
		Writer:  &buf,
	})

	Get().Info().Int("rows_accepted", 2).Msg("batch ingested")

	out := buf.String()
	testkit.MustContain(t, out, `"service":"cashgate-test"`)
	testkit.MustContain(t, out, `"rows_accepted":2`)
	testkit.MustContain(t, out, "batch ingested")

	// request-scoped child picks up ids from context
	buf.Reset()
	ctx := WithRequest(context.Background(), "req-1", "subj-1")
	C(ctx).Info().Msg("scoped")
	out = buf.String()
	testkit.MustContain(t, out, `"request_id":"req-1"`)
	testkit.MustContain(t, out, `"subject_ref":"subj-1"`)

	// debug is below the configured level
	buf.Reset()
	Get().Debug().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug line should be filtered: %q", buf.String())
	}
}

func TestNamed(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Format: "json", Writer: &buf}) // no-op after first Init

	Named("ingest").Info().Msg("component line")
	testkit.MustContain(t, buf.String(), `"component":"ingest"`)
}
