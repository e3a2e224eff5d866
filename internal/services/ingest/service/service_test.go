package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"cashgate/internal/core/classify"
	perr "cashgate/internal/platform/errors"
	"cashgate/internal/services/ingest/domain"
	"cashgate/internal/services/ingest/repo"
)

const csvHeader = "merchant_id,ts,amount,direction,channel"

func newTestService(port domain.StoragePort, mutate func(*Config)) *Service {
	ratio := 0.10
	cfg := Config{MinAcceptRatio: &ratio}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(port, classify.DefaultPolicy(), cfg)
}

func fileInput(lines ...string) domain.FileIngestInput {
	return domain.FileIngestInput{
		SubjectRef: "subj-1",
		Source:     "PAYTM",
		Filename:   "statement.csv",
		Raw:        []byte(strings.Join(append([]string{csvHeader}, lines...), "\n")),
	}
}

// Scenario S1: two clean rows, one day, sale credit + hintless debit
func TestIngestFile_HappyPath(t *testing.T) {
	mem := repo.NewMemory()
	svc := newTestService(mem, nil)

	out, err := svc.IngestFile(context.Background(), fileInput(
		"MRC,2025-11-05T09:01:00+05:30,120.50,credit,UPI",
		"MRC,2025-11-05T12:45:10+05:30,80.00,debit,BANK",
	))
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}

	if out.Status != domain.StatusIngested || out.BatchID == "" {
		t.Fatalf("status/batch = %q/%q", out.Status, out.BatchID)
	}
	if out.RowsAccepted != 2 || out.RowsRejected != 0 {
		t.Fatalf("accepted/rejected = %d/%d", out.RowsAccepted, out.RowsRejected)
	}
	if out.DailyAggregateDays != 1 || out.DailyControlDays != 1 {
		t.Fatalf("days = %d/%d, want 1/1", out.DailyAggregateDays, out.DailyControlDays)
	}
	if !almost(out.CCTUnknownRate, 0.5) {
		t.Fatalf("cct_unknown_rate = %v, want 0.5", out.CCTUnknownRate)
	}
	if out.PayerTokenPresent {
		t.Fatal("no tokens in input")
	}
	if out.FilenameHash == "" || out.FileExt != ".csv" {
		t.Fatalf("file metadata = %q/%q", out.FilenameHash, out.FileExt)
	}
	if strings.Contains(out.FilenameHash, "statement") {
		t.Fatal("raw filename must never surface")
	}

	aggs := mem.Aggregates()
	if len(aggs) != 1 {
		t.Fatalf("stored days = %d", len(aggs))
	}
	agg := aggs[0]
	if agg.BucketCounts["FREE_IN"] != 1 {
		t.Fatalf("FREE_IN = %d, want 1 (sale pattern)", agg.BucketCounts["FREE_IN"])
	}
	if agg.BucketCounts["UNKNOWN_OUT"] != 1 {
		t.Fatalf("UNKNOWN_OUT = %d, want 1 (hintless debit)", agg.BucketCounts["UNKNOWN_OUT"])
	}
}

// Scenario S2: identical bytes twice; second call conflicts, storage unchanged
func TestIngestFile_Duplicate(t *testing.T) {
	mem := repo.NewMemory()
	svc := newTestService(mem, nil)
	in := fileInput("MRC,2025-11-05T09:01:00+05:30,120.50,credit,UPI")

	first, err := svc.IngestFile(context.Background(), in)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	before, _ := json.Marshal(mem.Aggregates())

	_, err = svc.IngestFile(context.Background(), in)
	if !perr.IsCode(err, perr.ErrorCodeAlreadyIngested) {
		t.Fatalf("second ingest err = %v, want ALREADY_INGESTED", err)
	}

	after, _ := json.Marshal(mem.Aggregates())
	if string(before) != string(after) {
		t.Fatal("duplicate commit must not alter stored aggregates")
	}
	if mem.BatchCount() != 1 {
		t.Fatalf("batches = %d, want 1", mem.BatchCount())
	}

	meta, _, ok := mem.BatchByKey(first.IdempotencyKey)
	if !ok {
		t.Fatal("committed batch not found by key")
	}
	if meta.PolicyVersion != classify.DefaultVersion {
		t.Fatalf("policy version = %q", meta.PolicyVersion)
	}
}

// Scenario S3 end to end: 6/10 rows survive, batch commits
func TestIngestFile_ValidationMix(t *testing.T) {
	mem := repo.NewMemory()
	svc := newTestService(mem, nil)

	lines := []string{}
	for i := 0; i < 6; i++ {
		lines = append(lines, "MRC,2025-11-05T09:01:00+05:30,100,credit,UPI")
	}
	lines = append(lines,
		"MRC,2025-11-05T09:01:00+05:30,0,credit,UPI",
		"MRC,2025-11-05T09:01:00+05:30,0,credit,UPI",
		"MRC,2025-11-05T09:01:00+05:30,50,foo,UPI",
		"MRC,notadate,50,credit,UPI",
	)

	out, err := svc.IngestFile(context.Background(), fileInput(lines...))
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if out.RowsAccepted != 6 || out.RowsRejected != 4 {
		t.Fatalf("accepted/rejected = %d/%d", out.RowsAccepted, out.RowsRejected)
	}
	want := map[string]int{"INVALID_AMOUNT": 2, "INVALID_DIRECTION": 1, "INVALID_TS": 1}
	for k, n := range want {
		if out.RejectionBreakdown[k] != n {
			t.Fatalf("breakdown[%s] = %d, want %d (%v)", k, out.RejectionBreakdown[k], n, out.RejectionBreakdown)
		}
	}
	// invariant: accepted + rejected == parsed, breakdown sums to rejected
	sum := 0
	for _, n := range out.RejectionBreakdown {
		sum += n
	}
	if sum != out.RowsRejected || out.RowsAccepted+out.RowsRejected != 10 {
		t.Fatalf("count arithmetic broken: %d + %d, breakdown %d", out.RowsAccepted, out.RowsRejected, sum)
	}
}

// Scenario S6: declared range violated by one row; nothing persists
func TestIngestFile_DeclaredRangeViolation(t *testing.T) {
	mem := repo.NewMemory()
	svc := newTestService(mem, nil)

	in := fileInput("MRC,2025-11-06T09:01:00+05:30,100,credit,UPI")
	in.InputStartDate = "2025-11-05"
	in.InputEndDate = "2025-11-05"

	out, err := svc.IngestFile(context.Background(), in)
	if !perr.IsCode(err, perr.ErrorCodeBatchRejected) {
		t.Fatalf("err = %v, want batch rejection", err)
	}
	if e, _ := perr.As(err); e.ToWire().Message != domain.ReasonDeclaredRangeViolation {
		t.Fatalf("reason = %q", e.ToWire().Message)
	}
	if out == nil || out.RowsAccepted != 1 {
		t.Fatal("rejection must still carry counts")
	}
	if mem.BatchCount() != 0 || len(mem.Aggregates()) != 0 {
		t.Fatal("nothing may persist on declared range violation")
	}
}

// Declared range present and respected is echoed and used for the key
func TestIngestFile_DeclaredRangeAccepted(t *testing.T) {
	mem := repo.NewMemory()
	svc := newTestService(mem, nil)

	in := fileInput("MRC,2025-11-05T09:01:00+05:30,100,credit,UPI")
	in.InputStartDate = "2025-11-04"
	in.InputEndDate = "2025-11-06"

	out, err := svc.IngestFile(context.Background(), in)
	if err != nil {
		t.Fatalf("IngestFile: %v", err)
	}
	if out.DeclaredRange == nil || out.DeclaredRange.Start != "2025-11-04" {
		t.Fatalf("declared range = %+v", out.DeclaredRange)
	}

	// same bytes with no declared range keys differently
	mem2 := repo.NewMemory()
	out2, err := newTestService(mem2, nil).IngestFile(context.Background(),
		fileInput("MRC,2025-11-05T09:01:00+05:30,100,credit,UPI"))
	if err != nil {
		t.Fatal(err)
	}
	if out.IdempotencyKey == out2.IdempotencyKey {
		t.Fatal("declared range must participate in the key")
	}
}

func TestIngestFile_Guardrails(t *testing.T) {
	t.Run("empty bytes", func(t *testing.T) {
		svc := newTestService(repo.NewMemory(), nil)
		_, err := svc.IngestFile(context.Background(), domain.FileIngestInput{
			SubjectRef: "s", Source: "x",
		})
		assertReason(t, err, domain.ReasonEmptyBatch)
	})

	t.Run("header only", func(t *testing.T) {
		svc := newTestService(repo.NewMemory(), nil)
		_, err := svc.IngestFile(context.Background(), fileInput())
		assertReason(t, err, domain.ReasonEmptyBatch)
	})

	t.Run("no valid rows", func(t *testing.T) {
		svc := newTestService(repo.NewMemory(), nil)
		_, err := svc.IngestFile(context.Background(), fileInput(
			"MRC,2025-11-05T09:01:00+05:30,0,credit,UPI",
		))
		assertReason(t, err, domain.ReasonNoValidRows)
	})

	t.Run("low accept ratio", func(t *testing.T) {
		svc := newTestService(repo.NewMemory(), func(c *Config) {
			ratio := 0.7
			c.MinAcceptRatio = &ratio
		})
		_, err := svc.IngestFile(context.Background(), fileInput(
			"MRC,2025-11-05T09:01:00+05:30,100,credit,UPI",
			"MRC,2025-11-05T09:01:00+05:30,0,credit,UPI",
		))
		assertReason(t, err, domain.ReasonLowAcceptRatio)
	})

	t.Run("ratio disabled accepts the same input", func(t *testing.T) {
		svc := newTestService(repo.NewMemory(), func(c *Config) { c.MinAcceptRatio = nil })
		out, err := svc.IngestFile(context.Background(), fileInput(
			"MRC,2025-11-05T09:01:00+05:30,100,credit,UPI",
			"MRC,2025-11-05T09:01:00+05:30,0,credit,UPI",
		))
		if err != nil {
			t.Fatalf("IngestFile: %v", err)
		}
		if out.RowsAccepted != 1 {
			t.Fatalf("accepted = %d", out.RowsAccepted)
		}
	})

	t.Run("half-open declared range is a bad request", func(t *testing.T) {
		svc := newTestService(repo.NewMemory(), nil)
		in := fileInput("MRC,2025-11-05T09:01:00+05:30,100,credit,UPI")
		in.InputStartDate = "2025-11-05"
		_, err := svc.IngestFile(context.Background(), in)
		if !perr.IsCode(err, perr.ErrorCodeValidation) {
			t.Fatalf("err = %v, want validation error", err)
		}
	})
}

// Invariant 8: raising the accept-ratio floor can never increase acceptance
func TestIngestFile_MonotoneAcceptance(t *testing.T) {
	input := func() domain.FileIngestInput {
		lines := []string{"MRC,2025-11-05T09:01:00+05:30,100,credit,UPI"}
		for i := 0; i < 4; i++ {
			lines = append(lines, "MRC,2025-11-05T09:01:00+05:30,0,credit,UPI")
		}
		return fileInput(lines...)
	}

	accepted := func(ratio *float64) int {
		svc := newTestService(repo.NewMemory(), func(c *Config) { c.MinAcceptRatio = ratio })
		out, err := svc.IngestFile(context.Background(), input())
		if err != nil {
			return 0 // rejected batch accepts nothing
		}
		return out.RowsAccepted
	}

	low, high := 0.10, 0.90
	if accepted(&high) > accepted(&low) {
		t.Fatal("raising MIN_ACCEPT_RATIO must not increase rows_accepted")
	}
}

func TestIngestFeed(t *testing.T) {
	event := func(ts, amount string) domain.FeedEvent {
		return domain.FeedEvent{
			MerchantID: "M1",
			TS:         ts,
			Amount:     json.Number(amount),
			Direction:  "credit",
			Channel:    "UPI",
		}
	}

	t.Run("happy path with watermark", func(t *testing.T) {
		mem := repo.NewMemory()
		svc := newTestService(mem, nil)
		out, err := svc.IngestFeed(context.Background(), domain.FeedIngestInput{
			SubjectRef:  "subj-1",
			Source:      "BANK",
			WatermarkTS: "2025-11-05T18:00:00Z",
			Events:      []domain.FeedEvent{event("2025-11-05T09:01:00+05:30", "120.50")},
		})
		if err != nil {
			t.Fatalf("IngestFeed: %v", err)
		}
		if out.WatermarkTS != "2025-11-05T18:00:00Z" || out.EffectiveWatermarkTS != "" {
			t.Fatalf("watermark fields = %q/%q", out.WatermarkTS, out.EffectiveWatermarkTS)
		}
		if out.FilenameHash != "" || out.FileExt != "" {
			t.Fatal("feed responses carry no file fields")
		}
		if mem.BatchCount() != 1 {
			t.Fatalf("batches = %d", mem.BatchCount())
		}
	})

	t.Run("missing watermark rejected by default", func(t *testing.T) {
		svc := newTestService(repo.NewMemory(), nil)
		_, err := svc.IngestFeed(context.Background(), domain.FeedIngestInput{
			SubjectRef: "subj-1",
			Source:     "BANK",
			Events:     []domain.FeedEvent{event("2025-11-05T09:01:00+05:30", "10")},
		})
		if !perr.IsCode(err, perr.ErrorCodeValidation) {
			t.Fatalf("err = %v, want validation error", err)
		}
	})

	t.Run("dev override infers the watermark", func(t *testing.T) {
		svc := newTestService(repo.NewMemory(), func(c *Config) { c.AllowMissingWatermark = true })
		out, err := svc.IngestFeed(context.Background(), domain.FeedIngestInput{
			SubjectRef:            "subj-1",
			Source:                "BANK",
			AllowMissingWatermark: true,
			Events: []domain.FeedEvent{
				event("2025-11-05T09:01:00+05:30", "10"),
				event("2025-11-05T18:00:00+05:30", "20"),
			},
		})
		if err != nil {
			t.Fatalf("IngestFeed: %v", err)
		}
		if out.EffectiveWatermarkTS == "" || out.WatermarkTS != out.EffectiveWatermarkTS {
			t.Fatalf("inferred watermark fields = %q/%q", out.WatermarkTS, out.EffectiveWatermarkTS)
		}
	})

	t.Run("request override alone is not enough", func(t *testing.T) {
		svc := newTestService(repo.NewMemory(), nil) // config gate off
		_, err := svc.IngestFeed(context.Background(), domain.FeedIngestInput{
			SubjectRef:            "subj-1",
			Source:                "BANK",
			AllowMissingWatermark: true,
			Events:                []domain.FeedEvent{event("2025-11-05T09:01:00+05:30", "10")},
		})
		if !perr.IsCode(err, perr.ErrorCodeValidation) {
			t.Fatalf("err = %v, want validation error", err)
		}
	})

	t.Run("empty events", func(t *testing.T) {
		svc := newTestService(repo.NewMemory(), nil)
		_, err := svc.IngestFeed(context.Background(), domain.FeedIngestInput{
			SubjectRef:  "subj-1",
			Source:      "BANK",
			WatermarkTS: "2025-11-05T18:00:00Z",
		})
		assertReason(t, err, domain.ReasonEmptyBatch)
	})

	t.Run("payer token presence is derived", func(t *testing.T) {
		svc := newTestService(repo.NewMemory(), nil)
		ev := event("2025-11-05T09:01:00+05:30", "10")
		ev.RawCounterpartyToken = "tok-1"
		out, err := svc.IngestFeed(context.Background(), domain.FeedIngestInput{
			SubjectRef:  "subj-1",
			Source:      "BANK",
			WatermarkTS: "2025-11-05T18:00:00Z",
			Events:      []domain.FeedEvent{ev},
		})
		if err != nil {
			t.Fatal(err)
		}
		if !out.PayerTokenPresent {
			t.Fatal("payer_token_present must reflect counterparty tokens")
		}
	})
}

func assertReason(t *testing.T, err error, reason string) {
	t.Helper()
	if !perr.IsCode(err, perr.ErrorCodeBatchRejected) {
		t.Fatalf("err = %v, want batch rejection %s", err, reason)
	}
	e, _ := perr.As(err)
	if e.ToWire().Message != reason {
		t.Fatalf("reason = %q, want %q", e.ToWire().Message, reason)
	}
}
