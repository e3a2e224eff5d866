package service

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"time"

	"cashgate/internal/core/canonhash"
	"cashgate/internal/core/classify"
	"cashgate/internal/core/record"
	perr "cashgate/internal/platform/errors"
	"cashgate/internal/platform/logger"
	"cashgate/internal/services/ingest/adapter"
	"cashgate/internal/services/ingest/domain"
)

const dayLayout = "2006-01-02"

// defaultMaxRows caps tabular parsing
const defaultMaxRows = 2_000_000

// Config for the ingest service. Built once at module wiring; immutable after
type Config struct {
	// MinAcceptRatio rejects batches whose accepted share falls below it;
	// nil disables the guardrail
	MinAcceptRatio *float64

	// AllowMissingWatermark lets a feed request opt out of watermark_ts.
	// Dev-only; the per-request override is honored only when this is set
	AllowMissingWatermark bool

	// MaxRows caps tabular row count; 0 means the default
	MaxRows int
}

// Service is the batch orchestrator. It owns no mutable state beyond the
// storage port handle and read-only configuration, so concurrent batches are
// safe; the port is the serialization point for duplicate keys
type Service struct {
	port   domain.StoragePort
	policy classify.Policy
	cfg    Config
}

// New constructs the ingest service
func New(port domain.StoragePort, pol classify.Policy, cfg Config) *Service {
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = defaultMaxRows
	}
	return &Service{port: port, policy: pol, cfg: cfg}
}

// batchJob is the adapter-independent view of one batch entering the pipeline
type batchJob struct {
	subjectRef        string
	subjectRefVersion string
	source            string

	rows        []adapter.Row
	contentHash string
	declared    *domain.DateRange

	// tabular only
	filenameHash string
	fileExt      string

	// feed only
	feed       bool
	watermark  *time.Time
	eventCount int
}

// IngestFile runs the tabular pipeline end to end
func (s *Service) IngestFile(ctx context.Context, in domain.FileIngestInput) (*domain.IngestOutput, error) {
	if err := requireSubjectSource(in.SubjectRef, in.Source); err != nil {
		return nil, err
	}
	if len(in.Raw) == 0 {
		return nil, perr.BatchRejected(domain.ReasonEmptyBatch)
	}

	declared, err := parseDeclaredRange(in.InputStartDate, in.InputEndDate)
	if err != nil {
		return nil, err
	}

	rows, contentHash, err := adapter.ParseTabular(in.Raw, s.cfg.MaxRows)
	if err != nil {
		return nil, err
	}

	var filenameHash, fileExt string
	if in.Filename != "" {
		filenameHash = canonhash.SumString(in.Filename)
		fileExt = strings.ToLower(filepath.Ext(in.Filename))
	}

	return s.run(ctx, batchJob{
		subjectRef:        in.SubjectRef,
		subjectRefVersion: in.SubjectRefVersion,
		source:            in.Source,
		rows:              rows,
		contentHash:       contentHash,
		declared:          declared,
		filenameHash:      filenameHash,
		fileExt:           fileExt,
	})
}

// IngestFeed runs the event-feed pipeline end to end
func (s *Service) IngestFeed(ctx context.Context, in domain.FeedIngestInput) (*domain.IngestOutput, error) {
	if err := requireSubjectSource(in.SubjectRef, in.Source); err != nil {
		return nil, err
	}
	if len(in.Events) == 0 {
		return nil, perr.BatchRejected(domain.ReasonEmptyBatch)
	}

	var watermark *time.Time
	if in.WatermarkTS != "" {
		t, err := time.Parse(time.RFC3339, in.WatermarkTS)
		if err != nil {
			return nil, perr.Newf(perr.ErrorCodeValidation, "invalid watermark_ts")
		}
		watermark = &t
	} else if !(s.cfg.AllowMissingWatermark && in.AllowMissingWatermark) {
		return nil, perr.Newf(perr.ErrorCodeValidation, "missing watermark_ts")
	}

	declared, err := parseDeclaredRange(in.InputStartDate, in.InputEndDate)
	if err != nil {
		return nil, err
	}

	rows, contentHash, err := adapter.FeedRows(in.Events)
	if err != nil {
		return nil, err
	}

	return s.run(ctx, batchJob{
		subjectRef:        in.SubjectRef,
		subjectRefVersion: in.SubjectRefVersion,
		source:            in.Source,
		rows:              rows,
		contentHash:       contentHash,
		declared:          declared,
		feed:              true,
		watermark:         watermark,
		eventCount:        len(in.Events),
	})
}

// run enforces the pipeline order for one batch. All state is request-scoped;
// nothing survives an early return
func (s *Service) run(ctx context.Context, job batchJob) (*domain.IngestOutput, error) {
	log := logger.C(ctx)

	out := &domain.IngestOutput{
		SubjectRef:         job.subjectRef,
		SubjectRefVersion:  job.subjectRefVersion,
		Source:             job.source,
		FilenameHash:       job.filenameHash,
		FileExt:            job.fileExt,
		ContentHash:        job.contentHash,
		RejectionBreakdown: map[string]int{},
	}

	total := len(job.rows)
	if total == 0 {
		return out, perr.BatchRejected(domain.ReasonEmptyBatch)
	}

	// validate, gate, normalize
	v := validateRows(job.rows, job.subjectRef)
	out.RowsAccepted = len(v.accepted)
	out.RowsRejected = v.rejected
	out.AcceptedPartialRows = v.partials
	for reason, n := range v.breakdown {
		out.RejectionBreakdown[string(reason)] = n
	}

	if len(v.accepted) == 0 {
		return out, perr.BatchRejected(domain.ReasonNoValidRows)
	}

	if s.cfg.MinAcceptRatio != nil {
		ratio := float64(len(v.accepted)) / float64(total)
		if ratio < *s.cfg.MinAcceptRatio {
			return out, perr.BatchRejected(domain.ReasonLowAcceptRatio)
		}
	}

	inferred := inferTSRange(v.accepted)
	out.InferredRange = domain.RangeOut{
		Start: inferred.Min.Format(time.RFC3339),
		End:   inferred.Max.Format(time.RFC3339),
	}

	if job.declared != nil {
		startDay := job.declared.Start.Format(dayLayout)
		endDay := job.declared.End.Format(dayLayout)
		out.DeclaredRange = &domain.RangeOut{Start: startDay, End: endDay}
		for _, rec := range v.accepted {
			if d := rec.Day(); d < startDay || d > endDay {
				return out, perr.BatchRejected(domain.ReasonDeclaredRangeViolation)
			}
		}
	}

	// classify: semantic pass first so batch-level hints (refund density)
	// exist before any CCT is assigned
	sems := make([]classify.Semantic, len(v.accepted))
	refunds := 0
	for i, rec := range v.accepted {
		sems[i] = classify.ClassifySemantic(rec)
		if sems[i].Purpose == classify.PurposeRefundOrRev {
			refunds++
		}
	}
	hints := classify.BatchHints{RefundDensity: float64(refunds) / float64(len(v.accepted))}

	xs := make([]classified, len(v.accepted))
	unknownTotal := 0
	for i, rec := range v.accepted {
		res := classify.ClassifyCCT(rec, sems[i], hints, s.policy)
		if res.CCT == record.CCTUnknown {
			unknownTotal++
		}
		xs[i] = classified{rec: rec, cct: res.CCT}
	}

	aggs := aggregate(xs)

	out.CCTUnknownRate = round6(float64(unknownTotal) / math.Max(1, float64(len(v.accepted))))
	out.PayerTokenPresent = anyPayerToken(v.accepted)
	out.DailyAggregateDays = len(aggs)
	out.DailyControlDays = len(aggs)

	// idempotency key binding
	keyMin, keyMax := keyBounds(job.declared, v.accepted, inferred, job.feed)
	var effectiveWatermark time.Time
	if job.feed {
		if job.watermark != nil {
			effectiveWatermark = *job.watermark
		} else {
			effectiveWatermark = inferred.Max
		}
		out.IdempotencyKey = FeedKey(
			job.subjectRef, job.source, effectiveWatermark.Format(time.RFC3339),
			keyMin, keyMax, job.eventCount, job.contentHash,
		)
		out.WatermarkTS = effectiveWatermark.Format(time.RFC3339)
		if job.watermark == nil {
			out.EffectiveWatermarkTS = out.WatermarkTS
		}
	} else {
		out.IdempotencyKey = BatchKey(job.subjectRef, job.source, job.contentHash, keyMin, keyMax)
	}

	meta := domain.BatchMetadata{
		SubjectRef:          job.subjectRef,
		SubjectRefVersion:   job.subjectRefVersion,
		Source:              job.source,
		IdempotencyKey:      out.IdempotencyKey,
		ContentHash:         job.contentHash,
		FilenameHash:        job.filenameHash,
		FileExt:             job.fileExt,
		RowsAccepted:        len(v.accepted),
		RowsRejected:        v.rejected,
		RejectionBreakdown:  v.breakdown,
		AcceptedPartialRows: v.partials,
		DeclaredRange:       job.declared,
		InferredRange:       inferred,
		CCTUnknownRate:      out.CCTUnknownRate,
		PayerTokenPresent:   out.PayerTokenPresent,
		PolicyVersion:       s.policy.Version,
	}
	if job.feed {
		meta.WatermarkTS = &effectiveWatermark
	}

	batchID, err := s.port.CommitBatch(ctx, meta)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateBatch) {
			return nil, perr.AlreadyIngested()
		}
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "batch commit failed")
	}
	if err := s.port.CommitDailyAggregates(ctx, batchID, aggs); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeDB, "aggregate commit failed")
	}

	out.Status = domain.StatusIngested
	out.BatchID = batchID

	log.Info().
		Str("batch_id", batchID).
		Str("source", job.source).
		Int("rows_accepted", out.RowsAccepted).
		Int("rows_rejected", out.RowsRejected).
		Int("days", len(aggs)).
		Float64("cct_unknown_rate", out.CCTUnknownRate).
		Msg("batch ingested")

	return out, nil
}

// keyBounds picks the range component of the idempotency key: declared dates
// when present; otherwise event dates for tabular batches and full timestamps
// for feeds
func keyBounds(declared *domain.DateRange, accepted []record.Canonical, inferred domain.TSRange, feed bool) (string, string) {
	if declared != nil {
		return declared.Start.Format(dayLayout), declared.End.Format(dayLayout)
	}
	if feed {
		return inferred.Min.Format(time.RFC3339), inferred.Max.Format(time.RFC3339)
	}
	minDay, maxDay := accepted[0].Day(), accepted[0].Day()
	for _, rec := range accepted[1:] {
		if d := rec.Day(); d < minDay {
			minDay = d
		} else if d > maxDay {
			maxDay = d
		}
	}
	return minDay, maxDay
}

func inferTSRange(accepted []record.Canonical) domain.TSRange {
	r := domain.TSRange{Min: accepted[0].EventTS, Max: accepted[0].EventTS}
	for _, rec := range accepted[1:] {
		if rec.EventTS.Before(r.Min) {
			r.Min = rec.EventTS
		}
		if rec.EventTS.After(r.Max) {
			r.Max = rec.EventTS
		}
	}
	return r
}

func anyPayerToken(accepted []record.Canonical) bool {
	for _, rec := range accepted {
		if rec.PayerToken != "" || rec.RawCounterpartyToken != "" {
			return true
		}
	}
	return false
}

// parseDeclaredRange validates the optional declared calendar-date bounds:
// both ends or neither, start not after end
func parseDeclaredRange(start, end string) (*domain.DateRange, error) {
	if start == "" && end == "" {
		return nil, nil
	}
	if start == "" || end == "" {
		return nil, perr.Newf(perr.ErrorCodeValidation, "both input_start_date and input_end_date must be provided")
	}
	s, err := time.Parse(dayLayout, start)
	if err != nil {
		return nil, perr.Newf(perr.ErrorCodeValidation, "invalid input_start_date")
	}
	e, err := time.Parse(dayLayout, end)
	if err != nil {
		return nil, perr.Newf(perr.ErrorCodeValidation, "invalid input_end_date")
	}
	if s.After(e) {
		return nil, perr.Newf(perr.ErrorCodeValidation, "input_start_date must be <= input_end_date")
	}
	return &domain.DateRange{Start: s, End: e}, nil
}

func requireSubjectSource(subjectRef, source string) error {
	if strings.TrimSpace(subjectRef) == "" {
		return perr.WithField(perr.Newf(perr.ErrorCodeValidation, "subject_ref is required"), "subject_ref")
	}
	if strings.TrimSpace(source) == "" {
		return perr.WithField(perr.Newf(perr.ErrorCodeValidation, "source is required"), "source")
	}
	return nil
}

func round6(f float64) float64 { return math.Round(f*1e6) / 1e6 }
