package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cashgate/internal/core/record"
	perr "cashgate/internal/platform/errors"
	"cashgate/internal/platform/store"
	"cashgate/internal/services/ingest/domain"

	"github.com/google/uuid"
)

// PG is the durable storage port backed by Postgres.
//
// Merge policy for repeated days (documented per the port contract): bucket
// counts and sums merge additively, ratios are recomputed from the merged
// sums inside the upsert, and unique_payers_count keeps the larger value as
// an upper bound because no cross-batch sketch is persisted.
//
// The two tables below are the entire persistence surface of the system
type PG struct {
	db store.TxRunner
}

// NewPG constructs the Postgres port
func NewPG(db store.TxRunner) *PG { return &PG{db: db} }

// bucketColumns returns the twelve cell column prefixes in stable order,
// e.g. free_in, free_out, ..., unknown_out
func bucketColumns() []string {
	out := make([]string, 0, 12)
	for _, cct := range record.AllCCT() {
		for _, dir := range []record.Direction{record.DirectionCredit, record.DirectionDebit} {
			out = append(out, strings.ToLower(record.BucketKey(cct, dir)))
		}
	}
	return out
}

// Migrate creates the two persisted tables when absent.
// Statements run one at a time; pgx's extended protocol takes a single
// command per Exec
func (r *PG) Migrate(ctx context.Context) error {
	for _, stmt := range []string{batchesDDL(), dailyDDL()} {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return perr.FromPostgres(err, "migrate ingest schema")
		}
	}
	return nil
}

func batchesDDL() string {
	return `CREATE TABLE IF NOT EXISTS ingest_batches (
		batch_id uuid PRIMARY KEY,
		subject_ref text NOT NULL,
		subject_ref_version text NOT NULL DEFAULT '',
		source text NOT NULL,
		idempotency_key text NOT NULL UNIQUE,
		content_hash text NOT NULL,
		filename_hash text NOT NULL DEFAULT '',
		file_ext text NOT NULL DEFAULT '',
		rows_accepted integer NOT NULL,
		rows_rejected integer NOT NULL,
		rejection_breakdown jsonb NOT NULL DEFAULT '{}',
		accepted_partial_rows integer NOT NULL DEFAULT 0,
		declared_start date,
		declared_end date,
		inferred_min timestamptz NOT NULL,
		inferred_max timestamptz NOT NULL,
		cct_unknown_rate double precision NOT NULL,
		payer_token_present boolean NOT NULL,
		policy_version text NOT NULL,
		watermark_ts timestamptz,
		created_at timestamptz NOT NULL DEFAULT now()
	)`
}

func dailyDDL() string {
	var sb strings.Builder
	sb.WriteString("CREATE TABLE IF NOT EXISTS daily_aggregates (\n")
	sb.WriteString("\t\tsubject_ref text NOT NULL,\n")
	sb.WriteString("\t\tday date NOT NULL,\n")
	sb.WriteString("\t\tinflow_sum numeric(18,2) NOT NULL DEFAULT 0,\n")
	sb.WriteString("\t\toutflow_sum numeric(18,2) NOT NULL DEFAULT 0,\n")
	for _, col := range bucketColumns() {
		fmt.Fprintf(&sb, "\t\t%s_sum numeric(18,2) NOT NULL DEFAULT 0,\n", col)
		fmt.Fprintf(&sb, "\t\t%s_count bigint NOT NULL DEFAULT 0,\n", col)
	}
	sb.WriteString(`		free_cash_net numeric(18,2) NOT NULL DEFAULT 0,
		owner_dependency_ratio double precision NOT NULL DEFAULT 0,
		pass_through_ratio double precision NOT NULL DEFAULT 0,
		unknown_flow_ratio double precision NOT NULL DEFAULT 0,
		unique_payers_count integer NOT NULL DEFAULT 0,
		accepted_partial_rows integer NOT NULL DEFAULT 0,
		unknown_cct_count integer NOT NULL DEFAULT 0,
		last_batch_id uuid,
		PRIMARY KEY (subject_ref, day)
	)`)
	return sb.String()
}

// CommitBatch implements domain.StoragePort
func (r *PG) CommitBatch(ctx context.Context, meta domain.BatchMetadata) (string, error) {
	breakdown, err := json.Marshal(breakdownCounts(meta.RejectionBreakdown))
	if err != nil {
		return "", perr.Wrap(err, perr.ErrorCodeUnknown, "encode rejection breakdown")
	}

	var declaredStart, declaredEnd any
	if meta.DeclaredRange != nil {
		declaredStart = meta.DeclaredRange.Start
		declaredEnd = meta.DeclaredRange.End
	}
	var watermark any
	if meta.WatermarkTS != nil {
		watermark = *meta.WatermarkTS
	}

	batchID := uuid.NewString()
	tag, err := r.db.Exec(ctx, `INSERT INTO ingest_batches
		(batch_id, subject_ref, subject_ref_version, source, idempotency_key,
		content_hash, filename_hash, file_ext, rows_accepted, rows_rejected,
		rejection_breakdown, accepted_partial_rows, declared_start, declared_end,
		inferred_min, inferred_max, cct_unknown_rate, payer_token_present,
		policy_version, watermark_ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		batchID, meta.SubjectRef, meta.SubjectRefVersion, meta.Source, meta.IdempotencyKey,
		meta.ContentHash, meta.FilenameHash, meta.FileExt, meta.RowsAccepted, meta.RowsRejected,
		breakdown, meta.AcceptedPartialRows, declaredStart, declaredEnd,
		meta.InferredRange.Min, meta.InferredRange.Max, meta.CCTUnknownRate, meta.PayerTokenPresent,
		meta.PolicyVersion, watermark,
	)
	if err != nil {
		return "", perr.FromPostgres(err, "insert batch")
	}
	if tag.RowsAffected() == 0 {
		return "", domain.ErrDuplicateBatch
	}
	return batchID, nil
}

// CommitDailyAggregates implements domain.StoragePort. All day rows for one
// batch land in a single transaction
func (r *PG) CommitDailyAggregates(ctx context.Context, batchID string, aggs []*domain.DailyAggregate) error {
	if len(aggs) == 0 {
		return nil
	}
	sql := upsertDailySQL()
	err := r.db.Tx(ctx, func(q store.RowQuerier) error {
		for _, agg := range aggs {
			if _, err := q.Exec(ctx, sql, dailyArgs(batchID, agg)...); err != nil {
				return err
			}
		}
		return nil
	})
	return perr.FromPostgres(err, "upsert daily aggregates")
}

// upsertDailySQL builds the additive-merge upsert once per call; column order
// matches dailyArgs
func upsertDailySQL() string {
	buckets := bucketColumns()

	cols := []string{"subject_ref", "day", "inflow_sum", "outflow_sum"}
	for _, b := range buckets {
		cols = append(cols, b+"_sum", b+"_count")
	}
	cols = append(cols,
		"free_cash_net", "owner_dependency_ratio", "pass_through_ratio", "unknown_flow_ratio",
		"unique_payers_count", "accepted_partial_rows", "unknown_cct_count", "last_batch_id",
	)

	var sb strings.Builder
	sb.WriteString("INSERT INTO daily_aggregates (")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(") VALUES (")
	for i := range cols {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "$%d", i+1)
	}
	sb.WriteString(")\nON CONFLICT (subject_ref, day) DO UPDATE SET\n")

	add := func(col string) string {
		return fmt.Sprintf("%s = daily_aggregates.%s + EXCLUDED.%s", col, col, col)
	}
	sets := []string{add("inflow_sum"), add("outflow_sum")}
	for _, b := range buckets {
		sets = append(sets, add(b+"_sum"), add(b+"_count"))
	}
	sets = append(sets, add("free_cash_net"), add("accepted_partial_rows"), add("unknown_cct_count"))
	sets = append(sets,
		"unique_payers_count = GREATEST(daily_aggregates.unique_payers_count, EXCLUDED.unique_payers_count)",
		"last_batch_id = EXCLUDED.last_batch_id",
	)

	// ratios recomputed from the merged sums
	merged := func(col string) string {
		return fmt.Sprintf("(daily_aggregates.%s + EXCLUDED.%s)", col, col)
	}
	var inTerms, flowTerms []string
	for _, cct := range record.AllCCT() {
		in := strings.ToLower(record.BucketKey(cct, record.DirectionCredit)) + "_sum"
		out := strings.ToLower(record.BucketKey(cct, record.DirectionDebit)) + "_sum"
		inTerms = append(inTerms, merged(in))
		flowTerms = append(flowTerms, merged(in), merged(out))
	}
	inSum := strings.Join(inTerms, " + ")
	flowSum := strings.Join(flowTerms, " + ")

	sets = append(sets,
		fmt.Sprintf("owner_dependency_ratio = %s / GREATEST(0.000000001, %s)",
			merged("artificial_in_sum"), inSum),
		fmt.Sprintf("pass_through_ratio = (%s + %s) / GREATEST(0.000000001, %s)",
			merged("pass_through_in_sum"), merged("pass_through_out_sum"), flowSum),
		fmt.Sprintf("unknown_flow_ratio = (%s + %s) / GREATEST(0.000000001, %s)",
			merged("unknown_in_sum"), merged("unknown_out_sum"), flowSum),
	)

	sb.WriteString(strings.Join(sets, ",\n"))
	return sb.String()
}

// dailyArgs flattens an aggregate in the same order upsertDailySQL expects.
// Sums cross the port boundary rounded to 2 places
func dailyArgs(batchID string, agg *domain.DailyAggregate) []any {
	args := []any{
		agg.SubjectRef, agg.Day,
		agg.InflowSum.StringFixed(2), agg.OutflowSum.StringFixed(2),
	}
	for _, cct := range record.AllCCT() {
		for _, dir := range []record.Direction{record.DirectionCredit, record.DirectionDebit} {
			key := record.BucketKey(cct, dir)
			args = append(args, agg.BucketSums[key].StringFixed(2), agg.BucketCounts[key])
		}
	}
	args = append(args,
		agg.FreeCashNet.StringFixed(2),
		agg.OwnerDependencyRatio, agg.PassThroughRatio, agg.UnknownFlowRatio,
		agg.UniquePayersCount, agg.AcceptedPartialRows, agg.UnknownCCTCount,
		batchID,
	)
	return args
}

func breakdownCounts(m map[record.RejectReason]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}
