package domain

import (
	"context"
	"errors"
)

// ErrDuplicateBatch is returned by CommitBatch when the idempotency key was
// seen before. The orchestrator maps it to ALREADY_INGESTED for the caller
var ErrDuplicateBatch = errors.New("duplicate batch")

// StoragePort is the only path to durable storage. Implementations must
// reject duplicate idempotency keys atomically and may persist nothing
// beyond the fields on BatchMetadata and DailyAggregate.
//
// Repeated-day conflict policy: counts and sums merge additively;
// UniquePayersCount has no cross-batch sketch, so implementations keep the
// larger value as a documented upper bound
type StoragePort interface {
	// CommitBatch persists batch metadata and assigns a stable batch id.
	// Returns ErrDuplicateBatch when the idempotency key already exists
	CommitBatch(ctx context.Context, meta BatchMetadata) (batchID string, err error)

	// CommitDailyAggregates upserts the day rollups for a committed batch,
	// atomically with respect to this batch
	CommitDailyAggregates(ctx context.Context, batchID string, aggs []*DailyAggregate) error
}

// IngesterPort is the callable surface the transport layer binds to
type IngesterPort interface {
	IngestFile(ctx context.Context, in FileIngestInput) (*IngestOutput, error)
	IngestFeed(ctx context.Context, in FeedIngestInput) (*IngestOutput, error)
}
