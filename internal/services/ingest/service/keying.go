package service

import (
	"strconv"
	"strings"

	"cashgate/internal/core/canonhash"
)

// BatchKey derives the deterministic idempotency key for a tabular batch.
// keyMin/keyMax are calendar dates: the declared range when the caller
// supplied one, else the min/max event date over accepted rows.
// subject_ref_version is deliberately excluded
func BatchKey(subjectRef, source, contentHash, keyMin, keyMax string) string {
	payload := strings.Join([]string{subjectRef, source, contentHash, keyMin, keyMax}, "|")
	return canonhash.SumString(payload)
}

// FeedKey derives the idempotency key for an event-feed batch. The watermark
// and event count participate so that a re-send of the same window with new
// events keys differently
func FeedKey(subjectRef, source, watermark, keyMin, keyMax string, eventCount int, contentHash string) string {
	payload := strings.Join([]string{
		subjectRef, source, watermark, keyMin, keyMax,
		strconv.Itoa(eventCount), contentHash,
	}, "|")
	return canonhash.SumString(payload)
}
