package ingest

import (
	"context"
	"time"
)

// ReadingStore is the persistence collaborator for the upload pipeline.
//
// SaveReadings persists the batch in one call and returns the count actually
// stored. The store may persist fewer rows than it was given (for example
// when a unique index rejects a reading that raced in from another upload);
// it must reflect every silently rejected row in the returned count.
type ReadingStore interface {
	// ValidAccountIDs returns the full set of known account identifiers.
	ValidAccountIDs(ctx context.Context) (map[int64]struct{}, error)

	// LatestReadings returns, for each requested account that has readings,
	// its single most recent reading by timestamp. An empty input yields an
	// empty mapping.
	LatestReadings(ctx context.Context, accountIDs map[int64]struct{}) (map[int64]MeterReading, error)

	// ReadingExists reports whether a reading with the exact
	// (account, timestamp, value) triple is already persisted.
	ReadingExists(ctx context.Context, accountID int64, readingTime time.Time, value int) (bool, error)

	// SaveReadings persists the batch and returns the number of rows stored.
	SaveReadings(ctx context.Context, batch []MeterReading) (int, error)
}

// DuplicateChecker is the narrow slice of ReadingStore needed by the
// lookup-stage duplicate rule.
type DuplicateChecker interface {
	ReadingExists(ctx context.Context, accountID int64, readingTime time.Time, value int) (bool, error)
}
