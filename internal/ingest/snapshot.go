package ingest

import (
	"context"
	"fmt"
)

// Snapshot is the point-in-time reference data one upload validates against.
// It is built exactly once per upload and read-only from then on, so no rule
// evaluation ever reaches back to the store except the explicit lookup-stage
// duplicate check.
type Snapshot struct {
	validAccountIDs map[int64]struct{}
	latestByAccount map[int64]MeterReading
}

// BuildSnapshot loads the full set of known account ids and each account's
// latest existing reading. A store failure here is fatal for the upload:
// the caller must not read or persist anything afterwards.
func BuildSnapshot(ctx context.Context, store ReadingStore) (*Snapshot, error) {
	ids, err := store.ValidAccountIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load account ids: %w", err)
	}

	latest, err := store.LatestReadings(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load latest readings: %w", err)
	}

	return &Snapshot{
		validAccountIDs: ids,
		latestByAccount: latest,
	}, nil
}

// HasAccount reports whether the account id was known when the snapshot was
// taken.
func (s *Snapshot) HasAccount(accountID int64) bool {
	_, ok := s.validAccountIDs[accountID]
	return ok
}

// Latest returns the account's most recent existing reading, if it had one.
func (s *Snapshot) Latest(accountID int64) (MeterReading, bool) {
	r, ok := s.latestByAccount[accountID]
	return r, ok
}

// AccountCount returns the number of known accounts in the snapshot.
func (s *Snapshot) AccountCount() int {
	return len(s.validAccountIDs)
}
