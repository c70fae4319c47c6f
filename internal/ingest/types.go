// Package ingest implements the meter reading upload pipeline: a streaming
// CSV record reader, a once-per-upload reference snapshot, an ordered
// two-stage validation rule engine, and the orchestrator that ties them to
// the persistence layer and produces a per-row accounting of the upload.
//
// This package has no HTTP or database dependencies; persistence is reached
// only through the ReadingStore interface.
package ingest

import "time"

// ReadingTimeLayout is the timestamp format used in upload files.
var ReadingTimeLayout = "02/01/2006 15:04"

// ContextFailed is the reserved FailedReadings value reported when the
// validation context could not be built. It marks "no per-row accounting was
// possible", not a count.
const ContextFailed = -1

// ParsedRecord is one successfully parsed data row. RawValue stays textual
// until the format rule has looked at it, so malformed values produce a
// descriptive failure instead of being lost at parse time.
type ParsedRecord struct {
	AccountID   int64
	ReadingTime time.Time
	RawValue    string
}

// MeterReading is the entity form of a record that passed every rule.
type MeterReading struct {
	AccountID   int64
	ReadingTime time.Time
	Value       int
}

// RowResult is one element of the lazy row sequence: either a parsed record
// or the reason the row could not be parsed. Row is 1-based with the header
// occupying row 1, so the first data row is 2.
type RowResult struct {
	Row    int
	Record *ParsedRecord
	Err    error
}

// Account is a known account in the reference store.
type Account struct {
	AccountID int64  `json:"accountId"`
	Name      string `json:"name,omitempty"`
}

// UploadResult is the final accounting for one upload.
//
// SuccessfulReadings + FailedReadings equals the number of data rows read,
// unless FailedReadings is the ContextFailed sentinel, in which case no rows
// were read at all.
type UploadResult struct {
	SuccessfulReadings int      `json:"successfulReadings"`
	FailedReadings     int      `json:"failedReadings"`
	Errors             []string `json:"errors"`
	FileName           string   `json:"fileName,omitempty"`
}

// readingKey identifies a reading triple for duplicate detection.
type readingKey struct {
	accountID int64
	unixTime  int64
	value     int
}

// DedupSet tracks reading triples already seen within a single upload.
// It is owned by one upload's rule evaluation chain and is never shared
// across uploads.
type DedupSet struct {
	seen map[readingKey]struct{}
}

// NewDedupSet returns an empty dedup set.
func NewDedupSet() *DedupSet {
	return &DedupSet{seen: make(map[readingKey]struct{})}
}

// Add inserts the triple if absent and reports whether it was inserted.
// A false return means the identical triple appeared earlier in the upload;
// the set is left unchanged in that case.
func (s *DedupSet) Add(accountID int64, readingTime time.Time, value int) bool {
	key := readingKey{accountID: accountID, unixTime: readingTime.Unix(), value: value}
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	return true
}

// Len returns the number of distinct triples seen so far.
func (s *DedupSet) Len() int {
	return len(s.seen)
}
