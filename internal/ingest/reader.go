package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Expected header column names, matched case-insensitively.
const (
	colAccountID   = "AccountId"
	colReadingTime = "MeterReadingDateTime"
	colReadValue   = "MeterReadValue"
)

// RecordReader turns a character stream into a lazy, finite, non-restartable
// sequence of row outcomes. It reads one CSV record per Next call and never
// materializes the file, so inputs larger than memory are fine.
//
// The first row is always consumed as the header; data rows are numbered
// from 2. Per-row problems (malformed dates, non-numeric account ids, too
// many columns) are reported as row outcomes and never stop the sequence.
type RecordReader struct {
	csv *csv.Reader

	header     headerIndex
	headerLen  int
	missing    []string
	headerRead bool

	row  int
	done bool
}

// headerIndex maps lowercased column names to their position in a row.
type headerIndex map[string]int

// NewRecordReader creates a reader over src. The stream is wrapped with BOM
// skipping and UTF-8 sanitization before tokenization.
func NewRecordReader(src io.Reader) *RecordReader {
	cr := csv.NewReader(WrapForStreaming(src))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	return &RecordReader{csv: cr, row: 1}
}

// Next returns the next row outcome. The second return value is false once
// the stream is exhausted. A stream containing only a header, or nothing,
// yields no outcomes at all.
func (r *RecordReader) Next() (RowResult, bool) {
	if r.done {
		return RowResult{}, false
	}

	if !r.headerRead {
		if !r.readHeader() {
			return RowResult{}, false
		}
	}

	rec, err := r.csv.Read()
	if err == io.EOF {
		r.done = true
		return RowResult{}, false
	}

	r.row++
	n := r.row

	if err != nil {
		// csv.Reader recovers at the next line, so the sequence continues.
		return RowResult{Row: n, Err: fmt.Errorf("malformed row: %v", err)}, true
	}

	if len(r.missing) > 0 {
		return RowResult{
			Row: n,
			Err: fmt.Errorf("missing required column(s): %s", strings.Join(r.missing, ", ")),
		}, true
	}

	if len(rec) > r.headerLen {
		return RowResult{
			Row: n,
			Err: fmt.Errorf("expected %d columns, got %d", r.headerLen, len(rec)),
		}, true
	}

	rawAccount := cleanCell(fieldAt(rec, r.header[lower(colAccountID)]))
	accountID, err := strconv.ParseInt(rawAccount, 10, 64)
	if err != nil {
		return RowResult{
			Row: n,
			Err: fmt.Errorf("invalid %s: %q", colAccountID, rawAccount),
		}, true
	}

	rawTime := cleanCell(fieldAt(rec, r.header[lower(colReadingTime)]))
	readingTime, err := time.Parse(ReadingTimeLayout, rawTime)
	if err != nil {
		return RowResult{
			Row: n,
			Err: fmt.Errorf("invalid %s: %q (expected dd/MM/yyyy HH:mm)", colReadingTime, rawTime),
		}, true
	}

	// The value is deliberately not trimmed or validated here: the format
	// rule rejects empty and padded values with a descriptive message, and a
	// structurally missing trailing field arrives as an empty string.
	rawValue := fieldAt(rec, r.header[lower(colReadValue)])

	return RowResult{
		Row: n,
		Record: &ParsedRecord{
			AccountID:   accountID,
			ReadingTime: readingTime,
			RawValue:    rawValue,
		},
	}, true
}

// readHeader consumes the header row and builds the column index. It returns
// false when the stream ends (or is unreadable) before any data row.
func (r *RecordReader) readHeader() bool {
	r.headerRead = true

	rec, err := r.csv.Read()
	if err != nil {
		r.done = true
		return false
	}

	r.header = make(headerIndex, len(rec))
	for i, name := range rec {
		r.header[lower(cleanCell(name))] = i
	}
	r.headerLen = len(rec)

	for _, want := range []string{colAccountID, colReadingTime, colReadValue} {
		if _, ok := r.header[lower(want)]; !ok {
			r.missing = append(r.missing, want)
		}
	}
	return true
}

// fieldAt returns the field at pos, or an empty string when the row is too
// short to have one.
func fieldAt(rec []string, pos int) string {
	if pos < 0 || pos >= len(rec) {
		return ""
	}
	return rec[pos]
}

// cleanCell normalizes a header or key cell: trims whitespace and zero-width
// characters that spreadsheet exports sometimes leave behind.
func cleanCell(s string) string {
	s = strings.TrimSpace(s)
	return strings.Trim(s, "\uFEFF\u200B")
}

func lower(s string) string {
	return strings.ToLower(s)
}
