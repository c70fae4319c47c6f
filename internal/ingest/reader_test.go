package ingest

import (
	"strings"
	"testing"
	"time"
)

const readerHeader = "AccountId,MeterReadingDateTime,MeterReadValue\n"

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(ReadingTimeLayout, value)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", value, err)
	}
	return ts
}

func readAll(r *RecordReader) []RowResult {
	var out []RowResult
	for {
		row, ok := r.Next()
		if !ok {
			return out
		}
		out = append(out, row)
	}
}

func TestRecordReader_ValidRows(t *testing.T) {
	input := readerHeader +
		"2344,22/04/2019 09:24,1002\n" +
		"2233,22/04/2019 12:25,323\n"

	rows := readAll(NewRecordReader(strings.NewReader(input)))

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	first := rows[0]
	if first.Err != nil {
		t.Fatalf("row 2 unexpected error: %v", first.Err)
	}
	if first.Row != 2 {
		t.Errorf("first data row number = %d, want 2", first.Row)
	}
	if first.Record.AccountID != 2344 {
		t.Errorf("AccountID = %d, want 2344", first.Record.AccountID)
	}
	if !first.Record.ReadingTime.Equal(mustTime(t, "22/04/2019 09:24")) {
		t.Errorf("ReadingTime = %v, want 22/04/2019 09:24", first.Record.ReadingTime)
	}
	if first.Record.RawValue != "1002" {
		t.Errorf("RawValue = %q, want %q", first.Record.RawValue, "1002")
	}

	if rows[1].Row != 3 {
		t.Errorf("second data row number = %d, want 3", rows[1].Row)
	}
}

func TestRecordReader_PerRowFailures(t *testing.T) {
	tests := []struct {
		name    string
		row     string
		wantErr string
	}{
		{
			name:    "non-numeric account id",
			row:     "VOID,22/04/2019 09:24,1002",
			wantErr: "AccountId",
		},
		{
			name:    "malformed date",
			row:     "2344,not-a-date,1002",
			wantErr: "MeterReadingDateTime",
		},
		{
			name:    "date in wrong format",
			row:     "2344,2019-04-22T09:24:00,1002",
			wantErr: "MeterReadingDateTime",
		},
		{
			name:    "too many columns",
			row:     "2344,22/04/2019 09:24,1002,extra",
			wantErr: "columns",
		},
		{
			name:    "empty account id",
			row:     ",22/04/2019 09:24,1002",
			wantErr: "AccountId",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := readAll(NewRecordReader(strings.NewReader(readerHeader + tt.row + "\n")))
			if len(rows) != 1 {
				t.Fatalf("got %d rows, want 1", len(rows))
			}
			if rows[0].Err == nil {
				t.Fatal("expected a parse failure, got a record")
			}
			if !strings.Contains(rows[0].Err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", rows[0].Err, tt.wantErr)
			}
			if rows[0].Row != 2 {
				t.Errorf("row number = %d, want 2", rows[0].Row)
			}
		})
	}
}

func TestRecordReader_FailureDoesNotStopStream(t *testing.T) {
	input := readerHeader +
		"bad,22/04/2019 09:24,1002\n" +
		"2233,23/04/2019 10:00,500\n"

	rows := readAll(NewRecordReader(strings.NewReader(input)))

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Err == nil {
		t.Error("row 2 should have failed")
	}
	if rows[1].Err != nil {
		t.Errorf("row 3 unexpected error: %v", rows[1].Err)
	}
}

func TestRecordReader_MissingValueYieldsEmptyString(t *testing.T) {
	// A structurally missing trailing field is not a parse failure; the
	// format rule is responsible for rejecting the empty value.
	input := readerHeader + "2344,22/04/2019 09:24\n"

	rows := readAll(NewRecordReader(strings.NewReader(input)))

	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Err != nil {
		t.Fatalf("unexpected parse failure: %v", rows[0].Err)
	}
	if rows[0].Record.RawValue != "" {
		t.Errorf("RawValue = %q, want empty string", rows[0].Record.RawValue)
	}
}

func TestRecordReader_EmptySequences(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty stream", input: ""},
		{name: "header only", input: readerHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := readAll(NewRecordReader(strings.NewReader(tt.input)))
			if len(rows) != 0 {
				t.Errorf("got %d rows, want 0", len(rows))
			}
		})
	}
}

func TestRecordReader_HeaderCaseAndOrderInsensitive(t *testing.T) {
	input := "meterreadingdatetime,METERREADVALUE,accountid\n" +
		"22/04/2019 09:24,1002,2344\n"

	rows := readAll(NewRecordReader(strings.NewReader(input)))

	if len(rows) != 1 || rows[0].Err != nil {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if rows[0].Record.AccountID != 2344 {
		t.Errorf("AccountID = %d, want 2344", rows[0].Record.AccountID)
	}
	if rows[0].Record.RawValue != "1002" {
		t.Errorf("RawValue = %q, want %q", rows[0].Record.RawValue, "1002")
	}
}

func TestRecordReader_MissingHeaderColumn(t *testing.T) {
	input := "AccountId,MeterReadingDateTime\n" +
		"2344,22/04/2019 09:24\n" +
		"2233,23/04/2019 10:00\n"

	rows := readAll(NewRecordReader(strings.NewReader(input)))

	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for _, row := range rows {
		if row.Err == nil || !strings.Contains(row.Err.Error(), "MeterReadValue") {
			t.Errorf("row %d: expected missing-column failure, got %v", row.Row, row.Err)
		}
	}
}

func TestRecordReader_BOMSkipped(t *testing.T) {
	input := "\xEF\xBB\xBF" + readerHeader + "2344,22/04/2019 09:24,1002\n"

	rows := readAll(NewRecordReader(strings.NewReader(input)))

	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].Err != nil {
		t.Fatalf("unexpected error: %v", rows[0].Err)
	}
	if rows[0].Record.AccountID != 2344 {
		t.Errorf("AccountID = %d, want 2344", rows[0].Record.AccountID)
	}
}

func TestRecordReader_NonRestartable(t *testing.T) {
	r := NewRecordReader(strings.NewReader(readerHeader + "2344,22/04/2019 09:24,1002\n"))

	readAll(r)

	if _, ok := r.Next(); ok {
		t.Error("Next() returned a row after exhaustion")
	}
}
