package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
)

// Orchestrator drives one upload end to end: snapshot, row stream, rule
// evaluation, a single batch save, and count reconciliation.
type Orchestrator struct {
	store  ReadingStore
	engine *Engine
	log    *slog.Logger
}

// NewOrchestrator creates an orchestrator over the given store.
func NewOrchestrator(store ReadingStore, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		store:  store,
		engine: NewEngine(),
		log:    log,
	}
}

// ProcessUpload runs the full pipeline for one uploaded file.
//
// Ordering guarantees:
//   - the reference snapshot is built before any row is read; if that fails,
//     nothing is parsed or persisted and FailedReadings is the ContextFailed
//     sentinel with exactly one error line
//   - rows are processed strictly in file order; each failed row contributes
//     one error line per failure, prefixed with its row number
//   - persistence happens at most once, after the stream is drained
//   - an unexpected infrastructure error mid-stream stops the loop, adds one
//     error line, and still persists whatever was buffered up to that point
func (o *Orchestrator) ProcessUpload(ctx context.Context, fileName string, src io.Reader) UploadResult {
	result := UploadResult{
		FileName: fileName,
		Errors:   []string{},
	}

	snapshot, err := BuildSnapshot(ctx, o.store)
	if err != nil {
		o.log.Error("validation context build failed", "file", fileName, "error", err)
		result.FailedReadings = ContextFailed
		result.Errors = append(result.Errors,
			fmt.Sprintf("Critical: could not build validation context - %v", err))
		return result
	}
	o.log.Debug("validation context built",
		"file", fileName,
		"accounts", snapshot.AccountCount(),
	)

	reader := NewRecordReader(src)
	env := &RuleEnv{
		Snapshot: snapshot,
		Dedup:    NewDedupSet(),
		Store:    o.store,
	}

	var buffered []MeterReading

	for {
		row, ok := reader.Next()
		if !ok {
			break
		}

		if row.Err != nil {
			result.FailedReadings++
			result.Errors = append(result.Errors,
				fmt.Sprintf("Row %d: Parse Error - %v", row.Row, row.Err))
			continue
		}

		failures, err := o.engine.Evaluate(ctx, *row.Record, env)
		if err != nil {
			// Infrastructure failure, not a verdict on the record. Stop
			// reading and fall through to persist what was buffered so far.
			result.FailedReadings++
			result.Errors = append(result.Errors,
				fmt.Sprintf("Row %d: processing aborted - %v", row.Row, err))
			o.log.Error("row processing aborted", "file", fileName, "row", row.Row, "error", err)
			break
		}

		if len(failures) > 0 {
			result.FailedReadings++
			for _, msg := range failures {
				result.Errors = append(result.Errors,
					fmt.Sprintf("Row %d: %s", row.Row, msg))
			}
			continue
		}

		// The format rule guarantees this parses.
		value, _ := strconv.Atoi(row.Record.RawValue)
		buffered = append(buffered, MeterReading{
			AccountID:   row.Record.AccountID,
			ReadingTime: row.Record.ReadingTime,
			Value:       value,
		})
	}

	if len(buffered) > 0 {
		saved, err := o.store.SaveReadings(ctx, buffered)
		switch {
		case err != nil:
			// No partial credit: the whole buffered batch counts as failed.
			result.FailedReadings += len(buffered)
			result.Errors = append(result.Errors,
				fmt.Sprintf("Persistence failure: %d readings could not be saved - %v", len(buffered), err))
			o.log.Error("batch save failed", "file", fileName, "attempted", len(buffered), "error", err)

		case saved < len(buffered):
			// The store silently rejected some rows (for example a unique
			// index arbitrating a race with another upload). Which rows were
			// dropped is unknown, so the shortfall is counted, not named.
			shortfall := len(buffered) - saved
			result.SuccessfulReadings = saved
			result.FailedReadings += shortfall
			result.Errors = append(result.Errors,
				fmt.Sprintf("Warning: attempted to save %d readings but the store reported %d saved", len(buffered), saved))
			o.log.Warn("batch save shortfall", "file", fileName, "attempted", len(buffered), "saved", saved)

		default:
			result.SuccessfulReadings = saved
		}
	}

	o.log.Info("upload processed",
		"file", fileName,
		"successful", result.SuccessfulReadings,
		"failed", result.FailedReadings,
		"errors", len(result.Errors),
	)
	return result
}
