package ingest

// rules.go implements the validation rule engine.
//
// Rules live in an explicit ordered list, each tagged with whether it needs
// an external lookup. Evaluation runs in two stages: the no-lookup rules run
// first and collect every failure; if any of them failed, the lookup rules
// are skipped entirely for that record, so the store is never queried for a
// record already known to be bad.

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// valuePattern is the only accepted shape for a meter read value: one to
// five ASCII digits, no sign, no decimal point, no surrounding whitespace.
var valuePattern = regexp.MustCompile(`^[0-9]{1,5}$`)

// Outcome is the result of one rule applied to one record.
type Outcome struct {
	Valid   bool
	Message string
}

func pass() Outcome {
	return Outcome{Valid: true}
}

func fail(format string, args ...any) Outcome {
	return Outcome{Message: fmt.Sprintf(format, args...)}
}

// RuleEnv carries the per-upload state a rule may consult: the immutable
// reference snapshot, the upload's own dedup set, and the store handle for
// lookup-stage rules.
type RuleEnv struct {
	Snapshot *Snapshot
	Dedup    *DedupSet
	Store    DuplicateChecker
}

type checkFunc func(ctx context.Context, rec ParsedRecord, env *RuleEnv) (Outcome, error)

// rule is one named validation check. requiresLookup assigns it to the
// lookup stage.
type rule struct {
	name           string
	requiresLookup bool
	check          checkFunc
}

// Engine evaluates the ordered rule list against single records.
type Engine struct {
	rules []rule
}

// NewEngine returns an engine with the standard rule set. Order within each
// stage is fixed; it determines the order of failure messages in the upload
// report.
func NewEngine() *Engine {
	return &Engine{
		rules: []rule{
			{name: "account-exists", check: checkAccountExists},
			{name: "value-format", check: checkValueFormat},
			{name: "batch-duplicate", check: checkBatchDuplicate},
			{name: "older-than-latest", check: checkOlderThanLatest},
			{name: "store-duplicate", requiresLookup: true, check: checkStoreDuplicate},
		},
	}
}

// Evaluate runs the rules against one record and returns the failure
// messages, in rule order. An empty slice means the record is valid. A
// non-nil error is an infrastructure failure (a lookup that could not be
// performed), not a validation verdict.
func (e *Engine) Evaluate(ctx context.Context, rec ParsedRecord, env *RuleEnv) ([]string, error) {
	var failures []string

	for _, r := range e.rules {
		if r.requiresLookup {
			continue
		}
		outcome, err := r.check(ctx, rec, env)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.name, err)
		}
		if !outcome.Valid {
			failures = append(failures, outcome.Message)
		}
	}

	// A record that already failed a cheap rule never pays for a lookup.
	if len(failures) > 0 {
		return failures, nil
	}

	for _, r := range e.rules {
		if !r.requiresLookup {
			continue
		}
		outcome, err := r.check(ctx, rec, env)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.name, err)
		}
		if !outcome.Valid {
			failures = append(failures, outcome.Message)
		}
	}

	return failures, nil
}

// checkAccountExists requires the account id to be in the snapshot's valid
// account set.
func checkAccountExists(_ context.Context, rec ParsedRecord, env *RuleEnv) (Outcome, error) {
	if !env.Snapshot.HasAccount(rec.AccountID) {
		return fail("Invalid AccountId: %d - account does not exist", rec.AccountID), nil
	}
	return pass(), nil
}

// checkValueFormat enforces the 1-5 digit value shape. A value that matches
// the pattern but still fails integer parsing is an internal inconsistency
// and gets a distinct message.
func checkValueFormat(_ context.Context, rec ParsedRecord, _ *RuleEnv) (Outcome, error) {
	raw := rec.RawValue
	if strings.TrimSpace(raw) == "" {
		return fail("Invalid MeterReadValue: value is empty"), nil
	}
	if !valuePattern.MatchString(raw) {
		return fail("Invalid MeterReadValue: %q - expected 1 to 5 digits", raw), nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fail("Internal error: MeterReadValue %q matched the digit format but is not a non-negative integer", raw), nil
	}
	return pass(), nil
}

// checkBatchDuplicate inserts the record's triple into the upload's dedup
// set; a triple already present is a duplicate within the file. The insert
// and the membership test are a single operation, so the first occurrence
// claims the triple and every later identical row fails.
func checkBatchDuplicate(_ context.Context, rec ParsedRecord, env *RuleEnv) (Outcome, error) {
	v, err := strconv.Atoi(rec.RawValue)
	if err != nil {
		// The format rule reports the bad value; this rule just cannot
		// meaningfully dedup it.
		return fail("Cannot check duplicates: MeterReadValue %q is not a readable number", rec.RawValue), nil
	}

	if !env.Dedup.Add(rec.AccountID, rec.ReadingTime, v) {
		return fail("Duplicate reading in file: AccountId %d at %s with value %d",
			rec.AccountID, rec.ReadingTime.Format(ReadingTimeLayout), v), nil
	}
	return pass(), nil
}

// checkOlderThanLatest rejects readings strictly older than the account's
// latest existing reading. An equal timestamp passes here; catching exact
// repeats is the duplicate rules' job. The comparison uses the pre-loaded
// snapshot, so no lookup is needed.
func checkOlderThanLatest(_ context.Context, rec ParsedRecord, env *RuleEnv) (Outcome, error) {
	latest, ok := env.Snapshot.Latest(rec.AccountID)
	if !ok {
		return pass(), nil
	}
	if rec.ReadingTime.Before(latest.ReadingTime) {
		return fail("Reading is older than the latest for AccountId %d: %s is before %s",
			rec.AccountID,
			rec.ReadingTime.Format(ReadingTimeLayout),
			latest.ReadingTime.Format(ReadingTimeLayout)), nil
	}
	return pass(), nil
}

// checkStoreDuplicate asks the store whether the exact triple is already
// persisted. Runs only when every no-lookup rule passed.
func checkStoreDuplicate(ctx context.Context, rec ParsedRecord, env *RuleEnv) (Outcome, error) {
	v, err := strconv.Atoi(rec.RawValue)
	if err != nil {
		return fail("Cannot check duplicates: MeterReadValue %q is not a readable number", rec.RawValue), nil
	}

	exists, err := env.Store.ReadingExists(ctx, rec.AccountID, rec.ReadingTime, v)
	if err != nil {
		return Outcome{}, err
	}
	if exists {
		return fail("Reading already exists: AccountId %d at %s with value %d",
			rec.AccountID, rec.ReadingTime.Format(ReadingTimeLayout), v), nil
	}
	return pass(), nil
}
