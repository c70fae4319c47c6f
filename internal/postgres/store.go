// Package postgres implements the reading store on PostgreSQL using pgx.
package postgres

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/enerflux/meterhub/internal/ingest"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a pgx pool with the queries the upload pipeline needs.
// It implements ingest.ReadingStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// EnsureSchema applies the embedded DDL. All statements are idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const validAccountIDsSQL = `
    SELECT account_id FROM accounts
`

// ValidAccountIDs returns the set of all known account ids.
func (s *Store) ValidAccountIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.pool.Query(ctx, validAccountIDsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

const latestReadingsSQL = `
    SELECT DISTINCT ON (account_id) account_id, reading_time, read_value
    FROM meter_readings
    WHERE account_id = ANY($1)
    ORDER BY account_id, reading_time DESC
`

// LatestReadings returns each requested account's most recent reading by
// timestamp. Accounts without readings are absent from the result.
func (s *Store) LatestReadings(ctx context.Context, accountIDs map[int64]struct{}) (map[int64]ingest.MeterReading, error) {
	latest := make(map[int64]ingest.MeterReading, len(accountIDs))
	if len(accountIDs) == 0 {
		return latest, nil
	}

	ids := make([]int64, 0, len(accountIDs))
	for id := range accountIDs {
		ids = append(ids, id)
	}

	rows, err := s.pool.Query(ctx, latestReadingsSQL, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var r ingest.MeterReading
		if err := rows.Scan(&r.AccountID, &r.ReadingTime, &r.Value); err != nil {
			return nil, err
		}
		latest[r.AccountID] = r
	}
	return latest, rows.Err()
}

const readingExistsSQL = `
    SELECT EXISTS (
        SELECT 1 FROM meter_readings
        WHERE account_id = $1 AND reading_time = $2 AND read_value = $3
    )
`

// ReadingExists reports whether the exact triple is already persisted.
func (s *Store) ReadingExists(ctx context.Context, accountID int64, readingTime time.Time, value int) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, readingExistsSQL, accountID, readingTime, value).Scan(&exists)
	return exists, err
}

const insertReadingSQL = `
    INSERT INTO meter_readings (account_id, reading_time, read_value)
    VALUES ($1, $2, $3)
    ON CONFLICT ON CONSTRAINT meter_readings_account_time_value_key DO NOTHING
`

// SaveReadings persists the batch in one round trip and returns the number
// of rows actually stored. Rows rejected by the unique constraint (for
// example a reading that raced in from a concurrent upload) reduce the
// returned count rather than failing the batch.
func (s *Store) SaveReadings(ctx context.Context, batch []ingest.MeterReading) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}

	b := &pgx.Batch{}
	for _, r := range batch {
		b.Queue(insertReadingSQL, r.AccountID, r.ReadingTime, r.Value)
	}

	results := s.pool.SendBatch(ctx, b)
	defer results.Close()

	saved := 0
	for range batch {
		tag, err := results.Exec()
		if err != nil {
			return 0, fmt.Errorf("insert reading: %w", err)
		}
		saved += int(tag.RowsAffected())
	}

	if err := results.Close(); err != nil {
		return 0, err
	}
	return saved, nil
}

const insertAccountSQL = `
    INSERT INTO accounts (account_id, name)
    VALUES ($1, $2)
    ON CONFLICT (account_id) DO NOTHING
`

// CreateAccount inserts an account; creating an existing id is a no-op.
func (s *Store) CreateAccount(ctx context.Context, accountID int64, name string) error {
	nameVal := pgtype.Text{String: name, Valid: name != ""}
	if _, err := s.pool.Exec(ctx, insertAccountSQL, accountID, nameVal); err != nil {
		return fmt.Errorf("insert account %d: %w", accountID, err)
	}
	return nil
}

const listAccountsSQL = `
    SELECT account_id, name FROM accounts ORDER BY account_id
`

// ListAccounts returns all known accounts in id order.
func (s *Store) ListAccounts(ctx context.Context) ([]ingest.Account, error) {
	rows, err := s.pool.Query(ctx, listAccountsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]ingest.Account, 0)
	for rows.Next() {
		var (
			a    ingest.Account
			name pgtype.Text
		)
		if err := rows.Scan(&a.AccountID, &name); err != nil {
			return nil, err
		}
		if name.Valid {
			a.Name = name.String
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// SeedAccounts inserts the given accounts, skipping ones that already exist.
func (s *Store) SeedAccounts(ctx context.Context, accounts []ingest.Account) error {
	b := &pgx.Batch{}
	for _, a := range accounts {
		b.Queue(insertAccountSQL, a.AccountID, pgtype.Text{String: a.Name, Valid: a.Name != ""})
	}

	results := s.pool.SendBatch(ctx, b)
	defer results.Close()

	for range accounts {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("seed accounts: %w", err)
		}
	}
	return results.Close()
}
