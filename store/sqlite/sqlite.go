/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements the engine's three storage capabilities using SQLite. In
  production the same patterns apply to PostgreSQL with minor dialect
  differences.

INTERFACES IMPLEMENTED:
  generic.AgreementSource: Applicable agreement lookup
  generic.AccrualSource:   Accrual window loading
  generic.AccrualSink:     Atomic batch partial update

KEY TABLES:
  agreements: Entitlement contracts per person (inclusive date ranges)
  accruals:   One row per (tenant, person, type, date), with the
              contribution set stored as JSON

INDEXES:
  - idx_accruals_unique_day: Enforces one row per (type, date) per person
  - idx_agreements_person_dates: Applicable agreement lookup (hot path)

DATES:
  Calendar dates are stored as YYYY-MM-DD text, so lexical comparison in SQL
  is date comparison. Amounts are stored as decimal strings.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. An in-memory database is pinned to a
  single connection, otherwise every pooled connection would see its own
  empty database.

USAGE:
  store, err := sqlite.New("./data/accruals.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/accrual-engine/generic"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ generic.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewFromDB wraps an existing connection whose schema is already in place.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agreements (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		person_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		terms_json TEXT,
		created_at TEXT NOT NULL,
		CHECK (start_date <= end_date)
	);

	CREATE INDEX IF NOT EXISTS idx_agreements_person_dates
		ON agreements(tenant_id, person_id, start_date, end_date);

	CREATE TABLE IF NOT EXISTS accruals (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		person_id TEXT NOT NULL,
		agreement_id TEXT NOT NULL,
		accrual_date TEXT NOT NULL,
		accrual_type TEXT NOT NULL,
		cumulative_total TEXT NOT NULL DEFAULT '0',
		cumulative_target TEXT NOT NULL DEFAULT '0',
		contributions_json TEXT NOT NULL DEFAULT '{}',
		total TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_accruals_unique_day
		ON accruals(tenant_id, person_id, accrual_type, accrual_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// AGREEMENTS (generic.AgreementSource)
// =============================================================================

// SaveAgreement inserts or replaces an agreement.
func (s *Store) SaveAgreement(ctx context.Context, a generic.Agreement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.EndDate.Before(a.StartDate) {
		return fmt.Errorf("agreement %s: %w", a.ID, generic.ErrInvalidRange)
	}

	query := `
		INSERT INTO agreements (id, tenant_id, person_id, start_date, end_date, terms_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			terms_json = excluded.terms_json
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.TenantID, a.PersonID,
		a.StartDate.String(), a.EndDate.String(),
		nullString(string(a.Terms)),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save agreement: %w", err)
	}
	return nil
}

// ApplicableAgreement returns the latest-starting agreement covering the date.
func (s *Store) ApplicableAgreement(ctx context.Context, tenantID generic.TenantID, personID generic.PersonID, on generic.Date) (generic.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tenant_id, person_id, start_date, end_date, terms_json
		FROM agreements
		WHERE tenant_id = ? AND person_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date DESC
		LIMIT 1
	`
	agreements, err := s.queryAgreements(ctx, query, tenantID, personID, on.String(), on.String())
	if err != nil {
		return generic.Agreement{}, err
	}
	if len(agreements) == 0 {
		return generic.Agreement{}, generic.ErrAgreementNotFound
	}
	return agreements[0], nil
}

// GetAgreement returns an agreement by id.
func (s *Store) GetAgreement(ctx context.Context, id generic.AgreementID) (generic.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tenant_id, person_id, start_date, end_date, terms_json
		FROM agreements WHERE id = ?
	`
	agreements, err := s.queryAgreements(ctx, query, id)
	if err != nil {
		return generic.Agreement{}, err
	}
	if len(agreements) == 0 {
		return generic.Agreement{}, generic.ErrAgreementNotFound
	}
	return agreements[0], nil
}

// ListAgreements returns a person's agreements ordered by start date.
func (s *Store) ListAgreements(ctx context.Context, tenantID generic.TenantID, personID generic.PersonID) ([]generic.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tenant_id, person_id, start_date, end_date, terms_json
		FROM agreements
		WHERE tenant_id = ? AND person_id = ?
		ORDER BY start_date ASC
	`
	return s.queryAgreements(ctx, query, tenantID, personID)
}

func (s *Store) queryAgreements(ctx context.Context, query string, args ...any) ([]generic.Agreement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query agreements: %w", err)
	}
	defer rows.Close()

	var agreements []generic.Agreement
	for rows.Next() {
		var (
			a         generic.Agreement
			startDate string
			endDate   string
			terms     sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.TenantID, &a.PersonID, &startDate, &endDate, &terms); err != nil {
			return nil, fmt.Errorf("failed to scan agreement: %w", err)
		}
		if a.StartDate, err = generic.ParseDate(startDate); err != nil {
			return nil, err
		}
		if a.EndDate, err = generic.ParseDate(endDate); err != nil {
			return nil, err
		}
		if terms.Valid && terms.String != "" {
			a.Terms = json.RawMessage(terms.String)
		}
		agreements = append(agreements, a)
	}
	return agreements, rows.Err()
}

// =============================================================================
// ACCRUALS (generic.AccrualSource, generic.AccrualSink)
// =============================================================================

const accrualColumns = `id, tenant_id, person_id, agreement_id, accrual_date, accrual_type,
	cumulative_total, cumulative_target, contributions_json, total`

// AccrualWindow returns all rows dated in [from, to], ordered by type then date.
func (s *Store) AccrualWindow(ctx context.Context, tenantID generic.TenantID, personID generic.PersonID, from, to generic.Date) ([]generic.AccrualRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + accrualColumns + `
		FROM accruals
		WHERE tenant_id = ? AND person_id = ? AND accrual_date >= ? AND accrual_date <= ?
		ORDER BY accrual_type ASC, accrual_date ASC
	`
	return s.queryAccruals(ctx, query, tenantID, personID, from.String(), to.String())
}

// SaveAccruals upserts all rows in one transaction.
// Rows are matched on (tenant, person, type, date); the stored id is kept.
func (s *Store) SaveAccruals(ctx context.Context, records []generic.AccrualRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			if err := upsertAccrual(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
}

// SeedAccruals inserts rows that do not exist yet and leaves existing rows
// untouched, so a carry-over row owned by a previous agreement survives.
// Returns how many rows were inserted.
func (s *Store) SeedAccruals(ctx context.Context, records []generic.AccrualRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, r := range records {
			res, err := insertAccrualIfAbsent(ctx, tx, r)
			if err != nil {
				return err
			}
			n, _ := res.RowsAffected()
			inserted += int(n)
		}
		return nil
	})
	return inserted, err
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func upsertAccrual(ctx context.Context, db execer, r generic.AccrualRecord) error {
	contributions, err := marshalContributions(r.Contributions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO accruals (` + accrualColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, person_id, accrual_type, accrual_date) DO UPDATE SET
			agreement_id = excluded.agreement_id,
			cumulative_total = excluded.cumulative_total,
			cumulative_target = excluded.cumulative_target,
			contributions_json = excluded.contributions_json,
			total = excluded.total,
			updated_at = excluded.updated_at
	`
	_, err = db.ExecContext(ctx, query, accrualArgs(r, contributions)...)
	if err != nil {
		return fmt.Errorf("failed to save accrual %s/%s: %w", r.TypeID, r.Date, err)
	}
	return nil
}

func insertAccrualIfAbsent(ctx context.Context, db execer, r generic.AccrualRecord) (sql.Result, error) {
	contributions, err := marshalContributions(r.Contributions)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO accruals (` + accrualColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, person_id, accrual_type, accrual_date) DO NOTHING
	`
	res, err := db.ExecContext(ctx, query, accrualArgs(r, contributions)...)
	if err != nil {
		return nil, fmt.Errorf("failed to seed accrual %s/%s: %w", r.TypeID, r.Date, err)
	}
	return res, nil
}

func accrualArgs(r generic.AccrualRecord, contributions string) []any {
	return []any{
		r.ID, r.TenantID, r.PersonID, r.AgreementID,
		r.Date.String(), r.TypeID,
		r.CumulativeTotal.String(), r.CumulativeTarget.String(),
		contributions, r.Total.String(),
		time.Now().UTC().Format(time.RFC3339),
	}
}

func (s *Store) queryAccruals(ctx context.Context, query string, args ...any) ([]generic.AccrualRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accruals: %w", err)
	}
	defer rows.Close()

	var records []generic.AccrualRecord
	for rows.Next() {
		r, err := scanAccrual(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanAccrual(rows *sql.Rows) (generic.AccrualRecord, error) {
	var (
		r                generic.AccrualRecord
		accrualDate      string
		cumulativeTotal  string
		cumulativeTarget string
		contributions    string
		total            string
	)

	err := rows.Scan(
		&r.ID, &r.TenantID, &r.PersonID, &r.AgreementID, &accrualDate, &r.TypeID,
		&cumulativeTotal, &cumulativeTarget, &contributions, &total,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan accrual: %w", err)
	}

	if r.Date, err = generic.ParseDate(accrualDate); err != nil {
		return r, err
	}
	r.CumulativeTotal = parseDecimal(cumulativeTotal)
	r.CumulativeTarget = parseDecimal(cumulativeTarget)
	r.Total = parseDecimal(total)
	if err := json.Unmarshal([]byte(contributions), &r.Contributions); err != nil {
		return r, fmt.Errorf("failed to decode contributions for %s/%s: %w", r.TypeID, r.Date, err)
	}
	if r.Contributions == nil {
		r.Contributions = map[generic.TimeRecordID]decimal.Decimal{}
	}
	return r, nil
}

// =============================================================================
// ADMIN
// =============================================================================

// Reset clears all data.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"accruals", "agreements"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func marshalContributions(c map[generic.TimeRecordID]decimal.Decimal) (string, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to encode contributions: %w", err)
	}
	return string(b), nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// IsNotFound reports whether err means the agreement does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, generic.ErrAgreementNotFound) || errors.Is(err, sql.ErrNoRows)
}
