/*
Package sqlstore provides a SQL-backed implementation of the ledger store.

PURPOSE:
  Implements engine.TxStore and engine.MappingStore on database/sql. SQLite
  (github.com/mattn/go-sqlite3) is the default; PostgreSQL
  (github.com/lib/pq) is selected with driver "postgres". Queries are
  written once with '?' placeholders and rebound to '$n' for PostgreSQL.

KEY TABLES:
  accounts:          Account definitions (card closing/due days included)
  entries:           Ledger lines with settlement state and series linkage
  loan_plans:        Loan definitions
  loan_installments: Installments, keyed by (plan_id, sequence)
  category_mappings: Learned keyword -> category associations

INDEXES:
  - idx_entries_owner_posted: projection reads (hot path)
  - idx_entries_series: "this occurrence and all later" range delete
  - idx_entries_external: one imported line per (account, external id)

STORAGE FORMATS:
  Dates are TEXT 'YYYY-MM-DD' so range filters compare lexically. Money is
  TEXT holding the exact decimal. Booleans are INTEGER 0/1.

ATOMICITY:
  AppendEntries and ReplaceLoan run inside a database transaction. WithTx
  routes every call made by fn through the same transaction.

SQLITE CONNECTIONS:
  SQLite is pinned to one open connection; ":memory:" databases are per
  connection and a single writer is all SQLite allows anyway.

USAGE:
  st, err := sqlstore.Open("sqlite3", "./data/cashflow.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

MIGRATION:
  Schema is auto-migrated on Open().

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/cashflow-engine/engine"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Store implements engine.TxStore and engine.MappingStore.
type Store struct {
	conn
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs the queries against a database or an open transaction.
type conn struct {
	q        querier
	postgres bool
}

// Open connects to the database and migrates the schema. For SQLite use
// ":memory:" for an in-memory database.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case "", DriverSQLite:
		driver = DriverSQLite
		if dsn != ":memory:" && !strings.Contains(dsn, "?") {
			dsn += "?_foreign_keys=on&_journal_mode=WAL"
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, conn: conn{q: db, postgres: driver == DriverPostgres}}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		opening_balance TEXT NOT NULL,
		credit_limit TEXT NOT NULL,
		closing_day INTEGER NOT NULL DEFAULT 0,
		due_day INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_owner
		ON accounts(owner_id);

	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		category_id TEXT,
		description TEXT,
		direction TEXT NOT NULL,
		amount TEXT NOT NULL,
		posted_on TEXT NOT NULL,
		channel TEXT NOT NULL,
		state TEXT NOT NULL,
		settled_on TEXT,
		settled_amount TEXT,
		recurrence TEXT NOT NULL,
		series_id TEXT,
		series_first_id TEXT,
		series_index INTEGER,
		series_total INTEGER,
		transfer_pair_id TEXT,
		external_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_owner_posted
		ON entries(owner_id, posted_on);
	CREATE INDEX IF NOT EXISTS idx_entries_account_posted
		ON entries(account_id, posted_on);
	CREATE INDEX IF NOT EXISTS idx_entries_series
		ON entries(series_id, posted_on) WHERE series_id IS NOT NULL;
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_external
		ON entries(account_id, external_id) WHERE external_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS loan_plans (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		principal TEXT NOT NULL,
		installment_value TEXT NOT NULL,
		installment_count INTEGER NOT NULL,
		daily_rate TEXT NOT NULL,
		first_installment TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS loan_installments (
		plan_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		face TEXT NOT NULL,
		paid INTEGER NOT NULL DEFAULT 0,
		paid_on TEXT,
		paid_amount TEXT,
		anticipated INTEGER NOT NULL DEFAULT 0,
		days_anticipated INTEGER NOT NULL DEFAULT 0,
		interest TEXT,
		amortization TEXT,
		savings TEXT,
		savings_raw TEXT,
		PRIMARY KEY (plan_id, sequence)
	);

	CREATE TABLE IF NOT EXISTS category_mappings (
		owner_id TEXT NOT NULL,
		keyword TEXT NOT NULL,
		category_id TEXT NOT NULL,
		learned_at TEXT NOT NULL,
		PRIMARY KEY (owner_id, keyword)
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx, postgres: s.postgres}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// AppendEntries writes the batch in its own transaction.
func (s *Store) AppendEntries(ctx context.Context, entries []engine.Entry) error {
	return s.WithTx(ctx, func(tx engine.Store) error {
		return tx.AppendEntries(ctx, entries)
	})
}

// ReplaceLoan writes the plan and its installments in one transaction.
func (s *Store) ReplaceLoan(ctx context.Context, plan engine.LoanPlan, insts []engine.LoanInstallment) error {
	return s.WithTx(ctx, func(tx engine.Store) error {
		return tx.ReplaceLoan(ctx, plan, insts)
	})
}

// SaveMappings upserts the batch in one transaction.
func (s *Store) SaveMappings(ctx context.Context, mappings []engine.KeywordMapping) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	c := &conn{q: sqlTx, postgres: s.postgres}
	if err := c.SaveMappings(ctx, mappings); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// QUERY HELPERS
// =============================================================================

// rebind rewrites '?' placeholders to '$n' for PostgreSQL.
func (c *conn) rebind(query string) string {
	if !c.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.rebind(query), args...)
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.rebind(query), args...)
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

// =============================================================================
// ACCOUNTS (engine.AccountDirectory)
// =============================================================================

func (c *conn) SaveAccount(ctx context.Context, a engine.Account) error {
	_, err := c.exec(ctx, `
		INSERT INTO accounts (id, owner_id, name, kind, opening_balance, credit_limit, closing_day, due_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			kind = excluded.kind,
			opening_balance = excluded.opening_balance,
			credit_limit = excluded.credit_limit,
			closing_day = excluded.closing_day,
			due_day = excluded.due_day
	`,
		a.ID, a.OwnerID, a.Name, a.Kind,
		a.OpeningBalance.String(), a.CreditLimit.String(),
		a.ClosingDay, a.DueDay,
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

const accountColumns = `id, owner_id, name, kind, opening_balance, credit_limit, closing_day, due_day`

func (c *conn) Account(ctx context.Context, id engine.AccountID) (engine.Account, error) {
	rows, err := c.query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	if err != nil {
		return engine.Account{}, fmt.Errorf("failed to query account: %w", err)
	}
	accounts, err := scanAccounts(rows)
	if err != nil {
		return engine.Account{}, err
	}
	if len(accounts) == 0 {
		return engine.Account{}, engine.ErrAccountNotFound
	}
	return accounts[0], nil
}

func (c *conn) Accounts(ctx context.Context, owner engine.OwnerID) ([]engine.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts`
	var args []any
	if owner != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, owner)
	}
	rows, err := c.query(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	return scanAccounts(rows)
}

func scanAccounts(rows *sql.Rows) ([]engine.Account, error) {
	defer rows.Close()
	var out []engine.Account
	for rows.Next() {
		var a engine.Account
		var opening, limit string
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Kind, &opening, &limit, &a.ClosingDay, &a.DueDay); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		a.OpeningBalance = parseDecimal(opening)
		a.CreditLimit = parseDecimal(limit)
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// ENTRIES (engine.EntryStore)
// =============================================================================

// AppendEntries inserts the batch. Atomic only when called inside WithTx
// (Store.AppendEntries does that).
func (c *conn) AppendEntries(ctx context.Context, entries []engine.Entry) error {
	for _, e := range entries {
		if err := c.insertEntry(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (c *conn) insertEntry(ctx context.Context, e engine.Entry) error {
	var seriesID, firstID sql.NullString
	var index, total sql.NullInt64
	if e.Series != nil {
		seriesID = nullString(string(e.Series.ID))
		firstID = nullString(string(e.Series.FirstEntryID))
		index = sql.NullInt64{Int64: int64(e.Series.Index), Valid: true}
		total = sql.NullInt64{Int64: int64(e.Series.Total), Valid: true}
	}

	_, err := c.exec(ctx, `
		INSERT INTO entries
		(id, owner_id, account_id, category_id, description, direction, amount, posted_on,
		 channel, state, settled_on, settled_amount, recurrence,
		 series_id, series_first_id, series_index, series_total,
		 transfer_pair_id, external_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.OwnerID, e.AccountID,
		nullString(string(e.CategoryID)), nullString(e.Description),
		e.Direction, e.Amount.String(), e.PostedOn.String(),
		e.Channel, e.State, nullDate(e.SettledOn), nullDecimal(e.SettledAmount),
		e.Recurrence,
		seriesID, firstID, index, total,
		nullString(string(e.TransferPairID)), nullString(e.ExternalID),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isExternalIDViolation(err) {
			return engine.ErrDuplicateExternalID
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

const entryColumns = `id, owner_id, account_id, category_id, description, direction, amount, posted_on,
	channel, state, settled_on, settled_amount, recurrence,
	series_id, series_first_id, series_index, series_total,
	transfer_pair_id, external_id, created_at`

func (c *conn) Entries(ctx context.Context, f engine.EntryFilter) ([]engine.Entry, error) {
	var where []string
	var args []any
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}
	if !f.From.IsZero() {
		where = append(where, "posted_on >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "posted_on <= ?")
		args = append(args, f.To.String())
	}

	query := `SELECT ` + entryColumns + ` FROM entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY posted_on ASC, COALESCE(series_index, 0) ASC, created_at ASC, id ASC`

	rows, err := c.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	return scanEntries(rows)
}

func (c *conn) Entry(ctx context.Context, id engine.EntryID) (engine.Entry, error) {
	rows, err := c.query(ctx, `SELECT `+entryColumns+` FROM entries WHERE id = ?`, id)
	if err != nil {
		return engine.Entry{}, fmt.Errorf("failed to query entry: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return engine.Entry{}, err
	}
	if len(entries) == 0 {
		return engine.Entry{}, engine.ErrEntryNotFound
	}
	return entries[0], nil
}

func scanEntries(rows *sql.Rows) ([]engine.Entry, error) {
	defer rows.Close()
	var out []engine.Entry
	for rows.Next() {
		var e engine.Entry
		var category, description, settledOn, settledAmt sql.NullString
		var seriesID, firstID, pairID, externalID sql.NullString
		var index, total sql.NullInt64
		var amount, postedOn, createdAt string
		err := rows.Scan(
			&e.ID, &e.OwnerID, &e.AccountID, &category, &description, &e.Direction, &amount, &postedOn,
			&e.Channel, &e.State, &settledOn, &settledAmt, &e.Recurrence,
			&seriesID, &firstID, &index, &total,
			&pairID, &externalID, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}

		e.CategoryID = engine.CategoryID(category.String)
		e.Description = description.String
		e.Amount = parseDecimal(amount)
		if e.PostedOn, err = engine.ParseDate(postedOn); err != nil {
			return nil, fmt.Errorf("entry %s: %w", e.ID, err)
		}
		if settledOn.Valid {
			if e.SettledOn, err = engine.ParseDate(settledOn.String); err != nil {
				return nil, fmt.Errorf("entry %s: %w", e.ID, err)
			}
		}
		if settledAmt.Valid {
			e.SettledAmount = parseDecimal(settledAmt.String)
		}
		if seriesID.Valid {
			e.Series = &engine.Series{
				ID:           engine.SeriesID(seriesID.String),
				FirstEntryID: engine.EntryID(firstID.String),
				Index:        int(index.Int64),
				Total:        int(total.Int64),
			}
		}
		e.TransferPairID = engine.TransferPairID(pairID.String)
		e.ExternalID = externalID.String
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("entry %s: parsing created_at: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c *conn) UpdateSettlement(ctx context.Context, e engine.Entry) error {
	res, err := c.exec(ctx, `
		UPDATE entries SET state = ?, settled_on = ?, settled_amount = ?
		WHERE id = ?
	`, e.State, nullDate(e.SettledOn), nullDecimal(e.SettledAmount), e.ID)
	if err != nil {
		return fmt.Errorf("failed to update settlement: %w", err)
	}
	return expectOneRow(res, engine.ErrEntryNotFound)
}

// DeleteSeries is one indexed range delete on (series_id, posted_on).
func (c *conn) DeleteSeries(ctx context.Context, id engine.SeriesID, from engine.Date) (int, error) {
	var count int
	if err := c.queryRow(ctx, `SELECT COUNT(*) FROM entries WHERE series_id = ?`, id).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count series: %w", err)
	}
	if count == 0 {
		return 0, engine.ErrSeriesNotFound
	}

	query := `DELETE FROM entries WHERE series_id = ?`
	args := []any{id}
	if !from.IsZero() {
		query += ` AND posted_on >= ?`
		args = append(args, from.String())
	}
	res, err := c.exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete series: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete series: %w", err)
	}
	return int(n), nil
}

func (c *conn) ExternalIDExists(ctx context.Context, accountID engine.AccountID, externalID string) (bool, error) {
	var count int
	err := c.queryRow(ctx,
		`SELECT COUNT(*) FROM entries WHERE account_id = ? AND external_id = ?`,
		accountID, externalID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check external id: %w", err)
	}
	return count > 0, nil
}

// =============================================================================
// LOANS (engine.LoanStore)
// =============================================================================

// ReplaceLoan upserts the plan and regenerates its installment rows. Atomic
// only when called inside WithTx (Store.ReplaceLoan does that).
func (c *conn) ReplaceLoan(ctx context.Context, p engine.LoanPlan, insts []engine.LoanInstallment) error {
	_, err := c.exec(ctx, `
		INSERT INTO loan_plans
		(id, owner_id, name, principal, installment_value, installment_count, daily_rate, first_installment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = excluded.owner_id,
			name = excluded.name,
			principal = excluded.principal,
			installment_value = excluded.installment_value,
			installment_count = excluded.installment_count,
			daily_rate = excluded.daily_rate,
			first_installment = excluded.first_installment
	`,
		p.ID, p.OwnerID, p.Name, p.Principal.String(), p.InstallmentValue.String(),
		p.InstallmentCount, p.DailyRate.String(), p.FirstInstallment.String(),
		p.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to save loan plan: %w", err)
	}

	if _, err := c.exec(ctx, `DELETE FROM loan_installments WHERE plan_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to clear installments: %w", err)
	}
	for _, inst := range insts {
		_, err := c.exec(ctx, `
			INSERT INTO loan_installments
			(plan_id, sequence, due_date, face, paid, paid_on, paid_amount, anticipated,
			 days_anticipated, interest, amortization, savings, savings_raw)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			p.ID, inst.Sequence, inst.DueDate.String(), inst.Face.String(),
			boolInt(inst.Paid), nullDate(inst.PaidOn), nullDecimal(inst.PaidAmount),
			boolInt(inst.Anticipated), inst.DaysAnticipated,
			nullDecimal(inst.Interest), nullDecimal(inst.Amortization),
			nullDecimal(inst.Savings), nullDecimal(inst.SavingsRaw),
		)
		if err != nil {
			return fmt.Errorf("failed to insert installment %d: %w", inst.Sequence, err)
		}
	}
	return nil
}

const planColumns = `id, owner_id, name, principal, installment_value, installment_count, daily_rate, first_installment, created_at`

func (c *conn) Loan(ctx context.Context, id engine.LoanPlanID) (engine.LoanPlan, []engine.LoanInstallment, error) {
	rows, err := c.query(ctx, `SELECT `+planColumns+` FROM loan_plans WHERE id = ?`, id)
	if err != nil {
		return engine.LoanPlan{}, nil, fmt.Errorf("failed to query loan plan: %w", err)
	}
	plans, err := scanPlans(rows)
	if err != nil {
		return engine.LoanPlan{}, nil, err
	}
	if len(plans) == 0 {
		return engine.LoanPlan{}, nil, engine.ErrLoanNotFound
	}

	rows, err = c.query(ctx, `
		SELECT plan_id, sequence, due_date, face, paid, paid_on, paid_amount, anticipated,
		       days_anticipated, interest, amortization, savings, savings_raw
		FROM loan_installments
		WHERE plan_id = ?
		ORDER BY sequence ASC
	`, id)
	if err != nil {
		return engine.LoanPlan{}, nil, fmt.Errorf("failed to query installments: %w", err)
	}
	insts, err := scanInstallments(rows)
	if err != nil {
		return engine.LoanPlan{}, nil, err
	}
	return plans[0], insts, nil
}

func (c *conn) Loans(ctx context.Context, owner engine.OwnerID) ([]engine.LoanPlan, error) {
	query := `SELECT ` + planColumns + ` FROM loan_plans`
	var args []any
	if owner != "" {
		query += ` WHERE owner_id = ?`
		args = append(args, owner)
	}
	rows, err := c.query(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loan plans: %w", err)
	}
	return scanPlans(rows)
}

func scanPlans(rows *sql.Rows) ([]engine.LoanPlan, error) {
	defer rows.Close()
	var out []engine.LoanPlan
	for rows.Next() {
		var p engine.LoanPlan
		var principal, value, rate, first, createdAt string
		if err := rows.Scan(&p.ID, &p.OwnerID, &p.Name, &principal, &value, &p.InstallmentCount, &rate, &first, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan loan plan: %w", err)
		}
		p.Principal = parseDecimal(principal)
		p.InstallmentValue = parseDecimal(value)
		p.DailyRate = parseDecimal(rate)
		var err error
		if p.FirstInstallment, err = engine.ParseDate(first); err != nil {
			return nil, fmt.Errorf("loan plan %s: %w", p.ID, err)
		}
		if p.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("loan plan %s: parsing created_at: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanInstallments(rows *sql.Rows) ([]engine.LoanInstallment, error) {
	defer rows.Close()
	var out []engine.LoanInstallment
	for rows.Next() {
		var inst engine.LoanInstallment
		var due, face string
		var paid, anticipated int
		var paidOn, paidAmount, interest, amortization, savings, savingsRaw sql.NullString
		err := rows.Scan(&inst.PlanID, &inst.Sequence, &due, &face, &paid, &paidOn, &paidAmount,
			&anticipated, &inst.DaysAnticipated, &interest, &amortization, &savings, &savingsRaw)
		if err != nil {
			return nil, fmt.Errorf("failed to scan installment: %w", err)
		}
		if inst.DueDate, err = engine.ParseDate(due); err != nil {
			return nil, fmt.Errorf("installment %d: %w", inst.Sequence, err)
		}
		inst.Face = parseDecimal(face)
		inst.Paid = paid != 0
		inst.Anticipated = anticipated != 0
		if paidOn.Valid {
			if inst.PaidOn, err = engine.ParseDate(paidOn.String); err != nil {
				return nil, fmt.Errorf("installment %d: %w", inst.Sequence, err)
			}
		}
		inst.PaidAmount = parseNullDecimal(paidAmount)
		inst.Interest = parseNullDecimal(interest)
		inst.Amortization = parseNullDecimal(amortization)
		inst.Savings = parseNullDecimal(savings)
		inst.SavingsRaw = parseNullDecimal(savingsRaw)
		out = append(out, inst)
	}
	return out, rows.Err()
}

func (c *conn) UpdateInstallment(ctx context.Context, inst engine.LoanInstallment) error {
	res, err := c.exec(ctx, `
		UPDATE loan_installments SET
			paid = ?, paid_on = ?, paid_amount = ?, anticipated = ?, days_anticipated = ?,
			interest = ?, amortization = ?, savings = ?, savings_raw = ?
		WHERE plan_id = ? AND sequence = ?
	`,
		boolInt(inst.Paid), nullDate(inst.PaidOn), nullDecimal(inst.PaidAmount),
		boolInt(inst.Anticipated), inst.DaysAnticipated,
		nullDecimal(inst.Interest), nullDecimal(inst.Amortization),
		nullDecimal(inst.Savings), nullDecimal(inst.SavingsRaw),
		inst.PlanID, inst.Sequence,
	)
	if err != nil {
		return fmt.Errorf("failed to update installment: %w", err)
	}
	if err := expectOneRow(res, engine.ErrInstallmentNotFound); err != nil {
		var exists int
		if qerr := c.queryRow(ctx, `SELECT COUNT(*) FROM loan_plans WHERE id = ?`, inst.PlanID).Scan(&exists); qerr == nil && exists == 0 {
			return engine.ErrLoanNotFound
		}
		return err
	}
	return nil
}

// =============================================================================
// CATEGORY MAPPINGS (engine.MappingStore)
// =============================================================================

func (c *conn) SaveMappings(ctx context.Context, mappings []engine.KeywordMapping) error {
	for _, m := range mappings {
		_, err := c.exec(ctx, `
			INSERT INTO category_mappings (owner_id, keyword, category_id, learned_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (owner_id, keyword) DO UPDATE SET
				category_id = excluded.category_id,
				learned_at = excluded.learned_at
		`, m.OwnerID, m.Keyword, m.CategoryID, m.LearnedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to save mapping %q: %w", m.Keyword, err)
		}
	}
	return nil
}

func (c *conn) Mappings(ctx context.Context, owner engine.OwnerID, keywords []string) ([]engine.KeywordMapping, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	args := []any{owner}
	marks := make([]string, len(keywords))
	for i, kw := range keywords {
		marks[i] = "?"
		args = append(args, kw)
	}
	rows, err := c.query(ctx, `
		SELECT owner_id, keyword, category_id, learned_at
		FROM category_mappings
		WHERE owner_id = ? AND keyword IN (`+strings.Join(marks, ", ")+`)
		ORDER BY keyword
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var out []engine.KeywordMapping
	for rows.Next() {
		var m engine.KeywordMapping
		var learnedAt string
		if err := rows.Scan(&m.OwnerID, &m.Keyword, &m.CategoryID, &learnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		learned, err := time.Parse(time.RFC3339Nano, learnedAt)
		if err != nil {
			return nil, fmt.Errorf("mapping %q: parsing learned_at: %w", m.Keyword, err)
		}
		m.LearnedAt = learned
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d engine.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullDecimal(d decimal.Decimal) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseNullDecimal(s sql.NullString) decimal.Decimal {
	if !s.Valid {
		return decimal.Zero
	}
	return parseDecimal(s.String)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// isExternalIDViolation recognizes a failure of idx_entries_external from
// either driver. Other unique failures, like a primary key, are not.
func isExternalIDViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		// SQLite names the columns, not the index.
		return se.ExtendedCode == sqlite3.ErrConstraintUnique &&
			strings.Contains(se.Error(), "entries.external_id")
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Code == "23505" && pe.Constraint == "idx_entries_external"
	}
	return false
}
