/*
Package postgres provides a PostgreSQL-backed implementation of loyalty.TxStore.

PURPOSE:
  Production dialect of the storage layer. Mirrors store/sqlite table for
  table, but leans on the database for concurrency control instead of a
  process-wide mutex: transactions run SERIALIZABLE and the ForUpdate
  reads take real row locks with SELECT ... FOR UPDATE.

CONCURRENCY:
  Two transactions debiting the same account both ask for the account
  row FOR UPDATE; the second blocks until the first commits, then sees
  the new balance. That is what makes the two-competing-debits case
  resolve to exactly one winner.

SEE ALSO:
  - loyalty/store.go: Interface definitions
  - store/sqlite: Embedded dialect for development and tests
*/
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/tlegeek1524/dekcha-backend/loyalty"
)

// Config holds PostgreSQL connection parameters.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Store implements loyalty.TxStore using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a connection pool and verifies connectivity.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", loyalty.ErrStoreUnavailable, err)
	}

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		handle TEXT PRIMARY KEY,
		external_id TEXT UNIQUE,
		phone TEXT,
		name TEXT NOT NULL,
		balance NUMERIC(12,4) NOT NULL DEFAULT 0,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accounts_phone ON accounts(phone);

	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		account_handle TEXT NOT NULL,
		actor_code TEXT NOT NULL,
		actor_name TEXT,
		input TEXT,
		added_by TEXT,
		points NUMERIC(12,4) NOT NULL,
		direction BOOLEAN,
		note TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_account
		ON ledger_entries(account_handle, created_at);

	CREATE TABLE IF NOT EXISTS coupons (
		id TEXT PRIMARY KEY,
		account_handle TEXT NOT NULL,
		reward_id TEXT NOT NULL,
		reward_name TEXT NOT NULL,
		image_ref TEXT,
		point_cost NUMERIC(12,4) NOT NULL,
		unit INTEGER NOT NULL DEFAULT 1,
		code TEXT NOT NULL,
		issued_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		valid BOOLEAN NOT NULL DEFAULT TRUE,
		UNIQUE (account_handle, code)
	);

	CREATE INDEX IF NOT EXISTS idx_coupons_code ON coupons(code);
	CREATE INDEX IF NOT EXISTS idx_coupons_account ON coupons(account_handle);

	CREATE TABLE IF NOT EXISTS coupon_history (
		id TEXT PRIMARY KEY,
		staff_code TEXT NOT NULL,
		account_handle TEXT NOT NULL,
		coupon_id TEXT NOT NULL,
		reward_name TEXT NOT NULL,
		unit INTEGER NOT NULL DEFAULT 1,
		note TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_created ON coupon_history(created_at);

	CREATE TABLE IF NOT EXISTS redemption_records (
		id TEXT PRIMARY KEY,
		coupon_id TEXT NOT NULL,
		coupon_code TEXT NOT NULL,
		staff_code TEXT NOT NULL,
		staff_name TEXT,
		account_handle TEXT NOT NULL,
		reward_name TEXT NOT NULL,
		point_cost NUMERIC(12,4) NOT NULL,
		unit INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_account
		ON redemption_records(account_handle, created_at);

	CREATE TABLE IF NOT EXISTS employees (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `handle, external_id, phone, name, balance, active, created_at`

func (s *Store) SaveAccount(ctx context.Context, a loyalty.Account) error {
	return saveAccount(ctx, s.db, a)
}

func saveAccount(ctx context.Context, db dbtx, a loyalty.Account) error {
	query := `
		INSERT INTO accounts (` + accountColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (handle) DO UPDATE SET
			external_id = EXCLUDED.external_id,
			phone = EXCLUDED.phone,
			name = EXCLUDED.name,
			active = EXCLUDED.active
	`
	_, err := db.ExecContext(ctx, query,
		a.Handle, nullString(a.ExternalID), nullString(a.Phone), a.Name,
		a.Balance.String(), a.Active, a.CreatedAt.UTC(),
	)
	return err
}

func (s *Store) FindAccount(ctx context.Context, ref loyalty.AccountRef) (*loyalty.Account, error) {
	return findAccount(ctx, s.db, ref, false)
}

// FindAccountForUpdate takes a row lock. Only meaningful inside WithTx;
// outside a transaction it degrades to a plain read.
func (s *Store) FindAccountForUpdate(ctx context.Context, ref loyalty.AccountRef) (*loyalty.Account, error) {
	return findAccount(ctx, s.db, ref, false)
}

func findAccount(ctx context.Context, db dbtx, ref loyalty.AccountRef, forUpdate bool) (*loyalty.Account, error) {
	base := "SELECT " + accountColumns + " FROM accounts WHERE active = TRUE AND "
	var cond string
	var args []any
	switch ref.Kind {
	case loyalty.ByHandle:
		cond, args = "handle = $1", []any{ref.Value}
	case loyalty.ByExternalID:
		cond, args = "external_id = $1", []any{ref.Value}
	case loyalty.ByPhone:
		cond, args = "phone = $1", []any{ref.Value}
	default: // ByAny
		cond = "(handle = $1 OR external_id = $1 OR phone = $1)"
		args = []any{ref.Value}
	}
	query := base + cond
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		a                 loyalty.Account
		externalID, phone sql.NullString
		balance           string
	)
	err := db.QueryRowContext(ctx, query, args...).Scan(
		&a.Handle, &externalID, &phone, &a.Name, &balance, &a.Active, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.ExternalID = externalID.String
	a.Phone = phone.String
	a.Balance = loyalty.MustParsePoints(balance)
	return &a, nil
}

func (s *Store) UpdateBalance(ctx context.Context, handle string, balance loyalty.Points) error {
	return updateBalance(ctx, s.db, handle, balance)
}

func updateBalance(ctx context.Context, db dbtx, handle string, balance loyalty.Points) error {
	res, err := db.ExecContext(ctx,
		"UPDATE accounts SET balance = $1 WHERE handle = $2",
		balance.String(), handle,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loyalty.ErrAccountNotFound
	}
	return nil
}

func (s *Store) HandleExists(ctx context.Context, handle string) (bool, error) {
	return exists(ctx, s.db, "SELECT COUNT(*) FROM accounts WHERE handle = $1", handle)
}

// =============================================================================
// LEDGER (append-only)
// =============================================================================

const ledgerColumns = `id, account_handle, actor_code, actor_name, input, added_by,
	points, direction, note, created_at`

func (s *Store) AppendLedgerEntry(ctx context.Context, e loyalty.LedgerEntry) error {
	return appendLedgerEntry(ctx, s.db, e)
}

func appendLedgerEntry(ctx context.Context, db dbtx, e loyalty.LedgerEntry) error {
	query := `
		INSERT INTO ledger_entries (` + ledgerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	var direction any
	if e.Direction != nil {
		direction = bool(*e.Direction)
	}
	_, err := db.ExecContext(ctx, query,
		e.ID, e.AccountHandle, e.ActorCode, e.ActorName,
		e.Input, e.AddedBy, e.Points.String(), direction, e.Note,
		e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return nil
}

func (s *Store) LedgerEntries(ctx context.Context, handle string) ([]loyalty.LedgerEntry, error) {
	return ledgerEntries(ctx, s.db, handle)
}

func ledgerEntries(ctx context.Context, db dbtx, handle string) ([]loyalty.LedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE account_handle = $1
		ORDER BY created_at ASC, id ASC
	`
	return queryLedgerEntries(ctx, db, query, handle)
}

func (s *Store) AllLedgerEntries(ctx context.Context, limit int) ([]loyalty.LedgerEntry, error) {
	return allLedgerEntries(ctx, s.db, limit)
}

func allLedgerEntries(ctx context.Context, db dbtx, limit int) ([]loyalty.LedgerEntry, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	return queryLedgerEntries(ctx, db, query, limit)
}

func queryLedgerEntries(ctx context.Context, db dbtx, query string, args ...any) ([]loyalty.LedgerEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []loyalty.LedgerEntry
	for rows.Next() {
		var (
			e                         loyalty.LedgerEntry
			actorName, input, addedBy sql.NullString
			note                      sql.NullString
			points                    string
			direction                 sql.NullBool
		)
		if err := rows.Scan(&e.ID, &e.AccountHandle, &e.ActorCode, &actorName,
			&input, &addedBy, &points, &direction, &note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		e.ActorName = actorName.String
		e.Input = input.String
		e.AddedBy = addedBy.String
		e.Note = note.String
		e.Points = loyalty.MustParsePoints(points)
		if direction.Valid {
			d := loyalty.Direction(direction.Bool)
			e.Direction = &d
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// COUPONS
// =============================================================================

const couponColumns = `id, account_handle, reward_id, reward_name, image_ref,
	point_cost, unit, code, issued_at, expires_at, valid`

func (s *Store) InsertCoupon(ctx context.Context, c loyalty.Coupon) error {
	return insertCoupon(ctx, s.db, c)
}

func insertCoupon(ctx context.Context, db dbtx, c loyalty.Coupon) error {
	query := `
		INSERT INTO coupons (` + couponColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := db.ExecContext(ctx, query,
		c.ID, c.AccountHandle, c.RewardID, c.RewardName, nullString(c.ImageRef),
		c.PointCost.String(), c.Unit, c.Code,
		c.IssuedAt.UTC(), c.ExpiresAt.UTC(), c.Valid,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost the probe-insert race on the per-account code index.
			return fmt.Errorf("coupon code collision: %w", loyalty.ErrGenerationExhausted)
		}
		return fmt.Errorf("failed to insert coupon: %w", err)
	}
	return nil
}

func (s *Store) CouponByID(ctx context.Context, id string) (*loyalty.Coupon, error) {
	return queryCoupon(ctx, s.db, "SELECT "+couponColumns+" FROM coupons WHERE id = $1", id)
}

func (s *Store) CouponByCode(ctx context.Context, code string) (*loyalty.Coupon, error) {
	return queryCoupon(ctx, s.db, "SELECT "+couponColumns+" FROM coupons WHERE code = $1", code)
}

// CouponByCodeForUpdate degrades to a plain read outside WithTx.
func (s *Store) CouponByCodeForUpdate(ctx context.Context, code string) (*loyalty.Coupon, error) {
	return s.CouponByCode(ctx, code)
}

func queryCoupon(ctx context.Context, db dbtx, query string, args ...any) (*loyalty.Coupon, error) {
	row := db.QueryRowContext(ctx, query, args...)
	c, err := scanCoupon(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func scanCoupon(scan func(dest ...any) error) (*loyalty.Coupon, error) {
	var (
		c         loyalty.Coupon
		imageRef  sql.NullString
		pointCost string
	)
	err := scan(&c.ID, &c.AccountHandle, &c.RewardID, &c.RewardName, &imageRef,
		&pointCost, &c.Unit, &c.Code, &c.IssuedAt, &c.ExpiresAt, &c.Valid)
	if err != nil {
		return nil, err
	}
	c.ImageRef = imageRef.String
	c.PointCost = loyalty.MustParsePoints(pointCost)
	return &c, nil
}

func (s *Store) CouponsForAccount(ctx context.Context, handle string) ([]loyalty.Coupon, error) {
	return couponsForAccount(ctx, s.db, handle)
}

func couponsForAccount(ctx context.Context, db dbtx, handle string) ([]loyalty.Coupon, error) {
	query := "SELECT " + couponColumns + " FROM coupons WHERE account_handle = $1 ORDER BY issued_at ASC"
	rows, err := db.QueryContext(ctx, query, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to query coupons: %w", err)
	}
	defer rows.Close()

	var coupons []loyalty.Coupon
	for rows.Next() {
		c, err := scanCoupon(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan coupon: %w", err)
		}
		coupons = append(coupons, *c)
	}
	return coupons, rows.Err()
}

func (s *Store) InvalidateCoupon(ctx context.Context, id string) error {
	return invalidateCoupon(ctx, s.db, id)
}

func invalidateCoupon(ctx context.Context, db dbtx, id string) error {
	res, err := db.ExecContext(ctx, "UPDATE coupons SET valid = FALSE WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to invalidate coupon: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loyalty.ErrCouponNotFound
	}
	return nil
}

func (s *Store) DeleteCoupon(ctx context.Context, id string) error {
	return deleteCoupon(ctx, s.db, id)
}

func deleteCoupon(ctx context.Context, db dbtx, id string) error {
	res, err := db.ExecContext(ctx, "DELETE FROM coupons WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete coupon: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return loyalty.ErrCouponNotFound
	}
	return nil
}

func (s *Store) CouponCodeExists(ctx context.Context, handle, code string) (bool, error) {
	return exists(ctx, s.db,
		"SELECT COUNT(*) FROM coupons WHERE account_handle = $1 AND code = $2", handle, code)
}

// =============================================================================
// HISTORY AND RECEIPTS (append-only)
// =============================================================================

func (s *Store) AppendCouponHistory(ctx context.Context, h loyalty.CouponHistoryEntry) error {
	return appendCouponHistory(ctx, s.db, h)
}

func appendCouponHistory(ctx context.Context, db dbtx, h loyalty.CouponHistoryEntry) error {
	query := `
		INSERT INTO coupon_history
		(id, staff_code, account_handle, coupon_id, reward_name, unit, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := db.ExecContext(ctx, query,
		h.ID, h.StaffCode, h.AccountHandle, h.CouponID, h.RewardName, h.Unit, h.Note,
		h.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append coupon history: %w", err)
	}
	return nil
}

func (s *Store) CouponHistory(ctx context.Context, limit int) ([]loyalty.CouponHistoryEntry, error) {
	return couponHistory(ctx, s.db, limit)
}

func couponHistory(ctx context.Context, db dbtx, limit int) ([]loyalty.CouponHistoryEntry, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `
		SELECT id, staff_code, account_handle, coupon_id, reward_name, unit, note, created_at
		FROM coupon_history
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`
	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query coupon history: %w", err)
	}
	defer rows.Close()

	var history []loyalty.CouponHistoryEntry
	for rows.Next() {
		var (
			h    loyalty.CouponHistoryEntry
			note sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.StaffCode, &h.AccountHandle, &h.CouponID,
			&h.RewardName, &h.Unit, &note, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan coupon history: %w", err)
		}
		h.Note = note.String
		history = append(history, h)
	}
	return history, rows.Err()
}

func (s *Store) InsertRedemptionRecord(ctx context.Context, r loyalty.RedemptionRecord) error {
	return insertRedemptionRecord(ctx, s.db, r)
}

func insertRedemptionRecord(ctx context.Context, db dbtx, r loyalty.RedemptionRecord) error {
	query := `
		INSERT INTO redemption_records
		(id, coupon_id, coupon_code, staff_code, staff_name, account_handle,
		 reward_name, point_cost, unit, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := db.ExecContext(ctx, query,
		r.ID, r.CouponID, r.CouponCode, r.StaffCode, r.StaffName, r.AccountHandle,
		r.RewardName, r.PointCost.String(), r.Unit, r.Status, r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert redemption record: %w", err)
	}
	return nil
}

func (s *Store) RedemptionRecordsForAccount(ctx context.Context, handle string) ([]loyalty.RedemptionRecord, error) {
	return redemptionRecordsForAccount(ctx, s.db, handle)
}

func redemptionRecordsForAccount(ctx context.Context, db dbtx, handle string) ([]loyalty.RedemptionRecord, error) {
	query := `
		SELECT id, coupon_id, coupon_code, staff_code, staff_name, account_handle,
		       reward_name, point_cost, unit, status, created_at
		FROM redemption_records
		WHERE account_handle = $1
		ORDER BY created_at DESC
	`
	rows, err := db.QueryContext(ctx, query, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to query redemption records: %w", err)
	}
	defer rows.Close()

	var records []loyalty.RedemptionRecord
	for rows.Next() {
		var (
			r         loyalty.RedemptionRecord
			staffName sql.NullString
			pointCost string
		)
		if err := rows.Scan(&r.ID, &r.CouponID, &r.CouponCode, &r.StaffCode, &staffName,
			&r.AccountHandle, &r.RewardName, &pointCost, &r.Unit, &r.Status, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan redemption record: %w", err)
		}
		r.StaffName = staffName.String
		r.PointCost = loyalty.MustParsePoints(pointCost)
		records = append(records, r)
	}
	return records, rows.Err()
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e loyalty.Employee) error {
	return saveEmployee(ctx, s.db, e)
}

func saveEmployee(ctx context.Context, db dbtx, e loyalty.Employee) error {
	query := `
		INSERT INTO employees (code, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
	`
	_, err := db.ExecContext(ctx, query, e.Code, e.Name, e.CreatedAt.UTC())
	return err
}

func (s *Store) EmployeeByCode(ctx context.Context, code string) (*loyalty.Employee, error) {
	return employeeByCode(ctx, s.db, code)
}

func employeeByCode(ctx context.Context, db dbtx, code string) (*loyalty.Employee, error) {
	var e loyalty.Employee
	err := db.QueryRowContext(ctx,
		"SELECT code, name, created_at FROM employees WHERE code = $1", code,
	).Scan(&e.Code, &e.Name, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *Store) EmployeeCodeExists(ctx context.Context, code string) (bool, error) {
	return exists(ctx, s.db, "SELECT COUNT(*) FROM employees WHERE code = $1", code)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a SERIALIZABLE transaction. ForUpdate reads
// issued through the transactional store take row locks, so competing
// debits on one account resolve in commit order.
func (s *Store) WithTx(ctx context.Context, fn func(loyalty.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", loyalty.ErrStoreUnavailable, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", loyalty.ErrStoreUnavailable, err)
	}
	return nil
}

// txStore routes every operation through the open transaction.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) SaveAccount(ctx context.Context, a loyalty.Account) error {
	return saveAccount(ctx, ts.tx, a)
}

func (ts *txStore) FindAccount(ctx context.Context, ref loyalty.AccountRef) (*loyalty.Account, error) {
	return findAccount(ctx, ts.tx, ref, false)
}

func (ts *txStore) FindAccountForUpdate(ctx context.Context, ref loyalty.AccountRef) (*loyalty.Account, error) {
	return findAccount(ctx, ts.tx, ref, true)
}

func (ts *txStore) UpdateBalance(ctx context.Context, handle string, balance loyalty.Points) error {
	return updateBalance(ctx, ts.tx, handle, balance)
}

func (ts *txStore) HandleExists(ctx context.Context, handle string) (bool, error) {
	return exists(ctx, ts.tx, "SELECT COUNT(*) FROM accounts WHERE handle = $1", handle)
}

func (ts *txStore) AppendLedgerEntry(ctx context.Context, e loyalty.LedgerEntry) error {
	return appendLedgerEntry(ctx, ts.tx, e)
}

func (ts *txStore) LedgerEntries(ctx context.Context, handle string) ([]loyalty.LedgerEntry, error) {
	return ledgerEntries(ctx, ts.tx, handle)
}

func (ts *txStore) AllLedgerEntries(ctx context.Context, limit int) ([]loyalty.LedgerEntry, error) {
	return allLedgerEntries(ctx, ts.tx, limit)
}

func (ts *txStore) InsertCoupon(ctx context.Context, c loyalty.Coupon) error {
	return insertCoupon(ctx, ts.tx, c)
}

func (ts *txStore) CouponByID(ctx context.Context, id string) (*loyalty.Coupon, error) {
	return queryCoupon(ctx, ts.tx, "SELECT "+couponColumns+" FROM coupons WHERE id = $1", id)
}

func (ts *txStore) CouponByCode(ctx context.Context, code string) (*loyalty.Coupon, error) {
	return queryCoupon(ctx, ts.tx, "SELECT "+couponColumns+" FROM coupons WHERE code = $1", code)
}

func (ts *txStore) CouponByCodeForUpdate(ctx context.Context, code string) (*loyalty.Coupon, error) {
	return queryCoupon(ctx, ts.tx,
		"SELECT "+couponColumns+" FROM coupons WHERE code = $1 FOR UPDATE", code)
}

func (ts *txStore) CouponsForAccount(ctx context.Context, handle string) ([]loyalty.Coupon, error) {
	return couponsForAccount(ctx, ts.tx, handle)
}

func (ts *txStore) InvalidateCoupon(ctx context.Context, id string) error {
	return invalidateCoupon(ctx, ts.tx, id)
}

func (ts *txStore) DeleteCoupon(ctx context.Context, id string) error {
	return deleteCoupon(ctx, ts.tx, id)
}

func (ts *txStore) CouponCodeExists(ctx context.Context, handle, code string) (bool, error) {
	return exists(ctx, ts.tx,
		"SELECT COUNT(*) FROM coupons WHERE account_handle = $1 AND code = $2", handle, code)
}

func (ts *txStore) AppendCouponHistory(ctx context.Context, h loyalty.CouponHistoryEntry) error {
	return appendCouponHistory(ctx, ts.tx, h)
}

func (ts *txStore) CouponHistory(ctx context.Context, limit int) ([]loyalty.CouponHistoryEntry, error) {
	return couponHistory(ctx, ts.tx, limit)
}

func (ts *txStore) InsertRedemptionRecord(ctx context.Context, r loyalty.RedemptionRecord) error {
	return insertRedemptionRecord(ctx, ts.tx, r)
}

func (ts *txStore) RedemptionRecordsForAccount(ctx context.Context, handle string) ([]loyalty.RedemptionRecord, error) {
	return redemptionRecordsForAccount(ctx, ts.tx, handle)
}

func (ts *txStore) SaveEmployee(ctx context.Context, e loyalty.Employee) error {
	return saveEmployee(ctx, ts.tx, e)
}

func (ts *txStore) EmployeeByCode(ctx context.Context, code string) (*loyalty.Employee, error) {
	return employeeByCode(ctx, ts.tx, code)
}

func (ts *txStore) EmployeeCodeExists(ctx context.Context, code string) (bool, error) {
	return exists(ctx, ts.tx, "SELECT COUNT(*) FROM employees WHERE code = $1", code)
}

// =============================================================================
// HELPERS
// =============================================================================

func exists(ctx context.Context, db dbtx, query string, args ...any) (bool, error) {
	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// 23505 is unique_violation.
func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

var (
	_ loyalty.TxStore = (*Store)(nil)
	_ loyalty.Store   = (*txStore)(nil)
)
