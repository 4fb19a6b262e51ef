/*
store.go - Persistence interfaces for the loyalty engine

PURPOSE:
  Defines the interface between the domain logic and the database.
  Implementations exist for SQLite, PostgreSQL, and in-memory storage.

TRANSACTION MODEL:
  TxStore.WithTx runs a closure against a transaction-scoped Store. All
  multi-write operations (credit, debit, exchange, redemption) execute
  inside one WithTx call: either every write commits or none do. There is
  no language-level lock per account - the store transaction is the unit
  of ownership.

ROW LOCKING:
  The ForUpdate read variants exist for stores with real row locks
  (PostgreSQL SELECT ... FOR UPDATE). Single-writer stores (SQLite with a
  write mutex, the in-memory store) may implement them as plain reads,
  since WithTx already serializes writers.

NOT-FOUND CONVENTION:
  Single-record lookups return (nil, nil) when no row matches. Domain
  layers translate that into their ErrXxxNotFound kinds.

APPEND-ONLY TABLES:
  Ledger entries, coupon history, and redemption records have no update
  or delete operations. Ever.

SEE ALSO:
  - store/sqlite: Production store
  - store/postgres: PostgreSQL store with row locking
  - loyalty/store: In-memory store for tests
*/
package loyalty

import "context"

// =============================================================================
// STORE - Flat persistence interface
// =============================================================================

// Store handles persistence for accounts, the ledger, coupons, receipts,
// and employees. Methods must be safe to call on both a root store and a
// transaction-scoped store obtained from TxStore.WithTx.
type Store interface {
	// --- Accounts ---

	// SaveAccount inserts or updates an account's profile fields.
	// It never touches Balance; balance changes go through UpdateBalance
	// so they can be paired with a ledger entry.
	SaveAccount(ctx context.Context, a Account) error

	// FindAccount resolves an AccountRef to an account, or (nil, nil).
	FindAccount(ctx context.Context, ref AccountRef) (*Account, error)

	// FindAccountForUpdate is FindAccount with a row lock where the store
	// supports one. Must be called inside WithTx.
	FindAccountForUpdate(ctx context.Context, ref AccountRef) (*Account, error)

	// UpdateBalance writes a new balance for the account.
	UpdateBalance(ctx context.Context, handle string, balance Points) error

	// HandleExists reports whether an account handle is taken.
	HandleExists(ctx context.Context, handle string) (bool, error)

	// --- Ledger (append-only) ---

	AppendLedgerEntry(ctx context.Context, e LedgerEntry) error
	LedgerEntries(ctx context.Context, handle string) ([]LedgerEntry, error)
	AllLedgerEntries(ctx context.Context, limit int) ([]LedgerEntry, error)

	// --- Coupons ---

	InsertCoupon(ctx context.Context, c Coupon) error
	CouponByID(ctx context.Context, id string) (*Coupon, error)
	CouponByCode(ctx context.Context, code string) (*Coupon, error)

	// CouponByCodeForUpdate is CouponByCode with a row lock where the
	// store supports one. Must be called inside WithTx.
	CouponByCodeForUpdate(ctx context.Context, code string) (*Coupon, error)

	CouponsForAccount(ctx context.Context, handle string) ([]Coupon, error)

	// InvalidateCoupon sets valid=false. There is no inverse operation:
	// once invalid, a coupon stays invalid.
	InvalidateCoupon(ctx context.Context, id string) error

	// DeleteCoupon removes a coupon row. Callers must enforce the
	// expired-only rule before calling this.
	DeleteCoupon(ctx context.Context, id string) error

	// CouponCodeExists reports whether the account already owns a coupon
	// with this code. Uniqueness probe for the code generator.
	CouponCodeExists(ctx context.Context, handle, code string) (bool, error)

	// --- Usage history and receipts (append-only) ---

	AppendCouponHistory(ctx context.Context, h CouponHistoryEntry) error
	CouponHistory(ctx context.Context, limit int) ([]CouponHistoryEntry, error)

	InsertRedemptionRecord(ctx context.Context, r RedemptionRecord) error
	RedemptionRecordsForAccount(ctx context.Context, handle string) ([]RedemptionRecord, error)

	// --- Employees ---

	SaveEmployee(ctx context.Context, e Employee) error
	EmployeeByCode(ctx context.Context, code string) (*Employee, error)
	EmployeeCodeExists(ctx context.Context, code string) (bool, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn against a transaction-scoped Store.
	// If fn returns an error, the transaction is rolled back and the error
	// is returned unchanged. If fn returns nil, the transaction commits;
	// a commit failure surfaces as ErrStoreUnavailable.
	WithTx(ctx context.Context, fn func(Store) error) error
}
