// Package store provides an in-memory loyalty.TxStore for tests and demos.
package store

import (
	"context"
	"sync"

	"github.com/tlegeek1524/dekcha-backend/loyalty"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements loyalty.TxStore in process memory. WithTx simulates
// transactions with a snapshot taken under the write lock and restored on
// error; since the lock is held for the whole closure, writers serialize
// exactly like rows locked FOR UPDATE.
type Memory struct {
	mu        sync.RWMutex
	accounts  map[string]loyalty.Account // by handle
	entries   []loyalty.LedgerEntry
	coupons   []loyalty.Coupon
	history   []loyalty.CouponHistoryEntry
	receipts  []loyalty.RedemptionRecord
	employees map[string]loyalty.Employee // by code
}

func NewMemory() *Memory {
	return &Memory{
		accounts:  make(map[string]loyalty.Account),
		employees: make(map[string]loyalty.Employee),
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Memory) SaveAccount(_ context.Context, a loyalty.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveAccountLocked(a)
}

func (m *Memory) saveAccountLocked(a loyalty.Account) error {
	if existing, ok := m.accounts[a.Handle]; ok {
		// Balance changes only via UpdateBalance.
		a.Balance = existing.Balance
	}
	m.accounts[a.Handle] = a
	return nil
}

func (m *Memory) FindAccount(_ context.Context, ref loyalty.AccountRef) (*loyalty.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.findAccountLocked(ref), nil
}

func (m *Memory) FindAccountForUpdate(ctx context.Context, ref loyalty.AccountRef) (*loyalty.Account, error) {
	// Row locking inside a transaction is handled by WithTx holding the
	// write lock; on the root store this is a plain read.
	return m.FindAccount(ctx, ref)
}

func (m *Memory) findAccountLocked(ref loyalty.AccountRef) *loyalty.Account {
	for _, a := range m.accounts {
		switch ref.Kind {
		case loyalty.ByHandle:
			if a.Handle != ref.Value {
				continue
			}
		case loyalty.ByExternalID:
			if a.ExternalID != ref.Value {
				continue
			}
		case loyalty.ByPhone:
			if a.Phone != ref.Value {
				continue
			}
		case loyalty.ByAny:
			if a.Handle != ref.Value && a.ExternalID != ref.Value && a.Phone != ref.Value {
				continue
			}
		default:
			continue
		}
		if !a.Active {
			continue
		}
		found := a
		return &found
	}
	return nil
}

func (m *Memory) UpdateBalance(_ context.Context, handle string, balance loyalty.Points) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBalanceLocked(handle, balance)
}

func (m *Memory) updateBalanceLocked(handle string, balance loyalty.Points) error {
	a, ok := m.accounts[handle]
	if !ok {
		return loyalty.ErrAccountNotFound
	}
	a.Balance = balance
	m.accounts[handle] = a
	return nil
}

func (m *Memory) HandleExists(_ context.Context, handle string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.accounts[handle]
	return ok, nil
}

// =============================================================================
// LEDGER (append-only)
// =============================================================================

func (m *Memory) AppendLedgerEntry(_ context.Context, e loyalty.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) LedgerEntries(_ context.Context, handle string) ([]loyalty.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []loyalty.LedgerEntry
	for _, e := range m.entries {
		if e.AccountHandle == handle {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *Memory) AllLedgerEntries(_ context.Context, limit int) ([]loyalty.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]loyalty.LedgerEntry, len(m.entries))
	copy(out, m.entries)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// =============================================================================
// COUPONS
// =============================================================================

func (m *Memory) InsertCoupon(_ context.Context, c loyalty.Coupon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coupons = append(m.coupons, c)
	return nil
}

func (m *Memory) CouponByID(_ context.Context, id string) (*loyalty.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.couponLocked(func(c loyalty.Coupon) bool { return c.ID == id }), nil
}

func (m *Memory) CouponByCode(_ context.Context, code string) (*loyalty.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.couponLocked(func(c loyalty.Coupon) bool { return c.Code == code }), nil
}

func (m *Memory) CouponByCodeForUpdate(ctx context.Context, code string) (*loyalty.Coupon, error) {
	return m.CouponByCode(ctx, code)
}

func (m *Memory) couponLocked(match func(loyalty.Coupon) bool) *loyalty.Coupon {
	for i := range m.coupons {
		if match(m.coupons[i]) {
			c := m.coupons[i]
			return &c
		}
	}
	return nil
}

func (m *Memory) CouponsForAccount(_ context.Context, handle string) ([]loyalty.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []loyalty.Coupon
	for _, c := range m.coupons {
		if c.AccountHandle == handle {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) InvalidateCoupon(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.invalidateCouponLocked(id)
}

func (m *Memory) invalidateCouponLocked(id string) error {
	for i := range m.coupons {
		if m.coupons[i].ID == id {
			m.coupons[i].Valid = false
			return nil
		}
	}
	return loyalty.ErrCouponNotFound
}

func (m *Memory) DeleteCoupon(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteCouponLocked(id)
}

func (m *Memory) deleteCouponLocked(id string) error {
	for i := range m.coupons {
		if m.coupons[i].ID == id {
			m.coupons = append(m.coupons[:i], m.coupons[i+1:]...)
			return nil
		}
	}
	return loyalty.ErrCouponNotFound
}

func (m *Memory) CouponCodeExists(_ context.Context, handle, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.coupons {
		if c.AccountHandle == handle && c.Code == code {
			return true, nil
		}
	}
	return false, nil
}

// =============================================================================
// HISTORY AND RECEIPTS (append-only)
// =============================================================================

func (m *Memory) AppendCouponHistory(_ context.Context, h loyalty.CouponHistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, h)
	return nil
}

func (m *Memory) CouponHistory(_ context.Context, limit int) ([]loyalty.CouponHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]loyalty.CouponHistoryEntry, len(m.history))
	copy(out, m.history)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *Memory) InsertRedemptionRecord(_ context.Context, r loyalty.RedemptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receipts = append(m.receipts, r)
	return nil
}

func (m *Memory) RedemptionRecordsForAccount(_ context.Context, handle string) ([]loyalty.RedemptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []loyalty.RedemptionRecord
	for _, r := range m.receipts {
		if r.AccountHandle == handle {
			out = append(out, r)
		}
	}
	return out, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, e loyalty.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[e.Code] = e
	return nil
}

func (m *Memory) EmployeeByCode(_ context.Context, code string) (*loyalty.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.employees[code]; ok {
		return &e, nil
	}
	return nil, nil
}

func (m *Memory) EmployeeCodeExists(_ context.Context, code string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.employees[code]
	return ok, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn against a transactional view. The write lock is held
// for the whole closure, so concurrent transactions serialize; on error the
// pre-transaction snapshot is restored.
func (m *Memory) WithTx(ctx context.Context, fn func(loyalty.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	accounts  map[string]loyalty.Account
	entries   []loyalty.LedgerEntry
	coupons   []loyalty.Coupon
	history   []loyalty.CouponHistoryEntry
	receipts  []loyalty.RedemptionRecord
	employees map[string]loyalty.Employee
}

func (m *Memory) snapshot() memSnapshot {
	accounts := make(map[string]loyalty.Account, len(m.accounts))
	for k, v := range m.accounts {
		accounts[k] = v
	}
	employees := make(map[string]loyalty.Employee, len(m.employees))
	for k, v := range m.employees {
		employees[k] = v
	}
	return memSnapshot{
		accounts:  accounts,
		entries:   append([]loyalty.LedgerEntry{}, m.entries...),
		coupons:   append([]loyalty.Coupon{}, m.coupons...),
		history:   append([]loyalty.CouponHistoryEntry{}, m.history...),
		receipts:  append([]loyalty.RedemptionRecord{}, m.receipts...),
		employees: employees,
	}
}

func (m *Memory) restore(s memSnapshot) {
	m.accounts = s.accounts
	m.entries = s.entries
	m.coupons = s.coupons
	m.history = s.history
	m.receipts = s.receipts
	m.employees = s.employees
}

// txView calls the parent's lock-free internals; the parent's write lock is
// already held by WithTx.
type txView struct {
	parent *Memory
}

func (tv *txView) SaveAccount(_ context.Context, a loyalty.Account) error {
	return tv.parent.saveAccountLocked(a)
}

func (tv *txView) FindAccount(_ context.Context, ref loyalty.AccountRef) (*loyalty.Account, error) {
	return tv.parent.findAccountLocked(ref), nil
}

func (tv *txView) FindAccountForUpdate(_ context.Context, ref loyalty.AccountRef) (*loyalty.Account, error) {
	return tv.parent.findAccountLocked(ref), nil
}

func (tv *txView) UpdateBalance(_ context.Context, handle string, balance loyalty.Points) error {
	return tv.parent.updateBalanceLocked(handle, balance)
}

func (tv *txView) HandleExists(_ context.Context, handle string) (bool, error) {
	_, ok := tv.parent.accounts[handle]
	return ok, nil
}

func (tv *txView) AppendLedgerEntry(_ context.Context, e loyalty.LedgerEntry) error {
	tv.parent.entries = append(tv.parent.entries, e)
	return nil
}

func (tv *txView) LedgerEntries(_ context.Context, handle string) ([]loyalty.LedgerEntry, error) {
	var out []loyalty.LedgerEntry
	for _, e := range tv.parent.entries {
		if e.AccountHandle == handle {
			out = append(out, e)
		}
	}
	return out, nil
}

func (tv *txView) AllLedgerEntries(_ context.Context, limit int) ([]loyalty.LedgerEntry, error) {
	out := append([]loyalty.LedgerEntry{}, tv.parent.entries...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (tv *txView) InsertCoupon(_ context.Context, c loyalty.Coupon) error {
	tv.parent.coupons = append(tv.parent.coupons, c)
	return nil
}

func (tv *txView) CouponByID(_ context.Context, id string) (*loyalty.Coupon, error) {
	return tv.parent.couponLocked(func(c loyalty.Coupon) bool { return c.ID == id }), nil
}

func (tv *txView) CouponByCode(_ context.Context, code string) (*loyalty.Coupon, error) {
	return tv.parent.couponLocked(func(c loyalty.Coupon) bool { return c.Code == code }), nil
}

func (tv *txView) CouponByCodeForUpdate(_ context.Context, code string) (*loyalty.Coupon, error) {
	return tv.parent.couponLocked(func(c loyalty.Coupon) bool { return c.Code == code }), nil
}

func (tv *txView) CouponsForAccount(_ context.Context, handle string) ([]loyalty.Coupon, error) {
	var out []loyalty.Coupon
	for _, c := range tv.parent.coupons {
		if c.AccountHandle == handle {
			out = append(out, c)
		}
	}
	return out, nil
}

func (tv *txView) InvalidateCoupon(_ context.Context, id string) error {
	return tv.parent.invalidateCouponLocked(id)
}

func (tv *txView) DeleteCoupon(_ context.Context, id string) error {
	return tv.parent.deleteCouponLocked(id)
}

func (tv *txView) CouponCodeExists(_ context.Context, handle, code string) (bool, error) {
	for _, c := range tv.parent.coupons {
		if c.AccountHandle == handle && c.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (tv *txView) AppendCouponHistory(_ context.Context, h loyalty.CouponHistoryEntry) error {
	tv.parent.history = append(tv.parent.history, h)
	return nil
}

func (tv *txView) CouponHistory(_ context.Context, limit int) ([]loyalty.CouponHistoryEntry, error) {
	out := append([]loyalty.CouponHistoryEntry{}, tv.parent.history...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (tv *txView) InsertRedemptionRecord(_ context.Context, r loyalty.RedemptionRecord) error {
	tv.parent.receipts = append(tv.parent.receipts, r)
	return nil
}

func (tv *txView) RedemptionRecordsForAccount(_ context.Context, handle string) ([]loyalty.RedemptionRecord, error) {
	var out []loyalty.RedemptionRecord
	for _, r := range tv.parent.receipts {
		if r.AccountHandle == handle {
			out = append(out, r)
		}
	}
	return out, nil
}

func (tv *txView) SaveEmployee(_ context.Context, e loyalty.Employee) error {
	tv.parent.employees[e.Code] = e
	return nil
}

func (tv *txView) EmployeeByCode(_ context.Context, code string) (*loyalty.Employee, error) {
	if e, ok := tv.parent.employees[code]; ok {
		return &e, nil
	}
	return nil, nil
}

func (tv *txView) EmployeeCodeExists(_ context.Context, code string) (bool, error) {
	_, ok := tv.parent.employees[code]
	return ok, nil
}

var _ loyalty.TxStore = (*Memory)(nil)
var _ loyalty.Store = (*txView)(nil)
