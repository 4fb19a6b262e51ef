/*
Package coupon implements the coupon lifecycle and the redemption use cases.

PURPOSE:
  Builds on the loyalty package to run the two customer-facing flows of
  the rewards program:
    1. Exchange: points -> coupon (debit balance, mint code, insert coupon)
    2. Redeem at POS: coupon code + staff actor -> receipt

STATE MACHINE (per coupon):
  Issued/Valid  - created with valid=true, exp = issued + validity window
  Used          - valid=false plus a RedemptionRecord; terminal; reachable
                  only from Valid via RedeemByCode
  Expired       - derived, not stored: valid=true with exp in the past is
                  treated as expired on every read and redemption path
  Deleted       - terminal; only an expired coupon may be deleted

  Expiry is never written back to storage. A coupon whose exp has passed
  but whose valid flag is still true is NOT redeemable; the check happens
  at redemption time, not via a background sweep.

ATOMICITY:
  Issue runs debit + code generation + coupon insert in one store
  transaction: a failed insert rolls the debit back. RedeemByCode runs
  flag flip + history entry + receipt insert in one transaction: a coupon
  is never marked used without its receipt existing.

SEE ALSO:
  - loyalty/ledger.go: DebitTx composed into the exchange transaction
  - service.go: Orchestrator wrapping these operations for the API shell
*/
package coupon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tlegeek1524/dekcha-backend/loyalty"
)

// =============================================================================
// POLICY CONSTANTS
// =============================================================================

const (
	// DefaultValidityDays is the coupon validity window: expiry is the
	// issue date plus this many days.
	DefaultValidityDays = 7

	// DefaultCodeLength is the coupon code length in symbols.
	DefaultCodeLength = 6
)

// =============================================================================
// MANAGER - Coupon lifecycle
// =============================================================================

// Manager owns coupon issuance, validity evaluation, and the transition
// from valid to used.
type Manager struct {
	store    loyalty.TxStore
	codes    *loyalty.Generator
	validity time.Duration
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithValidity overrides the validity window.
func WithValidity(d time.Duration) Option {
	return func(m *Manager) { m.validity = d }
}

// WithCodeLength overrides the coupon code length.
func WithCodeLength(n int) Option {
	return func(m *Manager) { m.codes = loyalty.NewGenerator(n) }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(store loyalty.TxStore, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		codes:    loyalty.NewGenerator(DefaultCodeLength),
		validity: DefaultValidityDays * 24 * time.Hour,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IssueInput carries everything needed to exchange points for a coupon.
type IssueInput struct {
	Account    loyalty.AccountRef
	RewardID   string
	RewardName string
	ImageRef   string
	PointCost  loyalty.Points
	Unit       int
}

// Issue exchanges points for a new coupon: debit the account, mint a
// collision-free code scoped to the account, and insert the coupon row,
// all in one transaction. If any step fails the whole exchange rolls
// back; the debit never survives a failed coupon insert.
func (m *Manager) Issue(ctx context.Context, in IssueInput) (*loyalty.Coupon, error) {
	if !in.PointCost.IsPositive() {
		return nil, loyalty.ErrInvalidAmount
	}
	if in.Unit <= 0 {
		in.Unit = 1
	}

	var issued *loyalty.Coupon
	err := m.store.WithTx(ctx, func(s loyalty.Store) error {
		entry, err := loyalty.DebitTx(ctx, s, in.Account, in.PointCost, loyalty.SystemActor,
			fmt.Sprintf("exchanged for %s", in.RewardName))
		if err != nil {
			return err
		}

		code, err := m.codes.Generate(ctx, loyalty.CouponCodeScope(s, entry.AccountHandle))
		if err != nil {
			return err
		}

		now := m.now()
		c := loyalty.Coupon{
			ID:            uuid.NewString(),
			AccountHandle: entry.AccountHandle,
			RewardID:      in.RewardID,
			RewardName:    in.RewardName,
			ImageRef:      in.ImageRef,
			PointCost:     in.PointCost,
			Unit:          in.Unit,
			Code:          code,
			IssuedAt:      now,
			ExpiresAt:     now.Add(m.validity),
			Valid:         true,
		}
		if err := s.InsertCoupon(ctx, c); err != nil {
			return err
		}
		issued = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

// RedeemByCode marks the coupon used on behalf of a staff actor and
// writes the usage history entry plus the receipt, all in one
// transaction.
//
// Failure order matches what POS staff see: unknown code, then already
// used, then expired. An expired coupon is rejected even though its
// valid flag is still true.
func (m *Manager) RedeemByCode(ctx context.Context, code string, staff loyalty.Actor) (*loyalty.RedemptionRecord, error) {
	var record *loyalty.RedemptionRecord
	err := m.store.WithTx(ctx, func(s loyalty.Store) error {
		c, err := s.CouponByCodeForUpdate(ctx, code)
		if err != nil {
			return err
		}
		if c == nil {
			return loyalty.ErrCouponNotFound
		}
		if !c.Valid {
			return loyalty.ErrCouponUsed
		}
		now := m.now()
		if c.ExpiredAt(now) {
			return loyalty.ErrCouponExpired
		}

		if err := s.InvalidateCoupon(ctx, c.ID); err != nil {
			return err
		}

		if err := s.AppendCouponHistory(ctx, loyalty.CouponHistoryEntry{
			ID:            uuid.NewString(),
			StaffCode:     staff.Code,
			AccountHandle: c.AccountHandle,
			CouponID:      c.ID,
			RewardName:    c.RewardName,
			Unit:          c.Unit,
			Note:          fmt.Sprintf("coupon used by staff %s", staff.Code),
			CreatedAt:     now,
		}); err != nil {
			return err
		}

		r := loyalty.RedemptionRecord{
			ID:            uuid.NewString(),
			CouponID:      c.ID,
			CouponCode:    c.Code,
			StaffCode:     staff.Code,
			StaffName:     staff.Name,
			AccountHandle: c.AccountHandle,
			RewardName:    c.RewardName,
			PointCost:     c.PointCost,
			Unit:          c.Unit,
			Status:        loyalty.RedemptionStatusUsed,
			CreatedAt:     now,
		}
		if err := s.InsertRedemptionRecord(ctx, r); err != nil {
			return err
		}
		record = &r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListForAccount partitions the account's still-flagged coupons into
// valid and expired buckets by comparing expiry against the current
// time. Read-only: an expired coupon keeps valid=true in storage until
// it is deleted.
func (m *Manager) ListForAccount(ctx context.Context, handle string) (valid, expired []loyalty.Coupon, err error) {
	coupons, err := m.store.CouponsForAccount(ctx, handle)
	if err != nil {
		return nil, nil, err
	}

	now := m.now()
	for _, c := range coupons {
		if !c.Valid {
			continue
		}
		if c.ExpiredAt(now) {
			expired = append(expired, c)
		} else {
			valid = append(valid, c)
		}
	}
	return valid, expired, nil
}

// Delete removes a coupon. Only expired coupons may be deleted: deleting
// a coupon whose expiry has not passed fails with ErrCouponNotExpired.
func (m *Manager) Delete(ctx context.Context, couponID string) error {
	return m.store.WithTx(ctx, func(s loyalty.Store) error {
		c, err := s.CouponByID(ctx, couponID)
		if err != nil {
			return err
		}
		if c == nil {
			return loyalty.ErrCouponNotFound
		}
		if c.ExpiresAt.After(m.now()) {
			return loyalty.ErrCouponNotExpired
		}
		return s.DeleteCoupon(ctx, c.ID)
	})
}
