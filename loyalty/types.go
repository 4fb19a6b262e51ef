/*
Package loyalty provides the core points ledger and coupon engine.

PURPOSE:
  This package contains the domain types and algorithms for a rewards
  program: customer accounts holding a point balance, an immutable log of
  every balance change, coupons exchanged for points, and the receipts
  produced when a coupon is used at point-of-sale.

KEY CONCEPTS IN THIS FILE (types.go):
  - Points: A fixed-point quantity (partial points are permitted)
  - Account: A customer identity with a public handle and a balance
  - LedgerEntry: An immutable record of one balance change
  - Coupon: A point-for-reward exchange with a unique code and expiry
  - RedemptionRecord: The receipt written when a coupon is used
  - AccountRef: A typed "find by any of several identifiers" lookup

DESIGN PRINCIPLES:
  1. Immutability: Ledger entries, history, and receipts are never edited
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Atomicity: Every balance change and its ledger entry share one
     store transaction; the transaction is the unit of ownership
  4. Auditability: Every mutation names the actor that caused it

SEE ALSO:
  - ledger.go: Balance mutations (credit/debit)
  - codegen.go: Collision-free code generation
  - store.go: Persistence interfaces
*/
package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POINTS - Fixed-point quantity
// =============================================================================

// Points is a fixed-point amount of loyalty points. Fractional points are
// legal: staff credits divide raw purchase units by a conversion divisor.
type Points struct {
	Value decimal.Decimal
}

func NewPoints(value float64) Points      { return Points{Value: decimal.NewFromFloat(value)} }
func NewPointsFromInt(value int) Points   { return Points{Value: decimal.NewFromInt(int64(value))} }
func ZeroPoints() Points                  { return Points{Value: decimal.Zero} }

// MustParsePoints parses a stored decimal string, returning zero on failure.
// Stores persist points as strings to keep full precision.
func MustParsePoints(s string) Points {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroPoints()
	}
	return Points{Value: d}
}

// ConvertRawUnits maps raw input units (e.g. currency spent) to points by
// dividing by the program's conversion divisor. The quotient keeps its
// fractional part.
func ConvertRawUnits(raw float64, divisor int64) Points {
	return Points{Value: decimal.NewFromFloat(raw).Div(decimal.NewFromInt(divisor))}
}

func (p Points) Add(o Points) Points       { return Points{Value: p.Value.Add(o.Value)} }
func (p Points) Sub(o Points) Points       { return Points{Value: p.Value.Sub(o.Value)} }
func (p Points) IsNegative() bool          { return p.Value.IsNegative() }
func (p Points) IsPositive() bool          { return p.Value.IsPositive() }
func (p Points) IsZero() bool              { return p.Value.IsZero() }
func (p Points) GreaterThan(o Points) bool { return p.Value.GreaterThan(o.Value) }
func (p Points) LessThan(o Points) bool    { return p.Value.LessThan(o.Value) }
func (p Points) Equal(o Points) bool       { return p.Value.Equal(o.Value) }
func (p Points) String() string            { return p.Value.String() }
func (p Points) Float64() float64          { f, _ := p.Value.Float64(); return f }

// =============================================================================
// ACCOUNT - Customer identity and balance
// =============================================================================

// Account is a customer's loyalty profile. Handle is the public member id;
// ExternalID is the upstream login identifier (messaging platform id);
// Phone is an optional secondary lookup key.
//
// INVARIANT: Balance never goes negative, and every change to it is paired
// with exactly one LedgerEntry in the same transaction.
type Account struct {
	Handle     string
	ExternalID string
	Phone      string
	Name       string
	Balance    Points
	Active     bool
	CreatedAt  time.Time
}

// LookupKind selects which identifier field an AccountRef matches against.
type LookupKind string

const (
	ByHandle     LookupKind = "handle"
	ByExternalID LookupKind = "external_id"
	ByPhone      LookupKind = "phone"
	// ByAny matches handle, external id, or phone - whichever hits first.
	// This is how POS staff identify a customer from a single input field.
	ByAny LookupKind = "any"
)

// AccountRef is a typed account lookup: one value, one declared kind.
type AccountRef struct {
	Kind  LookupKind
	Value string
}

func RefHandle(v string) AccountRef { return AccountRef{Kind: ByHandle, Value: v} }
func RefAny(v string) AccountRef    { return AccountRef{Kind: ByAny, Value: v} }

// =============================================================================
// ACTOR - Who caused a mutation
// =============================================================================

// Actor identifies who performed a balance mutation or redemption: a staff
// member (employee code) or the system itself.
type Actor struct {
	Code string
	Name string
}

// SystemActor is used when the engine itself debits points, e.g. during a
// coupon exchange initiated by the customer.
var SystemActor = Actor{Code: "SYSTEM", Name: "coupon exchange"}

// =============================================================================
// LEDGER ENTRY - Immutable audit record of one balance change
// =============================================================================

// Direction of a ledger entry. Nil means neutral (no balance effect, e.g.
// imported or informational rows).
type Direction bool

const (
	DirectionCredit Direction = true
	DirectionDebit  Direction = false
)

// LedgerEntry records one balance change. Once created it is never mutated
// or deleted; corrections are new entries.
type LedgerEntry struct {
	ID            string
	AccountHandle string
	ActorCode     string
	ActorName     string
	// Input is the raw identifier the actor typed to find the account;
	// AddedBy labels which identifier kind matched.
	Input     string
	AddedBy   string
	Points    Points
	Direction *Direction
	Note      string
	CreatedAt time.Time
}

// =============================================================================
// COUPON - Point-for-reward exchange
// =============================================================================

// Coupon represents one exchange of points for a reward.
//
// INVARIANTS:
//   - Code is unique among coupons of the same account
//   - Valid never returns to true after becoming false
//   - A coupon may only be deleted once expired
type Coupon struct {
	ID            string
	AccountHandle string
	RewardID      string
	RewardName    string
	ImageRef      string
	PointCost     Points
	Unit          int
	Code          string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Valid         bool
}

// ExpiredAt reports whether the coupon is past its expiry at the given time.
// Expiry is derived, not stored: a coupon can be expired while Valid is
// still true, and every read/redeem path must make this comparison itself.
func (c Coupon) ExpiredAt(now time.Time) bool {
	return c.ExpiresAt.Before(now)
}

// =============================================================================
// COUPON HISTORY - Append-only usage log
// =============================================================================

// CouponHistoryEntry records one coupon use for the staff-facing log.
// Written in the same transaction that flips the coupon invalid.
type CouponHistoryEntry struct {
	ID            string
	StaffCode     string
	AccountHandle string
	CouponID      string
	RewardName    string
	Unit          int
	Note          string
	CreatedAt     time.Time
}

// =============================================================================
// REDEMPTION RECORD - Immutable receipt
// =============================================================================

// RedemptionStatusUsed is the status label stamped on receipts.
const RedemptionStatusUsed = "used"

// RedemptionRecord is the receipt created when a coupon transitions to
// used. It snapshots the reward metadata so the receipt survives later
// changes to the coupon or catalog. Never mutated after creation.
type RedemptionRecord struct {
	ID            string
	CouponID      string
	CouponCode    string
	StaffCode     string
	StaffName     string
	AccountHandle string
	RewardName    string
	PointCost     Points
	Unit          int
	Status        string
	CreatedAt     time.Time
}

// =============================================================================
// EMPLOYEE - Staff actor record
// =============================================================================

// Employee is a staff member who can credit points and redeem coupons at
// point-of-sale. Code is the unique staff code (one letter + four digits).
type Employee struct {
	Code      string
	Name      string
	CreatedAt time.Time
}
