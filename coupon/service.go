/*
service.go - Redemption orchestrator

PURPOSE:
  The use-case layer the API shell talks to. Sequences the code
  generator, balance ledger, and coupon lifecycle manager for each
  customer action, validates inputs, and translates engine errors into
  stable caller-facing messages.

USE CASES:
  Exchange       points -> coupon, on behalf of the customer
  RedeemAtPOS    coupon code + staff code -> receipt
  AddPoints      staff credits points from raw purchase units
  Register*      mint account handles / staff codes

CONVERSION:
  Staff enter raw purchase units (e.g. currency spent); the service
  divides by the program divisor before crediting, keeping the
  fractional part. The default divisor is 25 raw units per point.

ERROR TRANSLATION:
  Engine errors pass through unchanged so callers can errors.Is() them;
  UserMessage maps each kind to the human-facing wording. Both use cases
  are single round-trips - all effects live in one store transaction, so
  no saga or compensation is needed.
*/
package coupon

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tlegeek1524/dekcha-backend/loyalty"
)

// DefaultPointsDivisor maps raw input units to points: raw / divisor.
const DefaultPointsDivisor = 25

// HandleLength is the length of generated account handles.
const HandleLength = 8

// =============================================================================
// SERVICE
// =============================================================================

// Service orchestrates the ledger and coupon manager for the API shell.
type Service struct {
	store   loyalty.TxStore
	ledger  *loyalty.Ledger
	coupons *Manager
	divisor int64
	log     *zap.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPointsDivisor overrides the raw-units-per-point divisor.
func WithPointsDivisor(d int64) ServiceOption {
	return func(s *Service) { s.divisor = d }
}

// WithLogger sets the structured logger.
func WithLogger(log *zap.Logger) ServiceOption {
	return func(s *Service) { s.log = log }
}

func NewService(store loyalty.TxStore, mgr *Manager, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		ledger:  loyalty.NewLedger(store),
		coupons: mgr,
		divisor: DefaultPointsDivisor,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// EXCHANGE - points -> coupon
// =============================================================================

// ExchangeInput is the payload for a point-for-coupon exchange. The
// account identity arrives pre-authenticated from the API shell.
type ExchangeInput struct {
	RewardID      string
	RewardName    string
	PointCost     float64
	AccountID     string // external login identifier
	AccountHandle string // public member handle
	ImageRef      string
}

// Exchange validates the payload and issues a coupon against the
// customer's balance. On insufficient balance the returned error
// unwraps to loyalty.ErrInsufficientBalance.
func (s *Service) Exchange(ctx context.Context, in ExchangeInput) (*loyalty.Coupon, error) {
	if in.RewardID == "" || in.RewardName == "" || (in.AccountID == "" && in.AccountHandle == "") {
		return nil, loyalty.ErrMissingField
	}
	if in.PointCost <= 0 {
		return nil, loyalty.ErrInvalidAmount
	}

	ref := loyalty.AccountRef{Kind: loyalty.ByExternalID, Value: in.AccountID}
	if in.AccountID == "" {
		ref = loyalty.RefHandle(in.AccountHandle)
	}

	c, err := s.coupons.Issue(ctx, IssueInput{
		Account:    ref,
		RewardID:   in.RewardID,
		RewardName: in.RewardName,
		ImageRef:   in.ImageRef,
		PointCost:  loyalty.NewPoints(in.PointCost),
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("coupon issued",
		zap.String("account", c.AccountHandle),
		zap.String("reward", c.RewardName),
		zap.String("code", c.Code),
		zap.String("cost", c.PointCost.String()),
	)
	return c, nil
}

// =============================================================================
// REDEEM AT POS - coupon code + staff -> receipt
// =============================================================================

// RedeemAtPOS resolves the staff actor and marks the coupon used.
func (s *Service) RedeemAtPOS(ctx context.Context, code, staffCode string) (*loyalty.RedemptionRecord, error) {
	code = strings.TrimSpace(code)
	if code == "" || staffCode == "" {
		return nil, loyalty.ErrMissingField
	}

	emp, err := s.store.EmployeeByCode(ctx, staffCode)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, loyalty.ErrEmployeeNotFound
	}

	record, err := s.coupons.RedeemByCode(ctx, code, loyalty.Actor{Code: emp.Code, Name: emp.Name})
	if err != nil {
		return nil, err
	}

	s.log.Info("coupon redeemed",
		zap.String("code", record.CouponCode),
		zap.String("staff", record.StaffCode),
		zap.String("account", record.AccountHandle),
	)
	return record, nil
}

// =============================================================================
// ADD POINTS - staff credit with raw-unit conversion
// =============================================================================

// AddPointsInput is the payload for a staff point credit. CustomerInput
// is whatever identifier the staff member typed: handle, external id,
// or phone number.
type AddPointsInput struct {
	CustomerInput string
	RawUnits      float64
	StaffCode     string
	Note          string
}

// AddPoints converts raw units to points and credits the customer.
func (s *Service) AddPoints(ctx context.Context, in AddPointsInput) (*loyalty.LedgerEntry, error) {
	if in.CustomerInput == "" || in.StaffCode == "" {
		return nil, loyalty.ErrMissingField
	}
	if in.RawUnits <= 0 {
		return nil, loyalty.ErrInvalidAmount
	}

	emp, err := s.store.EmployeeByCode(ctx, in.StaffCode)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, loyalty.ErrEmployeeNotFound
	}

	note := in.Note
	if note == "" {
		note = "points added by staff"
	}

	amount := loyalty.ConvertRawUnits(in.RawUnits, s.divisor)
	entry, err := s.ledger.Credit(ctx, loyalty.RefAny(in.CustomerInput), amount,
		loyalty.Actor{Code: emp.Code, Name: emp.Name}, note)
	if err != nil {
		return nil, err
	}

	s.log.Info("points credited",
		zap.String("account", entry.AccountHandle),
		zap.String("staff", emp.Code),
		zap.String("points", entry.Points.String()),
	)
	return entry, nil
}

// =============================================================================
// READ PATHS
// =============================================================================

// Account resolves a customer by any identifier.
func (s *Service) Account(ctx context.Context, input string) (*loyalty.Account, error) {
	acct, err := s.store.FindAccount(ctx, loyalty.RefAny(input))
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, loyalty.ErrAccountNotFound
	}
	return acct, nil
}

// Coupons returns the account's coupons partitioned into valid and
// expired buckets.
func (s *Service) Coupons(ctx context.Context, handle string) (valid, expired []loyalty.Coupon, err error) {
	return s.coupons.ListForAccount(ctx, handle)
}

// DeleteCoupon removes an expired coupon.
func (s *Service) DeleteCoupon(ctx context.Context, couponID string) error {
	return s.coupons.Delete(ctx, couponID)
}

// UsageHistory returns the most recent coupon usage entries.
func (s *Service) UsageHistory(ctx context.Context, limit int) ([]loyalty.CouponHistoryEntry, error) {
	return s.store.CouponHistory(ctx, limit)
}

// Receipts returns the account's redemption receipts.
func (s *Service) Receipts(ctx context.Context, handle string) ([]loyalty.RedemptionRecord, error) {
	return s.store.RedemptionRecordsForAccount(ctx, handle)
}

// PointLog returns the account's ledger entries.
func (s *Service) PointLog(ctx context.Context, handle string) ([]loyalty.LedgerEntry, error) {
	return s.ledger.Entries(ctx, handle)
}

// =============================================================================
// REGISTRATION - handle and staff code minting
// =============================================================================

// RegisterAccount creates a customer account with a collision-free
// generated handle.
func (s *Service) RegisterAccount(ctx context.Context, name, externalID, phone string) (*loyalty.Account, error) {
	if name == "" || externalID == "" {
		return nil, loyalty.ErrMissingField
	}

	// Probe and save inside one transaction: two racing registrations
	// could otherwise both clear the uniqueness probe and the second
	// SaveAccount would silently overwrite the first customer.
	var acct loyalty.Account
	err := s.store.WithTx(ctx, func(tx loyalty.Store) error {
		gen := loyalty.NewGenerator(HandleLength)
		handle, err := gen.Generate(ctx, loyalty.HandleScope(tx))
		if err != nil {
			return err
		}

		acct = loyalty.Account{
			Handle:     handle,
			ExternalID: externalID,
			Phone:      phone,
			Name:       name,
			Balance:    loyalty.ZeroPoints(),
			Active:     true,
			CreatedAt:  time.Now().UTC(),
		}
		return tx.SaveAccount(ctx, acct)
	})
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// RegisterEmployee creates a staff record with a generated staff code
// (one letter + four digits, unique globally).
func (s *Service) RegisterEmployee(ctx context.Context, name string) (*loyalty.Employee, error) {
	if name == "" {
		return nil, loyalty.ErrMissingField
	}

	// Same transactional probe-and-save as RegisterAccount.
	var emp loyalty.Employee
	err := s.store.WithTx(ctx, func(tx loyalty.Store) error {
		gen := loyalty.NewGenerator(5)
		code, err := gen.GenerateFrom(ctx, loyalty.StaffCodeScope(tx), loyalty.DrawStaffCode)
		if err != nil {
			return err
		}

		emp = loyalty.Employee{
			Code:      code,
			Name:      name,
			CreatedAt: time.Now().UTC(),
		}
		return tx.SaveEmployee(ctx, emp)
	})
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// =============================================================================
// USER-FACING MESSAGES
// =============================================================================

// UserMessage maps an engine error to the stable wording shown to
// customers and POS staff.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, loyalty.ErrInsufficientBalance):
		return "not enough points"
	case errors.Is(err, loyalty.ErrCouponUsed):
		return "coupon already used"
	case errors.Is(err, loyalty.ErrCouponExpired):
		return "coupon expired"
	case errors.Is(err, loyalty.ErrCouponNotFound):
		return "coupon not found"
	case errors.Is(err, loyalty.ErrCouponNotExpired):
		return "coupon is not expired and cannot be deleted"
	case errors.Is(err, loyalty.ErrAccountNotFound):
		return "customer not found"
	case errors.Is(err, loyalty.ErrEmployeeNotFound):
		return "staff not found"
	case errors.Is(err, loyalty.ErrInvalidAmount):
		return "point amount must be greater than zero"
	case errors.Is(err, loyalty.ErrMissingField):
		return "incomplete request"
	case errors.Is(err, loyalty.ErrGenerationExhausted):
		return "could not allocate a code, try again"
	default:
		return "something went wrong"
	}
}
