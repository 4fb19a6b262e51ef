/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes exchanged with clients. Kept separate from domain types so
  the wire format can evolve without touching loyalty/ or coupon/.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

CONVENTIONS:
  - Point amounts travel as JSON numbers (float64); the domain keeps
    them as decimals internally.
  - Timestamps are RFC3339 strings.

SEE ALSO:
  - handlers.go: Where these are populated
*/
package api

import (
	"time"

	"github.com/tlegeek1524/dekcha-backend/loyalty"
)

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// RegisterAccountRequest creates a customer account.
type RegisterAccountRequest struct {
	Name       string `json:"name"`
	ExternalID string `json:"external_id,omitempty"`
	Phone      string `json:"phone,omitempty"`
}

// AccountDTO is the customer account representation.
type AccountDTO struct {
	Handle     string  `json:"handle"`
	ExternalID string  `json:"external_id,omitempty"`
	Phone      string  `json:"phone,omitempty"`
	Name       string  `json:"name"`
	Balance    float64 `json:"balance"`
	CreatedAt  string  `json:"created_at"`
}

func toAccountDTO(a *loyalty.Account) AccountDTO {
	return AccountDTO{
		Handle:     a.Handle,
		ExternalID: a.ExternalID,
		Phone:      a.Phone,
		Name:       a.Name,
		Balance:    a.Balance.Float64(),
		CreatedAt:  a.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// POINTS
// =============================================================================

// AddPointsRequest credits points from a purchase.
type AddPointsRequest struct {
	Customer string  `json:"customer"`
	Amount   float64 `json:"amount"`
	Note     string  `json:"note,omitempty"`
}

// LedgerEntryDTO is one row of an account's point log.
type LedgerEntryDTO struct {
	ID        string  `json:"id"`
	ActorCode string  `json:"actor_code"`
	ActorName string  `json:"actor_name,omitempty"`
	Points    float64 `json:"points"`
	Direction string  `json:"direction,omitempty"`
	Note      string  `json:"note,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func toLedgerEntryDTO(e loyalty.LedgerEntry) LedgerEntryDTO {
	dto := LedgerEntryDTO{
		ID:        e.ID,
		ActorCode: e.ActorCode,
		ActorName: e.ActorName,
		Points:    e.Points.Float64(),
		Note:      e.Note,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
	if e.Direction != nil {
		if *e.Direction == loyalty.DirectionCredit {
			dto.Direction = "credit"
		} else {
			dto.Direction = "debit"
		}
	}
	return dto
}

// =============================================================================
// COUPONS
// =============================================================================

// ExchangeRequest trades points for a coupon.
type ExchangeRequest struct {
	RewardID   string  `json:"reward_id"`
	RewardName string  `json:"reward_name"`
	PointCost  float64 `json:"point_cost"`
	AccountID  string  `json:"account_id,omitempty"`
	Handle     string  `json:"handle,omitempty"`
	ImageRef   string  `json:"image_ref,omitempty"`
}

// CouponDTO is one coupon as seen by clients.
type CouponDTO struct {
	ID         string  `json:"id"`
	RewardID   string  `json:"reward_id"`
	RewardName string  `json:"reward_name"`
	ImageRef   string  `json:"image_ref,omitempty"`
	PointCost  float64 `json:"point_cost"`
	Unit       int     `json:"unit"`
	Code       string  `json:"code"`
	IssuedAt   string  `json:"issued_at"`
	ExpiresAt  string  `json:"expires_at"`
	Expired    bool    `json:"expired"`
}

func toCouponDTO(c loyalty.Coupon, now time.Time) CouponDTO {
	return CouponDTO{
		ID:         c.ID,
		RewardID:   c.RewardID,
		RewardName: c.RewardName,
		ImageRef:   c.ImageRef,
		PointCost:  c.PointCost.Float64(),
		Unit:       c.Unit,
		Code:       c.Code,
		IssuedAt:   c.IssuedAt.Format(time.RFC3339),
		ExpiresAt:  c.ExpiresAt.Format(time.RFC3339),
		Expired:    c.ExpiredAt(now),
	}
}

// CouponListDTO partitions an account's coupons by expiry.
type CouponListDTO struct {
	Active  []CouponDTO `json:"active"`
	Expired []CouponDTO `json:"expired"`
}

func toCouponListDTO(active, expired []loyalty.Coupon, now time.Time) CouponListDTO {
	out := CouponListDTO{Active: []CouponDTO{}, Expired: []CouponDTO{}}
	for _, c := range active {
		out.Active = append(out.Active, toCouponDTO(c, now))
	}
	for _, c := range expired {
		out.Expired = append(out.Expired, toCouponDTO(c, now))
	}
	return out
}

// RedeemRequest marks a coupon used at the point of sale.
type RedeemRequest struct {
	Code string `json:"code"`
}

// RedemptionDTO is the receipt returned after a successful redemption.
type RedemptionDTO struct {
	ID         string  `json:"id"`
	CouponCode string  `json:"coupon_code"`
	RewardName string  `json:"reward_name"`
	PointCost  float64 `json:"point_cost"`
	Unit       int     `json:"unit"`
	StaffCode  string  `json:"staff_code"`
	StaffName  string  `json:"staff_name,omitempty"`
	Status     string  `json:"status"`
	CreatedAt  string  `json:"created_at"`
}

func toRedemptionDTO(r *loyalty.RedemptionRecord) RedemptionDTO {
	return RedemptionDTO{
		ID:         r.ID,
		CouponCode: r.CouponCode,
		RewardName: r.RewardName,
		PointCost:  r.PointCost.Float64(),
		Unit:       r.Unit,
		StaffCode:  r.StaffCode,
		StaffName:  r.StaffName,
		Status:     r.Status,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
	}
}

// HistoryEntryDTO is one row of the store-wide usage log.
type HistoryEntryDTO struct {
	ID         string `json:"id"`
	StaffCode  string `json:"staff_code"`
	Account    string `json:"account"`
	CouponID   string `json:"coupon_id"`
	RewardName string `json:"reward_name"`
	Unit       int    `json:"unit"`
	Note       string `json:"note,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func toHistoryEntryDTO(h loyalty.CouponHistoryEntry) HistoryEntryDTO {
	return HistoryEntryDTO{
		ID:         h.ID,
		StaffCode:  h.StaffCode,
		Account:    h.AccountHandle,
		CouponID:   h.CouponID,
		RewardName: h.RewardName,
		Unit:       h.Unit,
		Note:       h.Note,
		CreatedAt:  h.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// RegisterEmployeeRequest creates a staff member.
type RegisterEmployeeRequest struct {
	Name string `json:"name"`
}

// EmployeeDTO is the staff representation.
type EmployeeDTO struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

func toEmployeeDTO(e *loyalty.Employee) EmployeeDTO {
	return EmployeeDTO{
		Code:      e.Code,
		Name:      e.Name,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}
