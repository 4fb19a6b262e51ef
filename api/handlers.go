/*
handlers.go - HTTP API handlers for the loyalty and coupon service

PURPOSE:
  Exposes point crediting, coupon exchange, and POS redemption via REST.
  Handles HTTP request/response, JSON serialization, and delegates to
  the coupon service.

ENDPOINTS:
  Accounts:
    POST   /api/accounts                 Register customer account
    GET    /api/accounts/{input}         Look up by handle, login id, or phone
    GET    /api/accounts/{input}/log     Point ledger for the account

  Points:
    POST   /api/points                   Credit points from a purchase (staff)

  Coupons:
    POST   /api/coupons/exchange         Trade points for a coupon
    GET    /api/coupons/{handle}         List coupons, split active/expired
    DELETE /api/coupons/{id}             Remove an expired coupon
    POST   /api/coupons/redeem           Mark a coupon used (staff, at POS)
    GET    /api/coupons/history          Store-wide usage log
    GET    /api/coupons/{handle}/receipts Redemption receipts for an account

  Employees:
    POST   /api/employees                Register staff member

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (coupon.Service)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 402: Insufficient point balance
  - 404: Account, coupon, or employee not found
  - 409: Coupon already used or not deletable
  - 410: Coupon expired
  - 500: Internal errors

STAFF IDENTIFICATION:
  Endpoints acting on behalf of staff read the employee code from the
  X-Staff-Code header.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tlegeek1524/dekcha-backend/coupon"
	"github.com/tlegeek1524/dekcha-backend/loyalty"
)

// staffHeader carries the employee code on staff-initiated requests.
const staffHeader = "X-Staff-Code"

// defaultHistoryLimit caps the store-wide usage log response.
const defaultHistoryLimit = 200

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *coupon.Service

	now func() time.Time
}

// NewHandler creates a new handler backed by the given service.
func NewHandler(svc *coupon.Service) *Handler {
	return &Handler{
		Service: svc,
		now:     time.Now,
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// RegisterAccount creates a customer account.
// POST /api/accounts
func (h *Handler) RegisterAccount(w http.ResponseWriter, r *http.Request) {
	var req RegisterAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	acct, err := h.Service.RegisterAccount(r.Context(), req.Name, req.ExternalID, req.Phone)
	if err != nil {
		writeDomainError(w, "Failed to register account", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountDTO(acct))
}

// GetAccount looks up a customer by handle, login id, or phone number.
// GET /api/accounts/{input}
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	input := chi.URLParam(r, "input")

	acct, err := h.Service.Account(r.Context(), input)
	if err != nil {
		writeDomainError(w, "Failed to look up account", err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountDTO(acct))
}

// GetPointLog returns the account's ledger, oldest first.
// GET /api/accounts/{input}/log
func (h *Handler) GetPointLog(w http.ResponseWriter, r *http.Request) {
	input := chi.URLParam(r, "input")

	acct, err := h.Service.Account(r.Context(), input)
	if err != nil {
		writeDomainError(w, "Failed to look up account", err)
		return
	}

	entries, err := h.Service.PointLog(r.Context(), acct.Handle)
	if err != nil {
		writeDomainError(w, "Failed to load point log", err)
		return
	}

	dtos := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toLedgerEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// POINT HANDLERS
// =============================================================================

// AddPoints credits points from a purchase. Staff only.
// POST /api/points
func (h *Handler) AddPoints(w http.ResponseWriter, r *http.Request) {
	staffCode := r.Header.Get(staffHeader)
	if staffCode == "" {
		writeError(w, http.StatusUnauthorized, "Missing "+staffHeader+" header", nil)
		return
	}

	var req AddPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := h.Service.AddPoints(r.Context(), coupon.AddPointsInput{
		CustomerInput: req.Customer,
		RawUnits:      req.Amount,
		StaffCode:     staffCode,
		Note:          req.Note,
	})
	if err != nil {
		writeDomainError(w, "Failed to add points", err)
		return
	}

	writeJSON(w, http.StatusCreated, toLedgerEntryDTO(*entry))
}

// =============================================================================
// COUPON HANDLERS
// =============================================================================

// ExchangeCoupon trades points for a coupon.
// POST /api/coupons/exchange
func (h *Handler) ExchangeCoupon(w http.ResponseWriter, r *http.Request) {
	var req ExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	c, err := h.Service.Exchange(r.Context(), coupon.ExchangeInput{
		RewardID:      req.RewardID,
		RewardName:    req.RewardName,
		PointCost:     req.PointCost,
		AccountID:     req.AccountID,
		AccountHandle: req.Handle,
		ImageRef:      req.ImageRef,
	})
	if err != nil {
		writeDomainError(w, "Failed to exchange coupon", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCouponDTO(*c, h.now()))
}

// ListCoupons returns an account's coupons partitioned by expiry.
// GET /api/coupons/{handle}
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	active, expired, err := h.Service.Coupons(r.Context(), handle)
	if err != nil {
		writeDomainError(w, "Failed to list coupons", err)
		return
	}

	writeJSON(w, http.StatusOK, toCouponListDTO(active, expired, h.now()))
}

// RedeemCoupon marks a coupon used at the point of sale. Staff only.
// POST /api/coupons/redeem
func (h *Handler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	staffCode := r.Header.Get(staffHeader)
	if staffCode == "" {
		writeError(w, http.StatusUnauthorized, "Missing "+staffHeader+" header", nil)
		return
	}

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Service.RedeemAtPOS(r.Context(), req.Code, staffCode)
	if err != nil {
		writeDomainError(w, "Failed to redeem coupon", err)
		return
	}

	writeJSON(w, http.StatusOK, toRedemptionDTO(rec))
}

// DeleteCoupon removes an expired coupon.
// DELETE /api/coupons/{id}
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Service.DeleteCoupon(r.Context(), id); err != nil {
		writeDomainError(w, "Failed to delete coupon", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetUsageHistory returns the store-wide coupon usage log, newest first.
// GET /api/coupons/history
func (h *Handler) GetUsageHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.Service.UsageHistory(r.Context(), defaultHistoryLimit)
	if err != nil {
		writeDomainError(w, "Failed to load usage history", err)
		return
	}

	dtos := make([]HistoryEntryDTO, len(history))
	for i, entry := range history {
		dtos[i] = toHistoryEntryDTO(entry)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReceipts returns redemption receipts for an account, newest first.
// GET /api/coupons/{handle}/receipts
func (h *Handler) GetReceipts(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")

	records, err := h.Service.Receipts(r.Context(), handle)
	if err != nil {
		writeDomainError(w, "Failed to load receipts", err)
		return
	}

	dtos := make([]RedemptionDTO, len(records))
	for i := range records {
		dtos[i] = toRedemptionDTO(&records[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// RegisterEmployee creates a staff member with a generated code.
// POST /api/employees
func (h *Handler) RegisterEmployee(w http.ResponseWriter, r *http.Request) {
	var req RegisterEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	emp, err := h.Service.RegisterEmployee(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, "Failed to register employee", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain error kinds onto HTTP statuses, keeping
// the stable user-facing message in the error field.
func writeDomainError(w http.ResponseWriter, fallback string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, loyalty.ErrInsufficientBalance):
		status = http.StatusPaymentRequired
	case errors.Is(err, loyalty.ErrCouponExpired):
		status = http.StatusGone
	case errors.Is(err, loyalty.ErrCouponUsed),
		errors.Is(err, loyalty.ErrCouponNotExpired),
		errors.Is(err, loyalty.ErrGenerationExhausted):
		status = http.StatusConflict
	case loyalty.IsNotFound(err):
		status = http.StatusNotFound
	case loyalty.IsClientError(err):
		status = http.StatusBadRequest
	case errors.Is(err, loyalty.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		writeError(w, status, fallback, err)
		return
	}
	writeJSON(w, status, ErrorResponse{Error: coupon.UserMessage(err)})
}
