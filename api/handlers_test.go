/*
handlers_test.go - HTTP-level tests for the API

Drives the full router with httptest against the in-memory store, so
route wiring, JSON shapes, and status-code mapping are all covered.
*/
package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlegeek1524/dekcha-backend/api"
	"github.com/tlegeek1524/dekcha-backend/coupon"
	"github.com/tlegeek1524/dekcha-backend/loyalty"
	"github.com/tlegeek1524/dekcha-backend/loyalty/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testAPI struct {
	router http.Handler
	store  *store.Memory
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	mem := store.NewMemory()
	mgr := coupon.NewManager(mem)
	svc := coupon.NewService(mem, mgr)
	return &testAPI{
		router: api.NewRouter(api.NewHandler(svc)),
		store:  mem,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

func (a *testAPI) seedCustomer(t *testing.T, handle string, balance float64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.store.SaveAccount(ctx, loyalty.Account{
		Handle:     handle,
		ExternalID: handle + "-ext",
		Phone:      "081" + handle,
		Name:       "Customer " + handle,
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}))
	if balance != 0 {
		require.NoError(t, a.store.UpdateBalance(ctx, handle, loyalty.NewPoints(balance)))
	}
}

func (a *testAPI) seedStaff(t *testing.T, code, name string) {
	t.Helper()
	require.NoError(t, a.store.SaveEmployee(context.Background(), loyalty.Employee{
		Code:      code,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}))
}

var staffHeaders = map[string]string{"X-Staff-Code": "E1003"}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestAPI_RegisterAndFetchAccount(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/accounts", map[string]any{
		"name":        "Somchai",
		"external_id": "line-uid-1",
		"phone":       "0812345678",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decodeBody[map[string]any](t, rec)
	handle, _ := created["handle"].(string)
	require.Len(t, handle, coupon.HandleLength)

	// Fetch by each identifier.
	for _, input := range []string{handle, "line-uid-1", "0812345678"} {
		rec = a.do(t, http.MethodGet, "/api/accounts/"+input, nil, nil)
		require.Equal(t, http.StatusOK, rec.Code, "input %q", input)
		got := decodeBody[map[string]any](t, rec)
		assert.Equal(t, handle, got["handle"])
	}
}

func TestAPI_GetAccount_NotFound(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/accounts/ghost", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "customer not found", body["error"])
}

// =============================================================================
// POINTS
// =============================================================================

func TestAPI_AddPoints(t *testing.T) {
	a := newTestAPI(t)
	a.seedCustomer(t, "cust-1", 0)
	a.seedStaff(t, "E1003", "Cashier One")

	rec := a.do(t, http.MethodPost, "/api/points", map[string]any{
		"customer": "cust-1",
		"amount":   2500,
	}, staffHeaders)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	entry := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(100), entry["points"])
	assert.Equal(t, "credit", entry["direction"])

	rec = a.do(t, http.MethodGet, "/api/accounts/cust-1", nil, nil)
	acct := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(100), acct["balance"])
}

func TestAPI_AddPoints_MissingStaffHeader(t *testing.T) {
	a := newTestAPI(t)
	a.seedCustomer(t, "cust-1", 0)

	rec := a.do(t, http.MethodPost, "/api/points", map[string]any{
		"customer": "cust-1",
		"amount":   100,
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_AddPoints_UnknownStaff(t *testing.T) {
	a := newTestAPI(t)
	a.seedCustomer(t, "cust-1", 0)

	rec := a.do(t, http.MethodPost, "/api/points", map[string]any{
		"customer": "cust-1",
		"amount":   100,
	}, map[string]string{"X-Staff-Code": "X9999"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_PointLog(t *testing.T) {
	a := newTestAPI(t)
	a.seedCustomer(t, "cust-1", 0)
	a.seedStaff(t, "E1003", "Cashier One")

	for i := 0; i < 3; i++ {
		rec := a.do(t, http.MethodPost, "/api/points", map[string]any{
			"customer": "cust-1",
			"amount":   25,
		}, staffHeaders)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := a.do(t, http.MethodGet, "/api/accounts/cust-1/log", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	entries := decodeBody[[]map[string]any](t, rec)
	assert.Len(t, entries, 3)
}

// =============================================================================
// COUPONS
// =============================================================================

func exchangeBody(handle string, cost float64) map[string]any {
	return map[string]any{
		"reward_id":   "rw-1",
		"reward_name": "Matcha Latte",
		"point_cost":  cost,
		"handle":      handle,
	}
}

func TestAPI_ExchangeAndRedeem(t *testing.T) {
	a := newTestAPI(t)
	a.seedCustomer(t, "cust-1", 100)
	a.seedStaff(t, "E1003", "Cashier One")

	// Exchange.
	rec := a.do(t, http.MethodPost, "/api/coupons/exchange", exchangeBody("cust-1", 40), nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decodeBody[map[string]any](t, rec)
	code, _ := c["code"].(string)
	require.Len(t, code, 6)
	assert.Equal(t, false, c["expired"])

	// Balance debited.
	rec = a.do(t, http.MethodGet, "/api/accounts/cust-1", nil, nil)
	acct := decodeBody[map[string]any](t, rec)
	assert.Equal(t, float64(60), acct["balance"])

	// Redeem at the POS.
	rec = a.do(t, http.MethodPost, "/api/coupons/redeem", map[string]any{"code": code}, staffHeaders)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "used", receipt["status"])
	assert.Equal(t, "E1003", receipt["staff_code"])

	// Second redeem conflicts.
	rec = a.do(t, http.MethodPost, "/api/coupons/redeem", map[string]any{"code": code}, staffHeaders)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "coupon already used", body["error"])
}

func TestAPI_Exchange_InsufficientBalance(t *testing.T) {
	a := newTestAPI(t)
	a.seedCustomer(t, "cust-1", 30)

	rec := a.do(t, http.MethodPost, "/api/coupons/exchange", exchangeBody("cust-1", 40), nil)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "not enough points", body["error"])
}

func TestAPI_ListCoupons_Partitioned(t *testing.T) {
	a := newTestAPI(t)
	a.seedCustomer(t, "cust-1", 100)

	rec := a.do(t, http.MethodPost, "/api/coupons/exchange", exchangeBody("cust-1", 40), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/coupons/cust-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decodeBody[map[string][]map[string]any](t, rec)
	assert.Len(t, list["active"], 1)
	assert.Empty(t, list["expired"])
}

func TestAPI_DeleteCoupon_NotExpired_Conflicts(t *testing.T) {
	a := newTestAPI(t)
	a.seedCustomer(t, "cust-1", 100)

	rec := a.do(t, http.MethodPost, "/api/coupons/exchange", exchangeBody("cust-1", 40), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	c := decodeBody[map[string]any](t, rec)
	id, _ := c["id"].(string)

	rec = a.do(t, http.MethodDelete, "/api/coupons/"+id, nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_UsageHistory(t *testing.T) {
	a := newTestAPI(t)
	a.seedCustomer(t, "cust-1", 100)
	a.seedStaff(t, "E1003", "Cashier One")

	rec := a.do(t, http.MethodPost, "/api/coupons/exchange", exchangeBody("cust-1", 40), nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	c := decodeBody[map[string]any](t, rec)

	rec = a.do(t, http.MethodPost, "/api/coupons/redeem",
		map[string]any{"code": c["code"]}, staffHeaders)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/coupons/history", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decodeBody[[]map[string]any](t, rec)
	require.Len(t, history, 1)
	assert.Equal(t, "E1003", history[0]["staff_code"])

	rec = a.do(t, http.MethodGet, "/api/coupons/cust-1/receipts", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	receipts := decodeBody[[]map[string]any](t, rec)
	assert.Len(t, receipts, 1)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestAPI_RegisterEmployee(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/employees", map[string]any{
		"name": "New Hire",
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	emp := decodeBody[map[string]any](t, rec)
	code, _ := emp["code"].(string)
	assert.Len(t, code, 5)
}

func TestAPI_RegisterEmployee_MissingName(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/employees", map[string]any{}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// MISC
// =============================================================================

func TestAPI_Healthz(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestAPI_InvalidJSON_BadRequest(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/accounts",
		bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
