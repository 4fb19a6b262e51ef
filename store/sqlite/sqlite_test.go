package sqlite_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlegeek1524/dekcha-backend/loyalty"
	"github.com/tlegeek1524/dekcha-backend/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var createdAt = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func testAccount(handle string) loyalty.Account {
	return loyalty.Account{
		Handle:     handle,
		ExternalID: handle + "-ext",
		Phone:      "081-" + handle,
		Name:       "Customer " + handle,
		Balance:    loyalty.ZeroPoints(),
		Active:     true,
		CreatedAt:  createdAt,
	}
}

func testCoupon(id, handle, code string) loyalty.Coupon {
	return loyalty.Coupon{
		ID:            id,
		AccountHandle: handle,
		RewardID:      "rw-1",
		RewardName:    "Matcha Latte",
		PointCost:     loyalty.NewPoints(40),
		Unit:          1,
		Code:          code,
		IssuedAt:      createdAt,
		ExpiresAt:     createdAt.Add(7 * 24 * time.Hour),
		Valid:         true,
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestSQLite_AccountRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveAccount(ctx, testAccount("cust-1")))

	got, err := s.FindAccount(ctx, loyalty.RefHandle("cust-1"))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cust-1-ext", got.ExternalID)
	assert.True(t, got.Balance.IsZero())
	assert.Equal(t, createdAt, got.CreatedAt)
}

func TestSQLite_FindAccount_AllIdentifiers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAccount(ctx, testAccount("cust-1")))

	refs := []loyalty.AccountRef{
		loyalty.RefHandle("cust-1"),
		{Kind: loyalty.ByExternalID, Value: "cust-1-ext"},
		{Kind: loyalty.ByPhone, Value: "081-cust-1"},
		loyalty.RefAny("cust-1-ext"),
	}
	for _, ref := range refs {
		got, err := s.FindAccount(ctx, ref)
		require.NoError(t, err)
		require.NotNil(t, got, "ref %+v", ref)
		assert.Equal(t, "cust-1", got.Handle)
	}
}

func TestSQLite_FindAccount_Missing_ReturnsNilNil(t *testing.T) {
	s := newTestStore(t)

	got, err := s.FindAccount(context.Background(), loyalty.RefHandle("ghost"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_InactiveAccount_Hidden(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := testAccount("cust-1")
	a.Active = false
	require.NoError(t, s.SaveAccount(ctx, a))

	got, err := s.FindAccount(ctx, loyalty.RefHandle("cust-1"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_UpdateBalance_DecimalPrecision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAccount(ctx, testAccount("cust-1")))

	require.NoError(t, s.UpdateBalance(ctx, "cust-1", loyalty.NewPoints(4.4)))

	got, err := s.FindAccount(ctx, loyalty.RefHandle("cust-1"))
	require.NoError(t, err)
	assert.Equal(t, "4.4", got.Balance.String())

	err = s.UpdateBalance(ctx, "ghost", loyalty.NewPoints(1))
	assert.ErrorIs(t, err, loyalty.ErrAccountNotFound)
}

// =============================================================================
// COUPONS
// =============================================================================

func TestSQLite_CouponRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.InsertCoupon(ctx, testCoupon("cp-1", "cust-1", "ABC123")))

	got, err := s.CouponByCode(ctx, "ABC123")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "cp-1", got.ID)
	assert.True(t, got.Valid)
	assert.Equal(t, "40", got.PointCost.String())
	assert.Equal(t, createdAt.Add(7*24*time.Hour), got.ExpiresAt)
}

func TestSQLite_CouponCode_UniquePerAccount(t *testing.T) {
	// GIVEN: A coupon code taken on one account
	// WHEN: Inserting the same code for the same account, then for a
	//       different account
	// THEN: The first insert fails, the second succeeds

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertCoupon(ctx, testCoupon("cp-1", "cust-1", "ABC123")))

	err := s.InsertCoupon(ctx, testCoupon("cp-2", "cust-1", "ABC123"))
	assert.ErrorIs(t, err, loyalty.ErrGenerationExhausted)

	assert.NoError(t, s.InsertCoupon(ctx, testCoupon("cp-3", "cust-2", "ABC123")))

	exists, err := s.CouponCodeExists(ctx, "cust-1", "ABC123")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = s.CouponCodeExists(ctx, "cust-1", "XYZ789")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLite_InvalidateCoupon_OneWay(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertCoupon(ctx, testCoupon("cp-1", "cust-1", "ABC123")))

	require.NoError(t, s.InvalidateCoupon(ctx, "cp-1"))

	got, err := s.CouponByID(ctx, "cp-1")
	require.NoError(t, err)
	assert.False(t, got.Valid)

	err = s.InvalidateCoupon(ctx, "ghost")
	assert.ErrorIs(t, err, loyalty.ErrCouponNotFound)
}

func TestSQLite_DeleteCoupon(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.InsertCoupon(ctx, testCoupon("cp-1", "cust-1", "ABC123")))

	require.NoError(t, s.DeleteCoupon(ctx, "cp-1"))

	got, err := s.CouponByID(ctx, "cp-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = s.DeleteCoupon(ctx, "cp-1")
	assert.ErrorIs(t, err, loyalty.ErrCouponNotFound)
}

// =============================================================================
// LEDGER
// =============================================================================

func TestSQLite_LedgerEntries_OrderedOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	credit := loyalty.DirectionCredit
	for i, ts := range []time.Time{
		createdAt,
		createdAt.Add(time.Minute),
		createdAt.Add(2 * time.Minute),
	} {
		require.NoError(t, s.AppendLedgerEntry(ctx, loyalty.LedgerEntry{
			ID:            string(rune('a' + i)),
			AccountHandle: "cust-1",
			ActorCode:     "E1003",
			Points:        loyalty.NewPoints(10),
			Direction:     &credit,
			CreatedAt:     ts,
		}))
	}

	entries, err := s.LedgerEntries(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].ID)
	assert.Equal(t, "c", entries[2].ID)
	require.NotNil(t, entries[0].Direction)
	assert.Equal(t, loyalty.DirectionCredit, *entries[0].Direction)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: An account saved before the transaction
	// WHEN: A transaction updates the balance and then fails
	// THEN: The balance change is rolled back

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAccount(ctx, testAccount("cust-1")))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx loyalty.Store) error {
		if err := tx.UpdateBalance(ctx, "cust-1", loyalty.NewPoints(99)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := s.FindAccount(ctx, loyalty.RefHandle("cust-1"))
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero(), "rolled-back write must not persist")
}

func TestSQLite_Memory_SharedAcrossGoroutines(t *testing.T) {
	// GIVEN: An in-memory store with its schema migrated
	// WHEN: Several goroutines read and append concurrently
	// THEN: Every goroutine sees the same database; none lands on a
	//       fresh pool connection with no tables

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAccount(ctx, testAccount("cust-1")))

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			if _, err := s.FindAccount(ctx, loyalty.RefHandle("cust-1")); err != nil {
				errs <- err
				return
			}
			credit := loyalty.DirectionCredit
			errs <- s.AppendLedgerEntry(ctx, loyalty.LedgerEntry{
				ID:            fmt.Sprintf("e-%d", w),
				AccountHandle: "cust-1",
				ActorCode:     "E1003",
				Points:        loyalty.NewPoints(1),
				Direction:     &credit,
				CreatedAt:     createdAt,
			})
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	entries, err := s.LedgerEntries(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, entries, workers)
}

func TestSQLite_WithTx_CommitsOnSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveAccount(ctx, testAccount("cust-1")))

	err := s.WithTx(ctx, func(tx loyalty.Store) error {
		if err := tx.UpdateBalance(ctx, "cust-1", loyalty.NewPoints(50)); err != nil {
			return err
		}
		credit := loyalty.DirectionCredit
		return tx.AppendLedgerEntry(ctx, loyalty.LedgerEntry{
			ID:            "e-1",
			AccountHandle: "cust-1",
			ActorCode:     "E1003",
			Points:        loyalty.NewPoints(50),
			Direction:     &credit,
			CreatedAt:     createdAt,
		})
	})
	require.NoError(t, err)

	got, err := s.FindAccount(ctx, loyalty.RefHandle("cust-1"))
	require.NoError(t, err)
	assert.Equal(t, "50", got.Balance.String())

	entries, err := s.LedgerEntries(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// =============================================================================
// EMPLOYEES, HISTORY, RECEIPTS
// =============================================================================

func TestSQLite_EmployeeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveEmployee(ctx, loyalty.Employee{
		Code: "E1003", Name: "Cashier One", CreatedAt: createdAt,
	}))

	got, err := s.EmployeeByCode(ctx, "E1003")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Cashier One", got.Name)

	missing, err := s.EmployeeByCode(ctx, "X9999")
	require.NoError(t, err)
	assert.Nil(t, missing)

	exists, err := s.EmployeeCodeExists(ctx, "E1003")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLite_HistoryAndReceipts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendCouponHistory(ctx, loyalty.CouponHistoryEntry{
		ID: "h-1", StaffCode: "E1003", AccountHandle: "cust-1",
		CouponID: "cp-1", RewardName: "Matcha Latte", Unit: 1,
		CreatedAt: createdAt,
	}))

	history, err := s.CouponHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "E1003", history[0].StaffCode)

	require.NoError(t, s.InsertRedemptionRecord(ctx, loyalty.RedemptionRecord{
		ID: "r-1", CouponID: "cp-1", CouponCode: "ABC123",
		StaffCode: "E1003", StaffName: "Cashier One",
		AccountHandle: "cust-1", RewardName: "Matcha Latte",
		PointCost: loyalty.NewPoints(40), Unit: 1,
		Status: loyalty.RedemptionStatusUsed, CreatedAt: createdAt,
	}))

	records, err := s.RedemptionRecordsForAccount(ctx, "cust-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "40", records[0].PointCost.String())
	assert.Equal(t, "used", records[0].Status)
}
