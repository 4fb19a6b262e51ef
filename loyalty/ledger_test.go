package loyalty_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tlegeek1524/dekcha-backend/loyalty"
	"github.com/tlegeek1524/dekcha-backend/loyalty/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*loyalty.Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	return loyalty.NewLedger(mem), mem
}

func seedAccount(t *testing.T, s loyalty.Store, handle string, balance float64) {
	t.Helper()
	err := s.SaveAccount(context.Background(), loyalty.Account{
		Handle:    handle,
		Name:      "Test Customer",
		Active:    true,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	if balance != 0 {
		err = s.UpdateBalance(context.Background(), handle, loyalty.NewPoints(balance))
		require.NoError(t, err)
	}
}

var staff = loyalty.Actor{Code: "K4072", Name: "Test Staff"}

// =============================================================================
// CREDIT / DEBIT
// =============================================================================

func TestLedger_Credit_IncreasesBalanceAndAppendsEntry(t *testing.T) {
	// GIVEN: An account with zero balance
	// WHEN: Crediting 4 points
	// THEN: Balance is 4 and exactly one ledger entry exists

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, mem, "cust-1", 0)

	entry, err := ledger.Credit(ctx, loyalty.RefHandle("cust-1"),
		loyalty.NewPoints(4), staff, "purchase")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "cust-1", entry.AccountHandle)
	require.NotNil(t, entry.Direction)
	assert.Equal(t, loyalty.DirectionCredit, *entry.Direction)

	balance, err := ledger.Balance(ctx, loyalty.RefHandle("cust-1"))
	require.NoError(t, err)
	assert.True(t, balance.Equal(loyalty.NewPoints(4)))

	entries, err := ledger.Entries(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedger_Debit_DecreasesBalance(t *testing.T) {
	// GIVEN: An account holding 100 points
	// WHEN: Debiting 40
	// THEN: Balance is 60 with a debit entry recorded

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, mem, "cust-1", 100)

	entry, err := ledger.Debit(ctx, loyalty.RefHandle("cust-1"),
		loyalty.NewPoints(40), staff, "exchange")
	require.NoError(t, err)
	require.NotNil(t, entry.Direction)
	assert.Equal(t, loyalty.DirectionDebit, *entry.Direction)

	balance, err := ledger.Balance(ctx, loyalty.RefHandle("cust-1"))
	require.NoError(t, err)
	assert.True(t, balance.Equal(loyalty.NewPoints(60)), "got %s", balance)
}

func TestLedger_FractionalAmounts_NoDrift(t *testing.T) {
	// GIVEN: A fresh account
	// WHEN: Crediting 4.4 ten times
	// THEN: Balance is exactly 44

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, mem, "cust-1", 0)

	for i := 0; i < 10; i++ {
		_, err := ledger.Credit(ctx, loyalty.RefHandle("cust-1"),
			loyalty.NewPoints(4.4), staff, "purchase")
		require.NoError(t, err)
	}

	balance, err := ledger.Balance(ctx, loyalty.RefHandle("cust-1"))
	require.NoError(t, err)
	assert.True(t, balance.Equal(loyalty.NewPoints(44)), "got %s", balance)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestLedger_NonPositiveAmounts_Rejected(t *testing.T) {
	// GIVEN: An account with balance
	// WHEN: Crediting or debiting zero or negative amounts
	// THEN: InvalidAmount, balance untouched, no entry written

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, mem, "cust-1", 50)

	cases := []loyalty.Points{
		loyalty.ZeroPoints(),
		loyalty.NewPoints(-5),
	}
	for _, amount := range cases {
		_, err := ledger.Credit(ctx, loyalty.RefHandle("cust-1"), amount, staff, "")
		assert.ErrorIs(t, err, loyalty.ErrInvalidAmount)

		_, err = ledger.Debit(ctx, loyalty.RefHandle("cust-1"), amount, staff, "")
		assert.ErrorIs(t, err, loyalty.ErrInvalidAmount)
	}

	balance, err := ledger.Balance(ctx, loyalty.RefHandle("cust-1"))
	require.NoError(t, err)
	assert.True(t, balance.Equal(loyalty.NewPoints(50)))

	entries, err := ledger.Entries(ctx, "cust-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedger_InsufficientBalance_LeavesStateUntouched(t *testing.T) {
	// GIVEN: An account holding 30 points
	// WHEN: Debiting 31
	// THEN: InsufficientBalance with available/requested attached,
	//       balance still 30, no ledger entry

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, mem, "cust-1", 30)

	_, err := ledger.Debit(ctx, loyalty.RefHandle("cust-1"),
		loyalty.NewPoints(31), staff, "exchange")

	assert.ErrorIs(t, err, loyalty.ErrInsufficientBalance)
	var insufficient *loyalty.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, insufficient.Available.Equal(loyalty.NewPoints(30)))
	assert.True(t, insufficient.Requested.Equal(loyalty.NewPoints(31)))

	balance, err := ledger.Balance(ctx, loyalty.RefHandle("cust-1"))
	require.NoError(t, err)
	assert.True(t, balance.Equal(loyalty.NewPoints(30)))

	entries, err := ledger.Entries(ctx, "cust-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLedger_ExactBalanceDebit_SucceedsToZero(t *testing.T) {
	// GIVEN: An account holding exactly 40 points
	// WHEN: Debiting 40
	// THEN: Succeeds, balance is zero

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, mem, "cust-1", 40)

	_, err := ledger.Debit(ctx, loyalty.RefHandle("cust-1"),
		loyalty.NewPoints(40), staff, "exchange")
	require.NoError(t, err)

	balance, err := ledger.Balance(ctx, loyalty.RefHandle("cust-1"))
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestLedger_UnknownAccount_NotFound(t *testing.T) {
	// GIVEN: An empty store
	// WHEN: Crediting a nonexistent account
	// THEN: AccountNotFound

	ledger, _ := newTestLedger(t)

	_, err := ledger.Credit(context.Background(), loyalty.RefHandle("ghost"),
		loyalty.NewPoints(1), staff, "")
	assert.ErrorIs(t, err, loyalty.ErrAccountNotFound)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestLedger_CompetingDebits_ExactlyOneWins(t *testing.T) {
	// GIVEN: An account holding 100 points
	// WHEN: Two debits of 60 race
	// THEN: Exactly one succeeds and the final balance is 40

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, mem, "cust-1", 100)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Debit(ctx, loyalty.RefHandle("cust-1"),
				loyalty.NewPoints(60), staff, "exchange")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var failures int
	for err := range results {
		if err != nil {
			failures++
			assert.ErrorIs(t, err, loyalty.ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 1, failures, "exactly one debit should lose")

	balance, err := ledger.Balance(ctx, loyalty.RefHandle("cust-1"))
	require.NoError(t, err)
	assert.True(t, balance.Equal(loyalty.NewPoints(40)), "got %s", balance)

	entries, err := ledger.Entries(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "only the winning debit writes an entry")
}

func TestLedger_RandomInterleaving_BalanceNeverNegative(t *testing.T) {
	// GIVEN: An account holding 50 points
	// WHEN: 8 workers fire 25 random credits and debits each
	// THEN: The balance never goes negative, and the final balance equals
	//       the seed plus the sum of the mutations that succeeded, with
	//       one ledger entry per successful mutation

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	seedAccount(t, mem, "cust-1", 50)

	const workers = 8
	const opsPerWorker = 25

	var mu sync.Mutex
	applied := loyalty.NewPoints(50)
	var succeeded int

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < opsPerWorker; i++ {
				amount := loyalty.NewPointsFromInt(rand.Intn(40) + 1)

				var err error
				debit := rand.Intn(2) == 0
				if debit {
					_, err = ledger.Debit(ctx, loyalty.RefHandle("cust-1"), amount, staff, "")
				} else {
					_, err = ledger.Credit(ctx, loyalty.RefHandle("cust-1"), amount, staff, "")
				}

				switch {
				case err == nil:
					mu.Lock()
					if debit {
						applied = applied.Sub(amount)
					} else {
						applied = applied.Add(amount)
					}
					succeeded++
					mu.Unlock()
				case debit:
					require.ErrorIs(t, err, loyalty.ErrInsufficientBalance)
				default:
					require.NoError(t, err, "credits must not fail")
				}

				balance, err := ledger.Balance(ctx, loyalty.RefHandle("cust-1"))
				require.NoError(t, err)
				require.False(t, balance.IsNegative(), "balance went negative: %s", balance)
			}
		}()
	}
	wg.Wait()

	balance, err := ledger.Balance(ctx, loyalty.RefHandle("cust-1"))
	require.NoError(t, err)
	assert.False(t, balance.IsNegative())
	assert.True(t, balance.Equal(applied), "balance %s, applied mutations sum to %s", balance, applied)

	entries, err := ledger.Entries(ctx, "cust-1")
	require.NoError(t, err)
	assert.Len(t, entries, succeeded, "one entry per successful mutation")
}

// =============================================================================
// LOOKUP RESOLUTION
// =============================================================================

func TestLedger_LookupByAnyIdentifier(t *testing.T) {
	// GIVEN: An account with handle, login id, and phone
	// WHEN: Crediting via each identifier
	// THEN: All three resolve to the same account

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	err := mem.SaveAccount(ctx, loyalty.Account{
		Handle:     "cust-1",
		ExternalID: "line-uid-9",
		Phone:      "0812345678",
		Name:       "Test Customer",
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)

	for _, input := range []string{"cust-1", "line-uid-9", "0812345678"} {
		_, err := ledger.Credit(ctx, loyalty.RefAny(input),
			loyalty.NewPoints(1), staff, "purchase")
		require.NoError(t, err, "input %q", input)
	}

	balance, err := ledger.Balance(ctx, loyalty.RefHandle("cust-1"))
	require.NoError(t, err)
	assert.True(t, balance.Equal(loyalty.NewPoints(3)))
}

func TestLedger_InactiveAccount_NotFound(t *testing.T) {
	// GIVEN: A deactivated account
	// WHEN: Looking it up
	// THEN: AccountNotFound

	ledger, mem := newTestLedger(t)
	ctx := context.Background()
	err := mem.SaveAccount(ctx, loyalty.Account{
		Handle:    "cust-1",
		Name:      "Gone Customer",
		Active:    false,
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	_, err = ledger.Balance(ctx, loyalty.RefHandle("cust-1"))
	assert.ErrorIs(t, err, loyalty.ErrAccountNotFound)
}
