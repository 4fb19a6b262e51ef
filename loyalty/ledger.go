/*
ledger.go - Balance ledger: atomic credit and debit

PURPOSE:
  The Ledger owns the customer point balance and every mutation to it.
  Each mutation runs as one store transaction: read the current balance,
  compute the new balance, write it, and append exactly one LedgerEntry.
  A balance change without its entry, or an entry without its change,
  cannot be observed.

CRITICAL INVARIANTS:
  1. Balance never goes negative: debits that would over-spend fail with
     ErrInsufficientBalance and leave the balance unchanged.
  2. Amounts are strictly positive: zero or negative amounts fail with
     ErrInvalidAmount before any read happens.
  3. One mutation, one entry, one transaction.

CONCURRENCY:
  Concurrent debits against the same account serialize on the store's
  transaction: FindAccountForUpdate locks the account row (or the store's
  writer), so a check-then-write race between two debits is impossible.
  Exactly one of two competing over-draining debits succeeds.

COMPOSITION:
  CreditTx/DebitTx operate on an already-open transaction-scoped Store.
  The coupon manager uses DebitTx inside its own WithTx so the debit and
  the coupon insert commit or abort together.

SEE ALSO:
  - store.go: WithTx and FindAccountForUpdate contracts
  - coupon package: Composes DebitTx into the exchange transaction
*/
package loyalty

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger performs atomic balance mutations paired with audit entries.
type Ledger struct {
	store TxStore
}

func NewLedger(store TxStore) *Ledger {
	return &Ledger{store: store}
}

// Credit adds points to the account identified by ref and appends the
// matching ledger entry, in one transaction.
func (l *Ledger) Credit(ctx context.Context, ref AccountRef, amount Points, actor Actor, note string) (*LedgerEntry, error) {
	var entry *LedgerEntry
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		entry, err = CreditTx(ctx, s, ref, amount, actor, note)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Debit removes points from the account identified by ref and appends the
// matching ledger entry, in one transaction. Fails with
// ErrInsufficientBalance when amount exceeds the current balance.
func (l *Ledger) Debit(ctx context.Context, ref AccountRef, amount Points, actor Actor, note string) (*LedgerEntry, error) {
	var entry *LedgerEntry
	err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		entry, err = DebitTx(ctx, s, ref, amount, actor, note)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Balance returns the current balance of the account identified by ref.
func (l *Ledger) Balance(ctx context.Context, ref AccountRef) (Points, error) {
	acct, err := l.store.FindAccount(ctx, ref)
	if err != nil {
		return ZeroPoints(), err
	}
	if acct == nil {
		return ZeroPoints(), ErrAccountNotFound
	}
	return acct.Balance, nil
}

// Entries returns the account's ledger entries, oldest first.
func (l *Ledger) Entries(ctx context.Context, handle string) ([]LedgerEntry, error) {
	return l.store.LedgerEntries(ctx, handle)
}

// =============================================================================
// IN-TRANSACTION MUTATIONS
// =============================================================================

// CreditTx applies a credit on an already-open transaction-scoped store.
func CreditTx(ctx context.Context, s Store, ref AccountRef, amount Points, actor Actor, note string) (*LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	acct, err := s.FindAccountForUpdate(ctx, ref)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}

	if err := s.UpdateBalance(ctx, acct.Handle, acct.Balance.Add(amount)); err != nil {
		return nil, err
	}

	entry := newEntry(acct, ref, amount, DirectionCredit, actor, note)
	if err := s.AppendLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// DebitTx applies a debit on an already-open transaction-scoped store.
func DebitTx(ctx context.Context, s Store, ref AccountRef, amount Points, actor Actor, note string) (*LedgerEntry, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	acct, err := s.FindAccountForUpdate(ctx, ref)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ErrAccountNotFound
	}

	if amount.GreaterThan(acct.Balance) {
		return nil, &InsufficientBalanceError{
			AccountHandle: acct.Handle,
			Available:     acct.Balance,
			Requested:     amount,
		}
	}

	if err := s.UpdateBalance(ctx, acct.Handle, acct.Balance.Sub(amount)); err != nil {
		return nil, err
	}

	entry := newEntry(acct, ref, amount, DirectionDebit, actor, note)
	if err := s.AppendLedgerEntry(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func newEntry(acct *Account, ref AccountRef, amount Points, dir Direction, actor Actor, note string) LedgerEntry {
	d := dir
	return LedgerEntry{
		ID:            uuid.NewString(),
		AccountHandle: acct.Handle,
		ActorCode:     actor.Code,
		ActorName:     actor.Name,
		Input:         ref.Value,
		AddedBy:       string(acct.MatchedBy(ref.Value)),
		Points:        amount,
		Direction:     &d,
		Note:          note,
		CreatedAt:     time.Now().UTC(),
	}
}

// MatchedBy reports which identifier field the input matched, for the
// ledger entry's added-by label.
func (a *Account) MatchedBy(input string) LookupKind {
	switch input {
	case a.Handle:
		return ByHandle
	case a.ExternalID:
		return ByExternalID
	case a.Phone:
		return ByPhone
	}
	return ByAny
}
