/*
errors.go - Centralized error types for the loyalty engine

PURPOSE:
  All error kinds in one place for consistency and discoverability.
  Callers match with errors.Is(); structured errors carry context and
  unwrap to their sentinel.

ERROR CATEGORIES:
  1. Ledger errors   - Invalid or over-spending balance mutations
  2. Coupon errors   - Lifecycle violations (used, expired, not found)
  3. Codegen errors  - Code space saturation
  4. Store errors    - Transaction open/commit failures

SEE ALSO:
  - ledger.go: Returns ledger errors
  - coupon package: Returns coupon lifecycle errors
*/
package loyalty

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a credit or debit is attempted with
	// a zero or negative point amount.
	ErrInvalidAmount = errors.New("point amount must be positive")

	// ErrInsufficientBalance is returned when a debit exceeds the current
	// balance. The debit is never partially applied.
	ErrInsufficientBalance = errors.New("insufficient point balance")

	// ErrMissingField is returned when a required request field is absent.
	ErrMissingField = errors.New("required field missing")

	// ErrCouponNotFound is returned when no coupon matches a code or id.
	ErrCouponNotFound = errors.New("coupon not found")

	// ErrCouponUsed is returned when redeeming a coupon whose valid flag is
	// already false.
	ErrCouponUsed = errors.New("coupon already used")

	// ErrCouponExpired is returned when redeeming a coupon past its expiry.
	ErrCouponExpired = errors.New("coupon expired")

	// ErrCouponNotExpired is returned when deleting a coupon that has not
	// expired yet. Only expired coupons may be deleted.
	ErrCouponNotExpired = errors.New("coupon not expired")

	// ErrGenerationExhausted is returned when the code generator cannot find
	// a free code within its retry bound.
	ErrGenerationExhausted = errors.New("code generation exhausted")

	// ErrAccountNotFound is returned when no account matches a lookup.
	ErrAccountNotFound = errors.New("account not found")

	// ErrEmployeeNotFound is returned when a staff code is unknown.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrStoreUnavailable is returned when the underlying transaction could
	// not be opened or committed. The only kind that may warrant a caller
	// retry; the engine itself never retries transactional failures.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	AccountHandle string
	Available     Points
	Requested     Points
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s: available %v, requested %v",
		e.AccountHandle, e.Available.Value, e.Requested.Value)
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

// CodeExhaustedError provides details about a saturated code space.
type CodeExhaustedError struct {
	Alphabet string
	Length   int
	Attempts int
}

func (e *CodeExhaustedError) Error() string {
	return fmt.Sprintf("no free code of length %d after %d attempts", e.Length, e.Attempts)
}

func (e *CodeExhaustedError) Unwrap() error {
	return ErrGenerationExhausted
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid caller input or
// a business-rule rejection, as opposed to an infrastructure failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrCouponUsed) ||
		errors.Is(err, ErrCouponExpired) ||
		errors.Is(err, ErrCouponNotExpired)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCouponNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrEmployeeNotFound)
}

// IsRetryable returns true if the error might succeed on a caller retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
