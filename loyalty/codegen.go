/*
codegen.go - Collision-free random code generation

PURPOSE:
  One generator for every random identifier the system mints: coupon codes,
  staff codes, account handles. The previous ad hoc pattern - generate,
  probe existence, loop - is unified behind a single abstraction
  parameterized by alphabet, length, and uniqueness scope.

CONTRACT:
  Generate draws a candidate, asks the scope whether it already exists,
  and retries with a fresh draw on collision. Retries are bounded: when
  the key space is saturated (or the alphabet/length too small), Generate
  fails with ErrGenerationExhausted instead of looping forever.

SIDE EFFECTS:
  None beyond the read-only uniqueness probe. The caller must persist the
  returned code inside the same store transaction that will own it,
  otherwise a concurrent caller can win the race between probe and insert.
  Per-account coupon codes additionally rely on the store's unique index.

SCOPES:
  Coupon codes:  unique within one account (6 symbols, A-Z 0-9)
  Staff codes:   unique globally (one letter + four digits)
  Handles:       unique globally
*/
package loyalty

import (
	"context"
	"fmt"
	"math/rand"
)

// CodeAlphabet is the symbol set for generated codes: uppercase letters
// and digits.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// DefaultMaxAttempts bounds the generate-probe-retry loop.
const DefaultMaxAttempts = 5

// CodeScope answers whether a candidate code is already taken within some
// uniqueness scope (one account's coupons, all staff codes, ...).
type CodeScope interface {
	CodeExists(ctx context.Context, code string) (bool, error)
}

// CodeScopeFunc adapts a function to the CodeScope interface.
type CodeScopeFunc func(ctx context.Context, code string) (bool, error)

func (f CodeScopeFunc) CodeExists(ctx context.Context, code string) (bool, error) {
	return f(ctx, code)
}

// Generator produces collision-free random codes.
type Generator struct {
	Alphabet    string
	Length      int
	MaxAttempts int
}

// NewGenerator returns a Generator over the standard alphabet.
func NewGenerator(length int) *Generator {
	return &Generator{
		Alphabet:    CodeAlphabet,
		Length:      length,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Generate returns a code of g.Length symbols that does not exist within
// scope, or ErrGenerationExhausted after MaxAttempts collisions.
func (g *Generator) Generate(ctx context.Context, scope CodeScope) (string, error) {
	return g.GenerateFrom(ctx, scope, g.sample)
}

// GenerateFrom runs the probe-retry loop with a custom draw function.
// Used for codes with a fixed shape, e.g. staff codes.
func (g *Generator) GenerateFrom(ctx context.Context, scope CodeScope, draw func() string) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	for i := 0; i < attempts; i++ {
		code := draw()
		exists, err := scope.CodeExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("probing code uniqueness: %w", err)
		}
		if !exists {
			return code, nil
		}
	}

	return "", &CodeExhaustedError{Alphabet: g.Alphabet, Length: g.Length, Attempts: attempts}
}

func (g *Generator) sample() string {
	b := make([]byte, g.Length)
	for i := range b {
		b[i] = g.Alphabet[rand.Intn(len(g.Alphabet))]
	}
	return string(b)
}

// =============================================================================
// STANDARD DRAWS
// =============================================================================

// DrawStaffCode samples a staff code: one uppercase letter followed by
// four digits, e.g. "K4072".
func DrawStaffCode() string {
	letters := "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	return fmt.Sprintf("%c%04d", letters[rand.Intn(len(letters))], rand.Intn(10000))
}

// =============================================================================
// STORE-BACKED SCOPES
// =============================================================================

// CouponCodeScope scopes uniqueness to one account's coupons.
func CouponCodeScope(store Store, handle string) CodeScope {
	return CodeScopeFunc(func(ctx context.Context, code string) (bool, error) {
		return store.CouponCodeExists(ctx, handle, code)
	})
}

// StaffCodeScope scopes uniqueness to all staff codes.
func StaffCodeScope(store Store) CodeScope {
	return CodeScopeFunc(func(ctx context.Context, code string) (bool, error) {
		return store.EmployeeCodeExists(ctx, code)
	})
}

// HandleScope scopes uniqueness to all account handles.
func HandleScope(store Store) CodeScope {
	return CodeScopeFunc(func(ctx context.Context, code string) (bool, error) {
		return store.HandleExists(ctx, code)
	})
}
