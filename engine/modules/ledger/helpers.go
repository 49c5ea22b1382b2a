package ledger

import (
	"fmt"
	"math"

	"github.com/okarvik/reservex/core"
)

// These helpers are the only code paths that move fungible balance. The
// exchange, staking, market, and sale modules all settle through them so
// the conservation invariant (supply == sum of balances) has a single
// enforcement point.

// ResolveToken maps an empty payload token to the native ledger token.
func ResolveToken(st core.State, symbol string) (string, error) {
	if symbol != "" {
		return symbol, nil
	}
	meta, err := st.GetMeta()
	if err != nil {
		return "", err
	}
	return meta.NativeToken, nil
}

// CheckedMul multiplies or fails with core.ErrInvalidAmount on overflow.
func CheckedMul(a, b uint64) (uint64, error) {
	if a != 0 && b > math.MaxUint64/a {
		return 0, fmt.Errorf("%d * %d overflows: %w", a, b, core.ErrInvalidAmount)
	}
	return a * b, nil
}

// Credit adds amount to addr's balance.
func Credit(st core.State, token, addr string, amount uint64) error {
	bal, err := st.GetBalance(token, addr)
	if err != nil {
		return err
	}
	if bal > math.MaxUint64-amount {
		return fmt.Errorf("balance overflow for %s: %w", addr, core.ErrInvalidAmount)
	}
	return st.SetBalance(token, addr, bal+amount)
}

// Debit removes amount from addr's balance, failing with
// core.ErrInsufficientBalance if it does not cover the amount.
func Debit(st core.State, token, addr string, amount uint64) error {
	bal, err := st.GetBalance(token, addr)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("have %d, need %d: %w", bal, amount, core.ErrInsufficientBalance)
	}
	return st.SetBalance(token, addr, bal-amount)
}

// Move transfers amount between accounts without touching supply.
func Move(st core.State, token, from, to string, amount uint64) error {
	if err := Debit(st, token, from, amount); err != nil {
		return err
	}
	return Credit(st, token, to, amount)
}

// Mint credits to and grows the token's total supply.
func Mint(st core.State, token, to string, amount uint64) error {
	tok, err := st.GetToken(token)
	if err != nil {
		return fmt.Errorf("token %q: %w", token, err)
	}
	if tok.TotalSupply > math.MaxUint64-amount {
		return fmt.Errorf("supply overflow for %q: %w", token, core.ErrInvalidAmount)
	}
	if err := Credit(st, token, to, amount); err != nil {
		return err
	}
	tok.TotalSupply += amount
	return st.SetToken(tok)
}

// Burn debits from and shrinks the token's total supply.
func Burn(st core.State, token, from string, amount uint64) error {
	tok, err := st.GetToken(token)
	if err != nil {
		return fmt.Errorf("token %q: %w", token, err)
	}
	if err := Debit(st, token, from, amount); err != nil {
		return err
	}
	tok.TotalSupply -= amount
	return st.SetToken(tok)
}

// SpendAllowance reduces spender's allowance over owner's balance,
// failing with core.ErrInsufficientAllowance if it does not cover amount.
func SpendAllowance(st core.State, token, owner, spender string, amount uint64) error {
	allowance, err := st.GetAllowance(token, owner, spender)
	if err != nil {
		return err
	}
	if allowance < amount {
		return fmt.Errorf("allowance %d, need %d: %w", allowance, amount, core.ErrInsufficientAllowance)
	}
	return st.SetAllowance(token, owner, spender, allowance-amount)
}

// TransferFrom spends spender's allowance and moves owner's balance to
// to. Used by the marketplace and the sale to collect payment.
func TransferFrom(st core.State, token, owner, spender, to string, amount uint64) error {
	if err := SpendAllowance(st, token, owner, spender, amount); err != nil {
		return err
	}
	return Move(st, token, owner, to, amount)
}
