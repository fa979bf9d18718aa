/*
Package ledger implements a minimal fungible-token ledger: balances,
total supply, and spender allowances. The vault uses three instances of it:
the share token, the underlying asset, and the native fee currency.

The ledger is not safe for concurrent use on its own; the vault serializes
every operation that touches it.
*/
package ledger

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrEmptyAccount          = errors.New("account must not be empty")
	ErrInvalidAmount         = errors.New("amount must be positive")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

// Ledger tracks balances of a single fungible token.
type Ledger struct {
	symbol      string
	totalSupply sdkmath.Int
	balances    map[string]sdkmath.Int
	allowances  map[string]map[string]sdkmath.Int
}

// New creates an empty ledger for the given token symbol.
func New(symbol string) *Ledger {
	return &Ledger{
		symbol:      symbol,
		totalSupply: sdkmath.ZeroInt(),
		balances:    make(map[string]sdkmath.Int),
		allowances:  make(map[string]map[string]sdkmath.Int),
	}
}

// Symbol returns the token symbol this ledger tracks.
func (l *Ledger) Symbol() string { return l.symbol }

// TotalSupply returns the outstanding token supply.
func (l *Ledger) TotalSupply() sdkmath.Int { return l.totalSupply }

// BalanceOf returns the balance of account, zero for unknown accounts.
func (l *Ledger) BalanceOf(account string) sdkmath.Int {
	if bal, ok := l.balances[account]; ok {
		return bal
	}
	return sdkmath.ZeroInt()
}

// Mint creates amount new tokens on account.
func (l *Ledger) Mint(account string, amount sdkmath.Int) error {
	if account == "" {
		return ErrEmptyAccount
	}
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: mint of %s %s", ErrInvalidAmount, amount.String(), l.symbol)
	}
	l.balances[account] = l.BalanceOf(account).Add(amount)
	l.totalSupply = l.totalSupply.Add(amount)
	return nil
}

// Burn destroys amount tokens held by account.
func (l *Ledger) Burn(account string, amount sdkmath.Int) error {
	if account == "" {
		return ErrEmptyAccount
	}
	if amount.IsNil() || !amount.IsPositive() {
		return fmt.Errorf("%w: burn of %s %s", ErrInvalidAmount, amount.String(), l.symbol)
	}
	bal := l.BalanceOf(account)
	if bal.LT(amount) {
		return fmt.Errorf("%w: %s has %s %s, burn needs %s", ErrInsufficientBalance, account, bal.String(), l.symbol, amount.String())
	}
	l.balances[account] = bal.Sub(amount)
	l.totalSupply = l.totalSupply.Sub(amount)
	return nil
}

// Transfer moves amount tokens from one account to another.
func (l *Ledger) Transfer(from, to string, amount sdkmath.Int) error {
	if from == "" || to == "" {
		return ErrEmptyAccount
	}
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: transfer of %s %s", ErrInvalidAmount, amount.String(), l.symbol)
	}
	if amount.IsZero() {
		return nil
	}
	bal := l.BalanceOf(from)
	if bal.LT(amount) {
		return fmt.Errorf("%w: %s has %s %s, transfer needs %s", ErrInsufficientBalance, from, bal.String(), l.symbol, amount.String())
	}
	l.balances[from] = bal.Sub(amount)
	l.balances[to] = l.BalanceOf(to).Add(amount)
	return nil
}

// Approve lets spender move up to amount tokens out of owner's balance via
// SpendAllowance. A zero amount clears the approval.
func (l *Ledger) Approve(owner, spender string, amount sdkmath.Int) error {
	if owner == "" || spender == "" {
		return ErrEmptyAccount
	}
	if amount.IsNil() || amount.IsNegative() {
		return fmt.Errorf("%w: approval of %s %s", ErrInvalidAmount, amount.String(), l.symbol)
	}
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[string]sdkmath.Int)
	}
	if amount.IsZero() {
		delete(l.allowances[owner], spender)
		return nil
	}
	l.allowances[owner][spender] = amount
	return nil
}

// Allowance returns how much spender may still move out of owner's balance.
func (l *Ledger) Allowance(owner, spender string) sdkmath.Int {
	if granted, ok := l.allowances[owner]; ok {
		if amt, ok := granted[spender]; ok {
			return amt
		}
	}
	return sdkmath.ZeroInt()
}

// SpendAllowance consumes amount of spender's allowance from owner. It does
// not move tokens; callers pair it with Transfer or Burn.
func (l *Ledger) SpendAllowance(owner, spender string, amount sdkmath.Int) error {
	if owner == spender {
		return nil
	}
	allowed := l.Allowance(owner, spender)
	if allowed.LT(amount) {
		return fmt.Errorf("%w: %s allowed %s %s from %s, needs %s", ErrInsufficientAllowance, spender, allowed.String(), l.symbol, owner, amount.String())
	}
	l.allowances[owner][spender] = allowed.Sub(amount)
	return nil
}
