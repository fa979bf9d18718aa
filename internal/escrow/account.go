/*
Package escrow wraps a ledger account behind the two operations the vault is
allowed to drive: transfer tokens out, and report the balance. The vault
never holds the underlying asset itself between operations; it only moves it
between escrow accounts and end users.
*/
package escrow

import (
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/qvault-labs/qvm/internal/ledger"
)

// Account is a named holder of one token on one ledger.
type Account struct {
	address string
	token   *ledger.Ledger
}

// NewAccount binds address to a token ledger.
func NewAccount(address string, token *ledger.Ledger) (*Account, error) {
	if address == "" {
		return nil, ledger.ErrEmptyAccount
	}
	if token == nil {
		return nil, fmt.Errorf("escrow account %s: token ledger is nil", address)
	}
	return &Account{address: address, token: token}, nil
}

// Address returns the account's ledger address.
func (a *Account) Address() string { return a.address }

// Balance reports the tokens currently held.
func (a *Account) Balance() sdkmath.Int {
	return a.token.BalanceOf(a.address)
}

// TransferTo moves amount tokens from this account to recipient. The ledger
// rejects overdrafts synchronously and that failure propagates unchanged.
func (a *Account) TransferTo(recipient string, amount sdkmath.Int) error {
	if err := a.token.Transfer(a.address, recipient, amount); err != nil {
		return fmt.Errorf("escrow %s: %w", a.address, err)
	}
	return nil
}
