package escrow

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/qvault-labs/qvm/internal/ledger"
)

func TestNewAccountValidation(t *testing.T) {
	token := ledger.New("TOK")

	_, err := NewAccount("", token)
	require.ErrorIs(t, err, ledger.ErrEmptyAccount)

	_, err = NewAccount("escrow", nil)
	require.Error(t, err)
}

func TestBalanceAndTransfer(t *testing.T) {
	token := ledger.New("TOK")
	acct, err := NewAccount("escrow", token)
	require.NoError(t, err)
	require.Equal(t, "escrow", acct.Address())
	require.True(t, acct.Balance().IsZero())

	require.NoError(t, token.Mint("escrow", sdkmath.NewInt(1000)))
	require.Equal(t, sdkmath.NewInt(1000), acct.Balance())

	require.NoError(t, acct.TransferTo("alice", sdkmath.NewInt(300)))
	require.Equal(t, sdkmath.NewInt(700), acct.Balance())
	require.Equal(t, sdkmath.NewInt(300), token.BalanceOf("alice"))
}

func TestOverdraftPropagates(t *testing.T) {
	token := ledger.New("TOK")
	acct, err := NewAccount("escrow", token)
	require.NoError(t, err)
	require.NoError(t, token.Mint("escrow", sdkmath.NewInt(10)))

	err = acct.TransferTo("alice", sdkmath.NewInt(11))
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	require.Equal(t, sdkmath.NewInt(10), acct.Balance())
}
