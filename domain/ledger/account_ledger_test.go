package ledger

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"custody/domain/asset"
)

var (
	alice = asset.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob   = asset.MustParseAddress("0x00000000000000000000000000000000000000b2")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func sumBalances(l *AccountLedger) *uint256.Int {
	sum := new(uint256.Int)
	for _, e := range l.Accounts() {
		sum.Add(sum, e.Balance)
	}
	return sum
}

func TestCreditDebitKeepsTotalInLockStep(t *testing.T) {
	l := NewAccountLedger()

	require.NoError(t, l.Credit(alice, u(4_000)))
	require.NoError(t, l.Credit(bob, u(6_000)))
	require.NoError(t, l.Debit(alice, u(1_500)))

	require.Equal(t, u(2_500), l.BalanceOf(alice))
	require.Equal(t, u(6_000), l.BalanceOf(bob))
	require.Equal(t, u(8_500), l.Total())
	require.Equal(t, l.Total(), sumBalances(l))
}

func TestDebitInsufficientBalanceLeavesStateUntouched(t *testing.T) {
	l := NewAccountLedger()
	require.NoError(t, l.Credit(alice, u(10)))

	err := l.Debit(alice, u(11))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	require.Equal(t, u(10), l.BalanceOf(alice))
	require.Equal(t, u(10), l.Total())

	require.ErrorIs(t, l.Debit(bob, u(1)), ErrInsufficientBalance)
}

func TestCreditOverflow(t *testing.T) {
	l := NewAccountLedger()
	max := new(uint256.Int).SetAllOne()

	require.NoError(t, l.Credit(alice, max))
	require.ErrorIs(t, l.Credit(alice, u(1)), ErrOverflow)
	// the total overflows too, even for a fresh account
	require.ErrorIs(t, l.Credit(bob, u(1)), ErrOverflow)

	require.Equal(t, max, l.BalanceOf(alice))
	require.True(t, l.BalanceOf(bob).IsZero())
	require.Equal(t, max, l.Total())
}

func TestZeroBalanceIsForgotten(t *testing.T) {
	l := NewAccountLedger()
	require.NoError(t, l.Credit(alice, u(5)))
	require.Equal(t, 1, l.Len())

	require.NoError(t, l.Debit(alice, u(5)))
	require.Equal(t, 0, l.Len())
	require.True(t, l.BalanceOf(alice).IsZero())
	require.True(t, l.Total().IsZero())
}

func TestBalanceOfReturnsCopy(t *testing.T) {
	l := NewAccountLedger()
	require.NoError(t, l.Credit(alice, u(7)))

	b := l.BalanceOf(alice)
	b.SetUint64(1_000)
	require.Equal(t, u(7), l.BalanceOf(alice))
}

func TestRestore(t *testing.T) {
	l := NewAccountLedger()
	require.NoError(t, l.Restore([]Entry{
		{Account: alice, Balance: u(3)},
		{Account: bob, Balance: u(4)},
		{Account: asset.MustParseAddress("0x00000000000000000000000000000000000000c3"), Balance: u(0)},
	}))
	require.Equal(t, u(7), l.Total())
	require.Equal(t, 2, l.Len())

	err := l.Restore([]Entry{{Account: alice, Balance: u(1)}, {Account: alice, Balance: u(2)}})
	require.Error(t, err)
	require.Equal(t, u(7), l.Total(), "failed restore must not replace state")
}
