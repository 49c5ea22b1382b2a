package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/internal/testutil"
	"github.com/okarvik/reservex/wallet"
)

// TestTransferMovesBalance verifies that a transfer debits the sender and
// credits the receiver without touching supply.
func TestTransferMovesBalance(t *testing.T) {
	sender, _ := wallet.Generate()
	receiver, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, map[string]map[string]uint64{
		testutil.NativeSymbol: {sender.PubKey(): 1000},
	})

	f.MustExec(t, sender, core.OpTransfer, core.TransferPayload{
		To: receiver.PubKey(), Amount: 300,
	})

	require.Equal(t, uint64(700), f.Balance(t, testutil.NativeSymbol, sender.PubKey()))
	require.Equal(t, uint64(300), f.Balance(t, testutil.NativeSymbol, receiver.PubKey()))
	require.Equal(t, uint64(1000), f.Supply(t, testutil.NativeSymbol))
}

// TestTransferForeignToken verifies that a transfer naming the payment
// token moves payment balance, leaving the native rows untouched.
func TestTransferForeignToken(t *testing.T) {
	sender, _ := wallet.Generate()
	receiver, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, map[string]map[string]uint64{
		testutil.PaymentSymbol: {sender.PubKey(): 500},
	})

	f.MustExec(t, sender, core.OpTransfer, core.TransferPayload{
		Token: testutil.PaymentSymbol, To: receiver.PubKey(), Amount: 500,
	})

	require.Equal(t, uint64(500), f.Balance(t, testutil.PaymentSymbol, receiver.PubKey()))
	require.Equal(t, uint64(0), f.Balance(t, testutil.NativeSymbol, receiver.PubKey()))
}

func TestTransferInsufficientBalance(t *testing.T) {
	sender, _ := wallet.Generate()
	receiver, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, map[string]map[string]uint64{
		testutil.NativeSymbol: {sender.PubKey(): 100},
	})

	err := f.Exec(t, sender, core.OpTransfer, core.TransferPayload{
		To: receiver.PubKey(), Amount: 101,
	})
	require.ErrorIs(t, err, core.ErrInsufficientBalance)
	require.Equal(t, uint64(100), f.Balance(t, testutil.NativeSymbol, sender.PubKey()))
}

func TestTransferZeroAmount(t *testing.T) {
	sender, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, nil)

	err := f.Exec(t, sender, core.OpTransfer, core.TransferPayload{
		To: f.Owner.PubKey(), Amount: 0,
	})
	require.ErrorIs(t, err, core.ErrInvalidAmount)
}

// TestMintRequiresAuthority verifies the owner/minter gate on mint.
func TestMintRequiresAuthority(t *testing.T) {
	stranger, _ := wallet.Generate()
	minter, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, nil)

	err := f.Exec(t, stranger, core.OpMint, core.MintPayload{To: stranger.PubKey(), Amount: 50})
	require.ErrorIs(t, err, core.ErrUnauthorized)
	require.ErrorContains(t, err, "not authorized to mint")

	// The owner may always mint.
	f.MustExec(t, f.Owner, core.OpMint, core.MintPayload{To: stranger.PubKey(), Amount: 50})
	require.Equal(t, uint64(50), f.Balance(t, testutil.NativeSymbol, stranger.PubKey()))
	require.Equal(t, uint64(50), f.Supply(t, testutil.NativeSymbol))

	// A granted minter may mint too.
	f.MustExec(t, f.Owner, core.OpGrantRole, core.RolePayload{
		Role: core.RoleMinter, Account: minter.PubKey(),
	})
	f.MustExec(t, minter, core.OpMint, core.MintPayload{To: minter.PubKey(), Amount: 25})
	require.Equal(t, uint64(75), f.Supply(t, testutil.NativeSymbol))
}

// TestBurnShrinksSupply verifies that burn destroys the caller's balance
// and the recorded supply together.
func TestBurnShrinksSupply(t *testing.T) {
	holder, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, map[string]map[string]uint64{
		testutil.NativeSymbol: {holder.PubKey(): 400},
	})

	f.MustExec(t, holder, core.OpBurn, core.BurnPayload{Amount: 150})
	require.Equal(t, uint64(250), f.Balance(t, testutil.NativeSymbol, holder.PubKey()))
	require.Equal(t, uint64(250), f.Supply(t, testutil.NativeSymbol))

	err := f.Exec(t, holder, core.OpBurn, core.BurnPayload{Amount: 251})
	require.ErrorIs(t, err, core.ErrInsufficientBalance)
}

// TestApproveAndTransferFrom verifies the allowance lifecycle: grant,
// partial spend, decrement, and exhaustion.
func TestApproveAndTransferFrom(t *testing.T) {
	owner, _ := wallet.Generate()
	spender, _ := wallet.Generate()
	dest, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, map[string]map[string]uint64{
		testutil.NativeSymbol: {owner.PubKey(): 1000},
	})

	f.MustExec(t, owner, core.OpApprove, core.ApprovePayload{
		Spender: spender.PubKey(), Amount: 300,
	})

	f.MustExec(t, spender, core.OpTransferFrom, core.TransferFromPayload{
		Owner: owner.PubKey(), To: dest.PubKey(), Amount: 200,
	})
	require.Equal(t, uint64(800), f.Balance(t, testutil.NativeSymbol, owner.PubKey()))
	require.Equal(t, uint64(200), f.Balance(t, testutil.NativeSymbol, dest.PubKey()))

	allowance, err := f.Engine.State().GetAllowance(testutil.NativeSymbol, owner.PubKey(), spender.PubKey())
	require.NoError(t, err)
	require.Equal(t, uint64(100), allowance)

	err = f.Exec(t, spender, core.OpTransferFrom, core.TransferFromPayload{
		Owner: owner.PubKey(), To: dest.PubKey(), Amount: 101,
	})
	require.ErrorIs(t, err, core.ErrInsufficientAllowance)
}

// TestApproveOverwrites verifies that approvals replace rather than add,
// and that amount 0 clears the grant.
func TestApproveOverwrites(t *testing.T) {
	owner, _ := wallet.Generate()
	spender, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, map[string]map[string]uint64{
		testutil.NativeSymbol: {owner.PubKey(): 1000},
	})

	f.MustExec(t, owner, core.OpApprove, core.ApprovePayload{Spender: spender.PubKey(), Amount: 300})
	f.MustExec(t, owner, core.OpApprove, core.ApprovePayload{Spender: spender.PubKey(), Amount: 50})

	allowance, err := f.Engine.State().GetAllowance(testutil.NativeSymbol, owner.PubKey(), spender.PubKey())
	require.NoError(t, err)
	require.Equal(t, uint64(50), allowance)

	f.MustExec(t, owner, core.OpApprove, core.ApprovePayload{Spender: spender.PubKey(), Amount: 0})
	allowance, err = f.Engine.State().GetAllowance(testutil.NativeSymbol, owner.PubKey(), spender.PubKey())
	require.NoError(t, err)
	require.Zero(t, allowance)
}
