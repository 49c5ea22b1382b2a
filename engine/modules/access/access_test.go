package access_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/internal/testutil"
	"github.com/okarvik/reservex/wallet"

	// Register the mint handler the role tests exercise.
	_ "github.com/okarvik/reservex/engine/modules/ledger"
)

// TestTransferOwnership verifies that the owner seat moves and that
// privileges follow it.
func TestTransferOwnership(t *testing.T) {
	successor, _ := wallet.Generate()
	stranger, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, nil)

	err := f.Exec(t, stranger, core.OpTransferOwnership, core.TransferOwnershipPayload{
		NewOwner: stranger.PubKey(),
	})
	require.ErrorIs(t, err, core.ErrUnauthorized)

	f.MustExec(t, f.Owner, core.OpTransferOwnership, core.TransferOwnershipPayload{
		NewOwner: successor.PubKey(),
	})

	meta, err := f.Engine.State().GetMeta()
	require.NoError(t, err)
	require.Equal(t, successor.PubKey(), meta.Owner)

	// The previous owner lost its privileges.
	err = f.Exec(t, f.Owner, core.OpMint, core.MintPayload{To: successor.PubKey(), Amount: 1})
	require.ErrorIs(t, err, core.ErrUnauthorized)
	f.MustExec(t, successor, core.OpMint, core.MintPayload{To: successor.PubKey(), Amount: 1})
}

func TestTransferOwnershipRejectsBadKey(t *testing.T) {
	f := testutil.NewFixture(t, 100, nil)

	err := f.Exec(t, f.Owner, core.OpTransferOwnership, core.TransferOwnershipPayload{
		NewOwner: "not-a-pubkey",
	})
	require.ErrorContains(t, err, "invalid new owner")
}

// TestGrantAndRevokeMinter verifies the role lifecycle around the mint
// gate.
func TestGrantAndRevokeMinter(t *testing.T) {
	minter, _ := wallet.Generate()
	stranger, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, nil)

	err := f.Exec(t, stranger, core.OpGrantRole, core.RolePayload{
		Role: core.RoleMinter, Account: stranger.PubKey(),
	})
	require.ErrorIs(t, err, core.ErrUnauthorized)

	f.MustExec(t, f.Owner, core.OpGrantRole, core.RolePayload{
		Role: core.RoleMinter, Account: minter.PubKey(),
	})
	f.MustExec(t, minter, core.OpMint, core.MintPayload{To: minter.PubKey(), Amount: 5})

	// Granting again is a no-op success.
	f.MustExec(t, f.Owner, core.OpGrantRole, core.RolePayload{
		Role: core.RoleMinter, Account: minter.PubKey(),
	})

	f.MustExec(t, f.Owner, core.OpRevokeRole, core.RolePayload{
		Role: core.RoleMinter, Account: minter.PubKey(),
	})
	err = f.Exec(t, minter, core.OpMint, core.MintPayload{To: minter.PubKey(), Amount: 5})
	require.ErrorIs(t, err, core.ErrUnauthorized)

	// Revoking a role the account does not hold is a no-op success.
	f.MustExec(t, f.Owner, core.OpRevokeRole, core.RolePayload{
		Role: core.RoleMinter, Account: minter.PubKey(),
	})
}

// TestSaleAccountHoldsMinterRole verifies the grant made at
// initialization.
func TestSaleAccountHoldsMinterRole(t *testing.T) {
	f := testutil.NewFixture(t, 100, nil)

	held, err := f.Engine.State().HasRole(core.RoleMinter, core.SaleAccount)
	require.NoError(t, err)
	require.True(t, held)
}
