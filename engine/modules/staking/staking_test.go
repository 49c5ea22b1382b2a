package staking

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/internal/testutil"
	"github.com/okarvik/reservex/wallet"
)

// TestStakeLocksBalance verifies that staking moves the amount into the
// staking custody account and records the position.
func TestStakeLocksBalance(t *testing.T) {
	staker, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, map[string]map[string]uint64{
		testutil.NativeSymbol: {staker.PubKey(): 500},
	})

	f.MustExec(t, staker, core.OpStake, core.StakePayload{Amount: 200, DurationSeconds: 3600})

	require.Equal(t, uint64(300), f.Balance(t, testutil.NativeSymbol, staker.PubKey()))
	require.Equal(t, uint64(200), f.Balance(t, testutil.NativeSymbol, core.StakingAccount))

	positions, err := f.Engine.State().GetStakes(staker.PubKey())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	require.Equal(t, uint64(0), positions[0].ID)
	require.Equal(t, uint64(200), positions[0].Amount)
	require.Equal(t, uint64(3600), positions[0].DurationSeconds)
	require.Equal(t, testutil.FixedNow, positions[0].StartTimestamp)
}

// TestStakePositionsOrdered verifies that repeated stakes append in
// creation order with sequential ids.
func TestStakePositionsOrdered(t *testing.T) {
	staker, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, map[string]map[string]uint64{
		testutil.NativeSymbol: {staker.PubKey(): 500},
	})

	f.MustExec(t, staker, core.OpStake, core.StakePayload{Amount: 100, DurationSeconds: 60})
	f.MustExec(t, staker, core.OpStake, core.StakePayload{Amount: 150, DurationSeconds: 86400})
	f.MustExec(t, staker, core.OpStake, core.StakePayload{Amount: 250, DurationSeconds: 600})

	positions, err := f.Engine.State().GetStakes(staker.PubKey())
	require.NoError(t, err)
	require.Len(t, positions, 3)
	for i, pos := range positions {
		require.Equal(t, uint64(i), pos.ID)
	}
	require.Equal(t, uint64(100), positions[0].Amount)
	require.Equal(t, uint64(150), positions[1].Amount)
	require.Equal(t, uint64(250), positions[2].Amount)

	require.Equal(t, uint64(0), f.Balance(t, testutil.NativeSymbol, staker.PubKey()))
	require.Equal(t, uint64(500), f.Balance(t, testutil.NativeSymbol, core.StakingAccount))
}

func TestStakeValidation(t *testing.T) {
	staker, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, map[string]map[string]uint64{
		testutil.NativeSymbol: {staker.PubKey(): 100},
	})

	err := f.Exec(t, staker, core.OpStake, core.StakePayload{Amount: 0, DurationSeconds: 60})
	require.ErrorIs(t, err, core.ErrInvalidAmount)

	err = f.Exec(t, staker, core.OpStake, core.StakePayload{Amount: 10, DurationSeconds: 0})
	require.ErrorIs(t, err, core.ErrInvalidAmount)

	err = f.Exec(t, staker, core.OpStake, core.StakePayload{Amount: 101, DurationSeconds: 60})
	require.ErrorIs(t, err, core.ErrInsufficientBalance)

	// Nothing was locked and no position was recorded.
	positions, perr := f.Engine.State().GetStakes(staker.PubKey())
	require.NoError(t, perr)
	require.Empty(t, positions)
	require.Equal(t, uint64(100), f.Balance(t, testutil.NativeSymbol, staker.PubKey()))
}
