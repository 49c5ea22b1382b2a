// Package staking implements the time-locked stake registry. Staked
// balance is moved into the registry's custody account (a transfer, not
// a burn), so total supply is unchanged and the locked amount is simply
// out of the staker's spendable balance for the life of the position.
//
// There is deliberately no unlock or payout path: release semantics are
// an open product decision, and positions are append-only until one is
// made.
package staking

import (
	"encoding/json"
	"fmt"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/engine"
	"github.com/okarvik/reservex/engine/modules/ledger"
	"github.com/okarvik/reservex/events"
)

func init() {
	engine.Register(core.OpStake, handleStake)
}

func handleStake(ctx *engine.Context, payload json.RawMessage) error {
	var p core.StakePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode stake payload: %w", err)
	}
	if p.Amount == 0 {
		return fmt.Errorf("stake amount must be > 0: %w", core.ErrInvalidAmount)
	}
	if p.DurationSeconds == 0 {
		return fmt.Errorf("stake duration must be > 0: %w", core.ErrInvalidAmount)
	}

	meta, err := ctx.State.GetMeta()
	if err != nil {
		return err
	}
	if err := ledger.Move(ctx.State, meta.NativeToken, ctx.Op.From, core.StakingAccount, p.Amount); err != nil {
		return err
	}

	positions, err := ctx.State.GetStakes(ctx.Op.From)
	if err != nil {
		return err
	}
	position := core.StakePosition{
		ID:              uint64(len(positions)),
		Amount:          p.Amount,
		DurationSeconds: p.DurationSeconds,
		StartTimestamp:  ctx.Now,
	}
	if err := ctx.State.SetStakes(ctx.Op.From, append(positions, position)); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventStakeCreated,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data: map[string]any{
			"staker":           ctx.Op.From,
			"position_id":      position.ID,
			"amount":           p.Amount,
			"duration_seconds": p.DurationSeconds,
		},
	})
	return nil
}
