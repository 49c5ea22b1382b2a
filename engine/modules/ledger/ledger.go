// Package ledger implements the fungible balance store: mint under the
// owner/minter gate, burn of the caller's own balance, and standard
// transfer/approve/transferFrom semantics.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/engine"
	"github.com/okarvik/reservex/engine/modules/access"
	"github.com/okarvik/reservex/events"
)

func init() {
	engine.Register(core.OpTransfer, handleTransfer)
	engine.Register(core.OpMint, handleMint)
	engine.Register(core.OpBurn, handleBurn)
	engine.Register(core.OpApprove, handleApprove)
	engine.Register(core.OpTransferFrom, handleTransferFrom)
}

func handleTransfer(ctx *engine.Context, payload json.RawMessage) error {
	var p core.TransferPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer payload: %w", err)
	}
	if p.Amount == 0 {
		return fmt.Errorf("transfer amount must be > 0: %w", core.ErrInvalidAmount)
	}
	if p.To == "" {
		return errors.New("transfer to address required")
	}
	token, err := ResolveToken(ctx.State, p.Token)
	if err != nil {
		return err
	}

	if err := Move(ctx.State, token, ctx.Op.From, p.To, p.Amount); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventTransfer,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data: map[string]any{
			"token":  token,
			"from":   ctx.Op.From,
			"to":     p.To,
			"amount": p.Amount,
		},
	})
	return nil
}

func handleMint(ctx *engine.Context, payload json.RawMessage) error {
	var p core.MintPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode mint payload: %w", err)
	}
	if p.Amount == 0 {
		return fmt.Errorf("mint amount must be > 0: %w", core.ErrInvalidAmount)
	}
	if p.To == "" {
		return errors.New("mint to address required")
	}

	ok, err := access.CanMint(ctx.State, ctx.Op.From)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("not authorized to mint: %w", core.ErrUnauthorized)
	}

	meta, err := ctx.State.GetMeta()
	if err != nil {
		return err
	}
	if err := Mint(ctx.State, meta.NativeToken, p.To, p.Amount); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventMint,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data: map[string]any{
			"token":  meta.NativeToken,
			"to":     p.To,
			"amount": p.Amount,
			"minter": ctx.Op.From,
		},
	})
	return nil
}

func handleBurn(ctx *engine.Context, payload json.RawMessage) error {
	var p core.BurnPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode burn payload: %w", err)
	}
	if p.Amount == 0 {
		return fmt.Errorf("burn amount must be > 0: %w", core.ErrInvalidAmount)
	}

	meta, err := ctx.State.GetMeta()
	if err != nil {
		return err
	}
	if err := Burn(ctx.State, meta.NativeToken, ctx.Op.From, p.Amount); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventBurn,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data: map[string]any{
			"token":  meta.NativeToken,
			"from":   ctx.Op.From,
			"amount": p.Amount,
		},
	})
	return nil
}

func handleApprove(ctx *engine.Context, payload json.RawMessage) error {
	var p core.ApprovePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode approve payload: %w", err)
	}
	if p.Spender == "" {
		return errors.New("spender required")
	}
	token, err := ResolveToken(ctx.State, p.Token)
	if err != nil {
		return err
	}

	// Approvals overwrite: amount 0 clears the allowance.
	if err := ctx.State.SetAllowance(token, ctx.Op.From, p.Spender, p.Amount); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventApproval,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data: map[string]any{
			"token":   token,
			"owner":   ctx.Op.From,
			"spender": p.Spender,
			"amount":  p.Amount,
		},
	})
	return nil
}

func handleTransferFrom(ctx *engine.Context, payload json.RawMessage) error {
	var p core.TransferFromPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_from payload: %w", err)
	}
	if p.Amount == 0 {
		return fmt.Errorf("transfer amount must be > 0: %w", core.ErrInvalidAmount)
	}
	if p.Owner == "" || p.To == "" {
		return errors.New("owner and to addresses required")
	}
	token, err := ResolveToken(ctx.State, p.Token)
	if err != nil {
		return err
	}

	if err := TransferFrom(ctx.State, token, p.Owner, ctx.Op.From, p.To, p.Amount); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventTransfer,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data: map[string]any{
			"token":   token,
			"from":    p.Owner,
			"to":      p.To,
			"amount":  p.Amount,
			"spender": ctx.Op.From,
		},
	})
	return nil
}
