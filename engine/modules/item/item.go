// Package item implements uniquely-identified assets with single-owner
// custody and operator approval, the custody surface the marketplace's
// unique-listing settlement builds on.
package item

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/crypto"
	"github.com/okarvik/reservex/engine"
	"github.com/okarvik/reservex/engine/modules/access"
	"github.com/okarvik/reservex/events"
)

func init() {
	engine.Register(core.OpMintItem, handleMintItem)
	engine.Register(core.OpTransferItem, handleTransferItem)
	engine.Register(core.OpApproveItem, handleApproveItem)
}

func handleMintItem(ctx *engine.Context, payload json.RawMessage) error {
	var p core.MintItemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode mint_item payload: %w", err)
	}
	if p.Name == "" {
		return errors.New("item name required")
	}

	ok, err := access.CanMint(ctx.State, ctx.Op.From)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("not authorized to mint items: %w", core.ErrUnauthorized)
	}

	owner := p.To
	if owner == "" {
		owner = ctx.Op.From
	} else if _, err := crypto.PubKeyFromHex(owner); err != nil {
		return fmt.Errorf("invalid owner pubkey: %w", err)
	}

	// Deterministic item ID: hash of op ID + name.
	itemID := crypto.Hash([]byte(ctx.Op.ID + ":item:" + p.Name))

	it := &core.Item{
		ID:       itemID,
		Name:     p.Name,
		Owner:    owner,
		MintedAt: ctx.Now,
	}
	if err := ctx.State.SetItem(it); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventItemMinted,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data:      map[string]any{"item_id": itemID, "name": p.Name, "owner": owner},
	})
	return nil
}

func handleTransferItem(ctx *engine.Context, payload json.RawMessage) error {
	var p core.TransferItemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode transfer_item payload: %w", err)
	}
	if p.To == "" {
		return errors.New("to address required")
	}
	if _, err := crypto.PubKeyFromHex(p.To); err != nil {
		return fmt.Errorf("invalid to pubkey: %w", err)
	}

	it, err := ctx.State.GetItem(p.ItemID)
	if err != nil {
		return fmt.Errorf("item %q: %w", p.ItemID, err)
	}
	if it.Owner != ctx.Op.From {
		return fmt.Errorf("only the item owner can transfer it: %w", core.ErrUnauthorized)
	}

	from := it.Owner
	it.Owner = p.To
	it.Approved = "" // approvals do not survive a transfer
	if err := ctx.State.SetItem(it); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventItemTransferred,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data:      map[string]any{"item_id": it.ID, "from": from, "to": p.To},
	})
	return nil
}

func handleApproveItem(ctx *engine.Context, payload json.RawMessage) error {
	var p core.ApproveItemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode approve_item payload: %w", err)
	}

	it, err := ctx.State.GetItem(p.ItemID)
	if err != nil {
		return fmt.Errorf("item %q: %w", p.ItemID, err)
	}
	if it.Owner != ctx.Op.From {
		return fmt.Errorf("only the item owner can approve an operator: %w", core.ErrUnauthorized)
	}

	it.Approved = p.Operator // empty operator clears the approval
	if err := ctx.State.SetItem(it); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventItemApproved,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data:      map[string]any{"item_id": it.ID, "owner": it.Owner, "operator": p.Operator},
	})
	return nil
}
