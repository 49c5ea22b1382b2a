// Package sale implements the fixed-price primary sale: buyers pay the
// payment token into the treasury and receive freshly minted native
// tokens. The sale module itself carries the minter role, granted at
// initialization, so purchases mint without the owner signing each one.
package sale

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/engine"
	"github.com/okarvik/reservex/engine/modules/access"
	"github.com/okarvik/reservex/engine/modules/ledger"
	"github.com/okarvik/reservex/events"
)

func init() {
	engine.Register(core.OpSalePurchase, handlePurchase)
	engine.Register(core.OpUpdateSalePrice, handleUpdatePrice)
}

func handlePurchase(ctx *engine.Context, payload json.RawMessage) error {
	var p core.SalePurchasePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode sale_purchase payload: %w", err)
	}
	if p.TokenAmount == 0 {
		return fmt.Errorf("token amount must be > 0: %w", core.ErrInvalidAmount)
	}

	sale, err := ctx.State.GetSale()
	if err != nil {
		return err
	}
	cost, err := ledger.CheckedMul(p.TokenAmount, sale.TokenPrice)
	if err != nil {
		return fmt.Errorf("sale cost overflows: %w", err)
	}

	meta, err := ctx.State.GetMeta()
	if err != nil {
		return err
	}
	// The sale mints through its own role grant. Revoking minter from the
	// sale account disables purchases until it is granted again.
	ok, err := access.CanMint(ctx.State, core.SaleAccount)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("sale account lacks the minter role: %w", core.ErrUnauthorized)
	}
	err = ledger.TransferFrom(ctx.State, meta.PaymentToken, ctx.Op.From, core.SaleAccount, sale.Treasury, cost)
	if errors.Is(err, core.ErrInsufficientAllowance) {
		return fmt.Errorf("allowance insufficient — check approval and amount: %w", core.ErrInsufficientAllowance)
	}
	if err != nil {
		return err
	}
	if err := ledger.Mint(ctx.State, meta.NativeToken, ctx.Op.From, p.TokenAmount); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventSalePurchase,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data: map[string]any{
			"buyer":        ctx.Op.From,
			"token_amount": p.TokenAmount,
			"cost":         cost,
			"treasury":     sale.Treasury,
		},
	})
	return nil
}

func handleUpdatePrice(ctx *engine.Context, payload json.RawMessage) error {
	if err := access.RequireOwner(ctx.State, ctx.Op.From); err != nil {
		return err
	}
	var p core.UpdateSalePricePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode update_sale_price payload: %w", err)
	}
	if p.Price == 0 {
		return fmt.Errorf("sale price must be > 0: %w", core.ErrInvalidAmount)
	}

	sale, err := ctx.State.GetSale()
	if err != nil {
		return err
	}
	old := sale.TokenPrice
	sale.TokenPrice = p.Price
	if err := ctx.State.SetSale(sale); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventSalePriceUpdated,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data:      map[string]any{"old_price": old, "new_price": p.Price},
	})
	return nil
}
