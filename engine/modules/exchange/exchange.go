// Package exchange implements the reserve-backed bonding facility:
// mint-on-payment at the buy price, burn-for-payout at the derived sell
// price, and surplus withdrawal. The reserve held by the exchange custody
// account must always cover redemption of the full outstanding supply at
// the sell price; every payout path re-verifies this before moving value.
package exchange

import (
	"encoding/json"
	"fmt"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/engine"
	"github.com/okarvik/reservex/engine/modules/access"
	"github.com/okarvik/reservex/engine/modules/ledger"
	"github.com/okarvik/reservex/events"
)

func init() {
	engine.Register(core.OpExchangePurchase, handlePurchase)
	engine.Register(core.OpExchangeSell, handleSell)
	engine.Register(core.OpSetBuyPrice, handleSetBuyPrice)
	engine.Register(core.OpSetActive, handleSetActive)
	engine.Register(core.OpWithdrawSurplus, handleWithdrawSurplus)
}

func handlePurchase(ctx *engine.Context, payload json.RawMessage) error {
	var p core.ExchangePurchasePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode exchange_purchase payload: %w", err)
	}
	if p.PaymentAmount == 0 {
		return fmt.Errorf("no payment sent: %w", core.ErrInvalidAmount)
	}

	reserve, err := ctx.State.GetReserve()
	if err != nil {
		return err
	}
	if !reserve.Active {
		return fmt.Errorf("purchases are disabled: %w", core.ErrSaleInactive)
	}

	meta, err := ctx.State.GetMeta()
	if err != nil {
		return err
	}

	// Integer division truncates; callers should send exact multiples of
	// the buy price to avoid dust loss.
	scaled, err := ledger.CheckedMul(p.PaymentAmount, core.PriceScale)
	if err != nil {
		return err
	}
	minted := scaled / reserve.BuyPrice

	if err := ledger.Move(ctx.State, meta.PaymentToken, ctx.Op.From, core.ExchangeAccount, p.PaymentAmount); err != nil {
		return err
	}
	if err := ledger.Mint(ctx.State, meta.NativeToken, ctx.Op.From, minted); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventExchangePurchase,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data: map[string]any{
			"buyer":          ctx.Op.From,
			"minted":         minted,
			"payment_amount": p.PaymentAmount,
		},
	})
	return nil
}

func handleSell(ctx *engine.Context, payload json.RawMessage) error {
	var p core.ExchangeSellPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode exchange_sell payload: %w", err)
	}
	if p.Amount == 0 {
		return fmt.Errorf("sell amount must be > 0: %w", core.ErrInvalidAmount)
	}

	reserve, err := ctx.State.GetReserve()
	if err != nil {
		return err
	}
	meta, err := ctx.State.GetMeta()
	if err != nil {
		return err
	}

	balance, err := ctx.State.GetBalance(meta.NativeToken, ctx.Op.From)
	if err != nil {
		return err
	}
	if balance < p.Amount {
		return fmt.Errorf("have %d, need %d: %w", balance, p.Amount, core.ErrInsufficientBalance)
	}

	scaled, err := ledger.CheckedMul(p.Amount, reserve.SellPrice)
	if err != nil {
		return err
	}
	payout := scaled / core.PriceScale

	// Reserve sufficiency: after paying out, the remaining custodied funds
	// must still cover redemption of every remaining unit at the sell
	// price. Verified before any value moves.
	tok, err := ctx.State.GetToken(meta.NativeToken)
	if err != nil {
		return err
	}
	custodied, err := ctx.State.GetBalance(meta.PaymentToken, core.ExchangeAccount)
	if err != nil {
		return err
	}
	remainingScaled, err := ledger.CheckedMul(tok.TotalSupply-p.Amount, reserve.SellPrice)
	if err != nil {
		return err
	}
	required := remainingScaled / core.PriceScale
	if custodied < payout || custodied-payout < required {
		return fmt.Errorf("custodied %d cannot cover payout %d plus obligations %d: %w",
			custodied, payout, required, core.ErrReserveExhausted)
	}

	if err := ledger.Burn(ctx.State, meta.NativeToken, ctx.Op.From, p.Amount); err != nil {
		return err
	}
	if err := ledger.Move(ctx.State, meta.PaymentToken, core.ExchangeAccount, ctx.Op.From, payout); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventExchangeSell,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data: map[string]any{
			"seller": ctx.Op.From,
			"burned": p.Amount,
			"payout": payout,
		},
	})
	return nil
}

func handleSetBuyPrice(ctx *engine.Context, payload json.RawMessage) error {
	var p core.SetBuyPricePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_buy_price payload: %w", err)
	}
	if err := access.RequireOwner(ctx.State, ctx.Op.From); err != nil {
		return err
	}
	if p.Price == 0 {
		return fmt.Errorf("buy price must be > 0: %w", core.ErrInvalidAmount)
	}

	reserve, err := ctx.State.GetReserve()
	if err != nil {
		return err
	}
	reserve.BuyPrice = p.Price
	reserve.SellPrice = p.Price * core.SellDiscountNum / core.SellDiscountDen
	if err := ctx.State.SetReserve(reserve); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventPriceUpdated,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data: map[string]any{
			"buy_price":  reserve.BuyPrice,
			"sell_price": reserve.SellPrice,
		},
	})
	return nil
}

func handleSetActive(ctx *engine.Context, payload json.RawMessage) error {
	var p core.SetActivePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode set_active payload: %w", err)
	}
	if err := access.RequireOwner(ctx.State, ctx.Op.From); err != nil {
		return err
	}

	reserve, err := ctx.State.GetReserve()
	if err != nil {
		return err
	}
	reserve.Active = p.Active
	if err := ctx.State.SetReserve(reserve); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventExchangeStatus,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data:      map[string]any{"active": p.Active},
	})
	return nil
}

func handleWithdrawSurplus(ctx *engine.Context, payload json.RawMessage) error {
	if err := access.RequireOwner(ctx.State, ctx.Op.From); err != nil {
		return err
	}

	reserve, err := ctx.State.GetReserve()
	if err != nil {
		return err
	}
	meta, err := ctx.State.GetMeta()
	if err != nil {
		return err
	}
	tok, err := ctx.State.GetToken(meta.NativeToken)
	if err != nil {
		return err
	}

	requiredScaled, err := ledger.CheckedMul(tok.TotalSupply, reserve.SellPrice)
	if err != nil {
		return err
	}
	required := requiredScaled / core.PriceScale
	custodied, err := ctx.State.GetBalance(meta.PaymentToken, core.ExchangeAccount)
	if err != nil {
		return err
	}
	if custodied <= required {
		return fmt.Errorf("custodied %d, required %d: %w", custodied, required, core.ErrNothingToWithdraw)
	}
	withdrawable := custodied - required

	if err := ledger.Move(ctx.State, meta.PaymentToken, core.ExchangeAccount, ctx.Op.From, withdrawable); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventSurplusWithdrawn,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data: map[string]any{
			"owner":  ctx.Op.From,
			"amount": withdrawable,
		},
	})
	return nil
}
