// Package market implements the generic sale board: sequentially
// numbered fixed-price listings of described goods or unique items,
// settled atomically against the payment token. Listings move
// Active → Sold or Active → Delisted; both transitions are terminal and
// zero the recorded price.
package market

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/engine"
	"github.com/okarvik/reservex/engine/modules/ledger"
	"github.com/okarvik/reservex/events"
)

func init() {
	engine.Register(core.OpListAsset, handleListAsset)
	engine.Register(core.OpListItem, handleListItem)
	engine.Register(core.OpMarketPurchase, handlePurchase)
	engine.Register(core.OpDelist, handleDelist)
}

func handleListAsset(ctx *engine.Context, payload json.RawMessage) error {
	var p core.ListAssetPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode list_asset payload: %w", err)
	}
	if p.Price == 0 {
		return fmt.Errorf("listing price must be > 0: %w", core.ErrInvalidAmount)
	}
	if p.Name == "" {
		return errors.New("listing name required")
	}

	id, err := ctx.State.NextListingID()
	if err != nil {
		return err
	}
	listing := &core.Listing{
		ID:        id,
		Kind:      core.ListingAsset,
		Seller:    ctx.Op.From,
		Name:      p.Name,
		Category:  p.Category,
		Price:     p.Price,
		Status:    core.ListingActive,
		CreatedAt: ctx.Now,
	}
	if err := ctx.State.SetListing(listing); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventAssetListed,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data: map[string]any{
			"listing_id": id,
			"seller":     ctx.Op.From,
			"name":       p.Name,
			"price":      p.Price,
			"category":   p.Category,
		},
	})
	return nil
}

func handleListItem(ctx *engine.Context, payload json.RawMessage) error {
	var p core.ListItemPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode list_item payload: %w", err)
	}
	if p.Price == 0 {
		return fmt.Errorf("listing price must be > 0: %w", core.ErrInvalidAmount)
	}

	it, err := ctx.State.GetItem(p.ItemID)
	if err != nil {
		return fmt.Errorf("item %q: %w", p.ItemID, err)
	}
	if it.Owner != ctx.Op.From {
		return fmt.Errorf("only the item owner can list it: %w", core.ErrUnauthorized)
	}
	// The board takes custody at listing time, so the seller must have
	// approved it as operator first.
	if it.Approved != core.MarketAccount {
		return fmt.Errorf("market is not approved for item %q: %w", p.ItemID, core.ErrTransferNotApproved)
	}

	it.Owner = core.MarketAccount
	it.Approved = ""
	if err := ctx.State.SetItem(it); err != nil {
		return err
	}

	id, err := ctx.State.NextListingID()
	if err != nil {
		return err
	}
	listing := &core.Listing{
		ID:        id,
		Kind:      core.ListingItem,
		Seller:    ctx.Op.From,
		Name:      it.Name,
		ItemID:    it.ID,
		Price:     p.Price,
		Status:    core.ListingActive,
		CreatedAt: ctx.Now,
	}
	if err := ctx.State.SetListing(listing); err != nil {
		return err
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventAssetListed,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data: map[string]any{
			"listing_id": id,
			"seller":     ctx.Op.From,
			"name":       it.Name,
			"item_id":    it.ID,
			"price":      p.Price,
		},
	})
	return nil
}

func handlePurchase(ctx *engine.Context, payload json.RawMessage) error {
	var p core.MarketPurchasePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode market_purchase payload: %w", err)
	}

	listing, err := ctx.State.GetListing(p.ListingID)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("listing %d: %w", p.ListingID, core.ErrListingNotFound)
	}
	if err != nil {
		return err
	}
	if listing.Status != core.ListingActive {
		return fmt.Errorf("listing %d is %s: %w", p.ListingID, listing.Status, core.ErrAlreadySettled)
	}

	price := listing.Price
	seller := listing.Seller

	// Settle internal state before touching the payment ledger so a
	// hostile re-entry through the payment path observes a closed listing.
	listing.Status = core.ListingSold
	listing.Price = 0
	if err := ctx.State.SetListing(listing); err != nil {
		return err
	}
	if listing.Kind == core.ListingItem {
		it, err := ctx.State.GetItem(listing.ItemID)
		if err != nil {
			return fmt.Errorf("escrowed item %q: %w", listing.ItemID, err)
		}
		it.Owner = ctx.Op.From
		it.Approved = ""
		if err := ctx.State.SetItem(it); err != nil {
			return err
		}
	}

	meta, err := ctx.State.GetMeta()
	if err != nil {
		return err
	}
	if err := ledger.TransferFrom(ctx.State, meta.PaymentToken, ctx.Op.From, core.MarketAccount, seller, price); err != nil {
		return err
	}

	data := map[string]any{
		"listing_id": listing.ID,
		"buyer":      ctx.Op.From,
		"seller":     seller,
		"price":      price,
	}
	if listing.Kind == core.ListingItem {
		data["item_id"] = listing.ItemID
	}
	ctx.Emitter.Emit(events.Event{
		Type:      events.EventAssetPurchased,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data:      data,
	})
	return nil
}

func handleDelist(ctx *engine.Context, payload json.RawMessage) error {
	var p core.DelistPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode delist payload: %w", err)
	}

	listing, err := ctx.State.GetListing(p.ListingID)
	if errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("listing %d: %w", p.ListingID, core.ErrListingNotFound)
	}
	if err != nil {
		return err
	}
	if listing.Status != core.ListingActive {
		return fmt.Errorf("listing %d is %s: %w", p.ListingID, listing.Status, core.ErrAlreadySettled)
	}
	if listing.Seller != ctx.Op.From {
		return fmt.Errorf("listing %d belongs to %s: %w", p.ListingID, listing.Seller, core.ErrNotSeller)
	}

	listing.Status = core.ListingDelisted
	listing.Price = 0
	if err := ctx.State.SetListing(listing); err != nil {
		return err
	}

	// Return escrowed custody to the seller.
	if listing.Kind == core.ListingItem {
		it, err := ctx.State.GetItem(listing.ItemID)
		if err != nil {
			return fmt.Errorf("escrowed item %q: %w", listing.ItemID, err)
		}
		it.Owner = listing.Seller
		if err := ctx.State.SetItem(it); err != nil {
			return err
		}
	}

	ctx.Emitter.Emit(events.Event{
		Type:      events.EventAssetDelisted,
		OpID:      ctx.Op.ID,
		Timestamp: ctx.Now,
		Data:      map[string]any{"listing_id": listing.ID},
	})
	return nil
}
