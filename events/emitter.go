// Package events delivers fire-and-forget notifications to external
// observers (indexers, UIs). Handlers emit synchronously while an
// operation executes, before the engine commits its write buffer, so a
// commit failure can publish events for changes that never persisted.
// Delivery is at-least-once; the engine never replays events.
package events

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// EventType labels what happened.
type EventType string

const (
	EventOpExecuted EventType = "op_executed"

	// Ledger
	EventTransfer EventType = "transfer"
	EventMint     EventType = "mint"
	EventBurn     EventType = "burn"
	EventApproval EventType = "approval"

	// Access control
	EventOwnershipTransferred EventType = "ownership_transferred"
	EventRoleGranted          EventType = "role_granted"
	EventRoleRevoked          EventType = "role_revoked"

	// Reserve exchange
	EventExchangePurchase EventType = "exchange_purchase"
	EventExchangeSell     EventType = "exchange_sell"
	EventPriceUpdated     EventType = "price_updated"
	EventExchangeStatus   EventType = "exchange_status"
	EventSurplusWithdrawn EventType = "surplus_withdrawn"

	// Staking
	EventStakeCreated EventType = "stake_created"

	// Marketplace
	EventAssetListed    EventType = "asset_listed"
	EventAssetPurchased EventType = "asset_purchased"
	EventAssetDelisted  EventType = "asset_delisted"

	// Mint-authorized sale
	EventSalePurchase     EventType = "sale_purchase"
	EventSalePriceUpdated EventType = "sale_price_updated"

	// Unique items
	EventItemMinted      EventType = "item_minted"
	EventItemTransferred EventType = "item_transferred"
	EventItemApproved    EventType = "item_approved"
)

// Event carries a typed payload emitted after a state change. Data holds
// the literal identifiers and amounts used in the operation.
type Event struct {
	Type      EventType      `json:"type"`
	OpID      string         `json:"op_id"`
	Timestamp int64          `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously.
// Each handler is guarded by panic recovery so a misbehaving subscriber
// cannot crash the engine or abort a settled operation.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("event", string(ev.Type)).Any("panic", r).
						Msg("event handler panicked")
				}
			}()
			h(ev)
		}()
	}
}
