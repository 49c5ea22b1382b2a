package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okarvik/reservex/crypto"
)

// OpType identifies the kind of state mutation an operation performs.
type OpType string

const (
	// Ledger
	OpTransfer     OpType = "transfer"
	OpMint         OpType = "mint"
	OpBurn         OpType = "burn"
	OpApprove      OpType = "approve"
	OpTransferFrom OpType = "transfer_from"

	// Access control
	OpTransferOwnership OpType = "transfer_ownership"
	OpGrantRole         OpType = "grant_role"
	OpRevokeRole        OpType = "revoke_role"

	// Reserve exchange
	OpExchangePurchase OpType = "exchange_purchase"
	OpExchangeSell     OpType = "exchange_sell"
	OpSetBuyPrice      OpType = "set_buy_price"
	OpSetActive        OpType = "set_active"
	OpWithdrawSurplus  OpType = "withdraw_surplus"

	// Staking
	OpStake OpType = "stake"

	// Marketplace
	OpListAsset      OpType = "list_asset"
	OpListItem       OpType = "list_item"
	OpMarketPurchase OpType = "market_purchase"
	OpDelist         OpType = "delist"

	// Mint-authorized sale
	OpSalePurchase    OpType = "sale_purchase"
	OpUpdateSalePrice OpType = "update_sale_price"

	// Unique items
	OpMintItem     OpType = "mint_item"
	OpTransferItem OpType = "transfer_item"
	OpApproveItem  OpType = "approve_item"
)

// Operation is the atomic unit of work submitted to the engine.
// From holds the caller's full hex-encoded ed25519 public key.
// Signature covers all fields except Signature itself.
type Operation struct {
	ID        string          `json:"id"`
	EngineID  string          `json:"engine_id"`
	Type      OpType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"`
}

// signingBody holds the fields that are covered by the signature.
type signingBody struct {
	EngineID  string          `json:"engine_id"`
	Type      OpType          `json:"type"`
	From      string          `json:"from"`
	Nonce     uint64          `json:"nonce"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Hash returns a deterministic hash of the operation (sans Signature).
// Returns an empty string if marshalling fails (which cannot happen in practice).
func (op *Operation) Hash() string {
	body := signingBody{
		EngineID:  op.EngineID,
		Type:      op.Type,
		From:      op.From,
		Nonce:     op.Nonce,
		Timestamp: op.Timestamp,
		Payload:   op.Payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return ""
	}
	return crypto.Hash(data)
}

// Sign computes the signature and sets ID.
func (op *Operation) Sign(priv crypto.PrivateKey) {
	hash := op.Hash()
	op.Signature = crypto.Sign(priv, []byte(hash))
	op.ID = hash
}

// Verify checks the signature and that From is a valid public key.
func (op *Operation) Verify() error {
	if op.From == "" {
		return errors.New("missing from field")
	}
	pub, err := crypto.PubKeyFromHex(op.From)
	if err != nil {
		return fmt.Errorf("invalid from (must be ed25519 pubkey hex): %w", err)
	}
	return crypto.Verify(pub, []byte(op.Hash()), op.Signature)
}

// NewOperation creates an unsigned operation with the current timestamp.
func NewOperation(engineID string, typ OpType, from string, nonce uint64, payload any) (*Operation, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Operation{
		EngineID:  engineID,
		Type:      typ,
		From:      from,
		Nonce:     nonce,
		Timestamp: time.Now().Unix(),
		Payload:   raw,
	}, nil
}

// ---- Payload types ----

// TransferPayload moves ledger balance between accounts.
type TransferPayload struct {
	Token  string `json:"token,omitempty"` // empty → native token
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// MintPayload creates new balance. Caller must be the owner or hold the
// minter role.
type MintPayload struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// BurnPayload destroys balance held by the caller.
type BurnPayload struct {
	Amount uint64 `json:"amount"`
}

// ApprovePayload sets a spender allowance over the caller's balance.
type ApprovePayload struct {
	Token   string `json:"token,omitempty"`
	Spender string `json:"spender"`
	Amount  uint64 `json:"amount"`
}

// TransferFromPayload spends a previously granted allowance.
type TransferFromPayload struct {
	Token  string `json:"token,omitempty"`
	Owner  string `json:"owner"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// TransferOwnershipPayload hands the owner seat to a new account.
type TransferOwnershipPayload struct {
	NewOwner string `json:"new_owner"`
}

// RolePayload grants or revokes a named role.
type RolePayload struct {
	Role    string `json:"role"`
	Account string `json:"account"`
}

// ExchangePurchasePayload buys newly minted ledger balance with payment units.
type ExchangePurchasePayload struct {
	PaymentAmount uint64 `json:"payment_amount"`
}

// ExchangeSellPayload redeems ledger balance against the reserve.
type ExchangeSellPayload struct {
	Amount uint64 `json:"amount"`
}

// SetBuyPricePayload updates the buy price; the sell price is rederived.
type SetBuyPricePayload struct {
	Price uint64 `json:"price"`
}

// SetActivePayload toggles the exchange's purchase facility.
type SetActivePayload struct {
	Active bool `json:"active"`
}

// StakePayload locks caller balance for a duration.
type StakePayload struct {
	Amount          uint64 `json:"amount"`
	DurationSeconds uint64 `json:"duration_seconds"`
}

// ListAssetPayload lists a described fungible good at a fixed price.
type ListAssetPayload struct {
	Name     string `json:"name"`
	Price    uint64 `json:"price"`
	Category string `json:"category"`
}

// ListItemPayload lists a unique item; the item is escrowed at listing time.
type ListItemPayload struct {
	ItemID string `json:"item_id"`
	Price  uint64 `json:"price"`
}

// MarketPurchasePayload settles an active listing.
type MarketPurchasePayload struct {
	ListingID uint64 `json:"listing_id"`
}

// DelistPayload withdraws an active listing; seller only.
type DelistPayload struct {
	ListingID uint64 `json:"listing_id"`
}

// SalePurchasePayload buys tokenAmount whole tokens at the fixed sale price.
type SalePurchasePayload struct {
	TokenAmount uint64 `json:"token_amount"`
}

// UpdateSalePricePayload changes the fixed sale price; owner only.
type UpdateSalePricePayload struct {
	Price uint64 `json:"price"`
}

// MintItemPayload creates a unique item.
type MintItemPayload struct {
	Name string `json:"name"`
	To   string `json:"to,omitempty"` // empty → caller
}

// TransferItemPayload moves item custody to a new owner.
type TransferItemPayload struct {
	ItemID string `json:"item_id"`
	To     string `json:"to"`
}

// ApproveItemPayload names an operator allowed to take custody of the item.
type ApproveItemPayload struct {
	ItemID   string `json:"item_id"`
	Operator string `json:"operator"`
}
