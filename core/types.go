package core

import "github.com/okarvik/reservex/crypto"

// PriceScale converts payment units to whole ledger units. Prices are
// quoted as payment units per whole unit; kept as an explicit factor so
// decimal scaling can be changed in one place.
const PriceScale uint64 = 1

// SellDiscountNum/SellDiscountDen fix the spread between the buy price
// and the derived sell price: sellPrice = buyPrice * 98 / 100.
const (
	SellDiscountNum uint64 = 98
	SellDiscountDen uint64 = 100
)

// RoleMinter is the role that authorizes minting ledger balance without
// being the owner.
const RoleMinter = "minter"

// Account holds a participant's operation-replay nonce. Balances live in
// per-token rows (see State.GetBalance) so the native ledger token and
// foreign payment tokens share one store.
// Address is the hex-encoded ed25519 public key.
type Account struct {
	Address string `json:"address"`
	Nonce   uint64 `json:"nonce"`
}

// Token describes one fungible token tracked by the ledger.
// TotalSupply always equals the sum of all balance rows for the symbol.
type Token struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	TotalSupply uint64 `json:"total_supply"`
}

// ReserveState holds the exchange's bonding parameters. The custodied
// reserve itself is the exchange module account's payment-token balance;
// it is not duplicated here so there is a single source of truth.
type ReserveState struct {
	BuyPrice  uint64 `json:"buy_price"`
	SellPrice uint64 `json:"sell_price"` // always buyPrice*98/100
	Active    bool   `json:"active"`
}

// SaleState holds the fixed-price mint-authorized sale parameters.
type SaleState struct {
	TokenPrice uint64 `json:"token_price"` // payment units per whole token
	Treasury   string `json:"treasury"`    // payment proceeds destination
}

// StakePosition is one time-locked stake. Positions are append-only and
// ordered by creation; ID is the ordinal within the owning account.
type StakePosition struct {
	ID              uint64 `json:"id"`
	Amount          uint64 `json:"amount"`
	DurationSeconds uint64 `json:"duration_seconds"`
	StartTimestamp  int64  `json:"start_timestamp"`
}

// ListingStatus tracks a listing through its lifecycle. Sold and Delisted
// are terminal; there is no reactivation.
type ListingStatus string

const (
	ListingActive   ListingStatus = "active"
	ListingSold     ListingStatus = "sold"
	ListingDelisted ListingStatus = "delisted"
)

// ListingKind distinguishes fungible-described listings from listings of
// unique items held in escrow.
type ListingKind string

const (
	ListingAsset ListingKind = "asset" // described good, settled by payment only
	ListingItem  ListingKind = "item"  // unique item, custody moves at settlement
)

// Listing is a seller's fixed-price sale offer. IDs are assigned
// sequentially from 0 and never reused. Price is zeroed on settlement so
// repeat queries observe a cleared record.
type Listing struct {
	ID        uint64        `json:"id"`
	Kind      ListingKind   `json:"kind"`
	Seller    string        `json:"seller"`
	Name      string        `json:"name"`
	Category  string        `json:"category,omitempty"`
	ItemID    string        `json:"item_id,omitempty"` // set for ListingItem
	Price     uint64        `json:"price"`
	Status    ListingStatus `json:"status"`
	CreatedAt int64         `json:"created_at"`
}

// Item is a uniquely-identified asset with single-owner custody.
// Approved names an operator allowed to take custody (cleared on every
// transfer, ERC-721 style).
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Owner    string `json:"owner"`
	Approved string `json:"approved,omitempty"`
	MintedAt int64  `json:"minted_at"`
}

// Meta is the single versioned structure holding engine-level fields, so
// a future migration is a pure transform of one record.
type Meta struct {
	EngineID     string `json:"engine_id"`
	Owner        string `json:"owner"`
	Initialized  bool   `json:"initialized"`
	NativeToken  string `json:"native_token"`  // ledger token symbol
	PaymentToken string `json:"payment_token"` // foreign stable unit symbol
}

// ModuleAddress derives the well-known ledger account an engine module
// uses for custody. 40 hex chars, disjoint from user addresses (which are
// full 64-char pubkeys).
func ModuleAddress(name string) string {
	return crypto.ShortAddress([]byte("module:" + name))
}

// Custody accounts for the built-in modules.
var (
	ExchangeAccount = ModuleAddress("exchange")
	StakingAccount  = ModuleAddress("staking")
	MarketAccount   = ModuleAddress("market")
	SaleAccount     = ModuleAddress("sale")
)
