package core

// TokenConfig names one fungible token created at initialization.
type TokenConfig struct {
	Name   string `json:"name" yaml:"name"`
	Symbol string `json:"symbol" yaml:"symbol"`
}

// Genesis is the one-time initialization input. The engine refuses all
// operations until it has been applied, and refuses to apply it twice.
type Genesis struct {
	EngineID     string      `json:"engine_id" yaml:"engine_id"`
	Owner        string      `json:"owner" yaml:"owner"` // pubkey hex
	NativeToken  TokenConfig `json:"native_token" yaml:"native_token"`
	PaymentToken TokenConfig `json:"payment_token" yaml:"payment_token"`

	// BuyPrice is the exchange's initial buy price in payment units per
	// whole native unit. The sell price is derived (98/100).
	BuyPrice uint64 `json:"buy_price" yaml:"buy_price"`

	// SaleTokenPrice is the mint-authorized sale's fixed price; 0 selects
	// the default of 8600.
	SaleTokenPrice uint64 `json:"sale_token_price" yaml:"sale_token_price"`

	// Treasury receives sale proceeds; empty selects the owner.
	Treasury string `json:"treasury,omitempty" yaml:"treasury"`

	// Alloc seeds balances: token symbol → address → amount. Allocated
	// amounts count toward the token's total supply.
	Alloc map[string]map[string]uint64 `json:"alloc,omitempty" yaml:"alloc"`
}

// DefaultSaleTokenPrice mirrors the price the sale was first deployed with.
const DefaultSaleTokenPrice uint64 = 8600
