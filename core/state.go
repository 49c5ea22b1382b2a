package core

// State is the full engine state interface. Implementations must be
// snapshot-able so the executor can roll back failed operations.
type State interface {
	// Accounts (nonce bookkeeping; missing accounts read as zero-value)
	GetAccount(address string) (*Account, error)
	SetAccount(account *Account) error

	// Fungible balances, keyed (token symbol, address). Missing rows read
	// as zero; zero balances persist once written.
	GetBalance(token, address string) (uint64, error)
	SetBalance(token, address string, amount uint64) error
	// ForEachBalance walks every holder of the token in address order.
	ForEachBalance(token string, fn func(address string, amount uint64) error) error

	// Allowances, keyed (token, owner, spender).
	GetAllowance(token, owner, spender string) (uint64, error)
	SetAllowance(token, owner, spender string, amount uint64) error

	// Token registry (total-supply counters)
	GetToken(symbol string) (*Token, error)
	SetToken(t *Token) error

	// Role grants
	HasRole(role, address string) (bool, error)
	SetRole(role, address string, granted bool) error

	// Singletons
	GetMeta() (*Meta, error) // zero-value when unset
	SetMeta(m *Meta) error
	GetReserve() (*ReserveState, error)
	SetReserve(r *ReserveState) error
	GetSale() (*SaleState, error)
	SetSale(s *SaleState) error

	// Listings; NextListingID hands out sequential ids starting at 0 and
	// participates in snapshot/rollback like any other write.
	GetListing(id uint64) (*Listing, error)
	SetListing(l *Listing) error
	NextListingID() (uint64, error)

	// Stake positions, ordered by creation per account.
	GetStakes(address string) ([]StakePosition, error)
	SetStakes(address string, positions []StakePosition) error

	// Unique items
	GetItem(id string) (*Item, error)
	SetItem(item *Item) error

	// Snapshot / rollback / commit
	Snapshot() (int, error)
	RevertToSnapshot(id int) error
	// ComputeRoot returns the deterministic state root from the current
	// write buffer without flushing.
	ComputeRoot() string
	// Commit flushes the write buffer to the underlying DB and clears it.
	Commit() error
}
