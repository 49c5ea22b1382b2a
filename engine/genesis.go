package engine

import (
	"errors"
	"fmt"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/crypto"
)

// Initialize applies the genesis exactly once: owner seat, token
// registry, balance allocations, reserve prices, sale parameters, and
// the minter grant for the sale module. A second call fails with
// core.ErrAlreadyInitialized and changes nothing.
func (e *Engine) Initialize(gen *core.Genesis) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	meta, err := e.state.GetMeta()
	if err != nil {
		return fmt.Errorf("get meta: %w", err)
	}
	if meta.Initialized {
		return core.ErrAlreadyInitialized
	}

	if gen.EngineID == "" {
		return errors.New("genesis: engine_id required")
	}
	if _, err := crypto.PubKeyFromHex(gen.Owner); err != nil {
		return fmt.Errorf("genesis: invalid owner: %w", err)
	}
	if gen.NativeToken.Symbol == "" || gen.PaymentToken.Symbol == "" {
		return errors.New("genesis: native and payment token symbols required")
	}
	if gen.NativeToken.Symbol == gen.PaymentToken.Symbol {
		return errors.New("genesis: native and payment tokens must differ")
	}
	if gen.BuyPrice == 0 {
		return fmt.Errorf("genesis: buy price: %w", core.ErrInvalidAmount)
	}

	snapID, err := e.state.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := e.applyGenesis(gen); err != nil {
		if revertErr := e.state.RevertToSnapshot(snapID); revertErr != nil {
			return fmt.Errorf("revert after genesis failure: %w (revert: %v)", err, revertErr)
		}
		return err
	}
	if err := e.state.Commit(); err != nil {
		return fmt.Errorf("commit genesis: %w", err)
	}

	e.log.Info().Str("engine_id", gen.EngineID).Str("owner", gen.Owner).
		Uint64("buy_price", gen.BuyPrice).Msg("engine initialized")
	return nil
}

func (e *Engine) applyGenesis(gen *core.Genesis) error {
	salePrice := gen.SaleTokenPrice
	if salePrice == 0 {
		salePrice = core.DefaultSaleTokenPrice
	}
	treasury := gen.Treasury
	if treasury == "" {
		treasury = gen.Owner
	}

	meta := &core.Meta{
		EngineID:     gen.EngineID,
		Owner:        gen.Owner,
		Initialized:  true,
		NativeToken:  gen.NativeToken.Symbol,
		PaymentToken: gen.PaymentToken.Symbol,
	}
	if err := e.state.SetMeta(meta); err != nil {
		return err
	}

	for _, tc := range []core.TokenConfig{gen.NativeToken, gen.PaymentToken} {
		if err := e.state.SetToken(&core.Token{Symbol: tc.Symbol, Name: tc.Name}); err != nil {
			return err
		}
	}

	// Seed balances; allocations count toward supply so the conservation
	// invariant holds from the first operation.
	for symbol, alloc := range gen.Alloc {
		tok, err := e.state.GetToken(symbol)
		if err != nil {
			return fmt.Errorf("alloc references unknown token %q: %w", symbol, err)
		}
		for addr, amount := range alloc {
			bal, err := e.state.GetBalance(symbol, addr)
			if err != nil {
				return err
			}
			if err := e.state.SetBalance(symbol, addr, bal+amount); err != nil {
				return err
			}
			tok.TotalSupply += amount
		}
		if err := e.state.SetToken(tok); err != nil {
			return err
		}
	}

	reserve := &core.ReserveState{
		BuyPrice:  gen.BuyPrice,
		SellPrice: gen.BuyPrice * core.SellDiscountNum / core.SellDiscountDen,
		Active:    true,
	}
	if err := e.state.SetReserve(reserve); err != nil {
		return err
	}

	if err := e.state.SetSale(&core.SaleState{TokenPrice: salePrice, Treasury: treasury}); err != nil {
		return err
	}

	// The sale module mints through this grant rather than through the
	// owner seat.
	return e.state.SetRole(core.RoleMinter, core.SaleAccount, true)
}
