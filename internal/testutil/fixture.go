package testutil

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/engine"
	"github.com/okarvik/reservex/events"
	"github.com/okarvik/reservex/wallet"
)

// Shared fixture constants.
const (
	EngineID      = "reservex-test"
	NativeSymbol  = "RXT"
	PaymentSymbol = "USDX"

	// FixedNow is the frozen execution timestamp used by fixtures.
	FixedNow int64 = 1_700_000_000
)

// Fixture bundles an initialized engine with the signing wallets tests
// need. Nonces are tracked per account so tests can submit operations
// without bookkeeping.
type Fixture struct {
	Engine  *engine.Engine
	Emitter *events.Emitter
	Owner   *wallet.Wallet

	nonces map[string]uint64
}

// NewFixture creates an initialized in-memory engine. alloc seeds
// balances (token symbol → address → amount); buyPrice sets the
// exchange's initial buy price.
func NewFixture(t *testing.T, buyPrice uint64, alloc map[string]map[string]uint64) *Fixture {
	t.Helper()

	owner, err := wallet.Generate()
	if err != nil {
		t.Fatalf("generate owner: %v", err)
	}

	emitter := events.NewEmitter()
	eng := engine.New(NewStateDB(), emitter, zerolog.Nop())
	eng.Now = func() int64 { return FixedNow }

	gen := &core.Genesis{
		EngineID:     EngineID,
		Owner:        owner.PubKey(),
		NativeToken:  core.TokenConfig{Name: "Reserve Exchange Token", Symbol: NativeSymbol},
		PaymentToken: core.TokenConfig{Name: "Settlement Dollar", Symbol: PaymentSymbol},
		BuyPrice:     buyPrice,
		Alloc:        alloc,
	}
	if err := eng.Initialize(gen); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	return &Fixture{
		Engine:  eng,
		Emitter: emitter,
		Owner:   owner,
		nonces:  make(map[string]uint64),
	}
}

// Exec builds, signs, and executes one operation from w, advancing the
// tracked nonce only on success.
func (f *Fixture) Exec(t *testing.T, w *wallet.Wallet, typ core.OpType, payload any) error {
	t.Helper()
	op, err := w.NewOp(EngineID, typ, f.nonces[w.PubKey()], payload)
	if err != nil {
		t.Fatalf("build %s op: %v", typ, err)
	}
	if err := f.Engine.Execute(op); err != nil {
		return err
	}
	f.nonces[w.PubKey()]++
	return nil
}

// MustExec is Exec but fails the test on error.
func (f *Fixture) MustExec(t *testing.T, w *wallet.Wallet, typ core.OpType, payload any) {
	t.Helper()
	if err := f.Exec(t, w, typ, payload); err != nil {
		t.Fatalf("%s: %v", typ, err)
	}
}

// Balance reads a ledger balance, failing the test on error.
func (f *Fixture) Balance(t *testing.T, token, address string) uint64 {
	t.Helper()
	bal, err := f.Engine.State().GetBalance(token, address)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return bal
}

// Supply reads a token's recorded total supply.
func (f *Fixture) Supply(t *testing.T, token string) uint64 {
	t.Helper()
	tok, err := f.Engine.State().GetToken(token)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	return tok.TotalSupply
}
