package rpc

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/indexer"
	"github.com/okarvik/reservex/internal/testutil"
	"github.com/okarvik/reservex/wallet"

	// Register the handlers the dispatch tests submit.
	_ "github.com/okarvik/reservex/engine/modules/ledger"
)

func newTestHandler(t *testing.T, f *testutil.Fixture) *Handler {
	t.Helper()
	ix, err := indexer.Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	ix.Attach(f.Emitter)
	return NewHandler(f.Engine, ix, nil, testutil.EngineID)
}

func call(t *testing.T, h *Handler, method string, params any) Response {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return h.Dispatch(Request{JSONRPC: "2.0", ID: 1, Method: method, Params: raw})
}

// TestSendOpExecutes verifies the submit path end to end: a signed
// operation dispatched through the RPC surface mutates state.
func TestSendOpExecutes(t *testing.T) {
	sender, _ := wallet.Generate()
	receiver, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, map[string]map[string]uint64{
		testutil.NativeSymbol: {sender.PubKey(): 100},
	})
	h := newTestHandler(t, f)

	op, err := sender.Transfer(testutil.EngineID, "", receiver.PubKey(), 40, 0)
	require.NoError(t, err)

	resp := call(t, h, "sendOp", op)
	require.Nil(t, resp.Error)
	require.Equal(t, uint64(60), f.Balance(t, testutil.NativeSymbol, sender.PubKey()))

	result := resp.Result.(map[string]string)
	require.Equal(t, op.Hash(), result["op_id"])
}

// TestSendOpRejectsForeignEngine verifies cross-deployment protection at
// the RPC boundary.
func TestSendOpRejectsForeignEngine(t *testing.T) {
	sender, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, nil)
	h := newTestHandler(t, f)

	op, err := sender.Transfer("other-engine", "", f.Owner.PubKey(), 1, 0)
	require.NoError(t, err)

	resp := call(t, h, "sendOp", op)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidParams, resp.Error.Code)
}

// TestSendOpRejectedByEngine verifies handler failures surface as op
// rejections, not internal errors.
func TestSendOpRejectedByEngine(t *testing.T) {
	sender, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, nil)
	h := newTestHandler(t, f)

	op, err := sender.Transfer(testutil.EngineID, "", f.Owner.PubKey(), 999, 0)
	require.NoError(t, err)

	resp := call(t, h, "sendOp", op)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeOpRejected, resp.Error.Code)
}

// TestGetBalance verifies the balance read including the account nonce.
func TestGetBalance(t *testing.T) {
	holder, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, map[string]map[string]uint64{
		testutil.NativeSymbol: {holder.PubKey(): 777},
	})
	h := newTestHandler(t, f)

	resp := call(t, h, "getBalance", map[string]string{"address": holder.PubKey()})
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	require.Equal(t, uint64(777), result["balance"])
	require.Equal(t, testutil.NativeSymbol, result["token"])

	resp = call(t, h, "getBalance", map[string]string{})
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeInvalidParams, resp.Error.Code)
}

// TestGetReserveAndSale verifies the singleton reads.
func TestGetReserveAndSale(t *testing.T) {
	f := testutil.NewFixture(t, 100, nil)
	h := newTestHandler(t, f)

	resp := call(t, h, "getReserve", nil)
	require.Nil(t, resp.Error)
	reserve := resp.Result.(*core.ReserveState)
	require.Equal(t, uint64(100), reserve.BuyPrice)
	require.Equal(t, uint64(98), reserve.SellPrice)
	require.True(t, reserve.Active)

	resp = call(t, h, "getSale", nil)
	require.Nil(t, resp.Error)
	sale := resp.Result.(*core.SaleState)
	require.Equal(t, core.DefaultSaleTokenPrice, sale.TokenPrice)
}

// TestGetStakesAndHasRole verifies the remaining state reads.
func TestGetStakesAndHasRole(t *testing.T) {
	f := testutil.NewFixture(t, 100, nil)
	h := newTestHandler(t, f)

	resp := call(t, h, "hasRole", map[string]string{
		"role": core.RoleMinter, "address": core.SaleAccount,
	})
	require.Nil(t, resp.Error)
	require.Equal(t, true, resp.Result.(map[string]any)["granted"])

	resp = call(t, h, "getStakes", map[string]string{"address": f.Owner.PubKey()})
	require.Nil(t, resp.Error)
}

func TestMethodNotFound(t *testing.T) {
	f := testutil.NewFixture(t, 100, nil)
	h := newTestHandler(t, f)

	resp := call(t, h, "fooBar", nil)
	require.NotNil(t, resp.Error)
	require.Equal(t, CodeMethodNotFound, resp.Error.Code)
}
