package market

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/events"
	"github.com/okarvik/reservex/internal/testutil"
	"github.com/okarvik/reservex/wallet"

	// Register the item handlers used by the escrow tests.
	_ "github.com/okarvik/reservex/engine/modules/item"
)

// TestListAssetSequentialIDs verifies that listing ids are handed out in
// creation order starting from zero.
func TestListAssetSequentialIDs(t *testing.T) {
	seller, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, nil)

	f.MustExec(t, seller, core.OpListAsset, core.ListAssetPayload{
		Name: "iron ore", Price: 40, Category: "materials",
	})
	f.MustExec(t, seller, core.OpListAsset, core.ListAssetPayload{
		Name: "oak planks", Price: 25, Category: "materials",
	})

	first, err := f.Engine.State().GetListing(0)
	require.NoError(t, err)
	require.Equal(t, "iron ore", first.Name)
	require.Equal(t, core.ListingActive, first.Status)
	require.Equal(t, uint64(40), first.Price)
	require.Equal(t, seller.PubKey(), first.Seller)

	second, err := f.Engine.State().GetListing(1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), second.ID)
}

func TestListAssetValidation(t *testing.T) {
	seller, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, nil)

	err := f.Exec(t, seller, core.OpListAsset, core.ListAssetPayload{Name: "x", Price: 0})
	require.ErrorIs(t, err, core.ErrInvalidAmount)

	err = f.Exec(t, seller, core.OpListAsset, core.ListAssetPayload{Price: 10})
	require.ErrorContains(t, err, "name required")
}

// TestPurchaseSettlesListing verifies the settlement path: payment moves
// from buyer to seller via allowance, and the listing closes with a zero
// recorded price.
func TestPurchaseSettlesListing(t *testing.T) {
	seller, _ := wallet.Generate()
	buyer, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, map[string]map[string]uint64{
		testutil.PaymentSymbol: {buyer.PubKey(): 1000},
	})

	f.MustExec(t, seller, core.OpListAsset, core.ListAssetPayload{Name: "iron ore", Price: 250})
	f.MustExec(t, buyer, core.OpApprove, core.ApprovePayload{
		Token: testutil.PaymentSymbol, Spender: core.MarketAccount, Amount: 250,
	})
	f.MustExec(t, buyer, core.OpMarketPurchase, core.MarketPurchasePayload{ListingID: 0})

	require.Equal(t, uint64(250), f.Balance(t, testutil.PaymentSymbol, seller.PubKey()))
	require.Equal(t, uint64(750), f.Balance(t, testutil.PaymentSymbol, buyer.PubKey()))

	listing, err := f.Engine.State().GetListing(0)
	require.NoError(t, err)
	require.Equal(t, core.ListingSold, listing.Status)
	require.Zero(t, listing.Price)

	// A settled listing cannot be bought again.
	err = f.Exec(t, buyer, core.OpMarketPurchase, core.MarketPurchasePayload{ListingID: 0})
	require.ErrorIs(t, err, core.ErrAlreadySettled)
}

// TestPurchaseWithoutAllowance verifies that a failed payment leaves the
// listing open.
func TestPurchaseWithoutAllowance(t *testing.T) {
	seller, _ := wallet.Generate()
	buyer, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, map[string]map[string]uint64{
		testutil.PaymentSymbol: {buyer.PubKey(): 1000},
	})

	f.MustExec(t, seller, core.OpListAsset, core.ListAssetPayload{Name: "iron ore", Price: 250})
	err := f.Exec(t, buyer, core.OpMarketPurchase, core.MarketPurchasePayload{ListingID: 0})
	require.ErrorIs(t, err, core.ErrInsufficientAllowance)

	listing, gerr := f.Engine.State().GetListing(0)
	require.NoError(t, gerr)
	require.Equal(t, core.ListingActive, listing.Status)
	require.Equal(t, uint64(250), listing.Price)
	require.Equal(t, uint64(1000), f.Balance(t, testutil.PaymentSymbol, buyer.PubKey()))
}

func TestPurchaseUnknownListing(t *testing.T) {
	buyer, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, nil)

	err := f.Exec(t, buyer, core.OpMarketPurchase, core.MarketPurchasePayload{ListingID: 42})
	require.ErrorIs(t, err, core.ErrListingNotFound)
}

// TestDelist verifies the delist gate order: missing listing, settled
// listing, then seller identity.
func TestDelist(t *testing.T) {
	seller, _ := wallet.Generate()
	stranger, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, nil)

	err := f.Exec(t, seller, core.OpDelist, core.DelistPayload{ListingID: 7})
	require.ErrorIs(t, err, core.ErrListingNotFound)

	f.MustExec(t, seller, core.OpListAsset, core.ListAssetPayload{Name: "iron ore", Price: 40})

	err = f.Exec(t, stranger, core.OpDelist, core.DelistPayload{ListingID: 0})
	require.ErrorIs(t, err, core.ErrNotSeller)

	f.MustExec(t, seller, core.OpDelist, core.DelistPayload{ListingID: 0})
	listing, gerr := f.Engine.State().GetListing(0)
	require.NoError(t, gerr)
	require.Equal(t, core.ListingDelisted, listing.Status)
	require.Zero(t, listing.Price)

	// Delisted beats not-seller once settled.
	err = f.Exec(t, stranger, core.OpDelist, core.DelistPayload{ListingID: 0})
	require.ErrorIs(t, err, core.ErrAlreadySettled)
	err = f.Exec(t, seller, core.OpDelist, core.DelistPayload{ListingID: 0})
	require.ErrorIs(t, err, core.ErrAlreadySettled)
}

// mintItemTo mints a unique item to w and returns its id, captured from
// the mint event.
func mintItemTo(t *testing.T, f *testutil.Fixture, w *wallet.Wallet, name string) string {
	t.Helper()
	var itemID string
	f.Emitter.Subscribe(events.EventItemMinted, func(ev events.Event) {
		itemID, _ = ev.Data["item_id"].(string)
	})
	f.MustExec(t, f.Owner, core.OpMintItem, core.MintItemPayload{Name: name, To: w.PubKey()})
	require.NotEmpty(t, itemID)
	return itemID
}

// TestListItemEscrow verifies that listing a unique item requires prior
// market approval and moves custody into escrow.
func TestListItemEscrow(t *testing.T) {
	seller, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, nil)
	itemID := mintItemTo(t, f, seller, "ancient blade")

	err := f.Exec(t, seller, core.OpListItem, core.ListItemPayload{ItemID: itemID, Price: 500})
	require.ErrorIs(t, err, core.ErrTransferNotApproved)

	f.MustExec(t, seller, core.OpApproveItem, core.ApproveItemPayload{
		ItemID: itemID, Operator: core.MarketAccount,
	})
	f.MustExec(t, seller, core.OpListItem, core.ListItemPayload{ItemID: itemID, Price: 500})

	it, gerr := f.Engine.State().GetItem(itemID)
	require.NoError(t, gerr)
	require.Equal(t, core.MarketAccount, it.Owner)
	require.Empty(t, it.Approved)

	listing, gerr := f.Engine.State().GetListing(0)
	require.NoError(t, gerr)
	require.Equal(t, core.ListingItem, listing.Kind)
	require.Equal(t, itemID, listing.ItemID)
	require.Equal(t, "ancient blade", listing.Name)
}

// TestItemPurchaseTransfersCustody verifies that buying an item listing
// pays the seller and hands the escrowed item to the buyer.
func TestItemPurchaseTransfersCustody(t *testing.T) {
	seller, _ := wallet.Generate()
	buyer, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, map[string]map[string]uint64{
		testutil.PaymentSymbol: {buyer.PubKey(): 600},
	})
	itemID := mintItemTo(t, f, seller, "ancient blade")

	f.MustExec(t, seller, core.OpApproveItem, core.ApproveItemPayload{
		ItemID: itemID, Operator: core.MarketAccount,
	})
	f.MustExec(t, seller, core.OpListItem, core.ListItemPayload{ItemID: itemID, Price: 500})
	f.MustExec(t, buyer, core.OpApprove, core.ApprovePayload{
		Token: testutil.PaymentSymbol, Spender: core.MarketAccount, Amount: 500,
	})
	f.MustExec(t, buyer, core.OpMarketPurchase, core.MarketPurchasePayload{ListingID: 0})

	it, err := f.Engine.State().GetItem(itemID)
	require.NoError(t, err)
	require.Equal(t, buyer.PubKey(), it.Owner)
	require.Equal(t, uint64(500), f.Balance(t, testutil.PaymentSymbol, seller.PubKey()))
}

// TestItemDelistReturnsCustody verifies that withdrawing an item listing
// hands the escrowed item back to the seller.
func TestItemDelistReturnsCustody(t *testing.T) {
	seller, _ := wallet.Generate()
	f := testutil.NewFixture(t, 100, nil)
	itemID := mintItemTo(t, f, seller, "ancient blade")

	f.MustExec(t, seller, core.OpApproveItem, core.ApproveItemPayload{
		ItemID: itemID, Operator: core.MarketAccount,
	})
	f.MustExec(t, seller, core.OpListItem, core.ListItemPayload{ItemID: itemID, Price: 500})
	f.MustExec(t, seller, core.OpDelist, core.DelistPayload{ListingID: 0})

	it, err := f.Engine.State().GetItem(itemID)
	require.NoError(t, err)
	require.Equal(t, seller.PubKey(), it.Owner)
}
