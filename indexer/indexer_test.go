package indexer

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/okarvik/reservex/events"
)

func openTestIndexer(t *testing.T) (*Indexer, *events.Emitter) {
	t.Helper()
	ix, err := Open(":memory:", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })

	em := events.NewEmitter()
	ix.Attach(em)
	return ix, em
}

// TestListingLifecycle verifies that the denormalized listings table
// tracks creation and settlement.
func TestListingLifecycle(t *testing.T) {
	ix, em := openTestIndexer(t)

	em.Emit(events.Event{
		Type: events.EventAssetListed, OpID: "op1", Timestamp: 100,
		Data: map[string]any{
			"listing_id": uint64(0), "seller": "alice", "name": "iron ore",
			"category": "materials", "price": uint64(40),
		},
	})
	em.Emit(events.Event{
		Type: events.EventAssetListed, OpID: "op2", Timestamp: 101,
		Data: map[string]any{
			"listing_id": uint64(1), "seller": "alice", "name": "oak planks",
			"price": uint64(25),
		},
	})
	em.Emit(events.Event{
		Type: events.EventAssetPurchased, OpID: "op3", Timestamp: 102,
		Data: map[string]any{"listing_id": uint64(0), "buyer": "bob", "price": uint64(40)},
	})

	active, err := ix.ActiveListings()
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, uint64(1), active[0].ID)

	all, err := ix.ListingsBySeller("alice")
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Newest first.
	require.Equal(t, uint64(1), all[0].ID)
	require.Equal(t, "sold", all[1].Status)
	require.Zero(t, all[1].Price)
}

// TestDelistedListing verifies the delist transition.
func TestDelistedListing(t *testing.T) {
	ix, em := openTestIndexer(t)

	em.Emit(events.Event{
		Type: events.EventAssetListed, OpID: "op1", Timestamp: 100,
		Data: map[string]any{
			"listing_id": uint64(0), "seller": "alice", "name": "iron ore", "price": uint64(40),
		},
	})
	em.Emit(events.Event{
		Type: events.EventAssetDelisted, OpID: "op2", Timestamp: 101,
		Data: map[string]any{"listing_id": uint64(0)},
	})

	rows, err := ix.ListingsBySeller("alice")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "delisted", rows[0].Status)
}

// TestStakeRows verifies per-owner stake queries in position order.
func TestStakeRows(t *testing.T) {
	ix, em := openTestIndexer(t)

	em.Emit(events.Event{
		Type: events.EventStakeCreated, OpID: "op1", Timestamp: 100,
		Data: map[string]any{
			"staker": "alice", "position_id": uint64(0),
			"amount": uint64(100), "duration_seconds": uint64(60),
		},
	})
	em.Emit(events.Event{
		Type: events.EventStakeCreated, OpID: "op2", Timestamp: 200,
		Data: map[string]any{
			"staker": "alice", "position_id": uint64(1),
			"amount": uint64(250), "duration_seconds": uint64(3600),
		},
	})

	rows, err := ix.StakesByOwner("alice")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, uint64(100), rows[0].Amount)
	require.Equal(t, uint64(250), rows[1].Amount)
	require.Equal(t, int64(200), rows[1].StartTimestamp)
}

// TestItemOwnership verifies that item rows follow transfers and market
// settlements.
func TestItemOwnership(t *testing.T) {
	ix, em := openTestIndexer(t)

	em.Emit(events.Event{
		Type: events.EventItemMinted, OpID: "op1", Timestamp: 100,
		Data: map[string]any{"item_id": "abc", "name": "ancient blade", "owner": "alice"},
	})
	em.Emit(events.Event{
		Type: events.EventItemTransferred, OpID: "op2", Timestamp: 101,
		Data: map[string]any{"item_id": "abc", "from": "alice", "to": "bob"},
	})

	rows, err := ix.ItemsByOwner("bob")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "ancient blade", rows[0].Name)

	em.Emit(events.Event{
		Type: events.EventAssetPurchased, OpID: "op3", Timestamp: 102,
		Data: map[string]any{"listing_id": uint64(0), "buyer": "carol", "item_id": "abc", "price": uint64(5)},
	})
	rows, err = ix.ItemsByOwner("carol")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

// TestEventCount verifies the raw event log fills up.
func TestEventCount(t *testing.T) {
	ix, em := openTestIndexer(t)

	em.Emit(events.Event{Type: events.EventTransfer, OpID: "op1", Timestamp: 1, Data: map[string]any{}})
	em.Emit(events.Event{Type: events.EventTransfer, OpID: "op2", Timestamp: 2, Data: map[string]any{}})
	em.Emit(events.Event{Type: events.EventMint, OpID: "op3", Timestamp: 3, Data: map[string]any{}})

	n, err := ix.EventCount(events.EventTransfer)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	n, err = ix.EventCount("")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}
