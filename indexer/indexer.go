// Package indexer maintains a queryable SQLite mirror of settled
// activity. It subscribes to the engine's event stream and records every
// event plus denormalized rows for listings, stakes and items so that
// read APIs do not have to walk raw state.
package indexer

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/okarvik/reservex/events"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq       INTEGER PRIMARY KEY AUTOINCREMENT,
	type      TEXT NOT NULL,
	op_id     TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	data      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);

CREATE TABLE IF NOT EXISTS listings (
	id         INTEGER PRIMARY KEY,
	seller     TEXT NOT NULL,
	name       TEXT NOT NULL,
	category   TEXT NOT NULL DEFAULT '',
	item_id    TEXT NOT NULL DEFAULT '',
	price      INTEGER NOT NULL,
	status     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_seller ON listings(seller);
CREATE INDEX IF NOT EXISTS idx_listings_status ON listings(status);

CREATE TABLE IF NOT EXISTS stakes (
	owner            TEXT NOT NULL,
	position         INTEGER NOT NULL,
	amount           INTEGER NOT NULL,
	duration_seconds INTEGER NOT NULL,
	start_timestamp  INTEGER NOT NULL,
	PRIMARY KEY (owner, position)
);

CREATE TABLE IF NOT EXISTS items (
	id        TEXT PRIMARY KEY,
	name      TEXT NOT NULL,
	owner     TEXT NOT NULL,
	minted_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner);
`

// Indexer owns the SQLite handle and the event subscriptions.
type Indexer struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (or creates) the index database at path and applies the
// schema. Use ":memory:" for an ephemeral index.
func Open(path string, logger zerolog.Logger) (*Indexer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	// modernc.org/sqlite serializes through a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply index schema: %w", err)
	}
	return &Indexer{db: db, log: logger.With().Str("component", "indexer").Logger()}, nil
}

// Close releases the database handle.
func (ix *Indexer) Close() error { return ix.db.Close() }

// Attach subscribes the indexer to every event type it records.
func (ix *Indexer) Attach(em *events.Emitter) {
	all := []events.EventType{
		events.EventOpExecuted,
		events.EventTransfer, events.EventMint, events.EventBurn, events.EventApproval,
		events.EventOwnershipTransferred, events.EventRoleGranted, events.EventRoleRevoked,
		events.EventExchangePurchase, events.EventExchangeSell,
		events.EventPriceUpdated, events.EventExchangeStatus, events.EventSurplusWithdrawn,
		events.EventStakeCreated,
		events.EventAssetListed, events.EventAssetPurchased, events.EventAssetDelisted,
		events.EventSalePurchase, events.EventSalePriceUpdated,
		events.EventItemMinted, events.EventItemTransferred, events.EventItemApproved,
	}
	for _, typ := range all {
		em.Subscribe(typ, ix.record)
	}

	em.Subscribe(events.EventAssetListed, ix.onListed)
	em.Subscribe(events.EventAssetPurchased, ix.onSettled("sold"))
	em.Subscribe(events.EventAssetDelisted, ix.onSettled("delisted"))
	em.Subscribe(events.EventStakeCreated, ix.onStake)
	em.Subscribe(events.EventItemMinted, ix.onItemMinted)
	em.Subscribe(events.EventItemTransferred, ix.onItemMoved)
	em.Subscribe(events.EventAssetPurchased, ix.onItemMoved)
}

func (ix *Indexer) record(ev events.Event) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		ix.log.Error().Err(err).Str("type", string(ev.Type)).Msg("encode event data")
		return
	}
	_, err = ix.db.Exec(
		`INSERT INTO events(type, op_id, timestamp, data) VALUES(?, ?, ?, ?)`,
		string(ev.Type), ev.OpID, ev.Timestamp, string(data))
	if err != nil {
		ix.log.Error().Err(err).Str("type", string(ev.Type)).Msg("record event")
	}
}

func (ix *Indexer) onListed(ev events.Event) {
	_, err := ix.db.Exec(
		`INSERT OR REPLACE INTO listings(id, seller, name, category, item_id, price, status, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, 'active', ?)`,
		asUint(ev.Data["listing_id"]), asString(ev.Data["seller"]), asString(ev.Data["name"]),
		asString(ev.Data["category"]), asString(ev.Data["item_id"]),
		asUint(ev.Data["price"]), ev.Timestamp)
	if err != nil {
		ix.log.Error().Err(err).Msg("index listing")
	}
}

func (ix *Indexer) onSettled(status string) events.Handler {
	return func(ev events.Event) {
		_, err := ix.db.Exec(
			`UPDATE listings SET status = ?, price = 0 WHERE id = ?`,
			status, asUint(ev.Data["listing_id"]))
		if err != nil {
			ix.log.Error().Err(err).Str("status", status).Msg("settle listing")
		}
	}
}

func (ix *Indexer) onStake(ev events.Event) {
	_, err := ix.db.Exec(
		`INSERT OR REPLACE INTO stakes(owner, position, amount, duration_seconds, start_timestamp)
		 VALUES(?, ?, ?, ?, ?)`,
		asString(ev.Data["staker"]), asUint(ev.Data["position_id"]),
		asUint(ev.Data["amount"]), asUint(ev.Data["duration_seconds"]), ev.Timestamp)
	if err != nil {
		ix.log.Error().Err(err).Msg("index stake")
	}
}

func (ix *Indexer) onItemMinted(ev events.Event) {
	_, err := ix.db.Exec(
		`INSERT OR REPLACE INTO items(id, name, owner, minted_at) VALUES(?, ?, ?, ?)`,
		asString(ev.Data["item_id"]), asString(ev.Data["name"]),
		asString(ev.Data["owner"]), ev.Timestamp)
	if err != nil {
		ix.log.Error().Err(err).Msg("index item")
	}
}

func (ix *Indexer) onItemMoved(ev events.Event) {
	id := asString(ev.Data["item_id"])
	if id == "" {
		return
	}
	to := asString(ev.Data["to"])
	if to == "" {
		to = asString(ev.Data["buyer"])
	}
	if to == "" {
		return
	}
	if _, err := ix.db.Exec(`UPDATE items SET owner = ? WHERE id = ?`, to, id); err != nil {
		ix.log.Error().Err(err).Msg("update item owner")
	}
}

// ListingRow mirrors one marketplace listing.
type ListingRow struct {
	ID        uint64 `json:"id"`
	Seller    string `json:"seller"`
	Name      string `json:"name"`
	Category  string `json:"category"`
	ItemID    string `json:"item_id,omitempty"`
	Price     uint64 `json:"price"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

// ListingsBySeller returns every listing the seller ever created, newest
// first.
func (ix *Indexer) ListingsBySeller(seller string) ([]ListingRow, error) {
	rows, err := ix.db.Query(
		`SELECT id, seller, name, category, item_id, price, status, created_at
		 FROM listings WHERE seller = ? ORDER BY id DESC`, seller)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListings(rows)
}

// ActiveListings returns every open listing in creation order.
func (ix *Indexer) ActiveListings() ([]ListingRow, error) {
	rows, err := ix.db.Query(
		`SELECT id, seller, name, category, item_id, price, status, created_at
		 FROM listings WHERE status = 'active' ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanListings(rows)
}

func scanListings(rows *sql.Rows) ([]ListingRow, error) {
	var out []ListingRow
	for rows.Next() {
		var r ListingRow
		if err := rows.Scan(&r.ID, &r.Seller, &r.Name, &r.Category, &r.ItemID,
			&r.Price, &r.Status, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// StakeRow mirrors one stake position.
type StakeRow struct {
	Owner           string `json:"owner"`
	Position        uint64 `json:"position"`
	Amount          uint64 `json:"amount"`
	DurationSeconds uint64 `json:"duration_seconds"`
	StartTimestamp  int64  `json:"start_timestamp"`
}

// StakesByOwner returns the owner's positions in creation order.
func (ix *Indexer) StakesByOwner(owner string) ([]StakeRow, error) {
	rows, err := ix.db.Query(
		`SELECT owner, position, amount, duration_seconds, start_timestamp
		 FROM stakes WHERE owner = ? ORDER BY position ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StakeRow
	for rows.Next() {
		var r StakeRow
		if err := rows.Scan(&r.Owner, &r.Position, &r.Amount,
			&r.DurationSeconds, &r.StartTimestamp); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ItemRow mirrors one unique item.
type ItemRow struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Owner    string `json:"owner"`
	MintedAt int64  `json:"minted_at"`
}

// ItemsByOwner returns the items currently held by owner.
func (ix *Indexer) ItemsByOwner(owner string) ([]ItemRow, error) {
	rows, err := ix.db.Query(
		`SELECT id, name, owner, minted_at FROM items WHERE owner = ? ORDER BY minted_at ASC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ItemRow
	for rows.Next() {
		var r ItemRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Owner, &r.MintedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// EventCount returns how many events of typ have been recorded; an empty
// typ counts everything.
func (ix *Indexer) EventCount(typ events.EventType) (int64, error) {
	var n int64
	var err error
	if typ == "" {
		err = ix.db.QueryRow(`SELECT COUNT(*) FROM events`).Scan(&n)
	} else {
		err = ix.db.QueryRow(`SELECT COUNT(*) FROM events WHERE type = ?`, string(typ)).Scan(&n)
	}
	return n, err
}

// Event data values arrive as any; amounts may be uint64 or, after a
// JSON round trip, float64.
func asUint(v any) uint64 {
	switch x := v.(type) {
	case uint64:
		return x
	case int64:
		return uint64(x)
	case int:
		return uint64(x)
	case float64:
		return uint64(x)
	default:
		return 0
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
