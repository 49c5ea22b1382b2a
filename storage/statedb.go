package storage

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/okarvik/reservex/core"
	"github.com/okarvik/reservex/crypto"
)

// registerPrefix records a state-key prefix into statePrefixes so that
// ComputeRoot() always covers it. All prefix constants must be declared
// via this function.
func registerPrefix(p string) string {
	statePrefixes = append(statePrefixes, p)
	return p
}

// statePrefixes is populated automatically by registerPrefix() below.
// ComputeRoot() iterates these prefixes to build the full world-state view.
var statePrefixes []string

var (
	prefixAccount   = registerPrefix("acct:")
	prefixBalance   = registerPrefix("bal:")
	prefixAllowance = registerPrefix("allow:")
	prefixToken     = registerPrefix("tok:")
	prefixRole      = registerPrefix("role:")
	prefixStake     = registerPrefix("stake:")
	prefixListing   = registerPrefix("listing:")
	prefixItem      = registerPrefix("item:")
	prefixSys       = registerPrefix("sys:")
)

// Singleton keys under the sys: prefix.
const (
	keyMeta       = "sys:meta"
	keyReserve    = "sys:reserve"
	keySale       = "sys:sale"
	keyListingSeq = "sys:listingseq"
)

type stateSnapshot struct {
	dirty   map[string][]byte
	deleted map[string]bool
}

// StateDB implements core.State on top of a DB with in-memory write buffer,
// snapshot/rollback, and deterministic state-root computation.
type StateDB struct {
	db        DB
	dirty     map[string][]byte
	deleted   map[string]bool
	snapshots []stateSnapshot
}

// NewStateDB creates a StateDB backed by db.
func NewStateDB(db DB) *StateDB {
	return &StateDB{
		db:      db,
		dirty:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
}

// ---- internal helpers ----

func (s *StateDB) get(key string) ([]byte, error) {
	if s.deleted[key] {
		return nil, core.ErrNotFound
	}
	if v, ok := s.dirty[key]; ok {
		return v, nil
	}
	return s.db.Get([]byte(key))
}

func (s *StateDB) set(key string, val []byte) {
	delete(s.deleted, key)
	s.dirty[key] = val
}

// getJSON unmarshals the value at key into out; core.ErrNotFound passes through.
func (s *StateDB) getJSON(key string, out any) error {
	data, err := s.get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (s *StateDB) setJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.set(key, data)
	return nil
}

func (s *StateDB) getUint(key string) (uint64, error) {
	data, err := s.get(key)
	if errors.Is(err, core.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt counter at %q: %w", key, err)
	}
	return n, nil
}

func (s *StateDB) setUint(key string, n uint64) {
	s.set(key, []byte(strconv.FormatUint(n, 10)))
}

// ---- Accounts ----

func (s *StateDB) GetAccount(address string) (*core.Account, error) {
	var acc core.Account
	err := s.getJSON(prefixAccount+address, &acc)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Account{Address: address}, nil // zero-value account
	}
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

func (s *StateDB) SetAccount(acc *core.Account) error {
	return s.setJSON(prefixAccount+acc.Address, acc)
}

// ---- Balances ----

func balanceKey(token, address string) string {
	return prefixBalance + token + ":" + address
}

func (s *StateDB) GetBalance(token, address string) (uint64, error) {
	return s.getUint(balanceKey(token, address))
}

func (s *StateDB) SetBalance(token, address string, amount uint64) error {
	s.setUint(balanceKey(token, address), amount)
	return nil
}

// ForEachBalance visits every holder of token in address order, merging
// persisted rows with the write buffer. fn returning an error stops the
// walk.
func (s *StateDB) ForEachBalance(token string, fn func(address string, amount uint64) error) error {
	prefix := prefixBalance + token + ":"
	merged := make(map[string][]byte)
	it := s.db.NewIterator([]byte(prefix))
	for it.Next() {
		k := string(it.Key())
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		merged[k] = v
	}
	it.Release()
	for k, v := range s.dirty {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			merged[k] = v
		}
	}
	for k := range s.deleted {
		delete(merged, k)
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n, err := strconv.ParseUint(string(merged[k]), 10, 64)
		if err != nil {
			return fmt.Errorf("corrupt balance at %q: %w", k, err)
		}
		if err := fn(k[len(prefix):], n); err != nil {
			return err
		}
	}
	return nil
}

// ---- Allowances ----

func allowanceKey(token, owner, spender string) string {
	return prefixAllowance + token + ":" + owner + ":" + spender
}

func (s *StateDB) GetAllowance(token, owner, spender string) (uint64, error) {
	return s.getUint(allowanceKey(token, owner, spender))
}

func (s *StateDB) SetAllowance(token, owner, spender string, amount uint64) error {
	s.setUint(allowanceKey(token, owner, spender), amount)
	return nil
}

// ---- Tokens ----

func (s *StateDB) GetToken(symbol string) (*core.Token, error) {
	var t core.Token
	if err := s.getJSON(prefixToken+symbol, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *StateDB) SetToken(t *core.Token) error {
	return s.setJSON(prefixToken+t.Symbol, t)
}

// ---- Roles ----

func roleKey(role, address string) string {
	return prefixRole + role + ":" + address
}

func (s *StateDB) HasRole(role, address string) (bool, error) {
	_, err := s.get(roleKey(role, address))
	if errors.Is(err, core.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *StateDB) SetRole(role, address string, granted bool) error {
	key := roleKey(role, address)
	if granted {
		s.set(key, []byte("1"))
	} else {
		s.del(key)
	}
	return nil
}

func (s *StateDB) del(key string) {
	delete(s.dirty, key)
	s.deleted[key] = true
}

// ---- Singletons ----

func (s *StateDB) GetMeta() (*core.Meta, error) {
	var m core.Meta
	err := s.getJSON(keyMeta, &m)
	if errors.Is(err, core.ErrNotFound) {
		return &core.Meta{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *StateDB) SetMeta(m *core.Meta) error {
	return s.setJSON(keyMeta, m)
}

func (s *StateDB) GetReserve() (*core.ReserveState, error) {
	var r core.ReserveState
	if err := s.getJSON(keyReserve, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *StateDB) SetReserve(r *core.ReserveState) error {
	return s.setJSON(keyReserve, r)
}

func (s *StateDB) GetSale() (*core.SaleState, error) {
	var sale core.SaleState
	if err := s.getJSON(keySale, &sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *StateDB) SetSale(sale *core.SaleState) error {
	return s.setJSON(keySale, sale)
}

// ---- Listings ----

// listingKey pads the id so lexicographic iteration matches numeric order.
func listingKey(id uint64) string {
	return fmt.Sprintf("%s%020d", prefixListing, id)
}

func (s *StateDB) GetListing(id uint64) (*core.Listing, error) {
	var l core.Listing
	if err := s.getJSON(listingKey(id), &l); err != nil {
		return nil, err
	}
	return &l, nil
}

func (s *StateDB) SetListing(l *core.Listing) error {
	return s.setJSON(listingKey(l.ID), l)
}

// NextListingID hands out the next sequential listing id, starting at 0.
// The counter lives in the write buffer, so a failed operation that
// consumed an id rolls the counter back with everything else.
func (s *StateDB) NextListingID() (uint64, error) {
	n, err := s.getUint(keyListingSeq)
	if err != nil {
		return 0, err
	}
	s.setUint(keyListingSeq, n+1)
	return n, nil
}

// ---- Stakes ----

func (s *StateDB) GetStakes(address string) ([]core.StakePosition, error) {
	var positions []core.StakePosition
	err := s.getJSON(prefixStake+address, &positions)
	if errors.Is(err, core.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return positions, nil
}

func (s *StateDB) SetStakes(address string, positions []core.StakePosition) error {
	return s.setJSON(prefixStake+address, positions)
}

// ---- Items ----

func (s *StateDB) GetItem(id string) (*core.Item, error) {
	var item core.Item
	if err := s.getJSON(prefixItem+id, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *StateDB) SetItem(item *core.Item) error {
	return s.setJSON(prefixItem+item.ID, item)
}

// ---- Snapshot / Rollback / Commit ----

// Snapshot saves the current write buffer and returns a snapshot ID.
func (s *StateDB) Snapshot() (int, error) {
	snap := stateSnapshot{
		dirty:   make(map[string][]byte, len(s.dirty)),
		deleted: make(map[string]bool, len(s.deleted)),
	}
	for k, v := range s.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		snap.dirty[k] = cp
	}
	for k, v := range s.deleted {
		snap.deleted[k] = v
	}
	s.snapshots = append(s.snapshots, snap)
	return len(s.snapshots) - 1, nil
}

// RevertToSnapshot restores the write buffer to a previously saved snapshot.
// The snapshot maps are deep-copied so that subsequent writes cannot corrupt them.
func (s *StateDB) RevertToSnapshot(id int) error {
	if id < 0 || id >= len(s.snapshots) {
		return fmt.Errorf("invalid snapshot id %d", id)
	}
	snap := s.snapshots[id]

	dirty := make(map[string][]byte, len(snap.dirty))
	for k, v := range snap.dirty {
		cp := make([]byte, len(v))
		copy(cp, v)
		dirty[k] = cp
	}
	deleted := make(map[string]bool, len(snap.deleted))
	for k, v := range snap.deleted {
		deleted[k] = v
	}

	s.dirty = dirty
	s.deleted = deleted
	s.snapshots = s.snapshots[:id]
	return nil
}

// ComputeRoot returns the deterministic hash of the complete world state.
// It merges all persisted state entries (scanned from DB by the known state
// prefixes) with the current write buffer, then hashes the sorted key-value
// pairs using length-prefix encoding. It does NOT flush or modify state.
func (s *StateDB) ComputeRoot() string {
	// Step 1: collect all persisted state entries from DB.
	merged := make(map[string][]byte)
	for _, prefix := range statePrefixes {
		it := s.db.NewIterator([]byte(prefix))
		for it.Next() {
			k := string(it.Key())
			v := make([]byte, len(it.Value()))
			copy(v, it.Value())
			merged[k] = v
		}
		it.Release()
	}

	// Step 2: apply in-memory write buffer (uncommitted changes).
	for k, v := range s.dirty {
		merged[k] = v
	}

	// Step 3: exclude deleted keys.
	for k := range s.deleted {
		delete(merged, k)
	}

	// Step 4: sort keys for determinism.
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Step 5: length-prefix encode each key-value pair and hash.
	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, k := range keys {
		v := merged[k]
		kb := []byte(k)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(kb)))
		buf.Write(lenBuf[:])
		buf.Write(kb)
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(v)))
		buf.Write(lenBuf[:])
		buf.Write(v)
	}
	return crypto.Hash(buf.Bytes())
}

// Commit atomically flushes the write buffer to the underlying DB via a
// Batch and then clears it.
func (s *StateDB) Commit() error {
	batch := s.db.NewBatch()
	for k, v := range s.dirty {
		batch.Set([]byte(k), v)
	}
	for k := range s.deleted {
		batch.Delete([]byte(k))
	}
	if err := batch.Write(); err != nil {
		return err
	}
	s.dirty = make(map[string][]byte)
	s.deleted = make(map[string]bool)
	s.snapshots = nil
	return nil
}
