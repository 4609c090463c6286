package state

import (
	"fmt"
	"sort"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"boxchain/storage"
)

// Manager mediates every read and write the engines perform. Writes land in
// an in-memory overlay first; the host commits the overlay after a successful
// invocation or discards it on failure, which gives each invocation the
// all-or-nothing semantics the ledgers assume.
type Manager struct {
	db      storage.Database
	overlay map[string][]byte
}

// NewManager creates a state manager over the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, overlay: make(map[string][]byte)}
}

// Commit flushes buffered writes to the database in key order and resets the
// overlay.
func (m *Manager) Commit() error {
	if m == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	keys := make([]string, 0, len(m.overlay))
	for k := range m.overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := m.db.Put([]byte(k), m.overlay[k]); err != nil {
			return err
		}
	}
	m.overlay = make(map[string][]byte)
	return nil
}

// Discard drops every buffered write.
func (m *Manager) Discard() {
	if m == nil {
		return
	}
	m.overlay = make(map[string][]byte)
}

// kvKey hashes point-lookup keys so arbitrary user input (codes, addresses)
// cannot collide with or escape the key namespace. Range-scanned keys bypass
// hashing because iteration order must follow the raw bytes.
func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// KVPut rlp-encodes value into the overlay under the hashed key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	return m.putRaw(kvKey(key), value)
}

// KVGet decodes the stored value for the hashed key, reporting whether it
// exists. Overlay entries shadow committed state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	return m.getRaw(kvKey(key), out)
}

func (m *Manager) putRaw(key []byte, value interface{}) error {
	if m == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.overlay[string(key)] = encoded
	return nil
}

func (m *Manager) getRaw(key []byte, out interface{}) (bool, error) {
	if m == nil {
		return false, fmt.Errorf("state: manager not initialised")
	}
	encoded, ok := m.overlay[string(key)]
	if !ok {
		stored, found, err := m.db.Get(key)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}
		encoded = stored
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, err
	}
	return true, nil
}

// kvIterate walks raw keys under prefix in ascending order, merging overlay
// entries with committed state. Overlay values shadow the database for equal
// keys.
func (m *Manager) kvIterate(prefix, startAfter []byte, fn func(key, value []byte) bool) error {
	if m == nil {
		return fmt.Errorf("state: manager not initialised")
	}
	var overlayKeys []string
	for k := range m.overlay {
		if len(k) < len(prefix) || k[:len(prefix)] != string(prefix) {
			continue
		}
		if len(startAfter) > 0 && k <= string(startAfter) {
			continue
		}
		overlayKeys = append(overlayKeys, k)
	}
	sort.Strings(overlayKeys)
	i := 0
	stopped := false
	err := m.db.Iterate(prefix, startAfter, func(key, value []byte) bool {
		for i < len(overlayKeys) && overlayKeys[i] < string(key) {
			if !fn([]byte(overlayKeys[i]), m.overlay[overlayKeys[i]]) {
				stopped = true
				return false
			}
			i++
		}
		if i < len(overlayKeys) && overlayKeys[i] == string(key) {
			value = m.overlay[overlayKeys[i]]
			i++
		}
		if !fn(key, value) {
			stopped = true
			return false
		}
		return true
	})
	if err != nil || stopped {
		return err
	}
	for ; i < len(overlayKeys); i++ {
		if !fn([]byte(overlayKeys[i]), m.overlay[overlayKeys[i]]) {
			break
		}
	}
	return nil
}

func decodeValue(encoded []byte, out interface{}) error {
	return rlp.DecodeBytes(encoded, out)
}

// levelPair is the rlp-friendly rendering of a level-to-quantity map. Maps
// are stored as pair lists sorted by level so encodings stay deterministic.
type levelPair struct {
	Level uint32
	Qty   uint64
}

func encodeLevelMap(qtys map[uint32]uint64) []levelPair {
	pairs := make([]levelPair, 0, len(qtys))
	for level, qty := range qtys {
		pairs = append(pairs, levelPair{Level: level, Qty: qty})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Level < pairs[j].Level })
	return pairs
}

func decodeLevelMap(pairs []levelPair) map[uint32]uint64 {
	out := make(map[uint32]uint64, len(pairs))
	for _, p := range pairs {
		out[p.Level] = p.Qty
	}
	return out
}

func int64ToUint64(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}
