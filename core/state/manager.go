package state

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"

	"stakelend/storage"
)

var (
	// ErrRecordExists is returned by Create when the address already holds a
	// record.
	ErrRecordExists = errors.New("state: record already exists")
	// ErrTxClosed is returned when a committed or discarded Tx is reused.
	ErrTxClosed = errors.New("state: transaction closed")

	errEmptyKey = errors.New("state: key must not be empty")
)

// Manager is the record store. Every record lives under a key derived from a
// fixed label plus identifying keys, and all mutation goes through a Tx.
type Manager struct {
	db storage.Database
}

// NewManager creates a record store over db.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a transaction against the committed state.
func (m *Manager) Begin() *Tx {
	return &Tx{db: m.db, writes: make(map[string][]byte)}
}

// RecordKey maps label and keys to a record address. The same inputs always
// resolve to the same key; segments are hex encoded so the mapping is
// injective for fixed-size keys.
func RecordKey(label string, keys ...[]byte) []byte {
	var b strings.Builder
	b.WriteString(label)
	for _, k := range keys {
		b.WriteByte('/')
		b.WriteString(hex.EncodeToString(k))
	}
	return []byte(b.String())
}

// Uint64Key renders a little-endian sequence number for use in RecordKey.
func Uint64Key(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return buf[:]
}

// Tx buffers record writes until Commit applies them in a single batch.
// Reads observe the transaction's own pending writes. A Tx is not safe for
// concurrent use.
type Tx struct {
	db     storage.Database
	writes map[string][]byte
	closed bool
}

func (tx *Tx) raw(key []byte) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, ErrTxClosed
	}
	if len(key) == 0 {
		return nil, false, errEmptyKey
	}
	if pending, ok := tx.writes[string(key)]; ok {
		return pending, true, nil
	}
	data, err := tx.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Has reports whether key holds a record.
func (tx *Tx) Has(key []byte) (bool, error) {
	_, ok, err := tx.raw(key)
	return ok, err
}

// Get decodes the record stored under key into out. The boolean reports
// whether the record exists.
func (tx *Tx) Get(key []byte, out interface{}) (bool, error) {
	data, ok, err := tx.raw(key)
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return true, nil
}

// Put stores value under key using RLP encoding.
func (tx *Tx) Put(key []byte, value interface{}) error {
	if tx.closed {
		return ErrTxClosed
	}
	if len(key) == 0 {
		return errEmptyKey
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	tx.writes[string(key)] = encoded
	return nil
}

// Create stores value under key only if no record exists there yet.
func (tx *Tx) Create(key []byte, value interface{}) error {
	exists, err := tx.Has(key)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrRecordExists, key)
	}
	return tx.Put(key, value)
}

// Commit writes every buffered record atomically and closes the transaction.
func (tx *Tx) Commit() error {
	if tx.closed {
		return ErrTxClosed
	}
	tx.closed = true
	if len(tx.writes) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tx.writes))
	for key := range tx.writes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	batch := tx.db.NewBatch()
	for _, key := range keys {
		batch.Put([]byte(key), tx.writes[key])
	}
	tx.writes = nil
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// Discard drops every buffered write. It is safe to call after Commit.
func (tx *Tx) Discard() {
	tx.closed = true
	tx.writes = nil
}
