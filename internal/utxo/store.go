package utxo

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/hnsnet-chain/internal/storage"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

// Key prefixes for the UTXO store.
var (
	prefixUTXO = []byte("u/") // u/<txid><index> -> UTXO JSON
	prefixAddr = []byte("a/") // a/<addr-key><txid><index> -> empty (address index)
	prefixName = []byte("n/") // n/<namehash><txid><index> -> empty (name index)
)

// addressKeySize is the length of the fixed-size key encoding of an
// Address: version(1) + size(1) + hash(32).
const addressKeySize = 1 + 1 + 32

// Store implements Set backed by a storage.DB.
type Store struct {
	db storage.DB
}

// NewStore creates a new UTXO store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{db: db}
}

// utxoKey builds a storage key for an outpoint: "u/" + txid(32) + index(4).
func utxoKey(op types.Outpoint) []byte {
	key := make([]byte, len(prefixUTXO)+types.HashSize+4)
	copy(key, prefixUTXO)
	copy(key[len(prefixUTXO):], op.TxID[:])
	binary.BigEndian.PutUint32(key[len(prefixUTXO)+types.HashSize:], op.Index)
	return key
}

// addressKeyBytes encodes an Address to a fixed-size key component so
// that addresses of different version/size never collide.
func addressKeyBytes(addr types.Address) []byte {
	b := make([]byte, addressKeySize)
	b[0] = byte(addr.Version)
	b[1] = addr.Size
	copy(b[2:], addr.Hash[:])
	return b
}

// addrKey builds an address index key: "a/" + addressKeyBytes(34) + txid(32) + index(4).
func addrKey(addr types.Address, op types.Outpoint) []byte {
	key := make([]byte, 0, len(prefixAddr)+addressKeySize+types.HashSize+4)
	key = append(key, prefixAddr...)
	key = append(key, addressKeyBytes(addr)...)
	key = append(key, op.TxID[:]...)
	key = binary.BigEndian.AppendUint32(key, op.Index)
	return key
}

// nameKey builds a name index key: "n/" + namehash(32) + txid(32) + index(4).
func nameKey(nh types.NameHash, op types.Outpoint) []byte {
	key := make([]byte, 0, len(prefixName)+types.HashSize+types.HashSize+4)
	key = append(key, prefixName...)
	key = append(key, nh[:]...)
	key = append(key, op.TxID[:]...)
	key = binary.BigEndian.AppendUint32(key, op.Index)
	return key
}

// Get retrieves a UTXO by its outpoint.
func (s *Store) Get(outpoint types.Outpoint) (*UTXO, error) {
	data, err := s.db.Get(utxoKey(outpoint))
	if err != nil {
		return nil, fmt.Errorf("utxo get: %w", err)
	}
	var u UTXO
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return &u, nil
}

// Put stores a UTXO and updates the address and name indexes.
func (s *Store) Put(u *UTXO) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	if err := s.db.Put(utxoKey(u.Outpoint), data); err != nil {
		return fmt.Errorf("utxo put: %w", err)
	}

	if !u.Address.IsZero() {
		if err := s.db.Put(addrKey(u.Address, u.Outpoint), []byte{}); err != nil {
			return fmt.Errorf("utxo address index put: %w", err)
		}
	}

	if nh, ok := u.NameHash(); ok {
		if err := s.db.Put(nameKey(nh, u.Outpoint), []byte{}); err != nil {
			return fmt.Errorf("utxo name index put: %w", err)
		}
	}

	return nil
}

// Delete removes a UTXO and its secondary index entries.
func (s *Store) Delete(outpoint types.Outpoint) error {
	// Read first to clean up secondary indexes.
	u, err := s.Get(outpoint)
	if err == nil {
		if !u.Address.IsZero() {
			s.db.Delete(addrKey(u.Address, u.Outpoint))
		}
		if nh, ok := u.NameHash(); ok {
			s.db.Delete(nameKey(nh, u.Outpoint))
		}
	}

	if err := s.db.Delete(utxoKey(outpoint)); err != nil {
		return fmt.Errorf("utxo delete: %w", err)
	}
	return nil
}

// Has checks if a UTXO exists for the given outpoint.
func (s *Store) Has(outpoint types.Outpoint) (bool, error) {
	return s.db.Has(utxoKey(outpoint))
}

// ForEach iterates over all UTXOs in the store.
func (s *Store) ForEach(fn func(*UTXO) error) error {
	return s.db.ForEach(prefixUTXO, func(key, value []byte) error {
		var u UTXO
		if err := json.Unmarshal(value, &u); err != nil {
			return fmt.Errorf("utxo unmarshal: %w", err)
		}
		return fn(&u)
	})
}

// outpointFromIndexKey decodes the trailing txid+index of a secondary
// index key given the offset at which they begin.
func outpointFromIndexKey(key []byte, off int) (types.Outpoint, bool) {
	var op types.Outpoint
	if len(key) < off+types.HashSize+4 {
		return op, false
	}
	copy(op.TxID[:], key[off:off+types.HashSize])
	op.Index = binary.BigEndian.Uint32(key[off+types.HashSize:])
	return op, true
}

// ClearAll removes all UTXOs and their secondary indexes (address, name).
// Used during UTXO set recovery after a crash during reorg.
func (s *Store) ClearAll() error {
	var keys [][]byte
	for _, prefix := range [][]byte{prefixUTXO, prefixAddr, prefixName} {
		if err := s.db.ForEach(prefix, func(key, _ []byte) error {
			k := make([]byte, len(key))
			copy(k, key)
			keys = append(keys, k)
			return nil
		}); err != nil {
			return fmt.Errorf("scan prefix %s: %w", prefix, err)
		}
	}
	for _, key := range keys {
		if err := s.db.Delete(key); err != nil {
			return fmt.Errorf("delete utxo key: %w", err)
		}
	}
	return nil
}

// GetByAddress returns all UTXOs belonging to the given address.
// It scans the address index and loads each referenced UTXO.
func (s *Store) GetByAddress(addr types.Address) ([]*UTXO, error) {
	prefix := make([]byte, 0, len(prefixAddr)+addressKeySize)
	prefix = append(prefix, prefixAddr...)
	prefix = append(prefix, addressKeyBytes(addr)...)

	var utxos []*UTXO
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		op, ok := outpointFromIndexKey(key, len(prefixAddr)+addressKeySize)
		if !ok {
			return nil // Malformed key, skip.
		}
		u, err := s.Get(op)
		if err != nil {
			return nil // UTXO may have been spent, skip.
		}
		utxos = append(utxos, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan address index: %w", err)
	}
	return utxos, nil
}

// GetByName returns all UTXOs whose covenant is bound to the given name hash.
// During an auction several BID or REVEAL coins can share one name hash;
// the index returns every one of them.
func (s *Store) GetByName(nh types.NameHash) ([]*UTXO, error) {
	prefix := make([]byte, 0, len(prefixName)+types.HashSize)
	prefix = append(prefix, prefixName...)
	prefix = append(prefix, nh[:]...)

	var utxos []*UTXO
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		op, ok := outpointFromIndexKey(key, len(prefixName)+types.HashSize)
		if !ok {
			return nil
		}
		u, err := s.Get(op)
		if err != nil {
			return nil
		}
		utxos = append(utxos, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan name index: %w", err)
	}
	return utxos, nil
}
