package names

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Klingon-tech/hnsnet-chain/internal/storage"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

// prefixName is the DB key prefix for persisted NameState records.
var prefixName = []byte("n/")

// Store caches NameState records in memory and mirrors every write through
// to a storage.DB; a read that misses the cache loads from the DB.
type Store struct {
	db     storage.DB
	mu     sync.RWMutex
	states map[types.NameHash]*NameState
}

// NewStore creates an empty name-state store backed by db.
func NewStore(db storage.DB) *Store {
	return &Store{db: db, states: make(map[types.NameHash]*NameState)}
}

// nameKey builds the DB key for a name hash: "n/" + nameHash(32).
func nameKey(h types.NameHash) []byte {
	key := make([]byte, len(prefixName)+len(h))
	copy(key, prefixName)
	copy(key[len(prefixName):], h[:])
	return key
}

// Get returns the current NameState for a name hash, or nil if it has never
// been opened.
func (s *Store) Get(h types.NameHash) (*NameState, error) {
	s.mu.RLock()
	if ns, ok := s.states[h]; ok {
		s.mu.RUnlock()
		return ns, nil
	}
	s.mu.RUnlock()

	key := nameKey(h)
	ok, err := s.db.Has(key)
	if err != nil {
		return nil, fmt.Errorf("check name state: %w", err)
	}
	if !ok {
		return nil, nil
	}

	raw, err := s.db.Get(key)
	if err != nil {
		return nil, fmt.Errorf("get name state: %w", err)
	}

	var ns NameState
	if err := json.Unmarshal(raw, &ns); err != nil {
		return nil, fmt.Errorf("unmarshal name state: %w", err)
	}

	s.mu.Lock()
	s.states[h] = &ns
	s.mu.Unlock()

	return &ns, nil
}

// Put persists a NameState, creating or overwriting the entry for its hash.
func (s *Store) Put(ns *NameState) error {
	data, err := json.Marshal(ns)
	if err != nil {
		return fmt.Errorf("marshal name state %s: %w", ns.Name, err)
	}
	if err := s.db.Put(nameKey(ns.NameHash), data); err != nil {
		return fmt.Errorf("save name state %s: %w", ns.Name, err)
	}

	s.mu.Lock()
	s.states[ns.NameHash] = ns
	s.mu.Unlock()
	return nil
}

// Delete removes a name's state entirely, used to undo the NameDelta that
// created it.
func (s *Store) Delete(h types.NameHash) error {
	if err := s.db.Delete(nameKey(h)); err != nil {
		return fmt.Errorf("delete name state: %w", err)
	}
	s.mu.Lock()
	delete(s.states, h)
	s.mu.Unlock()
	return nil
}

// ForEach walks every persisted name state, in no particular order.
func (s *Store) ForEach(fn func(*NameState) error) error {
	return s.db.ForEach(prefixName, func(key, value []byte) error {
		var ns NameState
		if err := json.Unmarshal(value, &ns); err != nil {
			return fmt.Errorf("unmarshal name state: %w", err)
		}
		return fn(&ns)
	})
}
