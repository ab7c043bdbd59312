package wallet

import (
	"sync"

	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

// GapLimit is the number of consecutive unused addresses derived ahead of
// the last used one, per BIP-44 convention. AddressBook extends past it
// only when late address discovery (see Observe) demands it.
const GapLimit = 20

// chain is the (change, index) derivation coordinate of one address.
type chain struct {
	change uint32
	index  uint32
}

// AddressBook tracks every address an account has derived and which ones
// have been used, extending the lookahead window as addresses are seen
// touched on-chain. It implements the wallet-side half of "late address
// discovery" (spec.md §4.C): confirm() consults Owns for a touched address,
// and Observe is called once that address is found to widen the window so
// the *next* derived batch still maintains a full gap of GapLimit unused
// addresses past the highest used one.
type AddressBook struct {
	mu       sync.Mutex
	key      *HDKey
	account  uint32
	known    map[types.Address]chain
	lastUsed map[uint32]uint32 // change -> highest used index seen
	frontier map[uint32]uint32 // change -> highest derived index so far
}

// NewAddressBook derives the initial GapLimit external and internal
// addresses for the given account and returns a book that tracks them.
func NewAddressBook(acctKey *HDKey, account uint32) (*AddressBook, error) {
	b := &AddressBook{
		key:      acctKey,
		account:  account,
		known:    make(map[types.Address]chain),
		lastUsed: make(map[uint32]uint32),
		frontier: make(map[uint32]uint32),
	}
	for _, ch := range []uint32{ChangeExternal, ChangeInternal} {
		if err := b.deriveUpTo(ch, GapLimit-1); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *AddressBook) deriveUpTo(change, index uint32) error {
	from := uint32(0)
	if cur, ok := b.frontier[change]; ok {
		from = cur + 1
	}
	for i := from; i <= index; i++ {
		k, err := b.key.DeriveAddress(b.account, change, i)
		if err != nil {
			return err
		}
		b.known[k.Address()] = chain{change: change, index: i}
	}
	b.frontier[change] = index
	return nil
}

// Owns reports whether addr was derived by this account.
func (b *AddressBook) Owns(addr types.Address) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.known[addr]
	return ok
}

// Observe marks addr as used, widening the lookahead window past it by
// GapLimit so a subsequent receive to an address further out is still
// recognized without a full rescan. No-op if addr is unknown.
func (b *AddressBook) Observe(addr types.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	loc, ok := b.known[addr]
	if !ok {
		return nil
	}
	if last, ok := b.lastUsed[loc.change]; ok && last >= loc.index {
		return nil
	}
	b.lastUsed[loc.change] = loc.index
	return b.deriveUpTo(loc.change, loc.index+GapLimit)
}
