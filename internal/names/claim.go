package names

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/Klingon-tech/hnsnet-chain/pkg/covenant"
	"github.com/Klingon-tech/hnsnet-chain/pkg/crypto"
	"github.com/Klingon-tech/hnsnet-chain/pkg/tx"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

// indexEntrySize is the encoded size of one (hash, ptr) index entry:
// NameHash(32) + record offset(4).
const indexEntrySize = types.HashSize + 4

// LockedRecord is one reserved name airdropped to a claimant at genesis —
// a name that existed before the chain launched and is claimable without
// going through an auction.
type LockedRecord struct {
	Name  string
	Value uint64 // Coins pre-committed to this name's eventual owner.
}

func (r LockedRecord) encode() []byte {
	nameBytes := []byte(r.Name)
	buf := make([]byte, 2+len(nameBytes)+8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(len(nameBytes)))
	copy(buf[2:2+len(nameBytes)], nameBytes)
	binary.BigEndian.PutUint64(buf[2+len(nameBytes):], r.Value)
	return buf
}

func decodeLockedRecord(buf []byte) (LockedRecord, int, error) {
	if len(buf) < 2 {
		return LockedRecord{}, 0, fmt.Errorf("locked record: truncated length prefix")
	}
	nameLen := int(binary.BigEndian.Uint16(buf[0:2]))
	end := 2 + nameLen + 8
	if len(buf) < end {
		return LockedRecord{}, 0, fmt.Errorf("locked record: truncated body")
	}
	name := string(buf[2 : 2+nameLen])
	value := binary.BigEndian.Uint64(buf[2+nameLen : end])
	return LockedRecord{Name: name, Value: value}, end, nil
}

// LockedNames is the immutable reserved-name table: nothing modifies it
// after construction. Its wire format is
// [u32 count][(32-byte hash, u32 ptr)*count][packed records], binary
// searchable by name hash.
type LockedNames struct {
	index   []lockedIndexEntry
	records []byte
}

type lockedIndexEntry struct {
	hash types.NameHash
	ptr  uint32
}

// NewLockedNames builds a LockedNames table from a set of reserved records,
// sorting the index by name hash so lookups can binary search it.
func NewLockedNames(records []LockedRecord) *LockedNames {
	ln := &LockedNames{}
	for _, r := range records {
		ptr := uint32(len(ln.records))
		ln.index = append(ln.index, lockedIndexEntry{hash: crypto.NameHash(r.Name), ptr: ptr})
		ln.records = append(ln.records, r.encode()...)
	}
	sort.Slice(ln.index, func(i, j int) bool {
		return bytes.Compare(ln.index[i].hash[:], ln.index[j].hash[:]) < 0
	})
	return ln
}

// Encode serializes the table to its on-disk/binary-distributable format.
func (ln *LockedNames) Encode() []byte {
	buf := make([]byte, 4+len(ln.index)*indexEntrySize+len(ln.records))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(ln.index)))
	off := 4
	for _, e := range ln.index {
		copy(buf[off:off+types.HashSize], e.hash[:])
		binary.BigEndian.PutUint32(buf[off+types.HashSize:off+indexEntrySize], e.ptr)
		off += indexEntrySize
	}
	copy(buf[off:], ln.records)
	return buf
}

// DecodeLockedNames parses a table previously produced by Encode.
func DecodeLockedNames(buf []byte) (*LockedNames, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("locked names table: truncated header")
	}
	count := int(binary.BigEndian.Uint32(buf[0:4]))
	headerEnd := 4 + count*indexEntrySize
	if len(buf) < headerEnd {
		return nil, fmt.Errorf("locked names table: truncated index")
	}

	ln := &LockedNames{records: buf[headerEnd:]}
	off := 4
	for i := 0; i < count; i++ {
		var h types.NameHash
		copy(h[:], buf[off:off+types.HashSize])
		ptr := binary.BigEndian.Uint32(buf[off+types.HashSize : off+indexEntrySize])
		ln.index = append(ln.index, lockedIndexEntry{hash: h, ptr: ptr})
		off += indexEntrySize
	}
	return ln, nil
}

// Lookup binary-searches the index for a name hash and decodes its record.
func (ln *LockedNames) Lookup(h types.NameHash) (LockedRecord, bool) {
	n := len(ln.index)
	i := sort.Search(n, func(i int) bool {
		return bytes.Compare(ln.index[i].hash[:], h[:]) >= 0
	})
	if i >= n || ln.index[i].hash != h {
		return LockedRecord{}, false
	}
	rec, _, err := decodeLockedRecord(ln.records[ln.index[i].ptr:])
	if err != nil {
		return LockedRecord{}, false
	}
	return rec, true
}

// Count returns the number of reserved names in the table.
func (ln *LockedNames) Count() int {
	return len(ln.index)
}

// SetLockedNames installs the reserved-name table the engine consults for
// CLAIM covenants. Must be called once at startup before any CLAIM-bearing
// block is processed.
func (e *Engine) SetLockedNames(ln *LockedNames) {
	e.locked = ln
}

func (e *Engine) processClaim(out tx.Output, owner types.Outpoint, prev *NameState, nameHash types.NameHash, height uint32) (*Transition, error) {
	claim, err := covenant.ParseClaim(out.Covenant)
	if err != nil {
		return nil, invalidf("CLAIM: %v", err)
	}
	if prev != nil {
		return nil, invalidf("CLAIM: name %q already has state", claim.Name)
	}
	if e.locked == nil {
		return nil, invalidf("CLAIM: no reserved-name table loaded")
	}

	rec, ok := e.locked.Lookup(nameHash)
	if !ok || rec.Name != claim.Name {
		return nil, invalidf("CLAIM: %q is not a reserved name", claim.Name)
	}
	if out.Value != rec.Value {
		return nil, invalidf("CLAIM: output value %d does not match reserved value %d", out.Value, rec.Value)
	}

	ns := newNameState(nameHash, claim.Name, height)
	ns.Owner = owner
	ns.Value = rec.Value
	ns.Claimed = height
	ns.Renewal = height
	ns.Weak = true

	return &Transition{
		NameHash: nameHash,
		Delta:    NameDelta{NameHash: nameHash, PrevState: prevSnapshot(prev), Created: true},
		New:      ns,
	}, nil
}
