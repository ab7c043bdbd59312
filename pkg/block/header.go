package block

import (
	"encoding/binary"
	"fmt"

	"github.com/Klingon-tech/hnsnet-chain/pkg/crypto"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

// HeaderSize is the fixed portion of a block header, before the variable
// Cuckoo-Cycle solution.
const HeaderSize = 164

// NoncePos is the byte offset of the 20-byte extra-nonce field within
// the fixed header.
const NoncePos = 144

// Header contains block metadata. The fixed-size fields up to and
// including ExtraNonce total exactly HeaderSize bytes; the Cuckoo-Cycle
// solution follows as a variable-length sequence of u32 edge indices.
// Height is not part of the wire header (it is implied by chain
// position) but is cached on the struct for convenience once a header
// has been connected to the chain.
type Header struct {
	Version      uint32     `json:"version"`
	PrevBlock    types.Hash `json:"prev_block"`
	MerkleRoot   types.Hash `json:"merkle_root"`
	WitnessRoot  types.Hash `json:"witness_root"`
	TreeRoot     types.Hash `json:"tree_root"`
	ReservedRoot types.Hash `json:"reserved_root"`
	Time         uint64     `json:"time"`
	Bits         uint32     `json:"bits"`
	ExtraNonce   [20]byte   `json:"extra_nonce"`
	Solution     []uint32   `json:"solution"`
	Height       uint64     `json:"height,omitempty"`
}

// FixedBytes returns the first HeaderSize bytes of the header — every
// field up to and including ExtraNonce, excluding the variable-length
// Cuckoo solution. This is the portion the PoW hash and the miner's
// nonce search operate over.
func (h *Header) FixedBytes() []byte {
	buf := make([]byte, 0, HeaderSize)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PrevBlock[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = append(buf, h.WitnessRoot[:]...)
	buf = append(buf, h.TreeRoot[:]...)
	buf = append(buf, h.ReservedRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Time)
	buf = binary.LittleEndian.AppendUint32(buf, h.Bits)
	buf = append(buf, h.ExtraNonce[:]...)
	if len(buf) != HeaderSize {
		panic(fmt.Sprintf("block: header fixed bytes length %d, want %d", len(buf), HeaderSize))
	}
	return buf
}

// SolutionBytes serializes the Cuckoo-Cycle solution: solCount:u8 |
// solution:(u32 × solCount).
func (h *Header) SolutionBytes() []byte {
	buf := make([]byte, 0, 1+4*len(h.Solution))
	buf = append(buf, byte(len(h.Solution)))
	for _, e := range h.Solution {
		buf = binary.LittleEndian.AppendUint32(buf, e)
	}
	return buf
}

// Bytes serializes the full header: fixed portion followed by the
// solution.
func (h *Header) Bytes() []byte {
	return append(h.FixedBytes(), h.SolutionBytes()...)
}

// Hash computes the block header hash: BLAKE2b over the fixed header
// bytes concatenated with the hash of the solution bytes, per the PoW
// rule BLAKE2b(header || solution-hash) <= target.
func (h *Header) Hash() types.Hash {
	solHash := crypto.Hash(h.SolutionBytes())
	return crypto.HashConcat(crypto.Hash(h.FixedBytes()), solHash)
}

// PreHash returns the hash of the fixed header bytes alone, used by the
// miner as the PoW pre-image before a solution is attached.
func (h *Header) PreHash() types.Hash {
	return crypto.Hash(h.FixedBytes())
}
