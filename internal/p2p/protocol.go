// Package p2p defines the wire framing for the peer network. The actual
// peer manager, gossip relay, and sync protocol are external collaborators
// and are not implemented here; this package only fixes the packet header
// shape. No other package in this module imports it.
package p2p

import "encoding/binary"

// NetworkMagic identifies which chain a packet belongs to.
type NetworkMagic uint32

const (
	MagicMainnet NetworkMagic = 0x48534e53 // "HSNS"
	MagicTestnet NetworkMagic = 0x74534e53 // "tSNS"
	MagicRegtest NetworkMagic = 0x72534e53 // "rSNS"
)

// PacketType enumerates the external wire message types. Only the tag
// values are fixed here; encoding/decoding payloads is a collaborator
// concern (mempool admission, chain sync).
type PacketType uint8

const (
	PacketVersion PacketType = iota
	PacketVerack
	PacketPing
	PacketPong
	PacketInv
	PacketTX
	PacketBlock
	PacketClaim
	PacketAirdrop
	PacketMerkleBlock
	PacketCmpctBlock
	PacketGetProof
	PacketProof
)

// HeaderSize is the fixed size of a PacketHeader once serialized.
const HeaderSize = 4 + 1 + 4

// PacketHeader is the fixed framing prefix for every P2P packet:
// magic:u32 | type:u8 | length:u32 | payload.
type PacketHeader struct {
	Magic  NetworkMagic
	Type   PacketType
	Length uint32
}

// Bytes serializes the header to its wire form.
func (h PacketHeader) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Magic))
	buf[4] = byte(h.Type)
	binary.LittleEndian.PutUint32(buf[5:9], h.Length)
	return buf
}

// ParsePacketHeader reads a PacketHeader from its wire form.
func ParsePacketHeader(b []byte) (PacketHeader, error) {
	if len(b) < HeaderSize {
		return PacketHeader{}, errShortHeader
	}
	return PacketHeader{
		Magic:  NetworkMagic(binary.LittleEndian.Uint32(b[0:4])),
		Type:   PacketType(b[4]),
		Length: binary.LittleEndian.Uint32(b[5:9]),
	}, nil
}

var errShortHeader = shortHeaderError{}

type shortHeaderError struct{}

func (shortHeaderError) Error() string { return "p2p: packet shorter than header" }
