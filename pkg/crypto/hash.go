// Package crypto provides cryptographic primitives for the chain.
package crypto

import (
	"encoding/binary"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

// Hash computes a BLAKE2b-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake2b.Sum256(data)
}

// DoubleHash computes Hash(Hash(data)).
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// NameHash computes the name hash: BLAKE2b of the lower-cased name.
func NameHash(name string) types.NameHash {
	return types.NameHash(Hash([]byte(strings.ToLower(name))))
}

// Blind computes the BID commitment BLAKE2b(value || nonce).
func Blind(value int64, nonce [32]byte) types.Hash {
	var buf [40]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(value))
	copy(buf[8:], nonce[:])
	return Hash(buf[:])
}

// AddressFromPubKey derives a 20-byte version-0 address from a compressed
// public key: BLAKE2b(pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var raw [types.AddressSize20]byte
	copy(raw[:], h[:types.AddressSize20])
	return types.NewAddress20(raw)
}

// HashConcat hashes the concatenation of two hashes. Used for building
// plain (untagged) merkle trees outside the block-level tagged tree.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}
