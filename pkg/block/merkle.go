package block

import (
	"errors"

	"github.com/Klingon-tech/hnsnet-chain/pkg/crypto"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

// ErrMerkleMalleated is returned when a transaction set's merkle tree
// contains a duplicated pair of hashes at some level that did not arise
// from the standard odd-count padding rule — the CVE-2012-2459 class of
// attack where an attacker appends a duplicate transaction to produce a
// second block with the same merkle root.
var ErrMerkleMalleated = errors.New("block: merkle tree contains a malleated duplicate")

const (
	merkleLeafTag     byte = 0x00
	merkleInternalTag byte = 0x01
)

func hashLeaf(h types.Hash) types.Hash {
	buf := make([]byte, 0, 1+len(h))
	buf = append(buf, merkleLeafTag)
	buf = append(buf, h[:]...)
	return crypto.Hash(buf)
}

func hashInternal(a, b types.Hash) types.Hash {
	buf := make([]byte, 0, 1+len(a)+len(b))
	buf = append(buf, merkleInternalTag)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	return crypto.Hash(buf)
}

// ComputeMerkleRoot calculates the tagged merkle root of transaction
// hashes.
//
// Algorithm:
//   - 0 hashes: returns zero hash
//   - 1 hash: returns the tagged leaf hash
//   - Otherwise: tag every hash as a leaf, then repeatedly pair and hash
//     with the internal tag, duplicating the last element of an odd
//     level, until one hash remains.
func ComputeMerkleRoot(txHashes []types.Hash) types.Hash {
	root, _ := computeMerkleRoot(txHashes)
	return root
}

// IsMalleated reports whether the transaction set's merkle tree contains
// a non-padding duplicate pair at any level — a set that could be
// mutated (by appending a duplicate tx) without changing the root.
func IsMalleated(txHashes []types.Hash) bool {
	_, mutated := computeMerkleRoot(txHashes)
	return mutated
}

func computeMerkleRoot(txHashes []types.Hash) (types.Hash, bool) {
	if len(txHashes) == 0 {
		return types.Hash{}, false
	}

	level := make([]types.Hash, len(txHashes))
	for i, h := range txHashes {
		level[i] = hashLeaf(h)
	}
	if len(level) == 1 {
		return level[0], false
	}

	mutated := false
	for len(level) > 1 {
		// Check for duplicate adjacent pairs in the current level, before
		// any odd-count padding is applied — a real (non-padding) repeat
		// here means this level could also have been produced by a
		// shorter, differently-ordered transaction set with the same root.
		for pos := 0; pos+1 < len(level); pos += 2 {
			if level[pos] == level[pos+1] {
				mutated = true
			}
		}

		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}

		next := make([]types.Hash, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = hashInternal(level[i], level[i+1])
		}
		level = next
	}

	return level[0], mutated
}
