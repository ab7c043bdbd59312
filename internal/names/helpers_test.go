package names

import (
	"github.com/Klingon-tech/hnsnet-chain/pkg/crypto"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

func testNameHash(name string) types.NameHash {
	return crypto.NameHash(name)
}

func testOutpoint(seed byte) types.Outpoint {
	var h types.Hash
	h[0] = seed
	return types.Outpoint{TxID: h, Index: 0}
}
