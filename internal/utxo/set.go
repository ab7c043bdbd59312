// Package utxo manages the UTXO set.
package utxo

import (
	"github.com/Klingon-tech/hnsnet-chain/pkg/covenant"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

// UTXO represents an unspent transaction output.
type UTXO struct {
	Outpoint    types.Outpoint    `json:"outpoint"`
	Value       uint64            `json:"value"`
	Address     types.Address     `json:"address"`
	Covenant    covenant.Covenant `json:"covenant"`
	Height      uint64            `json:"height"`
	Coinbase    bool              `json:"coinbase"`
	LockedUntil uint64            `json:"locked_until,omitempty"`
}

// NameHash returns the name this UTXO's covenant is bound to, if any.
func (u *UTXO) NameHash() (types.NameHash, bool) {
	return covenant.NameHashOf(u.Covenant)
}

// Set is the interface for UTXO storage.
type Set interface {
	Get(outpoint types.Outpoint) (*UTXO, error)
	Put(utxo *UTXO) error
	Delete(outpoint types.Outpoint) error
	Has(outpoint types.Outpoint) (bool, error)
}
