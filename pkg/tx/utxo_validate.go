package tx

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/hnsnet-chain/pkg/covenant"
	"github.com/Klingon-tech/hnsnet-chain/pkg/crypto"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

// UTXO-aware validation errors.
var (
	ErrInputNotFound     = errors.New("input UTXO not found")
	ErrInputSpent        = errors.New("input UTXO already spent")
	ErrInsufficientFee   = errors.New("insufficient fee")
	ErrInputOverflow     = errors.New("input values overflow")
	ErrScriptMismatch    = errors.New("pubkey does not match UTXO address")
	ErrUnspendableOutput = errors.New("output is unspendable outside its covenant chain")
)

// UTXOView is the read-only view of a coin a transaction spends.
type UTXOView struct {
	Value    uint64
	Address  types.Address
	Covenant covenant.Covenant
}

// UTXOProvider provides read-only access to the UTXO set for validation.
type UTXOProvider interface {
	GetUTXO(outpoint types.Outpoint) (UTXOView, error)
	HasUTXO(outpoint types.Outpoint) bool
}

// spendableOnlyByCovenant lists the covenant types whose coin is, by
// consensus, never redeemable by a plain signature check alone — it only
// moves forward through the auction state machine, and the names engine
// decides whether the specific transition is allowed.
var spendableOnlyByCovenant = map[covenant.Type]bool{
	covenant.TypeBID:      true,
	covenant.TypeREVEAL:   true,
	covenant.TypeREGISTER: true,
	covenant.TypeUPDATE:   true,
	covenant.TypeRENEW:    true,
	covenant.TypeTRANSFER: true,
}

// ValidateWithUTXOs performs full validation of a transaction against the UTXO set.
// It checks that all inputs exist, are unspent, that the pubkey matches the
// UTXO's owning address for plain spends, that signatures are valid, and
// that inputs >= outputs. Covenant-gated inputs (BID/REVEAL/REGISTER/...)
// are only structurally checked here; their spend legality is decided by
// the names engine, which has the chain-height and auction context this
// function does not.
// Returns the fee (inputs - outputs).
func (tx *Transaction) ValidateWithUTXOs(provider UTXOProvider) (uint64, error) {
	if err := tx.ValidateStructure(); err != nil {
		return 0, err
	}

	var totalInput uint64
	for i, in := range tx.Inputs {
		if in.PrevOut.IsZero() {
			continue // Coinbase input.
		}

		if !provider.HasUTXO(in.PrevOut) {
			return 0, fmt.Errorf("input %d (%s): %w", i, in.PrevOut, ErrInputNotFound)
		}

		coin, err := provider.GetUTXO(in.PrevOut)
		if err != nil {
			return 0, fmt.Errorf("input %d: %w", i, err)
		}

		switch {
		case coin.Covenant.Type == covenant.TypeNONE, spendableOnlyByCovenant[coin.Covenant.Type]:
			// For a NONE coin, ordinary P2PKH ownership suffices. For a
			// locking covenant, the signature still proves ownership of
			// the underlying address; the names engine decides whether
			// the specific transition is legal.
			if err := verifyP2PKH(in.PubKey, coin.Address); err != nil {
				return 0, fmt.Errorf("input %d: %w", i, err)
			}
		default:
			return 0, fmt.Errorf("input %d (%s): %w", i, in.PrevOut, ErrUnspendableOutput)
		}

		if totalInput > math.MaxUint64-coin.Value {
			return 0, fmt.Errorf("input %d: %w", i, ErrInputOverflow)
		}
		totalInput += coin.Value
	}

	if err := tx.VerifySignatures(); err != nil {
		return 0, err
	}

	totalOutput, ovfErr := tx.TotalOutputValue()
	if ovfErr != nil {
		return 0, fmt.Errorf("output overflow: %w", ovfErr)
	}
	if totalInput < totalOutput {
		return 0, fmt.Errorf("%w: inputs=%d outputs=%d", ErrInsufficientFee, totalInput, totalOutput)
	}

	fee := totalInput - totalOutput
	return fee, nil
}

// ValidateStructure checks transaction structure without requiring UTXO access.
// Same as Validate() but renamed for clarity when used alongside ValidateWithUTXOs.
func (tx *Transaction) ValidateStructure() error {
	return tx.Validate()
}

// verifyP2PKH checks that a public key hashes to the coin's owning address.
func verifyP2PKH(pubKey []byte, addr types.Address) error {
	if len(pubKey) == 0 {
		return ErrMissingPubKey
	}
	derived := crypto.AddressFromPubKey(pubKey)
	if addr.Size != derived.Size || !bytes.Equal(addr.Hash[:addr.Size], derived.Hash[:derived.Size]) {
		return fmt.Errorf("%w: expected %s, got %s", ErrScriptMismatch, addr, derived)
	}
	return nil
}
