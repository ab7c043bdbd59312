// Package names implements the covenant-driven name-auction state machine:
// the engine that decides whether an OPEN/BID/REVEAL/REGISTER/RENEW/
// TRANSFER/REVOKE covenant is a legal transition for its name, and applies
// or undoes the resulting NameState changes in lock-step with block
// processing.
package names

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

// State is the derived auction phase of a name, computed from its
// NameState and the current chain height — it is never stored directly.
type State uint8

const (
	StateOpening State = iota // No state yet, or before the auction-start height.
	StateBidding
	StateReveal
	StateClosed
	StateRevoked
	StateLocked // CLAIM-seeded name inside its lockup window.
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "OPENING"
	case StateBidding:
		return "BIDDING"
	case StateReveal:
		return "REVEAL"
	case StateClosed:
		return "CLOSED"
	case StateRevoked:
		return "REVOKED"
	case StateLocked:
		return "LOCKED"
	default:
		return "UNKNOWN"
	}
}

// noHeight marks a NameState timing field as "never happened". Block
// heights are unsigned, so spec.md's "-1" sentinel becomes a max value
// that can never be reached by a live chain.
const noHeight = ^uint32(0)

// NameState is the per-name auction record. It exists from the first OPEN
// until the name fully expires and is eligible for re-opening.
type NameState struct {
	NameHash types.NameHash `json:"name_hash"`
	Name     string         `json:"name"`

	Height  uint32 `json:"height"`  // Auction-open block height. Set once by OPEN (P3).
	Renewal uint32 `json:"renewal"` // Height of the last RENEW/REGISTER/FINALIZE.
	Transfer uint32 `json:"transfer"` // Height a pending TRANSFER started, or noHeight.
	Revoked  uint32 `json:"revoked"`  // Height of REVOKE, or noHeight.
	Claimed  uint32 `json:"claimed"`  // Height of CLAIM, or noHeight.

	Owner   types.Outpoint `json:"owner"`   // Current winning/registered outpoint.
	Value   uint64         `json:"value"`   // Winning bid (top reveal).
	Highest uint64         `json:"highest"` // Second-highest reveal; what the winner pays.
	Data    []byte         `json:"data"`    // Current registered resource blob.

	Weak  bool `json:"weak"`  // CLAIM not yet hardened past ClaimPeriod.
	Dirty bool `json:"dirty"` // Resource data changed since last tree commit.

	TransferTo types.Address `json:"transfer_to"` // Pending TRANSFER destination.
	Bids       int           `json:"bids"`        // Number of BID covenants seen this auction round.
}

func newNameState(nameHash types.NameHash, name string, openHeight uint32) *NameState {
	return &NameState{
		NameHash: nameHash,
		Name:     name,
		Height:   openHeight,
		Transfer: noHeight,
		Revoked:  noHeight,
		Claimed:  noHeight,
	}
}

func (ns *NameState) clone() *NameState {
	cp := *ns
	cp.Data = append([]byte(nil), ns.Data...)
	return &cp
}

// state computes the derived auction phase at the given chain height,
// per spec.md §3 "Derived state".
func (ns *NameState) state(height uint32, rules Rules) State {
	if ns.Revoked != noHeight {
		return StateRevoked
	}
	if ns.Claimed != noHeight && height < ns.Claimed+rules.LockupPeriod {
		return StateLocked
	}
	if height < ns.Height {
		return StateOpening
	}
	switch {
	case height < ns.Height+rules.BiddingPeriod:
		return StateBidding
	case height < ns.Height+rules.BiddingPeriod+rules.RevealPeriod:
		return StateReveal
	default:
		return StateClosed
	}
}

// expired reports whether the name is eligible for a fresh OPEN: a revoked
// name once AuctionMaturity blocks have passed since the REVOKE, a name with
// no winning reveal once its auction has closed, or a name with an owner
// once RenewalWindow blocks have passed since its last renewal.
func (ns *NameState) expired(height uint32, rules Rules) bool {
	if ns.Revoked != noHeight {
		return height >= ns.Revoked+rules.AuctionMaturity
	}
	if ns.Owner.IsZero() && ns.state(height, rules) == StateClosed {
		return true
	}
	if !ns.Owner.IsZero() && height >= ns.Renewal+rules.RenewalWindow {
		return true
	}
	return false
}

// NameDelta captures the previous value of every NameState field a single
// covenant application touched, so a reorg can restore it exactly
// (spec.md §3 invariant 4). A nil PrevState means the name did not exist
// before this delta (i.e. it was created by an OPEN).
type NameDelta struct {
	NameHash  types.NameHash `json:"name_hash"`
	PrevState *NameState     `json:"prev_state"` // nil if this delta created the name.
	Created   bool           `json:"created"`
}

// Rules mirrors config.NameRules field for field, decoupled from
// the config package so tests can construct it directly.
type Rules struct {
	TreeInterval     uint32
	BiddingPeriod    uint32
	RevealPeriod     uint32
	RenewalWindow    uint32
	TransferLockup   uint32
	ClaimPeriod      uint32
	LockupPeriod     uint32
	AuctionMaturity  uint32
	RenewalMaturity  uint32
	WeakLockup       uint32
	MaxBlockOpens    int
	MaxBlockUpdates  int
	MaxBlockRenewals int
}

// AuctionStartHeight computes the block height a new OPEN's auction begins,
// per spec.md §4.A: "(ceil(h/treeInterval)+1)·treeInterval".
func AuctionStartHeight(h uint32, treeInterval uint32) uint32 {
	if treeInterval == 0 {
		return h
	}
	ceilDiv := (h + treeInterval - 1) / treeInterval
	return (ceilDiv + 1) * treeInterval
}

var (
	// ErrInvalidCovenant is the umbrella error for a structurally or
	// semantically illegal covenant transition; always wraps a more
	// specific reason via fmt.Errorf("%w: ...", ErrInvalidCovenant).
	ErrInvalidCovenant = errors.New("invalid covenant transition")
	ErrCapExceeded     = errors.New("per-block name-operation cap exceeded")
	ErrNameNotFound    = errors.New("name state not found")
)

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidCovenant, fmt.Sprintf(format, args...))
}
