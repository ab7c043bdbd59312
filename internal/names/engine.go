package names

import (
	"github.com/Klingon-tech/hnsnet-chain/pkg/covenant"
	"github.com/Klingon-tech/hnsnet-chain/pkg/crypto"
	"github.com/Klingon-tech/hnsnet-chain/pkg/tx"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

// Transition is one name's worth of state change produced by processing a
// single covenant output. Delta.PrevState is the pre-image needed to undo
// it; New is the post-image to persist going forward.
type Transition struct {
	NameHash types.NameHash
	Delta    NameDelta
	New      *NameState
}

// ProcessResult is the outcome of running every covenant-bearing output of
// one transaction through the engine.
type ProcessResult struct {
	Transitions []Transition
	Opens       int
	Updates     int
	Renewals    int
}

// Engine decides whether covenants are permissible transitions and applies
// or undoes the resulting NameState changes. It holds no chain-height
// state of its own — height is always supplied by the caller (the chain
// processor or the miner's template builder), mirroring how
// internal/consensus.PoW takes height as a parameter rather than tracking
// it.
type Engine struct {
	store  *Store
	rules  Rules
	locked *LockedNames
}

// NewEngine creates a names engine backed by the given store.
func NewEngine(store *Store, rules Rules) *Engine {
	return &Engine{store: store, rules: rules}
}

// Lookup returns the current NameState for a name hash, or nil if the name
// has never been opened (or has fully expired and been pruned).
func (e *Engine) Lookup(nameHash types.NameHash) (*NameState, error) {
	return e.store.Get(nameHash)
}

// State returns the derived auction phase for a name at the given height.
func (e *Engine) State(nameHash types.NameHash, height uint32) (State, error) {
	ns, err := e.store.Get(nameHash)
	if err != nil {
		return 0, err
	}
	if ns == nil {
		return StateOpening, nil
	}
	return ns.state(height, e.rules), nil
}

// inputCovenant finds the input among the transaction's resolved coin views
// whose covenant carries the given name hash. Returns nil if none match.
func inputCovenant(inputs []tx.UTXOView, nameHash types.NameHash) *covenant.Covenant {
	for i := range inputs {
		if h, ok := covenant.NameHashOf(inputs[i].Covenant); ok && h == nameHash {
			return &inputs[i].Covenant
		}
	}
	return nil
}

// Process evaluates every covenant-bearing output of a transaction against
// committed chain state and returns the resulting transitions, or an
// InvalidCovenant-wrapped error on the first illegal one. It does not see
// sibling transactions still pending in the same block — callers that
// process a whole block must use ProcessBlock instead, which is the only
// path that can correctly reject a second OPEN for a name already opened
// earlier in the same block.
func (e *Engine) Process(transaction *tx.Transaction, inputs []tx.UTXOView, height uint32) (*ProcessResult, error) {
	return e.processTx(transaction, inputs, height, e.store.Get)
}

// BlockResult aggregates the per-transaction ProcessResults of an entire
// block, for a single CheckCaps call and a single ApplyTransitions/
// UndoTransitions pass.
type BlockResult struct {
	Transitions []Transition
	Opens       int
	Updates     int
	Renewals    int
}

// ProcessBlock runs every transaction's covenant outputs through the engine
// in order, threading an in-memory overlay of not-yet-committed NameState
// changes between them. This is what makes two OPENs for the same name
// within one block resolve deterministically: the first is processed
// against committed state and succeeds, the second sees the first's
// pending (uncommitted) NameState through the overlay and is rejected as
// ErrInvalidCovenant — which, like any other validation failure, causes
// the caller to reject the whole block rather than silently admit one of
// the two.
func (e *Engine) ProcessBlock(transactions []*tx.Transaction, inputsPerTx [][]tx.UTXOView, height uint32) (*BlockResult, error) {
	overlay := make(map[types.NameHash]*NameState)
	lookup := func(h types.NameHash) (*NameState, error) {
		if ns, ok := overlay[h]; ok {
			return ns, nil
		}
		return e.store.Get(h)
	}

	result := &BlockResult{}
	for i, transaction := range transactions {
		var inputs []tx.UTXOView
		if i < len(inputsPerTx) {
			inputs = inputsPerTx[i]
		}
		txResult, err := e.processTx(transaction, inputs, height, lookup)
		if err != nil {
			return nil, err
		}
		for _, t := range txResult.Transitions {
			overlay[t.NameHash] = t.New
		}
		result.Transitions = append(result.Transitions, txResult.Transitions...)
		result.Opens += txResult.Opens
		result.Updates += txResult.Updates
		result.Renewals += txResult.Renewals
	}

	if err := CheckCaps(result.Opens, result.Updates, result.Renewals, e.rules); err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) processTx(transaction *tx.Transaction, inputs []tx.UTXOView, height uint32, lookup func(types.NameHash) (*NameState, error)) (*ProcessResult, error) {
	result := &ProcessResult{}

	for outIdx, out := range transaction.Outputs {
		if out.Covenant.Type == covenant.TypeNONE {
			continue
		}

		nameHash, ok := covenant.NameHashOf(out.Covenant)
		if !ok {
			return nil, invalidf("output %d: covenant carries no name hash", outIdx)
		}

		prev, err := lookup(nameHash)
		if err != nil {
			return nil, err
		}

		owner := types.Outpoint{TxID: transaction.Hash(), Index: uint32(outIdx)}

		if out.Covenant.Type == covenant.TypeREDEEM && prev != nil && !prev.Owner.IsZero() {
			for _, in := range transaction.Inputs {
				if in.PrevOut == prev.Owner {
					return nil, invalidf("REDEEM: the winning reveal cannot be redeemed")
				}
			}
		}

		trans, err := e.processOutput(out, owner, prev, inputs, nameHash, height)
		if err != nil {
			return nil, err
		}

		switch out.Covenant.Type {
		case covenant.TypeOPEN:
			result.Opens++
		case covenant.TypeUPDATE:
			result.Updates++
		case covenant.TypeRENEW:
			result.Renewals++
		}

		result.Transitions = append(result.Transitions, *trans)
	}

	return result, nil
}

func (e *Engine) processOutput(out tx.Output, owner types.Outpoint, prev *NameState, inputs []tx.UTXOView, nameHash types.NameHash, height uint32) (*Transition, error) {
	switch out.Covenant.Type {
	case covenant.TypeOPEN:
		return e.processOpen(out, prev, nameHash, height)
	case covenant.TypeBID:
		return e.processBid(out, prev, nameHash, height)
	case covenant.TypeREVEAL:
		return e.processReveal(out, owner, prev, inputs, nameHash, height)
	case covenant.TypeREDEEM:
		return e.processRedeem(prev, inputs, nameHash, height)
	case covenant.TypeREGISTER, covenant.TypeUPDATE:
		return e.processRegister(out, owner, prev, inputs, nameHash, height)
	case covenant.TypeRENEW:
		return e.processRenew(out, prev, inputs, nameHash, height)
	case covenant.TypeTRANSFER:
		return e.processTransfer(out, prev, inputs, nameHash, height)
	case covenant.TypeFINALIZE:
		return e.processFinalize(out, owner, prev, inputs, nameHash, height)
	case covenant.TypeREVOKE:
		return e.processRevoke(prev, inputs, nameHash, height)
	case covenant.TypeCLAIM:
		return e.processClaim(out, owner, prev, nameHash, height)
	default:
		return nil, invalidf("unknown covenant type %d", out.Covenant.Type)
	}
}

func (e *Engine) processOpen(out tx.Output, prev *NameState, nameHash types.NameHash, height uint32) (*Transition, error) {
	open, err := covenant.ParseOpen(out.Covenant)
	if err != nil {
		return nil, invalidf("OPEN: %v", err)
	}

	if prev != nil && !prev.expired(height, e.rules) {
		return nil, invalidf("OPEN: name %q already in an auction", open.Name)
	}

	ns := newNameState(nameHash, open.Name, AuctionStartHeight(height, e.rules.TreeInterval))

	return &Transition{
		NameHash: nameHash,
		Delta:    NameDelta{NameHash: nameHash, PrevState: prevSnapshot(prev), Created: prev == nil},
		New:      ns,
	}, nil
}

func (e *Engine) processBid(out tx.Output, prev *NameState, nameHash types.NameHash, height uint32) (*Transition, error) {
	if _, err := covenant.ParseBid(out.Covenant); err != nil {
		return nil, invalidf("BID: %v", err)
	}
	if prev == nil {
		return nil, invalidf("BID: name has not been opened")
	}
	if prev.state(height, e.rules) != StateBidding {
		return nil, invalidf("BID: name is not in its bidding window")
	}

	ns := prev.clone()
	ns.Bids++

	return &Transition{
		NameHash: nameHash,
		Delta:    NameDelta{NameHash: nameHash, PrevState: prevSnapshot(prev)},
		New:      ns,
	}, nil
}

func (e *Engine) processReveal(out tx.Output, owner types.Outpoint, prev *NameState, inputs []tx.UTXOView, nameHash types.NameHash, height uint32) (*Transition, error) {
	reveal, err := covenant.ParseReveal(out.Covenant)
	if err != nil {
		return nil, invalidf("REVEAL: %v", err)
	}
	if prev == nil {
		return nil, invalidf("REVEAL: name has not been opened")
	}
	if prev.state(height, e.rules) != StateReveal {
		return nil, invalidf("REVEAL: name is not in its reveal window")
	}

	bidCov := inputCovenant(inputs, nameHash)
	if bidCov == nil || bidCov.Type != covenant.TypeBID {
		return nil, invalidf("REVEAL: no matching BID input")
	}
	bid, err := covenant.ParseBid(*bidCov)
	if err != nil {
		return nil, invalidf("REVEAL: %v", err)
	}

	value := out.Value
	blind := crypto.Blind(int64(value), reveal.Nonce)
	if blind != bid.Blind {
		return nil, invalidf("REVEAL: blinded bid does not match declared value/nonce")
	}

	var spentBidValue uint64
	for i := range inputs {
		if h, ok := covenant.NameHashOf(inputs[i].Covenant); ok && h == nameHash && inputs[i].Covenant.Type == covenant.TypeBID {
			spentBidValue = inputs[i].Value
			break
		}
	}
	if spentBidValue < value {
		return nil, invalidf("REVEAL: bid deposit %d below declared value %d", spentBidValue, value)
	}

	ns := prev.clone()
	// Highest-bid-wins; ties keep the earlier reveal (processed first in
	// canonical block order), per spec.md §4.A tie-break rule.
	if value > ns.Value {
		ns.Highest = ns.Value
		ns.Value = value
		ns.Owner = owner
	} else if value > ns.Highest {
		ns.Highest = value
	}

	return &Transition{
		NameHash: nameHash,
		Delta:    NameDelta{NameHash: nameHash, PrevState: prevSnapshot(prev)},
		New:      ns,
	}, nil
}

func (e *Engine) processRedeem(prev *NameState, inputs []tx.UTXOView, nameHash types.NameHash, height uint32) (*Transition, error) {
	if prev == nil {
		return nil, invalidf("REDEEM: name has not been opened")
	}
	if prev.state(height, e.rules) != StateClosed {
		return nil, invalidf("REDEEM: auction has not closed")
	}

	revealCov := inputCovenant(inputs, nameHash)
	if revealCov == nil || revealCov.Type != covenant.TypeREVEAL {
		return nil, invalidf("REDEEM: no matching REVEAL input")
	}
	if _, err := covenant.ParseReveal(*revealCov); err != nil {
		return nil, invalidf("REDEEM: %v", err)
	}
	if prev.Owner.IsZero() {
		return nil, invalidf("REDEEM: no winner recorded yet")
	}

	// A REDEEM only releases a losing reveal: processTx rejects one that
	// spends the winner's outpoint, which transitions via REGISTER instead.
	ns := prev.clone()

	return &Transition{
		NameHash: nameHash,
		Delta:    NameDelta{NameHash: nameHash, PrevState: prevSnapshot(prev)},
		New:      ns,
	}, nil
}

func (e *Engine) processRegister(out tx.Output, owner types.Outpoint, prev *NameState, inputs []tx.UTXOView, nameHash types.NameHash, height uint32) (*Transition, error) {
	reg, err := covenant.ParseRegister(out.Covenant)
	if err != nil {
		return nil, invalidf("REGISTER/UPDATE: %v", err)
	}
	if prev == nil {
		return nil, invalidf("REGISTER/UPDATE: name has not been opened")
	}

	inCov := inputCovenant(inputs, nameHash)
	if out.Covenant.Type == covenant.TypeREGISTER {
		if prev.state(height, e.rules) != StateClosed {
			return nil, invalidf("REGISTER: auction has not closed")
		}
		if inCov == nil || inCov.Type != covenant.TypeREVEAL {
			return nil, invalidf("REGISTER: no matching winning REVEAL input")
		}
		if out.Value != prev.Highest {
			return nil, invalidf("REGISTER: output value %d must equal second-price %d", out.Value, prev.Highest)
		}
	} else { // UPDATE
		if inCov == nil || (inCov.Type != covenant.TypeREGISTER && inCov.Type != covenant.TypeUPDATE) {
			return nil, invalidf("UPDATE: no matching REGISTER/UPDATE input")
		}
	}

	ns := prev.clone()
	ns.Owner = owner
	ns.Data = append([]byte(nil), reg.Data...)
	ns.Dirty = true
	if out.Covenant.Type == covenant.TypeREGISTER {
		ns.Renewal = height
	}

	return &Transition{
		NameHash: nameHash,
		Delta:    NameDelta{NameHash: nameHash, PrevState: prevSnapshot(prev)},
		New:      ns,
	}, nil
}

func (e *Engine) processRenew(out tx.Output, prev *NameState, inputs []tx.UTXOView, nameHash types.NameHash, height uint32) (*Transition, error) {
	ren, err := covenant.ParseRenew(out.Covenant)
	if err != nil {
		return nil, invalidf("RENEW: %v", err)
	}
	if prev == nil {
		return nil, invalidf("RENEW: name has not been opened")
	}
	if prev.state(height, e.rules) != StateClosed {
		return nil, invalidf("RENEW: name is not registered")
	}

	inCov := inputCovenant(inputs, nameHash)
	if inCov == nil || (inCov.Type != covenant.TypeREGISTER && inCov.Type != covenant.TypeUPDATE && inCov.Type != covenant.TypeRENEW) {
		return nil, invalidf("RENEW: no matching REGISTER/UPDATE/RENEW input")
	}
	if height < prev.Renewal+e.rules.TreeInterval {
		return nil, invalidf("RENEW: too soon since last renewal")
	}
	if height >= prev.Renewal+e.rules.RenewalWindow {
		return nil, invalidf("RENEW: renewal window has lapsed")
	}
	if ren.BlockHash.IsZero() {
		return nil, invalidf("RENEW: must commit to a recent block hash")
	}

	ns := prev.clone()
	ns.Renewal = height

	return &Transition{
		NameHash: nameHash,
		Delta:    NameDelta{NameHash: nameHash, PrevState: prevSnapshot(prev)},
		New:      ns,
	}, nil
}

func (e *Engine) processTransfer(out tx.Output, prev *NameState, inputs []tx.UTXOView, nameHash types.NameHash, height uint32) (*Transition, error) {
	t, err := covenant.ParseTransfer(out.Covenant)
	if err != nil {
		return nil, invalidf("TRANSFER: %v", err)
	}
	if prev == nil {
		return nil, invalidf("TRANSFER: name has not been opened")
	}
	if prev.state(height, e.rules) != StateClosed {
		return nil, invalidf("TRANSFER: name is not registered")
	}
	if inputCovenant(inputs, nameHash) == nil {
		return nil, invalidf("TRANSFER: no matching input covenant")
	}
	if prev.Transfer != noHeight {
		return nil, invalidf("TRANSFER: a transfer is already pending")
	}

	ns := prev.clone()
	ns.Transfer = height
	ns.TransferTo = t.Address

	return &Transition{
		NameHash: nameHash,
		Delta:    NameDelta{NameHash: nameHash, PrevState: prevSnapshot(prev)},
		New:      ns,
	}, nil
}

func (e *Engine) processFinalize(out tx.Output, owner types.Outpoint, prev *NameState, inputs []tx.UTXOView, nameHash types.NameHash, height uint32) (*Transition, error) {
	if _, err := covenant.ParseFinalize(out.Covenant); err != nil {
		return nil, invalidf("FINALIZE: %v", err)
	}
	if prev == nil {
		return nil, invalidf("FINALIZE: name has not been opened")
	}
	inCov := inputCovenant(inputs, nameHash)
	if inCov == nil || inCov.Type != covenant.TypeTRANSFER {
		return nil, invalidf("FINALIZE: no matching TRANSFER input")
	}
	if prev.Transfer == noHeight {
		return nil, invalidf("FINALIZE: no pending transfer")
	}
	if height < prev.Transfer+e.rules.TransferLockup {
		return nil, invalidf("FINALIZE: transfer not yet matured")
	}

	ns := prev.clone()
	ns.Transfer = noHeight
	ns.TransferTo = types.Address{}
	ns.Owner = owner
	ns.Renewal = height

	return &Transition{
		NameHash: nameHash,
		Delta:    NameDelta{NameHash: nameHash, PrevState: prevSnapshot(prev)},
		New:      ns,
	}, nil
}

func (e *Engine) processRevoke(prev *NameState, inputs []tx.UTXOView, nameHash types.NameHash, height uint32) (*Transition, error) {
	if prev == nil {
		return nil, invalidf("REVOKE: name has not been opened")
	}
	if inputCovenant(inputs, nameHash) == nil {
		return nil, invalidf("REVOKE: no matching owner input")
	}
	if prev.Revoked != noHeight {
		return nil, invalidf("REVOKE: already revoked")
	}

	ns := prev.clone()
	ns.Revoked = height

	return &Transition{
		NameHash: nameHash,
		Delta:    NameDelta{NameHash: nameHash, PrevState: prevSnapshot(prev)},
		New:      ns,
	}, nil
}

// prevSnapshot returns a defensive copy of prev for storage in a delta, or
// nil if there was no prior state.
func prevSnapshot(prev *NameState) *NameState {
	if prev == nil {
		return nil
	}
	return prev.clone()
}

// ApplyTransitions persists the New state of every transition. Call after
// a block's transactions have all passed Process.
func (e *Engine) ApplyTransitions(transitions []Transition) error {
	for _, t := range transitions {
		if err := e.store.Put(t.New); err != nil {
			return err
		}
	}
	return nil
}

// UndoTransitions reverts every transition in reverse-application order,
// restoring each name to its PrevState (or deleting it if the transition
// created it). Callers must pass transitions in the same order they were
// produced; UndoTransitions walks them backwards internally.
func (e *Engine) UndoTransitions(transitions []Transition) error {
	for i := len(transitions) - 1; i >= 0; i-- {
		d := transitions[i].Delta
		if d.Created {
			if err := e.store.Delete(d.NameHash); err != nil {
				return err
			}
			continue
		}
		if err := e.store.Put(d.PrevState); err != nil {
			return err
		}
	}
	return nil
}

// CheckCaps enforces the per-block consensus caps on OPEN/UPDATE/RENEW
// covenants, summed across every transaction in a block (spec.md §4.A).
// Both the miner's template assembly and the chain's block validation call
// this helper so the two can never disagree (SPEC_FULL.md §4.A).
func CheckCaps(opens, updates, renewals int, rules Rules) error {
	if rules.MaxBlockOpens > 0 && opens > rules.MaxBlockOpens {
		return invalidf("too many OPENs in block: %d > %d", opens, rules.MaxBlockOpens)
	}
	if rules.MaxBlockUpdates > 0 && updates > rules.MaxBlockUpdates {
		return invalidf("too many UPDATEs in block: %d > %d", updates, rules.MaxBlockUpdates)
	}
	if rules.MaxBlockRenewals > 0 && renewals > rules.MaxBlockRenewals {
		return invalidf("too many RENEWs in block: %d > %d", renewals, rules.MaxBlockRenewals)
	}
	return nil
}
