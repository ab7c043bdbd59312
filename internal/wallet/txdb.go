package wallet

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/hnsnet-chain/internal/storage"
	"github.com/Klingon-tech/hnsnet-chain/pkg/tx"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

// MempoolMaxAncestors bounds how many unconfirmed ancestors a new wallet
// spend may build on before the wallet refuses to sign it (spec.md §4.C
// invariant 4), mirroring internal/mempool's own package-wide ancestor cap.
const MempoolMaxAncestors = 25

// TxState is a wallet transaction's position in the insert/confirm state
// machine (spec.md §4.C).
type TxState int

const (
	StateNone TxState = iota
	StatePending
	StateConfirmed
)

// Key prefixes for the TXDB's badger-backed tables, following
// internal/utxo/store.go's prefix-scan idiom.
var (
	prefixCoin  = []byte("c/") // c/<txid><index> -> coin JSON
	prefixTx    = []byte("t/") // t/<txhash> -> txRecord JSON
	prefixBlock = []byte("h/") // h/<height BE8> -> block hash (revertTo index)
	prefixUndo  = []byte("u/") // u/<blockhash> -> blockUndo JSON
	keyBalance  = []byte("balance")
	keyMarked   = []byte("marked")
)

// ErrAncestorLimit is returned when a prospective spend would build on more
// unconfirmed ancestors than MempoolMaxAncestors allows.
var ErrAncestorLimit = errors.New("wallet: unconfirmed ancestor limit exceeded")

// AddressOwner reports whether an address belongs to the wallet. Coins and
// spends touching addresses it doesn't recognize are ignored by the TXDB.
type AddressOwner interface {
	Owns(addr types.Address) bool
}

// walletCoin is the persisted record for a coin the wallet has ever owned:
// when it was created and — once spent — by what and in what state. It
// embeds the same UTXO type SelectCoins consumes, so ListUnspent can hand
// its coins straight to coin selection without a conversion step.
type walletCoin struct {
	UTXO
	CreateTx    types.Hash
	CreateState TxState
	SpentTx     types.Hash
	SpentState  TxState // meaningful only when SpentTx is non-zero
}

func (c *walletCoin) unspent() bool {
	return c.SpentTx.IsZero()
}

// txRecord is the persisted per-transaction bookkeeping entry.
type txRecord struct {
	Hash        types.Hash
	State       TxState
	FirstSeen   int64 // unix seconds
	BlockHeight uint64
	BlockHash   types.Hash
	Spends      []types.Outpoint // wallet-owned coins this tx consumes
	Creates     []types.Outpoint // wallet-owned coins this tx creates
}

// BlockEntry identifies a confirmed block for addBlock/removeBlock/revertTo.
type BlockEntry struct {
	Height uint64
	Hash   types.Hash
}

// TXDB maintains a per-wallet consistent view of coins, transaction
// history, and balance (including name-auction locked value) under the
// event stream described in spec.md §4.C. It is backed by a storage.DB the
// same way internal/utxo.Store and internal/names.Store are, and reverts
// exactly via stored undo snapshots the same way internal/chain/reorg.go
// reverts the UTXO set.
type TXDB struct {
	mu    sync.Mutex
	db    storage.DB
	owner AddressOwner

	bal         Balance
	marked      bool
	startHeight uint64
	startHash   types.Hash
}

// NewTXDB creates a TXDB backed by db, recognizing coins and spends that
// touch addresses owner reports as owned.
func NewTXDB(db storage.DB, owner AddressOwner) (*TXDB, error) {
	w := &TXDB{db: db, owner: owner}
	if err := w.loadBalance(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *TXDB) loadBalance() error {
	ok, err := w.db.Has(keyBalance)
	if err != nil {
		return fmt.Errorf("load balance: %w", err)
	}
	if !ok {
		return nil
	}
	raw, err := w.db.Get(keyBalance)
	if err != nil {
		return fmt.Errorf("load balance: %w", err)
	}
	if err := json.Unmarshal(raw, &w.bal); err != nil {
		return fmt.Errorf("unmarshal balance: %w", err)
	}

	hasMarked, err := w.db.Has(keyMarked)
	if err != nil {
		return fmt.Errorf("load marked: %w", err)
	}
	if hasMarked {
		raw, err := w.db.Get(keyMarked)
		if err != nil {
			return fmt.Errorf("load marked: %w", err)
		}
		var m struct {
			Marked      bool
			StartHeight uint64
			StartHash   types.Hash
		}
		if err := json.Unmarshal(raw, &m); err != nil {
			return fmt.Errorf("unmarshal marked: %w", err)
		}
		w.marked, w.startHeight, w.startHash = m.Marked, m.StartHeight, m.StartHash
	}
	return nil
}

func (w *TXDB) persistBalance() error {
	raw, err := json.Marshal(w.bal)
	if err != nil {
		return fmt.Errorf("marshal balance: %w", err)
	}
	if err := w.db.Put(keyBalance, raw); err != nil {
		return fmt.Errorf("persist balance: %w", err)
	}
	m := struct {
		Marked      bool
		StartHeight uint64
		StartHash   types.Hash
	}{w.marked, w.startHeight, w.startHash}
	raw, err = json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal marked: %w", err)
	}
	return w.db.Put(keyMarked, raw)
}

// Balance returns a snapshot of the wallet's current balance.
func (w *TXDB) Balance() Balance {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bal
}

// ListUnspent returns every coin the wallet currently owns that has not
// been spent by any pending or confirmed transaction, ready to hand to
// SelectCoins.
func (w *TXDB) ListUnspent() ([]UTXO, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []UTXO
	err := w.db.ForEach(prefixCoin, func(_, v []byte) error {
		var c walletCoin
		if err := json.Unmarshal(v, &c); err != nil {
			return err
		}
		if c.unspent() {
			out = append(out, c.UTXO)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list unspent: %w", err)
	}
	return out, nil
}

// Marked reports whether the wallet has ever owned a confirmed transaction,
// and if so the block at which that first happened (spec.md §4.C
// invariant 3).
func (w *TXDB) Marked() (marked bool, startHeight uint64, startHash types.Hash) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.marked, w.startHeight, w.startHash
}

func coinKey(op types.Outpoint) []byte {
	key := make([]byte, len(prefixCoin)+types.HashSize+4)
	copy(key, prefixCoin)
	copy(key[len(prefixCoin):], op.TxID[:])
	binary.BigEndian.PutUint32(key[len(prefixCoin)+types.HashSize:], op.Index)
	return key
}

func txKey(h types.Hash) []byte {
	return append(append([]byte{}, prefixTx...), h[:]...)
}

func blockHeightKey(height uint64) []byte {
	key := make([]byte, len(prefixBlock)+8)
	copy(key, prefixBlock)
	binary.BigEndian.PutUint64(key[len(prefixBlock):], height)
	return key
}

func undoKey(h types.Hash) []byte {
	return append(append([]byte{}, prefixUndo...), h[:]...)
}

func (w *TXDB) getCoin(op types.Outpoint) (*walletCoin, bool, error) {
	ok, err := w.db.Has(coinKey(op))
	if err != nil {
		return nil, false, fmt.Errorf("coin has: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	raw, err := w.db.Get(coinKey(op))
	if err != nil {
		return nil, false, fmt.Errorf("coin get: %w", err)
	}
	var c walletCoin
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, false, fmt.Errorf("coin unmarshal: %w", err)
	}
	return &c, true, nil
}

func (w *TXDB) putCoin(c *walletCoin) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("coin marshal: %w", err)
	}
	return w.db.Put(coinKey(c.Outpoint), raw)
}

func (w *TXDB) deleteCoin(op types.Outpoint) error {
	return w.db.Delete(coinKey(op))
}

func (w *TXDB) getTx(h types.Hash) (*txRecord, bool, error) {
	ok, err := w.db.Has(txKey(h))
	if err != nil {
		return nil, false, fmt.Errorf("tx has: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	raw, err := w.db.Get(txKey(h))
	if err != nil {
		return nil, false, fmt.Errorf("tx get: %w", err)
	}
	var r txRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, false, fmt.Errorf("tx unmarshal: %w", err)
	}
	return &r, true, nil
}

func (w *TXDB) putTx(r *txRecord) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("tx marshal: %w", err)
	}
	return w.db.Put(txKey(r.Hash), raw)
}

func (w *TXDB) deleteTx(h types.Hash) error {
	return w.db.Delete(txKey(h))
}

// credit applies a newly-owned coin's value to the balance at the given
// state. Pending credits only ever touch Unconfirmed; Confirmed is touched
// only once the coin (or its confirm-time transition) reaches StateConfirmed.
func (w *TXDB) credit(value uint64, locked bool, state TxState) {
	w.bal.Unconfirmed += value
	if locked {
		w.bal.LockedUnconfirmed += value
	}
	if state == StateConfirmed {
		w.bal.Confirmed += value
		if locked {
			w.bal.LockedConfirmed += value
		}
	}
}

func (w *TXDB) debit(value uint64, locked bool, state TxState) {
	w.bal.Unconfirmed -= value
	if locked {
		w.bal.LockedUnconfirmed -= value
	}
	if state == StateConfirmed {
		w.bal.Confirmed -= value
		if locked {
			w.bal.LockedConfirmed -= value
		}
	}
}

// promote moves a coin-state's confirmed-side contribution in, without
// touching Unconfirmed (which already reflects mempool-or-confirmed).
func (w *TXDB) promoteCredit(value uint64, locked bool) {
	w.bal.Confirmed += value
	if locked {
		w.bal.LockedConfirmed += value
	}
}

func (w *TXDB) promoteDebit(value uint64, locked bool) {
	w.bal.Confirmed -= value
	if locked {
		w.bal.LockedConfirmed -= value
	}
}

// CheckAncestorLimit walks the unconfirmed ancestry of candidate's inputs
// (by following each spent coin back to its creating transaction, and that
// transaction's own unconfirmed inputs, recursively) and returns
// ErrAncestorLimit if the count exceeds MempoolMaxAncestors. Callers should
// run this before insertUnconfirmed for a transaction they are about to
// sign (spec.md §4.C invariant 4).
func (w *TXDB) CheckAncestorLimit(candidate *tx.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	seen := make(map[types.Hash]bool)
	var walk func(op types.Outpoint) error
	walk = func(op types.Outpoint) error {
		if op.IsZero() {
			return nil
		}
		c, ok, err := w.getCoin(op)
		if err != nil {
			return err
		}
		if !ok || c.CreateState != StatePending {
			return nil
		}
		if seen[c.CreateTx] {
			return nil
		}
		seen[c.CreateTx] = true
		if len(seen) > MempoolMaxAncestors {
			return ErrAncestorLimit
		}
		rec, ok, err := w.getTx(c.CreateTx)
		if err != nil || !ok {
			return err
		}
		for _, in := range rec.Spends {
			if err := walk(in); err != nil {
				return err
			}
		}
		return nil
	}
	for _, in := range candidate.Inputs {
		if err := walk(in.PrevOut); err != nil {
			return err
		}
	}
	return nil
}

// ownedTouches splits a transaction's inputs/outputs into the outpoints the
// wallet already owns (existing coins the tx spends) and the outputs it
// newly owns (coins the tx creates for a tracked address).
func (w *TXDB) ownedTouches(transaction *tx.Transaction) (spends []types.Outpoint, creates []UTXO, err error) {
	for _, in := range transaction.Inputs {
		if in.PrevOut.IsZero() {
			continue
		}
		_, ok, gerr := w.getCoin(in.PrevOut)
		if gerr != nil {
			return nil, nil, gerr
		}
		if ok {
			// Included even if already marked spent by a different pending
			// transaction: insertUnconfirmedLocked's conflict resolution
			// depends on seeing every wallet-owned input, not just unspent
			// ones, to detect and evict the earlier spender.
			spends = append(spends, in.PrevOut)
		}
	}
	txHash := transaction.Hash()
	for i, out := range transaction.Outputs {
		if !w.owner.Owns(out.Address) {
			continue
		}
		creates = append(creates, UTXO{
			Outpoint: types.Outpoint{TxID: txHash, Index: uint32(i)},
			Value:    out.Value,
			Address:  out.Address,
			Covenant: out.Covenant,
			Locked:   out.Covenant.Type.IsLocking(),
		})
	}
	return spends, creates, nil
}

// InsertUnconfirmed admits transaction into the mempool view: it credits
// any newly-owned outputs and debits any wallet-owned coins it spends,
// both at StatePending, detecting and resolving conflicts with coins
// already spent by a different pending transaction (spec.md §4.C
// invariant 5) before admitting.
func (w *TXDB) InsertUnconfirmed(transaction *tx.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.insertUnconfirmedLocked(transaction, time.Now().Unix())
}

func (w *TXDB) insertUnconfirmedLocked(transaction *tx.Transaction, firstSeen int64) error {
	txHash := transaction.Hash()
	if _, ok, err := w.getTx(txHash); err != nil {
		return err
	} else if ok {
		return nil // Already tracked.
	}

	spends, creates, err := w.ownedTouches(transaction)
	if err != nil {
		return err
	}
	if len(spends) == 0 && len(creates) == 0 {
		return nil // Nothing wallet-relevant in this tx.
	}

	// Conflict handling: a wallet-owned coin already pending-spent by a
	// different transaction is resolved by erasing that transaction (and
	// its descendants) before this one is admitted.
	for _, op := range spends {
		c, _, err := w.getCoin(op)
		if err != nil {
			return err
		}
		if !c.SpentTx.IsZero() && c.SpentTx != txHash {
			if err := w.eraseLocked(c.SpentTx); err != nil {
				return err
			}
		}
	}

	rec := &txRecord{Hash: txHash, State: StatePending, FirstSeen: firstSeen}

	for _, op := range spends {
		c, _, err := w.getCoin(op)
		if err != nil {
			return err
		}
		c.SpentTx = txHash
		c.SpentState = StatePending
		if err := w.putCoin(c); err != nil {
			return err
		}
		w.debit(c.Value, c.Locked, StatePending)
		w.bal.CoinCount--
		rec.Spends = append(rec.Spends, op)
	}

	for _, nc := range creates {
		wc := &walletCoin{UTXO: nc, CreateTx: txHash, CreateState: StatePending}
		if err := w.putCoin(wc); err != nil {
			return err
		}
		w.credit(nc.Value, nc.Locked, StatePending)
		rec.Creates = append(rec.Creates, nc.Outpoint)
		w.bal.CoinCount++
	}

	w.bal.TxCount++
	if err := w.putTx(rec); err != nil {
		return err
	}
	return w.persistBalance()
}

// Confirm promotes a previously-pending (or not-yet-seen) transaction to
// StateConfirmed at the given block, moving its credits/debits from the
// Unconfirmed-only bucket into Confirmed as well (spec.md §4.C state
// diagram). If the transaction was never inserted pending — e.g. it was
// first observed already confirmed, such as during initial chain sync —
// it is admitted directly at StateConfirmed.
func (w *TXDB) Confirm(transaction *tx.Transaction, block BlockEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.confirmLocked(transaction, block)
}

func (w *TXDB) confirmLocked(transaction *tx.Transaction, block BlockEntry) error {
	txHash := transaction.Hash()
	rec, ok, err := w.getTx(txHash)
	if err != nil {
		return err
	}
	if !ok {
		if err := w.insertUnconfirmedLocked(transaction, time.Now().Unix()); err != nil {
			return err
		}
		rec, ok, err = w.getTx(txHash)
		if err != nil || !ok {
			return err
		}
	}
	if rec.State == StateConfirmed {
		return nil
	}

	for _, op := range rec.Spends {
		c, ok, err := w.getCoin(op)
		if err != nil {
			return err
		}
		if !ok || c.SpentState == StateConfirmed {
			continue
		}
		w.promoteDebit(c.Value, c.Locked)
		c.SpentState = StateConfirmed
		if err := w.putCoin(c); err != nil {
			return err
		}
	}
	for _, op := range rec.Creates {
		c, ok, err := w.getCoin(op)
		if err != nil {
			return err
		}
		if !ok || c.CreateState == StateConfirmed {
			continue
		}
		w.promoteCredit(c.Value, c.Locked)
		c.CreateState = StateConfirmed
		if err := w.putCoin(c); err != nil {
			return err
		}
	}

	rec.State = StateConfirmed
	rec.BlockHeight, rec.BlockHash = block.Height, block.Hash
	if err := w.putTx(rec); err != nil {
		return err
	}

	if !w.marked {
		w.marked = true
		w.startHeight, w.startHash = block.Height, block.Hash
	}
	return w.persistBalance()
}

// Unconfirm reverts a confirmed transaction back to StatePending, the
// inverse of Confirm (spec.md §4.C state diagram).
func (w *TXDB) Unconfirm(txHash types.Hash) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.unconfirmLocked(txHash)
}

func (w *TXDB) unconfirmLocked(txHash types.Hash) error {
	rec, ok, err := w.getTx(txHash)
	if err != nil || !ok || rec.State != StateConfirmed {
		return err
	}

	for _, op := range rec.Spends {
		c, ok, err := w.getCoin(op)
		if err != nil {
			return err
		}
		if !ok || c.SpentState != StateConfirmed {
			continue
		}
		w.promoteCredit(c.Value, c.Locked)
		c.SpentState = StatePending
		if err := w.putCoin(c); err != nil {
			return err
		}
	}
	for _, op := range rec.Creates {
		c, ok, err := w.getCoin(op)
		if err != nil {
			return err
		}
		if !ok || c.CreateState != StateConfirmed {
			continue
		}
		w.promoteDebit(c.Value, c.Locked)
		c.CreateState = StatePending
		if err := w.putCoin(c); err != nil {
			return err
		}
	}

	rec.State = StatePending
	rec.BlockHeight, rec.BlockHash = 0, types.Hash{}
	if err := w.putTx(rec); err != nil {
		return err
	}
	return w.persistBalance()
}

// Erase drops a transaction (and every descendant that spends one of its
// outputs) from the wallet entirely: pending or confirmed, it is as if the
// wallet never saw it. Used for mempool eviction and for the double-spend
// conflict resolution in insertUnconfirmedLocked (spec.md §4.C invariant 5).
func (w *TXDB) Erase(txHash types.Hash) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.eraseLocked(txHash); err != nil {
		return err
	}
	return w.persistBalance()
}

func (w *TXDB) eraseLocked(txHash types.Hash) error {
	rec, ok, err := w.getTx(txHash)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	// Cascade: any coin this tx created may itself have been spent by a
	// descendant transaction, which must be erased first.
	for _, op := range rec.Creates {
		c, ok, err := w.getCoin(op)
		if err != nil {
			return err
		}
		if ok && !c.SpentTx.IsZero() {
			if err := w.eraseLocked(c.SpentTx); err != nil {
				return err
			}
		}
	}

	// A spend being erased makes the coin unspent again: reverse the debit
	// insertUnconfirmedLocked/confirmLocked applied by crediting it back.
	for _, op := range rec.Spends {
		c, ok, err := w.getCoin(op)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		w.credit(c.Value, c.Locked, c.SpentState)
		w.bal.CoinCount++
		c.SpentTx = types.Hash{}
		c.SpentState = StateNone
		if err := w.putCoin(c); err != nil {
			return err
		}
	}
	// A created coin being erased never existed: reverse the credit and
	// drop the coin record entirely.
	for _, op := range rec.Creates {
		c, ok, err := w.getCoin(op)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		w.debit(c.Value, c.Locked, c.CreateState)
		if err := w.deleteCoin(op); err != nil {
			return err
		}
		w.bal.CoinCount--
	}

	w.bal.TxCount--
	return w.deleteTx(txHash)
}

// AddBlock applies every wallet-relevant transaction in a newly connected
// block in one step, recording an undo snapshot so RemoveBlock can reverse
// it exactly (spec.md §4.C invariant 2), the same full-snapshot approach
// internal/chain/reorg.go uses for UTXO undo.
func (w *TXDB) AddBlock(entry BlockEntry, txs []*tx.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	before := w.bal
	beforeMarked, beforeHeight, beforeHash := w.marked, w.startHeight, w.startHash

	var touched []types.Hash
	for _, transaction := range txs {
		h := transaction.Hash()
		if err := w.insertUnconfirmedLocked(transaction, time.Now().Unix()); err != nil {
			return err
		}
		if err := w.confirmLocked(transaction, entry); err != nil {
			return err
		}
		touched = append(touched, h)
	}

	undo := blockUndo{
		Before:       before,
		BeforeMarked: beforeMarked,
		BeforeHeight: beforeHeight,
		BeforeHash:   beforeHash,
		TxHashes:     touched,
	}
	raw, err := json.Marshal(undo)
	if err != nil {
		return fmt.Errorf("marshal block undo: %w", err)
	}
	if err := w.db.Put(undoKey(entry.Hash), raw); err != nil {
		return fmt.Errorf("persist block undo: %w", err)
	}
	if err := w.db.Put(blockHeightKey(entry.Height), entry.Hash[:]); err != nil {
		return fmt.Errorf("persist block height index: %w", err)
	}
	return w.persistBalance()
}

// blockUndo is the snapshot AddBlock stores so RemoveBlock can restore the
// wallet to its exact pre-block state, mirroring internal/chain/reorg.go's
// UndoData (full prior values, not deltas).
type blockUndo struct {
	Before       Balance
	BeforeMarked bool
	BeforeHeight uint64
	BeforeHash   types.Hash
	TxHashes     []types.Hash
}

// RemoveBlock reverses a previously-applied AddBlock exactly, restoring the
// balance and marked-state snapshot taken at the time (spec.md §4.C
// invariant 2: addBlock then removeBlock must be a strict identity). Every
// transaction the block confirmed reverts to StatePending rather than
// disappearing, since the transactions themselves may still be valid
// mempool candidates after the block is disconnected.
func (w *TXDB) RemoveBlock(entry BlockEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	ok, err := w.db.Has(undoKey(entry.Hash))
	if err != nil {
		return fmt.Errorf("undo has: %w", err)
	}
	if !ok {
		return nil
	}
	raw, err := w.db.Get(undoKey(entry.Hash))
	if err != nil {
		return fmt.Errorf("undo get: %w", err)
	}
	var undo blockUndo
	if err := json.Unmarshal(raw, &undo); err != nil {
		return fmt.Errorf("undo unmarshal: %w", err)
	}

	for i := len(undo.TxHashes) - 1; i >= 0; i-- {
		if err := w.unconfirmLocked(undo.TxHashes[i]); err != nil {
			return err
		}
	}

	w.bal = undo.Before
	w.marked, w.startHeight, w.startHash = undo.BeforeMarked, undo.BeforeHeight, undo.BeforeHash

	if err := w.db.Delete(undoKey(entry.Hash)); err != nil {
		return fmt.Errorf("undo delete: %w", err)
	}
	if err := w.db.Delete(blockHeightKey(entry.Height)); err != nil {
		return fmt.Errorf("block height index delete: %w", err)
	}
	return w.persistBalance()
}

// RevertTo disconnects every block above height, in descending order, by
// walking the block-height index and calling RemoveBlock on each. Used when
// the chain reorganizes past a height the wallet has already confirmed
// transactions against.
func (w *TXDB) RevertTo(height uint64, tip BlockEntry) error {
	cur := tip
	for cur.Height > height {
		if err := w.RemoveBlock(cur); err != nil {
			return err
		}
		if cur.Height == 0 {
			return nil
		}
		prevKey := blockHeightKey(cur.Height - 1)
		ok, err := w.db.Has(prevKey)
		if err != nil {
			return fmt.Errorf("block height index has: %w", err)
		}
		if !ok {
			return nil
		}
		prevHash, err := w.db.Get(prevKey)
		if err != nil {
			return fmt.Errorf("block height index get: %w", err)
		}
		var h types.Hash
		copy(h[:], prevHash)
		cur = BlockEntry{Height: cur.Height - 1, Hash: h}
	}
	return nil
}

// Zap drops every transaction the wallet has recorded as pending for
// longer than age, along with the coins they touch, without affecting
// confirmed history. Used to clear out mempool entries that were evicted
// or replaced elsewhere on the network without the wallet ever being told.
func (w *TXDB) Zap(olderThan time.Duration) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).Unix()
	var stale []types.Hash
	err := w.db.ForEach(prefixTx, func(_, v []byte) error {
		var r txRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		if r.State == StatePending && r.FirstSeen < cutoff {
			stale = append(stale, r.Hash)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("zap scan: %w", err)
	}

	n := 0
	for _, h := range stale {
		if _, ok, err := w.getTx(h); err != nil {
			return n, err
		} else if !ok {
			continue // already erased as a descendant of an earlier zap
		}
		if err := w.eraseLocked(h); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		if err := w.persistBalance(); err != nil {
			return n, err
		}
	}
	return n, nil
}
