// Package node wires storage, chain state, the mempool, and the PoW miner
// into a single runnable process. It has no networking of its own —
// internal/p2p only fixes the wire framing (see its doc comment); an actual
// peer manager is an external collaborator this package does not implement.
package node

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/hnsnet-chain/config"
	"github.com/Klingon-tech/hnsnet-chain/internal/chain"
	"github.com/Klingon-tech/hnsnet-chain/internal/consensus"
	klog "github.com/Klingon-tech/hnsnet-chain/internal/log"
	"github.com/Klingon-tech/hnsnet-chain/internal/mempool"
	"github.com/Klingon-tech/hnsnet-chain/internal/miner"
	"github.com/Klingon-tech/hnsnet-chain/internal/storage"
	"github.com/Klingon-tech/hnsnet-chain/internal/utxo"
	"github.com/Klingon-tech/hnsnet-chain/pkg/crypto"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
	"github.com/rs/zerolog"
)

// Node bundles the chain, mempool, and (optional) miner for one running
// instance of the daemon.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	db        storage.DB
	utxoStore *utxo.Store
	ch        *chain.Chain
	pool      *mempool.Pool

	validatorKey *crypto.PrivateKey // may be nil; only used to derive a coinbase

	mine      bool
	coinbase  types.Address
	threads   int
	blockTime time.Duration

	miningCancel context.CancelFunc
	miningDone   chan struct{}
	stopped      atomic.Bool

	mu sync.Mutex
}

// New builds a Node from runtime config. It opens storage, recovers or
// initializes the chain from genesis, and installs the names engine on the
// chain; Start hands the same engine to the miner. The mempool does not
// consult the names engine.
func New(cfg *config.Config) (*Node, error) {
	gen := config.GenesisFor(cfg.Network)

	var db storage.DB
	if cfg.DataDir == "" {
		db = storage.NewMemory()
	} else {
		bdb, err := storage.NewBadger(cfg.UTXODir())
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		db = bdb
	}

	utxoStore := utxo.NewStore(db)

	engine, err := createEngine(gen)
	if err != nil {
		return nil, fmt.Errorf("create consensus engine: %w", err)
	}

	ch, err := chain.New(types.ChainID{}, db, utxoStore, engine)
	if err != nil {
		return nil, fmt.Errorf("create chain: %w", err)
	}
	state := ch.State()
	if state.IsGenesis() {
		if err := ch.InitFromGenesis(gen); err != nil {
			return nil, fmt.Errorf("init genesis: %w", err)
		}
	}
	ch.SetConsensusRules(gen.Protocol.Consensus)
	ch.SetNamesEngine(chain.NewNamesEngine(db, gen))

	adapter := miner.NewUTXOAdapter(utxoStore)
	pool := mempool.New(adapter, 5000)
	pool.SetMinFeeRate(gen.Protocol.Consensus.MinFeeRate)
	pool.SetCoinbaseMaturity(config.CoinbaseMaturity, ch.Height, utxoStore)

	var validatorKey *crypto.PrivateKey
	if cfg.Mining.ValidatorKey != "" {
		validatorKey, err = loadValidatorKey(cfg.Mining.ValidatorKey)
		if err != nil {
			return nil, err
		}
	}

	var coinbase types.Address
	if cfg.Mining.Enabled {
		coinbase, err = resolveCoinbase(cfg.Mining.Coinbase, validatorKey)
		if err != nil {
			return nil, err
		}
	}

	threads := cfg.Mining.Threads
	if threads <= 0 {
		threads = 1
	}

	n := &Node{
		cfg:          cfg,
		genesis:      gen,
		logger:       klog.WithComponent("node"),
		db:           db,
		utxoStore:    utxoStore,
		ch:           ch,
		pool:         pool,
		validatorKey: validatorKey,
		mine:         cfg.Mining.Enabled,
		coinbase:     coinbase,
		threads:      threads,
		blockTime:    time.Duration(gen.Protocol.Consensus.BlockTime) * time.Second,
	}
	return n, nil
}

// Height returns the current chain height.
func (n *Node) Height() uint64 { return n.ch.Height() }

// TipHash returns the current chain tip.
func (n *Node) TipHash() types.Hash { return n.ch.TipHash() }

// Chain returns the underlying chain state machine.
func (n *Node) Chain() *chain.Chain { return n.ch }

// Mempool returns the underlying transaction pool.
func (n *Node) Mempool() *mempool.Pool { return n.pool }

// Start begins block production if mining is enabled. It returns
// immediately; mining runs on a background goroutine until Stop is called.
func (n *Node) Start() error {
	if !n.mine {
		n.logger.Info().Msg("mining disabled, node running in read-only mode")
		return nil
	}

	engine, err := createEngine(n.genesis)
	if err != nil {
		return fmt.Errorf("create mining engine: %w", err)
	}
	m := miner.New(n.ch, engine, n.pool, n.coinbase,
		n.genesis.Protocol.Consensus.BlockReward,
		n.genesis.Protocol.Consensus.MaxSupply,
		n.ch.Supply)
	if ne := n.ch.NamesEngine(); ne != nil {
		m.SetNamesEngine(ne, miner.NewUTXOAdapter(n.utxoStore))
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.miningCancel = cancel
	n.miningDone = make(chan struct{})

	go n.runMiner(ctx, m)

	return nil
}

// runMiner repeatedly produces, applies, and evicts confirmed transactions
// for blocks, pacing attempts to roughly the genesis block-time target.
func (n *Node) runMiner(ctx context.Context, m *miner.Miner) {
	defer close(n.miningDone)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		blk, err := m.ProduceBlockCtx(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n.logger.Error().Err(err).Msg("produce block")
			time.Sleep(time.Second)
			continue
		}

		n.mu.Lock()
		applyErr := n.ch.ProcessBlock(blk)
		n.mu.Unlock()
		if applyErr != nil {
			n.logger.Error().Err(applyErr).Uint64("height", blk.Header.Height).Msg("apply mined block")
			continue
		}
		n.pool.RemoveConfirmed(blk.Transactions)
		evicted := n.pool.Evict()

		n.logger.Info().
			Uint64("height", blk.Header.Height).
			Str("hash", blk.Hash().String()[:16]+"...").
			Int("txs", len(blk.Transactions)).
			Int("evicted", evicted).
			Str("difficulty", formatDifficulty(consensus.BlockWork(blk.Header.Bits))).
			Msg("block mined")

		select {
		case <-ctx.Done():
			return
		case <-time.After(n.blockTime):
		}
	}
}

// Stop halts mining (if running) and closes storage.
func (n *Node) Stop() {
	if !n.stopped.CompareAndSwap(false, true) {
		return
	}
	if n.miningCancel != nil {
		n.miningCancel()
		<-n.miningDone
	}
	if n.validatorKey != nil {
		n.validatorKey.Zero()
	}
	if err := n.db.Close(); err != nil {
		n.logger.Error().Err(err).Msg("close storage")
	}
}
