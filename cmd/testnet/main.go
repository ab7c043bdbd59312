// Command testnet boots a 2-node local testnet from scratch.
//
// Usage: go run ./cmd/testnet/
//
// It creates a fresh testnet genesis, boots two in-process nodes sharing
// that genesis (one block producer, one follower), produces a handful of
// PoW blocks, hands each one to the follower directly (this tree only
// implements internal/p2p's wire framing, not a peer manager — see its doc
// comment), and verifies both chains converge on the same tip.
// Ctrl+C for early shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
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
)

const numBlocks = 5

// nodeBundle groups the components for one logical node.
type nodeBundle struct {
	name  string
	chain *chain.Chain
	pool  *mempool.Pool
	miner *miner.Miner // nil for the follower.
}

func main() {
	klog.Init("info", false, "")
	logger := klog.WithComponent("testnet")

	logger.Info().Msg("=== Klingnet 2-Node Local Testnet ===")

	// ── Phase 1: Genesis + coinbase identity ─────────────────────────────

	minerKey, err := crypto.GenerateKey()
	if err != nil {
		logger.Fatal().Err(err).Msg("generate miner key")
	}
	defer minerKey.Zero()
	coinbaseAddr := crypto.AddressFromPubKey(minerKey.PublicKey())

	types.SetAddressHRP(types.TestnetHRP)

	gen := config.TestnetGenesis()
	gen.ChainID = "klingnet-testnet-local"
	gen.ChainName = "Local Testnet"
	gen.Timestamp = uint64(time.Now().Unix())

	logger.Info().
		Str("chain_id", gen.ChainID).
		Str("coinbase", coinbaseAddr.String()).
		Msg("Genesis config created")

	// ── Phase 2: Build nodes ──────────────────────────────────────────────

	node1, err := buildNode("node-1", gen, coinbaseAddr)
	if err != nil {
		logger.Fatal().Err(err).Msg("build node-1")
	}
	node2, err := buildNode("node-2", gen, types.Address{})
	if err != nil {
		logger.Fatal().Err(err).Msg("build node-2")
	}

	logger.Info().
		Uint64("node1_height", node1.chain.Height()).
		Uint64("node2_height", node2.chain.Height()).
		Msg("Genesis initialized on both nodes")

	// ── Phase 3: Signal handling ──────────────────────────────────────────

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("Shutdown signal received")
		cancel()
	}()

	// ── Phase 4: Block production ─────────────────────────────────────────
	// node-1 mines; each mined block is handed directly to node-2 in place
	// of a gossiped relay, since this tree has no live peer manager.

	logger.Info().Int("blocks", numBlocks).Msg("Starting block production")

	for i := 0; i < numBlocks; i++ {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Production interrupted")
			goto verify
		default:
		}

		blk, err := node1.miner.ProduceBlockCtx(ctx)
		if err != nil {
			if ctx.Err() != nil {
				goto verify
			}
			logger.Fatal().Err(err).Msg("produce block")
		}

		if err := node1.chain.ProcessBlock(blk); err != nil {
			logger.Fatal().Err(err).Msg("process block on node-1")
		}
		node1.pool.RemoveConfirmed(blk.Transactions)

		if err := node2.chain.ProcessBlock(blk); err != nil && !errors.Is(err, chain.ErrBlockKnown) {
			logger.Fatal().Err(err).Msg("relay block to node-2")
		}
		node2.pool.RemoveConfirmed(blk.Transactions)

		logger.Info().
			Uint64("height", blk.Header.Height).
			Str("hash", blk.Hash().String()[:16]+"...").
			Int("txs", len(blk.Transactions)).
			Uint64("reward", blk.Transactions[0].Outputs[0].Value).
			Msg("Block produced and relayed")
	}

verify:
	// ── Phase 5: Verification ─────────────────────────────────────────────

	h1 := node1.chain.Height()
	h2 := node2.chain.Height()
	t1 := node1.chain.TipHash()
	t2 := node2.chain.TipHash()

	logger.Info().
		Uint64("node1_height", h1).
		Uint64("node2_height", h2).
		Str("node1_tip", t1.String()[:16]+"...").
		Str("node2_tip", t2.String()[:16]+"...").
		Msg("Final chain state")

	if h1 == h2 && t1 == t2 {
		logger.Info().Msg("SUCCESS: Both nodes converged — chains match!")
		fmt.Println()
		fmt.Printf("  Blocks produced:  %d\n", h1)
		fmt.Printf("  Chain tip:        %s\n", t1)
		fmt.Printf("  Block reward:     %.3f coins\n", float64(gen.Protocol.Consensus.BlockReward)/float64(config.Coin))
		fmt.Printf("  Min fee rate:     %d base units/byte\n", gen.Protocol.Consensus.MinFeeRate)
		fmt.Printf("  Max supply:       %d coins\n", gen.Protocol.Consensus.MaxSupply/config.Coin)
		fmt.Printf("  Decimals:         %d\n", config.Decimals)
		fmt.Println()
	} else {
		logger.Error().Msg("FAILURE: Chain mismatch between nodes!")
		os.Exit(1)
	}
}

// buildNode creates a chain + mempool, and (if coinbaseAddr is set) a miner.
func buildNode(name string, gen *config.Genesis, coinbaseAddr types.Address) (*nodeBundle, error) {
	db := storage.NewMemory()
	utxoStore := utxo.NewStore(db)

	difficulty := consensus.BlockWork(gen.InitialBits)
	pow, err := consensus.NewPoW(difficulty, gen.Protocol.Consensus.DifficultyAdjust, gen.Protocol.Consensus.BlockTime)
	if err != nil {
		return nil, fmt.Errorf("create pow: %w", err)
	}

	ch, err := chain.New(types.ChainID{}, db, utxoStore, pow)
	if err != nil {
		return nil, fmt.Errorf("create chain: %w", err)
	}
	if err := ch.InitFromGenesis(gen); err != nil {
		return nil, fmt.Errorf("init genesis: %w", err)
	}
	ch.SetConsensusRules(gen.Protocol.Consensus)
	ch.SetNamesEngine(chain.NewNamesEngine(db, gen))

	adapter := miner.NewUTXOAdapter(utxoStore)
	pool := mempool.New(adapter, 5000)
	pool.SetMinFeeRate(gen.Protocol.Consensus.MinFeeRate)
	pool.SetCoinbaseMaturity(config.CoinbaseMaturity, ch.Height, utxoStore)

	var m *miner.Miner
	if !coinbaseAddr.IsZero() {
		m = miner.New(ch, pow, pool, coinbaseAddr,
			gen.Protocol.Consensus.BlockReward,
			gen.Protocol.Consensus.MaxSupply,
			ch.Supply)
		if ne := ch.NamesEngine(); ne != nil {
			m.SetNamesEngine(ne, miner.NewUTXOAdapter(utxoStore))
		}
	}

	return &nodeBundle{
		name:  name,
		chain: ch,
		pool:  pool,
		miner: m,
	}, nil
}
