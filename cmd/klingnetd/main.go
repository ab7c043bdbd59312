// Klingnet full node daemon.
//
// Usage:
//
//	klingnetd [--mine --coinbase=... | --validator-key=...]  Run node
//	klingnetd --help                                         Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/hnsnet-chain/config"
	klog "github.com/Klingon-tech/hnsnet-chain/internal/log"
	"github.com/Klingon-tech/hnsnet-chain/internal/node"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

func main() {
	// ── 1. Load config (defaults → file → flags) ────────────────────────
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 1a. Set address HRP based on network ────────────────────────────
	if cfg.Network == config.Testnet {
		types.SetAddressHRP(types.TestnetHRP)
	} else {
		types.SetAddressHRP(types.MainnetHRP)
	}

	// ── 2. Init logger ────────────────────────────────────────────────────
	// Default to logging to <datadir>/logs/klingnet.log alongside console.
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating logs dir: %v\n", err)
			os.Exit(1)
		}
		logFile = logsDir + "/klingnet.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := klog.WithComponent("main")

	genesis := config.GenesisFor(cfg.Network)
	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Int("block_time", genesis.Protocol.Consensus.BlockTime).
		Msg("Starting Klingnet Chain Node")

	// ── 3. Build and start the node ───────────────────────────────────────
	// internal/node owns storage, chain recovery/genesis-init, the mempool,
	// and (if enabled) the PoW miner. It has no networking of its own: the
	// full peer manager is an external collaborator this tree does not
	// implement, only the wire-framing types in internal/p2p are provided.
	n, err := node.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize node")
	}

	if n.Height() == 0 {
		logger.Info().Msg("Chain initialized from genesis")
	} else {
		logger.Info().
			Uint64("height", n.Height()).
			Str("tip", n.TipHash().String()[:16]+"...").
			Msg("Chain resumed from database")
	}

	if err := n.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start node")
	}

	// ── 4. Wait for shutdown signal ───────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("Shutting down")
	n.Stop()
	logger.Info().
		Uint64("height", n.Height()).
		Msg("Node stopped")
}
