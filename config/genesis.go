package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Klingon-tech/hnsnet-chain/pkg/crypto"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

// =============================================================================
// Protocol Rules (immutable, defined in genesis)
// These MUST match across all nodes or consensus breaks.
// =============================================================================

// Denomination constants.
// 1 coin = 10^6 base units. All on-chain values are in base units.
const (
	Decimals  = 6
	Coin      = 1_000_000 // 10^6 base units per coin
	MilliCoin = 1_000     // 10^3
)

// CoinbaseMaturity is the number of blocks a coinbase output must wait
// before it can be spent. Prevents issues during reorgs.
const CoinbaseMaturity uint64 = 100

// Block and transaction size limits (consensus-critical).
const (
	MaxBlockSize  = 2_000_000 // 2 MB max block size (header bytes + all tx signing bytes)
	MaxBlockTxs   = 500       // Max transactions per block (including coinbase)
	MaxTxInputs   = 2500      // Max inputs per transaction
	MaxTxOutputs  = 2500      // Max outputs per transaction
	MaxScriptData = 65_536    // 64 KB max covenant data per output
)

// Genesis holds the genesis block configuration and protocol rules.
// This is immutable after chain launch - changes require a hard fork.
type Genesis struct {
	// Chain identity
	ChainID   string `json:"chain_id"`
	ChainName string `json:"chain_name"`
	Symbol    string `json:"symbol,omitempty"`

	// Genesis block
	Timestamp   uint64 `json:"timestamp"`
	ExtraData   string `json:"extra_data,omitempty"`
	InitialBits uint32 `json:"initial_bits"` // Compact-form starting PoW target

	// Initial allocations (address -> balance in base units)
	Alloc map[string]uint64 `json:"alloc"`

	// Protocol rules
	Protocol ProtocolConfig `json:"protocol"`
}

// ProtocolConfig holds consensus-critical rules.
// All nodes MUST agree on these values.
type ProtocolConfig struct {
	Consensus ConsensusRules `json:"consensus"`
	Names     NameRules      `json:"names"`
}

// ConsensusRules defines how blocks are produced and validated under
// Cuckoo-Cycle proof of work.
type ConsensusRules struct {
	BlockTime        int    `json:"block_time"`        // Target seconds between blocks
	DifficultyAdjust int    `json:"difficulty_adjust"` // Blocks between retarget windows
	CuckooEdgeBits   uint8  `json:"cuckoo_edge_bits"`  // log2(graph size) for the Cuckoo-Cycle PoW
	CuckooCycleLen   int    `json:"cuckoo_cycle_len"`  // Required cycle length

	BlockReward     uint64 `json:"block_reward"`               // Base units per block
	MaxSupply       uint64 `json:"max_supply"`                 // Total coin cap in base units (0 = unlimited)
	HalvingInterval uint64 `json:"halving_interval,omitempty"` // Blocks between reward halvings (0 = no halving)
	MinFeeRate      uint64 `json:"min_fee_rate"`                // Minimum fee rate (base units per byte of signing bytes)
}

// NameRules defines the name-auction protocol's block-height constants,
// expressed in blocks.
type NameRules struct {
	TreeInterval     uint32 `json:"tree_interval"`     // Auction starts round up to a multiple of it; also the minimum gap between RENEWs
	BiddingPeriod    uint32 `json:"bidding_period"`    // Blocks an auction accepts blind bids
	RevealPeriod     uint32 `json:"reveal_period"`     // Blocks an auction accepts bid reveals
	RenewalWindow    uint32 `json:"renewal_window"`    // Blocks before expiry a name may be renewed
	TransferLockup   uint32 `json:"transfer_lockup"`   // Blocks a TRANSFER must wait before FINALIZE
	ClaimPeriod      uint32 `json:"claim_period"`      // Not read by the names engine
	LockupPeriod     uint32 `json:"lockup_period"`     // Blocks a CLAIMed name stays LOCKED
	AuctionMaturity  uint32 `json:"auction_maturity"`  // Blocks after a REVOKE before the name can be opened again
	RenewalMaturity  uint32 `json:"renewal_maturity"`  // Not read by the names engine (RENEW spacing uses TreeInterval)
	WeakLockup       uint32 `json:"weak_lockup"`       // Not read by the names engine
	MaxBlockOpens    int    `json:"max_block_opens"`   // Per-block cap on OPEN covenants
	MaxBlockUpdates  int    `json:"max_block_updates"` // Per-block cap on UPDATE covenants
	MaxBlockRenewals int    `json:"max_block_renewals"`
}

// =============================================================================
// Testnet Identity
//
// Derived from the well-known BIP-39 test mnemonic (DO NOT use on mainnet):
//
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon abandon
//	abandon abandon abandon abandon abandon abandon abandon art
//
// Derivation path: m/44'/5353'/0'/0/0 (no passphrase)
// =============================================================================

const (
	// TestnetMnemonic is the well-known seed phrase for the testnet miner.
	TestnetMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

	// TestnetAddress is the address (bech32, ts1...) derived from TestnetMnemonic.
	TestnetAddress = "ts1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"
)

// =============================================================================
// Pre-defined genesis configurations
// =============================================================================

// MainnetGenesis returns the mainnet genesis configuration.
func MainnetGenesis() *Genesis {
	return &Genesis{
		ChainID:     "hnsnet-mainnet-1",
		ChainName:   "Handshake-style Mainnet",
		Symbol:      "HNS",
		Timestamp:   1770734103, // 2026-02-10
		ExtraData:   "hnsnet genesis",
		InitialBits: 0x1c00ffff,
		Alloc: map[string]uint64{
			"hs1qar0srrr7xfkvy5l643lydnw9re59gtzzgrtkp0": 100_000 * Coin, // Pre-chain reserve
		},
		Protocol: ProtocolConfig{
			Consensus: ConsensusRules{
				BlockTime:        600,
				DifficultyAdjust: 2016,
				CuckooEdgeBits:   29,
				CuckooCycleLen:   42,
				BlockReward:      2000 * Coin,
				MaxSupply:        2_040_000_000 * Coin,
				HalvingInterval:  170_000,
				MinFeeRate:       1,
			},
			Names: NameRules{
				TreeInterval:     36,
				BiddingPeriod:    5 * 144,
				RevealPeriod:     10 * 144,
				RenewalWindow:    52 * 144,
				TransferLockup:   2 * 144,
				ClaimPeriod:      2 * 365 * 144,
				LockupPeriod:     36,
				AuctionMaturity:  10,
				RenewalMaturity:  36,
				WeakLockup:       52 * 144,
				MaxBlockOpens:    10_000,
				MaxBlockUpdates:  10_000,
				MaxBlockRenewals: 10_000,
			},
		},
	}
}

// TestnetGenesis returns the testnet genesis configuration.
func TestnetGenesis() *Genesis {
	g := MainnetGenesis()
	g.ChainID = "hnsnet-testnet-1"
	g.ChainName = "Handshake-style Testnet"
	g.ExtraData = "hnsnet testnet genesis"
	g.InitialBits = 0x207fffff // Easy regtest-like starting target.

	// More relaxed rules for testnet.
	g.Protocol.Consensus.MinFeeRate = 1
	g.Protocol.Names.BiddingPeriod = 10
	g.Protocol.Names.RevealPeriod = 10
	g.Protocol.Names.RenewalWindow = 144
	g.Protocol.Names.TransferLockup = 5

	g.Alloc = map[string]uint64{
		TestnetAddress: 200_000 * Coin,
	}

	return g
}

// GenesisFor returns the genesis config for the given network.
func GenesisFor(network NetworkType) *Genesis {
	switch network {
	case Testnet:
		return TestnetGenesis()
	default:
		return MainnetGenesis()
	}
}

// =============================================================================
// Genesis file I/O
// =============================================================================

// LoadGenesis loads genesis configuration from a file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}

	var g Genesis
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parsing genesis file: %w", err)
	}

	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}

	return &g, nil
}

// Save writes the genesis configuration to a file.
func (g *Genesis) Save(path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding genesis: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing genesis file: %w", err)
	}

	return nil
}

// Validate checks that the genesis configuration is valid.
func (g *Genesis) Validate() error {
	if g.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}

	if g.InitialBits == 0 {
		return fmt.Errorf("initial_bits is required")
	}

	if g.Protocol.Consensus.BlockTime <= 0 {
		return fmt.Errorf("block_time must be positive")
	}

	if g.Protocol.Consensus.BlockReward == 0 {
		return fmt.Errorf("block_reward must be positive")
	}

	if g.Protocol.Consensus.CuckooEdgeBits < 16 || g.Protocol.Consensus.CuckooEdgeBits > 32 {
		return fmt.Errorf("cuckoo_edge_bits must be between 16 and 32")
	}

	if g.Protocol.Names.BiddingPeriod == 0 || g.Protocol.Names.RevealPeriod == 0 {
		return fmt.Errorf("bidding_period and reveal_period must be positive")
	}

	// Validate alloc addresses and check total doesn't exceed max supply.
	var totalAlloc uint64
	for addrStr, v := range g.Alloc {
		if _, err := types.ParseAddress(addrStr); err != nil {
			return fmt.Errorf("invalid alloc address %q: %w", addrStr, err)
		}
		totalAlloc += v
	}
	if g.Protocol.Consensus.MaxSupply > 0 && totalAlloc > g.Protocol.Consensus.MaxSupply {
		return fmt.Errorf("genesis allocations (%d) exceed max_supply (%d)",
			totalAlloc, g.Protocol.Consensus.MaxSupply)
	}

	return nil
}

// Hash returns a hash of the genesis configuration.
// Used to identify the chain and detect genesis mismatches.
func (g *Genesis) Hash() (types.Hash, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return types.Hash{}, err
	}
	return crypto.Hash(data), nil
}
