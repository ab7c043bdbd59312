package consensus

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/Klingon-tech/hnsnet-chain/pkg/block"
	"github.com/Klingon-tech/hnsnet-chain/pkg/cuckoo"
)

// PoW errors.
var (
	ErrInsufficientWork = errors.New("hash does not meet difficulty target")
	ErrZeroDifficulty   = errors.New("difficulty must be > 0")
	ErrBadDifficulty    = errors.New("block difficulty does not match expected")
	ErrNoCycle          = errors.New("header solution is not a valid cuckoo cycle")
)

// maxUint256 is 2^256 - 1.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// PoW implements Cuckoo-Cycle proof-of-work. Each block header commits to
// a compact-form target (header.Bits) and a cycle-length solution
// (header.Solution) found in the graph keyed by the header's pre-hash and
// grinding nonce (header.ExtraNonce). Difficulty bookkeeping is kept in
// plain uint64 "difficulty" units (maxUint256/target) the way the chain's
// retarget history is stored and compared; it is converted to/from the
// header's compact bits at the wire boundary.
type PoW struct {
	InitialDifficulty uint64 // Starting difficulty (from genesis)
	AdjustInterval    int    // Blocks between difficulty adjustments (0 = no adjustment)
	TargetBlockTime   int    // Target seconds between blocks

	// EdgeBits and CycleLen fix the Cuckoo-Cycle graph shape (from genesis
	// protocol rules). Defaults to a small graph usable in tests if unset.
	EdgeBits uint8
	CycleLen int

	// DifficultyFn is called by Prepare to compute the expected difficulty
	// for a new block from chain state. If nil, Prepare uses InitialDifficulty.
	DifficultyFn func(height uint64) uint64

	// Threads controls the number of parallel mining goroutines searching
	// disjoint ExtraNonce partitions. 0 or 1 = single-threaded.
	Threads int

	// Easiness bounds how many graph edges a single ExtraNonce attempt
	// searches before giving up and grinding the next ExtraNonce. Defaults
	// to 8x the graph's node count if unset.
	Easiness int
}

// NewPoW creates a new PoW engine.
func NewPoW(difficulty uint64, adjustInterval, targetBlockTime int) (*PoW, error) {
	if difficulty == 0 {
		return nil, ErrZeroDifficulty
	}
	return &PoW{
		InitialDifficulty: difficulty,
		AdjustInterval:    adjustInterval,
		TargetBlockTime:   targetBlockTime,
		EdgeBits:          8,
		CycleLen:          8,
	}, nil
}

// ShouldAdjust returns true if difficulty should be recalculated at this height.
func (p *PoW) ShouldAdjust(height uint64) bool {
	return height > 0 && p.AdjustInterval > 0 && height%uint64(p.AdjustInterval) == 0
}

// target returns MaxUint256 / difficulty as a 256-bit big.Int.
func target(difficulty uint64) *big.Int {
	d := new(big.Int).SetUint64(difficulty)
	return new(big.Int).Div(maxUint256, d)
}

// CompactToBig decodes a Bitcoin/Handshake-style compact-form target
// (mantissa in the low 23 bits, base-256 exponent in the high byte, sign
// bit at 0x00800000) into a big.Int.
func CompactToBig(bits uint32) *big.Int {
	exponent := bits >> 24
	mantissa := bits & 0x007fffff
	negative := bits&0x00800000 != 0

	var result *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		result = big.NewInt(int64(mantissa))
	} else {
		result = big.NewInt(int64(mantissa))
		result.Lsh(result, uint(8*(exponent-3)))
	}
	if negative {
		result.Neg(result)
	}
	return result
}

// BigToCompact encodes a big.Int into Bitcoin/Handshake-style compact form.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	negative := n.Sign() < 0
	mantissa := new(big.Int).Abs(n)
	exponent := uint(len(mantissa.Bytes()))

	var compact uint32
	if exponent <= 3 {
		compact = uint32(mantissa.Uint64()) << (8 * (3 - exponent))
	} else {
		shifted := new(big.Int).Rsh(mantissa, 8*(exponent-3))
		compact = uint32(shifted.Uint64())
	}

	// If the sign bit of the mantissa is set, shift one more byte right and
	// bump the exponent so the sign bit stays free for the negative flag.
	if compact&0x00800000 != 0 {
		compact >>= 8
		exponent++
	}

	compact |= uint32(exponent) << 24
	if negative {
		compact |= 0x00800000
	}
	return compact
}

// difficultyToBits converts a retarget-history difficulty unit into the
// header's compact target form.
func difficultyToBits(difficulty uint64) uint32 {
	return BigToCompact(target(difficulty))
}

// BlockWork returns the chain-work contribution of a header's compact
// target, in the same maxUint256/target "difficulty" units used by the
// retarget history. Used by the chain package to accumulate cumulative
// work for fork-choice comparisons.
func BlockWork(bits uint32) uint64 {
	t := CompactToBig(bits)
	if t.Sign() <= 0 {
		return 0
	}
	work := new(big.Int).Div(maxUint256, t)
	if !work.IsUint64() {
		return ^uint64(0)
	}
	return work.Uint64()
}

func (p *PoW) cuckooParams() cuckoo.Params {
	edgeBits := p.EdgeBits
	if edgeBits == 0 {
		edgeBits = 8
	}
	cycleLen := p.CycleLen
	if cycleLen == 0 {
		cycleLen = 8
	}
	return cuckoo.Params{EdgeBits: edgeBits, CycleLen: cycleLen}
}

func (p *PoW) easiness() int {
	if p.Easiness > 0 {
		return p.Easiness
	}
	params := p.cuckooParams()
	return 8 << params.EdgeBits
}

// VerifyHeader checks that the header's Cuckoo-Cycle solution is valid for
// its own pre-hash and that the full header hash meets the stated target.
func (p *PoW) VerifyHeader(header *block.Header) error {
	if header.Bits == 0 {
		return ErrZeroDifficulty
	}

	preHash := header.PreHash()
	keys := cuckoo.DeriveKeys(preHash)
	if err := cuckoo.Verify(keys, p.cuckooParams(), header.Solution); err != nil {
		return fmt.Errorf("%w: %v", ErrNoCycle, err)
	}

	t := CompactToBig(header.Bits)
	hash := header.Hash()
	hashInt := new(big.Int).SetBytes(hash[:])
	if hashInt.Cmp(t) > 0 {
		return ErrInsufficientWork
	}
	return nil
}

// Prepare sets the block header's target (Bits) for mining.
// If DifficultyFn is set, it computes the expected difficulty from chain
// state; otherwise it uses InitialDifficulty.
func (p *PoW) Prepare(header *block.Header) error {
	var difficulty uint64
	if p.DifficultyFn != nil {
		difficulty = p.DifficultyFn(header.Height)
	} else {
		difficulty = p.InitialDifficulty
	}
	header.Bits = difficultyToBits(difficulty)
	return nil
}

// Seal mines the block: grinds ExtraNonce values, searching each for a
// Cuckoo-Cycle solution, and accepts the first one whose resulting header
// hash meets the target.
func (p *PoW) Seal(blk *block.Block) error {
	return p.SealWithCancel(context.Background(), blk)
}

// SealWithCancel mines the block with cancellation support.
func (p *PoW) SealWithCancel(ctx context.Context, blk *block.Block) error {
	if blk == nil || blk.Header == nil {
		return fmt.Errorf("nil block or header")
	}
	if blk.Header.Bits == 0 {
		return ErrZeroDifficulty
	}

	threads := p.Threads
	if threads <= 1 {
		return p.sealSingle(ctx, blk)
	}
	return p.sealParallel(ctx, blk, threads)
}

// extraNonceBytes packs a uint64 attempt counter into the header's
// 20-byte ExtraNonce field, left-padded with zeros.
func extraNonceBytes(attempt uint64) [20]byte {
	var en [20]byte
	binary.BigEndian.PutUint64(en[12:], attempt)
	return en
}

// trySolve grinds a single ExtraNonce attempt: sets it on the header,
// searches for a Cuckoo-Cycle solution, and reports whether the resulting
// header hash meets target.
func trySolve(header *block.Header, params cuckoo.Params, easiness int, target *big.Int, attempt uint64) bool {
	header.ExtraNonce = extraNonceBytes(attempt)
	preHash := header.PreHash()
	keys := cuckoo.DeriveKeys(preHash)

	solution, ok := cuckoo.Solve(keys, params, easiness)
	if !ok {
		return false
	}
	header.Solution = solution

	hash := header.Hash()
	hashInt := new(big.Int).SetBytes(hash[:])
	return hashInt.Cmp(target) <= 0
}

// sealSingle mines with a single goroutine.
func (p *PoW) sealSingle(ctx context.Context, blk *block.Block) error {
	t := CompactToBig(blk.Header.Bits)
	params := p.cuckooParams()
	easiness := p.easiness()

	for attempt := uint64(0); ; attempt++ {
		if attempt&0xFF == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		if trySolve(blk.Header, params, easiness, t, attempt) {
			return nil
		}
		if attempt == ^uint64(0) {
			return fmt.Errorf("extra-nonce space exhausted")
		}
	}
}

// sealParallel mines with multiple goroutines, each searching a strided
// partition of the ExtraNonce space (goroutine i starts at attempt=i,
// step=threads). Each goroutine mutates its own private header copy so
// only the winner's ExtraNonce/Solution are written back.
func (p *PoW) sealParallel(ctx context.Context, blk *block.Block, threads int) error {
	t := CompactToBig(blk.Header.Bits)
	params := p.cuckooParams()
	easiness := p.easiness()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		header *block.Header
		err    error
	}
	found := make(chan result, 1)

	var wg sync.WaitGroup
	for i := 0; i < threads; i++ {
		wg.Add(1)
		startAttempt := uint64(i)
		stride := uint64(threads)
		go func() {
			defer wg.Done()
			local := *blk.Header

			for attempt := startAttempt; ; attempt += stride {
				if (attempt/stride)&0xFF == 0 && attempt > 0 {
					select {
					case <-ctx.Done():
						return
					default:
					}
				}

				if trySolve(&local, params, easiness, t, attempt) {
					select {
					case found <- result{header: &local}:
					default:
					}
					cancel()
					return
				}

				if attempt > ^uint64(0)-stride {
					select {
					case found <- result{err: fmt.Errorf("extra-nonce space exhausted")}:
					default:
					}
					return
				}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(found)
	}()

	select {
	case r, ok := <-found:
		if !ok {
			return fmt.Errorf("extra-nonce space exhausted")
		}
		if r.err != nil {
			return r.err
		}
		blk.Header.ExtraNonce = r.header.ExtraNonce
		blk.Header.Solution = r.header.Solution
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExpectedDifficulty computes the correct difficulty for a block at the given height.
// prevDifficulty is the difficulty from the block at height-1 (0 for height <= 1).
// getTimestamp retrieves a block's timestamp by height (for adjustment calculation).
func (p *PoW) ExpectedDifficulty(height uint64, prevDifficulty uint64, getTimestamp func(uint64) (uint64, error)) uint64 {
	// First PoW block or no previous difficulty: use initial.
	if height <= 1 || prevDifficulty == 0 {
		return p.InitialDifficulty
	}

	// Not at an adjustment boundary: carry forward previous difficulty.
	if !p.ShouldAdjust(height) {
		return prevDifficulty
	}

	// At adjustment boundary: compute from timestamps.
	interval := uint64(p.AdjustInterval)
	startTS, err := getTimestamp(height - interval)
	if err != nil {
		return prevDifficulty
	}
	endTS, err := getTimestamp(height - 1)
	if err != nil {
		return prevDifficulty
	}

	actual := int64(endTS - startTS)
	expected := int64(p.AdjustInterval) * int64(p.TargetBlockTime)
	return CalcNextDifficulty(prevDifficulty, actual, expected)
}

// VerifyDifficulty checks that a block header's stated target (Bits)
// matches the expected difficulty computed from chain history.
func (p *PoW) VerifyDifficulty(header *block.Header, prevDifficulty uint64, getTimestamp func(uint64) (uint64, error)) error {
	expected := p.ExpectedDifficulty(header.Height, prevDifficulty, getTimestamp)
	expectedBits := difficultyToBits(expected)
	if header.Bits != expectedBits {
		return fmt.Errorf("%w: height %d has bits %#08x, want %#08x",
			ErrBadDifficulty, header.Height, header.Bits, expectedBits)
	}
	return nil
}

// CalcNextDifficulty computes the new difficulty after a retarget period.
// actualTimeSpan is the elapsed seconds for the last interval.
// expectedTimeSpan is interval * targetBlockTime.
// The result is clamped to [oldDiff/4, oldDiff*4] and never below 1.
func CalcNextDifficulty(currentDiff uint64, actualTimeSpan, expectedTimeSpan int64) uint64 {
	if actualTimeSpan <= 0 {
		actualTimeSpan = 1
	}
	if expectedTimeSpan <= 0 {
		expectedTimeSpan = 1
	}

	// Clamp actual to [expected/4, expected*4] to limit adjustment per period.
	minSpan := expectedTimeSpan / 4
	maxSpan := expectedTimeSpan * 4
	if minSpan == 0 {
		minSpan = 1
	}
	if actualTimeSpan < minSpan {
		actualTimeSpan = minSpan
	}
	if actualTimeSpan > maxSpan {
		actualTimeSpan = maxSpan
	}

	// newDiff = currentDiff * expected / actual (use big.Int to avoid overflow).
	cur := new(big.Int).SetUint64(currentDiff)
	exp := new(big.Int).SetInt64(expectedTimeSpan)
	act := new(big.Int).SetInt64(actualTimeSpan)

	result := new(big.Int).Mul(cur, exp)
	result.Div(result, act)

	// Ensure minimum difficulty of 1.
	if result.Sign() <= 0 || !result.IsUint64() {
		return 1
	}
	d := result.Uint64()
	if d < 1 {
		d = 1
	}
	return d
}
