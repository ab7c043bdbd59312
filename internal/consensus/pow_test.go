package consensus

import (
	"math/big"
	"testing"

	"github.com/Klingon-tech/hnsnet-chain/pkg/block"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

func easyPoW(t *testing.T, difficulty uint64, adjustInterval, targetBlockTime int) *PoW {
	t.Helper()
	pow, err := NewPoW(difficulty, adjustInterval, targetBlockTime)
	if err != nil {
		t.Fatal(err)
	}
	// Tiny graph so Seal completes quickly in tests.
	pow.EdgeBits = 6
	pow.CycleLen = 4
	pow.Easiness = 400
	return pow
}

func TestNewPoW_ZeroDifficulty(t *testing.T) {
	_, err := NewPoW(0, 0, 3)
	if err != ErrZeroDifficulty {
		t.Fatalf("NewPoW(0) err = %v, want ErrZeroDifficulty", err)
	}
}

func TestPoW_Target(t *testing.T) {
	// Difficulty 1: target = MaxUint256 / 1 = MaxUint256.
	t1 := target(1)
	if t1.Cmp(maxUint256) != 0 {
		t.Fatalf("target(1) = %s, want maxUint256", t1)
	}

	// Difficulty 2: target = MaxUint256 / 2.
	t2 := target(2)
	halfMax := new(big.Int).Div(maxUint256, big.NewInt(2))
	if t2.Cmp(halfMax) != 0 {
		t.Fatalf("target(2) = %s, want %s", t2, halfMax)
	}
}

func TestCompactBigRoundTrip(t *testing.T) {
	cases := []uint64{1, 2, 256, 1_000_000, 1 << 40}
	for _, diff := range cases {
		tgt := target(diff)
		bits := BigToCompact(tgt)
		back := CompactToBig(bits)

		// Compact form loses low-order precision; the round trip must stay
		// within the mantissa's resolution (never wildly off).
		ratio := new(big.Float).Quo(new(big.Float).SetInt(tgt), new(big.Float).SetInt(back))
		f, _ := ratio.Float64()
		if f < 0.99 || f > 1.01 {
			t.Errorf("difficulty %d: compact round trip drifted too far: got ratio %f", diff, f)
		}
	}
}

func TestPoW_SealAndVerify(t *testing.T) {
	pow := easyPoW(t, 1, 0, 3)

	header := &block.Header{
		Version:    1,
		PrevBlock:  types.Hash{},
		MerkleRoot: types.Hash{1, 2, 3},
		Time:       1000,
		Height:     1,
	}
	if err := pow.Prepare(header); err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	blk := block.NewBlock(header, nil)
	if err := pow.Seal(blk); err != nil {
		t.Fatalf("Seal: %v", err)
	}

	if err := pow.VerifyHeader(blk.Header); err != nil {
		t.Fatalf("VerifyHeader after Seal: %v", err)
	}
}

func TestPoW_VerifyHeader_ZeroDifficulty(t *testing.T) {
	pow := easyPoW(t, 1, 0, 3)

	header := &block.Header{
		Version: 1,
		Height:  1,
		Bits:    0, // Missing target in header.
	}

	err := pow.VerifyHeader(header)
	if err != ErrZeroDifficulty {
		t.Fatalf("VerifyHeader(bits=0) = %v, want ErrZeroDifficulty", err)
	}
}

func TestPoW_VerifyHeader_RejectsBadSolution(t *testing.T) {
	pow := easyPoW(t, 1, 0, 3)

	header := &block.Header{
		Version:    1,
		MerkleRoot: types.Hash{1, 2, 3},
		Time:       1000,
		Height:     1,
	}
	pow.Prepare(header)

	// A solution shaped for a different cycle length never verifies.
	header.Solution = []uint32{1, 2, 3}

	err := pow.VerifyHeader(header)
	if err == nil {
		t.Fatal("VerifyHeader with a malformed solution unexpectedly passed")
	}
}

func TestPoW_Prepare_SetsBits(t *testing.T) {
	pow := easyPoW(t, 42, 0, 3)
	header := &block.Header{Height: 1, Version: 1, Time: 1}
	if err := pow.Prepare(header); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if header.Bits != difficultyToBits(42) {
		t.Fatalf("Prepare set bits = %#08x, want %#08x", header.Bits, difficultyToBits(42))
	}
}

func TestPoW_Prepare_UsesDifficultyFn(t *testing.T) {
	pow := easyPoW(t, 10, 0, 3)
	pow.DifficultyFn = func(height uint64) uint64 {
		return height * 100
	}

	header := &block.Header{Height: 5, Version: 1, Time: 1}
	if err := pow.Prepare(header); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if header.Bits != difficultyToBits(500) {
		t.Fatalf("Prepare with DifficultyFn set bits = %#08x, want %#08x", header.Bits, difficultyToBits(500))
	}
}

// ── Difficulty adjustment tests ──────────────────────────────────────

func TestCalcNextDifficulty_ExactTarget(t *testing.T) {
	got := CalcNextDifficulty(1000, 600, 600)
	if got != 1000 {
		t.Fatalf("CalcNextDifficulty(exact) = %d, want 1000", got)
	}
}

func TestCalcNextDifficulty_TooFast(t *testing.T) {
	got := CalcNextDifficulty(1000, 300, 600)
	if got != 2000 {
		t.Fatalf("CalcNextDifficulty(2x fast) = %d, want 2000", got)
	}
}

func TestCalcNextDifficulty_TooSlow(t *testing.T) {
	got := CalcNextDifficulty(1000, 1200, 600)
	if got != 500 {
		t.Fatalf("CalcNextDifficulty(2x slow) = %d, want 500", got)
	}
}

func TestCalcNextDifficulty_ClampUp(t *testing.T) {
	got := CalcNextDifficulty(1000, 60, 600)
	if got != 4000 {
		t.Fatalf("CalcNextDifficulty(clamp up) = %d, want 4000", got)
	}
}

func TestCalcNextDifficulty_ClampDown(t *testing.T) {
	got := CalcNextDifficulty(1000, 6000, 600)
	if got != 250 {
		t.Fatalf("CalcNextDifficulty(clamp down) = %d, want 250", got)
	}
}

func TestCalcNextDifficulty_MinOne(t *testing.T) {
	got := CalcNextDifficulty(1, 10000, 10)
	if got < 1 {
		t.Fatalf("CalcNextDifficulty(min) = %d, want >= 1", got)
	}
}

func TestPoW_ShouldAdjust(t *testing.T) {
	pow, _ := NewPoW(1, 10, 3)

	tests := []struct {
		height uint64
		want   bool
	}{
		{0, false},
		{1, false},
		{9, false},
		{10, true},
		{11, false},
		{20, true},
		{30, true},
		{100, true},
	}

	for _, tt := range tests {
		got := pow.ShouldAdjust(tt.height)
		if got != tt.want {
			t.Errorf("ShouldAdjust(%d) = %v, want %v", tt.height, got, tt.want)
		}
	}

	pow0, _ := NewPoW(1, 0, 3)
	if pow0.ShouldAdjust(10) {
		t.Error("ShouldAdjust with interval=0 should be false")
	}
}

func TestPoW_ExpectedDifficulty(t *testing.T) {
	pow, _ := NewPoW(100, 10, 3)

	if got := pow.ExpectedDifficulty(0, 0, nil); got != 100 {
		t.Fatalf("ExpectedDifficulty(0) = %d, want 100", got)
	}
	if got := pow.ExpectedDifficulty(1, 0, nil); got != 100 {
		t.Fatalf("ExpectedDifficulty(1) = %d, want 100", got)
	}

	if got := pow.ExpectedDifficulty(5, 200, nil); got != 200 {
		t.Fatalf("ExpectedDifficulty(5, prev=200) = %d, want 200", got)
	}

	getTS := func(h uint64) (uint64, error) {
		if h == 0 {
			return 0, nil
		}
		return 30, nil
	}
	if got := pow.ExpectedDifficulty(10, 200, getTS); got != 200 {
		t.Fatalf("ExpectedDifficulty(10, exact) = %d, want 200", got)
	}

	getFastTS := func(h uint64) (uint64, error) {
		if h == 0 {
			return 0, nil
		}
		return 15, nil
	}
	if got := pow.ExpectedDifficulty(10, 200, getFastTS); got != 400 {
		t.Fatalf("ExpectedDifficulty(10, 2x fast) = %d, want 400", got)
	}
}

func TestPoW_VerifyDifficulty(t *testing.T) {
	pow, _ := NewPoW(100, 10, 3)

	header := &block.Header{Height: 1, Bits: difficultyToBits(100)}
	if err := pow.VerifyDifficulty(header, 0, nil); err != nil {
		t.Fatalf("VerifyDifficulty(height=1, diff=100) = %v, want nil", err)
	}

	header2 := &block.Header{Height: 1, Bits: difficultyToBits(50)}
	if err := pow.VerifyDifficulty(header2, 0, nil); err == nil {
		t.Fatal("VerifyDifficulty(height=1, diff=50) = nil, want error")
	}

	header3 := &block.Header{Height: 5, Bits: difficultyToBits(200)}
	if err := pow.VerifyDifficulty(header3, 200, nil); err != nil {
		t.Fatalf("VerifyDifficulty(height=5, diff=200) = %v, want nil", err)
	}
}
