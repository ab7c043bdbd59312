package utxo

import (
	"testing"

	"github.com/Klingon-tech/hnsnet-chain/internal/storage"
	"github.com/Klingon-tech/hnsnet-chain/pkg/covenant"
	"github.com/Klingon-tech/hnsnet-chain/pkg/crypto"
	"github.com/Klingon-tech/hnsnet-chain/pkg/types"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemory())
}

func makeOutpoint(data string, index uint32) types.Outpoint {
	return types.Outpoint{
		TxID:  crypto.Hash([]byte(data)),
		Index: index,
	}
}

func makeUTXO(data string, index uint32, value uint64) *UTXO {
	var raw [20]byte
	copy(raw[:], []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08,
		0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10,
		0x11, 0x12, 0x13, 0x14})
	return &UTXO{
		Outpoint: makeOutpoint(data, index),
		Value:    value,
		Address:  types.NewAddress20(raw),
		Covenant: covenant.None(),
		Height:   1,
	}
}

func TestStore_PutAndGet(t *testing.T) {
	s := testStore(t)
	u := makeUTXO("tx1", 0, 5000)

	err := s.Put(u)
	if err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := s.Get(u.Outpoint)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}

	if got.Value != u.Value {
		t.Errorf("Value = %d, want %d", got.Value, u.Value)
	}
	if got.Outpoint != u.Outpoint {
		t.Error("Outpoint mismatch")
	}
	if got.Height != u.Height {
		t.Errorf("Height = %d, want %d", got.Height, u.Height)
	}
}

func TestStore_GetNonexistent(t *testing.T) {
	s := testStore(t)

	_, err := s.Get(makeOutpoint("missing", 0))
	if err == nil {
		t.Error("Get() for nonexistent UTXO should return error")
	}
}

func TestStore_Has(t *testing.T) {
	s := testStore(t)
	u := makeUTXO("tx1", 0, 1000)

	ok, _ := s.Has(u.Outpoint)
	if ok {
		t.Error("Has() should be false before Put()")
	}

	s.Put(u)

	ok, err := s.Has(u.Outpoint)
	if err != nil {
		t.Fatalf("Has() error: %v", err)
	}
	if !ok {
		t.Error("Has() should be true after Put()")
	}
}

func TestStore_Delete(t *testing.T) {
	s := testStore(t)
	u := makeUTXO("tx1", 0, 1000)

	s.Put(u)

	err := s.Delete(u.Outpoint)
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	ok, _ := s.Has(u.Outpoint)
	if ok {
		t.Error("UTXO should be gone after Delete()")
	}
}

func TestStore_MultipleOutputs(t *testing.T) {
	s := testStore(t)

	// Same tx, different output indices.
	u0 := makeUTXO("tx1", 0, 1000)
	u1 := makeUTXO("tx1", 1, 2000)
	u2 := makeUTXO("tx1", 2, 3000)

	s.Put(u0)
	s.Put(u1)
	s.Put(u2)

	got0, _ := s.Get(u0.Outpoint)
	got1, _ := s.Get(u1.Outpoint)
	got2, _ := s.Get(u2.Outpoint)

	if got0.Value != 1000 || got1.Value != 2000 || got2.Value != 3000 {
		t.Error("values mismatch for multi-output tx")
	}

	// Delete middle one.
	s.Delete(u1.Outpoint)

	ok, _ := s.Has(u1.Outpoint)
	if ok {
		t.Error("deleted output should be gone")
	}

	// Others should remain.
	ok0, _ := s.Has(u0.Outpoint)
	ok2, _ := s.Has(u2.Outpoint)
	if !ok0 || !ok2 {
		t.Error("non-deleted outputs should remain")
	}
}

func TestStore_CovenantRoundTrip(t *testing.T) {
	s := testStore(t)
	u := makeUTXO("open-tx", 0, 0)
	u.Covenant = covenant.NewOpen(covenant.Open{NameHash: types.NameHash{0xaa}, Name: "example"})

	s.Put(u)

	got, err := s.Get(u.Outpoint)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.Covenant.Type != covenant.TypeOPEN {
		t.Errorf("Covenant.Type = %v, want TypeOPEN", got.Covenant.Type)
	}
}

func TestStore_ImplementsSet(t *testing.T) {
	// Compile-time check that Store satisfies Set.
	var _ Set = (*Store)(nil)
}

func TestStore_AddressIndex_PutAndGet(t *testing.T) {
	s := testStore(t)
	u := makeUTXO("addr-tx", 0, 4000)

	if err := s.Put(u); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := s.GetByAddress(u.Address)
	if err != nil {
		t.Fatalf("GetByAddress() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetByAddress() returned %d, want 1", len(got))
	}
	if got[0].Value != u.Value {
		t.Errorf("Value = %d, want %d", got[0].Value, u.Value)
	}
}

func TestStore_AddressIndex_DeleteRemovesIndex(t *testing.T) {
	s := testStore(t)
	u := makeUTXO("addr-del", 0, 1000)
	s.Put(u)

	if got, _ := s.GetByAddress(u.Address); len(got) != 1 {
		t.Fatalf("expected 1 before delete, got %d", len(got))
	}

	if err := s.Delete(u.Outpoint); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	got, err := s.GetByAddress(u.Address)
	if err != nil {
		t.Fatalf("GetByAddress() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("GetByAddress() returned %d after delete, want 0", len(got))
	}
}

func TestStore_NameIndex_PutAndGet(t *testing.T) {
	s := testStore(t)
	nh := types.NameHash{0x42}

	u := makeUTXO("bid-tx", 0, 10_000)
	u.Covenant = covenant.NewBid(covenant.Bid{NameHash: nh, StartHeight: 10, Name: "coffee", Blind: types.Hash{0x01}})
	if err := s.Put(u); err != nil {
		t.Fatalf("Put() error: %v", err)
	}

	got, err := s.GetByName(nh)
	if err != nil {
		t.Fatalf("GetByName() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("GetByName() returned %d, want 1", len(got))
	}
	if got[0].Value != u.Value {
		t.Errorf("Value = %d, want %d", got[0].Value, u.Value)
	}
}

func TestStore_NameIndex_DeleteRemovesIndex(t *testing.T) {
	s := testStore(t)
	nh := types.NameHash{0x43}

	u := makeUTXO("reveal-tx", 0, 5000)
	u.Covenant = covenant.NewReveal(covenant.Reveal{NameHash: nh, Nonce: [32]byte{0x02}})
	s.Put(u)

	if got, _ := s.GetByName(nh); len(got) != 1 {
		t.Fatalf("expected 1 before delete, got %d", len(got))
	}

	if err := s.Delete(u.Outpoint); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	got, err := s.GetByName(nh)
	if err != nil {
		t.Fatalf("GetByName() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("GetByName() returned %d after delete, want 0", len(got))
	}
}

func TestStore_ClearAll(t *testing.T) {
	s := testStore(t)
	u1 := makeUTXO("clear1", 0, 1000)
	u2 := makeUTXO("clear2", 0, 2000)
	u2.Covenant = covenant.NewOpen(covenant.Open{NameHash: types.NameHash{0x50}, Name: "zzz"})

	s.Put(u1)
	s.Put(u2)

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll() error: %v", err)
	}

	if ok, _ := s.Has(u1.Outpoint); ok {
		t.Error("u1 should be gone after ClearAll")
	}
	if ok, _ := s.Has(u2.Outpoint); ok {
		t.Error("u2 should be gone after ClearAll")
	}
	if got, _ := s.GetByName(types.NameHash{0x50}); len(got) != 0 {
		t.Error("name index should be cleared")
	}
}
