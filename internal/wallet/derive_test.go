package wallet

import (
	"fmt"
	"testing"
)

func testDeriver(t *testing.T, space uint32) *Deriver {
	t.Helper()
	d, err := NewDeriver(testSeed(t), space)
	if err != nil {
		t.Fatalf("NewDeriver() error: %v", err)
	}
	return d
}

func TestIndexForID_Deterministic(t *testing.T) {
	d1 := testDeriver(t, 1_000_000)
	d2 := testDeriver(t, 1_000_000)

	ids := []string{"inv_0001", "inv_0002", "a", "", "inv_ffffffffffffffff"}
	for _, id := range ids {
		i1 := d1.IndexForID(id)
		i2 := d2.IndexForID(id)
		if i1 != i2 {
			t.Errorf("IndexForID(%q) differs across instances: %d vs %d", id, i1, i2)
		}
		if i1 >= 1_000_000 {
			t.Errorf("IndexForID(%q) = %d, outside address space", id, i1)
		}
	}
}

func TestDeriveForID_Deterministic(t *testing.T) {
	d := testDeriver(t, 1_000_000)

	w1, err := d.DeriveForID("inv_4f2a9c81d3e64b07a5c6e8f0b1d2a3c4")
	if err != nil {
		t.Fatalf("DeriveForID() error: %v", err)
	}
	w2, err := d.DeriveForID("inv_4f2a9c81d3e64b07a5c6e8f0b1d2a3c4")
	if err != nil {
		t.Fatalf("DeriveForID() error: %v", err)
	}

	if w1.Address != w2.Address {
		t.Errorf("same id produced different addresses: %s vs %s", w1.Address.Hex(), w2.Address.Hex())
	}
	if w1.Index != w2.Index {
		t.Errorf("same id produced different indices: %d vs %d", w1.Index, w2.Index)
	}
	if w1.Path != fmt.Sprintf("m/44'/60'/0'/0/%d", w1.Index) {
		t.Errorf("wrong derivation path %q", w1.Path)
	}
}

func TestDeriveForID_DistinctIDs(t *testing.T) {
	d := testDeriver(t, 1_000_000)

	// A fixed small sample of distinct ids must land on distinct indices at
	// N = 1e6; a collision here would indicate a non-uniform digest, not
	// bad luck.
	ids := []string{
		"inv_00000000000000000000000000000001",
		"inv_00000000000000000000000000000002",
		"inv_00000000000000000000000000000003",
		"inv_00000000000000000000000000000004",
		"inv_00000000000000000000000000000005",
		"inv_00000000000000000000000000000006",
		"inv_00000000000000000000000000000007",
		"inv_00000000000000000000000000000008",
	}

	seen := make(map[uint32]string)
	for _, id := range ids {
		idx := d.IndexForID(id)
		if prev, dup := seen[idx]; dup {
			t.Errorf("unexpected index collision: %q and %q both map to %d", prev, id, idx)
		}
		seen[idx] = id
	}
}

func TestDeriveForID_CollisionMeansAddressReuse(t *testing.T) {
	// At a tiny address space, two distinct ids colliding on an index is
	// easy to force. The engine does not prevent this: both invoices get
	// the same receiving address. This documents the reuse hazard rather
	// than hiding it.
	d := testDeriver(t, 16)

	byIndex := make(map[uint32]string)
	var a, b string
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("inv_%032x", i)
		idx := d.IndexForID(id)
		if prev, ok := byIndex[idx]; ok {
			a, b = prev, id
			break
		}
		byIndex[idx] = id
	}
	if a == "" {
		t.Fatal("no collision found in 200 ids over a 16-slot space")
	}

	wa, err := d.DeriveForID(a)
	if err != nil {
		t.Fatalf("DeriveForID(%q) error: %v", a, err)
	}
	wb, err := d.DeriveForID(b)
	if err != nil {
		t.Fatalf("DeriveForID(%q) error: %v", b, err)
	}

	if wa.Address != wb.Address {
		t.Error("colliding indices should yield the same address")
	}
}

func TestDerive_IndexBounds(t *testing.T) {
	d := testDeriver(t, 100)

	if _, err := d.Derive(99); err != nil {
		t.Errorf("Derive(99) error: %v", err)
	}
	if _, err := d.Derive(100); err == nil {
		t.Error("Derive(100) should fail for space of 100")
	}
}

func TestDerive_ValidKeyMaterial(t *testing.T) {
	d := testDeriver(t, 1_000_000)

	w, err := d.Derive(42)
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}

	if !IsValidPrivateKeyHex(w.PrivateKeyHex()) {
		t.Error("derived private key hex should validate")
	}
	if !IsValidAddress(w.Address.Hex()) {
		t.Error("derived address should validate")
	}
	if len(w.PublicKey) != 33 {
		t.Errorf("public key length = %d, want 33", len(w.PublicKey))
	}
}

func TestGenerateNext_SkipsUsed(t *testing.T) {
	d := testDeriver(t, 10)

	// Occupy index 0 and 1 via direct derivation.
	if _, err := d.Derive(0); err != nil {
		t.Fatalf("Derive(0) error: %v", err)
	}
	if _, err := d.Derive(1); err != nil {
		t.Fatalf("Derive(1) error: %v", err)
	}

	w, err := d.GenerateNext()
	if err != nil {
		t.Fatalf("GenerateNext() error: %v", err)
	}
	if w.Index != 2 {
		t.Errorf("GenerateNext() index = %d, want 2", w.Index)
	}
}

func TestGenerateNext_Exhaustion(t *testing.T) {
	d := testDeriver(t, 2)

	for i := 0; i < 2; i++ {
		if _, err := d.GenerateNext(); err != nil {
			t.Fatalf("GenerateNext() #%d error: %v", i, err)
		}
	}
	if _, err := d.GenerateNext(); err == nil {
		t.Error("GenerateNext() should fail once the space is exhausted")
	}
}

func TestGenerateRandom(t *testing.T) {
	w1, err := GenerateRandom()
	if err != nil {
		t.Fatalf("GenerateRandom() error: %v", err)
	}
	w2, err := GenerateRandom()
	if err != nil {
		t.Fatalf("GenerateRandom() error: %v", err)
	}

	if w1.Address == w2.Address {
		t.Error("two random wallets should not share an address")
	}
}
