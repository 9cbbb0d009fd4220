package invoice

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Chainvoice-tech/chainvoice-gateway/internal/chainrpc"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/storage"
)

// fakeChain scripts the gateway responses one poll at a time.
type fakeChain struct {
	balance *big.Int
	head    uint64
	confs   uint64
	txFound bool
	err     error
	calls   atomic.Int64
}

func (f *fakeChain) CheckPayment(ctx context.Context, address string, expected *big.Int) (*chainrpc.PaymentCheck, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	bal := f.balance
	if bal == nil {
		bal = big.NewInt(0)
	}
	received := big.NewInt(0)
	has := bal.Cmp(expected) >= 0
	if has {
		received = new(big.Int).Set(bal)
	}
	return &chainrpc.PaymentCheck{
		CurrentBalance: bal,
		RequiredAmount: expected,
		ReceivedAmount: received,
		HasReceived:    has,
	}, nil
}

func (f *fakeChain) TransactionInfo(ctx context.Context, hash string) (*chainrpc.TxInfo, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	if !f.txFound {
		return nil, nil
	}
	return &chainrpc.TxInfo{Hash: hash, BlockNumber: f.head - f.confs + 1, Confirmations: f.confs, Success: true}, nil
}

func (f *fakeChain) LatestBlockNumber(ctx context.Context) (uint64, error) {
	f.calls.Add(1)
	if f.err != nil {
		return 0, f.err
	}
	return f.head, nil
}

// countingDB tracks writes so tests can assert no-op polls stay no-op.
type countingDB struct {
	storage.DB
	puts atomic.Int64
}

func (c *countingDB) Put(key, value []byte) error {
	c.puts.Add(1)
	return c.DB.Put(key, value)
}

func newTestMonitor(t *testing.T, chain ChainReader, required uint64) (*Monitor, *Store, *countingDB) {
	t.Helper()
	db := &countingDB{DB: storage.NewMemory()}
	store := NewStore(db)
	m := NewMonitor(store, chain, required)
	return m, store, db
}

func seedInvoice(t *testing.T, store *Store, mutate func(*Invoice)) *Invoice {
	t.Helper()
	now := time.Now().UTC()
	inv := &Invoice{
		ID:             NewID(),
		PaymentAddress: "0x9f8f72aA9304c8B593d555F12eF6589cC3A579A2",
		ExpectedAmount: "0.001",
		ExpectedWei:    "1000000000000000",
		ChainID:        1,
		Status:         StatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(300 * time.Second),
		UpdatedAt:      now,
	}
	if mutate != nil {
		mutate(inv)
	}
	if err := store.Put(inv); err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return inv
}

func TestMonitorPayment_UnknownInvoice(t *testing.T) {
	m, _, _ := newTestMonitor(t, &fakeChain{}, 12)

	res := m.MonitorPayment(context.Background(), "inv_00000000000000000000000000000000")
	if res.Status != StatusError || !res.NotFound {
		t.Fatalf("status = %s, notFound = %v, want error/true", res.Status, res.NotFound)
	}
	if res.Err != "Invoice not found" {
		t.Errorf("err = %q", res.Err)
	}
}

func TestMonitorPayment_PendingNoPayment(t *testing.T) {
	chain := &fakeChain{balance: big.NewInt(0)}
	m, store, db := newTestMonitor(t, chain, 12)
	inv := seedInvoice(t, store, nil)
	before := db.puts.Load()

	res := m.MonitorPayment(context.Background(), inv.ID)
	if res.Status != StatusPending {
		t.Fatalf("status = %s, want pending", res.Status)
	}
	if res.TimeRemaining < 295 || res.TimeRemaining > 300 {
		t.Errorf("timeRemaining = %d, want about 300", res.TimeRemaining)
	}
	if got := db.puts.Load(); got != before {
		t.Errorf("pending poll wrote %d records, want 0", got-before)
	}
}

func TestMonitorPayment_DetectsPayment(t *testing.T) {
	chain := &fakeChain{balance: big.NewInt(2_000_000_000_000_000), head: 4200}
	m, store, _ := newTestMonitor(t, chain, 12)
	inv := seedInvoice(t, store, nil)

	res := m.MonitorPayment(context.Background(), inv.ID)
	if res.Status != StatusConfirming {
		t.Fatalf("status = %s, want confirming", res.Status)
	}
	if res.Confirmations != 0 {
		t.Errorf("confirmations = %d, want 0 at detection", res.Confirmations)
	}

	stored, err := store.Get(inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != StatusConfirming {
		t.Errorf("stored status = %s", stored.Status)
	}
	if stored.PaidAmountWei != "2000000000000000" {
		t.Errorf("paidAmountWei = %s", stored.PaidAmountWei)
	}
	if stored.DetectionBlock != 4200 {
		t.Errorf("detectionBlock = %d, want 4200", stored.DetectionBlock)
	}
}

func TestMonitorPayment_ConfirmingWithHash(t *testing.T) {
	chain := &fakeChain{head: 100, confs: 5, txFound: true}
	m, store, _ := newTestMonitor(t, chain, 12)
	inv := seedInvoice(t, store, func(inv *Invoice) {
		inv.Status = StatusConfirming
		inv.TransactionHash = "0xabc123"
		inv.PaidAmountWei = "1000000000000000"
	})

	res := m.MonitorPayment(context.Background(), inv.ID)
	if res.Status != StatusConfirming {
		t.Fatalf("status = %s, want confirming below threshold", res.Status)
	}
	if res.Confirmations != 5 {
		t.Errorf("confirmations = %d, want 5", res.Confirmations)
	}

	chain.confs = 12
	res = m.MonitorPayment(context.Background(), inv.ID)
	if res.Status != StatusCompleted {
		t.Fatalf("status = %s, want completed", res.Status)
	}
	if res.PaidAt == nil {
		t.Error("paidAt not set on completion")
	}
}

func TestMonitorPayment_ConfirmingWithoutHash(t *testing.T) {
	chain := &fakeChain{head: 4205}
	m, store, _ := newTestMonitor(t, chain, 12)
	inv := seedInvoice(t, store, func(inv *Invoice) {
		inv.Status = StatusConfirming
		inv.DetectionBlock = 4200
		inv.PaidAmountWei = "1000000000000000"
	})

	res := m.MonitorPayment(context.Background(), inv.ID)
	if res.Status != StatusConfirming {
		t.Fatalf("status = %s, want confirming", res.Status)
	}
	if res.Confirmations != 6 {
		t.Errorf("confirmations = %d, want 6 (head 4205, detected at 4200)", res.Confirmations)
	}
}

func TestMonitorPayment_ConfirmationsNeverDecrease(t *testing.T) {
	chain := &fakeChain{head: 100, confs: 8, txFound: true}
	m, store, _ := newTestMonitor(t, chain, 12)
	inv := seedInvoice(t, store, func(inv *Invoice) {
		inv.Status = StatusConfirming
		inv.TransactionHash = "0xabc123"
	})

	if res := m.MonitorPayment(context.Background(), inv.ID); res.Confirmations != 8 {
		t.Fatalf("confirmations = %d, want 8", res.Confirmations)
	}

	chain.confs = 6
	if res := m.MonitorPayment(context.Background(), inv.ID); res.Confirmations != 8 {
		t.Errorf("confirmations dropped to %d after head dip", res.Confirmations)
	}
}

func TestMonitorPayment_CompletedIdempotent(t *testing.T) {
	chain := &fakeChain{}
	m, store, db := newTestMonitor(t, chain, 12)
	paidAt := time.Now().UTC().Add(-time.Minute)
	inv := seedInvoice(t, store, func(inv *Invoice) {
		inv.Status = StatusCompleted
		inv.TransactionHash = "0xdeadbeef"
		inv.Confirmations = 15
		inv.PaidAmountWei = "1000000000000000"
		inv.PaidAt = &paidAt
	})
	before := db.puts.Load()

	for i := 0; i < 3; i++ {
		res := m.MonitorPayment(context.Background(), inv.ID)
		if res.Status != StatusCompleted {
			t.Fatalf("poll %d: status = %s", i, res.Status)
		}
		if res.TransactionHash != "0xdeadbeef" || res.Confirmations != 15 {
			t.Errorf("poll %d: terminal data changed: %+v", i, res)
		}
	}
	if got := db.puts.Load(); got != before {
		t.Errorf("completed polls wrote %d records, want 0", got-before)
	}
	if chain.calls.Load() != 0 {
		t.Errorf("completed polls made %d chain calls, want 0", chain.calls.Load())
	}
}

func TestMonitorPayment_ExpiryExactlyOnce(t *testing.T) {
	m, store, db := newTestMonitor(t, &fakeChain{}, 12)
	inv := seedInvoice(t, store, func(inv *Invoice) {
		inv.ExpiresAt = time.Now().UTC().Add(-time.Second)
	})
	before := db.puts.Load()

	res := m.MonitorPayment(context.Background(), inv.ID)
	if res.Status != StatusExpired || res.TimeRemaining != 0 {
		t.Fatalf("status = %s, timeRemaining = %d", res.Status, res.TimeRemaining)
	}
	if got := db.puts.Load(); got != before+1 {
		t.Fatalf("expiry wrote %d records, want 1", got-before)
	}

	res = m.MonitorPayment(context.Background(), inv.ID)
	if res.Status != StatusExpired {
		t.Fatalf("second poll status = %s", res.Status)
	}
	if got := db.puts.Load(); got != before+1 {
		t.Errorf("repeat poll on expired invoice wrote again (%d total)", got-before)
	}
}

func TestMonitorPayment_RPCErrorNotPersisted(t *testing.T) {
	chain := &fakeChain{err: errors.New("all endpoints exhausted")}
	m, store, _ := newTestMonitor(t, chain, 12)
	inv := seedInvoice(t, store, nil)

	res := m.MonitorPayment(context.Background(), inv.ID)
	if res.Status != StatusError || res.Err == "" {
		t.Fatalf("status = %s, err = %q", res.Status, res.Err)
	}

	stored, err := store.Get(inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != StatusPending {
		t.Errorf("transient RPC failure persisted status %s", stored.Status)
	}
}

func TestMonitorPayment_FailureClassification(t *testing.T) {
	// A plain chain fault is reported as a monitoring failure.
	chain := &fakeChain{err: errors.New("all endpoints exhausted")}
	m, store, _ := newTestMonitor(t, chain, 12)
	inv := seedInvoice(t, store, nil)

	res := m.MonitorPayment(context.Background(), inv.ID)
	if !strings.Contains(res.Err, chainrpc.CodeMonitoringFailed) {
		t.Errorf("err = %q, want a %s classification", res.Err, chainrpc.CodeMonitoringFailed)
	}

	// An already-classified RPC error keeps its own code.
	chain.err = chainrpc.NewError(chainrpc.CodeConnectionFailed, "balance failed on all 3 endpoints", nil)
	res = m.MonitorPayment(context.Background(), inv.ID)
	if !strings.Contains(res.Err, chainrpc.CodeConnectionFailed) {
		t.Errorf("err = %q, want %s preserved", res.Err, chainrpc.CodeConnectionFailed)
	}
	if strings.Contains(res.Err, chainrpc.CodeMonitoringFailed) {
		t.Errorf("rpc error rewrapped: %q", res.Err)
	}
}

func TestMonitorPayment_FullLifecycle(t *testing.T) {
	chain := &fakeChain{balance: big.NewInt(0), head: 1000}
	m, store, _ := newTestMonitor(t, chain, 12)
	inv := seedInvoice(t, store, nil)
	ctx := context.Background()

	if res := m.MonitorPayment(ctx, inv.ID); res.Status != StatusPending {
		t.Fatalf("fresh invoice status = %s", res.Status)
	}

	chain.balance = big.NewInt(1_000_000_000_000_000)
	res := m.MonitorPayment(ctx, inv.ID)
	if res.Status != StatusConfirming || res.Confirmations != 0 {
		t.Fatalf("after payment: status = %s, confs = %d", res.Status, res.Confirmations)
	}

	chain.head = 1011
	res = m.MonitorPayment(ctx, inv.ID)
	if res.Status != StatusCompleted {
		t.Fatalf("after 12 blocks: status = %s, confs = %d", res.Status, res.Confirmations)
	}
	if res.PaidAt == nil {
		t.Error("paidAt not set")
	}
}

func TestMonitorMultiple(t *testing.T) {
	chain := &fakeChain{balance: big.NewInt(0)}
	m, store, _ := newTestMonitor(t, chain, 12)

	var ids []string
	for i := 0; i < 8; i++ {
		ids = append(ids, seedInvoice(t, store, nil).ID)
	}
	ids = append(ids, "inv_ffffffffffffffffffffffffffffffff")

	out := m.MonitorMultiple(context.Background(), ids)
	if len(out) != len(ids) {
		t.Fatalf("got %d results, want %d", len(out), len(ids))
	}
	for _, id := range ids[:8] {
		if out[id].Status != StatusPending {
			t.Errorf("%s: status = %s", id, out[id].Status)
		}
	}
	if !out[ids[8]].NotFound {
		t.Error("unknown id should report not found")
	}
}

func TestMonitorMultiple_ConcurrentSameInvoice(t *testing.T) {
	chain := &fakeChain{balance: big.NewInt(1_000_000_000_000_000), head: 77}
	m, store, _ := newTestMonitor(t, chain, 12)
	inv := seedInvoice(t, store, nil)

	ids := []string{inv.ID, inv.ID, inv.ID, inv.ID}
	m.MonitorMultiple(context.Background(), ids)

	stored, err := store.Get(inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	// Duplicate detection is idempotent: re-observing the same balance
	// must not advance past confirming or corrupt the paid amount.
	if stored.Status != StatusConfirming {
		t.Errorf("status = %s after racing polls", stored.Status)
	}
	if stored.PaidAmountWei != "1000000000000000" {
		t.Errorf("paidAmountWei = %s", stored.PaidAmountWei)
	}
}
