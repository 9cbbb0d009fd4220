package invoice

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Chainvoice-tech/chainvoice-gateway/internal/chainrpc"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/log"
)

// ChainReader is the slice of the RPC gateway the monitor needs.
type ChainReader interface {
	CheckPayment(ctx context.Context, address string, expectedWei *big.Int) (*chainrpc.PaymentCheck, error)
	TransactionInfo(ctx context.Context, hash string) (*chainrpc.TxInfo, error)
	LatestBlockNumber(ctx context.Context) (uint64, error)
}

// Result is the outcome of one poll. An error during the poll is
// reported here, never thrown and never persisted as invoice status.
type Result struct {
	InvoiceID       string     `json:"invoiceId"`
	Status          Status     `json:"status"`
	TimeRemaining   int64      `json:"timeRemaining"`
	Confirmations   uint64     `json:"confirmations"`
	Required        uint64     `json:"requiredConfirmations"`
	TransactionHash string     `json:"transactionHash,omitempty"`
	PaidAmountWei   string     `json:"paidAmountWei,omitempty"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
	NotFound        bool       `json:"-"`
	Err             string     `json:"error,omitempty"`
}

// Monitor drives invoice state transitions. Polling is caller-driven;
// the monitor schedules nothing itself.
type Monitor struct {
	store    *Store
	chain    ChainReader
	required uint64
	logger   zerolog.Logger
	nowFn    func() time.Time
}

// NewMonitor builds a monitor that completes invoices after required
// confirmations.
func NewMonitor(store *Store, chain ChainReader, required uint64) *Monitor {
	if required == 0 {
		required = 1
	}
	return &Monitor{
		store:    store,
		chain:    chain,
		required: required,
		logger:   log.Monitor,
		nowFn:    time.Now,
	}
}

// MonitorPayment runs one poll of the invoice's state machine. Every
// failure mode comes back inside the Result so callers can map it to
// a response instead of unwinding.
func (m *Monitor) MonitorPayment(ctx context.Context, id string) *Result {
	inv, err := m.store.Get(id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return &Result{InvoiceID: id, Status: StatusError, NotFound: true, Err: "Invoice not found"}
		}
		return &Result{InvoiceID: id, Status: StatusError, Err: err.Error()}
	}

	res, err := m.poll(ctx, inv)
	if err != nil {
		// Transient faults must not mark the stored invoice as
		// errored; the caller's next poll is the retry.
		m.logger.Warn().Str("invoice", id).Err(err).Msg("poll failed")
		return &Result{InvoiceID: id, Status: StatusError, Err: classify(id, err).Error()}
	}
	return res
}

// classify normalizes a poll failure. RPC errors keep their own code;
// everything else is a monitoring failure.
func classify(id string, err error) *chainrpc.Error {
	var rpcErr *chainrpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}
	return chainrpc.NewError(chainrpc.CodeMonitoringFailed,
		fmt.Sprintf("monitoring invoice %s failed", id), err)
}

func (m *Monitor) poll(ctx context.Context, inv *Invoice) (*Result, error) {
	now := m.nowFn()

	if now.After(inv.ExpiresAt) && (inv.Status == StatusPending || inv.Status == StatusConfirming) {
		if err := m.transition(inv, StatusExpired, now); err != nil {
			return nil, err
		}
		m.logger.Info().Str("invoice", inv.ID).Msg("invoice expired")
		return m.result(inv, 0), nil
	}
	if inv.Status == StatusExpired {
		return m.result(inv, 0), nil
	}

	remaining := inv.TimeRemaining(now)

	switch inv.Status {
	case StatusCompleted, StatusError:
		// Terminal: stored data returned unchanged, no write.
		return m.result(inv, remaining), nil
	case StatusConfirming:
		if err := m.pollConfirming(ctx, inv, now); err != nil {
			return nil, err
		}
		return m.result(inv, remaining), nil
	case StatusPending:
		if err := m.pollPending(ctx, inv, now); err != nil {
			return nil, err
		}
		return m.result(inv, remaining), nil
	}
	return nil, fmt.Errorf("invoice %s: unknown status %q", inv.ID, inv.Status)
}

// pollConfirming advances the confirmation count and completes the
// invoice once it reaches the required depth. When no transaction hash
// was attributed at detection time, depth is measured from the block
// height observed then.
func (m *Monitor) pollConfirming(ctx context.Context, inv *Invoice, now time.Time) error {
	var confs uint64
	if inv.TransactionHash != "" {
		info, err := m.chain.TransactionInfo(ctx, inv.TransactionHash)
		if err != nil {
			return err
		}
		if info == nil {
			// Hash vanished (reorg or bad attribution); keep the
			// stored count rather than resetting progress.
			return nil
		}
		confs = info.Confirmations
		if info.BlockNumber != 0 && inv.BlockNumber == 0 {
			inv.BlockNumber = info.BlockNumber
		}
	} else {
		head, err := m.chain.LatestBlockNumber(ctx)
		if err != nil {
			return err
		}
		if head >= inv.DetectionBlock {
			confs = head - inv.DetectionBlock + 1
		}
	}

	if confs < inv.Confirmations {
		confs = inv.Confirmations
	}

	if confs >= m.required {
		inv.Confirmations = confs
		paidAt := now
		inv.PaidAt = &paidAt
		if err := m.transition(inv, StatusCompleted, now); err != nil {
			return err
		}
		m.logger.Info().Str("invoice", inv.ID).Uint64("confirmations", confs).Msg("payment completed")
		return nil
	}

	if confs != inv.Confirmations {
		inv.Confirmations = confs
		inv.UpdatedAt = now
		if err := m.store.Put(inv); err != nil {
			return err
		}
	}
	return nil
}

// pollPending scans the payment address for the expected balance.
// Detection is a balance snapshot, so the specific transaction may be
// unattributable; the current head anchors confirmation counting in
// that case.
func (m *Monitor) pollPending(ctx context.Context, inv *Invoice, now time.Time) error {
	expected, err := inv.ExpectedWeiInt()
	if err != nil {
		return err
	}
	check, err := m.chain.CheckPayment(ctx, inv.PaymentAddress, expected)
	if err != nil {
		return err
	}
	if !check.HasReceived {
		return nil
	}

	head, err := m.chain.LatestBlockNumber(ctx)
	if err != nil {
		return err
	}
	inv.PaidAmountWei = check.ReceivedAmount.String()
	inv.Confirmations = 0
	inv.DetectionBlock = head
	if err := m.transition(inv, StatusConfirming, now); err != nil {
		return err
	}
	m.logger.Info().
		Str("invoice", inv.ID).
		Str("received", inv.PaidAmountWei).
		Uint64("block", head).
		Msg("payment detected")
	return nil
}

// transition applies a legal status change and persists the invoice.
func (m *Monitor) transition(inv *Invoice, next Status, now time.Time) error {
	if !inv.Status.CanTransition(next) {
		return fmt.Errorf("invoice %s: illegal transition %s -> %s", inv.ID, inv.Status, next)
	}
	inv.Status = next
	inv.UpdatedAt = now
	return m.store.Put(inv)
}

func (m *Monitor) result(inv *Invoice, remaining int64) *Result {
	return &Result{
		InvoiceID:       inv.ID,
		Status:          inv.Status,
		TimeRemaining:   remaining,
		Confirmations:   inv.Confirmations,
		Required:        m.required,
		TransactionHash: inv.TransactionHash,
		PaidAmountWei:   inv.PaidAmountWei,
		PaidAt:          inv.PaidAt,
	}
}

// MonitorMultiple polls each id concurrently. Results carry no
// ordering guarantee between invoices; each invoice's own poll is
// sequential with respect to itself.
func (m *Monitor) MonitorMultiple(ctx context.Context, ids []string) map[string]*Result {
	out := make(map[string]*Result, len(ids))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			res := m.MonitorPayment(ctx, id)
			mu.Lock()
			out[id] = res
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return out
}
