// Package chainrpc presents a single query surface over a pool of
// individually unreliable JSON-RPC endpoints for one chain.
package chainrpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/Chainvoice-tech/chainvoice-gateway/internal/log"
)

// Gateway queries a fixed chain through an ordered endpoint pool with
// read-path failover. The cursor remembers the last endpoint that
// answered; it is process-local state and never persisted.
type Gateway struct {
	chainID          uint64
	endpoints        []string
	fallbackGasPrice *big.Int
	logger           zerolog.Logger

	mu      sync.Mutex
	clients []Client // dialed lazily, index-aligned with endpoints
	cursor  int
}

// TestResult is the outcome of a connectivity probe.
type TestResult struct {
	Success     bool   `json:"success"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PaymentCheck is a balance-snapshot comparison against an expected
// amount. It cannot distinguish "paid then withdrawn" from "never paid".
type PaymentCheck struct {
	CurrentBalance *big.Int
	RequiredAmount *big.Int
	ReceivedAmount *big.Int
	HasReceived    bool
	IsExactMatch   bool
	IsOverpayment  bool
}

// TxInfo describes a transaction and its confirmation depth.
type TxInfo struct {
	Hash          string
	To            string
	ValueWei      *big.Int
	BlockNumber   uint64
	Confirmations uint64
	Success       bool
	Pending       bool
}

// NetworkInfo is a snapshot of chain state from the current endpoint.
type NetworkInfo struct {
	ChainID     uint64
	BlockNumber uint64
	GasPriceWei *big.Int
	Endpoint    string
}

// New creates a gateway for chainID over the given ordered endpoint URLs.
// fallbackGasPrice is returned by GasPrice when every endpoint fails;
// callers treat gas price as an estimate, not a correctness-critical value.
func New(chainID uint64, endpoints []string, fallbackGasPrice *big.Int) (*Gateway, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one RPC endpoint required")
	}
	if fallbackGasPrice == nil {
		fallbackGasPrice = big.NewInt(0)
	}
	return &Gateway{
		chainID:          chainID,
		endpoints:        endpoints,
		fallbackGasPrice: new(big.Int).Set(fallbackGasPrice),
		logger:           log.Gateway,
		clients:          make([]Client, len(endpoints)),
	}, nil
}

// ChainID returns the chain this gateway is fixed to.
func (g *Gateway) ChainID() uint64 {
	return g.chainID
}

// CurrentEndpoint returns the URL the cursor points at.
func (g *Gateway) CurrentEndpoint() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.endpoints[g.cursor]
}

// Close releases all dialed clients.
func (g *Gateway) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, c := range g.clients {
		if c != nil {
			c.Close()
			g.clients[i] = nil
		}
	}
}

// clientAt returns the client for endpoint position pos, dialing on first use.
func (g *Gateway) clientAt(pos int) (Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.clients[pos] != nil {
		return g.clients[pos], nil
	}
	c, err := Dial(g.endpoints[pos])
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", g.endpoints[pos], err)
	}
	g.clients[pos] = c
	return c, nil
}

// withFailover runs fn against the current endpoint, advancing through the
// remaining endpoints in order on error. On the first success the cursor
// sticks to that endpoint; if every endpoint fails the cursor is left at
// its starting value and the last error is returned, normalized.
func (g *Gateway) withFailover(op string, fn func(Client) error) error {
	g.mu.Lock()
	start := g.cursor
	g.mu.Unlock()
	n := len(g.endpoints)

	var lastErr error
	for i := 0; i < n; i++ {
		pos := (start + i) % n
		client, err := g.clientAt(pos)
		if err != nil {
			lastErr = err
			g.logger.Warn().Str("endpoint", g.endpoints[pos]).Str("op", op).Err(err).Msg("endpoint dial failed")
			continue
		}
		if err := fn(client); err != nil {
			lastErr = err
			g.logger.Warn().Str("endpoint", g.endpoints[pos]).Str("op", op).Err(err).Msg("endpoint failed, trying next")
			continue
		}
		if pos != start {
			g.logger.Info().Str("endpoint", g.endpoints[pos]).Str("op", op).Msg("failed over to new endpoint")
		}
		g.mu.Lock()
		g.cursor = pos
		g.mu.Unlock()
		return nil
	}

	g.mu.Lock()
	g.cursor = start
	g.mu.Unlock()
	return NewError(CodeConnectionFailed, fmt.Sprintf("%s failed on all %d endpoints", op, n), lastErr)
}

// TestConnection probes the pool for a responsive endpoint and reports the
// latest block number on success.
func (g *Gateway) TestConnection(ctx context.Context) TestResult {
	var block uint64
	err := g.withFailover("testConnection", func(c Client) error {
		n, err := c.BlockNumber(ctx)
		if err != nil {
			return err
		}
		block = n
		return nil
	})
	if err != nil {
		return TestResult{Success: false, Error: err.Error()}
	}
	return TestResult{Success: true, BlockNumber: block}
}

// LatestBlockNumber returns the current chain head height.
func (g *Gateway) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var block uint64
	err := g.withFailover("getLatestBlockNumber", func(c Client) error {
		n, err := c.BlockNumber(ctx)
		if err != nil {
			return err
		}
		block = n
		return nil
	})
	return block, err
}

// Balance returns the current balance of address in wei. The address is
// validated before any network call; a malformed address is a validation
// error, not a connection error.
func (g *Gateway) Balance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, NewError(CodeValidationFailure, fmt.Sprintf("invalid address %q", address), nil)
	}

	var balance *big.Int
	err := g.withFailover("getBalance", func(c Client) error {
		b, err := c.BalanceAt(ctx, common.HexToAddress(address), nil)
		if err != nil {
			return err
		}
		balance = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return balance, nil
}

// CheckPayment compares the address's current balance against the expected
// amount using integer arithmetic only. hasReceived means balance >= expected.
func (g *Gateway) CheckPayment(ctx context.Context, address string, expectedWei *big.Int) (*PaymentCheck, error) {
	if expectedWei == nil || expectedWei.Sign() <= 0 {
		return nil, NewError(CodeValidationFailure, "expected amount must be a positive integer", nil)
	}

	balance, err := g.Balance(ctx, address)
	if err != nil {
		return nil, err
	}

	cmp := balance.Cmp(expectedWei)
	check := &PaymentCheck{
		CurrentBalance: balance,
		RequiredAmount: new(big.Int).Set(expectedWei),
		ReceivedAmount: new(big.Int).Set(balance),
		HasReceived:    cmp >= 0,
		IsExactMatch:   cmp == 0,
		IsOverpayment:  cmp > 0,
	}
	return check, nil
}

// TransactionInfo fetches a transaction, its receipt, and its confirmation
// depth. An unknown hash returns (nil, nil), not an error. For a mined
// transaction confirmations = currentBlock - txBlock + 1.
func (g *Gateway) TransactionInfo(ctx context.Context, hash string) (*TxInfo, error) {
	h := common.HexToHash(hash)

	var info *TxInfo
	err := g.withFailover("getTransactionInfo", func(c Client) error {
		tx, pending, err := c.TransactionByHash(ctx, h)
		if errors.Is(err, ethereum.NotFound) {
			info = nil
			return nil
		}
		if err != nil {
			return err
		}

		ti := &TxInfo{
			Hash:     h.Hex(),
			ValueWei: tx.Value(),
			Pending:  pending,
		}
		if tx.To() != nil {
			ti.To = tx.To().Hex()
		}
		if pending {
			info = ti
			return nil
		}

		receipt, err := c.TransactionReceipt(ctx, h)
		if errors.Is(err, ethereum.NotFound) {
			// Known but not yet mined on this endpoint's view.
			info = ti
			return nil
		}
		if err != nil {
			return err
		}

		current, err := c.BlockNumber(ctx)
		if err != nil {
			return err
		}

		ti.BlockNumber = receipt.BlockNumber.Uint64()
		ti.Success = receipt.Status == 1
		if current >= ti.BlockNumber {
			ti.Confirmations = current - ti.BlockNumber + 1
		}
		info = ti
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// GasPrice returns the suggested gas price, falling back to the configured
// static value when every endpoint fails.
func (g *Gateway) GasPrice(ctx context.Context) *big.Int {
	var price *big.Int
	err := g.withFailover("getGasPrice", func(c Client) error {
		p, err := c.SuggestGasPrice(ctx)
		if err != nil {
			return err
		}
		price = p
		return nil
	})
	if err != nil {
		g.logger.Warn().Err(err).Str("fallback", g.fallbackGasPrice.String()).Msg("gas price unavailable, using fallback")
		return new(big.Int).Set(g.fallbackGasPrice)
	}
	return price
}

// NetworkInfo returns chain id, head block, and gas price from the pool.
func (g *Gateway) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	block, err := g.LatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}
	return &NetworkInfo{
		ChainID:     g.chainID,
		BlockNumber: block,
		GasPriceWei: g.GasPrice(ctx),
		Endpoint:    g.CurrentEndpoint(),
	}, nil
}
