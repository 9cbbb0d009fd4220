// Package service wires storage, wallet, chain access, and the HTTP
// API into one gateway instance.
package service

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/Chainvoice-tech/chainvoice-gateway/config"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/api"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/chainrpc"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/invoice"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/log"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/nonceauth"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/qr"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/storage"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/wallet"
)

// transferGas is the intrinsic gas cost of a plain value transfer,
// used for the fee estimate returned at invoice creation.
const transferGas = 21000

// Service is the assembled gateway.
type Service struct {
	cfg     *config.Config
	db      storage.DB
	gateway *chainrpc.Gateway
	deriver *wallet.Deriver
	store   *invoice.Store
	monitor *invoice.Monitor
	auth    *nonceauth.Service
	httpSrv *api.Server
	logger  zerolog.Logger
	nowFn   func() time.Time
}

// New builds the gateway from config: opens the invoice database,
// unlocks (or bootstraps) the master seed, and connects the chain
// gateway. Nothing is served until Start.
func New(cfg *config.Config) (*Service, error) {
	logFile := cfg.Log.File
	if logFile == "" {
		if err := os.MkdirAll(cfg.LogsDir(), 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = cfg.LogsDir() + "/chainvoice.log"
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := log.Gateway

	logger.Info().
		Uint64("chain_id", cfg.Chain.ChainID).
		Str("network", string(cfg.Network)).
		Uint64("confirmations", cfg.Chain.RequiredConfirmations).
		Int("endpoints", len(cfg.Chain.Endpoints)).
		Msg("Starting Chainvoice Gateway")

	db, err := storage.NewBadger(cfg.InvoicesDir())
	if err != nil {
		return nil, fmt.Errorf("open invoice db: %w", err)
	}

	seed, err := openSeed(cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	deriver, err := wallet.NewDeriver(seed, cfg.Invoice.AddressSpace)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init wallet deriver: %w", err)
	}

	fallbackGas, ok := new(big.Int).SetString(cfg.Chain.FallbackGasPriceWei, 10)
	if !ok {
		db.Close()
		return nil, fmt.Errorf("bad fallback gas price %q", cfg.Chain.FallbackGasPriceWei)
	}
	gateway, err := chainrpc.New(cfg.Chain.ChainID, cfg.Chain.Endpoints, fallbackGas)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init chain gateway: %w", err)
	}

	store := invoice.NewStore(db)
	s := &Service{
		cfg:     cfg,
		db:      db,
		gateway: gateway,
		deriver: deriver,
		store:   store,
		monitor: invoice.NewMonitor(store, gateway, cfg.Chain.RequiredConfirmations),
		auth: nonceauth.New(
			time.Duration(cfg.Auth.NonceTTLSeconds)*time.Second,
			time.Duration(cfg.Auth.SessionTTLSeconds)*time.Second,
		),
		logger: logger,
		nowFn:  time.Now,
	}

	if cfg.HTTP.Enabled {
		s.httpSrv = api.NewServer(cfg.HTTP, s, cfg.Log.Level == "debug")
	}
	return s, nil
}

// openSeed unlocks the master seed, generating and sealing a fresh one
// on first start.
func openSeed(cfg *config.Config, logger zerolog.Logger) ([]byte, error) {
	ks, err := wallet.NewKeystore(cfg.ResolvedKeystoreDir())
	if err != nil {
		return nil, err
	}

	passphrase := []byte(os.Getenv(cfg.Wallet.PassphraseEnv))
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("keystore passphrase not set (export %s)", cfg.Wallet.PassphraseEnv)
	}

	if ks.Exists() {
		seed, err := ks.Load(passphrase)
		if err != nil {
			return nil, fmt.Errorf("unlock master seed: %w", err)
		}
		return seed, nil
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		return nil, fmt.Errorf("generate master seed: %w", err)
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("derive master seed: %w", err)
	}
	if err := ks.Create(seed, passphrase); err != nil {
		return nil, fmt.Errorf("seal master seed: %w", err)
	}

	// The mnemonic is recoverable only now; losing it means losing
	// every derived payment address.
	fmt.Printf("New master seed generated. Back up this mnemonic:\n\n  %s\n\n", mnemonic)
	logger.Warn().Msg("new master seed generated, mnemonic printed to stdout once")
	return seed, nil
}

// Start brings up the HTTP API and verifies chain connectivity.
func (s *Service) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res := s.gateway.TestConnection(ctx)
	if res.Success {
		s.logger.Info().
			Uint64("chain_id", s.cfg.Chain.ChainID).
			Uint64("block", res.BlockNumber).
			Str("endpoint", s.gateway.CurrentEndpoint()).
			Msg("chain connection established")
	} else {
		// Endpoints may recover; the per-request failover retries them.
		s.logger.Warn().Str("error", res.Error).Msg("no chain endpoint reachable at startup")
	}

	if s.httpSrv != nil {
		if err := s.httpSrv.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Stop shuts down the API, chain clients, and database.
func (s *Service) Stop() {
	if s.httpSrv != nil {
		if err := s.httpSrv.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("HTTP shutdown failed")
		}
	}
	s.gateway.Close()
	if err := s.db.Close(); err != nil {
		s.logger.Error().Err(err).Msg("closing invoice db failed")
	}
	s.logger.Info().Msg("gateway stopped")
}

// HTTPAddr returns the bound API address, empty when HTTP is disabled.
func (s *Service) HTTPAddr() string {
	if s.httpSrv == nil {
		return ""
	}
	return s.httpSrv.Addr()
}

// ChainID returns the single chain this gateway serves.
func (s *Service) ChainID() uint64 {
	return s.cfg.Chain.ChainID
}

// CreateInvoice derives a fresh payment address, persists the invoice,
// and renders its payment QR code.
func (s *Service) CreateInvoice(ctx context.Context) (*api.CreatedInvoice, error) {
	id := invoice.NewID()
	w, err := s.deriver.DeriveForID(id)
	if err != nil {
		return nil, api.NewError(api.CodeWalletGeneration, "could not derive payment address", err)
	}

	now := s.nowFn().UTC()
	inv := &invoice.Invoice{
		ID:             id,
		PaymentAddress: w.Address.Hex(),
		PrivateKey:     w.PrivateKeyHex(),
		ExpectedAmount: s.cfg.Invoice.Amount,
		ExpectedWei:    s.cfg.Invoice.AmountWei,
		ChainID:        s.cfg.Chain.ChainID,
		Status:         invoice.StatusPending,
		CreatedAt:      now,
		ExpiresAt:      now.Add(time.Duration(s.cfg.Invoice.TTLSeconds) * time.Second),
		UpdatedAt:      now,
	}

	uri := inv.PaymentURI()
	qrURL, err := qr.DataURL(uri)
	if err != nil {
		return nil, api.NewError(api.CodeQRGeneration, "could not render payment QR code", err)
	}

	if err := s.store.Put(inv); err != nil {
		return nil, api.NewError(api.CodeStorage, "could not persist invoice", err)
	}

	// Estimate only; GasPrice falls back to the configured static
	// value when every endpoint is down.
	gasPrice := s.gateway.GasPrice(ctx)
	fee := new(big.Int).Mul(gasPrice, big.NewInt(transferGas))

	s.logger.Info().
		Str("invoice", id).
		Str("address", w.Address.Hex()).
		Uint32("index", w.Index).
		Msg("invoice issued")

	return &api.CreatedInvoice{
		InvoiceID:       id,
		PaymentAddress:  w.Address.Hex(),
		Amount:          inv.ExpectedAmount,
		AmountWei:       inv.ExpectedWei,
		ChainID:         inv.ChainID,
		QRCodeDataURL:   qrURL,
		PaymentURI:      uri,
		ExpiresAt:       inv.ExpiresAt,
		EstimatedGasFee: fee.String(),
	}, nil
}

// InvoiceStatus runs one monitoring poll for the invoice.
func (s *Service) InvoiceStatus(ctx context.Context, id string) *invoice.Result {
	return s.monitor.MonitorPayment(ctx, id)
}

// ReconcileActive polls every non-terminal invoice once. Intended for
// an external scheduler; invoices nobody polls would otherwise never
// formally close out.
func (s *Service) ReconcileActive(ctx context.Context) (int, error) {
	active, err := s.store.ListActive()
	if err != nil {
		return 0, fmt.Errorf("list active invoices: %w", err)
	}
	ids := make([]string, len(active))
	for i, inv := range active {
		ids[i] = inv.ID
	}
	s.monitor.MonitorMultiple(ctx, ids)
	return len(ids), nil
}

// AuthChallenge starts a login attempt for the address.
func (s *Service) AuthChallenge(address string) (*api.NonceResponse, error) {
	nonce, message, err := s.auth.Challenge(address)
	if err != nil {
		return nil, api.NewError(api.CodeInternal, "could not issue nonce", err)
	}
	parsed := nonceauth.ParseAuthMessage(message)
	issuedAt := s.nowFn().UTC()
	if parsed != nil {
		issuedAt = parsed.IssuedAt
	}
	return &api.NonceResponse{
		Address:  address,
		Nonce:    nonce,
		Message:  message,
		IssuedAt: issuedAt,
	}, nil
}

// AuthVerify completes a login attempt and issues a session token.
func (s *Service) AuthVerify(address, message, signature string) (*api.VerifyResponse, error) {
	token, expiresAt, err := s.auth.Authorize(address, message, signature)
	if err != nil {
		return nil, err
	}
	return &api.VerifyResponse{
		Address:   address,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// Health reports chain connectivity for the health endpoint.
func (s *Service) Health(ctx context.Context) api.HealthResponse {
	res := s.gateway.TestConnection(ctx)
	return api.HealthResponse{
		OK:          res.Success,
		ChainID:     s.cfg.Chain.ChainID,
		BlockNumber: res.BlockNumber,
		Endpoint:    s.gateway.CurrentEndpoint(),
		Error:       res.Error,
	}
}
