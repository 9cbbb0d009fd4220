// Package api implements the HTTP surface of the gateway: invoice
// creation and status polling plus the wallet-signature login flow.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Chainvoice-tech/chainvoice-gateway/config"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/chainrpc"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/invoice"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/log"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/nonceauth"
)

// defaultMaxBody caps request bodies when no limit is configured.
const defaultMaxBody = 1 << 20

// Service is the application surface the handlers call into.
type Service interface {
	ChainID() uint64
	CreateInvoice(ctx context.Context) (*CreatedInvoice, error)
	InvoiceStatus(ctx context.Context, id string) *invoice.Result
	AuthChallenge(address string) (*NonceResponse, error)
	AuthVerify(address, message, signature string) (*VerifyResponse, error)
	Health(ctx context.Context) HealthResponse
}

// Error is a failure already classified with a stable code. Handlers
// pass the code straight into the response body.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified failure.
func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Server is the HTTP API server.
type Server struct {
	addr        string
	svc         Service
	limiter     *IPRateLimiter
	maxBody     int64
	debug       bool
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// NewServer creates the API server from the HTTP config section.
func NewServer(cfg config.HTTPConfig, svc Service, debug bool) *Server {
	s := &Server{
		addr:        fmt.Sprintf("%s:%d", cfg.Addr, cfg.Port),
		svc:         svc,
		limiter:     NewIPRateLimiter(cfg.CreatePerMin, cfg.CreateBurst),
		maxBody:     cfg.MaxBodyBytes,
		debug:       debug,
		logger:      log.WithComponent("http"),
		allowedNets: parseAllowedIPs(cfg.AllowedIPs),
		corsOrigins: cfg.CORSOrigins,
	}
	if s.maxBody <= 0 {
		s.maxBody = defaultMaxBody
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoice/create", s.wrap(s.handleCreateInvoice))
	mux.HandleFunc("GET /invoice/{id}/status", s.wrap(s.handleInvoiceStatus))
	mux.HandleFunc("POST /auth/nonce", s.wrap(s.handleAuthNonce))
	mux.HandleFunc("POST /auth/verify", s.wrap(s.handleAuthVerify))
	mux.HandleFunc("GET /healthz", s.wrap(s.handleHealth))
	mux.HandleFunc("OPTIONS /", s.wrap(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		// Try as a single IP (add /32 or /128).
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	s.logger.Info().Str("addr", s.Addr()).Msg("HTTP API listening")
	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// wrap applies IP filtering, CORS, and the body limit to a handler.
func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedNets) > 0 {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				s.writeErr(w, CodePermissionDenied, "forbidden", nil)
				return
			}
			ip := net.ParseIP(host)
			if ip == nil || !s.isIPAllowed(ip) {
				s.writeErr(w, CodePermissionDenied, "forbidden", nil)
				return
			}
		}

		s.setCORSHeaders(w, r)

		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		}
		h(w, r)
	}
}

// isIPAllowed checks if the IP is in the allowed networks list.
func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}

	allowed := false
	for _, o := range s.corsOrigins {
		if o == "*" {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			allowed = true
			break
		}
		if o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			allowed = true
			break
		}
	}

	if allowed {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}
}

// writeErr emits the shared error envelope. Raw details are attached
// only in debug builds.
func (s *Server) writeErr(w http.ResponseWriter, code, message string, cause error) {
	body := ErrorBody{Code: code, Message: message}
	if s.debug && cause != nil {
		body.Details = cause.Error()
	}
	writeJSON(w, httpStatusFor(code), ErrorResponse{Success: false, Error: body})
}

// writeClassified maps an error from the service layer to its code.
func (s *Server) writeClassified(w http.ResponseWriter, err error) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		s.writeErr(w, apiErr.Code, apiErr.Message, apiErr.Err)
		return
	}

	var rpcErr *chainrpc.Error
	if errors.As(err, &rpcErr) {
		s.writeErr(w, rpcErr.Code, rpcErr.Message, rpcErr.Unwrap())
		return
	}

	switch {
	case errors.Is(err, invoice.ErrNotFound):
		s.writeErr(w, CodeInvoiceNotFound, "Invoice not found", nil)
	case errors.Is(err, nonceauth.ErrExpiredNonce):
		s.writeErr(w, CodeExpiredNonce, "nonce missing or expired", nil)
	case errors.Is(err, nonceauth.ErrAddressMismatch):
		s.writeErr(w, CodeAddressMismatch, "message address does not match caller", nil)
	case errors.Is(err, nonceauth.ErrInvalidSignature):
		s.writeErr(w, CodeInvalidSignature, "signature does not recover to address", nil)
	default:
		s.writeErr(w, CodeInternal, "internal error", err)
	}
}

// clientIP extracts the caller's IP for rate limiting.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
