package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/Chainvoice-tech/chainvoice-gateway/internal/invoice"
)

// handleCreateInvoice serves POST /invoice/create.
func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	ok, remaining := s.limiter.Allow(ip)
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !ok {
		s.logger.Warn().Str("ip", ip).Msg("invoice creation rate limited")
		s.writeErr(w, CodeRateLimitExceeded, "too many invoice requests, retry later", nil)
		return
	}

	// Body is optional; an empty body means the default chain.
	var req CreateInvoiceRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeErr(w, CodeValidationError, "unreadable request body", err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeErr(w, CodeValidationError, "invalid JSON body", err)
			return
		}
	}

	// Chain mismatches fail before any network call.
	if req.ChainID != nil && *req.ChainID != s.svc.ChainID() {
		s.writeErr(w, CodeInvalidChainID,
			fmt.Sprintf("chain %d is not served, expected %d", *req.ChainID, s.svc.ChainID()), nil)
		return
	}

	created, err := s.svc.CreateInvoice(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("invoice creation failed")
		s.writeClassified(w, err)
		return
	}

	s.logger.Info().
		Str("invoice", created.InvoiceID).
		Str("address", created.PaymentAddress).
		Str("ip", ip).
		Msg("invoice created")

	w.Header().Set("X-Invoice-ID", created.InvoiceID)
	writeJSON(w, http.StatusCreated, created)
}

// handleInvoiceStatus serves GET /invoice/{id}/status. Expired and
// errored invoices are valid statuses, not HTTP errors; only unknown
// ids return 404.
func (s *Server) handleInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := invoice.ValidateID(id); err != nil {
		// Malformed ids never reach the store.
		s.writeErr(w, CodeInvoiceNotFound, "Invoice not found", err)
		return
	}

	res := s.svc.InvoiceStatus(r.Context(), id)
	if res.NotFound {
		s.writeErr(w, CodeInvoiceNotFound, "Invoice not found", nil)
		return
	}

	setStatusCacheHeaders(w, res.Status)
	writeJSON(w, http.StatusOK, res)
}

// setStatusCacheHeaders varies caching by lifecycle state: terminal
// statuses are stable, in-flight ones are about to change.
func setStatusCacheHeaders(w http.ResponseWriter, status invoice.Status) {
	switch status {
	case invoice.StatusCompleted, invoice.StatusExpired:
		w.Header().Set("Cache-Control", "public, max-age=3600")
	default:
		w.Header().Set("Cache-Control", "no-store, max-age=0")
	}
}

// handleHealth serves GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.svc.Health(r.Context())
	status := http.StatusOK
	if !h.OK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, h)
}
