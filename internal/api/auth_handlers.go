package api

import (
	"encoding/json"
	"net/http"

	"github.com/Chainvoice-tech/chainvoice-gateway/internal/wallet"
)

// handleAuthNonce serves POST /auth/nonce: start of a login attempt.
// Issuing a new nonce invalidates any prior one for the address.
func (s *Server) handleAuthNonce(w http.ResponseWriter, r *http.Request) {
	var req NonceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErr(w, CodeValidationError, "invalid JSON body", err)
		return
	}
	if !wallet.IsValidAddress(req.Address) {
		s.writeErr(w, CodeValidationError, "invalid wallet address", nil)
		return
	}

	resp, err := s.svc.AuthChallenge(req.Address)
	if err != nil {
		s.writeClassified(w, err)
		return
	}

	s.logger.Debug().Str("address", req.Address).Msg("nonce issued")
	writeJSON(w, http.StatusOK, resp)
}

// handleAuthVerify serves POST /auth/verify: completes the login
// attempt by checking the signed challenge and issuing a session.
func (s *Server) handleAuthVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErr(w, CodeValidationError, "invalid JSON body", err)
		return
	}
	if !wallet.IsValidAddress(req.Address) {
		s.writeErr(w, CodeValidationError, "invalid wallet address", nil)
		return
	}
	if req.Message == "" || req.Signature == "" {
		s.writeErr(w, CodeValidationError, "message and signature are required", nil)
		return
	}

	resp, err := s.svc.AuthVerify(req.Address, req.Message, req.Signature)
	if err != nil {
		s.logger.Warn().Str("address", req.Address).Err(err).Msg("login rejected")
		s.writeClassified(w, err)
		return
	}

	s.logger.Info().Str("address", req.Address).Msg("wallet authenticated")
	writeJSON(w, http.StatusOK, resp)
}
