// Package nonceauth issues single-use nonces bound to wallet addresses and
// verifies that a login signature was produced over the matching challenge.
package nonceauth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"

	"github.com/Chainvoice-tech/chainvoice-gateway/internal/log"
)

// NonceBytes is the entropy of a challenge nonce (hex-encoded to twice
// this length).
const NonceBytes = 16

// SessionBytes is the entropy of a bearer session token.
const SessionBytes = 32

// Default lifetimes.
const (
	DefaultNonceTTL   = 5 * time.Minute
	DefaultSessionTTL = 24 * time.Hour
)

// Sentinel errors for the login flow.
var (
	ErrExpiredNonce     = errors.New("nonce expired or unknown")
	ErrAddressMismatch  = errors.New("message address does not match caller address")
	ErrInvalidSignature = errors.New("signature does not recover to the asserted address")
)

type nonceRecord struct {
	nonce    string
	issuedAt time.Time
}

type sessionRecord struct {
	address   string
	expiresAt time.Time
}

// Service holds nonce and session state in process-local maps. In a
// multi-instance deployment these maps are not shared; nonce validation is
// only correct within a single process.
type Service struct {
	nonceTTL   time.Duration
	sessionTTL time.Duration
	logger     zerolog.Logger
	nowFn      func() time.Time

	mu       sync.Mutex
	byAddr   map[string]nonceRecord // lower-cased address -> unconsumed nonce
	sessions map[string]sessionRecord
}

// New creates a Service. Zero durations select the defaults.
func New(nonceTTL, sessionTTL time.Duration) *Service {
	if nonceTTL <= 0 {
		nonceTTL = DefaultNonceTTL
	}
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Service{
		nonceTTL:   nonceTTL,
		sessionTTL: sessionTTL,
		logger:     log.Auth,
		nowFn:      time.Now,
		byAddr:     make(map[string]nonceRecord),
		sessions:   make(map[string]sessionRecord),
	}
}

// GenerateNonce returns a fresh random hex token.
func GenerateNonce() (string, error) {
	buf := make([]byte, NonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// StoreNonce associates the nonce with the address, overwriting any prior
// unconsumed nonce for that address. A new login attempt invalidates a
// stale one.
func (s *Service) StoreNonce(address, nonce string) {
	key := strings.ToLower(address)
	s.mu.Lock()
	s.byAddr[key] = nonceRecord{nonce: nonce, issuedAt: s.nowFn()}
	s.mu.Unlock()
}

// ValidateNonce reports whether the nonce exists for some address and has
// not expired. It does not consume the nonce; ClearNonce does. Expired
// entries encountered here are dropped.
func (s *Service) ValidateNonce(nonce string) bool {
	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	for addr, rec := range s.byAddr {
		if rec.nonce != nonce {
			continue
		}
		if now.Sub(rec.issuedAt) > s.nonceTTL {
			delete(s.byAddr, addr)
			return false
		}
		return true
	}
	return false
}

// ClearNonce removes the address's nonce entry. Must be called exactly
// once after a successful signature verification to prevent replay.
func (s *Service) ClearNonce(address string) {
	key := strings.ToLower(address)
	s.mu.Lock()
	delete(s.byAddr, key)
	s.mu.Unlock()
}

// NonceFor returns the unconsumed nonce for an address, if any. Used by
// the challenge endpoint to build the auth message.
func (s *Service) NonceFor(address string) (string, bool) {
	key := strings.ToLower(address)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.byAddr[key]
	if !ok {
		return "", false
	}
	if s.nowFn().Sub(rec.issuedAt) > s.nonceTTL {
		delete(s.byAddr, key)
		return "", false
	}
	return rec.nonce, true
}

// Challenge issues a nonce for the address and returns the canonical
// message the wallet must sign.
func (s *Service) Challenge(address string) (nonce, message string, err error) {
	nonce, err = GenerateNonce()
	if err != nil {
		return "", "", err
	}
	s.StoreNonce(address, nonce)
	message = CreateAuthMessage(address, nonce, s.nowFn())
	return nonce, message, nil
}

// VerifySignature checks that an EIP-191 personal_sign signature over
// message recovers exactly to address. Signature is 65-byte hex with or
// without a 0x prefix; a 27/28 recovery id is normalized.
func VerifySignature(signature, message, address string) bool {
	sigHex := strings.TrimPrefix(signature, "0x")
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != 65 {
		return false
	}
	if sig[64] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[64] -= 27
	}

	hash := accounts.TextHash([]byte(message))
	pub, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return false
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)
	return strings.EqualFold(recovered.Hex(), address)
}

// Authorize runs the full login verification for one attempt: parse the
// signed message, confirm its embedded address matches the caller's,
// confirm the nonce is live, verify the signature, then consume the nonce
// and issue a session token. The nonce is cleared exactly once, only after
// the signature that used it verified.
func (s *Service) Authorize(address, message, signature string) (token string, expiresAt time.Time, err error) {
	parsed := ParseAuthMessage(message)
	if parsed == nil {
		return "", time.Time{}, ErrInvalidSignature
	}
	if !strings.EqualFold(parsed.Address, address) {
		return "", time.Time{}, ErrAddressMismatch
	}
	if !s.ValidateNonce(parsed.Nonce) {
		return "", time.Time{}, ErrExpiredNonce
	}
	if !VerifySignature(signature, message, address) {
		return "", time.Time{}, ErrInvalidSignature
	}

	s.ClearNonce(address)

	token, expiresAt, err = s.issueSession(address)
	if err != nil {
		return "", time.Time{}, err
	}
	s.logger.Info().Str("address", strings.ToLower(address)).Msg("wallet authenticated")
	return token, expiresAt, nil
}

// issueSession mints a bearer token for the address.
func (s *Service) issueSession(address string) (string, time.Time, error) {
	buf := make([]byte, SessionBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate session token: %w", err)
	}
	token := hex.EncodeToString(buf)
	expiresAt := s.nowFn().Add(s.sessionTTL)

	s.mu.Lock()
	s.sessions[token] = sessionRecord{address: strings.ToLower(address), expiresAt: expiresAt}
	s.mu.Unlock()
	return token, expiresAt, nil
}

// SessionAddress returns the address bound to a live session token.
func (s *Service) SessionAddress(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[token]
	if !ok {
		return "", false
	}
	if s.nowFn().After(rec.expiresAt) {
		delete(s.sessions, token)
		return "", false
	}
	return rec.address, true
}
