package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// Stable error codes returned in every error body.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeInvalidChain      = "INVALID_CHAIN"
	CodeInvalidChainID    = "INVALID_CHAIN_ID"
	CodeRateLimited       = "RATE_LIMITED"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeWalletGeneration  = "WALLET_GENERATION_FAILED"
	CodeQRGeneration      = "QR_GENERATION_FAILED"
	CodeRPCConnection     = "RPC_CONNECTION_FAILED"
	CodePaymentMonitoring = "PAYMENT_MONITORING_FAILED"
	CodeInvoiceNotFound   = "INVOICE_NOT_FOUND"
	CodeStorage           = "STORAGE_ERROR"
	CodeExpiredNonce      = "EXPIRED_NONCE"
	CodeAddressMismatch   = "ADDRESS_MISMATCH"
	CodeInvalidSignature  = "INVALID_SIGNATURE"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeInternal          = "INTERNAL_ERROR"
)

// httpStatusFor maps an error code to its HTTP status.
func httpStatusFor(code string) int {
	switch code {
	case CodeValidationError, CodeInvalidChain, CodeInvalidChainID,
		CodeExpiredNonce, CodeAddressMismatch, CodeInvalidSignature:
		return http.StatusBadRequest
	case CodeInvoiceNotFound:
		return http.StatusNotFound
	case CodeRateLimited, CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeRPCConnection:
		return http.StatusServiceUnavailable
	case CodePaymentMonitoring, CodeStorage, CodeWalletGeneration,
		CodeQRGeneration, CodeInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// ErrorBody is the error payload shared by all endpoints.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// ErrorResponse is the envelope for failed requests.
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   ErrorBody `json:"error"`
}

// CreateInvoiceRequest is the POST /invoice/create body.
type CreateInvoiceRequest struct {
	ChainID *uint64 `json:"chainId,omitempty"`
}

// CreatedInvoice is the POST /invoice/create response.
type CreatedInvoice struct {
	InvoiceID       string    `json:"invoiceId"`
	PaymentAddress  string    `json:"paymentAddress"`
	Amount          string    `json:"amount"`
	AmountWei       string    `json:"amountWei"`
	ChainID         uint64    `json:"chainId"`
	QRCodeDataURL   string    `json:"qrCodeDataURL"`
	PaymentURI      string    `json:"paymentURI"`
	ExpiresAt       time.Time `json:"expiresAt"`
	EstimatedGasFee string    `json:"estimatedGasFee"`
}

// NonceRequest is the POST /auth/nonce body.
type NonceRequest struct {
	Address string `json:"address"`
}

// NonceResponse carries the challenge the wallet must sign.
type NonceResponse struct {
	Address  string    `json:"address"`
	Nonce    string    `json:"nonce"`
	Message  string    `json:"message"`
	IssuedAt time.Time `json:"issuedAt"`
}

// VerifyRequest is the POST /auth/verify body.
type VerifyRequest struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// VerifyResponse carries the issued session.
type VerifyResponse struct {
	Address   string    `json:"address"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// HealthResponse is the GET /healthz body.
type HealthResponse struct {
	OK          bool   `json:"ok"`
	ChainID     uint64 `json:"chainId"`
	BlockNumber uint64 `json:"blockNumber,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	Error       string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
