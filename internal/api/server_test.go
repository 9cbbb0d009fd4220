package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Chainvoice-tech/chainvoice-gateway/config"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/invoice"
	"github.com/Chainvoice-tech/chainvoice-gateway/internal/nonceauth"
)

// fakeService scripts the application layer under the handlers.
type fakeService struct {
	chainID   uint64
	created   *CreatedInvoice
	createErr error
	statuses  map[string]*invoice.Result
	verifyErr error
}

func (f *fakeService) ChainID() uint64 { return f.chainID }

func (f *fakeService) CreateInvoice(ctx context.Context) (*CreatedInvoice, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.created, nil
}

func (f *fakeService) InvoiceStatus(ctx context.Context, id string) *invoice.Result {
	if res, ok := f.statuses[id]; ok {
		return res
	}
	return &invoice.Result{InvoiceID: id, Status: invoice.StatusError, NotFound: true, Err: "Invoice not found"}
}

func (f *fakeService) AuthChallenge(address string) (*NonceResponse, error) {
	return &NonceResponse{
		Address:  address,
		Nonce:    "6e6f6e63656e6f6e63656e6f6e636531",
		Message:  "challenge",
		IssuedAt: time.Now().UTC(),
	}, nil
}

func (f *fakeService) AuthVerify(address, message, signature string) (*VerifyResponse, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &VerifyResponse{Address: address, Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (f *fakeService) Health(ctx context.Context) HealthResponse {
	return HealthResponse{OK: true, ChainID: f.chainID, BlockNumber: 42}
}

func newTestServer(t *testing.T, svc Service, cfg config.HTTPConfig) *Server {
	t.Helper()
	return NewServer(cfg, svc, false)
}

func defaultHTTPConfig() config.HTTPConfig {
	return config.HTTPConfig{
		Addr:         "127.0.0.1",
		Port:         0,
		CreatePerMin: 600,
		CreateBurst:  100,
		MaxBodyBytes: 1 << 20,
	}
}

func sampleCreated() *CreatedInvoice {
	return &CreatedInvoice{
		InvoiceID:       "inv_0123456789abcdef0123456789abcdef",
		PaymentAddress:  "0x9f8f72aA9304c8B593d555F12eF6589cC3A579A2",
		Amount:          "0.001",
		AmountWei:       "1000000000000000",
		ChainID:         1,
		QRCodeDataURL:   "data:image/png;base64,AAAA",
		PaymentURI:      "ethereum:0x9f8f72aA9304c8B593d555F12eF6589cC3A579A2@1?value=1000000000000000",
		ExpiresAt:       time.Now().Add(5 * time.Minute),
		EstimatedGasFee: "420000000000000",
	}
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.0.0.1:50000"
	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, w.Body.String())
	}
	if resp.Success {
		t.Error("error response has success=true")
	}
	return resp
}

func TestCreateInvoice(t *testing.T) {
	svc := &fakeService{chainID: 1, created: sampleCreated()}
	s := newTestServer(t, svc, defaultHTTPConfig())

	w := doRequest(s, http.MethodPost, "/invoice/create", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("X-Invoice-ID"); got != svc.created.InvoiceID {
		t.Errorf("X-Invoice-ID = %q", got)
	}
	if w.Header().Get("X-RateLimit-Remaining") == "" {
		t.Error("missing X-RateLimit-Remaining header")
	}

	var resp CreatedInvoice
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.PaymentURI != svc.created.PaymentURI || resp.QRCodeDataURL == "" {
		t.Errorf("unexpected body: %+v", resp)
	}
}

func TestCreateInvoice_WrongChain(t *testing.T) {
	s := newTestServer(t, &fakeService{chainID: 1, created: sampleCreated()}, defaultHTTPConfig())

	w := doRequest(s, http.MethodPost, "/invoice/create", CreateInvoiceRequest{ChainID: uintPtr(137)})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != CodeInvalidChainID {
		t.Errorf("code = %s", resp.Error.Code)
	}
}

func uintPtr(v uint64) *uint64 { return &v }

func TestCreateInvoice_RateLimited(t *testing.T) {
	cfg := defaultHTTPConfig()
	cfg.CreatePerMin = 1
	cfg.CreateBurst = 2
	s := newTestServer(t, &fakeService{chainID: 1, created: sampleCreated()}, cfg)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = doRequest(s, http.MethodPost, "/invoice/create", nil)
	}
	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("third burst request: status = %d", last.Code)
	}
	if resp := decodeError(t, last); resp.Error.Code != CodeRateLimitExceeded {
		t.Errorf("code = %s", resp.Error.Code)
	}
}

func TestCreateInvoice_ClassifiedFailure(t *testing.T) {
	svc := &fakeService{
		chainID:   1,
		createErr: NewError(CodeWalletGeneration, "could not derive payment address", fmt.Errorf("no key material")),
	}
	s := newTestServer(t, svc, defaultHTTPConfig())

	w := doRequest(s, http.MethodPost, "/invoice/create", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	resp := decodeError(t, w)
	if resp.Error.Code != CodeWalletGeneration {
		t.Errorf("code = %s", resp.Error.Code)
	}
	if resp.Error.Details != "" {
		t.Error("details leaked outside debug mode")
	}
}

func TestInvoiceStatus(t *testing.T) {
	id := "inv_0123456789abcdef0123456789abcdef"
	svc := &fakeService{
		chainID: 1,
		statuses: map[string]*invoice.Result{
			id: {InvoiceID: id, Status: invoice.StatusPending, TimeRemaining: 280, Required: 12},
		},
	}
	s := newTestServer(t, svc, defaultHTTPConfig())

	w := doRequest(s, http.MethodGet, "/invoice/"+id+"/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "no-store") {
		t.Errorf("pending cache-control = %q", cc)
	}

	var res invoice.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.Status != invoice.StatusPending || res.TimeRemaining != 280 {
		t.Errorf("body = %+v", res)
	}
}

func TestInvoiceStatus_TerminalIsNotAnHTTPError(t *testing.T) {
	id := "inv_ffffffffffffffffffffffffffffffff"
	svc := &fakeService{
		chainID: 1,
		statuses: map[string]*invoice.Result{
			id: {InvoiceID: id, Status: invoice.StatusExpired},
		},
	}
	s := newTestServer(t, svc, defaultHTTPConfig())

	w := doRequest(s, http.MethodGet, "/invoice/"+id+"/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expired invoice: status = %d, want 200", w.Code)
	}
	if cc := w.Header().Get("Cache-Control"); !strings.Contains(cc, "max-age=3600") {
		t.Errorf("terminal cache-control = %q", cc)
	}
}

func TestInvoiceStatus_MalformedID(t *testing.T) {
	svc := &fakeService{chainID: 1, statuses: map[string]*invoice.Result{}}
	s := newTestServer(t, svc, defaultHTTPConfig())

	for _, id := range []string{"nonsense", "inv_short", "inv_GGGG6789abcdef0123456789abcdef00"} {
		w := doRequest(s, http.MethodGet, "/invoice/"+id+"/status", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("id %q: status = %d, want 404", id, w.Code)
		}
		if resp := decodeError(t, w); resp.Error.Code != CodeInvoiceNotFound {
			t.Errorf("id %q: code = %s", id, resp.Error.Code)
		}
	}
}

func TestInvoiceStatus_Unknown(t *testing.T) {
	svc := &fakeService{chainID: 1, statuses: map[string]*invoice.Result{}}
	s := newTestServer(t, svc, defaultHTTPConfig())

	w := doRequest(s, http.MethodGet, "/invoice/inv_0123456789abcdef0123456789abcdef/status", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAuthNonce(t *testing.T) {
	s := newTestServer(t, &fakeService{chainID: 1}, defaultHTTPConfig())

	w := doRequest(s, http.MethodPost, "/auth/nonce",
		NonceRequest{Address: "0x9f8f72aA9304c8B593d555F12eF6589cC3A579A2"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp NonceResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Nonce == "" || resp.Message == "" {
		t.Errorf("incomplete challenge: %+v", resp)
	}
}

func TestAuthNonce_BadAddress(t *testing.T) {
	s := newTestServer(t, &fakeService{chainID: 1}, defaultHTTPConfig())

	w := doRequest(s, http.MethodPost, "/auth/nonce", NonceRequest{Address: "not-an-address"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != CodeValidationError {
		t.Errorf("code = %s", resp.Error.Code)
	}
}

func TestAuthVerify_ErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		code     string
		httpCode int
	}{
		{nonceauth.ErrExpiredNonce, CodeExpiredNonce, http.StatusBadRequest},
		{nonceauth.ErrAddressMismatch, CodeAddressMismatch, http.StatusBadRequest},
		{nonceauth.ErrInvalidSignature, CodeInvalidSignature, http.StatusBadRequest},
	}
	for _, tt := range tests {
		s := newTestServer(t, &fakeService{chainID: 1, verifyErr: tt.err}, defaultHTTPConfig())
		w := doRequest(s, http.MethodPost, "/auth/verify", VerifyRequest{
			Address:   "0x9f8f72aA9304c8B593d555F12eF6589cC3A579A2",
			Message:   "challenge",
			Signature: "0xdead",
		})
		if w.Code != tt.httpCode {
			t.Errorf("%v: status = %d, want %d", tt.err, w.Code, tt.httpCode)
		}
		if resp := decodeError(t, w); resp.Error.Code != tt.code {
			t.Errorf("%v: code = %s", tt.err, resp.Error.Code)
		}
	}
}

func TestAuthVerify_MissingFields(t *testing.T) {
	s := newTestServer(t, &fakeService{chainID: 1}, defaultHTTPConfig())

	w := doRequest(s, http.MethodPost, "/auth/verify", VerifyRequest{
		Address: "0x9f8f72aA9304c8B593d555F12eF6589cC3A579A2",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakeService{chainID: 1}, defaultHTTPConfig())

	w := doRequest(s, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.OK || resp.BlockNumber != 42 {
		t.Errorf("body = %+v", resp)
	}
}

func TestIPAllowlist(t *testing.T) {
	cfg := defaultHTTPConfig()
	cfg.AllowedIPs = []string{"192.168.1.0/24"}
	s := newTestServer(t, &fakeService{chainID: 1}, cfg)

	w := doRequest(s, http.MethodGet, "/healthz", nil) // RemoteAddr 10.0.0.1
	if w.Code != http.StatusForbidden {
		t.Fatalf("disallowed IP: status = %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "192.168.1.7:1234"
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("allowed IP: status = %d", rec.Code)
	}
}

func TestCORSHeaders(t *testing.T) {
	cfg := defaultHTTPConfig()
	cfg.CORSOrigins = []string{"http://localhost:3000"}
	s := newTestServer(t, &fakeService{chainID: 1}, cfg)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.1:50000"
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("allow-origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "10.0.0.1:50000"
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow-origin %q for unlisted origin", got)
	}
}
