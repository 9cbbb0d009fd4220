// Package invoice holds the payment-request model and its lifecycle
// state machine. Invoices are created once, mutated only by the
// Monitor, and never deleted; expiry is a status, not removal.
package invoice

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an invoice. Progression is forward
// only: pending -> confirming -> completed, with expired reachable from
// pending/confirming and error terminal from anywhere.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirming Status = "confirming"
	StatusCompleted  Status = "completed"
	StatusExpired    Status = "expired"
	StatusError      Status = "error"
)

// Terminal reports whether no further chain polling happens for s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusExpired || s == StatusError
}

// rank orders statuses for the monotonic-transition check. error sits
// above everything because it is reachable from any state.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusConfirming:
		return 1
	case StatusCompleted:
		return 2
	case StatusExpired:
		return 2
	case StatusError:
		return 3
	}
	return -1
}

// CanTransition reports whether moving from s to next is a legal
// forward step of the state machine.
func (s Status) CanTransition(next Status) bool {
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	if next == StatusError || next == StatusExpired {
		return true
	}
	return next.rank() == s.rank()+1
}

// Invoice is one payment request. expectedAmountWei is authoritative
// for comparisons; the decimal form exists for display only. The
// private key is persisted for a potential future sweep and is never
// exposed over the API.
type Invoice struct {
	ID             string `json:"id"`
	PaymentAddress string `json:"paymentAddress"`
	PrivateKey     string `json:"privateKey,omitempty"`
	ExpectedAmount string `json:"expectedAmount"`
	ExpectedWei    string `json:"expectedAmountWei"`
	ChainID        uint64 `json:"chainId"`
	Status         Status `json:"status"`

	TransactionHash string `json:"transactionHash,omitempty"`
	BlockNumber     uint64 `json:"blockNumber,omitempty"`
	// DetectionBlock anchors confirmation counting when payment was
	// found by balance snapshot and no transaction hash is known.
	DetectionBlock uint64 `json:"detectionBlock,omitempty"`
	Confirmations  uint64 `json:"confirmations"`
	PaidAmountWei  string `json:"paidAmountWei,omitempty"`

	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
}

// ExpectedWeiInt parses the authoritative integer amount.
func (inv *Invoice) ExpectedWeiInt() (*big.Int, error) {
	n, ok := new(big.Int).SetString(inv.ExpectedWei, 10)
	if !ok || n.Sign() <= 0 {
		return nil, fmt.Errorf("invoice %s: bad expectedAmountWei %q", inv.ID, inv.ExpectedWei)
	}
	return n, nil
}

// TimeRemaining returns whole seconds until expiry, floored at zero.
func (inv *Invoice) TimeRemaining(now time.Time) int64 {
	rem := inv.ExpiresAt.Sub(now)
	if rem <= 0 {
		return 0
	}
	return int64(rem / time.Second)
}

// PaymentURI renders the EIP-681 payment request for the invoice,
// amount in wei: ethereum:<address>@<chainId>?value=<wei>.
func (inv *Invoice) PaymentURI() string {
	return fmt.Sprintf("ethereum:%s@%d?value=%s", inv.PaymentAddress, inv.ChainID, inv.ExpectedWei)
}

const idPrefix = "inv_"

var idPattern = regexp.MustCompile(`^inv_[0-9a-f]{32}$`)

// NewID returns a fresh invoice identifier: the fixed prefix plus a
// 32-character lowercase hex suffix.
func NewID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return idPrefix + suffix
}

// ValidateID rejects malformed identifiers before any store lookup.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return fmt.Errorf("malformed invoice id %q", id)
	}
	return nil
}
