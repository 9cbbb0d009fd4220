package nonceauth

import (
	"fmt"
	"strings"
	"time"
)

// Auth message layout. The wallet signs this text off-band (EIP-191
// personal_sign); the service later parses it back to confirm the embedded
// address and nonce match the login attempt.
const (
	messageHeader   = "Chainvoice wants you to sign in with your wallet:"
	messageNonceKey = "Nonce: "
	messageTimeKey  = "Issued At: "
)

// ParsedMessage is the structured content of an auth challenge message.
type ParsedMessage struct {
	Address  string
	Nonce    string
	IssuedAt time.Time
}

// CreateAuthMessage builds the canonical challenge text for an address and
// nonce. The same text must be signed verbatim by the wallet.
func CreateAuthMessage(address, nonce string, issuedAt time.Time) string {
	return fmt.Sprintf("%s\n%s\n\n%s%s\n%s%s",
		messageHeader,
		address,
		messageNonceKey, nonce,
		messageTimeKey, issuedAt.UTC().Format(time.RFC3339),
	)
}

// ParseAuthMessage is the inverse of CreateAuthMessage. Returns nil when
// the text does not match the canonical layout.
func ParseAuthMessage(message string) *ParsedMessage {
	lines := strings.Split(message, "\n")
	if len(lines) != 5 {
		return nil
	}
	if lines[0] != messageHeader || lines[2] != "" {
		return nil
	}

	address := strings.TrimSpace(lines[1])
	if address == "" {
		return nil
	}

	nonce, ok := strings.CutPrefix(lines[3], messageNonceKey)
	if !ok || nonce == "" {
		return nil
	}

	stamp, ok := strings.CutPrefix(lines[4], messageTimeKey)
	if !ok {
		return nil
	}
	issuedAt, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return nil
	}

	return &ParsedMessage{
		Address:  address,
		Nonce:    nonce,
		IssuedAt: issuedAt,
	}
}
