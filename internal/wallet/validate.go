package wallet

import (
	"encoding/hex"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	ethcommon "github.com/ethereum/go-ethereum/common"
)

// IsValidAddress reports whether s is a well-formed 0x-prefixed
// 20-byte hex address.
func IsValidAddress(s string) bool {
	return ethcommon.IsHexAddress(s)
}

// IsValidPrivateKey reports whether b is a well-formed secp256k1 private
// key: exactly 32 bytes encoding a non-zero scalar below the group order.
func IsValidPrivateKey(b []byte) bool {
	if len(b) != 32 {
		return false
	}
	var s secp256k1.ModNScalar
	overflow := s.SetByteSlice(b)
	return !overflow && !s.IsZero()
}

// IsValidPrivateKeyHex reports whether s is a valid private key in hex
// form, with or without a 0x prefix.
func IsValidPrivateKeyHex(s string) bool {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return false
	}
	return IsValidPrivateKey(b)
}
