package ledger

import (
	"errors"
	"strings"

	"github.com/btcsuite/btcd/btcutil/base58"
)

const (
	minAddressLen = 32
	maxAddressLen = 44
	pubkeyLen     = 32
)

// ErrInvalidAddress is returned for strings that are not base58 public keys
var ErrInvalidAddress = errors.New("invalid ledger address")

// NormalizeAddress validates a base58 worker address and returns its
// canonical encoding. Addresses must decode to a 32-byte public key.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if len(addr) < minAddressLen || len(addr) > maxAddressLen {
		return "", ErrInvalidAddress
	}
	raw := base58.Decode(addr)
	if len(raw) != pubkeyLen {
		return "", ErrInvalidAddress
	}
	return base58.Encode(raw), nil
}

// SameAddress reports whether a and b are valid and encode the same key
func SameAddress(a, b string) bool {
	na, err := NormalizeAddress(a)
	if err != nil {
		return false
	}
	nb, err := NormalizeAddress(b)
	if err != nil {
		return false
	}
	return na == nb
}
