package domain

import (
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// Address is a Solana-style 32-byte account/mint public key.
type Address [32]byte

// ZeroAddress is the sentinel empty address (no known signer/owner).
var ZeroAddress Address

func (a Address) IsZero() bool { return a == ZeroAddress }

func (a Address) String() string { return base58.Encode(a[:]) }

// IsSmallerThan gives a stable total order over addresses, used when a
// pair needs a canonical (A, B) ordering regardless of arrival order.
func (a Address) IsSmallerThan(b Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := base58.Decode(s)
	if err != nil {
		return a, fmt.Errorf("domain: decode address %q: %w", s, err)
	}
	if len(raw) != len(a) {
		return a, fmt.Errorf("domain: address %q has %d bytes, want %d", s, len(raw), len(a))
	}
	copy(a[:], raw)
	return a, nil
}

func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*a = ZeroAddress
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
