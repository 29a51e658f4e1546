package ir

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the byte length of an Address.
const AddressLength = 20

// HashLength is the byte length of a Hash.
const HashLength = 32

// Address identifies a principal or a deployed contract.
// The zero value is the null principal.
type Address [AddressLength]byte

// ZeroAddress is the null principal.
var ZeroAddress Address

// ParseAddress decodes a 0x-prefixed hex address. Input is case-insensitive.
// Short inputs such as "0xAAA" are left-padded with zeros.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := decodeHex(s, AddressLength)
	if err != nil {
		return a, fmt.Errorf("parse address %q: %w", s, err)
	}
	copy(a[AddressLength-len(raw):], raw)
	return a, nil
}

// MustAddress is like ParseAddress but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// IsZero reports whether a is the null principal.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// String returns the lower-case 0x-prefixed hex form.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Hash identifies a block or transaction.
type Hash [HashLength]byte

// ParseHash decodes a 0x-prefixed, full-length hex hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	raw, err := decodeHex(s, HashLength)
	if err != nil {
		return h, fmt.Errorf("parse hash %q: %w", s, err)
	}
	if len(raw) != HashLength {
		return h, fmt.Errorf("parse hash %q: want %d bytes, got %d", s, HashLength, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// IsZero reports whether h is unset.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the lower-case 0x-prefixed hex form.
func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func decodeHex(s string, max int) ([]byte, error) {
	body, ok := strings.CutPrefix(s, "0x")
	if !ok {
		body, ok = strings.CutPrefix(s, "0X")
	}
	if !ok {
		return nil, fmt.Errorf("missing 0x prefix")
	}
	if body == "" {
		return nil, fmt.Errorf("empty hex")
	}
	if len(body)%2 == 1 {
		body = "0" + body
	}
	raw, err := hex.DecodeString(body)
	if err != nil {
		return nil, err
	}
	if len(raw) > max {
		return nil, fmt.Errorf("too long: %d bytes, max %d", len(raw), max)
	}
	return raw, nil
}
