package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Address HRP (human-readable part) constants for bech32 encoding.
const (
	MainnetHRP = "hs"
	TestnetHRP = "ts"
	RegtestHRP = "rs"
)

// activeHRP is the address HRP used by String() and MarshalJSON().
// Set once at startup via SetAddressHRP(). Default is mainnet.
var activeHRP = MainnetHRP

// SetAddressHRP sets the active address HRP (call once at startup).
func SetAddressHRP(hrp string) {
	activeHRP = hrp
}

// GetAddressHRP returns the currently active address HRP.
func GetAddressHRP() string {
	return activeHRP
}

// AddressVersion is the witness version carried by an address. Only
// version 0 is defined: a 20-byte hash is a p2pkh/p2sh program, a
// 32-byte hash is a p2wsh program.
type AddressVersion uint8

// AddressSize20 is the program length for p2pkh/p2sh addresses.
const AddressSize20 = 20

// AddressSize32 is the program length for p2wsh addresses.
const AddressSize32 = 32

// Address is a witness-versioned program: a version byte plus a 20- or
// 32-byte hash. Hash is stored in a fixed 32-byte array (zero-padded
// beyond Size) so Address stays a comparable value usable as a map key,
// the same way the teacher's fixed-array Address is.
type Address struct {
	Version AddressVersion
	Size    uint8
	Hash    [AddressSize32]byte
}

// IsZero returns true if the address carries no program.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the bech32-encoded address (e.g. "hs1...").
func (a Address) String() string {
	s, err := Bech32EncodeSegwit(activeHRP, byte(a.Version), a.program())
	if err != nil {
		return activeHRP + ":" + hex.EncodeToString(a.program())
	}
	return s
}

// Bytes returns a copy of the address program (without version byte).
func (a Address) Bytes() []byte {
	return a.program()
}

func (a Address) program() []byte {
	b := make([]byte, a.Size)
	copy(b, a.Hash[:a.Size])
	return b
}

// MarshalJSON encodes the address as a bech32 string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a bech32 string into an address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a bech32 address string with HRP "hs", "ts", or "rs".
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	hrp, version, program, err := Bech32DecodeSegwit(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address: %w", err)
	}
	switch hrp {
	case MainnetHRP, TestnetHRP, RegtestHRP:
	default:
		return Address{}, fmt.Errorf("unrecognized address HRP %q", hrp)
	}
	switch len(program) {
	case AddressSize20:
		var raw [AddressSize20]byte
		copy(raw[:], program)
		return NewAddress20WithVersion(AddressVersion(version), raw), nil
	case AddressSize32:
		var raw [AddressSize32]byte
		copy(raw[:], program)
		return NewAddress32WithVersion(AddressVersion(version), raw), nil
	default:
		return Address{}, fmt.Errorf("address program must be 20 or 32 bytes, got %d", len(program))
	}
}

// NewAddress20 builds a version-0 address from a 20-byte hash.
func NewAddress20(h [AddressSize20]byte) Address {
	return NewAddress20WithVersion(0, h)
}

// NewAddress20WithVersion builds an address from a 20-byte hash with an
// explicit witness version.
func NewAddress20WithVersion(version AddressVersion, h [AddressSize20]byte) Address {
	var a Address
	a.Version = version
	a.Size = AddressSize20
	copy(a.Hash[:], h[:])
	return a
}

// NewAddress32 builds a version-0 address from a 32-byte hash.
func NewAddress32(h [AddressSize32]byte) Address {
	return NewAddress32WithVersion(0, h)
}

// NewAddress32WithVersion builds an address from a 32-byte hash with an
// explicit witness version.
func NewAddress32WithVersion(version AddressVersion, h [AddressSize32]byte) Address {
	var a Address
	a.Version = version
	a.Size = AddressSize32
	copy(a.Hash[:], h[:])
	return a
}
