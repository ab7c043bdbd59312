// Package covenant defines the typed metadata attached to UTXO outputs
// that drives the name-auction state machine. It replaces the plain
// locking-script idea with a tagged, itemized payload: a covenant output
// both restricts how a coin may be spent and carries the inputs the
// NameState engine needs to decide a transition.
package covenant

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Type identifies the covenant carried by an output.
type Type uint8

const (
	TypeNONE Type = iota
	TypeCLAIM
	TypeOPEN
	TypeBID
	TypeREVEAL
	TypeREDEEM
	TypeREGISTER
	TypeUPDATE
	TypeRENEW
	TypeTRANSFER
	TypeFINALIZE
	TypeREVOKE
)

// String returns a human-readable name for the covenant type.
func (t Type) String() string {
	switch t {
	case TypeNONE:
		return "NONE"
	case TypeCLAIM:
		return "CLAIM"
	case TypeOPEN:
		return "OPEN"
	case TypeBID:
		return "BID"
	case TypeREVEAL:
		return "REVEAL"
	case TypeREDEEM:
		return "REDEEM"
	case TypeREGISTER:
		return "REGISTER"
	case TypeUPDATE:
		return "UPDATE"
	case TypeRENEW:
		return "RENEW"
	case TypeTRANSFER:
		return "TRANSFER"
	case TypeFINALIZE:
		return "FINALIZE"
	case TypeREVOKE:
		return "REVOKE"
	default:
		return "UNKNOWN"
	}
}

// IsLocking reports whether a coin carrying this covenant type counts
// toward a wallet's locked balance (§4.C "Name balance coupling").
func (t Type) IsLocking() bool {
	switch t {
	case TypeBID, TypeREVEAL, TypeREGISTER, TypeUPDATE, TypeRENEW, TypeTRANSFER, TypeFINALIZE:
		return true
	default:
		return false
	}
}

// Covenant is a tagged sequence of byte-string items attached to an
// output. Each Type fixes the arity and meaning of its Items; see the
// per-type Parse helpers below for the expected layout.
type Covenant struct {
	Type  Type     `json:"type"`
	Items [][]byte `json:"items"`
}

// covenantJSON is the JSON representation with hex-encoded items.
type covenantJSON struct {
	Type  Type     `json:"type"`
	Items []string `json:"items"`
}

// MarshalJSON encodes the covenant with hex-encoded items.
func (c Covenant) MarshalJSON() ([]byte, error) {
	items := make([]string, len(c.Items))
	for i, it := range c.Items {
		items[i] = hex.EncodeToString(it)
	}
	return json.Marshal(covenantJSON{Type: c.Type, Items: items})
}

// UnmarshalJSON decodes a covenant with hex-encoded items.
func (c *Covenant) UnmarshalJSON(data []byte) error {
	var j covenantJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	c.Type = j.Type
	c.Items = make([][]byte, len(j.Items))
	for i, s := range j.Items {
		b, err := hex.DecodeString(s)
		if err != nil {
			return err
		}
		c.Items[i] = b
	}
	return nil
}

// Encode serializes the covenant per the wire format:
// type(u8) | varint(itemCount) | (varBytes item)*
func (c Covenant) Encode() []byte {
	buf := make([]byte, 0, 1+len(c.Items)*8)
	buf = append(buf, byte(c.Type))
	buf = appendVarint(buf, uint64(len(c.Items)))
	for _, it := range c.Items {
		buf = appendVarint(buf, uint64(len(it)))
		buf = append(buf, it...)
	}
	return buf
}

// Decode parses a covenant from its wire format, returning the number of
// bytes consumed.
func Decode(b []byte) (Covenant, int, error) {
	if len(b) < 1 {
		return Covenant{}, 0, fmt.Errorf("covenant: empty buffer")
	}
	c := Covenant{Type: Type(b[0])}
	off := 1
	n, m, err := readVarint(b[off:])
	if err != nil {
		return Covenant{}, 0, fmt.Errorf("covenant: item count: %w", err)
	}
	off += m
	c.Items = make([][]byte, 0, n)
	for i := uint64(0); i < n; i++ {
		l, m, err := readVarint(b[off:])
		if err != nil {
			return Covenant{}, 0, fmt.Errorf("covenant: item %d length: %w", i, err)
		}
		off += m
		if uint64(len(b[off:])) < l {
			return Covenant{}, 0, fmt.Errorf("covenant: item %d truncated", i)
		}
		item := make([]byte, l)
		copy(item, b[off:off+int(l)])
		c.Items = append(c.Items, item)
		off += int(l)
	}
	return c, off, nil
}

func appendVarint(buf []byte, v uint64) []byte {
	tmp := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(tmp, v)
	return append(buf, tmp[:n]...)
}

func readVarint(b []byte) (uint64, int, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, 0, fmt.Errorf("malformed varint")
	}
	return v, n, nil
}

// None is the empty, non-name-bearing covenant used by ordinary outputs.
func None() Covenant {
	return Covenant{Type: TypeNONE}
}
