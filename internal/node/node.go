// Package node defines cluster identity types shared by every gossip
// component: the per-process NodeId and the opaque peer Address.
package node

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// ID is a 128-bit identifier minted once when the process starts. It is
// never persisted across restarts: a fresh ID is generated every time the
// agent boots, and stale rows left behind under old IDs are expected to be
// removed by garbage collection.
type ID [16]byte

// NewID mints a fresh random NodeId.
func NewID() ID {
	u := uuid.New()
	var id ID
	copy(id[:], u[:])
	return id
}

// String renders the ID as base-36, for logs and the read API.
func (id ID) String() string {
	n := new(big.Int).SetBytes(id[:])
	return n.Text(36)
}

// ParseID parses a base-36 rendering back into an ID. Returns false if the
// string does not decode to a value that fits in 128 bits.
func ParseID(s string) (ID, bool) {
	n, ok := new(big.Int).SetString(s, 36)
	if !ok {
		return ID{}, false
	}
	b := n.Bytes()
	if len(b) > 16 {
		return ID{}, false
	}
	var id ID
	copy(id[16-len(b):], b)
	return id, true
}

// IsZero reports whether this is the zero-value ID (never a valid minted
// node id).
func (id ID) IsZero() bool {
	return id == ID{}
}

// MarshalBinary and UnmarshalBinary let the CBOR codec (and anything else
// respecting encoding.BinaryMarshaler) encode an ID as a compact 16-byte
// string instead of an array of 16 integers, and let it be used directly as
// a CBOR map key.
func (id ID) MarshalBinary() ([]byte, error) {
	return id[:], nil
}

func (id *ID) UnmarshalBinary(data []byte) error {
	if len(data) != 16 {
		return fmt.Errorf("node: invalid ID length %d", len(data))
	}
	copy(id[:], data)
	return nil
}

// MarshalText and UnmarshalText let an ID serialize as its base-36 String()
// form wherever JSON needs a string, including as a map key in the read API.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, ok := ParseID(string(text))
	if !ok {
		return fmt.Errorf("node: invalid ID %q", text)
	}
	*id = parsed
	return nil
}

// Addr is an opaque peer endpoint. For the UDP transport this is a host:port
// socket address; it is keyed by its String() form in the peer table.
type Addr struct {
	Network string
	Value   string
}

// String returns the canonical key form used in the peers table.
func (a Addr) String() string {
	return a.Value
}
