package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: building cbor encode mode: %v", err))
	}
	encMode = em

	dm, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("wire: building cbor decode mode: %v", err))
	}
	decMode = dm
}

// Encode packs a Message into its compact binary wire representation.
func Encode(msg Message) ([]byte, error) {
	b, err := encMode.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding message: %w", err)
	}
	return b, nil
}

// Decode unpacks a Message from its wire representation. Callers must treat
// any error as a malformed-inbound signal: log it, drop the packet, never
// propagate it as a hard failure.
func Decode(b []byte) (Message, error) {
	var msg Message
	if err := decMode.Unmarshal(b, &msg); err != nil {
		return Message{}, fmt.Errorf("wire: decoding message: %w", err)
	}
	return msg, nil
}
