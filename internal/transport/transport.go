// Package transport implements the UDP send/receive half of the gossip
// wire: encryption wraps the encoded message, and receive is strictly
// non-blocking so the caller's single-threaded scheduler never stalls on an
// empty socket.
package transport

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/mcastellin/uptime-gossip/internal/cryptobox"
	"github.com/mcastellin/uptime-gossip/internal/node"
	"github.com/mcastellin/uptime-gossip/internal/wire"
)

// Transport is the contract the gossip client depends on. Implementations
// never panic on bad input - malformed decrypt or decode returns an error
// for the caller to log and drop.
type Transport interface {
	// Send serializes, encrypts, and sends msg to addr.
	Send(addr node.Addr, msg wire.Message) error

	// TryReceive is non-blocking: it returns (addr, msg, true, nil) when a
	// datagram was available, (zero, zero, false, nil) on would-block, and a
	// non-nil error for a malformed inbound datagram.
	TryReceive() (node.Addr, wire.Message, bool, error)

	// Close releases the underlying socket.
	Close() error
}

// UDP is the production Transport: a single UDP socket, encryption provided
// by an cryptobox.KeyProvider + cryptobox.Provider pair.
type UDP struct {
	conn   *net.UDPConn
	keys   cryptobox.KeyProvider
	cipher cryptobox.Provider
	buf    [wire.MaxDatagramSize]byte
}

// Listen opens a UDP socket on bind (e.g. ":7946") for gossip traffic.
func Listen(bind string, keys cryptobox.KeyProvider, cipher cryptobox.Provider) (*UDP, error) {
	addr, err := net.ResolveUDPAddr("udp", bind)
	if err != nil {
		return nil, fmt.Errorf("transport: resolving bind addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listening on %s: %w", bind, err)
	}
	// Non-blocking TryReceive is implemented with a short read deadline
	// rather than relying on platform-specific non-blocking socket modes.
	return &UDP{conn: conn, keys: keys, cipher: cipher}, nil
}

func (t *UDP) Send(addr node.Addr, msg wire.Message) error {
	encoded, err := wire.Encode(msg)
	if err != nil {
		return fmt.Errorf("transport: encoding message: %w", err)
	}

	sealed, err := t.keys.Encrypt(t.cipher, encoded)
	if err != nil {
		return fmt.Errorf("transport: encrypting message: %w", err)
	}

	udpAddr, err := net.ResolveUDPAddr("udp", addr.Value)
	if err != nil {
		return fmt.Errorf("transport: resolving peer addr %s: %w", addr.Value, err)
	}

	if _, err := t.conn.WriteToUDP(sealed, udpAddr); err != nil {
		return fmt.Errorf("transport: sendto %s: %w", addr.Value, err)
	}
	return nil
}

func (t *UDP) TryReceive() (node.Addr, wire.Message, bool, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(1 * time.Millisecond)); err != nil {
		return node.Addr{}, wire.Message{}, false, fmt.Errorf("transport: setting read deadline: %w", err)
	}

	n, addr, err := t.conn.ReadFromUDP(t.buf[:])
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return node.Addr{}, wire.Message{}, false, nil
		}
		return node.Addr{}, wire.Message{}, false, fmt.Errorf("transport: reading datagram: %w", err)
	}

	plaintext, err := t.keys.Decrypt(t.cipher, t.buf[:n])
	if err != nil {
		return node.Addr{}, wire.Message{}, false, fmt.Errorf("transport: decrypting datagram from %s: %w", addr, err)
	}

	msg, err := wire.Decode(plaintext)
	if err != nil {
		return node.Addr{}, wire.Message{}, false, fmt.Errorf("transport: decoding datagram from %s: %w", addr, err)
	}

	return node.Addr{Network: "udp", Value: addr.String()}, msg, true, nil
}

func (t *UDP) Close() error {
	return t.conn.Close()
}

// LocalAddr returns the socket's bound address, for tests that need to
// address a dynamically-assigned (":0") listener.
func (t *UDP) LocalAddr() string {
	return t.conn.LocalAddr().String()
}
