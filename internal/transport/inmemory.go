package transport

import (
	"sync"

	"github.com/mcastellin/uptime-gossip/internal/node"
	"github.com/mcastellin/uptime-gossip/internal/wire"
)

type inboundMsg struct {
	from node.Addr
	msg  wire.Message
}

// InMemory is a Transport double wiring nodes to each other through Go
// channels rather than real UDP sockets, used for the two-node convergence
// test scenario and any test that needs an in-process network. Messages are
// dropped only when the receiving peer's 256-message inbox is full.
type InMemory struct {
	self    node.Addr
	mu      sync.Mutex
	peers   map[string]*InMemory
	inbox   chan inboundMsg
	closed  bool
}

// NewInMemoryNetwork builds a fully-connected set of InMemory transports,
// one per address, that can all reach each other by address.
func NewInMemoryNetwork(addrs ...node.Addr) map[node.Addr]*InMemory {
	net := make(map[node.Addr]*InMemory, len(addrs))
	peers := make(map[string]*InMemory, len(addrs))

	for _, a := range addrs {
		t := &InMemory{self: a, peers: peers, inbox: make(chan inboundMsg, 256)}
		net[a] = t
		peers[a.String()] = t
	}
	return net
}

func (t *InMemory) Send(addr node.Addr, msg wire.Message) error {
	t.mu.Lock()
	peer, ok := t.peers[addr.String()]
	t.mu.Unlock()
	if !ok {
		return nil // unreachable peer: dropped, matching a real network's best-effort send
	}

	select {
	case peer.inbox <- inboundMsg{from: t.self, msg: msg}:
	default:
		// inbox full: drop, same as a saturated OS socket buffer would.
	}
	return nil
}

func (t *InMemory) TryReceive() (node.Addr, wire.Message, bool, error) {
	select {
	case m := <-t.inbox:
		return m.from, m.msg, true, nil
	default:
		return node.Addr{}, wire.Message{}, false, nil
	}
}

func (t *InMemory) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.inbox)
	}
	return nil
}
