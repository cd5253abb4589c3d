// Package wire defines the gossip protocol's on-the-wire message shapes and
// a CBOR codec for them. Datagrams are independent and must fit a single
// UDP packet; there is no fragmentation or flow control here.
package wire

import (
	"github.com/mcastellin/uptime-gossip/internal/node"
	"github.com/mcastellin/uptime-gossip/internal/probe"
)

// MaxDatagramSize is the receive buffer size: the largest UDP datagram this
// transport will read.
const MaxDatagramSize = 65507

// Digest summarizes, per known node, the maximum version this replica
// holds.
type Digest map[node.ID]uint64

// Delta is the set of per-node, per-probe diffs a peer sends back to
// satisfy a Digest.
type Delta map[node.ID]map[string]probe.State

// Metadata carries the sender's identity plus optional W3C trace context
// propagated from the local OpenTelemetry SDK, so a receiving span can
// continue the same trace.
type Metadata struct {
	From        node.ID `cbor:"from"`
	Traceparent string  `cbor:"traceparent,omitempty"`
	Baggage     string  `cbor:"baggage,omitempty"`
}

// Kind tags which of the three gossip phases a Message carries.
type Kind uint8

const (
	KindSyn Kind = iota
	KindSynAck
	KindAck
)

// Message is the tagged union Syn(meta, digest) | SynAck(meta, digest,
// delta) | Ack(meta, delta).
type Message struct {
	Kind   Kind     `cbor:"kind"`
	Meta   Metadata `cbor:"meta"`
	Digest Digest   `cbor:"digest,omitempty"`
	Delta  Delta    `cbor:"delta,omitempty"`
}

// Syn builds a Syn(meta, digest) message.
func Syn(meta Metadata, digest Digest) Message {
	return Message{Kind: KindSyn, Meta: meta, Digest: digest}
}

// SynAck builds a SynAck(meta, digest, delta) message.
func SynAck(meta Metadata, digest Digest, delta Delta) Message {
	return Message{Kind: KindSynAck, Meta: meta, Digest: digest, Delta: delta}
}

// Ack builds an Ack(meta, delta) message.
func Ack(meta Metadata, delta Delta) Message {
	return Message{Kind: KindAck, Meta: meta, Delta: delta}
}
