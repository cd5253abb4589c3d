// Package gossipclient drives the gossip loop and receive loop against a
// Transport, reconciling local cluster state with peers through the
// Syn/SynAck/Ack anti-entropy exchange.
package gossipclient

import (
	"context"
	"math/rand"
	"time"

	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/mcastellin/uptime-gossip/internal/node"
	"github.com/mcastellin/uptime-gossip/internal/transport"
	"github.com/mcastellin/uptime-gossip/internal/wire"
)

var metaPropagator = propagation.NewCompositeTextMapPropagator(
	propagation.TraceContext{},
	propagation.Baggage{},
)

// metaCarrier adapts wire.Metadata's traceparent/baggage strings to
// propagation.TextMapCarrier, so the OTEL propagators can read and write
// them without a real HTTP header map.
type metaCarrier struct{ meta *wire.Metadata }

func (c metaCarrier) Get(key string) string {
	switch key {
	case "traceparent":
		return c.meta.Traceparent
	case "baggage":
		return c.meta.Baggage
	default:
		return ""
	}
}

func (c metaCarrier) Set(key, value string) {
	switch key {
	case "traceparent":
		c.meta.Traceparent = value
	case "baggage":
		c.meta.Baggage = value
	}
}

func (c metaCarrier) Keys() []string { return []string{"traceparent", "baggage"} }

// receiveBackoff is how long the receive loop sleeps after an empty or
// errored try_receive before polling again.
const receiveBackoff = 10 * time.Millisecond

// Store is the subset of clusterstore.Store the gossip client depends on.
type Store interface {
	SelfID() node.ID
	PeerAddresses() ([]node.Addr, error)
	Digest() (wire.Digest, error)
	Diff(remote wire.Digest) (wire.Delta, error)
	Apply(delta wire.Delta) error
	Heartbeat(peer node.ID, addr node.Addr, now time.Time) error
}

// Client is the long-lived gossip client. It takes no fan-out setting: each
// round sends a Syn to every known peer address and seed (the config's
// gossip_factor is parsed but not passed here).
type Client struct {
	store    Store
	tr       transport.Transport
	self     node.ID
	interval time.Duration
	seeds    []node.Addr
	log      *zap.Logger
}

// New builds a Client bound to store and tr, gossiping every interval to
// store.PeerAddresses() union seeds.
func New(store Store, tr transport.Transport, interval time.Duration, seeds []node.Addr, log *zap.Logger) *Client {
	return &Client{
		store:    store,
		tr:       tr,
		self:     store.SelfID(),
		interval: interval,
		seeds:    seeds,
		log:      log,
	}
}

// Run starts the gossip loop and the receive loop; it blocks until ctx is
// cancelled, then returns once both loops have exited.
func (c *Client) Run(ctx context.Context) {
	done := make(chan struct{}, 2)

	go func() {
		c.gossipLoop(ctx)
		done <- struct{}{}
	}()
	go func() {
		c.receiveLoop(ctx)
		done <- struct{}{}
	}()

	<-done
	<-done
}

func (c *Client) gossipLoop(ctx context.Context) {
	if !sleepCtx(ctx, jitter(c.interval)) {
		return
	}

	for {
		c.gossipRound()
		if !sleepCtx(ctx, c.interval) {
			return
		}
	}
}

func (c *Client) gossipRound() {
	addrs, err := c.targetAddresses()
	if err != nil {
		c.log.Warn("listing peer addresses", zap.Error(err))
		return
	}
	if len(addrs) == 0 {
		return
	}

	digest, err := c.store.Digest()
	if err != nil {
		c.log.Warn("computing digest", zap.Error(err))
		return
	}

	msg := wire.Syn(c.meta(context.Background()), digest)
	for _, addr := range addrs {
		if err := c.tr.Send(addr, msg); err != nil {
			c.log.Warn("sending syn", zap.String("addr", addr.String()), zap.Error(err))
		}
	}
}

// targetAddresses dedupes store.PeerAddresses() with the configured seeds.
func (c *Client) targetAddresses() ([]node.Addr, error) {
	known, err := c.store.PeerAddresses()
	if err != nil {
		return nil, err
	}

	seen := make(map[node.Addr]struct{}, len(known)+len(c.seeds))
	out := make([]node.Addr, 0, len(known)+len(c.seeds))
	for _, a := range append(known, c.seeds...) {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	return out, nil
}

func (c *Client) receiveLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		addr, msg, ok, err := c.tr.TryReceive()
		switch {
		case err != nil:
			c.log.Warn("receiving gossip datagram", zap.Error(err))
			if !sleepCtx(ctx, receiveBackoff) {
				return
			}
		case !ok:
			if !sleepCtx(ctx, receiveBackoff) {
				return
			}
		default:
			c.handle(addr, msg)
		}
	}
}

func (c *Client) handle(addr node.Addr, msg wire.Message) {
	ctx := metaPropagator.Extract(context.Background(), metaCarrier{&msg.Meta})

	now := time.Now()
	if err := c.store.Heartbeat(msg.Meta.From, addr, now); err != nil {
		c.log.Warn("recording heartbeat", zap.Error(err))
		return
	}

	switch msg.Kind {
	case wire.KindSyn:
		c.replySynAck(ctx, addr, msg)
	case wire.KindSynAck:
		c.replyAck(ctx, addr, msg)
	case wire.KindAck:
		if err := c.store.Apply(msg.Delta); err != nil {
			c.log.Warn("applying ack delta", zap.Error(err))
		}
	}
}

func (c *Client) replySynAck(ctx context.Context, addr node.Addr, msg wire.Message) {
	deltaOut, err := c.store.Diff(msg.Digest)
	if err != nil {
		c.log.Warn("computing diff for synack", zap.Error(err))
		return
	}
	digest, err := c.store.Digest()
	if err != nil {
		c.log.Warn("computing digest for synack", zap.Error(err))
		return
	}

	reply := wire.SynAck(c.meta(ctx), digest, deltaOut)
	if err := c.tr.Send(addr, reply); err != nil {
		c.log.Warn("sending synack", zap.String("addr", addr.String()), zap.Error(err))
	}
}

func (c *Client) replyAck(ctx context.Context, addr node.Addr, msg wire.Message) {
	if err := c.store.Apply(msg.Delta); err != nil {
		c.log.Warn("applying synack delta", zap.Error(err))
		return
	}

	deltaOut, err := c.store.Diff(msg.Digest)
	if err != nil {
		c.log.Warn("computing diff for ack", zap.Error(err))
		return
	}

	reply := wire.Ack(c.meta(ctx), deltaOut)
	if err := c.tr.Send(addr, reply); err != nil {
		c.log.Warn("sending ack", zap.String("addr", addr.String()), zap.Error(err))
	}
}

// meta builds this node's outbound Metadata, injecting the active OTEL
// trace context (if any) from ctx.
func (c *Client) meta(ctx context.Context) wire.Metadata {
	meta := wire.Metadata{From: c.self}
	metaPropagator.Inject(ctx, metaCarrier{&meta})
	return meta
}

// jitter returns a random duration uniform in [0, d).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d)))
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes first.
// Returns false if ctx was cancelled.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
