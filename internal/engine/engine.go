// Package engine wires the clusterstore, gossip client, probe runners, GC
// loop, and UI HTTP server together, and drives config-reload-triggered
// runner lifecycle.
package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mcastellin/uptime-gossip/internal/clusterstore"
	"github.com/mcastellin/uptime-gossip/internal/config"
	"github.com/mcastellin/uptime-gossip/internal/cryptobox"
	"github.com/mcastellin/uptime-gossip/internal/gossipclient"
	"github.com/mcastellin/uptime-gossip/internal/node"
	"github.com/mcastellin/uptime-gossip/internal/probe"
	"github.com/mcastellin/uptime-gossip/internal/runner"
	"github.com/mcastellin/uptime-gossip/internal/transport"
)

// configPollInterval is how often the engine checks for a new probe set
// from the config watcher.
const configPollInterval = 2 * time.Second

// Server is the subset of an HTTP server the engine starts and stops
// alongside everything else.
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Engine owns the runner map, the gossip client, the GC loop, and (when
// enabled) the UI HTTP server, and reconciles runners against the latest
// config snapshot until Run's context is cancelled.
type Engine struct {
	store    *clusterstore.Store
	watcher  *config.Watcher
	log      *zap.Logger
	server   Server

	mu      sync.Mutex
	runners map[string]*runner.Runner
}

// New builds an Engine around an already-open store and config watcher.
// server may be nil when the UI is disabled.
func New(store *clusterstore.Store, watcher *config.Watcher, server Server, log *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		watcher: watcher,
		server:  server,
		log:     log,
		runners: map[string]*runner.Runner{},
	}
}

// Run starts every configured runner, the gossip client (if clustering is
// enabled), the GC loop, and the UI server, then blocks until ctx is
// cancelled, cancelling every runner before returning.
func (e *Engine) Run(ctx context.Context) error {
	cfg := e.watcher.Current()

	e.reconcileRunners(ctx, cfg.Probes)

	var wg sync.WaitGroup

	if cfg.Cluster.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runGossipClient(ctx, cfg.Cluster)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.runGCLoop(ctx, cfg.Cluster)
	}()

	if e.server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.server.ListenAndServe(); err != nil {
				e.log.Warn("ui server stopped", zap.Error(err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		e.configReloadLoop(ctx)
	}()

	<-ctx.Done()

	e.mu.Lock()
	for _, r := range e.runners {
		r.Cancel()
	}
	e.mu.Unlock()

	if e.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.server.Shutdown(shutdownCtx); err != nil {
			e.log.Warn("ui server shutdown", zap.Error(err))
		}
	}

	wg.Wait()
	return nil
}

// configReloadLoop polls the watcher's current snapshot and reconciles the
// runner map whenever the probe set changes.
func (e *Engine) configReloadLoop(ctx context.Context) {
	ticker := time.NewTicker(configPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.reconcileRunners(ctx, e.watcher.Current().Probes)
		}
	}
}

// reconcileRunners computes the set-diff of probe descriptors by name:
// creates+starts runners for added probes, calls Update with the latest
// descriptor on every runner whose probe is still configured (changed or
// not), and cancels runners for removed probes.
func (e *Engine) reconcileRunners(ctx context.Context, descs []probe.Descriptor) {
	wanted := make(map[string]probe.Descriptor, len(descs))
	for _, d := range descs {
		wanted[d.Name] = d
	}

	e.mu.Lock()
	var toCancel []*runner.Runner
	for name, r := range e.runners {
		if _, ok := wanted[name]; !ok {
			toCancel = append(toCancel, r)
			delete(e.runners, name)
		}
	}

	var toStart []*runner.Runner
	for name, desc := range wanted {
		if existing, ok := e.runners[name]; ok {
			existing.Update(desc)
			continue
		}
		r := runner.New(desc, e.store, e.log)
		e.runners[name] = r
		toStart = append(toStart, r)
	}
	e.mu.Unlock()

	for _, r := range toCancel {
		r.Cancel()
	}
	for _, r := range toStart {
		r.Start(ctx)
	}
}

func (e *Engine) runGossipClient(ctx context.Context, cluster config.Cluster) {
	tr, err := transport.Listen(cluster.Listen, cryptobox.NewKeyProvider(cluster.Key(), cluster.Key()), cryptobox.AEAD256{})
	if err != nil {
		e.log.Error("starting gossip transport", zap.Error(err))
		return
	}
	defer tr.Close()

	seeds := make([]node.Addr, 0, len(cluster.Peers))
	for _, p := range cluster.Peers {
		seeds = append(seeds, node.Addr{Network: "udp", Value: p})
	}

	client := gossipclient.New(e.store, tr, cluster.GossipInterval, seeds, e.log)
	client.Run(ctx)
}

func (e *Engine) runGCLoop(ctx context.Context, cluster config.Cluster) {
	interval := cluster.GCInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := e.store.GC(time.Now(), cluster.GCPeerExpiry, cluster.GCProbeExpiry)
			if err != nil {
				e.log.Warn("gc pass failed", zap.Error(err))
				continue
			}
			if result.PeersRemoved > 0 || result.FieldsRemoved > 0 {
				e.log.Info("gc pass complete",
					zap.Int("peers_removed", result.PeersRemoved),
					zap.Int("fields_removed", result.FieldsRemoved))
			}
		}
	}
}
