// Package api implements the read-only HTTP/JSON API the embedded UI
// consumes: merged probe views, cluster peer listing, configured notices,
// and the static dashboard.
package api

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mcastellin/uptime-gossip/internal/node"
	"github.com/mcastellin/uptime-gossip/internal/probe"
)

//go:embed static
var staticFS embed.FS

// H is a shorthand map type for building JSON responses.
type H map[string]any

// DataSource is the subset of clusterstore.Store the API reads from.
type DataSource interface {
	AllFields() (map[node.ID]map[string]probe.State, error)
	Peers() (map[node.Addr]struct {
		ID       node.ID
		LastSeen time.Time
	}, error)
}

// Server is the embedded UI's HTTP server: a thin *http.Server wrapper so
// it satisfies engine.Server (ListenAndServe/Shutdown) directly.
type Server struct {
	http *http.Server
	log  *zap.Logger
}

// Config is the subset of the UI config section the API needs.
type Config struct {
	Title   string
	Notices []string
}

// New builds a Server bound to addr, reading from store and rendering the
// configured notices.
func New(addr string, store DataSource, cfg Config, log *zap.Logger) *Server {
	ctx := &apiCtx{store: store, cfg: cfg, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/probes", ctx.handleProbes)
	mux.HandleFunc("/api/v1/cluster/peers", ctx.handlePeers)
	mux.HandleFunc("/api/v1/notices", ctx.handleNotices)
	mux.HandleFunc("/", ctx.handleIndex)

	static, err := fs.Sub(staticFS, "static")
	if err == nil {
		mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	}

	return &Server{
		http: &http.Server{Addr: addr, Handler: mux},
		log:  log,
	}
}

// ListenAndServe starts serving; it returns http.ErrServerClosed on a clean
// Shutdown, matching net/http's own contract.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type apiCtx struct {
	store DataSource
	cfg   Config
	log   *zap.Logger
}

func jsonResponse(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// probeView is one merged, cross-node projection of a probe's replicated
// state, keyed by probe name.
type probeView struct {
	Name         string                       `json:"name"`
	Tags         map[string]string            `json:"tags,omitempty"`
	LastUpdated  time.Time                    `json:"last_updated"`
	History      []probe.Bucket               `json:"history,omitempty"`
	Observations map[string]probe.Observation `json:"observations,omitempty"`
}

func (c *apiCtx) handleProbes(w http.ResponseWriter, r *http.Request) {
	fields, err := c.store.AllFields()
	if err != nil {
		c.log.Warn("listing probe fields", zap.Error(err))
		jsonResponse(w, http.StatusInternalServerError, H{"error": "internal error"})
		return
	}

	merged := map[string]probe.State{}
	for _, byName := range fields {
		for name, state := range byName {
			current, ok := merged[name]
			if !ok {
				merged[name] = state
				continue
			}
			current.Apply(state)
			merged[name] = current
		}
	}

	views := make([]probeView, 0, len(merged))
	for name, state := range merged {
		observations := make(map[string]probe.Observation, len(state.Observations))
		for id, obs := range state.Observations {
			observations[id.String()] = obs
		}
		views = append(views, probeView{
			Name:         name,
			Tags:         state.Tags,
			LastUpdated:  state.LastUpdated.Time(),
			History:      state.History,
			Observations: observations,
		})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].Name < views[j].Name })

	jsonResponse(w, http.StatusOK, views)
}

type peerView struct {
	ID       string    `json:"id"`
	LastSeen time.Time `json:"last_seen"`
}

func (c *apiCtx) handlePeers(w http.ResponseWriter, r *http.Request) {
	peers, err := c.store.Peers()
	if err != nil {
		c.log.Warn("listing peers", zap.Error(err))
		jsonResponse(w, http.StatusInternalServerError, H{"error": "internal error"})
		return
	}

	views := make([]peerView, 0, len(peers))
	for _, p := range peers {
		views = append(views, peerView{ID: p.ID.String(), LastSeen: p.LastSeen})
	}
	sort.Slice(views, func(i, j int) bool { return views[i].ID < views[j].ID })

	jsonResponse(w, http.StatusOK, views)
}

func (c *apiCtx) handleNotices(w http.ResponseWriter, r *http.Request) {
	notices := c.cfg.Notices
	if notices == nil {
		notices = []string{}
	}
	jsonResponse(w, http.StatusOK, notices)
}

func (c *apiCtx) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page, err := staticFS.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "dashboard not available", http.StatusInternalServerError)
		return
	}
	w.Write(page)
}
