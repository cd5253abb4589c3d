package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/stretchr/testify/require"
)

const sampleYAML = `
state: ./state.db
probes:
  - name: example
    policy:
      interval: 30s
      timeout: 5s
      retries: 2
    target:
      kind: http
      url: https://example.com
    validators:
      http.status:
        kind: equals
        expect: "200"
ui:
  enabled: true
  listen: ":8080"
  title: Uptime
cluster:
  enabled: true
  listen: ":7946"
  peers: ["10.0.0.2:7946"]
  gossip_interval: 1s
  gc_interval: 1m
  gc_peer_expiry: 1h
  gc_probe_expiry: 1h
  secret_key: "correct horse battery staple"
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadParsesProbesAndClusterSettings(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Probes, 1)
	require.Equal(t, "example", cfg.Probes[0].Name)
	require.Equal(t, 30*time.Second, cfg.Probes[0].Policy.Interval)
	require.Equal(t, "200", cfg.Probes[0].Validators["http.status"].RawExpect)
	require.Equal(t, "200", cfg.Probes[0].Validators["http.status"].Expect.Str)

	require.True(t, cfg.Cluster.Enabled)
	require.Equal(t, []string{"10.0.0.2:7946"}, cfg.Cluster.Peers)
	require.True(t, cfg.UI.Enabled)
}

func TestClusterKeyIsDeterministic(t *testing.T) {
	c := Cluster{SecretKey: "shared-secret"}
	require.Equal(t, c.Key(), c.Key())

	other := Cluster{SecretKey: "different-secret"}
	require.NotEqual(t, c.Key(), other.Key())
}

func TestWatcherReloadsOnlyAfterMtimeAdvances(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	w, err := NewWatcher(path, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, w.Current().Probes, 1)

	// Rewrite the file with a renamed probe but keep the old mtime: the
	// watcher must keep serving the previous snapshot.
	updated := strings.Replace(sampleYAML, "name: example", "name: renamed", 1)
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))
	require.NoError(t, os.Chtimes(path, w.mtime, w.mtime))

	w.reload()
	require.Len(t, w.Current().Probes, 1)
	require.Equal(t, "example", w.Current().Probes[0].Name)

	// Once the mtime moves forward, the rewritten file is applied.
	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, future, future))

	w.reload()
	require.Len(t, w.Current().Probes, 1)
	require.Equal(t, "renamed", w.Current().Probes[0].Name)
}

func TestWatcherRunStopsOnContextCancel(t *testing.T) {
	path := writeConfig(t, sampleYAML)
	w, err := NewWatcher(path, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
