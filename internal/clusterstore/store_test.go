package clusterstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/mcastellin/uptime-gossip/internal/node"
	"github.com/mcastellin/uptime-gossip/internal/probe"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) (*Store, node.ID) {
	t.Helper()
	id := node.NewID()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path, id)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, id
}

func TestRecordResultCreatesLocalRowAndAdvancesVersion(t *testing.T) {
	s, id := openTestStore(t)
	now := time.Now()

	require.NoError(t, s.RecordResult("p1", now, probe.Result{StartTime: now, Pass: true, Attempts: 1}))
	state, ok, err := s.Field(id, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	v1 := state.Version()

	require.NoError(t, s.RecordResult("p1", now, probe.Result{StartTime: now, Pass: true, Attempts: 1}))
	state2, _, err := s.Field(id, "p1")
	require.NoError(t, err)
	require.Greater(t, state2.Version(), v1)
}

func TestDigestReflectsMaxVersionPerNode(t *testing.T) {
	s, id := openTestStore(t)
	now := time.Now()
	require.NoError(t, s.RecordResult("p1", now, probe.Result{StartTime: now, Pass: true, Attempts: 1}))
	require.NoError(t, s.RecordResult("p2", now, probe.Result{StartTime: now, Pass: true, Attempts: 1}))

	digest, err := s.Digest()
	require.NoError(t, err)

	p1, _, _ := s.Field(id, "p1")
	p2, _, _ := s.Field(id, "p2")
	want := p1.Version()
	if p2.Version() > want {
		want = p2.Version()
	}
	require.Equal(t, want, digest[id])
}

func TestDiffOnlyReturnsNewerThanRemoteDigest(t *testing.T) {
	s, id := openTestStore(t)
	now := time.Now()
	require.NoError(t, s.RecordResult("p1", now, probe.Result{StartTime: now, Pass: true, Attempts: 1}))

	digest, err := s.Digest()
	require.NoError(t, err)

	// Remote already has everything: diff should be empty.
	delta, err := s.Diff(digest)
	require.NoError(t, err)
	require.Empty(t, delta)

	// Remote knows nothing: diff should include our row.
	delta, err = s.Diff(nil)
	require.NoError(t, err)
	require.Contains(t, delta[id], "p1")
	require.Greater(t, delta[id]["p1"].Version(), digest[id]-1)
}

func TestApplyDoesNotRegressLocalRow(t *testing.T) {
	s, id := openTestStore(t)
	now := time.Now()
	require.NoError(t, s.RecordResult("p1", now, probe.Result{StartTime: now, Pass: true, Attempts: 1}))

	before, _, err := s.Field(id, "p1")
	require.NoError(t, err)

	// Apply an inbound delta claiming to be our own row with an older
	// version - local-row protection must keep our version.
	stale := before
	stale.LastUpdated = 1

	require.NoError(t, s.Apply(map[node.ID]map[string]probe.State{id: {"p1": stale}}))

	after, _, err := s.Field(id, "p1")
	require.NoError(t, err)
	require.GreaterOrEqual(t, after.Version(), before.Version())
}

func TestApplyCreatesRowsForUnknownPeers(t *testing.T) {
	s, _ := openTestStore(t)
	remotePeer := node.NewID()
	now := time.Now()

	incoming := probe.NewState("p1", nil, remotePeer, now, probe.Result{StartTime: now, Pass: true, Attempts: 1})
	require.NoError(t, s.Apply(map[node.ID]map[string]probe.State{remotePeer: {"p1": incoming}}))

	got, ok, err := s.Field(remotePeer, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, incoming.Version(), got.Version())
}

func TestGCDropsOnlyExpiredRows(t *testing.T) {
	s, id := openTestStore(t)
	now := time.Now()
	peerExpiry := time.Hour
	fieldExpiry := time.Hour

	require.NoError(t, s.Heartbeat(id, node.Addr{Value: "10.0.0.1:7946"}, now.Add(-2*peerExpiry)))
	require.NoError(t, s.Heartbeat(id, node.Addr{Value: "10.0.0.2:7946"}, now))

	require.NoError(t, s.RecordResult("stale", now.Add(-2*fieldExpiry), probe.Result{StartTime: now.Add(-2 * fieldExpiry), Pass: true, Attempts: 1}))
	require.NoError(t, s.RecordResult("fresh", now, probe.Result{StartTime: now, Pass: true, Attempts: 1}))

	result, err := s.GC(now, peerExpiry, fieldExpiry)
	require.NoError(t, err)
	require.Equal(t, 1, result.PeersRemoved)
	require.Equal(t, 1, result.FieldsRemoved)

	addrs, err := s.PeerAddresses()
	require.NoError(t, err)
	require.Len(t, addrs, 1)

	_, ok, err := s.Field(id, "stale")
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = s.Field(id, "fresh")
	require.NoError(t, err)
	require.True(t, ok)
}
