package wire

import (
	"testing"
	"time"

	"github.com/mcastellin/uptime-gossip/internal/node"
	"github.com/mcastellin/uptime-gossip/internal/probe"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeSynRoundTrips(t *testing.T) {
	from := node.NewID()
	peer := node.NewID()

	msg := Syn(Metadata{From: from, Traceparent: "00-trace-01"}, Digest{peer: 42})

	b, err := Encode(msg)
	require.NoError(t, err)
	require.LessOrEqual(t, len(b), MaxDatagramSize)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, KindSyn, got.Kind)
	require.Equal(t, from, got.Meta.From)
	require.Equal(t, "00-trace-01", got.Meta.Traceparent)
	require.Equal(t, uint64(42), got.Digest[peer])
}

func TestEncodeDecodeSynAckWithDeltaRoundTrips(t *testing.T) {
	from := node.NewID()
	observer := node.NewID()
	now := time.Now()

	state := probe.NewState("p1", map[string]string{"env": "prod"}, observer, now,
		probe.Result{StartTime: now, Pass: true, Attempts: 1})

	msg := SynAck(Metadata{From: from}, Digest{observer: state.Version()}, Delta{
		observer: {"p1": state},
	})

	b, err := Encode(msg)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, KindSynAck, got.Kind)
	require.Equal(t, state.Name, got.Delta[observer]["p1"].Name)
	require.Equal(t, state.LastUpdated, got.Delta[observer]["p1"].LastUpdated)
}

func TestDecodeMalformedReturnsError(t *testing.T) {
	_, err := Decode([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
}
