package probe

import (
	"testing"
	"time"

	"github.com/mcastellin/uptime-gossip/internal/node"
	"github.com/stretchr/testify/require"
)

func TestObservationMergeIsCommutativeAssociativeWithIdentity(t *testing.T) {
	a := Observation{TotalSamples: 3, SuccessfulSamples: 2, TotalRetries: 1, TotalLatency: time.Second}
	b := Observation{TotalSamples: 5, SuccessfulSamples: 5, TotalRetries: 0, TotalLatency: 2 * time.Second}
	c := Observation{TotalSamples: 1, SuccessfulSamples: 0, TotalRetries: 4, TotalLatency: 3 * time.Second}

	require.Equal(t, a.Merge(b), b.Merge(a), "commutative")
	require.Equal(t, a.Merge(b).Merge(c), a.Merge(b.Merge(c)), "associative")
	require.Equal(t, a, a.Merge(Observation{}), "zero is identity")
	require.Equal(t, a, Observation{}.Merge(a), "zero is identity (left)")
}

func TestBucketAlignment(t *testing.T) {
	ts := time.Date(2026, 7, 30, 14, 37, 12, 0, time.UTC)
	start := BucketStart(ts)

	require.Zero(t, start.Unix()%3600, "bucket start must align to an hour boundary")
	require.True(t, !start.After(ts))
	require.True(t, start.Add(time.Hour).After(ts))
}

func TestHistoryBucketMergeScenario(t *testing.T) {
	// Scenario: bucket@t=3600 with (A: 10/10) merged with bucket@t=3600 with
	// (A: 5/4) and (B: 1/0): A totals 15/14, B is 1/0, and pass is false
	// because the second bucket contributed a failing sample.
	a := node.NewID()
	b := node.NewID()
	start := time.Unix(3600, 0).UTC()

	first := Bucket{
		StartTime:    start,
		Pass:         true,
		Observations: map[node.ID]Observation{a: {TotalSamples: 10, SuccessfulSamples: 10}},
	}
	second := Bucket{
		StartTime: start,
		Pass:      false,
		Message:   "dns resolution failed",
		Observations: map[node.ID]Observation{
			a: {TotalSamples: 5, SuccessfulSamples: 4},
			b: {TotalSamples: 1, SuccessfulSamples: 0},
		},
	}

	merged := first.Merge(second)

	require.False(t, merged.Pass)
	require.Equal(t, "dns resolution failed", merged.Message)
	require.Equal(t, uint64(15), merged.Observations[a].TotalSamples)
	require.Equal(t, uint64(14), merged.Observations[a].SuccessfulSamples)
	require.Equal(t, uint64(1), merged.Observations[b].TotalSamples)
	require.Equal(t, uint64(0), merged.Observations[b].SuccessfulSamples)
}

func TestStateApplyIsIdempotent(t *testing.T) {
	observer := node.NewID()
	now := time.Now()
	s := NewState("p1", nil, observer, now, Result{StartTime: now, Pass: true, Attempts: 1})

	diff, ok := s.DiffSince(0)
	require.True(t, ok)

	withDiff := s
	withDiff.Apply(diff)
	twiceApplied := withDiff
	twiceApplied.Apply(diff)

	require.Equal(t, withDiff.LastUpdated, twiceApplied.LastUpdated)
	require.Equal(t, withDiff.Observations, twiceApplied.Observations)
	require.Equal(t, len(withDiff.History), len(twiceApplied.History))
}

func TestStateApplyConverges(t *testing.T) {
	observer := node.NewID()
	now := time.Now()

	a := NewState("p1", nil, observer, now, Result{StartTime: now, Pass: true, Attempts: 1})
	b := NewState("p1", nil, observer, now.Add(time.Second), Result{StartTime: now.Add(time.Second), Pass: false, Attempts: 2})

	ab := a
	ab.Apply(b)
	ba := b
	ba.Apply(a)

	require.Equal(t, ab.LastUpdated, ba.LastUpdated)
	require.Equal(t, ab.Observations, ba.Observations)
	require.ElementsMatch(t, ab.History, ba.History)
}

func TestStateRetentionDropsOldBuckets(t *testing.T) {
	observer := node.NewID()
	now := time.Now()
	old := Bucket{StartTime: now.Add(-72 * time.Hour), Pass: true}
	fresh := Bucket{StartTime: now.Add(-time.Hour), Pass: true}

	s := State{Name: "p1", LastUpdated: StampFromTime(now), History: []Bucket{old}}
	other := State{Name: "p1", LastUpdated: StampFromTime(now), History: []Bucket{fresh}}

	s.Apply(other)

	for _, bucket := range s.History {
		require.True(t, bucket.StartTime.After(now.Add(-48*time.Hour)))
	}
}

func TestDiffSinceOnlyReturnsNewerVersions(t *testing.T) {
	observer := node.NewID()
	now := time.Now()
	s := NewState("p1", nil, observer, now, Result{StartTime: now, Pass: true, Attempts: 1})

	_, ok := s.DiffSince(s.Version())
	require.False(t, ok, "diff since own version must be empty")

	diff, ok := s.DiffSince(s.Version() - 1)
	require.True(t, ok)
	require.Greater(t, diff.Version(), s.Version()-1)
}

func TestFoldResultStrictlyIncreasesVersionWithinSameMillisecond(t *testing.T) {
	observer := node.NewID()
	now := time.Now()
	s := NewState("p1", nil, observer, now, Result{StartTime: now, Pass: true, Attempts: 1})

	before := s.Version()
	s.FoldResult(observer, now, Result{StartTime: now, Pass: true, Attempts: 1})
	require.Greater(t, s.Version(), before)

	before = s.Version()
	s.FoldResult(observer, now, Result{StartTime: now, Pass: true, Attempts: 1})
	require.Greater(t, s.Version(), before)
}

func TestValidationResultMessageIsElided(t *testing.T) {
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'x'
	}
	vr := NewValidationResult("contains", false, string(long))
	require.Len(t, vr.Message, maxMessageLen)
}
