package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mcastellin/uptime-gossip/internal/probe"
	"github.com/mcastellin/uptime-gossip/internal/target"
	"github.com/mcastellin/uptime-gossip/internal/validator"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	mu        sync.Mutex
	calls     int
	succeedAt int // 1-indexed call number that first succeeds; 0 = never
}

func (f *fakeTarget) Run(ctx context.Context) (probe.Sample, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if f.succeedAt != 0 && n >= f.succeedAt {
		return probe.Sample{}, nil
	}
	return nil, errors.New("target unreachable")
}

func (f *fakeTarget) String() string { return "fake" }

func TestRunSessionSucceedsOnThirdAttempt(t *testing.T) {
	tgt := &fakeTarget{succeedAt: 3}
	policy := probe.Policy{Timeout: time.Second, Retries: 2}

	result := runSession(context.Background(), policy, tgt, nil, time.Now())
	require.Equal(t, 3, result.Attempts)
	require.True(t, result.Pass)
}

func TestRunSessionFailsAllAttempts(t *testing.T) {
	tgt := &fakeTarget{succeedAt: 0}
	policy := probe.Policy{Timeout: time.Second, Retries: 2}

	result := runSession(context.Background(), policy, tgt, nil, time.Now())
	require.Equal(t, 3, result.Attempts)
	require.False(t, result.Pass)
	require.NotEmpty(t, result.Message)
}

func TestRunSessionRecordsLastFailingValidation(t *testing.T) {
	tgt := &fakeTarget{succeedAt: 1}
	policy := probe.Policy{Timeout: time.Second, Retries: 0}
	validators := map[string]validator.Validator{
		"status": &validator.Equals{Expect: probe.StringValue("never-matches")},
	}

	result := runSession(context.Background(), policy, tgt, validators, time.Now())
	require.Equal(t, 1, result.Attempts)
	require.False(t, result.Pass)
	require.False(t, result.Validations["status"].Pass)
}

type fakeStore struct {
	mu      sync.Mutex
	results []probe.Result
}

func (s *fakeStore) UpdateProbeDescriptor(name string, tags map[string]string, now time.Time) error {
	return nil
}

func (s *fakeStore) RecordResult(name string, now time.Time, result probe.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func TestRunnerTicksAndStopsOnCancel(t *testing.T) {
	desc := probe.Descriptor{
		Name:   "p1",
		Policy: probe.Policy{Interval: 5 * time.Millisecond, Timeout: 50 * time.Millisecond, Retries: 0},
		Target: probe.TargetSpec{Kind: probe.TargetTCP, Address: "127.0.0.1:1"},
	}
	store := &fakeStore{}
	r := New(desc, store, zap.NewNop())
	r.nowFn = time.Now

	r.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	r.Cancel()

	require.GreaterOrEqual(t, store.count(), 1)
}

func TestRunnerUpdateTakesEffectWithoutRestart(t *testing.T) {
	desc := probe.Descriptor{Name: "p1", Policy: probe.Policy{Interval: time.Hour, Timeout: time.Second}}
	store := &fakeStore{}
	r := New(desc, store, zap.NewNop())

	r.Update(probe.Descriptor{Name: "p1", Policy: probe.Policy{Interval: time.Minute, Timeout: time.Second}})
	require.Equal(t, time.Minute, r.descriptor().Policy.Interval)
}

func TestFromSpecStillWorksForRunnerTargets(t *testing.T) {
	_, err := target.FromSpec(probe.TargetSpec{Kind: probe.TargetHTTP, URL: "http://example.com"})
	require.NoError(t, err)
}
