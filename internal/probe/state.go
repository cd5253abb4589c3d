// Package probe holds the replicated per-(node, probe) value and its merge
// laws, plus the probe descriptor and sample/result types the runner
// produces.
package probe

import (
	"time"

	"github.com/mcastellin/uptime-gossip/internal/node"
	"github.com/mcastellin/uptime-gossip/internal/versioned"
)

// State must satisfy the gossip layer's replicated-value contract.
var _ versioned.Value[State] = (*State)(nil)

// Stamp is a strictly-monotonic-per-writer counter, stored as epoch
// milliseconds. It doubles as the versioned.Value version number. Sub-second
// resolution is required (not just epoch seconds) so that two
// record_result calls landing in the same wall-clock second still produce
// strictly increasing versions.
type Stamp uint64

// StampFromTime converts a wall-clock time to a Stamp.
func StampFromTime(t time.Time) Stamp {
	return Stamp(t.UnixMilli())
}

// Time converts a Stamp back to a wall-clock time.
func (s Stamp) Time() time.Time {
	return time.UnixMilli(int64(s))
}

// State is the replicated value for one (node, probe): identity, tags,
// last_updated, history, and per-observer observations.
type State struct {
	Name         string                  `cbor:"name"`
	Tags         map[string]string       `cbor:"tags,omitempty"`
	LastUpdated  Stamp                   `cbor:"last_updated"`
	History      []Bucket                `cbor:"history,omitempty"`
	Observations map[node.ID]Observation `cbor:"observations,omitempty"`
}

// Version implements versioned.Value.
func (s State) Version() uint64 {
	return uint64(s.LastUpdated)
}

// DiffSince implements versioned.Value: returns (zero, false) when this
// state isn't newer than the caller's digest entry; otherwise a shallow
// copy of the full state with history limited to buckets younger than
// last_updated-2h (the caller is assumed to already have older buckets from
// a previous exchange).
func (s State) DiffSince(since uint64) (State, bool) {
	if s.Version() <= since {
		return State{}, false
	}

	cutoff := s.LastUpdated.Time().Add(-2 * time.Hour)
	diff := State{
		Name:         s.Name,
		Tags:         s.Tags,
		LastUpdated:  s.LastUpdated,
		Observations: s.Observations,
	}
	for _, b := range s.History {
		if b.StartTime.After(cutoff) {
			diff.History = append(diff.History, b)
		}
	}
	return diff, true
}

// Apply merges other into s: last_updated takes the max, name/tags come
// from whichever side is newer, observations merge per-observer, and
// history merges by the stable sorted-merge rule with a 48h retention
// window measured from wall-clock now.
func (s *State) Apply(other State) {
	newer := other.LastUpdated > s.LastUpdated

	merged := *s
	if newer {
		merged.LastUpdated = other.LastUpdated
		merged.Name = other.Name
		merged.Tags = other.Tags
	}

	merged.Observations = mergeObservations(s.Observations, other.Observations)
	merged.History = MergeHistory(s.History, other.History, time.Now())

	*s = merged
}

func mergeObservations(a, b map[node.ID]Observation) map[node.ID]Observation {
	out := make(map[node.ID]Observation, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = out[k].Merge(v)
	}
	return out
}

// NewState creates the first replicated row for a probe, observed by
// observer at now.
func NewState(name string, tags map[string]string, observer node.ID, now time.Time, r Result) State {
	return State{
		Name:         name,
		Tags:         tags,
		LastUpdated:  StampFromTime(now),
		History:      []Bucket{NewBucket(BucketStart(r.StartTime), observer, r)},
		Observations: map[node.ID]Observation{observer: FromResult(r)},
	}
}

// FoldResult folds a freshly observed Result into the state's current hour
// bucket (creating it if the hour rolled over), bumps the per-observer
// aggregate, and advances last_updated to at least 1ms past its prior
// value - even if now is wall-clock equal or earlier, so that Version()
// strictly increases across calls.
func (s *State) FoldResult(observer node.ID, now time.Time, r Result) {
	bucketStart := BucketStart(r.StartTime)

	if n := len(s.History); n > 0 && s.History[n-1].StartTime.Equal(bucketStart) {
		s.History[n-1] = s.History[n-1].FoldResult(observer, r)
	} else {
		s.History = append(s.History, NewBucket(bucketStart, observer, r))
	}

	if s.Observations == nil {
		s.Observations = map[node.ID]Observation{}
	}
	s.Observations[observer] = s.Observations[observer].Merge(FromResult(r))

	s.bumpLastUpdated(now)
}

// BumpDescriptorUpdate advances last_updated on a descriptor-only change
// (update_probe_descriptor), without touching history or observations.
func (s *State) BumpDescriptorUpdate(name string, tags map[string]string, now time.Time) {
	s.Name = name
	s.Tags = tags
	s.bumpLastUpdated(now)
}

func (s *State) bumpLastUpdated(now time.Time) {
	candidate := StampFromTime(now)
	if candidate <= s.LastUpdated {
		candidate = s.LastUpdated + 1
	}
	s.LastUpdated = candidate
}
