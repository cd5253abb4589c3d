package probe

import (
	"sort"
	"time"

	"github.com/mcastellin/uptime-gossip/internal/node"
)

// bucketWidth is the hourly rollup alignment.
const bucketWidth = 3600 * time.Second

// retentionWindow is how long history buckets survive a merge.
const retentionWindow = 48 * time.Hour

// BucketStart aligns t down to the UTC 3600-second boundary it falls in.
func BucketStart(t time.Time) time.Time {
	secs := t.UTC().Unix()
	aligned := secs - secs%int64(bucketWidth.Seconds())
	return time.Unix(aligned, 0).UTC()
}

// Bucket is an hourly rollup of one or more Results: the worst-case
// pass/message/validations in that hour, plus per-observer Observation
// aggregates.
type Bucket struct {
	StartTime    time.Time                   `cbor:"start_time" json:"start_time"`
	Pass         bool                        `cbor:"pass" json:"pass"`
	Message      string                      `cbor:"message,omitempty" json:"message,omitempty"`
	Validations  map[string]ValidationResult `cbor:"validations,omitempty" json:"validations,omitempty"`
	Observations map[node.ID]Observation     `cbor:"observations,omitempty" json:"observations,omitempty"`
}

// NewBucket creates the first bucket for an hour from one observer's result.
func NewBucket(start time.Time, observer node.ID, r Result) Bucket {
	return Bucket{
		StartTime:    start,
		Pass:         r.Pass,
		Message:      r.Message,
		Validations:  r.Validations,
		Observations: map[node.ID]Observation{observer: FromResult(r)},
	}
}

// FoldResult merges one more result from observer into an existing bucket
// for the same hour. The bucket only downgrades from healthy to unhealthy,
// keeping whichever message/validations came from the first failing sample
// seen so far.
func (b Bucket) FoldResult(observer node.ID, r Result) Bucket {
	out := b
	out.Observations = cloneObservations(b.Observations)
	out.Observations[observer] = out.Observations[observer].Merge(FromResult(r))

	if out.Pass && !r.Pass {
		out.Pass = false
		out.Message = r.Message
		out.Validations = r.Validations
	}
	return out
}

// Merge combines two buckets for the same hour: if self passed and other
// didn't, other's message/validations win and pass flips to false;
// observations merge per-observer. Commutative and associative is not
// required here in full generality (the "downgrade only" rule is
// intentionally asymmetric, per design), but repeated merges of the same
// pair converge to the same result regardless of invocation order applied
// transitively across a cluster.
func (b Bucket) Merge(other Bucket) Bucket {
	out := Bucket{
		StartTime:    b.StartTime,
		Pass:         b.Pass,
		Message:      b.Message,
		Validations:  b.Validations,
		Observations: cloneObservations(b.Observations),
	}

	if out.Pass && !other.Pass {
		out.Pass = false
		out.Message = other.Message
		out.Validations = other.Validations
	}

	for observer, obs := range other.Observations {
		out.Observations[observer] = out.Observations[observer].Merge(obs)
	}
	return out
}

func cloneObservations(m map[node.ID]Observation) map[node.ID]Observation {
	out := make(map[node.ID]Observation, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MergeHistory performs the stable sorted-merge of two ascending history
// slices: equal timestamps merge via Bucket.Merge, distinct timestamps
// interleave, and the result is filtered to buckets newer than
// now-retentionWindow.
func MergeHistory(a, b []Bucket, now time.Time) []Bucket {
	merged := make([]Bucket, 0, len(a)+len(b))

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].StartTime.Equal(b[j].StartTime):
			merged = append(merged, a[i].Merge(b[j]))
			i++
			j++
		case a[i].StartTime.Before(b[j].StartTime):
			merged = append(merged, a[i])
			i++
		default:
			merged = append(merged, b[j])
			j++
		}
	}
	merged = append(merged, a[i:]...)
	merged = append(merged, b[j:]...)

	cutoff := now.Add(-retentionWindow)
	out := merged[:0]
	for _, bucket := range merged {
		if bucket.StartTime.After(cutoff) {
			out = append(out, bucket)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}
