package probe

import "time"

// Observation is a per-observer aggregate over many Results. The zero
// Observation is the merge identity.
type Observation struct {
	TotalSamples      uint64        `cbor:"total_samples" json:"total_samples"`
	SuccessfulSamples uint64        `cbor:"successful_samples" json:"successful_samples"`
	TotalRetries      uint64        `cbor:"total_retries" json:"total_retries"`
	TotalLatency      time.Duration `cbor:"total_latency" json:"total_latency"`
}

// Merge folds other into o field-wise. Merge is commutative, associative,
// and has the zero Observation as identity.
func (o Observation) Merge(other Observation) Observation {
	return Observation{
		TotalSamples:      o.TotalSamples + other.TotalSamples,
		SuccessfulSamples: o.SuccessfulSamples + other.SuccessfulSamples,
		TotalRetries:      o.TotalRetries + other.TotalRetries,
		TotalLatency:      o.TotalLatency + other.TotalLatency,
	}
}

// FromResult folds one Result into a fresh per-run Observation.
func FromResult(r Result) Observation {
	obs := Observation{
		TotalSamples: 1,
		TotalRetries: uint64(r.Attempts - 1),
		TotalLatency: r.Duration,
	}
	if r.Pass {
		obs.SuccessfulSamples = 1
	}
	return obs
}
