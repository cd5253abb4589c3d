package probe

import "time"

// Policy governs how a probe runner schedules and retries one probe.
type Policy struct {
	Interval time.Duration `yaml:"interval" cbor:"interval"`
	Timeout  time.Duration `yaml:"timeout" cbor:"timeout"`
	Retries  int           `yaml:"retries" cbor:"retries"`
}

// TargetKind tags which concrete Target a TargetSpec configures.
type TargetKind string

const (
	TargetHTTP TargetKind = "http"
	TargetTCP  TargetKind = "tcp"
)

// TargetSpec is the tagged union of target kinds and their parameters, as
// loaded from configuration. internal/target turns this into a runnable
// Target.
type TargetSpec struct {
	Kind TargetKind `yaml:"kind" cbor:"kind"`

	// HTTP target parameters.
	Method  string            `yaml:"method,omitempty" cbor:"method,omitempty"`
	URL     string            `yaml:"url,omitempty" cbor:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty" cbor:"headers,omitempty"`
	Body    string            `yaml:"body,omitempty" cbor:"body,omitempty"`

	// TCP target parameters.
	Address string `yaml:"address,omitempty" cbor:"address,omitempty"`
}

// ValidatorKind tags which concrete Validator a descriptor's entry selects.
type ValidatorKind struct {
	Kind       string `yaml:"kind" cbor:"kind"`
	Expect     Value  `yaml:"-" cbor:"expect"`
	RawExpect  string `yaml:"expect" cbor:"-"`
}

// Descriptor is the immutable-per-reload probe configuration: a unique
// name, its scheduling policy, its target, free-form tags, and the named
// validators applied to each sample.
type Descriptor struct {
	Name       string                   `yaml:"name" cbor:"name"`
	Policy     Policy                   `yaml:"policy" cbor:"policy"`
	Target     TargetSpec               `yaml:"target" cbor:"target"`
	Tags       map[string]string        `yaml:"tags,omitempty" cbor:"tags,omitempty"`
	Validators map[string]ValidatorKind `yaml:"validators,omitempty" cbor:"validators,omitempty"`
}

// Equal reports whether two descriptors are configuration-equivalent.
// Validators are compared by kind and raw expectation.
func (d Descriptor) Equal(other Descriptor) bool {
	if d.Name != other.Name || d.Policy != other.Policy || d.Target.Kind != other.Target.Kind {
		return false
	}
	if d.Target.Method != other.Target.Method || d.Target.URL != other.Target.URL ||
		d.Target.Body != other.Target.Body || d.Target.Address != other.Target.Address {
		return false
	}
	if len(d.Tags) != len(other.Tags) || len(d.Validators) != len(other.Validators) ||
		len(d.Target.Headers) != len(other.Target.Headers) {
		return false
	}
	for k, v := range d.Tags {
		if other.Tags[k] != v {
			return false
		}
	}
	for k, v := range d.Target.Headers {
		if other.Target.Headers[k] != v {
			return false
		}
	}
	for k, v := range d.Validators {
		ov, ok := other.Validators[k]
		if !ok || ov.Kind != v.Kind || ov.RawExpect != v.RawExpect {
			return false
		}
	}
	return true
}
