// Package target implements the Target contract: the pluggable,
// Descriptor-configured probe actions that produce a Sample.
package target

import (
	"context"
	"fmt"

	"github.com/mcastellin/uptime-gossip/internal/probe"
)

// Target runs one probe attempt and returns the fields it observed.
type Target interface {
	Run(ctx context.Context) (probe.Sample, error)
	String() string
}

// FromSpec builds the concrete Target a TargetSpec configures.
func FromSpec(spec probe.TargetSpec) (Target, error) {
	switch spec.Kind {
	case probe.TargetHTTP:
		method := spec.Method
		if method == "" {
			method = "GET"
		}
		return &HTTPTarget{
			Method:  method,
			URL:     spec.URL,
			Headers: spec.Headers,
			Body:    spec.Body,
		}, nil
	case probe.TargetTCP:
		return &TCPTarget{Address: spec.Address}, nil
	default:
		return nil, fmt.Errorf("target: unknown kind %q", spec.Kind)
	}
}
