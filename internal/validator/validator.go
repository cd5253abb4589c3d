// Package validator implements the Validator contract: pass/fail checks run
// against one named field of a probe's Sample.
package validator

import (
	"fmt"

	"github.com/mcastellin/uptime-gossip/internal/probe"
)

// Validator checks one field of a Sample and reports pass/fail with an
// explanatory message on failure.
type Validator interface {
	Validate(field string, value probe.Value) probe.ValidationResult
	String() string
}

// FromKind builds the concrete Validator a ValidatorKind configures.
func FromKind(kind probe.ValidatorKind) (Validator, error) {
	switch kind.Kind {
	case "equals":
		return &Equals{Expect: kind.Expect}, nil
	case "contains":
		return &Contains{Expect: kind.Expect}, nil
	default:
		return nil, fmt.Errorf("validator: unknown kind %q", kind.Kind)
	}
}
