package validator

import (
	"fmt"

	"github.com/mcastellin/uptime-gossip/internal/probe"
)

// Equals passes when the observed field equals Expect exactly.
type Equals struct {
	Expect probe.Value
}

func (e *Equals) Validate(field string, value probe.Value) probe.ValidationResult {
	if value.Equal(e.Expect) {
		return probe.NewValidationResult(e.String(), true, "")
	}
	return probe.NewValidationResult(e.String(), false, fmt.Sprintf(
		"%s ('%s') did not equal the expected value '%s'.", field, value, e.Expect))
}

func (e *Equals) String() string {
	return fmt.Sprintf("== %s", e.Expect)
}
