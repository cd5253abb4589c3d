package validator

import (
	"fmt"
	"strings"

	"github.com/mcastellin/uptime-gossip/internal/probe"
)

// Contains passes when the observed string field contains Expect as a
// substring, or the observed list field contains Expect as an element.
type Contains struct {
	Expect probe.Value
}

func (c *Contains) Validate(field string, value probe.Value) probe.ValidationResult {
	switch {
	case value.Kind == probe.KindString && c.Expect.Kind == probe.KindString:
		if strings.Contains(value.Str, c.Expect.Str) {
			return probe.NewValidationResult(c.String(), true, "")
		}
		return probe.NewValidationResult(c.String(), false, fmt.Sprintf(
			"%s ('%s') did not contain the substring '%s'.", field, value, c.Expect))

	case value.Kind == probe.KindList:
		for _, item := range value.List {
			if item.Equal(c.Expect) {
				return probe.NewValidationResult(c.String(), true, "")
			}
		}
		return probe.NewValidationResult(c.String(), false, fmt.Sprintf(
			"%s ('%s') did not contain the item '%s'.", field, value, c.Expect))

	default:
		return probe.NewValidationResult(c.String(), false, fmt.Sprintf(
			"this validator is not compatible with field '%s'.", field))
	}
}

func (c *Contains) String() string {
	return fmt.Sprintf("contains %s", c.Expect)
}
