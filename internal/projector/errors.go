package projector

import "fmt"

// StrictError is returned by Project when Config.Strict is set and at
// least one input fails validation: a transition violation, unknown
// event, or malformed input.
type StrictError struct {
	Violations      []TransitionViolation
	UnknownEvents   int
	MalformedInputs []MalformedInput
}

func (e *StrictError) Error() string {
	return fmt.Sprintf("projector: ProjectionStrict: %d transition violations, %d unknown events, %d malformed inputs",
		len(e.Violations), e.UnknownEvents, len(e.MalformedInputs))
}
