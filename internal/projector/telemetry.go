package projector

// MalformedInput records an input that failed basic shape validation
// before it could even reach FSM checking.
type MalformedInput struct {
	Signature string `json:"signature"`
	EventName string `json:"eventName"`
	Reason    string `json:"reason"`
}

// TransitionViolation records a lifecycle FSM rule broken by an input
// that was still projected (non-strict mode) or that aborted the whole
// batch (strict mode).
type TransitionViolation struct {
	Scope     string `json:"scope"` // "task", "dispute", "speculation"
	EntityPda string `json:"entityPda"`
	FromState string `json:"fromState"`
	ToState   string `json:"toState"`
	EventType string `json:"eventType"`
	Reason    string `json:"reason"`
	Signature string `json:"signature"`
	Slot      uint64 `json:"slot"`
}

// Telemetry aggregates counters and detail lists produced by one
// Project call.
type Telemetry struct {
	TotalInputs         int                   `json:"totalInputs"`
	ProjectedEvents      int                   `json:"projectedEvents"`
	DuplicatesDropped    int                   `json:"duplicatesDropped"`
	UnknownEvents        int                   `json:"unknownEvents"`
	TransitionConflicts  int                   `json:"transitionConflicts"`
	TransitionViolations []TransitionViolation `json:"transitionViolations"`
	MalformedInputs      []MalformedInput      `json:"malformedInputs"`
}

// DisputeReplayState accumulates the auxiliary bookkeeping needed to
// replay a dispute locally: vote counts, resolution outcome, and voter
// signatures, keyed by disputePda.
type DisputeReplayState struct {
	DisputePda        string   `json:"disputePda"`
	VoteCount         int      `json:"voteCount"`
	VoterSignatures   []string `json:"voterSignatures"`
	ResolutionOutcome string   `json:"resolutionOutcome,omitempty"`
}
