package events

// eventNameToCanonicalType maps the raw on-chain event name (as emitted
// by the external program; this core does not define the program) to
// the canonical lifecycle type used for projection, ordering, and FSM
// validation.
var eventNameToCanonicalType = map[string]string{
	"taskCreated":   TypeDiscovered,
	"taskClaimed":   TypeClaimed,
	"taskCompleted": TypeCompleted,
	"taskFailed":    TypeFailed,

	"disputeInitiated": TypeDisputeInitiated,
	"disputeVoteCast":  TypeDisputeVoteCast,
	"disputeResolved":  TypeDisputeResolved,
	"disputeCancelled": TypeDisputeCancelled,
	"disputeExpired":   TypeDisputeExpired,

	"speculationStarted":   TypeSpeculationStarted,
	"speculationConfirmed": TypeSpeculationConfirmed,
	"speculationAborted":   TypeSpeculationAborted,

	"agentRegistered":        TypeAgentRegistered,
	"agentReputationUpdated": TypeAgentReputationUpdated,
	"agentDeregistered":      TypeAgentDeregistered,
}

// CanonicalType resolves a raw eventName to its canonical lifecycle
// type. ok is false for names outside the known vocabulary; the
// projector records these in telemetry.unknownEvents and skips them.
func CanonicalType(eventName string) (canonicalType string, ok bool) {
	canonicalType, ok = eventNameToCanonicalType[eventName]
	return
}
