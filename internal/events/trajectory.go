package events

// Canonical lifecycle types.
const (
	TypeDiscovered = "discovered"
	TypeClaimed    = "claimed"
	TypeCompleted  = "completed"
	TypeFailed     = "failed"
	TypeDisputed   = "disputed" // secondary, derived

	TypeDisputeInitiated = "dispute:initiated"
	TypeDisputeVoteCast  = "dispute:vote_cast"
	TypeDisputeResolved  = "dispute:resolved"
	TypeDisputeCancelled = "dispute:cancelled"
	TypeDisputeExpired   = "dispute:expired"

	TypeSpeculationStarted   = "speculation_started"
	TypeSpeculationConfirmed = "speculation_confirmed"
	TypeSpeculationAborted   = "speculation_aborted"

	TypeAgentRegistered         = "agent:registered"
	TypeAgentReputationUpdated  = "agent:reputation_updated"
	TypeAgentDeregistered       = "agent:deregistered"
)

// UnknownTrajectorySortKey is assigned to any canonical type this table
// does not recognize.
const UnknownTrajectorySortKey = 1000

// trajectorySortKeys fixes the complete per-type secondary sort key
// table: discovered=10, claimed=20, ... agent:*=140+.
var trajectorySortKeys = map[string]int{
	TypeDiscovered: 10,
	TypeClaimed:    20,
	TypeCompleted:  30,
	TypeFailed:     40,
	TypeDisputed:   50,

	TypeDisputeInitiated: 60,
	TypeDisputeVoteCast:  70,
	TypeDisputeResolved:  80,
	TypeDisputeCancelled: 90,
	TypeDisputeExpired:   100,

	TypeSpeculationStarted:   110,
	TypeSpeculationConfirmed: 120,
	TypeSpeculationAborted:   130,

	TypeAgentRegistered:        140,
	TypeAgentReputationUpdated: 141,
	TypeAgentDeregistered:      142,
}

// TrajectorySortKey returns the fixed secondary sort key for a canonical
// event type, or UnknownTrajectorySortKey if the type is not recognized.
func TrajectorySortKey(canonicalType string) int {
	if k, ok := trajectorySortKeys[canonicalType]; ok {
		return k
	}
	return UnknownTrajectorySortKey
}

// IsKnownType reports whether canonicalType appears in the fixed
// trajectory table.
func IsKnownType(canonicalType string) bool {
	_, ok := trajectorySortKeys[canonicalType]
	return ok
}

// FSM identifies which lifecycle state machine (if any) a canonical type
// participates in.
type FSM int

const (
	FSMNone FSM = iota
	FSMTask
	FSMDispute
	FSMSpeculation
)

var fsmByType = map[string]FSM{
	TypeDiscovered: FSMTask,
	TypeClaimed:    FSMTask,
	TypeCompleted:  FSMTask,
	TypeFailed:     FSMTask,
	TypeDisputed:   FSMTask,

	TypeDisputeInitiated: FSMDispute,
	TypeDisputeVoteCast:  FSMDispute,
	TypeDisputeResolved:  FSMDispute,
	TypeDisputeCancelled: FSMDispute,
	TypeDisputeExpired:   FSMDispute,

	TypeSpeculationStarted:   FSMSpeculation,
	TypeSpeculationConfirmed: FSMSpeculation,
	TypeSpeculationAborted:   FSMSpeculation,
}

// FSMFor returns which lifecycle state machine governs canonicalType.
// Agent registry events and unknown types return FSMNone: they are
// always valid and never produce transition violations.
func FSMFor(canonicalType string) FSM {
	return fsmByType[canonicalType]
}
