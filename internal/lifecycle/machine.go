// Copyright 2025 Certen Protocol
//
// Package lifecycle implements the three finite-state machines the
// projector enforces: task, dispute, and speculation. Each machine is a
// small transition table keyed by (currentState, canonicalEventType).
package lifecycle

import "github.com/agentchain/replaycore/internal/events"

// State names. The empty string is every machine's initial ("absent")
// state, meaning no record has been projected for the entity yet.
const (
	StateAbsent = ""

	TaskDiscovered = "discovered"
	TaskClaimed    = "claimed"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
	TaskDisputed   = "disputed"

	DisputeInitiated = "initiated"
	DisputeVoteCast  = "vote_cast"
	DisputeResolved  = "resolved"
	DisputeCancelled = "cancelled"
	DisputeExpired   = "expired"

	SpeculationStarted   = "started"
	SpeculationConfirmed = "confirmed"
	SpeculationAborted   = "aborted"
)

// Machine is a transition table: state -> eventType -> next state.
type Machine struct {
	transitions map[string]map[string]string
	terminal    map[string]bool
}

// Apply looks up the transition for (state, eventType). ok is false when
// the transition is not permitted, in which case state is returned
// unchanged so the caller can record a violation without corrupting
// tracked entity state.
func (m Machine) Apply(state, eventType string) (next string, ok bool) {
	next, ok = m.transitions[state][eventType]
	if !ok {
		return state, false
	}
	return next, true
}

// IsTerminal reports whether state has no outbound transitions.
func (m Machine) IsTerminal(state string) bool {
	return m.terminal[state]
}

// Task returns the task lifecycle machine:
//
//	discovered -> {claimed, failed}
//	claimed    -> {completed, failed, disputed}
//	disputed   -> {completed, failed}
//	completed, failed: terminal
func Task() Machine {
	return Machine{
		transitions: map[string]map[string]string{
			StateAbsent: {
				events.TypeDiscovered: TaskDiscovered,
			},
			TaskDiscovered: {
				events.TypeClaimed: TaskClaimed,
				events.TypeFailed:  TaskFailed,
			},
			TaskClaimed: {
				events.TypeCompleted: TaskCompleted,
				events.TypeFailed:    TaskFailed,
				events.TypeDisputed:  TaskDisputed,
			},
			TaskDisputed: {
				events.TypeCompleted: TaskCompleted,
				events.TypeFailed:    TaskFailed,
			},
		},
		terminal: map[string]bool{
			TaskCompleted: true,
			TaskFailed:    true,
		},
	}
}

// Dispute returns the dispute lifecycle machine:
//
//	dispute:initiated -> {vote_cast, resolved, cancelled, expired}
//	dispute:vote_cast -> {resolved, cancelled, expired}
//	resolved, cancelled, expired: terminal
func Dispute() Machine {
	return Machine{
		transitions: map[string]map[string]string{
			StateAbsent: {
				events.TypeDisputeInitiated: DisputeInitiated,
			},
			DisputeInitiated: {
				events.TypeDisputeVoteCast:  DisputeVoteCast,
				events.TypeDisputeResolved:  DisputeResolved,
				events.TypeDisputeCancelled: DisputeCancelled,
				events.TypeDisputeExpired:   DisputeExpired,
			},
			DisputeVoteCast: {
				events.TypeDisputeResolved:  DisputeResolved,
				events.TypeDisputeCancelled: DisputeCancelled,
				events.TypeDisputeExpired:   DisputeExpired,
			},
		},
		terminal: map[string]bool{
			DisputeResolved:  true,
			DisputeCancelled: true,
			DisputeExpired:   true,
		},
	}
}

// Speculation returns the speculation lifecycle machine:
//
//	speculation_started -> {speculation_confirmed, speculation_aborted}
//	confirmed, aborted: terminal
func Speculation() Machine {
	return Machine{
		transitions: map[string]map[string]string{
			StateAbsent: {
				events.TypeSpeculationStarted: SpeculationStarted,
			},
			SpeculationStarted: {
				events.TypeSpeculationConfirmed: SpeculationConfirmed,
				events.TypeSpeculationAborted:   SpeculationAborted,
			},
		},
		terminal: map[string]bool{
			SpeculationConfirmed: true,
			SpeculationAborted:   true,
		},
	}
}
