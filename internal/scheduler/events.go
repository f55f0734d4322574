// Copyright 2025 Certen Protocol

package scheduler

// EventType identifies an outward scheduler notification, the same
// shape as pkg/anchor/event_watcher.go's EventType/EventHandler map.
type EventType string

const (
	EventDepthLimitReached     EventType = "DepthLimitReached"
	EventStakeLimitReached     EventType = "StakeLimitReached"
	EventSpeculationFailed     EventType = "SpeculationFailed"
	EventTaskBecameSpeculative EventType = "TaskBecameSpeculative"
)

// Handler receives an outward scheduler notification. detail carries
// the refusal/failure reason, or is empty for EventTaskBecameSpeculative.
type Handler func(taskPda string, detail string)

// On registers handler for eventType. Multiple handlers may be
// registered for the same event; all are called in registration order.
func (s *Scheduler) On(eventType EventType, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[eventType] = append(s.handlers[eventType], handler)
}

func (s *Scheduler) emit(eventType EventType, taskPda, detail string) {
	for _, h := range s.handlers[eventType] {
		h(taskPda, detail)
	}
}
