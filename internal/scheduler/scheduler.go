// Copyright 2025 Certen Protocol

package scheduler

import (
	"sync"

	"github.com/agentchain/replaycore/internal/depgraph"
	"github.com/agentchain/replaycore/internal/ledger"
)

// Refusal reasons returned by ShouldSpeculate, in ladder order.
const (
	ReasonDisabled                      = "disabled"
	ReasonDepthLimit                    = "depth_limit"
	ReasonStakeLimit                    = "stake_limit"
	ReasonPrivateSpeculationDisabled    = "private_speculation_disabled"
	ReasonLowReputation                 = "low_reputation"
	ReasonDependencyTypeNotSpeculatable = "dependency_type_not_speculatable"
	ReasonRollbackRateExceeded          = "rollback_rate_exceeded"
)

// Decision is the result of ShouldSpeculate.
type Decision struct {
	Allowed bool
	Reason  string
}

// SpeculateOptions carries the per-call facts ShouldSpeculate needs
// that neither the graph nor the ledger track on their own.
type SpeculateOptions struct {
	TaskStake       uint64
	IsPrivate       bool
	AgentReputation uint32
}

// Metrics is the scheduler's running speculative-execution tally.
type Metrics struct {
	SpeculativeExecutions int
	SpeculativeHits       int
	SpeculativeMisses     int
	HitRate               float64 // percentage, 0-100
	EstimatedTimeSavedMs   uint64
	EstimatedTimeWastedMs  uint64
}

// Status is the scheduler's running snapshot.
type Status struct {
	Running            bool
	SpeculationEnabled bool
	ActiveSpeculations int
	TotalStakeAtRisk   uint64
}

// Scheduler binds a dependency Graph and CommitmentLedger to
// proof-pipeline outcomes.
type Scheduler struct {
	mu sync.Mutex

	graph  *depgraph.Graph
	ledger *ledger.CommitmentLedger
	config SchedulerConfig

	enabled bool
	running bool

	handlers         map[EventType][]Handler
	pendingRollbacks []string
	rollbackWindow   []bool // ring of recent outcomes, true = rolled back

	metrics Metrics
}

// New binds a scheduler to an existing graph and ledger.
func New(graph *depgraph.Graph, l *ledger.CommitmentLedger, cfg SchedulerConfig) *Scheduler {
	if cfg.RollbackWindowSize <= 0 {
		cfg.RollbackWindowSize = 20
	}
	return &Scheduler{
		graph:    graph,
		ledger:   l,
		config:   cfg,
		enabled:  cfg.EnableSpeculation,
		running:  true,
		handlers: map[EventType][]Handler{},
	}
}

// EnableSpeculation manually re-enables speculation after an
// auto-disable triggered by a rollback-rate breach. It also clears the
// window of recent outcomes, so the breach that caused the auto-disable
// does not immediately trigger it again.
func (s *Scheduler) EnableSpeculation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = true
	s.rollbackWindow = nil
}

// ShouldSpeculate runs the refusal ladder in order, returning the first
// reason that applies.
func (s *Scheduler) ShouldSpeculate(taskPda string, opts SpeculateOptions) Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return Decision{Allowed: false, Reason: ReasonDisabled}
	}

	depth, _ := s.graph.GetDepth(taskPda)
	if depth >= s.config.MaxSpeculationDepth {
		s.emit(EventDepthLimitReached, taskPda, ReasonDepthLimit)
		return Decision{Allowed: false, Reason: ReasonDepthLimit}
	}

	stats := s.ledger.GetStats()
	if stats.TotalStakeAtRisk+opts.TaskStake > s.config.MaxSpeculativeStake {
		s.emit(EventStakeLimitReached, taskPda, ReasonStakeLimit)
		return Decision{Allowed: false, Reason: ReasonStakeLimit}
	}

	if opts.IsPrivate && !s.config.AllowPrivateSpeculation {
		return Decision{Allowed: false, Reason: ReasonPrivateSpeculationDisabled}
	}

	if opts.AgentReputation < s.config.MinReputationForSpeculation {
		return Decision{Allowed: false, Reason: ReasonLowReputation}
	}

	if node := s.graph.GetNode(taskPda); node != nil {
		for _, depType := range node.DependencyTypes {
			if !s.config.SpeculatableDependencyTypes[depType] {
				return Decision{Allowed: false, Reason: ReasonDependencyTypeNotSpeculatable}
			}
		}
	}

	if s.rollbackRatePercent() > float64(s.config.MaxRollbackRatePercent) {
		s.enabled = false
		return Decision{Allowed: false, Reason: ReasonRollbackRateExceeded}
	}

	return Decision{Allowed: true}
}

// StartSpeculation records that speculative execution of taskPda has
// begun: the graph node moves to Executing and the execution counter
// increments.
func (s *Scheduler) StartSpeculation(taskPda string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.graph.UpdateStatus(taskPda, depgraph.StatusExecuting); err != nil {
		return err
	}
	s.metrics.SpeculativeExecutions++
	return nil
}

// OnProofConfirmed marks taskPda confirmed, records a hit, and returns
// the dependents that have newly become speculatable so the caller can
// enqueue them.
func (s *Scheduler) OnProofConfirmed(taskPda string) ([]string, error) {
	s.mu.Lock()
	if err := s.ledger.MarkConfirmed(taskPda); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := s.graph.UpdateStatus(taskPda, depgraph.StatusCompleted); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.metrics.SpeculativeHits++
	s.recordOutcomeLocked(false)
	s.metrics.EstimatedTimeSavedMs += uint64(s.config.ProofTimeoutMs)
	s.mu.Unlock()

	var ready []string
	for _, n := range s.graph.GetSpeculatableTasks() {
		if _, isChild := s.graph.GetNode(taskPda).Children[n.TaskPda]; isChild {
			ready = append(ready, n.TaskPda)
			s.emit(EventTaskBecameSpeculative, n.TaskPda, "")
		}
	}
	return ready, nil
}

// OnProofFailed marks taskPda failed and queues its dependents for
// cascade rollback on the next Tick, so callers observe
// failed -> rolled_back rather than an interleaved order.
func (s *Scheduler) OnProofFailed(taskPda, reason string) error {
	s.mu.Lock()
	if err := s.ledger.UpdateStatus(taskPda, ledger.StatusFailed); err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.graph.UpdateStatus(taskPda, depgraph.StatusFailed); err != nil {
		s.mu.Unlock()
		return err
	}
	s.metrics.SpeculativeMisses++
	s.recordOutcomeLocked(true)
	s.metrics.EstimatedTimeWastedMs += uint64(s.config.ProofTimeoutMs)
	s.pendingRollbacks = append(s.pendingRollbacks, taskPda)
	s.mu.Unlock()

	s.emit(EventSpeculationFailed, taskPda, reason)
	return nil
}

// Tick processes queued cascade rollbacks from OnProofFailed calls
// since the last Tick.
func (s *Scheduler) Tick() error {
	s.mu.Lock()
	queued := s.pendingRollbacks
	s.pendingRollbacks = nil
	s.mu.Unlock()

	for _, taskPda := range queued {
		c, err := s.ledger.GetByTask(taskPda)
		if err != nil {
			return err
		}
		for dep := range c.Dependents {
			if err := s.ledger.RollbackTask(dep); err != nil {
				return err
			}
			s.graph.UpdateStatus(dep, depgraph.StatusRolledBack)
		}
	}
	return nil
}

func (s *Scheduler) recordOutcomeLocked(rolledBack bool) {
	s.rollbackWindow = append(s.rollbackWindow, rolledBack)
	if len(s.rollbackWindow) > s.config.RollbackWindowSize {
		s.rollbackWindow = s.rollbackWindow[len(s.rollbackWindow)-s.config.RollbackWindowSize:]
	}
}

func (s *Scheduler) rollbackRatePercent() float64 {
	if len(s.rollbackWindow) == 0 {
		return 0
	}
	rolled := 0
	for _, r := range s.rollbackWindow {
		if r {
			rolled++
		}
	}
	return float64(rolled) / float64(len(s.rollbackWindow)) * 100
}

// Metrics returns the scheduler's running speculative-execution tally.
func (s *Scheduler) Metrics() Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.metrics
	total := m.SpeculativeHits + m.SpeculativeMisses
	if total > 0 {
		m.HitRate = float64(m.SpeculativeHits) / float64(total) * 100
	}
	return m
}

// Status returns the scheduler's running snapshot.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.ledger.GetStats()
	return Status{
		Running:            s.running,
		SpeculationEnabled: s.enabled,
		ActiveSpeculations: stats.ByStatus[ledger.StatusExecuting],
		TotalStakeAtRisk:   stats.TotalStakeAtRisk,
	}
}
