// Copyright 2025 Certen Protocol
//
// Package scheduler binds the dependency graph and commitment ledger to
// proof-pipeline callbacks, deciding whether to speculatively execute a
// dependent task ahead of its parent's proof landing.
package scheduler

import (
	"log"
	"time"

	"github.com/agentchain/replaycore/internal/depgraph"
)

// SchedulerConfig controls speculative-execution policy.
type SchedulerConfig struct {
	MaxSpeculationDepth         uint32
	MaxSpeculativeStake         uint64
	EnableSpeculation           bool
	AllowPrivateSpeculation     bool
	MinReputationForSpeculation uint32
	ProofTimeoutMs              uint32
	MaxRollbackRatePercent      uint8
	SpeculatableDependencyTypes map[depgraph.DependencyType]bool

	// RollbackWindowSize bounds how many recent speculative outcomes
	// feed the rollback-rate check. Defaults to 20.
	RollbackWindowSize int

	Logger *log.Logger
}

// DefaultSchedulerConfig returns a conservative default configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxSpeculationDepth:     3,
		MaxSpeculativeStake:     1_000_000_000,
		EnableSpeculation:       true,
		AllowPrivateSpeculation: false,
		ProofTimeoutMs:          uint32(30 * time.Second / time.Millisecond),
		MaxRollbackRatePercent:  25,
		SpeculatableDependencyTypes: map[depgraph.DependencyType]bool{
			depgraph.DependencyData:  true,
			depgraph.DependencyOrder: true,
		},
		RollbackWindowSize: 20,
	}
}
