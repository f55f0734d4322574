// Copyright 2025 Certen Protocol
//
// Package proofpipeline defines the external proof-pipeline contract
// the speculative scheduler subscribes to. Grounded on
// pkg/anchor/event_watcher.go's ContractEvent dispatch idiom: a
// channel-fed watcher with RegisterHandler-style subscription, recast
// here as direct Observer callbacks since the scheduler needs the
// return value of OnProofConfirmed (newly speculatable dependents)
// rather than a fire-and-forget handler.
package proofpipeline

// Observer receives proof outcomes for tasks it has an interest in.
// internal/scheduler.Scheduler satisfies this interface directly.
type Observer interface {
	OnProofConfirmed(taskPda string) ([]string, error)
	OnProofFailed(taskPda, reason string) error
}

// ProofPipeline is the external collaborator that generates proofs and
// reports their outcome; proof cryptography stays opaque byte strings
// with a verify callback, since this core only consumes outcomes.
type ProofPipeline interface {
	Subscribe(observer Observer)
}
