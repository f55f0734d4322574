// Copyright 2025 Certen Protocol

package ledger

import (
	"fmt"
	"sync"
)

// CommitmentLedger maps taskPda -> Commitment, with cascade rollback
// over the dependents graph each commitment carries. Single
// load/mutate/save discipline, protected by an explicit mutex since the
// scheduler calls in from proof-pipeline callbacks rather than a single
// commit thread.
type CommitmentLedger struct {
	mu          sync.Mutex
	commitments map[string]*Commitment
}

// New returns an empty commitment ledger.
func New() *CommitmentLedger {
	return &CommitmentLedger{commitments: map[string]*Commitment{}}
}

// CreateCommitment records a new commitment for taskPda. Re-creating an
// existing taskPda overwrites it.
func (l *CommitmentLedger) CreateCommitment(c Commitment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c.Dependents == nil {
		c.Dependents = map[string]struct{}{}
	}
	cp := c
	l.commitments[c.TaskPda] = &cp
}

// UpdateStatus sets the status of an existing commitment.
func (l *CommitmentLedger) UpdateStatus(taskPda string, status Status) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.commitments[taskPda]
	if !ok {
		return fmt.Errorf("ledger: update status %s: %w", taskPda, ErrCommitmentNotFound)
	}
	c.Status = status
	return nil
}

// AddDependent records child as a dependent of parent, so a future
// markFailed(parent) cascades a rollback onto child.
func (l *CommitmentLedger) AddDependent(parent, child string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.commitments[parent]
	if !ok {
		return fmt.Errorf("ledger: add dependent %s -> %s: %w", parent, child, ErrCommitmentNotFound)
	}
	if _, ok := l.commitments[child]; !ok {
		return fmt.Errorf("ledger: add dependent %s -> %s: %w", parent, child, ErrCommitmentNotFound)
	}
	p.Dependents[child] = struct{}{}
	return nil
}

// MarkConfirmed transitions taskPda's commitment to Confirmed.
func (l *CommitmentLedger) MarkConfirmed(taskPda string) error {
	return l.UpdateStatus(taskPda, StatusConfirmed)
}

// MarkFailed transitions taskPda's commitment to Failed and cascades a
// rollback onto every descendant in its dependents graph.
func (l *CommitmentLedger) MarkFailed(taskPda string) error {
	l.mu.Lock()
	c, ok := l.commitments[taskPda]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("ledger: mark failed %s: %w", taskPda, ErrCommitmentNotFound)
	}
	c.Status = StatusFailed
	dependents := make([]string, 0, len(c.Dependents))
	for d := range c.Dependents {
		dependents = append(dependents, d)
	}
	l.mu.Unlock()

	for _, d := range dependents {
		if err := l.RollbackTask(d); err != nil && err != ErrCommitmentNotFound {
			return err
		}
	}
	return nil
}

// RollbackTask transitions taskPda from Pending|Executing to
// RolledBack and recurses into its own dependents. Terminal states
// (Confirmed, Failed, RolledBack) are left unchanged, and recursion
// does not re-enter an already-rolled-back subtree.
func (l *CommitmentLedger) RollbackTask(taskPda string) error {
	l.mu.Lock()
	c, ok := l.commitments[taskPda]
	if !ok {
		l.mu.Unlock()
		return fmt.Errorf("ledger: rollback %s: %w", taskPda, ErrCommitmentNotFound)
	}
	if c.Status != StatusPending && c.Status != StatusExecuting {
		l.mu.Unlock()
		return nil
	}
	c.Status = StatusRolledBack
	dependents := make([]string, 0, len(c.Dependents))
	for d := range c.Dependents {
		dependents = append(dependents, d)
	}
	l.mu.Unlock()

	for _, d := range dependents {
		if err := l.RollbackTask(d); err != nil && err != ErrCommitmentNotFound {
			return err
		}
	}
	return nil
}

// GetByTask returns the commitment for taskPda, or ErrCommitmentNotFound.
func (l *CommitmentLedger) GetByTask(taskPda string) (Commitment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.commitments[taskPda]
	if !ok {
		return Commitment{}, fmt.Errorf("ledger: get %s: %w", taskPda, ErrCommitmentNotFound)
	}
	return *c, nil
}

// GetStats summarizes the ledger: total commitments, stake at risk
// (sum of stakeLamports over Pending|Executing commitments), and a
// per-status count breakdown.
func (l *CommitmentLedger) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats := Stats{ByStatus: map[Status]int{}}
	for _, c := range l.commitments {
		stats.Total++
		stats.ByStatus[c.Status]++
		if c.Status == StatusPending || c.Status == StatusExecuting {
			stats.TotalStakeAtRisk += c.StakeLamports
		}
	}
	return stats
}
