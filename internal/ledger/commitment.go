// Copyright 2025 Certen Protocol

package ledger

// Status is a commitment's lifecycle state.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusExecuting  Status = "Executing"
	StatusConfirmed  Status = "Confirmed"
	StatusFailed     Status = "Failed"
	StatusRolledBack Status = "RolledBack"
)

// Commitment is a per-task stake commitment.
type Commitment struct {
	TaskPda              string
	AgentPda             string
	ResultHashCommitment []byte
	StakeLamports        uint64
	Status               Status
	Dependents           map[string]struct{}
	CreatedAtMs          uint64
	SourceTaskPda        string
}

// Stats is the ledger-wide summary returned by GetStats.
type Stats struct {
	Total            int
	TotalStakeAtRisk uint64
	ByStatus         map[Status]int
}
