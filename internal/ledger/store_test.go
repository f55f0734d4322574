package ledger

import (
	"errors"
	"testing"
)

func TestCreateAndGetCommitment(t *testing.T) {
	l := New()
	l.CreateCommitment(Commitment{TaskPda: "t1", StakeLamports: 100, Status: StatusPending})

	c, err := l.GetByTask("t1")
	if err != nil {
		t.Fatalf("GetByTask: %v", err)
	}
	if c.StakeLamports != 100 || c.Status != StatusPending {
		t.Fatalf("unexpected commitment: %+v", c)
	}
}

func TestGetByTask_NotFound(t *testing.T) {
	l := New()
	if _, err := l.GetByTask("ghost"); !errors.Is(err, ErrCommitmentNotFound) {
		t.Fatalf("expected ErrCommitmentNotFound, got %v", err)
	}
}

func TestMarkFailed_CascadesRollbackToDependents(t *testing.T) {
	l := New()
	l.CreateCommitment(Commitment{TaskPda: "parent", StakeLamports: 10, Status: StatusExecuting})
	l.CreateCommitment(Commitment{TaskPda: "child1", StakeLamports: 5, Status: StatusPending})
	l.CreateCommitment(Commitment{TaskPda: "child2", StakeLamports: 5, Status: StatusExecuting})
	l.CreateCommitment(Commitment{TaskPda: "grandchild", StakeLamports: 3, Status: StatusPending})

	if err := l.AddDependent("parent", "child1"); err != nil {
		t.Fatalf("AddDependent: %v", err)
	}
	if err := l.AddDependent("parent", "child2"); err != nil {
		t.Fatalf("AddDependent: %v", err)
	}
	if err := l.AddDependent("child1", "grandchild"); err != nil {
		t.Fatalf("AddDependent: %v", err)
	}

	if err := l.MarkFailed("parent"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	parent, _ := l.GetByTask("parent")
	if parent.Status != StatusFailed {
		t.Errorf("expected parent Failed, got %s", parent.Status)
	}
	for _, pda := range []string{"child1", "child2", "grandchild"} {
		c, err := l.GetByTask(pda)
		if err != nil {
			t.Fatalf("GetByTask %s: %v", pda, err)
		}
		if c.Status != StatusRolledBack {
			t.Errorf("expected %s RolledBack, got %s", pda, c.Status)
		}
	}
}

func TestMarkFailed_PreservesTerminalDependentStates(t *testing.T) {
	l := New()
	l.CreateCommitment(Commitment{TaskPda: "parent", Status: StatusExecuting})
	l.CreateCommitment(Commitment{TaskPda: "confirmedChild", Status: StatusConfirmed})
	l.AddDependent("parent", "confirmedChild")

	if err := l.MarkFailed("parent"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	c, _ := l.GetByTask("confirmedChild")
	if c.Status != StatusConfirmed {
		t.Errorf("expected confirmed dependent to stay Confirmed, got %s", c.Status)
	}
}

func TestGetStats_StakeAtRiskOnlyCountsPendingAndExecuting(t *testing.T) {
	l := New()
	l.CreateCommitment(Commitment{TaskPda: "a", StakeLamports: 100, Status: StatusPending})
	l.CreateCommitment(Commitment{TaskPda: "b", StakeLamports: 50, Status: StatusExecuting})
	l.CreateCommitment(Commitment{TaskPda: "c", StakeLamports: 25, Status: StatusConfirmed})
	l.CreateCommitment(Commitment{TaskPda: "d", StakeLamports: 10, Status: StatusRolledBack})

	stats := l.GetStats()
	if stats.Total != 4 {
		t.Errorf("expected total 4, got %d", stats.Total)
	}
	if stats.TotalStakeAtRisk != 150 {
		t.Errorf("expected stake at risk 150, got %d", stats.TotalStakeAtRisk)
	}
	if stats.ByStatus[StatusConfirmed] != 1 {
		t.Errorf("expected 1 confirmed, got %d", stats.ByStatus[StatusConfirmed])
	}
}

func TestMarkConfirmed(t *testing.T) {
	l := New()
	l.CreateCommitment(Commitment{TaskPda: "t1", Status: StatusExecuting})
	if err := l.MarkConfirmed("t1"); err != nil {
		t.Fatalf("MarkConfirmed: %v", err)
	}
	c, _ := l.GetByTask("t1")
	if c.Status != StatusConfirmed {
		t.Errorf("expected Confirmed, got %s", c.Status)
	}
}
