package scheduler

import (
	"testing"

	"github.com/agentchain/replaycore/internal/depgraph"
	"github.com/agentchain/replaycore/internal/ledger"
)

func newFixture(cfg SchedulerConfig) (*Scheduler, *depgraph.Graph, *ledger.CommitmentLedger) {
	g := depgraph.New()
	l := ledger.New()
	return New(g, l, cfg), g, l
}

func TestShouldSpeculate_Disabled(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.EnableSpeculation = false
	s, g, _ := newFixture(cfg)
	g.AddTask("t1")

	d := s.ShouldSpeculate("t1", SpeculateOptions{})
	if d.Allowed || d.Reason != ReasonDisabled {
		t.Fatalf("expected disabled, got %+v", d)
	}
}

func TestShouldSpeculate_DepthLimit(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.MaxSpeculationDepth = 1
	s, g, _ := newFixture(cfg)
	g.AddTask("root")
	g.AddTaskWithParent("child", "root", depgraph.DependencyData)

	d := s.ShouldSpeculate("child", SpeculateOptions{})
	if d.Allowed || d.Reason != ReasonDepthLimit {
		t.Fatalf("expected depth_limit, got %+v", d)
	}
}

func TestShouldSpeculate_StakeLimit(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.MaxSpeculativeStake = 100
	s, g, l := newFixture(cfg)
	g.AddTask("t1")
	l.CreateCommitment(ledger.Commitment{TaskPda: "existing", StakeLamports: 90, Status: ledger.StatusExecuting})

	d := s.ShouldSpeculate("t1", SpeculateOptions{TaskStake: 20})
	if d.Allowed || d.Reason != ReasonStakeLimit {
		t.Fatalf("expected stake_limit, got %+v", d)
	}
}

func TestShouldSpeculate_PrivateSpeculationDisabled(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.AllowPrivateSpeculation = false
	s, g, _ := newFixture(cfg)
	g.AddTask("t1")

	d := s.ShouldSpeculate("t1", SpeculateOptions{IsPrivate: true})
	if d.Allowed || d.Reason != ReasonPrivateSpeculationDisabled {
		t.Fatalf("expected private_speculation_disabled, got %+v", d)
	}
}

func TestShouldSpeculate_LowReputation(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.MinReputationForSpeculation = 50
	s, g, _ := newFixture(cfg)
	g.AddTask("t1")

	d := s.ShouldSpeculate("t1", SpeculateOptions{AgentReputation: 10})
	if d.Allowed || d.Reason != ReasonLowReputation {
		t.Fatalf("expected low_reputation, got %+v", d)
	}
}

func TestShouldSpeculate_DependencyTypeNotSpeculatable(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.SpeculatableDependencyTypes = map[depgraph.DependencyType]bool{depgraph.DependencyData: true}
	s, g, _ := newFixture(cfg)
	g.AddTask("root")
	g.AddTaskWithParent("child", "root", depgraph.DependencyControl)

	d := s.ShouldSpeculate("child", SpeculateOptions{})
	if d.Allowed || d.Reason != ReasonDependencyTypeNotSpeculatable {
		t.Fatalf("expected dependency_type_not_speculatable, got %+v", d)
	}
}

func TestShouldSpeculate_Allowed(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	s, g, _ := newFixture(cfg)
	g.AddTask("t1")

	d := s.ShouldSpeculate("t1", SpeculateOptions{TaskStake: 10, AgentReputation: 100})
	if !d.Allowed {
		t.Fatalf("expected allowed, got %+v", d)
	}
}

func TestRollbackRateExceeded_AutoDisables(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.MaxRollbackRatePercent = 50
	cfg.RollbackWindowSize = 4
	s, g, l := newFixture(cfg)
	g.AddTask("t1")
	l.CreateCommitment(ledger.Commitment{TaskPda: "t1", Status: ledger.StatusExecuting})

	// Three failures, no confirms: a 100% rollback rate breaches 50%.
	if err := s.OnProofFailed("t1", "timeout"); err != nil {
		t.Fatalf("OnProofFailed: %v", err)
	}
	l.CreateCommitment(ledger.Commitment{TaskPda: "t1", Status: ledger.StatusExecuting})
	if err := s.OnProofFailed("t1", "timeout"); err != nil {
		t.Fatalf("OnProofFailed: %v", err)
	}
	l.CreateCommitment(ledger.Commitment{TaskPda: "t1", Status: ledger.StatusExecuting})
	if err := s.OnProofFailed("t1", "timeout"); err != nil {
		t.Fatalf("OnProofFailed: %v", err)
	}

	d := s.ShouldSpeculate("t1", SpeculateOptions{})
	if d.Allowed || d.Reason != ReasonRollbackRateExceeded {
		t.Fatalf("expected rollback_rate_exceeded, got %+v", d)
	}

	// Subsequent calls report disabled, not rollback_rate_exceeded again.
	d2 := s.ShouldSpeculate("t1", SpeculateOptions{})
	if d2.Allowed || d2.Reason != ReasonDisabled {
		t.Fatalf("expected disabled after auto-disable, got %+v", d2)
	}

	s.EnableSpeculation()
	d3 := s.ShouldSpeculate("t1", SpeculateOptions{})
	if !d3.Allowed {
		t.Fatalf("expected allowed after manual re-enable, got %+v", d3)
	}
}

func TestOnProofFailed_CascadeDeferredUntilTick(t *testing.T) {
	s, g, l := newFixture(DefaultSchedulerConfig())
	g.AddTask("parent")
	g.AddTaskWithParent("child", "parent", depgraph.DependencyData)
	l.CreateCommitment(ledger.Commitment{TaskPda: "parent", Status: ledger.StatusExecuting})
	l.CreateCommitment(ledger.Commitment{TaskPda: "child", Status: ledger.StatusPending})
	l.AddDependent("parent", "child")

	if err := s.OnProofFailed("parent", "proof_invalid"); err != nil {
		t.Fatalf("OnProofFailed: %v", err)
	}

	c, _ := l.GetByTask("child")
	if c.Status != ledger.StatusPending {
		t.Fatalf("expected child still Pending before Tick, got %s", c.Status)
	}

	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	c, _ = l.GetByTask("child")
	if c.Status != ledger.StatusRolledBack {
		t.Fatalf("expected child RolledBack after Tick, got %s", c.Status)
	}
}

func TestOnProofConfirmed_ReturnsNewlySpeculatableDependents(t *testing.T) {
	s, g, l := newFixture(DefaultSchedulerConfig())
	g.AddTask("parent")
	g.AddTaskWithParent("child", "parent", depgraph.DependencyData)
	l.CreateCommitment(ledger.Commitment{TaskPda: "parent", Status: ledger.StatusExecuting})
	l.CreateCommitment(ledger.Commitment{TaskPda: "child", Status: ledger.StatusPending})

	ready, err := s.OnProofConfirmed("parent")
	if err != nil {
		t.Fatalf("OnProofConfirmed: %v", err)
	}
	if len(ready) != 1 || ready[0] != "child" {
		t.Fatalf("expected [child] newly speculatable, got %+v", ready)
	}

	m := s.Metrics()
	if m.SpeculativeHits != 1 {
		t.Errorf("expected 1 hit, got %d", m.SpeculativeHits)
	}
}

// Universal property 7: speculativeHits + speculativeMisses <=
// speculativeExecutions, and hitRate stays within [0, 100].
func TestMetrics_HitRateBound(t *testing.T) {
	s, g, l := newFixture(DefaultSchedulerConfig())
	g.AddTask("parent")
	g.AddTaskWithParent("childA", "parent", depgraph.DependencyData)
	g.AddTaskWithParent("childB", "parent", depgraph.DependencyData)
	l.CreateCommitment(ledger.Commitment{TaskPda: "parent", Status: ledger.StatusExecuting})
	l.CreateCommitment(ledger.Commitment{TaskPda: "childA", Status: ledger.StatusPending})
	l.CreateCommitment(ledger.Commitment{TaskPda: "childB", Status: ledger.StatusPending})

	if err := s.StartSpeculation("parent"); err != nil {
		t.Fatalf("StartSpeculation(parent): %v", err)
	}
	if err := s.StartSpeculation("childA"); err != nil {
		t.Fatalf("StartSpeculation(childA): %v", err)
	}
	if _, err := s.OnProofConfirmed("parent"); err != nil {
		t.Fatalf("OnProofConfirmed: %v", err)
	}
	if err := s.OnProofFailed("childA", "timeout"); err != nil {
		t.Fatalf("OnProofFailed: %v", err)
	}
	if err := s.Tick(); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	m := s.Metrics()
	if m.SpeculativeHits+m.SpeculativeMisses > m.SpeculativeExecutions {
		t.Fatalf("hits+misses %d exceeds executions %d", m.SpeculativeHits+m.SpeculativeMisses, m.SpeculativeExecutions)
	}
	if m.HitRate < 0 || m.HitRate > 100 {
		t.Fatalf("hitRate %f out of [0,100] bound", m.HitRate)
	}
}
