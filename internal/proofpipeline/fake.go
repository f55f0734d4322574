package proofpipeline

import "sync"

// FakeProofPipeline is a test double that lets tests drive proof
// outcomes directly, the way FakeChainSource drives backfill pages.
type FakeProofPipeline struct {
	mu        sync.Mutex
	observers []Observer
}

// NewFake returns an empty FakeProofPipeline.
func NewFake() *FakeProofPipeline {
	return &FakeProofPipeline{}
}

func (f *FakeProofPipeline) Subscribe(observer Observer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observers = append(f.observers, observer)
}

// SimulateConfirmed fans a proof-confirmed outcome out to every
// subscribed observer, collecting the newly-speculatable dependents
// each one reports.
func (f *FakeProofPipeline) SimulateConfirmed(taskPda string) ([]string, error) {
	f.mu.Lock()
	observers := append([]Observer(nil), f.observers...)
	f.mu.Unlock()

	var all []string
	for _, o := range observers {
		ready, err := o.OnProofConfirmed(taskPda)
		if err != nil {
			return nil, err
		}
		all = append(all, ready...)
	}
	return all, nil
}

// SimulateFailed fans a proof-failed outcome out to every subscribed
// observer.
func (f *FakeProofPipeline) SimulateFailed(taskPda, reason string) error {
	f.mu.Lock()
	observers := append([]Observer(nil), f.observers...)
	f.mu.Unlock()

	for _, o := range observers {
		if err := o.OnProofFailed(taskPda, reason); err != nil {
			return err
		}
	}
	return nil
}
