package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/agentchain/replaycore/internal/events"
	"github.com/agentchain/replaycore/internal/timeline"
)

// LatestAgentReputation looks up the reputation ShouldSpeculate's
// minReputationForSpeculation check compares against: the highest-seq
// agent:reputation_updated record for agentPda, queried from the
// timeline store exactly the way any other entity's history is queried
// (agentPda is stored into the TaskPda column by the projector's
// agent-registry handling). Returns ok=false if the agent has never
// been seen.
func LatestAgentReputation(store timeline.Store, agentPda string) (reputation uint32, ok bool, err error) {
	records, err := store.Query(events.Filter{
		TaskPda: agentPda,
		Types:   []string{events.TypeAgentReputationUpdated},
	})
	if err != nil {
		return 0, false, fmt.Errorf("scheduler: query agent reputation: %w", err)
	}
	if len(records) == 0 {
		return 0, false, nil
	}

	latest := records[0]
	for _, r := range records[1:] {
		if r.Seq > latest.Seq {
			latest = r
		}
	}

	var payload struct {
		Reputation uint32 `json:"reputation"`
	}
	if err := json.Unmarshal(latest.Payload, &payload); err != nil {
		return 0, false, fmt.Errorf("scheduler: decode reputation payload: %w", err)
	}
	return payload.Reputation, true, nil
}
