// Copyright 2025 Certen Protocol
//
// Package alert delivers anomaly.Record values to an operator-facing
// sink. Grounded on pkg/database/client.go's connection-pool
// construction and pkg/database/repository_anchor.go's insert-row
// idiom, generalized from anchor records to anomaly records.
package alert

import (
	"context"

	"github.com/agentchain/replaycore/internal/anomaly"
)

// Sink delivers an anomaly to wherever operators watch for incidents.
type Sink interface {
	Emit(ctx context.Context, a anomaly.Record) error
}
