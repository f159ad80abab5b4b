package app

import (
	"context"
	"errors"

	"drivesync/internal/ds"
)

// Cycle ledger statuses. A cycle that ran to the end but had per-item
// failures is "partial"; those items are retried next cycle.
const (
	CycleSuccess   = "success"
	CyclePartial   = "partial"
	CycleFailed    = "failed"
	CycleCancelled = "cancelled"
)

// cycleStatus maps the outcome of RunCycle to its ledger status.
func cycleStatus(stats ds.CycleStats, err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return CycleCancelled
	case err != nil:
		return CycleFailed
	case stats.Failed > 0:
		return CyclePartial
	default:
		return CycleSuccess
	}
}
