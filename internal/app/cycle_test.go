package app

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"drivesync/internal/ds"
)

func TestCycleStatus(t *testing.T) {
	tests := []struct {
		name  string
		stats ds.CycleStats
		err   error
		want  string
	}{
		{name: "clean cycle", stats: ds.CycleStats{Downloaded: 3}, want: CycleSuccess},
		{name: "nothing to do", want: CycleSuccess},
		{name: "item failures", stats: ds.CycleStats{Uploaded: 1, Failed: 2}, want: CyclePartial},
		{name: "aborted", err: ds.Fatal(errors.New("invalid_grant")), want: CycleFailed},
		{name: "listing failed", err: errors.New("listing remote folder root: 500"), want: CycleFailed},
		{name: "interrupted", err: fmt.Errorf("remote-to-local pass: %w", context.Canceled), want: CycleCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cycleStatus(tt.stats, tt.err); got != tt.want {
				t.Errorf("cycleStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}
