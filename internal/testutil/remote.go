package testutil

import (
	"drivesync/internal/remote"
)

// NewMemoryRemote creates a MemoryStore driven by clock with sequential
// item IDs, so test failures name stable IDs.
func NewMemoryRemote(clock *StubClock) *remote.MemoryStore {
	return remote.NewMemoryStore(clock, NewStubIDGenerator("item"))
}
