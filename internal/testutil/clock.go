package testutil

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Epoch is the instant FixedClock starts at.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// StubClock is a ds.Clock that only moves when told to.
type StubClock struct {
	unixNano atomic.Int64
}

func NewStubClock(t time.Time) *StubClock {
	c := &StubClock{}
	c.Set(t)
	return c
}

// FixedClock returns a StubClock at Epoch.
func FixedClock() *StubClock { return NewStubClock(Epoch) }

func (c *StubClock) Now() time.Time {
	return time.Unix(0, c.unixNano.Load()).UTC()
}

func (c *StubClock) Set(t time.Time) { c.unixNano.Store(t.UnixNano()) }

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) { c.unixNano.Add(int64(d)) }

// StubIDGenerator hands out "<prefix>-1", "<prefix>-2", ... so that test
// failures name stable IDs.
type StubIDGenerator struct {
	prefix string
	n      atomic.Int64
}

func NewStubIDGenerator(prefix string) *StubIDGenerator {
	return &StubIDGenerator{prefix: prefix}
}

func (g *StubIDGenerator) New() string {
	return g.prefix + "-" + strconv.FormatInt(g.n.Add(1), 10)
}
