package booking

import (
	"context"
	"math/rand"
	"sync"
)

// SettlementDecider decides the outcome of the simulated payment step.
// The simulation stands in for a real payment provider; isolating it
// behind an interface lets tests force either outcome.
type SettlementDecider interface {
	Approve(ctx context.Context, amountCents int64) bool
}

// FixedRateDecider approves a fixed fraction of settlements at random.
type FixedRateDecider struct {
	rate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewFixedRateDecider creates a decider approving with the given
// probability. Rates outside [0, 1] are clamped.
func NewFixedRateDecider(rate float64, seed int64) *FixedRateDecider {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return &FixedRateDecider{
		rate: rate,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Approve rolls the dice.
func (d *FixedRateDecider) Approve(_ context.Context, _ int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Float64() < d.rate
}

// StaticDecider always returns the configured outcome. Test helper.
type StaticDecider struct {
	Outcome bool
}

// Approve returns the fixed outcome.
func (d StaticDecider) Approve(_ context.Context, _ int64) bool {
	return d.Outcome
}
