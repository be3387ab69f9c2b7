// Package simulation holds the knobs that stand in for a real payment network:
// how long settlement takes and whether it succeeds.
package simulation

import (
	"context"
	"math/rand/v2"
	"time"
)

// Delay is the time a worker spends "talking to the network". In test mode
// the Fixed value is used; otherwise a uniform draw from [Min, Max].
type Delay struct {
	TestMode bool
	Fixed    time.Duration
	Min      time.Duration
	Max      time.Duration
}

func (d Delay) Next() time.Duration {
	if d.TestMode {
		return d.Fixed
	}
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + rand.N(d.Max-d.Min+1)
}

// Sleep waits for Next() or until ctx is done.
func (d Delay) Sleep(ctx context.Context) error {
	wait := d.Next()
	if wait <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Chance reports true with probability p.
func Chance(p float64) bool {
	return rand.Float64() < p
}
