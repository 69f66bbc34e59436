// Package backoff paces reconnect attempts for the realtime channel client.
package backoff

import (
	"math"
	"math/rand"
	"time"
)

// Policy defines how the delay between reconnect attempts grows.
//
// A Factor of 1 with zero Jitter degenerates to a fixed interval, which is
// the default reconnect behavior; exponential growth is opt-in.
type Policy struct {
	// Initial is the delay after the first failure.
	Initial time.Duration
	// Max caps the computed delay.
	Max time.Duration
	// Factor is the multiplier applied per attempt. Values <= 1 keep the
	// delay constant.
	Factor float64
	// Jitter is the randomization fraction (0.0 to 1.0) added on top of the
	// computed delay.
	Jitter float64
}

// Fixed returns a policy that always waits the same interval between
// attempts. This mirrors the retry-on-a-timer behavior the channel client
// defaults to.
func Fixed(interval time.Duration) Policy {
	return Policy{Initial: interval, Max: interval, Factor: 1}
}

// Exponential returns a doubling policy with 10% jitter.
func Exponential(initial, max time.Duration) Policy {
	return Policy{Initial: initial, Max: max, Factor: 2, Jitter: 0.1}
}

// Delay computes the wait before the given attempt. Attempts start at 1.
func (p Policy) Delay(attempt int) time.Duration {
	return p.DelayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not require cryptographic randomness
}

// DelayWithRand computes the wait using a caller-supplied random value in
// [0.0, 1.0). Used by tests to get deterministic results.
func (p Policy) DelayWithRand(attempt int, randomValue float64) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = time.Second
	}
	factor := p.Factor
	if factor < 1 {
		factor = 1
	}

	exp := math.Max(float64(attempt-1), 0)
	base := float64(initial) * math.Pow(factor, exp)
	jitter := base * p.Jitter * randomValue

	total := base + jitter
	if p.Max > 0 && total > float64(p.Max) {
		total = float64(p.Max)
	}
	return time.Duration(total)
}
