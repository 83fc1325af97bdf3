// Package backoff computes retry delays for reconnect scheduling.
//
// A Backoff maps the 1-based attempt number to the delay to wait before
// that attempt. Strategies are values and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

type Backoff interface {
	Next(attempt int) time.Duration
}

// Default is exponential from one second, doubling, capped at thirty seconds.
func Default() Backoff {
	return Capped(Exponential(time.Second, 2), 30*time.Second)
}

func Constant(d time.Duration) Backoff {
	return constant{d: d}
}

// Linear waits base + step*(attempt-1).
func Linear(base, step time.Duration) Backoff {
	return linear{base: base, step: step}
}

// Exponential waits base * factor^(attempt-1).
func Exponential(base time.Duration, factor float64) Backoff {
	return exponential{base: base, factor: factor}
}

// Random waits a uniformly distributed duration in [min, max).
func Random(min, max time.Duration) Backoff {
	return random{min: min, max: max}
}

// Capped never returns more than max.
func Capped(b Backoff, max time.Duration) Backoff {
	return capped{inner: b, max: max}
}

// Jitter spreads each delay of b by up to ±fraction of its value so that many
// clients dropped by the same outage do not reconnect in lockstep.
func Jitter(b Backoff, fraction float64) Backoff {
	return jitter{inner: b, fraction: fraction}
}

type constant struct{ d time.Duration }

func (b constant) Next(int) time.Duration { return b.d }

type linear struct{ base, step time.Duration }

func (b linear) Next(attempt int) time.Duration {
	return b.base + time.Duration(max(attempt-1, 0))*b.step
}

type exponential struct {
	base   time.Duration
	factor float64
}

func (b exponential) Next(attempt int) time.Duration {
	d := float64(b.base) * math.Pow(b.factor, float64(max(attempt-1, 0)))
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

type random struct{ min, max time.Duration }

func (b random) Next(int) time.Duration {
	if b.max <= b.min {
		return b.min
	}
	return b.min + time.Duration(rand.Int64N(int64(b.max-b.min)))
}

type capped struct {
	inner Backoff
	max   time.Duration
}

func (b capped) Next(attempt int) time.Duration {
	return min(b.inner.Next(attempt), b.max)
}

type jitter struct {
	inner    Backoff
	fraction float64
}

func (b jitter) Next(attempt int) time.Duration {
	d := b.inner.Next(attempt)
	spread := float64(d) * b.fraction * (2*rand.Float64() - 1)
	return max(d+time.Duration(spread), 0)
}
