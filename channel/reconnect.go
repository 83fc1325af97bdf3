package channel

import (
	"sync"
	"time"

	"sutext.github.io/tether/backoff"
	"sutext.github.io/tether/xlog"
)

// Reconnector schedules Reconnect after a disconnection. It is driven by the
// contexts a Channel delivers: Disconnected arms it, Waiting and Connected
// reset it.
type Reconnector struct {
	mu      sync.Mutex
	backoff backoff.Backoff
	limit   int
	logger  *xlog.Logger
	attempt int
	timer   *time.Timer
	stopped bool
}

func NewReconnector(b backoff.Backoff, limit int, logger *xlog.Logger) *Reconnector {
	if b == nil {
		b = backoff.Default()
	}
	if logger == nil {
		logger = xlog.Default()
	}
	return &Reconnector{
		backoff: b,
		limit:   limit,
		logger:  logger,
	}
}

// Disconnected schedules reconnect unless an attempt is already pending or
// the limit is used up.
func (r *Reconnector) Disconnected(reason string, reconnect func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped || r.timer != nil {
		return
	}
	if r.limit > 0 && r.attempt >= r.limit {
		r.logger.Warn("giving up reconnecting", xlog.Int("attempts", r.attempt), xlog.Reason(reason))
		return
	}
	r.attempt++
	delay := r.backoff.Next(r.attempt)
	r.logger.Info("reconnect scheduled",
		xlog.Int("attempt", r.attempt),
		xlog.Duration("delay", delay),
		xlog.Reason(reason),
	)
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		if r.timer != timer || r.stopped {
			r.mu.Unlock()
			return
		}
		r.timer = nil
		r.mu.Unlock()
		reconnect()
	})
	r.timer = timer
}

// Settled resets the attempt counter once a connection is open.
func (r *Reconnector) Settled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempt = 0
	r.cancel()
}

func (r *Reconnector) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	r.cancel()
}

func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempt
}

func (r *Reconnector) cancel() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
