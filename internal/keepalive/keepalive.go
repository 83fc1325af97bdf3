package keepalive

import (
	"sync"
	"sync/atomic"
	"time"
)

// KeepAlive pings an idle connection every interval and reports a timeout
// when no pong arrives within timeout. Any inbound traffic counts as life.
type KeepAlive struct {
	mu        sync.Mutex
	stop      chan struct{}
	pong      chan struct{}
	timeout   time.Duration
	interval  time.Duration
	ping      func() error
	onTimeout func()
	lastSeen  atomic.Int64
}

func New(interval, timeout time.Duration, ping func() error, onTimeout func()) *KeepAlive {
	k := &KeepAlive{
		interval:  interval,
		timeout:   timeout,
		ping:      ping,
		onTimeout: onTimeout,
	}
	k.Touch()
	return k
}

func (k *KeepAlive) Start() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stop != nil || k.interval <= 0 {
		return
	}
	stop := make(chan struct{})
	k.stop = stop
	go k.loop(stop)
}

func (k *KeepAlive) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.stop != nil {
		close(k.stop)
		k.stop = nil
	}
}

// Touch records inbound traffic.
func (k *KeepAlive) Touch() {
	k.lastSeen.Store(time.Now().UnixNano())
}

func (k *KeepAlive) HandlePong() {
	k.Touch()
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.pong != nil {
		close(k.pong)
		k.pong = nil
	}
}

func (k *KeepAlive) loop(stop chan struct{}) {
	ticker := time.NewTicker(k.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if time.Since(time.Unix(0, k.lastSeen.Load())) < k.interval {
				continue
			}
			if !k.probe(stop) {
				return
			}
		}
	}
}

// probe sends one ping and waits for its pong. It returns false once the
// connection is considered dead or the keepalive was stopped.
func (k *KeepAlive) probe(stop chan struct{}) bool {
	pong := make(chan struct{})
	k.mu.Lock()
	k.pong = pong
	k.mu.Unlock()
	if err := k.ping(); err != nil {
		return false
	}
	timer := time.NewTimer(k.timeout)
	defer timer.Stop()
	select {
	case <-stop:
		return false
	case <-pong:
		return true
	case <-timer.C:
		k.onTimeout()
		return false
	}
}
