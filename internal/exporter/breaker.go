package exporter

import (
	"sync"
	"time"
)

// Breaker trips when consecutive export runs fail for service-level
// reasons (timeouts, unknown tool errors). An open breaker means the
// source platform or the export tool is unhealthy, so the scheduler stops
// burning channel slots until the reset window passes.
//
// Channel-specific failures (forbidden, not found) never count against
// the breaker; those are handled by the denylist.
type Breaker struct {
	mu sync.Mutex

	threshold int
	reset     time.Duration
	probes    int // exports allowed while testing recovery

	failures    int
	lastFailure time.Time
	lastProbe   time.Time
	state       breakerState
	probeCount  int
}

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerProbing
)

func NewBreaker(threshold int, reset time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 3
	}
	if reset < time.Second {
		reset = time.Minute
	}
	return &Breaker{threshold: threshold, reset: reset, probes: 1}
}

// Allow reports whether the next export run may proceed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if time.Since(b.lastFailure) > b.reset {
			b.state = breakerProbing
			b.probeCount = 1
			b.lastProbe = time.Now()
			return true
		}
		return false
	case breakerProbing:
		if b.probeCount < b.probes {
			b.probeCount++
			b.lastProbe = time.Now()
			return true
		}
		// a probe whose outcome was never recorded must not pin the
		// breaker in probing forever; re-arm after another window
		if time.Since(b.lastProbe) > b.reset {
			b.probeCount = 1
			b.lastProbe = time.Now()
			return true
		}
		return false
	}
	return false
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == breakerProbing {
		b.state = breakerClosed
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = time.Now()

	if b.state == breakerProbing || b.failures >= b.threshold {
		b.state = breakerOpen
		b.probeCount = 0
	}
}

func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		return "open"
	case breakerProbing:
		return "probing"
	default:
		return "closed"
	}
}
