package authority

import (
	"errors"
	"sync"
	"time"

	"ticket-checkin/internal/status"
)

// Breaker is a small circuit breaker guarding calls to the verification
// authority. A dead authority trips the breaker open so verification
// dialogs fail fast instead of queueing timeouts behind each other.
type Breaker struct {
	maxRequests  uint32
	interval     time.Duration
	timeout      time.Duration
	failureRatio float64
	minRequests  uint32

	mu     sync.Mutex
	state  breakerState
	counts breakerCounts
	expiry time.Time
}

type breakerState int

const (
	stateClosed breakerState = iota
	stateHalfOpen
	stateOpen
)

type breakerCounts struct {
	requests             uint32
	totalSuccesses       uint32
	totalFailures        uint32
	consecutiveSuccesses uint32
	consecutiveFailures  uint32
}

// ErrBreakerOpen is returned while the breaker refuses calls. It counts as
// unreachable for callers: retryable once the authority recovers.
var ErrBreakerOpen = errors.New("authority: circuit breaker open")

func NewBreaker() *Breaker {
	return &Breaker{
		maxRequests:  5,
		interval:     60 * time.Second,
		timeout:      30 * time.Second,
		failureRatio: 0.6,
		minRequests:  10,
		state:        stateClosed,
	}
}

// Do runs fn under the breaker. Only transport failures feed the trip
// counter — a NotFound or a state conflict is a healthy authority answer.
// fn's error is returned unchanged.
func (b *Breaker) Do(fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}
	err := fn()
	b.after(!errors.Is(err, status.ErrUnreachable))
	return err
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.advance(now)

	switch {
	case b.state == stateOpen:
		return ErrBreakerOpen
	case b.state == stateHalfOpen && b.counts.requests >= b.maxRequests:
		return ErrBreakerOpen
	}

	b.counts.requests++
	return nil
}

func (b *Breaker) after(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.advance(time.Now())

	if success {
		b.counts.totalSuccesses++
		b.counts.consecutiveSuccesses++
		b.counts.consecutiveFailures = 0
		if b.state == stateHalfOpen {
			b.state = stateClosed
			b.counts = breakerCounts{}
			b.expiry = time.Now().Add(b.interval)
		}
		return
	}

	b.counts.totalFailures++
	b.counts.consecutiveFailures++
	b.counts.consecutiveSuccesses = 0
	if b.readyToTrip() {
		b.state = stateOpen
		b.counts = breakerCounts{}
		b.expiry = time.Now().Add(b.timeout)
	}
}

func (b *Breaker) readyToTrip() bool {
	if b.state == stateHalfOpen {
		return true
	}
	return b.counts.requests >= b.minRequests &&
		float64(b.counts.totalFailures)/float64(b.counts.requests) >= b.failureRatio
}

// advance moves the breaker between generations: open trips half-open after
// the timeout, closed resets its window after the interval.
func (b *Breaker) advance(now time.Time) {
	switch b.state {
	case stateClosed:
		if !b.expiry.IsZero() && b.expiry.Before(now) {
			b.counts = breakerCounts{}
			b.expiry = now.Add(b.interval)
		}
	case stateOpen:
		if b.expiry.Before(now) {
			b.state = stateHalfOpen
			b.counts = breakerCounts{}
			b.expiry = time.Time{}
		}
	}
}
