package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Requests pass through
	StateOpen                  // Requests are rejected
	StateHalfOpen              // A single trial request is in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker guards one server address.
type Breaker struct {
	mutex            sync.Mutex
	state            State
	failures         int
	openedAt         time.Time
	trialInFlight    bool
	failureThreshold int
	resetTimeout     time.Duration
	now              func() time.Time
}

func NewBreaker(threshold int, resetTimeout time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	return &Breaker{
		state:            StateClosed,
		failureThreshold: threshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// Allow reports whether a request may be sent. Once the reset timeout has
// elapsed an open breaker lets exactly one trial request through.
func (b *Breaker) Allow() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.resetTimeout {
			return false
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		return true
	case StateHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return true
	}
}

// RecordFailure counts a failed request and reports whether it opened the breaker.
func (b *Breaker) RecordFailure() (opened bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.failures++
	b.trialInFlight = false

	if b.state == StateHalfOpen || (b.state == StateClosed && b.failures >= b.failureThreshold) {
		b.state = StateOpen
		b.openedAt = b.now()
		return true
	}
	return false
}

// RecordSuccess closes the breaker and reports whether it was not closed before.
func (b *Breaker) RecordSuccess() (recovered bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	recovered = b.state != StateClosed
	b.reset()
	return recovered
}

// Reset closes the breaker, e.g. after an active health probe succeeded.
func (b *Breaker) Reset() {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.reset()
}

func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

func (b *Breaker) Failures() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.failures
}

func (b *Breaker) reset() {
	b.state = StateClosed
	b.failures = 0
	b.trialInFlight = false
}
