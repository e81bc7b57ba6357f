package circuitbreaker

import (
	"sync"
	"time"
)

// Registry hands out one Breaker per server address.
type Registry struct {
	mutex     sync.RWMutex
	breakers  map[string]*Breaker
	threshold int
	timeout   time.Duration
	now       func() time.Time
}

func NewRegistry(threshold int, timeout time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

func (r *Registry) Get(address string) *Breaker {
	r.mutex.RLock()
	b, exists := r.breakers[address]
	r.mutex.RUnlock()

	if exists {
		return b
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// another goroutine may have created it
	if b, exists = r.breakers[address]; exists {
		return b
	}

	b = NewBreaker(r.threshold, r.timeout)
	b.now = r.now
	r.breakers[address] = b
	return b
}

// Reset closes the breaker for address if one exists.
func (r *Registry) Reset(address string) {
	r.mutex.RLock()
	b, exists := r.breakers[address]
	r.mutex.RUnlock()

	if exists {
		b.Reset()
	}
}

// Forget drops the breaker of a server that left the pool.
func (r *Registry) Forget(address string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.breakers, address)
}

func (r *Registry) Stats() map[string]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]State, len(r.breakers))
	for address, b := range r.breakers {
		stats[address] = b.State()
	}
	return stats
}
