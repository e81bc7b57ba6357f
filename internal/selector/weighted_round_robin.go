package selector

import (
	"sync"

	"github.com/angeloszaimis/serverpool/internal/backend"
)

// WeightedRoundRobin implements smooth weighted round-robin over healthy servers.
// Uses the Nginx algorithm: each server accumulates its weight into its
// current weight per selection, the highest current value is chosen, then
// reduced by the sum of all weights.
//
// A server's weight is its capacity; servers without one weigh 1.
type WeightedRoundRobin struct {
	mutex    sync.Mutex
	registry registry
}

func NewWeightedRoundRobin() *WeightedRoundRobin {
	return &WeightedRoundRobin{}
}

func (w *WeightedRoundRobin) Register(server *backend.Server) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.registry.add(server)
}

func (w *WeightedRoundRobin) Deregister(address string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.registry.remove(address)
}

func (w *WeightedRoundRobin) Clear() []*backend.Server {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.registry.reset()
}

// Acquire picks the healthy server with the highest accumulated weight.
func (w *WeightedRoundRobin) Acquire() (*backend.Server, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.registry.size() == 0 {
		return nil, ErrEmpty
	}

	totalWeight := 0
	var chosen *backend.Server
	chosenWeight := 0

	for _, s := range w.registry.servers {
		weight := weightOf(s)
		if !s.IsHealthy() || weight <= 0 {
			continue
		}

		current := s.CurrentWeight() + weight
		s.SetCurrentWeight(current)
		totalWeight += weight

		if chosen == nil || current > chosenWeight {
			chosen = s
			chosenWeight = current
		}
	}

	if chosen == nil {
		return nil, ErrNoHealthyServer
	}

	chosen.SetCurrentWeight(chosenWeight - totalWeight)
	return chosen, nil
}

// Release is a no-op; selection depends only on weights.
func (w *WeightedRoundRobin) Release(*backend.Server) {}

func (w *WeightedRoundRobin) Servers() []*backend.Server {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.registry.snapshot()
}

func (w *WeightedRoundRobin) Len() int {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.registry.size()
}

func (w *WeightedRoundRobin) Kind() Kind {
	return KindWeightedRoundRobin
}

// weightOf is the configured capacity, or 1 when none was set. A server built
// with NewWithCapacity(addr, 0) weighs 0 and is never picked, whereas a Spec
// with Capacity 0 builds New(addr) and weighs 1.
func weightOf(s *backend.Server) int {
	if capacity, ok := s.Capacity(); ok {
		return capacity
	}
	return 1
}
