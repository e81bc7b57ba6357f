package selector

import (
	"fmt"
	"sync"

	"github.com/angeloszaimis/serverpool/internal/backend"
)

// RoundRobin hands out servers in registration order, wrapping around at the
// end. The cursor is shared by all callers; reading it, advancing it and
// indexing the registry happen under one lock so concurrent acquirers never
// collide on or skip a position.
//
// An unhealthy server at the cursor fails that call with ErrNoHealthyServer;
// the next call moves on to the following position.
type RoundRobin struct {
	mutex    sync.Mutex
	registry registry
	cursor   int
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (rr *RoundRobin) Register(server *backend.Server) error {
	rr.mutex.Lock()
	defer rr.mutex.Unlock()
	return rr.registry.add(server)
}

func (rr *RoundRobin) Deregister(address string) error {
	rr.mutex.Lock()
	defer rr.mutex.Unlock()
	return rr.registry.remove(address)
}

// Clear empties the registry and rewinds the cursor.
func (rr *RoundRobin) Clear() []*backend.Server {
	rr.mutex.Lock()
	defer rr.mutex.Unlock()
	rr.cursor = 0
	return rr.registry.reset()
}

func (rr *RoundRobin) Acquire() (*backend.Server, error) {
	rr.mutex.Lock()
	defer rr.mutex.Unlock()

	count := rr.registry.size()
	if count == 0 {
		return nil, ErrEmpty
	}

	// the cursor can point past the end after a deregister
	index := rr.cursor % count
	rr.cursor = (index + 1) % count

	server := rr.registry.at(index)
	if !server.IsHealthy() {
		return nil, fmt.Errorf("%w: %q is down", ErrNoHealthyServer, server.Address())
	}

	return server, nil
}

// Release is a no-op; round robin does not track connections.
func (rr *RoundRobin) Release(*backend.Server) {}

func (rr *RoundRobin) Servers() []*backend.Server {
	rr.mutex.Lock()
	defer rr.mutex.Unlock()
	return rr.registry.snapshot()
}

func (rr *RoundRobin) Len() int {
	rr.mutex.Lock()
	defer rr.mutex.Unlock()
	return rr.registry.size()
}

func (rr *RoundRobin) Kind() Kind {
	return KindRoundRobin
}
