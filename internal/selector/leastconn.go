package selector

import (
	"sync"

	"github.com/angeloszaimis/serverpool/internal/backend"
)

// LeastConnections routes each acquisition to the healthy server with the
// fewest active connections. Ties go to the server registered first.
// The scan and the winner's increment form a single critical section.
type LeastConnections struct {
	mutex    sync.Mutex
	registry registry
}

func NewLeastConnections() *LeastConnections {
	return &LeastConnections{}
}

func (lc *LeastConnections) Register(server *backend.Server) error {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()
	return lc.registry.add(server)
}

func (lc *LeastConnections) Deregister(address string) error {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()
	return lc.registry.remove(address)
}

func (lc *LeastConnections) Clear() []*backend.Server {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()
	return lc.registry.reset()
}

func (lc *LeastConnections) Acquire() (*backend.Server, error) {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()

	if lc.registry.size() == 0 {
		return nil, ErrEmpty
	}

	var best *backend.Server
	bestConns := 0

	for _, s := range lc.registry.servers {
		if !s.IsHealthy() {
			continue
		}

		conns := s.ActiveConnections()
		if best == nil || conns < bestConns {
			best = s
			bestConns = conns
		}
	}

	if best == nil {
		return nil, ErrNoHealthyServer
	}

	best.IncrementActiveConnections()
	return best, nil
}

// Release gives back a connection taken by Acquire. Extra releases leave
// the count at zero.
func (lc *LeastConnections) Release(server *backend.Server) {
	if server == nil {
		return
	}

	lc.mutex.Lock()
	defer lc.mutex.Unlock()
	server.DecrementActiveConnections()
}

func (lc *LeastConnections) Servers() []*backend.Server {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()
	return lc.registry.snapshot()
}

func (lc *LeastConnections) Len() int {
	lc.mutex.Lock()
	defer lc.mutex.Unlock()
	return lc.registry.size()
}

func (lc *LeastConnections) Kind() Kind {
	return KindLeastConn
}
