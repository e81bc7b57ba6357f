package selector

import (
	"fmt"

	"github.com/angeloszaimis/serverpool/internal/backend"
)

// registry is the insertion-ordered, capacity-bounded server list behind
// every selector. It is not synchronized; the owning selector's mutex must
// be held for every call.
type registry struct {
	servers []*backend.Server
}

func (r *registry) add(server *backend.Server) error {
	if server == nil {
		return fmt.Errorf("%w: nil server", ErrInvalidServer)
	}

	if len(r.servers) >= MaxServers {
		return fmt.Errorf("%w: cannot add %q", ErrCapacityExceeded, server.Address())
	}

	if r.find(server.Address()) >= 0 {
		return fmt.Errorf("%w: %q", ErrDuplicateAddress, server.Address())
	}

	r.servers = append(r.servers, server)
	return nil
}

func (r *registry) remove(address string) error {
	idx := r.find(address)
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, address)
	}

	r.servers = append(r.servers[:idx], r.servers[idx+1:]...)
	return nil
}

func (r *registry) reset() []*backend.Server {
	removed := r.servers
	r.servers = nil
	return removed
}

func (r *registry) size() int {
	return len(r.servers)
}

func (r *registry) at(i int) *backend.Server {
	return r.servers[i]
}

// find returns the position of address, or -1.
func (r *registry) find(address string) int {
	for i, s := range r.servers {
		if s.Address() == address {
			return i
		}
	}
	return -1
}

func (r *registry) snapshot() []*backend.Server {
	cp := make([]*backend.Server, len(r.servers))
	copy(cp, r.servers)
	return cp
}
