package backend

import (
	"net/url"
	"strings"
	"sync"
)

// Server represents one backend in a pool. The address is fixed at
// construction; everything else is runtime state guarded by the mutex.
type Server struct {
	address     string
	capacity    int
	hasCapacity bool

	mutex             sync.Mutex
	healthy           bool
	activeConnections int
	currentWeight     int
}

// New creates a healthy Server with no connections and no fixed capacity.
func New(address string) *Server {
	return &Server{
		address: address,
		healthy: true,
	}
}

// NewWithCapacity creates a Server carrying an informational capacity.
// Negative capacities are stored as zero.
func NewWithCapacity(address string, capacity int) *Server {
	s := New(address)
	if capacity < 0 {
		capacity = 0
	}
	s.capacity = capacity
	s.hasCapacity = true
	return s
}

// Address returns the server's identity within a registry.
func (s *Server) Address() string {
	return s.address
}

// Capacity returns the fixed capacity and whether one was set.
func (s *Server) Capacity() (int, bool) {
	return s.capacity, s.hasCapacity
}

func (s *Server) CurrentWeight() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.currentWeight
}

func (s *Server) SetCurrentWeight(weight int) {
	s.mutex.Lock()
	s.currentWeight = weight
	s.mutex.Unlock()
}

// IsHealthy returns true if the server should currently receive traffic.
func (s *Server) IsHealthy() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.healthy
}

// SetHealthy updates the health flag.
// Returns true if the status changed, false if it was already in that state.
func (s *Server) SetHealthy(healthy bool) (changed bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.healthy == healthy {
		return false
	}

	s.healthy = healthy
	return true
}

// ActiveConnections returns the current number of in-flight acquisitions.
func (s *Server) ActiveConnections() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.activeConnections
}

// IncrementActiveConnections adds one connection and returns the new count.
func (s *Server) IncrementActiveConnections() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.activeConnections++
	return s.activeConnections
}

// DecrementActiveConnections removes one connection and returns the new
// count. Unmatched calls clamp at zero.
func (s *Server) DecrementActiveConnections() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.activeConnections > 0 {
		s.activeConnections--
	}
	return s.activeConnections
}

// Spec describes a server to be registered, as read from configuration,
// service discovery or the admin API. A zero Capacity means none was given.
type Spec struct {
	Address  string `json:"address"`
	Capacity int    `json:"capacity,omitempty"`
}

// Server builds a fresh Server from the spec.
func (sp Spec) Server() *Server {
	if sp.Capacity > 0 {
		return NewWithCapacity(sp.Address, sp.Capacity)
	}
	return New(sp.Address)
}

// ParseAddress turns a server address into a URL for forwarding and probing.
// Addresses without a scheme are treated as plain http.
func ParseAddress(address string) (*url.URL, error) {
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	return url.Parse(address)
}
