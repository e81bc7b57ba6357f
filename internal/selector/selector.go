package selector

import (
	"errors"
	"fmt"

	"github.com/angeloszaimis/serverpool/internal/backend"
)

// MaxServers bounds the number of servers a single selector can hold.
const MaxServers = 10

var (
	ErrCapacityExceeded = errors.New("selector: server registry is full")
	ErrDuplicateAddress = errors.New("selector: server address already registered")
	ErrNotFound         = errors.New("selector: server address not registered")
	ErrEmpty            = errors.New("selector: no servers registered")
	ErrNoHealthyServer  = errors.New("selector: no healthy server available")
	ErrInvalidServer    = errors.New("selector: invalid server")
	ErrUnknownKind      = errors.New("selector: unknown kind")
)

type Kind string

const (
	KindRoundRobin Kind = "round-robin"
	KindLeastConn  Kind = "least-conn"

	KindWeightedRoundRobin Kind = "weighted-round-robin"
)

// Selector owns a registry of servers and picks one per request.
//
// Acquire hands out a server; callers must pass it back to Release once the
// request finishes, whether or not it succeeded.
type Selector interface {
	Register(server *backend.Server) error
	Deregister(address string) error
	// Clear empties the registry and returns the servers it held.
	Clear() []*backend.Server
	Acquire() (*backend.Server, error)
	Release(server *backend.Server)

	// Servers returns the registered servers in insertion order.
	Servers() []*backend.Server
	Len() int
	Kind() Kind
}

// New constructs an empty selector of the given kind.
func New(kind Kind) (Selector, error) {
	switch kind {
	case KindRoundRobin:
		return NewRoundRobin(), nil
	case KindLeastConn:
		return NewLeastConnections(), nil
	case KindWeightedRoundRobin:
		return NewWeightedRoundRobin(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
