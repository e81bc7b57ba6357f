package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/angeloszaimis/serverpool/internal/backend"
)

var ErrInvalidEntry = errors.New("discovery: invalid server entry")

// DecodeSpec turns a catalog entry into a server spec. An empty value, or a
// JSON object without an address, takes the address from the key suffix.
func DecodeSpec(key, prefix string, value []byte) (backend.Spec, error) {
	spec := backend.Spec{}

	if len(strings.TrimSpace(string(value))) > 0 {
		if err := json.Unmarshal(value, &spec); err != nil {
			return backend.Spec{}, fmt.Errorf("%w: %q: %v", ErrInvalidEntry, key, err)
		}
	}

	if spec.Address == "" {
		suffix, found := strings.CutPrefix(key, prefix)
		if !found || suffix == "" || strings.Contains(suffix, "/") {
			return backend.Spec{}, fmt.Errorf("%w: %q: no address", ErrInvalidEntry, key)
		}
		spec.Address = suffix
	}
	if spec.Capacity < 0 {
		return backend.Spec{}, fmt.Errorf("%w: %q: negative capacity", ErrInvalidEntry, key)
	}

	return spec, nil
}

// Catalog is the local view of the servers published under a key prefix.
type Catalog struct {
	prefix  string
	mutex   sync.RWMutex
	entries map[string]backend.Spec
}

func NewCatalog(prefix string) *Catalog {
	return &Catalog{
		prefix:  prefix,
		entries: make(map[string]backend.Spec),
	}
}

func (c *Catalog) Put(key string, value []byte) error {
	spec, err := DecodeSpec(key, c.prefix, value)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries[key] = spec
	return nil
}

// Delete reports whether key was present.
func (c *Catalog) Delete(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

func (c *Catalog) Reset() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[string]backend.Spec)
}

// Apply folds a batch of watch events into the catalog. Invalid entries are
// skipped and reported together.
func (c *Catalog) Apply(events []*clientv3.Event) error {
	var errs []error
	for _, ev := range events {
		if ev.Kv == nil {
			continue
		}
		key := string(ev.Kv.Key)

		switch ev.Type {
		case clientv3.EventTypePut:
			if err := c.Put(key, ev.Kv.Value); err != nil {
				// a previously valid entry that turned invalid leaves the pool
				c.Delete(key)
				errs = append(errs, err)
			}
		case clientv3.EventTypeDelete:
			c.Delete(key)
		}
	}
	return errors.Join(errs...)
}

// Specs returns the catalog sorted by key so every sync sees a stable order.
func (c *Catalog) Specs() []backend.Spec {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	specs := make([]backend.Spec, 0, len(keys))
	for _, key := range keys {
		specs = append(specs, c.entries[key])
	}
	return specs
}

func (c *Catalog) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}
