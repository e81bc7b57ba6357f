// Package loadbalancer fronts a selector for every outer surface of the pool.
//
// It delegates membership and acquisition to the selector, logs changes and
// emits metric events. Do scopes an acquisition so the server is always
// released, and Sync reconciles the pool with a desired set of servers coming
// from configuration or discovery.
package loadbalancer
