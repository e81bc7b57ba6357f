// Package healthcheck implements active health checking for pooled servers.
//
// A Checker probes every registered server with an HTTP GET to a configurable
// path on each tick and flips the server's health flag, which the selectors
// honor. Transitions are logged and emitted as health_changed metric events.
package healthcheck
