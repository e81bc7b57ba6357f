// Package httpserver wraps net/http.Server with ozzo-validated listen
// addresses, configurable timeouts and context-driven graceful shutdown.
package httpserver
