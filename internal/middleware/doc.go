// Package middleware provides func(http.Handler) http.Handler wrappers used
// in front of the proxy and admin surfaces: request logging with request ids,
// per-client rate limiting, and HS256 bearer token authentication.
package middleware
