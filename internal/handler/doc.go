// Package handler implements the forwarding HTTP handler of the server pool.
// It acquires a server per request, proxies to it, and releases it when the
// response is done. Upstream 5xx responses and transport errors feed the
// per-server circuit breaker; an opened breaker takes the server out of
// rotation until the health checker sees it recover.
package handler
