// Package circuitbreaker tracks passive failures per server address.
//
// A Breaker has three states:
//
//   - CLOSED: requests pass through
//   - OPEN: the server failed too often, requests are rejected
//   - HALF-OPEN: the reset timeout elapsed and one trial request is allowed
//
// Registry creates breakers lazily per address. The proxy handler records the
// outcome of every forwarded request; the health checker resets a breaker when
// its server answers probes again, and the pool forgets breakers of servers
// that are deregistered.
//
//	registry := circuitbreaker.NewRegistry(5, 30*time.Second)
//	b := registry.Get("10.0.0.1:8080")
//	if b.Allow() {
//	    if err != nil {
//	        b.RecordFailure()
//	    } else {
//	        b.RecordSuccess()
//	    }
//	}
package circuitbreaker
