// Package selector implements bounded server pools that pick one server per
// request:
//
//   - Round Robin: sequential rotation over the registered servers in
//     insertion order
//   - Least Connections: routes to the healthy server with the fewest active
//     connections, ties going to the first-registered server
//   - Weighted Round Robin: smooth rotation proportional to each server's
//     capacity, servers without a capacity weighing 1
//
// Each selector owns its own registry of at most MaxServers entries keyed by
// address. All operations are safe for concurrent use.
package selector
