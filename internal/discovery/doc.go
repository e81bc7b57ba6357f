// Package discovery feeds the server pool from etcd.
//
// Servers are published under a key prefix. EtcdSource lists the prefix once,
// then watches it from the next revision and, after every batch of changes,
// reconciles the pool with the whole Catalog. Entries that fail to decode are
// logged and left out.
package discovery
