// Package backend defines the Server record held by a selector's registry.
// A Server carries an immutable address plus runtime state (health flag,
// active-connection count, current weight) that is safe for concurrent use.
package backend
