// Package registry tracks live client connections.
//
// The registry is the server-side source of truth for which connections
// exist. A record is created when a connection opens, refreshed by any
// inbound traffic, and removed when the connection closes or its TTL
// elapses. Connection ids are assigned by the server at upgrade time and
// are never reused while a live record exists.
//
// Concurrency:
//
// All registry operations are safe for concurrent use. Methods return
// value copies of records, so a caller can inspect a record without racing
// against later mutations.
package registry
