// Package api exposes the HTTP surface: a read-only REST API for
// health and observability, and the /ws endpoint that upgrades to the
// WebSocket relay. Connection ids are assigned here, and the optional
// identity token is resolved before the transport ever sees the
// connection.
package api
