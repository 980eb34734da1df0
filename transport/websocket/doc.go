// Package websocket provides the WebSocket transport for the relay.
//
// The Hub tracks live connections by their server-assigned id and is
// the push gateway: Send answers Delivered or Gone synchronously, where
// Gone is a normal outcome meaning the target connection no longer
// exists. Each connection runs a read pump (inbound messages, in
// arrival order, handed to the message handler) and a write pump
// (outbound frames plus keep-alive pings with read/write deadlines).
//
// Slow clients are evicted: a full send buffer closes the connection
// rather than blocking delivery to anyone else.
package websocket
