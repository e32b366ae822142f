// Package netio owns the TCP accept path: per-port listeners with
// connection limits, keep-alive tuning and dead-peer timeouts, handing
// each accepted connection to a protocol handler goroutine.
package netio
