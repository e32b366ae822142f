//go:build !linux

package netio

import (
	"net"
	"time"
)

// setUserTimeout is a no-op off Linux; keep-alive probes still cover dead
// peer detection there.
func setUserTimeout(_ *net.TCPConn, _ time.Duration) error {
	return nil
}
