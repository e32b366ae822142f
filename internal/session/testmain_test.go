package session

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain verifies no goroutine outlives its test: every poller and
// handler must shut down with its session.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
