// wait.go implements listening-readiness polling. A container reaching
// the "running" state only means the process started; the server inside
// it needs time to bind its port. verify polls here between container
// start and its port assertions so slow startups don't read as failures.
package port

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	// dialTimeout bounds each individual connection attempt.
	dialTimeout = 500 * time.Millisecond

	// pollInterval is the pause between failed attempts.
	pollInterval = 100 * time.Millisecond
)

// WaitListening dials host:port repeatedly until something accepts a TCP
// connection or the timeout elapses. It returns nil as soon as a dial
// succeeds; the probe connection is closed immediately.
//
// The context cancels the wait early (e.g., when a sibling verify check
// has already failed); cancellation is reported as the context's error.
func WaitListening(ctx context.Context, host string, port int, timeout time.Duration) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	deadline := time.Now().Add(timeout)

	var lastErr error
	for {
		conn, err := net.DialTimeout("tcp", addr, dialTimeout)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		lastErr = err

		if time.Now().After(deadline) {
			return fmt.Errorf("nothing listening on %s after %s: %w", addr, timeout, lastErr)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}
