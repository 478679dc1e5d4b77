package health

import (
	"context"
	"net"
	"time"
)

// TCPChecker reports whether a listener accepts connections. The gRPC API
// needs a token for any call, so the CLI only checks that it listens.
type TCPChecker struct {
	addr    string
	timeout time.Duration
}

// NewTCPChecker checks addr with a 5s dial timeout
func NewTCPChecker(addr string) *TCPChecker {
	return &TCPChecker{addr: addr, timeout: 5 * time.Second}
}

// Check dials the address and closes the connection right away
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	dialer := net.Dialer{Timeout: t.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return failed(start, "dial %s: %v", t.addr, err)
	}
	_ = conn.Close()
	return Result{Healthy: true, Message: "listening on " + t.addr, CheckedAt: start, Duration: time.Since(start)}
}

// Type returns CheckTypeTCP
func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}

// WithTimeout sets the dial timeout
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.timeout = timeout
	return t
}
