package health

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPChecker verifies that an upstream endpoint accepts connections,
// typically the directory server or a tenant database.
type TCPChecker struct {
	// Label identifies the endpoint in healthz output (e.g. "directory")
	Label string

	// Address is the TCP address to connect to (e.g. "openldap:8389")
	Address string

	// Timeout is the connection timeout (default: 5 seconds)
	Timeout time.Duration
}

// NewTCPChecker creates a new TCP health checker
func NewTCPChecker(label, address string) *TCPChecker {
	return &TCPChecker{
		Label:   label,
		Address: address,
		Timeout: 5 * time.Second,
	}
}

// Check performs the TCP health check
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := &net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return Result{
			Healthy:   false,
			Message:   fmt.Sprintf("connection failed: %v", err),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}
	defer conn.Close()

	return Result{
		Healthy:   true,
		Message:   fmt.Sprintf("connected to %s", t.Address),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Type returns the health check type
func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}

// Name identifies the checker
func (t *TCPChecker) Name() string {
	return t.Label
}
