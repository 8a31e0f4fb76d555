package health

import (
	"context"
	"time"

	"github.com/nimburion/userdirectory/pkg/directory"
	"github.com/nimburion/userdirectory/pkg/resilience"
)

const defaultCheckTimeout = 5 * time.Second

// BackendChecker reports the state of a directory.Backend.
//
// A disconnected backend is unhealthy and the message is its last error,
// which is empty for a backend that was never connected.
// A connected backend is probed with GetUserCount; a probe that outlives the
// timeout is reported as degraded.
type BackendChecker struct {
	name    string
	backend directory.Backend
	timeout time.Duration
}

// NewBackendChecker creates a checker for backend. A zero timeout means 5s.
func NewBackendChecker(name string, backend directory.Backend, timeout time.Duration) *BackendChecker {
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	return &BackendChecker{
		name:    name,
		backend: backend,
		timeout: timeout,
	}
}

// Name returns the name of the health check
func (c *BackendChecker) Name() string {
	return c.name
}

// Check performs the health check on the backend
func (c *BackendChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	result := CheckResult{Name: c.name}

	if !c.backend.IsConnected() {
		result.Status = StatusUnhealthy
		result.Message = c.backend.GetLastError()
		result.Error = directory.ErrNotConnected.Error()
		return c.finish(result, start)
	}

	var count int
	err := resilience.WithTimeout(ctx, c.timeout, func(context.Context) error {
		count = c.backend.GetUserCount()
		return nil
	})
	if err != nil {
		result.Status = StatusDegraded
		result.Message = "count probe timed out"
		result.Error = err.Error()
		return c.finish(result, start)
	}

	result.Status = StatusHealthy
	result.Message = "OK"
	result.Metadata = map[string]interface{}{"users": count}
	return c.finish(result, start)
}

func (c *BackendChecker) finish(result CheckResult, start time.Time) CheckResult {
	result.Timestamp = time.Now()
	result.Duration = time.Since(start)
	return result
}

// PingChecker always reports healthy. Useful as a liveness check.
type PingChecker struct {
	name string
}

// NewPingChecker creates a new ping checker
func NewPingChecker(name string) *PingChecker {
	return &PingChecker{name: name}
}

// Check always returns healthy
func (c *PingChecker) Check(_ context.Context) CheckResult {
	return CheckResult{
		Name:      c.name,
		Status:    StatusHealthy,
		Message:   "pong",
		Timestamp: time.Now(),
	}
}

// Name returns the name of the health check
func (c *PingChecker) Name() string {
	return c.name
}
