// Package health provides health check functionality for liveness and readiness probes.
package health

import (
	"context"
	"sync"
	"time"

	"stevedore/internal/dockeradapter"
)

// HostProber is the per-host connectivity probe the checker depends on.
type HostProber interface {
	TestConnection(ctx context.Context) dockeradapter.ConnectionStatus
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// CheckResult contains the result of a health check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Checker performs health checks on the Docker host fleet.
type Checker struct {
	hosts   map[string]HostProber
	timeout time.Duration

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// NewChecker creates a health checker probing the given hosts, keyed by
// host id.
func NewChecker(hosts map[string]HostProber) *Checker {
	return &Checker{
		hosts:   hosts,
		timeout: 5 * time.Second,
	}
}

// Liveness returns true if the service is alive.
// This should be a lightweight check that doesn't depend on external services.
// Failing this probe should trigger a container restart.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{
		Status: StatusHealthy,
	}
}

// Readiness checks if the service is ready to accept traffic.
// Every configured Docker host is probed; the service is unhealthy only when
// no host at all is reachable, and degraded when some are down.
// Failing this probe should remove the instance from load balancer rotation.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	// Return unhealthy immediately if shutting down
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}

	// Use cached result if recent (avoid hammering Docker)
	if c.cachedReady != nil && time.Since(c.lastCheck) < time.Second {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	response := c.checkHosts(ctx)

	// Cache the result
	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = time.Now()
	c.mu.Unlock()

	return response
}

// checkHosts probes every configured Docker host.
func (c *Checker) checkHosts(ctx context.Context) *Response {
	if len(c.hosts) == 0 {
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"docker": {Status: StatusUnhealthy, Message: "no docker hosts configured"},
			},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	checks := make(map[string]CheckResult, len(c.hosts))
	healthy := 0
	for id, host := range c.hosts {
		status := host.TestConnection(ctx)
		if status.Success {
			healthy++
			checks["docker:"+id] = CheckResult{Status: StatusHealthy}
		} else {
			checks["docker:"+id] = CheckResult{Status: StatusUnhealthy, Message: status.Error}
		}
	}

	overall := StatusHealthy
	switch {
	case healthy == 0:
		overall = StatusUnhealthy
	case healthy < len(c.hosts):
		overall = StatusDegraded
	}

	return &Response{Status: overall, Checks: checks}
}

// IsHealthy returns true if the service can still accept traffic. A degraded
// fleet (some hosts down) keeps serving.
func (r *Response) IsHealthy() bool {
	return r.Status != StatusUnhealthy
}

// SetShuttingDown marks the service as shutting down.
// This causes readiness checks to return unhealthy, signaling
// load balancers to stop sending new traffic.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil // Clear cache to ensure immediate effect
}
