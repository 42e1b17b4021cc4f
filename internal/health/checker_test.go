package health

import (
	"context"
	"testing"

	"stevedore/internal/dockeradapter"
)

type fakeProber struct {
	status dockeradapter.ConnectionStatus
}

func (f fakeProber) TestConnection(ctx context.Context) dockeradapter.ConnectionStatus {
	return f.status
}

func up() fakeProber   { return fakeProber{dockeradapter.ConnectionStatus{Success: true}} }
func down() fakeProber { return fakeProber{dockeradapter.ConnectionStatus{Error: "connection refused"}} }

func TestChecker_Liveness(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	response := checker.Liveness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_NoHosts(t *testing.T) {
	t.Parallel()
	checker := NewChecker(nil)

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}

	if response.Checks == nil {
		t.Fatal("Expected checks to be present")
	}

	dockerCheck, ok := response.Checks["docker"]
	if !ok {
		t.Fatal("Expected docker check to be present")
	}

	if dockerCheck.Status != StatusUnhealthy {
		t.Errorf("Expected docker check to be unhealthy, got %s", dockerCheck.Status)
	}
}

func TestChecker_Readiness_AllHostsUp(t *testing.T) {
	t.Parallel()
	checker := NewChecker(map[string]HostProber{"local": up(), "gpu-1": up()})

	response := checker.Readiness(context.Background())

	if response.Status != StatusHealthy {
		t.Errorf("Expected healthy status, got %s", response.Status)
	}
	if response.Checks["docker:local"].Status != StatusHealthy {
		t.Error("Expected per-host check for local")
	}
	if response.Checks["docker:gpu-1"].Status != StatusHealthy {
		t.Error("Expected per-host check for gpu-1")
	}
}

func TestChecker_Readiness_PartialFleetIsDegraded(t *testing.T) {
	t.Parallel()
	checker := NewChecker(map[string]HostProber{"local": up(), "gpu-1": down()})

	response := checker.Readiness(context.Background())

	if response.Status != StatusDegraded {
		t.Errorf("Expected degraded status, got %s", response.Status)
	}
	if !response.IsHealthy() {
		t.Error("Degraded fleet must still accept traffic")
	}
	if response.Checks["docker:gpu-1"].Message != "connection refused" {
		t.Errorf("Expected probe error message, got %q", response.Checks["docker:gpu-1"].Message)
	}
}

func TestChecker_Readiness_AllHostsDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(map[string]HostProber{"local": down()})

	response := checker.Readiness(context.Background())

	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status, got %s", response.Status)
	}
}

func TestChecker_Readiness_ShuttingDown(t *testing.T) {
	t.Parallel()
	checker := NewChecker(map[string]HostProber{"local": up()})

	// Prime the cache with a healthy response, then flip to shutdown.
	if resp := checker.Readiness(context.Background()); resp.Status != StatusHealthy {
		t.Fatalf("Expected healthy before shutdown, got %s", resp.Status)
	}
	checker.SetShuttingDown()

	response := checker.Readiness(context.Background())
	if response.Status != StatusUnhealthy {
		t.Errorf("Expected unhealthy status after shutdown, got %s", response.Status)
	}
	if _, ok := response.Checks["shutdown"]; !ok {
		t.Error("Expected shutdown check to be present")
	}
}

func TestResponse_IsHealthy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		status   Status
		expected bool
	}{
		{"healthy", StatusHealthy, true},
		{"unhealthy", StatusUnhealthy, false},
		{"degraded", StatusDegraded, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			response := &Response{Status: tt.status}
			if response.IsHealthy() != tt.expected {
				t.Errorf("IsHealthy() = %v, want %v", response.IsHealthy(), tt.expected)
			}
		})
	}
}
