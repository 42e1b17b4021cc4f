package dockeradapter

import (
	"errors"
	"testing"

	"stevedore/internal/apperrors"
	"stevedore/internal/dockerhost"
)

func TestRegistryOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ref  string
		want string
	}{
		{"ubuntu", DefaultRegistry},
		{"ubuntu:24.04", DefaultRegistry},
		{"library/ubuntu", DefaultRegistry},
		{"ghcr.io/acme/worker:latest", "ghcr.io"},
		{"localhost:5000/worker", "localhost:5000"},
		{"registry.example.com/team/app", "registry.example.com"},
	}
	for _, tt := range tests {
		if got := RegistryOf(tt.ref); got != tt.want {
			t.Errorf("RegistryOf(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func uint64p(v uint64) *uint64 { return &v }
func uint32p(v uint32) *uint32 { return &v }

func TestDeriveStats(t *testing.T) {
	t.Parallel()

	t.Run("full sample", func(t *testing.T) {
		t.Parallel()
		s := &statsSnapshot{}
		s.CPUStats.CPUUsage.TotalUsage = uint64p(400)
		s.CPUStats.SystemUsage = uint64p(2000)
		s.CPUStats.OnlineCPUs = uint32p(4)
		s.PreCPUStats.CPUUsage.TotalUsage = uint64p(200)
		s.PreCPUStats.SystemUsage = uint64p(1000)
		s.MemoryStats.Usage = uint64p(600)
		s.MemoryStats.Limit = uint64p(1000)
		s.MemoryStats.Stats = map[string]uint64{"cache": 100}

		got := deriveStats(s)
		if got.CPUPercent == nil || *got.CPUPercent != 80.0 {
			t.Errorf("CPUPercent = %v, want 80", got.CPUPercent)
		}
		if got.MemoryPercent == nil || *got.MemoryPercent != 50.0 {
			t.Errorf("MemoryPercent = %v, want 50", got.MemoryPercent)
		}
	})

	t.Run("missing previous snapshot yields nil cpu", func(t *testing.T) {
		t.Parallel()
		s := &statsSnapshot{}
		s.CPUStats.CPUUsage.TotalUsage = uint64p(400)
		s.CPUStats.SystemUsage = uint64p(2000)

		if got := deriveStats(s); got.CPUPercent != nil {
			t.Errorf("CPUPercent = %v, want nil", got.CPUPercent)
		}
	})

	t.Run("zero limit yields nil memory", func(t *testing.T) {
		t.Parallel()
		s := &statsSnapshot{}
		s.MemoryStats.Usage = uint64p(600)
		s.MemoryStats.Limit = uint64p(0)

		if got := deriveStats(s); got.MemoryPercent != nil {
			t.Errorf("MemoryPercent = %v, want nil", got.MemoryPercent)
		}
	})

	t.Run("cgroup v2 inactive_file subtracted", func(t *testing.T) {
		t.Parallel()
		s := &statsSnapshot{}
		s.MemoryStats.Usage = uint64p(800)
		s.MemoryStats.Limit = uint64p(1000)
		s.MemoryStats.Stats = map[string]uint64{"inactive_file": 300}

		got := deriveStats(s)
		if got.MemoryPercent == nil || *got.MemoryPercent != 50.0 {
			t.Errorf("MemoryPercent = %v, want 50", got.MemoryPercent)
		}
	})
}

func TestGPUIndicator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		view          gpuView
		wantIndicator string
		wantDriver    string
	}{
		{
			name: "device request capability",
			view: gpuView{requests: []deviceRequestView{
				{driver: "nvidia", capabilities: [][]string{{"gpu"}}},
			}},
			wantIndicator: "device_request_capability",
			wantDriver:    "nvidia",
		},
		{
			name: "nvidia driver without gpu capability",
			view: gpuView{requests: []deviceRequestView{
				{driver: "nvidia", capabilities: [][]string{{"compute"}}},
			}},
			wantIndicator: "nvidia_driver",
			wantDriver:    "nvidia",
		},
		{
			name:          "nvidia runtime",
			view:          gpuView{runtime: "nvidia"},
			wantIndicator: "nvidia_runtime",
		},
		{
			name:          "nvidia device path case-insensitive",
			view:          gpuView{devices: []string{"/dev/NVIDIA0"}},
			wantIndicator: "nvidia_device",
		},
		{
			name: "no indicator",
			view: gpuView{devices: []string{"/dev/fuse"}, runtime: "runc"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			indicator, driver := gpuIndicator(tt.view)
			if indicator != tt.wantIndicator || driver != tt.wantDriver {
				t.Errorf("gpuIndicator() = (%q, %q), want (%q, %q)",
					indicator, driver, tt.wantIndicator, tt.wantDriver)
			}
		})
	}
}

func TestClassifyExecFailure(t *testing.T) {
	t.Parallel()

	err := classifyExecFailure(126, "sh: Argument list too long")
	if apperrors.Code(err) != CodeArgumentListTooLong {
		t.Errorf("code = %q, want %q", apperrors.Code(err), CodeArgumentListTooLong)
	}

	err = classifyExecFailure(1, "boom")
	if apperrors.Code(err) != CodeUnexpectedError {
		t.Errorf("code = %q, want %q", apperrors.Code(err), CodeUnexpectedError)
	}
	if !errors.Is(err, apperrors.ErrInternal) {
		t.Error("exec failure should classify as internal")
	}
}

func TestExecResultErrPanicsOnSuccess(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for Err() on successful result")
		}
	}()
	r := &ExecResult{exitCode: 0}
	r.Err()
}

func TestAuthHeader(t *testing.T) {
	t.Parallel()

	if got := authHeader(nil); got != "" {
		t.Errorf("authHeader(nil) = %q, want empty", got)
	}
	if got := authHeader(&dockerhost.EndpointAuth{Bearer: "tok"}); got != "Bearer tok" {
		t.Errorf("bearer header = %q", got)
	}
	got := authHeader(&dockerhost.EndpointAuth{Username: "u", Password: "p", Bearer: "tok"})
	if got != "Bearer tok" {
		t.Errorf("bearer should win over basic, got %q", got)
	}
	got = authHeader(&dockerhost.EndpointAuth{Username: "u", Password: "p"})
	if got != "Basic dTpw" {
		t.Errorf("basic header = %q, want Basic dTpw", got)
	}
}

func TestParseContainerState(t *testing.T) {
	t.Parallel()

	if got := ParseContainerState("running"); got != StateRunning {
		t.Errorf("ParseContainerState(running) = %q", got)
	}
	if got := ParseContainerState("restarting"); got != StateUnknown {
		t.Errorf("ParseContainerState(restarting) = %q, want unknown", got)
	}
}
