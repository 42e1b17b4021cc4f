package dockeradapter

import (
	"time"

	"stevedore/internal/dockerhost"
)

// ContainerState is the narrowed container lifecycle state.
type ContainerState string

const (
	StateCreated ContainerState = "created"
	StateRunning ContainerState = "running"
	StatePaused  ContainerState = "paused"
	StateExited  ContainerState = "exited"
	StateUnknown ContainerState = "unknown"
)

// ParseContainerState narrows a Docker Engine state string.
func ParseContainerState(s string) ContainerState {
	switch s {
	case "created", "running", "paused", "exited":
		return ContainerState(s)
	default:
		return StateUnknown
	}
}

// ContainerRecord is a live view of a container on a host. Sourced from the
// Docker host on every lookup, never cached.
type ContainerRecord struct {
	ID        string
	Image     string
	Labels    map[string]string
	State     ContainerState
	CreatedAt time.Time
}

// ConnectionStatus is the result of a health probe against a host.
type ConnectionStatus struct {
	Success    bool
	Version    string
	APIVersion string
	Error      string
}

// HostResources is a sanitized view of host introspection. Pointer fields
// are nil when the host did not report a usable value.
type HostResources struct {
	CPUCores    *int
	MemoryBytes *int64
	Info        map[string]any
}

// ContainerStats carries derived utilization percentages. Either field is
// nil when the required inputs were missing; callers must treat nil as
// "unknown", not zero.
type ContainerStats struct {
	CPUPercent    *float64
	MemoryPercent *float64
}

// GPUInfo reports GPU introspection for a container. Diagnostic is set when
// introspection could not proceed; DeviceList carries nvidia-smi -L output
// when it could.
type GPUInfo struct {
	Indicator  string // which signal suggested GPU access (capability, driver, runtime, device)
	Driver     string
	Diagnostic string
	DeviceList string
}

// ExecState is a point-in-time view of an exec instance.
type ExecState struct {
	Running  bool
	ExitCode int
}

// ExecInput describes a command to run inside a container.
type ExecInput struct {
	Command []string
}

// CreateOptions describe a container to create. Overrides come from the
// host resolver; labels carry the discovery triple.
type CreateOptions struct {
	Image       string
	Name        string
	Labels      map[string]string
	Env         map[string]string
	Command     []string
	Volumes     []string // "host-path:container-path" binds
	ExtraHosts  []string
	NetworkMode string
	GPU         *dockerhost.GPUSpec
}

// statsSnapshot is the tagged subset of the Engine stats response this
// adapter consumes. Pointer fields distinguish absent inputs from zeroes.
type statsSnapshot struct {
	CPUStats    cpuStats    `json:"cpu_stats"`
	PreCPUStats cpuStats    `json:"precpu_stats"`
	MemoryStats memoryStats `json:"memory_stats"`
}

type cpuStats struct {
	CPUUsage struct {
		TotalUsage *uint64 `json:"total_usage"`
	} `json:"cpu_usage"`
	SystemUsage *uint64 `json:"system_cpu_usage"`
	OnlineCPUs  *uint32 `json:"online_cpus"`
}

type memoryStats struct {
	Usage *uint64           `json:"usage"`
	Limit *uint64           `json:"limit"`
	Stats map[string]uint64 `json:"stats"`
}

// deriveStats computes CPU and memory percentages from one stats sample
// (current plus previous cgroup snapshots). Missing inputs yield nil, never
// a defaulted zero.
func deriveStats(s *statsSnapshot) ContainerStats {
	var out ContainerStats

	if s.CPUStats.CPUUsage.TotalUsage != nil && s.PreCPUStats.CPUUsage.TotalUsage != nil &&
		s.CPUStats.SystemUsage != nil && s.PreCPUStats.SystemUsage != nil {
		cpuDelta := float64(*s.CPUStats.CPUUsage.TotalUsage) - float64(*s.PreCPUStats.CPUUsage.TotalUsage)
		sysDelta := float64(*s.CPUStats.SystemUsage) - float64(*s.PreCPUStats.SystemUsage)
		if sysDelta > 0 && cpuDelta >= 0 {
			cpus := 1.0
			if s.CPUStats.OnlineCPUs != nil && *s.CPUStats.OnlineCPUs > 0 {
				cpus = float64(*s.CPUStats.OnlineCPUs)
			}
			pct := cpuDelta / sysDelta * cpus * 100.0
			out.CPUPercent = &pct
		}
	}

	if s.MemoryStats.Usage != nil && s.MemoryStats.Limit != nil && *s.MemoryStats.Limit > 0 {
		usage := float64(*s.MemoryStats.Usage)
		// Subtract page cache: cgroup v1 reports "cache", v2 "inactive_file".
		if cache, ok := s.MemoryStats.Stats["cache"]; ok {
			usage -= float64(cache)
		} else if inactive, ok := s.MemoryStats.Stats["inactive_file"]; ok {
			usage -= float64(inactive)
		}
		if usage < 0 {
			usage = 0
		}
		pct := usage / float64(*s.MemoryStats.Limit) * 100.0
		out.MemoryPercent = &pct
	}

	return out
}
