package taskqueue

import (
	"time"

	"stevedore/internal/config"
)

// Hardcoded processing defaults - these rarely need tuning.
const (
	defaultMaxRetries  = 3
	defaultMaxRequeues = 10
)

// MemoryConfig holds configuration for the in-memory task queue.
type MemoryConfig struct {
	BufferSize     int           // pending tasks buffer (default: 10000)
	Workers        int           // concurrent processing goroutines (default: 10)
	ProcessTimeout time.Duration // per-task timeout (default: 10m)
}

// LoadConfigFromEnv loads queue configuration from environment variables.
func LoadConfigFromEnv() MemoryConfig {
	cfg := MemoryConfig{
		BufferSize:     config.GetIntEnv("TASK_QUEUE_BUFFER_SIZE", 10000),
		Workers:        config.GetIntEnv("TASK_QUEUE_WORKERS", 10),
		ProcessTimeout: config.GetDurationEnv("TASK_QUEUE_PROCESS_TIMEOUT", 10*time.Minute),
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c MemoryConfig) withDefaults() MemoryConfig {
	if c.BufferSize <= 0 {
		c.BufferSize = 10000
	}
	if c.Workers <= 0 {
		c.Workers = 10
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = 10 * time.Minute
	}
	return c
}
