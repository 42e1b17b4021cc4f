// Package config provides configuration loading from environment variables
// and the host fleet file.
package config

import (
	"time"
)

// ServiceConfig holds configuration for the worker gateway service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	PlatformHost      string        // audience for worker job tokens (e.g., "platform.example.com")
	WorkerTokenSecret string        // HMAC key for worker job tokens
	HostsFile         string        // path to the Docker host fleet YAML
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)

	// Object storage for presigned worker uploads. Endpoint is optional and
	// targets S3-compatible stores (MinIO, Ceph RGW).
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	secret := GetSecretFile(GetEnv("WORKER_TOKEN_SECRET_FILE", ""))
	if secret == "" {
		secret = GetEnv("WORKER_TOKEN_SECRET", "")
	}

	s3Secret := GetSecretFile(GetEnv("S3_SECRET_ACCESS_KEY_FILE", ""))
	if s3Secret == "" {
		s3Secret = GetEnv("S3_SECRET_ACCESS_KEY", "")
	}

	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		PlatformHost:      GetEnv("PLATFORM_HOST", "localhost"),
		WorkerTokenSecret: secret,
		HostsFile:         GetEnv("DOCKER_HOSTS_FILE", ""),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),

		S3Region:          GetEnv("S3_REGION", "us-east-1"),
		S3Endpoint:        GetEnv("S3_ENDPOINT", ""),
		S3AccessKeyID:     GetEnv("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: s3Secret,
	}
}
