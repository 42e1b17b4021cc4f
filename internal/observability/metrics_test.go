package observability

import (
	"context"
	"testing"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, handler, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	if metrics == nil {
		t.Fatal("Expected metrics to be non-nil")
	}

	if handler == nil {
		t.Fatal("Expected handler to be non-nil")
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordHTTPRequest(ctx, "GET", "/livez", 200, 0.001)
	metrics.RecordHTTPRequest(ctx, "POST", "/api/v1/docker/worker-jobs/abc123/complete", 200, 0.050)
	metrics.RecordHTTPRequest(ctx, "POST", "/api/v1/docker/worker-jobs/xyz789/request-upload-urls", 403, 0.010)
	metrics.RecordHTTPRequest(ctx, "GET", "/readyz", 503, 0.005)
}

func TestRecordJobMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordJobStarted(ctx, "acme/renderer:1")
	metrics.RecordJobStarted(ctx, "acme/transcoder:2")
	metrics.RecordContainerAcquired(ctx, "acme/renderer:1", true)
	metrics.RecordContainerAcquired(ctx, "acme/transcoder:2", false)
	metrics.RecordJobCompleted(ctx, "acme/renderer:1", true, 5.5)
	metrics.RecordJobCompleted(ctx, "acme/transcoder:2", false, 120.0)
}

func TestRecordTaskMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, _, err := NewMetrics(ctx)
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	// Should not panic
	metrics.RecordTaskProcessed(ctx, "run_docker_worker", 1.5)
	metrics.RecordTaskFailed(ctx, "run_docker_worker")
	metrics.RecordTaskDropped(ctx)
	metrics.RecordTaskRequeued(ctx)
	metrics.RecordTaskQueueSize(ctx, 42)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/livez", "/livez"},
		{"/metrics", "/metrics"},
		{"/api/v1/docker/worker-jobs/abc123", "/api/v1/docker/worker-jobs/{jobId}"},
		{"/api/v1/docker/worker-jobs/abc123/complete", "/api/v1/docker/worker-jobs/{jobId}/complete"},
		{"/api/v1/docker/worker-jobs/xyz-789/request-upload-urls", "/api/v1/docker/worker-jobs/{jobId}/request-upload-urls"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
