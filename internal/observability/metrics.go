package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/jobs take
// - Traffic: Request/job throughput
// - Errors: Rate of failures
// - Saturation: Resource utilization (concurrent jobs, queue depth)
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Docker job metrics (Latency, Traffic, Errors, Saturation)
	JobDuration       metric.Float64Histogram
	JobsTotal         metric.Int64Counter
	JobErrorsTotal    metric.Int64Counter
	JobsActive        metric.Int64UpDownCounter
	ContainersCreated metric.Int64Counter
	ContainersReused  metric.Int64Counter

	// Task queue metrics (Latency, Traffic, Errors, Saturation)
	TaskDuration   metric.Float64Histogram
	TasksProcessed metric.Int64Counter
	TasksFailed    metric.Int64Counter
	TasksDropped   metric.Int64Counter
	TasksRequeued  metric.Int64Counter
	TaskQueueSize  metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("stevedore")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Docker job metrics
	m.JobDuration, err = meter.Float64Histogram(
		"docker_job_duration_seconds",
		metric.WithDescription("Docker job execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsTotal, err = meter.Int64Counter(
		"docker_jobs_total",
		metric.WithDescription("Total number of docker jobs dispatched"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobErrorsTotal, err = meter.Int64Counter(
		"docker_job_errors_total",
		metric.WithDescription("Total number of failed docker jobs"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"docker_jobs_active",
		metric.WithDescription("Number of currently running docker jobs (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ContainersCreated, err = meter.Int64Counter(
		"docker_containers_created_total",
		metric.WithDescription("Total worker containers created for jobs"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.ContainersReused, err = meter.Int64Counter(
		"docker_containers_reused_total",
		metric.WithDescription("Total jobs served by an already-running worker container"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Task queue metrics
	m.TaskDuration, err = meter.Float64Histogram(
		"task_duration_seconds",
		metric.WithDescription("Task processing latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TasksProcessed, err = meter.Int64Counter(
		"tasks_processed_total",
		metric.WithDescription("Total tasks processed to completion"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TasksFailed, err = meter.Int64Counter(
		"tasks_failed_total",
		metric.WithDescription("Total tasks failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TasksDropped, err = meter.Int64Counter(
		"tasks_dropped_total",
		metric.WithDescription("Total tasks dropped (buffer full or max requeues)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TasksRequeued, err = meter.Int64Counter(
		"tasks_requeued_total",
		metric.WithDescription("Total tasks requeued on handler request"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.TaskQueueSize, err = meter.Int64Gauge(
		"task_queue_size",
		metric.WithDescription("Current number of tasks in the queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobStarted records a docker job being dispatched.
func (m *Metrics) RecordJobStarted(ctx context.Context, image string) {
	attrs := metric.WithAttributes(imageAttr(image))
	m.JobsTotal.Add(ctx, 1, attrs)
	m.JobsActive.Add(ctx, 1, attrs)
}

// RecordJobCompleted records a docker job finishing (success or failure).
func (m *Metrics) RecordJobCompleted(ctx context.Context, image string, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(imageAttr(image), successAttr(success))
	m.JobDuration.Record(ctx, durationSeconds, attrs)
	m.JobsActive.Add(ctx, -1, metric.WithAttributes(imageAttr(image)))

	if !success {
		m.JobErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordContainerAcquired records whether a job created its worker container
// or reused an existing one.
func (m *Metrics) RecordContainerAcquired(ctx context.Context, image string, created bool) {
	attrs := metric.WithAttributes(imageAttr(image))
	if created {
		m.ContainersCreated.Add(ctx, 1, attrs)
	} else {
		m.ContainersReused.Add(ctx, 1, attrs)
	}
}

// RecordTaskProcessed records a successfully processed task with its duration.
func (m *Metrics) RecordTaskProcessed(ctx context.Context, taskType string, durationSeconds float64) {
	attrs := metric.WithAttributes(taskTypeAttr(taskType))
	m.TasksProcessed.Add(ctx, 1, attrs)
	m.TaskDuration.Record(ctx, durationSeconds, attrs)
}

// RecordTaskFailed records a task that failed after retries.
func (m *Metrics) RecordTaskFailed(ctx context.Context, taskType string) {
	m.TasksFailed.Add(ctx, 1, metric.WithAttributes(taskTypeAttr(taskType)))
}

// RecordTaskDropped records a dropped task.
func (m *Metrics) RecordTaskDropped(ctx context.Context) {
	m.TasksDropped.Add(ctx, 1)
}

// RecordTaskRequeued records a requeued task.
func (m *Metrics) RecordTaskRequeued(ctx context.Context) {
	m.TasksRequeued.Add(ctx, 1)
}

// RecordTaskQueueSize records the current queue size.
func (m *Metrics) RecordTaskQueueSize(ctx context.Context, size int64) {
	m.TaskQueueSize.Record(ctx, size)
}
