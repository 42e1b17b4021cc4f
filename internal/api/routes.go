package api

import (
	"net/http"

	"stevedore/internal/health"
	"stevedore/internal/observability"
	"stevedore/internal/workerjob"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	WorkerJobs    *workerjob.Service
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.WorkerJobs, cfg.HealthChecker)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Worker callback endpoints - authenticated by the job-scoped token
	guard := WorkerTokenMiddleware(cfg.WorkerJobs.Tokens())
	mux.Handle("POST /api/v1/docker/worker-jobs/{jobId}/request-upload-urls",
		guard(http.HandlerFunc(handler.RequestUploadURLs)))
	mux.Handle("POST /api/v1/docker/worker-jobs/{jobId}/complete",
		guard(http.HandlerFunc(handler.CompleteJob)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
