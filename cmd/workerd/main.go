// workerd is the docker worker gateway: it dispatches app jobs into worker
// containers across the configured Docker host fleet and serves the worker
// callback API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"stevedore/internal/api"
	"stevedore/internal/config"
	"stevedore/internal/dockerclient"
	"stevedore/internal/dockerjobs"
	"stevedore/internal/health"
	"stevedore/internal/observability"
	"stevedore/internal/storage"
	"stevedore/internal/store"
	"stevedore/internal/taskproc"
	"stevedore/internal/taskqueue"
	"stevedore/internal/workerjob"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()
	logger := slog.Default()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	queueCfg := taskqueue.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Connect the Docker host fleet
	fleet, err := config.LoadFleet(svcCfg.HostsFile)
	if err != nil {
		return err
	}
	docker, err := dockerclient.Connect(fleet, logger)
	if err != nil {
		return err
	}
	defer docker.Close()

	slog.Info("Connected Docker host fleet", "hosts", len(docker.Hosts()))

	// Worker callback credentials
	if svcCfg.WorkerTokenSecret == "" {
		slog.Warn("No WORKER_TOKEN_SECRET configured - worker callbacks will not verify")
	}
	tokens := workerjob.NewTokenService([]byte(svcCfg.WorkerTokenSecret), svcCfg.PlatformHost)

	// Presigned uploads
	presigner, err := storage.NewS3Presigner(ctx, storage.S3Config{
		Region:          svcCfg.S3Region,
		Endpoint:        svcCfg.S3Endpoint,
		AccessKeyID:     svcCfg.S3AccessKeyID,
		SecretAccessKey: svcCfg.S3SecretAccessKey,
	})
	if err != nil {
		return err
	}

	// Services
	st := store.NewMemory()
	workers := workerjob.NewService(st, tokens, presigner, logger)
	jobs := dockerjobs.NewService(st, docker, workers, logger)
	jobs.SetMetrics(metrics)

	// Task queue with the run_docker_worker processor
	processor := taskproc.NewProcessor(st, jobs, logger)
	queue := taskqueue.NewMemory(queueCfg, map[string]taskqueue.Handler{
		taskproc.TaskType: processor,
	}, metrics)

	// Create health checker over the fleet
	probers := make(map[string]health.HostProber, len(docker.Hosts()))
	for id, host := range docker.Hosts() {
		probers[id] = host
	}
	healthChecker := health.NewChecker(probers)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		WorkerJobs:    workers,
		Metrics:       metrics,
		HealthChecker: healthChecker,
	})

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(25 * time.Second)

	// Phase 3: Drain the task queue
	slog.Info("Draining task queue")
	queueCtx, queueCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer queueCancel()
	if err := queue.Close(queueCtx); err != nil {
		slog.Warn("Task queue shutdown error", "error", err)
	}

	// Log final queue stats
	stats := queue.Stats()
	slog.Info("Task queue stats",
		"processed", stats.Processed,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	// Worker containers keep running on their hosts; the next dispatch with a
	// matching profile hash will reuse them.
	slog.Info("Shutdown complete")
	return nil
}
