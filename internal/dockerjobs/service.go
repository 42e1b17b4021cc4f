// Package dockerjobs is the job-level façade: it resolves an app's declared
// job definitions, computes discovery labels and the profile hash, mints
// worker callback tokens, and drives the docker client to run jobs.
package dockerjobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"stevedore/internal/apperrors"
	"stevedore/internal/dockeradapter"
	"stevedore/internal/dockerclient"
	"stevedore/internal/profile"
	"stevedore/internal/store"
	"stevedore/internal/workerjob"
)

// Interface modes describing how a worker receives jobs.
const (
	ModeExecPerJob     = "exec_per_job"
	ModePersistentHTTP = "persistent_http"
)

// InterfaceDescriptor tells the worker process how job delivery works for
// its kind: one-shot exec, or a persistent listener on a declared port.
type InterfaceDescriptor struct {
	Mode     string `json:"mode"`
	Protocol string `json:"protocol,omitempty"`
	Port     int    `json:"port,omitempty"`
}

// jobEnvelope is the JSON payload handed to the worker command as its final
// argument. JobToken is omitted for jobs with no task and no storage
// access; such jobs run unauthenticated since no callback is possible.
type jobEnvelope struct {
	JobID     string              `json:"jobId"`
	JobName   string              `json:"jobName"`
	TaskID    string              `json:"taskId,omitempty"`
	JobToken  string              `json:"jobToken,omitempty"`
	Interface InterfaceDescriptor `json:"interface"`
	Data      any                 `json:"data,omitempty"`
}

// JobMetrics records execution outcomes. Optional; a nil recorder disables
// instrumentation.
type JobMetrics interface {
	RecordJobStarted(ctx context.Context, image string)
	RecordJobCompleted(ctx context.Context, image string, success bool, durationSeconds float64)
	RecordContainerAcquired(ctx context.Context, image string, created bool)
}

// Service executes docker jobs for apps.
type Service struct {
	store   store.Store
	docker  *dockerclient.Client
	workers *workerjob.Service
	logger  *slog.Logger
	metrics JobMetrics
}

// NewService wires the docker jobs service.
func NewService(st store.Store, docker *dockerclient.Client, workers *workerjob.Service, logger *slog.Logger) *Service {
	return &Service{store: st, docker: docker, workers: workers, logger: logger}
}

// SetMetrics attaches a metrics recorder.
func (s *Service) SetMetrics(m JobMetrics) {
	s.metrics = m
}

// GetProfileSpec loads the named profile from an enabled app. A missing or
// disabled app, or an undeclared profile, is a not-found error.
func (s *Service) GetProfileSpec(ctx context.Context, appIdentifier, profileName string) (*profile.Spec, error) {
	app, err := s.store.Apps().GetEnabled(ctx, appIdentifier)
	if err != nil {
		return nil, err
	}
	spec, ok := app.Profiles[profileName]
	if !ok {
		return nil, apperrors.NotFoundMsg("profile",
			"profile "+profileName+" is not declared on app "+appIdentifier)
	}
	return &spec, nil
}

// ResolveProfileJobDefinition resolves a job name against a profile spec.
// The not-found message lists every declared job name so an operator can
// spot a typo without digging through config.
func ResolveProfileJobDefinition(spec *profile.Spec, jobName string) (profile.JobDefinition, error) {
	def, ok := spec.FindJob(jobName)
	if !ok {
		return profile.JobDefinition{}, apperrors.NotFoundMsg("job",
			"job "+jobName+" not found in profile; available jobs: "+strings.Join(spec.JobNames(), ", "))
	}
	return def, nil
}

// ExecuteParams describes one job dispatch.
type ExecuteParams struct {
	AppIdentifier string
	ProfileName   string
	Spec          *profile.Spec
	JobName       string

	// TaskID binds the execution to an inner task; empty for detached jobs.
	TaskID string
	// StorageAccess is the task's storage access policy, projected into the
	// callback token's upload grants.
	StorageAccess []store.StorageAccessRule

	// Data is the job's input payload, embedded into the envelope.
	Data any
}

// JobResult is the outcome of a synchronous job execution. Err carries the
// classified execution failure for a non-zero exit; orchestration failures
// are returned from ExecuteDockerJob itself.
type JobResult struct {
	JobID            string
	ContainerID      string
	HostID           string
	ContainerCreated bool
	Success          bool
	Output           string
	Err              error
}

// ExecuteDockerJob runs one job synchronously: generates a job id, computes
// the profile hash and discovery labels, mints a callback token when the
// job is task-bound or carries storage access, finds or creates the
// container, and executes the job command inside it.
func (s *Service) ExecuteDockerJob(ctx context.Context, params ExecuteParams) (*JobResult, error) {
	jobID := uuid.NewString()

	def, err := ResolveProfileJobDefinition(params.Spec, params.JobName)
	if err != nil {
		return nil, err
	}

	hash := profile.Hash(params.Spec)
	labels := profile.DiscoveryLabels(hash)
	profileKey := params.AppIdentifier + ":" + params.ProfileName

	token, err := s.mintToken(ctx, jobID, params)
	if err != nil {
		return nil, err
	}

	envelope := buildEnvelope(jobID, def, params.TaskID, token, params.Data)
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, apperrors.Internal("dockerjobs.marshalEnvelope", err)
	}
	// The envelope travels as one shell-quoted argv entry; oversized
	// payloads surface as COMMAND_ARGUMENT_LIST_TOO_LONG from the adapter.
	command := []string{"/bin/sh", "-c", def.Command + " " + shellQuote(string(payload))}

	resolved := s.docker.Resolver().Resolve(profileKey)
	opts := dockeradapter.CreateOptions{
		Image:       params.Spec.Image,
		Labels:      labels,
		Env:         resolved.Env,
		Volumes:     resolved.Volumes,
		ExtraHosts:  resolved.ExtraHosts,
		NetworkMode: resolved.NetworkMode,
		GPU:         resolved.GPU,
	}
	if def.Kind == profile.WorkerKindHTTP {
		opts.Command = []string{"/bin/sh", "-c", def.Command}
	}

	s.logger.Info("dispatching docker job",
		"jobId", jobID, "jobName", def.JobName, "profileKey", profileKey,
		"profileHash", hash, "taskId", params.TaskID)

	start := time.Now()
	if s.metrics != nil {
		s.metrics.RecordJobStarted(ctx, params.Spec.Image)
	}

	report, err := s.docker.ExecInProfileContainer(ctx, profileKey, labels, opts, command)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordJobCompleted(ctx, params.Spec.Image, false, time.Since(start).Seconds())
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordContainerAcquired(ctx, params.Spec.Image, report.Created)
	}

	result := &JobResult{
		JobID:            jobID,
		ContainerID:      report.Container.ID,
		HostID:           report.HostID,
		ContainerCreated: report.Created,
	}
	stdout, _ := report.Result.Output()
	result.Output = stdout
	if report.Result.ExitCode() == 0 {
		result.Success = true
	} else {
		result.Err = report.Result.Err()
	}
	if s.metrics != nil {
		s.metrics.RecordJobCompleted(ctx, params.Spec.Image, result.Success, time.Since(start).Seconds())
	}
	return result, nil
}

// AsyncAck acknowledges an asynchronous dispatch: the job was accepted and
// will run in the background; its outcome arrives via the worker's own
// completion callback.
type AsyncAck struct {
	JobID    string
	Accepted bool
}

// ExecuteDockerJobAsync validates and dispatches a job without waiting for
// its execution. Queue-stage failures (unknown job, authorization) are
// returned synchronously; execution failures are only logged here since the
// worker callback owns task completion.
func (s *Service) ExecuteDockerJobAsync(ctx context.Context, params ExecuteParams) (*AsyncAck, error) {
	if _, err := ResolveProfileJobDefinition(params.Spec, params.JobName); err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	ack := &AsyncAck{JobID: uuid.NewString(), Accepted: true}
	go func() {
		result, err := s.ExecuteDockerJob(bg, params)
		if err != nil {
			s.logger.Error("async docker job dispatch failed",
				"jobName", params.JobName, "appIdentifier", params.AppIdentifier, "error", err)
			return
		}
		if !result.Success {
			s.logger.Warn("async docker job exited non-zero",
				"jobId", result.JobID, "error", result.Err)
		}
	}()
	return ack, nil
}

// mintToken issues a worker job token when the job is task-bound or grants
// storage access. Jobs with neither run without a token.
func (s *Service) mintToken(ctx context.Context, jobID string, params ExecuteParams) (string, error) {
	if params.TaskID == "" && len(params.StorageAccess) == 0 {
		return "", nil
	}

	var allowed map[string][]string
	if requested := workerjob.UploadsFromAccessRules(params.StorageAccess); len(requested) > 0 {
		var err error
		allowed, err = s.workers.ValidateAllowedUploads(ctx, params.AppIdentifier, requested)
		if err != nil {
			return "", err
		}
	}
	return s.workers.Tokens().Mint(jobID, params.TaskID, params.AppIdentifier, allowed)
}

func buildEnvelope(jobID string, def profile.JobDefinition, taskID, token string, data any) jobEnvelope {
	descriptor := InterfaceDescriptor{Mode: ModeExecPerJob}
	if def.Kind == profile.WorkerKindHTTP {
		descriptor = InterfaceDescriptor{Mode: ModePersistentHTTP, Protocol: "tcp", Port: def.Port}
	}
	return jobEnvelope{
		JobID:     jobID,
		JobName:   def.JobName,
		TaskID:    taskID,
		JobToken:  token,
		Interface: descriptor,
		Data:      data,
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
