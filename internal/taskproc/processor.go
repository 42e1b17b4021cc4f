// Package taskproc drives run-docker-worker wrapper tasks: it resolves the
// inner task's profile, dispatches the job, and reconciles both task
// records when execution fails.
package taskproc

import (
	"context"
	"log/slog"

	"stevedore/internal/apperrors"
	"stevedore/internal/dockerjobs"
	"stevedore/internal/profile"
	"stevedore/internal/store"
)

// TaskType is the wrapper task type this processor handles.
const TaskType = "run_docker_worker"

// Wrapper task data keys.
const (
	dataInnerTaskID   = "innerTaskId"
	dataAppIdentifier = "appIdentifier"
	dataProfileName   = "profileName"
	dataJobName       = "jobName"
)

// JobRunner is the slice of the docker jobs service the processor uses.
type JobRunner interface {
	GetProfileSpec(ctx context.Context, appIdentifier, profileName string) (*profile.Spec, error)
	ExecuteDockerJob(ctx context.Context, params dockerjobs.ExecuteParams) (*dockerjobs.JobResult, error)
}

// Processor executes run-docker-worker tasks. It owns the terminal state of
// the wrapper task in every branch; the inner task's success completion
// arrives later through the worker's own callback.
type Processor struct {
	store  store.Store
	jobs   JobRunner
	logger *slog.Logger
}

// NewProcessor wires the task processor.
func NewProcessor(st store.Store, jobs JobRunner, logger *slog.Logger) *Processor {
	return &Processor{store: st, jobs: jobs, logger: logger}
}

// Process handles one wrapper task to a terminal state. The returned error
// reports infrastructure failures where no task state could be written;
// job-level failures are absorbed into the task records.
func (p *Processor) Process(ctx context.Context, wrapperTaskID string) error {
	wrapper, err := p.store.Tasks().Get(ctx, wrapperTaskID)
	if err != nil {
		return err
	}

	innerID, _ := wrapper.Data[dataInnerTaskID].(string)
	appIdentifier, _ := wrapper.Data[dataAppIdentifier].(string)
	profileName, _ := wrapper.Data[dataProfileName].(string)
	jobName, _ := wrapper.Data[dataJobName].(string)
	if innerID == "" || appIdentifier == "" || profileName == "" || jobName == "" {
		return p.completeWrapperOnly(ctx, wrapper.ID,
			apperrors.Validation("data", "wrapper task is missing dispatch fields"))
	}

	inner, err := p.store.Tasks().Get(ctx, innerID)
	if err != nil {
		return p.completeWrapperOnly(ctx, wrapper.ID, err)
	}

	spec, err := p.jobs.GetProfileSpec(ctx, appIdentifier, profileName)
	if err != nil {
		return p.completeBoth(ctx, inner.ID, wrapper.ID, err)
	}

	profileKey := appIdentifier + ":" + profileName
	fingerprint := map[string]any{
		"profileHash":   profile.Hash(spec),
		"profileKey":    profileKey,
		"jobIdentifier": jobName,
	}
	if err := p.store.Tasks().RegisterStarted(ctx, inner.ID, fingerprint); err != nil {
		return err
	}

	result, err := p.jobs.ExecuteDockerJob(ctx, dockerjobs.ExecuteParams{
		AppIdentifier: appIdentifier,
		ProfileName:   profileName,
		Spec:          spec,
		JobName:       jobName,
		TaskID:        inner.ID,
		StorageAccess: inner.StorageAccess,
		Data:          inner.Data,
	})
	if err == nil && !result.Success {
		err = result.Err
	}
	if err != nil {
		return p.completeBoth(ctx, inner.ID, wrapper.ID, err)
	}

	p.logger.Info("docker job dispatched",
		"wrapperTaskId", wrapper.ID, "innerTaskId", inner.ID, "jobId", result.JobID,
		"containerId", result.ContainerID, "hostId", result.HostID)

	// The worker's completion callback owns the inner task from here.
	return p.store.Tasks().RegisterCompleted(ctx, wrapper.ID, store.TaskCompletion{Success: true})
}

// completeBoth marks the inner and wrapper tasks completed in one
// transaction so the two records never diverge on failure. The inner task
// records the job-level error; the wrapper's own success reflects whether
// the failure was classifiable at the application level.
func (p *Processor) completeBoth(ctx context.Context, innerID, wrapperID string, cause error) error {
	appErr := apperrors.AsError(cause)
	runnerSuccess := appErr != nil

	innerCompletion := store.TaskCompletion{Success: false, Error: normalizeError(cause)}
	if appErr != nil {
		innerCompletion.RequeueDelay = appErr.RequeueDelay
	}

	wrapperCompletion := store.TaskCompletion{Success: runnerSuccess}
	if !runnerSuccess {
		wrapperCompletion.Error = &store.TaskError{
			Code:    "UNKNOWN_ERROR",
			Name:    "UnexpectedError",
			Message: "docker job failed without a classifiable error: " + cause.Error(),
		}
	}

	txErr := p.store.InTransaction(ctx, func(tx store.Store) error {
		if err := tx.Tasks().RegisterCompleted(ctx, innerID, innerCompletion); err != nil {
			return err
		}
		return tx.Tasks().RegisterCompleted(ctx, wrapperID, wrapperCompletion)
	})
	if txErr != nil {
		return txErr
	}

	p.logger.Warn("docker job failed; both tasks completed",
		"wrapperTaskId", wrapperID, "innerTaskId", innerID,
		"errorCode", innerCompletion.Error.Code, "classifiable", runnerSuccess)
	return nil
}

func (p *Processor) completeWrapperOnly(ctx context.Context, wrapperID string, cause error) error {
	completion := store.TaskCompletion{Success: false, Error: normalizeError(cause)}
	if err := p.store.Tasks().RegisterCompleted(ctx, wrapperID, completion); err != nil {
		return err
	}
	p.logger.Warn("wrapper task completed without dispatch",
		"wrapperTaskId", wrapperID, "errorCode", completion.Error.Code)
	return nil
}

// normalizeError converts any failure into the structured error recorded on
// a task, distinguishing classified application errors from wrapped
// unexpected ones.
func normalizeError(err error) *store.TaskError {
	if appErr := apperrors.AsError(err); appErr != nil {
		return &store.TaskError{
			Code:    appErr.Code,
			Name:    appErr.Code,
			Message: appErr.Message,
			Details: appErr.Details,
		}
	}
	return &store.TaskError{
		Code:    "UNKNOWN_ERROR",
		Name:    "UnexpectedError",
		Message: err.Error(),
	}
}
