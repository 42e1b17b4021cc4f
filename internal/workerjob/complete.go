package workerjob

import (
	"context"
	"time"

	"stevedore/internal/apperrors"
	"stevedore/internal/store"
)

// Completion error codes.
const (
	CodeJobNotTaskBound = "JOB_NOT_TASK_BOUND"
	CodeTaskNotStarted  = "TASK_NOT_STARTED"

	// defaultErrorCode is recorded when a worker reports failure without
	// structured detail.
	defaultErrorCode = "UNKNOWN_ERROR"
)

// CompletionError is the structured failure detail a worker may report.
type CompletionError struct {
	Code    string
	Message string
	Details map[string]any
}

// CompletionRequest is a worker's terminal report for its job.
type CompletionRequest struct {
	Success       bool
	Result        any
	Error         *CompletionError
	UploadedFiles []store.UploadedFile
}

// CompleteJob applies a worker's completion report to the task bound into
// its token. Exactly one of the success or failure paths executes,
// determined by req.Success. Completing a task that was never started is
// forbidden.
func (s *Service) CompleteJob(ctx context.Context, claims *Claims, req CompletionRequest) error {
	if claims.TaskID == "" {
		return apperrors.Forbidden(CodeJobNotTaskBound,
			"worker job token carries no task to complete")
	}

	task, err := s.store.Tasks().Get(ctx, claims.TaskID)
	if err != nil {
		return err
	}
	if task.StartedAt == nil {
		return apperrors.Forbidden(CodeTaskNotStarted,
			"task "+task.ID+" was never started")
	}

	if req.Success {
		if err := s.store.Tasks().RegisterCompleted(ctx, task.ID, store.TaskCompletion{Success: true}); err != nil {
			return err
		}
		if req.Result != nil || len(req.UploadedFiles) > 0 {
			update := store.TaskUpdate{
				At:            time.Now(),
				Result:        req.Result,
				UploadedFiles: req.UploadedFiles,
			}
			if err := s.store.Tasks().AppendUpdate(ctx, task.ID, update); err != nil {
				return err
			}
		}
		s.logger.Info("worker job completed",
			"taskId", task.ID, "jobId", claims.JobID(), "uploadedFiles", len(req.UploadedFiles))
		return nil
	}

	taskErr := store.TaskError{Code: defaultErrorCode, Message: "worker reported failure without detail"}
	if req.Error != nil {
		if req.Error.Code != "" {
			taskErr.Code = req.Error.Code
		}
		if req.Error.Message != "" {
			taskErr.Message = req.Error.Message
		}
		taskErr.Details = req.Error.Details
	}
	if err := s.store.Tasks().RecordError(ctx, task.ID, taskErr); err != nil {
		return err
	}
	s.logger.Warn("worker job failed",
		"taskId", task.ID, "jobId", claims.JobID(), "errorCode", taskErr.Code)
	return nil
}
