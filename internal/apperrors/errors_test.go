package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestSentinelClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", Validation("objectKey", "object key must not be empty"), ErrValidation},
		{"not found", NotFound("folder", "f-1"), ErrNotFound},
		{"not found msg", NotFoundMsg("job", "job x not found, available: a, b"), ErrNotFound},
		{"conflict", Conflict("container", "c-1", "already exists"), ErrConflict},
		{"unauthorized", Unauthorized("TOKEN_EXPIRED", "token expired"), ErrUnauthorized},
		{"forbidden", Forbidden("UPLOAD_NOT_ALLOWED", "prefix mismatch"), ErrForbidden},
		{"internal", Internal("docker.pullImage", errors.New("boom")), ErrInternal},
		{"with code", WithCode("CREATE_CONTAINER_FAILED", "create failed", nil, errors.New("boom")), ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if !errors.Is(tt.err, tt.sentinel) {
				t.Errorf("errors.Is(%v, %v) = false, want true", tt.err, tt.sentinel)
			}
		})
	}
}

func TestCode(t *testing.T) {
	t.Parallel()

	if got := Code(Unauthorized("TOKEN_EXPIRED", "x")); got != "TOKEN_EXPIRED" {
		t.Errorf("Code() = %q, want TOKEN_EXPIRED", got)
	}
	if got := Code(errors.New("plain")); got != "UNKNOWN_ERROR" {
		t.Errorf("Code() = %q, want UNKNOWN_ERROR", got)
	}
	// Wrapped structured errors still classify.
	wrapped := fmt.Errorf("context: %w", Forbidden("FOLDER_NOT_ENABLED", "nope"))
	if got := Code(wrapped); got != "FOLDER_NOT_ENABLED" {
		t.Errorf("Code() = %q, want FOLDER_NOT_ENABLED", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{Validation("f", "bad"), http.StatusBadRequest},
		{Unauthorized("TOKEN_INVALID", "bad token"), http.StatusUnauthorized},
		{Forbidden("UPLOAD_NOT_ALLOWED", "no"), http.StatusForbidden},
		{NotFound("task", "t-1"), http.StatusNotFound},
		{Conflict("container", "c-1", "exists"), http.StatusConflict},
		{Internal("op", errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRequeueDelayPreserved(t *testing.T) {
	t.Parallel()

	err := &Error{Sentinel: ErrInternal, Code: "WORKER_BUSY", Message: "busy", RequeueDelay: 5}
	e := AsError(fmt.Errorf("wrap: %w", err))
	if e == nil {
		t.Fatal("AsError() = nil, want structured error")
	}
	if e.RequeueDelay != 5 {
		t.Errorf("RequeueDelay = %v, want 5", e.RequeueDelay)
	}
}
