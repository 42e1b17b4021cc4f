package dockeradapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"stevedore/internal/apperrors"
)

// Machine-readable error kinds surfaced by the adapter. Callers classify by
// these codes, never by message text.
const (
	CodeHostConnectionError   = "HOST_CONNECTION_ERROR"
	CodeHostConnectionTimeout = "HOST_CONNECTION_TIMEOUT"
	CodeImageNotFound         = "IMAGE_NOT_FOUND"
	CodeImagePullError        = "IMAGE_PULL_ERROR"
	CodeArgumentListTooLong   = "COMMAND_ARGUMENT_LIST_TOO_LONG"
	CodeUnexpectedError       = "UNEXPECTED_ERROR"
)

// classifyHostErr maps a Docker endpoint failure onto the adapter taxonomy,
// preserving the original message.
func classifyHostErr(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || isTimeout(err):
		return apperrors.WithCode(CodeHostConnectionTimeout, op+": "+err.Error(), nil, err)
	case errors.Is(err, syscall.ECONNREFUSED) || strings.Contains(err.Error(), "connection refused"):
		return apperrors.WithCode(CodeHostConnectionError, op+": "+err.Error(), nil, err)
	default:
		return apperrors.WithCode(CodeUnexpectedError, op+": "+err.Error(), nil, err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// classifyExecFailure classifies a non-zero exec exit by inspecting stderr.
func classifyExecFailure(exitCode int, stderr string) error {
	if strings.Contains(strings.ToLower(stderr), "argument list too long") {
		return apperrors.WithCode(CodeArgumentListTooLong,
			"command failed: argument list too long",
			map[string]any{"exitCode": exitCode}, nil)
	}
	msg := fmt.Sprintf("command exited with code %d", exitCode)
	if s := strings.TrimSpace(stderr); s != "" {
		msg += ": " + truncate(s, 512)
	}
	return apperrors.WithCode(CodeUnexpectedError, msg,
		map[string]any{"exitCode": exitCode}, nil)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
