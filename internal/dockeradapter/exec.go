package dockeradapter

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
)

// ExecResult holds the captured outcome of a command run inside a container.
type ExecResult struct {
	adapter     *Adapter
	execID      string
	containerID string
	exitCode    int
	stdout      string
	stderr      string
}

// ExitCode returns the command's exit code.
func (r *ExecResult) ExitCode() int {
	return r.exitCode
}

// Output returns the captured stdout and stderr, demultiplexed.
func (r *ExecResult) Output() (stdout, stderr string) {
	return r.stdout, r.stderr
}

// Err converts a non-zero exit into a classified error. Calling Err on a
// successful result is a programming mistake and panics.
func (r *ExecResult) Err() error {
	if r.exitCode == 0 {
		panic("dockeradapter: Err called on a successful exec result")
	}
	return classifyExecFailure(r.exitCode, r.stderr)
}

// State re-inspects the exec instance on the host.
func (r *ExecResult) State(ctx context.Context) (ExecState, error) {
	inspect, err := r.adapter.cli.ContainerExecInspect(ctx, r.execID)
	if err != nil {
		return ExecState{}, classifyHostErr("docker.inspectExec", err)
	}
	return ExecState{Running: inspect.Running, ExitCode: inspect.ExitCode}, nil
}

// ExecInContainer runs a command inside a running container, capturing
// stdout and stderr separately, and blocks until the command finishes.
// A non-zero exit is not an error here; inspect the result.
func (a *Adapter) ExecInContainer(ctx context.Context, containerID string, in ExecInput) (*ExecResult, error) {
	if len(in.Command) == 0 {
		return nil, fmt.Errorf("exec in container %s: empty command", containerID)
	}

	created, err := a.cli.ContainerExecCreate(ctx, containerID, container.ExecOptions{
		Cmd:          in.Command,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, classifyHostErr("docker.createExec", err)
	}

	attach, err := a.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, classifyHostErr("docker.attachExec", err)
	}
	defer attach.Close()

	var demux Demuxer
	if _, err := io.Copy(&demux, attach.Reader); err != nil && !errors.Is(err, io.EOF) {
		return nil, classifyHostErr("docker.readExecOutput", err)
	}
	stdout, stderr := demux.Collect()

	inspect, err := a.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, classifyHostErr("docker.inspectExec", err)
	}

	return &ExecResult{
		adapter:     a,
		execID:      created.ID,
		containerID: containerID,
		exitCode:    inspect.ExitCode,
		stdout:      stdout,
		stderr:      stderr,
	}, nil
}
