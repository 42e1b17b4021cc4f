// Package dockerclient orchestrates containers across the configured host
// fleet: it resolves profile keys to hosts and reuses or creates the
// container a job should run in.
package dockerclient

import (
	"context"
	"errors"
	"log/slog"

	"stevedore/internal/apperrors"
	"stevedore/internal/dockeradapter"
	"stevedore/internal/dockerhost"
)

// Machine-readable orchestration error codes.
const (
	CodeDockerNotConfigured        = "DOCKER_NOT_CONFIGURED"
	CodeContainerNotRunning        = "CONTAINER_NOT_RUNNING"
	CodeListContainersFailed       = "LIST_CONTAINERS_BY_LABELS_FAILED"
	CodeRestartContainerFailed     = "RESTART_CONTAINER_FAILED"
	CodeCreateContainerFailed      = "CREATE_CONTAINER_FAILED"
	CodeContainerStatusCheckFailed = "CONTAINER_STATUS_CHECK_FAILED"
	CodeExecInContainerFailed      = "EXEC_IN_CONTAINER_FAILED"
)

// ExecOutcome is the captured result of a command run inside a container.
// Satisfied by the adapter's exec result; fakes implement it in tests.
type ExecOutcome interface {
	ExitCode() int
	Output() (stdout, stderr string)
	Err() error
}

// HostAPI is the per-host capability surface the client depends on.
type HostAPI interface {
	HostID() string
	TestConnection(ctx context.Context) dockeradapter.ConnectionStatus
	ListContainersByLabels(ctx context.Context, labels map[string]string) ([]dockeradapter.ContainerRecord, error)
	CreateContainer(ctx context.Context, opts dockeradapter.CreateOptions) (*dockeradapter.ContainerRecord, error)
	StartContainer(ctx context.Context, containerID string) error
	IsContainerRunning(ctx context.Context, containerID string) (bool, error)
	ExecInContainer(ctx context.Context, containerID string, in dockeradapter.ExecInput) (ExecOutcome, error)
	Close() error
}

// adapterHost adapts the concrete adapter to HostAPI; only the exec return
// type needs widening to the interface.
type adapterHost struct {
	*dockeradapter.Adapter
}

func (h adapterHost) ExecInContainer(ctx context.Context, containerID string, in dockeradapter.ExecInput) (ExecOutcome, error) {
	res, err := h.Adapter.ExecInContainer(ctx, containerID, in)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Client routes container work to the right host and owns the
// find-or-create container lifecycle.
type Client struct {
	resolver *dockerhost.Resolver
	hosts    map[string]HostAPI
	logger   *slog.Logger
}

// New builds a client over pre-connected hosts. Used directly by tests;
// production wiring goes through Connect.
func New(resolver *dockerhost.Resolver, hosts map[string]HostAPI, logger *slog.Logger) *Client {
	return &Client{resolver: resolver, hosts: hosts, logger: logger}
}

// Connect builds one adapter per configured host and returns a client over
// the fleet. A host that fails to construct fails startup; connectivity is
// probed separately by health checks.
func Connect(fleet *dockerhost.Fleet, logger *slog.Logger) (*Client, error) {
	hosts := make(map[string]HostAPI, len(fleet.Hosts))
	for id, cfg := range fleet.Hosts {
		adapter, err := dockeradapter.New(id, cfg)
		if err != nil {
			for _, h := range hosts {
				h.Close()
			}
			return nil, err
		}
		hosts[id] = adapterHost{adapter}
	}
	return New(dockerhost.NewResolver(fleet), hosts, logger), nil
}

// Close releases every host connection.
func (c *Client) Close() error {
	var errs []error
	for _, h := range c.hosts {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Hosts exposes the connected hosts, keyed by host id. Health probing
// iterates this.
func (c *Client) Hosts() map[string]HostAPI {
	return c.hosts
}

// Resolver returns the fleet's profile-to-host resolver.
func (c *Client) Resolver() *dockerhost.Resolver {
	return c.resolver
}

// HostFor resolves a profile key to its connected host. A resolved host id
// with no connected adapter means the fleet config and the connection set
// disagree, reported as DOCKER_NOT_CONFIGURED.
func (c *Client) HostFor(profileKey string) (HostAPI, error) {
	hostID := c.resolver.HostID(profileKey)
	host, ok := c.hosts[hostID]
	if !ok {
		return nil, apperrors.WithCode(CodeDockerNotConfigured,
			"no docker host connected for profile "+profileKey,
			map[string]any{"profileKey": profileKey, "hostId": hostID}, nil)
	}
	return host, nil
}

// FindOrCreateContainer returns a running container matching the labels on
// the given host, in order of preference: an already-running match, a
// stopped match started in place, or a freshly created container. The
// second return reports whether a container was created.
func (c *Client) FindOrCreateContainer(ctx context.Context, host HostAPI, labels map[string]string, opts dockeradapter.CreateOptions) (*dockeradapter.ContainerRecord, bool, error) {
	matches, err := host.ListContainersByLabels(ctx, labels)
	if err != nil {
		return nil, false, apperrors.WithCode(CodeListContainersFailed,
			"list containers by labels failed: "+err.Error(),
			map[string]any{"hostId": host.HostID(), "labels": labels}, err)
	}

	for _, m := range matches {
		if m.State == dockeradapter.StateRunning {
			c.logger.Debug("reusing running container",
				"containerId", m.ID, "hostId", host.HostID())
			found := m
			return &found, false, nil
		}
	}

	// Only exited or created containers can be started in place. A paused or
	// unknown-state match is left alone and a fresh container is created.
	for _, m := range matches {
		if m.State != dockeradapter.StateExited && m.State != dockeradapter.StateCreated {
			continue
		}
		found := m
		if err := host.StartContainer(ctx, found.ID); err != nil {
			return nil, false, apperrors.WithCode(CodeRestartContainerFailed,
				"restart of existing container failed: "+err.Error(),
				map[string]any{"hostId": host.HostID(), "containerId": found.ID}, err)
		}
		c.logger.Info("restarted stopped container",
			"containerId", found.ID, "hostId", host.HostID(), "previousState", string(found.State))
		found.State = dockeradapter.StateRunning
		return &found, false, nil
	}

	created, err := host.CreateContainer(ctx, opts)
	if err != nil {
		return nil, false, apperrors.WithCode(CodeCreateContainerFailed,
			"create container failed: "+err.Error(),
			map[string]any{"hostId": host.HostID(), "image": opts.Image, "labels": labels}, err)
	}
	c.logger.Info("created container",
		"containerId", created.ID, "hostId", host.HostID(), "image", opts.Image)
	return created, true, nil
}

// ExecReport carries the outcome of an in-container execution plus the
// container it ran in.
type ExecReport struct {
	Container dockeradapter.ContainerRecord
	HostID    string
	Result    ExecOutcome
	Created   bool
}

// ExecInProfileContainer finds or creates the container for a profile and
// runs a command inside it. The container's running state is re-verified
// before exec so a container that died between start and exec surfaces as
// CONTAINER_NOT_RUNNING rather than an opaque exec failure.
func (c *Client) ExecInProfileContainer(ctx context.Context, profileKey string, labels map[string]string, opts dockeradapter.CreateOptions, command []string) (*ExecReport, error) {
	host, err := c.HostFor(profileKey)
	if err != nil {
		return nil, err
	}

	record, createdNew, err := c.FindOrCreateContainer(ctx, host, labels, opts)
	if err != nil {
		return nil, err
	}

	running, err := host.IsContainerRunning(ctx, record.ID)
	if err != nil {
		return nil, apperrors.WithCode(CodeContainerStatusCheckFailed,
			"container status check failed: "+err.Error(),
			map[string]any{"hostId": host.HostID(), "containerId": record.ID}, err)
	}
	if !running {
		return nil, apperrors.WithCode(CodeContainerNotRunning,
			"container is not running",
			map[string]any{"hostId": host.HostID(), "containerId": record.ID}, nil)
	}

	result, err := host.ExecInContainer(ctx, record.ID, dockeradapter.ExecInput{Command: command})
	if err != nil {
		return nil, apperrors.WithCode(CodeExecInContainerFailed,
			"exec in container failed: "+err.Error(),
			map[string]any{"hostId": host.HostID(), "containerId": record.ID}, err)
	}

	return &ExecReport{Container: *record, HostID: host.HostID(), Result: result, Created: createdNew}, nil
}
