// Package dockeradapter is the single-host capability provider: the only
// package that speaks the Docker Engine API. One adapter instance per
// configured host.
package dockeradapter

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/sockets"

	"stevedore/internal/apperrors"
	"stevedore/internal/dockerhost"
)

// DefaultRegistry is assumed when an image reference names no registry.
const DefaultRegistry = "index.docker.io"

// connectTimeout bounds connection establishment to HTTP(S) endpoints.
const connectTimeout = 5 * time.Second

// Adapter wraps one Docker host. Safe for concurrent use: every operation
// is an independent Engine API request over the shared connection handle.
type Adapter struct {
	hostID string
	cfg    dockerhost.Host
	cli    client.APIClient
}

// New connects an adapter to the configured host endpoint. The endpoint is
// a unix socket path or a tcp/http(s) URL; http(s) endpoints get a TLS-aware
// transport with a bounded connect timeout, and optional endpoint auth is
// injected as a standing Authorization header.
func New(hostID string, cfg dockerhost.Host) (*Adapter, error) {
	endpoint := cfg.Endpoint
	if !strings.Contains(endpoint, "://") {
		endpoint = "unix://" + endpoint
	}

	scheme, rest, _ := strings.Cut(endpoint, "://")
	transport := &http.Transport{}
	hostOpt := endpoint

	switch scheme {
	case "unix":
		if err := sockets.ConfigureTransport(transport, "unix", rest); err != nil {
			return nil, fmt.Errorf("configure unix transport for host %s: %w", hostID, err)
		}
	case "tcp", "http", "https":
		hostOpt = "tcp://" + rest
		transport.DialContext = (&net.Dialer{Timeout: connectTimeout}).DialContext
		if scheme == "https" {
			transport.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	default:
		return nil, fmt.Errorf("host %s: unsupported endpoint scheme %q", hostID, scheme)
	}

	opts := []client.Opt{
		client.WithHost(hostOpt),
		client.WithHTTPClient(&http.Client{Transport: transport}),
		client.WithAPIVersionNegotiation(),
	}
	if header := authHeader(cfg.Auth); header != "" {
		opts = append(opts, client.WithHTTPHeaders(map[string]string{"Authorization": header}))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client for host %s: %w", hostID, err)
	}

	return &Adapter{hostID: hostID, cfg: cfg, cli: cli}, nil
}

func authHeader(auth *dockerhost.EndpointAuth) string {
	if auth == nil {
		return ""
	}
	if auth.Bearer != "" {
		return "Bearer " + auth.Bearer
	}
	if auth.Username != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(auth.Username + ":" + auth.Password))
		return "Basic " + cred
	}
	return ""
}

// HostID returns the configured id of the host this adapter talks to.
func (a *Adapter) HostID() string {
	return a.hostID
}

// Close releases the underlying connection handle.
func (a *Adapter) Close() error {
	return a.cli.Close()
}

// TestConnection probes the host. Never returns an error; failures are
// reported in the status so health checks can aggregate them.
func (a *Adapter) TestConnection(ctx context.Context) ConnectionStatus {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	version, err := a.cli.ServerVersion(ctx)
	if err != nil {
		return ConnectionStatus{Success: false, Error: err.Error()}
	}
	return ConnectionStatus{
		Success:    true,
		Version:    version.Version,
		APIVersion: version.APIVersion,
	}
}

// HostResources returns a sanitized view of host introspection. Fields the
// host does not report are dropped rather than causing failure.
func (a *Adapter) HostResources(ctx context.Context) (*HostResources, error) {
	info, err := a.cli.Info(ctx)
	if err != nil {
		return nil, classifyHostErr("docker.info", err)
	}

	res := &HostResources{Info: map[string]any{}}
	if info.NCPU > 0 {
		cores := info.NCPU
		res.CPUCores = &cores
	}
	if info.MemTotal > 0 {
		mem := info.MemTotal
		res.MemoryBytes = &mem
	}

	// Only known-small scalar fields; anything else is dropped.
	if info.Name != "" {
		res.Info["name"] = info.Name
	}
	if info.OperatingSystem != "" {
		res.Info["operatingSystem"] = info.OperatingSystem
	}
	if info.KernelVersion != "" {
		res.Info["kernelVersion"] = info.KernelVersion
	}
	if info.ServerVersion != "" {
		res.Info["serverVersion"] = info.ServerVersion
	}
	res.Info["containers"] = info.Containers
	res.Info["containersRunning"] = info.ContainersRunning
	res.Info["images"] = info.Images

	return res, nil
}

// ContainerStats derives CPU and memory utilization percentages from one
// stats sample (which carries both the current and previous cgroup
// snapshots). Missing inputs yield nil percentages, never zero.
func (a *Adapter) ContainerStats(ctx context.Context, containerID string) (*ContainerStats, error) {
	resp, err := a.cli.ContainerStats(ctx, containerID, false)
	if err != nil {
		return nil, classifyHostErr("docker.containerStats", err)
	}
	defer resp.Body.Close()

	var snapshot statsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, classifyHostErr("docker.containerStats.decode", err)
	}

	stats := deriveStats(&snapshot)
	return &stats, nil
}

var nvidiaDevicePattern = regexp.MustCompile(`(?i)nvidia`)

// gpuView is the narrowed slice of container inspect data GPU detection
// operates on.
type gpuView struct {
	requests []deviceRequestView
	devices  []string
	runtime  string
}

type deviceRequestView struct {
	driver       string
	capabilities [][]string
}

// gpuIndicator reports which signal, if any, suggests the container has GPU
// access, plus the driver named by a device request.
func gpuIndicator(v gpuView) (indicator, driver string) {
	for _, req := range v.requests {
		for _, caps := range req.capabilities {
			for _, c := range caps {
				if c == "gpu" {
					return "device_request_capability", req.driver
				}
			}
		}
		if req.driver == "nvidia" {
			return "nvidia_driver", req.driver
		}
	}
	if v.runtime == "nvidia" {
		return "nvidia_runtime", ""
	}
	for _, path := range v.devices {
		if nvidiaDevicePattern.MatchString(path) {
			return "nvidia_device", ""
		}
	}
	return "", ""
}

// ContainerGPUInfo inspects a container for GPU indicators. No indicator is
// a normal nil result, not an error. When introspection cannot proceed (not
// running, non-nvidia driver) the result carries a diagnostic only;
// otherwise nvidia-smi -L is executed inside the container.
func (a *Adapter) ContainerGPUInfo(ctx context.Context, containerID string) (*GPUInfo, error) {
	inspect, err := a.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, classifyHostErr("docker.inspectContainer", err)
	}

	view := gpuView{}
	if inspect.HostConfig != nil {
		view.runtime = inspect.HostConfig.Runtime
		for _, req := range inspect.HostConfig.Resources.DeviceRequests {
			view.requests = append(view.requests, deviceRequestView{
				driver:       req.Driver,
				capabilities: req.Capabilities,
			})
		}
		for _, dev := range inspect.HostConfig.Devices {
			view.devices = append(view.devices, dev.PathOnHost)
		}
	}

	indicator, driver := gpuIndicator(view)
	if indicator == "" {
		return nil, nil
	}

	info := &GPUInfo{Indicator: indicator, Driver: driver}
	if driver != "" && driver != "nvidia" {
		info.Diagnostic = fmt.Sprintf("gpu introspection is not supported for driver %q", driver)
		return info, nil
	}
	if inspect.State == nil || !inspect.State.Running {
		info.Diagnostic = "container is not running; cannot execute nvidia-smi"
		return info, nil
	}

	result, err := a.ExecInContainer(ctx, containerID, ExecInput{Command: []string{"nvidia-smi", "-L"}})
	if err != nil {
		info.Diagnostic = "nvidia-smi execution failed: " + err.Error()
		return info, nil
	}
	stdout, stderr := result.Output()
	if result.ExitCode() != 0 {
		info.Diagnostic = "nvidia-smi exited with code " + fmt.Sprint(result.ExitCode()) + ": " + strings.TrimSpace(stderr)
		return info, nil
	}
	info.DeviceList = strings.TrimSpace(stdout)
	return info, nil
}

// RegistryOf infers the registry from an image reference: no slash means the
// default registry; a first path segment containing "." or ":" is the
// registry; anything else is the default registry.
func RegistryOf(imageRef string) string {
	if !strings.Contains(imageRef, "/") {
		return DefaultRegistry
	}
	first, _, _ := strings.Cut(imageRef, "/")
	if strings.Contains(first, ".") || strings.Contains(first, ":") {
		return first
	}
	return DefaultRegistry
}

func (a *Adapter) registryAuthFor(imageRef string) string {
	reg := RegistryOf(imageRef)
	creds, ok := a.cfg.RegistryAuths[reg]
	if !ok {
		return ""
	}
	authConfig := registry.AuthConfig{
		Username:      creds.Username,
		Password:      creds.Password,
		ServerAddress: reg,
	}
	data, err := json.Marshal(authConfig)
	if err != nil {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

// PullImage streams a registry pull to completion. A missing image maps to
// IMAGE_NOT_FOUND, anything else to IMAGE_PULL_ERROR.
func (a *Adapter) PullImage(ctx context.Context, imageRef string) error {
	reader, err := a.cli.ImagePull(ctx, imageRef, image.PullOptions{
		RegistryAuth: a.registryAuthFor(imageRef),
	})
	if err != nil {
		if errdefs.IsNotFound(err) || strings.Contains(err.Error(), "not found") || strings.Contains(err.Error(), "manifest unknown") {
			return apperrors.WithCode(CodeImageNotFound, "image not found: "+err.Error(),
				map[string]any{"image": imageRef}, err)
		}
		return apperrors.WithCode(CodeImagePullError, "image pull failed: "+err.Error(),
			map[string]any{"image": imageRef}, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return apperrors.WithCode(CodeImagePullError, "image pull stream failed: "+err.Error(),
			map[string]any{"image": imageRef}, err)
	}
	return nil
}

// ImageExists reports whether the image is present locally. Inspect failure
// is absorbed as false rather than propagated.
func (a *Adapter) ImageExists(ctx context.Context, imageRef string) bool {
	_, err := a.cli.ImageInspect(ctx, imageRef)
	return err == nil
}

// ListContainersByLabels returns all containers, running or not, whose
// labels match every given key/value pair.
func (a *Adapter) ListContainersByLabels(ctx context.Context, labels map[string]string) ([]ContainerRecord, error) {
	args := filters.NewArgs()
	for k, v := range labels {
		args.Add("label", k+"="+v)
	}

	containers, err := a.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, classifyHostErr("docker.listContainers", err)
	}

	records := make([]ContainerRecord, 0, len(containers))
	for _, c := range containers {
		records = append(records, ContainerRecord{
			ID:        c.ID,
			Image:     c.Image,
			Labels:    c.Labels,
			State:     ParseContainerState(c.State),
			CreatedAt: time.Unix(c.Created, 0),
		})
	}
	return records, nil
}

// CreateContainer pulls the image if not present locally, creates a
// container with the requested host config, starts it, and returns its
// record in running state.
func (a *Adapter) CreateContainer(ctx context.Context, opts CreateOptions) (*ContainerRecord, error) {
	if !a.ImageExists(ctx, opts.Image) {
		if err := a.PullImage(ctx, opts.Image); err != nil {
			return nil, err
		}
	}

	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, k+"="+v)
	}

	hostConfig := &container.HostConfig{
		Binds:      opts.Volumes,
		ExtraHosts: opts.ExtraHosts,
	}
	if opts.NetworkMode != "" {
		hostConfig.NetworkMode = container.NetworkMode(opts.NetworkMode)
	}
	if opts.GPU != nil {
		driver := opts.GPU.Driver
		if driver == "" {
			driver = "nvidia"
		}
		req := container.DeviceRequest{
			Driver:       driver,
			Count:        opts.GPU.Count,
			DeviceIDs:    opts.GPU.DeviceIDs,
			Capabilities: [][]string{{"gpu"}},
		}
		if len(req.DeviceIDs) > 0 {
			req.Count = 0
		}
		hostConfig.Resources.DeviceRequests = append(hostConfig.Resources.DeviceRequests, req)
	}

	containerConfig := &container.Config{
		Image:  opts.Image,
		Cmd:    opts.Command,
		Env:    env,
		Labels: opts.Labels,
	}

	resp, err := a.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, opts.Name)
	if err != nil {
		return nil, classifyHostErr("docker.createContainer", err)
	}

	if err := a.StartContainer(ctx, resp.ID); err != nil {
		return nil, err
	}

	return &ContainerRecord{
		ID:        resp.ID,
		Image:     opts.Image,
		Labels:    opts.Labels,
		State:     StateRunning,
		CreatedAt: time.Now(),
	}, nil
}

// StartContainer starts a container. An "already running" response from the
// engine is absorbed as success.
func (a *Adapter) StartContainer(ctx context.Context, containerID string) error {
	err := a.cli.ContainerStart(ctx, containerID, container.StartOptions{})
	if err != nil && !errdefs.IsNotModified(err) {
		return classifyHostErr("docker.startContainer", err)
	}
	return nil
}

// StopContainer stops a container with the engine's default grace period.
func (a *Adapter) StopContainer(ctx context.Context, containerID string) error {
	if err := a.cli.ContainerStop(ctx, containerID, container.StopOptions{}); err != nil {
		return classifyHostErr("docker.stopContainer", err)
	}
	return nil
}

// RestartContainer restarts a container.
func (a *Adapter) RestartContainer(ctx context.Context, containerID string) error {
	if err := a.cli.ContainerRestart(ctx, containerID, container.StopOptions{}); err != nil {
		return classifyHostErr("docker.restartContainer", err)
	}
	return nil
}

// RemoveContainer removes a container, optionally force-removing a running
// one.
func (a *Adapter) RemoveContainer(ctx context.Context, containerID string, force bool) error {
	if err := a.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: force}); err != nil {
		return classifyHostErr("docker.removeContainer", err)
	}
	return nil
}

// IsContainerRunning reports the container's live running state.
func (a *Adapter) IsContainerRunning(ctx context.Context, containerID string) (bool, error) {
	inspect, err := a.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return false, classifyHostErr("docker.inspectContainer", err)
	}
	return inspect.State != nil && inspect.State.Running, nil
}
