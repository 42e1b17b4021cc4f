// Package dockerhost holds the static Docker host fleet configuration and
// resolves profile keys to concrete hosts with per-host resource overrides.
package dockerhost

// DefaultHostID is used when no host assignment matches a profile key.
const DefaultHostID = "local"

// EndpointAuth authenticates requests to a proxied Docker endpoint.
// Exactly one of the two schemes is used; bearer wins when both are set.
type EndpointAuth struct {
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Bearer   string `yaml:"bearer,omitempty"`
}

// RegistryAuth holds pull credentials for one image registry.
type RegistryAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// GPUSpec requests GPU devices for containers created on a host.
// Count -1 means all available devices.
type GPUSpec struct {
	Driver    string   `yaml:"driver,omitempty"` // defaults to "nvidia"
	Count     int      `yaml:"count,omitempty"`
	DeviceIDs []string `yaml:"deviceIds,omitempty"`
}

// HostOverrides are per-profile-key resource overrides applied when creating
// containers on a host. Each field is looked up independently with the
// two-key fallback (exact profile key, then app-slug key).
type HostOverrides struct {
	Volumes     []string          `yaml:"volumes,omitempty"` // "host-path:container-path" binds
	Env         map[string]string `yaml:"env,omitempty"`
	GPU         *GPUSpec          `yaml:"gpu,omitempty"`
	ExtraHosts  []string          `yaml:"extraHosts,omitempty"`
	NetworkMode string            `yaml:"networkMode,omitempty"`
}

// Host is the static configuration for one Docker host.
// Immutable at runtime; looked up by id.
type Host struct {
	// Endpoint is the connection target: a tcp:// or http(s):// URL, or a
	// unix socket path.
	Endpoint string `yaml:"endpoint"`

	Auth *EndpointAuth `yaml:"auth,omitempty"`

	// RegistryAuths maps registry hostname to pull credentials.
	RegistryAuths map[string]RegistryAuth `yaml:"registryAuths,omitempty"`

	// Overrides maps profile key (exact "<app>:<profile>" or app-slug
	// "<slug>:<profile>") to resource overrides.
	Overrides map[string]HostOverrides `yaml:"overrides,omitempty"`
}

// Fleet is the full host fleet configuration.
type Fleet struct {
	// Hosts maps host id to its configuration.
	Hosts map[string]Host `yaml:"hosts"`

	// Assignments maps profile key to the host id jobs for that key run on.
	Assignments map[string]string `yaml:"assignments,omitempty"`
}
