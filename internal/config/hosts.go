package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"stevedore/internal/dockerhost"
)

// LoadFleet reads the Docker host fleet configuration from a YAML file.
// When path is empty, a single default host pointing at the local Docker
// socket is returned so the service can run without a fleet file.
func LoadFleet(path string) (*dockerhost.Fleet, error) {
	if path == "" {
		return &dockerhost.Fleet{
			Hosts: map[string]dockerhost.Host{
				dockerhost.DefaultHostID: {Endpoint: "/var/run/docker.sock"},
			},
		}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hosts file: %w", err)
	}

	var fleet dockerhost.Fleet
	if err := yaml.Unmarshal(data, &fleet); err != nil {
		return nil, fmt.Errorf("parse hosts file %s: %w", path, err)
	}
	if len(fleet.Hosts) == 0 {
		return nil, fmt.Errorf("hosts file %s declares no hosts", path)
	}
	for id, h := range fleet.Hosts {
		if h.Endpoint == "" {
			return nil, fmt.Errorf("host %q has no endpoint", id)
		}
	}
	return &fleet, nil
}
