// Package deployment defines the Deployment resource kind: one managed
// container on one server.
package deployment

import "github.com/komodo-run/core/internal/domain/resource"

// Config is the fully-materialized Deployment configuration.
type Config struct {
	ServerId      string            `json:"server_id,omitempty"`
	Image         string            `json:"image"`
	BuildId       string            `json:"build_id,omitempty"`
	Command       string            `json:"command,omitempty"`
	Network       string            `json:"network,omitempty"`
	RestartPolicy string            `json:"restart_policy,omitempty"`
	Ports         map[string]string `json:"ports,omitempty"`
	Volumes       map[string]string `json:"volumes,omitempty"`
	Environment   map[string]string `json:"environment,omitempty"`
	Labels        map[string]string `json:"labels,omitempty"`
	RedeployOnBuild bool            `json:"redeploy_on_build"`
	AutoUpdate      bool            `json:"auto_update"`
}

func Default() Config {
	return Config{RestartPolicy: "unless-stopped"}
}

// PartialConfig is the all-optional update wire type / TOML type.
type PartialConfig struct {
	ServerId      *string           `json:"server_id,omitempty" toml:"server_id,omitempty"`
	Image         *string           `json:"image,omitempty" toml:"image,omitempty"`
	BuildId       *string           `json:"build_id,omitempty" toml:"build_id,omitempty"`
	Command       *string           `json:"command,omitempty" toml:"command,omitempty"`
	Network       *string           `json:"network,omitempty" toml:"network,omitempty"`
	RestartPolicy *string           `json:"restart_policy,omitempty" toml:"restart_policy,omitempty"`
	Ports         map[string]string `json:"ports,omitempty" toml:"ports,omitempty"`
	Volumes       map[string]string `json:"volumes,omitempty" toml:"volumes,omitempty"`
	Environment   map[string]string `json:"environment,omitempty" toml:"environment,omitempty"`
	Labels        map[string]string `json:"labels,omitempty" toml:"labels,omitempty"`
	RedeployOnBuild *bool           `json:"redeploy_on_build,omitempty" toml:"redeploy_on_build,omitempty"`
	AutoUpdate      *bool           `json:"auto_update,omitempty" toml:"auto_update,omitempty"`
}

// ContainerState is the derived state of the deployment's container,
// reported by the status poller.
type ContainerState string

const (
	StateRunning     ContainerState = "Running"
	StateExited      ContainerState = "Exited"
	StateRestarting  ContainerState = "Restarting"
	StatePaused      ContainerState = "Paused"
	StateCreated     ContainerState = "Created"
	StateDead        ContainerState = "Dead"
	StateRemoving    ContainerState = "Removing"
	StateNotDeployed ContainerState = "NotDeployed"
	StateUnknown     ContainerState = "Unknown"
)

// Info is server-populated derived state.
type Info struct {
	State       ContainerState `json:"state"`
	ContainerId string         `json:"container_id,omitempty"`
}

// Resource is the concrete Resource[Config,Info] for deployments.
type Resource = resource.Resource[Config, Info]
