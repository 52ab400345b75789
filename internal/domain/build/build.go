// Package build defines the Build resource kind: a Docker image build run
// on a managed server or a transient builder.
package build

import "github.com/komodo-run/core/internal/domain/resource"

// Config is the fully-materialized Build configuration.
type Config struct {
	BuilderId  string            `json:"builder_id,omitempty"`
	RepoId     string            `json:"repo_id,omitempty"`
	Branch     string            `json:"branch,omitempty"`
	Dockerfile string            `json:"dockerfile,omitempty"`
	BuildPath  string            `json:"build_path,omitempty"`
	ImageName  string            `json:"image_name"`
	ImageTag   string            `json:"image_tag,omitempty"`
	BuildArgs  map[string]string `json:"build_args,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	Webhook    bool              `json:"webhook_enabled"`
	AutoIncrementVersion bool    `json:"auto_increment_version"`
}

func Default() Config {
	return Config{Dockerfile: "Dockerfile", BuildPath: "."}
}

// PartialConfig is the all-optional update wire type / TOML type.
type PartialConfig struct {
	BuilderId  *string           `json:"builder_id,omitempty" toml:"builder_id,omitempty"`
	RepoId     *string           `json:"repo_id,omitempty" toml:"repo_id,omitempty"`
	Branch     *string           `json:"branch,omitempty" toml:"branch,omitempty"`
	Dockerfile *string           `json:"dockerfile,omitempty" toml:"dockerfile,omitempty"`
	BuildPath  *string           `json:"build_path,omitempty" toml:"build_path,omitempty"`
	ImageName  *string           `json:"image_name,omitempty" toml:"image_name,omitempty"`
	ImageTag   *string           `json:"image_tag,omitempty" toml:"image_tag,omitempty"`
	BuildArgs  map[string]string `json:"build_args,omitempty" toml:"build_args,omitempty"`
	Labels     map[string]string `json:"labels,omitempty" toml:"labels,omitempty"`
	Webhook    *bool             `json:"webhook_enabled,omitempty" toml:"webhook_enabled,omitempty"`
	AutoIncrementVersion *bool   `json:"auto_increment_version,omitempty" toml:"auto_increment_version,omitempty"`
}

// Info is server-populated derived state.
type Info struct {
	LastBuiltAt  int64  `json:"last_built_at,omitempty"`
	LastVersion  string `json:"last_version,omitempty"`
	BuiltHash    string `json:"built_hash,omitempty"`
}

// Resource is the concrete Resource[Config,Info] for builds.
type Resource = resource.Resource[Config, Info]
