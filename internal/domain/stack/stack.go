// Package stack defines the Stack resource kind: a docker compose project
// on a managed server.
package stack

import (
	"github.com/komodo-run/core/internal/domain/configdiff"
	"github.com/komodo-run/core/internal/domain/resource"
)

// FileSource is the sum-typed origin of the compose file(s): FilesOnHost,
// GitRepo, or Inline.
type FileSource = configdiff.Variant

const (
	SourceFilesOnHost = "FilesOnHost"
	SourceGitRepo      = "GitRepo"
	SourceInline        = "Inline"
)

type Config struct {
	ServerId   string     `json:"server_id,omitempty"`
	FileSource FileSource `json:"file_source"`
	Branch     string     `json:"branch,omitempty"`
	Webhook    bool       `json:"webhook_enabled"`
	AutoUpdate bool       `json:"auto_update"`
}

func Default() Config { return Config{Branch: "main"} }

type PartialConfig struct {
	ServerId   *string     `json:"server_id,omitempty" toml:"server_id,omitempty"`
	FileSource *FileSource `json:"file_source,omitempty" toml:"file_source,omitempty"`
	Branch     *string     `json:"branch,omitempty" toml:"branch,omitempty"`
	Webhook    *bool       `json:"webhook_enabled,omitempty" toml:"webhook_enabled,omitempty"`
	AutoUpdate *bool       `json:"auto_update,omitempty" toml:"auto_update,omitempty"`
}

// ServiceState is the derived state of one compose service.
type ServiceState struct {
	Service string `json:"service"`
	State   string `json:"state"`
}

type Info struct {
	State    string         `json:"state"`
	Services []ServiceState `json:"services,omitempty"`
}

type Resource = resource.Resource[Config, Info]
