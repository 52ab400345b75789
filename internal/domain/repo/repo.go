// Package repo defines the Repo resource kind: a git repository cloned
// onto a managed server.
package repo

import "github.com/komodo-run/core/internal/domain/resource"

type Config struct {
	ServerId string `json:"server_id,omitempty"`
	Repo     string `json:"repo"`
	Branch   string `json:"branch,omitempty"`
	Path     string `json:"path,omitempty"`
	Webhook  bool   `json:"webhook_enabled"`
}

func Default() Config { return Config{Branch: "main"} }

type PartialConfig struct {
	ServerId *string `json:"server_id,omitempty" toml:"server_id,omitempty"`
	Repo     *string `json:"repo,omitempty" toml:"repo,omitempty"`
	Branch   *string `json:"branch,omitempty" toml:"branch,omitempty"`
	Path     *string `json:"path,omitempty" toml:"path,omitempty"`
	Webhook  *bool   `json:"webhook_enabled,omitempty" toml:"webhook_enabled,omitempty"`
}

type Info struct {
	LastPulledHash string `json:"last_pulled_hash,omitempty"`
	LastPulledAt   int64  `json:"last_pulled_at,omitempty"`
}

type Resource = resource.Resource[Config, Info]
