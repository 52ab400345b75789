// Package action defines the Action resource kind: a single named
// operation reference, runnable directly or as a procedure stage step.
package action

import "github.com/komodo-run/core/internal/domain/resource"

type Config struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

func Default() Config { return Config{} }

type PartialConfig struct {
	Type   *string `json:"type,omitempty" toml:"type,omitempty"`
	Target *string `json:"target,omitempty" toml:"target,omitempty"`
}

type Info struct {
	LastRunAt int64 `json:"last_run_at,omitempty"`
}

type Resource = resource.Resource[Config, Info]
