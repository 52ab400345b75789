// Package procedure defines the Procedure resource kind: an ordered list
// of stages, each a set of executions run in parallel.
package procedure

import "github.com/komodo-run/core/internal/domain/resource"

// Execution is one operation within a stage: an execute-request kind and
// its target, e.g. {"type":"RunBuild","target":"build-id"}.
type Execution struct {
	Type   string `json:"type" toml:"type"`
	Target string `json:"target" toml:"target"`
}

// Stage starts only after the previous stage's executions all finished.
type Stage struct {
	Name       string      `json:"name,omitempty" toml:"name,omitempty"`
	Enabled    bool        `json:"enabled" toml:"enabled"`
	Executions []Execution `json:"executions" toml:"executions"`
}

type Config struct {
	Stages []Stage `json:"stages"`
}

func Default() Config { return Config{} }

type PartialConfig struct {
	Stages []Stage `json:"stages,omitempty" toml:"stages,omitempty"`
}

type Info struct {
	LastRunAt int64 `json:"last_run_at,omitempty"`
}

type Resource = resource.Resource[Config, Info]
