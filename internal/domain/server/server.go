// Package server defines the Server resource kind: a single Periphery
// agent endpoint Core polls and dispatches execution requests to.
package server

import "github.com/komodo-run/core/internal/domain/resource"

// Config is the fully-materialized Server configuration.
type Config struct {
	Address          string `json:"address"`
	Region           string `json:"region,omitempty"`
	Enabled          bool   `json:"enabled"`
	Passkey          string `json:"passkey,omitempty"`
	CpuWarning       int    `json:"cpu_warning"`
	CpuCritical      int    `json:"cpu_critical"`
	MemWarning       int    `json:"mem_warning"`
	MemCritical      int    `json:"mem_critical"`
	DiskWarning      int    `json:"disk_warning"`
	DiskCritical     int    `json:"disk_critical"`
	TerminationTimeoutSeconds int `json:"termination_timeout_seconds"`
}

// Default returns the Config populated with defaults, per the
// PartialConfig→Config total-function contract.
func Default() Config {
	return Config{
		Enabled:      true,
		CpuWarning:   75,
		CpuCritical:  95,
		MemWarning:   75,
		MemCritical:  95,
		DiskWarning:  75,
		DiskCritical: 95,
		TerminationTimeoutSeconds: 120,
	}
}

// PartialConfig is the all-optional update wire type / TOML type.
type PartialConfig struct {
	Address      *string `json:"address,omitempty" toml:"address,omitempty"`
	Region       *string `json:"region,omitempty" toml:"region,omitempty"`
	Enabled      *bool   `json:"enabled,omitempty" toml:"enabled,omitempty"`
	Passkey      *string `json:"passkey,omitempty" toml:"passkey,omitempty"`
	CpuWarning   *int    `json:"cpu_warning,omitempty" toml:"cpu_warning,omitempty"`
	CpuCritical  *int    `json:"cpu_critical,omitempty" toml:"cpu_critical,omitempty"`
	MemWarning   *int    `json:"mem_warning,omitempty" toml:"mem_warning,omitempty"`
	MemCritical  *int    `json:"mem_critical,omitempty" toml:"mem_critical,omitempty"`
	DiskWarning  *int    `json:"disk_warning,omitempty" toml:"disk_warning,omitempty"`
	DiskCritical *int    `json:"disk_critical,omitempty" toml:"disk_critical,omitempty"`
	TerminationTimeoutSeconds *int `json:"termination_timeout_seconds,omitempty" toml:"termination_timeout_seconds,omitempty"`
}

// State is the derived health of a server, set by the status poller
//.
type State string

const (
	StateOk       State = "Ok"
	StateNotOk    State = "NotOk"
	StateDisabled State = "Disabled"
)

// Info is server-populated derived state; never set by a write request.
type Info struct {
	State   State  `json:"state"`
	Version string `json:"version,omitempty"`
}

// StatsSnapshot is one historical system-stats sample, persisted by the
// status poller so trend reads don't depend on the live cache alone.
type StatsSnapshot struct {
	ServerId    string  `json:"server_id"`
	Ts          int64   `json:"ts"`
	CpuPerc     float64 `json:"cpu_perc"`
	MemUsedGb   float64 `json:"mem_used_gb"`
	MemTotalGb  float64 `json:"mem_total_gb"`
	DiskUsedGb  float64 `json:"disk_used_gb"`
	DiskTotalGb float64 `json:"disk_total_gb"`
}

// Resource is the concrete Resource[Config,Info] for servers.
type Resource = resource.Resource[Config, Info]
