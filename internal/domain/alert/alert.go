// Package alert defines the Alert record and the variant data carried by
// each alert kind.
package alert

import "github.com/komodo-run/core/internal/domain/resource"

// Level is the severity of an alert.
type Level string

const (
	LevelOk       Level = "Ok"
	LevelWarning  Level = "Warning"
	LevelCritical Level = "Critical"
)

// Variant identifies the kind of condition an alert reports; it doubles as
// the grouping key (alongside Target) for the "at most one open alert per
// (target, variant)" invariant.
type Variant string

const (
	VariantServerUnreachable             Variant = "ServerUnreachable"
	VariantServerCpu                     Variant = "ServerCpu"
	VariantServerMem                     Variant = "ServerMem"
	VariantServerDisk                    Variant = "ServerDisk"
	VariantContainerStateChange          Variant = "ContainerStateChange"
	VariantDeploymentImageUpdateAvail    Variant = "DeploymentImageUpdateAvailable"
	VariantDeploymentAutoUpdated         Variant = "DeploymentAutoUpdated"
	VariantStackImageUpdateAvail         Variant = "StackImageUpdateAvailable"
	VariantStackAutoUpdated              Variant = "StackAutoUpdated"
	VariantResourceSyncPendingUpdates    Variant = "ResourceSyncPendingUpdates"
	VariantBuildFailed                   Variant = "BuildFailed"
	VariantRepoBuildFailed               Variant = "RepoBuildFailed"
	VariantAwsBuilderTerminationFailed   Variant = "AwsBuilderTerminationFailed"
	VariantTest                          Variant = "Test"
)

// Data carries the variant-specific payload. Only the fields relevant to
// Variant are populated; the others are left zero. A flatter representation
// (one struct per variant behind an interface) was considered and declined
// here since every alerter sink only needs read access to a handful of
// fields for templating — a single struct keeps dispatch code simple
// without a type switch per sink.
type Data struct {
	Variant    Variant `json:"variant"`
	ServerId   string  `json:"server_id,omitempty"`
	ServerName string  `json:"server_name,omitempty"`
	Region     string  `json:"region,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
	MountPath  string  `json:"mount_path,omitempty"`
	FromState  string  `json:"from_state,omitempty"`
	ToState    string  `json:"to_state,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// Alert is the persisted record for one open or resolved alert.
type Alert struct {
	Id         string             `json:"id"`
	Ts         int64              `json:"ts"`
	Resolved   bool               `json:"resolved"`
	ResolvedTs int64              `json:"resolved_ts,omitempty"`
	Level      Level              `json:"level"`
	Target     resource.TargetRef `json:"target"`
	Data       Data               `json:"data"`
}
