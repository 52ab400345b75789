// Package periphery defines the outbound contract Core uses to drive a
// single Periphery agent. Only the request/response shapes
// Core actually sends are specified — the Periphery agent's own HTTP
// surface is an external collaborator and out of scope.
package periphery

import "context"

// Client issues typed requests to one Periphery agent over its HTTP
// endpoint. Implementations own the transport, the passkey header, and a
// bounded per-request timeout; callers never see raw HTTP.
type Client interface {
	GetVersion(ctx context.Context) (GetVersionResponse, error)
	GetHealth(ctx context.Context) error
	GetSystemStats(ctx context.Context) (SystemStats, error)
	GetSystemInformation(ctx context.Context) (SystemInformation, error)
	GetContainerList(ctx context.Context) ([]Container, error)
	GetContainerLog(ctx context.Context, name string, tail int) (ContainerLog, error)
	GetContainerStats(ctx context.Context, name string) (ContainerStats, error)
	GetNetworkList(ctx context.Context) ([]Network, error)
	GetImageList(ctx context.Context) ([]Image, error)

	CloneRepo(ctx context.Context, req CloneRepoRequest) (RunResponse, error)
	PullRepo(ctx context.Context, req PullRepoRequest) (RunResponse, error)
	DeleteRepo(ctx context.Context, req DeleteRepoRequest) (RunResponse, error)

	Build(ctx context.Context, req BuildRequest) (RunResponse, error)
	Deploy(ctx context.Context, req DeployRequest) (RunResponse, error)

	StartContainer(ctx context.Context, name string) (RunResponse, error)
	StopContainer(ctx context.Context, name string, timeoutSeconds int) (RunResponse, error)
	RemoveContainer(ctx context.Context, name string) (RunResponse, error)
	RestartContainer(ctx context.Context, name string) (RunResponse, error)
	PauseContainer(ctx context.Context, name string) (RunResponse, error)
	UnpauseContainer(ctx context.Context, name string) (RunResponse, error)

	PruneContainers(ctx context.Context) (RunResponse, error)
	PruneImages(ctx context.Context) (RunResponse, error)
	PruneNetworks(ctx context.Context) (RunResponse, error)
	PruneVolumes(ctx context.Context) (RunResponse, error)
	PruneSystem(ctx context.Context) (RunResponse, error)

	ComposeUp(ctx context.Context, req ComposeRequest) (RunResponse, error)
	ComposeDown(ctx context.Context, req ComposeRequest) (RunResponse, error)
	ComposeStart(ctx context.Context, req ComposeRequest) (RunResponse, error)
	ComposeStop(ctx context.Context, req ComposeRequest) (RunResponse, error)
	ComposePause(ctx context.Context, req ComposeRequest) (RunResponse, error)
	ComposeUnpause(ctx context.Context, req ComposeRequest) (RunResponse, error)
	ComposeRestart(ctx context.Context, req ComposeRequest) (RunResponse, error)
}

// Factory builds a Client bound to one server's address and passkey. The
// execution services hold a Factory, not a Client, since the target host
// varies per call.
type Factory interface {
	For(address, passkey string) Client
}

// GetVersionResponse reports the Periphery agent's own version.
type GetVersionResponse struct {
	Version string `json:"version"`
}

// SystemStats is a point-in-time resource usage snapshot for a host.
type SystemStats struct {
	CpuPerc    float64 `json:"cpu_perc"`
	MemUsedGb  float64 `json:"mem_used_gb"`
	MemTotalGb float64 `json:"mem_total_gb"`
	DiskUsedGb float64 `json:"disk_used_gb"`
	DiskTotalGb float64 `json:"disk_total_gb"`
}

// SystemInformation is static host metadata (os, kernel, cpu count, etc).
type SystemInformation struct {
	Name         string `json:"name"`
	Os           string `json:"os"`
	Kernel       string `json:"kernel"`
	CoreCount    int    `json:"core_count"`
	HostName     string `json:"host_name"`
}

// Container mirrors `docker ps` output, trimmed to the fields Core caches
// and surfaces.
type Container struct {
	Name    string `json:"name"`
	Image   string `json:"image"`
	State   string `json:"state"`
	Status  string `json:"status"`
	Network string `json:"network,omitempty"`
}

// ContainerLog is the tail of a container's stdout/stderr.
type ContainerLog struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// ContainerStats is a point-in-time resource snapshot for one container.
type ContainerStats struct {
	CpuPerc   float64 `json:"cpu_perc"`
	MemUsedMb float64 `json:"mem_used_mb"`
	MemLimitMb float64 `json:"mem_limit_mb"`
}

// Network mirrors `docker network ls` output.
type Network struct {
	Name   string `json:"name"`
	Driver string `json:"driver"`
}

// Image mirrors `docker image ls` output.
type Image struct {
	Name string `json:"name"`
	Id   string `json:"id"`
	Size int64  `json:"size"`
}

// RunResponse is the generic result of a mutating Periphery call: stdout/
// stderr captured from the underlying docker/compose/git invocation, fed
// directly into an update's Log entries.
type RunResponse struct {
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
	Success bool   `json:"success"`
}

// CloneRepoRequest asks Periphery to git-clone a repo at Path.
type CloneRepoRequest struct {
	Name          string            `json:"name"`
	Path          string            `json:"path"`
	Url           string            `json:"url"`
	Branch        string            `json:"branch,omitempty"`
	Commit        string            `json:"commit,omitempty"`
	AccountToken  string            `json:"account_token,omitempty"`
	Environment   map[string]string `json:"environment,omitempty"`
	OnClonePath   string            `json:"on_clone_path,omitempty"`
	OnPullPath    string            `json:"on_pull_path,omitempty"`
}

// PullRepoRequest asks Periphery to git-pull an already-cloned repo.
type PullRepoRequest struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Branch string `json:"branch,omitempty"`
	Commit string `json:"commit,omitempty"`
}

// DeleteRepoRequest asks Periphery to remove a cloned repo's directory.
type DeleteRepoRequest struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// BuildRequest is the fully-interpolated build invocation.
type BuildRequest struct {
	Name         string            `json:"name"`
	Version      string            `json:"version"`
	ImageTag     string            `json:"image_tag"`
	RepoPath     string            `json:"repo_path"`
	Dockerfile   string            `json:"dockerfile,omitempty"`
	BuildArgs    map[string]string `json:"build_args,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
	ExtraArgs    []string          `json:"extra_args,omitempty"`
	Registry     string            `json:"registry,omitempty"`
	Push         bool              `json:"push"`
}

// DeployRequest starts/recreates a single container from an image.
type DeployRequest struct {
	Name        string            `json:"name"`
	Image       string            `json:"image"`
	Environment map[string]string `json:"environment,omitempty"`
	Volumes     []string          `json:"volumes,omitempty"`
	Ports       []string          `json:"ports,omitempty"`
	Network     string            `json:"network,omitempty"`
	RestartMode string            `json:"restart_mode,omitempty"`
	ExtraArgs   []string          `json:"extra_args,omitempty"`
}

// ComposeRequest drives a compose project, optionally scoped to Services.
type ComposeRequest struct {
	ProjectName string   `json:"project_name"`
	FilePath    string   `json:"file_path"`
	Services    []string `json:"services,omitempty"`
}
