// Package resourcesync defines the ResourceSync resource kind: a
// declarative TOML description of desired resources, fetched from disk or
// a git repo.
package resourcesync

import "github.com/komodo-run/core/internal/domain/resource"

type Config struct {
	// RepoUrl, if set, marks this as a git-backed sync; otherwise
	// ResourcePath is read directly from disk.
	RepoUrl      string   `json:"repo_url,omitempty"`
	Branch       string   `json:"branch,omitempty"`
	ResourcePath string   `json:"resource_path"`
	MatchTags    []string `json:"match_tags,omitempty"`
	Managed      bool     `json:"managed"`
	Webhook      bool     `json:"webhook_enabled"`
}

func Default() Config { return Config{Branch: "main"} }

type PartialConfig struct {
	RepoUrl      *string  `json:"repo_url,omitempty" toml:"repo_url,omitempty"`
	Branch       *string  `json:"branch,omitempty" toml:"branch,omitempty"`
	ResourcePath *string  `json:"resource_path,omitempty" toml:"resource_path,omitempty"`
	MatchTags    []string `json:"match_tags,omitempty" toml:"match_tags,omitempty"`
	Managed      *bool    `json:"managed,omitempty" toml:"managed,omitempty"`
	Webhook      *bool    `json:"webhook_enabled,omitempty" toml:"webhook_enabled,omitempty"`
}

// State is the sync's derived state: Ok (last apply succeeded, no pending
// plan), Pending (a non-empty plan is cached), Failed (last refresh or
// apply failed).
type State string

const (
	StateOk      State = "Ok"
	StatePending State = "Pending"
	StateFailed  State = "Failed"
)

// PlanEntry is one human-readable line of a sync plan: a single resource's
// create/update/delete with its field-level diff.
type PlanEntry struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	Operation string `json:"operation"` // Create|Update|Delete
	Diff      string `json:"diff,omitempty"`
	// Error records a per-resource apply failure after every retry was
	// exhausted; the rest of the sync still proceeds.
	Error string `json:"error,omitempty"`
}

// Plan is the cached result of the last RefreshSync.
type Plan struct {
	Entries     []PlanEntry `json:"entries"`
	FileErrors  []string    `json:"file_errors,omitempty"`
	CommitHash  string      `json:"commit_hash,omitempty"`
	CommitMsg   string      `json:"commit_message,omitempty"`
}

// HasUpdates reports whether the plan contains any entries — an empty
// plan means the sync's derived state is Ok, not Pending.
func (p Plan) HasUpdates() bool { return len(p.Entries) > 0 }

// Info carries the cached plan and derived state.
type Info struct {
	State State `json:"state"`
	Plan  Plan  `json:"plan"`
}

type Resource = resource.Resource[Config, Info]
