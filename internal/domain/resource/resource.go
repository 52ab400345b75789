// Package resource defines the generic shape shared by every Komodo
// resource kind: a typed, versioned configuration record plus
// server-populated derived info.
package resource

import "github.com/google/uuid"

// Kind identifies one of the managed resource kinds.
type Kind string

const (
	KindServer         Kind = "Server"
	KindDeployment     Kind = "Deployment"
	KindBuild          Kind = "Build"
	KindRepo           Kind = "Repo"
	KindStack          Kind = "Stack"
	KindProcedure      Kind = "Procedure"
	KindAction         Kind = "Action"
	KindAlerter        Kind = "Alerter"
	KindBuilder        Kind = "Builder"
	KindServerTemplate Kind = "ServerTemplate"
	KindResourceSync   Kind = "ResourceSync"
)

// ApplyOrder lists every managed kind in the fixed sync-apply order (leaves
// first): tags and variables are not Resource[C,I] records and are handled
// separately, so this order starts at alerters.
var ApplyOrder = []Kind{
	KindAlerter,
	KindBuilder,
	KindServerTemplate,
	KindServer,
	KindBuild,
	KindRepo,
	KindStack,
	KindDeployment,
	KindProcedure,
	KindAction,
	KindResourceSync,
}

// BasePermission is the permission level applied to any user without an
// explicit grant on the resource.
type BasePermission string

const (
	PermissionNone    BasePermission = "None"
	PermissionRead    BasePermission = "Read"
	PermissionExecute BasePermission = "Execute"
	PermissionWrite   BasePermission = "Write"
)

// Level returns an ordinal so permissions can be compared/maxed.
func (p BasePermission) Level() int {
	switch p {
	case PermissionWrite:
		return 3
	case PermissionExecute:
		return 2
	case PermissionRead:
		return 1
	default:
		return 0
	}
}

// Max returns the higher of two permission levels.
func Max(a, b BasePermission) BasePermission {
	if a.Level() >= b.Level() {
		return a
	}
	return b
}

// Resource is the generic record shape for every managed kind: Config is
// the fully-materialized kind-specific configuration, Info is
// server-populated derived state (never set by a write request).
type Resource[C any, I any] struct {
	Id             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Tags           []string       `json:"tags,omitempty"`
	UpdatedAt      int64          `json:"updated_at"`
	Config         C              `json:"config"`
	Info           I              `json:"info"`
	BasePermission BasePermission `json:"base_permission"`
	Version        int64          `json:"version"`
}

// Summary is the light cross-kind projection returned by list-summary and
// search reads: enough to render a picker row without shipping the full
// Config/Info payloads.
type Summary struct {
	Kind Kind     `json:"kind"`
	Id   string   `json:"id"`
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

// TargetRef identifies a resource by kind and id, used by Updates, Alerts,
// and permission grants — it is translated to/from a name at the TOML/sync
// boundary but stored as an id everywhere else.
type TargetRef struct {
	Kind Kind   `json:"kind"`
	Id   string `json:"id"`
}

// IsIDLike reports whether name would parse as a database object id (a
// uuid, since ids are gen_random_uuid() in the resources table). Create
// and rename handlers reject such names to avoid id/name ambiguity at
// lookup time.
func IsIDLike(name string) bool {
	_, err := uuid.Parse(name)
	return err == nil
}
