// Package builder defines the Builder resource kind: where a Build runs —
// an existing server, a bare URL, or a transient cloud instance.
package builder

import (
	"github.com/komodo-run/core/internal/domain/configdiff"
	"github.com/komodo-run/core/internal/domain/resource"
)

// BuilderType is the sum-typed builder configuration: Url|Server|Aws|Hetzner.
type BuilderType = configdiff.Variant

const (
	TypeUrl     = "Url"
	TypeServer  = "Server"
	TypeAws     = "Aws"
	TypeHetzner = "Hetzner"
)

type Config struct {
	Builder BuilderType `json:"builder"`
}

func Default() Config { return Config{} }

type PartialConfig struct {
	Builder *BuilderType `json:"builder,omitempty" toml:"builder,omitempty"`
}

type Info struct {
	LastProvisionedInstanceId string `json:"last_provisioned_instance_id,omitempty"`
}

type Resource = resource.Resource[Config, Info]
