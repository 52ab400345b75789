// Package servertemplate defines the ServerTemplate resource kind: a
// reusable cloud-instance launch spec used to provision new Servers.
package servertemplate

import (
	"github.com/komodo-run/core/internal/domain/configdiff"
	"github.com/komodo-run/core/internal/domain/resource"
)

// Provider is the sum-typed launch configuration: Aws|Hetzner.
type Provider = configdiff.Variant

const (
	ProviderAws     = "Aws"
	ProviderHetzner = "Hetzner"
)

type Config struct {
	Provider Provider `json:"provider"`
}

func Default() Config { return Config{} }

type PartialConfig struct {
	Provider *Provider `json:"provider,omitempty" toml:"provider,omitempty"`
}

type Info struct{}

type Resource = resource.Resource[Config, Info]
