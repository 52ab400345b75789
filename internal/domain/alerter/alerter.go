// Package alerter defines the Alerter resource kind: an external sink for
// alert dispatch.
package alerter

import (
	"github.com/komodo-run/core/internal/domain/configdiff"
	"github.com/komodo-run/core/internal/domain/resource"
)

// Endpoint is the sum-typed sink configuration: Custom|Slack|Discord.
type Endpoint = configdiff.Variant

const (
	EndpointCustom  = "Custom"
	EndpointSlack   = "Slack"
	EndpointDiscord = "Discord"
)

type Config struct {
	Enabled         bool     `json:"enabled"`
	Endpoint        Endpoint `json:"endpoint"`
	AlertTypes      []string `json:"alert_types,omitempty"`
	Resources       []string `json:"resources,omitempty"`
	ExceptResources []string `json:"except_resources,omitempty"`
}

func Default() Config { return Config{Enabled: true} }

type PartialConfig struct {
	Enabled         *bool     `json:"enabled,omitempty" toml:"enabled,omitempty"`
	Endpoint        *Endpoint `json:"endpoint,omitempty" toml:"endpoint,omitempty"`
	AlertTypes      []string  `json:"alert_types,omitempty" toml:"alert_types,omitempty"`
	Resources       []string  `json:"resources,omitempty" toml:"resources,omitempty"`
	ExceptResources []string  `json:"except_resources,omitempty" toml:"except_resources,omitempty"`
}

type Info struct {
	LastSentAt int64 `json:"last_sent_at,omitempty"`
}

type Resource = resource.Resource[Config, Info]
