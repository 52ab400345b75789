package service

import (
	toml "github.com/pelletier/go-toml/v2"

	"github.com/komodo-run/core/internal/domain/action"
	"github.com/komodo-run/core/internal/domain/alerter"
	"github.com/komodo-run/core/internal/domain/build"
	"github.com/komodo-run/core/internal/domain/builder"
	"github.com/komodo-run/core/internal/domain/deployment"
	"github.com/komodo-run/core/internal/domain/procedure"
	"github.com/komodo-run/core/internal/domain/repo"
	"github.com/komodo-run/core/internal/domain/resourcesync"
	"github.com/komodo-run/core/internal/domain/server"
	"github.com/komodo-run/core/internal/domain/servertemplate"
	"github.com/komodo-run/core/internal/domain/stack"
)

// namedConfig is one `[[kind]]` entry in a resource sync TOML file: a name,
// optional tags used for match_tags filtering, and the partial config the
// sync applies. It shares its P type with the same kind's
// PartialConfig, so a TOML entry and an API write request parse the exact
// same way. Deploy and After only carry meaning on deployment and stack
// entries, where they feed the post-apply deploy wave.
type namedConfig[P any] struct {
	Name        string   `toml:"name"`
	Description string   `toml:"description,omitempty"`
	Tags        []string `toml:"tags,omitempty"`
	Deploy      bool     `toml:"deploy,omitempty"`
	After       []string `toml:"after,omitempty"`
	Config      P        `toml:"config"`
}

// variableToml is one `[[variables]]` entry: a plain upsert, no
// Config/PartialConfig triad since Variables are not a managed resource
// kind.
type variableToml struct {
	Name        string `toml:"name"`
	Value       string `toml:"value"`
	Description string `toml:"description,omitempty"`
	IsSecret    bool   `toml:"is_secret,omitempty"`
}

// userGroupToml is one `[[user_groups]]` entry: the group's name and the
// usernames it should contain.
type userGroupToml struct {
	Name  string   `toml:"name"`
	Users []string `toml:"users,omitempty"`
}

// resourcesToml is the full shape of a sync resource file. Field order
// matches resource.ApplyOrder so a reader scanning the TOML sees resources
// declared in the order they would actually apply.
type resourcesToml struct {
	Variables      []variableToml                              `toml:"variables"`
	Alerter        []namedConfig[alerter.PartialConfig]        `toml:"alerters"`
	Builder        []namedConfig[builder.PartialConfig]        `toml:"builders"`
	ServerTemplate []namedConfig[servertemplate.PartialConfig] `toml:"server_templates"`
	Server         []namedConfig[server.PartialConfig]         `toml:"servers"`
	Build          []namedConfig[build.PartialConfig]          `toml:"builds"`
	Repo           []namedConfig[repo.PartialConfig]           `toml:"repos"`
	Stack          []namedConfig[stack.PartialConfig]          `toml:"stacks"`
	Deployment     []namedConfig[deployment.PartialConfig]     `toml:"deployments"`
	Procedure      []namedConfig[procedure.PartialConfig]      `toml:"procedures"`
	Action         []namedConfig[action.PartialConfig]         `toml:"actions"`
	ResourceSync   []namedConfig[resourcesync.PartialConfig]   `toml:"resource_syncs"`
	UserGroups     []userGroupToml                             `toml:"user_groups"`
}

// merge appends other's entries onto rt, kind by kind. Used to fold every
// parsed file of a multi-file sync tree into one declared set.
func (rt *resourcesToml) merge(other resourcesToml) {
	rt.Variables = append(rt.Variables, other.Variables...)
	rt.Alerter = append(rt.Alerter, other.Alerter...)
	rt.Builder = append(rt.Builder, other.Builder...)
	rt.ServerTemplate = append(rt.ServerTemplate, other.ServerTemplate...)
	rt.Server = append(rt.Server, other.Server...)
	rt.Build = append(rt.Build, other.Build...)
	rt.Repo = append(rt.Repo, other.Repo...)
	rt.Stack = append(rt.Stack, other.Stack...)
	rt.Deployment = append(rt.Deployment, other.Deployment...)
	rt.Procedure = append(rt.Procedure, other.Procedure...)
	rt.Action = append(rt.Action, other.Action...)
	rt.ResourceSync = append(rt.ResourceSync, other.ResourceSync...)
	rt.UserGroups = append(rt.UserGroups, other.UserGroups...)
}

func parseResourcesToml(data []byte) (resourcesToml, error) {
	var rt resourcesToml
	err := toml.Unmarshal(data, &rt)
	return rt, err
}

// hasAllTags reports whether tags contains every entry of match — the
// match_tags filter keeps only resources whose tag set is a superset of
// the configured list. An empty match list matches
// everything.
func hasAllTags(tags, match []string) bool {
	for _, m := range match {
		found := false
		for _, t := range tags {
			if t == m {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
