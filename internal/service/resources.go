package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/komodo-run/core/internal/domain/action"
	"github.com/komodo-run/core/internal/domain/alerter"
	"github.com/komodo-run/core/internal/domain/build"
	"github.com/komodo-run/core/internal/domain/builder"
	"github.com/komodo-run/core/internal/domain/configdiff"
	"github.com/komodo-run/core/internal/domain/deployment"
	"github.com/komodo-run/core/internal/domain/procedure"
	"github.com/komodo-run/core/internal/domain/repo"
	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/resourcesync"
	"github.com/komodo-run/core/internal/domain/server"
	"github.com/komodo-run/core/internal/domain/servertemplate"
	"github.com/komodo-run/core/internal/domain/stack"
	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/port/database"
)

// Resources bundles one ResourceService per managed kind, wired against a
// shared Store and PermissionService. It is the one-stop dependency the
// /read, /write, and /execute HTTP handlers hold for plain CRUD (execution
// verbs beyond Create/Update/Delete live in ExecuteService).
type Resources struct {
	Servers         *ResourceService[server.Config, server.Info, server.PartialConfig]
	Deployments     *ResourceService[deployment.Config, deployment.Info, deployment.PartialConfig]
	Builds          *ResourceService[build.Config, build.Info, build.PartialConfig]
	Repos           *ResourceService[repo.Config, repo.Info, repo.PartialConfig]
	Stacks          *ResourceService[stack.Config, stack.Info, stack.PartialConfig]
	Procedures      *ResourceService[procedure.Config, procedure.Info, procedure.PartialConfig]
	Actions         *ResourceService[action.Config, action.Info, action.PartialConfig]
	Alerters        *ResourceService[alerter.Config, alerter.Info, alerter.PartialConfig]
	Builders        *ResourceService[builder.Config, builder.Info, builder.PartialConfig]
	ServerTemplates *ResourceService[servertemplate.Config, servertemplate.Info, servertemplate.PartialConfig]
	ResourceSyncs   *ResourceService[resourcesync.Config, resourcesync.Info, resourcesync.PartialConfig]
}

// NewResources wires every kind's ResourceService against store. Server's
// Delete cascades: it zeroes server_id on every Deployment/Repo/Stack
// pointed at it and clears the embedded server_id param on any "Server"
// type Builder.
func NewResources(store database.Store, perm *PermissionService) *Resources {
	r := &Resources{}

	r.Servers = NewResourceService(store, perm, ResourceOps[server.Config, server.Info, server.PartialConfig]{
		Kind: resource.KindServer, List: store.ListServers, Get: store.GetServer, GetByName: store.GetServerByName,
		Create: store.CreateServer, UpdateCfg: store.UpdateServerConfig, Delete: store.DeleteServer,
		DefaultCfg: server.Default, OnDelete: func(ctx context.Context, id string) error { return cascadeServerDelete(ctx, store, id) },
	})

	r.Deployments = NewResourceService(store, perm, ResourceOps[deployment.Config, deployment.Info, deployment.PartialConfig]{
		Kind: resource.KindDeployment, List: store.ListDeployments, Get: store.GetDeployment, GetByName: store.GetDeploymentByName,
		Create: store.CreateDeployment, UpdateCfg: store.UpdateDeploymentConfig, Delete: store.DeleteDeployment,
		DefaultCfg: deployment.Default,
	})

	r.Builds = NewResourceService(store, perm, ResourceOps[build.Config, build.Info, build.PartialConfig]{
		Kind: resource.KindBuild, List: store.ListBuilds, Get: store.GetBuild, GetByName: store.GetBuildByName,
		Create: store.CreateBuild, UpdateCfg: store.UpdateBuildConfig, Delete: store.DeleteBuild,
		DefaultCfg: build.Default,
	})

	r.Repos = NewResourceService(store, perm, ResourceOps[repo.Config, repo.Info, repo.PartialConfig]{
		Kind: resource.KindRepo, List: store.ListRepos, Get: store.GetRepo, GetByName: store.GetRepoByName,
		Create: store.CreateRepo, UpdateCfg: store.UpdateRepoConfig, Delete: store.DeleteRepo,
		DefaultCfg: repo.Default,
	})

	r.Stacks = NewResourceService(store, perm, ResourceOps[stack.Config, stack.Info, stack.PartialConfig]{
		Kind: resource.KindStack, List: store.ListStacks, Get: store.GetStack, GetByName: store.GetStackByName,
		Create: store.CreateStack, UpdateCfg: store.UpdateStackConfig, Delete: store.DeleteStack,
		DefaultCfg: stack.Default,
	})

	r.Procedures = NewResourceService(store, perm, ResourceOps[procedure.Config, procedure.Info, procedure.PartialConfig]{
		Kind: resource.KindProcedure, List: store.ListProcedures, Get: store.GetProcedure, GetByName: store.GetProcedureByName,
		Create: store.CreateProcedure, UpdateCfg: store.UpdateProcedureConfig, Delete: store.DeleteProcedure,
		DefaultCfg: procedure.Default,
	})

	r.Actions = NewResourceService(store, perm, ResourceOps[action.Config, action.Info, action.PartialConfig]{
		Kind: resource.KindAction, List: store.ListActions, Get: store.GetAction, GetByName: store.GetActionByName,
		Create: store.CreateAction, UpdateCfg: store.UpdateActionConfig, Delete: store.DeleteAction,
		DefaultCfg: action.Default,
	})

	r.Alerters = NewResourceService(store, perm, ResourceOps[alerter.Config, alerter.Info, alerter.PartialConfig]{
		Kind: resource.KindAlerter, List: store.ListAlerters, Get: store.GetAlerter, GetByName: store.GetAlerterByName,
		Create: store.CreateAlerter, UpdateCfg: store.UpdateAlerterConfig, Delete: store.DeleteAlerter,
		DefaultCfg: alerter.Default,
	})

	r.Builders = NewResourceService(store, perm, ResourceOps[builder.Config, builder.Info, builder.PartialConfig]{
		Kind: resource.KindBuilder, List: store.ListBuilders, Get: store.GetBuilder, GetByName: store.GetBuilderByName,
		Create: store.CreateBuilder, UpdateCfg: store.UpdateBuilderConfig, Delete: store.DeleteBuilder,
		DefaultCfg: builder.Default,
	})

	r.ServerTemplates = NewResourceService(store, perm, ResourceOps[servertemplate.Config, servertemplate.Info, servertemplate.PartialConfig]{
		Kind: resource.KindServerTemplate, List: store.ListServerTemplates, Get: store.GetServerTemplate, GetByName: store.GetServerTemplateByName,
		Create: store.CreateServerTemplate, UpdateCfg: store.UpdateServerTemplateConfig, Delete: store.DeleteServerTemplate,
		DefaultCfg: servertemplate.Default,
	})

	r.ResourceSyncs = NewResourceService(store, perm, ResourceOps[resourcesync.Config, resourcesync.Info, resourcesync.PartialConfig]{
		Kind: resource.KindResourceSync, List: store.ListResourceSyncs, Get: store.GetResourceSync, GetByName: store.GetResourceSyncByName,
		Create: store.CreateResourceSync, UpdateCfg: store.UpdateResourceSyncConfig, Delete: store.DeleteResourceSync,
		DefaultCfg: resourcesync.Default,
	})

	return r
}

// BasePermissionOf returns the base permission of the resource a target
// refers to, with no permission check of its own — the one piece of
// information PermissionService.Resolve needs to evaluate an arbitrary
// caller's effective level against it. Used by the websocket hub to
// filter each broadcast update per subscriber.
func (r *Resources) BasePermissionOf(ctx context.Context, target resource.TargetRef) (resource.BasePermission, error) {
	switch target.Kind {
	case resource.KindServer:
		res, err := r.Servers.RawGet(ctx, target.Id)
		if err != nil {
			return "", err
		}
		return res.BasePermission, nil
	case resource.KindDeployment:
		res, err := r.Deployments.RawGet(ctx, target.Id)
		if err != nil {
			return "", err
		}
		return res.BasePermission, nil
	case resource.KindBuild:
		res, err := r.Builds.RawGet(ctx, target.Id)
		if err != nil {
			return "", err
		}
		return res.BasePermission, nil
	case resource.KindRepo:
		res, err := r.Repos.RawGet(ctx, target.Id)
		if err != nil {
			return "", err
		}
		return res.BasePermission, nil
	case resource.KindStack:
		res, err := r.Stacks.RawGet(ctx, target.Id)
		if err != nil {
			return "", err
		}
		return res.BasePermission, nil
	case resource.KindProcedure:
		res, err := r.Procedures.RawGet(ctx, target.Id)
		if err != nil {
			return "", err
		}
		return res.BasePermission, nil
	case resource.KindAction:
		res, err := r.Actions.RawGet(ctx, target.Id)
		if err != nil {
			return "", err
		}
		return res.BasePermission, nil
	case resource.KindAlerter:
		res, err := r.Alerters.RawGet(ctx, target.Id)
		if err != nil {
			return "", err
		}
		return res.BasePermission, nil
	case resource.KindBuilder:
		res, err := r.Builders.RawGet(ctx, target.Id)
		if err != nil {
			return "", err
		}
		return res.BasePermission, nil
	case resource.KindServerTemplate:
		res, err := r.ServerTemplates.RawGet(ctx, target.Id)
		if err != nil {
			return "", err
		}
		return res.BasePermission, nil
	case resource.KindResourceSync:
		res, err := r.ResourceSyncs.RawGet(ctx, target.Id)
		if err != nil {
			return "", err
		}
		return res.BasePermission, nil
	default:
		return "", fmt.Errorf("base permission: unknown kind %q", target.Kind)
	}
}

// FindResources is the cross-kind search read: every resource the caller
// can at least Read whose name contains query (case-insensitive) and whose
// tag set is a superset of tags. An empty query with no tags lists every
// visible resource as a Summary, which doubles as the UI's light list-all
// projection.
func (r *Resources) FindResources(ctx context.Context, u *user.User, query string, tags []string) ([]resource.Summary, error) {
	var out []resource.Summary

	collect := func(summaries []resource.Summary, err error) error {
		if err != nil {
			return err
		}
		out = append(out, summaries...)
		return nil
	}

	if err := collect(findIn(ctx, u, r.Servers, query, tags)); err != nil {
		return nil, err
	}
	if err := collect(findIn(ctx, u, r.Deployments, query, tags)); err != nil {
		return nil, err
	}
	if err := collect(findIn(ctx, u, r.Builds, query, tags)); err != nil {
		return nil, err
	}
	if err := collect(findIn(ctx, u, r.Repos, query, tags)); err != nil {
		return nil, err
	}
	if err := collect(findIn(ctx, u, r.Stacks, query, tags)); err != nil {
		return nil, err
	}
	if err := collect(findIn(ctx, u, r.Procedures, query, tags)); err != nil {
		return nil, err
	}
	if err := collect(findIn(ctx, u, r.Actions, query, tags)); err != nil {
		return nil, err
	}
	if err := collect(findIn(ctx, u, r.Alerters, query, tags)); err != nil {
		return nil, err
	}
	if err := collect(findIn(ctx, u, r.Builders, query, tags)); err != nil {
		return nil, err
	}
	if err := collect(findIn(ctx, u, r.ServerTemplates, query, tags)); err != nil {
		return nil, err
	}
	if err := collect(findIn(ctx, u, r.ResourceSyncs, query, tags)); err != nil {
		return nil, err
	}
	return out, nil
}

// findIn filters one kind's readable resources down to Summary rows.
func findIn[C any, I any, P any](ctx context.Context, u *user.User, rs *ResourceService[C, I, P], query string, tags []string) ([]resource.Summary, error) {
	all, err := rs.List(ctx, u)
	if err != nil {
		return nil, err
	}
	query = strings.ToLower(query)
	var out []resource.Summary
	for _, res := range all {
		if query != "" && !strings.Contains(strings.ToLower(res.Name), query) {
			continue
		}
		if !hasAllTags(res.Tags, tags) {
			continue
		}
		out = append(out, resource.Summary{Kind: rs.kind, Id: res.Id, Name: res.Name, Tags: res.Tags})
	}
	return out, nil
}

// cascadeServerDelete clears serverID off every Deployment/Repo/Stack that
// pointed at it and off any "Server" type Builder whose embedded
// server_id param matches, instead of cascading the delete onto them.
func cascadeServerDelete(ctx context.Context, store database.Store, serverID string) error {
	deployments, err := store.ListDeploymentsByServer(ctx, serverID)
	if err != nil {
		return fmt.Errorf("list deployments by server: %w", err)
	}
	empty := ""
	for _, d := range deployments {
		if _, err := store.UpdateDeploymentConfig(ctx, d.Id, deployment.PartialConfig{ServerId: &empty}); err != nil {
			return fmt.Errorf("clear deployment %s server_id: %w", d.Id, err)
		}
	}

	repos, err := store.ListRepos(ctx)
	if err != nil {
		return fmt.Errorf("list repos: %w", err)
	}
	for _, rp := range repos {
		if rp.Config.ServerId != serverID {
			continue
		}
		if _, err := store.UpdateRepoConfig(ctx, rp.Id, repo.PartialConfig{ServerId: &empty}); err != nil {
			return fmt.Errorf("clear repo %s server_id: %w", rp.Id, err)
		}
	}

	stacks, err := store.ListStacks(ctx)
	if err != nil {
		return fmt.Errorf("list stacks: %w", err)
	}
	for _, st := range stacks {
		if st.Config.ServerId != serverID {
			continue
		}
		if _, err := store.UpdateStackConfig(ctx, st.Id, stack.PartialConfig{ServerId: &empty}); err != nil {
			return fmt.Errorf("clear stack %s server_id: %w", st.Id, err)
		}
	}

	builders, err := store.ListBuilders(ctx)
	if err != nil {
		return fmt.Errorf("list builders: %w", err)
	}
	for _, b := range builders {
		if b.Config.Builder.Type != builder.TypeServer {
			continue
		}
		if id, _ := b.Config.Builder.Params["server_id"].(string); id != serverID {
			continue
		}
		partial := builder.PartialConfig{Builder: &configdiff.Variant{Type: builder.TypeServer, Params: map[string]any{"server_id": ""}}}
		if _, err := store.UpdateBuilderConfig(ctx, b.Id, partial); err != nil {
			return fmt.Errorf("clear builder %s server_id: %w", b.Id, err)
		}
	}

	return nil
}
