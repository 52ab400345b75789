package postgres

import (
	"context"

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
)

// Servers

func (s *Store) ListServers(ctx context.Context) ([]server.Resource, error) {
	return listResources[server.Config, server.Info](ctx, s.pool, resource.KindServer)
}

func (s *Store) GetServer(ctx context.Context, id string) (*server.Resource, error) {
	return getResource[server.Config, server.Info](ctx, s.pool, resource.KindServer, id)
}

func (s *Store) GetServerByName(ctx context.Context, name string) (*server.Resource, error) {
	return getResourceByName[server.Config, server.Info](ctx, s.pool, resource.KindServer, name)
}

func (s *Store) CreateServer(ctx context.Context, name string, cfg server.Config) (*server.Resource, error) {
	return createResource[server.Config, server.Info](ctx, s.pool, resource.KindServer, name, cfg)
}

func (s *Store) UpdateServerConfig(ctx context.Context, id string, partial server.PartialConfig) (*server.Resource, error) {
	return updateResourceConfig[server.Config, server.Info](ctx, s.pool, resource.KindServer, id, partial)
}

func (s *Store) UpdateServerInfo(ctx context.Context, id string, info server.Info) error {
	return updateResourceInfo(ctx, s.pool, resource.KindServer, id, info)
}

func (s *Store) DeleteServer(ctx context.Context, id string) error {
	return deleteResource(ctx, s.pool, resource.KindServer, id)
}

// Deployments

func (s *Store) ListDeployments(ctx context.Context) ([]deployment.Resource, error) {
	return listResources[deployment.Config, deployment.Info](ctx, s.pool, resource.KindDeployment)
}

func (s *Store) GetDeployment(ctx context.Context, id string) (*deployment.Resource, error) {
	return getResource[deployment.Config, deployment.Info](ctx, s.pool, resource.KindDeployment, id)
}

func (s *Store) GetDeploymentByName(ctx context.Context, name string) (*deployment.Resource, error) {
	return getResourceByName[deployment.Config, deployment.Info](ctx, s.pool, resource.KindDeployment, name)
}

func (s *Store) ListDeploymentsByServer(ctx context.Context, serverID string) ([]deployment.Resource, error) {
	all, err := listResources[deployment.Config, deployment.Info](ctx, s.pool, resource.KindDeployment)
	if err != nil {
		return nil, err
	}
	var out []deployment.Resource
	for _, d := range all {
		if d.Config.ServerId == serverID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) CreateDeployment(ctx context.Context, name string, cfg deployment.Config) (*deployment.Resource, error) {
	return createResource[deployment.Config, deployment.Info](ctx, s.pool, resource.KindDeployment, name, cfg)
}

func (s *Store) UpdateDeploymentConfig(ctx context.Context, id string, partial deployment.PartialConfig) (*deployment.Resource, error) {
	return updateResourceConfig[deployment.Config, deployment.Info](ctx, s.pool, resource.KindDeployment, id, partial)
}

func (s *Store) UpdateDeploymentInfo(ctx context.Context, id string, info deployment.Info) error {
	return updateResourceInfo(ctx, s.pool, resource.KindDeployment, id, info)
}

func (s *Store) DeleteDeployment(ctx context.Context, id string) error {
	return deleteResource(ctx, s.pool, resource.KindDeployment, id)
}

// Builds

func (s *Store) ListBuilds(ctx context.Context) ([]build.Resource, error) {
	return listResources[build.Config, build.Info](ctx, s.pool, resource.KindBuild)
}

func (s *Store) GetBuild(ctx context.Context, id string) (*build.Resource, error) {
	return getResource[build.Config, build.Info](ctx, s.pool, resource.KindBuild, id)
}

func (s *Store) GetBuildByName(ctx context.Context, name string) (*build.Resource, error) {
	return getResourceByName[build.Config, build.Info](ctx, s.pool, resource.KindBuild, name)
}

func (s *Store) CreateBuild(ctx context.Context, name string, cfg build.Config) (*build.Resource, error) {
	return createResource[build.Config, build.Info](ctx, s.pool, resource.KindBuild, name, cfg)
}

func (s *Store) UpdateBuildConfig(ctx context.Context, id string, partial build.PartialConfig) (*build.Resource, error) {
	return updateResourceConfig[build.Config, build.Info](ctx, s.pool, resource.KindBuild, id, partial)
}

func (s *Store) UpdateBuildInfo(ctx context.Context, id string, info build.Info) error {
	return updateResourceInfo(ctx, s.pool, resource.KindBuild, id, info)
}

func (s *Store) DeleteBuild(ctx context.Context, id string) error {
	return deleteResource(ctx, s.pool, resource.KindBuild, id)
}

// Repos

func (s *Store) ListRepos(ctx context.Context) ([]repo.Resource, error) {
	return listResources[repo.Config, repo.Info](ctx, s.pool, resource.KindRepo)
}

func (s *Store) GetRepo(ctx context.Context, id string) (*repo.Resource, error) {
	return getResource[repo.Config, repo.Info](ctx, s.pool, resource.KindRepo, id)
}

func (s *Store) GetRepoByName(ctx context.Context, name string) (*repo.Resource, error) {
	return getResourceByName[repo.Config, repo.Info](ctx, s.pool, resource.KindRepo, name)
}

func (s *Store) CreateRepo(ctx context.Context, name string, cfg repo.Config) (*repo.Resource, error) {
	return createResource[repo.Config, repo.Info](ctx, s.pool, resource.KindRepo, name, cfg)
}

func (s *Store) UpdateRepoConfig(ctx context.Context, id string, partial repo.PartialConfig) (*repo.Resource, error) {
	return updateResourceConfig[repo.Config, repo.Info](ctx, s.pool, resource.KindRepo, id, partial)
}

func (s *Store) UpdateRepoInfo(ctx context.Context, id string, info repo.Info) error {
	return updateResourceInfo(ctx, s.pool, resource.KindRepo, id, info)
}

func (s *Store) DeleteRepo(ctx context.Context, id string) error {
	return deleteResource(ctx, s.pool, resource.KindRepo, id)
}

// Stacks

func (s *Store) ListStacks(ctx context.Context) ([]stack.Resource, error) {
	return listResources[stack.Config, stack.Info](ctx, s.pool, resource.KindStack)
}

func (s *Store) GetStack(ctx context.Context, id string) (*stack.Resource, error) {
	return getResource[stack.Config, stack.Info](ctx, s.pool, resource.KindStack, id)
}

func (s *Store) GetStackByName(ctx context.Context, name string) (*stack.Resource, error) {
	return getResourceByName[stack.Config, stack.Info](ctx, s.pool, resource.KindStack, name)
}

func (s *Store) CreateStack(ctx context.Context, name string, cfg stack.Config) (*stack.Resource, error) {
	return createResource[stack.Config, stack.Info](ctx, s.pool, resource.KindStack, name, cfg)
}

func (s *Store) UpdateStackConfig(ctx context.Context, id string, partial stack.PartialConfig) (*stack.Resource, error) {
	if partial.FileSource != nil {
		current, err := getResource[stack.Config, stack.Info](ctx, s.pool, resource.KindStack, id)
		if err != nil {
			return nil, err
		}
		merged, err := configdiff.MergeVariant(current.Config.FileSource, *partial.FileSource)
		if err != nil {
			return nil, err
		}
		partial.FileSource = &merged
	}
	return updateResourceConfig[stack.Config, stack.Info](ctx, s.pool, resource.KindStack, id, partial)
}

func (s *Store) UpdateStackInfo(ctx context.Context, id string, info stack.Info) error {
	return updateResourceInfo(ctx, s.pool, resource.KindStack, id, info)
}

func (s *Store) DeleteStack(ctx context.Context, id string) error {
	return deleteResource(ctx, s.pool, resource.KindStack, id)
}

// Procedures

func (s *Store) ListProcedures(ctx context.Context) ([]procedure.Resource, error) {
	return listResources[procedure.Config, procedure.Info](ctx, s.pool, resource.KindProcedure)
}

func (s *Store) GetProcedure(ctx context.Context, id string) (*procedure.Resource, error) {
	return getResource[procedure.Config, procedure.Info](ctx, s.pool, resource.KindProcedure, id)
}

func (s *Store) GetProcedureByName(ctx context.Context, name string) (*procedure.Resource, error) {
	return getResourceByName[procedure.Config, procedure.Info](ctx, s.pool, resource.KindProcedure, name)
}

func (s *Store) CreateProcedure(ctx context.Context, name string, cfg procedure.Config) (*procedure.Resource, error) {
	return createResource[procedure.Config, procedure.Info](ctx, s.pool, resource.KindProcedure, name, cfg)
}

func (s *Store) UpdateProcedureConfig(ctx context.Context, id string, partial procedure.PartialConfig) (*procedure.Resource, error) {
	return updateResourceConfig[procedure.Config, procedure.Info](ctx, s.pool, resource.KindProcedure, id, partial)
}

func (s *Store) UpdateProcedureInfo(ctx context.Context, id string, info procedure.Info) error {
	return updateResourceInfo(ctx, s.pool, resource.KindProcedure, id, info)
}

func (s *Store) DeleteProcedure(ctx context.Context, id string) error {
	return deleteResource(ctx, s.pool, resource.KindProcedure, id)
}

// Actions

func (s *Store) ListActions(ctx context.Context) ([]action.Resource, error) {
	return listResources[action.Config, action.Info](ctx, s.pool, resource.KindAction)
}

func (s *Store) GetAction(ctx context.Context, id string) (*action.Resource, error) {
	return getResource[action.Config, action.Info](ctx, s.pool, resource.KindAction, id)
}

func (s *Store) GetActionByName(ctx context.Context, name string) (*action.Resource, error) {
	return getResourceByName[action.Config, action.Info](ctx, s.pool, resource.KindAction, name)
}

func (s *Store) CreateAction(ctx context.Context, name string, cfg action.Config) (*action.Resource, error) {
	return createResource[action.Config, action.Info](ctx, s.pool, resource.KindAction, name, cfg)
}

func (s *Store) UpdateActionConfig(ctx context.Context, id string, partial action.PartialConfig) (*action.Resource, error) {
	return updateResourceConfig[action.Config, action.Info](ctx, s.pool, resource.KindAction, id, partial)
}

func (s *Store) UpdateActionInfo(ctx context.Context, id string, info action.Info) error {
	return updateResourceInfo(ctx, s.pool, resource.KindAction, id, info)
}

func (s *Store) DeleteAction(ctx context.Context, id string) error {
	return deleteResource(ctx, s.pool, resource.KindAction, id)
}

// Alerters

func (s *Store) ListAlerters(ctx context.Context) ([]alerter.Resource, error) {
	return listResources[alerter.Config, alerter.Info](ctx, s.pool, resource.KindAlerter)
}

func (s *Store) GetAlerter(ctx context.Context, id string) (*alerter.Resource, error) {
	return getResource[alerter.Config, alerter.Info](ctx, s.pool, resource.KindAlerter, id)
}

func (s *Store) GetAlerterByName(ctx context.Context, name string) (*alerter.Resource, error) {
	return getResourceByName[alerter.Config, alerter.Info](ctx, s.pool, resource.KindAlerter, name)
}

func (s *Store) CreateAlerter(ctx context.Context, name string, cfg alerter.Config) (*alerter.Resource, error) {
	return createResource[alerter.Config, alerter.Info](ctx, s.pool, resource.KindAlerter, name, cfg)
}

func (s *Store) UpdateAlerterConfig(ctx context.Context, id string, partial alerter.PartialConfig) (*alerter.Resource, error) {
	if partial.Endpoint != nil {
		current, err := getResource[alerter.Config, alerter.Info](ctx, s.pool, resource.KindAlerter, id)
		if err != nil {
			return nil, err
		}
		merged, err := configdiff.MergeVariant(current.Config.Endpoint, *partial.Endpoint)
		if err != nil {
			return nil, err
		}
		partial.Endpoint = &merged
	}
	return updateResourceConfig[alerter.Config, alerter.Info](ctx, s.pool, resource.KindAlerter, id, partial)
}

func (s *Store) UpdateAlerterInfo(ctx context.Context, id string, info alerter.Info) error {
	return updateResourceInfo(ctx, s.pool, resource.KindAlerter, id, info)
}

func (s *Store) DeleteAlerter(ctx context.Context, id string) error {
	return deleteResource(ctx, s.pool, resource.KindAlerter, id)
}

// Builders

func (s *Store) ListBuilders(ctx context.Context) ([]builder.Resource, error) {
	return listResources[builder.Config, builder.Info](ctx, s.pool, resource.KindBuilder)
}

func (s *Store) GetBuilder(ctx context.Context, id string) (*builder.Resource, error) {
	return getResource[builder.Config, builder.Info](ctx, s.pool, resource.KindBuilder, id)
}

func (s *Store) GetBuilderByName(ctx context.Context, name string) (*builder.Resource, error) {
	return getResourceByName[builder.Config, builder.Info](ctx, s.pool, resource.KindBuilder, name)
}

func (s *Store) CreateBuilder(ctx context.Context, name string, cfg builder.Config) (*builder.Resource, error) {
	return createResource[builder.Config, builder.Info](ctx, s.pool, resource.KindBuilder, name, cfg)
}

func (s *Store) UpdateBuilderConfig(ctx context.Context, id string, partial builder.PartialConfig) (*builder.Resource, error) {
	if partial.Builder != nil {
		current, err := getResource[builder.Config, builder.Info](ctx, s.pool, resource.KindBuilder, id)
		if err != nil {
			return nil, err
		}
		merged, err := configdiff.MergeVariant(current.Config.Builder, *partial.Builder)
		if err != nil {
			return nil, err
		}
		partial.Builder = &merged
	}
	return updateResourceConfig[builder.Config, builder.Info](ctx, s.pool, resource.KindBuilder, id, partial)
}

func (s *Store) DeleteBuilder(ctx context.Context, id string) error {
	return deleteResource(ctx, s.pool, resource.KindBuilder, id)
}

// Server Templates

func (s *Store) ListServerTemplates(ctx context.Context) ([]servertemplate.Resource, error) {
	return listResources[servertemplate.Config, servertemplate.Info](ctx, s.pool, resource.KindServerTemplate)
}

func (s *Store) GetServerTemplate(ctx context.Context, id string) (*servertemplate.Resource, error) {
	return getResource[servertemplate.Config, servertemplate.Info](ctx, s.pool, resource.KindServerTemplate, id)
}

func (s *Store) GetServerTemplateByName(ctx context.Context, name string) (*servertemplate.Resource, error) {
	return getResourceByName[servertemplate.Config, servertemplate.Info](ctx, s.pool, resource.KindServerTemplate, name)
}

func (s *Store) CreateServerTemplate(ctx context.Context, name string, cfg servertemplate.Config) (*servertemplate.Resource, error) {
	return createResource[servertemplate.Config, servertemplate.Info](ctx, s.pool, resource.KindServerTemplate, name, cfg)
}

func (s *Store) UpdateServerTemplateConfig(ctx context.Context, id string, partial servertemplate.PartialConfig) (*servertemplate.Resource, error) {
	if partial.Provider != nil {
		current, err := getResource[servertemplate.Config, servertemplate.Info](ctx, s.pool, resource.KindServerTemplate, id)
		if err != nil {
			return nil, err
		}
		merged, err := configdiff.MergeVariant(current.Config.Provider, *partial.Provider)
		if err != nil {
			return nil, err
		}
		partial.Provider = &merged
	}
	return updateResourceConfig[servertemplate.Config, servertemplate.Info](ctx, s.pool, resource.KindServerTemplate, id, partial)
}

func (s *Store) DeleteServerTemplate(ctx context.Context, id string) error {
	return deleteResource(ctx, s.pool, resource.KindServerTemplate, id)
}

// Resource Syncs

func (s *Store) ListResourceSyncs(ctx context.Context) ([]resourcesync.Resource, error) {
	return listResources[resourcesync.Config, resourcesync.Info](ctx, s.pool, resource.KindResourceSync)
}

func (s *Store) GetResourceSync(ctx context.Context, id string) (*resourcesync.Resource, error) {
	return getResource[resourcesync.Config, resourcesync.Info](ctx, s.pool, resource.KindResourceSync, id)
}

func (s *Store) GetResourceSyncByName(ctx context.Context, name string) (*resourcesync.Resource, error) {
	return getResourceByName[resourcesync.Config, resourcesync.Info](ctx, s.pool, resource.KindResourceSync, name)
}

func (s *Store) CreateResourceSync(ctx context.Context, name string, cfg resourcesync.Config) (*resourcesync.Resource, error) {
	return createResource[resourcesync.Config, resourcesync.Info](ctx, s.pool, resource.KindResourceSync, name, cfg)
}

func (s *Store) UpdateResourceSyncConfig(ctx context.Context, id string, partial resourcesync.PartialConfig) (*resourcesync.Resource, error) {
	return updateResourceConfig[resourcesync.Config, resourcesync.Info](ctx, s.pool, resource.KindResourceSync, id, partial)
}

func (s *Store) UpdateResourceSyncInfo(ctx context.Context, id string, info resourcesync.Info) error {
	return updateResourceInfo(ctx, s.pool, resource.KindResourceSync, id, info)
}

func (s *Store) DeleteResourceSync(ctx context.Context, id string) error {
	return deleteResource(ctx, s.pool, resource.KindResourceSync, id)
}
