// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/komodo-run/core/internal/domain/action"
	"github.com/komodo-run/core/internal/domain/alert"
	"github.com/komodo-run/core/internal/domain/alerter"
	"github.com/komodo-run/core/internal/domain/build"
	"github.com/komodo-run/core/internal/domain/builder"
	"github.com/komodo-run/core/internal/domain/deployment"
	"github.com/komodo-run/core/internal/domain/permission"
	"github.com/komodo-run/core/internal/domain/procedure"
	"github.com/komodo-run/core/internal/domain/repo"
	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/resourcesync"
	"github.com/komodo-run/core/internal/domain/server"
	"github.com/komodo-run/core/internal/domain/servertemplate"
	"github.com/komodo-run/core/internal/domain/stack"
	"github.com/komodo-run/core/internal/domain/tag"
	"github.com/komodo-run/core/internal/domain/update"
	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/domain/variable"
)

// Store is the port interface for database operations. Go interfaces
// cannot carry generic methods, so each resource kind gets its own
// concrete CRUD section rather than one generic ResourceStore[C, I]
// method set; the Postgres adapter implements all of them against a
// single generic helper internally (see internal/adapter/postgres).
type Store interface {
	// Servers
	ListServers(ctx context.Context) ([]server.Resource, error)
	GetServer(ctx context.Context, id string) (*server.Resource, error)
	GetServerByName(ctx context.Context, name string) (*server.Resource, error)
	CreateServer(ctx context.Context, name string, cfg server.Config) (*server.Resource, error)
	UpdateServerConfig(ctx context.Context, id string, partial server.PartialConfig) (*server.Resource, error)
	UpdateServerInfo(ctx context.Context, id string, info server.Info) error
	DeleteServer(ctx context.Context, id string) error
	InsertServerStats(ctx context.Context, snap server.StatsSnapshot) error
	ListServerStats(ctx context.Context, serverID string, limit int) ([]server.StatsSnapshot, error)
	PruneServerStats(ctx context.Context, olderThanTs int64) (int64, error)

	// SetResourceDescription updates the free-form description of any
	// resource kind; description lives outside the kind-specific Config
	// so it needs no typed per-kind method.
	SetResourceDescription(ctx context.Context, target resource.TargetRef, description string) error

	// Deployments
	ListDeployments(ctx context.Context) ([]deployment.Resource, error)
	GetDeployment(ctx context.Context, id string) (*deployment.Resource, error)
	GetDeploymentByName(ctx context.Context, name string) (*deployment.Resource, error)
	ListDeploymentsByServer(ctx context.Context, serverID string) ([]deployment.Resource, error)
	CreateDeployment(ctx context.Context, name string, cfg deployment.Config) (*deployment.Resource, error)
	UpdateDeploymentConfig(ctx context.Context, id string, partial deployment.PartialConfig) (*deployment.Resource, error)
	UpdateDeploymentInfo(ctx context.Context, id string, info deployment.Info) error
	DeleteDeployment(ctx context.Context, id string) error

	// Builds
	ListBuilds(ctx context.Context) ([]build.Resource, error)
	GetBuild(ctx context.Context, id string) (*build.Resource, error)
	GetBuildByName(ctx context.Context, name string) (*build.Resource, error)
	CreateBuild(ctx context.Context, name string, cfg build.Config) (*build.Resource, error)
	UpdateBuildConfig(ctx context.Context, id string, partial build.PartialConfig) (*build.Resource, error)
	UpdateBuildInfo(ctx context.Context, id string, info build.Info) error
	DeleteBuild(ctx context.Context, id string) error

	// Repos
	ListRepos(ctx context.Context) ([]repo.Resource, error)
	GetRepo(ctx context.Context, id string) (*repo.Resource, error)
	GetRepoByName(ctx context.Context, name string) (*repo.Resource, error)
	CreateRepo(ctx context.Context, name string, cfg repo.Config) (*repo.Resource, error)
	UpdateRepoConfig(ctx context.Context, id string, partial repo.PartialConfig) (*repo.Resource, error)
	UpdateRepoInfo(ctx context.Context, id string, info repo.Info) error
	DeleteRepo(ctx context.Context, id string) error

	// Stacks
	ListStacks(ctx context.Context) ([]stack.Resource, error)
	GetStack(ctx context.Context, id string) (*stack.Resource, error)
	GetStackByName(ctx context.Context, name string) (*stack.Resource, error)
	CreateStack(ctx context.Context, name string, cfg stack.Config) (*stack.Resource, error)
	UpdateStackConfig(ctx context.Context, id string, partial stack.PartialConfig) (*stack.Resource, error)
	UpdateStackInfo(ctx context.Context, id string, info stack.Info) error
	DeleteStack(ctx context.Context, id string) error

	// Procedures
	ListProcedures(ctx context.Context) ([]procedure.Resource, error)
	GetProcedure(ctx context.Context, id string) (*procedure.Resource, error)
	GetProcedureByName(ctx context.Context, name string) (*procedure.Resource, error)
	CreateProcedure(ctx context.Context, name string, cfg procedure.Config) (*procedure.Resource, error)
	UpdateProcedureConfig(ctx context.Context, id string, partial procedure.PartialConfig) (*procedure.Resource, error)
	UpdateProcedureInfo(ctx context.Context, id string, info procedure.Info) error
	DeleteProcedure(ctx context.Context, id string) error

	// Actions
	ListActions(ctx context.Context) ([]action.Resource, error)
	GetAction(ctx context.Context, id string) (*action.Resource, error)
	GetActionByName(ctx context.Context, name string) (*action.Resource, error)
	CreateAction(ctx context.Context, name string, cfg action.Config) (*action.Resource, error)
	UpdateActionConfig(ctx context.Context, id string, partial action.PartialConfig) (*action.Resource, error)
	UpdateActionInfo(ctx context.Context, id string, info action.Info) error
	DeleteAction(ctx context.Context, id string) error

	// Alerters
	ListAlerters(ctx context.Context) ([]alerter.Resource, error)
	GetAlerter(ctx context.Context, id string) (*alerter.Resource, error)
	GetAlerterByName(ctx context.Context, name string) (*alerter.Resource, error)
	CreateAlerter(ctx context.Context, name string, cfg alerter.Config) (*alerter.Resource, error)
	UpdateAlerterConfig(ctx context.Context, id string, partial alerter.PartialConfig) (*alerter.Resource, error)
	UpdateAlerterInfo(ctx context.Context, id string, info alerter.Info) error
	DeleteAlerter(ctx context.Context, id string) error

	// Builders
	ListBuilders(ctx context.Context) ([]builder.Resource, error)
	GetBuilder(ctx context.Context, id string) (*builder.Resource, error)
	GetBuilderByName(ctx context.Context, name string) (*builder.Resource, error)
	CreateBuilder(ctx context.Context, name string, cfg builder.Config) (*builder.Resource, error)
	UpdateBuilderConfig(ctx context.Context, id string, partial builder.PartialConfig) (*builder.Resource, error)
	DeleteBuilder(ctx context.Context, id string) error

	// Server Templates
	ListServerTemplates(ctx context.Context) ([]servertemplate.Resource, error)
	GetServerTemplate(ctx context.Context, id string) (*servertemplate.Resource, error)
	GetServerTemplateByName(ctx context.Context, name string) (*servertemplate.Resource, error)
	CreateServerTemplate(ctx context.Context, name string, cfg servertemplate.Config) (*servertemplate.Resource, error)
	UpdateServerTemplateConfig(ctx context.Context, id string, partial servertemplate.PartialConfig) (*servertemplate.Resource, error)
	DeleteServerTemplate(ctx context.Context, id string) error

	// Resource Syncs
	ListResourceSyncs(ctx context.Context) ([]resourcesync.Resource, error)
	GetResourceSync(ctx context.Context, id string) (*resourcesync.Resource, error)
	GetResourceSyncByName(ctx context.Context, name string) (*resourcesync.Resource, error)
	CreateResourceSync(ctx context.Context, name string, cfg resourcesync.Config) (*resourcesync.Resource, error)
	UpdateResourceSyncConfig(ctx context.Context, id string, partial resourcesync.PartialConfig) (*resourcesync.Resource, error)
	UpdateResourceSyncInfo(ctx context.Context, id string, info resourcesync.Info) error
	DeleteResourceSync(ctx context.Context, id string) error

	// Updates
	CreateUpdate(ctx context.Context, u *update.Update) error
	AppendUpdateLog(ctx context.Context, id string, log update.Log) error
	FinalizeUpdate(ctx context.Context, id string, status update.Status, endTs int64) error
	GetUpdate(ctx context.Context, id string) (*update.Update, error)
	ListUpdates(ctx context.Context, target resource.TargetRef, limit int) ([]update.Update, error)

	// Alerts
	CreateAlert(ctx context.Context, a *alert.Alert) error
	UpdateAlertLevel(ctx context.Context, id string, level alert.Level, data alert.Data) error
	ResolveAlert(ctx context.Context, id string, resolvedTs int64) error
	ListOpenAlerts(ctx context.Context) ([]alert.Alert, error)
	FindOpenAlert(ctx context.Context, target resource.TargetRef, variant alert.Variant) (*alert.Alert, error)
	ListAlerts(ctx context.Context, target *resource.TargetRef, limit int) ([]alert.Alert, error)

	// Tags
	ListTags(ctx context.Context) ([]tag.Tag, error)
	CreateTag(ctx context.Context, name string) (*tag.Tag, error)
	DeleteTag(ctx context.Context, id string) error
	SetResourceTags(ctx context.Context, target resource.TargetRef, tagIDs []string) error
	ListResourceTags(ctx context.Context, target resource.TargetRef) ([]tag.Tag, error)

	// Variables
	ListVariables(ctx context.Context) ([]variable.Variable, error)
	GetVariable(ctx context.Context, name string) (*variable.Variable, error)
	UpsertVariable(ctx context.Context, v variable.Variable) error
	DeleteVariable(ctx context.Context, name string) error

	// Permissions / Grants
	ListGrants(ctx context.Context, principalKind permission.PrincipalKind, principalID string) ([]permission.Grant, error)
	ListGrantsForTarget(ctx context.Context, target resource.TargetRef) ([]permission.Grant, error)
	UpsertGrant(ctx context.Context, g permission.Grant) error
	UpsertKindAllGrant(ctx context.Context, g permission.KindAllGrant) error
	ListKindAllGrants(ctx context.Context, userID string) ([]permission.KindAllGrant, error)

	// User Groups
	ListGroups(ctx context.Context) ([]user.Group, error)
	GetGroup(ctx context.Context, id string) (*user.Group, error)
	CreateGroup(ctx context.Context, name string) (*user.Group, error)
	AddGroupMember(ctx context.Context, groupID, userID string) error
	RemoveGroupMember(ctx context.Context, groupID, userID string) error
	DeleteGroup(ctx context.Context, id string) error

	// Users
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id string) (*user.User, error)
	GetUserByUsername(ctx context.Context, username string) (*user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	UpdateUser(ctx context.Context, u *user.User) error
	DeleteUser(ctx context.Context, id string) error

	// Refresh Tokens
	CreateRefreshToken(ctx context.Context, rt *user.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*user.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, id string) error
	DeleteRefreshTokensByUser(ctx context.Context, userID string) error
	RotateRefreshToken(ctx context.Context, oldID string, newRT *user.RefreshToken) error

	// API Keys
	CreateAPIKey(ctx context.Context, key *user.APIKey) error
	GetAPIKeyByKey(ctx context.Context, key string) (*user.APIKey, error)
	ListAPIKeysByUser(ctx context.Context, userID string) ([]user.APIKey, error)
	DeleteAPIKey(ctx context.Context, id string) error

	// Token Revocation
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
	PurgeExpiredTokens(ctx context.Context) (int64, error)
}
