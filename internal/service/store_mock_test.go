package service

import (
	"context"
	"fmt"
	"time"

	"github.com/komodo-run/core/internal/domain"
	"github.com/komodo-run/core/internal/domain/configdiff"
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
	"github.com/komodo-run/core/internal/port/database"
)

// Ensure mockStore implements database.Store at compile time.
var _ database.Store = (*mockStore)(nil)

// mockStore is a minimal in-memory database.Store for exercising the
// service layer. Only the sections a given test touches need real
// behavior; the rest are simple not-found/no-op stubs, same as the rest
// of the package would see against an empty database.
type mockStore struct {
	users         []user.User
	refreshTokens []user.RefreshToken
	apiKeys       []user.APIKey
	revoked       map[string]time.Time

	grants        []permission.Grant
	kindAllGrants []permission.KindAllGrant
	groups        []user.Group

	servers       []server.Resource
	deployments   []deployment.Resource
	stacks        []stack.Resource
	resourceSyncs []resourcesync.Resource
	updates       []update.Update
	alerts        []alert.Alert

	tags         []tag.Tag
	resourceTags map[resource.TargetRef][]string

	nextID int
}

func (m *mockStore) genID() string {
	m.nextID++
	return fmt.Sprintf("00000000-0000-0000-0000-%012d", m.nextID)
}

// --- Users ---

func (m *mockStore) CreateUser(_ context.Context, u *user.User) error {
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return domain.ErrConflict
		}
	}
	m.users = append(m.users, *u)
	return nil
}

func (m *mockStore) GetUser(_ context.Context, id string) (*user.User, error) {
	for i := range m.users {
		if m.users[i].ID == id {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetUserByUsername(_ context.Context, username string) (*user.User, error) {
	for i := range m.users {
		if m.users[i].Username == username {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListUsers(_ context.Context) ([]user.User, error) {
	return m.users, nil
}

func (m *mockStore) UpdateUser(_ context.Context, u *user.User) error {
	for i := range m.users {
		if m.users[i].ID == u.ID {
			m.users[i] = *u
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) DeleteUser(_ context.Context, id string) error {
	for i := range m.users {
		if m.users[i].ID == id {
			m.users = append(m.users[:i], m.users[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- Refresh Tokens ---

func (m *mockStore) CreateRefreshToken(_ context.Context, rt *user.RefreshToken) error {
	m.refreshTokens = append(m.refreshTokens, *rt)
	return nil
}

func (m *mockStore) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*user.RefreshToken, error) {
	for i := range m.refreshTokens {
		if m.refreshTokens[i].TokenHash == tokenHash {
			rt := m.refreshTokens[i]
			return &rt, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) DeleteRefreshToken(_ context.Context, id string) error {
	for i := range m.refreshTokens {
		if m.refreshTokens[i].ID == id {
			m.refreshTokens = append(m.refreshTokens[:i], m.refreshTokens[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockStore) DeleteRefreshTokensByUser(_ context.Context, userID string) error {
	out := m.refreshTokens[:0]
	for _, rt := range m.refreshTokens {
		if rt.UserID != userID {
			out = append(out, rt)
		}
	}
	m.refreshTokens = out
	return nil
}

func (m *mockStore) RotateRefreshToken(_ context.Context, oldID string, newRT *user.RefreshToken) error {
	for i := range m.refreshTokens {
		if m.refreshTokens[i].ID == oldID {
			m.refreshTokens = append(m.refreshTokens[:i], m.refreshTokens[i+1:]...)
			break
		}
	}
	m.refreshTokens = append(m.refreshTokens, *newRT)
	return nil
}

// --- API Keys ---

func (m *mockStore) CreateAPIKey(_ context.Context, key *user.APIKey) error {
	m.apiKeys = append(m.apiKeys, *key)
	return nil
}

func (m *mockStore) GetAPIKeyByKey(_ context.Context, key string) (*user.APIKey, error) {
	for i := range m.apiKeys {
		if m.apiKeys[i].Key == key {
			k := m.apiKeys[i]
			return &k, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListAPIKeysByUser(_ context.Context, userID string) ([]user.APIKey, error) {
	var out []user.APIKey
	for _, k := range m.apiKeys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *mockStore) DeleteAPIKey(_ context.Context, id string) error {
	for i := range m.apiKeys {
		if m.apiKeys[i].ID == id {
			m.apiKeys = append(m.apiKeys[:i], m.apiKeys[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- Token Revocation ---

func (m *mockStore) RevokeToken(_ context.Context, jti string, expiresAt time.Time) error {
	if m.revoked == nil {
		m.revoked = make(map[string]time.Time)
	}
	m.revoked[jti] = expiresAt
	return nil
}

func (m *mockStore) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	_, ok := m.revoked[jti]
	return ok, nil
}

func (m *mockStore) PurgeExpiredTokens(_ context.Context) (int64, error) {
	now := time.Now()
	var purged int64
	for jti, exp := range m.revoked {
		if now.After(exp) {
			delete(m.revoked, jti)
			purged++
		}
	}
	return purged, nil
}

// --- Resource kinds: unexercised by the auth tests, stubbed as empty ---

func (m *mockStore) ListServers(context.Context) ([]server.Resource, error) {
	return append([]server.Resource(nil), m.servers...), nil
}
func (m *mockStore) GetServer(_ context.Context, id string) (*server.Resource, error) {
	for i := range m.servers {
		if m.servers[i].Id == id {
			s := m.servers[i]
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockStore) GetServerByName(_ context.Context, name string) (*server.Resource, error) {
	for i := range m.servers {
		if m.servers[i].Name == name {
			s := m.servers[i]
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockStore) CreateServer(_ context.Context, name string, cfg server.Config) (*server.Resource, error) {
	for _, s := range m.servers {
		if s.Name == name {
			return nil, domain.ErrConflict
		}
	}
	s := server.Resource{Id: m.genID(), Name: name, Config: cfg, Version: 1}
	m.servers = append(m.servers, s)
	return &s, nil
}
func (m *mockStore) UpdateServerConfig(_ context.Context, id string, partial server.PartialConfig) (*server.Resource, error) {
	for i := range m.servers {
		if m.servers[i].Id == id {
			merged, err := configdiff.MergePartial(m.servers[i].Config, partial)
			if err != nil {
				return nil, err
			}
			m.servers[i].Config = merged
			m.servers[i].Version++
			s := m.servers[i]
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockStore) UpdateServerInfo(context.Context, string, server.Info) error { return nil }
func (m *mockStore) DeleteServer(context.Context, string) error                 { return nil }
func (m *mockStore) InsertServerStats(context.Context, server.StatsSnapshot) error { return nil }
func (m *mockStore) ListServerStats(context.Context, string, int) ([]server.StatsSnapshot, error) {
	return nil, nil
}
func (m *mockStore) PruneServerStats(context.Context, int64) (int64, error) { return 0, nil }

func (m *mockStore) ListDeployments(context.Context) ([]deployment.Resource, error) {
	return append([]deployment.Resource(nil), m.deployments...), nil
}
func (m *mockStore) GetDeployment(_ context.Context, id string) (*deployment.Resource, error) {
	for i := range m.deployments {
		if m.deployments[i].Id == id {
			d := m.deployments[i]
			return &d, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockStore) GetDeploymentByName(_ context.Context, name string) (*deployment.Resource, error) {
	for i := range m.deployments {
		if m.deployments[i].Name == name {
			d := m.deployments[i]
			return &d, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockStore) ListDeploymentsByServer(_ context.Context, serverID string) ([]deployment.Resource, error) {
	var out []deployment.Resource
	for _, d := range m.deployments {
		if d.Config.ServerId == serverID {
			out = append(out, d)
		}
	}
	return out, nil
}
func (m *mockStore) CreateDeployment(_ context.Context, name string, cfg deployment.Config) (*deployment.Resource, error) {
	for _, d := range m.deployments {
		if d.Name == name {
			return nil, domain.ErrConflict
		}
	}
	d := deployment.Resource{Id: m.genID(), Name: name, Config: cfg, Version: 1}
	m.deployments = append(m.deployments, d)
	return &d, nil
}
func (m *mockStore) UpdateDeploymentConfig(_ context.Context, id string, partial deployment.PartialConfig) (*deployment.Resource, error) {
	for i := range m.deployments {
		if m.deployments[i].Id == id {
			merged, err := configdiff.MergePartial(m.deployments[i].Config, partial)
			if err != nil {
				return nil, err
			}
			m.deployments[i].Config = merged
			m.deployments[i].Version++
			d := m.deployments[i]
			return &d, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockStore) UpdateDeploymentInfo(_ context.Context, id string, info deployment.Info) error {
	for i := range m.deployments {
		if m.deployments[i].Id == id {
			m.deployments[i].Info = info
			return nil
		}
	}
	return domain.ErrNotFound
}
func (m *mockStore) DeleteDeployment(_ context.Context, id string) error {
	for i := range m.deployments {
		if m.deployments[i].Id == id {
			m.deployments = append(m.deployments[:i], m.deployments[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) ListBuilds(context.Context) ([]build.Resource, error) { return nil, nil }
func (m *mockStore) GetBuild(context.Context, string) (*build.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) GetBuildByName(context.Context, string) (*build.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) CreateBuild(_ context.Context, name string, cfg build.Config) (*build.Resource, error) {
	return &build.Resource{Id: name, Name: name, Config: cfg, Version: 1}, nil
}
func (m *mockStore) UpdateBuildConfig(context.Context, string, build.PartialConfig) (*build.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) UpdateBuildInfo(context.Context, string, build.Info) error { return nil }
func (m *mockStore) DeleteBuild(context.Context, string) error                { return nil }

func (m *mockStore) ListRepos(context.Context) ([]repo.Resource, error) { return nil, nil }
func (m *mockStore) GetRepo(context.Context, string) (*repo.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) GetRepoByName(context.Context, string) (*repo.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) CreateRepo(_ context.Context, name string, cfg repo.Config) (*repo.Resource, error) {
	return &repo.Resource{Id: name, Name: name, Config: cfg, Version: 1}, nil
}
func (m *mockStore) UpdateRepoConfig(context.Context, string, repo.PartialConfig) (*repo.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) UpdateRepoInfo(context.Context, string, repo.Info) error { return nil }
func (m *mockStore) DeleteRepo(context.Context, string) error               { return nil }

func (m *mockStore) ListStacks(context.Context) ([]stack.Resource, error) {
	return append([]stack.Resource(nil), m.stacks...), nil
}
func (m *mockStore) GetStack(_ context.Context, id string) (*stack.Resource, error) {
	for i := range m.stacks {
		if m.stacks[i].Id == id {
			s := m.stacks[i]
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockStore) GetStackByName(_ context.Context, name string) (*stack.Resource, error) {
	for i := range m.stacks {
		if m.stacks[i].Name == name {
			s := m.stacks[i]
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockStore) CreateStack(_ context.Context, name string, cfg stack.Config) (*stack.Resource, error) {
	for _, s := range m.stacks {
		if s.Name == name {
			return nil, domain.ErrConflict
		}
	}
	s := stack.Resource{Id: m.genID(), Name: name, Config: cfg, Version: 1}
	m.stacks = append(m.stacks, s)
	return &s, nil
}
func (m *mockStore) UpdateStackConfig(_ context.Context, id string, partial stack.PartialConfig) (*stack.Resource, error) {
	for i := range m.stacks {
		if m.stacks[i].Id == id {
			merged, err := configdiff.MergePartial(m.stacks[i].Config, partial)
			if err != nil {
				return nil, err
			}
			m.stacks[i].Config = merged
			m.stacks[i].Version++
			s := m.stacks[i]
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockStore) UpdateStackInfo(_ context.Context, id string, info stack.Info) error {
	for i := range m.stacks {
		if m.stacks[i].Id == id {
			m.stacks[i].Info = info
			return nil
		}
	}
	return domain.ErrNotFound
}
func (m *mockStore) DeleteStack(_ context.Context, id string) error {
	for i := range m.stacks {
		if m.stacks[i].Id == id {
			m.stacks = append(m.stacks[:i], m.stacks[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) ListProcedures(context.Context) ([]procedure.Resource, error) { return nil, nil }
func (m *mockStore) GetProcedure(context.Context, string) (*procedure.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) GetProcedureByName(context.Context, string) (*procedure.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) CreateProcedure(_ context.Context, name string, cfg procedure.Config) (*procedure.Resource, error) {
	return &procedure.Resource{Id: name, Name: name, Config: cfg, Version: 1}, nil
}
func (m *mockStore) UpdateProcedureConfig(context.Context, string, procedure.PartialConfig) (*procedure.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) UpdateProcedureInfo(context.Context, string, procedure.Info) error { return nil }
func (m *mockStore) DeleteProcedure(context.Context, string) error                     { return nil }

func (m *mockStore) ListActions(context.Context) ([]action.Resource, error) { return nil, nil }
func (m *mockStore) GetAction(context.Context, string) (*action.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) GetActionByName(context.Context, string) (*action.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) CreateAction(_ context.Context, name string, cfg action.Config) (*action.Resource, error) {
	return &action.Resource{Id: name, Name: name, Config: cfg, Version: 1}, nil
}
func (m *mockStore) UpdateActionConfig(context.Context, string, action.PartialConfig) (*action.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) UpdateActionInfo(context.Context, string, action.Info) error { return nil }
func (m *mockStore) DeleteAction(context.Context, string) error                 { return nil }

func (m *mockStore) ListAlerters(context.Context) ([]alerter.Resource, error) { return nil, nil }
func (m *mockStore) GetAlerter(context.Context, string) (*alerter.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) GetAlerterByName(context.Context, string) (*alerter.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) CreateAlerter(_ context.Context, name string, cfg alerter.Config) (*alerter.Resource, error) {
	return &alerter.Resource{Id: name, Name: name, Config: cfg, Version: 1}, nil
}
func (m *mockStore) UpdateAlerterConfig(context.Context, string, alerter.PartialConfig) (*alerter.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) UpdateAlerterInfo(context.Context, string, alerter.Info) error { return nil }
func (m *mockStore) DeleteAlerter(context.Context, string) error                  { return nil }

func (m *mockStore) ListBuilders(context.Context) ([]builder.Resource, error) { return nil, nil }
func (m *mockStore) GetBuilder(context.Context, string) (*builder.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) GetBuilderByName(context.Context, string) (*builder.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) CreateBuilder(_ context.Context, name string, cfg builder.Config) (*builder.Resource, error) {
	return &builder.Resource{Id: name, Name: name, Config: cfg, Version: 1}, nil
}
func (m *mockStore) UpdateBuilderConfig(context.Context, string, builder.PartialConfig) (*builder.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) DeleteBuilder(context.Context, string) error { return nil }

func (m *mockStore) ListServerTemplates(context.Context) ([]servertemplate.Resource, error) {
	return nil, nil
}
func (m *mockStore) GetServerTemplate(context.Context, string) (*servertemplate.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) GetServerTemplateByName(context.Context, string) (*servertemplate.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) CreateServerTemplate(_ context.Context, name string, cfg servertemplate.Config) (*servertemplate.Resource, error) {
	return &servertemplate.Resource{Id: name, Name: name, Config: cfg, Version: 1}, nil
}
func (m *mockStore) UpdateServerTemplateConfig(context.Context, string, servertemplate.PartialConfig) (*servertemplate.Resource, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) DeleteServerTemplate(context.Context, string) error { return nil }

func (m *mockStore) ListResourceSyncs(context.Context) ([]resourcesync.Resource, error) {
	return append([]resourcesync.Resource(nil), m.resourceSyncs...), nil
}
func (m *mockStore) GetResourceSync(_ context.Context, id string) (*resourcesync.Resource, error) {
	for i := range m.resourceSyncs {
		if m.resourceSyncs[i].Id == id {
			s := m.resourceSyncs[i]
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockStore) GetResourceSyncByName(_ context.Context, name string) (*resourcesync.Resource, error) {
	for i := range m.resourceSyncs {
		if m.resourceSyncs[i].Name == name {
			s := m.resourceSyncs[i]
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockStore) CreateResourceSync(_ context.Context, name string, cfg resourcesync.Config) (*resourcesync.Resource, error) {
	s := resourcesync.Resource{Id: m.genID(), Name: name, Config: cfg, Version: 1}
	m.resourceSyncs = append(m.resourceSyncs, s)
	return &s, nil
}
func (m *mockStore) UpdateResourceSyncConfig(_ context.Context, id string, partial resourcesync.PartialConfig) (*resourcesync.Resource, error) {
	for i := range m.resourceSyncs {
		if m.resourceSyncs[i].Id == id {
			merged, err := configdiff.MergePartial(m.resourceSyncs[i].Config, partial)
			if err != nil {
				return nil, err
			}
			m.resourceSyncs[i].Config = merged
			s := m.resourceSyncs[i]
			return &s, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockStore) UpdateResourceSyncInfo(_ context.Context, id string, info resourcesync.Info) error {
	for i := range m.resourceSyncs {
		if m.resourceSyncs[i].Id == id {
			m.resourceSyncs[i].Info = info
			return nil
		}
	}
	return domain.ErrNotFound
}
func (m *mockStore) DeleteResourceSync(_ context.Context, id string) error {
	for i := range m.resourceSyncs {
		if m.resourceSyncs[i].Id == id {
			m.resourceSyncs = append(m.resourceSyncs[:i], m.resourceSyncs[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- Updates, Alerts ---

func (m *mockStore) CreateUpdate(_ context.Context, u *update.Update) error {
	m.updates = append(m.updates, *u)
	return nil
}
func (m *mockStore) AppendUpdateLog(_ context.Context, id string, l update.Log) error {
	for i := range m.updates {
		if m.updates[i].Id == id {
			m.updates[i].Logs = append(m.updates[i].Logs, l)
			return nil
		}
	}
	return domain.ErrNotFound
}
func (m *mockStore) FinalizeUpdate(_ context.Context, id string, status update.Status, endTs int64) error {
	for i := range m.updates {
		if m.updates[i].Id == id {
			m.updates[i].Status = status
			m.updates[i].EndTs = endTs
			success := true
			for _, l := range m.updates[i].Logs {
				success = success && l.Success
			}
			m.updates[i].Success = success
			return nil
		}
	}
	return domain.ErrNotFound
}
func (m *mockStore) GetUpdate(_ context.Context, id string) (*update.Update, error) {
	for i := range m.updates {
		if m.updates[i].Id == id {
			u := m.updates[i]
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockStore) ListUpdates(_ context.Context, target resource.TargetRef, limit int) ([]update.Update, error) {
	var out []update.Update
	for _, u := range m.updates {
		if u.Target == target || target == (resource.TargetRef{}) {
			out = append(out, u)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *mockStore) CreateAlert(_ context.Context, a *alert.Alert) error {
	m.alerts = append(m.alerts, *a)
	return nil
}
func (m *mockStore) UpdateAlertLevel(_ context.Context, id string, level alert.Level, data alert.Data) error {
	for i := range m.alerts {
		if m.alerts[i].Id == id {
			m.alerts[i].Level = level
			m.alerts[i].Data = data
			return nil
		}
	}
	return domain.ErrNotFound
}
func (m *mockStore) ResolveAlert(_ context.Context, id string, resolvedTs int64) error {
	for i := range m.alerts {
		if m.alerts[i].Id == id {
			m.alerts[i].Resolved = true
			m.alerts[i].ResolvedTs = resolvedTs
			return nil
		}
	}
	return domain.ErrNotFound
}
func (m *mockStore) ListOpenAlerts(context.Context) ([]alert.Alert, error) {
	var out []alert.Alert
	for _, a := range m.alerts {
		if !a.Resolved {
			out = append(out, a)
		}
	}
	return out, nil
}
func (m *mockStore) FindOpenAlert(_ context.Context, target resource.TargetRef, variant alert.Variant) (*alert.Alert, error) {
	for i := range m.alerts {
		if !m.alerts[i].Resolved && m.alerts[i].Target == target && m.alerts[i].Data.Variant == variant {
			a := m.alerts[i]
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}
func (m *mockStore) ListAlerts(_ context.Context, target *resource.TargetRef, limit int) ([]alert.Alert, error) {
	var out []alert.Alert
	for _, a := range m.alerts {
		if target == nil || a.Target == *target {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) ListTags(context.Context) ([]tag.Tag, error) {
	return append([]tag.Tag(nil), m.tags...), nil
}
func (m *mockStore) CreateTag(_ context.Context, name string) (*tag.Tag, error) {
	for _, t := range m.tags {
		if t.Name == name {
			return nil, domain.ErrConflict
		}
	}
	t := tag.Tag{Id: m.genID(), Name: name}
	m.tags = append(m.tags, t)
	return &t, nil
}
func (m *mockStore) DeleteTag(_ context.Context, id string) error {
	for i := range m.tags {
		if m.tags[i].Id == id {
			m.tags = append(m.tags[:i], m.tags[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}
func (m *mockStore) SetResourceTags(_ context.Context, target resource.TargetRef, tagIDs []string) error {
	if m.resourceTags == nil {
		m.resourceTags = make(map[resource.TargetRef][]string)
	}
	m.resourceTags[target] = tagIDs
	return nil
}
func (m *mockStore) ListResourceTags(_ context.Context, target resource.TargetRef) ([]tag.Tag, error) {
	var out []tag.Tag
	for _, id := range m.resourceTags[target] {
		for _, t := range m.tags {
			if t.Id == id {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

func (m *mockStore) SetResourceDescription(_ context.Context, target resource.TargetRef, description string) error {
	switch target.Kind {
	case resource.KindServer:
		for i := range m.servers {
			if m.servers[i].Id == target.Id {
				m.servers[i].Description = description
				return nil
			}
		}
	case resource.KindDeployment:
		for i := range m.deployments {
			if m.deployments[i].Id == target.Id {
				m.deployments[i].Description = description
				return nil
			}
		}
	case resource.KindStack:
		for i := range m.stacks {
			if m.stacks[i].Id == target.Id {
				m.stacks[i].Description = description
				return nil
			}
		}
	case resource.KindResourceSync:
		for i := range m.resourceSyncs {
			if m.resourceSyncs[i].Id == target.Id {
				m.resourceSyncs[i].Description = description
				return nil
			}
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) ListVariables(context.Context) ([]variable.Variable, error) { return nil, nil }
func (m *mockStore) GetVariable(context.Context, string) (*variable.Variable, error) {
	return nil, domain.ErrNotFound
}
func (m *mockStore) UpsertVariable(context.Context, variable.Variable) error { return nil }
func (m *mockStore) DeleteVariable(context.Context, string) error           { return nil }

func (m *mockStore) ListGrants(_ context.Context, kind permission.PrincipalKind, principalID string) ([]permission.Grant, error) {
	var out []permission.Grant
	for _, g := range m.grants {
		if g.Principal == kind && g.UserOrID == principalID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockStore) ListGrantsForTarget(_ context.Context, target resource.TargetRef) ([]permission.Grant, error) {
	var out []permission.Grant
	for _, g := range m.grants {
		if g.Target == target {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockStore) UpsertGrant(_ context.Context, g permission.Grant) error {
	for i := range m.grants {
		if m.grants[i].Principal == g.Principal && m.grants[i].UserOrID == g.UserOrID && m.grants[i].Target == g.Target {
			m.grants[i] = g
			return nil
		}
	}
	m.grants = append(m.grants, g)
	return nil
}

func (m *mockStore) UpsertKindAllGrant(_ context.Context, g permission.KindAllGrant) error {
	for i := range m.kindAllGrants {
		if m.kindAllGrants[i].UserId == g.UserId && m.kindAllGrants[i].Kind == g.Kind {
			m.kindAllGrants[i] = g
			return nil
		}
	}
	m.kindAllGrants = append(m.kindAllGrants, g)
	return nil
}

func (m *mockStore) ListKindAllGrants(_ context.Context, userID string) ([]permission.KindAllGrant, error) {
	var out []permission.KindAllGrant
	for _, g := range m.kindAllGrants {
		if g.UserId == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *mockStore) ListGroups(_ context.Context) ([]user.Group, error) { return m.groups, nil }

func (m *mockStore) GetGroup(_ context.Context, id string) (*user.Group, error) {
	for i := range m.groups {
		if m.groups[i].ID == id {
			g := m.groups[i]
			return &g, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) CreateGroup(_ context.Context, name string) (*user.Group, error) {
	g := user.Group{ID: name, Name: name}
	m.groups = append(m.groups, g)
	return &g, nil
}

func (m *mockStore) AddGroupMember(_ context.Context, groupID, userID string) error {
	for i := range m.groups {
		if m.groups[i].ID == groupID {
			m.groups[i].Users = append(m.groups[i].Users, userID)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) RemoveGroupMember(_ context.Context, groupID, userID string) error {
	for i := range m.groups {
		if m.groups[i].ID != groupID {
			continue
		}
		members := m.groups[i].Users[:0]
		for _, u := range m.groups[i].Users {
			if u != userID {
				members = append(members, u)
			}
		}
		m.groups[i].Users = members
		return nil
	}
	return domain.ErrNotFound
}

func (m *mockStore) DeleteGroup(_ context.Context, id string) error {
	for i := range m.groups {
		if m.groups[i].ID == id {
			m.groups = append(m.groups[:i], m.groups[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}
