// Package memstore implements database.Store entirely in memory. It backs
// HTTP- and integration-level tests that need a real Store without a
// PostgreSQL instance, and mirrors the generic list/get/create/update/delete
// shape internal/adapter/postgres/resources.go uses for the eleven resource
// kinds, applying configdiff.MergePartial the same way on UpdateXConfig.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/komodo-run/core/internal/domain"
	"github.com/komodo-run/core/internal/domain/action"
	"github.com/komodo-run/core/internal/domain/alert"
	"github.com/komodo-run/core/internal/domain/alerter"
	"github.com/komodo-run/core/internal/domain/build"
	"github.com/komodo-run/core/internal/domain/builder"
	"github.com/komodo-run/core/internal/domain/configdiff"
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

// Ensure Store implements database.Store at compile time.
var _ database.Store = (*Store)(nil)

// kindTable is a mutex-guarded map of one resource kind, generic over its
// Config/Info pair so every kind shares the same list/get/create/delete
// logic instead of dead-reckoning a bespoke slice per kind.
type kindTable[C any, I any] struct {
	mu   sync.RWMutex
	byID map[string]resource.Resource[C, I]
}

func newKindTable[C any, I any]() *kindTable[C, I] {
	return &kindTable[C, I]{byID: make(map[string]resource.Resource[C, I])}
}

func (t *kindTable[C, I]) list() []resource.Resource[C, I] {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]resource.Resource[C, I], 0, len(t.byID))
	for _, r := range t.byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *kindTable[C, I]) get(id string) (*resource.Resource[C, I], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (t *kindTable[C, I]) getByName(name string) (*resource.Resource[C, I], error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, r := range t.byID {
		if r.Name == name {
			rr := r
			return &rr, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (t *kindTable[C, I]) create(name string, cfg C) (*resource.Resource[C, I], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.byID {
		if existing.Name == name {
			return nil, domain.ErrConflict
		}
	}
	r := resource.Resource[C, I]{
		Id:        uuid.NewString(),
		Name:      name,
		Config:    cfg,
		UpdatedAt: time.Now().UnixMilli(),
		Version:   1,
	}
	t.byID[r.Id] = r
	return &r, nil
}

func (t *kindTable[C, I]) updateInfo(id string, info I) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Info = info
	t.byID[id] = r
	return nil
}

func (t *kindTable[C, I]) setDescription(id, description string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Description = description
	r.UpdatedAt = time.Now().UnixMilli()
	t.byID[id] = r
	return nil
}

func (t *kindTable[C, I]) delete(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[id]; !ok {
		return domain.ErrNotFound
	}
	delete(t.byID, id)
	return nil
}

// updateConfig merges partial onto the current Config via
// configdiff.MergePartial. It is a package-level function, not a method,
// because Go methods cannot introduce a type parameter beyond the
// receiver's own (P is independent of kindTable's C, I).
func updateConfig[C any, I any, P any](t *kindTable[C, I], id string, partial P) (*resource.Resource[C, I], error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	merged, err := configdiff.MergePartial(r.Config, partial)
	if err != nil {
		return nil, err
	}
	r.Config = merged
	r.Version++
	r.UpdatedAt = time.Now().UnixMilli()
	t.byID[id] = r
	return &r, nil
}

// Store is an in-memory database.Store. Zero value is not usable; build
// one with New.
type Store struct {
	servers         *kindTable[server.Config, server.Info]
	deployments     *kindTable[deployment.Config, deployment.Info]
	builds          *kindTable[build.Config, build.Info]
	repos           *kindTable[repo.Config, repo.Info]
	stacks          *kindTable[stack.Config, stack.Info]
	procedures      *kindTable[procedure.Config, procedure.Info]
	actions         *kindTable[action.Config, action.Info]
	alerters        *kindTable[alerter.Config, alerter.Info]
	builders        *kindTable[builder.Config, builder.Info]
	serverTemplates *kindTable[servertemplate.Config, servertemplate.Info]
	resourceSyncs   *kindTable[resourcesync.Config, resourcesync.Info]

	mu            sync.Mutex
	serverStats   []server.StatsSnapshot
	updates       []update.Update
	alerts        []alert.Alert
	tags          []tag.Tag
	resourceTags  map[resource.TargetRef][]string
	variables     []variable.Variable
	grants        []permission.Grant
	kindAllGrants []permission.KindAllGrant
	groups        []user.Group
	users         []user.User
	refreshTokens []user.RefreshToken
	apiKeys       []user.APIKey
	revoked       map[string]time.Time
}

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{
		servers:         newKindTable[server.Config, server.Info](),
		deployments:     newKindTable[deployment.Config, deployment.Info](),
		builds:          newKindTable[build.Config, build.Info](),
		repos:           newKindTable[repo.Config, repo.Info](),
		stacks:          newKindTable[stack.Config, stack.Info](),
		procedures:      newKindTable[procedure.Config, procedure.Info](),
		actions:         newKindTable[action.Config, action.Info](),
		alerters:        newKindTable[alerter.Config, alerter.Info](),
		builders:        newKindTable[builder.Config, builder.Info](),
		serverTemplates: newKindTable[servertemplate.Config, servertemplate.Info](),
		resourceSyncs:   newKindTable[resourcesync.Config, resourcesync.Info](),
		resourceTags:    make(map[resource.TargetRef][]string),
		revoked:         make(map[string]time.Time),
	}
}

// --- Servers ---

func (s *Store) ListServers(context.Context) ([]server.Resource, error) { return s.servers.list(), nil }
func (s *Store) GetServer(_ context.Context, id string) (*server.Resource, error) {
	return s.servers.get(id)
}
func (s *Store) GetServerByName(_ context.Context, name string) (*server.Resource, error) {
	return s.servers.getByName(name)
}
func (s *Store) CreateServer(_ context.Context, name string, cfg server.Config) (*server.Resource, error) {
	return s.servers.create(name, cfg)
}
func (s *Store) UpdateServerConfig(_ context.Context, id string, partial server.PartialConfig) (*server.Resource, error) {
	return updateConfig(s.servers, id, partial)
}
func (s *Store) UpdateServerInfo(_ context.Context, id string, info server.Info) error {
	return s.servers.updateInfo(id, info)
}
func (s *Store) DeleteServer(_ context.Context, id string) error { return s.servers.delete(id) }

func (s *Store) InsertServerStats(_ context.Context, snap server.StatsSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverStats = append(s.serverStats, snap)
	return nil
}

func (s *Store) ListServerStats(_ context.Context, serverID string, limit int) ([]server.StatsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []server.StatsSnapshot
	for i := len(s.serverStats) - 1; i >= 0; i-- {
		if s.serverStats[i].ServerId != serverID {
			continue
		}
		out = append(out, s.serverStats[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) PruneServerStats(_ context.Context, olderThanTs int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.serverStats[:0]
	var pruned int64
	for _, snap := range s.serverStats {
		if snap.Ts < olderThanTs {
			pruned++
			continue
		}
		kept = append(kept, snap)
	}
	s.serverStats = kept
	return pruned, nil
}

// --- Deployments ---

func (s *Store) ListDeployments(context.Context) ([]deployment.Resource, error) {
	return s.deployments.list(), nil
}
func (s *Store) GetDeployment(_ context.Context, id string) (*deployment.Resource, error) {
	return s.deployments.get(id)
}
func (s *Store) GetDeploymentByName(_ context.Context, name string) (*deployment.Resource, error) {
	return s.deployments.getByName(name)
}
func (s *Store) ListDeploymentsByServer(_ context.Context, serverID string) ([]deployment.Resource, error) {
	var out []deployment.Resource
	for _, d := range s.deployments.list() {
		if d.Config.ServerId == serverID {
			out = append(out, d)
		}
	}
	return out, nil
}
func (s *Store) CreateDeployment(_ context.Context, name string, cfg deployment.Config) (*deployment.Resource, error) {
	return s.deployments.create(name, cfg)
}
func (s *Store) UpdateDeploymentConfig(_ context.Context, id string, partial deployment.PartialConfig) (*deployment.Resource, error) {
	return updateConfig(s.deployments, id, partial)
}
func (s *Store) UpdateDeploymentInfo(_ context.Context, id string, info deployment.Info) error {
	return s.deployments.updateInfo(id, info)
}
func (s *Store) DeleteDeployment(_ context.Context, id string) error { return s.deployments.delete(id) }

// --- Builds ---

func (s *Store) ListBuilds(context.Context) ([]build.Resource, error) { return s.builds.list(), nil }
func (s *Store) GetBuild(_ context.Context, id string) (*build.Resource, error) {
	return s.builds.get(id)
}
func (s *Store) GetBuildByName(_ context.Context, name string) (*build.Resource, error) {
	return s.builds.getByName(name)
}
func (s *Store) CreateBuild(_ context.Context, name string, cfg build.Config) (*build.Resource, error) {
	return s.builds.create(name, cfg)
}
func (s *Store) UpdateBuildConfig(_ context.Context, id string, partial build.PartialConfig) (*build.Resource, error) {
	return updateConfig(s.builds, id, partial)
}
func (s *Store) UpdateBuildInfo(_ context.Context, id string, info build.Info) error {
	return s.builds.updateInfo(id, info)
}
func (s *Store) DeleteBuild(_ context.Context, id string) error { return s.builds.delete(id) }

// --- Repos ---

func (s *Store) ListRepos(context.Context) ([]repo.Resource, error) { return s.repos.list(), nil }
func (s *Store) GetRepo(_ context.Context, id string) (*repo.Resource, error) {
	return s.repos.get(id)
}
func (s *Store) GetRepoByName(_ context.Context, name string) (*repo.Resource, error) {
	return s.repos.getByName(name)
}
func (s *Store) CreateRepo(_ context.Context, name string, cfg repo.Config) (*repo.Resource, error) {
	return s.repos.create(name, cfg)
}
func (s *Store) UpdateRepoConfig(_ context.Context, id string, partial repo.PartialConfig) (*repo.Resource, error) {
	return updateConfig(s.repos, id, partial)
}
func (s *Store) UpdateRepoInfo(_ context.Context, id string, info repo.Info) error {
	return s.repos.updateInfo(id, info)
}
func (s *Store) DeleteRepo(_ context.Context, id string) error { return s.repos.delete(id) }

// --- Stacks ---

func (s *Store) ListStacks(context.Context) ([]stack.Resource, error) { return s.stacks.list(), nil }
func (s *Store) GetStack(_ context.Context, id string) (*stack.Resource, error) {
	return s.stacks.get(id)
}
func (s *Store) GetStackByName(_ context.Context, name string) (*stack.Resource, error) {
	return s.stacks.getByName(name)
}
func (s *Store) CreateStack(_ context.Context, name string, cfg stack.Config) (*stack.Resource, error) {
	return s.stacks.create(name, cfg)
}
func (s *Store) UpdateStackConfig(_ context.Context, id string, partial stack.PartialConfig) (*stack.Resource, error) {
	return updateConfig(s.stacks, id, partial)
}
func (s *Store) UpdateStackInfo(_ context.Context, id string, info stack.Info) error {
	return s.stacks.updateInfo(id, info)
}
func (s *Store) DeleteStack(_ context.Context, id string) error { return s.stacks.delete(id) }

// --- Procedures ---

func (s *Store) ListProcedures(context.Context) ([]procedure.Resource, error) {
	return s.procedures.list(), nil
}
func (s *Store) GetProcedure(_ context.Context, id string) (*procedure.Resource, error) {
	return s.procedures.get(id)
}
func (s *Store) GetProcedureByName(_ context.Context, name string) (*procedure.Resource, error) {
	return s.procedures.getByName(name)
}
func (s *Store) CreateProcedure(_ context.Context, name string, cfg procedure.Config) (*procedure.Resource, error) {
	return s.procedures.create(name, cfg)
}
func (s *Store) UpdateProcedureConfig(_ context.Context, id string, partial procedure.PartialConfig) (*procedure.Resource, error) {
	return updateConfig(s.procedures, id, partial)
}
func (s *Store) UpdateProcedureInfo(_ context.Context, id string, info procedure.Info) error {
	return s.procedures.updateInfo(id, info)
}
func (s *Store) DeleteProcedure(_ context.Context, id string) error { return s.procedures.delete(id) }

// --- Actions ---

func (s *Store) ListActions(context.Context) ([]action.Resource, error) { return s.actions.list(), nil }
func (s *Store) GetAction(_ context.Context, id string) (*action.Resource, error) {
	return s.actions.get(id)
}
func (s *Store) GetActionByName(_ context.Context, name string) (*action.Resource, error) {
	return s.actions.getByName(name)
}
func (s *Store) CreateAction(_ context.Context, name string, cfg action.Config) (*action.Resource, error) {
	return s.actions.create(name, cfg)
}
func (s *Store) UpdateActionConfig(_ context.Context, id string, partial action.PartialConfig) (*action.Resource, error) {
	return updateConfig(s.actions, id, partial)
}
func (s *Store) UpdateActionInfo(_ context.Context, id string, info action.Info) error {
	return s.actions.updateInfo(id, info)
}
func (s *Store) DeleteAction(_ context.Context, id string) error { return s.actions.delete(id) }

// --- Alerters ---

func (s *Store) ListAlerters(context.Context) ([]alerter.Resource, error) {
	return s.alerters.list(), nil
}
func (s *Store) GetAlerter(_ context.Context, id string) (*alerter.Resource, error) {
	return s.alerters.get(id)
}
func (s *Store) GetAlerterByName(_ context.Context, name string) (*alerter.Resource, error) {
	return s.alerters.getByName(name)
}
func (s *Store) CreateAlerter(_ context.Context, name string, cfg alerter.Config) (*alerter.Resource, error) {
	return s.alerters.create(name, cfg)
}
func (s *Store) UpdateAlerterConfig(_ context.Context, id string, partial alerter.PartialConfig) (*alerter.Resource, error) {
	return updateConfig(s.alerters, id, partial)
}
func (s *Store) UpdateAlerterInfo(_ context.Context, id string, info alerter.Info) error {
	return s.alerters.updateInfo(id, info)
}
func (s *Store) DeleteAlerter(_ context.Context, id string) error { return s.alerters.delete(id) }

// --- Builders ---

func (s *Store) ListBuilders(context.Context) ([]builder.Resource, error) {
	return s.builders.list(), nil
}
func (s *Store) GetBuilder(_ context.Context, id string) (*builder.Resource, error) {
	return s.builders.get(id)
}
func (s *Store) GetBuilderByName(_ context.Context, name string) (*builder.Resource, error) {
	return s.builders.getByName(name)
}
func (s *Store) CreateBuilder(_ context.Context, name string, cfg builder.Config) (*builder.Resource, error) {
	return s.builders.create(name, cfg)
}
func (s *Store) UpdateBuilderConfig(_ context.Context, id string, partial builder.PartialConfig) (*builder.Resource, error) {
	return updateConfig(s.builders, id, partial)
}
func (s *Store) DeleteBuilder(_ context.Context, id string) error { return s.builders.delete(id) }

// --- Server Templates ---

func (s *Store) ListServerTemplates(context.Context) ([]servertemplate.Resource, error) {
	return s.serverTemplates.list(), nil
}
func (s *Store) GetServerTemplate(_ context.Context, id string) (*servertemplate.Resource, error) {
	return s.serverTemplates.get(id)
}
func (s *Store) GetServerTemplateByName(_ context.Context, name string) (*servertemplate.Resource, error) {
	return s.serverTemplates.getByName(name)
}
func (s *Store) CreateServerTemplate(_ context.Context, name string, cfg servertemplate.Config) (*servertemplate.Resource, error) {
	return s.serverTemplates.create(name, cfg)
}
func (s *Store) UpdateServerTemplateConfig(_ context.Context, id string, partial servertemplate.PartialConfig) (*servertemplate.Resource, error) {
	return updateConfig(s.serverTemplates, id, partial)
}
func (s *Store) DeleteServerTemplate(_ context.Context, id string) error {
	return s.serverTemplates.delete(id)
}

// --- Resource Syncs ---

func (s *Store) ListResourceSyncs(context.Context) ([]resourcesync.Resource, error) {
	return s.resourceSyncs.list(), nil
}
func (s *Store) GetResourceSync(_ context.Context, id string) (*resourcesync.Resource, error) {
	return s.resourceSyncs.get(id)
}
func (s *Store) GetResourceSyncByName(_ context.Context, name string) (*resourcesync.Resource, error) {
	return s.resourceSyncs.getByName(name)
}
func (s *Store) CreateResourceSync(_ context.Context, name string, cfg resourcesync.Config) (*resourcesync.Resource, error) {
	return s.resourceSyncs.create(name, cfg)
}
func (s *Store) UpdateResourceSyncConfig(_ context.Context, id string, partial resourcesync.PartialConfig) (*resourcesync.Resource, error) {
	return updateConfig(s.resourceSyncs, id, partial)
}
func (s *Store) UpdateResourceSyncInfo(_ context.Context, id string, info resourcesync.Info) error {
	return s.resourceSyncs.updateInfo(id, info)
}
func (s *Store) DeleteResourceSync(_ context.Context, id string) error {
	return s.resourceSyncs.delete(id)
}

// --- Updates ---

func (s *Store) CreateUpdate(_ context.Context, u *update.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.Id == "" {
		u.Id = uuid.NewString()
	}
	s.updates = append(s.updates, *u)
	return nil
}

func (s *Store) AppendUpdateLog(_ context.Context, id string, l update.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.updates {
		if s.updates[i].Id == id {
			s.updates[i].Logs = append(s.updates[i].Logs, l)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *Store) FinalizeUpdate(_ context.Context, id string, status update.Status, endTs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.updates {
		if s.updates[i].Id == id {
			s.updates[i].Status = status
			s.updates[i].EndTs = endTs
			success := true
			for _, l := range s.updates[i].Logs {
				success = success && l.Success
			}
			s.updates[i].Success = success
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *Store) GetUpdate(_ context.Context, id string) (*update.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.updates {
		if s.updates[i].Id == id {
			u := s.updates[i]
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListUpdates(_ context.Context, target resource.TargetRef, limit int) ([]update.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []update.Update
	for i := len(s.updates) - 1; i >= 0; i-- {
		u := s.updates[i]
		if target.Id != "" && u.Target != target {
			continue
		}
		out = append(out, u)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- Alerts ---

func (s *Store) CreateAlert(_ context.Context, a *alert.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Id == "" {
		a.Id = uuid.NewString()
	}
	s.alerts = append(s.alerts, *a)
	return nil
}

func (s *Store) UpdateAlertLevel(_ context.Context, id string, level alert.Level, data alert.Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].Id == id {
			s.alerts[i].Level = level
			s.alerts[i].Data = data
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *Store) ResolveAlert(_ context.Context, id string, resolvedTs int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].Id == id {
			s.alerts[i].Resolved = true
			s.alerts[i].ResolvedTs = resolvedTs
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *Store) ListOpenAlerts(_ context.Context) ([]alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []alert.Alert
	for _, a := range s.alerts {
		if !a.Resolved {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Store) FindOpenAlert(_ context.Context, target resource.TargetRef, variant alert.Variant) (*alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if !s.alerts[i].Resolved && s.alerts[i].Target == target && s.alerts[i].Data.Variant == variant {
			a := s.alerts[i]
			return &a, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListAlerts(_ context.Context, target *resource.TargetRef, limit int) ([]alert.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []alert.Alert
	for i := len(s.alerts) - 1; i >= 0; i-- {
		a := s.alerts[i]
		if target != nil && a.Target != *target {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// --- Tags ---

func (s *Store) ListTags(context.Context) ([]tag.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]tag.Tag(nil), s.tags...), nil
}

func (s *Store) CreateTag(_ context.Context, name string) (*tag.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := tag.Tag{Id: uuid.NewString(), Name: name}
	s.tags = append(s.tags, t)
	return &t, nil
}

func (s *Store) DeleteTag(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tags {
		if s.tags[i].Id == id {
			s.tags = append(s.tags[:i], s.tags[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *Store) SetResourceDescription(_ context.Context, target resource.TargetRef, description string) error {
	switch target.Kind {
	case resource.KindServer:
		return s.servers.setDescription(target.Id, description)
	case resource.KindDeployment:
		return s.deployments.setDescription(target.Id, description)
	case resource.KindBuild:
		return s.builds.setDescription(target.Id, description)
	case resource.KindRepo:
		return s.repos.setDescription(target.Id, description)
	case resource.KindStack:
		return s.stacks.setDescription(target.Id, description)
	case resource.KindProcedure:
		return s.procedures.setDescription(target.Id, description)
	case resource.KindAction:
		return s.actions.setDescription(target.Id, description)
	case resource.KindAlerter:
		return s.alerters.setDescription(target.Id, description)
	case resource.KindBuilder:
		return s.builders.setDescription(target.Id, description)
	case resource.KindServerTemplate:
		return s.serverTemplates.setDescription(target.Id, description)
	case resource.KindResourceSync:
		return s.resourceSyncs.setDescription(target.Id, description)
	default:
		return domain.ErrNotFound
	}
}

func (s *Store) SetResourceTags(_ context.Context, target resource.TargetRef, tagIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resourceTags[target] = tagIDs
	return nil
}

func (s *Store) ListResourceTags(_ context.Context, target resource.TargetRef) ([]tag.Tag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.resourceTags[target]
	var out []tag.Tag
	for _, id := range ids {
		for _, t := range s.tags {
			if t.Id == id {
				out = append(out, t)
			}
		}
	}
	return out, nil
}

// --- Variables ---

func (s *Store) ListVariables(context.Context) ([]variable.Variable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]variable.Variable(nil), s.variables...), nil
}

func (s *Store) GetVariable(_ context.Context, name string) (*variable.Variable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.variables {
		if s.variables[i].Name == name {
			v := s.variables[i]
			return &v, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) UpsertVariable(_ context.Context, v variable.Variable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.variables {
		if s.variables[i].Name == v.Name {
			s.variables[i] = v
			return nil
		}
	}
	s.variables = append(s.variables, v)
	return nil
}

func (s *Store) DeleteVariable(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.variables {
		if s.variables[i].Name == name {
			s.variables = append(s.variables[:i], s.variables[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- Permissions / Grants ---

func (s *Store) ListGrants(_ context.Context, principalKind permission.PrincipalKind, principalID string) ([]permission.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []permission.Grant
	for _, g := range s.grants {
		if g.Principal == principalKind && g.UserOrID == principalID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) ListGrantsForTarget(_ context.Context, target resource.TargetRef) ([]permission.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []permission.Grant
	for _, g := range s.grants {
		if g.Target == target {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *Store) UpsertGrant(_ context.Context, g permission.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.grants {
		if s.grants[i].Principal == g.Principal && s.grants[i].UserOrID == g.UserOrID && s.grants[i].Target == g.Target {
			s.grants[i] = g
			return nil
		}
	}
	s.grants = append(s.grants, g)
	return nil
}

func (s *Store) UpsertKindAllGrant(_ context.Context, g permission.KindAllGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.kindAllGrants {
		if s.kindAllGrants[i].UserId == g.UserId && s.kindAllGrants[i].Kind == g.Kind {
			s.kindAllGrants[i] = g
			return nil
		}
	}
	s.kindAllGrants = append(s.kindAllGrants, g)
	return nil
}

func (s *Store) ListKindAllGrants(_ context.Context, userID string) ([]permission.KindAllGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []permission.KindAllGrant
	for _, g := range s.kindAllGrants {
		if g.UserId == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

// --- User Groups ---

func (s *Store) ListGroups(context.Context) ([]user.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]user.Group(nil), s.groups...), nil
}

func (s *Store) GetGroup(_ context.Context, id string) (*user.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.groups {
		if s.groups[i].ID == id {
			g := s.groups[i]
			return &g, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) CreateGroup(_ context.Context, name string) (*user.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g := user.Group{ID: uuid.NewString(), Name: name}
	s.groups = append(s.groups, g)
	return &g, nil
}

func (s *Store) AddGroupMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.groups {
		if s.groups[i].ID == groupID {
			s.groups[i].Users = append(s.groups[i].Users, userID)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *Store) RemoveGroupMember(_ context.Context, groupID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.groups {
		if s.groups[i].ID != groupID {
			continue
		}
		members := s.groups[i].Users[:0]
		for _, u := range s.groups[i].Users {
			if u != userID {
				members = append(members, u)
			}
		}
		s.groups[i].Users = members
		return nil
	}
	return domain.ErrNotFound
}

func (s *Store) DeleteGroup(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.groups {
		if s.groups[i].ID == id {
			s.groups = append(s.groups[:i], s.groups[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- Users ---

func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return domain.ErrConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	s.users = append(s.users, *u)
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == id {
			u := s.users[i]
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].Username == username {
			u := s.users[i]
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListUsers(context.Context) ([]user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]user.User(nil), s.users...), nil
}

func (s *Store) UpdateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == u.ID {
			s.users[i] = *u
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.users {
		if s.users[i].ID == id {
			s.users = append(s.users[:i], s.users[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- Refresh Tokens ---

func (s *Store) CreateRefreshToken(_ context.Context, rt *user.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens = append(s.refreshTokens, *rt)
	return nil
}

func (s *Store) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*user.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.refreshTokens {
		if s.refreshTokens[i].TokenHash == tokenHash {
			rt := s.refreshTokens[i]
			return &rt, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) DeleteRefreshToken(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.refreshTokens {
		if s.refreshTokens[i].ID == id {
			s.refreshTokens = append(s.refreshTokens[:i], s.refreshTokens[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) DeleteRefreshTokensByUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.refreshTokens[:0]
	for _, rt := range s.refreshTokens {
		if rt.UserID != userID {
			out = append(out, rt)
		}
	}
	s.refreshTokens = out
	return nil
}

func (s *Store) RotateRefreshToken(_ context.Context, oldID string, newRT *user.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.refreshTokens {
		if s.refreshTokens[i].ID == oldID {
			s.refreshTokens = append(s.refreshTokens[:i], s.refreshTokens[i+1:]...)
			break
		}
	}
	s.refreshTokens = append(s.refreshTokens, *newRT)
	return nil
}

// --- API Keys ---

func (s *Store) CreateAPIKey(_ context.Context, key *user.APIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeys = append(s.apiKeys, *key)
	return nil
}

func (s *Store) GetAPIKeyByKey(_ context.Context, key string) (*user.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.apiKeys {
		if s.apiKeys[i].Key == key {
			k := s.apiKeys[i]
			return &k, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListAPIKeysByUser(_ context.Context, userID string) ([]user.APIKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []user.APIKey
	for _, k := range s.apiKeys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *Store) DeleteAPIKey(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.apiKeys {
		if s.apiKeys[i].ID == id {
			s.apiKeys = append(s.apiKeys[:i], s.apiKeys[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- Token Revocation ---

func (s *Store) RevokeToken(_ context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = expiresAt
	return nil
}

func (s *Store) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[jti]
	return ok, nil
}

func (s *Store) PurgeExpiredTokens(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	var purged int64
	for jti, exp := range s.revoked {
		if now.After(exp) {
			delete(s.revoked, jti)
			purged++
		}
	}
	return purged, nil
}
