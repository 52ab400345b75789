package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	cfotel "github.com/komodo-run/core/internal/adapter/otel"
	"github.com/komodo-run/core/internal/config"
	"github.com/komodo-run/core/internal/domain"
	"github.com/komodo-run/core/internal/domain/alert"
	"github.com/komodo-run/core/internal/domain/build"
	"github.com/komodo-run/core/internal/domain/configdiff"
	"github.com/komodo-run/core/internal/domain/deployment"
	"github.com/komodo-run/core/internal/domain/repo"
	"github.com/komodo-run/core/internal/domain/stack"
	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/resourcesync"
	"github.com/komodo-run/core/internal/domain/update"
	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/domain/variable"
	"github.com/komodo-run/core/internal/git"
	"github.com/komodo-run/core/internal/port/database"
	"github.com/komodo-run/core/internal/service/actionstate"
)

// resourceSyncUser is the synthetic, admin-equivalent identity sync-driven
// deploys run as, mirroring the webhook listener's gitWebhookUser. Its
// Username doubles as the audit log's operator string.
var resourceSyncUser = &user.User{
	ID:       "00000000-0000-0000-0000-000000000002",
	Username: update.OperatorResourceSync,
	Admin:    true,
	Enabled:  true,
}

// SyncService implements the declarative resource sync engine:
// fetch a TOML description of desired resources from disk or a git repo,
// diff it against the database by name, cache the resulting plan, and
// optionally apply it — including managed deletes and the post-apply
// deploy wave over `after` dependency layers.
type SyncService struct {
	store     database.Store
	resources *Resources
	perm      *PermissionService
	updates   *UpdateService
	actions   *actionstate.Registry
	gitPool   *git.Pool
	cfg       config.Sync
	log       *slog.Logger

	execute *ExecuteService
	alerts  *AlertService
	metrics *cfotel.Metrics
}

// NewSyncService creates a SyncService.
func NewSyncService(store database.Store, resources *Resources, perm *PermissionService, updates *UpdateService, actions *actionstate.Registry, gitPool *git.Pool, cfg config.Sync, log *slog.Logger) *SyncService {
	if log == nil {
		log = slog.Default()
	}
	return &SyncService{store: store, resources: resources, perm: perm, updates: updates, actions: actions, gitPool: gitPool, cfg: cfg, log: log}
}

// SetExecute wires the ExecuteService the deploy wave dispatches through.
// ExecuteService holds the symmetric SetSyncs hook; cmd/core attaches both
// after constructing the pair, avoiding a constructor cycle.
func (s *SyncService) SetExecute(e *ExecuteService) { s.execute = e }

// SetAlerts wires the AlertService RefreshSync reports the
// ResourceSyncPendingUpdates condition to. Optional: a nil AlertService
// just skips the evaluation.
func (s *SyncService) SetAlerts(a *AlertService) { s.alerts = a }

// SetMetrics attaches the sync-apply counter. Optional.
func (s *SyncService) SetMetrics(metrics *cfotel.Metrics) { s.metrics = metrics }

// RefreshSync re-fetches sync's TOML tree and recomputes its plan without
// applying anything. The plan and derived State are
// cached on the ResourceSync's Info, and the ResourceSyncPendingUpdates
// alert is raised or cleared from the result.
func (s *SyncService) RefreshSync(ctx context.Context, u *user.User, idOrName string) (*resourcesync.Resource, error) {
	sync, err := s.resources.ResourceSyncs.Get(ctx, u, idOrName)
	if err != nil {
		return nil, err
	}
	target := resource.TargetRef{Kind: resource.KindResourceSync, Id: sync.Id}
	if err := s.perm.RequireLevel(ctx, u, target, sync.BasePermission, resource.PermissionExecute); err != nil {
		return nil, err
	}

	res := s.computePlan(ctx, sync, false)
	info := resourcesync.Info{Plan: resourcesync.Plan{Entries: res.entries, CommitHash: res.commitHash, FileErrors: res.fileErrors}}
	switch {
	case len(res.fileErrors) > 0:
		info.State = resourcesync.StateFailed
	case info.Plan.HasUpdates():
		info.State = resourcesync.StatePending
	default:
		info.State = resourcesync.StateOk
	}

	if err := s.store.UpdateResourceSyncInfo(ctx, sync.Id, info); err != nil {
		return nil, fmt.Errorf("update resource sync info: %w", err)
	}
	sync.Info = info
	s.evaluatePendingAlert(ctx, sync, info)

	if len(res.fileErrors) > 0 {
		return sync, fmt.Errorf("refresh sync %s: %s", sync.Name, strings.Join(res.fileErrors, "; "))
	}
	return sync, nil
}

// evaluatePendingAlert raises ResourceSyncPendingUpdates at Warning while
// a non-empty plan is cached and clears it once the plan is empty again
//.
func (s *SyncService) evaluatePendingAlert(ctx context.Context, sync *resourcesync.Resource, info resourcesync.Info) {
	if s.alerts == nil {
		return
	}
	target := resource.TargetRef{Kind: resource.KindResourceSync, Id: sync.Id}
	level := alert.LevelOk
	if info.State == resourcesync.StatePending {
		level = alert.LevelWarning
	}
	data := alert.Data{Message: fmt.Sprintf("resource sync %s has %d pending change(s)", sync.Name, len(info.Plan.Entries))}
	if err := s.alerts.Evaluate(ctx, target, alert.VariantResourceSyncPendingUpdates, level, data); err != nil {
		s.log.Warn("evaluate pending-updates alert", "sync", sync.Name, "error", err)
	}
}

// ExecuteSync recomputes the plan and applies every entry in
// resource.ApplyOrder, then runs the deploy wave over
// the declared deploy=true deployments and stacks (step 7). Reported as an
// Update the same as any other mutating operation, guarded by the
// actionstate Syncing flag so two concurrent applies of the same sync
// can't interleave.
func (s *SyncService) ExecuteSync(ctx context.Context, u *user.User, idOrName string) error {
	sync, err := s.resources.ResourceSyncs.Get(ctx, u, idOrName)
	if err != nil {
		return err
	}
	target := resource.TargetRef{Kind: resource.KindResourceSync, Id: sync.Id}
	if err := s.perm.RequireLevel(ctx, u, target, sync.BasePermission, resource.PermissionExecute); err != nil {
		return err
	}

	release, err := s.actions.Acquire(target, actionstate.Syncing)
	if err != nil {
		return err
	}
	defer release()

	ctx, span := cfotel.StartSyncSpan(ctx, sync.Id, "apply")
	defer span.End()
	if s.metrics != nil {
		s.metrics.SyncApplies.Add(ctx, 1)
	}

	operator := operatorName(u)
	if u == nil {
		operator = update.OperatorResourceSync
	}
	upd, err := s.updates.Start(ctx, update.OpSync, target, operator)
	if err != nil {
		return err
	}

	applyStart := time.Now().UnixMilli()
	res := s.computePlan(ctx, sync, true)
	info := resourcesync.Info{Plan: resourcesync.Plan{Entries: res.entries, CommitHash: res.commitHash, FileErrors: res.fileErrors}, State: resourcesync.StateOk}
	applyLog := update.Log{Stage: "Apply Sync", Success: len(res.fileErrors) == 0, StartTs: applyStart, EndTs: time.Now().UnixMilli()}
	if len(res.fileErrors) > 0 {
		info.State = resourcesync.StateFailed
		applyLog.Stderr = strings.Join(res.fileErrors, "\n")
	}
	if len(res.entries) == 0 {
		applyLog.Stdout = "no changes"
	} else {
		lines := make([]string, 0, len(res.entries))
		for _, e := range res.entries {
			lines = append(lines, fmt.Sprintf("%s %s: %s", e.Operation, e.Kind, e.Name))
		}
		applyLog.Stdout = strings.Join(lines, "\n")
	}
	if logErr := s.updates.Log(ctx, upd, applyLog); logErr != nil {
		s.log.Warn("log sync apply", "error", logErr)
	}

	if len(res.wave) > 0 {
		waveStart := time.Now().UnixMilli()
		waveOut, waveErr := s.runDeployWave(ctx, res.wave)
		waveLog := update.Log{Stage: "Deploy Wave", Success: waveErr == nil, StartTs: waveStart, EndTs: time.Now().UnixMilli(), Stdout: waveOut}
		if waveErr != nil {
			info.State = resourcesync.StateFailed
			waveLog.Stderr = waveErr.Error()
		}
		if logErr := s.updates.Log(ctx, upd, waveLog); logErr != nil {
			s.log.Warn("log deploy wave", "error", logErr)
		}
	}

	if infoErr := s.store.UpdateResourceSyncInfo(ctx, sync.Id, info); infoErr != nil {
		s.log.Warn("update resource sync info", "sync", sync.Name, "error", infoErr)
	}
	s.evaluatePendingAlert(ctx, sync, info)
	if finErr := s.updates.Finalize(ctx, upd); finErr != nil {
		s.log.Error("finalize sync update", "update", upd.Id, "error", finErr)
	}
	if info.State == resourcesync.StateFailed {
		return fmt.Errorf("sync %s failed: %s", sync.Name, strings.Join(info.Plan.FileErrors, "; "))
	}
	return nil
}

// planResult is everything one computePlan pass produces: the ordered
// plan entries, accumulated per-file and per-resource errors, the commit
// the TOML tree was read at, and the deploy-wave nodes declared in it.
type planResult struct {
	entries    []resourcesync.PlanEntry
	fileErrors []string
	commitHash string
	wave       []waveNode
}

// computePlan fetches sync's TOML tree and diffs it by name against the
// database, in resource.ApplyOrder. When apply is true it also writes
// every non-empty diff back through the matching ResourceService, retrying
// each resource up to cfg.ApplyRetries times before recording it failed
// and moving on. Malformed files never abort the pass: they are recorded
// as file errors and the remaining files still plan.
func (s *SyncService) computePlan(ctx context.Context, sync *resourcesync.Resource, apply bool) planResult {
	var res planResult

	files, commitHash, err := s.fetchTomlFiles(ctx, sync)
	res.commitHash = commitHash
	if err != nil {
		res.fileErrors = append(res.fileErrors, fmt.Sprintf("fetch resources: %v", err))
		return res
	}

	var rt resourcesToml
	for _, f := range files {
		parsed, err := parseResourcesToml(f.data)
		if err != nil {
			res.fileErrors = append(res.fileErrors, fmt.Sprintf("parse %s: %v", f.path, err))
			continue
		}
		rt.merge(parsed)
	}

	// Managed deletes only run when every file parsed: a malformed file
	// makes its resources look undeclared, and deleting on that signal
	// would turn a syntax error into a mass delete.
	pc := planCtx{
		apply:     apply,
		managed:   sync.Config.Managed && len(res.fileErrors) == 0,
		retries:   s.applyRetries(),
		matchTags: sync.Config.MatchTags,
	}

	// Variables lead the apply order: every later kind may interpolate
	// them.
	res.entries = append(res.entries, s.planVariables(ctx, rt.Variables, apply)...)

	type kindPlan struct {
		entries []resourcesync.PlanEntry
		deletes []resourcesync.PlanEntry
	}

	// fixRefs callbacks rewrite each kind's name-based cross-resource
	// references to database ids before anything is diffed or written —
	// the DB only ever stores ids; names exist at the TOML boundary.
	// Lookups go through the live store, so a reference to a resource
	// created earlier in this same apply resolves naturally.
	deploymentRefs := func(ctx context.Context, p *deployment.PartialConfig) error {
		if err := s.resolveServerRef(ctx, p.ServerId); err != nil {
			return err
		}
		return s.resolveBuildRef(ctx, p.BuildId)
	}
	buildRefs := func(ctx context.Context, p *build.PartialConfig) error {
		if err := s.resolveBuilderRef(ctx, p.BuilderId); err != nil {
			return err
		}
		return s.resolveRepoRef(ctx, p.RepoId)
	}
	repoRefs := func(ctx context.Context, p *repo.PartialConfig) error {
		return s.resolveServerRef(ctx, p.ServerId)
	}
	stackRefs := func(ctx context.Context, p *stack.PartialConfig) error {
		return s.resolveServerRef(ctx, p.ServerId)
	}

	planners := []func() kindPlan{
		func() kindPlan {
			e, d := planKind(ctx, s, resource.KindAlerter, rt.Alerter, s.resources.Alerters, nil, pc, "")
			return kindPlan{e, d}
		},
		func() kindPlan {
			e, d := planKind(ctx, s, resource.KindBuilder, rt.Builder, s.resources.Builders, nil, pc, "")
			return kindPlan{e, d}
		},
		func() kindPlan {
			e, d := planKind(ctx, s, resource.KindServerTemplate, rt.ServerTemplate, s.resources.ServerTemplates, nil, pc, "")
			return kindPlan{e, d}
		},
		func() kindPlan {
			e, d := planKind(ctx, s, resource.KindServer, rt.Server, s.resources.Servers, nil, pc, "")
			return kindPlan{e, d}
		},
		func() kindPlan {
			e, d := planKind(ctx, s, resource.KindBuild, rt.Build, s.resources.Builds, buildRefs, pc, "")
			return kindPlan{e, d}
		},
		func() kindPlan {
			e, d := planKind(ctx, s, resource.KindRepo, rt.Repo, s.resources.Repos, repoRefs, pc, "")
			return kindPlan{e, d}
		},
		func() kindPlan {
			e, d := planKind(ctx, s, resource.KindStack, rt.Stack, s.resources.Stacks, stackRefs, pc, "")
			return kindPlan{e, d}
		},
		func() kindPlan {
			e, d := planKind(ctx, s, resource.KindDeployment, rt.Deployment, s.resources.Deployments, deploymentRefs, pc, "")
			return kindPlan{e, d}
		},
		func() kindPlan {
			e, d := planKind(ctx, s, resource.KindProcedure, rt.Procedure, s.resources.Procedures, nil, pc, "")
			return kindPlan{e, d}
		},
		func() kindPlan {
			e, d := planKind(ctx, s, resource.KindAction, rt.Action, s.resources.Actions, nil, pc, "")
			return kindPlan{e, d}
		},
		func() kindPlan {
			// The running sync is implicitly kept: a managed sweep must
			// never delete the sync executing it.
			e, d := planKind(ctx, s, resource.KindResourceSync, rt.ResourceSync, s.resources.ResourceSyncs, nil, pc, sync.Name)
			return kindPlan{e, d}
		},
	}

	// Creates and updates accumulate in ApplyOrder; deletes run last
	// across every kind.
	var deletes []resourcesync.PlanEntry
	for _, plan := range planners {
		kp := plan()
		res.entries = append(res.entries, kp.entries...)
		deletes = append(deletes, kp.deletes...)
	}
	// User groups close the apply order: their members may have been
	// created by anything earlier in the file.
	res.entries = append(res.entries, s.planUserGroups(ctx, rt.UserGroups, apply)...)

	res.entries = append(res.entries, deletes...)

	for _, e := range res.entries {
		if e.Error != "" {
			res.fileErrors = append(res.fileErrors, fmt.Sprintf("%s %s %s: %s", e.Operation, e.Kind, e.Name, e.Error))
		}
	}

	res.wave = collectWave(rt, pc.matchTags)
	return res
}

func (s *SyncService) applyRetries() int {
	if s.cfg.ApplyRetries > 0 {
		return s.cfg.ApplyRetries
	}
	return 10
}

// planCtx bundles the per-pass knobs every kind's planner shares.
type planCtx struct {
	apply     bool
	managed   bool
	retries   int
	matchTags []string
}

// planKind diffs one kind's TOML entries against the database by name and,
// if pc.apply is set, writes the computed create/update through rs —
// config first, then the entry's description and tags. fixRefs, when
// non-nil, rewrites the entry's name-based references to ids before any
// diff; an unresolvable name fails that one resource and the rest of the
// kind still plans. keep exempts one name from the managed delete sweep.
// The second return holds the kind's managed deletes, which the caller
// sequences after every kind's creates and updates.
func planKind[C any, I any, P any](ctx context.Context, s *SyncService, kind resource.Kind, entries []namedConfig[P], rs *ResourceService[C, I, P], fixRefs func(context.Context, *P) error, pc planCtx, keep string) ([]resourcesync.PlanEntry, []resourcesync.PlanEntry) {
	var out []resourcesync.PlanEntry
	declared := make(map[string]bool, len(entries))
	if keep != "" {
		declared[keep] = true
	}

	for _, entry := range entries {
		if !hasAllTags(entry.Tags, pc.matchTags) {
			continue
		}
		declared[entry.Name] = true

		if fixRefs != nil {
			if err := fixRefs(ctx, &entry.Config); err != nil {
				out = append(out, resourcesync.PlanEntry{Kind: string(kind), Name: entry.Name, Operation: "Update", Error: err.Error()})
				continue
			}
		}

		existing, err := rs.getByName(ctx, entry.Name)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			out = append(out, resourcesync.PlanEntry{Kind: string(kind), Name: entry.Name, Operation: "Update", Error: fmt.Sprintf("lookup: %v", err)})
			continue
		}

		if existing == nil {
			pe := resourcesync.PlanEntry{Kind: string(kind), Name: entry.Name, Operation: "Create"}
			if pc.apply {
				entry := entry
				applyWithRetry(s.log, kind, entry.Name, pc.retries, &pe, func() error {
					cfg, err := configdiff.MergePartial(rs.defaultCfg(), entry.Config)
					if err != nil {
						return fmt.Errorf("merge default config: %w", err)
					}
					created, err := rs.create(ctx, entry.Name, cfg)
					if err != nil {
						return err
					}
					return s.applyResourceMeta(ctx, resource.TargetRef{Kind: kind, Id: created.Id}, entry.Description, entry.Tags)
				})
			}
			out = append(out, pe)
			continue
		}

		diff := configdiff.PartialDiff(existing.Config, entry.Config)
		descChanged := entry.Description != "" && entry.Description != existing.Description
		tagsChanged := len(entry.Tags) > 0 && !s.resourceHasTags(ctx, resource.TargetRef{Kind: kind, Id: existing.Id}, entry.Tags)
		if configdiff.IsEmpty(diff) && !descChanged && !tagsChanged {
			continue
		}

		pe := resourcesync.PlanEntry{Kind: string(kind), Name: entry.Name, Operation: "Update"}
		if !configdiff.IsEmpty(diff) {
			pe.Diff = diffString(diff)
		} else if descChanged {
			pe.Diff = "description"
		} else {
			pe.Diff = "tags"
		}
		if pc.apply {
			entry := entry
			applyWithRetry(s.log, kind, entry.Name, pc.retries, &pe, func() error {
				if !configdiff.IsEmpty(diff) {
					if _, err := rs.updateCfg(ctx, existing.Id, diff); err != nil {
						return err
					}
				}
				target := resource.TargetRef{Kind: kind, Id: existing.Id}
				if descChanged || tagsChanged {
					return s.applyResourceMeta(ctx, target, entry.Description, entry.Tags)
				}
				return nil
			})
		}
		out = append(out, pe)
	}

	var dels []resourcesync.PlanEntry
	if pc.managed {
		all, err := rs.list(ctx)
		if err != nil {
			dels = append(dels, resourcesync.PlanEntry{Kind: string(kind), Operation: "Delete", Error: fmt.Sprintf("list for managed delete: %v", err)})
			return out, dels
		}
		for _, r := range all {
			if declared[r.Name] {
				continue
			}
			pe := resourcesync.PlanEntry{Kind: string(kind), Name: r.Name, Operation: "Delete"}
			if pc.apply {
				r := r
				applyWithRetry(s.log, kind, r.Name, pc.retries, &pe, func() error {
					if err := rs.delete(ctx, r.Id); err != nil {
						return err
					}
					if rs.onDelete != nil {
						return rs.onDelete(ctx, r.Id)
					}
					return nil
				})
			}
			dels = append(dels, pe)
		}
	}
	return out, dels
}

// applyResourceMeta persists a declared entry's description and tag set.
// Absent fields leave the stored values alone: an empty description or tag
// list in the file means "not managed by this sync", not "clear it".
func (s *SyncService) applyResourceMeta(ctx context.Context, target resource.TargetRef, description string, tagNames []string) error {
	if description != "" {
		if err := s.store.SetResourceDescription(ctx, target, description); err != nil {
			return fmt.Errorf("set description: %w", err)
		}
	}
	if len(tagNames) > 0 {
		ids, err := s.tagIDs(ctx, tagNames)
		if err != nil {
			return err
		}
		if err := s.store.SetResourceTags(ctx, target, ids); err != nil {
			return fmt.Errorf("set tags: %w", err)
		}
	}
	return nil
}

// tagIDs resolves tag names to ids, creating any that don't exist yet.
func (s *SyncService) tagIDs(ctx context.Context, names []string) ([]string, error) {
	existing, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	byName := make(map[string]string, len(existing))
	for _, t := range existing {
		byName[t.Name] = t.Id
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		id, ok := byName[n]
		if !ok {
			t, err := s.store.CreateTag(ctx, n)
			if err != nil {
				return nil, fmt.Errorf("create tag %q: %w", n, err)
			}
			id = t.Id
		}
		out = append(out, id)
	}
	return out, nil
}

// resourceHasTags reports whether target's current tag set already covers
// every declared name. Read-only: a plain refresh must never create tags.
func (s *SyncService) resourceHasTags(ctx context.Context, target resource.TargetRef, names []string) bool {
	current, err := s.store.ListResourceTags(ctx, target)
	if err != nil {
		return false
	}
	have := make(map[string]bool, len(current))
	for _, t := range current {
		have[t.Name] = true
	}
	for _, n := range names {
		if !have[n] {
			return false
		}
	}
	return true
}

// --- name -> id reference resolution ---

// resolveRef rewrites *ref from a resource name to its id via lookup. An
// already-id-shaped value (or nil/empty, meaning unset or cleared) passes
// through untouched.
func resolveRef(ctx context.Context, ref *string, kind string, lookup func(context.Context, string) (string, error)) error {
	if ref == nil || *ref == "" || resource.IsIDLike(*ref) {
		return nil
	}
	id, err := lookup(ctx, *ref)
	if err != nil {
		return fmt.Errorf("unknown %s %q: %w", kind, *ref, domain.ErrValidation)
	}
	*ref = id
	return nil
}

func (s *SyncService) resolveServerRef(ctx context.Context, ref *string) error {
	return resolveRef(ctx, ref, "server", func(ctx context.Context, name string) (string, error) {
		srv, err := s.store.GetServerByName(ctx, name)
		if err != nil {
			return "", err
		}
		return srv.Id, nil
	})
}

func (s *SyncService) resolveBuildRef(ctx context.Context, ref *string) error {
	return resolveRef(ctx, ref, "build", func(ctx context.Context, name string) (string, error) {
		b, err := s.store.GetBuildByName(ctx, name)
		if err != nil {
			return "", err
		}
		return b.Id, nil
	})
}

func (s *SyncService) resolveBuilderRef(ctx context.Context, ref *string) error {
	return resolveRef(ctx, ref, "builder", func(ctx context.Context, name string) (string, error) {
		b, err := s.store.GetBuilderByName(ctx, name)
		if err != nil {
			return "", err
		}
		return b.Id, nil
	})
}

func (s *SyncService) resolveRepoRef(ctx context.Context, ref *string) error {
	return resolveRef(ctx, ref, "repo", func(ctx context.Context, name string) (string, error) {
		r, err := s.store.GetRepoByName(ctx, name)
		if err != nil {
			return "", err
		}
		return r.Id, nil
	})
}

// planVariables upserts every declared Variable whose value, description,
// or secret flag differs from the stored one. Variables have no
// Config/PartialConfig triad and no managed delete: removing one from the
// file leaves it in place, since a still-running Deployment may
// interpolate it.
func (s *SyncService) planVariables(ctx context.Context, declared []variableToml, apply bool) []resourcesync.PlanEntry {
	var out []resourcesync.PlanEntry
	for _, v := range declared {
		existing, err := s.store.GetVariable(ctx, v.Name)
		if err == nil && existing.Value == v.Value && existing.Description == v.Description && existing.IsSecret == v.IsSecret {
			continue
		}
		op := "Update"
		if existing == nil {
			op = "Create"
		}
		pe := resourcesync.PlanEntry{Kind: "Variable", Name: v.Name, Operation: op}
		if apply {
			if err := s.store.UpsertVariable(ctx, variable.Variable{Name: v.Name, Value: v.Value, Description: v.Description, IsSecret: v.IsSecret}); err != nil {
				pe.Error = err.Error()
			}
		}
		out = append(out, pe)
	}
	return out
}

// planUserGroups ensures every declared group exists and contains exactly
// the declared members (by username). Members present in the DB but not
// declared are removed from the group; undeclared groups are left alone
// regardless of the managed flag, since groups carry grants a file author
// may not see.
func (s *SyncService) planUserGroups(ctx context.Context, declared []userGroupToml, apply bool) []resourcesync.PlanEntry {
	var out []resourcesync.PlanEntry
	for _, g := range declared {
		pe, changed := s.planOneGroup(ctx, g, apply)
		if changed {
			out = append(out, pe)
		}
	}
	return out
}

func (s *SyncService) planOneGroup(ctx context.Context, g userGroupToml, apply bool) (resourcesync.PlanEntry, bool) {
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return resourcesync.PlanEntry{Kind: "UserGroup", Name: g.Name, Operation: "Update", Error: err.Error()}, true
	}

	var existing *user.Group
	for i := range groups {
		if groups[i].Name == g.Name {
			existing = &groups[i]
			break
		}
	}

	wantIDs := make(map[string]bool, len(g.Users))
	for _, username := range g.Users {
		u, err := s.store.GetUserByUsername(ctx, username)
		if err != nil {
			return resourcesync.PlanEntry{Kind: "UserGroup", Name: g.Name, Operation: "Update", Error: fmt.Sprintf("unknown user %q", username)}, true
		}
		wantIDs[u.ID] = true
	}

	if existing == nil {
		pe := resourcesync.PlanEntry{Kind: "UserGroup", Name: g.Name, Operation: "Create"}
		if apply {
			created, err := s.store.CreateGroup(ctx, g.Name)
			if err != nil {
				pe.Error = err.Error()
				return pe, true
			}
			for id := range wantIDs {
				if err := s.store.AddGroupMember(ctx, created.ID, id); err != nil {
					pe.Error = err.Error()
					return pe, true
				}
			}
		}
		return pe, true
	}

	haveIDs := make(map[string]bool, len(existing.Users))
	for _, id := range existing.Users {
		haveIDs[id] = true
	}
	var toAdd, toRemove []string
	for id := range wantIDs {
		if !haveIDs[id] {
			toAdd = append(toAdd, id)
		}
	}
	for id := range haveIDs {
		if !wantIDs[id] {
			toRemove = append(toRemove, id)
		}
	}
	if len(toAdd) == 0 && len(toRemove) == 0 {
		return resourcesync.PlanEntry{}, false
	}

	pe := resourcesync.PlanEntry{Kind: "UserGroup", Name: g.Name, Operation: "Update", Diff: fmt.Sprintf("+%d member(s) -%d member(s)", len(toAdd), len(toRemove))}
	if apply {
		for _, id := range toAdd {
			if err := s.store.AddGroupMember(ctx, existing.ID, id); err != nil {
				pe.Error = err.Error()
				return pe, true
			}
		}
		for _, id := range toRemove {
			if err := s.store.RemoveGroupMember(ctx, existing.ID, id); err != nil {
				pe.Error = err.Error()
				return pe, true
			}
		}
	}
	return pe, true
}

// diffString renders a partial diff for the human-readable plan. The
// partial's omitempty json tags keep only the fields that actually
// changed, which is exactly what a plan reader wants to see.
func diffString[P any](diff P) string {
	b, err := json.Marshal(diff)
	if err != nil {
		return fmt.Sprintf("%+v", diff)
	}
	return string(b)
}

// applyWithRetry runs fn up to retries times, recording the final error on
// pe when every attempt failed.
func applyWithRetry(log *slog.Logger, kind resource.Kind, name string, retries int, pe *resourcesync.PlanEntry, fn func() error) {
	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return
		}
	}
	log.Warn("sync apply giving up on resource", "kind", kind, "name", name, "attempts", retries, "error", lastErr)
	pe.Error = lastErr.Error()
}

// --- deploy wave ---

// waveNode is one deploy=true deployment or stack declared in the sync
// tree, with the names of the wave entries it must run after.
type waveNode struct {
	kind  resource.Kind
	name  string
	after []string
}

// collectWave gathers the deploy=true deployment and stack entries that
// survive the tag filter.
func collectWave(rt resourcesToml, matchTags []string) []waveNode {
	var nodes []waveNode
	for _, d := range rt.Deployment {
		if d.Deploy && hasAllTags(d.Tags, matchTags) {
			nodes = append(nodes, waveNode{kind: resource.KindDeployment, name: d.Name, after: d.After})
		}
	}
	for _, st := range rt.Stack {
		if st.Deploy && hasAllTags(st.Tags, matchTags) {
			nodes = append(nodes, waveNode{kind: resource.KindStack, name: st.Name, after: st.After})
		}
	}
	return nodes
}

// runDeployWave orders nodes into topological layers over their `after`
// edges and deploys layer by layer: every node in a layer runs in
// parallel, a node whose dependency failed is skipped, and a dependency
// cycle fails the wave loudly before anything deploys. After-references to names outside the wave are ignored — they were
// applied as plain config this run and impose no ordering.
func (s *SyncService) runDeployWave(ctx context.Context, nodes []waveNode) (string, error) {
	if s.execute == nil {
		return "", fmt.Errorf("deploy wave not wired: %w", domain.ErrInternal)
	}

	layers, err := waveLayers(nodes)
	if err != nil {
		return "", err
	}

	var (
		mu     sync.Mutex
		failed = make(map[string]bool)
		lines  []string
	)
	for _, layer := range layers {
		var wg sync.WaitGroup
		for _, n := range layer {
			skip := false
			for _, dep := range n.after {
				if failed[dep] {
					skip = true
					break
				}
			}
			if skip {
				failed[n.name] = true
				lines = append(lines, fmt.Sprintf("SKIP %s %s: dependency failed", n.kind, n.name))
				continue
			}
			n := n
			wg.Add(1)
			go func() {
				defer wg.Done()
				var err error
				switch n.kind {
				case resource.KindStack:
					err = s.execute.ComposeUp(ctx, resourceSyncUser, n.name)
				default:
					err = s.execute.Deploy(ctx, resourceSyncUser, n.name)
				}
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					failed[n.name] = true
					lines = append(lines, fmt.Sprintf("FAIL %s %s: %v", n.kind, n.name, err))
				} else {
					lines = append(lines, fmt.Sprintf("OK   %s %s", n.kind, n.name))
				}
			}()
		}
		wg.Wait()
	}

	out := strings.Join(lines, "\n")
	if len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for n := range failed {
			names = append(names, n)
		}
		sort.Strings(names)
		return out, fmt.Errorf("deploy wave: %d of %d failed or skipped: %s", len(failed), len(nodes), strings.Join(names, ", "))
	}
	return out, nil
}

// waveLayers Kahn-sorts nodes over their in-wave `after` edges. Any nodes
// left unplaced once no zero-indegree node remains form a cycle, which is
// an error before a single deploy starts.
func waveLayers(nodes []waveNode) ([][]waveNode, error) {
	inWave := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		inWave[n.name] = true
	}

	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string)
	byName := make(map[string]waveNode, len(nodes))
	for _, n := range nodes {
		byName[n.name] = n
		for _, dep := range n.after {
			if !inWave[dep] {
				continue
			}
			indegree[n.name]++
			dependents[dep] = append(dependents[dep], n.name)
		}
	}

	placed := 0
	var layers [][]waveNode
	current := make([]waveNode, 0, len(nodes))
	for _, n := range nodes {
		if indegree[n.name] == 0 {
			current = append(current, n)
		}
	}
	for len(current) > 0 {
		layers = append(layers, current)
		placed += len(current)
		var next []waveNode
		for _, n := range current {
			for _, depName := range dependents[n.name] {
				indegree[depName]--
				if indegree[depName] == 0 {
					next = append(next, byName[depName])
				}
			}
		}
		current = next
	}

	if placed < len(nodes) {
		var stuck []string
		for _, n := range nodes {
			if indegree[n.name] > 0 {
				stuck = append(stuck, n.name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("after dependencies form a cycle among: %s: %w", strings.Join(stuck, ", "), domain.ErrValidation)
	}
	return layers, nil
}

// --- TOML tree fetch ---

// syncFile is one raw .toml file read out of the sync's resource tree.
type syncFile struct {
	path string
	data []byte
}

// fetchTomlFiles returns every .toml file under sync's resource path —
// a single file, or a recursive walk when the path is a directory — along
// with the git commit hash it was read at (empty for a disk-backed sync).
func (s *SyncService) fetchTomlFiles(ctx context.Context, sync *resourcesync.Resource) ([]syncFile, string, error) {
	root := sync.Config.ResourcePath
	commitHash := ""

	if sync.Config.RepoUrl != "" {
		dir := filepath.Join(s.cloneDir(), sync.Id)
		if err := s.cloneOrPull(ctx, dir, sync.Config.RepoUrl, sync.Config.Branch); err != nil {
			return nil, "", err
		}
		hash, err := s.revParse(ctx, dir)
		if err != nil {
			s.log.Warn("resolve sync commit hash", "sync", sync.Name, "error", err)
		}
		commitHash = hash
		root = filepath.Join(dir, sync.Config.ResourcePath)
	}

	stat, err := os.Stat(root)
	if err != nil {
		return nil, commitHash, err
	}

	if !stat.IsDir() {
		b, err := os.ReadFile(root)
		if err != nil {
			return nil, commitHash, err
		}
		return []syncFile{{path: root, data: b}}, commitHash, nil
	}

	var files []syncFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".toml") {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		files = append(files, syncFile{path: rel, data: b})
		return nil
	})
	return files, commitHash, err
}

func (s *SyncService) cloneDir() string {
	if s.cfg.CloneDir == "" {
		return "data/sync-clones"
	}
	return s.cfg.CloneDir
}

// cloneOrPull clones url into dir if it does not already hold a checkout,
// otherwise pulls branch, retrying up to cfg.CloneRetries times through
// the shared git.Pool so sync refreshes never pile up unbounded git
// processes alongside repo/stack clones.
func (s *SyncService) cloneOrPull(ctx context.Context, dir, url, branch string) error {
	retries := s.cfg.CloneRetries
	if retries <= 0 {
		retries = 1
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		lastErr = s.gitPool.Run(ctx, func() error {
			if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
				return runGit(ctx, dir, "pull", "--ff-only", "origin", branch)
			}
			if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
				return fmt.Errorf("make clone parent dir: %w", err)
			}
			return runGit(ctx, "", "clone", "--branch", branch, "--single-branch", "--depth", "1", url, dir)
		})
		if lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("clone/pull %s after %d attempt(s): %w", url, retries, lastErr)
}

func (s *SyncService) revParse(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	return strings.TrimSpace(string(out)), err
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
