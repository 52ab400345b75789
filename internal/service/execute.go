package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	cfotel "github.com/komodo-run/core/internal/adapter/otel"
	"github.com/komodo-run/core/internal/domain"
	"github.com/komodo-run/core/internal/domain/action"
	"github.com/komodo-run/core/internal/domain/build"
	"github.com/komodo-run/core/internal/domain/builder"
	"github.com/komodo-run/core/internal/domain/deployment"
	"github.com/komodo-run/core/internal/domain/procedure"
	"github.com/komodo-run/core/internal/domain/repo"
	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/stack"
	"github.com/komodo-run/core/internal/domain/update"
	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/port/database"
	"github.com/komodo-run/core/internal/port/periphery"
	"github.com/komodo-run/core/internal/service/actionstate"
)

// ExecuteService implements every mutating execution handler:
// build, deploy, container lifecycle, host pruning, compose operations,
// repo clone/pull, and the Action/Procedure indirection that runs any of
// the above by name. Every handler follows the same shape: resolve the
// target, check Execute permission, acquire the resource's actionstate
// guard, run the Periphery call, log it to an Update, finalize, and
// invalidate any derived Info the monitor loop would otherwise overwrite
// on its own schedule.
type ExecuteService struct {
	store     database.Store
	resources *Resources
	perm      *PermissionService
	actions   *actionstate.Registry
	updates   *UpdateService
	periphery periphery.Factory
	syncs     *SyncService
	alerts    *AlertService
	log       *slog.Logger
}

// NewExecuteService creates an ExecuteService.
func NewExecuteService(store database.Store, resources *Resources, perm *PermissionService, actions *actionstate.Registry, updates *UpdateService, client periphery.Factory, log *slog.Logger) *ExecuteService {
	if log == nil {
		log = slog.Default()
	}
	return &ExecuteService{store: store, resources: resources, perm: perm, actions: actions, updates: updates, periphery: client, log: log}
}

// SetSyncs wires the SyncService Dispatch delegates "RunSync" to. Sync's
// own construction needs nothing from ExecuteService, so cmd/core builds
// SyncService first and attaches it here, avoiding a constructor cycle.
func (e *ExecuteService) SetSyncs(s *SyncService) {
	e.syncs = s
}

// SetAlerts wires the AlertService TestAlerter sends through.
func (e *ExecuteService) SetAlerts(a *AlertService) {
	e.alerts = a
}

// TestAlerter pushes a test notification through one Alerter's sink so a
// user can verify a fresh webhook configuration end to end. It bypasses
// the alerter's own filters and writes no Update or alert record — the
// HTTP response is the whole result.
func (e *ExecuteService) TestAlerter(ctx context.Context, u *user.User, id string) error {
	alt, err := e.resources.Alerters.Get(ctx, u, id)
	if err != nil {
		return err
	}
	target := resource.TargetRef{Kind: resource.KindAlerter, Id: alt.Id}
	if err := e.perm.RequireLevel(ctx, u, target, alt.BasePermission, resource.PermissionExecute); err != nil {
		return err
	}
	if e.alerts == nil {
		return fmt.Errorf("alert dispatch not wired: %w", domain.ErrInternal)
	}
	return e.alerts.SendTest(ctx, alt)
}

// runGuarded is the common envelope every handler below runs inside: it
// checks Execute permission on target, acquires flag, starts the Update,
// runs fn (which appends whatever Log stages it produced), and finalizes
// regardless of fn's outcome.
func (e *ExecuteService) runGuarded(ctx context.Context, u *user.User, target resource.TargetRef, basePermission resource.BasePermission, op update.Operation, flag actionstate.Flag, fn func(ctx context.Context, upd *update.Update) error) error {
	if err := e.perm.RequireLevel(ctx, u, target, basePermission, resource.PermissionExecute); err != nil {
		return err
	}
	release, err := e.actions.Acquire(target, flag)
	if err != nil {
		return err
	}
	defer release()

	ctx, span := cfotel.StartExecuteSpan(ctx, string(op), string(target.Kind), target.Id)
	defer span.End()

	upd, err := e.updates.Start(ctx, op, target, operatorName(u))
	if err != nil {
		return err
	}

	runErr := fn(ctx, upd)
	if finErr := e.updates.Finalize(ctx, upd); finErr != nil {
		e.log.Error("finalize update", "update", upd.Id, "error", finErr)
	}
	return runErr
}

func operatorName(u *user.User) string {
	if u == nil {
		return update.OperatorGitWebhook
	}
	return u.Username
}

func (e *ExecuteService) clientFor(addr, passkey string) periphery.Client {
	return e.periphery.For(addr, passkey)
}

func logStage(upd *update.Update, stage string, resp periphery.RunResponse, start time.Time) update.Log {
	return update.Log{
		Stage: stage, Stdout: resp.Stdout, Stderr: resp.Stderr, Success: resp.Success,
		StartTs: start.UnixMilli(), EndTs: time.Now().UnixMilli(),
	}
}

// --- Repo ---

func (e *ExecuteService) CloneRepo(ctx context.Context, u *user.User, id string) error {
	r, err := e.resources.Repos.Get(ctx, u, id)
	if err != nil {
		return err
	}
	if r.Config.ServerId == "" {
		return fmt.Errorf("repo %s has no server attached: %w", r.Name, domain.ErrValidation)
	}
	srv, err := e.resources.Servers.Get(ctx, u, r.Config.ServerId)
	if err != nil {
		return err
	}

	target := resource.TargetRef{Kind: resource.KindRepo, Id: r.Id}
	return e.runGuarded(ctx, u, target, r.BasePermission, update.OpCloneRepo, actionstate.CloningRepo, func(ctx context.Context, upd *update.Update) error {
		start := time.Now()
		client := e.clientFor(srv.Config.Address, srv.Config.Passkey)
		resp, err := client.CloneRepo(ctx, periphery.CloneRepoRequest{
			Name: r.Name, Path: r.Config.Path, Url: r.Config.Repo, Branch: r.Config.Branch,
		})
		if logErr := e.updates.Log(ctx, upd, logStage(upd, "Clone Repo", resp, start)); logErr != nil {
			e.log.Warn("log clone stage", "error", logErr)
		}
		if err != nil {
			return fmt.Errorf("clone repo: %w", err)
		}
		return e.store.UpdateRepoInfo(ctx, r.Id, repo.Info{LastPulledAt: time.Now().UnixMilli()})
	})
}

func (e *ExecuteService) PullRepo(ctx context.Context, u *user.User, id string) error {
	r, err := e.resources.Repos.Get(ctx, u, id)
	if err != nil {
		return err
	}
	srv, err := e.resources.Servers.Get(ctx, u, r.Config.ServerId)
	if err != nil {
		return err
	}

	target := resource.TargetRef{Kind: resource.KindRepo, Id: r.Id}
	return e.runGuarded(ctx, u, target, r.BasePermission, update.OpPullRepo, actionstate.Pulling, func(ctx context.Context, upd *update.Update) error {
		start := time.Now()
		client := e.clientFor(srv.Config.Address, srv.Config.Passkey)
		resp, err := client.PullRepo(ctx, periphery.PullRepoRequest{Name: r.Name, Path: r.Config.Path, Branch: r.Config.Branch})
		if logErr := e.updates.Log(ctx, upd, logStage(upd, "Pull Repo", resp, start)); logErr != nil {
			e.log.Warn("log pull stage", "error", logErr)
		}
		if err != nil {
			return fmt.Errorf("pull repo: %w", err)
		}
		return e.store.UpdateRepoInfo(ctx, r.Id, repo.Info{LastPulledAt: time.Now().UnixMilli()})
	})
}

// --- Build ---

// RunBuild drives a Build against its configured Builder. Only the Server
// and Url builder variants resolve to a Periphery target directly; the
// Aws/Hetzner transient-instance variants need a provisioning round trip
// that is not implemented here, and fail fast with a clear validation
// error instead of hanging.
func (e *ExecuteService) RunBuild(ctx context.Context, u *user.User, id string) error {
	b, err := e.resources.Builds.Get(ctx, u, id)
	if err != nil {
		return err
	}
	r, err := e.resources.Repos.Get(ctx, u, b.Config.RepoId)
	if err != nil {
		return err
	}
	bl, err := e.resources.Builders.Get(ctx, u, b.Config.BuilderId)
	if err != nil {
		return err
	}
	addr, passkey, err := e.resolveBuilderEndpoint(ctx, u, bl)
	if err != nil {
		return err
	}

	target := resource.TargetRef{Kind: resource.KindBuild, Id: b.Id}
	return e.runGuarded(ctx, u, target, b.BasePermission, update.OpBuild, actionstate.Building, func(ctx context.Context, upd *update.Update) error {
		start := time.Now()
		client := e.clientFor(addr, passkey)
		resp, err := client.Build(ctx, periphery.BuildRequest{
			Name: b.Name, Version: b.Info.LastVersion, ImageTag: b.Config.ImageTag,
			RepoPath: r.Config.Path, Dockerfile: b.Config.Dockerfile,
			BuildArgs: interpolateMap(ctx, e.store, b.Config.BuildArgs), Labels: b.Config.Labels,
		})
		if logErr := e.updates.Log(ctx, upd, logStage(upd, "Build", resp, start)); logErr != nil {
			e.log.Warn("log build stage", "error", logErr)
		}
		if err != nil {
			return fmt.Errorf("build: %w", err)
		}
		return e.store.UpdateBuildInfo(ctx, b.Id, build.Info{LastBuiltAt: time.Now().UnixMilli(), LastVersion: b.Info.LastVersion})
	})
}

// resolveBuilderEndpoint returns the (address, passkey) a Build on bl
// should run against.
func (e *ExecuteService) resolveBuilderEndpoint(ctx context.Context, u *user.User, bl *builder.Resource) (string, string, error) {
	switch bl.Config.Builder.Type {
	case "Server":
		serverID, _ := bl.Config.Builder.Params["server_id"].(string)
		srv, err := e.resources.Servers.Get(ctx, u, serverID)
		if err != nil {
			return "", "", err
		}
		return srv.Config.Address, srv.Config.Passkey, nil
	case "Url":
		addr, _ := bl.Config.Builder.Params["address"].(string)
		passkey, _ := bl.Config.Builder.Params["passkey"].(string)
		return addr, passkey, nil
	default:
		return "", "", fmt.Errorf("builder type %q requires cloud provisioning, not supported: %w", bl.Config.Builder.Type, domain.ErrValidation)
	}
}

// --- Deployment ---

func (e *ExecuteService) Deploy(ctx context.Context, u *user.User, id string) error {
	d, err := e.resources.Deployments.Get(ctx, u, id)
	if err != nil {
		return err
	}
	srv, err := e.resources.Servers.Get(ctx, u, d.Config.ServerId)
	if err != nil {
		return err
	}

	target := resource.TargetRef{Kind: resource.KindDeployment, Id: d.Id}
	return e.runGuarded(ctx, u, target, d.BasePermission, update.OpDeploy, actionstate.Deploying, func(ctx context.Context, upd *update.Update) error {
		start := time.Now()
		client := e.clientFor(srv.Config.Address, srv.Config.Passkey)
		ports := make([]string, 0, len(d.Config.Ports))
		for host, container := range d.Config.Ports {
			ports = append(ports, host+":"+container)
		}
		volumes := make([]string, 0, len(d.Config.Volumes))
		for host, container := range d.Config.Volumes {
			volumes = append(volumes, host+":"+container)
		}
		resp, err := client.Deploy(ctx, periphery.DeployRequest{
			Name: d.Name, Image: d.Config.Image, Environment: interpolateMap(ctx, e.store, d.Config.Environment),
			Volumes: volumes, Ports: ports, Network: d.Config.Network, RestartMode: d.Config.RestartPolicy,
		})
		if logErr := e.updates.Log(ctx, upd, logStage(upd, "Deploy", resp, start)); logErr != nil {
			e.log.Warn("log deploy stage", "error", logErr)
		}
		if err != nil {
			return fmt.Errorf("deploy: %w", err)
		}
		return e.store.UpdateDeploymentInfo(ctx, d.Id, deployment.Info{State: deployment.StateRunning, ContainerId: d.Name})
	})
}

type containerOp func(client periphery.Client, ctx context.Context, name string) (periphery.RunResponse, error)

func (e *ExecuteService) containerLifecycle(ctx context.Context, u *user.User, id, stage string, flag actionstate.Flag, op containerOp) error {
	d, err := e.resources.Deployments.Get(ctx, u, id)
	if err != nil {
		return err
	}
	srv, err := e.resources.Servers.Get(ctx, u, d.Config.ServerId)
	if err != nil {
		return err
	}
	target := resource.TargetRef{Kind: resource.KindDeployment, Id: d.Id}
	return e.runGuarded(ctx, u, target, d.BasePermission, update.OpRun, flag, func(ctx context.Context, upd *update.Update) error {
		start := time.Now()
		client := e.clientFor(srv.Config.Address, srv.Config.Passkey)
		resp, err := op(client, ctx, d.Name)
		if logErr := e.updates.Log(ctx, upd, logStage(upd, stage, resp, start)); logErr != nil {
			e.log.Warn("log container stage", "stage", stage, "error", logErr)
		}
		return err
	})
}

func (e *ExecuteService) StartContainer(ctx context.Context, u *user.User, id string) error {
	return e.containerLifecycle(ctx, u, id, "Start Container", actionstate.Deploying, func(c periphery.Client, ctx context.Context, name string) (periphery.RunResponse, error) {
		return c.StartContainer(ctx, name)
	})
}

func (e *ExecuteService) StopContainer(ctx context.Context, u *user.User, id string, timeoutSeconds int) error {
	return e.containerLifecycle(ctx, u, id, "Stop Container", actionstate.StoppingContainers, func(c periphery.Client, ctx context.Context, name string) (periphery.RunResponse, error) {
		return c.StopContainer(ctx, name, timeoutSeconds)
	})
}

func (e *ExecuteService) RestartContainer(ctx context.Context, u *user.User, id string) error {
	return e.containerLifecycle(ctx, u, id, "Restart Container", actionstate.Deploying, func(c periphery.Client, ctx context.Context, name string) (periphery.RunResponse, error) {
		return c.RestartContainer(ctx, name)
	})
}

func (e *ExecuteService) PauseContainer(ctx context.Context, u *user.User, id string) error {
	return e.containerLifecycle(ctx, u, id, "Pause Container", actionstate.Deploying, func(c periphery.Client, ctx context.Context, name string) (periphery.RunResponse, error) {
		return c.PauseContainer(ctx, name)
	})
}

func (e *ExecuteService) UnpauseContainer(ctx context.Context, u *user.User, id string) error {
	return e.containerLifecycle(ctx, u, id, "Unpause Container", actionstate.Deploying, func(c periphery.Client, ctx context.Context, name string) (periphery.RunResponse, error) {
		return c.UnpauseContainer(ctx, name)
	})
}

func (e *ExecuteService) RemoveContainer(ctx context.Context, u *user.User, id string) error {
	return e.containerLifecycle(ctx, u, id, "Remove Container", actionstate.StoppingContainers, func(c periphery.Client, ctx context.Context, name string) (periphery.RunResponse, error) {
		return c.RemoveContainer(ctx, name)
	})
}

// StopAllContainers stops every Deployment running on server.
func (e *ExecuteService) StopAllContainers(ctx context.Context, u *user.User, serverID string) error {
	srv, err := e.resources.Servers.Get(ctx, u, serverID)
	if err != nil {
		return err
	}
	target := resource.TargetRef{Kind: resource.KindServer, Id: srv.Id}
	return e.runGuarded(ctx, u, target, srv.BasePermission, update.OpRun, actionstate.StoppingContainers, func(ctx context.Context, upd *update.Update) error {
		deployments, err := e.store.ListDeploymentsByServer(ctx, srv.Id)
		if err != nil {
			return fmt.Errorf("list deployments by server: %w", err)
		}
		client := e.clientFor(srv.Config.Address, srv.Config.Passkey)
		var firstErr error
		for _, d := range deployments {
			start := time.Now()
			resp, err := client.StopContainer(ctx, d.Name, srv.Config.TerminationTimeoutSeconds)
			if logErr := e.updates.Log(ctx, upd, logStage(upd, "Stop "+d.Name, resp, start)); logErr != nil {
				e.log.Warn("log stop-all stage", "error", logErr)
			}
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
}

// --- Host pruning ---

func (e *ExecuteService) prune(ctx context.Context, u *user.User, serverID, stage string, flag actionstate.Flag, op func(c periphery.Client, ctx context.Context) (periphery.RunResponse, error)) error {
	srv, err := e.resources.Servers.Get(ctx, u, serverID)
	if err != nil {
		return err
	}
	target := resource.TargetRef{Kind: resource.KindServer, Id: srv.Id}
	return e.runGuarded(ctx, u, target, srv.BasePermission, update.OpPrune, flag, func(ctx context.Context, upd *update.Update) error {
		start := time.Now()
		client := e.clientFor(srv.Config.Address, srv.Config.Passkey)
		resp, err := op(client, ctx)
		if logErr := e.updates.Log(ctx, upd, logStage(upd, stage, resp, start)); logErr != nil {
			e.log.Warn("log prune stage", "stage", stage, "error", logErr)
		}
		return err
	})
}

func (e *ExecuteService) PruneContainers(ctx context.Context, u *user.User, serverID string) error {
	return e.prune(ctx, u, serverID, "Prune Containers", actionstate.PruningContainers, func(c periphery.Client, ctx context.Context) (periphery.RunResponse, error) {
		return c.PruneContainers(ctx)
	})
}

func (e *ExecuteService) PruneImages(ctx context.Context, u *user.User, serverID string) error {
	return e.prune(ctx, u, serverID, "Prune Images", actionstate.PruningImages, func(c periphery.Client, ctx context.Context) (periphery.RunResponse, error) {
		return c.PruneImages(ctx)
	})
}

func (e *ExecuteService) PruneNetworks(ctx context.Context, u *user.User, serverID string) error {
	return e.prune(ctx, u, serverID, "Prune Networks", actionstate.PruningNetworks, func(c periphery.Client, ctx context.Context) (periphery.RunResponse, error) {
		return c.PruneNetworks(ctx)
	})
}

func (e *ExecuteService) PruneVolumes(ctx context.Context, u *user.User, serverID string) error {
	return e.prune(ctx, u, serverID, "Prune Volumes", actionstate.PruningVolumes, func(c periphery.Client, ctx context.Context) (periphery.RunResponse, error) {
		return c.PruneVolumes(ctx)
	})
}

func (e *ExecuteService) PruneSystem(ctx context.Context, u *user.User, serverID string) error {
	return e.prune(ctx, u, serverID, "Prune System", actionstate.PruningSystem, func(c periphery.Client, ctx context.Context) (periphery.RunResponse, error) {
		return c.PruneSystem(ctx)
	})
}

// --- Stack / compose ---

func (e *ExecuteService) composeOp(ctx context.Context, u *user.User, id, stage string, flag actionstate.Flag, op func(c periphery.Client, ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error)) error {
	s, err := e.resources.Stacks.Get(ctx, u, id)
	if err != nil {
		return err
	}
	srv, err := e.resources.Servers.Get(ctx, u, s.Config.ServerId)
	if err != nil {
		return err
	}
	target := resource.TargetRef{Kind: resource.KindStack, Id: s.Id}
	return e.runGuarded(ctx, u, target, s.BasePermission, update.OpDeploy, flag, func(ctx context.Context, upd *update.Update) error {
		start := time.Now()
		client := e.clientFor(srv.Config.Address, srv.Config.Passkey)
		req := safeComposeRequest(s)
		resp, err := op(client, ctx, req)
		if logErr := e.updates.Log(ctx, upd, logStage(upd, stage, resp, start)); logErr != nil {
			e.log.Warn("log compose stage", "stage", stage, "error", logErr)
		}
		return err
	})
}

// safeComposeRequest builds the ComposeRequest without panicking if
// FileSource.Params lacks file_path (e.g. an Inline source holds the
// content directly, not a path).
func safeComposeRequest(s *stack.Resource) periphery.ComposeRequest {
	filePath, _ := s.Config.FileSource.Params["file_path"].(string)
	return periphery.ComposeRequest{ProjectName: s.Name, FilePath: filePath}
}

func (e *ExecuteService) ComposeUp(ctx context.Context, u *user.User, id string) error {
	return e.composeOp(ctx, u, id, "Compose Up", actionstate.Deploying, func(c periphery.Client, ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error) {
		return c.ComposeUp(ctx, req)
	})
}

func (e *ExecuteService) ComposeDown(ctx context.Context, u *user.User, id string) error {
	return e.composeOp(ctx, u, id, "Compose Down", actionstate.StoppingContainers, func(c periphery.Client, ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error) {
		return c.ComposeDown(ctx, req)
	})
}

func (e *ExecuteService) ComposeStart(ctx context.Context, u *user.User, id string) error {
	return e.composeOp(ctx, u, id, "Compose Start", actionstate.Deploying, func(c periphery.Client, ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error) {
		return c.ComposeStart(ctx, req)
	})
}

func (e *ExecuteService) ComposeStop(ctx context.Context, u *user.User, id string) error {
	return e.composeOp(ctx, u, id, "Compose Stop", actionstate.StoppingContainers, func(c periphery.Client, ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error) {
		return c.ComposeStop(ctx, req)
	})
}

func (e *ExecuteService) ComposePause(ctx context.Context, u *user.User, id string) error {
	return e.composeOp(ctx, u, id, "Compose Pause", actionstate.Deploying, func(c periphery.Client, ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error) {
		return c.ComposePause(ctx, req)
	})
}

func (e *ExecuteService) ComposeUnpause(ctx context.Context, u *user.User, id string) error {
	return e.composeOp(ctx, u, id, "Compose Unpause", actionstate.Deploying, func(c periphery.Client, ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error) {
		return c.ComposeUnpause(ctx, req)
	})
}

func (e *ExecuteService) ComposeRestart(ctx context.Context, u *user.User, id string) error {
	return e.composeOp(ctx, u, id, "Compose Restart", actionstate.Deploying, func(c periphery.Client, ctx context.Context, req periphery.ComposeRequest) (periphery.RunResponse, error) {
		return c.ComposeRestart(ctx, req)
	})
}

// --- Action / Procedure indirection ---

// RunAction runs the operation an Action resource points at: its Config
// names an execute-request Type (e.g. "RunBuild") and a Target id, so
// RunAction is just Dispatch with the Action's own bookkeeping wrapped
// around it.
func (e *ExecuteService) RunAction(ctx context.Context, u *user.User, id string) error {
	a, err := e.resources.Actions.Get(ctx, u, id)
	if err != nil {
		return err
	}
	if err := e.Dispatch(ctx, u, a.Config.Type, a.Config.Target); err != nil {
		return err
	}
	return e.store.UpdateActionInfo(ctx, a.Id, action.Info{LastRunAt: time.Now().UnixMilli()})
}

// RunProcedure runs every Stage in order; a stage's Executions all run
// concurrently and the next stage starts only once every execution in the
// current one has returned. Disabled stages are skipped. The
// first execution error in a stage is returned once the whole stage
// finishes, but later stages do not start.
func (e *ExecuteService) RunProcedure(ctx context.Context, u *user.User, id string) error {
	p, err := e.resources.Procedures.Get(ctx, u, id)
	if err != nil {
		return err
	}
	target := resource.TargetRef{Kind: resource.KindProcedure, Id: p.Id}
	runErr := e.runGuarded(ctx, u, target, p.BasePermission, update.OpRun, actionstate.Updating, func(ctx context.Context, upd *update.Update) error {
		for _, stage := range p.Config.Stages {
			if !stage.Enabled {
				continue
			}
			if err := e.runStage(ctx, u, stage); err != nil {
				return fmt.Errorf("stage %s: %w", stage.Name, err)
			}
		}
		return nil
	})
	if infoErr := e.store.UpdateProcedureInfo(ctx, p.Id, procedure.Info{LastRunAt: time.Now().UnixMilli()}); infoErr != nil {
		e.log.Warn("update procedure info", "procedure", p.Name, "error", infoErr)
	}
	return runErr
}

// runStage runs every execution in the stage concurrently and waits for
// all of them; the first failure is returned once the whole stage has
// finished. A plain errgroup (no derived context) keeps siblings running
// to completion even when one fails, since each already holds its own
// Update record.
func (e *ExecuteService) runStage(ctx context.Context, u *user.User, stage procedure.Stage) error {
	var g errgroup.Group
	for _, ex := range stage.Executions {
		ex := ex
		g.Go(func() error {
			if err := e.Dispatch(ctx, u, ex.Type, ex.Target); err != nil {
				return fmt.Errorf("%s %s: %w", ex.Type, ex.Target, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Dispatch runs the execute-request named by reqType against target,
// mirroring the ExecuteRequest tagged union. It is the single
// entry point both the HTTP /execute handler and the Action/Procedure
// indirection go through.
func (e *ExecuteService) Dispatch(ctx context.Context, u *user.User, reqType, target string) error {
	switch reqType {
	case "CloneRepo":
		return e.CloneRepo(ctx, u, target)
	case "PullRepo":
		return e.PullRepo(ctx, u, target)
	case "RunBuild":
		return e.RunBuild(ctx, u, target)
	case "Deploy":
		return e.Deploy(ctx, u, target)
	case "StartContainer":
		return e.StartContainer(ctx, u, target)
	case "StopContainer":
		return e.StopContainer(ctx, u, target, 10)
	case "RestartContainer":
		return e.RestartContainer(ctx, u, target)
	case "PauseContainer":
		return e.PauseContainer(ctx, u, target)
	case "UnpauseContainer":
		return e.UnpauseContainer(ctx, u, target)
	case "RemoveContainer":
		return e.RemoveContainer(ctx, u, target)
	case "StopAllContainers":
		return e.StopAllContainers(ctx, u, target)
	case "PruneContainers":
		return e.PruneContainers(ctx, u, target)
	case "PruneImages":
		return e.PruneImages(ctx, u, target)
	case "PruneNetworks":
		return e.PruneNetworks(ctx, u, target)
	case "PruneVolumes":
		return e.PruneVolumes(ctx, u, target)
	case "PruneSystem":
		return e.PruneSystem(ctx, u, target)
	case "ComposeUp":
		return e.ComposeUp(ctx, u, target)
	case "ComposeDown":
		return e.ComposeDown(ctx, u, target)
	case "ComposeStart":
		return e.ComposeStart(ctx, u, target)
	case "ComposeStop":
		return e.ComposeStop(ctx, u, target)
	case "ComposePause":
		return e.ComposePause(ctx, u, target)
	case "ComposeUnpause":
		return e.ComposeUnpause(ctx, u, target)
	case "ComposeRestart":
		return e.ComposeRestart(ctx, u, target)
	case "RunProcedure":
		return e.RunProcedure(ctx, u, target)
	case "RunAction":
		return e.RunAction(ctx, u, target)
	case "TestAlerter":
		return e.TestAlerter(ctx, u, target)
	case "RunSync":
		if e.syncs == nil {
			return fmt.Errorf("sync execution not wired: %w", domain.ErrInternal)
		}
		return e.syncs.ExecuteSync(ctx, u, target)
	default:
		return fmt.Errorf("unknown execute request type %q: %w", reqType, domain.ErrValidation)
	}
}
