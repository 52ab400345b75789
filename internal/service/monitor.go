package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	cfotel "github.com/komodo-run/core/internal/adapter/otel"
	"github.com/komodo-run/core/internal/config"
	"github.com/komodo-run/core/internal/domain/alert"
	"github.com/komodo-run/core/internal/domain/deployment"
	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/server"
	"github.com/komodo-run/core/internal/domain/stack"
	"github.com/komodo-run/core/internal/port/cache"
	"github.com/komodo-run/core/internal/port/database"
	"github.com/komodo-run/core/internal/port/periphery"
)

// MonitorService is the background status poller: on every
// tick it fans out to every enabled Server's Periphery agent, populates
// the status caches, writes back derived Info, and raises/clears
// threshold alerts through AlertService.
type MonitorService struct {
	store  database.Store
	cache  cache.Cache
	alerts *AlertService
	client periphery.Factory
	cfg    config.Monitoring
	log    *slog.Logger

	metrics *cfotel.Metrics

	obsMu        sync.Mutex
	observations map[string]*containerObservation
}

// NewMonitorService creates a MonitorService.
func NewMonitorService(store database.Store, c cache.Cache, alerts *AlertService, client periphery.Factory, cfg config.Monitoring, log *slog.Logger) *MonitorService {
	if log == nil {
		log = slog.Default()
	}
	return &MonitorService{store: store, cache: c, alerts: alerts, client: client, cfg: cfg, log: log, observations: make(map[string]*containerObservation)}
}

// SetMetrics attaches the poll-loop instruments. Optional: a nil Metrics
// leaves the loop unmeasured.
func (m *MonitorService) SetMetrics(metrics *cfotel.Metrics) { m.metrics = metrics }

// Run polls every enabled Server on cfg.PollInterval until ctx is
// cancelled. Intended to be launched as a single long-running goroutine
// from cmd/core.
func (m *MonitorService) Run(ctx context.Context) {
	interval := m.cfg.PollInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.pollAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollAll(ctx)
		}
	}
}

// statsRetention bounds the historical server-stats window.
const statsRetention = 7 * 24 * time.Hour

// pollAll fans out across every enabled Server, bounded by
// cfg.MaxConcurrent concurrent Periphery calls.
func (m *MonitorService) pollAll(ctx context.Context) {
	servers, err := m.store.ListServers(ctx)
	if err != nil {
		m.log.Error("monitor: list servers", "error", err)
		return
	}

	if _, err := m.store.PruneServerStats(ctx, time.Now().Add(-statsRetention).UnixMilli()); err != nil {
		m.log.Warn("monitor: prune server stats", "error", err)
	}

	limit := m.cfg.MaxConcurrent
	if limit <= 0 {
		limit = 10
	}
	sem := semaphore.NewWeighted(int64(limit))

	for _, srv := range servers {
		if !srv.Config.Enabled {
			continue
		}
		srv := srv
		if err := sem.Acquire(ctx, 1); err != nil {
			return
		}
		go func() {
			defer sem.Release(1)
			m.pollServer(ctx, srv)
		}()
	}
}

// pollServer polls one Server, in its own per-call timeout, and never
// lets a single unreachable host block the others.
func (m *MonitorService) pollServer(ctx context.Context, srv server.Resource) {
	timeout := m.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, span := cfotel.StartPollSpan(ctx, srv.Id, srv.Name)
	defer span.End()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if m.metrics != nil {
		m.metrics.PollsTotal.Add(ctx, 1)
		defer func() {
			m.metrics.PollDuration.Record(ctx, time.Since(start).Seconds())
		}()
	}

	target := resource.TargetRef{Kind: resource.KindServer, Id: srv.Id}
	client := m.client.For(srv.Config.Address, srv.Config.Passkey)

	version, err := client.GetVersion(callCtx)
	if err != nil {
		if m.metrics != nil {
			m.metrics.PollFailures.Add(ctx, 1)
		}
		span.RecordError(err)
		m.markUnreachable(ctx, srv, target)
		return
	}

	stats, statsErr := client.GetSystemStats(callCtx)
	containers, containersErr := client.GetContainerList(callCtx)

	info := server.Info{State: server.StateOk, Version: version.Version}
	if err := m.store.UpdateServerInfo(ctx, srv.Id, info); err != nil {
		m.log.Warn("monitor: update server info", "server", srv.Name, "error", err)
	}
	m.setCache(ctx, statusCacheKey("server", srv.Id), map[string]any{"info": info, "stats": stats})

	if err := m.alerts.Evaluate(ctx, target, alert.VariantServerUnreachable, alert.LevelOk, alert.Data{ServerId: srv.Id, ServerName: srv.Name}); err != nil {
		m.log.Warn("monitor: clear unreachable alert", "server", srv.Name, "error", err)
	}

	if statsErr == nil {
		m.evaluateThresholds(ctx, srv, target, stats)
		if err := m.store.InsertServerStats(ctx, server.StatsSnapshot{
			ServerId: srv.Id, Ts: time.Now().UnixMilli(),
			CpuPerc: stats.CpuPerc, MemUsedGb: stats.MemUsedGb, MemTotalGb: stats.MemTotalGb,
			DiskUsedGb: stats.DiskUsedGb, DiskTotalGb: stats.DiskTotalGb,
		}); err != nil {
			m.log.Warn("monitor: insert server stats", "server", srv.Name, "error", err)
		}
	}
	if containersErr == nil {
		m.reconcileContainers(ctx, srv, containers)
	}
}

func (m *MonitorService) markUnreachable(ctx context.Context, srv server.Resource, target resource.TargetRef) {
	if err := m.store.UpdateServerInfo(ctx, srv.Id, server.Info{State: server.StateNotOk}); err != nil {
		m.log.Warn("monitor: update server info (unreachable)", "server", srv.Name, "error", err)
	}
	if err := m.alerts.Evaluate(ctx, target, alert.VariantServerUnreachable, alert.LevelCritical, alert.Data{
		ServerId: srv.Id, ServerName: srv.Name, Message: fmt.Sprintf("server %s is unreachable", srv.Name),
	}); err != nil {
		m.log.Warn("monitor: raise unreachable alert", "server", srv.Name, "error", err)
	}
}

// evaluateThresholds checks cpu/mem/disk usage against the Server's
// configured warning/critical percentages.
func (m *MonitorService) evaluateThresholds(ctx context.Context, srv server.Resource, target resource.TargetRef, stats periphery.SystemStats) {
	check := func(variant alert.Variant, pct float64, warn, crit int, mount string) {
		level := alert.LevelOk
		switch {
		case crit > 0 && pct >= float64(crit):
			level = alert.LevelCritical
		case warn > 0 && pct >= float64(warn):
			level = alert.LevelWarning
		}
		data := alert.Data{ServerId: srv.Id, ServerName: srv.Name, Percentage: pct, MountPath: mount}
		if err := m.alerts.Evaluate(ctx, target, variant, level, data); err != nil {
			m.log.Warn("monitor: evaluate threshold", "server", srv.Name, "variant", variant, "error", err)
		}
	}

	cfg := srv.Config
	check(alert.VariantServerCpu, stats.CpuPerc, cfg.CpuWarning, cfg.CpuCritical, "")
	if stats.MemTotalGb > 0 {
		check(alert.VariantServerMem, stats.MemUsedGb/stats.MemTotalGb*100, cfg.MemWarning, cfg.MemCritical, "")
	}
	if stats.DiskTotalGb > 0 {
		check(alert.VariantServerDisk, stats.DiskUsedGb/stats.DiskTotalGb*100, cfg.DiskWarning, cfg.DiskCritical, "/")
	}
}

// reconcileContainers updates every Deployment and Stack on srv against
// the live container list, firing ContainerStateChange alerts when a
// deployment's container moves to a new state.
func (m *MonitorService) reconcileContainers(ctx context.Context, srv server.Resource, containers []periphery.Container) {
	byName := make(map[string]periphery.Container, len(containers))
	for _, c := range containers {
		byName[c.Name] = c
	}

	deployments, err := m.store.ListDeploymentsByServer(ctx, srv.Id)
	if err != nil {
		m.log.Warn("monitor: list deployments by server", "server", srv.Name, "error", err)
		return
	}
	for _, d := range deployments {
		newState := deployment.StateNotDeployed
		var containerId string
		if c, ok := byName[d.Name]; ok {
			newState = containerStateFromPeriphery(c.State)
			containerId = c.Name
		}

		m.observeContainerState(ctx, d, newState)

		if err := m.store.UpdateDeploymentInfo(ctx, d.Id, deployment.Info{State: newState, ContainerId: containerId}); err != nil {
			m.log.Warn("monitor: update deployment info", "deployment", d.Name, "error", err)
		}
		m.setCache(ctx, statusCacheKey("deployment", d.Id), deployment.Info{State: newState, ContainerId: containerId})
	}

	stacks, err := m.store.ListStacks(ctx)
	if err != nil {
		m.log.Warn("monitor: list stacks", "error", err)
		return
	}
	for _, st := range stacks {
		if st.Config.ServerId != srv.Id {
			continue
		}
		services := make([]stack.ServiceState, 0)
		overall := "Down"
		for name, c := range byName {
			if !isStackService(name, st.Name) {
				continue
			}
			services = append(services, stack.ServiceState{Service: name, State: c.State})
			if c.State == "running" {
				overall = "Running"
			}
		}
		info := stack.Info{State: overall, Services: services}
		if err := m.store.UpdateStackInfo(ctx, st.Id, info); err != nil {
			m.log.Warn("monitor: update stack info", "stack", st.Name, "error", err)
		}
		m.setCache(ctx, statusCacheKey("stack", st.Id), info)
	}
}

// containerStateDebounce is how many consecutive polls must agree on a
// deployment's new container state before a ContainerStateChange alert
// fires. A one-tick flap (a container mid-restart) produces no alert.
const containerStateDebounce = 2

// containerObservation is one deployment's debounce state: the state the
// last polls reported, how many consecutive polls agreed on it, and the
// state the alert machine was last told about.
type containerObservation struct {
	state   deployment.ContainerState
	polls   int
	alerted deployment.ContainerState
}

// observeContainerState feeds one poll's observed state into the
// per-deployment debounce and raises ContainerStateChange only once the
// new state has held for containerStateDebounce consecutive polls.
// Unknown and NotDeployed never alert: the first covers a reachable host
// that simply can't identify the container, the second is a well-defined
// resting state.
func (m *MonitorService) observeContainerState(ctx context.Context, d deployment.Resource, newState deployment.ContainerState) {
	m.obsMu.Lock()
	obs, ok := m.observations[d.Id]
	if !ok {
		obs = &containerObservation{state: d.Info.State, polls: containerStateDebounce, alerted: d.Info.State}
		m.observations[d.Id] = obs
	}
	if obs.state == newState {
		obs.polls++
	} else {
		obs.state = newState
		obs.polls = 1
	}
	fire := obs.polls >= containerStateDebounce &&
		obs.state != obs.alerted &&
		obs.state != deployment.StateUnknown &&
		obs.state != deployment.StateNotDeployed
	from := obs.alerted
	if fire {
		obs.alerted = obs.state
	}
	m.obsMu.Unlock()

	if !fire {
		return
	}
	target := resource.TargetRef{Kind: resource.KindDeployment, Id: d.Id}
	if err := m.alerts.Evaluate(ctx, target, alert.VariantContainerStateChange, alert.LevelWarning, alert.Data{
		FromState: string(from), ToState: string(newState),
	}); err != nil {
		m.log.Warn("monitor: container state change alert", "deployment", d.Name, "error", err)
	}
}

// isStackService reports whether a running container's name looks like it
// belongs to the compose project named stackName (docker compose's
// default container naming is "<project>-<service>-<n>" / "<project>_<service>_<n>").
func isStackService(containerName, stackName string) bool {
	if stackName == "" {
		return false
	}
	prefix1 := stackName + "-"
	prefix2 := stackName + "_"
	return len(containerName) > len(prefix1) && containerName[:len(prefix1)] == prefix1 ||
		len(containerName) > len(prefix2) && containerName[:len(prefix2)] == prefix2
}

func containerStateFromPeriphery(state string) deployment.ContainerState {
	switch state {
	case "running":
		return deployment.StateRunning
	case "exited":
		return deployment.StateExited
	case "restarting":
		return deployment.StateRestarting
	case "paused":
		return deployment.StatePaused
	case "created":
		return deployment.StateCreated
	case "dead":
		return deployment.StateDead
	case "removing":
		return deployment.StateRemoving
	default:
		return deployment.StateUnknown
	}
}

func statusCacheKey(kind, id string) string { return fmt.Sprintf("status:%s:%s", kind, id) }

func (m *MonitorService) setCache(ctx context.Context, key string, value any) {
	if m.cache == nil {
		return
	}
	b, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := m.cache.Set(ctx, key, b, 2*time.Minute); err != nil {
		m.log.Warn("monitor: cache set", "key", key, "error", err)
	}
}
