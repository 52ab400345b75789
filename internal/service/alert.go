package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/komodo-run/core/internal/adapter/otel"
	"github.com/komodo-run/core/internal/domain"
	"github.com/komodo-run/core/internal/domain/alert"
	"github.com/komodo-run/core/internal/domain/alerter"
	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/port/broadcast"
	"github.com/komodo-run/core/internal/port/database"
	"github.com/komodo-run/core/internal/port/notifier"
)

// AlertService owns the alert state machine: at most one open
// alert per (target, variant), opened on None->Warning|Critical, updated
// in place on Warning<->Critical, resolved on any->Ok. Every open/update
// dispatches to every enabled Alerter whose filters match the target.
type AlertService struct {
	store     database.Store
	broadcast broadcast.Broadcaster
	log       *slog.Logger

	metrics *cfotel.Metrics
}

// SetMetrics attaches the alert-transition counters. Optional.
func (s *AlertService) SetMetrics(metrics *cfotel.Metrics) { s.metrics = metrics }

// NewAlertService creates an AlertService.
func NewAlertService(store database.Store, b broadcast.Broadcaster, log *slog.Logger) *AlertService {
	if log == nil {
		log = slog.Default()
	}
	return &AlertService{store: store, broadcast: b, log: log}
}

// Evaluate reports a condition's current level for (target, variant). It
// opens, updates, or resolves the at-most-one open alert for that pair as
// needed and dispatches a notification when the open/update/resolve
// actually changes state. A level of alert.LevelOk with no existing open
// alert is a no-op.
func (s *AlertService) Evaluate(ctx context.Context, target resource.TargetRef, variant alert.Variant, level alert.Level, data alert.Data) error {
	data.Variant = variant

	existing, err := s.store.FindOpenAlert(ctx, target, variant)
	if err != nil {
		existing = nil // not found is the expected "no open alert" case
	}

	switch {
	case existing == nil && level == alert.LevelOk:
		return nil

	case existing == nil:
		a := &alert.Alert{
			Id:     uuid.NewString(),
			Ts:     time.Now().UnixMilli(),
			Level:  level,
			Target: target,
			Data:   data,
		}
		if err := s.store.CreateAlert(ctx, a); err != nil {
			return fmt.Errorf("create alert: %w", err)
		}
		if s.metrics != nil {
			s.metrics.AlertsOpened.Add(ctx, 1)
		}
		s.dispatch(ctx, a)
		return nil

	case level == alert.LevelOk:
		resolvedTs := time.Now().UnixMilli()
		if err := s.store.ResolveAlert(ctx, existing.Id, resolvedTs); err != nil {
			return fmt.Errorf("resolve alert: %w", err)
		}
		existing.Resolved = true
		existing.ResolvedTs = resolvedTs
		existing.Level = alert.LevelOk
		if s.metrics != nil {
			s.metrics.AlertsResolved.Add(ctx, 1)
		}
		s.dispatch(ctx, existing)
		return nil

	case level != existing.Level:
		if err := s.store.UpdateAlertLevel(ctx, existing.Id, level, data); err != nil {
			return fmt.Errorf("update alert level: %w", err)
		}
		existing.Level = level
		existing.Data = data
		s.dispatch(ctx, existing)
		return nil

	default:
		// Same level as the currently open alert: no state transition, no
		// re-dispatch.
		return nil
	}
}

// ListOpen returns every currently open alert.
func (s *AlertService) ListOpen(ctx context.Context) ([]alert.Alert, error) {
	return s.store.ListOpenAlerts(ctx)
}

// List returns the most recent alerts against target (nil for every
// target), newest first.
func (s *AlertService) List(ctx context.Context, target *resource.TargetRef, limit int) ([]alert.Alert, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListAlerts(ctx, target, limit)
}

// SendTest pushes a Test notification through one specific Alerter's sink,
// bypassing the variant/resource filters — the caller is verifying that
// this sink's webhook is configured and reachable, nothing more. No alert
// record is persisted; a delivery failure surfaces to the caller instead
// of being swallowed like a regular advisory dispatch.
func (s *AlertService) SendTest(ctx context.Context, alt *alerter.Resource) error {
	n, err := buildNotifier(alt.Config.Endpoint)
	if err != nil {
		return fmt.Errorf("build notifier for %s: %w", alt.Name, err)
	}

	notification := notifier.Notification{
		Title:   fmt.Sprintf("Test: %s", alt.Name),
		Message: fmt.Sprintf("test notification from alerter %s", alt.Name),
		Level:   "info",
		Source:  string(alert.VariantTest),
	}

	sendCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := n.Send(sendCtx, notification); err != nil {
		return fmt.Errorf("test send via %s: %w: %w", n.Name(), err, domain.ErrUpstream)
	}

	info := alt.Info
	info.LastSentAt = time.Now().UnixMilli()
	if err := s.store.UpdateAlerterInfo(ctx, alt.Id, info); err != nil {
		s.log.Warn("update alerter last-sent", "alerter", alt.Name, "error", err)
	}
	return nil
}

// dispatch fans the alert out to every enabled Alerter matching its
// filters, in parallel; a sink failure is logged and never blocks the
// others or the caller.
func (s *AlertService) dispatch(ctx context.Context, a *alert.Alert) {
	alerters, err := s.store.ListAlerters(ctx)
	if err != nil {
		s.log.Error("list alerters for dispatch", "error", err)
		return
	}

	notification := notifier.Notification{
		Title:   fmt.Sprintf("%s: %s", a.Target.Kind, a.Data.Variant),
		Message: alertMessage(a),
		Level:   alertNotifierLevel(a.Level),
		Source:  string(a.Data.Variant),
	}

	var wg sync.WaitGroup
	for _, alt := range alerters {
		if !alt.Config.Enabled {
			continue
		}
		if !matchesFilters(alt.Config, a) {
			continue
		}
		alt := alt
		n, err := buildNotifier(alt.Config.Endpoint)
		if err != nil {
			s.log.Warn("build notifier", "alerter", alt.Name, "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
			defer cancel()
			if err := n.Send(sendCtx, notification); err != nil {
				s.log.Warn("alert dispatch failed", "alerter", alt.Name, "sink", n.Name(), "error", err)
				return
			}
			info := alt.Info
			info.LastSentAt = time.Now().UnixMilli()
			if err := s.store.UpdateAlerterInfo(ctx, alt.Id, info); err != nil {
				s.log.Warn("update alerter last-sent", "alerter", alt.Name, "error", err)
			}
		}()
	}
	wg.Wait()

	if s.broadcast != nil {
		s.broadcast.BroadcastEvent(ctx, "ALERT", a)
	}
}

// matchesFilters applies the Alerter's AlertTypes/Resources/ExceptResources
// allow/deny lists: empty AlertTypes/Resources means "all",
// ExceptResources always excludes regardless of Resources. Test alerts
// bypass every filter — their whole point is proving the sink works.
func matchesFilters(cfg alerter.Config, a *alert.Alert) bool {
	if a.Data.Variant == alert.VariantTest {
		return true
	}
	if len(cfg.AlertTypes) > 0 && !containsStr(cfg.AlertTypes, string(a.Data.Variant)) {
		return false
	}
	if len(cfg.Resources) > 0 && !containsStr(cfg.Resources, a.Target.Id) {
		return false
	}
	if containsStr(cfg.ExceptResources, a.Target.Id) {
		return false
	}
	return true
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// buildNotifier constructs a notifier.Notifier from an Alerter's sum-typed
// Endpoint variant, converting its Params map[string]any to the
// map[string]string every registered notifier factory expects.
func buildNotifier(endpoint alerter.Endpoint) (notifier.Notifier, error) {
	name := ""
	switch endpoint.Type {
	case alerter.EndpointSlack:
		name = "slack"
	case alerter.EndpointDiscord:
		name = "discord"
	case alerter.EndpointCustom:
		name = "custom"
	default:
		return nil, fmt.Errorf("unknown alerter endpoint type %q", endpoint.Type)
	}

	cfg := make(map[string]string, len(endpoint.Params))
	for k, v := range endpoint.Params {
		if s, ok := v.(string); ok {
			cfg[k] = s
		} else {
			cfg[k] = fmt.Sprintf("%v", v)
		}
	}
	return notifier.New(name, cfg)
}

func alertMessage(a *alert.Alert) string {
	if a.Data.Message != "" {
		return a.Data.Message
	}
	if a.Data.Percentage > 0 {
		return fmt.Sprintf("%s on %s is at %.1f%%", a.Data.Variant, a.Data.ServerName, a.Data.Percentage)
	}
	if a.Data.FromState != "" || a.Data.ToState != "" {
		return fmt.Sprintf("%s: %s -> %s", a.Data.Variant, a.Data.FromState, a.Data.ToState)
	}
	return string(a.Data.Variant)
}

func alertNotifierLevel(l alert.Level) string {
	switch l {
	case alert.LevelCritical:
		return "error"
	case alert.LevelWarning:
		return "warning"
	case alert.LevelOk:
		return "success"
	default:
		return "info"
	}
}
