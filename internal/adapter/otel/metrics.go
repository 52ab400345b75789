package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "komodo-core"

// Metrics holds Core's metric instruments: the status-poll loop, the
// update log, and the alert state machine. HTTP-level metrics come from
// otelhttp and are not duplicated here.
type Metrics struct {
	PollsTotal     metric.Int64Counter
	PollFailures   metric.Int64Counter
	PollDuration   metric.Float64Histogram
	UpdatesTotal   metric.Int64Counter
	AlertsOpened   metric.Int64Counter
	AlertsResolved metric.Int64Counter
	SyncApplies    metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.PollsTotal, err = meter.Int64Counter("komodo.polls.total",
		metric.WithDescription("Number of per-server status polls"))
	if err != nil {
		return nil, err
	}

	m.PollFailures, err = meter.Int64Counter("komodo.polls.failures",
		metric.WithDescription("Number of status polls that found the server unreachable"))
	if err != nil {
		return nil, err
	}

	m.PollDuration, err = meter.Float64Histogram("komodo.polls.duration_seconds",
		metric.WithDescription("Per-server status poll duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.UpdatesTotal, err = meter.Int64Counter("komodo.updates.total",
		metric.WithDescription("Number of Update records started"))
	if err != nil {
		return nil, err
	}

	m.AlertsOpened, err = meter.Int64Counter("komodo.alerts.opened",
		metric.WithDescription("Number of alerts opened"))
	if err != nil {
		return nil, err
	}

	m.AlertsResolved, err = meter.Int64Counter("komodo.alerts.resolved",
		metric.WithDescription("Number of alerts resolved"))
	if err != nil {
		return nil, err
	}

	m.SyncApplies, err = meter.Int64Counter("komodo.syncs.applies",
		metric.WithDescription("Number of resource sync applies"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
