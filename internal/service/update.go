package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/komodo-run/core/internal/adapter/otel"
	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/update"
	"github.com/komodo-run/core/internal/port/broadcast"
	"github.com/komodo-run/core/internal/port/database"
)

// UpdateService owns the append-only audit log every mutating operation
// writes to: one Update row per operation, mutated in
// place as Log stages accumulate, broadcast to connected websocket
// clients on every change so the UI can show progress live.
type UpdateService struct {
	store     database.Store
	broadcast broadcast.Broadcaster
	metrics   *cfotel.Metrics
}

// SetMetrics attaches the update counter. Optional.
func (s *UpdateService) SetMetrics(metrics *cfotel.Metrics) { s.metrics = metrics }

// NewUpdateService creates an UpdateService. broadcast may be nil, in
// which case updates are still persisted but never pushed over the wire
// (used by tests that don't stand up a Hub).
func NewUpdateService(store database.Store, b broadcast.Broadcaster) *UpdateService {
	return &UpdateService{store: store, broadcast: b}
}

// Start creates a new InProgress Update for operation against target, run by
// operator, and persists it before any work begins so a crash mid-operation
// still leaves a visible record.
func (s *UpdateService) Start(ctx context.Context, op update.Operation, target resource.TargetRef, operator string) (*update.Update, error) {
	u := &update.Update{
		Id:        uuid.NewString(),
		Operation: op,
		Target:    target,
		StartTs:   time.Now().UnixMilli(),
		Status:    update.StatusInProgress,
		Operator:  operator,
	}
	if err := s.store.CreateUpdate(ctx, u); err != nil {
		return nil, fmt.Errorf("create update: %w", err)
	}
	if s.metrics != nil {
		s.metrics.UpdatesTotal.Add(ctx, 1)
	}
	s.emit(ctx, u)
	return u, nil
}

// Log appends one stage to u, persists it, and re-broadcasts. u is mutated
// in place so callers can keep accumulating stages against the same
// pointer across a long-running operation.
func (s *UpdateService) Log(ctx context.Context, u *update.Update, l update.Log) error {
	u.AddLog(l)
	if err := s.store.AppendUpdateLog(ctx, u.Id, l); err != nil {
		return fmt.Errorf("append update log: %w", err)
	}
	s.emit(ctx, u)
	return nil
}

// Finalize computes overall success as the AND of every logged stage,
// marks u Complete, persists the final state, and broadcasts it one last
// time.
func (s *UpdateService) Finalize(ctx context.Context, u *update.Update) error {
	u.Finalize(time.Now().UnixMilli())
	if err := s.store.FinalizeUpdate(ctx, u.Id, u.Status, u.EndTs); err != nil {
		return fmt.Errorf("finalize update: %w", err)
	}
	s.emit(ctx, u)
	return nil
}

// Get returns a single update by id.
func (s *UpdateService) Get(ctx context.Context, id string) (*update.Update, error) {
	return s.store.GetUpdate(ctx, id)
}

// List returns the most recent updates against target, newest first. A
// zero-value target (Kind == "") lists across every resource.
func (s *UpdateService) List(ctx context.Context, target resource.TargetRef, limit int) ([]update.Update, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.store.ListUpdates(ctx, target, limit)
}

func (s *UpdateService) emit(ctx context.Context, u *update.Update) {
	if s.broadcast == nil {
		return
	}
	s.broadcast.BroadcastEvent(ctx, "UPDATE", u)
}
