// Package actionstate implements the per-resource busy-flag registry:
// before any mutating execute operation, Core atomically acquires a
// guard that fails with Conflict("busy") if a conflicting flag is already
// set on that resource, and clears the flag on release regardless of
// outcome. It generalizes the at-most-one-build-per-fingerprint guarantee
// to the whole resource surface.
package actionstate

import (
	"fmt"
	"sync"

	"github.com/komodo-run/core/internal/domain"
	"github.com/komodo-run/core/internal/domain/resource"
)

// Flag names one of the mutually-exclusive operations a resource can be
// busy with.
type Flag string

const (
	Building           Flag = "building"
	Deploying          Flag = "deploying"
	Pulling            Flag = "pulling"
	StoppingContainers Flag = "stopping_containers"
	PruningImages      Flag = "pruning_images"
	PruningContainers  Flag = "pruning_containers"
	PruningNetworks    Flag = "pruning_networks"
	PruningVolumes     Flag = "pruning_volumes"
	PruningSystem      Flag = "pruning_system"
	Syncing            Flag = "syncing"
	Updating           Flag = "updating"
	Renaming           Flag = "renaming"
	CloningRepo        Flag = "cloning_repo"
)

// state tracks the single active flag on one resource. Two
// non-conflicting operations on the same resource are rare and typically
// disallowed, so the registry widens the busy predicate to one active
// flag per resource rather than tracking independent booleans that could
// be held concurrently.
type state struct {
	mu     sync.Mutex
	active Flag
}

// Registry is the in-process action-state store for every resource target.
// It is a derived cache, not authoritative: rebuilt empty on process
// restart, and never the source of truth for anything but serializing
// concurrent mutation attempts.
type Registry struct {
	mu    sync.Mutex
	byRef map[resource.TargetRef]*state
}

// NewRegistry creates an empty action-state registry.
func NewRegistry() *Registry {
	return &Registry{byRef: make(map[resource.TargetRef]*state)}
}

func (r *Registry) stateFor(target resource.TargetRef) *state {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byRef[target]
	if !ok {
		s = &state{}
		r.byRef[target] = s
	}
	return s
}

// Acquire sets flag as the active busy flag on target if no flag is
// currently set, returning a release func that clears it. It fails with
// domain.ErrConflict if the resource is already busy. Callers must defer
// the returned release func immediately so the flag clears on success,
// failure, or panic.
func (r *Registry) Acquire(target resource.TargetRef, flag Flag) (func(), error) {
	s := r.stateFor(target)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != "" {
		return nil, fmt.Errorf("%s %s is busy (%s): %w", target.Kind, target.Id, s.active, domain.ErrConflict)
	}
	s.active = flag

	var once sync.Once
	release := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.active = ""
		})
	}
	return release, nil
}

// Active reports the flag currently busy on target, or "" if idle. Used by
// the status/monitor layer to surface busy state without
// touching the guard itself.
func (r *Registry) Active(target resource.TargetRef) Flag {
	s := r.stateFor(target)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// IsBusy reports whether target currently holds any busy flag.
func (r *Registry) IsBusy(target resource.TargetRef) bool {
	return r.Active(target) != ""
}
