package service

import (
	"context"
	"fmt"

	"github.com/komodo-run/core/internal/domain"
	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/port/database"
)

// ResourceService is the generic CRUD surface shared by every managed
// resource kind: list filtered to what the caller can read,
// get-by-id-or-name, create (name must not be id-like), update config via
// merge-partial, and delete. The concrete per-kind methods each resource
// package's Go type needs (Resource[C,I] can't itself carry generic
// methods) are supplied as function values bound to a database.Store at
// construction, mirroring the thin-wrapper pattern store_resources.go
// uses over the same generic CRUD primitives.
type ResourceService[C any, I any, P any] struct {
	store database.Store
	perm  *PermissionService
	kind  resource.Kind

	list      func(ctx context.Context) ([]resource.Resource[C, I], error)
	get       func(ctx context.Context, id string) (*resource.Resource[C, I], error)
	getByName func(ctx context.Context, name string) (*resource.Resource[C, I], error)
	create    func(ctx context.Context, name string, cfg C) (*resource.Resource[C, I], error)
	updateCfg func(ctx context.Context, id string, partial P) (*resource.Resource[C, I], error)
	delete    func(ctx context.Context, id string) error

	defaultCfg func() C
	// onDelete runs after the row is removed, while the caller still holds
	// the now-deleted resource's id — used by Server to zero out
	// server_id references on Deployment/Repo/Stack/Builder.
	onDelete func(ctx context.Context, id string) error
}

// ResourceOps bundles the store-bound functions a kind's ResourceService
// needs; constructed once per kind in NewResourceRegistry.
type ResourceOps[C any, I any, P any] struct {
	Kind       resource.Kind
	List       func(ctx context.Context) ([]resource.Resource[C, I], error)
	Get        func(ctx context.Context, id string) (*resource.Resource[C, I], error)
	GetByName  func(ctx context.Context, name string) (*resource.Resource[C, I], error)
	Create     func(ctx context.Context, name string, cfg C) (*resource.Resource[C, I], error)
	UpdateCfg  func(ctx context.Context, id string, partial P) (*resource.Resource[C, I], error)
	Delete     func(ctx context.Context, id string) error
	DefaultCfg func() C
	OnDelete   func(ctx context.Context, id string) error
}

// NewResourceService builds a ResourceService from ops.
func NewResourceService[C any, I any, P any](store database.Store, perm *PermissionService, ops ResourceOps[C, I, P]) *ResourceService[C, I, P] {
	return &ResourceService[C, I, P]{
		store: store, perm: perm, kind: ops.Kind,
		list: ops.List, get: ops.Get, getByName: ops.GetByName,
		create: ops.Create, updateCfg: ops.UpdateCfg, delete: ops.Delete,
		defaultCfg: ops.DefaultCfg, onDelete: ops.OnDelete,
	}
}

// List returns every resource of this kind the user can at least Read.
// Admins see every resource regardless of base permission.
func (s *ResourceService[C, I, P]) List(ctx context.Context, u *user.User) ([]resource.Resource[C, I], error) {
	all, err := s.list(ctx)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.kind, err)
	}
	if u.Admin || u.SuperAdmin {
		return all, nil
	}
	out := make([]resource.Resource[C, I], 0, len(all))
	for _, r := range all {
		level, err := s.perm.Resolve(ctx, u, resource.TargetRef{Kind: s.kind, Id: r.Id}, r.BasePermission)
		if err != nil {
			return nil, err
		}
		if level.Level() >= resource.PermissionRead.Level() {
			out = append(out, r)
		}
	}
	return out, nil
}

// resolve looks a resource up by id (uuid-shaped) or by name otherwise —
// the /read request contract accepts either.
func (s *ResourceService[C, I, P]) resolve(ctx context.Context, idOrName string) (*resource.Resource[C, I], error) {
	if resource.IsIDLike(idOrName) {
		return s.get(ctx, idOrName)
	}
	return s.getByName(ctx, idOrName)
}

// RawGet returns a resource by id without any permission check. Used only
// where the caller needs the BasePermission field itself to run the
// permission check (the websocket hub's per-subscriber filter).
func (s *ResourceService[C, I, P]) RawGet(ctx context.Context, id string) (*resource.Resource[C, I], error) {
	return s.get(ctx, id)
}

// Get returns a single resource by id or name, after checking the caller
// has at least Read.
func (s *ResourceService[C, I, P]) Get(ctx context.Context, u *user.User, idOrName string) (*resource.Resource[C, I], error) {
	r, err := s.resolve(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if err := s.perm.RequireLevel(ctx, u, resource.TargetRef{Kind: s.kind, Id: r.Id}, r.BasePermission, resource.PermissionRead); err != nil {
		return nil, err
	}
	return r, nil
}

// Create makes a new resource of this kind. name must not parse as a uuid
// and the caller must hold
// a kind-all Write grant or be an admin — creation has no existing target
// id to attach an explicit per-resource grant to, so Resolve is called
// against an id-less TargetRef, which only kind-all grants and the
// admin/super_admin elevation can satisfy.
func (s *ResourceService[C, I, P]) Create(ctx context.Context, u *user.User, name string, cfg *C) (*resource.Resource[C, I], error) {
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", domain.ErrValidation)
	}
	if resource.IsIDLike(name) {
		return nil, fmt.Errorf("name %q looks like an id: %w", name, domain.ErrValidation)
	}
	if err := s.perm.RequireLevel(ctx, u, resource.TargetRef{Kind: s.kind}, resource.PermissionNone, resource.PermissionWrite); err != nil {
		return nil, err
	}
	c := s.defaultCfg()
	if cfg != nil {
		c = *cfg
	}
	return s.create(ctx, name, c)
}

// UpdateConfig merges partial onto the resource's current config. The
// caller must hold Write.
func (s *ResourceService[C, I, P]) UpdateConfig(ctx context.Context, u *user.User, idOrName string, partial P) (*resource.Resource[C, I], error) {
	r, err := s.resolve(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	if err := s.perm.RequireLevel(ctx, u, resource.TargetRef{Kind: s.kind, Id: r.Id}, r.BasePermission, resource.PermissionWrite); err != nil {
		return nil, err
	}
	return s.updateCfg(ctx, r.Id, partial)
}

// Delete removes the resource. The caller must hold Write. If the kind
// has dependents whose config references this resource by id (Server is
// referenced by Deployment/Repo/Stack/Builder), onDelete zeroes them out
// after the row is gone.
func (s *ResourceService[C, I, P]) Delete(ctx context.Context, u *user.User, idOrName string) error {
	r, err := s.resolve(ctx, idOrName)
	if err != nil {
		return err
	}
	if err := s.perm.RequireLevel(ctx, u, resource.TargetRef{Kind: s.kind, Id: r.Id}, r.BasePermission, resource.PermissionWrite); err != nil {
		return err
	}
	if err := s.delete(ctx, r.Id); err != nil {
		return fmt.Errorf("delete %s %s: %w", s.kind, r.Id, err)
	}
	if s.onDelete != nil {
		if err := s.onDelete(ctx, r.Id); err != nil {
			return fmt.Errorf("cascade delete %s %s: %w", s.kind, r.Id, err)
		}
	}
	return nil
}
