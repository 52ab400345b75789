package service

import (
	"context"
	"fmt"

	"github.com/komodo-run/core/internal/domain"
	"github.com/komodo-run/core/internal/domain/permission"
	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/user"
	"github.com/komodo-run/core/internal/port/database"
)

// PermissionService resolves the effective permission level a user holds
// on a resource target. Results are computed fresh on every
// call and never cached across requests — the resolver re-evaluates on
// every read/write/execute.
type PermissionService struct {
	store           database.Store
	transparentMode bool
}

// NewPermissionService creates a PermissionService. transparentMode, when
// true, grants a synthetic floor of Read on every resource to any
// authenticated user who would otherwise have None.
func NewPermissionService(store database.Store, transparentMode bool) *PermissionService {
	return &PermissionService{store: store, transparentMode: transparentMode}
}

// Resolve computes the effective permission level on (u, target) as the
// max of: explicit user grant, explicit grant via group membership, the
// user's per-kind "all" level, the resource's base permission, transparent
// mode's read floor, and the admin/super_admin elevation (both resolve to
// Write — super_admin's additional "manage admins" capability is not a
// resource permission and is checked separately by callers that need it).
func (s *PermissionService) Resolve(ctx context.Context, u *user.User, target resource.TargetRef, basePermission resource.BasePermission) (resource.BasePermission, error) {
	if u.Admin || u.SuperAdmin {
		return resource.PermissionWrite, nil
	}

	level := basePermission
	if s.transparentMode {
		level = resource.Max(level, resource.PermissionRead)
	}

	grants, err := s.store.ListGrantsForTarget(ctx, target)
	if err != nil {
		return "", fmt.Errorf("list grants for target: %w", err)
	}

	var memberGroups map[string]bool
	for _, g := range grants {
		switch g.Principal {
		case permission.PrincipalUser:
			if g.UserOrID == u.ID {
				level = resource.Max(level, g.Level)
			}
		case permission.PrincipalGroup:
			if memberGroups == nil {
				memberGroups, err = s.groupsForUser(ctx, u.ID)
				if err != nil {
					return "", err
				}
			}
			if memberGroups[g.UserOrID] {
				level = resource.Max(level, g.Level)
			}
		}
	}

	kindAll, err := s.store.ListKindAllGrants(ctx, u.ID)
	if err != nil {
		return "", fmt.Errorf("list kind-all grants: %w", err)
	}
	for _, k := range kindAll {
		if k.Kind == target.Kind {
			level = resource.Max(level, k.Level)
		}
	}

	return level, nil
}

// groupsForUser returns the set of group ids u.ID belongs to. The store has
// no direct user->groups index, so this scans every group's membership —
// acceptable since UserGroup is expected to number in the tens, not
// thousands, per install.
func (s *PermissionService) groupsForUser(ctx context.Context, userID string) (map[string]bool, error) {
	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	out := make(map[string]bool)
	for _, g := range groups {
		for _, member := range g.Users {
			if member == userID {
				out[g.ID] = true
				break
			}
		}
	}
	return out, nil
}

// RequireLevel resolves the effective permission and returns
// domain.ErrForbidden if it is below want.
func (s *PermissionService) RequireLevel(ctx context.Context, u *user.User, target resource.TargetRef, basePermission, want resource.BasePermission) error {
	level, err := s.Resolve(ctx, u, target, basePermission)
	if err != nil {
		return err
	}
	if level.Level() < want.Level() {
		return fmt.Errorf("%s on %s %s: %w", want, target.Kind, target.Id, domain.ErrForbidden)
	}
	return nil
}

// RequireAdmin returns domain.ErrForbidden unless u is an admin or
// super_admin — used for System-scoped requests.
func RequireAdmin(u *user.User) error {
	if !u.Admin && !u.SuperAdmin {
		return fmt.Errorf("system operation: %w", domain.ErrForbidden)
	}
	return nil
}

// RequireSuperAdmin returns domain.ErrForbidden unless u is a super_admin —
// used for granting/revoking the SuperAdmin elevation itself.
func RequireSuperAdmin(u *user.User) error {
	if !u.SuperAdmin {
		return fmt.Errorf("super admin required: %w", domain.ErrForbidden)
	}
	return nil
}
