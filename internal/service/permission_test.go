package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/komodo-run/core/internal/domain"
	"github.com/komodo-run/core/internal/domain/permission"
	"github.com/komodo-run/core/internal/domain/resource"
	"github.com/komodo-run/core/internal/domain/user"
)

func newTestStore() *mockStore {
	return &mockStore{revoked: map[string]time.Time{}}
}

func TestPermissionService_AdminAlwaysWrite(t *testing.T) {
	store := newTestStore()
	svc := NewPermissionService(store, false)

	admin := &user.User{ID: "u-admin", Admin: true}
	target := resource.TargetRef{Kind: resource.KindServer, Id: "s-1"}

	level, err := svc.Resolve(context.Background(), admin, target, resource.PermissionNone)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if level != resource.PermissionWrite {
		t.Errorf("level = %s, want Write", level)
	}
}

func TestPermissionService_BasePermissionFloor(t *testing.T) {
	store := newTestStore()
	svc := NewPermissionService(store, false)

	plain := &user.User{ID: "u-1"}
	target := resource.TargetRef{Kind: resource.KindServer, Id: "s-1"}

	level, err := svc.Resolve(context.Background(), plain, target, resource.PermissionRead)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if level != resource.PermissionRead {
		t.Errorf("level = %s, want Read (from base permission)", level)
	}
}

func TestPermissionService_TransparentModeFloor(t *testing.T) {
	store := newTestStore()
	svc := NewPermissionService(store, true)

	plain := &user.User{ID: "u-1"}
	target := resource.TargetRef{Kind: resource.KindServer, Id: "s-1"}

	level, err := svc.Resolve(context.Background(), plain, target, resource.PermissionNone)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if level != resource.PermissionRead {
		t.Errorf("level = %s, want Read (transparent mode floor)", level)
	}
}

func TestPermissionService_ExplicitUserGrant(t *testing.T) {
	store := newTestStore()
	target := resource.TargetRef{Kind: resource.KindServer, Id: "s-1"}
	store.grants = append(store.grants, permission.Grant{
		Id:        "g-1",
		Principal: permission.PrincipalUser,
		UserOrID:  "u-1",
		Target:    target,
		Level:     resource.PermissionWrite,
	})
	svc := NewPermissionService(store, false)

	plain := &user.User{ID: "u-1"}
	level, err := svc.Resolve(context.Background(), plain, target, resource.PermissionNone)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if level != resource.PermissionWrite {
		t.Errorf("level = %s, want Write (explicit user grant)", level)
	}

	other := &user.User{ID: "u-2"}
	level, err = svc.Resolve(context.Background(), other, target, resource.PermissionNone)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if level != resource.PermissionNone {
		t.Errorf("level = %s, want None for ungranted user", level)
	}
}

func TestPermissionService_GroupMembershipGrant(t *testing.T) {
	store := newTestStore()
	target := resource.TargetRef{Kind: resource.KindDeployment, Id: "d-1"}
	store.groups = append(store.groups, user.Group{ID: "g-devs", Name: "devs", Users: []string{"u-1", "u-2"}})
	store.grants = append(store.grants, permission.Grant{
		Id:        "g-2",
		Principal: permission.PrincipalGroup,
		UserOrID:  "g-devs",
		Target:    target,
		Level:     resource.PermissionExecute,
	})
	svc := NewPermissionService(store, false)

	member := &user.User{ID: "u-1"}
	level, err := svc.Resolve(context.Background(), member, target, resource.PermissionNone)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if level != resource.PermissionExecute {
		t.Errorf("level = %s, want Execute (group grant)", level)
	}

	nonMember := &user.User{ID: "u-3"}
	level, err = svc.Resolve(context.Background(), nonMember, target, resource.PermissionNone)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if level != resource.PermissionNone {
		t.Errorf("level = %s, want None for non-member", level)
	}
}

func TestPermissionService_KindAllGrant(t *testing.T) {
	store := newTestStore()
	store.kindAllGrants = append(store.kindAllGrants, permission.KindAllGrant{
		UserId: "u-1",
		Kind:   resource.KindBuild,
		Level:  resource.PermissionRead,
	})
	svc := NewPermissionService(store, false)

	plain := &user.User{ID: "u-1"}
	target := resource.TargetRef{Kind: resource.KindBuild, Id: "b-1"}

	level, err := svc.Resolve(context.Background(), plain, target, resource.PermissionNone)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if level != resource.PermissionRead {
		t.Errorf("level = %s, want Read (kind-all grant)", level)
	}

	otherKind := resource.TargetRef{Kind: resource.KindServer, Id: "s-1"}
	level, err = svc.Resolve(context.Background(), plain, otherKind, resource.PermissionNone)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if level != resource.PermissionNone {
		t.Errorf("level = %s, want None for unrelated kind", level)
	}
}

func TestPermissionService_MaxOfAllSources(t *testing.T) {
	store := newTestStore()
	target := resource.TargetRef{Kind: resource.KindServer, Id: "s-1"}
	store.grants = append(store.grants, permission.Grant{
		Id:        "g-1",
		Principal: permission.PrincipalUser,
		UserOrID:  "u-1",
		Target:    target,
		Level:     resource.PermissionRead,
	})
	store.kindAllGrants = append(store.kindAllGrants, permission.KindAllGrant{
		UserId: "u-1",
		Kind:   resource.KindServer,
		Level:  resource.PermissionExecute,
	})
	svc := NewPermissionService(store, false)

	plain := &user.User{ID: "u-1"}
	level, err := svc.Resolve(context.Background(), plain, target, resource.PermissionNone)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if level != resource.PermissionExecute {
		t.Errorf("level = %s, want Execute (max of Read grant and Execute kind-all)", level)
	}
}

func TestPermissionService_RequireLevel_Forbidden(t *testing.T) {
	store := newTestStore()
	svc := NewPermissionService(store, false)

	plain := &user.User{ID: "u-1"}
	target := resource.TargetRef{Kind: resource.KindServer, Id: "s-1"}

	err := svc.RequireLevel(context.Background(), plain, target, resource.PermissionNone, resource.PermissionWrite)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden", err)
	}
}

func TestPermissionService_RequireLevel_Satisfied(t *testing.T) {
	store := newTestStore()
	svc := NewPermissionService(store, false)

	admin := &user.User{ID: "u-admin", SuperAdmin: true}
	target := resource.TargetRef{Kind: resource.KindServer, Id: "s-1"}

	if err := svc.RequireLevel(context.Background(), admin, target, resource.PermissionNone, resource.PermissionWrite); err != nil {
		t.Errorf("RequireLevel() error = %v, want nil", err)
	}
}

func TestRequireAdmin(t *testing.T) {
	plain := &user.User{ID: "u-1"}
	if err := RequireAdmin(plain); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden for plain user", err)
	}

	admin := &user.User{ID: "u-2", Admin: true}
	if err := RequireAdmin(admin); err != nil {
		t.Errorf("err = %v, want nil for admin", err)
	}
}

func TestRequireSuperAdmin(t *testing.T) {
	admin := &user.User{ID: "u-1", Admin: true}
	if err := RequireSuperAdmin(admin); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("err = %v, want ErrForbidden for plain admin", err)
	}

	super := &user.User{ID: "u-2", SuperAdmin: true}
	if err := RequireSuperAdmin(super); err != nil {
		t.Errorf("err = %v, want nil for super_admin", err)
	}
}
