// Package permission models explicit grants and the effective-permission
// resolution rule: the max of every applicable source.
package permission

import "github.com/komodo-run/core/internal/domain/resource"

// PrincipalKind distinguishes a direct user grant from a grant inherited
// through group membership.
type PrincipalKind string

const (
	PrincipalUser  PrincipalKind = "User"
	PrincipalGroup PrincipalKind = "UserGroup"
)

// Grant is an explicit permission row: a principal (user or group) holding
// a level on a specific resource target.
type Grant struct {
	Id        string                  `json:"id"`
	Principal PrincipalKind           `json:"principal"`
	UserOrID  string                  `json:"user_or_group_id"`
	Target    resource.TargetRef      `json:"target"`
	Level     resource.BasePermission `json:"level"`
}

// KindAllGrant is a per-kind "all resources of this kind" level on a user,
// e.g. a user with KindAll[Server]=Read sees every server without a
// per-resource grant.
type KindAllGrant struct {
	UserId string       `json:"user_id"`
	Kind   resource.Kind `json:"kind"`
	Level  resource.BasePermission `json:"level"`
}
