package authorization

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Principal is the resolved caller identity for a single request. It is
// built from a fresh user read at credential resolution and never cached
// across requests.
type Principal struct {
	UserID          snowflake.ID
	IsPlatformAdmin bool
}

const (
	PermTenantView          = "tenant.view"
	PermTenantManageMembers = "tenant.manage_members"
	PermDispatchView        = "dispatch.view"
	PermDispatchAssign      = "dispatch.assign"
	PermFleetView           = "fleet.view"
	PermFleetManage         = "fleet.manage"
	PermRolloutView         = "rollout.view"
	PermAuditLogView        = "audit_log.view"
)

var (
	ErrForbidden             = errors.New("forbidden")
	ErrPlatformAdminRequired = errors.New("platform_admin_required")
	ErrInvalidPrincipal      = errors.New("invalid_principal")
	ErrInvalidTenant         = errors.New("invalid_tenant")
	ErrInvalidPermission     = errors.New("invalid_permission")
	ErrInvalidRole           = errors.New("invalid_role")
)

type Service interface {
	// CanAccessTenant reports whether the principal may touch the tenant's
	// data: platform admins always may, everyone else needs an active
	// membership. Membership state is read fresh on every call.
	CanAccessTenant(ctx context.Context, principal Principal, tenantID snowflake.ID) (bool, error)

	// HasPermission reports whether the principal holds the permission code,
	// either through an active admin membership or through a custom-role
	// grant in the policy store.
	HasPermission(ctx context.Context, principal Principal, permission string) (bool, error)

	// RequireTenantAccess is CanAccessTenant failing closed with
	// ErrForbidden.
	RequireTenantAccess(ctx context.Context, principal Principal, tenantID snowflake.ID) error

	// RequirePermission is HasPermission failing closed with ErrForbidden.
	RequirePermission(ctx context.Context, principal Principal, permission string) error

	// RequirePlatformAdmin fails closed with ErrPlatformAdminRequired. Every
	// rollout mutation and impersonation lifecycle operation goes through
	// this gate.
	RequirePlatformAdmin(ctx context.Context, principal Principal) (Principal, error)

	// GrantRole links a user to a custom role in the policy store.
	GrantRole(ctx context.Context, userID snowflake.ID, role string) error

	// RevokeRole removes a custom-role link. Removing an absent link is not
	// an error.
	RevokeRole(ctx context.Context, userID snowflake.ID, role string) error

	// GrantPermission maps a custom role to a permission code.
	GrantPermission(ctx context.Context, role string, permission string) error

	// RevokePermission removes a role→permission mapping.
	RevokePermission(ctx context.Context, role string, permission string) error
}
