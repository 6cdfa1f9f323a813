package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/haulboard/gatehouse/pkg/db/pagination"
)

const (
	RoleAdmin      = "admin"
	RoleDispatcher = "dispatcher"
	RoleDriver     = "driver"
	RoleViewer     = "viewer"
)

// AppRoleValid reports whether role is a built-in app role. Custom roles
// live in the permission engine, not on memberships.
func AppRoleValid(role string) bool {
	switch role {
	case RoleAdmin, RoleDispatcher, RoleDriver, RoleViewer:
		return true
	}
	return false
}

type Service interface {
	Create(ctx context.Context, req CreateTenantRequest) (*TenantResponse, error)
	GetByID(ctx context.Context, id string) (*TenantResponse, error)
	List(ctx context.Context, req ListTenantsRequest) (ListTenantsResponse, error)
	SetReleaseChannel(ctx context.Context, req SetReleaseChannelRequest) (*TenantResponse, error)
	AddMember(ctx context.Context, req AddMemberRequest) (*MemberResponse, error)
	ListMembers(ctx context.Context, tenantID string) ([]MemberResponse, error)
}

type CreateTenantRequest struct {
	Name           string `json:"name"`
	ReleaseChannel string `json:"release_channel"`
	OwnerUserID    string `json:"owner_user_id"`
}

type ListTenantsRequest struct {
	pagination.Pagination
	Query          string
	ReleaseChannel string
	Status         string
}

type ListTenantsResponse struct {
	pagination.PageInfo
	Tenants []TenantResponse `json:"tenants"`
}

type SetReleaseChannelRequest struct {
	TenantID string
	Channel  string
	ActorID  snowflake.ID
}

type AddMemberRequest struct {
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
}

type TenantResponse struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Slug           string    `json:"slug"`
	ReleaseChannel string    `json:"release_channel"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type MemberResponse struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrInvalidName           = errors.New("invalid_name")
	ErrInvalidTenant         = errors.New("invalid_tenant")
	ErrInvalidUser           = errors.New("invalid_user")
	ErrInvalidRole           = errors.New("invalid_role")
	ErrInvalidReleaseChannel = errors.New("invalid_release_channel")
	ErrInvalidPageToken      = errors.New("invalid_page_token")
	ErrTenantNotFound        = errors.New("tenant_not_found")
	ErrSlugTaken             = errors.New("slug_taken")
	ErrMemberExists          = errors.New("member_exists")
	ErrMembershipNotFound    = errors.New("membership_not_found")
)
