package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type TenantCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Query          string
	ReleaseChannel ReleaseChannel
	Status         TenantStatus
	Cursor         *TenantCursor
	Limit          int
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, tenant Tenant) error
	AddMember(ctx context.Context, member Membership) error
	FindByID(ctx context.Context, id snowflake.ID) (*Tenant, error)
	List(ctx context.Context, filter ListFilter) ([]*Tenant, error)
	UpdateReleaseChannel(ctx context.Context, id snowflake.ID, channel ReleaseChannel, updatedAt time.Time) error
	ListMembers(ctx context.Context, tenantID snowflake.ID) ([]Membership, error)
	FindMembership(ctx context.Context, tenantID, userID snowflake.ID) (*Membership, error)
}
