package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
	"gorm.io/gorm"
)

type ListFlagsFilter struct {
	Query   string
	SortBy  string
	OrderBy string
}

type Repository interface {
	CreateFlag(ctx context.Context, db *gorm.DB, flag *FeatureFlag) error
	FindFlagByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*FeatureFlag, error)
	FindFlagByKey(ctx context.Context, db *gorm.DB, key string) (*FeatureFlag, error)
	ListFlags(ctx context.Context, db *gorm.DB, filter ListFlagsFilter) ([]FeatureFlag, error)

	FindChannelDefault(ctx context.Context, db *gorm.DB, flagID snowflake.ID, channel tenantdomain.ReleaseChannel) (*ReleaseChannelDefault, error)
	ListChannelDefaults(ctx context.Context, db *gorm.DB, flagIDs []snowflake.ID) ([]ReleaseChannelDefault, error)
	UpsertChannelDefault(ctx context.Context, db *gorm.DB, def *ReleaseChannelDefault) error

	FindTenantOverride(ctx context.Context, db *gorm.DB, tenantID, flagID snowflake.ID) (*TenantOverride, error)
	ListTenantOverrides(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]TenantOverride, error)
	UpsertTenantOverride(ctx context.Context, db *gorm.DB, override *TenantOverride) error
	DeleteTenantOverride(ctx context.Context, db *gorm.DB, tenantID, flagID snowflake.ID) error
}
