package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
)

// FeatureFlag is a cataloged capability key. Rows are seeded from the flag
// catalog file and are reference data: rollout state lives in channel
// defaults and tenant overrides, never on the flag itself.
type FeatureFlag struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	Key         string       `gorm:"type:text;not null;uniqueIndex:ux_feature_flags_key"`
	Name        string       `gorm:"type:text;not null"`
	Description *string      `gorm:"type:text"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (FeatureFlag) TableName() string { return "feature_flags" }

// ReleaseChannelDefault enables a flag for every tenant riding a channel,
// unless a tenant override says otherwise.
type ReleaseChannelDefault struct {
	ID            snowflake.ID                `gorm:"primaryKey"`
	FeatureFlagID snowflake.ID                `gorm:"column:feature_flag_id;not null;index;uniqueIndex:ux_channel_defaults_flag_channel,priority:1"`
	Channel       tenantdomain.ReleaseChannel `gorm:"column:release_channel;type:text;not null;uniqueIndex:ux_channel_defaults_flag_channel,priority:2"`
	Enabled       bool                        `gorm:"not null"`
	CreatedAt     time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ReleaseChannelDefault) TableName() string { return "release_channel_defaults" }

// TenantOverride pins a flag for one tenant. Presence always wins over the
// channel default.
type TenantOverride struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	TenantID      snowflake.ID `gorm:"column:tenant_id;not null;index;uniqueIndex:ux_tenant_overrides_tenant_flag,priority:1"`
	FeatureFlagID snowflake.ID `gorm:"column:feature_flag_id;not null;index;uniqueIndex:ux_tenant_overrides_tenant_flag,priority:2"`
	Enabled       bool         `gorm:"not null"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TenantOverride) TableName() string { return "tenant_overrides" }
