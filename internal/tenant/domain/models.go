// Package domain contains persistence models for the tenant directory.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ReleaseChannel is the rollout ring a tenant belongs to.
type ReleaseChannel string

const (
	ChannelInternal ReleaseChannel = "internal"
	ChannelPilot    ReleaseChannel = "pilot"
	ChannelGeneral  ReleaseChannel = "general"
)

// Valid reports whether the channel is one of the known rings.
func (c ReleaseChannel) Valid() bool {
	switch c {
	case ChannelInternal, ChannelPilot, ChannelGeneral:
		return true
	}
	return false
}

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

type MembershipStatus string

const (
	MembershipStatusActive   MembershipStatus = "active"
	MembershipStatusDisabled MembershipStatus = "disabled"
)

// Tenant represents one customer organization on the platform.
type Tenant struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name           string            `gorm:"type:text;not null" json:"name"`
	Slug           string            `gorm:"type:text;not null;uniqueIndex:ux_tenants_slug" json:"slug"`
	ReleaseChannel ReleaseChannel    `gorm:"column:release_channel;type:text;not null;default:'general'" json:"release_channel"`
	Status         TenantStatus      `gorm:"type:text;not null;default:'active'" json:"status"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// Membership represents a user's role within a tenant.
type Membership struct {
	ID        snowflake.ID     `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID     `gorm:"not null;index;uniqueIndex:ux_tenant_user,priority:1" json:"tenant_id"`
	UserID    snowflake.ID     `gorm:"not null;index;uniqueIndex:ux_tenant_user,priority:2" json:"user_id"`
	Role      string           `gorm:"type:text;not null" json:"role"`
	Status    MembershipStatus `gorm:"type:text;not null;default:'active'" json:"status"`
	CreatedAt time.Time        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Membership) TableName() string { return "tenant_members" }
