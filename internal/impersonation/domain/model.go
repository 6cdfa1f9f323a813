// Package domain contains the impersonation session model and contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// ImpersonationSession is a time-boxed grant letting a platform operator act
// with a tenant's context. A session is active while revoked_at is null and
// expires_at is in the future; expiry is inferred at read time, never stored.
type ImpersonationSession struct {
	ID          snowflake.ID `gorm:"primaryKey"`
	AdminUserID snowflake.ID `gorm:"column:admin_user_id;not null;index"`
	TenantID    snowflake.ID `gorm:"column:tenant_id;not null;index"`
	Reason      string       `gorm:"type:text;not null"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	ExpiresAt   time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt   *time.Time   `gorm:"column:revoked_at"`
}

// TableName sets the database table name.
func (ImpersonationSession) TableName() string { return "impersonation_sessions" }

// ActiveSession is a session row joined with the tenant it grants access to.
type ActiveSession struct {
	ID         snowflake.ID `gorm:"column:id"`
	TenantID   snowflake.ID `gorm:"column:tenant_id"`
	TenantName string       `gorm:"column:tenant_name"`
	TenantSlug string       `gorm:"column:tenant_slug"`
	Reason     string       `gorm:"column:reason"`
	CreatedAt  time.Time    `gorm:"column:created_at"`
	ExpiresAt  time.Time    `gorm:"column:expires_at"`
}
