// Package domain contains core types for the identity service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User represents an operator or tenant-side account.
type User struct {
	ID              snowflake.ID `gorm:"primaryKey"`
	Email           string       `gorm:"type:text;not null;uniqueIndex:ux_users_email"`
	Name            string       `gorm:"type:text;not null"`
	PasswordHash    *string      `gorm:"column:password_hash;type:text"`
	IsPlatformAdmin bool         `gorm:"column:is_platform_admin;not null;default:false"`
	Status          UserStatus   `gorm:"type:text;not null;default:'active'"`
	CreatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt       time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// AccessToken is a persisted bearer credential. Only the sha256 hash of the
// issued token is stored.
type AccessToken struct {
	ID         snowflake.ID   `gorm:"primaryKey"`
	UserID     snowflake.ID   `gorm:"column:user_id;not null;index"`
	TokenHash  string         `gorm:"column:token_hash;type:text;not null;uniqueIndex:ux_access_tokens_hash"`
	Scopes     pq.StringArray `gorm:"type:text[];not null"`
	ExpiresAt  time.Time      `gorm:"column:expires_at;not null;index"`
	RevokedAt  *time.Time     `gorm:"column:revoked_at"`
	CreatedAt  time.Time      `gorm:"column:created_at;not null;default:CURRENT_TIMESTAMP"`
	LastSeenAt time.Time      `gorm:"column:last_seen_at;not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AccessToken) TableName() string { return "access_tokens" }
