package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type EntryCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	TenantID      *snowflake.ID
	Action        string
	ChangedBy     *snowflake.ID
	FeatureFlagID *snowflake.ID
	StartAt       *time.Time
	EndAt         *time.Time
	Cursor        *EntryCursor
	Limit         int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditEntry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditEntry, error)
}
