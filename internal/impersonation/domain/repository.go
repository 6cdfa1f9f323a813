package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, db *gorm.DB, session *ImpersonationSession) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*ImpersonationSession, error)

	// FindActive returns the session for (admin, tenant) that is not revoked
	// and not yet expired at now, or nil.
	FindActive(ctx context.Context, db *gorm.DB, adminID, tenantID snowflake.ID, now time.Time) (*ImpersonationSession, error)

	// ListActive returns the admin's active sessions joined with tenant
	// display fields, newest first.
	ListActive(ctx context.Context, db *gorm.DB, adminID snowflake.ID, now time.Time) ([]ActiveSession, error)

	MarkRevoked(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
