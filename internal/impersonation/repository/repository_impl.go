package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/haulboard/gatehouse/internal/impersonation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Create(ctx context.Context, db *gorm.DB, session *domain.ImpersonationSession) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO impersonation_sessions (
			id, admin_user_id, tenant_id, reason, created_at, expires_at, revoked_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		session.ID,
		session.AdminUserID,
		session.TenantID,
		session.Reason,
		session.CreatedAt,
		session.ExpiresAt,
		session.RevokedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.ImpersonationSession, error) {
	var session domain.ImpersonationSession
	err := db.WithContext(ctx).Raw(
		`SELECT id, admin_user_id, tenant_id, reason, created_at, expires_at, revoked_at
		 FROM impersonation_sessions WHERE id = ?`,
		id,
	).Scan(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, nil
	}
	return &session, nil
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, adminID, tenantID snowflake.ID, now time.Time) (*domain.ImpersonationSession, error) {
	var session domain.ImpersonationSession
	err := db.WithContext(ctx).Raw(
		`SELECT id, admin_user_id, tenant_id, reason, created_at, expires_at, revoked_at
		 FROM impersonation_sessions
		 WHERE admin_user_id = ? AND tenant_id = ? AND revoked_at IS NULL AND expires_at > ?
		 ORDER BY created_at DESC
		 LIMIT 1`,
		adminID,
		tenantID,
		now,
	).Scan(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, nil
	}
	return &session, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, adminID snowflake.ID, now time.Time) ([]domain.ActiveSession, error) {
	var items []domain.ActiveSession
	err := db.WithContext(ctx).Raw(
		`SELECT s.id, s.tenant_id, t.name AS tenant_name, t.slug AS tenant_slug,
		        s.reason, s.created_at, s.expires_at
		 FROM impersonation_sessions s
		 JOIN tenants t ON t.id = s.tenant_id
		 WHERE s.admin_user_id = ? AND s.revoked_at IS NULL AND s.expires_at > ?
		 ORDER BY s.created_at DESC`,
		adminID,
		now,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkRevoked(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE impersonation_sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`,
		at,
		id,
	).Error
}
