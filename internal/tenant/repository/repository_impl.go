package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/haulboard/gatehouse/internal/tenant/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, tenant domain.Tenant) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO tenants (id, name, slug, release_channel, status, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tenant.ID,
		tenant.Name,
		tenant.Slug,
		tenant.ReleaseChannel,
		tenant.Status,
		tenant.Metadata,
		tenant.CreatedAt,
		tenant.UpdatedAt,
	).Error
}

func (r *repository) AddMember(ctx context.Context, member domain.Membership) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO tenant_members (id, tenant_id, user_id, role, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		member.ID,
		member.TenantID,
		member.UserID,
		member.Role,
		member.Status,
		member.CreatedAt,
	).Error
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).First(&tenant, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *repository) List(ctx context.Context, filter domain.ListFilter) ([]*domain.Tenant, error) {
	var tenants []*domain.Tenant
	stmt := r.db.WithContext(ctx).Model(&domain.Tenant{})

	if query := strings.TrimSpace(filter.Query); query != "" {
		pattern := "%" + strings.ToLower(query) + "%"
		stmt = stmt.Where("LOWER(name) LIKE ? OR LOWER(slug) LIKE ?", pattern, pattern)
	}
	if filter.ReleaseChannel != "" {
		stmt = stmt.Where("release_channel = ?", filter.ReleaseChannel)
	}
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (r *repository) UpdateReleaseChannel(ctx context.Context, id snowflake.ID, channel domain.ReleaseChannel, updatedAt time.Time) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE tenants SET release_channel = ?, updated_at = ? WHERE id = ?`,
		channel,
		updatedAt,
		id,
	).Error
}

func (r *repository) ListMembers(ctx context.Context, tenantID snowflake.ID) ([]domain.Membership, error) {
	var members []domain.Membership
	err := r.db.WithContext(ctx).
		Model(&domain.Membership{}).
		Where("tenant_id = ?", tenantID).
		Order("created_at asc, id asc").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *repository) FindMembership(ctx context.Context, tenantID, userID snowflake.ID) (*domain.Membership, error) {
	var member domain.Membership
	err := r.db.WithContext(ctx).
		First(&member, "tenant_id = ? AND user_id = ?", tenantID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &member, nil
}
