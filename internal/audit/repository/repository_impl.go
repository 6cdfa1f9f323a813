package repository

import (
	"context"
	"strings"

	"github.com/haulboard/gatehouse/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditEntry) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_entries (
			id, feature_flag_id, action, changed_by, tenant_id,
			old_value, new_value, metadata, ip_address, user_agent, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.FeatureFlagID,
		entry.Action,
		entry.ChangedBy,
		entry.TenantID,
		entry.OldValue,
		entry.NewValue,
		entry.Metadata,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt,
	).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditEntry, error) {
	var entries []*domain.AuditEntry
	stmt := db.WithContext(ctx).Model(&domain.AuditEntry{})

	if filter.TenantID != nil {
		stmt = stmt.Where("tenant_id = ?", *filter.TenantID)
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		stmt = stmt.Where("action = ?", action)
	}
	if filter.ChangedBy != nil {
		stmt = stmt.Where("changed_by = ?", *filter.ChangedBy)
	}
	if filter.FeatureFlagID != nil {
		stmt = stmt.Where("feature_flag_id = ?", *filter.FeatureFlagID)
	}
	if filter.StartAt != nil {
		stmt = stmt.Where("created_at >= ?", filter.StartAt.UTC())
	}
	if filter.EndAt != nil {
		stmt = stmt.Where("created_at <= ?", filter.EndAt.UTC())
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

	if err := stmt.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
