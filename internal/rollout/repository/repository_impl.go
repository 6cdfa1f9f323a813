package repository

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/haulboard/gatehouse/internal/rollout/domain"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
	"github.com/haulboard/gatehouse/pkg/db/option"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) CreateFlag(ctx context.Context, db *gorm.DB, flag *domain.FeatureFlag) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO feature_flags (
			id, key, name, description, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		flag.ID,
		flag.Key,
		flag.Name,
		flag.Description,
		flag.CreatedAt,
		flag.UpdatedAt,
	).Error
}

func (r *repo) FindFlagByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.FeatureFlag, error) {
	var flag domain.FeatureFlag
	err := db.WithContext(ctx).Raw(
		`SELECT id, key, name, description, created_at, updated_at
		 FROM feature_flags WHERE id = ?`,
		id,
	).Scan(&flag).Error
	if err != nil {
		return nil, err
	}
	if flag.ID == 0 {
		return nil, nil
	}
	return &flag, nil
}

func (r *repo) FindFlagByKey(ctx context.Context, db *gorm.DB, key string) (*domain.FeatureFlag, error) {
	var flag domain.FeatureFlag
	err := db.WithContext(ctx).Raw(
		`SELECT id, key, name, description, created_at, updated_at
		 FROM feature_flags WHERE key = ?`,
		key,
	).Scan(&flag).Error
	if err != nil {
		return nil, err
	}
	if flag.ID == 0 {
		return nil, nil
	}
	return &flag, nil
}

func (r *repo) ListFlags(ctx context.Context, db *gorm.DB, filter domain.ListFlagsFilter) ([]domain.FeatureFlag, error) {
	var items []domain.FeatureFlag
	stmt := db.WithContext(ctx).Model(&domain.FeatureFlag{})

	if query := strings.TrimSpace(filter.Query); query != "" {
		pattern := "%" + strings.ToLower(query) + "%"
		stmt = stmt.Where("LOWER(key) LIKE ? OR LOWER(name) LIKE ?", pattern, pattern)
	}

	stmt = option.WithSortBy(option.WithQuerySortBy(filter.SortBy, filter.OrderBy, map[string]bool{
		"key":        true,
		"name":       true,
		"created_at": true,
	})).Apply(stmt)

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindChannelDefault(ctx context.Context, db *gorm.DB, flagID snowflake.ID, channel tenantdomain.ReleaseChannel) (*domain.ReleaseChannelDefault, error) {
	var def domain.ReleaseChannelDefault
	err := db.WithContext(ctx).Raw(
		`SELECT id, feature_flag_id, release_channel, enabled, created_at, updated_at
		 FROM release_channel_defaults WHERE feature_flag_id = ? AND release_channel = ?`,
		flagID,
		channel,
	).Scan(&def).Error
	if err != nil {
		return nil, err
	}
	if def.ID == 0 {
		return nil, nil
	}
	return &def, nil
}

func (r *repo) ListChannelDefaults(ctx context.Context, db *gorm.DB, flagIDs []snowflake.ID) ([]domain.ReleaseChannelDefault, error) {
	if len(flagIDs) == 0 {
		return nil, nil
	}
	var items []domain.ReleaseChannelDefault
	err := db.WithContext(ctx).Raw(
		`SELECT id, feature_flag_id, release_channel, enabled, created_at, updated_at
		 FROM release_channel_defaults WHERE feature_flag_id IN ?`,
		flagIDs,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpsertChannelDefault(ctx context.Context, db *gorm.DB, def *domain.ReleaseChannelDefault) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO release_channel_defaults (
			id, feature_flag_id, release_channel, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (feature_flag_id, release_channel)
		DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`,
		def.ID,
		def.FeatureFlagID,
		def.Channel,
		def.Enabled,
		def.CreatedAt,
		def.UpdatedAt,
	).Error
}

func (r *repo) FindTenantOverride(ctx context.Context, db *gorm.DB, tenantID, flagID snowflake.ID) (*domain.TenantOverride, error) {
	var override domain.TenantOverride
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, feature_flag_id, enabled, created_at, updated_at
		 FROM tenant_overrides WHERE tenant_id = ? AND feature_flag_id = ?`,
		tenantID,
		flagID,
	).Scan(&override).Error
	if err != nil {
		return nil, err
	}
	if override.ID == 0 {
		return nil, nil
	}
	return &override, nil
}

func (r *repo) ListTenantOverrides(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]domain.TenantOverride, error) {
	var items []domain.TenantOverride
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, feature_flag_id, enabled, created_at, updated_at
		 FROM tenant_overrides WHERE tenant_id = ?`,
		tenantID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) UpsertTenantOverride(ctx context.Context, db *gorm.DB, override *domain.TenantOverride) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tenant_overrides (
			id, tenant_id, feature_flag_id, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, feature_flag_id)
		DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`,
		override.ID,
		override.TenantID,
		override.FeatureFlagID,
		override.Enabled,
		override.CreatedAt,
		override.UpdatedAt,
	).Error
}

func (r *repo) DeleteTenantOverride(ctx context.Context, db *gorm.DB, tenantID, flagID snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM tenant_overrides WHERE tenant_id = ? AND feature_flag_id = ?`,
		tenantID,
		flagID,
	).Error
}
