package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/haulboard/gatehouse/internal/config"
	identitydomain "github.com/haulboard/gatehouse/internal/identity/domain"
	"github.com/haulboard/gatehouse/internal/identity/password"
	rolloutdomain "github.com/haulboard/gatehouse/internal/rollout/domain"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
	"gorm.io/gorm"
)

// EnsureBootstrapOperator creates the first platform-admin account from the
// bootstrap env vars. A no-op when the vars are unset or the account already
// exists, so restarts are safe.
func EnsureBootstrapOperator(db *gorm.DB, node *snowflake.Node, cfg config.Config) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	email := strings.ToLower(strings.TrimSpace(cfg.BootstrapOperatorEmail))
	if email == "" || strings.TrimSpace(cfg.BootstrapOperatorPassword) == "" {
		return nil
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user identitydomain.User
		err := tx.Where("email = ?", email).First(&user).Error
		if err == nil {
			if user.IsPlatformAdmin {
				return nil
			}
			// Promote an existing account rather than fail the boot.
			return tx.Model(&identitydomain.User{}).
				Where("id = ?", user.ID).
				Update("is_platform_admin", true).Error
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := password.Hash(cfg.BootstrapOperatorPassword)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		user = identitydomain.User{
			ID:              node.Generate(),
			Email:           email,
			Name:            strings.TrimSpace(cfg.BootstrapOperatorName),
			PasswordHash:    &hashed,
			IsPlatformAdmin: true,
			Status:          identitydomain.UserStatusActive,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		return tx.Create(&user).Error
	})
}

// EnsureFlagCatalog inserts missing flag rows and their shipped channel
// defaults. Existing rows are never touched: once an operator owns a
// default, catalog reloads must not claw it back.
func EnsureFlagCatalog(db *gorm.DB, node *snowflake.Node, catalog config.FlagCatalog) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, spec := range catalog.Flags {
			key := strings.TrimSpace(spec.Key)
			if key == "" {
				continue
			}

			var flag rolloutdomain.FeatureFlag
			err := tx.Where("key = ?", key).First(&flag).Error
			if err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
				now := time.Now().UTC()
				flag = rolloutdomain.FeatureFlag{
					ID:        node.Generate(),
					Key:       key,
					Name:      strings.TrimSpace(spec.Name),
					CreatedAt: now,
					UpdatedAt: now,
				}
				if err := tx.Create(&flag).Error; err != nil {
					return err
				}
			}

			for channel, enabled := range spec.Channels {
				ring := tenantdomain.ReleaseChannel(strings.TrimSpace(channel))
				if !ring.Valid() {
					continue
				}

				var existing rolloutdomain.ReleaseChannelDefault
				err := tx.Where("feature_flag_id = ? AND release_channel = ?", flag.ID, ring).
					First(&existing).Error
				if err == nil {
					continue
				}
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}

				now := time.Now().UTC()
				row := rolloutdomain.ReleaseChannelDefault{
					ID:            node.Generate(),
					FeatureFlagID: flag.ID,
					Channel:       ring,
					Enabled:       enabled,
					CreatedAt:     now,
					UpdatedAt:     now,
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}
