package migration

import (
	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/haulboard/gatehouse/internal/audit/domain"
	"github.com/haulboard/gatehouse/internal/config"
	identitydomain "github.com/haulboard/gatehouse/internal/identity/domain"
	impersonationdomain "github.com/haulboard/gatehouse/internal/impersonation/domain"
	rolloutdomain "github.com/haulboard/gatehouse/internal/rollout/domain"
	"github.com/haulboard/gatehouse/internal/seed"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
	tenantevent "github.com/haulboard/gatehouse/internal/tenant/event"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, node *snowflake.Node, holder *config.FlagCatalogHolder, log *zap.Logger) error {
		if conn.Dialector.Name() == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-postgres stores (sqlite in dev) get the schema without the
			// exclusion constraint; the service-level pre-check still holds
			// the single-active-session invariant there.
			if err := conn.AutoMigrate(
				&identitydomain.User{},
				&identitydomain.AccessToken{},
				&tenantdomain.Tenant{},
				&tenantdomain.Membership{},
				&tenantevent.PlatformEvent{},
				&rolloutdomain.FeatureFlag{},
				&rolloutdomain.ReleaseChannelDefault{},
				&rolloutdomain.TenantOverride{},
				&impersonationdomain.ImpersonationSession{},
				&auditdomain.AuditEntry{},
			); err != nil {
				return err
			}
		}

		if err := seed.EnsureBootstrapOperator(conn, node, cfg); err != nil {
			return err
		}
		if err := seed.EnsureFlagCatalog(conn, node, holder.Get()); err != nil {
			return err
		}

		// Catalog hot reloads seed newly shipped keys without a restart.
		holder.OnChange(func(cat config.FlagCatalog) {
			if err := seed.EnsureFlagCatalog(conn, node, cat); err != nil {
				log.Error("flag catalog reseed failed", zap.Error(err))
			}
		})

		return nil
	}),
)
