package platformmetrics

import (
	"context"
	"runtime"
	"time"

	"github.com/haulboard/gatehouse/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("platform.metrics",
	fx.Provide(func() *prometheus.Registry {
		return prometheus.NewRegistry()
	}),
	fx.Provide(NewPusher),
	fx.Provide(func(cfg config.Config, registry *prometheus.Registry, pusher Pusher, logger *zap.Logger) *PlatformMetrics {
		if !cfg.IsManaged() || !cfg.Platform.Metrics.Enabled {
			return nil
		}
		return New(registry, pusher, cfg.Platform.DeploymentID, cfg.AppVersion, logger)
	}),
	fx.Invoke(func(lc fx.Lifecycle, c *PlatformMetrics, logger *zap.Logger, db *gorm.DB) {
		if c == nil {
			return
		}

		if logger == nil {
			logger = zap.NewNop()
		}

		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				logger.Info("starting platform metrics background worker")
				go func() {
					ticker := time.NewTicker(30 * time.Minute)
					defer ticker.Stop()

					updateSystemMetrics(c)
					updateInventoryGauges(ctx, c, db)
					if err := c.Push(ctx); err != nil {
						logger.Error("initial platform metrics push failed", zap.Error(err))
					}

					for {
						select {
						case <-ticker.C:
							updateSystemMetrics(c)
							updateInventoryGauges(ctx, c, db)
							if err := c.Push(ctx); err != nil {
								logger.Error("periodic platform metrics push failed", zap.Error(err))
							}
						case <-ctx.Done():
							logger.Info("stopping platform metrics background worker")
							return
						}
					}
				}()
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}),
)

func updateSystemMetrics(c *PlatformMetrics) {
	if c == nil {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	c.SetMemoryUsage(m.Sys)
}

func updateInventoryGauges(ctx context.Context, c *PlatformMetrics, db *gorm.DB) {
	if c == nil || db == nil {
		return
	}

	var tenants int64
	if err := db.WithContext(ctx).Table("tenants").Count(&tenants).Error; err == nil {
		c.SetTenantsTotal(tenants)
	}

	now := time.Now().UTC()
	var sessions int64
	err := db.WithContext(ctx).
		Table("impersonation_sessions").
		Where("revoked_at IS NULL AND expires_at > ?", now).
		Count(&sessions).Error
	if err == nil {
		c.SetActiveImpersonationSessions(sessions)
	}
}
