package db

import (
	"fmt"
	"time"

	"github.com/haulboard/gatehouse/internal/config"
	obslogger "github.com/haulboard/gatehouse/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var Module = fx.Module("db",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
}

// New opens the gorm handle and applies pool settings. TranslateError is on
// so unique violations surface as gorm.ErrDuplicatedKey across dialects.
func New(p Params) (*gorm.DB, error) {
	dialector, err := Dialect(p.Config)
	if err != nil {
		return nil, err
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger: obslogger.NewGormLogger(obslogger.GormLoggerConfig{
			Level:                gormlogger.Warn,
			SlowThreshold:        time.Duration(p.Config.DBSlowQueryMS) * time.Millisecond,
			IgnoreRecordNotFound: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := gdb.Use(otelgorm.NewPlugin()); err != nil {
		return nil, fmt.Errorf("register query tracing: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if p.Config.DBMaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(p.Config.DBMaxIdleConn)
	}
	if p.Config.DBMaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(p.Config.DBMaxOpenConn)
	}
	if p.Config.DBConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(p.Config.DBConnMaxLifetime) * time.Minute)
	}
	if p.Config.DBConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(time.Duration(p.Config.DBConnMaxIdleTime) * time.Minute)
	}

	p.Log.Info("database connected",
		zap.String("dialect", gdb.Dialector.Name()),
		zap.String("database", p.Config.DBName),
	)

	return gdb, nil
}
