package logger

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

func TestQueryLevelClassification(t *testing.T) {
	cfg := GormLoggerConfig{
		Level:                gormlogger.Warn,
		SlowThreshold:        200 * time.Millisecond,
		IgnoreRecordNotFound: true,
	}

	if level, ok := queryLevel(cfg, 10*time.Millisecond, errors.New("connection reset")); !ok || level != zapcore.ErrorLevel {
		t.Fatalf("failed query should log at error, got %v ok=%v", level, ok)
	}
	if level, ok := queryLevel(cfg, 350*time.Millisecond, nil); !ok || level != zapcore.WarnLevel {
		t.Fatalf("slow query should log at warn, got %v ok=%v", level, ok)
	}
	if _, ok := queryLevel(cfg, 10*time.Millisecond, nil); ok {
		t.Fatalf("fast clean query should be suppressed below info level")
	}
	if _, ok := queryLevel(cfg, 10*time.Millisecond, gormlogger.ErrRecordNotFound); ok {
		t.Fatalf("record-not-found should be suppressed when ignored")
	}

	cfg.IgnoreRecordNotFound = false
	if level, ok := queryLevel(cfg, 10*time.Millisecond, gormlogger.ErrRecordNotFound); !ok || level != zapcore.ErrorLevel {
		t.Fatalf("record-not-found should log at error when not ignored, got %v ok=%v", level, ok)
	}

	cfg.Level = gormlogger.Silent
	if _, ok := queryLevel(cfg, time.Second, errors.New("boom")); ok {
		t.Fatalf("silent level must suppress everything")
	}
}

func TestNewGormLoggerDefaults(t *testing.T) {
	l := NewGormLogger(GormLoggerConfig{})
	if l.cfg.Level != gormlogger.Warn {
		t.Fatalf("expected default level warn, got %v", l.cfg.Level)
	}
	if l.cfg.SlowThreshold != 200*time.Millisecond {
		t.Fatalf("expected default slow threshold 200ms, got %v", l.cfg.SlowThreshold)
	}
}

func TestSQLOperation(t *testing.T) {
	cases := []struct {
		sql  string
		want string
	}{
		{"SELECT * FROM tenants WHERE id = ?", "SELECT"},
		{"insert into audit_entries (id) values (?)", "INSERT"},
		{"WITH active AS (SELECT 1) SELECT * FROM active", "SELECT"},
		{"EXPLAIN ANALYZE something", "UNKNOWN"},
		{"", "UNKNOWN"},
	}
	for _, tc := range cases {
		if got := sqlOperation(tc.sql); got != tc.want {
			t.Fatalf("sqlOperation(%q) = %q, want %q", tc.sql, got, tc.want)
		}
	}
}
