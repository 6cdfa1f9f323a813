package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/haulboard/gatehouse/internal/authorization"
	impersonationdomain "github.com/haulboard/gatehouse/internal/impersonation/domain"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyAccessError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "nil",
			err:  nil,
			want: OutcomeOK,
		},
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: AccessErrorTypeDeadline,
		},
		{
			name: "platform_admin_required",
			err:  authorization.ErrPlatformAdminRequired,
			want: AccessErrorTypeAuthorization,
		},
		{
			name: "reason_too_short",
			err:  impersonationdomain.ErrReasonTooShort,
			want: AccessErrorTypeValidation,
		},
		{
			name: "tenant_not_found",
			err:  tenantdomain.ErrTenantNotFound,
			want: AccessErrorTypeNotFound,
		},
		{
			name: "active_session_exists",
			err:  impersonationdomain.ErrActiveSessionExists,
			want: AccessErrorTypeConflict,
		},
		{
			name: "exclusion_violation",
			err:  &pgconn.PgError{Code: "23P01"},
			want: AccessErrorTypeConflict,
		},
		{
			name: "duplicate_key",
			err:  gorm.ErrDuplicatedKey,
			want: AccessErrorTypeConflict,
		},
		{
			name: "invalid_transaction",
			err:  gorm.ErrInvalidTransaction,
			want: AccessErrorTypeDB,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: AccessErrorTypeUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyAccessError(tc.err); got != tc.want {
				t.Fatalf("expected outcome %q, got %q", tc.want, got)
			}
		})
	}
}

func TestIncRolloutMutation(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newAccessMetrics(registry, Config{
		ServiceName: "gatehouse",
		Environment: "test",
	})

	metrics.IncRolloutMutation("channel_default_change", nil)
	metrics.IncRolloutMutation("tenant_override_change", tenantdomain.ErrTenantNotFound)

	if got := testutil.ToFloat64(metrics.rolloutMutations.WithLabelValues("channel_default_change", OutcomeOK)); got != 1 {
		t.Fatalf("expected ok count 1, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.rolloutMutations.WithLabelValues("tenant_override_change", AccessErrorTypeNotFound)); got != 1 {
		t.Fatalf("expected not_found count 1, got %v", got)
	}
}

func TestIncAuditWriteFailure(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := newAccessMetrics(registry, Config{
		ServiceName: "gatehouse",
		Environment: "test",
	})

	metrics.IncAuditWriteFailure()
	metrics.IncAuditWriteFailure()

	if got := testutil.ToFloat64(metrics.auditWriteFailures); got != 2 {
		t.Fatalf("expected failure count 2, got %v", got)
	}
}
