package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/haulboard/gatehouse/internal/authorization"
	impersonationdomain "github.com/haulboard/gatehouse/internal/impersonation/domain"
	rolloutdomain "github.com/haulboard/gatehouse/internal/rollout/domain"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	AccessErrorTypeValidation    = "validation"
	AccessErrorTypeNotFound      = "not_found"
	AccessErrorTypeConflict      = "conflict"
	AccessErrorTypeAuthorization = "authorization"
	AccessErrorTypeDB            = "db"
	AccessErrorTypeDeadline      = "deadline_exceeded"
	AccessErrorTypeUnknown       = "unknown"
)

const (
	OutcomeOK     = "ok"
	OutcomeDenied = "denied"
	OutcomeError  = "error"
)

// AccessMetrics captures privileged-path health signals for platform SLOs.
type AccessMetrics struct {
	impersonationStarts      *prometheus.CounterVec
	impersonationValidations *prometheus.CounterVec
	impersonationRevokes     *prometheus.CounterVec
	rolloutMutations         *prometheus.CounterVec
	flagResolutions          *prometheus.CounterVec
	authzDenials             *prometheus.CounterVec
	auditWriteFailures       prometheus.Counter
}

var (
	accessMetricsOnce sync.Once
	accessMetrics     *AccessMetrics
)

// Access returns the singleton access metrics registry.
func Access() *AccessMetrics {
	return AccessWithConfig(Config{})
}

// AccessWithConfig returns the singleton access metrics registry using config labels.
func AccessWithConfig(cfg Config) *AccessMetrics {
	accessMetricsOnce.Do(func() {
		accessMetrics = newAccessMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return accessMetrics
}

// ResetAccessMetricsForTest resets the access metrics singleton for tests.
func ResetAccessMetricsForTest() {
	accessMetricsOnce = sync.Once{}
	accessMetrics = nil
}

func newAccessMetrics(registerer prometheus.Registerer, cfg Config) *AccessMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "gatehouse"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	impersonationStarts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "gatehouse_impersonation_starts_total",
		Help:        "Impersonation session starts by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	impersonationValidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "gatehouse_impersonation_validations_total",
		Help:        "Impersonation session validations by result reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	impersonationRevokes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "gatehouse_impersonation_revokes_total",
		Help:        "Impersonation session revocations by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	rolloutMutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "gatehouse_rollout_rule_changes_total",
		Help:        "Rollout rule mutations by action and outcome.",
		ConstLabels: constLabels,
	}, []string{"action", "outcome"})
	flagResolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "gatehouse_flag_resolutions_total",
		Help:        "Feature flag resolutions by winning layer.",
		ConstLabels: constLabels,
	}, []string{"source"})
	authzDenials := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "gatehouse_authz_denials_total",
		Help:        "Authorization denials by check for tenancy-boundary triage.",
		ConstLabels: constLabels,
	}, []string{"check"})
	auditWriteFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "gatehouse_audit_write_failures_total",
		Help:        "Audit entries that could not be persisted; trail gaps to investigate.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		impersonationStarts,
		impersonationValidations,
		impersonationRevokes,
		rolloutMutations,
		flagResolutions,
		authzDenials,
		auditWriteFailures,
	)

	return &AccessMetrics{
		impersonationStarts:      impersonationStarts,
		impersonationValidations: impersonationValidations,
		impersonationRevokes:     impersonationRevokes,
		rolloutMutations:         rolloutMutations,
		flagResolutions:          flagResolutions,
		authzDenials:             authzDenials,
		auditWriteFailures:       auditWriteFailures,
	}
}

// IncImpersonationStart counts session starts by outcome.
func (m *AccessMetrics) IncImpersonationStart(outcome string) {
	if m == nil || m.impersonationStarts == nil {
		return
	}
	m.impersonationStarts.WithLabelValues(normalizeOutcome(outcome)).Inc()
}

// IncImpersonationValidation counts validations by result reason.
func (m *AccessMetrics) IncImpersonationValidation(reason string) {
	if m == nil || m.impersonationValidations == nil {
		return
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "valid"
	}
	m.impersonationValidations.WithLabelValues(reason).Inc()
}

// IncImpersonationRevoke counts revocations by outcome.
func (m *AccessMetrics) IncImpersonationRevoke(outcome string) {
	if m == nil || m.impersonationRevokes == nil {
		return
	}
	m.impersonationRevokes.WithLabelValues(normalizeOutcome(outcome)).Inc()
}

// IncRolloutMutation counts rollout mutations, classifying err for the outcome.
func (m *AccessMetrics) IncRolloutMutation(action string, err error) {
	if m == nil || m.rolloutMutations == nil {
		return
	}
	outcome := OutcomeOK
	if err != nil {
		outcome = ClassifyAccessError(err)
	}
	m.rolloutMutations.WithLabelValues(strings.TrimSpace(action), outcome).Inc()
}

// IncFlagResolution counts resolutions by the layer that decided the value.
func (m *AccessMetrics) IncFlagResolution(source string) {
	if m == nil || m.flagResolutions == nil {
		return
	}
	m.flagResolutions.WithLabelValues(strings.TrimSpace(source)).Inc()
}

// IncAuthzDenial counts denials by check name.
func (m *AccessMetrics) IncAuthzDenial(check string) {
	if m == nil || m.authzDenials == nil {
		return
	}
	m.authzDenials.WithLabelValues(strings.TrimSpace(check)).Inc()
}

// IncAuditWriteFailure counts dropped audit entries.
func (m *AccessMetrics) IncAuditWriteFailure() {
	if m == nil || m.auditWriteFailures == nil {
		return
	}
	m.auditWriteFailures.Inc()
}

func normalizeOutcome(outcome string) string {
	outcome = strings.TrimSpace(outcome)
	if outcome == "" {
		return OutcomeOK
	}
	return outcome
}

// ClassifyAccessError maps an error to a low-cardinality outcome label.
func ClassifyAccessError(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return AccessErrorTypeDeadline
	case isAuthorizationError(err):
		return AccessErrorTypeAuthorization
	case isValidationError(err):
		return AccessErrorTypeValidation
	case isNotFoundError(err):
		return AccessErrorTypeNotFound
	case isConflictError(err):
		return AccessErrorTypeConflict
	case isDBError(err):
		return AccessErrorTypeDB
	default:
		return AccessErrorTypeUnknown
	}
}

func isAuthorizationError(err error) bool {
	return errors.Is(err, authorization.ErrForbidden) ||
		errors.Is(err, authorization.ErrPlatformAdminRequired) ||
		errors.Is(err, authorization.ErrInvalidPrincipal) ||
		errors.Is(err, impersonationdomain.ErrNotSessionOwner)
}

func isValidationError(err error) bool {
	return errors.Is(err, tenantdomain.ErrInvalidReleaseChannel) ||
		errors.Is(err, impersonationdomain.ErrReasonTooShort) ||
		errors.Is(err, authorization.ErrInvalidTenant) ||
		errors.Is(err, authorization.ErrInvalidPermission) ||
		errors.Is(err, authorization.ErrInvalidRole)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, tenantdomain.ErrTenantNotFound) ||
		errors.Is(err, rolloutdomain.ErrFlagNotFound) ||
		errors.Is(err, rolloutdomain.ErrOverrideNotFound) ||
		errors.Is(err, impersonationdomain.ErrSessionNotFound)
}

func isConflictError(err error) bool {
	return errors.Is(err, impersonationdomain.ErrActiveSessionExists) ||
		isUniqueViolation(err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505") || hasPGCode(err, "23P01")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrRegistered) ||
		errors.Is(err, gorm.ErrInvalidValue) ||
		errors.Is(err, gorm.ErrNotImplemented) ||
		errors.Is(err, gorm.ErrDryRunModeUnsupported) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
