package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/haulboard/gatehouse/internal/audit/domain"
	"github.com/haulboard/gatehouse/internal/authorization"
	"github.com/haulboard/gatehouse/internal/clock"
	"github.com/haulboard/gatehouse/internal/impersonation/domain"
	"github.com/haulboard/gatehouse/internal/observability/metrics"
	"github.com/haulboard/gatehouse/internal/platformmetrics"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
	"github.com/haulboard/gatehouse/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Tenants tenantdomain.Repository
	Audit   auditdomain.Service
	Authz   authorization.Service
	Clock   clock.Clock
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	tenants tenantdomain.Repository
	audit   auditdomain.Service
	authz   authorization.Service
	clock   clock.Clock
}

func NewService(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("impersonation.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		tenants: p.Tenants,
		audit:   p.Audit,
		authz:   p.Authz,
		clock:   p.Clock,
	}
}

func (s *service) Start(ctx context.Context, admin authorization.Principal, req domain.StartRequest) (*domain.SessionResponse, error) {
	resp, err := s.start(ctx, admin, req)
	if err != nil {
		metrics.Access().IncImpersonationStart(metrics.ClassifyAccessError(err))
		return nil, err
	}
	metrics.Access().IncImpersonationStart(metrics.OutcomeOK)
	platformmetrics.RecordImpersonationStarted(resp.TenantID)
	return resp, nil
}

func (s *service) start(ctx context.Context, admin authorization.Principal, req domain.StartRequest) (*domain.SessionResponse, error) {
	admin, err := s.authz.RequirePlatformAdmin(ctx, admin)
	if err != nil {
		return nil, err
	}

	tenantID, err := parseID(req.TenantID, domain.ErrInvalidTenant)
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(req.Reason)
	if len(reason) < domain.MinReasonLength {
		return nil, domain.ErrReasonTooShort
	}

	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, tenantdomain.ErrTenantNotFound
	}

	now := s.clock.Now()

	// The store-level exclusion constraint is the real guard against
	// concurrent starts; this read keeps the common case cheap and the
	// error message specific.
	existing, err := s.repo.FindActive(ctx, s.db, admin.UserID, tenantID, now)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrActiveSessionExists
	}

	duration := clampDuration(req.DurationMinutes)
	session := domain.ImpersonationSession{
		ID:          s.genID.Generate(),
		AdminUserID: admin.UserID,
		TenantID:    tenantID,
		Reason:      reason,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Duration(duration) * time.Minute),
	}
	if err := s.repo.Create(ctx, s.db, &session); err != nil {
		if db.IsExclusionViolation(err) || db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrActiveSessionExists
		}
		return nil, err
	}

	s.log.Info("impersonation session started",
		zap.String("session_id", session.ID.String()),
		zap.String("admin_user_id", admin.UserID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.Time("expires_at", session.ExpiresAt),
	)

	// Best-effort: the audit service logs its own failures.
	_ = s.audit.Append(ctx, auditdomain.Record{
		Action:    auditdomain.ActionImpersonationStarted,
		ChangedBy: admin.UserID,
		TenantID:  &tenantID,
		NewValue: map[string]any{
			"session_id":       session.ID.String(),
			"reason":           reason,
			"duration_minutes": duration,
			"expires_at":       session.ExpiresAt.Format(time.RFC3339),
		},
	})

	return toResponse(&session, tenant, duration), nil
}

func (s *service) Validate(ctx context.Context, admin authorization.Principal, sessionID string) (*domain.ValidateResult, error) {
	result, err := s.validate(ctx, admin, sessionID)
	if err != nil {
		return nil, err
	}
	reason := result.Reason
	if result.Valid {
		reason = "valid"
	}
	metrics.Access().IncImpersonationValidation(reason)
	return result, nil
}

func (s *service) validate(ctx context.Context, admin authorization.Principal, sessionID string) (*domain.ValidateResult, error) {
	admin, err := s.authz.RequirePlatformAdmin(ctx, admin)
	if err != nil {
		return nil, err
	}

	id, err := parseID(sessionID, domain.ErrSessionNotFound)
	if err != nil {
		return invalid(domain.ReasonSessionNotFound), nil
	}

	session, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return invalid(domain.ReasonSessionNotFound), nil
	}

	// Ownership is the strongest boundary: a non-owner learns nothing else
	// about the session, not even that it exists in a terminal state.
	if session.AdminUserID != admin.UserID {
		return invalid(domain.ReasonNotOwner), nil
	}
	if !session.ExpiresAt.After(s.clock.Now()) {
		return invalid(domain.ReasonExpired), nil
	}
	if session.RevokedAt != nil {
		return invalid(domain.ReasonRevoked), nil
	}

	tenant, err := s.tenants.FindByID(ctx, session.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return invalid(domain.ReasonTenantNotFound), nil
	}

	duration := int(session.ExpiresAt.Sub(session.CreatedAt) / time.Minute)
	return &domain.ValidateResult{
		Valid:   true,
		Session: toResponse(session, tenant, duration),
	}, nil
}

func (s *service) Revoke(ctx context.Context, admin authorization.Principal, sessionID string) error {
	tenantID, err := s.revoke(ctx, admin, sessionID)
	if err != nil {
		metrics.Access().IncImpersonationRevoke(metrics.ClassifyAccessError(err))
		return err
	}
	metrics.Access().IncImpersonationRevoke(metrics.OutcomeOK)
	if tenantID != 0 {
		platformmetrics.RecordImpersonationRevoked(tenantID.String())
	}
	return nil
}

func (s *service) revoke(ctx context.Context, admin authorization.Principal, sessionID string) (snowflake.ID, error) {
	admin, err := s.authz.RequirePlatformAdmin(ctx, admin)
	if err != nil {
		return 0, err
	}

	id, err := parseID(sessionID, domain.ErrSessionNotFound)
	if err != nil {
		return 0, err
	}

	session, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return 0, err
	}
	if session == nil {
		return 0, domain.ErrSessionNotFound
	}
	if session.AdminUserID != admin.UserID {
		return 0, domain.ErrNotSessionOwner
	}
	if session.RevokedAt != nil {
		// Idempotent: already terminal, no second audit entry.
		return 0, nil
	}

	now := s.clock.Now()
	if err := s.repo.MarkRevoked(ctx, s.db, id, now); err != nil {
		return 0, err
	}

	s.log.Info("impersonation session revoked",
		zap.String("session_id", id.String()),
		zap.String("admin_user_id", admin.UserID.String()),
		zap.String("tenant_id", session.TenantID.String()),
	)

	tenantID := session.TenantID
	_ = s.audit.Append(ctx, auditdomain.Record{
		Action:    auditdomain.ActionImpersonationRevoked,
		ChangedBy: admin.UserID,
		TenantID:  &tenantID,
		OldValue: map[string]any{
			"session_id": id.String(),
			"expires_at": session.ExpiresAt.Format(time.RFC3339),
		},
		NewValue: map[string]any{
			"session_id": id.String(),
			"revoked_at": now.Format(time.RFC3339),
		},
	})

	return tenantID, nil
}

func (s *service) ListActive(ctx context.Context, admin authorization.Principal) ([]domain.SessionResponse, error) {
	admin, err := s.authz.RequirePlatformAdmin(ctx, admin)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListActive(ctx, s.db, admin.UserID, s.clock.Now())
	if err != nil {
		return nil, err
	}

	resp := make([]domain.SessionResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, domain.SessionResponse{
			ID:              item.ID.String(),
			TenantID:        item.TenantID.String(),
			TenantName:      item.TenantName,
			TenantSlug:      item.TenantSlug,
			Reason:          item.Reason,
			CreatedAt:       item.CreatedAt,
			ExpiresAt:       item.ExpiresAt,
			DurationMinutes: int(item.ExpiresAt.Sub(item.CreatedAt) / time.Minute),
		})
	}
	return resp, nil
}

func clampDuration(requested int) int {
	if requested <= 0 {
		return domain.DefaultDurationMinutes
	}
	if requested > domain.MaxDurationMinutes {
		return domain.MaxDurationMinutes
	}
	return requested
}

func invalid(reason string) *domain.ValidateResult {
	return &domain.ValidateResult{Valid: false, Reason: reason}
}

func toResponse(session *domain.ImpersonationSession, tenant *tenantdomain.Tenant, durationMinutes int) *domain.SessionResponse {
	return &domain.SessionResponse{
		ID:              session.ID.String(),
		TenantID:        session.TenantID.String(),
		TenantName:      tenant.Name,
		TenantSlug:      tenant.Slug,
		Reason:          session.Reason,
		CreatedAt:       session.CreatedAt,
		ExpiresAt:       session.ExpiresAt,
		DurationMinutes: durationMinutes,
	}
}

func parseID(raw string, sentinel error) (snowflake.ID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, sentinel
	}
	id, err := snowflake.ParseString(trimmed)
	if err != nil || id == 0 {
		return 0, sentinel
	}
	return id, nil
}
