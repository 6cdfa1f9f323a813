package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/haulboard/gatehouse/internal/audit/domain"
	auditrepository "github.com/haulboard/gatehouse/internal/audit/repository"
	auditservice "github.com/haulboard/gatehouse/internal/audit/service"
	"github.com/haulboard/gatehouse/internal/authorization"
	"github.com/haulboard/gatehouse/internal/clock"
	"github.com/haulboard/gatehouse/internal/impersonation/domain"
	"github.com/haulboard/gatehouse/internal/impersonation/repository"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
	tenantrepository "github.com/haulboard/gatehouse/internal/tenant/repository"
	"github.com/haulboard/gatehouse/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc    domain.Service
	clock  *clock.FakeClock
	db     *gorm.DB
	node   *snowflake.Node
	tenant tenantdomain.Tenant
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(
		&tenantdomain.Tenant{},
		&tenantdomain.Membership{},
		&domain.ImpersonationSession{},
		&auditdomain.AuditEntry{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	enforcer, err := authorization.NewEnforcer(dbConn)
	if err != nil {
		t.Fatalf("failed to build enforcer: %v", err)
	}
	authz := authorization.NewService(authorization.Params{
		DB:       dbConn,
		Log:      zap.NewNop(),
		Enforcer: enforcer,
	})

	audit := auditservice.NewService(auditservice.Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
	})

	fake := clock.NewFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))

	tenant := tenantdomain.Tenant{
		ID:             node.Generate(),
		Name:           "Acme Logistics",
		Slug:           "acme-logistics",
		ReleaseChannel: tenantdomain.ChannelGeneral,
		Status:         tenantdomain.TenantStatusActive,
		CreatedAt:      fake.Now(),
		UpdatedAt:      fake.Now(),
	}
	if err := dbConn.Create(&tenant).Error; err != nil {
		t.Fatalf("failed to seed tenant: %v", err)
	}

	svc := NewService(Params{
		DB:      dbConn,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.Provide(),
		Tenants: tenantrepository.NewRepository(dbConn),
		Audit:   audit,
		Authz:   authz,
		Clock:   fake,
	})

	return &fixture{svc: svc, clock: fake, db: dbConn, node: node, tenant: tenant}
}

func admin(id int64) authorization.Principal {
	return authorization.Principal{UserID: snowflake.ID(id), IsPlatformAdmin: true}
}

func TestStartRequiresPlatformAdmin(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(context.Background(), authorization.Principal{UserID: 7}, domain.StartRequest{
		TenantID: f.tenant.ID.String(),
		Reason:   "Investigating billing discrepancy",
	})
	if !errors.Is(err, authorization.ErrPlatformAdminRequired) {
		t.Fatalf("expected ErrPlatformAdminRequired, got %v", err)
	}
}

func TestStartRejectsShortReason(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(context.Background(), admin(7), domain.StartRequest{
		TenantID: f.tenant.ID.String(),
		Reason:   "too short",
	})
	if !errors.Is(err, domain.ErrReasonTooShort) {
		t.Fatalf("expected ErrReasonTooShort, got %v", err)
	}
}

func TestStartUnknownTenant(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Start(context.Background(), admin(7), domain.StartRequest{
		TenantID: f.node.Generate().String(),
		Reason:   "Investigating billing discrepancy",
	})
	if !errors.Is(err, tenantdomain.ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestStartClampsDuration(t *testing.T) {
	f := newFixture(t)

	session, err := f.svc.Start(context.Background(), admin(7), domain.StartRequest{
		TenantID:        f.tenant.ID.String(),
		Reason:          "Investigating billing discrepancy",
		DurationMinutes: 120,
	})
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	if got := session.ExpiresAt.Sub(session.CreatedAt); got != 60*time.Minute {
		t.Fatalf("expected 60m window, got %s", got)
	}
	if session.DurationMinutes != 60 {
		t.Fatalf("expected duration_minutes 60, got %d", session.DurationMinutes)
	}
}

func TestStartDefaultDuration(t *testing.T) {
	f := newFixture(t)

	session, err := f.svc.Start(context.Background(), admin(7), domain.StartRequest{
		TenantID: f.tenant.ID.String(),
		Reason:   "Investigating billing discrepancy",
	})
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	if got := session.ExpiresAt.Sub(session.CreatedAt); got != 30*time.Minute {
		t.Fatalf("expected 30m window, got %s", got)
	}
}

func TestStartConflictUntilRevoked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Start(ctx, admin(7), domain.StartRequest{
		TenantID: f.tenant.ID.String(),
		Reason:   "Investigating billing discrepancy",
	})
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	_, err = f.svc.Start(ctx, admin(7), domain.StartRequest{
		TenantID: f.tenant.ID.String(),
		Reason:   "Second attempt, same tenant",
	})
	if !errors.Is(err, domain.ErrActiveSessionExists) {
		t.Fatalf("expected ErrActiveSessionExists, got %v", err)
	}

	// Another admin is not blocked by the first admin's session.
	if _, err := f.svc.Start(ctx, admin(8), domain.StartRequest{
		TenantID: f.tenant.ID.String(),
		Reason:   "Parallel investigation",
	}); err != nil {
		t.Fatalf("expected second admin to start, got %v", err)
	}

	if err := f.svc.Revoke(ctx, admin(7), first.ID); err != nil {
		t.Fatalf("failed to revoke: %v", err)
	}
	if _, err := f.svc.Start(ctx, admin(7), domain.StartRequest{
		TenantID: f.tenant.ID.String(),
		Reason:   "Fresh session after revoke",
	}); err != nil {
		t.Fatalf("expected start after revoke, got %v", err)
	}
}

func TestValidateLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Start(ctx, admin(7), domain.StartRequest{
		TenantID: f.tenant.ID.String(),
		Reason:   "Investigating billing discrepancy",
	})
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	result, err := f.svc.Validate(ctx, admin(7), session.ID)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if !result.Valid {
		t.Fatalf("expected valid session, got reason %q", result.Reason)
	}
	if result.Session == nil || result.Session.TenantSlug != "acme-logistics" {
		t.Fatalf("expected denormalized tenant fields, got %+v", result.Session)
	}

	// Ownership short-circuits before any other session fact.
	result, err = f.svc.Validate(ctx, admin(8), session.ID)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if result.Valid || result.Reason != domain.ReasonNotOwner {
		t.Fatalf("expected not_owner, got %+v", result)
	}

	if err := f.svc.Revoke(ctx, admin(7), session.ID); err != nil {
		t.Fatalf("failed to revoke: %v", err)
	}
	result, err = f.svc.Validate(ctx, admin(7), session.ID)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if result.Valid || result.Reason != domain.ReasonRevoked {
		t.Fatalf("expected revoked, got %+v", result)
	}

	// Expiry wins over revocation once the window passes.
	f.clock.Advance(31 * time.Minute)
	result, err = f.svc.Validate(ctx, admin(7), session.ID)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if result.Valid || result.Reason != domain.ReasonExpired {
		t.Fatalf("expected expired, got %+v", result)
	}
}

func TestValidateExpiredNeverRevoked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Start(ctx, admin(7), domain.StartRequest{
		TenantID: f.tenant.ID.String(),
		Reason:   "Investigating billing discrepancy",
	})
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	f.clock.Advance(31 * time.Minute)
	result, err := f.svc.Validate(ctx, admin(7), session.ID)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if result.Valid || result.Reason != domain.ReasonExpired {
		t.Fatalf("expected expired, got %+v", result)
	}
}

func TestValidateUnknownSession(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.Validate(context.Background(), admin(7), f.node.Generate().String())
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if result.Valid || result.Reason != domain.ReasonSessionNotFound {
		t.Fatalf("expected session_not_found, got %+v", result)
	}
}

func TestValidateOwnershipBeforeOtherFacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Start(ctx, admin(7), domain.StartRequest{
		TenantID: f.tenant.ID.String(),
		Reason:   "Investigating billing discrepancy",
	})
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
	if err := f.svc.Revoke(ctx, admin(7), session.ID); err != nil {
		t.Fatalf("failed to revoke: %v", err)
	}
	f.clock.Advance(2 * time.Hour)

	// Revoked AND expired, but a different admin still only sees not_owner.
	result, err := f.svc.Validate(ctx, admin(8), session.ID)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if result.Valid || result.Reason != domain.ReasonNotOwner {
		t.Fatalf("expected not_owner, got %+v", result)
	}
}

func TestRevokeIdempotentAndOwned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Start(ctx, admin(7), domain.StartRequest{
		TenantID: f.tenant.ID.String(),
		Reason:   "Investigating billing discrepancy",
	})
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	if err := f.svc.Revoke(ctx, admin(8), session.ID); !errors.Is(err, domain.ErrNotSessionOwner) {
		t.Fatalf("expected ErrNotSessionOwner, got %v", err)
	}
	if err := f.svc.Revoke(ctx, admin(7), session.ID); err != nil {
		t.Fatalf("failed to revoke: %v", err)
	}
	if err := f.svc.Revoke(ctx, admin(7), session.ID); err != nil {
		t.Fatalf("expected idempotent revoke, got %v", err)
	}

	var auditCount int64
	if err := f.db.Model(&auditdomain.AuditEntry{}).
		Where("action = ?", auditdomain.ActionImpersonationRevoked).
		Count(&auditCount).Error; err != nil {
		t.Fatalf("failed to count audit entries: %v", err)
	}
	if auditCount != 1 {
		t.Fatalf("expected exactly one revoke audit entry, got %d", auditCount)
	}

	if err := f.svc.Revoke(ctx, admin(7), f.node.Generate().String()); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestListActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Start(ctx, admin(7), domain.StartRequest{
		TenantID: f.tenant.ID.String(),
		Reason:   "Investigating billing discrepancy",
	})
	if err != nil {
		t.Fatalf("failed to start session: %v", err)
	}

	sessions, err := f.svc.ListActive(ctx, admin(7))
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != session.ID {
		t.Fatalf("expected the started session, got %+v", sessions)
	}
	if sessions[0].TenantName != "Acme Logistics" {
		t.Fatalf("expected joined tenant name, got %q", sessions[0].TenantName)
	}

	f.clock.Advance(31 * time.Minute)
	sessions, err = f.svc.ListActive(ctx, admin(7))
	if err != nil {
		t.Fatalf("failed to list sessions: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no active sessions after expiry, got %d", len(sessions))
	}
}
