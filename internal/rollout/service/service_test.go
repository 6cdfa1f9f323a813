package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/haulboard/gatehouse/internal/audit/domain"
	auditrepository "github.com/haulboard/gatehouse/internal/audit/repository"
	auditservice "github.com/haulboard/gatehouse/internal/audit/service"
	"github.com/haulboard/gatehouse/internal/rollout/domain"
	"github.com/haulboard/gatehouse/internal/rollout/repository"
	tenantdomain "github.com/haulboard/gatehouse/internal/tenant/domain"
	tenantrepository "github.com/haulboard/gatehouse/internal/tenant/repository"
	"github.com/haulboard/gatehouse/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc    domain.Service
	db     *gorm.DB
	node   *snowflake.Node
	tenant tenantdomain.Tenant
	flag   *domain.FlagResponse
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(
		&tenantdomain.Tenant{},
		&domain.FeatureFlag{},
		&domain.ReleaseChannelDefault{},
		&domain.TenantOverride{},
		&auditdomain.AuditEntry{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	audit := auditservice.NewService(auditservice.Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  auditrepository.Provide(),
	})

	svc := NewService(Params{
		DB:      dbConn,
		Log:     zap.NewNop(),
		GenID:   node,
		Repo:    repository.Provide(),
		Tenants: tenantrepository.NewRepository(dbConn),
		Audit:   audit,
	})

	tenant := tenantdomain.Tenant{
		ID:             node.Generate(),
		Name:           "Acme Logistics",
		Slug:           "acme-logistics",
		ReleaseChannel: tenantdomain.ChannelPilot,
		Status:         tenantdomain.TenantStatusActive,
	}
	if err := dbConn.Create(&tenant).Error; err != nil {
		t.Fatalf("failed to seed tenant: %v", err)
	}

	flag, err := svc.CreateFlag(context.Background(), domain.CreateFlagRequest{
		Key:  "dispatch.auto_assign",
		Name: "Automatic load assignment",
	})
	if err != nil {
		t.Fatalf("failed to create flag: %v", err)
	}

	return &fixture{svc: svc, db: dbConn, node: node, tenant: tenant, flag: flag}
}

func (f *fixture) auditEntries(t *testing.T, action string) []auditdomain.AuditEntry {
	t.Helper()
	var entries []auditdomain.AuditEntry
	if err := f.db.Where("action = ?", action).Order("id").Find(&entries).Error; err != nil {
		t.Fatalf("failed to load audit entries: %v", err)
	}
	return entries
}

func TestResolveFailClosed(t *testing.T) {
	f := newFixture(t)

	enabled, err := f.svc.Resolve(context.Background(), f.tenant.ID, "dispatch.auto_assign")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if enabled {
		t.Fatal("expected fail-closed false with no rules")
	}
}

func TestResolveChannelDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SetChannelDefault(ctx, domain.SetChannelDefaultRequest{
		FeatureFlagID:  f.flag.ID,
		ReleaseChannel: "pilot",
		Enabled:        true,
		ActorID:        f.node.Generate(),
	}); err != nil {
		t.Fatalf("failed to set channel default: %v", err)
	}

	enabled, err := f.svc.Resolve(ctx, f.tenant.ID, "dispatch.auto_assign")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !enabled {
		t.Fatal("expected pilot default to enable the flag")
	}

	// A default on another channel does not reach this tenant.
	if _, err := f.svc.SetChannelDefault(ctx, domain.SetChannelDefaultRequest{
		FeatureFlagID:  f.flag.ID,
		ReleaseChannel: "pilot",
		Enabled:        false,
		ActorID:        f.node.Generate(),
	}); err != nil {
		t.Fatalf("failed to flip channel default: %v", err)
	}
	if _, err := f.svc.SetChannelDefault(ctx, domain.SetChannelDefaultRequest{
		FeatureFlagID:  f.flag.ID,
		ReleaseChannel: "internal",
		Enabled:        true,
		ActorID:        f.node.Generate(),
	}); err != nil {
		t.Fatalf("failed to set internal default: %v", err)
	}
	enabled, err = f.svc.Resolve(ctx, f.tenant.ID, "dispatch.auto_assign")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if enabled {
		t.Fatal("expected the pilot default to win for a pilot tenant")
	}
}

func TestResolveOverrideWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SetChannelDefault(ctx, domain.SetChannelDefaultRequest{
		FeatureFlagID:  f.flag.ID,
		ReleaseChannel: "pilot",
		Enabled:        true,
		ActorID:        f.node.Generate(),
	}); err != nil {
		t.Fatalf("failed to set channel default: %v", err)
	}
	if _, err := f.svc.SetTenantOverride(ctx, domain.SetTenantOverrideRequest{
		FeatureFlagID: f.flag.ID,
		TenantID:      f.tenant.ID.String(),
		Enabled:       false,
		ActorID:       f.node.Generate(),
	}); err != nil {
		t.Fatalf("failed to set override: %v", err)
	}

	enabled, err := f.svc.Resolve(ctx, f.tenant.ID, "dispatch.auto_assign")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if enabled {
		t.Fatal("expected the disabling override to beat the enabling default")
	}
}

func TestResolveAfterOverrideRemoved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SetChannelDefault(ctx, domain.SetChannelDefaultRequest{
		FeatureFlagID:  f.flag.ID,
		ReleaseChannel: "pilot",
		Enabled:        true,
		ActorID:        f.node.Generate(),
	}); err != nil {
		t.Fatalf("failed to set channel default: %v", err)
	}
	if _, err := f.svc.SetTenantOverride(ctx, domain.SetTenantOverrideRequest{
		FeatureFlagID: f.flag.ID,
		TenantID:      f.tenant.ID.String(),
		Enabled:       false,
		ActorID:       f.node.Generate(),
	}); err != nil {
		t.Fatalf("failed to set override: %v", err)
	}
	if _, err := f.svc.RemoveTenantOverride(ctx, domain.RemoveTenantOverrideRequest{
		FeatureFlagID: f.flag.ID,
		TenantID:      f.tenant.ID.String(),
		ActorID:       f.node.Generate(),
	}); err != nil {
		t.Fatalf("failed to remove override: %v", err)
	}

	enabled, err := f.svc.Resolve(ctx, f.tenant.ID, "dispatch.auto_assign")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if !enabled {
		t.Fatal("expected the channel default to apply once the override is gone")
	}
}

func TestResolveAllPrecedencePerFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	second, err := f.svc.CreateFlag(ctx, domain.CreateFlagRequest{
		Key:  "routing.live_traffic",
		Name: "Live traffic aware routing",
	})
	if err != nil {
		t.Fatalf("failed to create flag: %v", err)
	}

	if _, err := f.svc.SetChannelDefault(ctx, domain.SetChannelDefaultRequest{
		FeatureFlagID:  f.flag.ID,
		ReleaseChannel: "pilot",
		Enabled:        true,
		ActorID:        f.node.Generate(),
	}); err != nil {
		t.Fatalf("failed to set channel default: %v", err)
	}
	if _, err := f.svc.SetTenantOverride(ctx, domain.SetTenantOverrideRequest{
		FeatureFlagID: f.flag.ID,
		TenantID:      f.tenant.ID.String(),
		Enabled:       false,
		ActorID:       f.node.Generate(),
	}); err != nil {
		t.Fatalf("failed to set override: %v", err)
	}

	resolved, err := f.svc.ResolveAll(ctx, f.tenant.ID)
	if err != nil {
		t.Fatalf("resolve all failed: %v", err)
	}
	if got := resolved["dispatch.auto_assign"]; got {
		t.Fatal("expected override to win in bulk resolution")
	}
	if got, ok := resolved[second.Key]; !ok || got {
		t.Fatalf("expected second flag fail-closed false, got %v present=%v", got, ok)
	}
}

func TestSetChannelDefaultValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetChannelDefault(ctx, domain.SetChannelDefaultRequest{
		FeatureFlagID:  f.flag.ID,
		ReleaseChannel: "canary",
		Enabled:        true,
	})
	if !errors.Is(err, tenantdomain.ErrInvalidReleaseChannel) {
		t.Fatalf("expected ErrInvalidReleaseChannel, got %v", err)
	}

	_, err = f.svc.SetChannelDefault(ctx, domain.SetChannelDefaultRequest{
		FeatureFlagID:  f.node.Generate().String(),
		ReleaseChannel: "pilot",
		Enabled:        true,
	})
	if !errors.Is(err, domain.ErrFlagNotFound) {
		t.Fatalf("expected ErrFlagNotFound, got %v", err)
	}
}

func TestChannelDefaultAuditCarriesPriorValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.node.Generate()

	if _, err := f.svc.SetChannelDefault(ctx, domain.SetChannelDefaultRequest{
		FeatureFlagID:  f.flag.ID,
		ReleaseChannel: "pilot",
		Enabled:        true,
		ActorID:        actor,
	}); err != nil {
		t.Fatalf("failed to set channel default: %v", err)
	}
	if _, err := f.svc.SetChannelDefault(ctx, domain.SetChannelDefaultRequest{
		FeatureFlagID:  f.flag.ID,
		ReleaseChannel: "pilot",
		Enabled:        false,
		ActorID:        actor,
	}); err != nil {
		t.Fatalf("failed to flip channel default: %v", err)
	}

	entries := f.auditEntries(t, auditdomain.ActionChannelDefaultChange)
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if entries[0].OldValue != nil {
		t.Fatalf("expected nil old value on first write, got %v", entries[0].OldValue)
	}
	if got, ok := entries[1].OldValue["enabled"].(bool); !ok || !got {
		t.Fatalf("expected prior enabled=true in second entry, got %v", entries[1].OldValue)
	}
	if got, ok := entries[1].NewValue["enabled"].(bool); !ok || got {
		t.Fatalf("expected new enabled=false in second entry, got %v", entries[1].NewValue)
	}
}

func TestRemoveMissingOverrideWritesNoAudit(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.RemoveTenantOverride(context.Background(), domain.RemoveTenantOverrideRequest{
		FeatureFlagID: f.flag.ID,
		TenantID:      f.tenant.ID.String(),
		ActorID:       f.node.Generate(),
	})
	if !errors.Is(err, domain.ErrOverrideNotFound) {
		t.Fatalf("expected ErrOverrideNotFound, got %v", err)
	}
	if entries := f.auditEntries(t, auditdomain.ActionTenantOverrideRemoved); len(entries) != 0 {
		t.Fatalf("expected no audit entries, got %d", len(entries))
	}
}

func TestRemoveOverrideAuditsWithNullNewValue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	actor := f.node.Generate()

	if _, err := f.svc.SetTenantOverride(ctx, domain.SetTenantOverrideRequest{
		FeatureFlagID: f.flag.ID,
		TenantID:      f.tenant.ID.String(),
		Enabled:       true,
		ActorID:       actor,
	}); err != nil {
		t.Fatalf("failed to set override: %v", err)
	}
	if _, err := f.svc.RemoveTenantOverride(ctx, domain.RemoveTenantOverrideRequest{
		FeatureFlagID: f.flag.ID,
		TenantID:      f.tenant.ID.String(),
		ActorID:       actor,
	}); err != nil {
		t.Fatalf("failed to remove override: %v", err)
	}

	entries := f.auditEntries(t, auditdomain.ActionTenantOverrideRemoved)
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	if entries[0].NewValue != nil {
		t.Fatalf("expected null new value, got %v", entries[0].NewValue)
	}
	if got, ok := entries[0].OldValue["enabled"].(bool); !ok || !got {
		t.Fatalf("expected prior enabled=true, got %v", entries[0].OldValue)
	}
}

func TestSetTenantOverrideUnknownTenant(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SetTenantOverride(context.Background(), domain.SetTenantOverrideRequest{
		FeatureFlagID: f.flag.ID,
		TenantID:      f.node.Generate().String(),
		Enabled:       true,
	})
	if !errors.Is(err, tenantdomain.ErrTenantNotFound) {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestCreateFlagDuplicateKey(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateFlag(context.Background(), domain.CreateFlagRequest{
		Key:  "dispatch.auto_assign",
		Name: "Duplicate",
	})
	if !errors.Is(err, domain.ErrFlagExists) {
		t.Fatalf("expected ErrFlagExists, got %v", err)
	}
}
