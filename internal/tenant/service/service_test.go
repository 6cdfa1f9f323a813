package service

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/haulboard/gatehouse/internal/audit/domain"
	auditrepository "github.com/haulboard/gatehouse/internal/audit/repository"
	auditservice "github.com/haulboard/gatehouse/internal/audit/service"
	"github.com/haulboard/gatehouse/internal/tenant/domain"
	"github.com/haulboard/gatehouse/internal/tenant/repository"
	"github.com/haulboard/gatehouse/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, auditdomain.Service, *gorm.DB) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&domain.Tenant{}, &domain.Membership{}, &auditdomain.AuditEntry{}); err != nil {
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
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.NewRepository(dbConn),
		Audit: audit,
	})
	return svc, audit, dbConn
}

func TestCreateTenantDefaults(t *testing.T) {
	svc, _, _ := newTestService(t)

	tenant, err := svc.Create(context.Background(), domain.CreateTenantRequest{
		Name: "Acme Logistics",
	})
	if err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}
	if tenant.Slug != "acme-logistics" {
		t.Fatalf("expected slug acme-logistics, got %s", tenant.Slug)
	}
	if tenant.ReleaseChannel != string(domain.ChannelGeneral) {
		t.Fatalf("expected general channel, got %s", tenant.ReleaseChannel)
	}
	if tenant.Status != string(domain.TenantStatusActive) {
		t.Fatalf("expected active status, got %s", tenant.Status)
	}
}

func TestCreateTenantWithOwner(t *testing.T) {
	svc, _, _ := newTestService(t)

	tenant, err := svc.Create(context.Background(), domain.CreateTenantRequest{
		Name:           "Northwind Freight",
		ReleaseChannel: "pilot",
		OwnerUserID:    "7",
	})
	if err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}

	members, err := svc.ListMembers(context.Background(), tenant.ID)
	if err != nil {
		t.Fatalf("failed to list members: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 member, got %d", len(members))
	}
	if members[0].Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", members[0].Role)
	}
	if members[0].Status != string(domain.MembershipStatusActive) {
		t.Fatalf("expected active member, got %s", members[0].Status)
	}
}

func TestCreateTenantDuplicateSlug(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme"}); err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}
	_, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme"})
	if err != domain.ErrSlugTaken {
		t.Fatalf("expected ErrSlugTaken, got %v", err)
	}
}

func TestCreateTenantRejectsBadChannel(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), domain.CreateTenantRequest{
		Name:           "Acme",
		ReleaseChannel: "canary",
	})
	if err != domain.ErrInvalidReleaseChannel {
		t.Fatalf("expected ErrInvalidReleaseChannel, got %v", err)
	}
}

func TestGetByID(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme"})
	if err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}

	got, err := svc.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("failed to get tenant: %v", err)
	}
	if got.Name != "Acme" {
		t.Fatalf("expected name Acme, got %s", got.Name)
	}

	if _, err := svc.GetByID(ctx, "123456789"); err != domain.ErrTenantNotFound {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
	if _, err := svc.GetByID(ctx, "nonsense"); err != domain.ErrInvalidTenant {
		t.Fatalf("expected ErrInvalidTenant, got %v", err)
	}
}

func TestSetReleaseChannelAudits(t *testing.T) {
	svc, audit, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme"})
	if err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}

	updated, err := svc.SetReleaseChannel(ctx, domain.SetReleaseChannelRequest{
		TenantID: created.ID,
		Channel:  "pilot",
		ActorID:  99,
	})
	if err != nil {
		t.Fatalf("failed to set channel: %v", err)
	}
	if updated.ReleaseChannel != string(domain.ChannelPilot) {
		t.Fatalf("expected pilot, got %s", updated.ReleaseChannel)
	}

	entries, err := audit.List(ctx, auditdomain.ListEntriesRequest{
		Action: auditdomain.ActionTenantChannelChange,
	})
	if err != nil {
		t.Fatalf("failed to list audit entries: %v", err)
	}
	if len(entries.Entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries.Entries))
	}
	entry := entries.Entries[0]
	if entry.ChangedBy != 99 {
		t.Fatalf("expected changed_by 99, got %v", entry.ChangedBy)
	}
	if entry.OldValue["release_channel"] != "general" {
		t.Fatalf("expected old channel general, got %v", entry.OldValue)
	}
	if entry.NewValue["release_channel"] != "pilot" {
		t.Fatalf("expected new channel pilot, got %v", entry.NewValue)
	}
}

func TestSetReleaseChannelErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme"})
	if err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}

	_, err = svc.SetReleaseChannel(ctx, domain.SetReleaseChannelRequest{
		TenantID: created.ID,
		Channel:  "beta",
		ActorID:  99,
	})
	if err != domain.ErrInvalidReleaseChannel {
		t.Fatalf("expected ErrInvalidReleaseChannel, got %v", err)
	}

	_, err = svc.SetReleaseChannel(ctx, domain.SetReleaseChannelRequest{
		TenantID: "123456789",
		Channel:  "pilot",
		ActorID:  99,
	})
	if err != domain.ErrTenantNotFound {
		t.Fatalf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestAddMember(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateTenantRequest{Name: "Acme"})
	if err != nil {
		t.Fatalf("failed to create tenant: %v", err)
	}

	member, err := svc.AddMember(ctx, domain.AddMemberRequest{
		TenantID: created.ID,
		UserID:   "7",
		Role:     "dispatcher",
	})
	if err != nil {
		t.Fatalf("failed to add member: %v", err)
	}
	if member.Role != domain.RoleDispatcher {
		t.Fatalf("expected dispatcher role, got %s", member.Role)
	}

	_, err = svc.AddMember(ctx, domain.AddMemberRequest{
		TenantID: created.ID,
		UserID:   "7",
		Role:     "driver",
	})
	if err != domain.ErrMemberExists {
		t.Fatalf("expected ErrMemberExists, got %v", err)
	}

	_, err = svc.AddMember(ctx, domain.AddMemberRequest{
		TenantID: created.ID,
		UserID:   "8",
		Role:     "superuser",
	})
	if err != domain.ErrInvalidRole {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestListTenantsFilters(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	for _, tc := range []struct {
		name    string
		channel string
	}{
		{"Acme Logistics", "general"},
		{"Northwind Freight", "pilot"},
		{"Contoso Carriers", "internal"},
	} {
		if _, err := svc.Create(ctx, domain.CreateTenantRequest{
			Name:           tc.name,
			ReleaseChannel: tc.channel,
		}); err != nil {
			t.Fatalf("failed to create tenant %s: %v", tc.name, err)
		}
	}

	all, err := svc.List(ctx, domain.ListTenantsRequest{})
	if err != nil {
		t.Fatalf("failed to list tenants: %v", err)
	}
	if len(all.Tenants) != 3 {
		t.Fatalf("expected 3 tenants, got %d", len(all.Tenants))
	}

	pilots, err := svc.List(ctx, domain.ListTenantsRequest{ReleaseChannel: "pilot"})
	if err != nil {
		t.Fatalf("failed to list pilot tenants: %v", err)
	}
	if len(pilots.Tenants) != 1 || pilots.Tenants[0].Name != "Northwind Freight" {
		t.Fatalf("expected Northwind Freight, got %+v", pilots.Tenants)
	}

	matched, err := svc.List(ctx, domain.ListTenantsRequest{Query: "contoso"})
	if err != nil {
		t.Fatalf("failed to search tenants: %v", err)
	}
	if len(matched.Tenants) != 1 || matched.Tenants[0].Slug != "contoso-carriers" {
		t.Fatalf("expected contoso-carriers, got %+v", matched.Tenants)
	}
}
