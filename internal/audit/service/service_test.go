package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/haulboard/gatehouse/internal/audit/domain"
	"github.com/haulboard/gatehouse/internal/audit/repository"
	"github.com/haulboard/gatehouse/pkg/db"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) auditdomain.Service {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&auditdomain.AuditEntry{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	return NewService(Params{
		DB:    dbConn,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
	})
}

func TestAppendRequiresAction(t *testing.T) {
	svc := newTestService(t)

	err := svc.Append(context.Background(), auditdomain.Record{
		Action:    "   ",
		ChangedBy: 42,
	})
	if err != auditdomain.ErrInvalidAction {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}

func TestAppendRequiresActor(t *testing.T) {
	svc := newTestService(t)

	err := svc.Append(context.Background(), auditdomain.Record{
		Action: auditdomain.ActionChannelDefaultChange,
	})
	if err != auditdomain.ErrInvalidActor {
		t.Fatalf("expected ErrInvalidActor, got %v", err)
	}
}

func TestAppendAndList(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	tenantID := snowflake.ID(100)
	err := svc.Append(ctx, auditdomain.Record{
		Action:    auditdomain.ActionTenantOverrideChange,
		ChangedBy: 42,
		TenantID:  &tenantID,
		OldValue:  map[string]any{"enabled": false},
		NewValue:  map[string]any{"enabled": true},
	})
	if err != nil {
		t.Fatalf("failed to append: %v", err)
	}
	err = svc.Append(ctx, auditdomain.Record{
		Action:    auditdomain.ActionImpersonationStarted,
		ChangedBy: 42,
		TenantID:  &tenantID,
	})
	if err != nil {
		t.Fatalf("failed to append: %v", err)
	}

	resp, err := svc.List(ctx, auditdomain.ListEntriesRequest{})
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.Entries))
	}

	filtered, err := svc.List(ctx, auditdomain.ListEntriesRequest{
		Action: auditdomain.ActionTenantOverrideChange,
	})
	if err != nil {
		t.Fatalf("failed to list filtered: %v", err)
	}
	if len(filtered.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(filtered.Entries))
	}
	entry := filtered.Entries[0]
	if entry.ChangedBy != 42 {
		t.Fatalf("expected changed_by 42, got %v", entry.ChangedBy)
	}
	if entry.TenantID == nil || *entry.TenantID != tenantID {
		t.Fatalf("expected tenant id %v, got %v", tenantID, entry.TenantID)
	}
	if entry.NewValue["enabled"] != true {
		t.Fatalf("expected new_value enabled true, got %v", entry.NewValue)
	}
	if entry.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
}

func TestListRejectsInvalidTimeRange(t *testing.T) {
	svc := newTestService(t)

	end := time.Now().UTC()
	start := end.Add(time.Hour)
	_, err := svc.List(context.Background(), auditdomain.ListEntriesRequest{
		StartAt: &start,
		EndAt:   &end,
	})
	if err != auditdomain.ErrInvalidTimeRange {
		t.Fatalf("expected ErrInvalidTimeRange, got %v", err)
	}
}

func TestListRejectsInvalidFilterID(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.List(context.Background(), auditdomain.ListEntriesRequest{
		TenantID: "not-a-snowflake",
	})
	if err != auditdomain.ErrInvalidFilter {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestListPagination(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		err := svc.Append(ctx, auditdomain.Record{
			Action:    auditdomain.ActionChannelDefaultChange,
			ChangedBy: 42,
		})
		if err != nil {
			t.Fatalf("failed to append: %v", err)
		}
	}

	first, err := svc.List(ctx, auditdomain.ListEntriesRequest{})
	if err != nil {
		t.Fatalf("failed to list: %v", err)
	}
	if len(first.Entries) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(first.Entries))
	}

	req := auditdomain.ListEntriesRequest{}
	req.PageSize = 2
	page, err := svc.List(ctx, req)
	if err != nil {
		t.Fatalf("failed to list page: %v", err)
	}
	if len(page.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(page.Entries))
	}
	if !page.HasMore {
		t.Fatal("expected has_more")
	}
	if page.NextPageToken == "" {
		t.Fatal("expected next page token")
	}

	req.PageToken = page.NextPageToken
	next, err := svc.List(ctx, req)
	if err != nil {
		t.Fatalf("failed to list next page: %v", err)
	}
	if len(next.Entries) != 2 {
		t.Fatalf("expected 2 entries on next page, got %d", len(next.Entries))
	}
	if next.Entries[0].ID == page.Entries[0].ID {
		t.Fatal("expected distinct pages")
	}
}

func TestListRejectsBadPageToken(t *testing.T) {
	svc := newTestService(t)

	req := auditdomain.ListEntriesRequest{}
	req.PageToken = "%%%not-base64%%%"
	_, err := svc.List(context.Background(), req)
	if err != auditdomain.ErrInvalidPageToken {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}
