package event

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/haulboard/gatehouse/pkg/db"
)

func newTestPublisher(t *testing.T) EventPublisher {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	err = dbConn.Exec(`CREATE TABLE platform_events (
		id INTEGER PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		published BOOLEAN NOT NULL DEFAULT false,
		created_at TIMESTAMP NOT NULL
	)`).Error
	if err != nil {
		t.Fatalf("failed to create table: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	pub := NewOutboxPublisher(dbConn, node)
	t.Cleanup(func() {
		sqlDB, _ := dbConn.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
	})
	return pub
}

func TestPublishWritesOutboxRow(t *testing.T) {
	pub := newTestPublisher(t)

	payload := []byte(`{"tenant_id":"123456789","slug":"acme"}`)
	if err := pub.Publish(context.Background(), TenantCreatedTopic, payload); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}

	outbox := pub.(*outboxPublisher)
	var count int64
	err := outbox.db.Raw(
		`SELECT COUNT(*) FROM platform_events WHERE event_type = ? AND published = false`,
		TenantCreatedTopic,
	).Scan(&count).Error
	if err != nil {
		t.Fatalf("failed to count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 outbox row, got %d", count)
	}
}

func TestPublishRejectsMissingTenant(t *testing.T) {
	pub := newTestPublisher(t)

	if err := pub.Publish(context.Background(), TenantCreatedTopic, []byte(`{"slug":"acme"}`)); err == nil {
		t.Fatal("expected error for missing tenant_id")
	}
	if err := pub.Publish(context.Background(), TenantCreatedTopic, []byte(`not-json`)); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
