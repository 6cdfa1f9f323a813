package event

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	TenantCreatedTopic        = "tenant.created"
	TenantChannelChangedTopic = "tenant.channel_changed"
)

type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// PlatformEvent is one outbox row. A separate relay drains published=false
// rows; this service only appends.
type PlatformEvent struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	TenantID  snowflake.ID   `gorm:"column:tenant_id;index"`
	EventType string         `gorm:"type:text;not null"`
	Payload   datatypes.JSON `gorm:"type:jsonb"`
	Published bool           `gorm:"not null;default:false"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (PlatformEvent) TableName() string { return "platform_events" }

type outboxPublisher struct {
	db    *gorm.DB
	genID *snowflake.Node
}

func NewOutboxPublisher(db *gorm.DB, genID *snowflake.Node) EventPublisher {
	return &outboxPublisher{
		db:    db,
		genID: genID,
	}
}

type tenantEventPayload struct {
	TenantID string `json:"tenant_id"`
}

func (p *outboxPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	var parsed tenantEventPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return err
	}

	tenantID := strings.TrimSpace(parsed.TenantID)
	if tenantID == "" {
		return errors.New("missing tenant_id")
	}

	parsedID, err := snowflake.ParseString(tenantID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return p.db.WithContext(ctx).Exec(
		`INSERT INTO platform_events (id, tenant_id, event_type, payload, published, created_at)
		 VALUES (?, ?, ?, ?, false, ?)`,
		p.genID.Generate(),
		parsedID,
		topic,
		datatypes.JSON(payload),
		now,
	).Error
}
