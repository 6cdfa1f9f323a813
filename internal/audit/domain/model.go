package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const (
	ActionChannelDefaultChange  = "channel_default_change"
	ActionTenantOverrideChange  = "tenant_override_change"
	ActionTenantOverrideRemoved = "tenant_override_removed"
	ActionTenantChannelChange   = "tenant_channel_change"
	ActionImpersonationStarted  = "impersonation_started"
	ActionImpersonationRevoked  = "impersonation_revoked"
)

// AuditEntry records a privileged mutation. Rows are append-only.
type AuditEntry struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	FeatureFlagID *snowflake.ID     `gorm:"column:feature_flag_id;index" json:"feature_flag_id,omitempty"`
	Action        string            `gorm:"type:text;not null;index" json:"action"`
	ChangedBy     snowflake.ID      `gorm:"column:changed_by;not null;index" json:"changed_by"`
	TenantID      *snowflake.ID     `gorm:"column:tenant_id;index" json:"tenant_id,omitempty"`
	OldValue      datatypes.JSONMap `gorm:"type:jsonb" json:"old_value,omitempty"`
	NewValue      datatypes.JSONMap `gorm:"type:jsonb" json:"new_value,omitempty"`
	Metadata      datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	IPAddress     *string           `gorm:"column:ip_address;type:text" json:"ip_address,omitempty"`
	UserAgent     *string           `gorm:"column:user_agent;type:text" json:"user_agent,omitempty"`
	CreatedAt     time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName sets the database table name.
func (AuditEntry) TableName() string { return "audit_entries" }
