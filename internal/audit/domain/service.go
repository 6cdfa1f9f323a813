package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/haulboard/gatehouse/pkg/db/pagination"
)

// Record describes one privileged mutation to append to the trail.
type Record struct {
	Action        string
	ChangedBy     snowflake.ID
	TenantID      *snowflake.ID
	FeatureFlagID *snowflake.ID
	OldValue      map[string]any
	NewValue      map[string]any
}

type ListEntriesRequest struct {
	pagination.Pagination
	Action        string
	TenantID      string
	ChangedBy     string
	FeatureFlagID string
	StartAt       *time.Time
	EndAt         *time.Time
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []AuditEntry `json:"entries"`
}

// Service appends and reads the audit trail. Append is best-effort for
// callers: they log the returned error and keep going.
type Service interface {
	Append(ctx context.Context, rec Record) error
	List(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidActor     = errors.New("invalid_actor")
	ErrInvalidFilter    = errors.New("invalid_filter")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
