package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Resolution sources, recorded per resolve for rollout telemetry.
const (
	SourceTenantOverride = "tenant_override"
	SourceChannelDefault = "channel_default"
	SourceDefaultClosed  = "default_closed"
)

type Service interface {
	// Resolve computes the effective value of one flag for one tenant:
	// tenant override first, then the default for the tenant's release
	// channel, then false.
	Resolve(ctx context.Context, tenantID snowflake.ID, flagKey string) (bool, error)

	// ResolveAll computes the effective value of every cataloged flag for
	// one tenant, same precedence per flag.
	ResolveAll(ctx context.Context, tenantID snowflake.ID) (map[string]bool, error)

	// CreateFlag registers a catalog entry. Used by catalog seeding and
	// operator tooling; flag rows carry no rollout state themselves.
	CreateFlag(ctx context.Context, req CreateFlagRequest) (*FlagResponse, error)

	// ListFlags returns the catalog with each flag's channel defaults.
	ListFlags(ctx context.Context, req ListFlagsRequest) ([]FlagResponse, error)

	// SetChannelDefault upserts the default for (flag, channel) and writes
	// a channel_default_change audit entry carrying the prior value.
	SetChannelDefault(ctx context.Context, req SetChannelDefaultRequest) (*ChannelDefaultResponse, error)

	// SetTenantOverride upserts the override for (tenant, flag) and writes
	// a tenant_override_change audit entry carrying the prior value.
	SetTenantOverride(ctx context.Context, req SetTenantOverrideRequest) (*TenantOverrideResponse, error)

	// RemoveTenantOverride deletes the override for (tenant, flag). Removing
	// an absent override fails with ErrOverrideNotFound and writes no audit
	// entry.
	RemoveTenantOverride(ctx context.Context, req RemoveTenantOverrideRequest) (*TenantOverrideResponse, error)
}

type CreateFlagRequest struct {
	Key         string  `json:"key"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

type ListFlagsRequest struct {
	Query   string `form:"q"`
	SortBy  string `form:"sort_by"`
	OrderBy string `form:"order_by"`
}

type SetChannelDefaultRequest struct {
	FeatureFlagID  string       `json:"feature_flag_id"`
	ReleaseChannel string       `json:"release_channel"`
	Enabled        bool         `json:"enabled"`
	ActorID        snowflake.ID `json:"-"`
}

type SetTenantOverrideRequest struct {
	FeatureFlagID string       `json:"feature_flag_id"`
	TenantID      string       `json:"tenant_id"`
	Enabled       bool         `json:"enabled"`
	ActorID       snowflake.ID `json:"-"`
}

type RemoveTenantOverrideRequest struct {
	FeatureFlagID string       `json:"feature_flag_id"`
	TenantID      string       `json:"tenant_id"`
	ActorID       snowflake.ID `json:"-"`
}

type FlagResponse struct {
	ID              string          `json:"id"`
	Key             string          `json:"key"`
	Name            string          `json:"name"`
	Description     *string         `json:"description,omitempty"`
	ChannelDefaults map[string]bool `json:"channel_defaults"`
	CreatedAt       time.Time       `json:"created_at"`
}

type ChannelDefaultResponse struct {
	FeatureFlagID  string `json:"feature_flag_id"`
	ReleaseChannel string `json:"release_channel"`
	Enabled        bool   `json:"enabled"`
}

type TenantOverrideResponse struct {
	FeatureFlagID string `json:"feature_flag_id"`
	TenantID      string `json:"tenant_id"`
	Enabled       bool   `json:"enabled"`
}

var (
	ErrInvalidFlag      = errors.New("invalid_feature_flag")
	ErrInvalidKey       = errors.New("invalid_key")
	ErrInvalidName      = errors.New("invalid_name")
	ErrFlagExists       = errors.New("feature_flag_exists")
	ErrFlagNotFound     = errors.New("feature_flag_not_found")
	ErrOverrideNotFound = errors.New("tenant_override_not_found")
)
