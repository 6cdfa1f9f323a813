package domain

import (
	"context"
	"errors"
	"time"

	"github.com/haulboard/gatehouse/internal/authorization"
)

const (
	// MinReasonLength is the shortest acceptable justification for opening
	// a session; the reason lands in the audit trail verbatim.
	MinReasonLength = 10

	DefaultDurationMinutes = 30
	MaxDurationMinutes     = 60
)

// Validation result reason codes. Ownership is checked before any other
// session fact so a non-owner only ever sees not_owner.
const (
	ReasonSessionNotFound = "session_not_found"
	ReasonNotOwner        = "not_owner"
	ReasonExpired         = "expired"
	ReasonRevoked         = "revoked"
	ReasonTenantNotFound  = "tenant_not_found"
)

type Service interface {
	// Start opens a session for (admin, tenant). The requested duration is
	// clamped to MaxDurationMinutes; a missing or non-positive duration
	// falls back to DefaultDurationMinutes. At most one active session may
	// exist per (admin, tenant) pair.
	Start(ctx context.Context, admin authorization.Principal, req StartRequest) (*SessionResponse, error)

	// Validate reports whether the session grants access right now. Session
	// state outcomes never surface as errors; the result always carries a
	// reason code when invalid.
	Validate(ctx context.Context, admin authorization.Principal, sessionID string) (*ValidateResult, error)

	// Revoke terminates a session owned by admin. Revoking an
	// already-revoked session is a no-op, not an error.
	Revoke(ctx context.Context, admin authorization.Principal, sessionID string) error

	// ListActive returns the admin's currently active sessions.
	ListActive(ctx context.Context, admin authorization.Principal) ([]SessionResponse, error)
}

type StartRequest struct {
	TenantID        string `json:"tenant_id"`
	Reason          string `json:"reason"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type SessionResponse struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	TenantName      string    `json:"tenant_name"`
	TenantSlug      string    `json:"tenant_slug"`
	Reason          string    `json:"reason"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	DurationMinutes int       `json:"duration_minutes"`
}

type ValidateResult struct {
	Valid   bool             `json:"valid"`
	Reason  string           `json:"reason,omitempty"`
	Session *SessionResponse `json:"session,omitempty"`
}

var (
	ErrInvalidTenant       = errors.New("invalid_tenant")
	ErrReasonTooShort      = errors.New("reason_too_short")
	ErrSessionNotFound     = errors.New("session_not_found")
	ErrNotSessionOwner     = errors.New("not_session_owner")
	ErrActiveSessionExists = errors.New("active_session_exists")
)
