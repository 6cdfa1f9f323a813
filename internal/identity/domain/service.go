package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/haulboard/gatehouse/internal/authorization"
)

type CreateUserRequest struct {
	Email           string `json:"email"`
	Name            string `json:"name"`
	Password        string `json:"password"`
	IsPlatformAdmin bool   `json:"is_platform_admin"`
}

type LoginRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	UserAgent string `json:"-"`
	IPAddress string `json:"-"`
}

type LoginResult struct {
	RawToken  string
	TokenID   snowflake.ID
	Scopes    []string
	ExpiresAt time.Time
	User      *User
}

type Service interface {
	// CreateUser registers an account. Platform-admin accounts are only
	// created through this path (bootstrap seeding and operator tooling).
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)

	// Login verifies email+password and mints an opaque bearer token.
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)

	// Logout revokes the presented token. Revoking an already-revoked or
	// unknown token is not an error.
	Logout(ctx context.Context, rawToken string) error

	// Resolve turns a bearer token into a Principal. The user row is read
	// fresh on every call so a platform-admin or status change takes effect
	// on the next request.
	Resolve(ctx context.Context, rawToken string) (authorization.Principal, error)

	// WhoAmI loads the account behind a resolved principal.
	WhoAmI(ctx context.Context, principal authorization.Principal) (*User, error)

	// ChangePassword replaces the password hash for an account.
	ChangePassword(ctx context.Context, userID snowflake.ID, newPassword string) error
}
