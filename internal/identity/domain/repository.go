package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, user *User) error
	FindOne(ctx context.Context, user User) (*User, error)
	FindByID(ctx context.Context, id snowflake.ID) (*User, error)
	UpdateFields(ctx context.Context, id snowflake.ID, fields map[string]any) error
}

type TokenRepository interface {
	CreateToken(ctx context.Context, token *AccessToken) error
	GetTokenByHash(ctx context.Context, hash string) (*AccessToken, error)
	RevokeToken(ctx context.Context, id snowflake.ID, at time.Time) error
	UpdateLastSeen(ctx context.Context, id snowflake.ID, at time.Time) error
}
