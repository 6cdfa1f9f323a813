package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/haulboard/gatehouse/internal/config"
	"github.com/haulboard/gatehouse/internal/identity/domain"
	"github.com/haulboard/gatehouse/internal/identity/repository"
	"github.com/haulboard/gatehouse/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&domain.User{}, &domain.AccessToken{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	repo, tokens := repository.New(dbConn)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	svc := New(zap.NewNop(), repo, tokens, node, config.Config{TokenTTLMinutes: 30})
	return svc, dbConn
}

func createUser(t *testing.T, svc domain.Service, email string, admin bool) *domain.User {
	t.Helper()

	user, err := svc.CreateUser(context.Background(), domain.CreateUserRequest{
		Email:           email,
		Password:        "correct-password",
		IsPlatformAdmin: admin,
	})
	if err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user
}

func TestLoginAndResolve(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user := createUser(t, svc, "alice@example.com", false)

	result, err := svc.Login(ctx, domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	})
	if err != nil {
		t.Fatalf("failed to login: %v", err)
	}
	if result.RawToken == "" {
		t.Fatal("expected raw token")
	}
	if got := time.Until(result.ExpiresAt); got > 31*time.Minute || got < 29*time.Minute {
		t.Fatalf("expected ~30m ttl, got %v", got)
	}

	principal, err := svc.Resolve(ctx, result.RawToken)
	if err != nil {
		t.Fatalf("failed to resolve: %v", err)
	}
	if principal.UserID != user.ID {
		t.Fatalf("expected user %v, got %v", user.ID, principal.UserID)
	}
	if principal.IsPlatformAdmin {
		t.Fatal("expected non-admin principal")
	}

	me, err := svc.WhoAmI(ctx, principal)
	if err != nil {
		t.Fatalf("failed to load current user: %v", err)
	}
	if me.Email != "alice@example.com" {
		t.Fatalf("expected alice, got %s", me.Email)
	}
	if me.Name != "alice" {
		t.Fatalf("expected defaulted name alice, got %s", me.Name)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	createUser(t, svc, "alice@example.com", false)

	_, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "wrong-password",
	})
	if err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Login(context.Background(), domain.LoginRequest{
		Email:    "nobody@example.com",
		Password: "correct-password",
	})
	if err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	createUser(t, svc, "alice@example.com", false)

	_, err := svc.CreateUser(ctx, domain.CreateUserRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	})
	if err != domain.ErrUserExists {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	_, err = svc.CreateUser(ctx, domain.CreateUserRequest{
		Email:    "bob@example.com",
		Password: "short",
	})
	if err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	_, err = svc.CreateUser(ctx, domain.CreateUserRequest{
		Email:    "not-an-email",
		Password: "correct-password",
	})
	if err != domain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestResolveRevokedToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	createUser(t, svc, "alice@example.com", false)
	result, err := svc.Login(ctx, domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	})
	if err != nil {
		t.Fatalf("failed to login: %v", err)
	}

	if err := svc.Logout(ctx, result.RawToken); err != nil {
		t.Fatalf("failed to logout: %v", err)
	}
	if _, err := svc.Resolve(ctx, result.RawToken); err != domain.ErrTokenRevoked {
		t.Fatalf("expected ErrTokenRevoked, got %v", err)
	}

	// Repeated logout of the same or an unknown token is not an error.
	if err := svc.Logout(ctx, result.RawToken); err != nil {
		t.Fatalf("expected idempotent logout, got %v", err)
	}
	if err := svc.Logout(ctx, "unknown-token"); err != nil {
		t.Fatalf("expected unknown token logout to pass, got %v", err)
	}
}

func TestResolveExpiredToken(t *testing.T) {
	svc, dbConn := newTestService(t)
	ctx := context.Background()

	user := createUser(t, svc, "alice@example.com", false)

	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	now := time.Now().UTC()
	token := domain.AccessToken{
		ID:         node.Generate(),
		UserID:     user.ID,
		TokenHash:  hashToken("expired-token"),
		Scopes:     []string{"ops"},
		ExpiresAt:  now.Add(-time.Minute),
		CreatedAt:  now.Add(-time.Hour),
		LastSeenAt: now.Add(-time.Hour),
	}
	if err := dbConn.Create(&token).Error; err != nil {
		t.Fatalf("failed to seed token: %v", err)
	}

	if _, err := svc.Resolve(ctx, "expired-token"); err != domain.ErrTokenExpired {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestResolveInactiveUser(t *testing.T) {
	svc, dbConn := newTestService(t)
	ctx := context.Background()

	user := createUser(t, svc, "alice@example.com", false)
	result, err := svc.Login(ctx, domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	})
	if err != nil {
		t.Fatalf("failed to login: %v", err)
	}

	err = dbConn.Model(&domain.User{}).
		Where("id = ?", user.ID).
		Update("status", string(domain.UserStatusDisabled)).Error
	if err != nil {
		t.Fatalf("failed to disable user: %v", err)
	}

	if _, err := svc.Resolve(ctx, result.RawToken); err != domain.ErrUserInactive {
		t.Fatalf("expected ErrUserInactive, got %v", err)
	}
}

func TestResolveReadsAdminFlagFresh(t *testing.T) {
	svc, dbConn := newTestService(t)
	ctx := context.Background()

	user := createUser(t, svc, "alice@example.com", false)
	result, err := svc.Login(ctx, domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	})
	if err != nil {
		t.Fatalf("failed to login: %v", err)
	}

	principal, err := svc.Resolve(ctx, result.RawToken)
	if err != nil || principal.IsPlatformAdmin {
		t.Fatalf("expected non-admin, got %+v err=%v", principal, err)
	}

	err = dbConn.Model(&domain.User{}).
		Where("id = ?", user.ID).
		Update("is_platform_admin", true).Error
	if err != nil {
		t.Fatalf("failed to promote user: %v", err)
	}

	principal, err = svc.Resolve(ctx, result.RawToken)
	if err != nil || !principal.IsPlatformAdmin {
		t.Fatalf("expected promoted admin on next resolve, got %+v err=%v", principal, err)
	}
}

func TestChangePassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	user := createUser(t, svc, "alice@example.com", false)

	if err := svc.ChangePassword(ctx, user.ID, "rotated-password"); err != nil {
		t.Fatalf("failed to change password: %v", err)
	}

	_, err := svc.Login(ctx, domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "correct-password",
	})
	if err != domain.ErrInvalidCredentials {
		t.Fatalf("expected old password rejected, got %v", err)
	}

	if _, err := svc.Login(ctx, domain.LoginRequest{
		Email:    "alice@example.com",
		Password: "rotated-password",
	}); err != nil {
		t.Fatalf("expected new password accepted, got %v", err)
	}
}
