package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/haulboard/gatehouse/internal/audit/masking"
	"github.com/haulboard/gatehouse/internal/authorization"
	"github.com/haulboard/gatehouse/internal/config"
	"github.com/haulboard/gatehouse/internal/identity/domain"
	"github.com/haulboard/gatehouse/internal/identity/password"
	"github.com/haulboard/gatehouse/pkg/db"
	"go.uber.org/zap"
)

const (
	accessTokenBytes = 32
	defaultTokenTTL  = 60 * time.Minute

	minPasswordLength = 8

	scopeOps = "ops"
)

type Service struct {
	log      *zap.Logger
	repo     domain.Repository
	tokens   domain.TokenRepository
	genID    *snowflake.Node
	tokenTTL time.Duration
}

func New(log *zap.Logger, repo domain.Repository, tokens domain.TokenRepository, genID *snowflake.Node, cfg config.Config) domain.Service {
	ttl := defaultTokenTTL
	if cfg.TokenTTLMinutes > 0 {
		ttl = time.Duration(cfg.TokenTTLMinutes) * time.Minute
	}
	return &Service{
		log:      log.Named("identity.service"),
		repo:     repo,
		tokens:   tokens,
		genID:    genID,
		tokenTTL: ttl,
	}
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if len(strings.TrimSpace(req.Password)) < minPasswordLength {
		return nil, domain.ErrInvalidCredentials
	}

	if _, err := s.repo.FindOne(ctx, domain.User{Email: email}); err == nil {
		return nil, domain.ErrUserExists
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = defaultName(email)
	}
	user := &domain.User{
		ID:              s.genID.Generate(),
		Email:           email,
		Name:            name,
		PasswordHash:    &hashed,
		IsPlatformAdmin: req.IsPlatformAdmin,
		Status:          domain.UserStatusActive,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrUserExists
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindOne(ctx, domain.User{Email: email})
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == nil || !password.Verify(req.Password, *user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}
	if user.Status != domain.UserStatusActive {
		return nil, domain.ErrUserInactive
	}

	rawToken, err := newAccessToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	token := &domain.AccessToken{
		ID:         s.genID.Generate(),
		UserID:     user.ID,
		TokenHash:  hashToken(rawToken),
		Scopes:     []string{scopeOps},
		ExpiresAt:  now.Add(s.tokenTTL),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.tokens.CreateToken(ctx, token); err != nil {
		return nil, err
	}

	s.log.Info("access token issued",
		zap.String("user_id", user.ID.String()),
		zap.String("token", masking.MaskSecret(rawToken)),
		zap.Time("expires_at", token.ExpiresAt),
	)

	return &domain.LoginResult{
		RawToken:  rawToken,
		TokenID:   token.ID,
		Scopes:    token.Scopes,
		ExpiresAt: token.ExpiresAt,
		User:      user,
	}, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	raw := strings.TrimSpace(rawToken)
	if raw == "" {
		return domain.ErrInvalidToken
	}

	token, err := s.tokens.GetTokenByHash(ctx, hashToken(raw))
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return nil
		}
		return err
	}
	return s.tokens.RevokeToken(ctx, token.ID, time.Now().UTC())
}

func (s *Service) Resolve(ctx context.Context, rawToken string) (authorization.Principal, error) {
	raw := strings.TrimSpace(rawToken)
	if raw == "" {
		return authorization.Principal{}, domain.ErrInvalidToken
	}

	token, err := s.tokens.GetTokenByHash(ctx, hashToken(raw))
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return authorization.Principal{}, domain.ErrInvalidToken
		}
		return authorization.Principal{}, err
	}

	now := time.Now().UTC()
	if token.RevokedAt != nil {
		return authorization.Principal{}, domain.ErrTokenRevoked
	}
	if now.After(token.ExpiresAt) {
		return authorization.Principal{}, domain.ErrTokenExpired
	}
	if !hasScope(token.Scopes, scopeOps) {
		return authorization.Principal{}, domain.ErrInvalidToken
	}

	user, err := s.repo.FindByID(ctx, token.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return authorization.Principal{}, domain.ErrInvalidToken
		}
		return authorization.Principal{}, err
	}
	if user.Status != domain.UserStatusActive {
		return authorization.Principal{}, domain.ErrUserInactive
	}

	if err := s.tokens.UpdateLastSeen(ctx, token.ID, now); err != nil {
		return authorization.Principal{}, err
	}

	return authorization.Principal{
		UserID:          user.ID,
		IsPlatformAdmin: user.IsPlatformAdmin,
	}, nil
}

func (s *Service) WhoAmI(ctx context.Context, principal authorization.Principal) (*domain.User, error) {
	if principal.UserID == 0 {
		return nil, domain.ErrUserNotFound
	}
	return s.repo.FindByID(ctx, principal.UserID)
}

func (s *Service) ChangePassword(ctx context.Context, userID snowflake.ID, newPassword string) error {
	if len(strings.TrimSpace(newPassword)) < minPasswordLength {
		return domain.ErrInvalidCredentials
	}
	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		return err
	}

	hashed, err := password.Hash(newPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	return s.repo.UpdateFields(ctx, userID, map[string]any{
		"password_hash": hashed,
		"updated_at":    now,
	})
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func defaultName(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) > 0 && strings.TrimSpace(parts[0]) != "" {
		return strings.TrimSpace(parts[0])
	}
	return email
}

func newAccessToken() (string, error) {
	buf := make([]byte, accessTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func hasScope(scopes []string, want string) bool {
	for _, scope := range scopes {
		if strings.EqualFold(strings.TrimSpace(scope), want) {
			return true
		}
	}
	return false
}
