package service

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mybank/internal/database"
	"mybank/internal/domain"
	"mybank/pkg/logger"
	"mybank/pkg/metrics"
)

const tokenIssuer = "mybank"

type tokenClaims struct {
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type IdentityService struct {
	store  *database.Store
	users  domain.UserRepository
	audit  domain.AuditLogService
	hasher *PasswordHasher
	secret []byte
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time
}

func NewIdentityService(
	store *database.Store,
	users domain.UserRepository,
	audit domain.AuditLogService,
	hasher *PasswordHasher,
	secret string,
	ttl time.Duration,
	logger logger.Logger,
) *IdentityService {
	return &IdentityService{
		store:  store,
		users:  users,
		audit:  audit,
		hasher: hasher,
		secret: []byte(secret),
		ttl:    ttl,
		logger: logger,
		now:    utcNow,
	}
}

func (s *IdentityService) Authenticate(ctx context.Context, username, password string) (*domain.User, string, error) {
	var user *domain.User
	err := s.store.Do(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.FindByUsername(ctx, username)
		return err
	})
	if err != nil {
		return nil, "", err
	}

	if user == nil {
		s.hasher.Burn(password)
		metrics.RecordAuthAttempt("invalid_credentials")
		return nil, "", domain.ErrInvalidCredentials
	}
	if !s.hasher.Matches(user.PasswordHash, password) {
		metrics.RecordAuthAttempt("invalid_credentials")
		s.logger.WarnContext(ctx, "Login failed", map[string]interface{}{"user_id": user.ID})
		return nil, "", domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		metrics.RecordAuthAttempt("disabled")
		return nil, "", domain.ErrAccountDisabled
	}

	token, err := s.issue(user)
	if err != nil {
		return nil, "", err
	}

	metrics.RecordAuthAttempt("success")
	s.logger.InfoContext(ctx, "User logged in", map[string]interface{}{
		"user_id":              user.ID,
		"must_change_password": user.MustChangePassword,
	})
	return user, token, nil
}

func (s *IdentityService) issue(user *domain.User) (string, error) {
	now := s.now()
	claims := tokenClaims{
		Role: user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Resolve validates the token and reloads the user, so a role change or
// deactivation applies to tokens that were issued before it.
func (s *IdentityService) Resolve(ctx context.Context, credential string) (*domain.Principal, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(credential, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || claims.Subject == "" {
		return nil, domain.ErrInvalidCredential
	}

	var user *domain.User
	err = s.store.Do(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.FindByID(ctx, claims.Subject)
		return err
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrInvalidCredential
	}
	if !user.IsActive {
		return nil, domain.ErrAccountDisabled
	}

	return &domain.Principal{
		UserID:             user.ID,
		Role:               user.Role,
		MustChangePassword: user.MustChangePassword,
	}, nil
}

func (s *IdentityService) ChangePassword(ctx context.Context, userID, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.users.UpdatePassword(ctx, userID, hash, false, s.now()); err != nil {
			return err
		}
		return s.audit.LogAction(ctx, domain.AuditLog{
			EntityType:  domain.EntityTypeUser,
			EntityID:    userID,
			Action:      domain.ActionTypeUpdate,
			ActorUserID: userID,
			Details:     "Password changed",
		})
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Password changed", map[string]interface{}{"user_id": userID})
	return nil
}
