package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"mybank/internal/database"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

const (
	minUsernameLength = 3
	maxUsernameLength = 64
	maxNameLength     = 100
)

type UserService struct {
	store  *database.Store
	repo   domain.UserRepository
	audit  domain.AuditLogService
	hasher *PasswordHasher
	logger logger.Logger
	now    func() time.Time
}

func NewUserService(
	store *database.Store,
	repo domain.UserRepository,
	audit domain.AuditLogService,
	hasher *PasswordHasher,
	logger logger.Logger,
) *UserService {
	return &UserService{
		store:  store,
		repo:   repo,
		audit:  audit,
		hasher: hasher,
		logger: logger,
		now:    utcNow,
	}
}

// Register is self-service signup. The role is always customer.
func (s *UserService) Register(ctx context.Context, input domain.NewUser) (*domain.User, error) {
	input.Role = domain.RoleCustomer
	return s.create(ctx, input, "")
}

// CreateUser lets staff create users. Tellers can only create customers, so a
// teller asking for any other role gets a customer.
func (s *UserService) CreateUser(ctx context.Context, actor domain.Principal, input domain.NewUser) (*domain.User, error) {
	switch actor.Role {
	case domain.RoleAdmin:
		if input.Role == "" {
			input.Role = domain.RoleCustomer
		}
		if _, err := domain.ParseRole(string(input.Role)); err != nil {
			return nil, err
		}
	case domain.RoleTeller:
		input.Role = domain.RoleCustomer
	default:
		return nil, domain.ErrForbidden
	}
	return s.create(ctx, input, actor.UserID)
}

func (s *UserService) create(ctx context.Context, input domain.NewUser, actorID string) (*domain.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	if err := validateNewUser(input); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     input.Username,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Role:         input.Role,
		IsActive:     true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, user); err != nil {
			return err
		}
		return s.audit.LogAction(ctx, domain.AuditLog{
			EntityType:  domain.EntityTypeUser,
			EntityID:    user.ID,
			Action:      domain.ActionTypeCreate,
			ActorUserID: actorID,
			Details:     fmt.Sprintf("Created %s %s", user.Role, user.Username),
		})
	})
	if err != nil {
		s.logger.WarnContext(ctx, "User could not be created", map[string]interface{}{
			"username": input.Username,
			"error":    err.Error(),
		})
		return nil, err
	}

	s.logger.InfoContext(ctx, "User created", map[string]interface{}{
		"user_id": user.ID,
		"role":    user.Role,
	})
	return user, nil
}

func validateNewUser(input domain.NewUser) error {
	if n := len(input.Username); n < minUsernameLength || n > maxUsernameLength {
		return domain.ErrInvalidInput.WithMessage("username must be %d to %d characters", minUsernameLength, maxUsernameLength)
	}
	if strings.IndexFunc(input.Username, unicode.IsSpace) >= 0 {
		return domain.ErrInvalidInput.WithMessage("username cannot contain spaces")
	}
	if input.FirstName == "" || input.LastName == "" {
		return domain.ErrInvalidInput.WithMessage("first and last name are required")
	}
	if len(input.FirstName) > maxNameLength || len(input.LastName) > maxNameLength {
		return domain.ErrInvalidInput.WithMessage("names must be at most %d characters", maxNameLength)
	}
	return validatePassword(input.Password)
}

func (s *UserService) GetUser(ctx context.Context, actor domain.Principal, id string) (*domain.User, error) {
	if actor.UserID != id && !actor.IsStaff() {
		return nil, domain.ErrForbidden
	}
	return s.load(ctx, id)
}

func (s *UserService) load(ctx context.Context, id string) (*domain.User, error) {
	var user *domain.User
	err := s.store.Do(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.repo.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *UserService) UpdateRole(ctx context.Context, actor domain.Principal, id string, role domain.Role) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return nil, err
	}
	if actor.UserID == id {
		return nil, domain.ErrSelfModification.WithMessage("admins cannot change their own role")
	}

	var user *domain.User
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrUserNotFound
		}
		previous := user.Role
		user.Role = role
		user.UpdatedAt = s.now()
		if err := s.repo.UpdateRole(ctx, id, role, user.UpdatedAt); err != nil {
			return err
		}
		return s.audit.LogAction(ctx, domain.AuditLog{
			EntityType:  domain.EntityTypeUser,
			EntityID:    id,
			Action:      domain.ActionTypeUpdate,
			ActorUserID: actor.UserID,
			Details:     fmt.Sprintf("Role changed from %s to %s", previous, role),
		})
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) ToggleActive(ctx context.Context, actor domain.Principal, id string) (*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	if actor.UserID == id {
		return nil, domain.ErrSelfModification.WithMessage("admins cannot disable themselves")
	}

	var user *domain.User
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrUserNotFound
		}
		user.IsActive = !user.IsActive
		user.UpdatedAt = s.now()
		if err := s.repo.UpdateActive(ctx, id, user.IsActive, user.UpdatedAt); err != nil {
			return err
		}
		state := "disabled"
		if user.IsActive {
			state = "enabled"
		}
		return s.audit.LogAction(ctx, domain.AuditLog{
			EntityType:  domain.EntityTypeUser,
			EntityID:    id,
			Action:      domain.ActionTypeUpdate,
			ActorUserID: actor.UserID,
			Details:     "User " + state,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "User status changed", map[string]interface{}{
		"user_id":   id,
		"is_active": user.IsActive,
	})
	return user, nil
}

func (s *UserService) Search(ctx context.Context, actor domain.Principal, query string) ([]*domain.User, error) {
	if !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	var users []*domain.User
	err := s.store.Do(ctx, func(ctx context.Context) error {
		var err error
		users, err = s.repo.Search(ctx, strings.TrimSpace(query))
		return err
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// EnsureAdmin creates the bootstrap administrator on an empty install. An
// existing user with that name is left untouched.
func (s *UserService) EnsureAdmin(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return nil
	}

	var existing *domain.User
	err := s.store.Do(ctx, func(ctx context.Context) error {
		var err error
		existing, err = s.repo.FindByUsername(ctx, username)
		return err
	})
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Role != domain.RoleAdmin {
			s.logger.Warn("Bootstrap admin username belongs to a non-admin user", map[string]interface{}{
				"username": username,
			})
		}
		return nil
	}

	_, err = s.create(ctx, domain.NewUser{
		FirstName: "System",
		LastName:  "Administrator",
		Username:  username,
		Password:  password,
		Role:      domain.RoleAdmin,
	}, "")
	return err
}
