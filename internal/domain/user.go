package domain

import (
	"context"
	"strings"
	"time"
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleTeller   Role = "teller"
	RoleAdmin    Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleCustomer:
		return RoleCustomer, nil
	case RoleTeller:
		return RoleTeller, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", ErrInvalidRole.WithMessage("unknown role %q", s)
}

func (r Role) IsStaff() bool {
	return r == RoleTeller || r == RoleAdmin
}

type User struct {
	ID                 string    `json:"id"`
	Username           string    `json:"username"`
	FirstName          string    `json:"firstName"`
	LastName           string    `json:"lastName"`
	Role               Role      `json:"role"`
	IsActive           bool      `json:"isActive"`
	MustChangePassword bool      `json:"mustChangePassword"`
	PasswordHash       string    `json:"-"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Principal is the resolved identity behind a credential.
type Principal struct {
	UserID             string `json:"userId"`
	Role               Role   `json:"role"`
	MustChangePassword bool   `json:"mustChangePassword"`
}

func (p Principal) IsStaff() bool {
	return p.Role.IsStaff()
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// CanAccessOwner reports whether p may read resources owned by ownerID.
func (p Principal) CanAccessOwner(ownerID string) bool {
	return p.IsStaff() || p.UserID == ownerID
}

type NewUser struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	Role      Role   `json:"role"`
}

type UserRepository interface {
	Create(ctx context.Context, user *User) error
	// FindByID and FindByUsername return nil, nil when no row matches.
	FindByID(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, mustChange bool, at time.Time) error
	UpdateRole(ctx context.Context, id string, role Role, at time.Time) error
	UpdateActive(ctx context.Context, id string, active bool, at time.Time) error
	Search(ctx context.Context, query string) ([]*User, error)
}

type IdentityService interface {
	Authenticate(ctx context.Context, username, password string) (*User, string, error)
	Resolve(ctx context.Context, credential string) (*Principal, error)
	ChangePassword(ctx context.Context, userID, newPassword string) error
}

type UserService interface {
	Register(ctx context.Context, input NewUser) (*User, error)
	CreateUser(ctx context.Context, actor Principal, input NewUser) (*User, error)
	GetUser(ctx context.Context, actor Principal, id string) (*User, error)
	UpdateRole(ctx context.Context, actor Principal, id string, role Role) (*User, error)
	ToggleActive(ctx context.Context, actor Principal, id string) (*User, error)
	Search(ctx context.Context, actor Principal, query string) ([]*User, error)
	EnsureAdmin(ctx context.Context, username, password string) error
}

type principalKey struct{}

func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
