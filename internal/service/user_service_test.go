package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mybank/internal/domain"
)

func TestTellerCreatedUsersAreCustomers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	teller := h.staff(t, "tina", domain.RoleTeller)
	admin := h.staff(t, "root", domain.RoleAdmin)

	user, err := h.userSvc.CreateUser(ctx, teller, domain.NewUser{
		FirstName: "Mallory", LastName: "Smith", Username: "mallory", Password: testPassword, Role: domain.RoleAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, user.Role)

	teller2, err := h.userSvc.CreateUser(ctx, admin, domain.NewUser{
		FirstName: "Ted", LastName: "Jones", Username: "ted", Password: testPassword, Role: domain.RoleTeller,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTeller, teller2.Role)

	_, err = h.userSvc.CreateUser(ctx, h.customer(t, "cust"), domain.NewUser{
		FirstName: "No", LastName: "Way", Username: "noway", Password: testPassword,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCreateUserValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.customer(t, "alice")

	_, err := h.userSvc.Register(ctx, domain.NewUser{FirstName: "A", LastName: "B", Username: "ALICE", Password: testPassword})
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)

	_, err = h.userSvc.Register(ctx, domain.NewUser{FirstName: "A", LastName: "B", Username: "shorty", Password: "12345"})
	assert.ErrorIs(t, err, domain.ErrWeakPassword)

	_, err = h.userSvc.Register(ctx, domain.NewUser{FirstName: "", LastName: "B", Username: "nofirst", Password: testPassword})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = h.userSvc.Register(ctx, domain.NewUser{FirstName: "A", LastName: "B", Username: "has space", Password: testPassword})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	user, err := h.userSvc.Register(ctx, domain.NewUser{FirstName: "A", LastName: "B", Username: "sneaky", Password: testPassword, Role: domain.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, user.Role)
	assert.NotEqual(t, testPassword, user.PasswordHash)
}

func TestRoleChangesAreAdminOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.customer(t, "bob")
	teller := h.staff(t, "tom", domain.RoleTeller)
	admin := h.staff(t, "root", domain.RoleAdmin)

	_, err := h.userSvc.UpdateRole(ctx, teller, customer.UserID, domain.RoleTeller)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = h.userSvc.UpdateRole(ctx, admin, admin.UserID, domain.RoleCustomer)
	assert.ErrorIs(t, err, domain.ErrSelfModification)

	_, err = h.userSvc.UpdateRole(ctx, admin, "missing", domain.RoleTeller)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = h.userSvc.UpdateRole(ctx, admin, customer.UserID, domain.Role("owner"))
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	updated, err := h.userSvc.UpdateRole(ctx, admin, customer.UserID, domain.RoleTeller)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTeller, updated.Role)

	stored, err := h.users.FindByID(ctx, customer.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTeller, stored.Role)
}

func TestToggleActiveBlocksLogin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.customer(t, "carl")
	admin := h.staff(t, "root", domain.RoleAdmin)

	_, token, err := h.identity.Authenticate(ctx, "carl", testPassword)
	require.NoError(t, err)

	disabled, err := h.userSvc.ToggleActive(ctx, admin, customer.UserID)
	require.NoError(t, err)
	assert.False(t, disabled.IsActive)

	_, _, err = h.identity.Authenticate(ctx, "carl", testPassword)
	assert.ErrorIs(t, err, domain.ErrAccountDisabled)
	_, err = h.identity.Resolve(ctx, token)
	assert.ErrorIs(t, err, domain.ErrAccountDisabled)

	enabled, err := h.userSvc.ToggleActive(ctx, admin, customer.UserID)
	require.NoError(t, err)
	assert.True(t, enabled.IsActive)

	_, err = h.userSvc.ToggleActive(ctx, admin, admin.UserID)
	assert.ErrorIs(t, err, domain.ErrSelfModification)
}

func TestUserSearchAndLookup(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.customer(t, "alice")
	h.customer(t, "albert")
	bob := h.customer(t, "bob")
	teller := h.staff(t, "tom", domain.RoleTeller)
	admin := h.staff(t, "root", domain.RoleAdmin)

	_, err := h.userSvc.Search(ctx, teller, "al")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	found, err := h.userSvc.Search(ctx, admin, "AL")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	all, err := h.userSvc.Search(ctx, admin, "")
	require.NoError(t, err)
	assert.Len(t, all, 5)

	_, err = h.userSvc.GetUser(ctx, bob, alice.UserID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	self, err := h.userSvc.GetUser(ctx, alice, alice.UserID)
	require.NoError(t, err)
	assert.Equal(t, "alice", self.Username)
	_, err = h.userSvc.GetUser(ctx, teller, "missing")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestEnsureAdminIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.userSvc.EnsureAdmin(ctx, "admin", "bootstrap-pass"))
	require.NoError(t, h.userSvc.EnsureAdmin(ctx, "admin", "other-pass"))
	require.NoError(t, h.userSvc.EnsureAdmin(ctx, "", ""))

	user, _, err := h.identity.Authenticate(ctx, "admin", "bootstrap-pass")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, user.Role)
}
