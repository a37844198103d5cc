package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mybank/internal/domain"
	"mybank/pkg/logger"
)

func TestLoginFailuresLookTheSame(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.customer(t, "alice")

	_, _, unknown := h.identity.Authenticate(ctx, "nobody", testPassword)
	_, _, wrong := h.identity.Authenticate(ctx, "alice", "wrong-password")

	require.ErrorIs(t, unknown, domain.ErrInvalidCredentials)
	require.ErrorIs(t, wrong, domain.ErrInvalidCredentials)
	assert.Equal(t, unknown.Error(), wrong.Error())
}

func TestTokenResolvesToCurrentPrincipal(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.customer(t, "bob")
	admin := h.staff(t, "root", domain.RoleAdmin)

	user, token, err := h.identity.Authenticate(ctx, "BOB", testPassword)
	require.NoError(t, err)
	assert.Equal(t, customer.UserID, user.ID)

	principal, err := h.identity.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, customer.UserID, principal.UserID)
	assert.Equal(t, domain.RoleCustomer, principal.Role)
	assert.False(t, principal.MustChangePassword)

	_, err = h.userSvc.UpdateRole(ctx, admin, customer.UserID, domain.RoleTeller)
	require.NoError(t, err)
	principal, err = h.identity.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTeller, principal.Role)
}

func TestInvalidTokensAreRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.customer(t, "carol")

	_, token, err := h.identity.Authenticate(ctx, "carol", testPassword)
	require.NoError(t, err)

	_, err = h.identity.Resolve(ctx, token+"x")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
	_, err = h.identity.Resolve(ctx, "")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)

	other := NewIdentityService(h.store, h.users, h.audit, h.hasher, "another-secret", time.Hour, logger.Nop())
	_, err = other.Resolve(ctx, token)
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)

	h.identity.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = h.identity.Resolve(ctx, token)
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestChangePasswordEnforcesLength(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	customer := h.customer(t, "dan")

	assert.ErrorIs(t, h.identity.ChangePassword(ctx, customer.UserID, "short"), domain.ErrWeakPassword)
	assert.ErrorIs(t, h.identity.ChangePassword(ctx, "missing", "long-enough"), domain.ErrUserNotFound)

	require.NoError(t, h.identity.ChangePassword(ctx, customer.UserID, "sixsix"))
	_, _, err := h.identity.Authenticate(ctx, "dan", "sixsix")
	require.NoError(t, err)
}
