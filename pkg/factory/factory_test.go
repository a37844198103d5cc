package factory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mybank/internal/config"
	"mybank/internal/database/dbtest"
	"mybank/internal/domain"
	"mybank/internal/service"
	"mybank/pkg/cache"
	"mybank/pkg/cache/cachetest"
	"mybank/pkg/factory"
	"mybank/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv: "test",
		Auth:   config.AuthConfig{JWTSecret: "factory-test", TokenTTL: time.Hour, BcryptCost: 4},
		Redis:  config.RedisConfig{CacheTTL: time.Minute},
	}
}

func TestLedgerIsCachedOnlyWithCache(t *testing.T) {
	plain := factory.New(testConfig(), dbtest.New(t), nil, logger.Nop())
	_, cached := plain.GetLedgerService().(*service.CachedLedgerService)
	assert.False(t, cached)
	assert.Nil(t, plain.GetCache())

	withCache := factory.New(testConfig(), dbtest.New(t), cachetest.NewMemory(), logger.Nop())
	_, cached = withCache.GetLedgerService().(*service.CachedLedgerService)
	assert.True(t, cached)
}

func TestWorkflowApprovalInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	mem := cachetest.NewMemory()
	f := factory.New(testConfig(), dbtest.New(t), mem, logger.Nop())

	require.NoError(t, f.GetUserService().EnsureAdmin(ctx, "root", "rootpw"))
	adminUser, err := f.GetUserRepository().FindByUsername(ctx, "root")
	require.NoError(t, err)
	admin := domain.Principal{UserID: adminUser.ID, Role: domain.RoleAdmin}

	u, err := f.GetUserService().Register(ctx, domain.NewUser{FirstName: "A", LastName: "B", Username: "abby", Password: "secret1"})
	require.NoError(t, err)
	owner := domain.Principal{UserID: u.ID, Role: u.Role}

	account, err := f.GetLedgerService().CreateAccount(ctx, u.ID, domain.AccountSavings, 0)
	require.NoError(t, err)
	_, err = f.GetLedgerService().GetAccount(ctx, owner, account.ID)
	require.NoError(t, err)
	require.True(t, mem.Has(cache.AccountKey(account.ID)))

	req, err := f.GetWorkflowService().SubmitAccountDeletion(ctx, owner, account.ID, "moving")
	require.NoError(t, err)
	_, err = f.GetWorkflowService().Resolve(ctx, admin, req.ID, domain.DecisionApprove, "")
	require.NoError(t, err)

	assert.False(t, mem.Has(cache.AccountKey(account.ID)))
	got, err := f.GetLedgerService().GetAccount(ctx, owner, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountClosed, got.Status)
}
