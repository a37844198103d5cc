package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mybank/internal/domain"
	"mybank/pkg/cache"
	"mybank/pkg/cache/cachetest"
	"mybank/pkg/logger"
)

func TestCachedLedgerInvalidatesOnPosting(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mem := cachetest.NewMemory()
	ledger := NewCachedLedgerService(h.ledger, mem, time.Minute, logger.Nop())
	owner := h.customer(t, "alice")
	account := h.openAccount(t, owner, domain.AccountSavings, domain.Dollars(5))

	got, err := ledger.GetAccount(ctx, owner, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Dollars(5), got.Balance)
	assert.True(t, mem.Has(cache.AccountKey(account.ID)))

	_, err = ledger.ListTransactions(ctx, owner, account.ID, domain.TransactionFilter{SortBy: domain.SortByCreatedAt})
	require.NoError(t, err)
	assert.Equal(t, 2, mem.Len())

	_, err = ledger.PostTransaction(ctx, owner, domain.PostingInput{AccountID: account.ID, Type: domain.TransactionDeposit, Amount: domain.Dollars(1)})
	require.NoError(t, err)
	assert.Zero(t, mem.Len())

	got, err = ledger.GetAccount(ctx, owner, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Dollars(6), got.Balance)
}

func TestCachedLedgerChecksAccessOnHits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	ledger := NewCachedLedgerService(h.ledger, cachetest.NewMemory(), time.Minute, logger.Nop())
	owner := h.customer(t, "bob")
	stranger := h.customer(t, "eve")
	account := h.openAccount(t, owner, domain.AccountSavings, 0)

	_, err := ledger.GetAccount(ctx, owner, account.ID)
	require.NoError(t, err)

	_, err = ledger.GetAccount(ctx, stranger, account.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = ledger.ListTransactions(ctx, stranger, account.ID, domain.TransactionFilter{})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCachedLedgerInvalidatesAfterOuterCommit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mem := cachetest.NewMemory()
	ledger := NewCachedLedgerService(h.ledger, mem, time.Minute, logger.Nop())
	owner := h.customer(t, "carol")
	account := h.openAccount(t, owner, domain.AccountSavings, 0)

	_, err := ledger.GetAccount(ctx, owner, account.ID)
	require.NoError(t, err)

	err = h.store.WithTx(ctx, func(ctx context.Context) error {
		if _, err := ledger.DeleteAccount(ctx, account.ID); err != nil {
			return err
		}
		assert.True(t, mem.Has(cache.AccountKey(account.ID)))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mem.Has(cache.AccountKey(account.ID)))
}

func TestCachedLedgerSurvivesCacheOutage(t *testing.T) {
	h := newHarness(t)
	mem := cachetest.NewMemory()
	mem.FailReads(true)
	ledger := NewCachedLedgerService(h.ledger, mem, time.Minute, logger.Nop())
	owner := h.customer(t, "dan")
	account := h.openAccount(t, owner, domain.AccountSavings, domain.Dollars(2))

	got, err := ledger.GetAccount(context.Background(), owner, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Dollars(2), got.Balance)
}

func TestCachedLedgerDropsLateStaleWrites(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	mem := cachetest.NewMemory()
	ledger := NewCachedLedgerService(h.ledger, mem, time.Minute, logger.Nop())
	ledger.recheckDelay = 20 * time.Millisecond
	owner := h.customer(t, "fran")
	account := h.openAccount(t, owner, domain.AccountSavings, domain.Dollars(5))

	_, err := ledger.PostTransaction(ctx, owner, domain.PostingInput{AccountID: account.ID, Type: domain.TransactionDeposit, Amount: domain.Dollars(1)})
	require.NoError(t, err)

	// A reader that loaded the row before the commit writes it back late.
	require.NoError(t, mem.Set(ctx, cache.AccountKey(account.ID), account, time.Minute))
	require.Eventually(t, func() bool {
		return !mem.Has(cache.AccountKey(account.ID))
	}, time.Second, 5*time.Millisecond)

	got, err := ledger.GetAccount(ctx, owner, account.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Dollars(6), got.Balance)
}
