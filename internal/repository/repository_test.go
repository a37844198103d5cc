package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mybank/internal/database"
	"mybank/internal/database/dbtest"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

type fixture struct {
	store    *database.Store
	users    domain.UserRepository
	accounts domain.AccountRepository
	txs      domain.TransactionRepository
	requests domain.RequestRepository
	audit    domain.AuditLogRepository
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := dbtest.New(t)
	log := logger.Nop()
	return &fixture{
		store:    store,
		users:    NewUserRepository(store, log),
		accounts: NewAccountRepository(store, log),
		txs:      NewTransactionRepository(store, log),
		requests: NewRequestRepository(store, log),
		audit:    NewAuditLogRepository(store, log),
		now:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (f *fixture) user(t *testing.T, username, first, last string) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		FirstName:    first,
		LastName:     last,
		Role:         domain.RoleCustomer,
		IsActive:     true,
		PasswordHash: "hash",
		CreatedAt:    f.now,
		UpdatedAt:    f.now,
	}
	require.NoError(t, f.users.Create(context.Background(), u))
	return u
}

func (f *fixture) account(t *testing.T, owner *domain.User, number string, typ domain.AccountType, balance domain.Money) *domain.Account {
	t.Helper()
	a := &domain.Account{
		ID:            uuid.NewString(),
		AccountNumber: number,
		OwnerUserID:   owner.ID,
		AccountType:   typ,
		Balance:       balance,
		Status:        domain.AccountActive,
		CreatedAt:     f.now,
		UpdatedAt:     f.now,
	}
	require.NoError(t, f.accounts.Create(context.Background(), a))
	return a
}

func TestUsernameIsCaseInsensitive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.user(t, "Alice", "Alice", "Smith")

	found, err := f.users.FindByUsername(ctx, "ALICE")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "Alice", found.Username)

	dup := &domain.User{
		ID: uuid.NewString(), Username: "alice", FirstName: "A", LastName: "B",
		Role: domain.RoleCustomer, PasswordHash: "x", CreatedAt: f.now, UpdatedAt: f.now,
	}
	assert.ErrorIs(t, f.users.Create(ctx, dup), domain.ErrUsernameTaken)
}

func TestFindMissingReturnsNil(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u, err := f.users.FindByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, u)

	a, err := f.accounts.FindByID(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestDebitIsConditional(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "bob", "Bob", "Jones")
	acct := f.account(t, owner, "ACCT-0000000001", domain.AccountSavings, domain.Dollars(100))

	balance, err := f.accounts.Debit(ctx, acct.ID, domain.Dollars(60), f.now)
	require.NoError(t, err)
	assert.Equal(t, domain.Dollars(40), balance)

	_, err = f.accounts.Debit(ctx, acct.ID, domain.Dollars(60), f.now)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	reloaded, err := f.accounts.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.Dollars(40), reloaded.Balance)
}

func TestClosedAccountsAreHiddenAndFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "carol", "Carol", "White")
	acct := f.account(t, owner, "ACCT-0000000002", domain.AccountChecking, 0)

	closed, err := f.accounts.Close(ctx, acct.ID, f.now)
	require.NoError(t, err)
	assert.True(t, closed)

	again, err := f.accounts.Close(ctx, acct.ID, f.now)
	require.NoError(t, err)
	assert.False(t, again)

	list, err := f.accounts.FindByOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.accounts.Credit(ctx, acct.ID, domain.Dollars(5), f.now)
	assert.ErrorIs(t, err, domain.ErrAccountNotActive)

	has, err := f.accounts.HasOpenChecking(ctx, owner.ID)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestOnlyOneOpenCheckingPerOwner(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "dave", "Dave", "Brown")
	f.account(t, owner, "ACCT-0000000003", domain.AccountChecking, 0)

	second := &domain.Account{
		ID: uuid.NewString(), AccountNumber: "ACCT-0000000004", OwnerUserID: owner.ID,
		AccountType: domain.AccountChecking, Status: domain.AccountActive, CreatedAt: f.now, UpdatedAt: f.now,
	}
	assert.ErrorIs(t, f.accounts.Create(context.Background(), second), domain.ErrPrimaryCheckingExists)
}

func TestAccountSearchMatchesNumberOrOwnerAndPages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	erin := f.user(t, "erin", "Erin", "Stone")
	frank := f.user(t, "frank", "Frank", "Miller")
	f.account(t, erin, "ACCT-0000000010", domain.AccountSavings, 0)
	f.account(t, erin, "ACCT-0000000011", domain.AccountCD, 0)
	f.account(t, frank, "ACCT-0000000020", domain.AccountSavings, 0)

	byOwner, total, err := f.accounts.Search(ctx, "erin st", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, byOwner, 2)
	assert.Equal(t, "Erin Stone", byOwner[0].OwnerName)

	byNumber, total, err := f.accounts.Search(ctx, "0000000020", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, frank.ID, byNumber[0].OwnerUserID)

	page, total, err := f.accounts.Search(ctx, "", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 1)

	wildcard, total, err := f.accounts.Search(ctx, "%", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, wildcard)
}

func TestTransactionsFilterAndSort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "gina", "Gina", "Lake")
	acct := f.account(t, owner, "ACCT-0000000030", domain.AccountSavings, 0)

	for i, entry := range []struct {
		typ    domain.TransactionType
		amount domain.Money
	}{
		{domain.TransactionDeposit, 500},
		{domain.TransactionWithdrawal, 100},
		{domain.TransactionDeposit, 900},
	} {
		require.NoError(t, f.txs.Create(ctx, &domain.Transaction{
			ID:        uuid.NewString(),
			AccountID: acct.ID,
			Type:      entry.typ,
			Direction: entry.typ.Direction(),
			Amount:    entry.amount,
			Status:    domain.TransactionCompleted,
			CreatedAt: f.now.Add(time.Duration(i) * time.Minute),
		}))
	}

	deposit := domain.TransactionDeposit
	deposits, err := f.txs.FindByAccount(ctx, acct.ID, domain.TransactionFilter{Type: &deposit, SortBy: domain.SortByAmount})
	require.NoError(t, err)
	require.Len(t, deposits, 2)
	assert.Equal(t, domain.Money(900), deposits[0].Amount)
	assert.Equal(t, domain.Money(500), deposits[1].Amount)

	oldestFirst, err := f.txs.FindByAccount(ctx, acct.ID, domain.TransactionFilter{SortBy: domain.SortByCreatedAt, Ascending: true})
	require.NoError(t, err)
	require.Len(t, oldestFirst, 3)
	assert.Equal(t, domain.Money(500), oldestFirst[0].Amount)
	assert.Equal(t, domain.Debit, oldestFirst[1].Direction)
}

func TestRequestResolveIsCompareAndSwap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "hank", "Hank", "Hill")

	req := &domain.Request{
		ID:              uuid.NewString(),
		Kind:            domain.RequestAccountCreation,
		RequesterUserID: owner.ID,
		SubjectUserID:   owner.ID,
		AccountType:     domain.AccountSavings,
		Status:          domain.RequestPending,
		RequestedAt:     f.now,
	}
	require.NoError(t, f.requests.Create(ctx, req))

	pending, err := f.requests.HasPending(ctx, domain.RequestAccountCreation, owner.ID, "", domain.AccountSavings)
	require.NoError(t, err)
	assert.True(t, pending)

	resolvedAt := f.now.Add(time.Hour)
	approve := *req
	approve.Status = domain.RequestApproved
	approve.ResolvedAt = &resolvedAt
	approve.ResolverUserID = owner.ID

	ok, err := f.requests.Resolve(ctx, &approve)
	require.NoError(t, err)
	assert.True(t, ok)

	reject := approve
	reject.Status = domain.RequestRejected
	ok, err = f.requests.Resolve(ctx, &reject)
	require.NoError(t, err)
	assert.False(t, ok)

	stored, err := f.requests.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestApproved, stored.Status)
	require.NotNil(t, stored.ResolvedAt)
	assert.True(t, stored.ResolvedAt.Equal(resolvedAt))
	assert.Equal(t, domain.AccountSavings, stored.AccountType)
}

func TestPendingSinceFilter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner := f.user(t, "ivy", "Ivy", "Green")

	for i := 0; i < 3; i++ {
		require.NoError(t, f.requests.Create(ctx, &domain.Request{
			ID:              uuid.NewString(),
			Kind:            domain.RequestPasswordReset,
			RequesterUserID: owner.ID,
			SubjectUserID:   owner.ID,
			Status:          domain.RequestPending,
			RequestedAt:     f.now.Add(time.Duration(i) * time.Minute),
		}))
	}

	since := f.now.Add(30 * time.Second)
	kind := domain.RequestPasswordReset
	newer, err := f.requests.FindPending(ctx, domain.PendingFilter{Kind: &kind, Since: &since})
	require.NoError(t, err)
	assert.Len(t, newer, 2)
}

func TestAuditLogRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.audit.Create(ctx, &domain.AuditLog{
		ID:         uuid.NewString(),
		EntityType: domain.EntityTypeAccount,
		EntityID:   "acct-1",
		Action:     domain.ActionTypeDelete,
		Details:    "closing balance 10.00",
		CreatedAt:  f.now,
	}))

	logs, err := f.audit.FindByEntityID(ctx, domain.EntityTypeAccount, "acct-1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Empty(t, logs[0].ActorUserID)
	assert.Equal(t, "closing balance 10.00", logs[0].Details)

	all, err := f.audit.FindAll(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
