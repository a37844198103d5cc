package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"mybank/internal/database"
	"mybank/internal/database/dbtest"
	"mybank/internal/domain"
	"mybank/internal/repository"
	"mybank/pkg/logger"
)

const testPassword = "secret1"

type harness struct {
	store    *database.Store
	users    domain.UserRepository
	accounts domain.AccountRepository
	txs      domain.TransactionRepository
	requests domain.RequestRepository
	auditLog domain.AuditLogRepository

	hasher   *PasswordHasher
	audit    *AuditLogService
	ledger   *LedgerService
	identity *IdentityService
	userSvc  *UserService
	workflow *WorkflowService
	search   *SearchService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := dbtest.New(t)
	log := logger.Nop()

	h := &harness{
		store:    store,
		users:    repository.NewUserRepository(store, log),
		accounts: repository.NewAccountRepository(store, log),
		txs:      repository.NewTransactionRepository(store, log),
		requests: repository.NewRequestRepository(store, log),
		auditLog: repository.NewAuditLogRepository(store, log),
		hasher:   NewPasswordHasher(bcrypt.MinCost),
	}
	h.audit = NewAuditLogService(store, h.auditLog, log)
	h.ledger = NewLedgerService(store, h.accounts, h.users, h.txs, h.audit, log)
	h.identity = NewIdentityService(store, h.users, h.audit, h.hasher, "test-secret", time.Hour, log)
	h.userSvc = NewUserService(store, h.users, h.audit, h.hasher, log)
	h.workflow = NewWorkflowService(store, h.requests, h.users, h.accounts, h.ledger, h.audit, h.hasher, log)
	h.search = NewSearchService(store, h.accounts, log)
	return h
}

func (h *harness) customer(t *testing.T, username string) domain.Principal {
	t.Helper()
	u, err := h.userSvc.Register(context.Background(), domain.NewUser{
		FirstName: "Test",
		LastName:  username,
		Username:  username,
		Password:  testPassword,
	})
	require.NoError(t, err)
	return domain.Principal{UserID: u.ID, Role: u.Role}
}

func (h *harness) staff(t *testing.T, username string, role domain.Role) domain.Principal {
	t.Helper()
	u, err := h.userSvc.create(context.Background(), domain.NewUser{
		FirstName: "Staff",
		LastName:  username,
		Username:  username,
		Password:  testPassword,
		Role:      role,
	}, "")
	require.NoError(t, err)
	return domain.Principal{UserID: u.ID, Role: u.Role}
}

func (h *harness) openAccount(t *testing.T, owner domain.Principal, accountType domain.AccountType, initial domain.Money) *domain.Account {
	t.Helper()
	account, err := h.ledger.CreateAccount(context.Background(), owner.UserID, accountType, initial)
	require.NoError(t, err)
	return account
}

func (h *harness) balance(t *testing.T, accountID string) domain.Money {
	t.Helper()
	account, err := h.accounts.FindByID(context.Background(), accountID)
	require.NoError(t, err)
	require.NotNil(t, account)
	return account.Balance
}
