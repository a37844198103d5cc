package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"mybank/internal/database"
	"mybank/internal/domain"
	"mybank/pkg/logger"
	"mybank/pkg/metrics"
	"mybank/pkg/tracing"
)

const accountNumberAttempts = 5

type LedgerService struct {
	store        *database.Store
	accounts     domain.AccountRepository
	users        domain.UserRepository
	transactions domain.TransactionRepository
	audit        domain.AuditLogService
	locks        *accountLocks
	logger       logger.Logger
	now          func() time.Time
	newNumber    func() (string, error)
}

func NewLedgerService(
	store *database.Store,
	accounts domain.AccountRepository,
	users domain.UserRepository,
	transactions domain.TransactionRepository,
	audit domain.AuditLogService,
	logger logger.Logger,
) *LedgerService {
	return &LedgerService{
		store:        store,
		accounts:     accounts,
		users:        users,
		transactions: transactions,
		audit:        audit,
		locks:        newAccountLocks(),
		logger:       logger,
		now:          utcNow,
		newNumber:    generateAccountNumber,
	}
}

func (s *LedgerService) CreateAccount(ctx context.Context, ownerID string, accountType domain.AccountType, initialBalance domain.Money) (*domain.Account, error) {
	if !accountType.Valid() {
		return nil, domain.ErrInvalidAccountType.WithMessage("unknown account type %q", accountType)
	}
	if initialBalance < 0 {
		return nil, domain.ErrInvalidAmount.WithMessage("initial balance cannot be negative")
	}

	var account *domain.Account
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		owner, err := s.users.FindByID(ctx, ownerID)
		if err != nil {
			return err
		}
		if owner == nil || owner.Role != domain.RoleCustomer || !owner.IsActive {
			return domain.ErrInvalidOwner
		}

		if accountType == domain.AccountChecking {
			has, err := s.accounts.HasOpenChecking(ctx, ownerID)
			if err != nil {
				return err
			}
			if has {
				return domain.ErrPrimaryCheckingExists
			}
		}

		number, err := s.allocateNumber(ctx)
		if err != nil {
			return err
		}

		now := s.now()
		account = &domain.Account{
			ID:            uuid.NewString(),
			AccountNumber: number,
			OwnerUserID:   ownerID,
			OwnerName:     owner.FullName(),
			AccountType:   accountType,
			Status:        domain.AccountActive,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.accounts.Create(ctx, account); err != nil {
			return err
		}

		if initialBalance > 0 {
			balance, err := s.accounts.Credit(ctx, account.ID, initialBalance, now)
			if err != nil {
				return err
			}
			account.Balance = balance
			if err := s.transactions.Create(ctx, &domain.Transaction{
				ID:           uuid.NewString(),
				AccountID:    account.ID,
				Type:         domain.TransactionDeposit,
				Direction:    domain.Credit,
				Amount:       initialBalance,
				BalanceAfter: balance,
				Description:  "Opening deposit",
				Status:       domain.TransactionCompleted,
				CreatedAt:    now,
			}); err != nil {
				return err
			}
		}

		return s.audit.LogAction(ctx, domain.AuditLog{
			EntityType: domain.EntityTypeAccount,
			EntityID:   account.ID,
			Action:     domain.ActionTypeCreate,
			Details:    fmt.Sprintf("Opened %s account %s for user %s", accountType, number, ownerID),
		})
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Account could not be created", map[string]interface{}{
			"owner_id":     ownerID,
			"account_type": accountType,
			"error":        err.Error(),
		})
		return nil, err
	}

	s.logger.InfoContext(ctx, "Account created", map[string]interface{}{
		"account_id":     account.ID,
		"account_number": account.AccountNumber,
		"owner_id":       ownerID,
	})
	return account, nil
}

// allocateNumber draws random numbers until one is unused. The unique index
// still backs this up if two allocations race.
func (s *LedgerService) allocateNumber(ctx context.Context) (string, error) {
	for i := 0; i < accountNumberAttempts; i++ {
		number, err := s.newNumber()
		if err != nil {
			return "", err
		}
		taken, err := s.accounts.ExistsByNumber(ctx, number)
		if err != nil {
			return "", err
		}
		if !taken {
			return number, nil
		}
	}
	return "", domain.ErrAccountNumberConflict
}

func (s *LedgerService) GetAccount(ctx context.Context, actor domain.Principal, id string) (*domain.Account, error) {
	var account *domain.Account
	err := s.store.Do(ctx, func(ctx context.Context) error {
		var err error
		account, err = s.accounts.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, domain.ErrAccountNotFound
	}
	if !actor.CanAccessOwner(account.OwnerUserID) {
		return nil, domain.ErrForbidden
	}
	return account, nil
}

func (s *LedgerService) ListAccountsForOwner(ctx context.Context, actor domain.Principal, ownerID string) ([]*domain.Account, error) {
	if !actor.CanAccessOwner(ownerID) {
		return nil, domain.ErrForbidden
	}

	var accounts []*domain.Account
	err := s.store.Do(ctx, func(ctx context.Context) error {
		var err error
		accounts, err = s.accounts.FindByOwner(ctx, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *LedgerService) PostTransaction(ctx context.Context, actor domain.Principal, input domain.PostingInput) (tx *domain.Transaction, err error) {
	defer func() { metrics.RecordPosting(string(input.Type), err) }()

	if !input.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	switch input.Type {
	case domain.TransactionDeposit, domain.TransactionWithdrawal, domain.TransactionPayment:
	case domain.TransactionFee:
		if !actor.IsStaff() {
			return nil, domain.ErrForbidden.WithMessage("only staff may charge fees")
		}
	case domain.TransactionTransfer:
		return nil, domain.ErrInvalidInput.WithMessage("transfers must name both accounts")
	default:
		return nil, domain.ErrInvalidInput.WithMessage("unknown transaction type %q", input.Type)
	}

	ctx, span := tracing.StartSpan(ctx, "ledger.PostTransaction",
		attribute.String("account.id", input.AccountID),
		attribute.String("transaction.type", string(input.Type)),
	)
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, release, err := s.LockAccounts(ctx, input.AccountID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		account, err := s.accounts.FindByID(ctx, input.AccountID)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}
		// Fees were already limited to staff; every other posting is the owner's alone.
		if input.Type != domain.TransactionFee && actor.UserID != account.OwnerUserID {
			return domain.ErrForbidden.WithMessage("only the account owner may post to this account")
		}
		if !account.IsActive() {
			return domain.ErrAccountNotActive
		}

		now := s.now()
		direction := input.Type.Direction()
		var balance domain.Money
		if direction == domain.Credit {
			balance, err = s.accounts.Credit(ctx, account.ID, input.Amount, now)
		} else {
			balance, err = s.accounts.Debit(ctx, account.ID, input.Amount, now)
		}
		if err != nil {
			return err
		}

		tx = &domain.Transaction{
			ID:           uuid.NewString(),
			AccountID:    account.ID,
			Type:         input.Type,
			Direction:    direction,
			Amount:       input.Amount,
			BalanceAfter: balance,
			Description:  input.Description,
			Status:       domain.TransactionCompleted,
			CreatedAt:    now,
		}
		return s.transactions.Create(ctx, tx)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Transaction rejected", map[string]interface{}{
			"account_id": input.AccountID,
			"type":       input.Type,
			"amount":     input.Amount.String(),
			"error":      err.Error(),
		})
		return nil, err
	}

	s.logger.InfoContext(ctx, "Transaction posted", map[string]interface{}{
		"transaction_id": tx.ID,
		"account_id":     tx.AccountID,
		"type":           tx.Type,
		"amount":         tx.Amount.String(),
		"balance_after":  tx.BalanceAfter.String(),
	})
	return tx, nil
}

func (s *LedgerService) Transfer(ctx context.Context, actor domain.Principal, input domain.TransferInput) (result *domain.TransferResult, err error) {
	defer func() { metrics.RecordPosting(string(domain.TransactionTransfer), err) }()

	if !input.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if input.FromAccountID == "" || input.ToAccountID == "" {
		return nil, domain.ErrInvalidInput.WithMessage("both accounts are required")
	}
	if input.FromAccountID == input.ToAccountID {
		return nil, domain.ErrInvalidInput.WithMessage("cannot transfer to the same account")
	}

	ctx, span := tracing.StartSpan(ctx, "ledger.Transfer",
		attribute.String("account.from", input.FromAccountID),
		attribute.String("account.to", input.ToAccountID),
	)
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ctx, release, err := s.LockAccounts(ctx, input.FromAccountID, input.ToAccountID)
	if err != nil {
		return nil, err
	}
	defer release()

	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		from, err := s.accounts.FindByID(ctx, input.FromAccountID)
		if err != nil {
			return err
		}
		to, err := s.accounts.FindByID(ctx, input.ToAccountID)
		if err != nil {
			return err
		}
		if from == nil || to == nil {
			return domain.ErrAccountNotFound
		}
		if actor.UserID != from.OwnerUserID {
			return domain.ErrForbidden.WithMessage("only the account owner may transfer from this account")
		}
		if !from.IsActive() || !to.IsActive() {
			return domain.ErrAccountNotActive
		}

		now := s.now()
		fromBalance, err := s.accounts.Debit(ctx, from.ID, input.Amount, now)
		if err != nil {
			return err
		}
		toBalance, err := s.accounts.Credit(ctx, to.ID, input.Amount, now)
		if err != nil {
			return err
		}

		result = &domain.TransferResult{
			Debit: &domain.Transaction{
				ID:                    uuid.NewString(),
				AccountID:             from.ID,
				Type:                  domain.TransactionTransfer,
				Direction:             domain.Debit,
				Amount:                input.Amount,
				BalanceAfter:          fromBalance,
				Description:           input.Description,
				Status:                domain.TransactionCompleted,
				CounterpartyAccountID: to.ID,
				CreatedAt:             now,
			},
			Credit: &domain.Transaction{
				ID:                    uuid.NewString(),
				AccountID:             to.ID,
				Type:                  domain.TransactionTransfer,
				Direction:             domain.Credit,
				Amount:                input.Amount,
				BalanceAfter:          toBalance,
				Description:           input.Description,
				Status:                domain.TransactionCompleted,
				CounterpartyAccountID: from.ID,
				CreatedAt:             now,
			},
		}
		if err := s.transactions.Create(ctx, result.Debit); err != nil {
			return err
		}
		return s.transactions.Create(ctx, result.Credit)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Transfer rejected", map[string]interface{}{
			"from_account_id": input.FromAccountID,
			"to_account_id":   input.ToAccountID,
			"amount":          input.Amount.String(),
			"error":           err.Error(),
		})
		return nil, err
	}

	s.logger.InfoContext(ctx, "Transfer posted", map[string]interface{}{
		"from_account_id": input.FromAccountID,
		"to_account_id":   input.ToAccountID,
		"amount":          input.Amount.String(),
	})
	return result, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, actor domain.Principal, accountID string, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	err := s.store.Do(ctx, func(ctx context.Context) error {
		account, err := s.accounts.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}
		if !actor.CanAccessOwner(account.OwnerUserID) {
			return domain.ErrForbidden
		}
		txs, err = s.transactions.FindByAccount(ctx, accountID, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (s *LedgerService) DeleteAccount(ctx context.Context, id string) (*domain.Account, error) {
	ctx, release, err := s.LockAccounts(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	var account *domain.Account
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		var err error
		account, err = s.accounts.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if account == nil {
			return domain.ErrAccountNotFound
		}

		now := s.now()
		closed, err := s.accounts.Close(ctx, id, now)
		if err != nil {
			return err
		}
		if !closed {
			return domain.ErrAccountNotFound.WithMessage("account is already closed")
		}
		account.Status = domain.AccountClosed
		account.ClosedAt = &now
		account.UpdatedAt = now

		return s.audit.LogAction(ctx, domain.AuditLog{
			EntityType: domain.EntityTypeAccount,
			EntityID:   id,
			Action:     domain.ActionTypeDelete,
			Details:    fmt.Sprintf("Closed account %s with balance %s", account.AccountNumber, account.Balance),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Account closed", map[string]interface{}{
		"account_id":      id,
		"closing_balance": account.Balance.String(),
	})
	return account, nil
}

func (s *LedgerService) LockAccounts(ctx context.Context, ids ...string) (context.Context, func(), error) {
	wait, cancel := context.WithTimeout(ctx, s.store.OperationTimeout())
	defer cancel()

	locked, release, err := s.locks.Lock(ctx, wait, ids...)
	if err != nil {
		return ctx, release, domain.Unavailable(fmt.Errorf("wait for account lock: %w", err))
	}
	return locked, release, nil
}
