package service

import (
	"context"
	"fmt"
	"time"

	"mybank/internal/database"
	"mybank/internal/domain"
	"mybank/pkg/cache"
	"mybank/pkg/logger"
)

// staleRecheckDelay is how long after a commit the affected keys are dropped
// a second time. A reader that loaded the pre-commit row may still write it
// back after the first delete; the second one bounds that window.
const staleRecheckDelay = time.Second

// CachedLedgerService serves account and transaction reads from the cache.
// Mutations go straight to the wrapped ledger and drop the affected keys once
// the surrounding storage transaction commits, and again after recheckDelay.
type CachedLedgerService struct {
	domain.LedgerService
	cache        cache.Cache
	ttl          time.Duration
	recheckDelay time.Duration
	logger       logger.Logger
}

func NewCachedLedgerService(ledger domain.LedgerService, c cache.Cache, ttl time.Duration, logger logger.Logger) *CachedLedgerService {
	return &CachedLedgerService{
		LedgerService: ledger,
		cache:         c,
		ttl:           ttl,
		recheckDelay:  staleRecheckDelay,
		logger:        logger,
	}
}

func (s *CachedLedgerService) GetAccount(ctx context.Context, actor domain.Principal, id string) (*domain.Account, error) {
	account, err := cache.ReadThrough(ctx, s.cache, s.logger, cache.AccountKey(id), s.ttl, func(ctx context.Context) (*domain.Account, error) {
		return s.LedgerService.GetAccount(ctx, actor, id)
	})
	if err != nil {
		return nil, err
	}
	// A hit may have been cached by another caller.
	if !actor.CanAccessOwner(account.OwnerUserID) {
		return nil, domain.ErrForbidden
	}
	return account, nil
}

func (s *CachedLedgerService) ListTransactions(ctx context.Context, actor domain.Principal, accountID string, filter domain.TransactionFilter) ([]*domain.Transaction, error) {
	// Authorization needs the owner, which the account entry already caches.
	if _, err := s.GetAccount(ctx, actor, accountID); err != nil {
		return nil, err
	}
	key := cache.AccountTransactionsKey(accountID, filterVariant(filter))
	return cache.ReadThrough(ctx, s.cache, s.logger, key, s.ttl, func(ctx context.Context) ([]*domain.Transaction, error) {
		return s.LedgerService.ListTransactions(ctx, actor, accountID, filter)
	})
}

func (s *CachedLedgerService) PostTransaction(ctx context.Context, actor domain.Principal, input domain.PostingInput) (*domain.Transaction, error) {
	tx, err := s.LedgerService.PostTransaction(ctx, actor, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, tx.AccountID)
	return tx, nil
}

func (s *CachedLedgerService) Transfer(ctx context.Context, actor domain.Principal, input domain.TransferInput) (*domain.TransferResult, error) {
	result, err := s.LedgerService.Transfer(ctx, actor, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, input.FromAccountID, input.ToAccountID)
	return result, nil
}

func (s *CachedLedgerService) DeleteAccount(ctx context.Context, id string) (*domain.Account, error) {
	account, err := s.LedgerService.DeleteAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return account, nil
}

func (s *CachedLedgerService) invalidate(ctx context.Context, accountIDs ...string) {
	ctx = context.WithoutCancel(ctx)
	database.AfterCommit(ctx, func() {
		s.drop(ctx, accountIDs)
		time.AfterFunc(s.recheckDelay, func() { s.drop(ctx, accountIDs) })
	})
}

func (s *CachedLedgerService) drop(ctx context.Context, accountIDs []string) {
	for _, id := range accountIDs {
		if err := s.cache.Delete(ctx, cache.AccountKey(id)); err != nil {
			s.logger.WarnContext(ctx, "Account cache invalidation failed", map[string]interface{}{
				"account_id": id,
				"error":      err.Error(),
			})
		}
		if err := s.cache.DeletePattern(ctx, cache.AccountTransactionsPattern(id)); err != nil {
			s.logger.WarnContext(ctx, "Transaction cache invalidation failed", map[string]interface{}{
				"account_id": id,
				"error":      err.Error(),
			})
		}
	}
}

func filterVariant(f domain.TransactionFilter) string {
	txType := "all"
	if f.Type != nil {
		txType = string(*f.Type)
	}
	order := "desc"
	if f.Ascending {
		order = "asc"
	}
	return fmt.Sprintf("type=%s:sort=%s:%s", txType, f.SortBy, order)
}
