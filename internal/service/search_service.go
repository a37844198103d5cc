package service

import (
	"context"
	"strings"

	"mybank/internal/database"
	"mybank/internal/domain"
	"mybank/pkg/logger"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

type SearchService struct {
	store    *database.Store
	accounts domain.AccountRepository
	logger   logger.Logger
}

func NewSearchService(store *database.Store, accounts domain.AccountRepository, logger logger.Logger) *SearchService {
	return &SearchService{
		store:    store,
		accounts: accounts,
		logger:   logger,
	}
}

// SearchAccounts matches the query as a case-insensitive substring of the
// account number or the owner's full name. Closed accounts are included.
func (s *SearchService) SearchAccounts(ctx context.Context, actor domain.Principal, search domain.AccountSearch) (*domain.AccountPage, error) {
	if !actor.IsStaff() {
		return nil, domain.ErrForbidden
	}

	page, limit := search.Page, search.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	var (
		accounts []*domain.Account
		total    int
	)
	err := s.store.Do(ctx, func(ctx context.Context) error {
		var err error
		accounts, total, err = s.accounts.Search(ctx, strings.TrimSpace(search.Query), limit, (page-1)*limit)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Account search failed", map[string]interface{}{
			"query": search.Query,
			"error": err.Error(),
		})
		return nil, err
	}

	return &domain.AccountPage{
		Accounts:   accounts,
		Total:      total,
		Page:       page,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}
