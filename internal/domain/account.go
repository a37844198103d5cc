package domain

import (
	"context"
	"strings"
	"time"
)

type AccountType string

const (
	AccountChecking    AccountType = "checking"
	AccountSavings     AccountType = "savings"
	AccountCredit      AccountType = "credit"
	AccountMoneyMarket AccountType = "money_market"
	AccountCD          AccountType = "cd"
)

var accountTypeSynonyms = map[string]AccountType{
	"checking":     AccountChecking,
	"check":        AccountChecking,
	"savings":      AccountSavings,
	"saving":       AccountSavings,
	"credit":       AccountCredit,
	"card":         AccountCredit,
	"credit_card":  AccountCredit,
	"money_market": AccountMoneyMarket,
	"moneymarket":  AccountMoneyMarket,
	"cd":           AccountCD,
	"certificate":  AccountCD,
}

// ParseAccountType maps any accepted external spelling to the canonical type.
func ParseAccountType(s string) (AccountType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if t, ok := accountTypeSynonyms[key]; ok {
		return t, nil
	}
	return "", ErrInvalidAccountType.WithMessage("unknown account type %q", s)
}

func (t AccountType) Valid() bool {
	switch t {
	case AccountChecking, AccountSavings, AccountCredit, AccountMoneyMarket, AccountCD:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountInactive  AccountStatus = "inactive"
	AccountSuspended AccountStatus = "suspended"
	AccountClosed    AccountStatus = "closed"
)

type Account struct {
	ID            string        `json:"id"`
	AccountNumber string        `json:"accountNumber"`
	OwnerUserID   string        `json:"ownerUserId"`
	OwnerName     string        `json:"ownerName,omitempty"`
	AccountType   AccountType   `json:"accountType"`
	Balance       Money         `json:"balance"`
	Status        AccountStatus `json:"status"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
	ClosedAt      *time.Time    `json:"closedAt,omitempty"`
}

func (a *Account) IsActive() bool {
	return a.Status == AccountActive
}

type AccountSearch struct {
	Query string
	Page  int
	Limit int
}

type AccountPage struct {
	Accounts   []*Account `json:"accounts"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	TotalPages int        `json:"totalPages"`
}

type AccountRepository interface {
	Create(ctx context.Context, account *Account) error
	// FindByID returns nil, nil when no row matches.
	FindByID(ctx context.Context, id string) (*Account, error)
	ExistsByNumber(ctx context.Context, number string) (bool, error)
	// FindByOwner excludes closed accounts.
	FindByOwner(ctx context.Context, ownerID string) ([]*Account, error)
	HasOpenChecking(ctx context.Context, ownerID string) (bool, error)
	// Credit and Debit apply a delta to an active account and return the new
	// balance. Debit returns ErrInsufficientFunds when the balance would go negative.
	Credit(ctx context.Context, id string, amount Money, at time.Time) (Money, error)
	Debit(ctx context.Context, id string, amount Money, at time.Time) (Money, error)
	// Close reports false when the account was already closed or missing.
	Close(ctx context.Context, id string, at time.Time) (bool, error)
	Search(ctx context.Context, query string, limit, offset int) ([]*Account, int, error)
}

type PostingInput struct {
	AccountID   string          `json:"-"`
	Type        TransactionType `json:"type"`
	Amount      Money           `json:"amount"`
	Description string          `json:"description"`
}

type TransferInput struct {
	FromAccountID string `json:"fromAccountId"`
	ToAccountID   string `json:"toAccountId"`
	Amount        Money  `json:"amount"`
	Description   string `json:"description"`
}

type TransferResult struct {
	Debit  *Transaction `json:"debit"`
	Credit *Transaction `json:"credit"`
}

type LedgerService interface {
	CreateAccount(ctx context.Context, ownerID string, accountType AccountType, initialBalance Money) (*Account, error)
	GetAccount(ctx context.Context, actor Principal, id string) (*Account, error)
	ListAccountsForOwner(ctx context.Context, actor Principal, ownerID string) ([]*Account, error)
	PostTransaction(ctx context.Context, actor Principal, input PostingInput) (*Transaction, error)
	Transfer(ctx context.Context, actor Principal, input TransferInput) (*TransferResult, error)
	ListTransactions(ctx context.Context, actor Principal, accountID string, filter TransactionFilter) ([]*Transaction, error)
	// DeleteAccount closes the account. Only the approval workflow calls it.
	DeleteAccount(ctx context.Context, id string) (*Account, error)
	// LockAccounts serializes mutations on the given accounts until release is
	// called. The returned context marks the locks as held so nested ledger
	// calls on the same accounts do not block.
	LockAccounts(ctx context.Context, ids ...string) (context.Context, func(), error)
}

type SearchService interface {
	SearchAccounts(ctx context.Context, actor Principal, search AccountSearch) (*AccountPage, error)
}
