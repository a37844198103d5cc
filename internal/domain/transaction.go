package domain

import (
	"context"
	"strings"
	"time"
)

type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionPayment    TransactionType = "payment"
	TransactionTransfer   TransactionType = "transfer"
	TransactionFee        TransactionType = "fee"
)

func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deposit":
		return TransactionDeposit, nil
	case "withdrawal", "withdraw":
		return TransactionWithdrawal, nil
	case "payment", "pay":
		return TransactionPayment, nil
	case "transfer":
		return TransactionTransfer, nil
	case "fee":
		return TransactionFee, nil
	}
	return "", ErrInvalidInput.WithMessage("unknown transaction type %q", s)
}

// Direction is the polarity a transaction has on its account's balance.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

// Direction of a single-account posting. Transfers carry their direction per leg.
func (t TransactionType) Direction() Direction {
	if t == TransactionDeposit {
		return Credit
	}
	return Debit
}

type TransactionStatus string

const TransactionCompleted TransactionStatus = "completed"

type Transaction struct {
	ID                    string            `json:"id"`
	AccountID             string            `json:"accountId"`
	Type                  TransactionType   `json:"type"`
	Direction             Direction         `json:"direction"`
	Amount                Money             `json:"amount"`
	BalanceAfter          Money             `json:"balanceAfter"`
	Description           string            `json:"description"`
	Status                TransactionStatus `json:"status"`
	CounterpartyAccountID string            `json:"counterpartyAccountId,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
}

// Signed returns the amount with the sign of its effect on the balance.
func (t *Transaction) Signed() Money {
	if t.Direction == Debit {
		return -t.Amount
	}
	return t.Amount
}

type SortField string

const (
	SortByCreatedAt SortField = "createdAt"
	SortByAmount    SortField = "amount"
)

type TransactionFilter struct {
	Type      *TransactionType
	SortBy    SortField
	Ascending bool
}

// ParseTransactionFilter validates the query-string shaped inputs of a listing.
func ParseTransactionFilter(txType, sortBy, order string) (TransactionFilter, error) {
	var f TransactionFilter
	if txType != "" {
		t, err := ParseTransactionType(txType)
		if err != nil {
			return f, err
		}
		f.Type = &t
	}

	switch strings.ToLower(sortBy) {
	case "", "createdat", "created_at", "date":
		f.SortBy = SortByCreatedAt
	case "amount":
		f.SortBy = SortByAmount
	default:
		return f, ErrInvalidInput.WithMessage("cannot sort by %q", sortBy)
	}

	switch strings.ToLower(order) {
	case "", "desc":
	case "asc":
		f.Ascending = true
	default:
		return f, ErrInvalidInput.WithMessage("sort order must be asc or desc")
	}
	return f, nil
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *Transaction) error
	FindByAccount(ctx context.Context, accountID string, filter TransactionFilter) ([]*Transaction, error)
}
