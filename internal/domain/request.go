package domain

import (
	"context"
	"strings"
	"time"
)

type RequestKind string

const (
	RequestAccountCreation RequestKind = "account_creation"
	RequestAccountDeletion RequestKind = "account_deletion"
	RequestPasswordReset   RequestKind = "password_reset"
)

func ParseRequestKind(s string) (RequestKind, error) {
	switch RequestKind(strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))) {
	case RequestAccountCreation:
		return RequestAccountCreation, nil
	case RequestAccountDeletion:
		return RequestAccountDeletion, nil
	case RequestPasswordReset:
		return RequestPasswordReset, nil
	}
	return "", ErrInvalidInput.WithMessage("unknown request kind %q", s)
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approve", "approved":
		return DecisionApprove, nil
	case "reject", "rejected":
		return DecisionReject, nil
	}
	return "", ErrInvalidInput.WithMessage("decision must be approve or reject")
}

func (d Decision) Status() RequestStatus {
	if d == DecisionApprove {
		return RequestApproved
	}
	return RequestRejected
}

// Request is one of three kinds sharing a shape. Only the payload fields of
// its kind are set: AccountType for creation, AccountID and Reason for deletion.
type Request struct {
	ID               string        `json:"id"`
	Kind             RequestKind   `json:"kind"`
	RequesterUserID  string        `json:"requesterUserId"`
	SubjectUserID    string        `json:"subjectUserId"`
	AccountType      AccountType   `json:"accountType,omitempty"`
	AccountID        string        `json:"accountId,omitempty"`
	Reason           string        `json:"reason,omitempty"`
	Status           RequestStatus `json:"status"`
	RequestedAt      time.Time     `json:"requestedAt"`
	ResolvedAt       *time.Time    `json:"resolvedAt,omitempty"`
	ResolverUserID   string        `json:"resolverUserId,omitempty"`
	ResolutionNote   string        `json:"resolutionNote,omitempty"`
	CreatedAccountID string        `json:"createdAccountId,omitempty"`
}

func (r *Request) IsPending() bool {
	return r.Status == RequestPending
}

type PendingFilter struct {
	Kind  *RequestKind
	Since *time.Time
}

// Outcome is what a resolver gets back. TemporaryPassword is only set for an
// approved password reset and is never persisted in plaintext.
type Outcome struct {
	Request           *Request `json:"request"`
	Account           *Account `json:"account,omitempty"`
	TemporaryPassword string   `json:"temporaryPassword,omitempty"`
}

type RequestRepository interface {
	Create(ctx context.Context, req *Request) error
	// FindByID returns nil, nil when no row matches.
	FindByID(ctx context.Context, id string) (*Request, error)
	FindPending(ctx context.Context, filter PendingFilter) ([]*Request, error)
	FindByRequester(ctx context.Context, userID string) ([]*Request, error)
	// HasPending looks for a pending request of kind about the same subject and, if set, account or type.
	HasPending(ctx context.Context, kind RequestKind, subjectUserID, accountID string, accountType AccountType) (bool, error)
	// Resolve moves a pending request to its final status. It reports false if
	// the request was no longer pending.
	Resolve(ctx context.Context, req *Request) (bool, error)
	AttachAccount(ctx context.Context, id, accountID string) error
}

type WorkflowService interface {
	SubmitAccountCreation(ctx context.Context, actor Principal, accountType AccountType, customerID string) (*Request, error)
	SubmitAccountDeletion(ctx context.Context, actor Principal, accountID, reason string) (*Request, error)
	SubmitPasswordReset(ctx context.Context, username string) error
	ListPending(ctx context.Context, actor Principal, filter PendingFilter) ([]*Request, error)
	ListMine(ctx context.Context, actor Principal) ([]*Request, error)
	Resolve(ctx context.Context, actor Principal, requestID string, decision Decision, note string) (*Outcome, error)
}
