package service

import (
	"context"
	"fmt"
	"strings"
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

const maxReasonLength = 500

type WorkflowService struct {
	store    *database.Store
	requests domain.RequestRepository
	users    domain.UserRepository
	accounts domain.AccountRepository
	ledger   domain.LedgerService
	audit    domain.AuditLogService
	hasher   *PasswordHasher
	logger   logger.Logger
	now      func() time.Time
}

func NewWorkflowService(
	store *database.Store,
	requests domain.RequestRepository,
	users domain.UserRepository,
	accounts domain.AccountRepository,
	ledger domain.LedgerService,
	audit domain.AuditLogService,
	hasher *PasswordHasher,
	logger logger.Logger,
) *WorkflowService {
	return &WorkflowService{
		store:    store,
		requests: requests,
		users:    users,
		accounts: accounts,
		ledger:   ledger,
		audit:    audit,
		hasher:   hasher,
		logger:   logger,
		now:      utcNow,
	}
}

// SubmitAccountCreation files a request for a new account. Customers ask for
// themselves; staff file on behalf of the customer named by customerID.
func (s *WorkflowService) SubmitAccountCreation(ctx context.Context, actor domain.Principal, accountType domain.AccountType, customerID string) (*domain.Request, error) {
	if !accountType.Valid() {
		return nil, domain.ErrInvalidAccountType.WithMessage("unknown account type %q", accountType)
	}

	subjectID := customerID
	switch {
	case actor.IsStaff():
		if subjectID == "" {
			return nil, domain.ErrInvalidInput.WithMessage("customerId is required")
		}
	case actor.Role == domain.RoleCustomer:
		if subjectID != "" && subjectID != actor.UserID {
			return nil, domain.ErrForbidden
		}
		subjectID = actor.UserID
	default:
		return nil, domain.ErrForbidden
	}

	req := &domain.Request{
		ID:              uuid.NewString(),
		Kind:            domain.RequestAccountCreation,
		RequesterUserID: actor.UserID,
		SubjectUserID:   subjectID,
		AccountType:     accountType,
		Status:          domain.RequestPending,
		RequestedAt:     s.now(),
	}

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		subject, err := s.users.FindByID(ctx, subjectID)
		if err != nil {
			return err
		}
		if subject == nil {
			return domain.ErrUserNotFound
		}
		if subject.Role != domain.RoleCustomer || !subject.IsActive {
			return domain.ErrInvalidOwner
		}

		if accountType == domain.AccountChecking {
			has, err := s.accounts.HasOpenChecking(ctx, subjectID)
			if err != nil {
				return err
			}
			if has {
				return domain.ErrPrimaryCheckingExists
			}
		}

		pending, err := s.requests.HasPending(ctx, req.Kind, subjectID, "", accountType)
		if err != nil {
			return err
		}
		if pending {
			return domain.ErrDuplicatePending
		}

		return s.record(ctx, req, domain.ActionTypeCreate, fmt.Sprintf("Requested %s account", accountType))
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Account creation requested", map[string]interface{}{
		"request_id":   req.ID,
		"subject_id":   subjectID,
		"account_type": accountType,
	})
	return req, nil
}

// SubmitAccountDeletion requires the requester to own the open account, and
// the primary checking account cannot be deleted this way.
func (s *WorkflowService) SubmitAccountDeletion(ctx context.Context, actor domain.Principal, accountID, reason string) (*domain.Request, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxReasonLength {
		return nil, domain.ErrInvalidInput.WithMessage("reason must be at most %d characters", maxReasonLength)
	}
	if accountID == "" {
		return nil, domain.ErrInvalidInput.WithMessage("accountId is required")
	}

	req := &domain.Request{
		ID:              uuid.NewString(),
		Kind:            domain.RequestAccountDeletion,
		RequesterUserID: actor.UserID,
		SubjectUserID:   actor.UserID,
		AccountID:       accountID,
		Reason:          reason,
		Status:          domain.RequestPending,
		RequestedAt:     s.now(),
	}

	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		account, err := s.accounts.FindByID(ctx, accountID)
		if err != nil {
			return err
		}
		if account == nil || account.Status == domain.AccountClosed {
			return domain.ErrAccountNotFound
		}
		if account.OwnerUserID != actor.UserID {
			return domain.ErrNotAccountOwner
		}
		if account.AccountType == domain.AccountChecking {
			return domain.ErrPrimaryChecking
		}

		pending, err := s.requests.HasPending(ctx, req.Kind, actor.UserID, accountID, "")
		if err != nil {
			return err
		}
		if pending {
			return domain.ErrDuplicatePending
		}

		return s.record(ctx, req, domain.ActionTypeCreate, "Requested deletion of account "+account.AccountNumber)
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "Account deletion requested", map[string]interface{}{
		"request_id": req.ID,
		"account_id": accountID,
	})
	return req, nil
}

// SubmitPasswordReset answers the same way whether or not username exists.
// Only retryable storage errors are reported.
func (s *WorkflowService) SubmitPasswordReset(ctx context.Context, username string) error {
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
		if err != nil || user == nil {
			return err
		}
		pending, err := s.requests.HasPending(ctx, domain.RequestPasswordReset, user.ID, "", "")
		if err != nil || pending {
			return err
		}
		req := &domain.Request{
			ID:              uuid.NewString(),
			Kind:            domain.RequestPasswordReset,
			RequesterUserID: user.ID,
			SubjectUserID:   user.ID,
			Status:          domain.RequestPending,
			RequestedAt:     s.now(),
		}
		return s.record(ctx, req, domain.ActionTypeCreate, "Requested password reset")
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Password reset request failed", map[string]interface{}{"error": err.Error()})
		if domain.IsRetryable(err) {
			return err
		}
	}
	return nil
}

func (s *WorkflowService) record(ctx context.Context, req *domain.Request, action domain.ActionType, details string) error {
	if err := s.requests.Create(ctx, req); err != nil {
		return err
	}
	return s.audit.LogAction(ctx, domain.AuditLog{
		EntityType:  domain.EntityTypeRequest,
		EntityID:    req.ID,
		Action:      action,
		ActorUserID: req.RequesterUserID,
		Details:     details,
	})
}

func (s *WorkflowService) ListPending(ctx context.Context, actor domain.Principal, filter domain.PendingFilter) ([]*domain.Request, error) {
	if !actor.IsStaff() {
		return nil, domain.ErrForbidden
	}

	var reqs []*domain.Request
	err := s.store.Do(ctx, func(ctx context.Context) error {
		var err error
		reqs, err = s.requests.FindPending(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

func (s *WorkflowService) ListMine(ctx context.Context, actor domain.Principal) ([]*domain.Request, error) {
	var reqs []*domain.Request
	err := s.store.Do(ctx, func(ctx context.Context) error {
		var err error
		reqs, err = s.requests.FindByRequester(ctx, actor.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

// Resolve approves or rejects a pending request. The status change, the
// approval side effect and the audit entry commit together or not at all.
func (s *WorkflowService) Resolve(ctx context.Context, actor domain.Principal, requestID string, decision domain.Decision, note string) (outcome *domain.Outcome, err error) {
	var kind domain.RequestKind
	defer func() { metrics.RecordResolution(string(kind), string(decision), err) }()

	if !actor.IsStaff() {
		return nil, domain.ErrForbidden
	}
	if decision != domain.DecisionApprove && decision != domain.DecisionReject {
		return nil, domain.ErrInvalidInput.WithMessage("decision must be approve or reject")
	}
	note = strings.TrimSpace(note)
	if len(note) > maxReasonLength {
		return nil, domain.ErrInvalidInput.WithMessage("note must be at most %d characters", maxReasonLength)
	}

	ctx, span := tracing.StartSpan(ctx, "workflow.Resolve",
		attribute.String("request.id", requestID),
		attribute.String("request.decision", string(decision)),
	)
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	req, subject, err := s.loadForResolution(ctx, requestID)
	if err != nil {
		return nil, err
	}
	kind = req.Kind
	if err := authorizeResolver(actor, req, subject); err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, domain.ErrAlreadyResolved
	}

	approve := decision == domain.DecisionApprove
	var temporary, temporaryHash string
	if approve && req.Kind == domain.RequestPasswordReset {
		if temporary, err = generateTemporaryPassword(); err != nil {
			return nil, err
		}
		if temporaryHash, err = s.hasher.Hash(temporary); err != nil {
			return nil, err
		}
	}
	if approve && req.Kind == domain.RequestAccountDeletion {
		var release func()
		ctx, release, err = s.ledger.LockAccounts(ctx, req.AccountID)
		if err != nil {
			return nil, err
		}
		defer release()
	}

	outcome = &domain.Outcome{}
	err = s.store.WithTx(ctx, func(ctx context.Context) error {
		now := s.now()
		resolved := *req
		resolved.Status = decision.Status()
		resolved.ResolvedAt = &now
		resolved.ResolverUserID = actor.UserID
		resolved.ResolutionNote = note

		ok, err := s.requests.Resolve(ctx, &resolved)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrAlreadyResolved
		}

		if approve {
			if err := s.apply(ctx, &resolved, outcome, temporaryHash, now); err != nil {
				return domain.SideEffectFailed(err)
			}
		}

		action := domain.ActionTypeReject
		if approve {
			action = domain.ActionTypeApprove
		}
		if err := s.audit.LogAction(ctx, domain.AuditLog{
			EntityType:  domain.EntityTypeRequest,
			EntityID:    resolved.ID,
			Action:      action,
			ActorUserID: actor.UserID,
			Details:     fmt.Sprintf("%s request %s", resolved.Status, resolved.Kind),
		}); err != nil {
			return err
		}

		outcome.Request = &resolved
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Request resolution failed", map[string]interface{}{
			"request_id": requestID,
			"decision":   decision,
			"error":      err.Error(),
		})
		return nil, err
	}

	if temporary != "" {
		outcome.TemporaryPassword = temporary
	}
	s.logger.InfoContext(ctx, "Request resolved", map[string]interface{}{
		"request_id":  requestID,
		"kind":        req.Kind,
		"status":      outcome.Request.Status,
		"resolver_id": actor.UserID,
	})
	return outcome, nil
}

func (s *WorkflowService) loadForResolution(ctx context.Context, requestID string) (*domain.Request, *domain.User, error) {
	var (
		req     *domain.Request
		subject *domain.User
	)
	err := s.store.Do(ctx, func(ctx context.Context) error {
		var err error
		req, err = s.requests.FindByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return domain.ErrRequestNotFound
		}
		subject, err = s.users.FindByID(ctx, req.SubjectUserID)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return req, subject, nil
}

// authorizeResolver: tellers handle creation and password resets of
// non-staff users, everything else needs an admin.
func authorizeResolver(actor domain.Principal, req *domain.Request, subject *domain.User) error {
	if actor.IsAdmin() {
		return nil
	}
	if req.Kind == domain.RequestAccountDeletion {
		return domain.ErrForbidden.WithMessage("account deletion requests need an admin")
	}
	if req.Kind == domain.RequestPasswordReset && subject != nil && subject.Role.IsStaff() {
		return domain.ErrForbidden.WithMessage("staff password resets need an admin")
	}
	return nil
}

func (s *WorkflowService) apply(ctx context.Context, req *domain.Request, outcome *domain.Outcome, temporaryHash string, now time.Time) error {
	switch req.Kind {
	case domain.RequestAccountCreation:
		account, err := s.ledger.CreateAccount(ctx, req.SubjectUserID, req.AccountType, 0)
		if err != nil {
			return err
		}
		if err := s.requests.AttachAccount(ctx, req.ID, account.ID); err != nil {
			return err
		}
		req.CreatedAccountID = account.ID
		outcome.Account = account
		return nil

	case domain.RequestAccountDeletion:
		account, err := s.ledger.DeleteAccount(ctx, req.AccountID)
		if err != nil {
			return err
		}
		outcome.Account = account
		return nil

	case domain.RequestPasswordReset:
		return s.users.UpdatePassword(ctx, req.SubjectUserID, temporaryHash, true, now)
	}
	return domain.ErrInvalidInput.WithMessage("unknown request kind %q", req.Kind)
}
