package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so every boundary can map them the same way.
type ErrorKind string

const (
	KindValidation   ErrorKind = "validation"
	KindAuth         ErrorKind = "auth"
	KindForbidden    ErrorKind = "forbidden"
	KindConflict     ErrorKind = "conflict"
	KindNotFound     ErrorKind = "not_found"
	KindBusinessRule ErrorKind = "business_rule"
	KindUnavailable  ErrorKind = "unavailable"
)

type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches on Code so that a detailed copy of a sentinel still satisfies errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

func newError(kind ErrorKind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

var (
	ErrInvalidInput       = newError(KindValidation, "invalid_input", "invalid input")
	ErrInvalidAmount      = newError(KindValidation, "invalid_amount", "amount must be greater than zero")
	ErrWeakPassword       = newError(KindValidation, "weak_password", "password must be at least 6 characters")
	ErrInvalidAccountType = newError(KindValidation, "invalid_account_type", "unknown account type")
	ErrInvalidRole        = newError(KindValidation, "invalid_role", "unknown role")

	ErrInvalidCredentials = newError(KindAuth, "invalid_credentials", "invalid username or password")
	ErrInvalidCredential  = newError(KindAuth, "invalid_credential", "credential is invalid or expired")
	ErrAccountDisabled    = newError(KindForbidden, "account_disabled", "user account is disabled")
	ErrForbidden          = newError(KindForbidden, "forbidden", "operation not permitted for this role")
	ErrNotAccountOwner    = newError(KindForbidden, "not_account_owner", "account does not belong to the requester")
	ErrPrimaryChecking    = newError(KindForbidden, "primary_checking", "the primary checking account cannot be deleted")
	ErrPasswordChange     = newError(KindForbidden, "password_change_required", "password must be changed before continuing")

	ErrUsernameTaken         = newError(KindConflict, "username_taken", "username is already taken")
	ErrAlreadyResolved       = newError(KindConflict, "already_resolved", "request has already been resolved")
	ErrDuplicatePending      = newError(KindConflict, "duplicate_pending", "an identical request is already pending")
	ErrPrimaryCheckingExists = newError(KindConflict, "primary_checking_exists", "customer already has an open checking account")
	ErrAccountNumberConflict = newError(KindConflict, "account_number_conflict", "could not allocate a unique account number")

	ErrNotFound        = newError(KindNotFound, "not_found", "resource not found")
	ErrUserNotFound    = newError(KindNotFound, "user_not_found", "user not found")
	ErrAccountNotFound = newError(KindNotFound, "account_not_found", "account not found")
	ErrRequestNotFound = newError(KindNotFound, "request_not_found", "request not found")

	ErrInsufficientFunds = newError(KindBusinessRule, "insufficient_funds", "insufficient funds")
	ErrInvalidOwner      = newError(KindBusinessRule, "invalid_owner", "account owner must be an active customer")
	ErrAccountNotActive  = newError(KindBusinessRule, "account_not_active", "account is not active")
	ErrSideEffectFailed  = newError(KindBusinessRule, "side_effect_failed", "request approval side effect failed")
	ErrSelfModification  = newError(KindBusinessRule, "self_modification", "administrators cannot change their own role or status")

	ErrUnavailable = newError(KindUnavailable, "unavailable", "storage temporarily unavailable")
)

// Unavailable wraps an infrastructure failure as the retryable error kind.
func Unavailable(cause error) error {
	return &Error{Kind: KindUnavailable, Code: ErrUnavailable.Code, Message: ErrUnavailable.Message, Err: cause}
}

// SideEffectFailed wraps the cause of a failed approval.
func SideEffectFailed(cause error) error {
	return &Error{Kind: KindBusinessRule, Code: ErrSideEffectFailed.Code, Message: ErrSideEffectFailed.Message, Err: cause}
}

// KindOf reports the kind of the outermost domain error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// IsRetryable is true only for storage unavailability, including when it
// caused a failed side effect.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
