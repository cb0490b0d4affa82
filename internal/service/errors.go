package service

import "errors"

// Kind classifies a service error for the request boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthentication
	KindAuthorization
	KindValidation
	KindConflict
	KindNotFound
	KindInsufficientFunds
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindTransient:
		return "transient"
	}
	return "internal"
}

// Error is a classified failure raised by the core.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Authentication failures
var (
	ErrTokenInvalid      = newError(KindAuthentication, "invalid token")
	ErrTokenExpired      = newError(KindAuthentication, "token expired")
	ErrPrincipalNotFound = newError(KindAuthentication, "user not found")
	ErrBadCredentials    = newError(KindAuthentication, "invalid credentials")
	ErrUnauthenticated   = newError(KindAuthentication, "authentication required")
)

// Authorization failures
var (
	ErrForbidden = newError(KindAuthorization, "operation not permitted")
	ErrNotOwner  = newError(KindAuthorization, "invalid card owner")
)

// Validation failures
var (
	ErrInvalidCardRequest = newError(KindValidation, "invalid card creation request")
	ErrInvalidCardNumber  = newError(KindValidation, "invalid card number")
	ErrInvalidAmount      = newError(KindValidation, "amount must be positive with at most 2 decimal places")
	ErrInvalidBalance     = newError(KindValidation, "balance must be non-negative with at most 2 decimal places")
	ErrEmptyCredentials   = newError(KindValidation, "username or password is empty")
	ErrInvalidUserData    = newError(KindValidation, "first name and last name can't be empty")
	ErrPasswordTooLong    = newError(KindValidation, "password must not exceed 72 bytes")
	ErrSameCard           = newError(KindValidation, "cannot transfer between the same card")
)

// Conflict failures
var (
	ErrUserExists         = newError(KindConflict, "user already exists")
	ErrCardExists         = newError(KindConflict, "card already exists")
	ErrAlreadyBlocked     = newError(KindConflict, "card is already blocked")
	ErrAlreadyActive      = newError(KindConflict, "card is already active")
	ErrCardExpired        = newError(KindConflict, "card is expired")
	ErrCardUnusable       = newError(KindConflict, "card has blocked or expired status")
	ErrAdminCannotOwnCard = newError(KindConflict, "admin cannot own a card")
)

// Not found failures
var (
	ErrCardNotFound = newError(KindNotFound, "card does not exist")
	ErrUserNotFound = newError(KindNotFound, "user does not exist")
)

var (
	ErrInsufficientFunds = newError(KindInsufficientFunds, "not enough funds on source card")
	ErrTransient         = newError(KindTransient, "storage temporarily unavailable, retry the request")
)

// KindOf returns the kind of err, or KindInternal if err is not a service error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
