package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinels callers match with errors.Is. Every AppError built here wraps
// one of them, except Internal which wraps the underlying cause.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrAlreadyExists  = errors.New("resource already exists")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrGone           = errors.New("gone")
	ErrAccountLocked  = errors.New("account locked")
	ErrAccountBlocked = errors.New("account inactive")
	ErrRateLimited    = errors.New("rate limited")
)

// kind is the wire identity of a sentinel.
type kind struct {
	sentinel error
	status   int
	code     string
	message  string // generic text used when only the sentinel is known
}

// kinds is matched in order. ErrAccountBlocked precedes ErrForbidden so the
// more specific code wins when both are wrapped.
var kinds = []kind{
	{ErrNotFound, http.StatusNotFound, "NOT_FOUND", "resource not found"},
	{ErrAlreadyExists, http.StatusConflict, "ALREADY_EXISTS", "resource already exists"},
	{ErrConflict, http.StatusConflict, "CONFLICT", "request conflicts with current state"},
	{ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT", "invalid input"},
	{ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required"},
	{ErrAccountLocked, http.StatusLocked, "ACCOUNT_LOCKED", "account is temporarily locked"},
	{ErrAccountBlocked, http.StatusForbidden, "ACCOUNT_INACTIVE", "account is inactive"},
	{ErrForbidden, http.StatusForbidden, "FORBIDDEN", "access denied"},
	{ErrGone, http.StatusGone, "GONE", "resource no longer available"},
	{ErrRateLimited, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests"},
	{ErrServiceUnavail, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "service temporarily unavailable"},
}

func kindOf(sentinel error) kind {
	for _, k := range kinds {
		if k.sentinel == sentinel {
			return k
		}
	}
	panic(fmt.Sprintf("errors: unregistered sentinel %v", sentinel))
}

// AppError is an error with a stable code and HTTP status. Message is safe
// to show to clients; Err is for logs and errors.Is.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`

	// RetryAfter, when positive, tells the client when the request may succeed.
	RetryAfter time.Duration `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newError(sentinel error, message string) *AppError {
	k := kindOf(sentinel)
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: sentinel}
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return newError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

// AlreadyExists creates a 409 error.
func AlreadyExists(resource, field, value string) *AppError {
	return newError(ErrAlreadyExists, fmt.Sprintf("%s with %s %q already exists", resource, field, value))
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError {
	return newError(ErrInvalidInput, message)
}

// Unauthorized creates a 401 error. Messages must not reveal why
// authentication failed.
func Unauthorized(message string) *AppError {
	return newError(ErrUnauthorized, message)
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return newError(ErrForbidden, message)
}

// Locked creates a 423 error carrying the remaining lockout duration. The
// message rounds it up to whole minutes.
func Locked(remaining time.Duration) *AppError {
	minutes := max(int((remaining+time.Minute-1)/time.Minute), 1)
	e := newError(ErrAccountLocked, fmt.Sprintf(
		"account is temporarily locked due to too many failed login attempts, try again in %d minute(s)", minutes))
	e.RetryAfter = remaining
	return e
}

// AccountInactive creates a 403 error for accounts that are inactive or suspended.
func AccountInactive(status string) *AppError {
	return newError(ErrAccountBlocked, fmt.Sprintf("account is %s, contact support", status))
}

// RateLimited creates a 429 error telling the client to back off for retryAfter.
func RateLimited(retryAfter time.Duration) *AppError {
	e := newError(ErrRateLimited, "too many requests")
	e.RetryAfter = retryAfter
	return e
}

// Internal creates a 500 error. The wrapped error is kept for logging only.
func Internal(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "an internal error occurred",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// From returns err as an *AppError. An AppError anywhere in the chain is
// returned as-is. A wrapped sentinel yields its generic message so wrapped
// detail never reaches a client. Anything else becomes Internal(err).
func From(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return &AppError{Code: k.code, Message: k.message, Status: k.status, Err: err}
		}
	}
	return Internal(err)
}

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	return From(err).Status
}
