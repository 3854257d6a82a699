// Package errors defines the typed error taxonomy for the sync engine.
package errors

import (
	"errors"
	"fmt"

	"github.com/account-sync/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryAccount represents account selection/resolution errors
	CategoryAccount ErrorCategory = "account"
	// CategoryRemote represents remote data source errors
	CategoryRemote ErrorCategory = "remote"
	// CategoryCache represents cache/persistence content errors
	CategoryCache ErrorCategory = "cache"
	// CategoryPersistence represents persistent store availability errors
	CategoryPersistence ErrorCategory = "persistence"
	// CategorySystem represents unexpected internal errors
	CategorySystem ErrorCategory = "system"
)

// Error codes for the engine's failure taxonomy
const (
	CodeNoActiveAccount        = "NO_ACTIVE_ACCOUNT"
	CodeInvalidAccount         = "INVALID_ACCOUNT"
	CodeRemoteFetchFailed      = "REMOTE_FETCH_FAILED"
	CodeCacheCorrupt           = "CACHE_CORRUPT"
	CodePersistenceUnavailable = "PERSISTENCE_UNAVAILABLE"
	CodeInternal               = "INTERNAL_ERROR"
)

// CategorizedError represents an error with category and stable code
type CategorizedError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to a ServiceError
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewNoActiveAccountError is returned when an update attempt cannot resolve
// an active account. Fatal to that single attempt only.
func NewNoActiveAccountError() *CategorizedError {
	return &CategorizedError{
		Category: CategoryAccount,
		Code:     CodeNoActiveAccount,
		Message:  "no active account selected",
	}
}

// NewInvalidAccountError is returned when selecting an account outside the
// authorized set. Never auto-retried.
func NewInvalidAccountError(accountID string) *CategorizedError {
	return &CategorizedError{
		Category: CategoryAccount,
		Code:     CodeInvalidAccount,
		Message:  fmt.Sprintf("account %s is not in the authorized account list", accountID),
		Details: map[string]interface{}{
			"accountId": accountID,
		},
	}
}

// NewRemoteFetchError wraps a network, timeout, or non-success response from
// the account data source. Recoverable on the next tick or manual call.
func NewRemoteFetchError(accountID string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryRemote,
		Code:     CodeRemoteFetchFailed,
		Message:  fmt.Sprintf("failed to fetch account data for %s", accountID),
		Cause:    cause,
		Details: map[string]interface{}{
			"accountId": accountID,
		},
	}
}

// NewCacheCorruptError marks a malformed persisted or remote value. Treated
// as a cache miss by readers, never propagated as a hard failure.
func NewCacheCorruptError(key string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryCache,
		Code:     CodeCacheCorrupt,
		Message:  fmt.Sprintf("malformed value under %s", key),
		Cause:    cause,
		Details: map[string]interface{}{
			"key": key,
		},
	}
}

// NewPersistenceUnavailableError reports an inaccessible persistent store.
// The engine degrades to memory-only operation for the session.
func NewPersistenceUnavailableError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategoryPersistence,
		Code:     CodePersistenceUnavailable,
		Message:  fmt.Sprintf("persistent store unavailable during %s", operation),
		Cause:    cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category: CategorySystem,
		Code:     CodeInternal,
		Message:  message,
		Cause:    cause,
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// Is reports whether err carries the given engine error code
func Is(err error, code string) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Code == code
}

// IsRetryable determines if an error is recoverable on a later attempt
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryRemote, CategoryPersistence:
		return true
	default:
		return false
	}
}
