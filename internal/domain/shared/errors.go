// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrInvalidID       = errors.New("invalid ID")
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptyValue      = errors.New("value cannot be empty")
	ErrNegativeValue   = errors.New("value cannot be negative")
	ErrValueOutOfRange = errors.New("value out of range")

	// State errors.
	// ErrAlreadyDone is benign: the requested effect already holds.
	ErrAlreadyDone     = errors.New("already done")
	ErrInvalidState    = errors.New("invalid state")
	ErrStateTransition = errors.New("invalid state transition")
	ErrExpired         = errors.New("expired")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Concurrency errors
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrLockNotAcquired        = errors.New("lock not acquired")

	// External service errors
	ErrExternalService    = errors.New("external service error")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrTimeout            = errors.New("operation timeout")
	ErrRateLimited        = errors.New("rate limited")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "xp", "quest", "recap"
	Op      string // Operation that failed, e.g., "Claim", "AddXP"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// XP domain errors
var (
	ErrInvalidUserID   = NewDomainError("xp", "Validate", ErrInvalidID, "user id is required")
	ErrNegativeXP      = NewDomainError("xp", "AddXP", ErrNegativeValue, "xp amount cannot be negative")
	ErrUserXPNotFound  = NewDomainError("xp", "Find", ErrNotFound, "user xp not found")
	ErrXPReasonTooLong = NewDomainError("xp", "AddXP", ErrValueOutOfRange, "xp reason is too long")
)

// Achievement domain errors
var (
	ErrAchievementNotFound      = NewDomainError("achievement", "Find", ErrNotFound, "achievement not found")
	ErrAchievementAlreadyEarned = NewDomainError("achievement", "Award", ErrAlreadyDone, "achievement already earned")
	ErrInvalidCategory          = NewDomainError("achievement", "Validate", ErrInvalidInput, "invalid achievement category")
)

// Quest domain errors
var (
	ErrQuestNotFound        = NewDomainError("quest", "Find", ErrNotFound, "quest not found")
	ErrQuestProgressMissing = NewDomainError("quest", "Claim", ErrNotFound, "no progress for quest")
	ErrQuestNotCompleted    = NewDomainError("quest", "Claim", ErrInvalidState, "quest not completed")
	ErrQuestAlreadyClaimed  = NewDomainError("quest", "Claim", ErrAlreadyDone, "quest already claimed")
	ErrQuestExpired         = NewDomainError("quest", "Progress", ErrExpired, "quest expired")
	ErrInvalidQuestType     = NewDomainError("quest", "Validate", ErrInvalidInput, "invalid quest type")
)

// Streak domain errors
var (
	ErrMilestoneAlreadyRecorded = NewDomainError("streak", "RecordMilestone", ErrAlreadyDone, "milestone already recorded")
)

// Timeline and flex card domain errors
var (
	ErrTimelineEntryNotFound = NewDomainError("timeline", "Find", ErrNotFound, "timeline entry not found")
	ErrInvalidTimelineEntry  = NewDomainError("timeline", "Validate", ErrValidation, "invalid timeline entry")
	ErrFlexCardNotFound      = NewDomainError("flexcard", "Find", ErrNotFound, "flex card not found")
	ErrInvalidCardType       = NewDomainError("flexcard", "Validate", ErrInvalidInput, "invalid card type")
	ErrShareCodeCollision    = NewDomainError("flexcard", "Create", ErrAlreadyExists, "share code already taken")
)

// Recap domain errors
var (
	ErrRecapAlreadyExists = NewDomainError("recap", "Generate", ErrAlreadyDone, "recap already exists for week")
	ErrRecapForbidden     = NewDomainError("recap", "Authorize", ErrForbidden, "admin role required")
	ErrRecapBatchRunning  = NewDomainError("recap", "Batch", ErrLockNotAcquired, "recap batch already running")
)

// Notification and external service errors
var (
	ErrPushProviderFailed = NewDomainError("notification", "Send", ErrExternalService, "push provider request failed")
	ErrPushRateLimited    = NewDomainError("notification", "Send", ErrRateLimited, "push provider rate limit exceeded")
	ErrObjectStoreFailed  = NewDomainError("objectstore", "Put", ErrExternalService, "object store upload failed")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsAlreadyDone reports an idempotent no-op. Callers treat it as success.
func IsAlreadyDone(err error) bool {
	return errors.Is(err, ErrAlreadyDone)
}

// IsForbidden checks if the error is an authorization failure.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsUnauthorized checks for a missing or invalid identity.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue) ||
		errors.Is(err, ErrNegativeValue) ||
		errors.Is(err, ErrValueOutOfRange)
}

// IsExternalService checks if the error is from an external service.
func IsExternalService(err error) bool {
	return errors.Is(err, ErrExternalService) ||
		errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited)
}

// IsRetryable checks if the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrConcurrentModification)
}
