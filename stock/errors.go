/*
errors.go - Centralized error taxonomy for the stock engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; the API layer maps these
  onto HTTP statuses.

ERROR CATEGORIES:
  1. Input errors    - malformed quantities, unknown units/enums
  2. Business errors - insufficient stock, archive safety rules
  3. Transient errors - lock timeouts (retryable)

RETRYABILITY:
  Only LockTimeoutError is retryable: the same request may succeed once
  the contending writer finishes. Business-rule failures are permanent
  for the same input and must not be blindly retried.
*/
package stock

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of all malformed-input failures.
	ErrValidation = errors.New("validation failed")

	// ErrConversion is returned for cross-family unit conversions.
	ErrConversion = errors.New("incompatible unit families")

	// ErrInsufficientStock is returned when a consumption cannot be fully
	// satisfied. No partial write ever occurs.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrRecipeIncomplete is returned when a product declares no ingredients.
	ErrRecipeIncomplete = errors.New("recipe has no ingredients")

	// ErrNameConflict is returned when restoring an archived ingredient whose
	// name is taken by an active one.
	ErrNameConflict = errors.New("active ingredient with same name exists")

	// ErrHasHistoricalRecords is returned when permanent deletion is blocked
	// by consumption history.
	ErrHasHistoricalRecords = errors.New("ingredient has historical records")

	// ErrLockTimeout is returned when a writer gave up waiting for an
	// ingredient lock. Retryable.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrIngredientNotFound is returned when a referenced ingredient doesn't exist.
	ErrIngredientNotFound = errors.New("ingredient not found")

	// ErrIngredientArchived is returned when stocking into an archived ingredient.
	ErrIngredientArchived = errors.New("ingredient is archived")

	// ErrDuplicateBatchNumber is returned by stores on batch number collision.
	ErrDuplicateBatchNumber = errors.New("duplicate batch number")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a malformed field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// ConversionError reports an impossible unit conversion.
type ConversionError struct {
	From Unit
	To   Unit
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot convert %s to %s: incompatible unit families", e.From, e.To)
}

func (e *ConversionError) Unwrap() error { return ErrConversion }

// Shortfall describes how much of one ingredient is missing.
type Shortfall struct {
	IngredientID IngredientID
	Requested    Quantity
	Available    Quantity
	Missing      Quantity
}

// InsufficientStockError carries the per-ingredient shortfall of a failed
// consumption. For a recipe every short ingredient is listed; for a single
// consumption there is exactly one entry.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	if len(e.Shortfalls) == 1 {
		s := e.Shortfalls[0]
		return fmt.Sprintf("insufficient stock for %s: requested %v, available %v, short %v",
			s.IngredientID, s.Requested, s.Available, s.Missing)
	}
	return fmt.Sprintf("insufficient stock for %d ingredients", len(e.Shortfalls))
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// NameConflictError reports a restore blocked by an active duplicate name.
type NameConflictError struct {
	Name       string
	ExistingID IngredientID
}

func (e *NameConflictError) Error() string {
	return fmt.Sprintf("cannot restore: active ingredient %q already exists (%s)", e.Name, e.ExistingID)
}

func (e *NameConflictError) Unwrap() error { return ErrNameConflict }

// HasHistoricalRecordsError reports a permanent delete blocked by audit history.
type HasHistoricalRecordsError struct {
	IngredientID IngredientID
	RecordCount  int
}

func (e *HasHistoricalRecordsError) Error() string {
	return fmt.Sprintf("cannot permanently delete %s: %d consumption records reference its batches",
		e.IngredientID, e.RecordCount)
}

func (e *HasHistoricalRecordsError) Unwrap() error { return ErrHasHistoricalRecords }

// LockTimeoutError reports a bounded lock wait that expired.
type LockTimeoutError struct {
	IngredientID IngredientID
	Waited       time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("timed out after %v waiting for lock on %s", e.Waited, e.IngredientID)
}

func (e *LockTimeoutError) Unwrap() error { return ErrLockTimeout }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the same request might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsClientError returns true if the error is due to invalid client input or
// a business rule the client can understand.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrConversion) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrRecipeIncomplete) ||
		errors.Is(err, ErrNameConflict) ||
		errors.Is(err, ErrHasHistoricalRecords) ||
		errors.Is(err, ErrIngredientArchived)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrIngredientNotFound)
}
