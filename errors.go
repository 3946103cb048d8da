package plate

import (
	"errors"
	"fmt"
)

// Code identifies a domain failure. Callers translate codes into user-facing
// messages; the engine never uses them for ordinary control flow.
type Code string

// Error codes.
const (
	CodeLPNotFound              Code = "LP_NOT_FOUND"
	CodeReservationNotFound     Code = "RESERVATION_NOT_FOUND"
	CodeLPNotAvailable          Code = "LP_NOT_AVAILABLE"
	CodeProductMismatch         Code = "PRODUCT_MISMATCH"
	CodeWarehouseMismatch       Code = "WAREHOUSE_MISMATCH"
	CodeExceedsAvailable        Code = "EXCEEDS_AVAILABLE_QUANTITY"
	CodeAlreadyReleased         Code = "ALREADY_RELEASED"
	CodeInvalidSplitQuantity    Code = "INVALID_SPLIT_QUANTITY"
	CodeMergeIneligible         Code = "MERGE_INELIGIBLE"
	CodeConcurrentModification  Code = "CONCURRENT_MODIFICATION"
	CodeInvalidInput            Code = "INVALID_INPUT"
	CodeInvalidStatusTransition Code = "INVALID_STATUS_TRANSITION"
	CodeSplitMergeDisabled      Code = "SPLIT_MERGE_DISABLED"
	CodeGenealogyInvalid        Code = "GENEALOGY_INVALID"
	CodeGenealogyNotFound       Code = "GENEALOGY_NOT_FOUND"
	CodeTenantRequired          Code = "TENANT_REQUIRED"
	CodeAlreadyExists           Code = "ALREADY_EXISTS"
)

// DomainError is the typed failure returned by every engine operation.
// Two DomainErrors match under errors.Is when their codes are equal, so the
// sentinels below can be compared against detailed errors.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plate: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("plate: %s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *DomainError) Unwrap() error { return e.Err }

// Is matches any *DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// Sentinel errors, one per code. Stores return these directly; the engine
// returns detailed errors that still match them.
var (
	ErrLPNotFound              = &DomainError{Code: CodeLPNotFound, Message: "license plate not found"}
	ErrReservationNotFound     = &DomainError{Code: CodeReservationNotFound, Message: "reservation not found"}
	ErrLPNotAvailable          = &DomainError{Code: CodeLPNotAvailable, Message: "license plate not available"}
	ErrProductMismatch         = &DomainError{Code: CodeProductMismatch, Message: "product does not match demand"}
	ErrWarehouseMismatch       = &DomainError{Code: CodeWarehouseMismatch, Message: "warehouse does not match demand"}
	ErrExceedsAvailable        = &DomainError{Code: CodeExceedsAvailable, Message: "requested quantity exceeds available quantity"}
	ErrAlreadyReleased         = &DomainError{Code: CodeAlreadyReleased, Message: "reservation is not active"}
	ErrInvalidSplitQuantity    = &DomainError{Code: CodeInvalidSplitQuantity, Message: "invalid split quantity"}
	ErrMergeIneligible         = &DomainError{Code: CodeMergeIneligible, Message: "license plates cannot be merged"}
	ErrConcurrentModification  = &DomainError{Code: CodeConcurrentModification, Message: "concurrent modification"}
	ErrInvalidInput            = &DomainError{Code: CodeInvalidInput, Message: "invalid input"}
	ErrInvalidStatusTransition = &DomainError{Code: CodeInvalidStatusTransition, Message: "invalid status transition"}
	ErrSplitMergeDisabled      = &DomainError{Code: CodeSplitMergeDisabled, Message: "split and merge are disabled"}
	ErrGenealogyInvalid        = &DomainError{Code: CodeGenealogyInvalid, Message: "invalid genealogy record"}
	ErrGenealogyNotFound       = &DomainError{Code: CodeGenealogyNotFound, Message: "genealogy record not found"}
	ErrTenantRequired          = &DomainError{Code: CodeTenantRequired, Message: "tenant scope required"}
	ErrAlreadyExists           = &DomainError{Code: CodeAlreadyExists, Message: "already exists"}
)

// Store errors. These are infrastructure failures, not domain outcomes.
var (
	ErrStoreClosed     = errors.New("plate: store is closed")
	ErrMigrationFailed = errors.New("plate: migration failed")
)

func newError(code Code, format string, args ...any) *DomainError {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("plate: validation failed for %s: %s", e.Field, e.Message)
}

func invalidInput(field, format string, args ...any) *DomainError {
	v := ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
	return &DomainError{Code: CodeInvalidInput, Message: v.Message, Err: v}
}

// CodeOf returns the code of the first DomainError in err's chain, or "" if
// there is none.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsNotFound returns true if the error reports a missing plate, reservation
// or genealogy record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLPNotFound) ||
		errors.Is(err, ErrReservationNotFound) ||
		errors.Is(err, ErrGenealogyNotFound)
}

// IsRetryable returns true if the operation lost an optimistic race and may
// succeed when run again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsConflict returns true if a create collided with an existing record, such
// as a duplicate plate number within a tenant.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsAllocationError returns true if the error is an availability outcome
// rather than bad input.
func IsAllocationError(err error) bool {
	return errors.Is(err, ErrLPNotAvailable) ||
		errors.Is(err, ErrExceedsAvailable) ||
		errors.Is(err, ErrProductMismatch) ||
		errors.Is(err, ErrWarehouseMismatch)
}
