// internal/apperrors/errors.go
package apperrors

import (
	"errors"
	"fmt"
)

// Code identifies one of the closed set of failure kinds the engine can
// surface. Handlers map codes to HTTP statuses; services never match on
// error message text.
type Code string

const (
	CodeRecordIDRequired      Code = "RECORD_ID_REQUIRED"
	CodeInvalidDuration       Code = "INVALID_DURATION"
	CodeInvalidAccessLevel    Code = "INVALID_ACCESS_LEVEL"
	CodeNotAValidPractitioner Code = "NOT_A_VALID_PRACTITIONER"
	CodeApprovalAlreadyExists Code = "APPROVAL_ALREADY_EXISTS"
	CodeLedgerDispatchFailed  Code = "LEDGER_DISPATCH_FAILED"
	CodeApprovalNotFound      Code = "APPROVAL_NOT_FOUND"
	CodeApprovalNotPending    Code = "APPROVAL_NOT_PENDING"
	CodeRecordNotFound        Code = "RECORD_NOT_FOUND"
	CodeAccessDenied          Code = "ACCESS_DENIED"
	CodeValidationFailed      Code = "VALIDATION_ERROR"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeInternal              Code = "INTERNAL_ERROR"
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match two *Error values by code, so sentinels like
// ErrApprovalNotFound compare against wrapped instances.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the failure code from err, or CodeInternal when err is
// not an engine error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

var (
	ErrRecordIDRequired      = New(CodeRecordIDRequired, "record id is required for write and full access levels")
	ErrInvalidDuration       = New(CodeInvalidDuration, "duration must be a positive number of milliseconds")
	ErrInvalidAccessLevel    = New(CodeInvalidAccessLevel, "access level must be one of read, write, full")
	ErrNotAValidPractitioner = New(CodeNotAValidPractitioner, "practitioner is not eligible for the requested access")
	ErrApprovalAlreadyExists = New(CodeApprovalAlreadyExists, "an active approval already exists for this patient, practitioner and record")
	ErrLedgerDispatchFailed  = New(CodeLedgerDispatchFailed, "failed to dispatch the access grant to the ledger")
	ErrApprovalNotFound      = New(CodeApprovalNotFound, "approval not found")
	ErrApprovalNotPending    = New(CodeApprovalNotPending, "approval is not pending")
	ErrRecordNotFound        = New(CodeRecordNotFound, "medical record not found")
	ErrAccessDenied          = New(CodeAccessDenied, "access to this resource is denied")
)
