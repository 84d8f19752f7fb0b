// Package errors provides the standardized error taxonomy for the wizard.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Error Classes
// ==========================

// Class identifies where in the call path an error originated.
type Class string

const (
	// ClassValidation: malformed input, caught before any network call.
	ClassValidation Class = "VALIDATION_ERROR"
	// ClassConfiguration: missing credentials or required settings.
	ClassConfiguration Class = "CONFIGURATION_ERROR"
	// ClassConnection: transport failure reaching the remote service.
	ClassConnection Class = "CONNECTION_ERROR"
	// ClassProtocol: remote response could not be parsed into the expected envelope.
	ClassProtocol Class = "PROTOCOL_ERROR"
)

// WizardError is a structured application error.
type WizardError struct {
	Class     Class     `json:"class"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	cause     error
}

func (e *WizardError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("%s[%s]: %s", e.Class, e.Operation, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

func (e *WizardError) Unwrap() error {
	return e.cause
}

// ==========================
// 2. Constructors
// ==========================

// NewValidationError reports malformed input rejected before any network call.
func NewValidationError(message string) *WizardError {
	return &WizardError{
		Class:     ClassValidation,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// NewConfigurationError reports missing credentials or settings.
func NewConfigurationError(message string) *WizardError {
	return &WizardError{
		Class:     ClassConfiguration,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// NewConnectionError reports a transport failure for the given remote operation.
func NewConnectionError(operation string, err error) *WizardError {
	return &WizardError{
		Class:     ClassConnection,
		Message:   "remote service connection error",
		Details:   err.Error(),
		Operation: operation,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// NewProtocolError reports an unparseable remote response.
func NewProtocolError(operation, details string) *WizardError {
	return &WizardError{
		Class:     ClassProtocol,
		Message:   "unrecognized remote response structure",
		Details:   details,
		Operation: operation,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Classification helpers
// ==========================

func isClass(err error, class Class) bool {
	var we *WizardError
	if errors.As(err, &we) {
		return we.Class == class
	}
	return false
}

func IsValidation(err error) bool    { return isClass(err, ClassValidation) }
func IsConfiguration(err error) bool { return isClass(err, ClassConfiguration) }
func IsConnection(err error) bool    { return isClass(err, ClassConnection) }
func IsProtocol(err error) bool      { return isClass(err, ClassProtocol) }

// ==========================
// 4. Step Error Types
// ==========================

// ErrorType tags a failed step result; the view-state machine uses it purely
// for routing, never for retry decisions.
type ErrorType string

const (
	ErrorTypePhoneNumber  ErrorType = "phone_number"
	ErrorTypeToken        ErrorType = "token"
	ErrorTypeCupo         ErrorType = "cupo"
	ErrorTypeGeneral      ErrorType = "general"
	ErrorTypeDisbursement ErrorType = "disbursement"
)

// UserMessage extracts a human-readable message from any error, falling back
// to the supplied default for non-wizard errors with empty text.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
