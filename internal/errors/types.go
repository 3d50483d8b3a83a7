// Package errors defines the error taxonomy shared by the component registry,
// the bundler and the HTTP adapters.
//
// Invalid component names, a missing bundler executable and failed or timed out
// builds each get a distinct code so adapters can map them to HTTP statuses
// without inspecting message text. Unknown components are not errors at all;
// the lookup layers return nil results for them.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeIO         ErrorType = "io"
)

// Error codes used across the module.
const (
	CodeInvalidName      = "ERR_INVALID_NAME"
	CodeBundlerNotFound  = "ERR_BUNDLER_NOT_FOUND"
	CodeBuildFailed      = "ERR_BUILD_FAILED"
	CodeBuildTimeout     = "ERR_BUILD_TIMEOUT"
	CodeBuildCancelled   = "ERR_BUILD_CANCELLED"
	CodeConfigInvalid    = "ERR_CONFIG_INVALID"
	CodeOutputUnreadable = "ERR_OUTPUT_UNREADABLE"
)

// BridgeError is a structured error type with context.
type BridgeError struct {
	Type      ErrorType
	Code      string
	Message   string
	Cause     error
	Component string
	FilePath  string
	// Output holds raw diagnostic text from the bundler process.
	Output      string
	Context     map[string]interface{}
	Recoverable bool
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Output != "" {
		result += ": " + strings.TrimSpace(e.Output)
	} else if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *BridgeError) Is(target error) bool {
	var t *BridgeError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *BridgeError) WithContext(key string, value interface{}) *BridgeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithComponent adds component context.
func (e *BridgeError) WithComponent(component string) *BridgeError {
	e.Component = component

	return e
}

// Detail returns the text shown to HTTP clients in a {"detail": ...} body.
func (e *BridgeError) Detail() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %s", e.Message, strings.TrimSpace(e.Output))
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// NewInvalidNameError reports a component name rejected by the allow-list.
func NewInvalidNameError(name, reason string) *BridgeError {
	return &BridgeError{
		Type:        ErrorTypeValidation,
		Code:        CodeInvalidName,
		Message:     fmt.Sprintf("invalid component name %q: %s", name, reason),
		Recoverable: false,
	}
}

// NewBundlerNotFoundError reports that no bundler executable could be located.
// The message is expected to carry remediation steps.
func NewBundlerNotFoundError(message string, diagnostics map[string]bool) *BridgeError {
	err := &BridgeError{
		Type:        ErrorTypeConfig,
		Code:        CodeBundlerNotFound,
		Message:     message,
		Recoverable: false,
	}
	for k, v := range diagnostics {
		err.WithContext(k, v)
	}
	return err
}

// NewBuildError reports a bundler process that exited unsuccessfully.
func NewBuildError(component, entry, output string, cause error) *BridgeError {
	return &BridgeError{
		Type:        ErrorTypeBuild,
		Code:        CodeBuildFailed,
		Message:     "esbuild failed",
		Component:   component,
		FilePath:    entry,
		Output:      output,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewTimeoutError reports a bundler process killed after exceeding limit.
func NewTimeoutError(component, entry string, limit time.Duration) *BridgeError {
	return &BridgeError{
		Type:        ErrorTypeBuild,
		Code:        CodeBuildTimeout,
		Message:     fmt.Sprintf("esbuild timed out after %s", limit),
		Component:   component,
		FilePath:    entry,
		Recoverable: true,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(message string, cause error) *BridgeError {
	return &BridgeError{
		Type:    ErrorTypeConfig,
		Code:    CodeConfigInvalid,
		Message: message,
		Cause:   cause,
	}
}

func hasCode(err error, code string) bool {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// IsInvalidName reports whether err was caused by a rejected component name.
func IsInvalidName(err error) bool {
	return hasCode(err, CodeInvalidName)
}

// IsBundlerNotFound reports whether err means no bundler executable exists.
func IsBundlerNotFound(err error) bool {
	return hasCode(err, CodeBundlerNotFound)
}

// IsTimeout reports whether err is a bundler timeout.
func IsTimeout(err error) bool {
	return hasCode(err, CodeBuildTimeout)
}

// HTTPStatus maps err onto the status code adapters should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsInvalidName(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Detail extracts the client-facing message for err.
func Detail(err error) string {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Detail()
	}
	return err.Error()
}
