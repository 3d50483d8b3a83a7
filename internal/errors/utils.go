package errors

import (
	"errors"
)

// As is errors.As, re-exported so callers importing this package do not
// need a second alias for the standard library.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is is errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Wrap wraps an error with additional context, keeping an existing
// BridgeError's classification.
func Wrap(err error, errType ErrorType, code, message string) *BridgeError {
	if err == nil {
		return nil
	}

	var be *BridgeError
	if errors.As(err, &be) {
		return &BridgeError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       be,
			Component:   be.Component,
			FilePath:    be.FilePath,
			Context:     be.Context,
			Recoverable: be.Recoverable,
		}
	}

	return &BridgeError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeBuild,
	}
}
