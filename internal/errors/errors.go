package errors

import (
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   appErr,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return "UNKNOWN"
}

// HasCode reports whether err carries the given code anywhere in its chain
func HasCode(err error, code string) bool {
	for err != nil {
		appErr, ok := err.(*AppError)
		if !ok {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Cause
	}
	return false
}

// Predefined error codes
const (
	CodeConfigInvalid        = "CONFIG_INVALID"
	CodeDatabaseError        = "DATABASE_ERROR"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeInternalError        = "INTERNAL_ERROR"
	CodeNotFound             = "NOT_FOUND"
	CodeNumericalInstability = "NUMERICAL_INSTABILITY"
	CodeInvalidCorrelation   = "INVALID_CORRELATION_MATRIX"
	CodeNoRootInRange        = "NO_ROOT_IN_RANGE"
	CodeCannotShrinkFurther  = "CANNOT_SHRINK_FURTHER"
	CodeMaxIterExceeded      = "MAX_ITER_EXCEEDED"
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

// NumericalInstability signals that posterior normalization collapsed to zero
// even after log-space renormalization (degenerate inputs).
func NumericalInstability(message string) *AppError {
	return New(CodeNumericalInstability, message)
}

// InvalidCorrelation signals a correlation matrix that cannot back a
// multivariate-normal sampler: asymmetric, wrong dimension, or not positive definite.
func InvalidCorrelation(message string) *AppError {
	return New(CodeInvalidCorrelation, message)
}

// NoRootInRange signals that bisection could not bracket the desired coverage
// within the supplied bounds. Endpoint coverages are included so the caller can
// widen the bracket.
func NoRootInRange(lower, upper, covLower, covUpper, desired float64) *AppError {
	return Newf(CodeNoRootInRange,
		"desired coverage %.4f not bracketed in [%.4f, %.4f]: corrected coverage at endpoints is %.4f and %.4f",
		desired, lower, upper, covLower, covUpper)
}

// CannotShrinkFurther signals that the requested coverage is already achieved
// by a single-variant credible set.
func CannotShrinkFurther(desired float64) *AppError {
	return Newf(CodeCannotShrinkFurther,
		"corrected coverage already exceeds %.4f with a single-variant set; no smaller set exists", desired)
}
